// Command coursedb serves course-section and campus-room datasets
// over HTTP and provides local ingest and query tooling.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/logflow/coursedb/pkg/config"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

var configPath string

var cfgManager = config.NewManager()

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "coursedb",
	Short:   "CourseDB - course sections and campus rooms, queryable over HTTP",
	Version: fmt.Sprintf("%s (%s)", version, commit),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return cfgManager.Load(configPath)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
}
