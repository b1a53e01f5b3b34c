package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/logflow/coursedb/pkg/tui"
)

var queryServerAddr string

var queryCmd = &cobra.Command{
	Use:   "query [query-file]",
	Short: "Run a query against a running CourseDB server",
	Long: `Send a query JSON document to a running server's /query endpoint
and print the result as a table.

Examples:
  coursedb query --server http://localhost:4321 query.json`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryServerAddr, "server", "http://localhost:4321", "base URL of a running CourseDB server")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	queryPath := args[0]

	body, err := os.ReadFile(queryPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", queryPath, err)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Post(queryServerAddr+"/query", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("posting query: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Message != "" {
			return fmt.Errorf("query failed (%s): %s", errResp.Error, errResp.Message)
		}
		return fmt.Errorf("query failed with status %d", resp.StatusCode)
	}

	var parsed struct {
		Result []map[string]interface{} `json:"result"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	tui.PrintQueryResultTable(parsed.Result)
	return nil
}
