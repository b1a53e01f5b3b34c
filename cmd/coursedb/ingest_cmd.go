package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/logflow/coursedb/internal/model"
	"github.com/logflow/coursedb/pkg/facade"
	"github.com/logflow/coursedb/pkg/ingest"
	"github.com/logflow/coursedb/pkg/tui"

	"github.com/logflow/coursedb/pkg/store"
)

var (
	ingestID   string
	ingestKind string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [archive-file]",
	Short: "Ingest an archive directly into the configured storage directory",
	Long: `Ingest a zip archive of sections or rooms directly into the
storage directory named by the configuration, without going through
a running server.

Examples:
  coursedb ingest --id sections2015 --kind sections courses.zip
  coursedb ingest --id ubc --kind rooms rooms.zip`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestID, "id", "", "dataset id")
	ingestCmd.Flags().StringVar(&ingestKind, "kind", "", "dataset kind (sections or rooms)")
	ingestCmd.MarkFlagRequired("id")
	ingestCmd.MarkFlagRequired("kind")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	archivePath := args[0]

	kind, err := model.ParseKind(ingestKind)
	if err != nil {
		return fmt.Errorf("unknown kind %q (want sections or rooms)", ingestKind)
	}

	data, err := os.ReadFile(archivePath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", archivePath, err)
	}

	cfg := cfgManager.Get()
	root, err := cfg.AbsStorageRoot()
	if err != nil {
		return fmt.Errorf("resolving storage root: %w", err)
	}
	s, err := store.New(root)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	var geocoder ingest.Geocoder
	if kind == model.KindRooms {
		geocoder = ingest.NewHTTPGeocoder(cfg.Ingest.GeocoderBaseURL)
	}
	f := facade.New(s, geocoder, nil, cfg.Ingest.ParseConcurrency)

	bar := tui.ShowArchiveProgress(int64(len(data)), "ingesting "+archivePath)
	bar.Add(len(data) / 2)

	start := time.Now()
	_, err = f.AddDataset(context.Background(), ingestID, base64.StdEncoding.EncodeToString(data), kind)
	bar.Finish()
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	infos, err := f.ListDatasets(context.Background())
	if err != nil {
		return fmt.Errorf("listing datasets: %w", err)
	}
	var numRows int
	for _, info := range infos {
		if info.ID == ingestID {
			numRows = info.NumRows
		}
	}

	tui.PrintIngestSummary(tui.IngestSummary{
		DatasetID: ingestID,
		Kind:      kind.String(),
		NumRows:   numRows,
		Duration:  time.Since(start),
	})
	return nil
}
