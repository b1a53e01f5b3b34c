package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/logflow/coursedb/pkg/api"
	"github.com/logflow/coursedb/pkg/facade"
	"github.com/logflow/coursedb/pkg/ingest"
	"github.com/logflow/coursedb/pkg/query/cache"
	"github.com/logflow/coursedb/pkg/store"
	"github.com/logflow/coursedb/pkg/telemetry"
	"github.com/logflow/coursedb/pkg/tui"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the CourseDB HTTP server.

Examples:
  coursedb serve
  coursedb serve --port 8080
  coursedb serve --config coursedb.yaml`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := cfgManager.Get()
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	root, err := cfg.AbsStorageRoot()
	if err != nil {
		return fmt.Errorf("resolving storage root: %w", err)
	}
	s, err := store.New(root)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	geocoder := ingest.NewHTTPGeocoder(cfg.Ingest.GeocoderBaseURL)
	resultCache := cache.New(cfg.Cache.MaxEntries, cfg.Cache.MaxAge, cfg.Cache.RedisAddr)
	f := facade.New(s, geocoder, resultCache, cfg.Ingest.ParseConcurrency)

	srv := api.NewServer(api.Config{
		Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Facade:         f,
		MaxArchiveSize: cfg.Ingest.MaxArchiveSize,
	})

	var otlpShutdown func(context.Context) error
	if cfg.Telemetry.OTLPEndpoint != "" {
		otlpCfg := telemetry.DefaultOTLPConfig("coursedb")
		otlpCfg.Endpoint = cfg.Telemetry.OTLPEndpoint
		otlpCfg.ServiceVersion = version
		shutdown, err := telemetry.InitOTLP(otlpCfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "otlp export disabled: %v\n", err)
		} else {
			otlpShutdown = shutdown
			fmt.Printf("  Exporting traces to %s\n", otlpCfg.Endpoint)
		}
	}

	tui.PrintHeader()
	fmt.Printf("  Listening on %s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  Storage root: %s\n", root)
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
		if otlpShutdown != nil {
			otlpShutdown(shutdownCtx)
		}
		cancel()
	}()

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		return nil
	}
}
