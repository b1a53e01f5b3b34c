// Package api exposes CourseDB's facade over HTTP using the standard
// library's method+pattern ServeMux routing.
package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/logflow/coursedb/internal/model"
	cerrors "github.com/logflow/coursedb/pkg/errors"
	"github.com/logflow/coursedb/pkg/facade"
	"github.com/logflow/coursedb/pkg/telemetry"
)

// Server is the HTTP front end over a Facade.
type Server struct {
	addr    string
	facade  *facade.Facade
	tracer  *telemetry.Tracer
	metrics *telemetry.Metrics
	mux     *http.ServeMux
	server  *http.Server

	maxArchiveSize int64
}

// Config configures the server.
type Config struct {
	Addr           string
	Facade         *facade.Facade
	MaxArchiveSize int64 // 0 disables the check
}

// NewServer builds a Server with routes registered.
func NewServer(cfg Config) *Server {
	s := &Server{
		addr:           cfg.Addr,
		facade:         cfg.Facade,
		tracer:         telemetry.NewTracer("coursedb"),
		metrics:        telemetry.NewMetrics(),
		mux:            http.NewServeMux(),
		maxArchiveSize: cfg.MaxArchiveSize,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /metrics", s.handleMetrics)
	s.mux.HandleFunc("GET /echo/{msg}", s.handleEcho)
	s.mux.HandleFunc("PUT /dataset/{id}/{kind}", s.handleAddDataset)
	s.mux.HandleFunc("DELETE /dataset/{id}", s.handleRemoveDataset)
	s.mux.HandleFunc("GET /datasets", s.handleListDatasets)
	s.mux.HandleFunc("POST /query", s.handlePerformQuery)
}

// ServeHTTP lets Server itself act as an http.Handler, so tests can
// drive it with httptest without binding a real listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Start runs the server until it errors or is shut down.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	summary := s.metrics.Summary()
	fmt.Fprintf(w, "coursedb_operations_processed %d\n", summary.OperationsProcessed)
	fmt.Fprintf(w, "coursedb_bytes_read %d\n", summary.BytesRead)
	fmt.Fprintf(w, "coursedb_bytes_written %d\n", summary.BytesWritten)
	fmt.Fprintf(w, "coursedb_errors_total %d\n", summary.ErrorCount)
	fmt.Fprintf(w, "coursedb_query_duration_p50_ns %d\n", summary.P50Latency.Nanoseconds())
	fmt.Fprintf(w, "coursedb_query_duration_p95_ns %d\n", summary.P95Latency.Nanoseconds())
	fmt.Fprintf(w, "coursedb_query_duration_p99_ns %d\n", summary.P99Latency.Nanoseconds())
}

func (s *Server) handleEcho(w http.ResponseWriter, r *http.Request) {
	msg := r.PathValue("msg")
	writeJSON(w, http.StatusOK, map[string]string{"result": msg + msg})
}

func (s *Server) handleAddDataset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	kindStr := r.PathValue("kind")

	err := telemetry.InstrumentedOperation(r.Context(), s.tracer, s.metrics, "api.addDataset", func(ctx context.Context) error {
		kind, err := model.ParseKind(kindStr)
		if err != nil {
			return cerrors.InvalidContentf("unknown kind %q", kindStr)
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, s.readLimit()))
		if err != nil {
			return cerrors.Wrap(err, cerrors.CodeInternal, "reading request body")
		}
		if s.maxArchiveSize > 0 && int64(len(body)) > s.maxArchiveSize {
			return cerrors.InvalidContentf("archive exceeds maximum size of %d bytes", s.maxArchiveSize)
		}
		s.metrics.IncrementBytesRead(int64(len(body)))

		payload := base64.StdEncoding.EncodeToString(body)
		ids, err := s.facade.AddDataset(ctx, id, payload, kind)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"result": ids})
		return nil
	})
	if err != nil {
		writeError(w, err)
	}
}

func (s *Server) handleRemoveDataset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := telemetry.InstrumentedOperation(r.Context(), s.tracer, s.metrics, "api.removeDataset", func(ctx context.Context) error {
		removed, err := s.facade.RemoveDataset(ctx, id)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"result": removed})
		return nil
	})
	if err != nil {
		writeError(w, err)
	}
}

func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	err := telemetry.InstrumentedOperation(r.Context(), s.tracer, s.metrics, "api.listDatasets", func(ctx context.Context) error {
		infos, err := s.facade.ListDatasets(ctx)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"result": infos})
		return nil
	})
	if err != nil {
		writeError(w, err)
	}
}

func (s *Server) handlePerformQuery(w http.ResponseWriter, r *http.Request) {
	err := telemetry.InstrumentedOperation(r.Context(), s.tracer, s.metrics, "api.performQuery", func(ctx context.Context) error {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			return cerrors.Wrap(err, cerrors.CodeInternal, "reading request body")
		}
		s.metrics.IncrementBytesRead(int64(len(body)))
		rows, err := s.facade.PerformQuery(ctx, body)
		if err != nil {
			return err
		}
		resp, err := json.Marshal(map[string]interface{}{"result": rows})
		if err != nil {
			return cerrors.Wrap(err, cerrors.CodeInternal, "encoding response")
		}
		s.metrics.IncrementBytesWritten(int64(len(resp)))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(resp)
		return nil
	})
	if err != nil {
		writeError(w, err)
	}
}

func (s *Server) readLimit() int64 {
	if s.maxArchiveSize > 0 {
		return s.maxArchiveSize + 1
	}
	return 1 << 30
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	code := cerrors.CodeOf(err)
	status := cerrors.HTTPStatus(code)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	writeJSON(w, status, map[string]interface{}{
		"error":   strings.ToLower(string(code)),
		"message": message,
	})
}
