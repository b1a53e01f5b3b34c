package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStartEndSpanRecordsDuration(t *testing.T) {
	tracer := NewTracer("coursedb")
	ctx, span := tracer.StartSpan(context.Background(), "ingest.sections")
	span.SetAttribute("dataset_id", "sections")
	time.Sleep(time.Millisecond)
	tracer.EndSpan(span)

	if span.Duration <= 0 {
		t.Fatalf("Duration = %v, want > 0", span.Duration)
	}
	if got := SpanFromContext(ctx); got != span {
		t.Fatalf("SpanFromContext returned a different span")
	}
}

func TestChildSpanInheritsTraceID(t *testing.T) {
	tracer := NewTracer("coursedb")
	ctx, parent := tracer.StartSpan(context.Background(), "query")
	_, child := tracer.StartSpan(ctx, "query.validate")

	if child.TraceID != parent.TraceID {
		t.Errorf("child TraceID = %q, want %q", child.TraceID, parent.TraceID)
	}
	if child.ParentSpanID != parent.SpanID {
		t.Errorf("child ParentSpanID = %q, want %q", child.ParentSpanID, parent.SpanID)
	}
}

func TestInstrumentedOperationRecordsErrorStatus(t *testing.T) {
	tracer := NewTracer("coursedb")
	metrics := NewMetrics()
	wantErr := errors.New("boom")

	err := InstrumentedOperation(context.Background(), tracer, metrics, "query.run", func(ctx context.Context) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("got %v, want %v", err, wantErr)
	}
	if metrics.ErrorCount != 1 {
		t.Errorf("ErrorCount = %d, want 1", metrics.ErrorCount)
	}
}

func TestMetricsPercentiles(t *testing.T) {
	m := NewMetrics()
	for _, ms := range []int{10, 20, 30, 40, 50} {
		m.RecordLatency(time.Duration(ms) * time.Millisecond)
	}
	if p50 := m.Percentile(0.5); p50 < 20*time.Millisecond || p50 > 40*time.Millisecond {
		t.Errorf("p50 = %v, want around 30ms", p50)
	}
	summary := m.Summary()
	if summary.P50Latency != m.Percentile(0.5) {
		t.Errorf("Summary p50 mismatch")
	}
}
