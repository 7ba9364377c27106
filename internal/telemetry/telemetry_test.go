package telemetry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"shotline/internal/config"
	"shotline/internal/logging"
	"shotline/internal/services"
)

func newTestRecorder(t *testing.T) (*Recorder, *tracetest.SpanRecorder, *Metrics) {
	t.Helper()
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	metrics := NewMetrics()
	return NewRecorder(tp.Tracer("test"), metrics, logging.NewNop()), spans, metrics
}

func TestTimeOperationRecordsSpanMetricAndRecord(t *testing.T) {
	rec, spans, metrics := newTestRecorder(t)
	tick := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rec.now = func() time.Time {
		tick = tick.Add(250 * time.Millisecond)
		return tick
	}

	ctx := services.WithJobID(context.Background(), "job-1")
	err := rec.TimeOperation(ctx, "stage.download", func(context.Context) error { return nil },
		logging.String(logging.FieldStage, "download"))
	if err != nil {
		t.Fatalf("TimeOperation: %v", err)
	}

	ended := spans.Ended()
	if len(ended) != 1 || ended[0].Name() != "stage.download" {
		t.Fatalf("unexpected spans %v", ended)
	}
	attrs := map[string]string{}
	for _, kv := range ended[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsString()
	}
	if attrs["stage"] != "download" || attrs["job_id"] != "job-1" {
		t.Fatalf("unexpected span attributes %v", attrs)
	}

	records := rec.Records()
	if len(records) != 1 || records[0].Duration != 250*time.Millisecond || records[0].Status != "succeeded" {
		t.Fatalf("unexpected records %+v", records)
	}
	if n := testutil.CollectAndCount(metrics.OperationDuration); n != 1 {
		t.Fatalf("expected one histogram series, got %d", n)
	}
}

func TestTimeOperationFailure(t *testing.T) {
	rec, spans, _ := newTestRecorder(t)
	boom := services.Wrap(services.ErrExternalTool, "extract-frames", "ffmpeg", "exit 1", nil)

	err := rec.TimeOperation(context.Background(), "stage.extract-frames", func(context.Context) error { return boom })
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected error passthrough, got %v", err)
	}
	span := spans.Ended()[0]
	if span.Status().Code != codes.Error {
		t.Fatalf("expected error status, got %v", span.Status())
	}
	if got := rec.Records()[0]; got.Status != "failed" || got.Error == "" {
		t.Fatalf("unexpected record %+v", got)
	}

	err = rec.TimeOperation(context.Background(), "op", func(context.Context) error { return context.Canceled })
	if !errors.Is(err, context.Canceled) || rec.Records()[1].Status != "canceled" {
		t.Fatalf("expected canceled record, got %+v", rec.Records())
	}
}

func TestRecorderWithoutTracerOrMetrics(t *testing.T) {
	rec := NewRecorder(nil, nil, nil)
	called := false
	if err := rec.TimeOperation(context.Background(), "op", func(context.Context) error { called = true; return nil }); err != nil {
		t.Fatal(err)
	}
	if !called || len(rec.Records()) != 1 {
		t.Fatal("expected fn called and recorded")
	}
}

func TestWriteTextfile(t *testing.T) {
	metrics := NewMetrics()
	metrics.JobsTotal.WithLabelValues("succeeded").Inc()
	metrics.StageItems.WithLabelValues("upload-images", "failed").Add(2)
	path := filepath.Join(t.TempDir(), "nested", "shotline.prom")

	if err := metrics.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	if !strings.Contains(text, `shotline_jobs_total{status="succeeded"} 1`) {
		t.Fatalf("missing jobs counter in:\n%s", text)
	}
	if !strings.Contains(text, `shotline_stage_items_total{outcome="failed",stage="upload-images"} 2`) {
		t.Fatalf("missing stage items counter in:\n%s", text)
	}
	if err := (*Metrics)(nil).WriteTextfile(path); err != nil {
		t.Fatal(err)
	}
}

func TestInitTracingDisabled(t *testing.T) {
	p, err := InitTracing(context.Background(), config.Telemetry{}, "dev", nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	_, span := p.Tracer().Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Fatal("disabled tracing must produce invalid span contexts")
	}
	span.End()
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
}
