package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"shotline/internal/logging"
	"shotline/internal/services"
)

// Record is one completed timed operation.
type Record struct {
	Name     string        `json:"name"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Status   string        `json:"status"`
	Error    string        `json:"error,omitempty"`
}

// Recorder times operations into spans, metrics and records.
type Recorder struct {
	tracer  trace.Tracer
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	records []Record
}

// NewRecorder builds a recorder. A nil tracer disables spans and nil metrics
// disable histogram observations.
func NewRecorder(tracer trace.Tracer, metrics *Metrics, logger *slog.Logger) *Recorder {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(ServiceName)
	}
	return &Recorder{
		tracer:  tracer,
		metrics: metrics,
		logger:  logging.NewComponentLogger(logger, "telemetry"),
		now:     time.Now,
	}
}

// TimeOperation runs fn inside a span named name and records its duration.
func (r *Recorder) TimeOperation(ctx context.Context, name string, fn func(context.Context) error, attrs ...logging.Attr) error {
	spanAttrs := make([]attribute.KeyValue, 0, len(attrs)+2)
	for _, attr := range attrs {
		spanAttrs = append(spanAttrs, attribute.String(attr.Key, attr.Value.String()))
	}
	if jobID, ok := services.JobIDFromContext(ctx); ok {
		spanAttrs = append(spanAttrs, attribute.String(logging.FieldJobID, jobID))
	}
	if stack, ok := services.StackFromContext(ctx); ok {
		spanAttrs = append(spanAttrs, attribute.String(logging.FieldStack, stack))
	}

	ctx, span := r.tracer.Start(ctx, name, trace.WithAttributes(spanAttrs...))
	started := r.now()
	err := fn(ctx)
	elapsed := r.now().Sub(started)

	status := statusOf(err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("error.kind", string(services.KindOf(err))))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()

	if r.metrics != nil {
		r.metrics.OperationDuration.WithLabelValues(name, status).Observe(elapsed.Seconds())
	}
	record := Record{Name: name, Started: started.UTC(), Duration: elapsed, Status: status}
	if err != nil {
		record.Error = err.Error()
	}
	r.mu.Lock()
	r.records = append(r.records, record)
	r.mu.Unlock()

	r.logger.Debug("operation timed",
		logging.String("operation", name),
		logging.String("status", status),
		logging.Duration("duration", elapsed),
	)
	return err
}

// Records returns a copy of the completed operations in finish order.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return "succeeded"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "failed"
	}
}
