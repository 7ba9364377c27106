// Package telemetry records how long pipeline work takes.
//
// Recorder implements stage.Timer: every timed operation becomes an
// OpenTelemetry span, a Prometheus histogram observation and an entry in the
// in-memory record list returned to callers. Tracing exports over OTLP gRPC
// when enabled; metrics live in a private registry that can be written to a
// node_exporter textfile after each job.
package telemetry
