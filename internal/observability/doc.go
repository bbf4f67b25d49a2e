// Package observability installs the process-wide slog logger and, when an
// exporter is configured, the OpenTelemetry log and trace providers behind it.
package observability
