package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Exporter selects where telemetry is shipped besides the local log output.
type Exporter string

const (
	ExporterNone     Exporter = "none"
	ExporterStdout   Exporter = "stdout"
	ExporterOTLPHTTP Exporter = "otlp-http"
	ExporterOTLPGRPC Exporter = "otlp-grpc"
)

// Format is the local log output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Options configure Instrument.
type Options struct {
	Level    string
	Format   Format
	Exporter Exporter

	// ServiceName names the instrumentation scope. Defaults to "sociallogin".
	ServiceName string

	// Writer receives local log output. Defaults to os.Stderr.
	Writer io.Writer
}

// Instrument installs the default slog logger. Local output is a text or JSON
// handler enriched with trace and span ids. With an exporter configured, log
// records at or above Level are also bridged to OpenTelemetry. The OTLP
// exporters ship spans over the same transport; stdout exports logs only.
//
// The returned function flushes and stops the providers.
func Instrument(ctx context.Context, opts Options) (shutdown func(context.Context) error, err error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "sociallogin"
	}
	if opts.Writer == nil {
		opts.Writer = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var local slog.Handler
	switch Format(strings.ToLower(string(opts.Format))) {
	case FormatText, "":
		local = slog.NewTextHandler(opts.Writer, handlerOpts)
	case FormatJSON:
		local = slog.NewJSONHandler(opts.Writer, handlerOpts)
	default:
		return nil, fmt.Errorf("invalid log format %q", opts.Format)
	}
	handlers := []slog.Handler{&traceHandler{Handler: local}}

	var shutdowns []func(context.Context) error
	shutdown = func(ctx context.Context) error {
		var errs []error
		for i := len(shutdowns) - 1; i >= 0; i-- {
			errs = append(errs, shutdowns[i](ctx))
		}
		return errors.Join(errs...)
	}

	logExporter, err := newLogExporter(ctx, opts.Exporter)
	if err != nil {
		return nil, err
	}
	if logExporter != nil {
		provider := sdklog.NewLoggerProvider(
			sdklog.WithProcessor(minsev.NewLogProcessor(sdklog.NewBatchProcessor(logExporter), severity(level))),
		)
		global.SetLoggerProvider(provider)
		shutdowns = append(shutdowns, provider.Shutdown)
		handlers = append(handlers, otelslog.NewHandler(opts.ServiceName, otelslog.WithLoggerProvider(provider)))
	}

	traceExporter, err := newTraceExporter(ctx, opts.Exporter)
	if err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}
	if traceExporter != nil {
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExporter))
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.TraceContext{})
		shutdowns = append(shutdowns, tp.Shutdown)
	}

	var handler slog.Handler = handlers[0]
	if len(handlers) > 1 {
		handler = fanout(handlers)
	}
	slog.SetDefault(slog.New(handler))

	return shutdown, nil
}

func newLogExporter(ctx context.Context, exporter Exporter) (sdklog.Exporter, error) {
	switch exporter {
	case ExporterNone, "":
		return nil, nil
	case ExporterStdout:
		return stdoutlog.New()
	case ExporterOTLPHTTP:
		return otlploghttp.New(ctx)
	case ExporterOTLPGRPC:
		return otlploggrpc.New(ctx)
	}
	return nil, fmt.Errorf("unknown telemetry exporter %q", exporter)
}

// severity maps a slog level to the minimum severity forwarded to the
// OpenTelemetry pipeline.
func severity(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}

// newTraceExporter returns the span exporter for exporter, or nil when spans
// are not exported.
func newTraceExporter(ctx context.Context, exporter Exporter) (sdktrace.SpanExporter, error) {
	switch exporter {
	case ExporterOTLPHTTP:
		return otlptracehttp.New(ctx)
	case ExporterOTLPGRPC:
		return otlptracegrpc.New(ctx)
	}
	return nil, nil
}
