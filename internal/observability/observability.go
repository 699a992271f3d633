// Package observability configures process-wide logging.
//
// Logs always go to stderr through log/slog. Optionally, records are also exported
// through an OpenTelemetry log pipeline (stdout, OTLP/gRPC or OTLP/HTTP).
package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// Exporter selects where OpenTelemetry log records are sent.
type Exporter string

const (
	ExporterNone     Exporter = "none"
	ExporterStdout   Exporter = "stdout"
	ExporterOTLPGRPC Exporter = "otlp-grpc"
	ExporterOTLPHTTP Exporter = "otlp-http"
)

// instrumentationName identifies this module's log records.
const instrumentationName = "github.com/florianilch/oauthkeeper"

// Config describes the logging setup.
type Config struct {
	Level  slog.Level
	Format string // text|json

	Exporter Exporter
	// Endpoint overrides the OTLP endpoint URL; empty uses OTEL_EXPORTER_OTLP_* variables.
	Endpoint string
}

// Instrument installs the default slog logger and, if configured, an OpenTelemetry
// log pipeline. The returned shutdown function flushes pending records.
func Instrument(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	return instrument(ctx, cfg, os.Stderr)
}

func instrument(ctx context.Context, cfg Config, w io.Writer) (func(context.Context) error, error) {
	console, err := consoleHandler(w, cfg.Level, cfg.Format)
	if err != nil {
		return nil, err
	}

	noop := func(context.Context) error { return nil }
	if cfg.Exporter == "" || cfg.Exporter == ExporterNone {
		slog.SetDefault(slog.New(console))
		return noop, nil
	}

	exporter, err := newExporter(ctx, cfg.Exporter, cfg.Endpoint, w)
	if err != nil {
		return nil, fmt.Errorf("creating %s log exporter: %w", cfg.Exporter, err)
	}

	// Filter in the pipeline so slog level and exported severity agree
	processor := minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), severity(cfg.Level))
	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(processor))

	otelHandler := otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(provider))
	slog.SetDefault(slog.New(fanout{console, otelHandler}))

	return provider.Shutdown, nil
}

func consoleHandler(w io.Writer, level slog.Level, format string) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: level}
	switch format {
	case "", "text":
		return slog.NewTextHandler(w, opts), nil
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}
}

func newExporter(ctx context.Context, kind Exporter, endpoint string, w io.Writer) (sdklog.Exporter, error) {
	switch kind {
	case ExporterStdout:
		return stdoutlog.New(stdoutlog.WithWriter(w))
	case ExporterOTLPGRPC:
		var opts []otlploggrpc.Option
		if endpoint != "" {
			opts = append(opts, otlploggrpc.WithEndpointURL(endpoint))
		}
		return otlploggrpc.New(ctx, opts...)
	case ExporterOTLPHTTP:
		var opts []otlploghttp.Option
		if endpoint != "" {
			opts = append(opts, otlploghttp.WithEndpointURL(endpoint))
		}
		return otlploghttp.New(ctx, opts...)
	default:
		return nil, errors.New("unknown exporter")
	}
}

// severity maps a slog level to the closest OpenTelemetry severity.
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

// fanout sends each record to every handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
