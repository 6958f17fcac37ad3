package otel

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Metric exporters accepted by Setup.
const (
	ExporterStdout     = "stdout"
	ExporterPrometheus = "prometheus"
)

// Config controls telemetry initialization.
type Config struct {
	ServiceName string
	Version     string
	Enabled     bool
	// MetricsExporter is "stdout" (default) or "prometheus". With prometheus,
	// traces are recorded but not exported and metrics are served by
	// Telemetry.MetricsHandler.
	MetricsExporter string
}

// Telemetry is the result of Setup.
type Telemetry struct {
	// Shutdown flushes exporters. Always non-nil.
	Shutdown func(context.Context) error
	// MetricsHandler serves the Prometheus exposition format. Nil unless the
	// prometheus exporter is selected.
	MetricsHandler http.Handler
}

// Setup installs global tracer and meter providers. When cfg.Enabled is
// false nothing is installed and OTel stays a no-op.
func Setup(cfg Config) (*Telemetry, error) {
	noop := &Telemetry{Shutdown: func(context.Context) error { return nil }}
	if !cfg.Enabled {
		return noop, nil
	}

	ctx := context.Background()
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OTel resource: %w", err)
	}

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	var reader metric.Reader
	var handler http.Handler

	switch cfg.MetricsExporter {
	case "", ExporterStdout:
		traceExporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("creating trace exporter: %w", err)
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(traceExporter))

		metricExporter, err := stdoutmetric.New(stdoutmetric.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("creating metric exporter: %w", err)
		}
		reader = metric.NewPeriodicReader(metricExporter)

	case ExporterPrometheus:
		// A private registry keeps repeated Setup calls (tests, restarts)
		// from colliding in prometheus.DefaultRegisterer.
		reg := prometheus.NewRegistry()
		exp, err := promexporter.New(promexporter.WithRegisterer(reg))
		if err != nil {
			return nil, fmt.Errorf("creating prometheus exporter: %w", err)
		}
		reader = exp
		handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	default:
		return nil, fmt.Errorf("unknown metrics exporter %q", cfg.MetricsExporter)
	}

	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)
	mp := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	shutdown := func(ctx context.Context) error {
		var firstErr error
		if err := tp.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := mp.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		return firstErr
	}
	return &Telemetry{Shutdown: shutdown, MetricsHandler: handler}, nil
}

// Tracer returns a tracer for the given package.
func Tracer(pkg string) trace.Tracer {
	return otel.Tracer(pkg)
}
