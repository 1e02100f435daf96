// Package telemetry wires OpenTelemetry trace and log export over OTLP/HTTP.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/amp-labs/statechart/config"
	"github.com/amp-labs/statechart/logger"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// collectorEndpoint is the in-cluster collector used when running under
// Kubernetes without an explicit endpoint.
const collectorEndpoint = "http://opentelemetry-collector.opentelemetry.svc.cluster.local:4318"

const instrumentationName = "github.com/amp-labs/statechart"

var (
	mu             sync.Mutex               //nolint:gochecknoglobals
	tracerProvider *sdktrace.TracerProvider //nolint:gochecknoglobals
	loggerProvider *sdklog.LoggerProvider   //nolint:gochecknoglobals
)

// Endpoints returns the traces and logs endpoints to export to, falling back
// to the in-cluster collector when running under Kubernetes.
func Endpoints(cfg config.Telemetry) (traces string, logs string) {
	traces, logs = cfg.TracesEndpoint, cfg.LogsEndpoint

	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		if traces == "" {
			traces = collectorEndpoint + "/v1/traces"
		}

		if logs == "" {
			logs = collectorEndpoint + "/v1/logs"
		}
	}

	return traces, logs
}

// Initialize sets up OpenTelemetry tracing and log export with the given
// configuration. It returns a slog handler that forwards records to the log
// exporter, for use with logger.WithHandler, or nil when log export is off.
func Initialize(ctx context.Context, cfg config.Telemetry) (slog.Handler, error) {
	if !cfg.Enabled {
		slog.Info("OpenTelemetry is disabled")

		return nil, nil //nolint:nilnil
	}

	tracesEndpoint, logsEndpoint := Endpoints(cfg)
	if tracesEndpoint == "" && logsEndpoint == "" {
		slog.Warn("OpenTelemetry endpoints not configured, telemetry will be disabled")

		return nil, nil //nolint:nilnil
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = logger.GetSubsystem(ctx)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()

	if tracesEndpoint != "" {
		exporter, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpointURL(tracesEndpoint),
			otlptracehttp.WithTimeout(cfg.Timeout),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
		}

		tracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
		)

		otel.SetTracerProvider(tracerProvider)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
	}

	var handler slog.Handler

	if logsEndpoint != "" {
		exporter, err := otlploghttp.New(ctx,
			otlploghttp.WithEndpointURL(logsEndpoint),
			otlploghttp.WithTimeout(cfg.Timeout),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP log exporter: %w", err)
		}

		loggerProvider = sdklog.NewLoggerProvider(
			sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
			sdklog.WithResource(res),
		)

		handler = otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(loggerProvider))
	}

	slog.Info("OpenTelemetry initialized",
		"service", serviceName,
		"version", cfg.ServiceVersion,
		"environment", cfg.Environment,
		"traces_endpoint", tracesEndpoint,
		"logs_endpoint", logsEndpoint,
	)

	return handler, nil
}

// Shutdown flushes and stops the providers started by Initialize.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	defer mu.Unlock()

	var errs []error

	if tracerProvider != nil {
		slog.Info("Shutting down OpenTelemetry tracer provider")

		if err := tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider: %w", err))
		}

		tracerProvider = nil
	}

	if loggerProvider != nil {
		if err := loggerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("logger provider: %w", err))
		}

		loggerProvider = nil
	}

	return errors.Join(errs...)
}

// Enabled reports whether any provider is installed.
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()

	return tracerProvider != nil || loggerProvider != nil
}
