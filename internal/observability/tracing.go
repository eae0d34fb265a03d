// Package observability wires OpenTelemetry tracing to an OTLP collector.
//
// Genkit already instruments every model and embedding call with spans on
// its own TracerProvider. Setup attaches an OTLP HTTP exporter to that
// provider and installs it as the global OTel provider, so application
// spans (ticket runs, indexing) land in the same trace tree as the model
// calls beneath them.
//
// Tracing is best-effort: a missing or unreachable collector disables
// export but never fails startup.
package observability

import (
	"context"
	"os"

	"github.com/firebase/genkit/go/core/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/mvarela/triage/internal/log"
)

// DefaultEndpoint is the conventional local OTLP HTTP endpoint.
const DefaultEndpoint = "localhost:4318"

// tracerName identifies this module's spans.
const tracerName = "github.com/mvarela/triage"

// Config for the OTLP exporter.
type Config struct {
	// Endpoint is the collector's OTLP HTTP host:port. Empty means
	// DefaultEndpoint.
	Endpoint string
	// ServiceName tags exported spans; shows up as the service in APM UIs.
	ServiceName string
}

// Setup attaches an OTLP exporter to Genkit's TracerProvider and installs
// it globally. The returned shutdown function flushes pending spans.
func Setup(ctx context.Context, cfg Config, logger log.Logger) (shutdown func(context.Context) error, err error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	// Genkit's TracerProvider reads the service name from the environment
	// when building its resource.
	if cfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("failed to create OTLP exporter, tracing disabled", "error", err)
		return func(context.Context) error { return nil }, nil
	}

	provider := tracing.TracerProvider()
	provider.RegisterSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter))
	otel.SetTracerProvider(provider)

	logger.Debug("tracing enabled", "endpoint", endpoint, "service", cfg.ServiceName)
	return provider.Shutdown, nil
}

// Tracer returns the module tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan opens a span under the current context.
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name)
}
