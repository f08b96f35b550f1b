package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/inkwell-notes/inkwell-backend/internal/platform/envutil"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/logger"
)

// SetupTracing installs a trace provider writing spans to stdout. It returns
// a shutdown func to flush on exit; tracing stays a no-op when disabled.
func SetupTracing(log *logger.Logger) (func(context.Context) error, error) {
	if envutil.Str("TRACING_ENABLED", "false") != "true" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)

	log.Info("Tracing enabled", "exporter", "stdout")
	return tp.Shutdown, nil
}
