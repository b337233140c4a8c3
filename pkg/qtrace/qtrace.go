// Package qtrace provides scoped spans: one per job stage, always ended on
// the way out, carrying structured fields. Spans are exported over OTLP
// when an endpoint is configured and are otherwise only logged.
package qtrace

import (
	"context"
	"fmt"
	"time"

	"github.com/quatton/batchffmpeg/pkg/qlog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName identifies spans created by this module.
	TracerName = "github.com/quatton/batchffmpeg"
	// ServiceName is reported as the resource's service.name.
	ServiceName = "batch-ffmpeg"
)

// ShutdownFunc flushes and stops the exporter.
type ShutdownFunc func(ctx context.Context) error

// Setup installs a global tracer provider exporting to endpoint. An empty
// endpoint leaves the no-op provider in place.
func Setup(ctx context.Context, endpoint string, log *qlog.Logger) (ShutdownFunc, error) {
	if endpoint == "" {
		log.Debug("trace export disabled")
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", ServiceName),
		)),
	)
	otel.SetTracerProvider(tp)
	log.Info("trace export enabled", "endpoint", endpoint)

	return tp.Shutdown, nil
}

// Span is one traced unit of work.
type Span struct {
	name  string
	span  trace.Span
	start time.Time
	log   *qlog.Logger
}

// Start opens a span named name. fields are alternating keys and values,
// as with slog. End must be deferred by the caller.
func Start(ctx context.Context, log *qlog.Logger, name string, fields ...any) (context.Context, *Span) {
	ctx, span := otel.Tracer(TracerName).Start(ctx, name,
		trace.WithAttributes(attributes(fields)...),
	)
	s := &Span{
		name:  name,
		span:  span,
		start: time.Now(),
		log:   log.With("span", name),
	}
	s.log.Debug("span started")
	return ctx, s
}

// Set adds fields to the span.
func (s *Span) Set(fields ...any) {
	s.span.SetAttributes(attributes(fields)...)
}

// End closes the span, marking it failed if err is non-nil.
func (s *Span) End(err error) {
	elapsed := time.Since(s.start).Round(time.Millisecond)
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
		s.log.Debug("span failed", "elapsed", elapsed, "error", err)
	} else {
		s.span.SetStatus(codes.Ok, "")
		s.log.Debug("span finished", "elapsed", elapsed)
	}
	s.span.End()
}

func attributes(fields []any) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprint(fields[i])
		switch v := fields[i+1].(type) {
		case string:
			attrs = append(attrs, attribute.String(key, v))
		case int:
			attrs = append(attrs, attribute.Int(key, v))
		case int64:
			attrs = append(attrs, attribute.Int64(key, v))
		case float64:
			attrs = append(attrs, attribute.Float64(key, v))
		case bool:
			attrs = append(attrs, attribute.Bool(key, v))
		case []string:
			attrs = append(attrs, attribute.StringSlice(key, v))
		default:
			attrs = append(attrs, attribute.String(key, fmt.Sprint(v)))
		}
	}
	return attrs
}
