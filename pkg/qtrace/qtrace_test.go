package qtrace

import (
	"context"
	"errors"
	"testing"

	"github.com/quatton/batchffmpeg/pkg/qlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func TestSpan_RecordsFieldsAndError(t *testing.T) {
	rec := withRecorder(t)

	ctx, root := Start(context.Background(), qlog.Discard(), "batch-ffmpeg-job", "application", "batch-ffmpeg")
	_, child := Start(ctx, qlog.Discard(), "download", "inputs", 2)
	child.Set("bytes", int64(1024))
	child.End(errors.New("access denied"))
	root.End(nil)

	spans := rec.Ended()
	require.Len(t, spans, 2)

	download := spans[0]
	assert.Equal(t, "download", download.Name())
	assert.Equal(t, codes.Error, download.Status().Code)
	assert.Contains(t, download.Attributes(), attribute.Int("inputs", 2))
	assert.Contains(t, download.Attributes(), attribute.Int64("bytes", 1024))
	assert.Equal(t, spans[1].SpanContext().SpanID(), download.Parent().SpanID())

	job := spans[1]
	assert.Equal(t, "batch-ffmpeg-job", job.Name())
	assert.Equal(t, codes.Ok, job.Status().Code)
	assert.Contains(t, job.Attributes(), attribute.String("application", "batch-ffmpeg"))
}

func TestSetup_NoEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), "", qlog.Discard())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestAttributes_OddFieldsIgnored(t *testing.T) {
	attrs := attributes([]any{"a", "1", "dangling"})
	assert.Equal(t, []attribute.KeyValue{attribute.String("a", "1")}, attrs)
}
