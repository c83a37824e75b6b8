package tracing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInit_File(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "spans.json")
	shutdown, err := Init(Config{ServiceName: "handlegen", Version: "0.0.1", RunID: "run-1", File: fname})
	require.NoError(t, err)

	_, span := Start(context.Background(), "oracle.probe", Client, AttrIdentifier.String("a1b2"))
	span.RecordHTTP(404)
	span.End(nil)
	require.NoError(t, shutdown(context.Background()))

	data, err := os.ReadFile(fname)
	require.NoError(t, err)
	assert.Contains(t, string(data), "a1b2")
	assert.Contains(t, string(data), "run-1")
}

func TestSpan_Recording(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	shutdown, err := Install(Config{ServiceName: "handlegen"}, exporter)
	require.NoError(t, err)
	defer shutdown(context.Background())

	ctx, span := Start(context.Background(), "batch.produce", Producer, AttrBatch.Int64(3))
	span.SetAttributes(AttrTemplate.String("LLDD"))
	span.End(errors.New("disk full"))

	_, probe := Start(ctx, "oracle.probe", Client)
	probe.RecordHTTP(503)
	probe.End(nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "batch.produce", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Contains(t, spans[0].Attributes, AttrTemplate.String("LLDD"))
	assert.Equal(t, codes.Error, spans[1].Status.Code)
	assert.Equal(t, spans[0].SpanContext.TraceID(), spans[1].SpanContext.TraceID())
}

func TestSpan_NilSafe(t *testing.T) {
	var span *Span
	span.SetAttributes(AttrStatus.String("taken"))
	span.RecordHTTP(500)
	span.End(nil)
}
