package tracing

import (
	"context"
	"errors"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/viant/handlegen"

// Span attribute keys shared by producers and the scanner.
const (
	AttrRunID      = attribute.Key("handlegen.run_id")
	AttrBatch      = attribute.Key("handlegen.batch")
	AttrIdentifier = attribute.Key("handlegen.identifier")
	AttrTemplate   = attribute.Key("handlegen.template")
	AttrStatus     = attribute.Key("handlegen.status")
	AttrHTTPStatus = attribute.Key("http.status_code")
)

// Config configures span export.
type Config struct {
	ServiceName string
	Version     string
	RunID       string
	// File receives JSON spans; empty means stdout.
	File string
}

// ShutdownFunc flushes pending spans and releases the exporter.
type ShutdownFunc func(ctx context.Context) error

// Init installs a global tracer provider exporting to cfg.File with the
// stdout exporter.
func Init(cfg Config) (ShutdownFunc, error) {
	var w io.Writer = os.Stdout
	var f *os.File
	if cfg.File != "" {
		var err error
		if f, err = os.Create(cfg.File); err != nil {
			return nil, err
		}
		w = f
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		if f != nil {
			_ = f.Close()
		}
		return nil, err
	}
	shutdown, err := Install(cfg, exporter)
	if err != nil {
		if f != nil {
			_ = f.Close()
		}
		return nil, err
	}
	return func(ctx context.Context) error {
		err := shutdown(ctx)
		if f != nil {
			err = errors.Join(err, f.Close())
		}
		return err
	}, nil
}

// Install sets a global tracer provider over exporter. Spans are exported
// synchronously so a crash loses none that ended.
func Install(cfg Config, exporter sdktrace.SpanExporter) (ShutdownFunc, error) {
	attrs := []attribute.KeyValue{
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.Version),
	}
	if cfg.RunID != "" {
		attrs = append(attrs, AttrRunID.String(cfg.RunID))
	}
	res, err := resource.New(context.Background(), resource.WithAttributes(attrs...))
	if err != nil {
		return nil, err
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}

// Kind is the role of a span.
type Kind int

const (
	Internal Kind = iota
	Client
	Producer
	Consumer
)

func (k Kind) spanKind() trace.SpanKind {
	switch k {
	case Client:
		return trace.SpanKindClient
	case Producer:
		return trace.SpanKindProducer
	case Consumer:
		return trace.SpanKindConsumer
	default:
		return trace.SpanKindInternal
	}
}

// Span wraps an OpenTelemetry span. A nil *Span is a no-op.
type Span struct {
	span trace.Span
}

// Start starts a child span of the span in ctx.
func Start(ctx context.Context, name string, kind Kind, attrs ...attribute.KeyValue) (context.Context, *Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name,
		trace.WithSpanKind(kind.spanKind()),
		trace.WithAttributes(attrs...))
	return ctx, &Span{span: span}
}

// SetAttributes attaches attrs.
func (s *Span) SetAttributes(attrs ...attribute.KeyValue) {
	if s == nil || len(attrs) == 0 {
		return
	}
	s.span.SetAttributes(attrs...)
}

// RecordHTTP attaches the response code. A 404 is a normal probe answer, so
// only 5xx marks the span failed.
func (s *Span) RecordHTTP(code int) {
	if s == nil {
		return
	}
	s.span.SetAttributes(AttrHTTPStatus.Int(code))
	if code >= 500 {
		s.span.SetStatus(codes.Error, "server error")
	}
}

// End records err, if any, and ends the span.
func (s *Span) End(err error) {
	if s == nil {
		return
	}
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
	s.span.End()
}
