package storage

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"gclipool-go/internal/monitoring"
	"gclipool-go/internal/monitoring/tracing"
)

// WithInstrumentation wraps a backend with metrics and tracing.
func WithInstrumentation(inner Backend) Backend {
	if inner == nil {
		return nil
	}
	return &instrumentedBackend{inner: inner}
}

type instrumentedBackend struct {
	inner Backend
}

func (i *instrumentedBackend) Initialize(ctx context.Context) error {
	return i.instrument(ctx, "initialize", func(ctx context.Context) error {
		return i.inner.Initialize(ctx)
	})
}

func (i *instrumentedBackend) Close() error { return i.inner.Close() }

func (i *instrumentedBackend) Health(ctx context.Context) error {
	return i.instrument(ctx, "health", func(ctx context.Context) error {
		return i.inner.Health(ctx)
	})
}

func (i *instrumentedBackend) Name() string { return i.inner.Name() }

func (i *instrumentedBackend) LoadDocument(ctx context.Context, docKey string) (map[string]interface{}, error) {
	var doc map[string]interface{}
	err := i.instrument(ctx, "load_document", func(ctx context.Context) error {
		var innerErr error
		doc, innerErr = i.inner.LoadDocument(ctx, docKey)
		return innerErr
	})
	return doc, err
}

func (i *instrumentedBackend) WriteDocument(ctx context.Context, docKey string, doc map[string]interface{}) error {
	return i.instrument(ctx, "write_document", func(ctx context.Context) error {
		return i.inner.WriteDocument(ctx, docKey, doc)
	})
}

func (i *instrumentedBackend) instrument(ctx context.Context, op string, fn func(context.Context) error) error {
	label := i.inner.Name()
	ctx, span := tracing.StartSpan(ctx, "storage", label+"."+op)
	span.SetAttributes(
		attribute.String("storage.backend", label),
		attribute.String("storage.operation", op),
	)
	start := time.Now()
	err := fn(ctx)
	monitoring.StorageOpDuration.WithLabelValues(label, op).Observe(time.Since(start).Seconds())
	if err != nil {
		monitoring.StorageOpErrors.WithLabelValues(label, op).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	return err
}
