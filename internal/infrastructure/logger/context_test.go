package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	l := zap.NewExample()
	ctx := WithContext(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithTenantID(ctx, "tenant-1")
	ctx = WithUserID(ctx, "user-1")
	ctx = WithIdempotencyKey(ctx, "abc123")

	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "tenant-1", GetTenantID(ctx))
	assert.Equal(t, "user-1", GetUserID(ctx))
	assert.Equal(t, "abc123", GetIdempotencyKey(ctx))
	assert.Empty(t, GetRequestID(context.Background()))
}

func TestContextLogger_EnrichesEntries(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	ctx := WithContext(context.Background(), zap.New(core))
	ctx = WithTenantID(ctx, "tenant-1")
	ctx = WithIdempotencyKey(ctx, "abc123")

	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{1, 2, 3},
		SpanID:  trace.SpanID{4, 5, 6},
	})
	ctx = trace.ContextWithSpanContext(ctx, spanCtx)

	L(ctx).With(zap.String("component", "guard")).Info("replayed")

	entries := recorded.All()
	assert.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "tenant-1", fields["tenant_id"])
	assert.Equal(t, "abc123", fields["idempotency_key"])
	assert.Equal(t, "guard", fields["component"])
	assert.Equal(t, spanCtx.TraceID().String(), fields["trace_id"])
	assert.NotContains(t, fields, "user_id")
}

func TestContextLogger_NoLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		L(context.Background()).Error("dropped")
		_ = L(context.Background()).Zap()
	})
}
