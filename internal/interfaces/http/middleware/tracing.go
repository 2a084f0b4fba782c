package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracing starts a server span per request
func Tracing(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName)
}

// SpanAttributes tags the request span with correlation ids and marks 5xx
// responses as errors. Place it after JWTAuth so tenant and user are known.
func SpanAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			if id := GetRequestID(c); id != "" {
				span.SetAttributes(attribute.String("request_id", id))
			}
			if id := GetJWTTenantID(c); id != "" {
				span.SetAttributes(attribute.String("tenant_id", id))
			}
			if id := GetJWTUserID(c); id != "" {
				span.SetAttributes(attribute.String("user_id", id))
			}
			if key := c.GetHeader(IdempotencyKeyHeader); key != "" {
				span.SetAttributes(attribute.String("idempotency_key", key))
			}
		}
		c.Next()

		if span.IsRecording() && c.Writer.Status() >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(c.Writer.Status()))
		}
	}
}
