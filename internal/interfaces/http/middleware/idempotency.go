package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	govapp "github.com/costgov/backend/internal/application/governance"
	"github.com/costgov/backend/internal/domain/shared"
	"github.com/costgov/backend/internal/infrastructure/logger"
	"github.com/costgov/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// IdempotencyKeyHeader carries the client chosen idempotency key
	IdempotencyKeyHeader = "Idempotency-Key"
	// IdempotentReplayHeader marks a replayed response
	IdempotentReplayHeader = "Idempotent-Replayed"
	// MaxIdempotencyKeyLength bounds the key size
	MaxIdempotencyKeyLength = 255
)

// Idempotency makes keyed mutations execute at most once per tenant and key.
// Requests without the header pass through. Must run after JWTAuth.
func Idempotency(guard *govapp.IdempotencyGuard) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
		if key == "" {
			c.Next()
			return
		}
		if len(key) > MaxIdempotencyKeyLength {
			AbortWithError(c, shared.NewDomainError(shared.CodeInvalidInput, "Idempotency-Key must be at most 255 characters"))
			return
		}
		tenantID, err := uuid.Parse(GetJWTTenantID(c))
		if err != nil {
			abortUnauthorized(c, dto.ErrCodeUnauthorized, "Authentication required")
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, dto.NewErrorResponse(
					dto.ErrCodeRequestTooLarge, "Request body exceeds maximum allowed size", GetRequestID(c)))
				return
			}
			AbortWithError(c, shared.NewDomainError(shared.CodeInvalidInput, "Request body could not be read"))
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		ctx := logger.WithIdempotencyKey(c.Request.Context(), key)
		c.Request = c.Request.WithContext(ctx)
		fingerprint := shared.RequestFingerprint(c.Request.Method, c.Request.URL.Path, body)

		result, err := guard.Begin(ctx, tenantID, key, fingerprint)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		switch result.Outcome {
		case govapp.OutcomeConflict:
			AbortWithError(c, shared.ErrIdempotencyConflict)
			return
		case govapp.OutcomeReplay:
			c.Header(IdempotentReplayHeader, "true")
			c.Data(result.Response.StatusCode, result.Response.ContentType, result.Response.Body)
			c.Abort()
			return
		}

		recorder := &responseRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder
		// settle outlives client disconnects so the key is never left dangling
		settleCtx := context.WithoutCancel(ctx)
		settled := false
		defer func() {
			if settled {
				return
			}
			if err := guard.Abort(settleCtx, tenantID, key, fingerprint); err != nil {
				logger.L(settleCtx).Warn("Failed to release idempotency key", zap.Error(err))
			}
		}()

		c.Next()

		status := recorder.Status()
		if status < http.StatusOK || status >= http.StatusMultipleChoices {
			return
		}
		settled = true
		snapshot := shared.ResponseSnapshot{
			StatusCode:  status,
			ContentType: recorder.Header().Get("Content-Type"),
			Body:        bytes.Clone(recorder.body.Bytes()),
		}
		if err := guard.Commit(settleCtx, tenantID, key, fingerprint, snapshot); err != nil {
			// the mutation already happened, so the key stays held until its lease expires
			logger.L(settleCtx).Error("Failed to commit idempotent response", zap.Error(err))
		}
	}
}

// responseRecorder tees the response body into a buffer
type responseRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *responseRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
