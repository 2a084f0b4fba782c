package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/costgov/backend/internal/domain/shared"
	"github.com/costgov/backend/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c)+"|"+logger.GetRequestID(c.Request.Context()))
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-123|req-123", w.Body.String())
	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", MaxRequestIDLength+1))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	generated := w.Header().Get(RequestIDHeader)
	assert.Len(t, generated, 36)
}

func TestCORSWithConfig(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowOrigins = []string{"https://app.example.com"}
	r := gin.New()
	r.Use(CORSWithConfig(cfg))
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), IdempotencyKeyHeader)
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), IdempotentReplayHeader)

	req = httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSecure(t *testing.T) {
	r := gin.New()
	r.Use(Secure())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}

func TestBodyLimit(t *testing.T) {
	r := gin.New()
	r.Use(BodyLimit(8))
	r.POST("/x", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", bytes.NewBufferString("small")))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", bytes.NewBufferString("far too large")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, w.Body.String(), "REQUEST_TOO_LARGE")
}

func TestAbortWithError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", shared.ErrNotFound, http.StatusNotFound, shared.CodeNotFound},
		{"wrapped conflict", errors.Join(errors.New("ctx"), shared.ErrIdempotencyConflict), http.StatusConflict, shared.CodeIdempotencyConflict},
		{"in progress", shared.ErrIdempotencyInProgress, http.StatusConflict, shared.CodeIdempotencyInProgress},
		{"invalid state", shared.ErrInvalidState, http.StatusUnprocessableEntity, shared.CodeInvalidState},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/x", func(c *gin.Context) { AbortWithError(c, tt.err) })

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.code)
			assert.NotContains(t, w.Body.String(), "boom")
		})
	}
}

func TestAbortWithError_RetryableFlag(t *testing.T) {
	r := gin.New()
	r.GET("/x", func(c *gin.Context) { AbortWithError(c, shared.ErrStaleState) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Contains(t, w.Body.String(), `"retryable":true`)
}
