package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSystemHandler_GetSystemInfo(t *testing.T) {
	h := NewSystemHandler("costgov", "1.2.3", nil)
	r := newTestRouter(nil)
	r.GET("/system/info", h.GetSystemInfo)

	w := performRequest(r, http.MethodGet, "/system/info", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	data := string(decodeEnvelope(t, w).Data)
	assert.Contains(t, data, `"name":"costgov"`)
	assert.Contains(t, data, `"version":"1.2.3"`)
}

func TestSystemHandler_Health(t *testing.T) {
	healthy := map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
	}
	h := NewSystemHandler("costgov", "1.0.0", healthy)
	r := newTestRouter(nil)
	r.GET("/health", h.Health)

	w := performRequest(r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"database":"ok"`)
}

func TestSystemHandler_Health_Degraded(t *testing.T) {
	checks := map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("dial tcp: connection refused") },
	}
	h := NewSystemHandler("costgov", "1.0.0", checks)
	r := newTestRouter(nil)
	r.GET("/health", h.Health)

	w := performRequest(r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"degraded"`)
	assert.Contains(t, w.Body.String(), "connection refused")
}
