package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SrushtiQL/i4c/internal/infrastructure/config"
)

type fixedCounter int

func (f fixedCounter) Len() int { return int(f) }

func serve(h gin.HandlerFunc) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", h)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w
}

func TestHealthCheck(t *testing.T) {
	h := NewHandler(&config.Config{App: config.AppConfig{Version: "1.2.3"}}, fixedCounter(4))

	w := serve(h.HealthCheck)
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, 4, resp.Sessions)
}

func TestReadinessCheck(t *testing.T) {
	ok := Check{Name: "cache", Fn: func(context.Context) error { return nil }}
	down := Check{Name: "pocketbase", Fn: func(context.Context) error { return errors.New("connection refused") }}

	w := serve(NewHandler(&config.Config{}, nil, ok).ReadinessCheck)
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(NewHandler(&config.Config{}, nil, ok, down).ReadinessCheck)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestLivenessCheck(t *testing.T) {
	w := serve(NewHandler(&config.Config{}, nil).LivenessCheck)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alive")
}
