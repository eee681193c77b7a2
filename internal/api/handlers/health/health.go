package health

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/SrushtiQL/i4c/internal/infrastructure/config"
	"github.com/SrushtiQL/i4c/internal/pkg/common"
)

// 單一依賴檢查的逾時
const checkTimeout = 3 * time.Second

// HealthResponse 健康檢查響應
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Runtime   map[string]interface{} `json:"runtime"`
	Sessions  int                    `json:"sessions"`
}

// Check 外部依賴的就緒檢查
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// SessionCounter 回報進行中的審核會話數
type SessionCounter interface {
	Len() int
}

// Handler 健康檢查處理器
type Handler struct {
	cfg      *config.Config
	sessions SessionCounter
	checks   []Check
}

// NewHandler 創建健康檢查處理器
func NewHandler(cfg *config.Config, sessions SessionCounter, checks ...Check) *Handler {
	return &Handler{cfg: cfg, sessions: sessions, checks: checks}
}

// HealthCheck 健康檢查
func (h *Handler) HealthCheck(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   h.cfg.App.Version,
		Runtime: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]interface{}{
				"alloc":       m.Alloc,
				"total_alloc": m.TotalAlloc,
				"sys":         m.Sys,
				"num_gc":      m.NumGC,
			},
		},
	}
	if h.sessions != nil {
		response.Sessions = h.sessions.Len()
	}

	common.LogDebug("Health check request",
		zap.String("client_ip", c.ClientIP()),
		zap.String("path", c.Request.URL.Path),
	)

	c.JSON(http.StatusOK, response)
}

// ReadinessCheck 逐一檢查外部依賴，任一失敗回傳 503
func (h *Handler) ReadinessCheck(c *gin.Context) {
	results := make(map[string]string, len(h.checks))
	ready := true
	for _, check := range h.checks {
		ctx, cancel := context.WithTimeout(c.Request.Context(), checkTimeout)
		err := check.Fn(ctx)
		cancel()

		if err != nil {
			ready = false
			results[check.Name] = err.Error()
			common.LogWarn("依賴未就緒", zap.String("check", check.Name), zap.Error(err))
			continue
		}
		results[check.Name] = "ok"
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"checks": results,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"checks": results,
	})
}

// LivenessCheck 存活檢查
func (h *Handler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}
