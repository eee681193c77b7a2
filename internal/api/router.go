package api

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/SrushtiQL/i4c/internal/api/handlers/health"
	reformHandler "github.com/SrushtiQL/i4c/internal/api/handlers/reformulation"
	"github.com/SrushtiQL/i4c/internal/api/middleware"
	"github.com/SrushtiQL/i4c/internal/core/cache"
	"github.com/SrushtiQL/i4c/internal/core/compliance"
	"github.com/SrushtiQL/i4c/internal/core/pocketbase"
	recipeService "github.com/SrushtiQL/i4c/internal/core/recipe"
	reform "github.com/SrushtiQL/i4c/internal/core/reformulation"
	"github.com/SrushtiQL/i4c/internal/core/scoring"
	"github.com/SrushtiQL/i4c/internal/core/substitute"
	"github.com/SrushtiQL/i4c/internal/infrastructure/config"
	"github.com/SrushtiQL/i4c/internal/pkg/common"
)

// Services 路由使用的服務
type Services struct {
	Recipes    reformHandler.RecipeRepository
	Formulator reformHandler.Formulator
	Sessions   *reform.SessionStore
	Checks     []health.Check
}

// pinger 可檢查連線的緩存後端
type pinger interface {
	Ping(ctx context.Context) error
}

// NewServices 依設定建立外部客戶端與流程服務；store 可為 nil（停用快取）
func NewServices(cfg *config.Config, store cache.Store) *Services {
	pb := pocketbase.NewClient(&cfg.PocketBase)

	orchestrator := reform.NewOrchestrator(
		compliance.NewClient(&cfg.Compliance),
		substitute.NewLookup(pb, cfg.Recipe.MaxCandidates),
		scoring.NewClient(&cfg.Scoring, store),
		cfg.Recipe.LookupConcurrency,
	)

	checks := []health.Check{{Name: "pocketbase", Fn: pb.Health}}
	if p, ok := store.(pinger); ok {
		checks = append(checks, health.Check{Name: "cache", Fn: p.Ping})
	}

	common.LogInfo("Services initialized",
		zap.String("pocketbase", cfg.PocketBase.URL),
		zap.String("compliance", cfg.Compliance.BaseURL),
		zap.String("scoring", cfg.Scoring.BaseURL),
		zap.Bool("cache_enabled", store != nil),
	)

	return &Services{
		Recipes:    recipeService.NewRepository(pb, &cfg.Recipe),
		Formulator: orchestrator,
		Sessions:   reform.NewSessionStore(cfg.SessionTTL),
		Checks:     checks,
	}
}

// SetupRouter 設置路由
func SetupRouter(cfg *config.Config, svc *Services) (*gin.Engine, error) {
	if svc == nil || svc.Recipes == nil || svc.Formulator == nil || svc.Sessions == nil {
		return nil, fmt.Errorf("router services are not initialized")
	}

	common.LogInfo("Starting router setup",
		zap.Bool("debug_mode", cfg.App.Debug),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Env),
	)

	// 設置 gin 模式
	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// 註冊基礎中間件
	router.Use(middleware.Recovery())
	router.Use(requestid.New())
	router.Use(middleware.Logger())

	// CORS 設置
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	router.Use(middleware.BodySizeLimit(cfg.Server.MaxBodyBytes))
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(cfg.RateLimit.Requests, cfg.RateLimit.Window))
	}
	router.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	// 健康檢查路由
	healthHandler := health.NewHandler(cfg, svc.Sessions, svc.Checks...)
	router.GET("/health", healthHandler.HealthCheck)
	router.GET("/ready", healthHandler.ReadinessCheck)
	router.GET("/live", healthHandler.LivenessCheck)

	h := reformHandler.NewHandler(svc.Recipes, svc.Formulator, svc.Sessions)

	// API 路由組
	api := router.Group("/api/v1")
	{
		api.GET("/countries", h.ListCountries)
		api.GET("/recipes/next-id", h.NextRecipeID)

		sessions := api.Group("/sessions")
		{
			// 只對開啟會話去重；流程指令失敗後需可立即重試
			sessions.POST("", middleware.Deduplication(cfg.DedupWindow), h.CreateSession)
			sessions.GET("/:id", h.GetSession)
			sessions.DELETE("/:id", h.DeleteSession)
			sessions.PUT("/:id/selection", h.UpdateSelection)
			sessions.POST("/:id/formulate", h.Formulate)
			sessions.POST("/:id/rows/:row/scores", h.ScoreRow)
			sessions.POST("/:id/rows/:row/approve", h.ApproveRow)
			sessions.GET("/:id/ingredients", h.Ingredients)
			sessions.POST("/:id/finalize", h.Finalize)
		}
	}

	common.LogInfo("Router setup completed successfully",
		zap.Duration("timeout", cfg.Server.RequestTimeout),
		zap.Int64("max_body_size", cfg.Server.MaxBodyBytes),
		zap.Bool("rate_limit", cfg.RateLimit.Enabled),
		zap.Duration("dedup_window", cfg.DedupWindow),
	)

	return router, nil
}
