package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/SrushtiQL/i4c/internal/api"
	"github.com/SrushtiQL/i4c/internal/core/cache"
	"github.com/SrushtiQL/i4c/internal/infrastructure/config"
	"github.com/SrushtiQL/i4c/internal/pkg/common"
)

// 過期會話清理間隔
const sessionSweepInterval = time.Minute

func main() {
	// 載入設定（含 .env）
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化 logger（需在載入 config 後）
	if err := common.InitLogger(cfg.LogLevel, cfg.App.Name); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer common.Sync()

	common.LogInfo("載入設定",
		zap.String("pocketbase_url", cfg.PocketBase.URL),
		zap.String("compliance_url", cfg.Compliance.BaseURL),
		zap.String("scoring_url", cfg.Scoring.BaseURL),
		zap.String("cache_backend", cfg.Cache.Backend),
	)

	// 初始化快取；停用時為 nil
	store, err := cache.NewStore(&cfg.Cache)
	if err != nil {
		common.LogFatal("Failed to initialize cache", zap.Error(err))
	}
	if store != nil {
		defer store.Close()
	}

	services := api.NewServices(cfg, store)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go services.Sessions.Run(ctx, sessionSweepInterval)

	// 設置路由
	router, err := api.SetupRouter(cfg, services)
	if err != nil {
		common.LogError("Failed to setup router", zap.Error(err))
		os.Exit(1)
	}

	// 設置 HTTP 服務器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// 啟動服務器
	go func() {
		common.LogInfo("啟動應用",
			zap.String("version", cfg.App.Version),
			zap.String("env", cfg.App.Env),
			zap.Int("port", cfg.Server.Port),
			zap.Bool("debug", cfg.App.Debug),
		)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			common.LogFatal("Failed to start server", zap.Error(err))
		}
	}()

	// 等待中斷信號
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	common.LogInfo("Shutting down server...")
	stop()

	// 設置關閉超時
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		common.LogError("Server forced to shutdown", zap.Error(err))
		return
	}

	common.LogInfo("Server exited")
}
