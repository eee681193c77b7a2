package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 應用配置
type Config struct {
	App         AppConfig        `mapstructure:"app"`
	Server      ServerConfig     `mapstructure:"server"`
	PocketBase  PocketBaseConfig `mapstructure:"pocketbase"`
	Compliance  ComplianceConfig `mapstructure:"compliance"`
	Scoring     ScoringConfig    `mapstructure:"scoring"`
	Recipe      RecipeConfig     `mapstructure:"recipe"`
	Cache       CacheConfig      `mapstructure:"cache"`
	RateLimit   RateLimitConfig  `mapstructure:"rate_limit"`
	DedupWindow time.Duration    `mapstructure:"dedup_window"`
	SessionTTL  time.Duration    `mapstructure:"session_ttl"`
	LogLevel    string           `mapstructure:"log_level"`
}

// AppConfig 應用程式設定
type AppConfig struct {
	Env     string `mapstructure:"env"`
	Debug   bool   `mapstructure:"debug"`
	Version string `mapstructure:"version"`
	Name    string `mapstructure:"name"`
}

// ServerConfig 服務器配置
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
}

// PocketBaseConfig 記錄儲存（PocketBase）設定
type PocketBaseConfig struct {
	URL           string        `mapstructure:"url"`
	AdminEmail    string        `mapstructure:"admin_email"`
	AdminPassword string        `mapstructure:"admin_password"`
	PerPage       int           `mapstructure:"per_page"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// ComplianceConfig 法規驗證服務設定
type ComplianceConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ScoringConfig 評分服務設定
type ScoringConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
}

// RecipeConfig 配方編號與替代食材設定
type RecipeConfig struct {
	IDPrefix          string `mapstructure:"id_prefix"`
	IDWidth           int    `mapstructure:"id_width"`
	MaxCandidates     int    `mapstructure:"max_candidates"`
	LookupConcurrency int    `mapstructure:"lookup_concurrency"` // 替代食材並行查詢數
}

// CacheConfig 緩存配置
type CacheConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Backend         string        `mapstructure:"backend"` // memory | redis
	RedisAddr       string        `mapstructure:"redis_addr"`
	MaxSize         int           `mapstructure:"max_size"`
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// RateLimitConfig 速率限制配置
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// LoadConfig 載入設定
func LoadConfig() (*Config, error) {
	// 加載 .env 文件（不存在時沿用環境變數）
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()

	// 設定預設值
	setDefaults(v)

	// 設定環境變數前綴
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 綁定環境變量
	_ = v.BindEnv("pocketbase.url", "POCKETBASE_URL")
	_ = v.BindEnv("pocketbase.admin_email", "POCKETBASE_ADMIN_EMAIL")
	_ = v.BindEnv("pocketbase.admin_password", "POCKETBASE_ADMIN_PASSWORD")
	_ = v.BindEnv("compliance.base_url", "COMPLIANCE_API_URL")
	_ = v.BindEnv("scoring.base_url", "SCORING_API_URL")
	_ = v.BindEnv("cache.enabled", "CACHE_ENABLED")
	_ = v.BindEnv("cache.backend", "CACHE_BACKEND")
	_ = v.BindEnv("cache.redis_addr", "REDIS_ADDR")
	_ = v.BindEnv("rate_limit.enabled", "RATE_LIMIT_ENABLED")
	_ = v.BindEnv("rate_limit.requests", "RATE_LIMIT_REQUESTS")
	_ = v.BindEnv("rate_limit.window", "RATE_LIMIT_WINDOW")
	_ = v.BindEnv("dedup_window", "DEDUP_WINDOW")
	_ = v.BindEnv("session_ttl", "SESSION_TTL")
	_ = v.BindEnv("log_level", "LOG_LEVEL")

	// 設定設定檔名稱和路徑
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")

	// 讀取設定檔
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// logger 尚未初始化，改用 fmt.Println
	fmt.Println("Loading configuration", "pocketbase_url:", v.GetString("pocketbase.url"), "admin_password:", maskSecret(v.GetString("pocketbase.admin_password")))

	// 解析設定
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 驗證必要設定
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// maskSecret 遮罩密碼，只顯示前後各 2 個字符
func maskSecret(secret string) string {
	if len(secret) <= 6 {
		return "****"
	}
	return secret[:2] + "..." + secret[len(secret)-2:]
}

// setDefaults 設定預設值
func setDefaults(v *viper.Viper) {
	// 應用程式設定
	v.SetDefault("app.env", "development")
	v.SetDefault("app.debug", true)
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.name", "recipe-reformulator")
	v.SetDefault("log_level", "info")

	// 伺服器設定
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "90s")
	v.SetDefault("server.max_body_bytes", 1<<20) // 1MB

	// PocketBase 設定
	v.SetDefault("pocketbase.url", "http://localhost:8090")
	v.SetDefault("pocketbase.per_page", 500) // PocketBase 單頁上限
	v.SetDefault("pocketbase.timeout", "30s")

	// 外部服務設定
	v.SetDefault("compliance.base_url", "http://localhost:5000")
	v.SetDefault("compliance.timeout", "60s")
	v.SetDefault("scoring.base_url", "http://localhost:5001")
	v.SetDefault("scoring.timeout", "30s")
	v.SetDefault("scoring.max_concurrency", 8)

	// 配方設定
	v.SetDefault("recipe.id_prefix", "REC")
	v.SetDefault("recipe.id_width", 3)
	v.SetDefault("recipe.max_candidates", 3)
	v.SetDefault("recipe.lookup_concurrency", 8)

	// 快取設定
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.max_size", 1000)
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.cleanup_interval", "10m")

	// 限流設定
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 100)
	v.SetDefault("rate_limit.window", "1m")

	v.SetDefault("dedup_window", "1s")
	v.SetDefault("session_ttl", "2h")
}

// validateConfig 驗證設定
func validateConfig(config *Config) error {
	// 驗證伺服器設定
	if config.Server.Port == 0 {
		return fmt.Errorf("server port is required")
	}

	// 驗證外部服務
	if config.PocketBase.URL == "" {
		return fmt.Errorf("pocketbase url is required")
	}
	if config.PocketBase.PerPage <= 0 {
		return fmt.Errorf("invalid pocketbase per page")
	}
	if config.Compliance.BaseURL == "" {
		return fmt.Errorf("compliance base url is required")
	}
	if config.Scoring.BaseURL == "" {
		return fmt.Errorf("scoring base url is required")
	}
	if config.Scoring.MaxConcurrency <= 0 {
		return fmt.Errorf("invalid scoring max concurrency")
	}

	// 驗證配方設定
	if config.Recipe.IDPrefix == "" {
		return fmt.Errorf("recipe id prefix is required")
	}
	if config.Recipe.IDWidth <= 0 {
		return fmt.Errorf("invalid recipe id width")
	}
	if config.Recipe.MaxCandidates <= 0 {
		return fmt.Errorf("invalid max candidates")
	}
	if config.Recipe.LookupConcurrency <= 0 {
		return fmt.Errorf("invalid lookup concurrency")
	}

	// 驗證快取設定
	if config.Cache.Enabled {
		if config.Cache.Backend != "memory" && config.Cache.Backend != "redis" {
			return fmt.Errorf("invalid cache backend: %s", config.Cache.Backend)
		}
		if config.Cache.MaxSize <= 0 {
			return fmt.Errorf("invalid cache max size")
		}
		if config.Cache.TTL <= 0 {
			return fmt.Errorf("invalid cache ttl")
		}
		if config.Cache.CleanupInterval <= 0 {
			return fmt.Errorf("invalid cache cleanup interval")
		}
	}

	if config.RateLimit.Enabled && (config.RateLimit.Requests <= 0 || config.RateLimit.Window <= 0) {
		return fmt.Errorf("invalid rate limit")
	}

	return nil
}
