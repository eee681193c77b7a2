package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 90*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 500, cfg.PocketBase.PerPage)
	assert.Equal(t, "REC", cfg.Recipe.IDPrefix)
	assert.Equal(t, 3, cfg.Recipe.IDWidth)
	assert.Equal(t, 3, cfg.Recipe.MaxCandidates)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.Equal(t, time.Second, cfg.DedupWindow)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("POCKETBASE_URL", "http://pb.internal:8090")
	t.Setenv("COMPLIANCE_API_URL", "http://compliance.internal")
	t.Setenv("APP_SERVER_PORT", "9090")
	t.Setenv("APP_RECIPE_ID_PREFIX", "RCP")
	t.Setenv("SESSION_TTL", "30m")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "http://pb.internal:8090", cfg.PocketBase.URL)
	assert.Equal(t, "http://compliance.internal", cfg.Compliance.BaseURL)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "RCP", cfg.Recipe.IDPrefix)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
}

func TestLoadConfigRejectsInvalidBackend(t *testing.T) {
	t.Setenv("CACHE_BACKEND", "memcached")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cache backend")
}

func validConfig() *Config {
	return &Config{
		Server:     ServerConfig{Port: 8080},
		PocketBase: PocketBaseConfig{URL: "http://localhost:8090", PerPage: 500},
		Compliance: ComplianceConfig{BaseURL: "http://localhost:5000"},
		Scoring:    ScoringConfig{BaseURL: "http://localhost:5001", MaxConcurrency: 4},
		Recipe:     RecipeConfig{IDPrefix: "REC", IDWidth: 3, MaxCandidates: 3, LookupConcurrency: 4},
	}
}

func TestValidateConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing port", func(c *Config) { c.Server.Port = 0 }, "server port"},
		{"missing pocketbase", func(c *Config) { c.PocketBase.URL = "" }, "pocketbase url"},
		{"zero id width", func(c *Config) { c.Recipe.IDWidth = 0 }, "id width"},
		{"zero scoring concurrency", func(c *Config) { c.Scoring.MaxConcurrency = 0 }, "scoring max concurrency"},
		{"cache disabled skips checks", func(c *Config) { c.Cache = CacheConfig{Enabled: false, Backend: "bogus"} }, ""},
		{"rate limit without window", func(c *Config) { c.RateLimit = RateLimitConfig{Enabled: true, Requests: 10} }, "rate limit"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := validateConfig(cfg)
			if tc.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "****", maskSecret("short"))
	assert.Equal(t, "su...23", maskSecret("supersecret123"))
}
