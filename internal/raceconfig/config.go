// Package raceconfig loads environment-sourced configuration, adapted
// from the teacher's internal/app/config.go: the same getEnv* helper
// shapes and validate-at-load-time discipline, recognizing the keys
// named in spec.md §6 instead of tokenhub's gateway knobs.
package raceconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Config holds every environment-sourced knob the race orchestrator and
// its ambient stack read. CLI flags (see cmd/llmrace) take precedence
// over these when both are present; Config supplies the defaults.
type Config struct {
	LogLevel string

	BanditFeatures string // "length" | "embedding"
	EmbeddingModel string
	EmbeddingDim   int

	RedisURL          string
	RouterMetricsPath string
	RouterStateKey    string
	PreviewCacheTTLS  int
	SpeculativeTopK   int

	ModelPriceUSDPerToken map[string]float64

	OTelEnabled     bool
	OTelEndpoint    string
	OTelServiceName string

	MetricsAddr string
}

// Load reads Config from the environment, matching each default named in
// spec.md §6.
func Load() (Config, error) {
	cfg := Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),

		BanditFeatures: getEnv("BANDIT_FEATURES", "length"),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDim:   getEnvInt("EMBEDDING_DIM", 24),

		RedisURL:          getEnv("REDIS_URL", ""),
		RouterMetricsPath: getEnv("ROUTER_METRICS_PATH", ".router_metrics.json"),
		RouterStateKey:    getEnv("ROUTER_STATE_KEY", "router_state"),
		PreviewCacheTTLS:  getEnvInt("PREVIEW_CACHE_TTL", 600),
		SpeculativeTopK:   getEnvInt("SPECULATIVE_TOP_K", 2),

		ModelPriceUSDPerToken: getEnvPriceTable("MODEL_PRICE_USD_PER_TOKEN_JSON"),

		OTelEnabled:     getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint:    getEnv("OTEL_ENDPOINT", "localhost:4318"),
		OTelServiceName: getEnv("OTEL_SERVICE_NAME", "llmrace"),

		MetricsAddr: getEnv("METRICS_ADDR", ""),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks config values for obviously invalid settings.
func (c Config) Validate() error {
	if c.BanditFeatures != "length" && c.BanditFeatures != "embedding" {
		return fmt.Errorf("BANDIT_FEATURES must be 'length' or 'embedding', got %q", c.BanditFeatures)
	}
	if c.EmbeddingDim < 8 {
		return fmt.Errorf("EMBEDDING_DIM must be >= 8, got %d", c.EmbeddingDim)
	}
	if c.PreviewCacheTTLS <= 0 {
		return fmt.Errorf("PREVIEW_CACHE_TTL must be > 0, got %d", c.PreviewCacheTTLS)
	}
	if c.SpeculativeTopK < 2 {
		return fmt.Errorf("SPECULATIVE_TOP_K must be >= 2, got %d", c.SpeculativeTopK)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvPriceTable(key string) map[string]float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var table map[string]float64
	if err := json.Unmarshal([]byte(raw), &table); err != nil {
		return nil
	}
	return table
}
