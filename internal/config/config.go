package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port          int              `json:"port"`
	JWTSecret     string           `json:"jwt_secret"`
	CORSAllowlist []string         `json:"cors_allowlist"`
	LogConfig     logger.LogConfig `json:"log_config"`
	Database      DatabaseConfig   `json:"database"`
	AI            AIConfig         `json:"ai"`
	Budget        BudgetConfig     `json:"budget"`
	Cache         CacheConfig      `json:"cache"`
	Jobs          JobsConfig       `json:"jobs"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

type AIConfig struct {
	Provider         string      `json:"provider"`
	EmbedProvider    string      `json:"embed_provider"`
	Data             interface{} `json:"data"`
	ExtractModel     string      `json:"extract_model"`
	EmbedModel       string      `json:"embed_model"`
	EmbedDimensions  int         `json:"embed_dimensions"`
	RateLimitSeconds int         `json:"rate_limit_seconds"`
}

type BudgetConfig struct {
	DefaultMonthlyUSD  float64                    `json:"default_monthly_usd"`
	EmbedPricePer1KUSD float64                    `json:"embed_price_per_1k_usd"`
	ModelPrices        map[string]ModelPriceEntry `json:"model_prices"`
	DefaultPrice       ModelPriceEntry            `json:"default_price"`
}

type ModelPriceEntry struct {
	InputPer1KUSD  float64 `json:"input_per_1k_usd"`
	OutputPer1KUSD float64 `json:"output_per_1k_usd"`
}

type CacheConfig struct {
	LRUSize       int `json:"lru_size"`
	LRUTTLMinutes int `json:"lru_ttl_minutes"`
	RetentionDays int `json:"retention_days"`
}

type JobsConfig struct {
	BackfillSpec  string `json:"backfill_spec"`
	BackfillBatch int    `json:"backfill_batch"`
	CleanupSpec   string `json:"cleanup_spec"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt_secret is required")
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return nil, fmt.Errorf("database.dsn or database.host is required")
	}
	if cfg.AI.Provider == "" {
		return nil, fmt.Errorf("ai.provider is required")
	}
	if cfg.AI.EmbedProvider == "" {
		cfg.AI.EmbedProvider = cfg.AI.Provider
	}
	if cfg.AI.ExtractModel == "" {
		return nil, fmt.Errorf("ai.extract_model is required")
	}
	if cfg.AI.EmbedModel == "" {
		return nil, fmt.Errorf("ai.embed_model is required")
	}
	if cfg.AI.RateLimitSeconds == 0 {
		cfg.AI.RateLimitSeconds = 2
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Budget.DefaultMonthlyUSD == 0 {
		cfg.Budget.DefaultMonthlyUSD = 5
	}
	if cfg.Cache.LRUSize == 0 {
		cfg.Cache.LRUSize = 10000
	}
	if cfg.Cache.LRUTTLMinutes == 0 {
		cfg.Cache.LRUTTLMinutes = 120
	}
	if cfg.Cache.RetentionDays == 0 {
		cfg.Cache.RetentionDays = 30
	}
	if cfg.Jobs.BackfillSpec == "" {
		cfg.Jobs.BackfillSpec = "*/10 * * * *"
	}
	if cfg.Jobs.BackfillBatch == 0 {
		cfg.Jobs.BackfillBatch = 50
	}
	if cfg.Jobs.CleanupSpec == "" {
		cfg.Jobs.CleanupSpec = "30 3 * * *"
	}
	return &cfg, nil
}
