package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store and blob backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMinIO    = "minio"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	StoreBackend string `mapstructure:"STORE_BACKEND"`
	DatabaseURL  string `mapstructure:"DATABASE_URL"`
	DBMaxConns   int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns   int32  `mapstructure:"DB_MIN_CONNS"`
	RedisURL     string `mapstructure:"REDIS_URL"`

	BlobBackend    string `mapstructure:"BLOB_BACKEND"`
	MinIOEndpoint  string `mapstructure:"MINIO_ENDPOINT"`
	MinIOAccessKey string `mapstructure:"MINIO_ACCESS_KEY"`
	MinIOSecretKey string `mapstructure:"MINIO_SECRET_KEY"`
	MinIOBucket    string `mapstructure:"MINIO_BUCKET"`
	MinIOUseSSL    bool   `mapstructure:"MINIO_USE_SSL"`

	AIProjectID string        `mapstructure:"AI_PROJECT_ID"`
	AIRegion    string        `mapstructure:"AI_REGION"`
	AIModel     string        `mapstructure:"AI_MODEL"`
	AITimeout   time.Duration `mapstructure:"AI_TIMEOUT"`

	YearPivot        int           `mapstructure:"YEAR_PIVOT"`
	BatchConcurrency int           `mapstructure:"BATCH_CONCURRENCY"`
	MaxUploadSize    string        `mapstructure:"MAX_UPLOAD_SIZE"`
	MaxBodySize      string        `mapstructure:"MAX_BODY_SIZE"`
	RequestTimeout   time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	AuthIssuer     string   `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string   `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL    string   `mapstructure:"AUTH_JWKS_URL"`
	AuthSigningKey string   `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`
}

var defaults = map[string]interface{}{
	"PORT":              "8000",
	"ENV":               "development",
	"LOG_LEVEL":         "info",
	"STORE_BACKEND":     BackendMemory,
	"DB_MAX_CONNS":      20,
	"DB_MIN_CONNS":      5,
	"BLOB_BACKEND":      BackendMemory,
	"MINIO_BUCKET":      "medrec-sources",
	"AI_REGION":         "us-central1",
	"AI_MODEL":          "gemini-1.5-pro",
	"AI_TIMEOUT":        "60s",
	"YEAR_PIVOT":        50,
	"BATCH_CONCURRENCY": 3,
	"MAX_UPLOAD_SIZE":   "20M",
	"MAX_BODY_SIZE":     "1M",
	"REQUEST_TIMEOUT":   "30s",
	"CORS_ORIGINS":      "http://localhost:3000",
	"RATE_LIMIT_RPS":    100,
	"RATE_LIMIT_BURST":  200,
}

// keys without a default still need binding so Unmarshal sees them.
var unsetKeys = []string{
	"DATABASE_URL", "REDIS_URL",
	"MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY", "MINIO_USE_SSL",
	"AI_PROJECT_ID",
	"AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL", "AUTH_SIGNING_KEY",
}

// Load reads .env (if present) and the environment. It does not validate;
// call Validate before serving.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	for k, val := range defaults {
		v.SetDefault(k, val)
		v.BindEnv(k)
	}
	for _, k := range unsetKeys {
		v.BindEnv(k)
	}

	// .env is optional.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins)
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	cfg.BlobBackend = strings.ToLower(strings.TrimSpace(cfg.BlobBackend))
	return cfg, nil
}

// splitList flattens comma-separated entries; env values arrive as one string.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// AIEnabled reports whether the primary AI extractor is configured.
func (c *Config) AIEnabled() bool {
	return c.AIProjectID != ""
}

// Validate checks backend-specific requirements and, outside development,
// that real token validation is configured.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND is %q", BackendPostgres)
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when STORE_BACKEND is %q", BackendRedis)
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be memory, postgres or redis, got %q", c.StoreBackend)
	}

	switch c.BlobBackend {
	case BackendMemory:
	case BackendMinIO:
		if c.MinIOEndpoint == "" || c.MinIOAccessKey == "" || c.MinIOSecretKey == "" {
			return fmt.Errorf("MINIO_ENDPOINT, MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when BLOB_BACKEND is %q", BackendMinIO)
		}
	default:
		return fmt.Errorf("BLOB_BACKEND must be memory or minio, got %q", c.BlobBackend)
	}

	if c.YearPivot < 1 || c.YearPivot > 99 {
		return fmt.Errorf("YEAR_PIVOT must be between 1 and 99, got %d", c.YearPivot)
	}
	if c.BatchConcurrency < 1 {
		return fmt.Errorf("BATCH_CONCURRENCY must be at least 1, got %d", c.BatchConcurrency)
	}
	if c.AIEnabled() && c.AITimeout <= 0 {
		return fmt.Errorf("AI_TIMEOUT must be positive, got %s", c.AITimeout)
	}

	if !c.IsDev() && c.AuthSigningKey == "" && c.AuthIssuer == "" && c.AuthJWKSURL == "" {
		return fmt.Errorf(
			"one of AUTH_ISSUER, AUTH_JWKS_URL or AUTH_SIGNING_KEY must be set outside development (ENV=%q)", c.Env)
	}
	return nil
}
