package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port          string   `mapstructure:"PORT"`
	Env           string   `mapstructure:"ENV"`
	DatabaseURL   string   `mapstructure:"DATABASE_URL"`
	DBMaxConns    int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns    int32    `mapstructure:"DB_MIN_CONNS"`
	DefaultClinic string   `mapstructure:"DEFAULT_CLINIC"`
	CORSOrigins   []string `mapstructure:"CORS_ORIGINS"`

	AuthIssuer   string `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL  string `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience string `mapstructure:"AUTH_AUDIENCE"`

	AIAPIKey      string  `mapstructure:"AI_API_KEY"`
	AIBaseURL     string  `mapstructure:"AI_BASE_URL"`
	AIModel       string  `mapstructure:"AI_MODEL"`
	AIVisionModel string  `mapstructure:"AI_VISION_MODEL"`
	AITemperature float32 `mapstructure:"AI_TEMPERATURE"`

	StageTimeoutSeconds int    `mapstructure:"STAGE_TIMEOUT_SECONDS"`
	BlobDir             string `mapstructure:"BLOB_DIR"`
	MaxUploadBytes      int64  `mapstructure:"MAX_UPLOAD_BYTES"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DEFAULT_CLINIC", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("AI_BASE_URL", "https://api.openai.com/v1")
	v.SetDefault("AI_MODEL", "gpt-4o-mini")
	v.SetDefault("AI_VISION_MODEL", "gpt-4o")
	v.SetDefault("AI_TEMPERATURE", 0.1)
	v.SetDefault("STAGE_TIMEOUT_SECONDS", 60)
	v.SetDefault("MAX_UPLOAD_BYTES", 10*1024*1024)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"DEFAULT_CLINIC", "CORS_ORIGINS",
		"AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE",
		"AI_API_KEY", "AI_BASE_URL", "AI_MODEL", "AI_VISION_MODEL", "AI_TEMPERATURE",
		"STAGE_TIMEOUT_SECONDS", "BLOB_DIR", "MAX_UPLOAD_BYTES",
	} {
		v.BindEnv(key)
	}

	// Try reading .env, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// StageTimeout is the per-stage deadline applied to every external AI call.
func (c *Config) StageTimeout() time.Duration {
	if c.StageTimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.StageTimeoutSeconds) * time.Second
}

// Validate checks the configuration is safe to serve with. Production
// requires real authentication and an AI credential; development falls back
// to permissive defaults.
func (c *Config) Validate() error {
	if c.IsProduction() {
		if c.AuthIssuer == "" {
			return fmt.Errorf("AUTH_ISSUER is required in production")
		}
		if c.AIAPIKey == "" {
			return fmt.Errorf("AI_API_KEY is required in production")
		}
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	return nil
}
