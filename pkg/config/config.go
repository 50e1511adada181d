package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration loaded from environment variables or config files.
type Config struct {
	AppEnv          string        `mapstructure:"APP_ENV" validate:"required,oneof=development staging production test"`
	HTTPAddr        string        `mapstructure:"HTTP_ADDR" validate:"required,hostname_port"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT" validate:"required"`

	LogLevel  string `mapstructure:"LOG_LEVEL" validate:"required,oneof=debug info warn error dpanic panic fatal"`
	LogFormat string `mapstructure:"LOG_FORMAT" validate:"required,oneof=json console"`

	DBDriver    string `mapstructure:"DB_DRIVER" validate:"required,oneof=postgres sqlite"`
	DatabaseURL string `mapstructure:"DATABASE_URL" validate:"required"`

	// JWTSecret signs session tokens. Never log it.
	JWTSecret  string        `mapstructure:"JWT_SECRET" validate:"required_if=AppEnv production,omitempty,min=16"`
	TokenTTL   time.Duration `mapstructure:"TOKEN_TTL" validate:"required"`
	BcryptCost int           `mapstructure:"BCRYPT_COST" validate:"gte=4,lte=31"`

	CatalogPageSize int `mapstructure:"CATALOG_PAGE_SIZE" validate:"gte=1,lte=100"`
	SuggestionLimit int `mapstructure:"SUGGESTION_LIMIT" validate:"gte=1,lte=100"`

	RedisAddr          string        `mapstructure:"REDIS_ADDR" validate:"omitempty,hostname_port"`
	RedisPassword      string        `mapstructure:"REDIS_PASSWORD"`
	SuggestionCacheTTL time.Duration `mapstructure:"SUGGESTION_CACHE_TTL"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS" validate:"gt=0"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST" validate:"gte=1"`

	GoMaxProcs int `mapstructure:"GOMAXPROCS" validate:"gte=0,lte=4096"`
}

var (
	cfg      *Config
	validate = validator.New(validator.WithRequiredStructEnabled())
)

var keys = []string{
	"APP_ENV",
	"HTTP_ADDR",
	"SHUTDOWN_TIMEOUT",
	"LOG_LEVEL",
	"LOG_FORMAT",
	"DB_DRIVER",
	"DATABASE_URL",
	"JWT_SECRET",
	"TOKEN_TTL",
	"BCRYPT_COST",
	"CATALOG_PAGE_SIZE",
	"SUGGESTION_LIMIT",
	"REDIS_ADDR",
	"REDIS_PASSWORD",
	"SUGGESTION_CACHE_TTL",
	"RATE_LIMIT_RPS",
	"RATE_LIMIT_BURST",
	"GOMAXPROCS",
}

var durationKeys = []string{"SHUTDOWN_TIMEOUT", "TOKEN_TTL", "SUGGESTION_CACHE_TTL"}

// Load initializes configuration using Viper. It loads from .env if present,
// applies defaults, binds env vars, and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_ADDR", "0.0.0.0:1337")
	v.SetDefault("SHUTDOWN_TIMEOUT", "15s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("TOKEN_TTL", "24h")
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("CATALOG_PAGE_SIZE", 5)
	v.SetDefault("SUGGESTION_LIMIT", 5)
	v.SetDefault("SUGGESTION_CACHE_TTL", "5m")
	v.SetDefault("RATE_LIMIT_RPS", 10)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("GOMAXPROCS", 0)

	_ = v.ReadInConfig()

	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}

	for _, key := range durationKeys {
		s := v.GetString(key)
		if s == "" {
			continue
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		switch key {
		case "SHUTDOWN_TIMEOUT":
			c.ShutdownTimeout = d
		case "TOKEN_TTL":
			c.TokenTTL = d
		case "SUGGESTION_CACHE_TTL":
			c.SuggestionCacheTTL = d
		}
	}

	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if c.GoMaxProcs > 0 {
		runtime.GOMAXPROCS(c.GoMaxProcs)
	}

	cfg = &c
	return cfg, nil
}

// MustLoad loads configuration or exits the process on failure.
func MustLoad() *Config {
	c, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	return c
}

// Get returns the loaded configuration. Panics if not loaded.
func Get() *Config {
	if cfg == nil {
		panic("config not loaded: call config.Load or config.MustLoad first")
	}
	return cfg
}

// IsDevelopment reports whether the app runs outside staging and production.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development" || c.AppEnv == "test"
}
