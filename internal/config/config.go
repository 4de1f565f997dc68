// Package config loads storefront configuration from defaults, an optional
// YAML file, an optional .env file and the process environment, in that order
// of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendSupabase = "supabase"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// FileEnv names the environment variable holding an optional YAML config path.
const FileEnv = "STOREFRONT_CONFIG"

// Config is the complete process configuration.
type Config struct {
	SupabaseURL string `yaml:"supabase_url" env:"SUPABASE_URL"`
	SupabaseKey string `yaml:"supabase_key" env:"SUPABASE_KEY"`
	SecretKey   string `yaml:"secret_key" env:"SECRET_KEY"`

	StoreBackend string        `yaml:"store_backend" env:"STORE_BACKEND"`
	DatabaseURL  string        `yaml:"database_url" env:"DATABASE_URL"`
	StoreTimeout time.Duration `yaml:"store_timeout" env:"STORE_TIMEOUT"`

	HTTPAddr        string        `yaml:"http_addr" env:"HTTP_ADDR"`
	TokenTTL        time.Duration `yaml:"token_ttl" env:"TOKEN_TTL"`
	RequestTimeout  time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	// CORSAllowedOrigins is a comma separated list; "*" allows any origin.
	CORSAllowedOrigins string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`

	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT"`

	// RateLimitRPS of 0 disables rate limiting.
	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`

	EnableDebugRoutes     bool `yaml:"enable_debug_routes" env:"ENABLE_DEBUG_ROUTES"`
	EnforcePrincipalTypes bool `yaml:"enforce_principal_types" env:"ENFORCE_PRINCIPAL_TYPES"`
	TrustProxyHeaders     bool `yaml:"trust_proxy_headers" env:"TRUST_PROXY_HEADERS"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		StoreBackend:       BackendSupabase,
		StoreTimeout:       30 * time.Second,
		HTTPAddr:           ":8000",
		TokenTTL:           30 * time.Minute,
		RequestTimeout:     30 * time.Second,
		ShutdownTimeout:    15 * time.Second,
		CORSAllowedOrigins: "http://localhost:3000",
		LogLevel:           "info",
		LogFormat:          "json",
	}
}

// Load builds the configuration. A missing .env file is not an error; a
// missing file named by STOREFRONT_CONFIG is.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv(FileEnv); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate reports every missing or invalid value at once.
func (c Config) Validate() error {
	var problems []string
	if c.SecretKey == "" {
		problems = append(problems, "SECRET_KEY is required")
	}
	switch c.StoreBackend {
	case BackendSupabase:
		if c.SupabaseURL == "" {
			problems = append(problems, "SUPABASE_URL is required")
		}
		if c.SupabaseKey == "" {
			problems = append(problems, "SUPABASE_KEY is required")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			problems = append(problems, "DATABASE_URL is required for the postgres backend")
		}
	case BackendMemory:
	default:
		problems = append(problems, fmt.Sprintf("STORE_BACKEND %q is not one of supabase, postgres, memory", c.StoreBackend))
	}
	if c.TokenTTL <= 0 {
		problems = append(problems, "TOKEN_TTL must be positive")
	}
	if c.RateLimitRPS < 0 {
		problems = append(problems, "RATE_LIMIT_RPS must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// AllowedOrigins splits CORSAllowedOrigins.
func (c Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
