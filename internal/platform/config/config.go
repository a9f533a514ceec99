package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 15 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultEnvironment          = "local"
	defaultSessionTTL           = 2 * time.Hour
	defaultSessionSweepInterval = 5 * time.Minute
	defaultSessionMax           = 10000
	defaultDiscountPerMinute    = 10
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyInterval  = time.Hour
	defaultIdempotencyBatchSize = 500
	defaultIdempotencyCapacity  = 100000
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment string
	Server      ServerConfig
	Catalog     CatalogConfig
	Sessions    SessionConfig
	RateLimits  RateLimitConfig
	Features    FeatureFlags
	Idempotency IdempotencyConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// CatalogConfig points at the product catalog source.
type CatalogConfig struct {
	// File is an optional YAML override. Empty means the embedded catalog.
	File string
	// SiteBusy overrides the catalog's site status when set.
	SiteBusy *bool
}

// SessionConfig bounds the in-memory order session registry.
type SessionConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
	MaxSessions   int
}

// RateLimitConfig controls request throttling.
type RateLimitConfig struct {
	DiscountAttemptsPerMinute int
}

// FeatureFlags toggle optional behaviour without redeploying.
type FeatureFlags struct {
	EnableDiscounts bool
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
	// Capacity bounds live records held in memory.
	Capacity int
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	lookup       func(string) (string, bool)
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.LookupEnv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithLookupFunc consults fn after the explicit env map and before the system environment.
func WithLookupFunc(fn func(string) (string, bool)) Option {
	return func(o *loaderOptions) {
		o.lookup = fn
	}
}

// Load assembles the application configuration by combining defaults, .env overrides
// and environment variables.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	if err := ctx.Err(); err != nil {
		return Config{}, err
	}

	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	env := &envReader{lookup: func(key string) (string, bool) {
		if value, ok := options.envMap[key]; ok {
			return value, true
		}
		if options.lookup != nil {
			if value, ok := options.lookup(key); ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		value, ok := dotEnvValues[key]
		return value, ok
	}}

	cfg := Config{
		Environment: strings.ToLower(env.str("API_ENVIRONMENT", defaultEnvironment)),
		Server: ServerConfig{
			Port:         env.str("API_SERVER_PORT", defaultPort),
			ReadTimeout:  env.duration("Server.ReadTimeout", "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: env.duration("Server.WriteTimeout", "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  env.duration("Server.IdleTimeout", "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Catalog: CatalogConfig{
			File:     env.str("API_CATALOG_FILE", ""),
			SiteBusy: env.optionalBool("Catalog.SiteBusy", "API_SITE_BUSY"),
		},
		Sessions: SessionConfig{
			TTL:           env.duration("Sessions.TTL", "API_SESSION_TTL", defaultSessionTTL),
			SweepInterval: env.duration("Sessions.SweepInterval", "API_SESSION_SWEEP_INTERVAL", defaultSessionSweepInterval),
			MaxSessions:   env.integer("Sessions.MaxSessions", "API_SESSION_MAX", defaultSessionMax),
		},
		RateLimits: RateLimitConfig{
			DiscountAttemptsPerMinute: env.integer("RateLimits.DiscountAttemptsPerMinute", "API_RATELIMIT_DISCOUNT_PER_MINUTE", defaultDiscountPerMinute),
		},
		Features: FeatureFlags{
			EnableDiscounts: env.boolean("Features.EnableDiscounts", "API_FEATURE_DISCOUNTS", true),
		},
		Idempotency: IdempotencyConfig{
			Header:           env.str("API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              env.duration("Idempotency.TTL", "API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  env.duration("Idempotency.CleanupInterval", "API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: env.integer("Idempotency.CleanupBatchSize", "API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
			Capacity:         env.integer("Idempotency.Capacity", "API_IDEMPOTENCY_CAPACITY", defaultIdempotencyCapacity),
		},
	}

	if err := validateConfig(cfg, env.invalid); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config, invalid []string) error {
	fields := append([]string(nil), invalid...)
	flag := func(bad bool, field string) {
		if bad && !slices.Contains(fields, field) {
			fields = append(fields, field)
		}
	}

	flag(cfg.Server.Port == "", "Server.Port")
	flag(cfg.Sessions.TTL <= 0, "Sessions.TTL")
	flag(cfg.Sessions.SweepInterval <= 0, "Sessions.SweepInterval")
	flag(cfg.Sessions.MaxSessions <= 0, "Sessions.MaxSessions")
	flag(cfg.RateLimits.DiscountAttemptsPerMinute < 0, "RateLimits.DiscountAttemptsPerMinute")
	flag(cfg.Idempotency.Header == "", "Idempotency.Header")
	flag(cfg.Idempotency.TTL <= 0, "Idempotency.TTL")
	flag(cfg.Idempotency.CleanupInterval <= 0, "Idempotency.CleanupInterval")
	flag(cfg.Idempotency.CleanupBatchSize <= 0, "Idempotency.CleanupBatchSize")
	flag(cfg.Idempotency.Capacity <= 0, "Idempotency.Capacity")

	if len(fields) > 0 {
		return &ValidationError{fields: fields}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	values, err := godotenv.Read(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	return values, nil
}

// envReader reads typed values and remembers which fields held unparseable input.
type envReader struct {
	lookup  func(string) (string, bool)
	invalid []string
}

func (e *envReader) raw(key string) (string, bool) {
	value, ok := e.lookup(key)
	value = strings.TrimSpace(value)
	return value, ok && value != ""
}

func (e *envReader) str(key, fallback string) string {
	if value, ok := e.raw(key); ok {
		return value
	}
	return fallback
}

func (e *envReader) duration(field, key string, fallback time.Duration) time.Duration {
	value, ok := e.raw(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		e.invalid = append(e.invalid, field)
		return fallback
	}
	return d
}

func (e *envReader) integer(field, key string, fallback int) int {
	value, ok := e.raw(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		e.invalid = append(e.invalid, field)
		return fallback
	}
	return n
}

func (e *envReader) boolean(field, key string, fallback bool) bool {
	if b := e.optionalBool(field, key); b != nil {
		return *b
	}
	return fallback
}

// optionalBool returns nil when key is unset or unparseable.
func (e *envReader) optionalBool(field, key string) *bool {
	value, ok := e.raw(key)
	if !ok {
		return nil
	}
	var parsed bool
	switch strings.ToLower(value) {
	case "true", "1", "yes", "on":
		parsed = true
	case "false", "0", "no", "off":
		parsed = false
	default:
		e.invalid = append(e.invalid, field)
		return nil
	}
	return &parsed
}
