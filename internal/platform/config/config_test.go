package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Environment != "local" {
		t.Errorf("expected local environment, got %s", cfg.Environment)
	}
	if cfg.Catalog.File != "" {
		t.Errorf("expected embedded catalog by default, got %q", cfg.Catalog.File)
	}
	if cfg.Catalog.SiteBusy != nil {
		t.Errorf("expected site busy override to be unset, got %v", *cfg.Catalog.SiteBusy)
	}
	if cfg.Sessions.TTL != defaultSessionTTL {
		t.Errorf("unexpected session ttl: %s", cfg.Sessions.TTL)
	}
	if cfg.Sessions.MaxSessions != defaultSessionMax {
		t.Errorf("unexpected max sessions: %d", cfg.Sessions.MaxSessions)
	}
	if cfg.RateLimits.DiscountAttemptsPerMinute != defaultDiscountPerMinute {
		t.Errorf("unexpected discount rate limit: %d", cfg.RateLimits.DiscountAttemptsPerMinute)
	}
	if !cfg.Features.EnableDiscounts {
		t.Error("expected discounts enabled by default")
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.CleanupBatchSize != defaultIdempotencyBatchSize {
		t.Errorf("unexpected default cleanup batch size: %d", cfg.Idempotency.CleanupBatchSize)
	}
	if cfg.Idempotency.Capacity != defaultIdempotencyCapacity {
		t.Errorf("unexpected default idempotency capacity: %d", cfg.Idempotency.Capacity)
	}
}

func TestLoadWithOverrides(t *testing.T) {
	env := map[string]string{
		"API_ENVIRONMENT":                   "PROD",
		"API_SERVER_PORT":                   "9090",
		"API_SERVER_READ_TIMEOUT":           "20s",
		"API_SERVER_WRITE_TIMEOUT":          "25s",
		"API_CATALOG_FILE":                  " /etc/starrysand/catalog.yaml ",
		"API_SITE_BUSY":                     "yes",
		"API_SESSION_TTL":                   "30m",
		"API_SESSION_SWEEP_INTERVAL":        "1m",
		"API_SESSION_MAX":                   "50",
		"API_RATELIMIT_DISCOUNT_PER_MINUTE": "3",
		"API_FEATURE_DISCOUNTS":             "off",
		"API_IDEMPOTENCY_HEADER":            "X-Idem-Key",
		"API_IDEMPOTENCY_TTL":               "48h",
		"API_IDEMPOTENCY_CAPACITY":          "2000",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Environment != "prod" {
		t.Errorf("expected lowercased environment, got %s", cfg.Environment)
	}
	if cfg.Server.Port != "9090" || cfg.Server.WriteTimeout != 25*time.Second {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Catalog.File != "/etc/starrysand/catalog.yaml" {
		t.Errorf("unexpected catalog file %q", cfg.Catalog.File)
	}
	if cfg.Catalog.SiteBusy == nil || !*cfg.Catalog.SiteBusy {
		t.Errorf("expected site busy override true")
	}
	if cfg.Sessions.TTL != 30*time.Minute || cfg.Sessions.SweepInterval != time.Minute || cfg.Sessions.MaxSessions != 50 {
		t.Errorf("unexpected session config: %+v", cfg.Sessions)
	}
	if cfg.RateLimits.DiscountAttemptsPerMinute != 3 {
		t.Errorf("unexpected discount rate limit: %d", cfg.RateLimits.DiscountAttemptsPerMinute)
	}
	if cfg.Features.EnableDiscounts {
		t.Error("expected discounts disabled")
	}
	if cfg.Idempotency.Header != "X-Idem-Key" || cfg.Idempotency.TTL != 48*time.Hour || cfg.Idempotency.Capacity != 2000 {
		t.Errorf("unexpected idempotency config: %+v", cfg.Idempotency)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	env := map[string]string{
		"API_SITE_BUSY":            "maybe",
		"API_SESSION_MAX":          "0",
		"API_SESSION_TTL":          "-1m",
		"API_IDEMPOTENCY_TTL":      "0s",
		"API_IDEMPOTENCY_CAPACITY": "-1",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}

	want := map[string]bool{
		"Catalog.SiteBusy":     false,
		"Sessions.MaxSessions": false,
		"Sessions.TTL":         false,
		"Idempotency.TTL":      false,
		"Idempotency.Capacity": false,
	}
	for _, field := range vErr.Fields() {
		if _, ok := want[field]; ok {
			want[field] = true
		}
	}
	for field, seen := range want {
		if !seen {
			t.Errorf("expected %s in %v", field, vErr.Fields())
		}
	}
}

func TestLoadReadsDotEnvWithLowestPrecedence(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	content := "# local overrides\nAPI_SERVER_PORT=7070\nexport API_SESSION_MAX=\"25\"\nAPI_ENVIRONMENT=staging\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	lookup := func(key string) (string, bool) {
		if key == "API_ENVIRONMENT" {
			return "dev", true
		}
		return "", false
	}

	cfg, err := Load(context.Background(),
		WithEnvFile(envPath),
		WithoutSystemEnv(),
		WithLookupFunc(lookup),
		WithEnvMap(map[string]string{"API_SERVER_PORT": "6060"}),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "6060" {
		t.Errorf("expected env map to win, got %s", cfg.Server.Port)
	}
	if cfg.Sessions.MaxSessions != 25 {
		t.Errorf("expected dotenv fallback value 25, got %d", cfg.Sessions.MaxSessions)
	}
	if cfg.Environment != "dev" {
		t.Errorf("expected lookup func to beat dotenv, got %s", cfg.Environment)
	}
}

func TestLoadIgnoresMissingDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.env")
	if _, err := Load(context.Background(), WithEnvFile(path), WithoutSystemEnv()); err != nil {
		t.Fatalf("expected missing .env to be ignored, got %v", err)
	}
}

func TestLoadHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Load(ctx, WithoutSystemEnv(), WithEnvFile("")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestLoadReportsUnparseableValues(t *testing.T) {
	env := map[string]string{
		"API_SESSION_SWEEP_INTERVAL":        "every minute",
		"API_RATELIMIT_DISCOUNT_PER_MINUTE": "ten",
		"API_FEATURE_DISCOUNTS":             "sometimes",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	got := vErr.Fields()
	want := []string{"Sessions.SweepInterval", "RateLimits.DiscountAttemptsPerMinute", "Features.EnableDiscounts"}
	if len(got) != len(want) {
		t.Fatalf("expected fields %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected fields %v, got %v", want, got)
		}
	}
}
