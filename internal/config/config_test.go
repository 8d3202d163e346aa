package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/merchant-catalog-export/internal/config"
	"github.com/pelletier/go-toml/v2"
)

// clearEnv keeps the developer's environment out of the tests.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{config.EnvCookie, config.EnvBaseURL, config.EnvRedisURL, config.EnvLogLevel} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultConfigUsesEnvCookie(t *testing.T) {
	clearEnv(t)
	t.Setenv(config.EnvCookie, "PHPSESSID=abc")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	if cfg.API.Cookie != "PHPSESSID=abc" {
		t.Fatalf("expected cookie from env, got %q", cfg.API.Cookie)
	}
	if cfg.Reference.PageSize != 100 || cfg.Reference.DelayMs != 500 {
		t.Fatalf("unexpected reference paging: %+v", cfg.Reference)
	}
	if cfg.Products.PageSize != 20 || cfg.Products.MaxPages != 148 {
		t.Fatalf("unexpected product paging: %+v", cfg.Products)
	}
	lo, hi := cfg.ProductDelay()
	if lo != time.Second || hi != 2500*time.Millisecond {
		t.Fatalf("unexpected product delay: %v..%v", lo, hi)
	}
	if cfg.Images.Workers != 1 {
		t.Fatalf("expected one image worker by default, got %d", cfg.Images.Workers)
	}
	if !filepath.IsAbs(cfg.Images.Dir) || filepath.Base(cfg.Images.Dir) != "images" {
		t.Fatalf("expected absolute images dir, got %q", cfg.Images.Dir)
	}
	if cfg.Cache.Enabled {
		t.Fatal("expected cache disabled by default")
	}
	if cfg.Compatibility.Duplicates != config.DuplicatesLastWins {
		t.Fatalf("unexpected duplicate policy: %q", cfg.Compatibility.Duplicates)
	}
}

func TestLoadMissingCookieFails(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())

	_, _, _, err := config.Load("")
	if err == nil {
		t.Fatal("expected error without a cookie")
	}
	if !strings.Contains(err.Error(), config.EnvCookie) {
		t.Fatalf("expected error to mention %s, got %v", config.EnvCookie, err)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeConfig(t, `
[api]
cookie = "PHPSESSID=file"
base_url = "https://merchant.example.com/getlist/"

[products]
max_pages = 3
min_delay_ms = 0
max_delay_ms = 0

[images]
dir = "`+filepath.ToSlash(filepath.Join(dir, "img"))+`"
workers = 4

[compatibility]
duplicates = "FIRST_WINS"
log_unresolved = true

[logging]
level = "DEBUG"
`)

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected %s to be read, got %s (exists=%v)", path, resolved, exists)
	}

	if cfg.API.BaseURL != "https://merchant.example.com/getlist" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.API.BaseURL)
	}
	if cfg.Products.MaxPages != 3 {
		t.Fatalf("unexpected max pages: %d", cfg.Products.MaxPages)
	}
	if cfg.Products.PageSize != 20 {
		t.Fatalf("expected untouched default page size, got %d", cfg.Products.PageSize)
	}
	if cfg.Images.Workers != 4 || cfg.Images.Dir != filepath.Join(dir, "img") {
		t.Fatalf("unexpected images: %+v", cfg.Images)
	}
	if cfg.Compatibility.Duplicates != config.DuplicatesFirstWins || !cfg.Compatibility.LogUnresolved {
		t.Fatalf("unexpected compatibility: %+v", cfg.Compatibility)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected normalized level, got %q", cfg.Logging.Level)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(config.EnvCookie, "PHPSESSID=env")
	t.Setenv(config.EnvBaseURL, "https://other.example.com/getlist")
	t.Setenv(config.EnvRedisURL, "redis://cache:6379/2")
	t.Setenv(config.EnvLogLevel, "warn")

	path := writeConfig(t, `
[api]
cookie = "PHPSESSID=file"

[cache]
enabled = true
redis_url = "redis://localhost:6379/0"

[logging]
level = "debug"
`)

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.API.Cookie != "PHPSESSID=env" {
		t.Fatalf("cookie = %q", cfg.API.Cookie)
	}
	if cfg.API.BaseURL != "https://other.example.com/getlist" {
		t.Fatalf("base url = %q", cfg.API.BaseURL)
	}
	if cfg.Cache.RedisURL != "redis://cache:6379/2" {
		t.Fatalf("redis url = %q", cfg.Cache.RedisURL)
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("log level = %q", cfg.Logging.Level)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	clearEnv(t)
	t.Setenv(config.EnvCookie, "x")
	path := writeConfig(t, "[api]\ncookies = \"typo\"\n")

	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{name: "defaults with cookie", mutate: func(c *config.Config) {}},
		{name: "relative base url", mutate: func(c *config.Config) { c.API.BaseURL = "/getlist" }, wantErr: "api.base_url"},
		{name: "zero timeout", mutate: func(c *config.Config) { c.API.TimeoutMs = 0 }, wantErr: "api.timeout_ms"},
		{name: "zero reference page size", mutate: func(c *config.Config) { c.Reference.PageSize = 0 }, wantErr: "reference.page_size"},
		{name: "negative max pages", mutate: func(c *config.Config) { c.Products.MaxPages = -1 }, wantErr: "products.max_pages"},
		{name: "delay bounds swapped", mutate: func(c *config.Config) { c.Products.MinDelayMs = 3000 }, wantErr: "products.max_delay_ms"},
		{name: "zero workers", mutate: func(c *config.Config) { c.Images.Workers = 0 }, wantErr: "images.workers"},
		{name: "zero workers with images off", mutate: func(c *config.Config) { c.Images.Enabled = false; c.Images.Workers = 0 }},
		{name: "cache without ttl", mutate: func(c *config.Config) { c.Cache.Enabled = true; c.Cache.TTLSeconds = 0 }, wantErr: "cache.ttl_seconds"},
		{name: "bad duplicate policy", mutate: func(c *config.Config) { c.Compatibility.Duplicates = "newest" }, wantErr: "compatibility.duplicates"},
		{name: "bad log level", mutate: func(c *config.Config) { c.Logging.Level = "trace" }, wantErr: "logging.level"},
		{name: "bad log format", mutate: func(c *config.Config) { c.Logging.Format = "xml" }, wantErr: "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.API.Cookie = "PHPSESSID=x"
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestHeaders(t *testing.T) {
	cfg := config.Default()
	cfg.API.Cookie = "PHPSESSID=x"

	headers := cfg.Headers()
	for _, key := range []string{"Accept", "Accept-Language", "Cookie", "Origin", "Referer", "User-Agent", "X-Requested-With"} {
		if headers[key] == "" {
			t.Errorf("header %s missing", key)
		}
	}

	if _, ok := cfg.ImageHeaders()["Cookie"]; ok {
		t.Error("image headers must not carry the session cookie")
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	clearEnv(t)
	t.Setenv(config.EnvCookie, "PHPSESSID=sample")
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	if err := config.CreateSample(path); err == nil {
		t.Fatal("expected CreateSample to refuse overwriting")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var decoded config.Config
	if err := toml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("sample is not valid TOML: %v", err)
	}

	defaults := config.Default()
	if decoded.Products != defaults.Products || decoded.Reference != defaults.Reference {
		t.Fatalf("sample paging differs from defaults: %+v %+v", decoded.Products, decoded.Reference)
	}
	if decoded.Images.MainBaseURL != defaults.Images.MainBaseURL {
		t.Fatalf("sample image base differs: %q", decoded.Images.MainBaseURL)
	}

	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("Load(sample) returned error: %v", err)
	}
}
