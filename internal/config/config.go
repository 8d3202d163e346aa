// Package config loads the exporter configuration from a TOML file, applies
// environment overrides and validates the result.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Environment variables that override file values.
const (
	EnvCookie   = "CATALOG_COOKIE"
	EnvBaseURL  = "CATALOG_BASE_URL"
	EnvRedisURL = "REDIS_URL"
	EnvLogLevel = "LOG_LEVEL"
)

// Duplicate policies for repeated compatibility ids.
const (
	DuplicatesLastWins  = "last_wins"
	DuplicatesFirstWins = "first_wins"
)

// Log formats.
const (
	LogFormatAuto    = "auto"
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// API contains the listing endpoint and the browser-like request headers.
type API struct {
	BaseURL        string `toml:"base_url"`
	Cookie         string `toml:"cookie"`
	Origin         string `toml:"origin"`
	Referer        string `toml:"referer"`
	UserAgent      string `toml:"user_agent"`
	AcceptLanguage string `toml:"accept_language"`
	TimeoutMs      int    `toml:"timeout_ms"`
}

// Reference configures paging of compatibility records and product links.
type Reference struct {
	PageSize int `toml:"page_size"`
	DelayMs  int `toml:"delay_ms"`
}

// Products configures paging of product records.
type Products struct {
	PageSize   int `toml:"page_size"`
	MaxPages   int `toml:"max_pages"`
	MinDelayMs int `toml:"min_delay_ms"`
	MaxDelayMs int `toml:"max_delay_ms"`
}

// Compatibility configures index building.
type Compatibility struct {
	Duplicates    string `toml:"duplicates"`
	LogUnresolved bool   `toml:"log_unresolved"`
}

// Images configures image materialization.
type Images struct {
	Enabled        bool   `toml:"enabled"`
	Dir            string `toml:"dir"`
	Workers        int    `toml:"workers"`
	QueueSize      int    `toml:"queue_size"`
	TimeoutMs      int    `toml:"timeout_ms"`
	MainBaseURL    string `toml:"main_base_url"`
	GalleryBaseURL string `toml:"gallery_base_url"`
}

// Output configures the files written at the end of a run.
type Output struct {
	CSVPath     string `toml:"csv_path"`
	MetricsFile string `toml:"metrics_file"`
}

// Cache configures the Redis page cache.
type Cache struct {
	Enabled    bool   `toml:"enabled"`
	RedisURL   string `toml:"redis_url"`
	TTLSeconds int    `toml:"ttl_seconds"`
}

// Logging configures log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config is the complete exporter configuration.
type Config struct {
	API           API           `toml:"api"`
	Reference     Reference     `toml:"reference"`
	Products      Products      `toml:"products"`
	Compatibility Compatibility `toml:"compatibility"`
	Images        Images        `toml:"images"`
	Output        Output        `toml:"output"`
	Cache         Cache         `toml:"cache"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/catalog-export/config.toml")
}

// Load locates, parses, and validates a configuration file. A missing file
// is not an error: defaults and environment overrides apply. The returned
// path is the file that was (or would have been) read.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("catalog-export.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	return defaultPath, false, nil
}

// applyEnv overrides file values with non-empty environment variables.
func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvCookie)); v != "" {
		c.API.Cookie = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBaseURL)); v != "" {
		c.API.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvRedisURL)); v != "" {
		c.Cache.RedisURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		c.Logging.Level = v
	}
}

// Headers returns the request headers sent with every listing call.
func (c *Config) Headers() map[string]string {
	headers := map[string]string{
		"Accept":           "application/json",
		"X-Requested-With": "XMLHttpRequest",
	}
	set := func(key, value string) {
		if value != "" {
			headers[key] = value
		}
	}
	set("Accept-Language", c.API.AcceptLanguage)
	set("Cookie", c.API.Cookie)
	set("Origin", c.API.Origin)
	set("Referer", c.API.Referer)
	set("User-Agent", c.API.UserAgent)
	return headers
}

// ImageHeaders returns the headers sent with image downloads. The session
// cookie is not needed for public image URLs and is left out.
func (c *Config) ImageHeaders() map[string]string {
	headers := map[string]string{}
	if c.API.UserAgent != "" {
		headers["User-Agent"] = c.API.UserAgent
	}
	if c.API.Referer != "" {
		headers["Referer"] = c.API.Referer
	}
	return headers
}

// APITimeout returns the per-request timeout for listing calls.
func (c *Config) APITimeout() time.Duration {
	return millis(c.API.TimeoutMs)
}

// ReferenceDelay returns the fixed pause between reference pages.
func (c *Config) ReferenceDelay() time.Duration {
	return millis(c.Reference.DelayMs)
}

// ProductDelay returns the bounds of the random pause between product pages.
func (c *Config) ProductDelay() (time.Duration, time.Duration) {
	return millis(c.Products.MinDelayMs), millis(c.Products.MaxDelayMs)
}

// ImageTimeout returns the per-download timeout.
func (c *Config) ImageTimeout() time.Duration {
	return millis(c.Images.TimeoutMs)
}

// CacheTTL returns how long cached reference pages stay valid.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for flag values.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
// An existing file is never overwritten.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("config file %s already exists", path)
		}
		return fmt.Errorf("write sample config: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(sampleConfig); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
