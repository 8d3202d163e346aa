package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/Sternrassler/merchant-catalog-export/pkg/logging"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validatePaging(); err != nil {
		return err
	}
	if err := c.validateImages(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateMisc(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateAPI() error {
	if err := validateAbsoluteURL("api.base_url", c.API.BaseURL); err != nil {
		return err
	}
	if c.API.Cookie == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/catalog-export/config.toml"
		}
		return fmt.Errorf("api.cookie is required. Set %s env var or edit %s (create with 'catalog-export config init')", EnvCookie, defaultPath)
	}
	if c.API.TimeoutMs <= 0 {
		return errors.New("api.timeout_ms must be positive")
	}
	return nil
}

func (c *Config) validatePaging() error {
	if c.Reference.PageSize <= 0 {
		return errors.New("reference.page_size must be positive")
	}
	if c.Reference.DelayMs < 0 {
		return errors.New("reference.delay_ms must be >= 0")
	}
	if c.Products.PageSize <= 0 {
		return errors.New("products.page_size must be positive")
	}
	if c.Products.MaxPages < 0 {
		return errors.New("products.max_pages must be >= 0")
	}
	if c.Products.MinDelayMs < 0 {
		return errors.New("products.min_delay_ms must be >= 0")
	}
	if c.Products.MaxDelayMs < c.Products.MinDelayMs {
		return errors.New("products.max_delay_ms must be >= products.min_delay_ms")
	}
	return nil
}

func (c *Config) validateImages() error {
	if c.Images.Dir == "" {
		return errors.New("images.dir must be set")
	}
	if !c.Images.Enabled {
		return nil
	}
	if c.Images.Workers <= 0 {
		return errors.New("images.workers must be positive")
	}
	if c.Images.QueueSize < 0 {
		return errors.New("images.queue_size must be >= 0")
	}
	if c.Images.TimeoutMs <= 0 {
		return errors.New("images.timeout_ms must be positive")
	}
	if err := validateAbsoluteURL("images.main_base_url", c.Images.MainBaseURL); err != nil {
		return err
	}
	if err := validateAbsoluteURL("images.gallery_base_url", c.Images.GalleryBaseURL); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateCache() error {
	if !c.Cache.Enabled {
		return nil
	}
	if c.Cache.RedisURL == "" {
		return errors.New("cache.redis_url must be set when the cache is enabled")
	}
	if c.Cache.TTLSeconds <= 0 {
		return errors.New("cache.ttl_seconds must be positive")
	}
	return nil
}

func (c *Config) validateMisc() error {
	if c.Output.CSVPath == "" {
		return errors.New("output.csv_path must be set")
	}
	switch c.Compatibility.Duplicates {
	case DuplicatesLastWins, DuplicatesFirstWins:
	default:
		return fmt.Errorf("compatibility.duplicates must be %q or %q (got %q)", DuplicatesLastWins, DuplicatesFirstWins, c.Compatibility.Duplicates)
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level must be debug, info, warn or error (got %q)", c.Logging.Level)
	}
	switch c.Logging.Format {
	case LogFormatAuto, LogFormatConsole, LogFormatJSON:
	default:
		return fmt.Errorf("logging.format must be auto, console or json (got %q)", c.Logging.Format)
	}
	return nil
}

func validateAbsoluteURL(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s must be set", field)
	}
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL (got %q)", field, value)
	}
	return nil
}
