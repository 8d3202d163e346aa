package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeLogging()
	c.Compatibility.Duplicates = strings.ToLower(strings.TrimSpace(c.Compatibility.Duplicates))
	if c.Compatibility.Duplicates == "" {
		c.Compatibility.Duplicates = defaultDuplicates
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Images.Dir, err = expandPath(c.Images.Dir); err != nil {
		return fmt.Errorf("images.dir: %w", err)
	}
	if c.Output.CSVPath, err = expandPath(c.Output.CSVPath); err != nil {
		return fmt.Errorf("output.csv_path: %w", err)
	}
	if c.Output.MetricsFile, err = expandPath(c.Output.MetricsFile); err != nil {
		return fmt.Errorf("output.metrics_file: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	c.API.Cookie = strings.TrimSpace(c.API.Cookie)
}

func (c *Config) normalizeLogging() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
}
