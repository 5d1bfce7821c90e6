// Package config provides configuration management for the radio schedule service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultBaseURL is the root of the schedule API.
const DefaultBaseURL = "http://api.sr.se/v2"

var (
	// ErrBaseURLRequired is returned when base URL is not provided.
	ErrBaseURLRequired = errors.New("base URL is required")
	// ErrInvalidPort is returned when port number is invalid.
	ErrInvalidPort = errors.New("invalid port number")
	// ErrRefreshIntervalPositive is returned when refresh interval is not positive.
	ErrRefreshIntervalPositive = errors.New("refresh interval must be positive")
	// ErrRequestTimeoutPositive is returned when request timeout is not positive.
	ErrRequestTimeoutPositive = errors.New("request timeout must be positive")
	// ErrInvalidLogLevel is returned when log level is invalid.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidTimezone is returned when the timezone cannot be loaded.
	ErrInvalidTimezone = errors.New("invalid timezone")
)

// Config holds the application configuration.
type Config struct {
	BaseURL         string
	Port            int
	LogLevel        string
	LogFile         string
	RefreshInterval time.Duration
	RequestTimeout  time.Duration
	Timezone        string
	UserAgent       string
}

// fileConfig is the YAML layout of a config file. Durations are strings
// such as "1h" or "45s".
type fileConfig struct {
	BaseURL         string `yaml:"base_url"`
	Port            int    `yaml:"port"`
	LogLevel        string `yaml:"log_level"`
	LogFile         string `yaml:"log_file"`
	RefreshInterval string `yaml:"refresh_interval"`
	RequestTimeout  string `yaml:"request_timeout"`
	Timezone        string `yaml:"timezone"`
	UserAgent       string `yaml:"user_agent"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		BaseURL:         DefaultBaseURL,
		Port:            8080,
		LogLevel:        "info",
		RefreshInterval: time.Hour,
		RequestTimeout:  60 * time.Second,
		UserAgent:       "radio-schedule/1.0",
	}
}

// LoadFile reads a YAML config file and applies every value it sets on top
// of a copy of base.
func LoadFile(path string, base *Config) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	c := *base
	if f.BaseURL != "" {
		c.BaseURL = f.BaseURL
	}
	if f.Port != 0 {
		c.Port = f.Port
	}
	if f.LogLevel != "" {
		c.LogLevel = f.LogLevel
	}
	if f.LogFile != "" {
		c.LogFile = f.LogFile
	}
	if f.Timezone != "" {
		c.Timezone = f.Timezone
	}
	if f.UserAgent != "" {
		c.UserAgent = f.UserAgent
	}
	if f.RefreshInterval != "" {
		d, err := time.ParseDuration(f.RefreshInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid refresh_interval: %w", err)
		}
		c.RefreshInterval = d
	}
	if f.RequestTimeout != "" {
		d, err := time.ParseDuration(f.RequestTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid request_timeout: %w", err)
		}
		c.RequestTimeout = d
	}

	return &c, nil
}

// Location returns the zone episodes are displayed in. An empty Timezone
// means the system local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTimezone, c.Timezone)
	}
	return loc, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrBaseURLRequired
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("invalid base URL: %q is not absolute", c.BaseURL)
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}

	if c.RefreshInterval <= 0 {
		return ErrRefreshIntervalPositive
	}

	if c.RequestTimeout <= 0 {
		return ErrRequestTimeoutPositive
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("%w: %s (must be debug, info, warn, or error)", ErrInvalidLogLevel, c.LogLevel)
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	return nil
}
