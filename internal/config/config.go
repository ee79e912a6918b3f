// Package config loads and validates the proxy configuration from a
// yaml file, environment overrides and CLI flags, in that order of
// precedence (flags win).
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Redis configures the cache backend connection.
type Redis struct {
	Addr string `yaml:"addr"`
	DB   int    `yaml:"db"`
}

// CachePolicy configures what gets cached and for how long.
type CachePolicy struct {
	DefaultTTLSeconds int   `yaml:"default_ttl_seconds"`
	HonorOriginTTL    bool  `yaml:"honor_origin_ttl"`
	CacheableStatuses []int `yaml:"cacheable_statuses"`

	// KeyHeaders are the header names whose values take part in the
	// cache key
	KeyHeaders []string `yaml:"key_headers"`
}

// Headers configures the sanitizer deny lists, added on top of the
// always-denied hop-by-hop set.
type Headers struct {
	RequestDeny  []string `yaml:"request_deny"`
	ResponseDeny []string `yaml:"response_deny"`
}

// Log configures logging output.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

// Config is the full proxy configuration.
type Config struct {
	Listen               string      `yaml:"listen"`
	AdminListen          string      `yaml:"admin_listen"`
	Origin               string      `yaml:"origin"`
	OriginTimeoutSeconds int         `yaml:"origin_timeout_seconds"`
	Redis                Redis       `yaml:"redis"`
	Cache                CachePolicy `yaml:"cache"`
	Headers              Headers     `yaml:"headers"`
	Log                  Log         `yaml:"log"`
}

// Default returns the configuration used absent any file or overrides.
// Everything here is a starting point, not policy carved into the code:
// deny lists, the cacheable status set and the TTL are all expected to
// be tuned per deployment.
func Default() *Config {
	return &Config{
		Listen:               "localhost:3128",
		AdminListen:          "localhost:3129",
		OriginTimeoutSeconds: 30,
		Redis: Redis{
			Addr: "localhost:6379",
		},
		Cache: CachePolicy{
			DefaultTTLSeconds: 3600,
			CacheableStatuses: []int{200, 203, 300, 301, 404, 410},
			KeyHeaders:        []string{"Accept", "Accept-Encoding", "Accept-Language"},
		},
		Headers: Headers{
			ResponseDeny: []string{"Set-Cookie"},
		},
		Log: Log{
			Level:  "info",
			Format: "json",
		},
	}
}

// Parse loads configuration from the given yaml file on top of the
// defaults, then applies environment overrides. An empty path skips the
// file and still applies overrides.
func Parse(configPath string) (*Config, error) {
	c := Default()

	if configPath != "" {
		fp, err := os.Open(configPath) //nolint:gosec
		if err != nil {
			return c, err
		}
		defer fp.Close()

		decoder := yaml.NewDecoder(fp)
		decoder.KnownFields(true)
		if err := decoder.Decode(c); err != nil {
			return c, fmt.Errorf("parse config %s: %w", configPath, err)
		}
	}

	applyOverrides(c)
	return c, nil
}

func applyOverrides(c *Config) {
	if val, ok := os.LookupEnv("CACHING_PROXY_LISTEN"); ok {
		c.Listen = val
	}
	if val, ok := os.LookupEnv("CACHING_PROXY_ADMIN_LISTEN"); ok {
		c.AdminListen = val
	}
	if val, ok := os.LookupEnv("CACHING_PROXY_ORIGIN"); ok {
		c.Origin = val
	}
	if val, ok := os.LookupEnv("CACHING_PROXY_REDIS_ADDR"); ok {
		c.Redis.Addr = val
	}
	if val, ok := os.LookupEnv("CACHING_PROXY_DEFAULT_TTL"); ok {
		if ttl, err := strconv.Atoi(val); err == nil {
			c.Cache.DefaultTTLSeconds = ttl
		}
	}
	if val, ok := os.LookupEnv("CACHING_PROXY_LOG_LEVEL"); ok {
		c.Log.Level = val
	}
	if val, ok := os.LookupEnv("CACHING_PROXY_LOG_FORMAT"); ok {
		c.Log.Format = val
	}
}

// Validate checks the configuration for values the proxy cannot run
// with. It is called once at startup, after flags are applied.
func (c *Config) Validate() error {
	if c.Origin == "" {
		return fmt.Errorf("origin is required")
	}

	origin, err := url.Parse(c.Origin)
	if err != nil {
		return fmt.Errorf("invalid origin %q: %w", c.Origin, err)
	}
	if origin.Scheme != "http" && origin.Scheme != "https" {
		return fmt.Errorf("origin must start with http:// or https://, got %q", c.Origin)
	}
	if origin.Host == "" {
		return fmt.Errorf("origin %q has no host", c.Origin)
	}

	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if err := validatePort(c.Listen); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if c.AdminListen != "" {
		if err := validatePort(c.AdminListen); err != nil {
			return fmt.Errorf("admin_listen: %w", err)
		}
	}

	if c.Cache.DefaultTTLSeconds < 1 {
		return fmt.Errorf("default TTL must be positive, got %d", c.Cache.DefaultTTLSeconds)
	}
	if c.OriginTimeoutSeconds < 1 {
		return fmt.Errorf("origin timeout must be positive, got %d", c.OriginTimeoutSeconds)
	}

	return nil
}

// OriginURL returns the parsed origin. Call Validate first.
func (c *Config) OriginURL() (*url.URL, error) {
	return url.Parse(c.Origin)
}

// CacheableStatusSet returns the cacheable statuses as a set.
func (c *Config) CacheableStatusSet() map[int]bool {
	set := make(map[int]bool, len(c.Cache.CacheableStatuses))
	for _, status := range c.Cache.CacheableStatuses {
		set[status] = true
	}
	return set
}

func validatePort(addr string) error {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return fmt.Errorf("address %q has no port", addr)
	}
	port, err := strconv.Atoi(addr[idx+1:])
	if err != nil {
		return fmt.Errorf("address %q has a non-numeric port", addr)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port number: %d", port)
	}
	return nil
}
