package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sammcj/mcp-lens/internal/lens"
	"github.com/sammcj/mcp-lens/internal/utils/httpclient"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Environment variables read by Load
const (
	EnvConfigPath = "MCP_LENS_CONFIG"
	EnvBaseURL    = "LENS_BASE_URL"
	EnvUserAgent  = "LENS_USER_AGENT"
	EnvTimeout    = "LENS_TIMEOUT"
	EnvRateLimit  = "LENS_RATE_LIMIT"
	EnvRateBurst  = "LENS_RATE_BURST"
	EnvCacheTTL   = "LENS_CACHE_TTL"
)

// Config holds the settings used to build a lens client
type Config struct {
	BaseURL   string            `yaml:"base_url"`
	UserAgent string            `yaml:"user_agent"`
	Timeout   time.Duration     `yaml:"timeout"`
	Headers   map[string]string `yaml:"headers"`
	// RateLimit is requests per second, zero for unlimited
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
	// CacheTTL enables the result cache when positive
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		BaseURL:   lens.DefaultBaseURL,
		UserAgent: lens.DefaultUserAgent,
		Timeout:   lens.DefaultTimeout,
		Headers:   map[string]string{},
		RateBurst: 1,
	}
}

// Load builds the configuration from defaults, a .env file in the working
// directory, the YAML config file and finally environment variables.
func Load(logger *logrus.Logger) (*Config, error) {
	cfg := Default()

	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	path, explicit := configPath()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
		} else if logger != nil {
			logger.WithField("path", path).Debug("Loaded config file")
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// configPath returns the config file location and whether it was set explicitly
func configPath() (string, bool) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, true
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false
	}
	return filepath.Join(home, ".mcp-lens", "config.yaml"), false
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv(EnvUserAgent); v != "" {
		c.UserAgent = v
	}
	if v := os.Getenv(EnvTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvTimeout, err)
		}
		c.Timeout = d
	}
	if v := os.Getenv(EnvRateLimit); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvRateLimit, err)
		}
		c.RateLimit = f
	}
	if v := os.Getenv(EnvRateBurst); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvRateBurst, err)
		}
		c.RateBurst = n
	}
	if v := os.Getenv(EnvCacheTTL); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvCacheTTL, err)
		}
		c.CacheTTL = d
	}
	return nil
}

// Validate checks the configuration for values the client cannot use
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid base URL %q: must be an absolute http(s) URL", c.BaseURL)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative, got %g", c.RateLimit)
	}
	if c.RateBurst < 0 {
		return fmt.Errorf("rate burst must not be negative, got %d", c.RateBurst)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache TTL must not be negative, got %s", c.CacheTTL)
	}
	return nil
}

// NewLensClient builds a lens client from the configuration
func NewLensClient(cfg *Config, logger *logrus.Logger) *lens.Client {
	opts := []lens.Option{
		lens.WithBaseURL(cfg.BaseURL),
		lens.WithUserAgent(cfg.UserAgent),
		lens.WithHTTPClient(httpclient.NewHTTPClientWithProxyAndLogger(cfg.Timeout, logger)),
		lens.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
	}
	for k, v := range cfg.Headers {
		opts = append(opts, lens.WithHeader(k, v))
	}
	if cfg.CacheTTL > 0 {
		opts = append(opts, lens.WithResultCache(cfg.CacheTTL))
	}
	return lens.NewClient(logger, opts...)
}
