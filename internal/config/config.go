package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const FileName = "config.yaml"

const (
	DefaultRedirectURL    = "http://127.0.0.1:8765/"
	DefaultSignOutTimeout = 8 * time.Second
	DefaultStatusTTL      = 3 * time.Second
	DefaultRequestTimeout = 30 * time.Second
)

type Config struct {
	SupabaseURL     string `yaml:"supabase_url"`
	SupabaseAnonKey string `yaml:"supabase_anon_key"`
	// Offline forces the fully local, signed-out mode even when the backend is configured.
	Offline bool `yaml:"offline"`

	// RedirectURL is the origin magic links send the browser back to.
	// The callback listener binds its host:port.
	RedirectURL string `yaml:"redirect_url"`

	SignOutTimeout time.Duration `yaml:"sign_out_timeout"`
	StatusTTL      time.Duration `yaml:"status_ttl"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	LogFile  string `yaml:"log_file"`
	LogLevel string `yaml:"log_level"`

	// Dir is the state directory the config was loaded from. Not read from YAML.
	Dir string `yaml:"-"`
}

func Defaults() Config {
	return Config{
		RedirectURL:    DefaultRedirectURL,
		SignOutTimeout: DefaultSignOutTimeout,
		StatusTTL:      DefaultStatusTTL,
		RequestTimeout: DefaultRequestTimeout,
		LogLevel:       "info",
	}
}

// Load resolves configuration: defaults, then <dir>/config.yaml, then environment.
// A missing config file is not an error.
func Load(dir string) (Config, error) {
	cfg := Defaults()
	cfg.Dir = dir
	if strings.TrimSpace(dir) != "" {
		if err := cfg.mergeFile(filepath.Join(dir, FileName)); err != nil {
			return cfg, err
		}
	}
	cfg.mergeEnv()
	cfg.normalize()
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	dir := c.Dir
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	c.Dir = dir
	return nil
}

func (c *Config) mergeEnv() {
	c.SupabaseURL = envOr(c.SupabaseURL, "QUICKNOTES_SUPABASE_URL", "SUPABASE_URL")
	c.SupabaseAnonKey = envOr(c.SupabaseAnonKey, "QUICKNOTES_SUPABASE_ANON_KEY", "SUPABASE_ANON_KEY")
	c.RedirectURL = envOr(c.RedirectURL, "QUICKNOTES_REDIRECT_URL")
	c.LogFile = envOr(c.LogFile, "QUICKNOTES_LOG_FILE")
	c.LogLevel = envOr(c.LogLevel, "QUICKNOTES_LOG_LEVEL")
	if v := strings.TrimSpace(os.Getenv("QUICKNOTES_OFFLINE")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Offline = b
		}
	}
	c.SignOutTimeout = parseDurationOr("QUICKNOTES_SIGN_OUT_TIMEOUT", c.SignOutTimeout)
	c.StatusTTL = parseDurationOr("QUICKNOTES_STATUS_TTL", c.StatusTTL)
	c.RequestTimeout = parseDurationOr("QUICKNOTES_REQUEST_TIMEOUT", c.RequestTimeout)
}

func (c *Config) normalize() {
	c.SupabaseURL = strings.TrimRight(strings.TrimSpace(c.SupabaseURL), "/")
	c.SupabaseAnonKey = strings.TrimSpace(c.SupabaseAnonKey)
	if strings.TrimSpace(c.RedirectURL) == "" {
		c.RedirectURL = DefaultRedirectURL
	}
	if c.SignOutTimeout <= 0 {
		c.SignOutTimeout = DefaultSignOutTimeout
	}
	if c.StatusTTL <= 0 {
		c.StatusTTL = DefaultStatusTTL
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
}

// Enabled reports whether the backend client is available. When false the
// app runs fully local: signed out, no notes, no network calls.
func (c Config) Enabled() bool {
	return !c.Offline && c.SupabaseURL != "" && c.SupabaseAnonKey != ""
}

// CallbackAddr is the host:port the redirect listener should bind.
func (c Config) CallbackAddr() (string, error) {
	u, err := url.Parse(c.RedirectURL)
	if err != nil {
		return "", fmt.Errorf("invalid redirect url: %w", err)
	}
	if u.Scheme != "http" {
		return "", fmt.Errorf("redirect url must be http for the local listener: %s", c.RedirectURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("redirect url has no host: %s", c.RedirectURL)
	}
	if u.Port() == "" {
		return u.Hostname() + ":80", nil
	}
	return u.Host, nil
}

func envOr(current string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return current
}

func parseDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
