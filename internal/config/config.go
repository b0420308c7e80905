// Package config loads the service configuration from an optional YAML file
// and applies CLOUDNEXUS_* environment overrides on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pysugar/cloud-nexus/internal/provider"
	"gopkg.in/yaml.v3"
)

const (
	DefaultListenAddr        = ":8090"
	DefaultDBPath            = "cloudnexus.db"
	DefaultLogLevel          = "info"
	DefaultActivityRetention = 90 * 24 * time.Hour

	envPrefix = "CLOUDNEXUS_"
)

type fileConfig struct {
	ListenAddr        string                    `yaml:"listen_addr"`
	DBPath            string                    `yaml:"db_path"`
	LogLevel          string                    `yaml:"log_level"`
	VerboseSQL        bool                      `yaml:"verbose_sql"`
	APIKey            string                    `yaml:"api_key"`
	ActivityRetention string                    `yaml:"activity_retention"`
	Providers         map[string]ProviderConfig `yaml:"providers"`
}

// ProviderConfig is one provider section of the YAML file.
type ProviderConfig struct {
	Enabled      *bool   `yaml:"enabled"`
	ClientID     string  `yaml:"client_id"`
	ClientSecret string  `yaml:"client_secret"`
	RedirectURL  string  `yaml:"redirect_url"`
	APIBaseURL   string  `yaml:"api_base_url"`
	TokenURL     string  `yaml:"token_url"`
	Tenant       string  `yaml:"tenant"`
	Timeout      string  `yaml:"timeout"`
	RateLimit    float64 `yaml:"rate_limit"`
}

// Provider is the resolved settings of one provider.
type Provider struct {
	Type         provider.Type
	Enabled      bool
	ClientID     string
	ClientSecret string
	RedirectURL  string
	APIBaseURL   string
	TokenURL     string
	Tenant       string
	Timeout      time.Duration
	RateLimit    float64
}

// Configured reports whether the provider can be used at runtime.
func (p Provider) Configured() bool {
	return p.Enabled && p.ClientID != ""
}

// ClientOptions returns the HTTP client settings for the provider.
func (p Provider) ClientOptions() provider.ClientOptions {
	return provider.ClientOptions{Timeout: p.Timeout, RateLimit: p.RateLimit}
}

// Config is the resolved service configuration.
type Config struct {
	Path              string
	ListenAddr        string
	DBPath            string
	LogLevel          string
	VerboseSQL        bool
	APIKey            string // empty disables API key checks
	ActivityRetention time.Duration
	Providers         map[provider.Type]Provider
}

// Load resolves the config file (if any) and applies env overrides.
func Load() (*Config, error) {
	path, err := resolveConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile reads path, which may be empty for env-only configuration.
func LoadFile(path string) (*Config, error) {
	var fc fileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("failed to parse config file %q: %w", path, err)
		}
	}

	cfg := &Config{
		Path:              path,
		ListenAddr:        firstNonEmpty(os.Getenv(envPrefix+"LISTEN_ADDR"), fc.ListenAddr, DefaultListenAddr),
		DBPath:            firstNonEmpty(os.Getenv(envPrefix+"DB_PATH"), fc.DBPath, DefaultDBPath),
		LogLevel:          strings.ToLower(firstNonEmpty(os.Getenv(envPrefix+"LOG_LEVEL"), fc.LogLevel, DefaultLogLevel)),
		VerboseSQL:        fc.VerboseSQL,
		APIKey:            firstNonEmpty(os.Getenv(envPrefix+"API_KEY"), fc.APIKey),
		ActivityRetention: DefaultActivityRetention,
		Providers:         make(map[provider.Type]Provider, len(provider.Types)),
	}
	if v, ok := envBool("VERBOSE_SQL"); ok {
		cfg.VerboseSQL = v
	}
	if raw := firstNonEmpty(os.Getenv(envPrefix+"ACTIVITY_RETENTION"), fc.ActivityRetention); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid activity_retention %q", raw)
		}
		cfg.ActivityRetention = d
	}

	sections := make(map[provider.Type]ProviderConfig, len(fc.Providers))
	for name, pc := range fc.Providers {
		t, err := provider.ParseType(name)
		if err != nil {
			return nil, fmt.Errorf("config providers: %w", err)
		}
		sections[t] = pc
	}
	for _, t := range provider.Types {
		p, err := resolveProvider(t, sections[t])
		if err != nil {
			return nil, err
		}
		cfg.Providers[t] = p
	}
	return cfg, nil
}

func resolveProvider(t provider.Type, pc ProviderConfig) (Provider, error) {
	p := Provider{
		Type:         t,
		Enabled:      true,
		ClientID:     strings.TrimSpace(firstNonEmpty(os.Getenv(providerEnvName(t, "CLIENT_ID")), pc.ClientID)),
		ClientSecret: strings.TrimSpace(firstNonEmpty(os.Getenv(providerEnvName(t, "CLIENT_SECRET")), pc.ClientSecret)),
		RedirectURL:  strings.TrimSpace(firstNonEmpty(os.Getenv(providerEnvName(t, "REDIRECT_URL")), pc.RedirectURL)),
		APIBaseURL:   strings.TrimSpace(firstNonEmpty(os.Getenv(providerEnvName(t, "API_BASE_URL")), pc.APIBaseURL)),
		TokenURL:     strings.TrimSpace(firstNonEmpty(os.Getenv(providerEnvName(t, "TOKEN_URL")), pc.TokenURL)),
		Tenant:       strings.TrimSpace(firstNonEmpty(os.Getenv(providerEnvName(t, "TENANT")), pc.Tenant)),
		Timeout:      provider.DefaultTimeout,
		RateLimit:    pc.RateLimit,
	}
	if pc.Enabled != nil {
		p.Enabled = *pc.Enabled
	}
	if v, ok := envBool(string(t) + "_ENABLED"); ok {
		p.Enabled = v
	}

	if raw := firstNonEmpty(os.Getenv(providerEnvName(t, "TIMEOUT")), pc.Timeout); raw != "" {
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil || d <= 0 {
			return Provider{}, fmt.Errorf("invalid %s timeout %q", t, raw)
		}
		p.Timeout = d
	}
	if raw := strings.TrimSpace(os.Getenv(providerEnvName(t, "RATE_LIMIT"))); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			return Provider{}, fmt.Errorf("invalid %s rate limit %q", t, raw)
		}
		p.RateLimit = v
	}
	return p, nil
}

func resolveConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv(envPrefix + "CONFIG")); explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", err
		}
		return explicit, nil
	}

	candidates := []string{
		"config/cloudnexus.yaml",
		"/etc/cloudnexus/cloudnexus.yaml",
		"/usr/local/etc/cloudnexus/cloudnexus.yaml",
	}
	if homeDir, err := os.UserHomeDir(); err == nil && homeDir != "" {
		candidates = append(candidates, filepath.Join(homeDir, ".config", "cloudnexus", "cloudnexus.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", nil
}

func providerEnvName(t provider.Type, suffix string) string {
	return envPrefix + string(t) + "_" + suffix
}

func envBool(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(envPrefix + name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
