// Package config loads, validates and hashes the site configuration.
package config

import (
	"fmt"
	"os"
	"runtime"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/sitegen/internal/source"
)

// Config is the site configuration. The zero value is unusable; always go
// through Load or Default.
type Config struct {
	Title   string `yaml:"title"`
	BaseURL string `yaml:"base_url"`

	ContentDir string `yaml:"content_dir"`
	LayoutDir  string `yaml:"layout_dir"`
	StaticDir  string `yaml:"static_dir"`
	OutputDir  string `yaml:"output_dir"`
	CacheDir   string `yaml:"cache_dir"`

	// Taxonomies lists the frontmatter keys treated as taxonomies.
	Taxonomies []string `yaml:"taxonomies"`

	// FeedLimit caps the number of entries in the generated feed.
	FeedLimit int `yaml:"feed_limit"`

	// GitInfo enables per-page lastmod resolution from git history.
	GitInfo bool `yaml:"git_info"`

	// Workers sizes the render worker pool. Defaults to GOMAXPROCS.
	Workers int `yaml:"workers"`

	// Params is arbitrary site metadata exposed to templates.
	Params map[string]any `yaml:"params"`

	Metrics MetricsConfig `yaml:"metrics"`
	Events  EventsConfig  `yaml:"events"`
	History HistoryConfig `yaml:"history"`
}

// MetricsConfig controls the Prometheus endpoint exposed in serve mode.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// EventsConfig controls NATS build event publishing.
type EventsConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// HistoryConfig controls the sqlite build history.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and validates a YAML config file. Missing optional values get
// defaults; a .env file (if present) and SITEGEN_* environment variables are
// applied on top.
func Load(path string) (*Config, error) {
	// Best effort: a missing .env file is the normal case.
	_ = godotenv.Load()

	data, err := os.ReadFile(path) // #nosec G304 - path comes from the CLI flag
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Title == "" {
		c.Title = "Site"
	}
	if c.BaseURL == "" {
		c.BaseURL = "/"
	}
	if c.ContentDir == "" {
		c.ContentDir = "content"
	}
	if c.LayoutDir == "" {
		c.LayoutDir = "layouts"
	}
	if c.StaticDir == "" {
		c.StaticDir = "static"
	}
	if c.OutputDir == "" {
		c.OutputDir = "public"
	}
	if c.CacheDir == "" {
		c.CacheDir = ".sitegen"
	}
	if len(c.Taxonomies) == 0 {
		c.Taxonomies = []string{"tags"}
	}
	if c.FeedLimit <= 0 {
		c.FeedLimit = 20
	}
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
	if c.Events.Subject == "" {
		c.Events.Subject = "sitegen.builds"
	}
	if c.History.Path == "" {
		c.History.Path = c.CacheDir + "/history.db"
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SITEGEN_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("SITEGEN_CACHE_DIR"); v != "" {
		c.CacheDir = v
		c.History.Path = v + "/history.db"
	}
	if v := os.Getenv("SITEGEN_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("SITEGEN_NATS_URL"); v != "" {
		c.Events.URL = v
	}
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.ContentDir == c.OutputDir {
		return fmt.Errorf("content_dir and output_dir must differ (both %q)", c.ContentDir)
	}
	if c.Events.Enabled && c.Events.URL == "" {
		return fmt.Errorf("events.enabled requires events.url")
	}
	return nil
}

// hashable is the subset of configuration that can affect rendered output.
// Operational settings (workers, metrics, history, events, cache location)
// are excluded so toggling them does not force a full site rebuild.
type hashable struct {
	Title      string         `json:"title"`
	BaseURL    string         `json:"base_url"`
	Taxonomies []string       `json:"taxonomies"`
	FeedLimit  int            `json:"feed_limit"`
	GitInfo    bool           `json:"git_info"`
	Params     map[string]any `json:"params"`
}

// Fingerprint hashes the effective configuration as one logical identity.
// Any render-relevant config change invalidates every artifact that consulted
// config during its last render; conservative but safe.
func (c *Config) Fingerprint() (source.Fingerprint, error) {
	hash, err := source.HashValue(hashable{
		Title:      c.Title,
		BaseURL:    c.BaseURL,
		Taxonomies: c.Taxonomies,
		FeedLimit:  c.FeedLimit,
		GitInfo:    c.GitInfo,
		Params:     c.Params,
	})
	if err != nil {
		return source.Fingerprint{}, fmt.Errorf("hash config: %w", err)
	}
	return source.Fingerprint{Identity: source.ConfigIdentity, ContentHash: hash}, nil
}
