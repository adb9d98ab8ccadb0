// Package config loads and validates wikigraph configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/wikigraph/internal/fetcher"
	"github.com/JakeFAU/wikigraph/internal/titles"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Source    SourceConfig    `mapstructure:"source"`
	API       APIConfig       `mapstructure:"api"`
	Store     StoreConfig     `mapstructure:"store"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// CrawlerConfig governs the crawl loop and this machine's campaign membership.
type CrawlerConfig struct {
	MachineID           int     `mapstructure:"machine_id"`
	TotalMachines       int     `mapstructure:"total_machines"`
	BatchSize           int     `mapstructure:"batch_size"`
	DelaySeconds        float64 `mapstructure:"delay_seconds"`
	FetchTimeoutSeconds int     `mapstructure:"fetch_timeout_seconds"`
	UserAgent           string  `mapstructure:"user_agent"`
}

// SourceConfig points at the bulk title dump used at population time.
type SourceConfig struct {
	DumpURL string `mapstructure:"dump_url"`
}

// APIConfig points at the wiki REST API used for page fetches.
type APIConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// StoreConfig sets the shard store file path.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// TelemetryConfig controls the optional status/metrics server.
type TelemetryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// LoggingConfig shapes the zap logger: console output for development,
// JSON for production, and a minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from the given viper instance (flags, file, env).
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// SetDefaults installs defaults and env binding on v. Called once from the
// root command before any flags are read.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("crawler.total_machines", 1)
	v.SetDefault("crawler.batch_size", 100)
	v.SetDefault("crawler.delay_seconds", 1.0)
	v.SetDefault("crawler.fetch_timeout_seconds", 30)
	v.SetDefault("crawler.user_agent", "wikigraph/1.0 (+https://github.com/JakeFAU/wikigraph)")
	v.SetDefault("source.dump_url", titles.DefaultDumpURL)
	v.SetDefault("api.base_url", fetcher.DefaultBaseURL)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.listen", ":9090")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")

	v.SetEnvPrefix("WIKIGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// ValidateCrawl enforces the crawl command's invariants.
func (c Config) ValidateCrawl() error {
	if c.Crawler.TotalMachines <= 0 {
		return fmt.Errorf("total-machines must be > 0")
	}
	if c.Crawler.MachineID < 0 || c.Crawler.MachineID >= c.Crawler.TotalMachines {
		return fmt.Errorf("machine-id must be between 0 and %d", c.Crawler.TotalMachines-1)
	}
	if c.Crawler.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be > 0")
	}
	if c.Crawler.DelaySeconds < 0 {
		return fmt.Errorf("delay must be >= 0")
	}
	if c.Crawler.FetchTimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.fetch_timeout_seconds must be > 0")
	}
	return nil
}

// Delay converts the configured delay to a duration.
func (c Config) Delay() time.Duration {
	return time.Duration(c.Crawler.DelaySeconds * float64(time.Second))
}

// FetchTimeout converts the configured fetch timeout to a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Crawler.FetchTimeoutSeconds) * time.Second
}

// StorePath resolves the shard store file path, defaulting to a
// machine-specific name so co-located shards never collide.
func (c Config) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return fmt.Sprintf("wiki_graph_machine_%d.db", c.Crawler.MachineID)
}
