package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"StockPipeline/internal/model"
)

// Provider names.
const (
	ProviderYahoo    = "yahoo"
	ProviderVsTrader = "vstrader"
	ProviderFolder   = "folder"
	ProviderMock     = "mock"
)

// DisabledPath turns off an optional file-backed component.
const DisabledPath = "none"

// PortfolioConfig is one configured portfolio.
type PortfolioConfig struct {
	Name    string   `yaml:"name"`
	Symbols []string `yaml:"symbols"`
}

// Config holds all application configuration.
type Config struct {
	DataDir            string        `yaml:"data_dir"`
	KeepCount          int           `yaml:"keep_count"`
	LookbackDays       int           `yaml:"lookback_days"`
	CalculateIntrinsic *bool         `yaml:"calculate_intrinsic"`
	DefaultGrowthPct   *float64      `yaml:"default_growth_pct"`
	SymbolTimeout      time.Duration `yaml:"symbol_timeout"`

	Provider struct {
		Name    string `yaml:"name"`
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
		Folder  string `yaml:"folder"`
	} `yaml:"provider"`
	Proxy string `yaml:"proxy"`

	Portfolios []PortfolioConfig `yaml:"portfolios"`
	Universe   []string          `yaml:"universe"`

	Schedule struct {
		DailyCron   string `yaml:"daily_cron"`
		CleanupCron string `yaml:"cleanup_cron"`
	} `yaml:"schedule"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Mirror struct {
		S3Bucket string `yaml:"s3_bucket"`
		S3Prefix string `yaml:"s3_prefix"`
	} `yaml:"mirror"`
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
}

// Load reads config from a YAML file, then applies .env and environment
// variable overrides, then defaults.
func Load(path string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("KEEP_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("KEEP_COUNT: %w", err)
		}
		c.KeepCount = n
	}
	if v := os.Getenv("PROVIDER"); v != "" {
		c.Provider.Name = v
	}
	if v := os.Getenv("PROVIDER_BASE_URL"); v != "" {
		c.Provider.BaseURL = v
	}
	if v := os.Getenv("PROVIDER_API_KEY"); v != "" {
		c.Provider.APIKey = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		c.Proxy = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Database.SQLitePath = v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		c.Mirror.S3Bucket = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("CRON_DAILY"); v != "" {
		c.Schedule.DailyCron = v
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.KeepCount == 0 {
		c.KeepCount = 3
	}
	if c.LookbackDays == 0 {
		c.LookbackDays = 1251
	}
	if c.CalculateIntrinsic == nil {
		v := true
		c.CalculateIntrinsic = &v
	}
	if c.DefaultGrowthPct == nil {
		v := 5.0
		c.DefaultGrowthPct = &v
	}
	if c.SymbolTimeout == 0 {
		c.SymbolTimeout = 30 * time.Second
	}
	if c.Provider.Name == "" {
		c.Provider.Name = ProviderYahoo
	}
	if c.Schedule.DailyCron == "" {
		c.Schedule.DailyCron = "0 0 16 * * 1-5"
	}
	if c.Schedule.CleanupCron == "" {
		c.Schedule.CleanupCron = "0 30 16 * * *"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/pipeline.db"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.KeepCount < 1 {
		return fmt.Errorf("keep_count must be at least 1, got %d", c.KeepCount)
	}
	if c.LookbackDays <= 0 {
		return fmt.Errorf("lookback_days must be positive")
	}
	switch c.Provider.Name {
	case ProviderYahoo, ProviderMock:
	case ProviderVsTrader:
		if c.Provider.BaseURL == "" {
			return fmt.Errorf("provider.base_url is required for %s", ProviderVsTrader)
		}
	case ProviderFolder:
		if c.Provider.Folder == "" {
			return fmt.Errorf("provider.folder is required for %s", ProviderFolder)
		}
	default:
		return fmt.Errorf("provider.name %q is not one of yahoo, vstrader, folder, mock", c.Provider.Name)
	}
	seen := make(map[string]bool)
	for i, p := range c.Portfolios {
		if p.Name == "" {
			return fmt.Errorf("portfolios[%d].name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("portfolios[%d].name %q is duplicated", i, p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// PortfolioList returns the configured portfolios with cleaned symbol lists.
func (c *Config) PortfolioList() []model.Portfolio {
	out := make([]model.Portfolio, 0, len(c.Portfolios))
	for _, p := range c.Portfolios {
		out = append(out, model.NewPortfolio(p.Name, p.Symbols))
	}
	return out
}

// Portfolio looks up a configured portfolio by name.
func (c *Config) Portfolio(name string) (model.Portfolio, bool) {
	for _, p := range c.Portfolios {
		if p.Name == name {
			return model.NewPortfolio(p.Name, p.Symbols), true
		}
	}
	return model.Portfolio{}, false
}

// UniverseSymbols returns the configured universe, or the union of all
// portfolio symbols in configuration order when none is set.
func (c *Config) UniverseSymbols() []string {
	if len(c.Universe) > 0 {
		return model.UniqueSymbols(c.Universe)
	}
	var all []string
	for _, p := range c.Portfolios {
		all = append(all, p.Symbols...)
	}
	return model.UniqueSymbols(all)
}

// RecorderEnabled reports whether the SQLite recorder should be opened.
func (c *Config) RecorderEnabled() bool {
	return c.Database.SQLitePath != DisabledPath
}
