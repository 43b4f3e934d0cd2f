// Package config handles configuration loading for yausma.
// It supports YAML config files, an optional .env file and environment
// variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. YAUSMA_API_PORT.
const EnvPrefix = "YAUSMA"

// Config represents the complete application configuration.
type Config struct {
	API      APIConfig      `mapstructure:"api"      yaml:"api"`
	Cache    CacheConfig    `mapstructure:"cache"    yaml:"cache"`
	Market   MarketConfig   `mapstructure:"market"   yaml:"market"`
	News     NewsConfig     `mapstructure:"news"     yaml:"news"`
	Provider ProviderConfig `mapstructure:"provider" yaml:"provider"`
	Redis    RedisConfig    `mapstructure:"redis"    yaml:"redis"`
	Logging  LoggingConfig  `mapstructure:"logging"  yaml:"logging"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Host        string   `mapstructure:"host"         yaml:"host"`
	Port        int      `mapstructure:"port"         yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// CacheConfig holds cache windows, in seconds.
type CacheConfig struct {
	OverviewTTL   int `mapstructure:"overview_ttl"    yaml:"overview_ttl"`
	NewsTTL       int `mapstructure:"news_ttl"        yaml:"news_ttl"`        // global feed
	SymbolNewsTTL int `mapstructure:"symbol_news_ttl" yaml:"symbol_news_ttl"` // per-symbol feeds
	PartialTTL    int `mapstructure:"partial_ttl"     yaml:"partial_ttl"`     // overview with failed symbols; 0 refetches every call
}

// MarketConfig holds the overview symbol set and aggregation settings.
type MarketConfig struct {
	Symbols           []string `mapstructure:"symbols"            yaml:"symbols"`
	QuoteRange        string   `mapstructure:"quote_range"        yaml:"quote_range"`
	QuoteInterval     string   `mapstructure:"quote_interval"     yaml:"quote_interval"`
	HistoryPoints     int      `mapstructure:"history_points"     yaml:"history_points"`
	FailurePolicy     string   `mapstructure:"failure_policy"     yaml:"failure_policy"` // "fail_fast" or "skip_failed"
	ConcurrentFetches int      `mapstructure:"concurrent_fetches" yaml:"concurrent_fetches"`
}

// NewsConfig holds news settings.
type NewsConfig struct {
	Limit   int    `mapstructure:"limit"    yaml:"limit"`
	FeedURL string `mapstructure:"feed_url" yaml:"feed_url"`
}

// ProviderConfig selects the upstream data provider and holds its client settings.
type ProviderConfig struct {
	Name       string `mapstructure:"name"        yaml:"name"` // registered provider, e.g. "yfinance"
	BaseURL    string `mapstructure:"base_url"    yaml:"base_url"`
	TimeoutSec int    `mapstructure:"timeout_sec" yaml:"timeout_sec"`
	RateLimit  int    `mapstructure:"rate_limit"  yaml:"rate_limit"` // requests per second
}

// RedisConfig holds the optional shared cache mirror. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"     yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db"       yaml:"db"`
	Prefix   string `mapstructure:"prefix"   yaml:"prefix"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
}

// OverviewWindow returns the overview cache window.
func (c CacheConfig) OverviewWindow() time.Duration {
	return time.Duration(c.OverviewTTL) * time.Second
}

// PartialWindow returns the window of an overview that dropped symbols.
func (c CacheConfig) PartialWindow() time.Duration {
	return time.Duration(c.PartialTTL) * time.Second
}

// NewsWindow returns the global news cache window.
func (c CacheConfig) NewsWindow() time.Duration {
	return time.Duration(c.NewsTTL) * time.Second
}

// SymbolNewsWindow returns the per-symbol news cache window.
func (c CacheConfig) SymbolNewsWindow() time.Duration {
	return time.Duration(c.SymbolNewsTTL) * time.Second
}

// Addr returns host:port for the HTTP listener.
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.yausma/config.yaml (home directory)
//  3. /etc/yausma/config.yaml (system)
//
// A .env file in the working directory is loaded into the environment first.
// Environment variables override config file values.
// Format: YAUSMA_<SECTION>_<KEY>, e.g., YAUSMA_CACHE_OVERVIEW_TTL
func Load() (*Config, error) {
	loadDotEnv()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".yausma"))
	v.AddConfigPath("/etc/yausma")

	// Read config file (not required to exist)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return decode(v)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadDotEnv()

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	overrideFromEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadDotEnv loads ./.env if present. Existing environment variables win.
func loadDotEnv() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8000)
	v.SetDefault("api.cors_origins", []string{"*"})

	// Cache defaults (seconds)
	v.SetDefault("cache.overview_ttl", 600)
	v.SetDefault("cache.partial_ttl", 60)
	v.SetDefault("cache.news_ttl", 600)
	v.SetDefault("cache.symbol_news_ttl", 600)

	// Market defaults
	v.SetDefault("market.symbols", []string{"XMR-USD", "MDB", "GTLB", "CFLT"})
	v.SetDefault("market.quote_range", "1mo")
	v.SetDefault("market.quote_interval", "1d")
	v.SetDefault("market.history_points", 30)
	v.SetDefault("market.failure_policy", "fail_fast")
	v.SetDefault("market.concurrent_fetches", 4)

	// News defaults
	v.SetDefault("news.limit", 20)
	v.SetDefault("news.feed_url", "https://finance.yahoo.com/news/rssindex")

	// Provider defaults
	v.SetDefault("provider.name", "yfinance")
	v.SetDefault("provider.base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("provider.timeout_sec", 30)
	v.SetDefault("provider.rate_limit", 5)

	// Redis defaults (disabled)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "yausma:")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// overrideFromEnv explicitly reads sensitive keys from environment variables.
func overrideFromEnv(cfg *Config) {
	if pw := os.Getenv("YAUSMA_REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Cache.OverviewTTL <= 0 {
		errs = append(errs, fmt.Errorf("cache.overview_ttl must be positive, got %d", c.Cache.OverviewTTL))
	}
	if c.Cache.PartialTTL < 0 {
		errs = append(errs, fmt.Errorf("cache.partial_ttl must not be negative, got %d", c.Cache.PartialTTL))
	}
	if c.Cache.NewsTTL <= 0 {
		errs = append(errs, fmt.Errorf("cache.news_ttl must be positive, got %d", c.Cache.NewsTTL))
	}
	if c.Cache.SymbolNewsTTL <= 0 {
		errs = append(errs, fmt.Errorf("cache.symbol_news_ttl must be positive, got %d", c.Cache.SymbolNewsTTL))
	}
	switch strings.ToLower(c.Market.FailurePolicy) {
	case "fail_fast", "skip_failed":
	default:
		errs = append(errs, fmt.Errorf("market.failure_policy must be fail_fast or skip_failed, got %q", c.Market.FailurePolicy))
	}
	hasSymbol := false
	for _, s := range c.Market.Symbols {
		if strings.TrimSpace(s) != "" {
			hasSymbol = true
			break
		}
	}
	if !hasSymbol {
		errs = append(errs, errors.New("market.symbols must list at least one symbol"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ToYAML renders cfg as YAML with secrets masked.
func ToYAML(cfg *Config) ([]byte, error) {
	masked := *cfg
	if masked.Redis.Password != "" {
		masked.Redis.Password = maskKey(masked.Redis.Password)
	}
	out, err := yaml.Marshal(&masked)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return out, nil
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
