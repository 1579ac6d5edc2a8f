package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultMaxAgeDays     = 30
	defaultResultsPerPage = 15
	defaultTimeout        = "30s"
	defaultRateLimit      = 2.0
	defaultTickMS         = 60
)

type Config struct {
	Cache   CacheConfig
	Search  SearchConfig
	Storage StorageConfig
	OEIS    OEISConfig
	Log     LogConfig
	Server  ServerConfig
	UI      UIConfig
}

type CacheConfig struct {
	MaxAgeDays int
}

type SearchConfig struct {
	ResultsPerPage int
}

type StorageConfig struct {
	DataDir string
}

type OEISConfig struct {
	BaseURL   string
	Timeout   string
	RateLimit float64 // requests per second, 0 disables limiting
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text or json
	File   string // empty logs to stderr
}

type ServerConfig struct {
	Port  int
	Token string
}

type UIConfig struct {
	TickMS int
}

// MaxCacheAge returns the cache TTL as a duration.
func (c Config) MaxCacheAge() time.Duration {
	return time.Duration(c.Cache.MaxAgeDays) * 24 * time.Hour
}

// TimeoutDuration returns the per-request deadline for the OEIS client.
func (c OEISConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(defaultTimeout)
	}
	return d
}

// TickInterval returns the idle frame budget of the interactive loop.
func (c UIConfig) TickInterval() time.Duration {
	return time.Duration(c.TickMS) * time.Millisecond
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Cache:   CacheConfig{MaxAgeDays: defaultMaxAgeDays},
		Search:  SearchConfig{ResultsPerPage: defaultResultsPerPage},
		Storage: StorageConfig{DataDir: dataDir},
		OEIS: OEISConfig{
			BaseURL:   "https://oeis.org",
			Timeout:   defaultTimeout,
			RateLimit: defaultRateLimit,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			File:   filepath.Join(dataDir, "oeis.log"),
		},
		Server: ServerConfig{Port: 4100},
		UI:     UIConfig{TickMS: defaultTickMS},
	}
}

// Load reads configuration from the JSON config file at
// $XDG_CONFIG_HOME/oeis/config.json and then from environment variables.
// A .env file in the working directory is loaded first if present; variables
// already set in the environment take precedence over it.
//
// Environment variables (OEIS_*) override file values.
//
// A .env file that exists but cannot be parsed is an error.
func Load() (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}
	return loadWith(newFileBackend(configFilePath())), nil
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func loadWith(b ConfigBackend) Config {
	cfg := defaults()
	applyBackend(&cfg, b)
	applyEnvOverrides(&cfg)
	validate(&cfg)
	return cfg
}

// validate replaces out-of-range values with their defaults.
func validate(cfg *Config) {
	if cfg.Cache.MaxAgeDays <= 0 {
		warnDefault("cache.max_age_days", cfg.Cache.MaxAgeDays, defaultMaxAgeDays)
		cfg.Cache.MaxAgeDays = defaultMaxAgeDays
	}
	if cfg.Search.ResultsPerPage <= 0 {
		warnDefault("search.results_per_page", cfg.Search.ResultsPerPage, defaultResultsPerPage)
		cfg.Search.ResultsPerPage = defaultResultsPerPage
	}
	if d, err := time.ParseDuration(cfg.OEIS.Timeout); err != nil || d <= 0 {
		warnDefault("oeis.timeout", cfg.OEIS.Timeout, defaultTimeout)
		cfg.OEIS.Timeout = defaultTimeout
	}
	if cfg.OEIS.RateLimit < 0 {
		warnDefault("oeis.rate_limit", cfg.OEIS.RateLimit, defaultRateLimit)
		cfg.OEIS.RateLimit = defaultRateLimit
	}
	if cfg.UI.TickMS <= 0 {
		warnDefault("ui.tick_ms", cfg.UI.TickMS, defaultTickMS)
		cfg.UI.TickMS = defaultTickMS
	}
}

func warnDefault(key string, got, def any) {
	fmt.Fprintf(os.Stderr, "[WARN] invalid value %v for %s. Using default value %v.\n", got, key, def)
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "oeis-data"
		}
	}
	return filepath.Join(dir, "oeis")
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "oeis", "config.json")
}
