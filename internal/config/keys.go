package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "cache.max_age_days", typ: kInt, env: "OEIS_CACHE_MAX_AGE_DAYS",
		apply:   func(cfg *Config, v any) { cfg.Cache.MaxAgeDays = v.(int) },
		extract: func(cfg Config) any { return cfg.Cache.MaxAgeDays },
	},
	{
		key: "search.results_per_page", typ: kInt, env: "OEIS_SEARCH_RESULTS_PER_PAGE",
		apply:   func(cfg *Config, v any) { cfg.Search.ResultsPerPage = v.(int) },
		extract: func(cfg Config) any { return cfg.Search.ResultsPerPage },
	},
	{
		key: "storage.data_dir", typ: kString, env: "OEIS_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "oeis.base_url", typ: kString, env: "OEIS_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.OEIS.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.OEIS.BaseURL },
	},
	{
		key: "oeis.timeout", typ: kString, env: "OEIS_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.OEIS.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.OEIS.Timeout },
	},
	{
		key: "oeis.rate_limit", typ: kFloat, env: "OEIS_RATE_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.OEIS.RateLimit = v.(float64) },
		extract: func(cfg Config) any { return cfg.OEIS.RateLimit },
	},
	{
		key: "log.level", typ: kString, env: "OEIS_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.format", typ: kString, env: "OEIS_LOG_FORMAT",
		apply:   func(cfg *Config, v any) { cfg.Log.Format = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Format },
	},
	{
		key: "log.file", typ: kString, env: "OEIS_LOG_FILE",
		apply:   func(cfg *Config, v any) { cfg.Log.File = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.File },
	},
	{
		key: "server.port", typ: kInt, env: "OEIS_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.token", typ: kString, env: "OEIS_SERVER_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Token },
	},
	{
		key: "ui.tick_ms", typ: kInt, env: "OEIS_UI_TICK_MS",
		apply:   func(cfg *Config, v any) { cfg.UI.TickMS = v.(int) },
		extract: func(cfg Config) any { return cfg.UI.TickMS },
	},
}

// applyBackend copies stored values into cfg. Values that cannot be read
// are reported on stderr and skipped so the default stays in effect; their
// keys are returned.
func applyBackend(cfg *Config, b ConfigBackend) (skipped []string) {
	for _, s := range specs {
		if s.secret {
			continue
		}
		var (
			v   any
			ok  bool
			err error
		)
		switch s.typ {
		case kString:
			v, ok, err = b.GetString(s.key)
		case kInt:
			v, ok, err = b.GetInt(s.key)
		case kFloat:
			v, ok, err = b.GetFloat(s.key)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not read config key %s: %v. Using default value.\n", s.key, err)
			skipped = append(skipped, s.key)
			continue
		}
		if ok {
			s.apply(cfg, v)
		}
	}
	return skipped
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
