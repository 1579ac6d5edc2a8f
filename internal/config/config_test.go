package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestDefaults verifies default values when no config file exists.
func TestDefaults(t *testing.T) {
	cfg := loadWith(newFileBackend(filepath.Join(t.TempDir(), "missing.json")))

	if cfg.Cache.MaxAgeDays != 30 {
		t.Errorf("Cache.MaxAgeDays = %d, want 30", cfg.Cache.MaxAgeDays)
	}
	if cfg.Search.ResultsPerPage != 15 {
		t.Errorf("Search.ResultsPerPage = %d, want 15", cfg.Search.ResultsPerPage)
	}
	if cfg.OEIS.BaseURL != "https://oeis.org" {
		t.Errorf("OEIS.BaseURL = %q", cfg.OEIS.BaseURL)
	}
	if cfg.OEIS.TimeoutDuration() != 30*time.Second {
		t.Errorf("OEIS.TimeoutDuration() = %v, want 30s", cfg.OEIS.TimeoutDuration())
	}
	if cfg.MaxCacheAge() != 30*24*time.Hour {
		t.Errorf("MaxCacheAge() = %v", cfg.MaxCacheAge())
	}
	if cfg.UI.TickInterval() != 60*time.Millisecond {
		t.Errorf("UI.TickInterval() = %v", cfg.UI.TickInterval())
	}
}

// TestFileValues verifies values from the JSON config file are applied.
func TestFileValues(t *testing.T) {
	path := writeTempConfig(t, `{
		"cache.max_age_days": 7,
		"search.results_per_page": "25",
		"oeis.rate_limit": 0.5,
		"log.level": "debug",
		"server.token": "ignored"
	}`)

	cfg := loadWith(newFileBackend(path))
	if cfg.Cache.MaxAgeDays != 7 {
		t.Errorf("Cache.MaxAgeDays = %d, want 7", cfg.Cache.MaxAgeDays)
	}
	if cfg.Search.ResultsPerPage != 25 {
		t.Errorf("Search.ResultsPerPage = %d, want 25", cfg.Search.ResultsPerPage)
	}
	if cfg.OEIS.RateLimit != 0.5 {
		t.Errorf("OEIS.RateLimit = %v, want 0.5", cfg.OEIS.RateLimit)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Server.Token != "" {
		t.Errorf("Server.Token = %q, secrets are not read from the file", cfg.Server.Token)
	}
}

// TestEnvOverride verifies that environment variables override file values.
func TestEnvOverride(t *testing.T) {
	path := writeTempConfig(t, `{"cache.max_age_days": 7}`)

	t.Setenv("OEIS_CACHE_MAX_AGE_DAYS", "90")
	t.Setenv("OEIS_SERVER_TOKEN", "secret")
	t.Setenv("OEIS_RATE_LIMIT", "not-a-number")

	cfg := loadWith(newFileBackend(path))
	if cfg.Cache.MaxAgeDays != 90 {
		t.Errorf("Cache.MaxAgeDays = %d, want 90", cfg.Cache.MaxAgeDays)
	}
	if cfg.Server.Token != "secret" {
		t.Errorf("Server.Token = %q, want secret", cfg.Server.Token)
	}
	if cfg.OEIS.RateLimit != defaultRateLimit {
		t.Errorf("OEIS.RateLimit = %v, want default", cfg.OEIS.RateLimit)
	}
}

// TestInvalidValuesFallBack verifies non-positive and unparsable values
// revert to their defaults.
func TestInvalidValuesFallBack(t *testing.T) {
	path := writeTempConfig(t, `{
		"cache.max_age_days": -3,
		"search.results_per_page": "lots",
		"oeis.timeout": "soon",
		"ui.tick_ms": 0
	}`)

	cfg := loadWith(newFileBackend(path))
	if cfg.Cache.MaxAgeDays != 30 {
		t.Errorf("Cache.MaxAgeDays = %d, want 30", cfg.Cache.MaxAgeDays)
	}
	if cfg.Search.ResultsPerPage != 15 {
		t.Errorf("Search.ResultsPerPage = %d, want 15", cfg.Search.ResultsPerPage)
	}
	if cfg.OEIS.Timeout != "30s" {
		t.Errorf("OEIS.Timeout = %q, want 30s", cfg.OEIS.Timeout)
	}
	if cfg.UI.TickMS != 60 {
		t.Errorf("UI.TickMS = %d, want 60", cfg.UI.TickMS)
	}
}

func TestSetKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oeis", "config.json")
	b := newFileBackend(path)

	if err := setKeyWith(b, "search.results_per_page", "20"); err != nil {
		t.Fatalf("setKeyWith: %v", err)
	}
	if err := setKeyWith(b, "oeis.rate_limit", "1.5"); err != nil {
		t.Fatalf("setKeyWith: %v", err)
	}
	if err := setKeyWith(b, "search.results_per_page", "many"); err == nil {
		t.Error("expected error for non-integer value")
	}
	if err := setKeyWith(b, "server.token", "x"); err == nil {
		t.Error("expected error for secret key")
	}
	if err := setKeyWith(b, "nope", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
	for key, value := range map[string]string{
		"cache.max_age_days": "0",
		"oeis.rate_limit":    "-1",
		"oeis.timeout":       "soon",
		"log.level":          "loud",
		"log.format":         "xml",
	} {
		if err := setKeyWith(b, key, value); err == nil {
			t.Errorf("setKeyWith(%s, %q) = nil, want error", key, value)
		}
	}

	cfg := loadWith(newFileBackend(path))
	if cfg.Search.ResultsPerPage != 20 {
		t.Errorf("Search.ResultsPerPage = %d, want 20", cfg.Search.ResultsPerPage)
	}
	if cfg.OEIS.RateLimit != 1.5 {
		t.Errorf("OEIS.RateLimit = %v, want 1.5", cfg.OEIS.RateLimit)
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Server.Token = "secret"
	for _, k := range ShowAll(cfg) {
		if k.Key == "server.token" {
			t.Error("ShowAll exposed server.token")
		}
	}
	if len(ValidKeys()) != len(specs)-1 {
		t.Errorf("ValidKeys() len = %d, want %d", len(ValidKeys()), len(specs)-1)
	}
}

func TestUnsetKeyRestoresDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oeis", "config.json")
	b := newFileBackend(path)

	if err := setKeyWith(b, "cache.max_age_days", "7"); err != nil {
		t.Fatalf("setKeyWith: %v", err)
	}
	cfg := loadWith(newFileBackend(path))
	if cfg.Cache.MaxAgeDays != 7 {
		t.Fatalf("Cache.MaxAgeDays = %d, want 7", cfg.Cache.MaxAgeDays)
	}

	var row KeyInfo
	for _, k := range ShowAll(cfg) {
		if k.Key == "cache.max_age_days" {
			row = k
		}
	}
	if row.Value != "7" || row.Default != "30" {
		t.Errorf("ShowAll row = %+v, want value 7 default 30", row)
	}

	if err := unsetKeyWith(b, "cache.max_age_days"); err != nil {
		t.Fatalf("unsetKeyWith: %v", err)
	}
	if err := unsetKeyWith(b, "server.token"); err == nil {
		t.Error("expected error unsetting a secret key")
	}
	cfg = loadWith(newFileBackend(path))
	if cfg.Cache.MaxAgeDays != 30 {
		t.Errorf("Cache.MaxAgeDays = %d after unset, want 30", cfg.Cache.MaxAgeDays)
	}
}

func TestApplyBackendReportsUnreadableKeys(t *testing.T) {
	path := writeTempConfig(t, `{
		"search.results_per_page": "lots",
		"oeis.rate_limit": true,
		"log.level": "debug"
	}`)

	cfg := defaults()
	skipped := applyBackend(&cfg, newFileBackend(path))
	if len(skipped) != 2 || skipped[0] != "search.results_per_page" || skipped[1] != "oeis.rate_limit" {
		t.Errorf("skipped = %v, want [search.results_per_page oeis.rate_limit]", skipped)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Search.ResultsPerPage != defaultResultsPerPage {
		t.Errorf("Search.ResultsPerPage = %d, want default", cfg.Search.ResultsPerPage)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := loadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("missing .env: %v, want nil", err)
	}

	good := filepath.Join(dir, "good.env")
	if err := os.WriteFile(good, []byte("OEIS_TEST_DOTENV=from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OEIS_TEST_DOTENV", "")
	os.Unsetenv("OEIS_TEST_DOTENV")
	if err := loadDotEnv(good); err != nil {
		t.Fatalf("loadDotEnv: %v", err)
	}
	if got := os.Getenv("OEIS_TEST_DOTENV"); got != "from-file" {
		t.Errorf("OEIS_TEST_DOTENV = %q, want from-file", got)
	}

	bad := filepath.Join(dir, "bad.env")
	if err := os.WriteFile(bad, []byte("OEIS_TEST_BAD='unterminated\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := loadDotEnv(bad); err == nil {
		t.Error("malformed .env: nil error, want error")
	}
}
