package config

import (
	"fmt"
	"strconv"
	"time"
)

// KeyInfo is one row of `oeis config show`.
type KeyInfo struct {
	Key     string
	EnvVar  string
	Value   string
	Default string
}

// ShowAll lists every non-secret key with its effective and default value.
func ShowAll(cfg Config) []KeyInfo {
	def := defaults()
	var result []KeyInfo
	for _, s := range specs {
		if s.secret {
			continue
		}
		result = append(result, KeyInfo{
			Key:     s.key,
			EnvVar:  s.env,
			Value:   fmt.Sprint(s.extract(cfg)),
			Default: fmt.Sprint(s.extract(def)),
		})
	}
	return result
}

// SetKey validates value and stores it in the config file.
func SetKey(key, value string) error {
	return setKeyWith(newFileBackend(configFilePath()), key, value)
}

// UnsetKey removes key from the config file so its default applies again.
func UnsetKey(key string) error {
	return unsetKeyWith(newFileBackend(configFilePath()), key)
}

func lookupSpec(key string) (keySpec, error) {
	for _, s := range specs {
		if s.key != key {
			continue
		}
		if s.secret {
			return keySpec{}, fmt.Errorf("%s is secret; set it with the %s environment variable", key, s.env)
		}
		return s, nil
	}
	return keySpec{}, fmt.Errorf("unknown config key: %q", key)
}

func setKeyWith(b ConfigBackend, key, value string) error {
	s, err := lookupSpec(key)
	if err != nil {
		return err
	}
	switch s.typ {
	case kInt:
		i, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %w", key, err)
		}
		if i <= 0 {
			return fmt.Errorf("%s must be positive, got %d", key, i)
		}
		return b.SetInt(key, i)
	case kFloat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number for %s: %w", key, err)
		}
		if f < 0 {
			return fmt.Errorf("%s must not be negative, got %v", key, f)
		}
		return b.SetFloat(key, f)
	}
	if err := checkString(key, value); err != nil {
		return err
	}
	return b.SetString(key, value)
}

// checkString rejects values Load would otherwise replace with a default.
func checkString(key, value string) error {
	switch key {
	case "oeis.timeout":
		if d, err := time.ParseDuration(value); err != nil || d <= 0 {
			return fmt.Errorf("%s must be a positive duration such as 30s, got %q", key, value)
		}
	case "log.level":
		switch value {
		case "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("%s must be one of debug, info, warn, error", key)
		}
	case "log.format":
		if value != "text" && value != "json" {
			return fmt.Errorf("%s must be text or json", key)
		}
	}
	return nil
}

func unsetKeyWith(b ConfigBackend, key string) error {
	if _, err := lookupSpec(key); err != nil {
		return err
	}
	return b.Delete(key)
}

// ValidKeys returns the names accepted by SetKey.
func ValidKeys() []string {
	var keys []string
	for _, s := range specs {
		if !s.secret {
			keys = append(keys, s.key)
		}
	}
	return keys
}
