package bitwatch

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Settings are the process-wide options read once at the start of a run
type Settings struct {
	DefaultHashAlgorithm   Algorithm `json:"default_hash_algorithm" yaml:"default_hash_algorithm"`
	AutoRunIntervalMinutes int       `json:"auto_run_interval_minutes" yaml:"auto_run_interval_minutes"`
	ExcludedDisplayColor   string    `json:"excluded_display_color" yaml:"excluded_display_color"`
}

// SettingKeys lists the recognised setting keys
var SettingKeys = []string{
	SettingDefaultHashAlgorithm,
	SettingAutoRunInterval,
	SettingExcludedDisplayColor,
}

// BuiltinSettings returns the compiled-in defaults
func BuiltinSettings() Settings {
	return Settings{
		DefaultHashAlgorithm:   DefaultHashAlgorithm,
		AutoRunIntervalMinutes: DefaultAutoRunIntervalMins,
		ExcludedDisplayColor:   DefaultExcludedDisplayColor,
	}
}

// AutoRunInterval returns the auto-run period as a duration
func (s Settings) AutoRunInterval() time.Duration {
	return time.Duration(s.AutoRunIntervalMinutes) * time.Minute
}

// Value returns the string form of a setting
func (s Settings) Value(key string) (string, error) {
	switch key {
	case SettingDefaultHashAlgorithm:
		return string(s.DefaultHashAlgorithm), nil
	case SettingAutoRunInterval:
		return strconv.Itoa(s.AutoRunIntervalMinutes), nil
	case SettingExcludedDisplayColor:
		return s.ExcludedDisplayColor, nil
	default:
		return "", fmt.Errorf("unknown setting: %s", key)
	}
}

// apply coerces value into the field named by key
func (s *Settings) apply(key, value string) error {
	switch key {
	case SettingDefaultHashAlgorithm:
		alg, err := ParseAlgorithm(value)
		if err != nil {
			return err
		}
		s.DefaultHashAlgorithm = alg
	case SettingAutoRunInterval:
		minutes, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
		if err := ValidateInterval(minutes); err != nil {
			return err
		}
		s.AutoRunIntervalMinutes = minutes
	case SettingExcludedDisplayColor:
		value = strings.TrimSpace(value)
		if value == "" {
			return fmt.Errorf("%s must not be empty", key)
		}
		s.ExcludedDisplayColor = value
	default:
		return fmt.Errorf("unknown setting: %s", key)
	}
	return nil
}

// LoadSettings resolves every setting: the repository value when one was
// saved and coerces cleanly, else the fallback (normally Config.Defaults)
func LoadSettings(ctx context.Context, repo Repository, fallback Settings) (Settings, error) {
	settings := fallback
	for _, key := range SettingKeys {
		value, ok, err := repo.GetSetting(ctx, key)
		if err != nil {
			return fallback, repoErr("get setting", err)
		}
		if !ok {
			continue
		}
		candidate := settings
		if err := candidate.apply(key, value); err == nil {
			settings = candidate
		}
	}
	return settings, nil
}

// SaveSetting coerces value for key and persists its canonical form
func SaveSetting(ctx context.Context, repo Repository, key, value string) error {
	var settings Settings
	if err := settings.apply(key, value); err != nil {
		return err
	}
	canonical, err := settings.Value(key)
	if err != nil {
		return err
	}
	return repoErr("save setting", repo.SaveSetting(ctx, key, canonical))
}
