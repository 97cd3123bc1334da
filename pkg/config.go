package bitwatch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-ini/ini"
)

// Config represents the bitwatch configuration file
type Config struct {
	configPath string
	ini        *ini.File
}

// HashConfig represents hash algorithm configuration
type HashConfig struct {
	Default string // Default hash algorithm
	Buffer  string // Read buffer size for streaming hashes (e.g. "2M")
}

// ScheduleConfig represents the periodic auto-run configuration
type ScheduleConfig struct {
	IntervalMinutes int // Minutes between automatic verify runs
}

// DisplayConfig represents presentation hints handed to front ends
type DisplayConfig struct {
	ExcludedColor string // Tint for excluded nodes
}

// DatabaseConfig represents the snapshot repository connection
type DatabaseConfig struct {
	Driver string // sqlite or postgres
	DSN    string // File path for sqlite, connection URL for postgres
}

// LogSectionConfig represents logging configuration
type LogSectionConfig struct {
	Level  string
	Format string
	Output string
}

// MetricsConfig represents the Prometheus endpoint configuration
type MetricsConfig struct {
	Listen string // Empty disables the endpoint
}

// SymlinkConfig represents symlink handling configuration
type SymlinkConfig struct {
	Mode string // none or all
}

// AllConfig represents all configuration options
type AllConfig struct {
	Hash     *HashConfig
	Schedule *ScheduleConfig
	Display  *DisplayConfig
	Database *DatabaseConfig
	Log      *LogSectionConfig
	Metrics  *MetricsConfig
	Symlink  *SymlinkConfig
}

// configDefaults lists section, key and default value for every option
var configDefaults = []struct {
	section string
	key     string
	value   string
}{
	{"filehash", "default", string(DefaultHashAlgorithm)},
	{"filehash", "hash_buffer", DefaultHashBuffer},
	{"schedule", "auto_run_interval_minutes", fmt.Sprintf("%d", DefaultAutoRunIntervalMins)},
	{"display", "excluded_color", DefaultExcludedDisplayColor},
	{"database", "driver", "sqlite"},
	{"database", "dsn", "bitwatch.db"},
	{"log", "level", "warn"},
	{"log", "format", "console"},
	{"log", "output", ""},
	{"metrics", "listen", ""},
	{"symlink", "mode", SymlinkModeNone},
}

// DefaultConfigPath returns the configuration file location used when none
// is given: $XDG_CONFIG_HOME/bitwatch/config.ini, falling back to the
// working directory
func DefaultConfigPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "bitwatch", "config.ini")
	}
	return "bitwatch.ini"
}

// LoadConfig loads configuration from configPath, creating the file with
// defaults when it does not exist
func LoadConfig(configPath string) (*Config, error) {
	cfg := &Config{
		configPath: configPath,
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg.ini = ini.Empty()
		if err := cfg.setDefaults(); err != nil {
			return nil, fmt.Errorf("failed to set default config: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}
		if err := cfg.Save(); err != nil {
			return nil, fmt.Errorf("failed to save default config: %w", err)
		}
	} else {
		iniFile, err := ini.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		cfg.ini = iniFile
	}

	return cfg, nil
}

// NewDefaultConfig returns an in-memory configuration holding the defaults.
// Save fails unless a path is set with SetPath.
func NewDefaultConfig() *Config {
	cfg := &Config{ini: ini.Empty()}
	if err := cfg.setDefaults(); err != nil {
		// Only fails on duplicate section names, which the table cannot produce
		panic(err)
	}
	return cfg
}

// setDefaults sets default configuration values
func (c *Config) setDefaults() error {
	for _, d := range configDefaults {
		section, err := c.ini.GetSection(d.section)
		if err != nil {
			section, err = c.ini.NewSection(d.section)
			if err != nil {
				return fmt.Errorf("failed to create %s section: %w", d.section, err)
			}
		}
		if _, err := section.NewKey(d.key, d.value); err != nil {
			return fmt.Errorf("failed to set default %s.%s: %w", d.section, d.key, err)
		}
	}
	return nil
}

// Path returns the file the configuration is saved to
func (c *Config) Path() string {
	return c.configPath
}

// SetPath changes the file the configuration is saved to
func (c *Config) SetPath(configPath string) {
	c.configPath = configPath
}

// value returns section.key or the fallback when unset
func (c *Config) value(section, key, fallback string) string {
	if c.ini.HasSection(section) {
		s := c.ini.Section(section)
		if s.HasKey(key) {
			return s.Key(key).String()
		}
	}
	return fallback
}

// GetHashConfig returns the hash configuration
func (c *Config) GetHashConfig() *HashConfig {
	return &HashConfig{
		Default: c.value("filehash", "default", string(DefaultHashAlgorithm)),
		Buffer:  c.value("filehash", "hash_buffer", DefaultHashBuffer),
	}
}

// GetScheduleConfig returns the auto-run configuration
func (c *Config) GetScheduleConfig() *ScheduleConfig {
	scheduleConfig := &ScheduleConfig{
		IntervalMinutes: DefaultAutoRunIntervalMins, // fallback default
	}

	if c.ini.HasSection("schedule") {
		section := c.ini.Section("schedule")
		if section.HasKey("auto_run_interval_minutes") {
			if minutes, err := section.Key("auto_run_interval_minutes").Int(); err == nil && minutes > 0 {
				scheduleConfig.IntervalMinutes = minutes
			}
		}
	}

	return scheduleConfig
}

// GetDisplayConfig returns the display configuration
func (c *Config) GetDisplayConfig() *DisplayConfig {
	return &DisplayConfig{
		ExcludedColor: c.value("display", "excluded_color", DefaultExcludedDisplayColor),
	}
}

// GetDatabaseConfig returns the repository connection configuration
func (c *Config) GetDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		Driver: c.value("database", "driver", "sqlite"),
		DSN:    c.value("database", "dsn", "bitwatch.db"),
	}
}

// GetLogConfig returns the logging configuration
func (c *Config) GetLogConfig() *LogSectionConfig {
	return &LogSectionConfig{
		Level:  c.value("log", "level", "warn"),
		Format: c.value("log", "format", "console"),
		Output: c.value("log", "output", ""),
	}
}

// GetMetricsConfig returns the metrics endpoint configuration
func (c *Config) GetMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		Listen: c.value("metrics", "listen", ""),
	}
}

// GetSymlinkConfig returns the symlink configuration
func (c *Config) GetSymlinkConfig() *SymlinkConfig {
	return &SymlinkConfig{
		Mode: normaliseSymlinkMode(c.value("symlink", "mode", SymlinkModeNone)),
	}
}

// GetAllConfig returns all configuration options
func (c *Config) GetAllConfig() *AllConfig {
	return &AllConfig{
		Hash:     c.GetHashConfig(),
		Schedule: c.GetScheduleConfig(),
		Display:  c.GetDisplayConfig(),
		Database: c.GetDatabaseConfig(),
		Log:      c.GetLogConfig(),
		Metrics:  c.GetMetricsConfig(),
		Symlink:  c.GetSymlinkConfig(),
	}
}

// Defaults returns the settings fallbacks described by the file
func (c *Config) Defaults() Settings {
	settings := BuiltinSettings()
	if alg, err := ParseAlgorithm(c.GetHashConfig().Default); err == nil {
		settings.DefaultHashAlgorithm = alg
	}
	settings.AutoRunIntervalMinutes = c.GetScheduleConfig().IntervalMinutes
	settings.ExcludedDisplayColor = c.GetDisplayConfig().ExcludedColor
	return settings
}

// SetHashDefault sets the default hash algorithm
func (c *Config) SetHashDefault(algorithm string) error {
	if err := ValidateHashAlgorithm(algorithm); err != nil {
		return err
	}
	c.ini.Section("filehash").Key("default").SetValue(algorithm)
	return c.Save()
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	if c.configPath == "" {
		return fmt.Errorf("config has no file path")
	}
	return c.ini.SaveTo(c.configPath)
}

// overrideKeys maps override names to their section and key
var overrideKeys = map[string][2]string{
	"default":     {"filehash", "default"},
	"hash_buffer": {"filehash", "hash_buffer"},
	"interval":    {"schedule", "auto_run_interval_minutes"},
	"color":       {"display", "excluded_color"},
	"driver":      {"database", "driver"},
	"dsn":         {"database", "dsn"},
	"level":       {"log", "level"},
	"format":      {"log", "format"},
	"output":      {"log", "output"},
	"listen":      {"metrics", "listen"},
	"mode":        {"symlink", "mode"},
}

// ApplyOverrides applies command-line overrides to the configuration
// Accepts strings like "default:sha512", "dsn:/tmp/bw.db", "level:debug"
func (c *Config) ApplyOverrides(overrides []string) error {
	for _, override := range overrides {
		parts := strings.SplitN(override, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid override format '%s', expected 'key:value'", override)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		target, ok := overrideKeys[key]
		if !ok {
			return fmt.Errorf("unsupported override key '%s' (supported: default, hash_buffer, interval, color, driver, dsn, level, format, output, listen, mode)", key)
		}
		c.ini.Section(target[0]).Key(target[1]).SetValue(value)
	}

	return nil
}

// Validate checks every value that has a restricted domain
func (c *Config) Validate() error {
	all := c.GetAllConfig()
	if err := ValidateHashAlgorithm(all.Hash.Default); err != nil {
		return err
	}
	if _, err := ParseHumanSize(all.Hash.Buffer); err != nil {
		return fmt.Errorf("invalid hash_buffer: %w", err)
	}
	if err := ValidateDriver(all.Database.Driver); err != nil {
		return err
	}
	return ValidateSymlinkMode(all.Symlink.Mode)
}

// ValidateHashAlgorithm validates that a hash algorithm is supported
func ValidateHashAlgorithm(algorithm string) error {
	_, err := ParseAlgorithm(algorithm)
	return err
}

// ValidateInterval validates an auto-run interval in minutes
func ValidateInterval(minutes int) error {
	if minutes < 1 {
		return fmt.Errorf("auto-run interval must be at least 1 minute, got: %d", minutes)
	}
	return nil
}

// ValidateSymlinkMode validates that a symlink mode is supported
func ValidateSymlinkMode(mode string) error {
	switch normaliseSymlinkMode(mode) {
	case SymlinkModeNone, SymlinkModeAll:
		return nil
	default:
		return fmt.Errorf("unsupported symlink mode: %s (supported: none, all)", mode)
	}
}

// ValidateDriver validates the repository driver name
func ValidateDriver(driver string) error {
	switch driver {
	case "sqlite", "postgres":
		return nil
	default:
		return fmt.Errorf("unsupported database driver: %s (supported: sqlite, postgres)", driver)
	}
}
