// Package config loads and validates the bikemon configuration document.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-ble/ble"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/bikemon/internal/devicefactory"
	"github.com/srg/bikemon/internal/telemetry"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel  string          `yaml:"log_level" default:"info"`
	Bike      BikeConfig      `yaml:"bike"`
	Bluetooth BluetoothConfig `yaml:"bluetooth"`
	Parsing   ParsingConfig   `yaml:"parsing"`
}

// BikeConfig identifies the drive unit to connect to.
type BikeConfig struct {
	Name    string `yaml:"name,omitempty"`
	Address string `yaml:"address,omitempty"`
}

// BluetoothConfig selects the BLE backend and the GATT attributes carrying telemetry.
type BluetoothConfig struct {
	Backend                  string        `yaml:"backend" default:"go-ble"`
	ScanTimeout              time.Duration `yaml:"scan_timeout" default:"15s"`
	ConnectTimeout           time.Duration `yaml:"connect_timeout" default:"30s"`
	StatusServiceUUID        string        `yaml:"status_service_uuid"`
	StatusCharacteristicUUID string        `yaml:"status_characteristic_uuid"`
}

// ParsingConfig holds the decoder's locator patterns as byte values.
type ParsingConfig struct {
	AssistPattern  []int          `yaml:"assist_pattern,flow"`
	BatteryPattern []int          `yaml:"battery_pattern,flow"`
	AssistLabels   map[int]string `yaml:"assist_labels,omitempty"`
}

// ConfigurationError lists every problem found in a configuration.
type ConfigurationError struct {
	Reasons []string
}

func (e *ConfigurationError) Error() string {
	if len(e.Reasons) == 0 {
		return "invalid configuration"
	}
	return "invalid configuration: " + strings.Join(e.Reasons, "; ")
}

// Is matches any ConfigurationError.
func (e *ConfigurationError) Is(target error) bool {
	_, ok := target.(*ConfigurationError)
	return ok
}

// ErrInvalid matches every ConfigurationError with errors.Is.
var ErrInvalid = &ConfigurationError{}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "bikemon")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads and parses a YAML config file. Missing fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// LoadDefault loads DefaultConfigPath, falling back to DefaultConfig when it does not exist.
func LoadDefault() (*Config, error) {
	cfg, err := Load(DefaultConfigPath())
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return cfg, err
}

// Parse decodes a YAML document on top of the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// YAML renders the configuration as a YAML document.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate checks everything a live session needs and reports all problems at once.
func (c *Config) Validate() error {
	var reasons []string

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		reasons = append(reasons, fmt.Sprintf("log_level must be %s, got %q", logLevelChoices, c.LogLevel))
	}
	if !devicefactory.IsBackend(c.Bluetooth.Backend) {
		reasons = append(reasons, fmt.Sprintf("bluetooth.backend must be one of %s, got %q",
			strings.Join(devicefactory.Backends(), ", "), c.Bluetooth.Backend))
	}
	if c.Bluetooth.ScanTimeout <= 0 {
		reasons = append(reasons, "bluetooth.scan_timeout must be > 0")
	}
	if c.Bluetooth.ConnectTimeout <= 0 {
		reasons = append(reasons, "bluetooth.connect_timeout must be > 0")
	}
	reasons = append(reasons, uuidReasons("bluetooth.status_service_uuid", c.Bluetooth.StatusServiceUUID)...)
	reasons = append(reasons, uuidReasons("bluetooth.status_characteristic_uuid", c.Bluetooth.StatusCharacteristicUUID)...)
	reasons = append(reasons, c.parsingReasons()...)

	if len(reasons) > 0 {
		return &ConfigurationError{Reasons: reasons}
	}
	return nil
}

// ValidateParsing checks only what offline decoding needs.
func (c *Config) ValidateParsing() error {
	if reasons := c.parsingReasons(); len(reasons) > 0 {
		return &ConfigurationError{Reasons: reasons}
	}
	return nil
}

func (c *Config) parsingReasons() []string {
	var reasons []string
	reasons = append(reasons, patternReasons("parsing.assist_pattern", c.Parsing.AssistPattern)...)
	reasons = append(reasons, patternReasons("parsing.battery_pattern", c.Parsing.BatteryPattern)...)

	codes := make([]int, 0, len(c.Parsing.AssistLabels))
	for code := range c.Parsing.AssistLabels {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		if code < 0 || code > telemetry.MaxAssistMode {
			reasons = append(reasons, fmt.Sprintf("parsing.assist_labels: code %d is outside 0-%d", code, telemetry.MaxAssistMode))
		}
	}
	return reasons
}

func uuidReasons(field, value string) []string {
	if strings.TrimSpace(value) == "" {
		return []string{field + " is required"}
	}
	if _, err := ble.Parse(value); err != nil {
		return []string{fmt.Sprintf("%s: invalid UUID %q", field, value)}
	}
	return nil
}

func patternReasons(field string, pattern []int) []string {
	if len(pattern) == 0 {
		return []string{field + " is required"}
	}
	var reasons []string
	for i, v := range pattern {
		if v < 0 || v > 0xFF {
			reasons = append(reasons, fmt.Sprintf("%s[%d]: %d is not a byte value", field, i, v))
		}
	}
	return reasons
}

// Patterns converts the configured byte values into a decoder PatternConfig.
// Call ValidateParsing first; out-of-range values are truncated to their low byte.
func (c *Config) Patterns() telemetry.PatternConfig {
	return telemetry.NewPatternConfig(toBytes(c.Parsing.AssistPattern), toBytes(c.Parsing.BatteryPattern))
}

func toBytes(values []int) []byte {
	out := make([]byte, len(values))
	for i, v := range values {
		out[i] = byte(v)
	}
	return out
}

// Labels returns the built-in assist labels with configured overrides applied.
func (c *Config) Labels() telemetry.AssistLabels {
	return telemetry.DefaultAssistLabels.Merge(c.Parsing.AssistLabels)
}

// Level returns the configured log level, or Info when it does not parse.
func (c *Config) Level() logrus.Level {
	level, err := ParseLogLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

const logLevelChoices = "debug, info, warn, or error"

// ParseLogLevel parses the log levels bikemon accepts, in the config file and on the
// command line alike.
func ParseLogLevel(s string) (logrus.Level, error) {
	switch s {
	case "debug":
		return logrus.DebugLevel, nil
	case "info":
		return logrus.InfoLevel, nil
	case "warn":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s (must be %s)", s, logLevelChoices)
	}
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
