// Package config provides configuration loading for the monitor core.
//
// Configuration is a flat map of settings with typed accessors, loadable
// from YAML or JSON. CoreConfig is the resolved, typed view the core
// consumes.
package config

import (
	"time"
)

// Config wraps a map[string]any for type-safe value extraction.
// Accessors return the given default if the key is missing or the value
// cannot be converted to the requested type.
type Config struct {
	data map[string]any
}

// New creates a Config from the given map.
// If data is nil, an empty Config is returned.
func New(data map[string]any) Config {
	if data == nil {
		data = make(map[string]any)
	}
	return Config{data: data}
}

// String returns the string value for key, or defaultVal.
func (c Config) String(key, defaultVal string) string {
	v, ok := c.data[key]
	if !ok {
		return defaultVal
	}
	if s, ok := v.(string); ok {
		return s
	}
	return defaultVal
}

// Int returns the integer value for key, or defaultVal.
//
// Accepts int, int64, and float64 with no fractional part (the JSON
// decoder produces float64 for all numbers).
func (c Config) Int(key string, defaultVal int) int {
	v, ok := c.data[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		if val == float64(int(val)) {
			return int(val)
		}
	}
	return defaultVal
}

// Bool returns the boolean value for key, or defaultVal.
func (c Config) Bool(key string, defaultVal bool) bool {
	v, ok := c.data[key]
	if !ok {
		return defaultVal
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return defaultVal
}

// Duration returns the duration value for key, or defaultVal.
//
// Accepts:
//   - string: parsed with time.ParseDuration
//   - int, int64, float64: interpreted as seconds
//   - time.Duration: used directly
func (c Config) Duration(key string, defaultVal time.Duration) time.Duration {
	v, ok := c.data[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case string:
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	case float64:
		return time.Duration(val * float64(time.Second))
	case int:
		return time.Duration(val) * time.Second
	case int64:
		return time.Duration(val) * time.Second
	case time.Duration:
		return val
	}
	return defaultVal
}

// Has returns true if the key exists.
func (c Config) Has(key string) bool {
	_, ok := c.data[key]
	return ok
}

// Default values for CoreConfig.
const (
	DefaultMaxHoldCount     = 1 << 20
	DefaultDetectorInterval = 100 * time.Millisecond
	DefaultEventBufferSize  = 64
)

// CoreConfig is the typed configuration the monitor core consumes.
type CoreConfig struct {
	// MaxHoldCount bounds reentrant acquisition depth. Exceeding it
	// fails fast with a reentrancy overflow error.
	MaxHoldCount int

	// DetectorInterval is the deadlock watcher poll interval.
	DetectorInterval time.Duration

	// EventBufferSize is the per-subscriber event channel buffer.
	EventBufferSize int

	// HistoryPath is the SQLite file for the audit store.
	// Empty disables persistent history.
	HistoryPath string
}

// DefaultCoreConfig returns the defaults used when no configuration is
// supplied.
func DefaultCoreConfig() CoreConfig {
	return CoreConfig{
		MaxHoldCount:     DefaultMaxHoldCount,
		DetectorInterval: DefaultDetectorInterval,
		EventBufferSize:  DefaultEventBufferSize,
	}
}

// CoreConfigFrom resolves a CoreConfig from a loaded Config, falling back
// to defaults for missing keys.
func CoreConfigFrom(c Config) CoreConfig {
	return CoreConfig{
		MaxHoldCount:     c.Int("max_hold_count", DefaultMaxHoldCount),
		DetectorInterval: c.Duration("detector_interval", DefaultDetectorInterval),
		EventBufferSize:  c.Int("event_buffer_size", DefaultEventBufferSize),
		HistoryPath:      c.String("history_path", ""),
	}
}
