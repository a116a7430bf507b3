// Package bundle provides the allowance state machine value types and the
// pure decision functions that drive monitoring and renewal.
package bundle

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrValidation is returned for malformed manual input or config patches.
var ErrValidation = errors.New("validation failed")

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Config is the runtime tuning of the monitor (value type).
type Config struct {
	BundleSizeMB            float64 `json:"bundle_size_mb" yaml:"bundle_size_mb"`
	AbsoluteMinThresholdMB  float64 `json:"absolute_min_threshold_mb" yaml:"absolute_min_threshold_mb"`
	EstimatorWindowMinutes  int     `json:"estimator_window_minutes" yaml:"estimator_window_minutes"`
	EstimatorMaxEvents      int     `json:"estimator_max_events" yaml:"estimator_max_events"`
	MinCheckIntervalMinutes int     `json:"min_check_interval_minutes" yaml:"min_check_interval_minutes"`
	MaxCheckIntervalMinutes int     `json:"max_check_interval_minutes" yaml:"max_check_interval_minutes"`
	LeadTimeMinutes         int     `json:"lead_time_minutes" yaml:"lead_time_minutes"`
	AutoRenewEnabled        bool    `json:"auto_renew_enabled" yaml:"auto_renew_enabled"`
	DefaultBundleValidHours int     `json:"default_bundle_valid_hours" yaml:"default_bundle_valid_hours"`
	BundleCode              string  `json:"bundle_code" yaml:"bundle_code"`
	ProviderUserID          string  `json:"provider_user_id" yaml:"provider_user_id"`
	ProviderToken           string  `json:"provider_token" yaml:"provider_token"`
	LogLevel                string  `json:"log_level" yaml:"log_level"`
}

// DefaultBundleCode is the provider buying code used when none is configured.
const DefaultBundleCode = "A0DAY01"

// Defaults returns the configuration used when nothing is stored yet.
func Defaults() Config {
	return Config{
		BundleSizeMB:            1024,
		AbsoluteMinThresholdMB:  100,
		EstimatorWindowMinutes:  60,
		EstimatorMaxEvents:      24,
		MinCheckIntervalMinutes: 1,
		MaxCheckIntervalMinutes: 60,
		LeadTimeMinutes:         30,
		AutoRenewEnabled:        true,
		DefaultBundleValidHours: 24 * 30,
		BundleCode:              DefaultBundleCode,
		LogLevel:                "info",
	}
}

// EstimatorWindow returns the estimator window as a duration.
func (c Config) EstimatorWindow() time.Duration {
	return time.Duration(c.EstimatorWindowMinutes) * time.Minute
}

// BundleValidity returns how long a freshly credited bundle stays valid.
func (c Config) BundleValidity() time.Duration {
	return time.Duration(c.DefaultBundleValidHours) * time.Hour
}

// Redacted returns a copy safe for display, with the provider token masked.
func (c Config) Redacted() Config {
	if c.ProviderToken != "" {
		c.ProviderToken = "********"
	}
	return c
}

var logLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

// Validate checks the configuration invariants.
func (c Config) Validate() error {
	switch {
	case !finite(c.BundleSizeMB) || c.BundleSizeMB <= 0:
		return validationf("bundle_size_mb must be positive")
	case !finite(c.AbsoluteMinThresholdMB) || c.AbsoluteMinThresholdMB < 0:
		return validationf("absolute_min_threshold_mb must not be negative")
	case c.EstimatorWindowMinutes <= 0:
		return validationf("estimator_window_minutes must be positive")
	case c.EstimatorMaxEvents <= 0:
		return validationf("estimator_max_events must be positive")
	case c.MinCheckIntervalMinutes <= 0:
		return validationf("min_check_interval_minutes must be positive")
	case c.MinCheckIntervalMinutes > c.MaxCheckIntervalMinutes:
		return validationf("min_check_interval_minutes (%d) exceeds max_check_interval_minutes (%d)",
			c.MinCheckIntervalMinutes, c.MaxCheckIntervalMinutes)
	case c.LeadTimeMinutes < 0:
		return validationf("lead_time_minutes must not be negative")
	case c.DefaultBundleValidHours <= 0:
		return validationf("default_bundle_valid_hours must be positive")
	case strings.TrimSpace(c.BundleCode) == "":
		return validationf("bundle_code is required")
	case c.LogLevel != "" && !logLevels[strings.ToLower(c.LogLevel)]:
		return validationf("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}
	return nil
}

// fieldKind is how a patch value is coerced for a field.
type fieldKind int

const (
	kindFloat fieldKind = iota
	kindInt
	kindBool
	kindString
)

var patchFields = map[string]fieldKind{
	"bundle_size_mb":             kindFloat,
	"absolute_min_threshold_mb":  kindFloat,
	"estimator_window_minutes":   kindInt,
	"estimator_max_events":       kindInt,
	"min_check_interval_minutes": kindInt,
	"max_check_interval_minutes": kindInt,
	"lead_time_minutes":          kindInt,
	"auto_renew_enabled":         kindBool,
	"default_bundle_valid_hours": kindInt,
	"bundle_code":                kindString,
	"provider_user_id":           kindString,
	"provider_token":             kindString,
	"log_level":                  kindString,
}

// IsPatchKey reports whether key is a recognized config field.
func IsPatchKey(key string) bool {
	_, ok := patchFields[key]
	return ok
}

// ApplyPatch merges recognized keys from patch into a copy of c.
// Unknown keys are ignored. A recognized key with a value that cannot be
// coerced, or a merged result that fails Validate, returns ErrValidation
// together with the unchanged config. The returned keys are the applied
// field names in sorted order.
func (c Config) ApplyPatch(patch map[string]any) (Config, []string, error) {
	next := c
	var applied []string

	for key, raw := range patch {
		kind, ok := patchFields[key]
		if !ok {
			continue
		}
		var err error
		switch kind {
		case kindFloat:
			var f float64
			if f, err = coerceFloat(raw); err == nil {
				next.setFloat(key, f)
			}
		case kindInt:
			var n int
			if n, err = coerceInt(raw); err == nil {
				next.setInt(key, n)
			}
		case kindBool:
			var b bool
			if b, err = coerceBool(raw); err == nil {
				next.AutoRenewEnabled = b
			}
		case kindString:
			var s string
			if s, err = coerceString(raw); err == nil {
				next.setString(key, s)
			}
		}
		if err != nil {
			return c, nil, validationf("%s: %v", key, err)
		}
		applied = append(applied, key)
	}

	if err := next.Validate(); err != nil {
		return c, nil, err
	}
	sort.Strings(applied)
	return next, applied, nil
}

func (c *Config) setFloat(key string, v float64) {
	switch key {
	case "bundle_size_mb":
		c.BundleSizeMB = v
	case "absolute_min_threshold_mb":
		c.AbsoluteMinThresholdMB = v
	}
}

func (c *Config) setInt(key string, v int) {
	switch key {
	case "estimator_window_minutes":
		c.EstimatorWindowMinutes = v
	case "estimator_max_events":
		c.EstimatorMaxEvents = v
	case "min_check_interval_minutes":
		c.MinCheckIntervalMinutes = v
	case "max_check_interval_minutes":
		c.MaxCheckIntervalMinutes = v
	case "lead_time_minutes":
		c.LeadTimeMinutes = v
	case "default_bundle_valid_hours":
		c.DefaultBundleValidHours = v
	}
}

func (c *Config) setString(key, v string) {
	switch key {
	case "bundle_code":
		c.BundleCode = v
	case "provider_user_id":
		c.ProviderUserID = v
	case "provider_token":
		c.ProviderToken = v
	case "log_level":
		c.LogLevel = v
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func coerceFloat(v any) (float64, error) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", x.String())
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", x)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
	if !finite(f) {
		return 0, fmt.Errorf("not a finite number")
	}
	return f, nil
}

// coerceInt truncates fractional values toward zero.
func coerceInt(v any) (int, error) {
	if s, ok := v.(string); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n, nil
		}
	}
	f, err := coerceFloat(v)
	if err != nil {
		return 0, err
	}
	if math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("out of range: %v", f)
	}
	return int(f), nil
}

func coerceBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "1", "yes", "on":
			return true, nil
		case "false", "0", "no", "off", "":
			return false, nil
		}
		return false, fmt.Errorf("not a boolean: %q", x)
	}
	f, err := coerceFloat(v)
	if err != nil {
		return false, fmt.Errorf("expected boolean, got %T", v)
	}
	return f != 0, nil
}

func coerceString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x), nil
	case nil:
		return "", fmt.Errorf("expected string, got null")
	case bool, float64, float32, int, int64, json.Number:
		return fmt.Sprint(x), nil
	}
	return "", fmt.Errorf("expected string, got %T", v)
}
