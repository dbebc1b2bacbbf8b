// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for copilot.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.copilot/config.toml
//   - ~/.copilot/config.json
//   - Built-in defaults
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/copilot-engine/internal/latency"
	"github.com/jeranaias/copilot-engine/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete copilot configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	Engine  EngineConfig  `toml:"engine" json:"engine"`
	Latency LatencyConfig `toml:"latency" json:"latency"`
	Storage StorageConfig `toml:"storage" json:"storage"`
	Server  ServerConfig  `toml:"server" json:"server"`
	Rules   RulesConfig   `toml:"rules" json:"rules"`
	Logging LoggingConfig `toml:"logging" json:"logging"`
}

// EngineConfig controls conversation behaviour.
type EngineConfig struct {
	// TitleMaxRunes bounds conversation titles derived from the first message
	TitleMaxRunes int `toml:"title_max_runes" json:"title_max_runes"`

	// SerializeReplies delivers replies in submission order per conversation
	SerializeReplies bool `toml:"serialize_replies" json:"serialize_replies"`

	// SurfacesEnabled limits which assistant surfaces are started (empty = all)
	SurfacesEnabled []string `toml:"surfaces_enabled" json:"surfaces_enabled"`

	// DefaultSurface is opened first by the chat commands
	DefaultSurface string `toml:"default_surface" json:"default_surface"`
}

// LatencyConfig adjusts the simulated reply delay.
type LatencyConfig struct {
	// Scale multiplies every delay. 0 makes replies immediate.
	Scale float64 `toml:"scale" json:"scale"`

	// Surfaces overrides the rule table policy per surface
	Surfaces map[string]LatencyOverride `toml:"surfaces" json:"surfaces,omitempty"`
}

// LatencyOverride replaces one surface's latency policy.
type LatencyOverride struct {
	BaseMs    int `toml:"base_ms" json:"base_ms"`
	PerCharMs int `toml:"per_char_ms" json:"per_char_ms"`
	MaxMs     int `toml:"max_ms" json:"max_ms"`
}

// StorageConfig selects where conversations are persisted.
type StorageConfig struct {
	// Backend is one of: memory, json, sqlite
	Backend string `toml:"backend" json:"backend"`

	// DataDir holds conversation files or the database
	DataDir string `toml:"data_dir" json:"data_dir"`

	// MaxConversations limits persisted conversations (0 = unlimited)
	MaxConversations int `toml:"max_conversations" json:"max_conversations"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr                string  `toml:"addr" json:"addr"`
	RatePerSec          float64 `toml:"rate_per_sec" json:"rate_per_sec"`
	Burst               int     `toml:"burst" json:"burst"`
	MaxBodyBytes        int64   `toml:"max_body_bytes" json:"max_body_bytes"`
	ShutdownTimeoutSecs int     `toml:"shutdown_timeout_secs" json:"shutdown_timeout_secs"`
}

// RulesConfig points at additional rule tables.
type RulesConfig struct {
	// ExtraDir holds *.yaml tables loaded at start-up (empty = none)
	ExtraDir string `toml:"extra_dir" json:"extra_dir"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	// Level is one of: debug, info, warn, error
	Level string `toml:"level" json:"level"`

	// Format is json or console
	Format string `toml:"format" json:"format"`

	// File receives log output; empty means stderr
	File string `toml:"file" json:"file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version: "1",
		Engine: EngineConfig{
			TitleMaxRunes:    50,
			SerializeReplies: true,
			DefaultSurface:   "insights",
		},
		Latency: LatencyConfig{
			Scale: 1.0,
		},
		Storage: StorageConfig{
			Backend:          "json",
			DataDir:          defaultDataDir(),
			MaxConversations: 100,
		},
		Server: ServerConfig{
			Addr:                ":8790",
			RatePerSec:          20,
			Burst:               40,
			MaxBodyBytes:        64 << 10,
			ShutdownTimeoutSecs: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the copilot configuration directory path.
// COPILOT_CONFIG_DIR overrides the default ~/.copilot.
func ConfigDir() (string, error) {
	if dir := os.Getenv("COPILOT_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".copilot"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

func defaultDataDir() string {
	dir, err := ConfigDir()
	if err != nil {
		return filepath.Join(".copilot", "data")
	}
	return filepath.Join(dir, "data")
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	var loadErr error

	for _, pathFn := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		path, err := pathFn()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		cfg, err := LoadFromPath(path)
		if err == nil {
			return cfg, nil
		}
		if loadErr == nil {
			loadErr = err
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Return defaults (with any load error for informational purposes)
	return cfg, loadErr
}

// LoadTOML decodes a TOML file over cfg.
func LoadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file with full
// validation. Keys missing from the file keep their default values.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(strings.ToLower(path), ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration atomically as TOML.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# copilot configuration file\n")
	buf.WriteString("# Generated by copilot - edit with care\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON writes the configuration atomically as JSON.
func SaveJSON(cfg *Config, path string) error {
	if err := util.AtomicWriteJSON(path, cfg, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var (
	validBackends   = map[string]bool{"memory": true, "json": true, "sqlite": true}
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"json": true, "console": true}
)

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	// Engine
	if c.Engine.TitleMaxRunes < 4 || c.Engine.TitleMaxRunes > 500 {
		errs = append(errs, ValidationError{
			Field:   "engine.title_max_runes",
			Message: fmt.Sprintf("must be between 4 and 500, got %d", c.Engine.TitleMaxRunes),
		})
	}
	for _, name := range c.Engine.SurfacesEnabled {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, ValidationError{
				Field:   "engine.surfaces_enabled",
				Message: "surface names must not be blank",
			})
			break
		}
	}

	// Latency
	if c.Latency.Scale < 0 || c.Latency.Scale > 100 {
		errs = append(errs, ValidationError{
			Field:   "latency.scale",
			Message: fmt.Sprintf("must be between 0 and 100, got %g", c.Latency.Scale),
		})
	}
	for _, name := range sortedKeys(c.Latency.Surfaces) {
		o := c.Latency.Surfaces[name]
		if err := latency.FromMillis(o.BaseMs, o.PerCharMs, o.MaxMs).Validate(); err != nil {
			errs = append(errs, ValidationError{
				Field:   "latency.surfaces." + name,
				Message: err.Error(),
			})
		}
	}

	// Storage
	if !validBackends[strings.ToLower(c.Storage.Backend)] {
		errs = append(errs, ValidationError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("invalid backend '%s', must be one of: memory, json, sqlite", c.Storage.Backend),
		})
	}
	if c.Storage.Backend != "memory" && c.Storage.DataDir == "" {
		errs = append(errs, ValidationError{
			Field:   "storage.data_dir",
			Message: "required for persistent backends",
		})
	}
	if c.Storage.MaxConversations < 0 {
		errs = append(errs, ValidationError{
			Field:   "storage.max_conversations",
			Message: "must not be negative",
		})
	}

	// Server
	if c.Server.Addr == "" {
		errs = append(errs, ValidationError{Field: "server.addr", Message: "must not be empty"})
	}
	if c.Server.RatePerSec < 0 {
		errs = append(errs, ValidationError{Field: "server.rate_per_sec", Message: "must not be negative"})
	}
	if c.Server.RatePerSec > 0 && c.Server.Burst < 1 {
		errs = append(errs, ValidationError{Field: "server.burst", Message: "must be at least 1 when rate limiting is enabled"})
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, ValidationError{Field: "server.max_body_bytes", Message: "must be positive"})
	}

	// Logging
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}
	if !validLogFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid format '%s', must be one of: json, console", c.Logging.Format),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults sets default values for any missing or zero-value fields.
// Booleans and latency.scale are left alone because their zero values are
// meaningful.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}
	if c.Engine.TitleMaxRunes == 0 {
		c.Engine.TitleMaxRunes = defaults.Engine.TitleMaxRunes
	}
	if c.Engine.DefaultSurface == "" {
		c.Engine.DefaultSurface = defaults.Engine.DefaultSurface
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = defaults.Storage.Backend
	}
	c.Storage.Backend = strings.ToLower(c.Storage.Backend)
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = defaults.Storage.DataDir
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaults.Server.Addr
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = defaults.Server.MaxBodyBytes
	}
	if c.Server.ShutdownTimeoutSecs == 0 {
		c.Server.ShutdownTimeoutSecs = defaults.Server.ShutdownTimeoutSecs
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	if c.Logging.Format == "" {
		c.Logging.Format = defaults.Logging.Format
	}
	c.Logging.Format = strings.ToLower(c.Logging.Format)
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - COPILOT_LOG_LEVEL: overrides logging.level
//   - COPILOT_LOG_FORMAT: overrides logging.format
//   - COPILOT_STORAGE: overrides storage.backend
//   - COPILOT_DATA_DIR: overrides storage.data_dir
//   - COPILOT_ADDR: overrides server.addr
//   - COPILOT_LATENCY_SCALE: overrides latency.scale
//   - COPILOT_SERIALIZE: set to "1"/"true" or "0"/"false" for engine.serialize_replies
func (c *Config) ApplyEnvOverrides() {
	if level := os.Getenv("COPILOT_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if format := os.Getenv("COPILOT_LOG_FORMAT"); format != "" {
		c.Logging.Format = format
	}
	if backend := os.Getenv("COPILOT_STORAGE"); backend != "" {
		c.Storage.Backend = backend
	}
	if dir := os.Getenv("COPILOT_DATA_DIR"); dir != "" {
		c.Storage.DataDir = dir
	}
	if addr := os.Getenv("COPILOT_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if scale := os.Getenv("COPILOT_LATENCY_SCALE"); scale != "" {
		if v, err := strconv.ParseFloat(scale, 64); err == nil {
			c.Latency.Scale = v
		}
	}
	if serialize := os.Getenv("COPILOT_SERIALIZE"); serialize != "" {
		c.Engine.SerializeReplies = parseBool(serialize)
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "1" || s == "true" || s == "yes" || s == "on"
}

// =============================================================================
// ENGINE HELPERS
// =============================================================================

// SurfaceEnabled reports whether name should be started.
func (c *Config) SurfaceEnabled(name string) bool {
	if len(c.Engine.SurfacesEnabled) == 0 {
		return true
	}
	for _, s := range c.Engine.SurfacesEnabled {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return true
		}
	}
	return false
}

// PolicyFor returns the latency policy for surface: the configured override
// if present, otherwise base, scaled by latency.scale.
func (c *Config) PolicyFor(surface string, base latency.Policy) latency.Policy {
	p := base
	if o, ok := c.Latency.Surfaces[surface]; ok {
		p = latency.FromMillis(o.BaseMs, o.PerCharMs, o.MaxMs)
	}
	return p.Scaled(c.Latency.Scale)
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "server.addr").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "latency.scale").
// String values are converted to the field's type.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			field.SetBool(parseBool(strVal))
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				var items []string
				for _, item := range strings.Split(strVal, ",") {
					if item = strings.TrimSpace(item); item != "" {
						items = append(items, item)
					}
				}
				field.Set(reflect.ValueOf(items))
				return nil
			}
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// GetAllKeys returns all scalar configuration keys in dot notation.
func GetAllKeys() []string {
	return []string{
		"version",
		"engine.title_max_runes",
		"engine.serialize_replies",
		"engine.surfaces_enabled",
		"engine.default_surface",
		"latency.scale",
		"storage.backend",
		"storage.data_dir",
		"storage.max_conversations",
		"server.addr",
		"server.rate_per_sec",
		"server.burst",
		"server.max_body_bytes",
		"server.shutdown_timeout_secs",
		"rules.extra_dir",
		"logging.level",
		"logging.format",
		"logging.file",
	}
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Engine.SurfacesEnabled != nil {
		clone.Engine.SurfacesEnabled = append([]string(nil), c.Engine.SurfacesEnabled...)
	}
	if c.Latency.Surfaces != nil {
		clone.Latency.Surfaces = make(map[string]LatencyOverride, len(c.Latency.Surfaces))
		for k, v := range c.Latency.Surfaces {
			clone.Latency.Surfaces[k] = v
		}
	}
	return &clone
}

// String returns the configuration as indented JSON.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

func sortedKeys(m map[string]LatencyOverride) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		}
		if cfg == nil {
			cfg = Default()
		}
		globalConfigMu.Lock()
		if globalConfig == nil {
			globalConfig = cfg
		}
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads configuration from disk into the global instance.
func ReloadGlobal() error {
	cfg, err := Load()
	if cfg == nil {
		return err
	}
	globalConfigMu.Lock()
	globalConfig = cfg
	globalConfigMu.Unlock()
	return err
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
// This should only be used in tests to reset state between test runs.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
