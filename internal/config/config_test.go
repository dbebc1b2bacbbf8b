// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/copilot-engine/internal/latency"
)

// isolate points the config directory at a temp dir and clears overrides.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("COPILOT_CONFIG_DIR", dir)
	for _, key := range []string{
		"COPILOT_LOG_LEVEL", "COPILOT_LOG_FORMAT", "COPILOT_STORAGE", "COPILOT_DATA_DIR",
		"COPILOT_ADDR", "COPILOT_LATENCY_SCALE", "COPILOT_SERIALIZE",
	} {
		t.Setenv(key, "")
	}
	return dir
}

// TestConfig_ConcurrentAccess tests that Global() and SetGlobal() can be
// called concurrently. Run with -race.
func TestConfig_ConcurrentAccess(t *testing.T) {
	isolate(t)
	ResetGlobalForTesting()
	defer ResetGlobalForTesting()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c := Default()
			c.Version = "test"
			SetGlobal(c)
		}()
		go func() {
			defer wg.Done()
			if Global() == nil {
				t.Error("Global() returned nil")
			}
		}()
	}
	wg.Wait()
}

func TestConfig_ConcurrentReload(t *testing.T) {
	isolate(t)
	ResetGlobalForTesting()
	defer ResetGlobalForTesting()
	_ = Global()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ReloadGlobal()
		}()
	}
	for i := 0; i < 80; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if Global() == nil {
				t.Error("Global() returned nil")
			}
		}()
	}
	wg.Wait()
}

func TestConfig_SetGlobalOverwrites(t *testing.T) {
	isolate(t)
	ResetGlobalForTesting()
	defer ResetGlobalForTesting()

	c := Default()
	c.Server.Addr = ":9999"
	SetGlobal(c)
	assert.Equal(t, ":9999", Global().Server.Addr)
}

func TestConfig_Default(t *testing.T) {
	isolate(t)
	cfg := Default()

	assert.Equal(t, 50, cfg.Engine.TitleMaxRunes)
	assert.True(t, cfg.Engine.SerializeReplies)
	assert.Equal(t, "insights", cfg.Engine.DefaultSurface)
	assert.Equal(t, 1.0, cfg.Latency.Scale)
	assert.Equal(t, "json", cfg.Storage.Backend)
	assert.Equal(t, ":8790", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Logging.Level)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid default", func(c *Config) {}, ""},
		{"title too short", func(c *Config) { c.Engine.TitleMaxRunes = 2 }, "engine.title_max_runes"},
		{"blank surface name", func(c *Config) { c.Engine.SurfacesEnabled = []string{"rfp", " "} }, "engine.surfaces_enabled"},
		{"negative scale", func(c *Config) { c.Latency.Scale = -1 }, "latency.scale"},
		{"zero scale allowed", func(c *Config) { c.Latency.Scale = 0 }, ""},
		{"bad override", func(c *Config) {
			c.Latency.Surfaces = map[string]LatencyOverride{"rfp": {BaseMs: 900, PerCharMs: 10, MaxMs: 100}}
		}, "latency.surfaces.rfp"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "redis" }, "storage.backend"},
		{"memory without data dir", func(c *Config) { c.Storage.Backend = "memory"; c.Storage.DataDir = "" }, ""},
		{"json without data dir", func(c *Config) { c.Storage.DataDir = "" }, "storage.data_dir"},
		{"negative max conversations", func(c *Config) { c.Storage.MaxConversations = -1 }, "storage.max_conversations"},
		{"empty addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
		{"rate without burst", func(c *Config) { c.Server.Burst = 0 }, "server.burst"},
		{"rate disabled", func(c *Config) { c.Server.RatePerSec = 0; c.Server.Burst = 0 }, ""},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			var verrs ValidateErrors
			assert.ErrorAs(t, err, &verrs)
		})
	}
}

func TestConfig_SetDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.Storage.Backend = "SQLite"
	cfg.SetDefaults()

	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, 50, cfg.Engine.TitleMaxRunes)
	assert.Equal(t, ":8790", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Zero(t, cfg.Latency.Scale, "scale 0 is meaningful and must survive")
	assert.False(t, cfg.Engine.SerializeReplies)
}

func TestConfig_LoadFromPath(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	t.Run("toml keeps unspecified defaults", func(t *testing.T) {
		path := filepath.Join(dir, "config.toml")
		content := `
[engine]
surfaces_enabled = ["rfp", "invoice"]

[latency]
scale = 0

[latency.surfaces.rfp]
base_ms = 100
per_char_ms = 1
max_ms = 500

[storage]
backend = "sqlite"
data_dir = "/tmp/copilot"
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		cfg, err := LoadFromPath(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"rfp", "invoice"}, cfg.Engine.SurfacesEnabled)
		assert.True(t, cfg.Engine.SerializeReplies)
		assert.Zero(t, cfg.Latency.Scale)
		assert.Equal(t, LatencyOverride{BaseMs: 100, PerCharMs: 1, MaxMs: 500}, cfg.Latency.Surfaces["rfp"])
		assert.Equal(t, "sqlite", cfg.Storage.Backend)
		assert.Equal(t, ":8790", cfg.Server.Addr)
	})

	t.Run("json", func(t *testing.T) {
		path := filepath.Join(dir, "config.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"engine":{"serialize_replies":false},"server":{"addr":"127.0.0.1:1"}}`), 0644))

		cfg, err := LoadFromPath(path)
		require.NoError(t, err)
		assert.False(t, cfg.Engine.SerializeReplies)
		assert.Equal(t, "127.0.0.1:1", cfg.Server.Addr)
	})

	t.Run("invalid values rejected", func(t *testing.T) {
		path := filepath.Join(dir, "bad.toml")
		require.NoError(t, os.WriteFile(path, []byte("[storage]\nbackend = \"tape\"\n"), 0644))

		_, err := LoadFromPath(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "storage.backend")
	})

	t.Run("malformed toml", func(t *testing.T) {
		path := filepath.Join(dir, "broken.toml")
		require.NoError(t, os.WriteFile(path, []byte("[engine\n"), 0644))

		_, err := LoadFromPath(path)
		assert.Error(t, err)
	})
}

func TestConfig_LoadFallsBackToDefaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "data"), cfg.Storage.DataDir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("not = [valid"), 0644))
	cfg, err = Load()
	assert.Error(t, err, "load error is reported")
	require.NotNil(t, cfg, "defaults are still returned")
	assert.Equal(t, ":8790", cfg.Server.Addr)
}

func TestConfig_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("COPILOT_LOG_LEVEL", "DEBUG")
	t.Setenv("COPILOT_STORAGE", "memory")
	t.Setenv("COPILOT_ADDR", ":1234")
	t.Setenv("COPILOT_LATENCY_SCALE", "0.5")
	t.Setenv("COPILOT_SERIALIZE", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, ":1234", cfg.Server.Addr)
	assert.Equal(t, 0.5, cfg.Latency.Scale)
	assert.False(t, cfg.Engine.SerializeReplies)
}

func TestConfig_SaveRoundTrip(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	cfg := Default()
	cfg.Engine.SurfacesEnabled = []string{"jarvis"}
	cfg.Latency.Surfaces = map[string]LatencyOverride{"jarvis": {BaseMs: 10, PerCharMs: 1, MaxMs: 20}}

	for _, name := range []string{"config.toml", "config.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if strings.HasSuffix(name, ".json") {
				require.NoError(t, SaveJSON(cfg, path))
			} else {
				require.NoError(t, SaveTOML(cfg, path))
			}
			loaded, err := LoadFromPath(path)
			require.NoError(t, err)
			assert.Equal(t, cfg.Engine, loaded.Engine)
			assert.Equal(t, cfg.Latency, loaded.Latency)
		})
	}
}

func TestConfig_SurfaceEnabled(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.SurfaceEnabled("anything"), "empty list enables all")

	cfg.Engine.SurfacesEnabled = []string{"rfp", "Invoice"}
	assert.True(t, cfg.SurfaceEnabled("rfp"))
	assert.True(t, cfg.SurfaceEnabled("invoice"))
	assert.False(t, cfg.SurfaceEnabled("jarvis"))
}

func TestConfig_PolicyFor(t *testing.T) {
	base := latency.Policy{Base: 800 * time.Millisecond, PerChar: 10 * time.Millisecond, Max: 3 * time.Second}

	cfg := Default()
	assert.Equal(t, base, cfg.PolicyFor("rfp", base))

	cfg.Latency.Scale = 0.5
	assert.Equal(t, 400*time.Millisecond, cfg.PolicyFor("rfp", base).Base)

	cfg.Latency.Scale = 1
	cfg.Latency.Surfaces = map[string]LatencyOverride{"rfp": {BaseMs: 100, PerCharMs: 0, MaxMs: 100}}
	p := cfg.PolicyFor("rfp", base)
	assert.Equal(t, 100*time.Millisecond, p.Delay("a long reply"))
	assert.Equal(t, base, cfg.PolicyFor("invoice", base))

	cfg.Latency.Scale = 0
	assert.Zero(t, cfg.PolicyFor("invoice", base).Delay("anything"))
}

func TestConfig_GetSet(t *testing.T) {
	cfg := Default()

	v, err := cfg.Get("server.addr")
	require.NoError(t, err)
	assert.Equal(t, ":8790", v)

	require.NoError(t, cfg.Set("server.addr", ":9000"))
	assert.Equal(t, ":9000", cfg.Server.Addr)

	require.NoError(t, cfg.Set("engine.title_max_runes", "30"))
	assert.Equal(t, 30, cfg.Engine.TitleMaxRunes)

	require.NoError(t, cfg.Set("latency.scale", "0.25"))
	assert.Equal(t, 0.25, cfg.Latency.Scale)

	require.NoError(t, cfg.Set("engine.serialize_replies", "false"))
	assert.False(t, cfg.Engine.SerializeReplies)

	require.NoError(t, cfg.Set("engine.surfaces_enabled", "rfp, jarvis"))
	assert.Equal(t, []string{"rfp", "jarvis"}, cfg.Engine.SurfacesEnabled)

	require.NoError(t, cfg.Set("server.burst", 7))
	assert.Equal(t, 7, cfg.Server.Burst)

	_, err = cfg.Get("server.nope")
	assert.Error(t, err)
	assert.Error(t, cfg.Set("server.addr.port", "1"))
	assert.Error(t, cfg.Set("engine.title_max_runes", "lots"))
	_, err = cfg.Get("")
	assert.Error(t, err)
}

func TestConfig_AllKeysResolve(t *testing.T) {
	cfg := Default()
	for _, key := range GetAllKeys() {
		_, err := cfg.Get(key)
		assert.NoError(t, err, key)
	}
}

func TestConfig_Clone(t *testing.T) {
	cfg := Default()
	cfg.Engine.SurfacesEnabled = []string{"rfp"}
	cfg.Latency.Surfaces = map[string]LatencyOverride{"rfp": {BaseMs: 1, MaxMs: 2}}

	clone := cfg.Clone()
	clone.Engine.SurfacesEnabled[0] = "changed"
	clone.Latency.Surfaces["rfp"] = LatencyOverride{}
	clone.Server.Addr = ":1"

	assert.Equal(t, "rfp", cfg.Engine.SurfacesEnabled[0])
	assert.Equal(t, 1, cfg.Latency.Surfaces["rfp"].BaseMs)
	assert.Equal(t, ":8790", cfg.Server.Addr)
}

func TestConfig_String(t *testing.T) {
	s := Default().String()
	assert.Contains(t, s, `"serialize_replies": true`)
	assert.Contains(t, s, `"addr": ":8790"`)
}
