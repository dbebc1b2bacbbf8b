// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for copilot.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - EngineConfig: Title length, reply ordering and enabled surfaces
//   - LatencyConfig: Delay scaling and per-surface overrides
//   - StorageConfig: Persistence backend selection
//   - ServerConfig: HTTP API address and limits
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (COPILOT_*)
//   - ~/.copilot/config.toml
//   - ~/.copilot/config.json
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	policy := cfg.PolicyFor("rfp", table.Policy())
package config
