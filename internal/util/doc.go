// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across the copilot engine.
//
// # Key Functions
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe truncation with a "..." marker
//   - TruncateWidth: display-width aware truncation for terminal columns
//   - SingleLine: collapses newlines and runs of whitespace
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync
//
// # Usage
//
//	title := util.TruncateRunes(util.SingleLine(text), 50)
//	err := util.AtomicWriteFile(path, data, 0644)
package util
