// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the copilot command line.
//
// # Commands
//
//	copilot                       Start the TUI (default)
//	copilot tui --surface rfp     Start the TUI on a surface
//	copilot chat                  Line-based chat with input history
//	copilot ask "question"        Single exchange, waits for the reply
//	copilot serve --addr :8790    HTTP API
//	copilot rules list|show|test  Inspect rule tables
//	copilot sessions ...          Manage persisted conversations
//	copilot config show|get|set   Configuration
//
// Global flags are --config, --data-dir and --verbose. The TUI and chat
// commands log to a file so log lines never interleave with the screen.
package cli
