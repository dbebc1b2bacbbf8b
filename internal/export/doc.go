// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes conversations to files for sharing outside copilot.
//
// # Supported Formats
//
//   - Markdown: human-readable, optional YAML front matter
//   - JSON: the full conversation, suitable for re-import
//   - HTML: a self-contained page with actions as buttons and payloads as tables
//
// # Usage
//
//	exporter, err := export.ForFormat("html", export.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	path, err := export.ToFile(conv, exporter, "./exports")
package export
