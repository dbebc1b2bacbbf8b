// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the copilot TUI.
//
// Colors are lipgloss.AdaptiveColor values so the same palette works on
// light and dark terminals. Theme groups the styles used by the chat view;
// Theme.Action maps an action variant to its button style.
package styles
