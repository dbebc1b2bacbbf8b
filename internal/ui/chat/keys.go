// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

// =============================================================================
// KEY MAP DEFINITION
// =============================================================================

// KeyMap defines all keyboard bindings for the chat interface.
type KeyMap struct {
	Submit      key.Binding
	PrevSuggest key.Binding
	NextSuggest key.Binding
	NextSurface key.Binding
	PrevSurface key.Binding
	NewConv     key.Binding
	DeleteConv  key.Binding
	History     key.Binding
	Close       key.Binding
	PageUp      key.Binding
	PageDown    key.Binding
	Quit        key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		PrevSuggest: key.NewBinding(
			key.WithKeys("up"),
			key.WithHelp("up", "previous"),
		),
		NextSuggest: key.NewBinding(
			key.WithKeys("down"),
			key.WithHelp("down", "next"),
		),
		NextSurface: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "next assistant"),
		),
		PrevSurface: key.NewBinding(
			key.WithKeys("shift+tab"),
			key.WithHelp("S-tab", "previous assistant"),
		),
		NewConv: key.NewBinding(
			key.WithKeys("ctrl+n"),
			key.WithHelp("C-n", "new"),
		),
		DeleteConv: key.NewBinding(
			key.WithKeys("ctrl+d"),
			key.WithHelp("C-d", "delete"),
		),
		History: key.NewBinding(
			key.WithKeys("ctrl+h"),
			key.WithHelp("C-h", "history"),
		),
		Close: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "close"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("PgUp", "scroll up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("PgDn", "scroll down"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "ctrl+q"),
			key.WithHelp("C-c", "quit"),
		),
	}
}

// ShortHelp returns the bindings shown in the status bar.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Submit, k.NextSurface, k.NewConv, k.DeleteConv, k.History, k.Quit}
}

// HelpLine renders bindings as "key desc" pairs separated by two spaces.
func HelpLine(bindings []key.Binding, keyStyle func(string) string) string {
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		k := h.Key
		if keyStyle != nil {
			k = keyStyle(k)
		}
		parts = append(parts, k+" "+h.Desc)
	}
	return strings.Join(parts, "  ")
}
