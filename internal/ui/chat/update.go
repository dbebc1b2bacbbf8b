// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/copilot-engine/internal/model"
	"github.com/jeranaias/copilot-engine/internal/storage"
)

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			m.Close()
			return m, tea.Quit
		}
		if m.mode == ModeHistory {
			return m.handleHistoryKey(msg)
		}
		return m.handleKey(msg)

	case EventMsg:
		if msg.Gen != m.gen {
			return m, nil
		}
		cmd := m.refresh()
		return m, tea.Batch(cmd, waitForEvent(m.gen, m.events))

	case SubscriptionClosedMsg:
		if msg.Gen == m.gen {
			m.spinner.Stop()
			m.setStatus("Assistant closed", true)
		}
		return m, nil

	case StatusMsg:
		m.setStatus(msg.Text, msg.Error)
		return m, nil
	}

	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	return m, cmd
}

// =============================================================================
// CHAT KEYS
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Submit):
		return m.submit()

	case key.Matches(msg, m.keys.NextSurface):
		return m.switchSurface(1)

	case key.Matches(msg, m.keys.PrevSurface):
		return m.switchSurface(-1)

	case key.Matches(msg, m.keys.NewConv):
		m.surface.Controller.NewConversation()
		m.setStatus("New conversation", false)
		cmd := m.refresh()
		return m, cmd

	case key.Matches(msg, m.keys.DeleteConv):
		err := m.surface.Controller.Delete(m.surface.Store.ActiveID())
		switch {
		case errors.Is(err, storage.ErrLastConversation):
			m.setStatus("Cannot delete the last conversation", true)
		case err != nil:
			m.setStatus(err.Error(), true)
		default:
			m.setStatus("Conversation deleted", false)
		}
		cmd := m.refresh()
		return m, cmd

	case key.Matches(msg, m.keys.History):
		m.mode = ModeHistory
		m.input.Blur()
		m.search.SetValue("")
		m.search.Focus()
		m.loadHistory()
		return m, nil

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil

	case key.Matches(msg, m.keys.PrevSuggest), key.Matches(msg, m.keys.NextSuggest):
		if m.cycleSuggestion(key.Matches(msg, m.keys.NextSuggest)) {
			return m, nil
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := m.input.Value()
	if _, ok := m.surface.Controller.Submit(context.Background(), text); !ok {
		if m.surface.Controller.Closed() {
			m.setStatus("Assistant closed", true)
		}
		return m, nil
	}
	m.input.Reset()
	m.suggestCursor = -1
	m.setStatus("", false)
	cmd := m.refresh()
	return m, cmd
}

// cycleSuggestion fills the input with the next or previous suggestion.
// It reports false when suggestions are not on offer.
func (m *Model) cycleSuggestion(forward bool) bool {
	suggestions := m.suggestions()
	if len(suggestions) == 0 {
		return false
	}
	if m.input.Value() != "" && m.suggestCursor < 0 {
		return false
	}
	n := len(suggestions)
	switch {
	case m.suggestCursor < 0 && forward:
		m.suggestCursor = 0
	case m.suggestCursor < 0:
		m.suggestCursor = n - 1
	case forward:
		m.suggestCursor = (m.suggestCursor + 1) % n
	default:
		m.suggestCursor = (m.suggestCursor - 1 + n) % n
	}
	m.input.SetValue(suggestions[m.suggestCursor])
	m.input.CursorEnd()
	return true
}

func (m Model) switchSurface(delta int) (tea.Model, tea.Cmd) {
	if len(m.names) < 2 {
		return m, nil
	}
	prev := m.idx
	m.idx = (m.idx + delta + len(m.names)) % len(m.names)
	if err := m.attach(); err != nil {
		m.idx = prev
		m.setStatus(err.Error(), true)
		return m, nil
	}
	m.input.Reset()
	m.setStatus(m.surface.Title(), false)
	cmd := m.refresh()
	return m, tea.Batch(cmd, waitForEvent(m.gen, m.events))
}

// =============================================================================
// HISTORY KEYS
// =============================================================================

func (m Model) handleHistoryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Close), key.Matches(msg, m.keys.History):
		m.closeHistory()
		return m, nil

	case key.Matches(msg, m.keys.PrevSuggest):
		if m.historyCursor > 0 {
			m.historyCursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.NextSuggest):
		if m.historyCursor < len(m.history)-1 {
			m.historyCursor++
		}
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		if len(m.history) > 0 {
			id := m.history[m.historyCursor].ID
			if err := m.surface.Controller.Select(id); err != nil {
				m.setStatus(err.Error(), true)
			} else {
				m.setStatus("Opened "+m.history[m.historyCursor].Title, false)
			}
		}
		m.closeHistory()
		cmd := m.refresh()
		return m, cmd
	}

	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.loadHistory()
	return m, cmd
}

func (m *Model) loadHistory() {
	convs := m.surface.Store.Search(m.search.Value())
	m.history = make([]model.ConversationMeta, len(convs))
	for i, c := range convs {
		m.history[i] = c.Meta()
	}
	if m.historyCursor >= len(m.history) {
		m.historyCursor = len(m.history) - 1
	}
	if m.historyCursor < 0 {
		m.historyCursor = 0
	}
}

func (m *Model) closeHistory() {
	m.mode = ModeChat
	m.search.Blur()
	m.input.Focus()
	m.layout()
}

// =============================================================================
// STATE HELPERS
// =============================================================================

// refresh re-renders the transcript and syncs the typing indicator.
func (m *Model) refresh() tea.Cmd {
	var cmd tea.Cmd
	if m.surface.Controller.Pending(m.surface.Store.ActiveID()) {
		cmd = m.spinner.Start()
	} else {
		m.spinner.Stop()
	}
	m.layout()
	return cmd
}

func (m *Model) setStatus(text string, isErr bool) {
	m.status = text
	m.statusErr = isErr
}
