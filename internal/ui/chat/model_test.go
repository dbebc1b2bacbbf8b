// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jeranaias/copilot-engine/internal/assistant"
	"github.com/jeranaias/copilot-engine/internal/config"
	"github.com/jeranaias/copilot-engine/internal/rules"
	"github.com/jeranaias/copilot-engine/internal/storage"
	"github.com/jeranaias/copilot-engine/internal/tasks"
	"github.com/jeranaias/copilot-engine/internal/ui/styles"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// =============================================================================
// HARNESS
// =============================================================================

type harness struct {
	hub   *assistant.Hub
	clock *tasks.ManualClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Backend = storage.BackendMemory
	cfg.Engine.SurfacesEnabled = []string{"rfp", "invoice"}

	catalog, err := rules.LoadEmbedded()
	require.NoError(t, err)

	clock := tasks.NewManualClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	hub, err := assistant.NewHub(cfg, catalog, assistant.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(hub.Shutdown)
	return &harness{hub: hub, clock: clock}
}

func (h *harness) model(t *testing.T, surface string) Model {
	t.Helper()
	m, err := New(h.hub, surface, styles.NewTheme())
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return send(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
}

func send(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out
}

func typeText(t *testing.T, m Model, s string) Model {
	t.Helper()
	return send(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

func press(t *testing.T, m Model, k tea.KeyType) Model {
	t.Helper()
	return send(t, m, tea.KeyMsg{Type: k})
}

// drain feeds every buffered controller event through Update.
func drain(t *testing.T, m Model) Model {
	t.Helper()
	for {
		select {
		case ev, ok := <-m.events:
			if !ok {
				return send(t, m, SubscriptionClosedMsg{Gen: m.gen})
			}
			m = send(t, m, EventMsg{Gen: m.gen, Event: ev})
		default:
			return m
		}
	}
}

// =============================================================================
// TESTS
// =============================================================================

func TestNew(t *testing.T) {
	h := newHarness(t)

	m := h.model(t, "")
	assert.Equal(t, "invoice", m.SurfaceName(), "empty surface uses the hub default")
	assert.Equal(t, ModeChat, m.Mode())
	assert.True(t, m.Active().IsFresh())

	_, err := New(h.hub, "jarvis", nil)
	assert.ErrorIs(t, err, assistant.ErrUnknownSurface)
}

func TestSubmitAndReply(t *testing.T) {
	h := newHarness(t)
	m := h.model(t, "rfp")

	m = typeText(t, m, "Who are the top-ranked vendors?")
	m = press(t, m, tea.KeyEnter)

	assert.Empty(t, m.InputValue())
	assert.Equal(t, 2, m.Active().TurnCount())
	assert.True(t, m.Typing())
	assert.Contains(t, m.View(), "Assistant is typing")

	m = drain(t, m)
	assert.True(t, m.Typing(), "reply still pending")

	h.clock.Advance(5 * time.Second)
	m = drain(t, m)

	assert.False(t, m.Typing())
	assert.Equal(t, 3, m.Active().TurnCount())

	view := m.View()
	assert.Contains(t, view, "Stratus Cloud")
	assert.Contains(t, view, "[ Compare vendors ]")
	assert.Contains(t, view, "Weighted")
	assert.NotContains(t, view, "**", "markup is rendered, not shown")
}

func TestSubmitBlankIgnored(t *testing.T) {
	h := newHarness(t)
	m := h.model(t, "rfp")

	m = typeText(t, m, "   ")
	m = press(t, m, tea.KeyEnter)

	assert.Equal(t, "   ", m.InputValue())
	assert.Equal(t, 1, m.Active().TurnCount())
	assert.False(t, m.Typing())
}

func TestSuggestions(t *testing.T) {
	h := newHarness(t)
	m := h.model(t, "rfp")

	assert.Contains(t, m.View(), "Try asking:")

	m = press(t, m, tea.KeyDown)
	assert.Equal(t, "Show me pending RFP evaluations", m.InputValue())
	m = press(t, m, tea.KeyDown)
	assert.Equal(t, "Who are the top-ranked vendors?", m.InputValue())
	m = press(t, m, tea.KeyUp)
	assert.Equal(t, "Show me pending RFP evaluations", m.InputValue())

	m = press(t, m, tea.KeyEnter)
	assert.NotContains(t, m.View(), "Try asking:", "hidden once the user has spoken")
}

func TestSuggestionsKeepTypedText(t *testing.T) {
	h := newHarness(t)
	m := h.model(t, "rfp")

	m = typeText(t, m, "deadl")
	m = press(t, m, tea.KeyDown)
	assert.Equal(t, "deadl", m.InputValue())
}

func TestSwitchSurface(t *testing.T) {
	h := newHarness(t)
	m := h.model(t, "rfp")
	gen := m.gen

	m = press(t, m, tea.KeyTab)
	assert.Equal(t, "invoice", m.SurfaceName())
	assert.NotEqual(t, gen, m.gen)
	assert.Contains(t, m.View(), "invoice")

	// Events from the old subscription are ignored.
	m = send(t, m, EventMsg{Gen: gen})
	m = send(t, m, SubscriptionClosedMsg{Gen: gen})
	assert.NotEqual(t, "Assistant closed", m.Status())

	m = press(t, m, tea.KeyShiftTab)
	assert.Equal(t, "rfp", m.SurfaceName())
}

func TestSwitchSurfaceKeepsPendingReply(t *testing.T) {
	h := newHarness(t)
	m := h.model(t, "rfp")

	m = typeText(t, m, "any compliance gaps?")
	m = press(t, m, tea.KeyEnter)
	m = press(t, m, tea.KeyTab)
	assert.False(t, m.Typing(), "the invoice conversation has nothing pending")

	h.clock.Advance(5 * time.Second)
	m = press(t, m, tea.KeyTab)
	m = drain(t, m)

	assert.Equal(t, "rfp", m.SurfaceName())
	assert.Equal(t, 3, m.Active().TurnCount())
	assert.Contains(t, m.View(), "ISO 27001")
}

func TestNewAndDeleteConversation(t *testing.T) {
	h := newHarness(t)
	m := h.model(t, "rfp")
	sf, err := h.hub.Surface("rfp")
	require.NoError(t, err)

	first := m.Active().ID
	m = press(t, m, tea.KeyCtrlN)
	assert.Equal(t, 2, sf.Store.Len())
	assert.NotEqual(t, first, m.Active().ID)
	assert.Equal(t, "New conversation", m.Status())

	m = press(t, m, tea.KeyCtrlD)
	assert.Equal(t, 1, sf.Store.Len())
	assert.Equal(t, first, m.Active().ID)
	assert.Equal(t, "Conversation deleted", m.Status())

	m = press(t, m, tea.KeyCtrlD)
	assert.Equal(t, 1, sf.Store.Len())
	assert.Equal(t, "Cannot delete the last conversation", m.Status())
	assert.Contains(t, m.View(), "Cannot delete the last conversation")
}

func TestDeleteCancelsPendingReply(t *testing.T) {
	h := newHarness(t)
	m := h.model(t, "rfp")

	m = press(t, m, tea.KeyCtrlN)
	m = typeText(t, m, "pricing")
	m = press(t, m, tea.KeyEnter)
	require.True(t, m.Typing())

	m = press(t, m, tea.KeyCtrlD)
	assert.False(t, m.Typing())

	h.clock.Advance(5 * time.Second)
	m = drain(t, m)
	assert.Equal(t, 1, m.Active().TurnCount())
}

func TestHistoryPanel(t *testing.T) {
	h := newHarness(t)
	m := h.model(t, "rfp")

	m = typeText(t, m, "vendor rankings please")
	m = press(t, m, tea.KeyEnter)
	target := m.Active().ID

	m = press(t, m, tea.KeyCtrlN)
	require.NotEqual(t, target, m.Active().ID)

	m = press(t, m, tea.KeyCtrlH)
	assert.Equal(t, ModeHistory, m.Mode())
	assert.Len(t, m.history, 2)
	assert.Contains(t, m.View(), "vendor rankings please")

	m = typeText(t, m, "PLEASE")
	require.Len(t, m.history, 1)
	assert.Equal(t, target, m.history[0].ID)

	m = press(t, m, tea.KeyEnter)
	assert.Equal(t, ModeChat, m.Mode())
	assert.Equal(t, target, m.Active().ID)
	assert.True(t, m.Typing(), "selected conversation still has a pending reply")
}

func TestHistoryPanelEmptyAndClose(t *testing.T) {
	h := newHarness(t)
	m := h.model(t, "rfp")

	m = press(t, m, tea.KeyCtrlH)
	m = typeText(t, m, "nothing matches this")
	assert.Empty(t, m.history)
	assert.Contains(t, m.View(), "No conversations found")

	active := m.Active().ID
	m = press(t, m, tea.KeyEnter)
	assert.Equal(t, ModeChat, m.Mode())
	assert.Equal(t, active, m.Active().ID)

	m = press(t, m, tea.KeyCtrlH)
	m = press(t, m, tea.KeyEsc)
	assert.Equal(t, ModeChat, m.Mode())
}

func TestClosedSurface(t *testing.T) {
	h := newHarness(t)
	m := h.model(t, "rfp")

	require.NoError(t, h.hub.Close("rfp"))
	m = drain(t, m)
	assert.Equal(t, "Assistant closed", m.Status())

	m = typeText(t, m, "pricing")
	m = press(t, m, tea.KeyEnter)
	assert.Equal(t, "pricing", m.InputValue(), "closed controller declines the message")
}

func TestQuit(t *testing.T) {
	h := newHarness(t)
	m := h.model(t, "rfp")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	_, ok := <-m.events
	assert.False(t, ok, "quitting unsubscribes")
}

func TestRenderPayloadAligned(t *testing.T) {
	h := newHarness(t)
	m := h.model(t, "rfp")

	m = typeText(t, m, "show pending evaluations")
	m = press(t, m, tea.KeyEnter)
	h.clock.Advance(5 * time.Second)
	m = drain(t, m)

	var header, row string
	for _, line := range strings.Split(m.View(), "\n") {
		if strings.Contains(line, "Scores in") {
			header = line
		}
		if strings.Contains(line, "Facilities Management") {
			row = line
		}
	}
	require.NotEmpty(t, header)
	require.NotEmpty(t, row)
	assert.Equal(t, strings.Index(header, "Vendors"), strings.Index(row, "4 "))
}
