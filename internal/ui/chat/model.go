// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/copilot-engine/internal/assistant"
	"github.com/jeranaias/copilot-engine/internal/model"
	"github.com/jeranaias/copilot-engine/internal/session"
	"github.com/jeranaias/copilot-engine/internal/ui/components"
	"github.com/jeranaias/copilot-engine/internal/ui/styles"
)

// =============================================================================
// CHAT STATE
// =============================================================================

// Mode is what the main area currently shows.
type Mode int

const (
	ModeChat    Mode = iota // Transcript and input
	ModeHistory             // Conversation history panel
)

const (
	defaultWidth  = 80
	defaultHeight = 24
	inputLimit    = 2000
)

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
type Model struct {
	hub   *assistant.Hub
	names []string
	idx   int

	// Active surface and its event subscription
	surface     *assistant.Surface
	gen         int
	events      <-chan session.Event
	unsubscribe func()

	theme *styles.Theme
	keys  KeyMap

	width  int
	height int

	mode     Mode
	viewport viewport.Model
	input    textinput.Model
	search   textinput.Model
	spinner  components.Spinner

	history       []model.ConversationMeta
	historyCursor int
	suggestCursor int

	status    string
	statusErr bool
}

// New creates a chat model showing surface. An empty surface selects the
// hub's default.
func New(hub *assistant.Hub, surface string, theme *styles.Theme) (Model, error) {
	if theme == nil {
		theme = styles.NewTheme()
	}
	if surface == "" {
		surface = hub.DefaultSurface()
	}

	m := Model{
		hub:           hub,
		names:         hub.Surfaces(),
		idx:           -1,
		theme:         theme,
		keys:          DefaultKeyMap(),
		width:         defaultWidth,
		height:        defaultHeight,
		viewport:      viewport.New(defaultWidth, defaultHeight-4),
		spinner:       components.NewTypingSpinner(),
		suggestCursor: -1,
	}
	for i, name := range m.names {
		if name == surface {
			m.idx = i
		}
	}
	if m.idx < 0 {
		return Model{}, fmt.Errorf("%w: %s", assistant.ErrUnknownSurface, surface)
	}

	m.input = textinput.New()
	m.input.Prompt = ""
	m.input.Placeholder = "Ask me anything..."
	m.input.CharLimit = inputLimit
	m.input.Focus()

	m.search = textinput.New()
	m.search.Prompt = ""
	m.search.Placeholder = "Search conversations"

	if err := m.attach(); err != nil {
		return Model{}, err
	}
	return m, nil
}

// attach opens the surface at m.idx and subscribes to its events.
func (m *Model) attach() error {
	sf, err := m.hub.Open(m.names[m.idx])
	if err != nil {
		return err
	}
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	m.gen++
	m.surface = sf
	m.events, m.unsubscribe = sf.Controller.Subscribe()
	m.suggestCursor = -1
	m.layout()
	return nil
}

// Init starts listening for controller events.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForEvent(m.gen, m.events))
}

// Close releases the event subscription.
func (m Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// =============================================================================
// ACCESSORS
// =============================================================================

// SurfaceName returns the surface being shown.
func (m Model) SurfaceName() string { return m.names[m.idx] }

// Mode returns the current view mode.
func (m Model) Mode() Mode { return m.mode }

// Status returns the status line text.
func (m Model) Status() string { return m.status }

// InputValue returns the current input text.
func (m Model) InputValue() string { return m.input.Value() }

// Active returns a copy of the active conversation.
func (m Model) Active() *model.Conversation {
	return m.surface.Store.Active()
}

// Typing reports whether the typing indicator is shown.
func (m Model) Typing() bool { return m.spinner.IsActive() }

// suggestions returns the suggestions to show, or nil.
func (m Model) suggestions() []string {
	return m.surface.Controller.SuggestionsFor(m.surface.Store.ActiveID())
}
