// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/jeranaias/copilot-engine/internal/model"
)

// Theme holds all the styled components for the application.
// It detects the terminal's color capability and adjusts accordingly.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	HasTrueColor bool
	ColorProfile termenv.Profile

	// Header
	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	Tab         lipgloss.Style
	TabActive   lipgloss.Style

	// Transcript
	UserLabel      lipgloss.Style
	UserTurn       lipgloss.Style
	AssistantLabel lipgloss.Style
	AssistantTurn  lipgloss.Style
	Bold           lipgloss.Style
	Timestamp      lipgloss.Style

	// Actions by variant
	ActionPrimary   lipgloss.Style
	ActionSecondary lipgloss.Style
	ActionOutline   lipgloss.Style
	ActionGhost     lipgloss.Style

	// Payload table
	PayloadTitle  lipgloss.Style
	PayloadHeader lipgloss.Style
	PayloadCell   lipgloss.Style

	// Suggestions and history
	Suggestion      lipgloss.Style
	HistoryBox      lipgloss.Style
	HistoryItem     lipgloss.Style
	HistorySelected lipgloss.Style
	HistoryPreview  lipgloss.Style

	// Input and status
	InputPrompt lipgloss.Style
	StatusBar   lipgloss.Style
	StatusError lipgloss.Style
	ShortcutKey lipgloss.Style
	Muted       lipgloss.Style
}

// NewTheme creates a new theme with all styles configured.
func NewTheme() *Theme {
	colorProfile := termenv.ColorProfile()
	t := &Theme{
		IsDark:       termenv.HasDarkBackground(),
		HasTrueColor: colorProfile == termenv.TrueColor,
		ColorProfile: colorProfile,
	}
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		Padding(0, 1)
	t.HeaderTitle = lipgloss.NewStyle().Bold(true).Foreground(Purple)
	t.Tab = lipgloss.NewStyle().Foreground(TextSecondary).Padding(0, 1)
	t.TabActive = lipgloss.NewStyle().Bold(true).Foreground(TextInverse).Background(Cyan).Padding(0, 1)

	t.UserLabel = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	t.UserTurn = lipgloss.NewStyle().
		Foreground(UserTurnFg).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(UserTurnBorder).
		PaddingLeft(1)
	t.AssistantLabel = lipgloss.NewStyle().Bold(true).Foreground(Purple)
	t.AssistantTurn = lipgloss.NewStyle().
		Foreground(AssistantTurnFg).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(AssistantTurnBorder).
		PaddingLeft(1)
	t.Bold = lipgloss.NewStyle().Bold(true)
	t.Timestamp = lipgloss.NewStyle().Foreground(TextMuted)

	t.ActionPrimary = lipgloss.NewStyle().Bold(true).Foreground(TextInverse).Background(Emerald)
	t.ActionSecondary = lipgloss.NewStyle().Foreground(TextPrimary).Background(Overlay)
	t.ActionOutline = lipgloss.NewStyle().Foreground(Purple).Underline(true)
	t.ActionGhost = lipgloss.NewStyle().Foreground(TextSecondary)

	t.PayloadTitle = lipgloss.NewStyle().Bold(true).Foreground(TextSecondary)
	t.PayloadHeader = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	t.PayloadCell = lipgloss.NewStyle().Foreground(TextPrimary)

	t.Suggestion = lipgloss.NewStyle().Foreground(Cyan)
	t.HistoryBox = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Purple).
		Padding(0, 1)
	t.HistoryItem = lipgloss.NewStyle().Foreground(TextPrimary)
	t.HistorySelected = lipgloss.NewStyle().Bold(true).Foreground(TextInverse).Background(Purple)
	t.HistoryPreview = lipgloss.NewStyle().Foreground(TextMuted)

	t.InputPrompt = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	t.StatusBar = lipgloss.NewStyle().Foreground(TextSecondary).Background(SurfaceDim).Padding(0, 1)
	t.StatusError = lipgloss.NewStyle().Foreground(Rose)
	t.ShortcutKey = lipgloss.NewStyle().Bold(true).Foreground(Amber)
	t.Muted = lipgloss.NewStyle().Foreground(TextMuted)
}

// Action returns the button style for an action variant.
func (t *Theme) Action(v model.Variant) lipgloss.Style {
	switch v.OrDefault() {
	case model.VariantPrimary:
		return t.ActionPrimary
	case model.VariantOutline:
		return t.ActionOutline
	case model.VariantGhost:
		return t.ActionGhost
	default:
		return t.ActionSecondary
	}
}

// RenderBold applies the bold style; it matches markup.Render's callback.
func (t *Theme) RenderBold(s string) string {
	return t.Bold.Render(s)
}
