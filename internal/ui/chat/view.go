// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/jeranaias/copilot-engine/internal/model"
	"github.com/jeranaias/copilot-engine/internal/ui/markup"
	"github.com/jeranaias/copilot-engine/internal/util"
)

const (
	maxCellWidth = 24
	timeFormat   = "15:04"
)

// =============================================================================
// LAYOUT
// =============================================================================

// footerLines counts the rows below the transcript.
func (m Model) footerLines() int {
	n := 2 // input + status bar
	switch {
	case m.spinner.IsActive():
		n++
	case len(m.suggestions()) > 0:
		n += len(m.suggestions()) + 1
	}
	return n
}

// layout sizes the viewport and re-renders the transcript into it.
func (m *Model) layout() {
	h := m.height - 1 - m.footerLines()
	if h < 1 {
		h = 1
	}
	m.viewport.Width = m.width
	m.viewport.Height = h
	m.input.Width = m.width - 4
	m.search.Width = m.width - 8

	m.viewport.SetContent(m.renderTranscript(m.surface.Store.Active()))
	m.viewport.GotoBottom()
}

// View renders the chat interface.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteByte('\n')

	if m.mode == ModeHistory {
		b.WriteString(m.renderHistory())
		b.WriteByte('\n')
		b.WriteString(m.renderStatus())
		return b.String()
	}

	b.WriteString(m.viewport.View())
	b.WriteByte('\n')

	switch {
	case m.spinner.IsActive():
		b.WriteString(m.spinner.View())
		b.WriteByte('\n')
	case len(m.suggestions()) > 0:
		b.WriteString(m.renderSuggestions())
	}

	b.WriteString(m.theme.InputPrompt.Render("> "))
	b.WriteString(m.input.View())
	b.WriteByte('\n')
	b.WriteString(m.renderStatus())
	return b.String()
}

// =============================================================================
// HEADER AND STATUS
// =============================================================================

func (m Model) renderHeader() string {
	tabs := make([]string, len(m.names))
	for i, name := range m.names {
		if i == m.idx {
			tabs[i] = m.theme.TabActive.Render(name)
		} else {
			tabs[i] = m.theme.Tab.Render(name)
		}
	}
	title := m.theme.HeaderTitle.Render(m.surface.Title())
	conv := m.theme.Muted.Render(util.TruncateWidth(m.surface.Store.Active().DisplayTitle(), 32))
	line := title + "  " + strings.Join(tabs, "") + "  " + conv
	return m.theme.Header.Width(m.width).MaxWidth(m.width).Render(line)
}

func (m Model) renderStatus() string {
	if m.status != "" {
		text := m.status
		if m.statusErr {
			text = m.theme.StatusError.Render(text)
		}
		return m.theme.StatusBar.Width(m.width).MaxWidth(m.width).Render(text)
	}
	help := HelpLine(m.keys.ShortHelp(), func(s string) string { return m.theme.ShortcutKey.Render(s) })
	return m.theme.StatusBar.Width(m.width).MaxWidth(m.width).Render(help)
}

func (m Model) renderSuggestions() string {
	var b strings.Builder
	b.WriteString(m.theme.Muted.Render("Try asking:"))
	b.WriteByte('\n')
	for i, s := range m.suggestions() {
		marker := "  "
		style := m.theme.Suggestion
		if i == m.suggestCursor {
			marker = "> "
			style = style.Bold(true)
		}
		b.WriteString(marker + style.Render(util.TruncateWidth(s, m.width-4)))
		b.WriteByte('\n')
	}
	return b.String()
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

func (m Model) renderTranscript(conv *model.Conversation) string {
	if conv == nil {
		return ""
	}
	width := m.width - 4
	if width < 20 {
		width = 20
	}
	blocks := make([]string, 0, len(conv.Turns))
	for _, t := range conv.Turns {
		blocks = append(blocks, m.renderTurn(t, width))
	}
	return strings.Join(blocks, "\n\n")
}

func (m Model) renderTurn(t *model.Turn, width int) string {
	label, body := m.theme.AssistantLabel, m.theme.AssistantTurn
	if t.Role == model.RoleUser {
		label, body = m.theme.UserLabel, m.theme.UserTurn
	}

	parts := []string{
		label.Render(t.Role.DisplayName()) + " " + m.theme.Timestamp.Render(t.Timestamp.Format(timeFormat)),
		markup.Render(t.Content, m.theme.RenderBold),
	}
	if t.Payload != nil {
		parts = append(parts, "", m.renderPayload(t.Payload))
	}
	if len(t.Actions) > 0 {
		parts = append(parts, "", m.renderActions(t.Actions))
	}
	return body.Width(width).Render(strings.Join(parts, "\n"))
}

// renderActions draws actions as bracketed buttons on one line.
func (m Model) renderActions(actions []model.Action) string {
	buttons := make([]string, len(actions))
	for i, a := range actions {
		buttons[i] = m.theme.Action(a.Variant).Render("[ " + a.Label + " ]")
	}
	return strings.Join(buttons, " ")
}

// renderPayload draws a payload as a column-aligned table.
func (m Model) renderPayload(p *model.Payload) string {
	widths := make([]int, len(p.Columns))
	for i, c := range p.Columns {
		widths[i] = runewidth.StringWidth(c)
	}
	for _, row := range p.Rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			if w := runewidth.StringWidth(row[i]); w > widths[i] {
				widths[i] = w
			}
		}
	}
	for i := range widths {
		if widths[i] > maxCellWidth {
			widths[i] = maxCellWidth
		}
	}

	cells := func(values []string, style lipgloss.Style) string {
		out := make([]string, len(widths))
		for i := range widths {
			v := ""
			if i < len(values) {
				v = values[i]
			}
			out[i] = style.Render(util.PadWidth(util.TruncateWidth(v, widths[i]), widths[i]))
		}
		return strings.Join(out, "  ")
	}

	lines := make([]string, 0, len(p.Rows)+2)
	if p.Title != "" {
		lines = append(lines, m.theme.PayloadTitle.Render(p.Title))
	}
	lines = append(lines, cells(p.Columns, m.theme.PayloadHeader))
	for _, row := range p.Rows {
		lines = append(lines, cells(row, m.theme.PayloadCell))
	}
	return strings.Join(lines, "\n")
}

// =============================================================================
// HISTORY PANEL
// =============================================================================

func (m Model) renderHistory() string {
	var b strings.Builder
	b.WriteString(m.theme.InputPrompt.Render("Search: "))
	b.WriteString(m.search.View())
	b.WriteString("\n\n")

	if len(m.history) == 0 {
		b.WriteString(m.theme.Muted.Render("No conversations found"))
	}
	activeID := m.surface.Store.ActiveID()
	inner := m.width - 6
	if inner < 20 {
		inner = 20
	}
	for i, meta := range m.history {
		title := meta.Title
		if meta.ID == activeID {
			title += " *"
		}
		title = util.PadWidth(util.TruncateWidth(title, inner), inner)
		if i == m.historyCursor {
			b.WriteString(m.theme.HistorySelected.Render(title))
		} else {
			b.WriteString(m.theme.HistoryItem.Render(title))
		}
		b.WriteByte('\n')
		b.WriteString(m.theme.HistoryPreview.Render(util.TruncateWidth(meta.Preview, inner)))
		b.WriteByte('\n')
	}
	return m.theme.HistoryBox.Width(m.width - 2).Render(strings.TrimRight(b.String(), "\n"))
}
