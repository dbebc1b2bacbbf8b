// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/jeranaias/copilot-engine/internal/model"
	"github.com/jeranaias/copilot-engine/internal/ui/markup"
	"github.com/jeranaias/copilot-engine/internal/ui/styles"
	"github.com/jeranaias/copilot-engine/internal/util"
)

// =============================================================================
// STYLES
// =============================================================================

var (
	promptStyle  = lipgloss.NewStyle().Foreground(styles.Cyan).Bold(true)
	titleStyle   = lipgloss.NewStyle().Foreground(styles.Purple).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(styles.TextSecondary)
	commandStyle = lipgloss.NewStyle().Foreground(styles.Emerald)
	warningStyle = lipgloss.NewStyle().Foreground(styles.Amber).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(styles.Rose).Bold(true)
)

const (
	// DefaultTerminalWidth is the fallback width when detection fails
	DefaultTerminalWidth = 80

	// MinTerminalWidth is the minimum width used for wrapping
	MinTerminalWidth = 40

	maxCellWidth = 28
)

// =============================================================================
// TERMINAL DETECTION
// =============================================================================

// IsTerminal reports whether v is a terminal. Only *os.File can be one.
func IsTerminal(v interface{}) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// TerminalWidth returns the width of w, or DefaultTerminalWidth.
func TerminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return DefaultTerminalWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return DefaultTerminalWidth
	}
	if width < MinTerminalWidth {
		return MinTerminalWidth
	}
	return width
}

// =============================================================================
// JSON OUTPUT
// =============================================================================

// JSONResponse is the envelope for --json output.
type JSONResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data"`
	Error     *string     `json:"error"`
	Timestamp string      `json:"timestamp"`
	Command   string      `json:"command,omitempty"`
}

// NewJSONResponse creates a successful response.
func NewJSONResponse(command string, data interface{}) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// NewJSONErrorResponse creates an error response.
func NewJSONErrorResponse(command string, err error) *JSONResponse {
	msg := err.Error()
	return &JSONResponse{
		Error:     &msg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Write encodes the response as indented JSON.
func (r *JSONResponse) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// outputJSON runs handler and writes its result or error as JSON when
// jsonMode is set. Otherwise the handler writes its own output.
func outputJSON(w io.Writer, jsonMode bool, command string, handler func() (interface{}, error)) error {
	data, err := handler()
	if !jsonMode {
		return err
	}
	if err != nil {
		_ = NewJSONErrorResponse(command, err).Write(w)
		return err
	}
	return NewJSONResponse(command, data).Write(w)
}

// =============================================================================
// TURN RENDERING
// =============================================================================

// renderMarkdown renders content with glamour at width. It returns the
// markup-stripped content if rendering fails.
func renderMarkdown(content string, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return markup.Plain(content) + "\n"
	}
	out, err := r.Render(content)
	if err != nil {
		return markup.Plain(content) + "\n"
	}
	return out
}

// writeTurn prints an assistant turn. Markdown is rendered only when w is a
// terminal so piped output stays plain.
func writeTurn(w io.Writer, t *model.Turn) {
	if IsTerminal(w) {
		fmt.Fprint(w, renderMarkdown(t.Content, TerminalWidth(w)-4))
	} else {
		fmt.Fprintln(w, markup.Plain(t.Content))
	}
	if t.Payload != nil {
		fmt.Fprintln(w)
		fmt.Fprint(w, formatPayload(t.Payload))
	}
	if len(t.Actions) > 0 {
		fmt.Fprintln(w)
		for _, a := range t.Actions {
			fmt.Fprintf(w, "  [%s] %s\n", a.Label, infoStyle.Render(a.Target))
		}
	}
}

// formatPayload renders a payload as a plain column-aligned table.
func formatPayload(p *model.Payload) string {
	widths := make([]int, len(p.Columns))
	for i, c := range p.Columns {
		widths[i] = lipgloss.Width(c)
	}
	for _, row := range p.Rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			if w := lipgloss.Width(row[i]); w > widths[i] {
				widths[i] = w
			}
		}
	}

	line := func(values []string) string {
		cells := make([]string, len(widths))
		for i := range widths {
			w := widths[i]
			if w > maxCellWidth {
				w = maxCellWidth
			}
			v := ""
			if i < len(values) {
				v = values[i]
			}
			cells[i] = util.PadWidth(util.TruncateWidth(v, w), w)
		}
		return "  " + strings.TrimRight(strings.Join(cells, "  "), " ") + "\n"
	}

	var sb strings.Builder
	if p.Title != "" {
		sb.WriteString(p.Title + "\n")
	}
	sb.WriteString(line(p.Columns))
	for _, row := range p.Rows {
		sb.WriteString(line(row))
	}
	return sb.String()
}
