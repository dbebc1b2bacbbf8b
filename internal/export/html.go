// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/jeranaias/copilot-engine/internal/model"
	"github.com/jeranaias/copilot-engine/internal/ui/markup"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports conversations as a self-contained HTML page.
type HTMLExporter struct {
	options *Options
}

// NewHTMLExporter creates an HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{options: opts}
}

// Export converts a conversation to HTML. All text is escaped; **bold**
// markup becomes <strong>.
func (e *HTMLExporter) Export(conv *model.Conversation) ([]byte, error) {
	if err := validate(conv); err != nil {
		return nil, err
	}

	theme := e.options.Theme
	if theme != "light" {
		theme = "dark"
	}

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	sb.WriteString("  <meta charset=\"UTF-8\">\n")
	sb.WriteString("  <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	fmt.Fprintf(&sb, "  <title>%s</title>\n", html.EscapeString(conv.DisplayTitle()))
	sb.WriteString("  <meta name=\"generator\" content=\"copilot\">\n")
	sb.WriteString(css)
	sb.WriteString("</head>\n")
	fmt.Fprintf(&sb, "<body class=\"%s-theme\">\n<div class=\"container\">\n", theme)

	if e.options.IncludeMetadata {
		e.renderHeader(&sb, conv)
	}

	sb.WriteString("<main class=\"conversation\">\n")
	for _, t := range conv.Turns {
		e.renderTurn(&sb, t)
	}
	sb.WriteString("</main>\n</div>\n</body>\n</html>\n")
	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string { return ".html" }

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string { return "text/html" }

func (e *HTMLExporter) renderHeader(sb *strings.Builder, conv *model.Conversation) {
	sb.WriteString("<header class=\"header\">\n")
	fmt.Fprintf(sb, "  <h1>%s</h1>\n", html.EscapeString(conv.DisplayTitle()))
	fmt.Fprintf(sb, "  <p class=\"meta\">%s &middot; %d turns &middot; %s</p>\n",
		html.EscapeString(conv.Surface), conv.TurnCount(), conv.CreatedAt.Format(time.RFC1123))
	sb.WriteString("</header>\n")
}

func (e *HTMLExporter) renderTurn(sb *strings.Builder, t *model.Turn) {
	fmt.Fprintf(sb, "<section class=\"turn %s\">\n", t.Role)
	fmt.Fprintf(sb, "  <div class=\"label\">%s <time>%s</time></div>\n",
		html.EscapeString(t.Role.DisplayName()), t.Timestamp.Format("15:04"))
	sb.WriteString("  <div class=\"content\">\n")
	for _, line := range markup.Parse(t.Content) {
		sb.WriteString("    <p>")
		sb.WriteString(formatLine(line))
		sb.WriteString("</p>\n")
	}
	sb.WriteString("  </div>\n")

	if t.Payload != nil && len(t.Payload.Columns) > 0 {
		renderPayload(sb, t.Payload)
	}
	if len(t.Actions) > 0 {
		sb.WriteString("  <nav class=\"actions\">\n")
		for _, a := range t.Actions {
			fmt.Fprintf(sb, "    <a class=\"btn btn-%s\" href=\"%s\">%s</a>\n",
				a.Variant.OrDefault(), html.EscapeString(a.Target), html.EscapeString(a.Label))
		}
		sb.WriteString("  </nav>\n")
	}
	sb.WriteString("</section>\n")
}

// formatLine escapes a parsed line, wrapping bold segments in <strong>.
func formatLine(line markup.Line) string {
	var b strings.Builder
	for _, seg := range line {
		text := html.EscapeString(seg.Text)
		if seg.Bold {
			b.WriteString("<strong>" + text + "</strong>")
		} else {
			b.WriteString(text)
		}
	}
	return b.String()
}

func renderPayload(sb *strings.Builder, p *model.Payload) {
	fmt.Fprintf(sb, "  <table class=\"payload\" data-kind=\"%s\">\n", html.EscapeString(string(p.Kind)))
	if p.Title != "" {
		fmt.Fprintf(sb, "    <caption>%s</caption>\n", html.EscapeString(p.Title))
	}
	sb.WriteString("    <thead><tr>")
	for _, c := range p.Columns {
		sb.WriteString("<th>" + html.EscapeString(c) + "</th>")
	}
	sb.WriteString("</tr></thead>\n    <tbody>\n")
	for _, row := range p.Rows {
		sb.WriteString("      <tr>")
		for _, cell := range row {
			sb.WriteString("<td>" + html.EscapeString(cell) + "</td>")
		}
		sb.WriteString("</tr>\n")
	}
	sb.WriteString("    </tbody>\n  </table>\n")
}

const css = `  <style>
    * { margin: 0; padding: 0; box-sizing: border-box; }
    .dark-theme { --bg: #1a1b26; --panel: #24283b; --text: #c0caf5; --muted: #565f89; --accent: #bb9af7; --cyan: #7dcfff; --green: #9ece6a; }
    .light-theme { --bg: #f5f5f7; --panel: #ffffff; --text: #1f2335; --muted: #6b7089; --accent: #7c3aed; --cyan: #0284c7; --green: #16a34a; }
    body { background: var(--bg); color: var(--text); font: 15px/1.6 -apple-system, "Segoe UI", Roboto, sans-serif; }
    .container { max-width: 860px; margin: 0 auto; padding: 2rem 1rem; }
    .header h1 { font-size: 1.5rem; color: var(--accent); }
    .meta { color: var(--muted); margin-bottom: 1.5rem; }
    .turn { background: var(--panel); border-left: 3px solid var(--accent); border-radius: 6px; padding: 0.75rem 1rem; margin-bottom: 1rem; }
    .turn.user { border-left-color: var(--cyan); }
    .label { font-weight: 600; margin-bottom: 0.25rem; }
    .label time { color: var(--muted); font-weight: 400; margin-left: 0.5rem; }
    .payload { border-collapse: collapse; margin: 0.75rem 0; }
    .payload caption { text-align: left; color: var(--muted); }
    .payload th, .payload td { padding: 0.25rem 0.75rem; border-bottom: 1px solid var(--muted); text-align: left; }
    .actions { margin-top: 0.5rem; }
    .btn { display: inline-block; padding: 0.25rem 0.75rem; margin-right: 0.5rem; border-radius: 4px; text-decoration: none; color: var(--text); }
    .btn-primary { background: var(--green); color: var(--bg); font-weight: 600; }
    .btn-secondary { background: var(--muted); }
    .btn-outline { border: 1px solid var(--accent); color: var(--accent); }
    .btn-ghost { color: var(--muted); }
  </style>
`
