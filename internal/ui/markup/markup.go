// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package markup parses the small markdown subset used in assistant replies:
// **bold** spans and line breaks. Everything else is literal text.
package markup

import "strings"

const marker = "**"

// Segment is a run of text with uniform emphasis.
type Segment struct {
	Text string
	Bold bool
}

// Line is one line of content as a sequence of segments.
type Line []Segment

// Parse splits content into lines and each line into segments. Bold spans
// never cross a line break; a marker without a partner on the same line is
// kept as literal text. An empty line parses to an empty Line.
func Parse(content string) []Line {
	raw := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	lines := make([]Line, len(raw))
	for i, text := range raw {
		lines[i] = parseLine(text)
	}
	return lines
}

func parseLine(text string) Line {
	var line Line
	var plain strings.Builder

	flush := func() {
		if plain.Len() > 0 {
			line = append(line, Segment{Text: plain.String()})
			plain.Reset()
		}
	}

	for len(text) > 0 {
		open := strings.Index(text, marker)
		if open < 0 {
			plain.WriteString(text)
			break
		}
		plain.WriteString(text[:open])
		rest := text[open+len(marker):]

		end := strings.Index(rest, marker)
		if end <= 0 {
			// No partner, or an empty span: the marker is literal.
			plain.WriteString(marker)
			text = rest
			continue
		}
		flush()
		line = append(line, Segment{Text: rest[:end], Bold: true})
		text = rest[end+len(marker):]
	}
	flush()
	if line == nil {
		line = Line{}
	}
	return line
}

// String returns the line's text without markers.
func (l Line) String() string {
	var b strings.Builder
	for _, s := range l {
		b.WriteString(s.Text)
	}
	return b.String()
}

// Plain returns content with bold markers removed.
func Plain(content string) string {
	lines := Parse(content)
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.String()
	}
	return strings.Join(out, "\n")
}

// Render rebuilds content, passing each bold span through bold. Plain text
// is copied unchanged.
func Render(content string, bold func(string) string) string {
	lines := Parse(content)
	out := make([]string, len(lines))
	for i, l := range lines {
		var b strings.Builder
		for _, s := range l {
			if s.Bold && bold != nil {
				b.WriteString(bold(s.Text))
			} else {
				b.WriteString(s.Text)
			}
		}
		out[i] = b.String()
	}
	return strings.Join(out, "\n")
}
