// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/copilot-engine/internal/model"
)

func sampleConversation() *model.Conversation {
	conv := model.NewConversation("rfp", "Welcome to the **RFP Evaluator**.")
	conv.AddTurn(model.NewUserTurn("Who are the <top> vendors?"), model.DefaultTitleMaxRunes)
	conv.AddTurn(model.NewAssistantTurn(
		"**Stratus Cloud** leads with **87**.",
		[]model.Action{{ID: "act_1", Label: "Compare vendors", Target: "/apps/rfp/compare", Variant: model.VariantPrimary}},
		&model.Payload{
			Kind:    model.PayloadRankedList,
			Title:   "Ranking",
			Columns: []string{"Vendor", "Weighted"},
			Rows:    [][]string{{"Stratus Cloud", "87"}, {"Nimbus & Co", "81"}},
		},
	), model.DefaultTitleMaxRunes)
	return conv
}

func TestForFormat(t *testing.T) {
	tests := []struct {
		format string
		ext    string
	}{
		{"md", ".md"},
		{"Markdown", ".md"},
		{"json", ".json"},
		{"html", ".html"},
		{" HTM ", ".html"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			e, err := ForFormat(tt.format, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.ext, e.FileExtension())
			assert.NotEmpty(t, e.MimeType())
		})
	}

	_, err := ForFormat("pdf", nil)
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestMarkdownExporter(t *testing.T) {
	data, err := NewMarkdownExporter(nil).Export(sampleConversation())
	require.NoError(t, err)
	out := string(data)

	assert.True(t, strings.HasPrefix(out, "---\ntitle: \"Who are the <top> vendors?\"\n"), out)
	assert.Contains(t, out, "surface: rfp\n")
	assert.Contains(t, out, "turns: 3\n")
	assert.Contains(t, out, "- [Compare vendors](/apps/rfp/compare)")
	assert.Contains(t, out, "| Vendor | Weighted |")

	data, err = NewMarkdownExporter(&Options{}).Export(sampleConversation())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# Who are the <top> vendors?"))
}

func TestEscapeYAML(t *testing.T) {
	assert.Equal(t, "plain title", escapeYAML("plain title"))
	assert.Equal(t, `"a: b"`, escapeYAML("a: b"))
	assert.Equal(t, `"say \"hi\""`, escapeYAML(`say "hi"`))
	assert.Equal(t, `"- item"`, escapeYAML("- item"))
	assert.Equal(t, `""`, escapeYAML(""))
}

func TestJSONExporter_RoundTrip(t *testing.T) {
	conv := sampleConversation()
	data, err := NewJSONExporter().Export(conv)
	require.NoError(t, err)

	var back model.Conversation
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, conv.ID, back.ID)
	require.Len(t, back.Turns, 3)
	assert.Equal(t, conv.Turns[2].Payload.Rows, back.Turns[2].Payload.Rows)
}

func TestHTMLExporter(t *testing.T) {
	data, err := NewHTMLExporter(&Options{IncludeMetadata: true, Theme: "light"}).Export(sampleConversation())
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, `<body class="light-theme">`)
	assert.Contains(t, out, "<title>Who are the &lt;top&gt; vendors?</title>")
	assert.Contains(t, out, "<strong>Stratus Cloud</strong> leads with <strong>87</strong>.")
	assert.Contains(t, out, `<a class="btn btn-primary" href="/apps/rfp/compare">Compare vendors</a>`)
	assert.Contains(t, out, "<td>Nimbus &amp; Co</td>")
	assert.Contains(t, out, "<caption>Ranking</caption>")
	assert.NotContains(t, out, "**")

	data, err = NewHTMLExporter(&Options{Theme: "neon"}).Export(sampleConversation())
	require.NoError(t, err)
	assert.Contains(t, string(data), `<body class="dark-theme">`)
	assert.NotContains(t, string(data), `<header class="header">`)
}

func TestExport_Invalid(t *testing.T) {
	for _, e := range []Exporter{NewMarkdownExporter(nil), NewJSONExporter(), NewHTMLExporter(nil)} {
		_, err := e.Export(nil)
		assert.Error(t, err)
		_, err = e.Export(&model.Conversation{ID: "conv_x", CreatedAt: time.Now()})
		assert.Error(t, err)
	}
}

func TestToFile(t *testing.T) {
	dir := t.TempDir()
	path, err := ToFile(sampleConversation(), NewHTMLExporter(nil), dir)
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(path))
	name := filepath.Base(path)
	assert.True(t, strings.HasPrefix(name, "rfp_Who_are_the_-top-_vendors-_"), name)
	assert.True(t, strings.HasSuffix(name, ".html"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<!DOCTYPE html>")
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"simple", "simple"},
		{"a/b\\c:d", "a-b-c-d"},
		{"tab\there", "tab_here"},
		{"", "conversation"},
		{strings.Repeat("x", 80), strings.Repeat("x", 47) + "..."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeFilename(tt.in), tt.in)
	}
}
