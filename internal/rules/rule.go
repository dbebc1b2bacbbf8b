// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package rules holds the keyword rule tables that drive every assistant
// surface, and the first-match matcher that selects a canned response.
//
// Tables are YAML documents embedded in the binary, one per surface. They are
// parsed and validated once at start-up and are read-only afterwards, so a
// Table may be shared between goroutines without locking.
package rules

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/copilot-engine/internal/latency"
	"github.com/jeranaias/copilot-engine/internal/model"
)

// =============================================================================
// TEMPLATE TYPES
// =============================================================================

// ActionTemplate describes a follow-up link attached to a response. Each
// emitted action receives a fresh identifier.
type ActionTemplate struct {
	Label   string        `yaml:"label" json:"label"`
	Target  string        `yaml:"target" json:"target"`
	Variant model.Variant `yaml:"variant" json:"variant"`
}

// ResponseTemplate is the canned reply selected by a rule.
type ResponseTemplate struct {
	Content string           `yaml:"content" json:"content"`
	Actions []ActionTemplate `yaml:"actions" json:"actions,omitempty"`
	Payload *model.Payload   `yaml:"payload" json:"payload,omitempty"`
}

// BuildActions materialises the action templates with fresh act_ ids.
// Returns nil when the template has no actions.
func (r ResponseTemplate) BuildActions() []model.Action {
	if len(r.Actions) == 0 {
		return nil
	}
	actions := make([]model.Action, len(r.Actions))
	for i, a := range r.Actions {
		actions[i] = model.Action{
			ID:      model.NewID("act"),
			Label:   a.Label,
			Target:  a.Target,
			Variant: a.Variant.OrDefault(),
		}
	}
	return actions
}

// NewTurn builds an assistant turn from the template. The payload is
// deep-copied so the table stays immutable.
func (r ResponseTemplate) NewTurn() *model.Turn {
	return model.NewAssistantTurn(r.Content, r.BuildActions(), r.Payload.Clone())
}

// Rule maps a set of keywords to a response.
type Rule struct {
	Name     string           `yaml:"name" json:"name,omitempty"`
	Keywords []string         `yaml:"keywords" json:"keywords"`
	Response ResponseTemplate `yaml:"response" json:"response"`
}

// Matches reports whether any keyword occurs in the normalised input.
func (r *Rule) Matches(normalized string) bool {
	for _, kw := range r.Keywords {
		if kw != "" && strings.Contains(normalized, kw) {
			return true
		}
	}
	return false
}

// LatencySpec is the on-disk form of a latency policy.
type LatencySpec struct {
	BaseMs    int `yaml:"base_ms" json:"base_ms"`
	PerCharMs int `yaml:"per_char_ms" json:"per_char_ms"`
	MaxMs     int `yaml:"max_ms" json:"max_ms"`
}

// Policy converts l to a latency policy. A zero LatencySpec yields
// latency.Default.
func (l LatencySpec) Policy() latency.Policy {
	if l == (LatencySpec{}) {
		return latency.Default
	}
	return latency.FromMillis(l.BaseMs, l.PerCharMs, l.MaxMs)
}

// =============================================================================
// TABLE
// =============================================================================

// Table is the ordered rule set for one assistant surface.
type Table struct {
	Surface     string           `yaml:"surface" json:"surface"`
	Title       string           `yaml:"title" json:"title"`
	Greeting    string           `yaml:"greeting" json:"greeting"`
	Suggestions []string         `yaml:"suggestions" json:"suggestions"`
	Latency     LatencySpec      `yaml:"latency" json:"latency"`
	Fallback    ResponseTemplate `yaml:"fallback" json:"fallback"`
	Rules       []Rule           `yaml:"rules" json:"rules"`

	// Source is the file the table was loaded from.
	Source string `yaml:"-" json:"-"`
}

// Normalize prepares text for matching: NFC composition, surrounding
// whitespace trimmed, lower-cased.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(s)))
}

// MatchRule returns the first rule, in declared order, with a keyword that
// is a substring of the normalised input.
func (t *Table) MatchRule(input string) (Rule, bool) {
	normalized := Normalize(input)
	if normalized == "" {
		return Rule{}, false
	}
	for i := range t.Rules {
		if t.Rules[i].Matches(normalized) {
			return t.Rules[i], true
		}
	}
	return Rule{}, false
}

// Match returns the response for input, or the table's fallback when no rule
// matches. The returned template shares its slices with the table and must
// be treated as read-only.
func (t *Table) Match(input string) ResponseTemplate {
	if rule, ok := t.MatchRule(input); ok {
		return rule.Response
	}
	return t.Fallback
}

// Policy returns the table's latency policy.
func (t *Table) Policy() latency.Policy {
	return t.Latency.Policy()
}

// SuggestionList returns a copy of the suggestion prompts.
func (t *Table) SuggestionList() []string {
	if len(t.Suggestions) == 0 {
		return nil
	}
	return append([]string(nil), t.Suggestions...)
}
