// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/copilot-engine/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// ACTIONS
// =============================================================================

// Variant is the emphasis used when rendering an action button.
type Variant string

const (
	VariantPrimary   Variant = "primary"
	VariantSecondary Variant = "secondary"
	VariantOutline   Variant = "outline"
	VariantGhost     Variant = "ghost"
)

// Valid reports whether v is a known variant. The empty variant is valid and
// renders as secondary.
func (v Variant) Valid() bool {
	switch v {
	case "", VariantPrimary, VariantSecondary, VariantOutline, VariantGhost:
		return true
	}
	return false
}

// OrDefault returns v, or VariantSecondary when v is empty.
func (v Variant) OrDefault() Variant {
	if v == "" {
		return VariantSecondary
	}
	return v
}

// Action is a follow-up link offered with an assistant turn. Actions are
// advisory; selecting one has no effect on the engine.
type Action struct {
	ID      string  `json:"id"`
	Label   string  `json:"label"`
	Target  string  `json:"target"`
	Variant Variant `json:"variant"`
}

// =============================================================================
// STRUCTURED PAYLOAD
// =============================================================================

// PayloadKind tags the shape of a structured payload.
type PayloadKind string

const (
	PayloadForecastSeries   PayloadKind = "forecast-series"
	PayloadRankedList       PayloadKind = "ranked-list"
	PayloadExceptionList    PayloadKind = "exception-list"
	PayloadSiteRanking      PayloadKind = "site-ranking"
	PayloadClauseList       PayloadKind = "clause-list"
	PayloadSegmentBreakdown PayloadKind = "segment-breakdown"
)

// Payload is a small table of rows selected alongside a matched rule.
// The engine never inspects it.
type Payload struct {
	Kind    PayloadKind `json:"kind" yaml:"kind"`
	Title   string      `json:"title,omitempty" yaml:"title"`
	Columns []string    `json:"columns" yaml:"columns"`
	Rows    [][]string  `json:"rows" yaml:"rows"`
}

// Clone returns a deep copy of the payload. A nil payload clones to nil.
func (p *Payload) Clone() *Payload {
	if p == nil {
		return nil
	}
	clone := &Payload{
		Kind:    p.Kind,
		Title:   p.Title,
		Columns: append([]string(nil), p.Columns...),
		Rows:    make([][]string, len(p.Rows)),
	}
	for i, row := range p.Rows {
		clone.Rows[i] = append([]string(nil), row...)
	}
	return clone
}

// =============================================================================
// TURN TYPE
// =============================================================================

// Turn represents a single message in a conversation.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Actions   []Action  `json:"actions,omitempty"`
	Payload   *Payload  `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTurn creates a turn with a generated ID and the current time.
func NewTurn(role Role, content string) *Turn {
	return &Turn{
		ID:        NewID("turn"),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserTurn creates a new user turn.
func NewUserTurn(content string) *Turn {
	return NewTurn(RoleUser, content)
}

// NewAssistantTurn creates a new assistant turn carrying actions and an
// optional payload. Actions are copied.
func NewAssistantTurn(content string, actions []Action, payload *Payload) *Turn {
	t := NewTurn(RoleAssistant, content)
	if len(actions) > 0 {
		t.Actions = append([]Action(nil), actions...)
	}
	t.Payload = payload
	return t
}

// Preview returns a single-line preview of the content truncated to maxRunes.
func (t *Turn) Preview(maxRunes int) string {
	return util.TruncateRunes(util.SingleLine(t.Content), maxRunes)
}

// Clone creates a deep copy of the turn.
func (t *Turn) Clone() *Turn {
	clone := *t
	if t.Actions != nil {
		clone.Actions = append([]Action(nil), t.Actions...)
	}
	clone.Payload = t.Payload.Clone()
	return &clone
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

// NewID returns prefix + "_" + a time-ordered UUID. Version 7 UUIDs sort by
// creation time, which keeps IDs stable for ordering.
func NewID(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return prefix + "_" + id.String()
}
