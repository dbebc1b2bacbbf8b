// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/jeranaias/copilot-engine/internal/util"
)

const (
	// DefaultTitleMaxRunes bounds a derived title, including the "..." marker.
	DefaultTitleMaxRunes = 50

	// PreviewMaxRunes bounds the preview used by history search.
	PreviewMaxRunes = 80

	// DefaultTitle is shown until the first user turn names the conversation.
	DefaultTitle = "New conversation"
)

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds one assistant session: an ordered transcript plus metadata.
type Conversation struct {
	// Identity
	ID      string `json:"id"`
	Title   string `json:"title"`
	Surface string `json:"surface"`

	// Turns in insertion order
	Turns []*Turn `json:"turns"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversation creates a conversation for a surface, seeded with the
// assistant greeting. A conversation is never observed without it.
func NewConversation(surface, greeting string) *Conversation {
	now := time.Now()
	conv := &Conversation{
		ID:        NewID("conv"),
		Surface:   surface,
		CreatedAt: now,
		UpdatedAt: now,
		Turns:     make([]*Turn, 0, 4),
	}
	greet := NewTurn(RoleAssistant, greeting)
	greet.Timestamp = now
	conv.Turns = append(conv.Turns, greet)
	return conv
}

// =============================================================================
// TURN MANAGEMENT
// =============================================================================

// AddTurn appends a turn, keeping timestamps non-decreasing, bumps UpdatedAt
// and derives the title from the first user turn.
func (c *Conversation) AddTurn(t *Turn, titleMaxRunes int) {
	if last := c.LastTurn(); last != nil && t.Timestamp.Before(last.Timestamp) {
		t.Timestamp = last.Timestamp
	}
	c.Turns = append(c.Turns, t)
	if t.Timestamp.After(c.UpdatedAt) {
		c.UpdatedAt = t.Timestamp
	}
	if c.Title == "" && t.Role == RoleUser {
		c.Title = DeriveTitle(t.Content, titleMaxRunes)
	}
}

// LastTurn returns the most recent turn, or nil if empty.
func (c *Conversation) LastTurn() *Turn {
	if len(c.Turns) == 0 {
		return nil
	}
	return c.Turns[len(c.Turns)-1]
}

// TurnByID returns a turn by its ID.
func (c *Conversation) TurnByID(id string) *Turn {
	for _, t := range c.Turns {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// TurnCount returns the number of turns.
func (c *Conversation) TurnCount() int {
	return len(c.Turns)
}

// UserTurnCount returns the number of user turns.
func (c *Conversation) UserTurnCount() int {
	n := 0
	for _, t := range c.Turns {
		if t.Role == RoleUser {
			n++
		}
	}
	return n
}

// IsFresh reports whether the conversation still holds only its greeting.
func (c *Conversation) IsFresh() bool {
	return len(c.Turns) == 1
}

// =============================================================================
// TITLE AND PREVIEW
// =============================================================================

// DeriveTitle builds a title from user text: whitespace collapsed to single
// spaces and truncated to maxRunes with an ellipsis marker.
func DeriveTitle(text string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = DefaultTitleMaxRunes
	}
	return util.TruncateRunes(util.SingleLine(text), maxRunes)
}

// DisplayTitle returns the title or a default.
func (c *Conversation) DisplayTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return DefaultTitle
}

// Preview returns a short preview derived from the most recent turn.
func (c *Conversation) Preview() string {
	last := c.LastTurn()
	if last == nil {
		return ""
	}
	return last.Preview(PreviewMaxRunes)
}

// Meta returns lightweight metadata for listing.
func (c *Conversation) Meta() ConversationMeta {
	return ConversationMeta{
		ID:        c.ID,
		Title:     c.DisplayTitle(),
		Surface:   c.Surface,
		TurnCount: len(c.Turns),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		Preview:   c.Preview(),
	}
}

// ConversationMeta holds lightweight metadata for listing.
type ConversationMeta struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Surface   string    `json:"surface"`
	TurnCount int       `json:"turn_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Preview   string    `json:"preview"`
}

// =============================================================================
// COPYING
// =============================================================================

// Clone creates a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	clone := &Conversation{
		ID:        c.ID,
		Title:     c.Title,
		Surface:   c.Surface,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		Turns:     make([]*Turn, len(c.Turns)),
	}
	for i, t := range c.Turns {
		clone.Turns[i] = t.Clone()
	}
	return clone
}
