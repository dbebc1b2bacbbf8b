// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/copilot-engine/internal/model"
	"github.com/jeranaias/copilot-engine/internal/util"
)

// DefaultMaxConversations bounds how many conversations a persister keeps.
const DefaultMaxConversations = 100

// Persister saves and loads conversations.
type Persister interface {
	// Save writes the conversation, replacing any earlier version.
	Save(ctx context.Context, conv *model.Conversation) error

	// Load reads one conversation. Returns ErrConversationNotFound if absent.
	Load(ctx context.Context, id string) (*model.Conversation, error)

	// List returns metadata for every stored conversation, most recently
	// updated first.
	List(ctx context.Context) ([]model.ConversationMeta, error)

	// Delete removes one conversation. Returns ErrConversationNotFound if absent.
	Delete(ctx context.Context, id string) error

	// Close releases resources.
	Close() error
}

// validID reports whether id can be used as a file name or key.
func validID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// matchesQuery is the shared search predicate: case-insensitive substring
// over title and preview. An empty query matches everything.
func matchesQuery(title, preview, query string) bool {
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(title), q) ||
		strings.Contains(strings.ToLower(preview), q)
}

// FilterMetas returns the metas matching query, in their original order.
func FilterMetas(metas []model.ConversationMeta, query string) []model.ConversationMeta {
	query = strings.TrimSpace(query)
	if query == "" {
		return metas
	}
	var results []model.ConversationMeta
	for _, m := range metas {
		title := m.Title
		if title == model.DefaultTitle {
			title = ""
		}
		if matchesQuery(title, m.Preview, query) {
			results = append(results, m)
		}
	}
	return results
}

// FilterSurface returns the metas belonging to surface.
func FilterSurface(metas []model.ConversationMeta, surface string) []model.ConversationMeta {
	if surface == "" {
		return metas
	}
	var results []model.ConversationMeta
	for _, m := range metas {
		if m.Surface == surface {
			results = append(results, m)
		}
	}
	return results
}

// =============================================================================
// SESSION LIST FORMATTING
// =============================================================================

// FormatSessionList formats conversation metadata as a plain-text table.
func FormatSessionList(sessions []model.ConversationMeta) string {
	if len(sessions) == 0 {
		return "No sessions found."
	}

	var sb strings.Builder
	rule := strings.Repeat("-", 96) + "\n"
	sb.WriteString("Sessions:\n")
	sb.WriteString(rule)
	sb.WriteString(util.PadWidth("ID", 18) + " " +
		util.PadWidth("Surface", 18) + " " +
		util.PadWidth("Updated", 17) + " " +
		util.PadWidth("Turns", 5) + " Title\n")
	sb.WriteString(rule)

	for _, s := range sessions {
		sb.WriteString(util.PadWidth(util.TruncateWidth(s.ID, 18), 18) + " " +
			util.PadWidth(util.TruncateWidth(s.Surface, 18), 18) + " " +
			util.PadWidth(s.UpdatedAt.Format("2006-01-02 15:04"), 17) + " " +
			util.PadWidth(fmt.Sprint(s.TurnCount), 5) + " " +
			util.TruncateWidth(s.Title, 34) + "\n")
	}
	return sb.String()
}

// ExportMarkdown renders a conversation as Markdown.
func ExportMarkdown(c *model.Conversation) string {
	var sb strings.Builder
	sb.WriteString("# " + c.DisplayTitle() + "\n\n")
	sb.WriteString("Surface: " + c.Surface + "  \n")
	sb.WriteString("Created: " + c.CreatedAt.Format(time.RFC3339) + "\n\n")
	sb.WriteString("---\n\n")

	for _, t := range c.Turns {
		sb.WriteString("**" + t.Role.DisplayName() + "** (" + t.Timestamp.Format("15:04") + "):\n\n")
		sb.WriteString(t.Content)
		sb.WriteString("\n")
		for _, a := range t.Actions {
			sb.WriteString("\n- [" + a.Label + "](" + a.Target + ")")
		}
		if len(t.Actions) > 0 {
			sb.WriteString("\n")
		}
		if p := t.Payload; p != nil && len(p.Columns) > 0 {
			sb.WriteString("\n")
			if p.Title != "" {
				sb.WriteString("_" + p.Title + "_\n\n")
			}
			sb.WriteString("| " + strings.Join(p.Columns, " | ") + " |\n")
			sb.WriteString("|" + strings.Repeat(" --- |", len(p.Columns)) + "\n")
			for _, row := range p.Rows {
				sb.WriteString("| " + strings.Join(row, " | ") + " |\n")
			}
		}
		sb.WriteString("\n---\n\n")
	}
	return sb.String()
}

// =============================================================================
// BACKEND SELECTION
// =============================================================================

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Open builds the persister for backend under dataDir. The memory backend
// returns a nil Persister and no error.
func Open(backend, dataDir string, maxConversations int) (Persister, error) {
	switch backend {
	case "", BackendMemory:
		return nil, nil
	case BackendJSON:
		p, err := NewJSONPersister(filepath.Join(dataDir, "conversations"))
		if err != nil {
			return nil, err
		}
		p.MaxConversations = maxConversations
		return p, nil
	case BackendSQLite:
		p, err := NewSQLitePersister(filepath.Join(dataDir, "copilot.db"))
		if err != nil {
			return nil, err
		}
		p.MaxConversations = maxConversations
		return p, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
