// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jeranaias/copilot-engine/internal/model"
	"github.com/jeranaias/copilot-engine/internal/util"
)

// =============================================================================
// JSON PERSISTER
// =============================================================================

// JSONPersister stores one pretty-printed JSON file per conversation.
type JSONPersister struct {
	// BaseDir is the directory holding <id>.json files
	BaseDir string

	// MaxConversations limits stored conversations (0 = unlimited)
	MaxConversations int

	mu sync.Mutex
}

// NewJSONPersister creates the directory if needed.
func NewJSONPersister(baseDir string) (*JSONPersister, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create conversations dir: %w", err)
	}
	return &JSONPersister{
		BaseDir:          baseDir,
		MaxConversations: DefaultMaxConversations,
	}, nil
}

// Save writes the conversation atomically.
func (p *JSONPersister) Save(ctx context.Context, conv *model.Conversation) error {
	if !validID(conv.ID) {
		return ErrInvalidID
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := util.AtomicWriteJSON(p.filePath(conv.ID), conv, 0644); err != nil {
		return fmt.Errorf("write conversation: %w", err)
	}

	if p.MaxConversations > 0 {
		p.enforceLimitLocked(ctx)
	}
	return nil
}

// enforceLimitLocked removes the least recently updated conversations.
func (p *JSONPersister) enforceLimitLocked(ctx context.Context) {
	metas, err := p.listLocked(ctx)
	if err != nil || len(metas) <= p.MaxConversations {
		return
	}
	for _, m := range metas[p.MaxConversations:] {
		os.Remove(p.filePath(m.ID))
	}
}

// Load reads one conversation.
func (p *JSONPersister) Load(ctx context.Context, id string) (*model.Conversation, error) {
	if !validID(id) {
		return nil, ErrConversationNotFound
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p.filePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}

	var conv model.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("decode %s: %w", id, err)
	}
	return &conv, nil
}

// List returns metadata for every readable file, most recently updated first.
// Corrupted files are skipped.
func (p *JSONPersister) List(ctx context.Context) ([]model.ConversationMeta, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.listLocked(ctx)
}

func (p *JSONPersister) listLocked(ctx context.Context) ([]model.ConversationMeta, error) {
	entries, err := os.ReadDir(p.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []model.ConversationMeta{}, nil
		}
		return nil, err
	}

	metas := make([]model.ConversationMeta, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		conv, err := p.Load(ctx, strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}
		metas = append(metas, conv.Meta())
	}

	sort.SliceStable(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
	return metas, nil
}

// Delete removes a conversation file.
func (p *JSONPersister) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return ErrConversationNotFound
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.Remove(p.filePath(id)); err != nil {
		if os.IsNotExist(err) {
			return ErrConversationNotFound
		}
		return err
	}
	return nil
}

// Close is a no-op; files are closed after each write.
func (p *JSONPersister) Close() error {
	return nil
}

func (p *JSONPersister) filePath(id string) string {
	return filepath.Join(p.BaseDir, id+".json")
}
