// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/copilot-engine/internal/model"
)

// persistTimeout bounds a single background save or delete.
const persistTimeout = 5 * time.Second

// =============================================================================
// STORE
// =============================================================================

// Store is the in-memory conversation list for one assistant surface.
type Store struct {
	surface       string
	greeting      string
	titleMaxRunes int
	persister     Persister
	logger        *zap.Logger

	mu       sync.RWMutex
	convs    []*model.Conversation // index 0 is the head
	activeID string
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithPersister enables persistence.
func WithPersister(p Persister) StoreOption {
	return func(s *Store) { s.persister = p }
}

// WithLogger sets the logger used for persistence failures.
func WithLogger(l *zap.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTitleMaxRunes sets the title length limit.
func WithTitleMaxRunes(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.titleMaxRunes = n
		}
	}
}

// NewStore creates a store holding one fresh conversation, which is active.
func NewStore(surface, greeting string, opts ...StoreOption) *Store {
	s := &Store{
		surface:       surface,
		greeting:      greeting,
		titleMaxRunes: model.DefaultTitleMaxRunes,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.createLocked()
	return s
}

// Surface returns the owning surface name.
func (s *Store) Surface() string {
	return s.surface
}

// Persister returns the configured persister, or nil.
func (s *Store) Persister() Persister {
	return s.persister
}

// Create inserts a fresh conversation at the head and makes it active.
func (s *Store) Create() *model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked().Clone()
}

func (s *Store) createLocked() *model.Conversation {
	conv := model.NewConversation(s.surface, s.greeting)
	s.convs = append([]*model.Conversation{conv}, s.convs...)
	s.activeID = conv.ID
	return conv
}

// List returns copies of every conversation, head first.
func (s *Store) List() []*model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Conversation, len(s.convs))
	for i, c := range s.convs {
		out[i] = c.Clone()
	}
	return out
}

// Metas returns listing metadata, head first.
func (s *Store) Metas() []model.ConversationMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.ConversationMeta, len(s.convs))
	for i, c := range s.convs {
		out[i] = c.Meta()
	}
	return out
}

// Len returns the number of conversations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.convs)
}

// Get returns a copy of the conversation.
func (s *Store) Get(id string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexLocked(id); i >= 0 {
		return s.convs[i].Clone(), nil
	}
	return nil, ErrConversationNotFound
}

// Active returns a copy of the active conversation.
func (s *Store) Active() *model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.convs[s.indexLocked(s.activeID)].Clone()
}

// ActiveID returns the active conversation's ID.
func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// Select makes id the active conversation.
func (s *Store) Select(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexLocked(id) < 0 {
		return ErrConversationNotFound
	}
	s.activeID = id
	return nil
}

// Delete removes a conversation. It refuses, returning false, when id is
// unknown or names the only conversation.
func (s *Store) Delete(id string) bool {
	return s.DeleteConversation(id) == nil
}

// DeleteConversation is Delete with the refusal reason:
// ErrConversationNotFound or ErrLastConversation. Deleting the active
// conversation makes the new head active.
func (s *Store) DeleteConversation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return ErrConversationNotFound
	}
	if len(s.convs) == 1 {
		return ErrLastConversation
	}

	s.convs = append(s.convs[:i], s.convs[i+1:]...)
	if s.activeID == id {
		s.activeID = s.convs[0].ID
	}

	if s.persister != nil {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := s.persister.Delete(ctx, id); err != nil && !errors.Is(err, ErrConversationNotFound) {
			s.logger.Warn("failed to delete persisted conversation",
				zap.String("surface", s.surface),
				zap.String("conversation_id", id),
				zap.Error(err))
		}
	}
	return nil
}

// Search returns copies of the conversations whose title or preview contains
// query, case-insensitively, head first. An empty query returns List().
func (s *Store) Search(query string) []*model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Conversation
	for _, c := range s.convs {
		if matchesQuery(c.Title, c.Preview(), query) {
			out = append(out, c.Clone())
		}
	}
	return out
}

// Append adds a turn to the conversation and returns a copy of the result.
// The turn is copied; the caller keeps ownership of its argument.
func (s *Store) Append(id string, turn *model.Turn) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return nil, ErrConversationNotFound
	}
	conv := s.convs[i]
	conv.AddTurn(turn.Clone(), s.titleMaxRunes)
	s.persistLocked(conv)
	return conv.Clone(), nil
}

// persistLocked saves conv unless it still holds only its greeting.
func (s *Store) persistLocked(conv *model.Conversation) {
	if s.persister == nil || conv.IsFresh() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.persister.Save(ctx, conv); err != nil {
		s.logger.Warn("failed to persist conversation",
			zap.String("surface", s.surface),
			zap.String("conversation_id", conv.ID),
			zap.Error(err))
	}
}

// =============================================================================
// RESTORE
// =============================================================================

// Restore loads this surface's persisted conversations behind the current
// ones, most recently updated first. Conversations already in memory are
// skipped. It returns how many were added.
func (s *Store) Restore(ctx context.Context) (int, error) {
	if s.persister == nil {
		return 0, nil
	}
	metas, err := s.persister.List(ctx)
	if err != nil {
		return 0, err
	}
	metas = FilterSurface(metas, s.surface)

	loaded := make([]*model.Conversation, 0, len(metas))
	for _, m := range metas {
		conv, err := s.persister.Load(ctx, m.ID)
		if err != nil {
			s.logger.Warn("skipping unreadable conversation",
				zap.String("surface", s.surface),
				zap.String("conversation_id", m.ID),
				zap.Error(err))
			continue
		}
		if len(conv.Turns) == 0 {
			continue
		}
		loaded = append(loaded, conv)
	}
	sort.SliceStable(loaded, func(i, j int) bool {
		return loaded[i].UpdatedAt.After(loaded[j].UpdatedAt)
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, conv := range loaded {
		if s.indexLocked(conv.ID) >= 0 {
			continue
		}
		s.convs = append(s.convs, conv)
		added++
	}
	return added, nil
}

// LoadIntoView moves a conversation to the head and makes it active. If it
// is not in memory it is loaded from the persister.
func (s *Store) LoadIntoView(ctx context.Context, id string) (*model.Conversation, error) {
	s.mu.Lock()
	if i := s.indexLocked(id); i >= 0 {
		conv := s.convs[i]
		s.convs = append(s.convs[:i], s.convs[i+1:]...)
		s.convs = append([]*model.Conversation{conv}, s.convs...)
		s.activeID = id
		out := conv.Clone()
		s.mu.Unlock()
		return out, nil
	}
	s.mu.Unlock()

	if s.persister == nil {
		return nil, ErrNoPersister
	}
	conv, err := s.persister.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.Surface != s.surface || len(conv.Turns) == 0 {
		return nil, ErrConversationNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// A concurrent load may have inserted it meanwhile.
	if i := s.indexLocked(id); i >= 0 {
		conv = s.convs[i]
		s.convs = append(s.convs[:i], s.convs[i+1:]...)
	}
	s.convs = append([]*model.Conversation{conv}, s.convs...)
	s.activeID = id
	return conv.Clone(), nil
}

func (s *Store) indexLocked(id string) int {
	for i, c := range s.convs {
		if c.ID == id {
			return i
		}
	}
	return -1
}
