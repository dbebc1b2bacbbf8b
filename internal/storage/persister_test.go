// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/copilot-engine/internal/model"
)

// sampleConversation builds a conversation with actions and a payload.
func sampleConversation(surface string, at time.Time) *model.Conversation {
	conv := model.NewConversation(surface, "Welcome to the RFP Evaluator.")
	conv.CreatedAt = at
	conv.UpdatedAt = at
	conv.Turns[0].Timestamp = at

	user := model.NewUserTurn("Show me pending RFP evaluations")
	user.Timestamp = at.Add(time.Second)
	conv.AddTurn(user, model.DefaultTitleMaxRunes)

	reply := model.NewAssistantTurn("There are **3 RFP evaluations** awaiting review.",
		[]model.Action{
			{ID: "act_1", Label: "Open evaluation board", Target: "/apps/rfp/board", Variant: model.VariantPrimary},
			{ID: "act_2", Label: "Assign evaluators", Target: "/apps/rfp/assign", Variant: model.VariantOutline},
		},
		&model.Payload{
			Kind:    model.PayloadRankedList,
			Title:   "Pending RFP evaluations",
			Columns: []string{"RFP", "Vendors"},
			Rows:    [][]string{{"Cloud Infrastructure", "5"}, {"Facilities Management", "4"}},
		})
	reply.Timestamp = at.Add(2 * time.Second)
	conv.AddTurn(reply, model.DefaultTitleMaxRunes)
	return conv
}

type persisterFactory struct {
	name string
	open func(t *testing.T) Persister
}

func persisters() []persisterFactory {
	return []persisterFactory{
		{"json", func(t *testing.T) Persister {
			p, err := NewJSONPersister(t.TempDir())
			require.NoError(t, err)
			return p
		}},
		{"sqlite", func(t *testing.T) Persister {
			p, err := NewSQLitePersister(filepath.Join(t.TempDir(), "test.db"))
			require.NoError(t, err)
			return p
		}},
	}
}

func TestPersister_RoundTrip(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	for _, pf := range persisters() {
		t.Run(pf.name, func(t *testing.T) {
			p := pf.open(t)
			defer p.Close()

			conv := sampleConversation("rfp", at)
			require.NoError(t, p.Save(ctx, conv))

			loaded, err := p.Load(ctx, conv.ID)
			require.NoError(t, err)
			if diff := cmp.Diff(conv, loaded); diff != "" {
				t.Errorf("round trip mismatch (-saved +loaded):\n%s", diff)
			}
		})
	}
}

func TestPersister_SaveReplaces(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	for _, pf := range persisters() {
		t.Run(pf.name, func(t *testing.T) {
			p := pf.open(t)
			defer p.Close()

			conv := sampleConversation("rfp", at)
			require.NoError(t, p.Save(ctx, conv))

			follow := model.NewUserTurn("Who are the top-ranked vendors?")
			follow.Timestamp = at.Add(time.Minute)
			conv.AddTurn(follow, model.DefaultTitleMaxRunes)
			require.NoError(t, p.Save(ctx, conv))

			loaded, err := p.Load(ctx, conv.ID)
			require.NoError(t, err)
			require.Len(t, loaded.Turns, 4)
			assert.Equal(t, "Who are the top-ranked vendors?", loaded.Turns[3].Content)
			assert.True(t, loaded.UpdatedAt.Equal(at.Add(time.Minute)))

			metas, err := p.List(ctx)
			require.NoError(t, err)
			assert.Len(t, metas, 1)
		})
	}
}

func TestPersister_ListOrderAndMeta(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	for _, pf := range persisters() {
		t.Run(pf.name, func(t *testing.T) {
			p := pf.open(t)
			defer p.Close()

			older := sampleConversation("rfp", base)
			newer := sampleConversation("invoice", base.Add(time.Hour))
			require.NoError(t, p.Save(ctx, older))
			require.NoError(t, p.Save(ctx, newer))

			metas, err := p.List(ctx)
			require.NoError(t, err)
			require.Len(t, metas, 2)
			assert.Equal(t, newer.ID, metas[0].ID)
			assert.Equal(t, older.ID, metas[1].ID)

			assert.Equal(t, "Show me pending RFP evaluations", metas[1].Title)
			assert.Equal(t, "rfp", metas[1].Surface)
			assert.Equal(t, 3, metas[1].TurnCount)
			assert.Equal(t, older.Preview(), metas[1].Preview)

			assert.Len(t, FilterSurface(metas, "invoice"), 1)
			assert.Len(t, FilterMetas(metas, "pending rfp"), 2)
			assert.Empty(t, FilterMetas(metas, "payroll"))
		})
	}
}

func TestPersister_Delete(t *testing.T) {
	ctx := context.Background()

	for _, pf := range persisters() {
		t.Run(pf.name, func(t *testing.T) {
			p := pf.open(t)
			defer p.Close()

			conv := sampleConversation("rfp", time.Now())
			require.NoError(t, p.Save(ctx, conv))
			require.NoError(t, p.Delete(ctx, conv.ID))

			_, err := p.Load(ctx, conv.ID)
			assert.True(t, errors.Is(err, ErrConversationNotFound))
			assert.True(t, errors.Is(p.Delete(ctx, conv.ID), ErrConversationNotFound))
		})
	}
}

func TestPersister_EnforcesLimit(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	for _, pf := range persisters() {
		t.Run(pf.name, func(t *testing.T) {
			p := pf.open(t)
			defer p.Close()

			switch v := p.(type) {
			case *JSONPersister:
				v.MaxConversations = 2
			case *SQLitePersister:
				v.MaxConversations = 2
			}

			var saved []*model.Conversation
			for i := 0; i < 3; i++ {
				conv := sampleConversation("rfp", base.Add(time.Duration(i)*time.Hour))
				require.NoError(t, p.Save(ctx, conv))
				saved = append(saved, conv)
			}

			metas, err := p.List(ctx)
			require.NoError(t, err)
			require.Len(t, metas, 2)
			_, err = p.Load(ctx, saved[0].ID)
			assert.True(t, errors.Is(err, ErrConversationNotFound), "oldest conversation evicted")
		})
	}
}

func TestPersister_RejectsUnsafeIDs(t *testing.T) {
	ctx := context.Background()

	for _, pf := range persisters() {
		t.Run(pf.name, func(t *testing.T) {
			p := pf.open(t)
			defer p.Close()

			conv := sampleConversation("rfp", time.Now())
			conv.ID = "../escape"
			assert.True(t, errors.Is(p.Save(ctx, conv), ErrInvalidID))

			_, err := p.Load(ctx, "../../etc/passwd")
			assert.True(t, errors.Is(err, ErrConversationNotFound))
		})
	}
}

func TestJSONPersister_FieldNamesAndOrder(t *testing.T) {
	dir := t.TempDir()
	p, err := NewJSONPersister(dir)
	require.NoError(t, err)

	conv := sampleConversation("rfp", time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC))
	require.NoError(t, p.Save(context.Background(), conv))

	data, err := os.ReadFile(filepath.Join(dir, conv.ID+".json"))
	require.NoError(t, err)
	text := string(data)

	order := []string{`"id"`, `"title"`, `"surface"`, `"turns"`, `"created_at"`, `"updated_at"`}
	last := -1
	for _, key := range order {
		idx := strings.Index(text, key)
		require.GreaterOrEqual(t, idx, 0, "missing %s", key)
		assert.Greater(t, idx, last, "%s out of order", key)
		last = idx
	}

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	var turns []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw["turns"], &turns))
	for _, key := range []string{"id", "role", "content", "timestamp"} {
		assert.Contains(t, turns[2], key)
	}
	assert.Contains(t, turns[2], "actions")
	assert.Contains(t, turns[2], "payload")
	assert.NotContains(t, turns[0], "actions", "empty actions are omitted")
}

func TestJSONPersister_SkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	p, err := NewJSONPersister(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "conv_bad.json"), []byte("{not json"), 0644))
	require.NoError(t, p.Save(context.Background(), sampleConversation("rfp", time.Now())))

	metas, err := p.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, metas, 1)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	p, err := Open(BackendMemory, dir, 10)
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = Open(BackendJSON, dir, 10)
	require.NoError(t, err)
	assert.IsType(t, &JSONPersister{}, p)
	p.Close()

	p, err = Open(BackendSQLite, dir, 10)
	require.NoError(t, err)
	assert.IsType(t, &SQLitePersister{}, p)
	p.Close()

	_, err = Open("postgres", dir, 10)
	assert.Error(t, err)
}

func TestConversationError_Is(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), ErrConversationNotFound)
	assert.True(t, errors.Is(wrapped, ErrConversationNotFound))
	assert.False(t, errors.Is(ErrLastConversation, ErrConversationNotFound))
	assert.True(t, errors.Is(&ConversationError{Message: "conversation not found"}, ErrConversationNotFound))
}
