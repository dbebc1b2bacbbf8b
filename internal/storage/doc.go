// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage holds assistant conversations in memory and, optionally,
// persists them to disk.
//
// # Store
//
// A Store is the per-surface list of conversations. The head of the list is
// the most recently created or loaded conversation, and exactly one
// conversation is active at a time. A Store is never empty: constructing one
// creates the first conversation, and deleting the last one is refused.
//
// Every conversation handed out by a Store is a deep copy. Mutations only go
// through Store methods, which keeps the store consistent when reply timers
// append from other goroutines.
//
// # Persistence
//
// A Persister saves conversations between runs. Two implementations exist:
//
//   - JSONPersister: one <id>.json file per conversation, written atomically
//   - SQLitePersister: conversations and turns tables in a SQLite database
//
// Persistence is best effort from the Store's point of view: failures are
// logged and never reach the caller of Append.
//
// # Usage
//
//	p, err := storage.NewJSONPersister(dir)
//	store := storage.NewStore("rfp", greeting, storage.WithPersister(p))
//	store.Restore(ctx)
//
//	conv := store.Create()
//	store.Append(conv.ID, model.NewUserTurn("Show me pending RFP evaluations"))
package storage
