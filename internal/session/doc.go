// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session drives one assistant surface: it accepts user text,
// appends it to the active conversation, and schedules the canned reply
// after its simulated latency.
//
// # Reply ordering
//
// With SerializeReplies (the default) replies to one conversation are
// chained: the timer for a reply starts only after the previous reply on
// that conversation has been appended, so assistant turns always arrive in
// submission order. Without it every reply gets an independent timer and a
// short reply can overtake a longer one submitted earlier.
//
// # Events
//
// Subscribe returns a channel of Events. Delivery never blocks the engine;
// when a subscriber falls behind, events for it are dropped.
package session
