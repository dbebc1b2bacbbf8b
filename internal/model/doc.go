// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for assistant conversations.
//
// This package defines the core domain types used by every assistant surface:
// the transcript of a session and the turns it is made of.
//
// # Key Types
//
//   - Conversation: an ordered, append-only transcript with identity and title
//   - Turn: one message with role, content, follow-up actions and an optional payload
//   - Action: a follow-up link rendered as a button by the presentation layer
//   - Payload: a small tagged table of rows attached to an assistant turn
//   - Role: user or assistant
//
// # Usage
//
// Create a conversation seeded with a greeting and add a user turn:
//
//	conv := model.NewConversation("rfp", "Hi! Ask me about open RFPs.")
//	conv.AddTurn(model.NewUserTurn("Show me pending RFP evaluations"), model.DefaultTitleMaxRunes)
//	fmt.Println(conv.DisplayTitle())
package model
