// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

// =============================================================================
// ERRORS
// =============================================================================

// ErrConversationNotFound is returned when a conversation doesn't exist.
// Use errors.Is(err, ErrConversationNotFound) to check for this error.
var ErrConversationNotFound = &ConversationError{Message: "conversation not found"}

// ErrLastConversation is returned when deleting the only conversation.
var ErrLastConversation = &ConversationError{Message: "cannot delete the last conversation"}

// ErrInvalidID is returned for identifiers that cannot name a stored record.
var ErrInvalidID = &ConversationError{Message: "invalid conversation id"}

// ErrNoPersister is returned by operations that need persistence when the
// store is memory only.
var ErrNoPersister = &ConversationError{Message: "persistence is not configured"}

// ConversationError represents a conversation-related error.
// It implements the error interface and can be compared using errors.Is.
type ConversationError struct {
	Message string
}

// Error implements the error interface.
func (e *ConversationError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing conversation errors.
func (e *ConversationError) Is(target error) bool {
	t, ok := target.(*ConversationError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}
