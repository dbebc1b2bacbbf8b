// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"go.uber.org/zap"

	"github.com/jeranaias/copilot-engine/internal/model"
)

// EventKind identifies what changed.
type EventKind string

const (
	// EventTurnAppended fires for every user or assistant turn appended.
	EventTurnAppended EventKind = "turn_appended"

	// EventReplyPending fires when a reply is scheduled.
	EventReplyPending EventKind = "reply_pending"

	// EventReplyDropped fires when a reply could not be delivered because its
	// conversation no longer exists.
	EventReplyDropped EventKind = "reply_dropped"
)

// Event is delivered to subscribers.
type Event struct {
	Kind           EventKind   `json:"kind"`
	Surface        string      `json:"surface"`
	ConversationID string      `json:"conversation_id"`
	Turn           *model.Turn `json:"turn,omitempty"`
}

// Subscribe returns a channel of events and a function that unsubscribes
// and closes the channel. The channel is also closed by Close.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Event, c.cfg.SubscriberBuffer)
	if c.closed {
		close(ch)
		return ch, func() {}
	}

	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
}

// publishLocked delivers ev without blocking. Each subscriber gets its own
// copy of the turn. Caller holds c.mu.
func (c *Controller) publishLocked(ev Event) {
	for id, ch := range c.subs {
		out := ev
		if ev.Turn != nil {
			out.Turn = ev.Turn.Clone()
		}
		select {
		case ch <- out:
		default:
			c.logger.Debug("subscriber buffer full, event dropped",
				zap.Int("subscriber", id),
				zap.String("kind", string(ev.Kind)),
				zap.String("conversation_id", ev.ConversationID))
		}
	}
}
