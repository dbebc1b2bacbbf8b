// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/copilot-engine/internal/session"
)

// EventMsg carries a controller event into the Bubble Tea loop. Gen ties it
// to the subscription that produced it so events from a surface that is no
// longer shown are ignored.
type EventMsg struct {
	Gen   int
	Event session.Event
}

// SubscriptionClosedMsg reports that the controller closed the channel.
type SubscriptionClosedMsg struct {
	Gen int
}

// StatusMsg sets the status line.
type StatusMsg struct {
	Text  string
	Error bool
}

// waitForEvent blocks on the subscription channel for one event.
func waitForEvent(gen int, ch <-chan session.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return SubscriptionClosedMsg{Gen: gen}
		}
		return EventMsg{Gen: gen, Event: ev}
	}
}
