// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/copilot-engine/internal/model"
	"github.com/jeranaias/copilot-engine/internal/session"
)

// defaultReplyTimeout bounds how long ask and chat wait for one reply.
const defaultReplyTimeout = 30 * time.Second

var (
	// ErrEmptyInput is returned when the message is blank.
	ErrEmptyInput = errors.New("message is empty")

	// ErrReplyDropped is returned when the conversation disappeared before
	// its reply arrived.
	ErrReplyDropped = errors.New("reply dropped: conversation was deleted")

	// ErrAssistantClosed is returned when the surface closed while waiting.
	ErrAssistantClosed = errors.New("assistant closed")
)

// AskResult is the --json payload of the ask command.
type AskResult struct {
	Surface      string              `json:"surface"`
	Reply        *model.Turn         `json:"reply"`
	Conversation *model.Conversation `json:"conversation"`
}

func (a *App) newAskCmd() *cobra.Command {
	var (
		surface string
		jsonOut bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "ask [text]",
		Short: "Ask a single question and print the reply",
		Long: `Sends one message to a fresh conversation and waits for the reply.

Examples:
  copilot ask "Show me pending RFP evaluations" --surface rfp
  copilot ask --json "what is overdue" -s invoice`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAsk(cmd, surface, strings.Join(args, " "), jsonOut, timeout)
		},
	}
	cmd.Flags().StringVarP(&surface, "surface", "s", "", "assistant surface")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the conversation as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", defaultReplyTimeout, "how long to wait for the reply")
	return cmd
}

func (a *App) runAsk(cmd *cobra.Command, surface, text string, jsonOut bool, timeout time.Duration) error {
	hub, err := a.openHub()
	if err != nil {
		return err
	}
	defer hub.Shutdown()

	sf, err := resolveSurface(hub, surface)
	if err != nil {
		return err
	}

	events, unsubscribe := sf.Controller.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	conv := sf.Controller.NewConversation()
	if _, ok := sf.Controller.SubmitTo(ctx, conv.ID, text); !ok {
		return ErrEmptyInput
	}

	reply, err := awaitReply(ctx, events, conv.ID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		full, err := sf.Store.Get(conv.ID)
		if err != nil {
			return err
		}
		return NewJSONResponse("ask", AskResult{Surface: sf.Name, Reply: reply, Conversation: full}).Write(out)
	}
	writeTurn(out, reply)
	return nil
}

// awaitReply waits for the next assistant turn appended to convID.
func awaitReply(ctx context.Context, events <-chan session.Event, convID string) (*model.Turn, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for reply: %w", ctx.Err())
		case ev, ok := <-events:
			if !ok {
				return nil, ErrAssistantClosed
			}
			if ev.ConversationID != convID {
				continue
			}
			switch ev.Kind {
			case session.EventTurnAppended:
				if ev.Turn != nil && ev.Turn.Role == model.RoleAssistant {
					return ev.Turn, nil
				}
			case session.EventReplyDropped:
				return nil, ErrReplyDropped
			}
		}
	}
}
