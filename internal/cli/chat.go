// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/copilot-engine/internal/assistant"
	"github.com/jeranaias/copilot-engine/internal/commands"
	"github.com/jeranaias/copilot-engine/internal/config"
	"github.com/jeranaias/copilot-engine/internal/model"
	"github.com/jeranaias/copilot-engine/internal/session"
	"github.com/jeranaias/copilot-engine/internal/storage"
	"github.com/jeranaias/copilot-engine/internal/ui/markup"
	"github.com/jeranaias/copilot-engine/internal/util"
)

const historyFileName = "chat_history"

// =============================================================================
// INPUT
// =============================================================================

// lineReader reads one line of input per call.
type lineReader interface {
	ReadInput(prompt string) (string, error)
	Close()
}

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a ChatCLI that keeps its history in historyFile and
// tab-completes with complete when it is non-nil.
func NewChatCLI(historyFile string, complete func(string) []string) *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	if complete != nil {
		line.SetTabCompletionStyle(liner.TabPrints)
		line.SetCompleter(complete)
	}

	c := &ChatCLI{line: line, historyFile: historyFile}
	c.LoadHistory()
	return c
}

// LoadHistory loads command history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		_, _ = c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line with the given prompt. Non-blank input is added to
// the history.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory writes the history file, owner read/write only.
func (c *ChatCLI) SaveHistory() {
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0700); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = c.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// scanReader reads lines from a plain reader, for pipes and tests.
type scanReader struct {
	scanner *bufio.Scanner
	out     io.Writer
}

func (s *scanReader) ReadInput(prompt string) (string, error) {
	fmt.Fprint(s.out, prompt)
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return s.scanner.Text(), nil
}

func (s *scanReader) Close() {}

// =============================================================================
// CHAT COMMAND
// =============================================================================

func (a *App) newChatCmd() *cobra.Command {
	var (
		surface string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive line-based chat",
		Long: `Starts a chat with one assistant surface. Replies are printed after
their simulated typing delay.

Commands during chat:
  /new             start a new conversation
  /list            list conversations
  /search <text>   search conversation titles and previews
  /select <n|id>   switch to a conversation
  /delete <n|id>   delete a conversation
  /surface <name>  switch assistant
  /help            show this help
  /quit            exit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runChat(cmd, surface, timeout)
		},
	}
	cmd.Flags().StringVarP(&surface, "surface", "s", "", "assistant surface")
	cmd.Flags().DurationVar(&timeout, "timeout", defaultReplyTimeout, "how long to wait for each reply")
	return cmd
}

func (a *App) runChat(cmd *cobra.Command, surface string, timeout time.Duration) error {
	hub, err := a.openHub()
	if err != nil {
		return err
	}
	defer hub.Shutdown()

	out := cmd.OutOrStdout()
	s := newChatSession(hub, out, timeout)
	if err := s.attach(surface); err != nil {
		return err
	}
	defer s.detach()

	reader := a.newLineReader(out, s.completer.Lines)
	defer reader.Close()

	s.printWelcome()
	ctx := cmd.Context()
	for {
		input, err := reader.ReadInput(promptStyle.Render("you> "))
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				fmt.Fprintln(out)
				return nil
			}
			return err
		}
		quit, err := s.handle(ctx, input)
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("Error:"), err)
		}
		if quit || ctx.Err() != nil {
			return nil
		}
	}
}

func (a *App) newLineReader(out io.Writer, complete func(string) []string) lineReader {
	if a.in != nil {
		return &scanReader{scanner: bufio.NewScanner(a.in), out: out}
	}
	if !IsTerminal(os.Stdin) {
		return &scanReader{scanner: bufio.NewScanner(os.Stdin), out: out}
	}
	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return NewChatCLI(filepath.Join(dir, historyFileName), complete)
}

// =============================================================================
// CHAT SESSION
// =============================================================================

// errQuit ends the REPL.
var errQuit = errors.New("quit")

// chatSession is the REPL state for one surface at a time.
type chatSession struct {
	hub     *assistant.Hub
	out     io.Writer
	timeout time.Duration

	registry  *commands.Registry
	completer *commands.Completer

	sf          *assistant.Surface
	events      <-chan session.Event
	unsubscribe func()
}

func newChatSession(hub *assistant.Hub, out io.Writer, timeout time.Duration) *chatSession {
	s := &chatSession{hub: hub, out: out, timeout: timeout}
	s.registry = s.newRegistry()
	s.completer = commands.NewCompleter(s.registry)
	s.completer.SurfacesFn = hub.Surfaces
	s.completer.ConversationsFn = s.conversationChoices
	return s
}

func (s *chatSession) attach(name string) error {
	sf, err := resolveSurface(s.hub, name)
	if err != nil {
		return err
	}
	s.detach()
	s.sf = sf
	s.events, s.unsubscribe = sf.Controller.Subscribe()
	return nil
}

func (s *chatSession) detach() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

func (s *chatSession) printWelcome() {
	fmt.Fprintln(s.out, titleStyle.Render(s.sf.Title()))
	fmt.Fprintln(s.out, infoStyle.Render("Type /help for commands, /quit to exit."))
	fmt.Fprintln(s.out)
	s.printActive()
}

// printActive prints the active conversation's transcript and, while it is
// fresh, the suggestions.
func (s *chatSession) printActive() {
	conv := s.sf.Store.Active()
	for _, t := range conv.Turns {
		s.printTurn(t)
	}
	if suggestions := s.sf.Controller.SuggestionsFor(conv.ID); len(suggestions) > 0 {
		fmt.Fprintln(s.out, infoStyle.Render("Try asking:"))
		for _, q := range suggestions {
			fmt.Fprintln(s.out, "  "+commandStyle.Render(q))
		}
		fmt.Fprintln(s.out)
	}
}

func (s *chatSession) printTurn(t *model.Turn) {
	if t.Role == model.RoleUser {
		fmt.Fprintln(s.out, promptStyle.Render("you> ")+markup.Plain(t.Content))
		return
	}
	fmt.Fprintln(s.out, titleStyle.Render(t.Role.DisplayName()+":"))
	writeTurn(s.out, t)
	fmt.Fprintln(s.out)
}

// handle runs one line of input. It reports whether the REPL should exit.
func (s *chatSession) handle(ctx context.Context, input string) (bool, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return false, nil
	}
	if res := s.registry.Parse(input); res.IsCommand {
		err := s.registry.Execute(ctx, res)
		if errors.Is(err, errQuit) {
			return true, nil
		}
		return false, err
	}

	convID := s.sf.Store.ActiveID()
	if _, ok := s.sf.Controller.SubmitTo(ctx, convID, input); !ok {
		return false, ErrAssistantClosed
	}

	wctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	reply, err := awaitReply(wctx, s.events, convID)
	if err != nil {
		return false, err
	}
	fmt.Fprintln(s.out, titleStyle.Render(reply.Role.DisplayName()+":"))
	writeTurn(s.out, reply)
	fmt.Fprintln(s.out)
	return false, nil
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

func (s *chatSession) newRegistry() *commands.Registry {
	conversationArg := []commands.ArgDef{{Name: "n|id", Required: true, Type: commands.ArgConversation}}

	r := commands.NewRegistry()
	r.Register(&commands.Command{
		Name:        "/quit",
		Aliases:     []string{"/q", "/exit"},
		Description: "exit",
		Handler: func(context.Context, commands.Invocation) error {
			return errQuit
		},
	})
	r.Register(&commands.Command{
		Name:        "/help",
		Aliases:     []string{"/h", "/?"},
		Description: "show this help",
		Handler: func(context.Context, commands.Invocation) error {
			s.printHelp()
			return nil
		},
	})
	r.Register(&commands.Command{
		Name:        "/new",
		Aliases:     []string{"/n"},
		Description: "start a new conversation",
		Handler: func(context.Context, commands.Invocation) error {
			s.sf.Controller.NewConversation()
			fmt.Fprintln(s.out, infoStyle.Render("Started a new conversation."))
			fmt.Fprintln(s.out)
			s.printActive()
			return nil
		},
	})
	r.Register(&commands.Command{
		Name:        "/list",
		Aliases:     []string{"/l"},
		Description: "list conversations",
		Handler: func(context.Context, commands.Invocation) error {
			s.printList(s.sf.Store.List())
			return nil
		},
	})
	r.Register(&commands.Command{
		Name:        "/search",
		Usage:       "/search <text>",
		Description: "search titles and previews",
		Args:        []commands.ArgDef{{Name: "text", Required: true}},
		Handler: func(_ context.Context, inv commands.Invocation) error {
			s.printList(s.sf.Store.Search(strings.Join(inv.Args, " ")))
			return nil
		},
	})
	r.Register(&commands.Command{
		Name:        "/select",
		Usage:       "/select <n|id>",
		Description: "switch conversation",
		Args:        conversationArg,
		Handler: func(_ context.Context, inv commands.Invocation) error {
			conv, err := s.resolve(inv.Arg(0))
			if err != nil {
				return err
			}
			if err := s.sf.Controller.Select(conv.ID); err != nil {
				return err
			}
			fmt.Fprintln(s.out, infoStyle.Render("Switched to: "+conv.DisplayTitle()))
			fmt.Fprintln(s.out)
			s.printActive()
			return nil
		},
	})
	r.Register(&commands.Command{
		Name:        "/delete",
		Usage:       "/delete <n|id>",
		Description: "delete a conversation",
		Args:        conversationArg,
		Handler: func(_ context.Context, inv commands.Invocation) error {
			conv, err := s.resolve(inv.Arg(0))
			if err != nil {
				return err
			}
			if err := s.sf.Controller.Delete(conv.ID); err != nil {
				return err
			}
			fmt.Fprintln(s.out, infoStyle.Render("Deleted: "+conv.DisplayTitle()))
			return nil
		},
	})
	r.Register(&commands.Command{
		Name:        "/surface",
		Usage:       "/surface <name>",
		Description: "switch assistant",
		Args:        []commands.ArgDef{{Name: "name", Type: commands.ArgSurface}},
		Handler: func(_ context.Context, inv commands.Invocation) error {
			if len(inv.Args) == 0 {
				fmt.Fprintln(s.out, "Surfaces: "+strings.Join(s.hub.Surfaces(), ", "))
				return nil
			}
			if err := s.attach(inv.Arg(0)); err != nil {
				return err
			}
			fmt.Fprintln(s.out)
			s.printWelcome()
			return nil
		},
	})
	return r
}

func (s *chatSession) printHelp() {
	for _, cmd := range s.registry.Visible() {
		fmt.Fprintf(s.out, "  %s %s\n", commandStyle.Render(util.PadWidth(cmd.UsageLine(), 16)), cmd.Description)
	}
}

// conversationChoices completes /select and /delete with list positions.
func (s *chatSession) conversationChoices() []commands.Completion {
	if s.sf == nil {
		return nil
	}
	convs := s.sf.Store.List()
	out := make([]commands.Completion, len(convs))
	for i, c := range convs {
		out[i] = commands.Completion{Value: strconv.Itoa(i + 1), Description: c.DisplayTitle()}
	}
	return out
}

func (s *chatSession) printList(convs []*model.Conversation) {
	if len(convs) == 0 {
		fmt.Fprintln(s.out, "No conversations found.")
		return
	}
	activeID := s.sf.Store.ActiveID()
	for i, c := range convs {
		marker := " "
		if c.ID == activeID {
			marker = "*"
		}
		fmt.Fprintf(s.out, "%s %2d. %s  %s\n", marker, i+1,
			util.PadWidth(util.TruncateWidth(c.DisplayTitle(), 40), 40),
			infoStyle.Render(fmt.Sprintf("%d turns", c.TurnCount())))
	}
}

// resolve finds a conversation by 1-based list position, exact ID or
// unique ID prefix.
func (s *chatSession) resolve(arg string) (*model.Conversation, error) {
	if arg == "" {
		return nil, errors.New("missing conversation number or id")
	}
	convs := s.sf.Store.List()
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(convs) {
			return nil, fmt.Errorf("no conversation #%d", n)
		}
		return convs[n-1], nil
	}

	var match *model.Conversation
	for _, c := range convs {
		if c.ID == arg {
			return c, nil
		}
		if strings.HasPrefix(c.ID, arg) {
			if match != nil {
				return nil, fmt.Errorf("ambiguous conversation id %q", arg)
			}
			match = c
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s", storage.ErrConversationNotFound, arg)
	}
	return match, nil
}
