// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownCommand is returned when input names no registered command.
var ErrUnknownCommand = errors.New("unknown command")

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// Handler runs a command. Args are the parsed arguments; RawArgs keeps the
// argument text as typed.
type Handler func(ctx context.Context, inv Invocation) error

// Invocation is one parsed call of a command.
type Invocation struct {
	Command *Command
	Args    []string
	RawArgs string
}

// Arg returns the i'th argument or "".
func (inv Invocation) Arg(i int) string {
	if i < 0 || i >= len(inv.Args) {
		return ""
	}
	return inv.Args[i]
}

// Command represents a slash command that can be executed.
type Command struct {
	// Name is the primary command name (e.g., "/help")
	Name string

	// Aliases are alternative names (e.g., "/h")
	Aliases []string

	// Description is shown in help and completion
	Description string

	// Usage shows argument syntax (e.g., "/select <n|id>")
	Usage string

	Args    []ArgDef
	Handler Handler

	// Hidden commands don't appear in help or completion
	Hidden bool
}

// UsageLine returns Usage, or the name when no usage is set.
func (c *Command) UsageLine() string {
	if c.Usage != "" {
		return c.Usage
	}
	return c.Name
}

// ArgDef defines an argument for a command.
type ArgDef struct {
	Name        string
	Required    bool
	Type        ArgType
	Description string

	// Values for ArgEnum
	Values []string
}

// ArgType indicates what kind of completion to provide.
type ArgType int

const (
	ArgString       ArgType = iota // Free-form text
	ArgConversation                // Conversation number or ID
	ArgSurface                     // Assistant surface name
	ArgEnum                        // One of Values
)

// =============================================================================
// COMMAND REGISTRY
// =============================================================================

// Registry holds registered commands. It is not safe for concurrent
// registration; register everything before use.
type Registry struct {
	commands map[string]*Command
	aliases  map[string]*Command
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]*Command),
		aliases:  make(map[string]*Command),
	}
}

// Register adds a command. Names and aliases are case-insensitive.
func (r *Registry) Register(cmd *Command) {
	r.commands[strings.ToLower(cmd.Name)] = cmd
	for _, alias := range cmd.Aliases {
		r.aliases[strings.ToLower(alias)] = cmd
	}
}

// Get retrieves a command by name or alias.
func (r *Registry) Get(name string) *Command {
	name = strings.ToLower(name)
	if cmd, ok := r.commands[name]; ok {
		return cmd
	}
	return r.aliases[name]
}

// All returns all registered commands sorted by name.
func (r *Registry) All() []*Command {
	cmds := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	return cmds
}

// Visible returns the commands shown in help, sorted by name.
func (r *Registry) Visible() []*Command {
	var out []*Command
	for _, cmd := range r.All() {
		if !cmd.Hidden {
			out = append(out, cmd)
		}
	}
	return out
}

// Parse parses input against this registry.
func (r *Registry) Parse(input string) ParseResult {
	res := Parse(input)
	if res.IsCommand && res.CommandName != "" {
		res.Command = r.Get(res.CommandName)
	}
	return res
}

// Execute validates the arguments and runs the command's handler.
func (r *Registry) Execute(ctx context.Context, res ParseResult) error {
	if !res.IsCommand {
		return nil
	}
	if res.Command == nil {
		return fmt.Errorf("%w %s (try /help)", ErrUnknownCommand, res.CommandName)
	}
	if err := ValidateArgs(res.Command, res.Args); err != nil {
		return err
	}
	if res.Command.Handler == nil {
		return nil
	}
	return res.Command.Handler(ctx, Invocation{
		Command: res.Command,
		Args:    res.Args,
		RawArgs: res.RawArgs,
	})
}
