// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"sort"
	"strings"
)

// =============================================================================
// COMPLETION TYPE
// =============================================================================

// Completion represents a completion suggestion.
type Completion struct {
	// Value to insert
	Value string

	// Description shown alongside
	Description string

	// Score for ranking (higher = better match)
	Score int
}

// =============================================================================
// COMPLETER
// =============================================================================

// Completer handles tab completion for commands and arguments.
type Completer struct {
	registry *Registry

	// Callbacks for dynamic completion, set by the application.
	ConversationsFn func() []Completion // Conversation numbers or IDs
	SurfacesFn      func() []string     // Surface names
}

// NewCompleter creates a completer over registry.
func NewCompleter(registry *Registry) *Completer {
	return &Completer{registry: registry}
}

// Complete returns completions for the token being typed at the end of
// input. Plain text (not a command) completes to nothing.
func (c *Completer) Complete(input string) []Completion {
	if !strings.HasPrefix(strings.TrimLeft(input, " "), "/") {
		return nil
	}
	trailingSpace := strings.HasSuffix(input, " ")
	res := Parse(input)

	if len(res.Args) == 0 && !trailingSpace {
		return c.completeCommands(res.CommandName)
	}

	cmd := c.registry.Get(res.CommandName)
	if cmd == nil {
		return nil
	}
	argIndex, partial := len(res.Args), ""
	if !trailingSpace && len(res.Args) > 0 {
		argIndex = len(res.Args) - 1
		partial = res.Args[argIndex]
	}
	return c.completeArg(cmd, argIndex, partial)
}

// Lines returns whole input lines for each completion, the form line
// editors expect: the input up to the token being completed, plus the value.
func (c *Completer) Lines(input string) []string {
	completions := c.Complete(input)
	if len(completions) == 0 {
		return nil
	}
	head := input
	if !strings.HasSuffix(input, " ") {
		if i := strings.LastIndex(input, " "); i >= 0 {
			head = input[:i+1]
		} else {
			head = input[:len(input)-len(strings.TrimLeft(input, " "))]
		}
	}
	lines := make([]string, len(completions))
	for i, comp := range completions {
		lines[i] = head + comp.Value
	}
	return lines
}

// completeCommands returns completions for command names and aliases.
func (c *Completer) completeCommands(partial string) []Completion {
	partial = strings.ToLower(partial)
	var completions []Completion
	for _, cmd := range c.registry.Visible() {
		if strings.HasPrefix(strings.ToLower(cmd.Name), partial) {
			completions = append(completions, Completion{
				Value:       cmd.Name,
				Description: cmd.Description,
				Score:       calculateScore(cmd.Name, partial),
			})
			continue
		}
		for _, alias := range cmd.Aliases {
			if strings.HasPrefix(strings.ToLower(alias), partial) {
				completions = append(completions, Completion{
					Value:       alias,
					Description: cmd.Description,
					Score:       calculateScore(alias, partial) - 10,
				})
			}
		}
	}
	sortCompletions(completions)
	return completions
}

// completeArg returns completions for a command argument.
func (c *Completer) completeArg(cmd *Command, argIndex int, partial string) []Completion {
	if argIndex < 0 || argIndex >= len(cmd.Args) {
		return nil
	}
	arg := cmd.Args[argIndex]

	switch arg.Type {
	case ArgConversation:
		if c.ConversationsFn == nil {
			return nil
		}
		return filterCompletions(c.ConversationsFn(), partial)
	case ArgSurface:
		if c.SurfacesFn == nil {
			return nil
		}
		return completeFromList(c.SurfacesFn(), partial)
	case ArgEnum:
		return completeFromList(arg.Values, partial)
	default:
		return nil
	}
}

func completeFromList(values []string, partial string) []Completion {
	completions := make([]Completion, 0, len(values))
	for _, v := range values {
		completions = append(completions, Completion{Value: v})
	}
	return filterCompletions(completions, partial)
}

func filterCompletions(candidates []Completion, partial string) []Completion {
	partial = strings.ToLower(partial)
	var completions []Completion
	for _, comp := range candidates {
		if strings.HasPrefix(strings.ToLower(comp.Value), partial) {
			comp.Score = calculateScore(comp.Value, partial)
			completions = append(completions, comp)
		}
	}
	sortCompletions(completions)
	return completions
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// calculateScore ranks a prefix match. Exact matches score highest, then
// shorter values.
func calculateScore(value, partial string) int {
	value = strings.ToLower(value)
	partial = strings.ToLower(partial)
	if value == partial {
		return 200
	}
	return 150 - len(value)
}

// sortCompletions sorts completions by score (descending), then alphabetically.
func sortCompletions(completions []Completion) {
	sort.SliceStable(completions, func(i, j int) bool {
		if completions[i].Score != completions[j].Score {
			return completions[i].Score > completions[j].Score
		}
		return completions[i].Value < completions[j].Value
	})
}
