// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"strings"
	"unicode"
)

// =============================================================================
// PARSE RESULT
// =============================================================================

// ParseResult contains the result of parsing user input.
type ParseResult struct {
	// IsCommand is true if the input starts with /
	IsCommand bool

	// Command is the matched command (nil if not found or not looked up)
	Command *Command

	// CommandName is the raw command name (e.g., "/help")
	CommandName string

	Args []string

	// RawArgs is the unparsed arguments portion
	RawArgs string

	RawInput string
}

// Parse splits input into a command name and arguments. Input that does not
// start with / is not a command.
func Parse(input string) ParseResult {
	input = strings.TrimSpace(input)
	res := ParseResult{RawInput: input}
	if !strings.HasPrefix(input, "/") {
		return res
	}
	res.IsCommand = true

	name, rest := input, ""
	if i := strings.IndexFunc(input, unicode.IsSpace); i >= 0 {
		name, rest = input[:i], input[i:]
	}
	res.CommandName = name
	res.RawArgs = strings.TrimSpace(rest)
	res.Args = splitCommandLine(res.RawArgs)
	return res
}

// =============================================================================
// ARGUMENT PARSING
// =============================================================================

// splitCommandLine splits a command line into tokens, respecting single and
// double quotes. A backslash inside quotes escapes a quote or backslash.
func splitCommandLine(input string) []string {
	var tokens []string
	var current strings.Builder
	var inSingle, inDouble, quoted bool

	runes := []rune(input)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\'' && !inDouble:
			inSingle = !inSingle
			quoted = true

		case r == '"' && !inSingle:
			inDouble = !inDouble
			quoted = true

		case r == '\\' && i+1 < len(runes) && (inSingle || inDouble):
			next := runes[i+1]
			if next == '"' || next == '\'' || next == '\\' {
				current.WriteRune(next)
				i++
			} else {
				current.WriteRune(r)
			}

		case unicode.IsSpace(r) && !inSingle && !inDouble:
			if current.Len() > 0 || quoted {
				tokens = append(tokens, current.String())
				current.Reset()
				quoted = false
			}

		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 || quoted {
		tokens = append(tokens, current.String())
	}
	return tokens
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidateArgs checks required arguments and enum values.
func ValidateArgs(cmd *Command, args []string) error {
	if cmd == nil {
		return nil
	}
	for i, def := range cmd.Args {
		if i >= len(args) {
			if def.Required {
				return &ValidationError{
					Command: cmd.Name,
					Arg:     def.Name,
					Message: "missing argument",
					Usage:   cmd.UsageLine(),
				}
			}
			continue
		}
		if def.Type == ArgEnum && len(def.Values) > 0 && !containsFold(def.Values, args[i]) {
			return &ValidationError{
				Command: cmd.Name,
				Arg:     def.Name,
				Message: "invalid value " + args[i],
				Usage:   cmd.Name + " " + strings.Join(def.Values, "|"),
			}
		}
	}
	return nil
}

func containsFold(values []string, s string) bool {
	for _, v := range values {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// ValidationError represents an argument validation error.
type ValidationError struct {
	Command string
	Arg     string
	Message string
	Usage   string
}

func (e *ValidationError) Error() string {
	msg := e.Command + ": " + e.Message
	if e.Arg != "" {
		msg += " <" + e.Arg + ">"
	}
	if e.Usage != "" {
		msg += " (usage: " + e.Usage + ")"
	}
	return msg
}
