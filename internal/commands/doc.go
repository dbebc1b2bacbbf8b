// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package commands provides the slash command system for interactive chat.
//
// # Key Types
//
//   - Registry: registered commands, looked up by name or alias
//   - ParseResult: parsed command with name and arguments
//   - Completer: tab completion for command names and arguments
//
// # Usage
//
//	reg := commands.NewRegistry()
//	reg.Register(&commands.Command{
//	    Name:    "/select",
//	    Args:    []commands.ArgDef{{Name: "conversation", Required: true, Type: commands.ArgConversation}},
//	    Handler: selectConversation,
//	})
//
//	if res := reg.Parse(input); res.IsCommand {
//	    err := reg.Execute(ctx, res)
//	}
package commands
