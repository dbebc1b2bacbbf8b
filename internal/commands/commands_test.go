// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func testRegistry(calls *[]Invocation) *Registry {
	record := func(ctx context.Context, inv Invocation) error {
		*calls = append(*calls, inv)
		return nil
	}
	r := NewRegistry()
	r.Register(&Command{Name: "/quit", Aliases: []string{"/q", "/exit"}, Description: "exit", Handler: record})
	r.Register(&Command{Name: "/help", Aliases: []string{"/h"}, Description: "show help", Handler: record})
	r.Register(&Command{
		Name:    "/search",
		Usage:   "/search <text>",
		Args:    []ArgDef{{Name: "text", Required: true}},
		Handler: record,
	})
	r.Register(&Command{
		Name:    "/select",
		Usage:   "/select <n|id>",
		Args:    []ArgDef{{Name: "conversation", Required: true, Type: ArgConversation}},
		Handler: record,
	})
	r.Register(&Command{
		Name:    "/surface",
		Args:    []ArgDef{{Name: "name", Type: ArgSurface}},
		Handler: record,
	})
	r.Register(&Command{
		Name:    "/format",
		Args:    []ArgDef{{Name: "format", Type: ArgEnum, Values: []string{"markdown", "json", "html"}}},
		Handler: record,
		Hidden:  true,
	})
	return r
}

// =============================================================================
// PARSER TESTS
// =============================================================================

func TestParse(t *testing.T) {
	tests := []struct {
		input     string
		isCommand bool
		name      string
		args      []string
		rawArgs   string
	}{
		{"/help", true, "/help", nil, ""},
		{"  /select 2  ", true, "/select", []string{"2"}, "2"},
		{"/search vendor rankings", true, "/search", []string{"vendor", "rankings"}, "vendor rankings"},
		{`/search "late invoices" 'Q3 dip'`, true, "/search", []string{"late invoices", "Q3 dip"}, `"late invoices" 'Q3 dip'`},
		{`/search "say \"hi\""`, true, "/search", []string{`say "hi"`}, `"say \"hi\""`},
		{`/search ""`, true, "/search", []string{""}, `""`},
		{"/surface\tinvoice", true, "/surface", []string{"invoice"}, "invoice"},
		{"/", true, "/", nil, ""},
		{"hello /help", false, "", nil, ""},
		{"", false, "", nil, ""},
	}

	for _, tc := range tests {
		got := Parse(tc.input)
		if got.IsCommand != tc.isCommand {
			t.Errorf("Parse(%q).IsCommand = %v, want %v", tc.input, got.IsCommand, tc.isCommand)
		}
		if got.CommandName != tc.name {
			t.Errorf("Parse(%q).CommandName = %q, want %q", tc.input, got.CommandName, tc.name)
		}
		if !reflect.DeepEqual(got.Args, tc.args) {
			t.Errorf("Parse(%q).Args = %q, want %q", tc.input, got.Args, tc.args)
		}
		if got.RawArgs != tc.rawArgs {
			t.Errorf("Parse(%q).RawArgs = %q, want %q", tc.input, got.RawArgs, tc.rawArgs)
		}
	}
}

func TestRegistryLookup(t *testing.T) {
	var calls []Invocation
	r := testRegistry(&calls)

	for _, name := range []string{"/quit", "/q", "/EXIT", "/Quit"} {
		if cmd := r.Get(name); cmd == nil || cmd.Name != "/quit" {
			t.Errorf("Get(%q) = %v, want /quit", name, cmd)
		}
	}
	if r.Get("/bogus") != nil {
		t.Error("Get(/bogus) should be nil")
	}

	var names []string
	for _, cmd := range r.Visible() {
		names = append(names, cmd.Name)
	}
	want := []string{"/help", "/quit", "/search", "/select", "/surface"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("Visible() = %v, want %v", names, want)
	}
	if len(r.All()) != 6 {
		t.Errorf("All() has %d commands, want 6", len(r.All()))
	}
}

func TestExecute(t *testing.T) {
	var calls []Invocation
	r := testRegistry(&calls)
	ctx := context.Background()

	if err := r.Execute(ctx, r.Parse("/search late  invoices")); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(calls) != 1 || calls[0].RawArgs != "late  invoices" || calls[0].Arg(1) != "invoices" {
		t.Fatalf("unexpected invocation %+v", calls)
	}
	if calls[0].Arg(5) != "" {
		t.Error("out of range Arg should be empty")
	}

	err := r.Execute(ctx, r.Parse("/bogus now"))
	if !errors.Is(err, ErrUnknownCommand) || err.Error() != "unknown command /bogus (try /help)" {
		t.Errorf("Execute(/bogus) = %v", err)
	}

	var verr *ValidationError
	err = r.Execute(ctx, r.Parse("/select"))
	if !errors.As(err, &verr) || verr.Arg != "conversation" {
		t.Fatalf("Execute(/select) = %v, want missing argument", err)
	}
	if err.Error() != "/select: missing argument <conversation> (usage: /select <n|id>)" {
		t.Errorf("unexpected message %q", err.Error())
	}

	err = r.Execute(ctx, r.Parse("/format pdf"))
	if !errors.As(err, &verr) {
		t.Errorf("Execute(/format pdf) = %v, want invalid value", err)
	}
	if err := r.Execute(ctx, r.Parse("/format HTML")); err != nil {
		t.Errorf("enum values are case-insensitive: %v", err)
	}

	if err := r.Execute(ctx, r.Parse("plain text")); err != nil {
		t.Errorf("non-command input should be a no-op: %v", err)
	}
	if len(calls) != 2 {
		t.Errorf("handler ran %d times, want 2", len(calls))
	}
}

// =============================================================================
// COMPLETION TESTS
// =============================================================================

func values(completions []Completion) []string {
	var out []string
	for _, c := range completions {
		out = append(out, c.Value)
	}
	return out
}

func TestComplete(t *testing.T) {
	var calls []Invocation
	c := NewCompleter(testRegistry(&calls))
	c.SurfacesFn = func() []string { return []string{"contract", "invoice", "insights"} }
	c.ConversationsFn = func() []Completion {
		return []Completion{{Value: "1", Description: "vendor rankings"}, {Value: "2"}}
	}

	tests := []struct {
		input string
		want  []string
	}{
		{"/se", []string{"/search", "/select"}},
		{"/s", []string{"/search", "/select", "/surface"}},
		{"/h", []string{"/help"}},
		{"/ex", []string{"/exit"}},
		{"/fo", nil},
		{"/surface ", []string{"invoice", "contract", "insights"}},
		{"/surface in", []string{"invoice", "insights"}},
		{"/select ", []string{"1", "2"}},
		{"/search ", nil},
		{"/surface invoice ", nil},
		{"/bogus ", nil},
		{"hello", nil},
	}
	for _, tc := range tests {
		got := values(c.Complete(tc.input))
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("Complete(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestCompleteLines(t *testing.T) {
	var calls []Invocation
	c := NewCompleter(testRegistry(&calls))
	c.SurfacesFn = func() []string { return []string{"invoice", "insights"} }

	got := c.Lines("/surface inv")
	if !reflect.DeepEqual(got, []string{"/surface invoice"}) {
		t.Errorf("Lines(/surface inv) = %v", got)
	}
	got = c.Lines("/su")
	if !reflect.DeepEqual(got, []string{"/surface"}) {
		t.Errorf("Lines(/su) = %v", got)
	}
	if c.Lines("what's overdue") != nil {
		t.Error("plain text should not complete")
	}
}
