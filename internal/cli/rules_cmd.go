// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/copilot-engine/internal/rules"
	"github.com/jeranaias/copilot-engine/internal/ui/markup"
	"github.com/jeranaias/copilot-engine/internal/util"
)

// fallbackRuleName is reported by rules test when nothing matches.
const fallbackRuleName = "(fallback)"

// SurfaceSummary is one row of rules list.
type SurfaceSummary struct {
	Surface     string `json:"surface"`
	Title       string `json:"title"`
	Rules       int    `json:"rules"`
	Suggestions int    `json:"suggestions"`
	Enabled     bool   `json:"enabled"`
	Latency     string `json:"latency"`
}

// MatchResult is the outcome of rules test.
type MatchResult struct {
	Surface  string                 `json:"surface"`
	Input    string                 `json:"input"`
	Rule     string                 `json:"rule"`
	Matched  bool                   `json:"matched"`
	DelayMs  int64                  `json:"delay_ms"`
	Response rules.ResponseTemplate `json:"response"`
}

func (a *App) newRulesCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect the keyword rule tables",
	}
	cmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "JSON output")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List surfaces and their rule counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return outputJSON(cmd.OutOrStdout(), jsonOut, "rules list", func() (interface{}, error) {
				summaries := a.summaries()
				if !jsonOut {
					a.printSummaries(cmd, summaries)
				}
				return summaries, nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <surface>",
		Short: "Show a surface's greeting, suggestions and rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return outputJSON(cmd.OutOrStdout(), jsonOut, "rules show", func() (interface{}, error) {
				table, err := a.table(args[0])
				if err != nil {
					return nil, err
				}
				if !jsonOut {
					a.printTable(cmd, table)
				}
				return table, nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "test <surface> <text>",
		Short: "Show which rule a message matches and its reply delay",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return outputJSON(cmd.OutOrStdout(), jsonOut, "rules test", func() (interface{}, error) {
				result, err := a.testMatch(args[0], strings.Join(args[1:], " "))
				if err != nil {
					return nil, err
				}
				if !jsonOut {
					printMatch(cmd, result)
				}
				return result, nil
			})
		},
	})
	return cmd
}

func (a *App) table(surface string) (*rules.Table, error) {
	table, ok := a.catalog.Get(surface)
	if !ok {
		return nil, fmt.Errorf("unknown surface %q (available: %s)", surface, strings.Join(a.catalog.Names(), ", "))
	}
	return table, nil
}

func (a *App) summaries() []SurfaceSummary {
	names := a.catalog.Names()
	out := make([]SurfaceSummary, 0, len(names))
	for _, name := range names {
		table, _ := a.catalog.Get(name)
		out = append(out, SurfaceSummary{
			Surface:     name,
			Title:       table.Title,
			Rules:       len(table.Rules),
			Suggestions: len(table.Suggestions),
			Enabled:     a.cfg.SurfaceEnabled(name),
			Latency:     a.cfg.PolicyFor(name, table.Policy()).String(),
		})
	}
	return out
}

func (a *App) printSummaries(cmd *cobra.Command, summaries []SurfaceSummary) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, util.PadWidth("SURFACE", 18)+" "+util.PadWidth("TITLE", 34)+" "+
		util.PadWidth("RULES", 5)+" ENABLED")
	for _, s := range summaries {
		enabled := "yes"
		if !s.Enabled {
			enabled = "no"
		}
		fmt.Fprintln(out, util.PadWidth(s.Surface, 18)+" "+
			util.PadWidth(util.TruncateWidth(s.Title, 34), 34)+" "+
			util.PadWidth(fmt.Sprint(s.Rules), 5)+" "+enabled)
	}
}

func (a *App) printTable(cmd *cobra.Command, table *rules.Table) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render(table.Title)+" "+infoStyle.Render("("+table.Surface+")"))
	fmt.Fprintln(out)
	fmt.Fprintln(out, markup.Plain(table.Greeting))
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Latency: "+a.cfg.PolicyFor(table.Surface, table.Policy()).String())

	if len(table.Suggestions) > 0 {
		fmt.Fprintln(out, "Suggestions:")
		for _, s := range table.Suggestions {
			fmt.Fprintln(out, "  - "+s)
		}
	}

	fmt.Fprintf(out, "Rules (%d, first match wins):\n", len(table.Rules))
	for i, r := range table.Rules {
		fmt.Fprintf(out, "  %2d. %s  %s\n", i+1,
			commandStyle.Render(util.PadWidth(r.Name, 22)),
			strings.Join(r.Keywords, ", "))
	}
}

func (a *App) testMatch(surface, input string) (MatchResult, error) {
	table, err := a.table(surface)
	if err != nil {
		return MatchResult{}, err
	}
	result := MatchResult{
		Surface: surface,
		Input:   input,
		Rule:    fallbackRuleName,
		DelayMs: a.cfg.PolicyFor(surface, table.Policy()).Delay(input).Milliseconds(),
	}
	if rule, ok := table.MatchRule(input); ok {
		result.Rule = rule.Name
		result.Matched = true
		result.Response = rule.Response
	} else {
		result.Response = table.Fallback
	}
	return result, nil
}

func printMatch(cmd *cobra.Command, r MatchResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Rule:  %s\n", r.Rule)
	fmt.Fprintf(out, "Delay: %dms\n", r.DelayMs)
	fmt.Fprintln(out)
	fmt.Fprintln(out, markup.Plain(r.Response.Content))
	if r.Response.Payload != nil {
		fmt.Fprintln(out)
		fmt.Fprint(out, formatPayload(r.Response.Payload))
	}
	for _, act := range r.Response.Actions {
		fmt.Fprintf(out, "  [%s] %s\n", act.Label, act.Target)
	}
}
