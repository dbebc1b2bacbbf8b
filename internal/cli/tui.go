// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/jeranaias/copilot-engine/internal/ui/chat"
	"github.com/jeranaias/copilot-engine/internal/ui/styles"
)

func (a *App) newTUICmd() *cobra.Command {
	var surface string
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Start the interactive terminal UI (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTUI(cmd, surface)
		},
	}
	cmd.Flags().StringVarP(&surface, "surface", "s", "", "assistant surface to open")
	return cmd
}

func (a *App) runTUI(cmd *cobra.Command, surface string) error {
	hub, err := a.openHub()
	if err != nil {
		return err
	}
	defer hub.Shutdown()

	if surface != "" {
		if _, err := resolveSurface(hub, surface); err != nil {
			return err
		}
	}

	m, err := chat.New(hub, surface, styles.NewTheme())
	if err != nil {
		return err
	}
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	a.logger.Info("tui started")
	final, err := p.Run()
	if fm, ok := final.(chat.Model); ok {
		fm.Close()
	}
	return err
}
