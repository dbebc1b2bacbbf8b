// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/copilot-engine/internal/assistant"
	"github.com/jeranaias/copilot-engine/internal/config"
	"github.com/jeranaias/copilot-engine/internal/logging"
	"github.com/jeranaias/copilot-engine/internal/rules"
)

// Version information (can be overridden at build time)
var (
	Version   = "1.0.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// logFileName is where interactive commands send their logs.
const logFileName = "copilot.log"

// =============================================================================
// APPLICATION STATE
// =============================================================================

// App holds the global flags and everything built from them before a
// command runs.
type App struct {
	// Global flags
	ConfigPath string
	DataDir    string
	Verbose    bool

	cfg     *config.Config
	logger  *zap.Logger
	catalog *rules.Catalog

	// in replaces stdin for the chat REPL when set.
	in io.Reader
}

// NewRootCmd builds the copilot command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&App{})
}

func newRootCmd(app *App) *cobra.Command {
	var surface string

	root := &cobra.Command{
		Use:   "copilot",
		Short: "Rule-based assistants for the business copilot dashboard",
		Long: `copilot serves eight scripted business assistants (insights, invoice,
forecast, RFP, contract, customer insights, widget and Jarvis).

Replies are chosen by keyword rules and delivered after a short simulated
typing delay. Run without arguments to start the interactive TUI.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app.logger != nil {
				_ = app.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runTUI(cmd, surface)
		},
	}

	root.PersistentFlags().StringVar(&app.ConfigPath, "config", "", "config file (default ~/.copilot/config.toml)")
	root.PersistentFlags().StringVar(&app.DataDir, "data-dir", "", "directory for persisted conversations")
	root.PersistentFlags().BoolVarP(&app.Verbose, "verbose", "v", false, "debug logging")
	root.Flags().StringVarP(&surface, "surface", "s", "", "assistant surface to open")

	root.AddCommand(
		app.newTUICmd(),
		app.newChatCmd(),
		app.newAskCmd(),
		app.newServeCmd(),
		app.newRulesCmd(),
		app.newSessionsCmd(),
		app.newConfigCmd(),
	)
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:"), err)
		return 1
	}
	return 0
}

// =============================================================================
// SETUP
// =============================================================================

// setup loads config, builds the logger and loads the rule catalog.
func (a *App) setup(cmd *cobra.Command) error {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return err
	}
	if a.DataDir != "" {
		cfg.Storage.DataDir = a.DataDir
	}

	logCfg := cfg.Logging
	if logCfg.File == "" && interactive(cmd) {
		dir, err := config.ConfigDir()
		if err != nil {
			return fmt.Errorf("failed to resolve log directory: %w", err)
		}
		logCfg.File = filepath.Join(dir, logFileName)
	}
	logger, err := logging.New(logCfg, a.Verbose)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	catalog, err := rules.LoadEmbedded()
	if err != nil {
		return fmt.Errorf("failed to load rule tables: %w", err)
	}
	if cfg.Rules.ExtraDir != "" {
		n, err := catalog.LoadDir(cfg.Rules.ExtraDir)
		if err != nil {
			return fmt.Errorf("failed to load rules from %s: %w", cfg.Rules.ExtraDir, err)
		}
		logger.Debug("extra rule tables loaded", zap.String("dir", cfg.Rules.ExtraDir), zap.Int("count", n))
	}

	config.SetGlobal(cfg)
	a.cfg = cfg
	a.logger = logger
	a.catalog = catalog
	return nil
}

func (a *App) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if a.ConfigPath != "" {
		return config.LoadFromPath(a.ConfigPath)
	}
	cfg, err := config.Load()
	if cfg == nil {
		return nil, err
	}
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %v; using defaults\n", warningStyle.Render("Warning:"), err)
	}
	return cfg, nil
}

// interactive reports whether cmd owns the terminal.
func interactive(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "copilot", "tui", "chat":
		return true
	}
	return false
}

// openHub builds the assistant hub from the loaded config.
func (a *App) openHub() (*assistant.Hub, error) {
	hub, err := assistant.NewHub(a.cfg, a.catalog, assistant.WithLogger(a.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to start assistants: %w", err)
	}
	return hub, nil
}

// resolveSurface returns name, or the hub default when name is empty.
func resolveSurface(hub *assistant.Hub, name string) (*assistant.Surface, error) {
	if name == "" {
		name = hub.DefaultSurface()
	}
	sf, err := hub.Surface(name)
	if errors.Is(err, assistant.ErrUnknownSurface) {
		return nil, fmt.Errorf("%w (available: %v)", err, hub.Surfaces())
	}
	return sf, err
}
