// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/copilot-engine/internal/server"
)

func (a *App) newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the assistants over an HTTP JSON API",
		Long: `Starts the HTTP API. Every enabled surface is served under
/v1/surfaces/{surface}. The server stops on SIGINT or SIGTERM, letting
in-flight requests finish within server.shutdown_timeout_secs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServe(cmd, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

func (a *App) runServe(cmd *cobra.Command, addr string) error {
	if addr != "" {
		a.cfg.Server.Addr = addr
	}

	hub, err := a.openHub()
	if err != nil {
		return err
	}
	defer hub.Shutdown()

	ln, err := net.Listen("tcp", a.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.cfg.Server.Addr, err)
	}

	srv := server.New(hub, a.cfg.Server, a.logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Serve(ln)
	})
	g.Go(func() error {
		<-gctx.Done()
		timeout := time.Duration(a.cfg.Server.ShutdownTimeoutSecs) * time.Second
		sctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		a.logger.Info("shutting down", zap.Duration("timeout", timeout))
		return srv.Shutdown(sctx)
	})

	a.logger.Debug("surfaces served", zap.Strings("surfaces", hub.Surfaces()))
	fmt.Fprintf(cmd.OutOrStdout(), "copilot API listening on http://%s\n", ln.Addr())

	return g.Wait()
}
