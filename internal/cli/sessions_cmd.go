// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/copilot-engine/internal/export"
	"github.com/jeranaias/copilot-engine/internal/model"
	"github.com/jeranaias/copilot-engine/internal/storage"
)

func (a *App) newSessionsCmd() *cobra.Command {
	var (
		jsonOut bool
		surface string
	)
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "Manage persisted conversations",
		Long: `Lists, searches, exports and deletes conversations saved by the
configured storage backend (json or sqlite). The memory backend keeps
nothing between runs.`,
	}
	cmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "JSON output")
	cmd.PersistentFlags().StringVarP(&surface, "surface", "s", "", "only this surface")

	list := func(cmd *cobra.Command, command, query string) error {
		return a.withPersister(func(ctx context.Context, p storage.Persister) error {
			return outputJSON(cmd.OutOrStdout(), jsonOut, command, func() (interface{}, error) {
				metas, err := p.List(ctx)
				if err != nil {
					return nil, err
				}
				metas = storage.FilterMetas(storage.FilterSurface(metas, surface), query)
				if metas == nil {
					metas = []model.ConversationMeta{}
				}
				if !jsonOut {
					fmt.Fprintln(cmd.OutOrStdout(), storage.FormatSessionList(metas))
				}
				return metas, nil
			})
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved conversations, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return list(cmd, "sessions list", "")
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "search <text>",
		Short: "Search saved conversations by title and preview",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return list(cmd, "sessions search", args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Print a conversation as Markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withPersister(func(ctx context.Context, p storage.Persister) error {
				return outputJSON(cmd.OutOrStdout(), jsonOut, "sessions show", func() (interface{}, error) {
					conv, err := p.Load(ctx, args[0])
					if err != nil {
						return nil, err
					}
					if !jsonOut {
						out := cmd.OutOrStdout()
						md := storage.ExportMarkdown(conv)
						if IsTerminal(out) {
							md = renderMarkdown(md, TerminalWidth(out)-4)
						}
						fmt.Fprint(out, md)
					}
					return conv, nil
				})
			})
		},
	})

	var (
		format     string
		outDir     string
		theme      string
		noMetadata bool
	)
	exportCmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a conversation as Markdown, JSON or HTML",
		Long: `Exports a saved conversation. Without --out the document is written to
stdout; with --out it is saved into that directory under a name derived
from the surface, title and time.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exporter, err := export.ForFormat(format, &export.Options{
				IncludeMetadata: !noMetadata,
				Theme:           theme,
			})
			if err != nil {
				return err
			}
			return a.withPersister(func(ctx context.Context, p storage.Persister) error {
				return outputJSON(cmd.OutOrStdout(), jsonOut, "sessions export", func() (interface{}, error) {
					conv, err := p.Load(ctx, args[0])
					if err != nil {
						return nil, err
					}
					if outDir == "" {
						data, err := exporter.Export(conv)
						if err != nil {
							return nil, err
						}
						if !jsonOut {
							fmt.Fprint(cmd.OutOrStdout(), string(data))
						}
						return map[string]string{"id": conv.ID, "mime_type": exporter.MimeType(), "content": string(data)}, nil
					}
					path, err := export.ToFile(conv, exporter, outDir)
					if err != nil {
						return nil, err
					}
					a.logger.Info("conversation exported", zap.String("id", conv.ID), zap.String("path", path))
					if !jsonOut {
						fmt.Fprintln(cmd.OutOrStdout(), "Exported to "+path)
					}
					return map[string]string{"id": conv.ID, "mime_type": exporter.MimeType(), "path": path}, nil
				})
			})
		},
	}
	exportCmd.Flags().StringVarP(&format, "format", "f", "markdown", "markdown, json or html")
	exportCmd.Flags().StringVarP(&outDir, "out", "o", "", "directory to write into (default stdout)")
	exportCmd.Flags().StringVar(&theme, "theme", "dark", "HTML theme: dark or light")
	exportCmd.Flags().BoolVar(&noMetadata, "no-metadata", false, "omit the metadata header")
	cmd.AddCommand(exportCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withPersister(func(ctx context.Context, p storage.Persister) error {
				return outputJSON(cmd.OutOrStdout(), jsonOut, "sessions delete", func() (interface{}, error) {
					if err := p.Delete(ctx, args[0]); err != nil {
						return nil, err
					}
					if !jsonOut {
						fmt.Fprintln(cmd.OutOrStdout(), "Deleted "+args[0])
					}
					return map[string]string{"deleted": args[0]}, nil
				})
			})
		},
	})
	return cmd
}

// withPersister opens the configured backend for the duration of fn.
func (a *App) withPersister(fn func(ctx context.Context, p storage.Persister) error) error {
	p, err := storage.Open(a.cfg.Storage.Backend, a.cfg.Storage.DataDir, a.cfg.Storage.MaxConversations)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("%w: storage backend is %q", storage.ErrNoPersister, a.cfg.Storage.Backend)
	}
	defer p.Close()
	return fn(context.Background(), p)
}
