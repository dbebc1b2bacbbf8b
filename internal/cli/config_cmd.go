// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/jeranaias/copilot-engine/internal/config"
)

func (a *App) newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change configuration",
		Long: `Reads and writes the configuration file. Keys use dot notation, for
example latency.scale or storage.backend. Run "copilot config keys" for the
full list.`,
	}

	var format string
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch strings.ToLower(format) {
			case "json":
				fmt.Fprintln(out, a.cfg.String())
				return nil
			case "toml", "":
				return toml.NewEncoder(out).Encode(a.cfg)
			default:
				return fmt.Errorf("unknown format %q (want toml or json)", format)
			}
		},
	}
	show.Flags().StringVar(&format, "format", "toml", "output format: toml or json")
	cmd.AddCommand(show)

	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print one configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.cfg.Get(args[0])
			if err != nil {
				return err
			}
			if list, ok := v.([]string); ok {
				v = strings.Join(list, ",")
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one value and save the config file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg.Clone()
			if err := cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			cfg.SetDefaults()
			if err := cfg.Validate(); err != nil {
				return err
			}
			path, err := a.saveConfig(cfg)
			if err != nil {
				return err
			}
			a.cfg = cfg
			config.SetGlobal(cfg)
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s (%s)\n", args[0], args[1], path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "keys",
		Short: "List every configuration key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, k := range config.GetAllKeys() {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.configFile()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	})
	return cmd
}

// configFile returns --config, or the default TOML path.
func (a *App) configFile() (string, error) {
	if a.ConfigPath != "" {
		return a.ConfigPath, nil
	}
	return config.ConfigPathTOML()
}

func (a *App) saveConfig(cfg *config.Config) (string, error) {
	path, err := a.configFile()
	if err != nil {
		return "", err
	}
	if strings.HasSuffix(strings.ToLower(path), ".json") {
		err = config.SaveJSON(cfg, path)
	} else {
		err = config.SaveTOML(cfg, path)
	}
	return path, err
}
