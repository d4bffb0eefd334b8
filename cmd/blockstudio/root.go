/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"blockstudio/internal/block"
	"blockstudio/internal/catalog"
	"blockstudio/internal/config"
	applog "blockstudio/internal/log"
)

// Populated by the root command before any subcommand runs.
var (
	cfg        config.AppConfig
	pgPassword string
	cat        catalog.Catalog
	cliLog     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "blockstudio",
	Short: "Block Studio page tooling",
	Long: `Block Studio edits pages built from nested component blocks.
This tool validates and prints page documents and manages the configured page store.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("driver", "", "Page store driver (file, sqlite, postgres)")
	rootCmd.PersistentFlags().String("root", "", "Page store directory for the file and sqlite drivers")
	rootCmd.PersistentFlags().String("catalog", "", "Component catalog YAML (defaults to the built-in catalog)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
}

func setup(cmd *cobra.Command) error {
	c, pw, err := config.Load()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if v, _ := flags.GetString("driver"); v != "" {
		c.Storage.Driver = v
	}
	if v, _ := flags.GetString("root"); v != "" {
		c.Storage.Root = v
	}
	if v, _ := flags.GetString("log-level"); v != "" {
		c.Logging.Level = v
	}
	if err := c.Validate(); err != nil {
		return err
	}
	cfg, pgPassword = c, pw

	applog.Init(cfg.Logging.LogOptions())
	cliLog = applog.WithComponent("cli")
	block.Strict = cfg.Editor.StrictIDs

	cat = catalog.Default()
	if path, _ := flags.GetString("catalog"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read catalog: %w", err)
		}
		custom, err := catalog.Load(data)
		if err != nil {
			return err
		}
		cat = custom
	}
	cliLog.Debug("configured", slog.String("driver", cfg.Storage.Driver))
	return nil
}
