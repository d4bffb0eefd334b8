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
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"blockstudio/internal/storage"
)

var searchCmd = &cobra.Command{
	Use:   "search [text]",
	Short: "Search blocks across pages",
	Long: `Searches block labels, string props and slot text in the page index.
Text uses FTS5 syntax. Without text only the --kind and --page filters apply.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		b, err := openBackend(ctx, cfg.Storage, pgPassword)
		if err != nil {
			return err
		}
		defer b.Close()
		if b.index == nil {
			return errNoIndex
		}
		q := storage.Query{Text: strings.Join(args, " ")}
		q.Kinds, _ = cmd.Flags().GetStringSlice("kind")
		q.Limit, _ = cmd.Flags().GetInt("limit")
		if name, _ := cmd.Flags().GetString("page"); name != "" {
			p, err := b.lookup(ctx, name)
			if err != nil {
				return err
			}
			q.PageID = p.ID
		}
		hits, err := b.index.Search(ctx, q)
		if err != nil {
			return err
		}
		names := map[string]string{}
		for _, e := range b.files.Pages() {
			names[e.ID] = e.Name
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, h := range hits {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", names[h.PageID], h.Path, h.Kind, h.Snippet)
		}
		return tw.Flush()
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the page index from the page files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		b, err := openBackend(ctx, cfg.Storage, pgPassword)
		if err != nil {
			return err
		}
		defer b.Close()
		if b.index == nil {
			return errNoIndex
		}
		if err := b.index.Rebuild(ctx, b.files); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "reindexed %d pages\n", len(b.files.Pages()))
		return nil
	},
}

func init() {
	searchCmd.Flags().StringSlice("kind", nil, "Only blocks of these component kinds")
	searchCmd.Flags().String("page", "", "Only blocks of this page")
	searchCmd.Flags().Int("limit", 50, "Maximum number of hits")
	rootCmd.AddCommand(searchCmd, reindexCmd)
}
