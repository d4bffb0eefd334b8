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
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"blockstudio/internal/block"
)

var pagesCmd = &cobra.Command{
	Use:   "pages",
	Short: "Manage pages in the configured store",
}

var pagesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pages",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		b, err := openBackend(ctx, cfg.Storage, pgPassword)
		if err != nil {
			return err
		}
		defer b.Close()
		rows, err := b.list(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tID\tUPDATED\tPUBLISHED")
		for _, r := range rows {
			pub := "-"
			if r.PublishedAt != nil {
				pub = r.PublishedAt.Local().Format(time.DateTime)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Name, r.ID, r.UpdatedAt.Local().Format(time.DateTime), pub)
		}
		return tw.Flush()
	},
}

var pagesCreateCmd = &cobra.Command{
	Use:   "create <name> [file]",
	Short: "Create a page, empty or from a page document",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var tree []byte
		if len(args) == 2 {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			root, err := loadTree(data)
			if err != nil {
				return err
			}
			if tree, err = block.Marshal(root); err != nil {
				return err
			}
		}
		ctx := cmd.Context()
		b, err := openBackend(ctx, cfg.Storage, pgPassword)
		if err != nil {
			return err
		}
		defer b.Close()
		id, err := b.create(ctx, args[0], tree)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", args[0], id)
		return nil
	},
}

var pagesShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print the outline of a page, draft over published",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		b, err := openBackend(ctx, cfg.Storage, pgPassword)
		if err != nil {
			return err
		}
		defer b.Close()
		c := newController(b, cliNotifier{out: cmd.ErrOrStderr()})
		if err := c.SetPage(ctx, args[0]); err != nil {
			return err
		}
		writeOutline(cmd.OutOrStdout(), c.Root(), c.Breakpoint(), 0)
		return nil
	},
}

var pagesExportCmd = &cobra.Command{
	Use:   "export <name>",
	Short: "Write the page document to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		b, err := openBackend(ctx, cfg.Storage, pgPassword)
		if err != nil {
			return err
		}
		defer b.Close()
		c := newController(b, cliNotifier{out: cmd.ErrOrStderr()})
		if err := c.SetPage(ctx, args[0]); err != nil {
			return err
		}
		data, err := block.MarshalIndent(c.Root())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	},
}

var pagesPublishCmd = &cobra.Command{
	Use:   "publish <name>",
	Short: "Promote the page draft to its published version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		b, err := openBackend(ctx, cfg.Storage, pgPassword)
		if err != nil {
			return err
		}
		defer b.Close()
		p, err := b.lookup(ctx, args[0])
		if err != nil {
			return err
		}
		if err := b.publish(ctx, p.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "published %s\n", p.Name)
		return nil
	},
}

var pagesDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		b, err := openBackend(ctx, cfg.Storage, pgPassword)
		if err != nil {
			return err
		}
		defer b.Close()
		yes, _ := cmd.Flags().GetBool("yes")
		c := newController(b, cliNotifier{out: cmd.ErrOrStderr(), yes: yes})
		if err := c.SetPage(ctx, args[0]); err != nil {
			return err
		}
		deleted, err := c.DeletePage(ctx)
		if err != nil {
			return err
		}
		if deleted {
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		}
		return nil
	},
}

var pagesHistoryCmd = &cobra.Command{
	Use:   "history <name>",
	Short: "List saved versions of a page draft",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		b, err := openBackend(ctx, cfg.Storage, pgPassword)
		if err != nil {
			return err
		}
		defer b.Close()
		p, err := b.lookup(ctx, args[0])
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		out := cmd.OutOrStdout()
		switch {
		case b.pg != nil:
			revs, err := b.pg.Revisions(ctx, p.ID, limit)
			if err != nil {
				return err
			}
			for _, r := range revs {
				fmt.Fprintf(out, "v%d\t%s\t%d bytes\n", r.Version, r.CreatedAt.Local().Format(time.DateTime), len(r.Tree))
			}
		case b.index != nil:
			snaps, err := b.index.ListSnapshots(ctx, p.ID, limit)
			if err != nil {
				return err
			}
			for _, s := range snaps {
				fmt.Fprintf(out, "%s\t%d bytes\n", s.TS.Local().Format(time.DateTime), len(s.Tree))
			}
		default:
			return errNoIndex
		}
		return nil
	},
}

func init() {
	pagesDeleteCmd.Flags().Bool("yes", false, "Delete without asking")
	pagesHistoryCmd.Flags().Int("limit", 20, "Maximum number of versions")
	pagesCmd.AddCommand(pagesListCmd, pagesCreateCmd, pagesShowCmd, pagesExportCmd,
		pagesPublishCmd, pagesDeleteCmd, pagesHistoryCmd)
	rootCmd.AddCommand(pagesCmd)
}
