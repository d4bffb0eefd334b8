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
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"blockstudio/internal/block"
	"blockstudio/internal/style"
)

const outlineTextMax = 40

var outlineCmd = &cobra.Command{
	Use:   "outline <file>",
	Short: "Print the block tree of a page document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		root, err := loadTree(data)
		if err != nil {
			return err
		}
		bp := cfg.Editor.Breakpoint()
		if v, _ := cmd.Flags().GetString("breakpoint"); v != "" {
			if bp, err = style.ParseBreakpoint(v); err != nil {
				return err
			}
		}
		writeOutline(cmd.OutOrStdout(), root, bp, 0)
		return nil
	},
}

func init() {
	outlineCmd.Flags().String("breakpoint", "", "Breakpoint used to mark hidden blocks (desktop, tablet, mobile)")
	rootCmd.AddCommand(outlineCmd)
}

// writeOutline prints b and its subtree, two spaces per level. Slots follow the
// children, prefixed with @.
func writeOutline(w io.Writer, b *block.Block, bp style.Breakpoint, depth int) {
	indent := strings.Repeat("  ", depth)
	var sb strings.Builder
	sb.WriteString(indent)
	sb.WriteString(b.Kind)
	sb.WriteString("#")
	sb.WriteString(b.ID())
	if b.Role != block.RoleNone {
		fmt.Fprintf(&sb, " [%s]", b.Role)
	}
	if b.Label != "" {
		fmt.Fprintf(&sb, " %q", b.Label)
	}
	if !b.IsVisible(bp) {
		sb.WriteString(" (hidden)")
	}
	fmt.Fprintln(w, sb.String())

	for _, c := range b.Children() {
		writeOutline(w, c, bp, depth+1)
	}
	for _, s := range b.Slots() {
		if !s.IsList() {
			fmt.Fprintf(w, "%s  @%s: %q\n", indent, s.Name, clip(s.Text(), outlineTextMax))
			continue
		}
		fmt.Fprintf(w, "%s  @%s\n", indent, s.Name)
		for _, c := range s.Blocks() {
			writeOutline(w, c, bp, depth+2)
		}
	}
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
