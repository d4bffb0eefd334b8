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
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"blockstudio/internal/block"
	"blockstudio/internal/canvas"
	"blockstudio/internal/crash"
	"blockstudio/internal/style"
)

var editCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit a stored page and save it as a new draft",
}

// editPage loads the named page, runs fn against it and saves the draft. A panic
// during the edit writes a crash report and, for local stores, a crash copy of the tree.
func editPage(cmd *cobra.Command, name string, fn func(c *canvas.Controller) error) error {
	ctx := cmd.Context()
	b, err := openBackend(ctx, cfg.Storage, pgPassword)
	if err != nil {
		return err
	}
	defer b.Close()
	c := newController(b, cliNotifier{out: cmd.ErrOrStderr()})
	defer crash.Recover(b.crashSaver(c))

	if v, _ := cmd.Flags().GetString("breakpoint"); v != "" {
		bp, err := style.ParseBreakpoint(v)
		if err != nil {
			return err
		}
		c.SetBreakpoint(bp)
	}
	if err := c.SetPage(ctx, name); err != nil {
		return err
	}
	if err := fn(c); err != nil {
		return err
	}
	if !c.CanUndo() {
		cliLog.Info("nothing changed", slog.String("page", name))
		return nil
	}
	return c.SavePage(ctx)
}

func findBlock(c *canvas.Controller, id string) (*block.Block, error) {
	b := c.Find(id)
	if b == nil {
		return nil, fmt.Errorf("%w: %s", block.ErrNotFound, id)
	}
	return b, nil
}

// parseValue reads v as JSON, falling back to the raw string.
func parseValue(v string) any {
	var out any
	if err := json.Unmarshal([]byte(v), &out); err != nil {
		return v
	}
	return out
}

var editAddCmd = &cobra.Command{
	Use:   "add <page> <kind>",
	Short: "Add a block of a catalog kind",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		parentID, _ := cmd.Flags().GetString("parent")
		slot, _ := cmd.Flags().GetString("slot")
		index, _ := cmd.Flags().GetInt("index")
		if index < 0 {
			index = block.End
		}
		return editPage(cmd, args[0], func(c *canvas.Controller) error {
			parent, err := findBlock(c, parentID)
			if err != nil {
				return err
			}
			spec := block.SpecFor(cat, args[1])
			var added *block.Block
			if slot != "" {
				added, err = c.InsertSlotBlock(parent, slot, spec, index)
			} else {
				added, err = c.AddChild(parent, spec, index)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s#%s\n", added.Kind, added.ID())
			return nil
		})
	},
}

var editRemoveCmd = &cobra.Command{
	Use:   "remove <page> <block-id>",
	Short: "Remove a block (hides it on narrower breakpoints unless --force)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		return editPage(cmd, args[0], func(c *canvas.Controller) error {
			b, err := findBlock(c, args[1])
			if err != nil {
				return err
			}
			c.RemoveBlock(b, force)
			return nil
		})
	},
}

var editDuplicateCmd = &cobra.Command{
	Use:   "duplicate <page> <block-id>",
	Short: "Duplicate a block next to itself",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editPage(cmd, args[0], func(c *canvas.Controller) error {
			b, err := findBlock(c, args[1])
			if err != nil {
				return err
			}
			dup, err := c.Duplicate(b)
			if err != nil || dup == nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "duplicated as %s\n", dup.ID())
			return nil
		})
	},
}

var editMoveCmd = &cobra.Command{
	Use:   "move <page> <block-id> <parent-id>",
	Short: "Move a block under another parent or into a slot",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		slot, _ := cmd.Flags().GetString("slot")
		index, _ := cmd.Flags().GetInt("index")
		if index < 0 {
			index = block.End
		}
		return editPage(cmd, args[0], func(c *canvas.Controller) error {
			b, err := findBlock(c, args[1])
			if err != nil {
				return err
			}
			parent, err := findBlock(c, args[2])
			if err != nil {
				return err
			}
			return c.Move(b, parent, slot, index)
		})
	},
}

var editStyleCmd = &cobra.Command{
	Use:   "style <page> <block-id> <prop> [value]",
	Short: "Set a style property on the active breakpoint (no value removes it)",
	Args:  cobra.RangeArgs(3, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editPage(cmd, args[0], func(c *canvas.Controller) error {
			b, err := findBlock(c, args[1])
			if err != nil {
				return err
			}
			switch args[2] {
			case "padding":
				if len(args) == 4 {
					return c.SetPadding(b, args[3])
				}
			case "margin":
				if len(args) == 4 {
					return c.SetMargin(b, args[3])
				}
			}
			var v any
			if len(args) == 4 {
				v = parseValue(args[3])
			}
			return c.SetStyle(b, args[2], v)
		})
	},
}

var editToggleCmd = &cobra.Command{
	Use:   "toggle <page> <block-id>",
	Short: "Toggle a block's visibility on the active breakpoint",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editPage(cmd, args[0], func(c *canvas.Controller) error {
			b, err := findBlock(c, args[1])
			if err != nil {
				return err
			}
			return c.ToggleVisibility(b)
		})
	},
}

var editPropCmd = &cobra.Command{
	Use:   "prop <page> <block-id> <name> [value]",
	Short: "Set a prop to a JSON value or string (no value deletes it)",
	Args:  cobra.RangeArgs(3, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editPage(cmd, args[0], func(c *canvas.Controller) error {
			b, err := findBlock(c, args[1])
			if err != nil {
				return err
			}
			if len(args) == 3 {
				return c.DeleteProp(b, args[2])
			}
			return c.SetProp(b, args[2], parseValue(args[3]))
		})
	},
}

var editTextCmd = &cobra.Command{
	Use:   "text <page> <block-id> <slot> <markup>",
	Short: "Replace a slot's content with markup",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editPage(cmd, args[0], func(c *canvas.Controller) error {
			b, err := findBlock(c, args[1])
			if err != nil {
				return err
			}
			return c.SetSlotText(b, args[2], args[3])
		})
	},
}

func init() {
	editCmd.PersistentFlags().String("breakpoint", "", "Breakpoint edits apply to (defaults to the configured one)")
	editAddCmd.Flags().String("parent", block.RootID, "Parent block id")
	editAddCmd.Flags().String("slot", "", "Insert into this slot of the parent instead of its children")
	editAddCmd.Flags().Int("index", -1, "Position among the siblings (-1 appends)")
	editRemoveCmd.Flags().Bool("force", false, "Delete even on a narrower breakpoint")
	editMoveCmd.Flags().String("slot", "", "Target slot of the new parent")
	editMoveCmd.Flags().Int("index", -1, "Position among the new siblings (-1 appends)")
	editCmd.AddCommand(editAddCmd, editRemoveCmd, editDuplicateCmd, editMoveCmd,
		editStyleCmd, editToggleCmd, editPropCmd, editTextCmd)
	rootCmd.AddCommand(editCmd)
}
