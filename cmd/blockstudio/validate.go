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

	"github.com/spf13/cobra"

	"blockstudio/internal/block"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file...]",
	Short: "Validate page documents",
	Long:  `Checks each page document against the page schema, then loads it with the component catalog.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	failed := 0
	for _, path := range args {
		n, err := validateFile(path)
		if err != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d blocks)\n", path, n)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents invalid", failed, len(args))
	}
	return nil
}

// validateFile returns the number of blocks in a valid document.
func validateFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	root, err := loadTree(data)
	if err != nil {
		return 0, err
	}
	return block.Count(root), nil
}

// loadTree decodes a document with the configured catalog. Unknown kinds load as
// placeholders and are logged.
func loadTree(data []byte) (*block.Block, error) {
	eng := &block.Engine{Logger: cliLog}
	return eng.Decode(data, cat)
}
