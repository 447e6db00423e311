// Copyright 2026 The Frenum Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/terry-li-hm/frenum/policies"
)

func newInitCmd(opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a starter policy and test fixture",
		Long: `Write a starter policy file and a matching test fixture.

The policy path comes from --config (default policy.yaml); the test
fixture is written as tests.yaml next to it. Existing files are left
alone unless --force is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			policyPath := opts.configPath
			if policyPath == "" {
				policyPath = "policy.yaml"
			}
			testsPath := filepath.Join(filepath.Dir(policyPath), "tests.yaml")

			targets := []struct {
				path    string
				content []byte
			}{
				{policyPath, policies.Starter()},
				{testsPath, policies.StarterTests()},
			}

			wrote := 0
			for _, target := range targets {
				if _, err := os.Stat(target.path); err == nil && !force {
					fmt.Fprintf(cmd.ErrOrStderr(), "  skip  %s (already exists)\n", target.path)
					continue
				} else if err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("cli: check %s: %w", target.path, err)
				}
				if err := os.WriteFile(target.path, target.content, 0o644); err != nil {
					return fmt.Errorf("cli: write %s: %w", target.path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  wrote %s\n", target.path)
				wrote++
			}

			if wrote > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "\nRun: frenum lint --config %s\n", policyPath)
				fmt.Fprintf(cmd.OutOrStdout(), "     frenum test --config %s --tests %s\n", policyPath, testsPath)
			} else {
				fmt.Fprintln(cmd.ErrOrStderr(), "\nNothing to write: both files already exist.")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing files")

	return cmd
}
