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
	"io"

	"github.com/spf13/cobra"

	"github.com/terry-li-hm/frenum/internal/engine"
)

func newLintCmd(opts *rootOptions) *cobra.Command {
	var noColor bool

	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Statically check a policy file for configuration mistakes",
		Long: `Lint the policy file for errors and warnings.

Errors (invalid regex, unknown PII detector, duplicate rule names)
describe rules that would fail at evaluation time. Warnings flag
rules that are configured but can never fire.

Exit code: 1 if errors found, 0 if only warnings.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLint(cmd.OutOrStdout(), opts, noColor)
		},
	}

	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable color output")

	return cmd
}

func runLint(w io.Writer, opts *rootOptions, noColor bool) error {
	cfg, err := engine.NewFileStore(opts.configPath).Load()
	if err != nil {
		return fmt.Errorf("lint: %w", err)
	}

	st := newStyler(noColor)
	findings := engine.Lint(cfg.Rules)
	if len(findings) == 0 {
		fmt.Fprintln(w, st.pass("No issues found."))
		return nil
	}

	for _, f := range findings {
		line := f.String()
		if f.Severity == engine.LintError {
			line = st.fail(line)
		} else {
			line = st.warn(line)
		}
		fmt.Fprintf(w, "  %s\n", line)
	}

	errors, warnings := engine.CountFindings(findings)
	fmt.Fprintf(w, "\n%d error(s), %d warning(s)\n", errors, warnings)

	if errors > 0 {
		return exitCodeError{code: 1}
	}
	return nil
}
