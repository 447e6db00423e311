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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/terry-li-hm/frenum/internal/engine"
	"github.com/terry-li-hm/frenum/internal/watch"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var testsPath string
	var noColor bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-check the policy on every save",
		Long: `Watch the policy file and re-lint it on every change. With --tests,
the test fixtures are replayed against each accepted replacement, so
policy edits get instant pass/fail feedback.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			st := newStyler(noColor)
			logger := newLogger(opts, cmd.ErrOrStderr())

			// Check the current policy once before watching.
			cfg, err := engine.NewFileStore(opts.configPath).Load()
			if err != nil {
				return fmt.Errorf("watch: %w", err)
			}
			reportPolicyState(out, st, cfg, nil, testsPath)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			watcher := watch.New(opts.configPath,
				func(cfg *engine.Config, warnings []engine.LintFinding) {
					reportPolicyState(out, st, cfg, warnings, testsPath)
				},
				watch.WithLogger(logger),
			)

			fmt.Fprintf(out, "%s\n", st.faint(fmt.Sprintf("Watching %s (Ctrl-C to stop)", opts.configPath)))
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("watch: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&testsPath, "tests", "", "Replay this test file or directory on each reload")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable color output")

	return cmd
}

// reportPolicyState prints the lint and, optionally, test outcome for
// one version of the policy.
func reportPolicyState(w io.Writer, st styler, cfg *engine.Config, warnings []engine.LintFinding, testsPath string) {
	fmt.Fprintf(w, "%s policy %s (%d rules)\n",
		st.pass("OK"), cfg.PolicyVersion, len(cfg.Rules))
	for _, f := range warnings {
		fmt.Fprintf(w, "  %s\n", st.warn(f.String()))
	}

	if testsPath == "" {
		return
	}

	eng := engine.New(cfg)
	cases, err := engine.LoadTests(testsPath)
	if err != nil {
		fmt.Fprintf(w, "  %s\n", st.fail(err.Error()))
		return
	}
	results, err := eng.RunTests(cases)
	if err != nil {
		fmt.Fprintf(w, "  %s\n", st.fail(err.Error()))
		return
	}

	passed, failed := 0, 0
	for _, r := range results {
		if r.Passed {
			passed++
			continue
		}
		failed++
		fmt.Fprintf(w, "  %s %s\n", st.fail("[FAIL]"), r.Case.Description)
		fmt.Fprintf(w, "         %s\n", r.Reason)
	}

	coverage := eng.CalculateCoverage(results)
	summary := fmt.Sprintf("  %d passed, %d failed, coverage %.1f%%", passed, failed, coverage.CoveragePct)
	if failed > 0 {
		fmt.Fprintf(w, "%s\n", st.fail(summary))
	} else {
		fmt.Fprintf(w, "%s\n", st.pass(summary))
	}
}
