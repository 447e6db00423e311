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
	"os"

	"github.com/spf13/cobra"

	"github.com/terry-li-hm/frenum/internal/engine"
	"github.com/terry-li-hm/frenum/internal/report"
)

type testOptions struct {
	testsPath   string
	format      string
	outputPath  string
	minCoverage float64
	noColor     bool
}

func newTestCmd(opts *rootOptions) *cobra.Command {
	tOpts := &testOptions{}

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run policy regression tests and report rule coverage",
		Long: `Replay test fixtures through the policy engine and compare each
outcome against its expected decision.

Exit code: 1 if any case fails or coverage drops below --min-coverage.

Examples:
  frenum test --config policy.yaml --tests tests.yaml
  frenum test --config policy.yaml --tests tests/ --format html --output report.html
  frenum test --config policy.yaml --tests tests.yaml --min-coverage 80`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTestCmd(cmd.OutOrStdout(), cmd.ErrOrStderr(), opts, tOpts)
		},
	}

	cmd.Flags().StringVar(&tOpts.testsPath, "tests", "", "Path to test YAML file or directory")
	cmd.Flags().StringVar(&tOpts.format, "format", "text", "Output format: text, json, html")
	cmd.Flags().StringVar(&tOpts.outputPath, "output", "", "Write report to file (default: stdout)")
	cmd.Flags().Float64Var(&tOpts.minCoverage, "min-coverage", -1, "Fail if coverage drops below this percentage (0-100)")
	cmd.Flags().BoolVar(&tOpts.noColor, "no-color", false, "Disable color output")
	_ = cmd.MarkFlagRequired("tests")

	return cmd
}

func runTestCmd(w, errW io.Writer, opts *rootOptions, tOpts *testOptions) error {
	switch tOpts.format {
	case "text", "json", "html":
	default:
		return fmt.Errorf("test: invalid format %q (valid: text, json, html)", tOpts.format)
	}

	source, err := os.ReadFile(opts.configPath)
	if err != nil {
		return fmt.Errorf("test: read policy config: %w", err)
	}
	cfg, err := engine.ParseConfig(source)
	if err != nil {
		return fmt.Errorf("test: %w", err)
	}
	eng := engine.New(cfg, engine.WithLogger(newLogger(opts, errW)))

	cases, err := engine.LoadTests(tOpts.testsPath)
	if err != nil {
		return fmt.Errorf("test: %w", err)
	}

	results, err := eng.RunTests(cases)
	if err != nil {
		return fmt.Errorf("test: %w", err)
	}
	coverage := eng.CalculateCoverage(results)
	data := report.Build(source, eng.PolicyVersion(), results, coverage)

	if err := writeTestReport(w, errW, tOpts, data); err != nil {
		return err
	}

	if data.Failed > 0 {
		return exitCodeError{code: 1}
	}
	if tOpts.minCoverage >= 0 && data.Coverage.CoveragePct < tOpts.minCoverage {
		fmt.Fprintf(errW, "Coverage %.1f%% below threshold %.1f%%\n", data.Coverage.CoveragePct, tOpts.minCoverage)
		return exitCodeError{code: 1}
	}
	return nil
}

func writeTestReport(w, errW io.Writer, tOpts *testOptions, data report.Data) error {
	out := w
	if tOpts.outputPath != "" {
		f, err := os.Create(tOpts.outputPath)
		if err != nil {
			return fmt.Errorf("test: create report file: %w", err)
		}
		defer f.Close()
		out = f
	}

	var err error
	switch tOpts.format {
	case "json":
		err = report.WriteJSON(out, data)
	case "html":
		err = report.WriteHTML(out, data)
	default:
		if tOpts.outputPath != "" {
			err = report.WriteText(out, data)
		} else {
			printTestResults(out, data, newStyler(tOpts.noColor))
		}
	}
	if err != nil {
		return err
	}

	if tOpts.outputPath != "" {
		fmt.Fprintf(errW, "Report written to %s\n", tOpts.outputPath)
	}
	return nil
}

// printTestResults renders the styled console view of a test run.
func printTestResults(w io.Writer, data report.Data, st styler) {
	for _, row := range data.Results {
		if row.Passed {
			fmt.Fprintf(w, "%s %s\n", st.pass("[PASS]"), row.Description)
		} else {
			fmt.Fprintf(w, "%s %s\n", st.fail("[FAIL]"), row.Description)
			fmt.Fprintf(w, "       %s\n", row.Reason)
		}
	}

	summary := fmt.Sprintf("%d passed, %d failed, %d total", data.Passed, data.Failed, data.Total)
	if data.Failed > 0 {
		summary = st.fail(summary)
	} else {
		summary = st.pass(summary)
	}
	fmt.Fprintf(w, "\n%s\n", summary)

	fmt.Fprintf(w, "Rule coverage: %.1f%% (%d/%d deterministic rules exercised)\n",
		data.Coverage.CoveragePct,
		len(data.Coverage.RulesExercised),
		data.Coverage.TotalDeterministicRules,
	)
	if len(data.Coverage.RulesNotExercised) > 0 {
		fmt.Fprintf(w, "%s\n", st.warn(fmt.Sprintf("Not exercised: %v", data.Coverage.RulesNotExercised)))
	}
	if len(data.Coverage.SemanticRules) > 0 {
		fmt.Fprintf(w, "Semantic rules (not auto-testable): %v\n", data.Coverage.SemanticRules)
	}
	fmt.Fprintf(w, "%s\n", st.faint("Evidence hash: "+data.EvidenceHash))
}
