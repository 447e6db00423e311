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
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/terry-li-hm/frenum/internal/engine"
)

type evalOptions struct {
	args      []string
	meta      []string
	userID    string
	requestID string
	phase     string
	asJSON    bool
	noColor   bool
}

func newEvalCmd(opts *rootOptions) *cobra.Command {
	eOpts := &evalOptions{}

	cmd := &cobra.Command{
		Use:   "eval <tool>",
		Short: "Evaluate a single tool call against the policy",
		Long: `Run one tool call through the policy engine and print the decision.

Exit code: 1 when the call is blocked.

Examples:
  frenum eval execute_sql --arg query="DROP TABLE users"
  frenum eval search --arg query="find alice" --meta role=admin
  frenum eval search --arg result="contact: bob@example.com" --phase post`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(cmd.OutOrStdout(), opts, eOpts, args[0])
		},
	}

	cmd.Flags().StringArrayVar(&eOpts.args, "arg", nil, "Tool call argument as key=value (repeatable)")
	cmd.Flags().StringArrayVar(&eOpts.meta, "meta", nil, "Caller metadata as key=value (repeatable)")
	cmd.Flags().StringVar(&eOpts.userID, "user", "", "End-user identifier")
	cmd.Flags().StringVar(&eOpts.requestID, "request-id", "", "Agent request identifier")
	cmd.Flags().StringVar(&eOpts.phase, "phase", "pre", "Evaluation phase: pre or post")
	cmd.Flags().BoolVar(&eOpts.asJSON, "json", false, "Print the decision as JSON")
	cmd.Flags().BoolVar(&eOpts.noColor, "no-color", false, "Disable color output")

	return cmd
}

func runEval(w io.Writer, opts *rootOptions, eOpts *evalOptions, toolName string) error {
	var phase engine.Phase
	switch eOpts.phase {
	case "pre":
		phase = engine.PhasePre
	case "post":
		phase = engine.PhasePost
	default:
		return fmt.Errorf("eval: invalid phase %q (valid: pre, post)", eOpts.phase)
	}

	callArgs, err := parseKeyValues(eOpts.args, "--arg")
	if err != nil {
		return err
	}
	metadata, err := parseKeyValues(eOpts.meta, "--meta")
	if err != nil {
		return err
	}

	cfg, err := engine.NewFileStore(opts.configPath).Load()
	if err != nil {
		return fmt.Errorf("eval: %w", err)
	}
	eng := engine.New(cfg, engine.WithLogger(newLogger(opts, w)))

	call := engine.ToolCall{
		Name:      toolName,
		Args:      callArgs,
		UserID:    eOpts.userID,
		RequestID: eOpts.requestID,
		Metadata:  metadata,
	}

	result, err := eng.Evaluate(call, phase)
	if err != nil {
		return fmt.Errorf("eval: %w", err)
	}

	if eOpts.asJSON {
		if err := writeEvalJSON(w, result); err != nil {
			return err
		}
	} else {
		printEvalResult(w, result, newStyler(eOpts.noColor))
	}

	if result.Blocked() {
		return exitCodeError{code: 1}
	}
	return nil
}

func writeEvalJSON(w io.Writer, result engine.EvalResult) error {
	blockingRule := ""
	if result.BlockingRule != nil {
		blockingRule = result.BlockingRule.RuleName
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	err := enc.Encode(map[string]any{
		"decision_id":     result.DecisionID,
		"decision":        result.Decision.String(),
		"reason":          result.Reason(),
		"blocking_rule":   blockingRule,
		"rules_evaluated": result.RuleNames(),
	})
	if err != nil {
		return fmt.Errorf("eval: encode json: %w", err)
	}
	return nil
}

func printEvalResult(w io.Writer, result engine.EvalResult, st styler) {
	if result.Blocked() {
		fmt.Fprintf(w, "%s %s\n", st.fail("BLOCK"), result.Reason())
		if result.BlockingRule != nil {
			fmt.Fprintf(w, "  rule: %s (%s)\n", result.BlockingRule.RuleName, result.BlockingRule.RuleType)
		}
	} else {
		fmt.Fprintf(w, "%s %s\n", st.pass("ALLOW"), result.Reason())
	}
	fmt.Fprintf(w, "  rules evaluated: %s\n", strings.Join(result.RuleNames(), ", "))
	fmt.Fprintf(w, "%s\n", st.faint("  decision id: "+result.DecisionID))
}

// parseKeyValues splits repeated key=value flags into a map. Values
// stay strings; rules that need numbers coerce them at evaluation.
func parseKeyValues(pairs []string, flagName string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("eval: invalid %s %q (expected key=value)", flagName, pair)
		}
		out[key] = value
	}
	return out, nil
}
