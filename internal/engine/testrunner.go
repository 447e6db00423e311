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

package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// TestCaseConfig pairs a tool call with the verdict the policy is
// expected to produce for it.
type TestCaseConfig struct {
	// Description says what this case verifies.
	Description string

	// ToolCall is the call replayed through the engine.
	ToolCall ToolCall

	// Expected is the expected decision.
	Expected Decision

	// ExpectedRule optionally names the rule expected to block.
	ExpectedRule string
}

// TestResult records the outcome of replaying one test case.
type TestResult struct {
	// Case is the fixture that was replayed.
	Case TestCaseConfig

	// Actual is the decision the engine produced.
	Actual Decision

	// ActualRule is the name of the blocking rule, if any.
	ActualRule string

	// Passed is true when actual matched expected (including the
	// expected blocking rule, when specified).
	Passed bool

	// Reason explains the outcome; for failures it states the
	// mismatch.
	Reason string

	// RulesEvaluated lists every rule name that ran for this case,
	// in order. Consumed by coverage calculation.
	RulesEvaluated []string
}

// RunTests replays each fixture case through pre-phase evaluation and
// compares outcomes. A test mismatch is data (Passed=false), not an
// error; the error path is reserved for evaluation failures such as
// an unknown rule type.
func (e *Engine) RunTests(cases []TestCaseConfig) ([]TestResult, error) {
	results := make([]TestResult, 0, len(cases))

	for _, tc := range cases {
		res, err := e.Evaluate(tc.ToolCall, PhasePre)
		if err != nil {
			return nil, fmt.Errorf("engine: test %q: %w", tc.Description, err)
		}

		passed := res.Decision == tc.Expected
		actualRule := ""
		if res.BlockingRule != nil {
			actualRule = res.BlockingRule.RuleName
		}
		reason := res.Reason()

		if tc.ExpectedRule != "" && passed && actualRule != tc.ExpectedRule {
			passed = false
			reason = fmt.Sprintf("Expected rule '%s', got '%s'", tc.ExpectedRule, actualRule)
		}
		if !passed && tc.ExpectedRule == "" {
			reason = fmt.Sprintf("Expected %s, got %s: %s", tc.Expected, res.Decision, res.Reason())
		}

		results = append(results, TestResult{
			Case:           tc,
			Actual:         res.Decision,
			ActualRule:     actualRule,
			Passed:         passed,
			Reason:         reason,
			RulesEvaluated: res.RuleNames(),
		})
	}

	return results, nil
}

// testFile is the YAML fixture schema.
type testFile struct {
	Tests []testCaseYAML `yaml:"tests"`
}

type testCaseYAML struct {
	Description  string       `yaml:"description"`
	ToolCall     toolCallYAML `yaml:"tool_call"`
	Expected     string       `yaml:"expected"`
	ExpectedRule string       `yaml:"expected_rule"`
}

type toolCallYAML struct {
	Name     string         `yaml:"name"`
	Args     map[string]any `yaml:"args"`
	UserID   string         `yaml:"user_id"`
	Metadata map[string]any `yaml:"metadata"`
}

// LoadTests reads test cases from a YAML file, or from every
// *.yaml/*.yml file in a directory (sorted by name).
func LoadTests(path string) ([]TestCaseConfig, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("engine: stat test path: %w", err)
	}

	if !info.IsDir() {
		return loadTestFile(path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("engine: read test dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml":
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	sort.Strings(files)

	var cases []TestCaseConfig
	for _, f := range files {
		fileCases, err := loadTestFile(f)
		if err != nil {
			return nil, err
		}
		cases = append(cases, fileCases...)
	}
	return cases, nil
}

func loadTestFile(path string) ([]TestCaseConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("engine: read test file: %w", err)
	}

	var file testFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("engine: parse test file %s: %w", filepath.Base(path), err)
	}
	if len(file.Tests) == 0 {
		return nil, fmt.Errorf("engine: test file %s has no 'tests' key or it is empty", filepath.Base(path))
	}

	cases := make([]TestCaseConfig, 0, len(file.Tests))
	for i, tc := range file.Tests {
		description := tc.Description
		if description == "" {
			description = fmt.Sprintf("test_%d", i)
		}
		if tc.ToolCall.Name == "" {
			return nil, fmt.Errorf("engine: test %q in %s missing 'tool_call'", description, filepath.Base(path))
		}
		expected, err := ParseDecision(tc.Expected)
		if err != nil {
			return nil, fmt.Errorf("engine: test %q in %s: expected must be 'allow' or 'block'", description, filepath.Base(path))
		}

		args := tc.ToolCall.Args
		if args == nil {
			args = make(map[string]any)
		}
		metadata := tc.ToolCall.Metadata
		if metadata == nil {
			metadata = make(map[string]any)
		}

		cases = append(cases, TestCaseConfig{
			Description: description,
			ToolCall: ToolCall{
				Name:     tc.ToolCall.Name,
				Args:     args,
				UserID:   tc.ToolCall.UserID,
				Metadata: metadata,
			},
			Expected:     expected,
			ExpectedRule: tc.ExpectedRule,
		})
	}
	return cases, nil
}
