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
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terry-li-hm/frenum/policies"
)

func runCLI(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	var out, errOut bytes.Buffer
	cmd := NewRootCmd(context.Background(), &out, &errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

// scaffold writes the starter policy and tests into a temp dir and
// returns both paths.
func scaffold(t *testing.T) (policyPath, testsPath string) {
	t.Helper()

	dir := t.TempDir()
	policyPath = filepath.Join(dir, "policy.yaml")
	testsPath = filepath.Join(dir, "tests.yaml")
	require.NoError(t, os.WriteFile(policyPath, policies.Starter(), 0o644))
	require.NoError(t, os.WriteFile(testsPath, policies.StarterTests(), 0o644))
	return policyPath, testsPath
}

func TestVersionCommand(t *testing.T) {
	out, _, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "frenum")
	assert.Contains(t, out, "Go ")
}

func TestInit_ScaffoldsStarterFiles(t *testing.T) {
	dir := t.TempDir()
	policyPath := filepath.Join(dir, "policy.yaml")

	out, _, err := runCLI(t, "init", "--config", policyPath)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote")
	assert.FileExists(t, policyPath)
	assert.FileExists(t, filepath.Join(dir, "tests.yaml"))

	// A second run skips existing files instead of overwriting.
	_, stderr, err := runCLI(t, "init", "--config", policyPath)
	require.NoError(t, err)
	assert.Contains(t, stderr, "skip")
}

func TestLint_CleanStarterPolicy(t *testing.T) {
	policyPath, _ := scaffold(t)

	out, _, err := runCLI(t, "lint", "--config", policyPath, "--no-color")
	require.NoError(t, err)
	assert.Contains(t, out, "No issues found.")
}

func TestLint_ReportsErrorsWithExitCode(t *testing.T) {
	dir := t.TempDir()
	policyPath := filepath.Join(dir, "policy.yaml")
	broken := `
rules:
  - name: bad_pattern
    type: regex_block
    applies_to: ["*"]
    params:
      fields: ["q"]
      patterns: ['[unclosed']
`
	require.NoError(t, os.WriteFile(policyPath, []byte(broken), 0o644))

	out, _, err := runCLI(t, "lint", "--config", policyPath, "--no-color")
	require.Error(t, err)
	assert.Equal(t, 1, ExitCode(err))
	assert.Contains(t, out, "E001")
	assert.Contains(t, out, "1 error(s)")
}

func TestTest_StarterFixturesPass(t *testing.T) {
	policyPath, testsPath := scaffold(t)

	out, _, err := runCLI(t, "test", "--config", policyPath, "--tests", testsPath, "--no-color")
	require.NoError(t, err)
	assert.Contains(t, out, "4 passed, 0 failed, 4 total")
	assert.Contains(t, out, "Rule coverage: 100.0%")
	assert.Contains(t, out, "Evidence hash: sha256:")
}

func TestTest_FailureSetsExitCode(t *testing.T) {
	policyPath, _ := scaffold(t)
	testsPath := filepath.Join(filepath.Dir(policyPath), "failing.yaml")
	failing := `
tests:
  - description: wrong expectation
    tool_call:
      name: execute_sql
      args:
        query: "DROP TABLE users"
    expected: allow
`
	require.NoError(t, os.WriteFile(testsPath, []byte(failing), 0o644))

	out, _, err := runCLI(t, "test", "--config", policyPath, "--tests", testsPath, "--no-color")
	require.Error(t, err)
	assert.Equal(t, 1, ExitCode(err))
	assert.Contains(t, out, "[FAIL]")
	assert.Contains(t, out, "0 passed, 1 failed, 1 total")
}

func TestTest_MinCoverageGate(t *testing.T) {
	policyPath, _ := scaffold(t)
	testsPath := filepath.Join(filepath.Dir(policyPath), "partial.yaml")
	// One case that blocks on the first rule leaves the other two
	// rules unexercised.
	partial := `
tests:
  - description: SQL injection blocked
    tool_call:
      name: execute_sql
      args:
        query: "DROP TABLE users"
    expected: block
    expected_rule: block_sql_injection
`
	require.NoError(t, os.WriteFile(testsPath, []byte(partial), 0o644))

	_, stderr, err := runCLI(t, "test",
		"--config", policyPath, "--tests", testsPath,
		"--min-coverage", "80", "--no-color")
	require.Error(t, err)
	assert.Equal(t, 1, ExitCode(err))
	assert.Contains(t, stderr, "below threshold")
}

func TestTest_JSONFormat(t *testing.T) {
	policyPath, testsPath := scaffold(t)

	out, _, err := runCLI(t, "test", "--config", policyPath, "--tests", testsPath, "--format", "json")
	require.NoError(t, err)

	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &data))
	assert.Contains(t, data, "evidence_hash")
	assert.EqualValues(t, 4, data["passed"])
}

func TestTest_HTMLReportFile(t *testing.T) {
	policyPath, testsPath := scaffold(t)
	reportPath := filepath.Join(filepath.Dir(policyPath), "report.html")

	_, stderr, err := runCLI(t, "test",
		"--config", policyPath, "--tests", testsPath,
		"--format", "html", "--output", reportPath)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Report written to")

	content, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "<html")
}

func TestEval_BlockedCall(t *testing.T) {
	policyPath, _ := scaffold(t)

	out, _, err := runCLI(t, "eval", "execute_sql",
		"--config", policyPath,
		"--arg", "query=DROP TABLE users",
		"--no-color")
	require.Error(t, err)
	assert.Equal(t, 1, ExitCode(err))
	assert.Contains(t, out, "BLOCK")
	assert.Contains(t, out, "block_sql_injection")
}

func TestEval_AllowedCallJSON(t *testing.T) {
	policyPath, _ := scaffold(t)

	out, _, err := runCLI(t, "eval", "search",
		"--config", policyPath,
		"--arg", "query=weather in lisbon",
		"--json")
	require.NoError(t, err)

	var decision map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decision))
	assert.Equal(t, "allow", decision["decision"])
	assert.Equal(t, "All rules passed", decision["reason"])
}

func TestEval_InvalidArgSyntax(t *testing.T) {
	policyPath, _ := scaffold(t)

	_, _, err := runCLI(t, "eval", "search",
		"--config", policyPath,
		"--arg", "no-equals-sign")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected key=value")
}
