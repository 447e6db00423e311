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

package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terry-li-hm/frenum/internal/engine"
)

var samplePolicy = []byte(`
policy_version: "1.2.0"
rules:
  - name: sql_guard
    type: regex_block
    applies_to: ["execute_sql"]
    params:
      fields: ["query"]
      patterns: ['(?i)DROP\s+TABLE']
`)

func sampleRun(t *testing.T) ([]engine.TestResult, engine.CoverageReport, string) {
	t.Helper()

	cfg, err := engine.ParseConfig(samplePolicy)
	require.NoError(t, err)
	e := engine.New(cfg)

	results, err := e.RunTests([]engine.TestCaseConfig{
		{
			Description: "drop table is blocked",
			ToolCall:    engine.ToolCall{Name: "execute_sql", Args: map[string]any{"query": "DROP TABLE users"}},
			Expected:    engine.DecisionBlock,
		},
		{
			Description: "wrong expectation",
			ToolCall:    engine.ToolCall{Name: "execute_sql", Args: map[string]any{"query": "SELECT 1"}},
			Expected:    engine.DecisionBlock,
		},
	})
	require.NoError(t, err)
	return results, e.CalculateCoverage(results), cfg.PolicyVersion
}

func TestBuild(t *testing.T) {
	results, coverage, version := sampleRun(t)
	data := Build(samplePolicy, version, results, coverage)

	assert.Equal(t, "1.2.0", data.PolicyVersion)
	assert.Equal(t, 2, data.Total)
	assert.Equal(t, 1, data.Passed)
	assert.Equal(t, 1, data.Failed)
	assert.True(t, strings.HasPrefix(data.PolicyHash, "sha256:"))
	assert.True(t, strings.HasPrefix(data.EvidenceHash, "sha256:"))
	require.Len(t, data.Results, 2)
	assert.Equal(t, "block", data.Results[0].Expected)
	assert.Equal(t, "sql_guard", data.Results[0].ActualRule)
}

func TestBuild_EvidenceHashIsReproducible(t *testing.T) {
	results, coverage, version := sampleRun(t)

	a := Build(samplePolicy, version, results, coverage)
	b := Build(samplePolicy, version, results, coverage)
	assert.Equal(t, a.EvidenceHash, b.EvidenceHash)

	// A different policy body changes the evidence hash even with
	// identical outcomes.
	c := Build(append(samplePolicy, '\n', '#'), version, results, coverage)
	assert.NotEqual(t, a.EvidenceHash, c.EvidenceHash)
}

func TestWriteText(t *testing.T) {
	results, coverage, version := sampleRun(t)
	data := Build(samplePolicy, version, results, coverage)

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, data))

	out := buf.String()
	assert.Contains(t, out, "[PASS] drop table is blocked")
	assert.Contains(t, out, "[FAIL] wrong expectation")
	assert.Contains(t, out, "Expected block, got allow")
	assert.Contains(t, out, "1 passed, 1 failed, 2 total")
	assert.Contains(t, out, "Rule coverage: 100.0%")
	assert.Contains(t, out, "Evidence hash: sha256:")
}

func TestWriteJSON(t *testing.T) {
	results, coverage, version := sampleRun(t)
	data := Build(samplePolicy, version, results, coverage)

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, data))

	var decoded Data
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, data.EvidenceHash, decoded.EvidenceHash)
	assert.Equal(t, data.Total, decoded.Total)
	assert.Equal(t, data.Coverage.CoveragePct, decoded.Coverage.CoveragePct)
}

func TestWriteHTML(t *testing.T) {
	results, coverage, version := sampleRun(t)
	data := Build(samplePolicy, version, results, coverage)

	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, data))

	out := buf.String()
	assert.Contains(t, out, "<!DOCTYPE html>")
	assert.Contains(t, out, "drop table is blocked")
	assert.Contains(t, out, "status-pass")
	assert.Contains(t, out, "status-fail")
	assert.Contains(t, out, data.EvidenceHash)
	// Self-contained: no external asset references.
	assert.NotContains(t, out, "<script src=")
	assert.NotContains(t, out, "<link ")
}
