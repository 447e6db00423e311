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

// Package report renders policy test runs as text, JSON, or a
// self-contained HTML page. Every report carries a SHA-256 hash of
// the policy file and an evidence hash over the full result set, so
// a report can later be tied to the exact policy and outcomes it
// describes.
package report

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/terry-li-hm/frenum/internal/engine"
)

// Data is everything a rendered report contains.
type Data struct {
	// PolicyVersion is the version string of the policy under test.
	PolicyVersion string `json:"policy_version"`

	// PolicyHash is the SHA-256 of the raw policy file.
	PolicyHash string `json:"policy_hash"`

	// GeneratedAt is when the report was built (UTC).
	GeneratedAt time.Time `json:"generated_at"`

	// Total, Passed and Failed count the test cases.
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`

	// Results holds one row per test case, in run order.
	Results []Row `json:"results"`

	// Coverage is the rule coverage derived from the run.
	Coverage engine.CoverageReport `json:"coverage"`

	// EvidenceHash is the SHA-256 over PolicyHash plus every result
	// row, in order. Two runs that produced identical outcomes
	// against the identical policy produce the identical hash.
	EvidenceHash string `json:"evidence_hash"`
}

// Row is one test case outcome in a report.
type Row struct {
	Description  string `json:"description"`
	Tool         string `json:"tool"`
	Expected     string `json:"expected"`
	Actual       string `json:"actual"`
	ExpectedRule string `json:"expected_rule,omitempty"`
	ActualRule   string `json:"actual_rule,omitempty"`
	Passed       bool   `json:"passed"`
	Reason       string `json:"reason"`
}

// Build assembles report data from a test run. policySource is the
// raw policy file as loaded, used for the policy hash.
func Build(policySource []byte, policyVersion string, results []engine.TestResult, coverage engine.CoverageReport) Data {
	data := Data{
		PolicyVersion: policyVersion,
		PolicyHash:    hashHex(policySource),
		GeneratedAt:   time.Now().UTC(),
		Total:         len(results),
		Coverage:      coverage,
	}

	for _, r := range results {
		if r.Passed {
			data.Passed++
		} else {
			data.Failed++
		}
		data.Results = append(data.Results, Row{
			Description:  r.Case.Description,
			Tool:         r.Case.ToolCall.Name,
			Expected:     r.Case.Expected.String(),
			Actual:       r.Actual.String(),
			ExpectedRule: r.Case.ExpectedRule,
			ActualRule:   r.ActualRule,
			Passed:       r.Passed,
			Reason:       r.Reason,
		})
	}

	data.EvidenceHash = evidenceHash(data.PolicyHash, data.Results)
	return data
}

func hashHex(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}

// evidenceHash chains the policy hash with every result row. Rows
// are serialized individually in run order so the hash is stable and
// reproducible.
func evidenceHash(policyHash string, rows []Row) string {
	h := sha256.New()
	h.Write([]byte(policyHash))
	for _, row := range rows {
		line, err := json.Marshal(row)
		if err != nil {
			continue
		}
		h.Write(line)
		h.Write([]byte{'\n'})
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}

// WriteJSON renders the report as indented JSON.
func WriteJSON(w io.Writer, data Data) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("report: encode json: %w", err)
	}
	return nil
}

// WriteText renders the report as a plain-text summary.
func WriteText(w io.Writer, data Data) error {
	var b strings.Builder

	fmt.Fprintf(&b, "Policy version: %s\n", data.PolicyVersion)
	fmt.Fprintf(&b, "Policy hash:    %s\n", data.PolicyHash)
	fmt.Fprintf(&b, "Generated:      %s\n\n", data.GeneratedAt.Format(time.RFC3339))

	for _, row := range data.Results {
		status := "PASS"
		if !row.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "[%s] %s\n", status, row.Description)
		if !row.Passed {
			fmt.Fprintf(&b, "       %s\n", row.Reason)
		}
	}

	fmt.Fprintf(&b, "\n%d passed, %d failed, %d total\n", data.Passed, data.Failed, data.Total)
	fmt.Fprintf(&b, "Rule coverage: %.1f%% (%d/%d deterministic rules exercised)\n",
		data.Coverage.CoveragePct,
		len(data.Coverage.RulesExercised),
		data.Coverage.TotalDeterministicRules,
	)
	if len(data.Coverage.RulesNotExercised) > 0 {
		fmt.Fprintf(&b, "Not exercised: %s\n", strings.Join(data.Coverage.RulesNotExercised, ", "))
	}
	if len(data.Coverage.SemanticRules) > 0 {
		fmt.Fprintf(&b, "Semantic rules (not auto-testable): %s\n", strings.Join(data.Coverage.SemanticRules, ", "))
	}
	fmt.Fprintf(&b, "Evidence hash: %s\n", data.EvidenceHash)

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("report: write text: %w", err)
	}
	return nil
}
