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
	"math"
	"sort"
)

// CoverageReport partitions the configured deterministic rules into
// exercised and not-exercised, based on which rules a test run
// actually touched. Semantic rules are listed separately and never
// count toward the percentage — automated replay cannot validate
// judgment-based rules.
type CoverageReport struct {
	// TotalDeterministicRules is the number of configured
	// deterministic rules.
	TotalDeterministicRules int `json:"total_deterministic_rules"`

	// RulesExercised lists deterministic rules touched by at least
	// one test case, sorted.
	RulesExercised []string `json:"rules_exercised"`

	// RulesNotExercised lists deterministic rules no test touched,
	// sorted.
	RulesNotExercised []string `json:"rules_not_exercised"`

	// SemanticRules lists configured semantic rule names.
	SemanticRules []string `json:"semantic_rules"`

	// CoveragePct is exercised/total*100 rounded to one decimal.
	// 100.0 when there are no deterministic rules.
	CoveragePct float64 `json:"coverage_pct"`
}

// CalculateCoverage derives rule coverage from test results, computed
// against the engine's own rule configuration rather than the results
// alone — rules no test reached still count in the denominator.
func (e *Engine) CalculateCoverage(results []TestResult) CoverageReport {
	detNames := make(map[string]bool)
	var semantic []string
	for _, r := range e.rules {
		if r.Kind == KindSemantic {
			semantic = append(semantic, r.Name)
			continue
		}
		detNames[r.Name] = true
	}

	touched := make(map[string]bool)
	for _, res := range results {
		for _, name := range res.RulesEvaluated {
			touched[name] = true
		}
	}

	var exercised, notExercised []string
	for name := range detNames {
		if touched[name] {
			exercised = append(exercised, name)
		} else {
			notExercised = append(notExercised, name)
		}
	}
	sort.Strings(exercised)
	sort.Strings(notExercised)

	pct := 100.0
	if len(detNames) > 0 {
		// Half-to-even, so a replayed run reports the same figure as
		// the systems this feeds into.
		pct = math.RoundToEven(float64(len(exercised))/float64(len(detNames))*1000) / 10
	}

	return CoverageReport{
		TotalDeterministicRules: len(detNames),
		RulesExercised:          exercised,
		RulesNotExercised:       notExercised,
		SemanticRules:           semantic,
		CoveragePct:             pct,
	}
}
