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
	"regexp"
)

// LintSeverity is the severity of a lint finding.
type LintSeverity int

const (
	LintWarning LintSeverity = iota
	LintError
)

func (s LintSeverity) String() string {
	switch s {
	case LintWarning:
		return "warning"
	case LintError:
		return "error"
	default:
		return "unknown"
	}
}

// LintFinding is a single diagnostic about a policy rule.
//
// Error codes:
//
//	E001 — invalid regex pattern
//	E002 — unknown PII detector
//	E003 — duplicate rule name
//
// Warning codes:
//
//	W001 — empty applies_to (rule will never match)
//	W002 — missing required parameter for rule type
//	W003 — unknown rule type
type LintFinding struct {
	RuleName string
	Code     string
	Message  string
	Severity LintSeverity
}

func (f LintFinding) String() string {
	return fmt.Sprintf("%s: %s [%s]: %s", f.Severity, f.RuleName, f.Code, f.Message)
}

// requiredParams maps each rule type to the parameters it cannot
// work without.
var requiredParams = map[string][]string{
	"regex_block":    {"fields", "patterns"},
	"regex_require":  {"fields", "pattern"},
	"pii_detect":     {"detectors"},
	"entitlement":    {"roles"},
	"budget":         {"max_cost"},
	"tool_allowlist": {"allowed_tools"},
}

// Lint statically checks a rule list for common configuration
// mistakes. It never evaluates anything; findings with severity
// error describe rules that would fail at evaluation time.
func Lint(rules []RuleConfig) []LintFinding {
	var findings []LintFinding
	seen := make(map[string]bool)

	for _, rule := range rules {
		if seen[rule.Name] {
			findings = append(findings, LintFinding{
				RuleName: rule.Name,
				Code:     "E003",
				Message:  fmt.Sprintf("Duplicate rule name: '%s'", rule.Name),
				Severity: LintError,
			})
		}
		seen[rule.Name] = true

		if !KnownRuleType(rule.Type) {
			findings = append(findings, LintFinding{
				RuleName: rule.Name,
				Code:     "W003",
				Message:  fmt.Sprintf("Unknown rule type: '%s'", rule.Type),
				Severity: LintWarning,
			})
		}

		if len(rule.AppliesTo) == 0 {
			findings = append(findings, LintFinding{
				RuleName: rule.Name,
				Code:     "W001",
				Message:  "Rule 'applies_to' list is empty; this rule will never match.",
				Severity: LintWarning,
			})
		}

		for _, param := range requiredParams[rule.Type] {
			if _, ok := rule.Params[param]; !ok {
				findings = append(findings, LintFinding{
					RuleName: rule.Name,
					Code:     "W002",
					Message:  fmt.Sprintf("Missing required parameter '%s' for rule type '%s'", param, rule.Type),
					Severity: LintWarning,
				})
			}
		}

		findings = append(findings, lintPatterns(rule)...)

		if rule.Type == "pii_detect" {
			for _, d := range paramStrings(rule.Params, "detectors") {
				if !KnownPIIDetector(d) {
					findings = append(findings, LintFinding{
						RuleName: rule.Name,
						Code:     "E002",
						Message:  fmt.Sprintf("Unknown PII detector: '%s'", d),
						Severity: LintError,
					})
				}
			}
		}
	}

	return findings
}

// lintPatterns compiles every regex a rule configures, so broken
// patterns surface before a tool call ever hits them.
func lintPatterns(rule RuleConfig) []LintFinding {
	var patterns []string
	switch rule.Type {
	case "regex_block":
		patterns = paramStrings(rule.Params, "patterns")
	case "regex_require":
		if p := paramString(rule.Params, "pattern", ""); p != "" {
			patterns = []string{p}
		}
	default:
		return nil
	}

	var findings []LintFinding
	for _, p := range patterns {
		if _, err := regexp.Compile(p); err != nil {
			findings = append(findings, LintFinding{
				RuleName: rule.Name,
				Code:     "E001",
				Message:  fmt.Sprintf("Invalid regex pattern '%s': %v", p, err),
				Severity: LintError,
			})
		}
	}
	return findings
}

// CountFindings returns the number of errors and warnings in a
// finding list.
func CountFindings(findings []LintFinding) (errors, warnings int) {
	for _, f := range findings {
		if f.Severity == LintError {
			errors++
		} else {
			warnings++
		}
	}
	return errors, warnings
}
