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
	"sort"
	"strconv"
	"strings"
)

// ruleHandler evaluates one configured rule against one tool call.
// Handlers are pure: same rule and call always produce the same
// result. The error path is reserved for invalid rule parameters
// discovered at evaluation time (e.g., a malformed regex) — those
// fail the whole evaluation rather than silently allowing the call.
type ruleHandler func(RuleConfig, ToolCall) (RuleResult, error)

// ruleHandlers is the fixed rule catalogue. It is populated once at
// compile time and never mutated, so the set of valid rule types is
// auditable without tracing registration order.
var ruleHandlers = map[string]ruleHandler{
	"regex_block":    evalRegexBlock,
	"regex_require":  evalRegexRequire,
	"pii_detect":     evalPIIDetect,
	"entitlement":    evalEntitlement,
	"budget":         evalBudget,
	"tool_allowlist": evalToolAllowlist,
}

// handlerFor looks up the evaluator for a rule type.
func handlerFor(ruleType string) (ruleHandler, error) {
	h, ok := ruleHandlers[ruleType]
	if !ok {
		return nil, &UnknownRuleTypeError{RuleType: ruleType}
	}
	return h, nil
}

// ValidRuleTypes returns the catalogue's type identifiers, sorted.
func ValidRuleTypes() []string {
	types := make([]string, 0, len(ruleHandlers))
	for t := range ruleHandlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// KnownRuleType reports whether ruleType is in the catalogue.
func KnownRuleType(ruleType string) bool {
	_, ok := ruleHandlers[ruleType]
	return ok
}

// piiPatterns is the fixed detector table for pii_detect rules.
// Detector names are the only valid values for the rule's
// "detectors" parameter.
var piiPatterns = map[string]*regexp.Regexp{
	"email":       regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
	"phone_intl":  regexp.MustCompile(`\+\d{1,3}[\s-]?\d{4,14}`),
	"hk_id":       regexp.MustCompile(`[A-Z]{1,2}\d{6}\([0-9A]\)`),
	"credit_card": regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{1,7}\b`),
	"ssn":         regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
}

// KnownPIIDetector reports whether name is a valid detector.
func KnownPIIDetector(name string) bool {
	_, ok := piiPatterns[name]
	return ok
}

// PIIDetectors returns the valid detector names, sorted.
func PIIDetectors() []string {
	names := make([]string, 0, len(piiPatterns))
	for n := range piiPatterns {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// maxEvidenceLen bounds the matched-value evidence recorded in results.
const maxEvidenceLen = 50

// maxExtractDepth bounds recursion when flattening caller-controlled
// nested args for PII scanning.
const maxExtractDepth = 32

func evalRegexBlock(rule RuleConfig, call ToolCall) (RuleResult, error) {
	fields := paramStrings(rule.Params, "fields")
	patterns := paramStrings(rule.Params, "patterns")

	for _, field := range fields {
		value, ok := call.Args[field]
		if !ok || value == nil {
			continue
		}
		text := stringify(value)
		for _, pattern := range patterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return RuleResult{}, fmt.Errorf("engine: rule %q: invalid pattern %q: %w", rule.Name, pattern, err)
			}
			loc := re.FindStringIndex(text)
			if loc == nil {
				continue
			}
			evidence := truncate(text[loc[0]:loc[1]], maxEvidenceLen)
			return RuleResult{
				RuleName:     rule.Name,
				RuleType:     rule.Type,
				Decision:     DecisionBlock,
				Reason:       fmt.Sprintf("Pattern matched in '%s': %s", field, evidence),
				MatchedValue: evidence,
			}, nil
		}
	}

	return RuleResult{
		RuleName: rule.Name,
		RuleType: rule.Type,
		Decision: DecisionAllow,
		Reason:   "No blocked patterns found",
	}, nil
}

func evalRegexRequire(rule RuleConfig, call ToolCall) (RuleResult, error) {
	fields := paramStrings(rule.Params, "fields")
	pattern := paramString(rule.Params, "pattern", "")

	// Anchor for full-string matching; a bare search would accept
	// values that merely contain a valid substring.
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return RuleResult{}, fmt.Errorf("engine: rule %q: invalid pattern %q: %w", rule.Name, pattern, err)
	}

	for _, field := range fields {
		value, ok := call.Args[field]
		if !ok || value == nil {
			return RuleResult{
				RuleName: rule.Name,
				RuleType: rule.Type,
				Decision: DecisionBlock,
				Reason:   fmt.Sprintf("Required field '%s' is missing", field),
			}, nil
		}
		text := stringify(value)
		if !re.MatchString(text) {
			return RuleResult{
				RuleName:     rule.Name,
				RuleType:     rule.Type,
				Decision:     DecisionBlock,
				Reason:       fmt.Sprintf("Field '%s' does not match required pattern", field),
				MatchedValue: truncate(text, maxEvidenceLen),
			}, nil
		}
	}

	return RuleResult{
		RuleName: rule.Name,
		RuleType: rule.Type,
		Decision: DecisionAllow,
		Reason:   "All required fields valid",
	}, nil
}

func evalPIIDetect(rule RuleConfig, call ToolCall) (RuleResult, error) {
	detectors := paramStrings(rule.Params, "detectors")
	action := paramString(rule.Params, "action", "block")

	corpus := strings.Join(extractStrings(call.Args, 0), " ")

	for _, name := range detectors {
		re, ok := piiPatterns[name]
		if !ok {
			continue
		}
		loc := re.FindStringIndex(corpus)
		if loc == nil {
			continue
		}
		decision := DecisionBlock
		if action != "block" {
			decision = DecisionAllow
		}
		return RuleResult{
			RuleName:     rule.Name,
			RuleType:     rule.Type,
			Decision:     decision,
			Reason:       fmt.Sprintf("PII detected (%s)", name),
			MatchedValue: truncate(corpus[loc[0]:loc[1]], 10) + "***",
		}, nil
	}

	return RuleResult{
		RuleName: rule.Name,
		RuleType: rule.Type,
		Decision: DecisionAllow,
		Reason:   "No PII detected",
	}, nil
}

func evalEntitlement(rule RuleConfig, call ToolCall) (RuleResult, error) {
	roles := paramRoleMap(rule.Params, "roles")
	fallback := paramString(rule.Params, "default", "block")
	roleField := paramString(rule.Params, "role_field", "role")

	role := metadataString(call.Metadata, roleField)
	if role == "" {
		// No role attribute — a user id that names a role directly is
		// accepted as that role.
		if _, ok := roles[call.UserID]; ok && call.UserID != "" {
			role = call.UserID
		}
	}

	allowed, ok := roles[role]
	if role == "" || !ok {
		decision := DecisionBlock
		if fallback != "block" {
			decision = DecisionAllow
		}
		return RuleResult{
			RuleName: rule.Name,
			RuleType: rule.Type,
			Decision: decision,
			Reason:   fmt.Sprintf("No role mapping for role '%s' (default: %s)", role, fallback),
		}, nil
	}

	for _, tool := range allowed {
		if tool == "*" || tool == call.Name {
			return RuleResult{
				RuleName: rule.Name,
				RuleType: rule.Type,
				Decision: DecisionAllow,
				Reason:   fmt.Sprintf("Role '%s' allowed to call '%s'", role, call.Name),
			}, nil
		}
	}

	return RuleResult{
		RuleName: rule.Name,
		RuleType: rule.Type,
		Decision: DecisionBlock,
		Reason:   fmt.Sprintf("Role '%s' not allowed to call '%s'", role, call.Name),
	}, nil
}

func evalBudget(rule RuleConfig, call ToolCall) (RuleResult, error) {
	var maxCost float64
	if raw, ok := rule.Params["max_cost"]; ok {
		var err error
		maxCost, err = toFloat(raw)
		if err != nil {
			return RuleResult{}, fmt.Errorf("engine: rule %q: invalid max_cost: %w", rule.Name, err)
		}
	}
	costField := paramString(rule.Params, "cost_field", "estimated_cost")

	raw, ok := call.Metadata[costField]
	if !ok || raw == nil {
		onMissing := paramString(rule.Params, "on_missing", "allow")
		decision := DecisionAllow
		if onMissing == "block" {
			decision = DecisionBlock
		}
		return RuleResult{
			RuleName: rule.Name,
			RuleType: rule.Type,
			Decision: decision,
			Reason:   fmt.Sprintf("No %s in metadata", costField),
		}, nil
	}

	cost, err := toFloat(raw)
	if err != nil {
		return RuleResult{
			RuleName: rule.Name,
			RuleType: rule.Type,
			Decision: DecisionBlock,
			Reason:   fmt.Sprintf("Invalid %s: %v", costField, raw),
		}, nil
	}

	if cost > maxCost {
		return RuleResult{
			RuleName: rule.Name,
			RuleType: rule.Type,
			Decision: DecisionBlock,
			Reason:   fmt.Sprintf("Cost %v exceeds threshold %v", cost, maxCost),
		}, nil
	}

	return RuleResult{
		RuleName: rule.Name,
		RuleType: rule.Type,
		Decision: DecisionAllow,
		Reason:   fmt.Sprintf("Cost %v within threshold %v", cost, maxCost),
	}, nil
}

func evalToolAllowlist(rule RuleConfig, call ToolCall) (RuleResult, error) {
	allowed := paramStrings(rule.Params, "allowed_tools")
	for _, tool := range allowed {
		if tool == call.Name {
			return RuleResult{
				RuleName: rule.Name,
				RuleType: rule.Type,
				Decision: DecisionAllow,
				Reason:   fmt.Sprintf("Tool '%s' is in allowlist", call.Name),
			}, nil
		}
	}
	return RuleResult{
		RuleName: rule.Name,
		RuleType: rule.Type,
		Decision: DecisionBlock,
		Reason:   fmt.Sprintf("Tool '%s' not in allowlist", call.Name),
	}, nil
}

// extractStrings flattens all string leaves of a nested value,
// depth-first. Map keys are visited in sorted order so the resulting
// corpus is deterministic. Recursion stops at maxExtractDepth since
// args are caller-controlled.
func extractStrings(v any, depth int) []string {
	if depth > maxExtractDepth {
		return nil
	}
	switch val := v.(type) {
	case string:
		return []string{val}
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var out []string
		for _, k := range keys {
			out = append(out, extractStrings(val[k], depth+1)...)
		}
		return out
	case []any:
		var out []string
		for _, item := range val {
			out = append(out, extractStrings(item, depth+1)...)
		}
		return out
	default:
		return nil
	}
}

// stringify renders an arg value the way evaluators match against it.
func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// truncate limits s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// paramStrings reads a []string parameter. YAML decoding produces
// []any, so both forms are accepted.
func paramStrings(params map[string]any, key string) []string {
	switch v := params[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, stringify(item))
		}
		return out
	default:
		return nil
	}
}

// paramString reads a string parameter with a default.
func paramString(params map[string]any, key, def string) string {
	if s, ok := params[key].(string); ok && s != "" {
		return s
	}
	return def
}

// paramRoleMap reads a role → allowed-tools mapping.
func paramRoleMap(params map[string]any, key string) map[string][]string {
	out := make(map[string][]string)
	switch v := params[key].(type) {
	case map[string][]string:
		return v
	case map[string]any:
		for role, tools := range v {
			switch t := tools.(type) {
			case []string:
				out[role] = t
			case []any:
				list := make([]string, 0, len(t))
				for _, item := range t {
					list = append(list, stringify(item))
				}
				out[role] = list
			}
		}
	}
	return out
}

// metadataString reads a string-valued metadata attribute.
func metadataString(metadata map[string]any, key string) string {
	s, _ := metadata[key].(string)
	return s
}

// toFloat converts numeric and numeric-string values to float64.
func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("engine: parse number %q: %w", n, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("engine: value %v is not a number", v)
	}
}
