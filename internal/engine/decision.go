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

// Package engine implements frenum's deterministic rule engine for
// agent tool calls.
//
// Rules are evaluated in their configured order against one tool call.
// The first rule that blocks wins and stops evaluation; if no rule
// blocks, the call is allowed. Semantic rules are configured but never
// evaluated automatically. No rule ever calls an external model or
// service — every decision is reproducible from the rule list and the
// input alone.
package engine

import (
	"encoding/json"
	"fmt"
	"time"
)

// Decision is the verdict of a rule or of a whole evaluation.
type Decision int

const (
	// DecisionAllow permits the tool call to proceed.
	DecisionAllow Decision = iota

	// DecisionBlock stops the tool call. The agent receives the
	// blocking rule's reason.
	DecisionBlock
)

// String returns a human-readable decision name.
func (d Decision) String() string {
	switch d {
	case DecisionAllow:
		return "allow"
	case DecisionBlock:
		return "block"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// MarshalJSON encodes the decision as its string form.
func (d Decision) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes a decision from its string form.
func (d *Decision) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDecision(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDecision converts a string to a Decision.
func ParseDecision(s string) (Decision, error) {
	switch s {
	case "allow":
		return DecisionAllow, nil
	case "block":
		return DecisionBlock, nil
	default:
		return DecisionAllow, fmt.Errorf("engine: unknown decision %q", s)
	}
}

// ToolCall is a framework-agnostic representation of an agent tool
// call. This is the input to the rule engine. Callers construct one
// per invocation; the engine never mutates it.
type ToolCall struct {
	// Name is the tool being invoked (e.g., "execute_sql", "search").
	Name string `json:"name" yaml:"name"`

	// Args contains tool-specific arguments. Values may be strings,
	// numbers, booleans, or nested maps and slices.
	Args map[string]any `json:"args" yaml:"args"`

	// CallID is the caller-assigned identifier for this invocation.
	CallID string `json:"call_id,omitempty" yaml:"call_id,omitempty"`

	// UserID identifies the end user on whose behalf the agent acts.
	UserID string `json:"user_id,omitempty" yaml:"user_id,omitempty"`

	// RequestID identifies the enclosing agent request.
	RequestID string `json:"request_id,omitempty" yaml:"request_id,omitempty"`

	// Metadata carries caller attributes such as role, trace id, or
	// estimated cost. Consulted by entitlement and budget rules.
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// RuleResult is the outcome of evaluating a single rule against a
// tool call. Evaluators return one even on allow so the engine can
// record which rules ran.
type RuleResult struct {
	// RuleName is the configured name of the rule.
	RuleName string `json:"rule_name"`

	// RuleType is the catalogue type identifier (e.g., "regex_block").
	RuleType string `json:"rule_type"`

	// Decision is this rule's verdict.
	Decision Decision `json:"decision"`

	// Reason is a human-readable explanation of the verdict.
	Reason string `json:"reason"`

	// MatchedValue is truncated evidence for the match, at most 50
	// characters. Empty when the rule matched nothing.
	MatchedValue string `json:"matched_value,omitempty"`
}

// EvalResult is the aggregate verdict for one tool call.
type EvalResult struct {
	// Decision is the final verdict: block iff BlockingRule is set.
	Decision Decision

	// ToolCall is the call that was evaluated.
	ToolCall ToolCall

	// RulesEvaluated lists the result of every rule that actually
	// ran, in evaluation order, ending at the first block.
	RulesEvaluated []RuleResult

	// BlockingRule is the result that caused a block, or nil.
	BlockingRule *RuleResult

	// DecisionID is an opaque ULID identifying this evaluation.
	DecisionID string

	// Timestamp is when the evaluation completed (UTC).
	Timestamp time.Time
}

// Reason returns the blocking rule's reason, or a fixed string when
// every rule passed.
func (r EvalResult) Reason() string {
	if r.BlockingRule != nil {
		return r.BlockingRule.Reason
	}
	return "All rules passed"
}

// Blocked returns true if the tool call was blocked.
func (r EvalResult) Blocked() bool {
	return r.Decision == DecisionBlock
}

// RuleNames returns the names of the rules that ran, in order.
func (r EvalResult) RuleNames() []string {
	names := make([]string, 0, len(r.RulesEvaluated))
	for _, rr := range r.RulesEvaluated {
		names = append(names, rr.RuleName)
	}
	return names
}

// BlockedError is returned by Guard when a tool call is blocked.
// It is an expected control-flow outcome, not a failure of the
// engine; callers inspect Result for the blocking rule and reason.
type BlockedError struct {
	Result EvalResult
}

// Error implements the error interface.
func (e *BlockedError) Error() string {
	if e.Result.BlockingRule != nil {
		return fmt.Sprintf("engine: tool call %q blocked by rule %q: %s",
			e.Result.ToolCall.Name, e.Result.BlockingRule.RuleName, e.Result.BlockingRule.Reason)
	}
	return "engine: tool call blocked"
}

// UnknownRuleTypeError is returned when a rule references a type that
// is not in the catalogue. Policy misconfiguration is surfaced loudly
// rather than silently skipped: a guardrail failing open is worse
// than a guardrail failing loud.
type UnknownRuleTypeError struct {
	RuleType string
}

// Error implements the error interface.
func (e *UnknownRuleTypeError) Error() string {
	return fmt.Sprintf("engine: unknown rule type %q (valid: %v)", e.RuleType, ValidRuleTypes())
}
