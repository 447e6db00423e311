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

// Package sdk provides the public API for integrating frenum's
// policy engine into agent runtimes.
//
// The SDK wraps tool functions with policy enforcement. When a
// wrapped function is called, the call is evaluated before the tool
// runs, and its serialized output is evaluated afterwards. A block
// in either phase surfaces as *ErrBlocked.
//
// Basic usage:
//
//	s, err := sdk.New("policy.yaml")
//	safeSQL := s.Wrap("execute_sql", runSQL)
//	result, err := safeSQL(ctx, map[string]any{"query": "SELECT 1"})
//	// If blocked: errors.As(err, &blocked) with *ErrBlocked
package sdk

import "fmt"

// ErrBlocked is returned when a tool call is blocked by policy.
type ErrBlocked struct {
	// Tool is the tool that was blocked (e.g., "execute_sql").
	Tool string

	// Rule is the name of the rule that blocked the call.
	Rule string

	// Reason is the human-readable reason for the block.
	Reason string

	// DecisionID identifies the evaluation in the decision log.
	DecisionID string

	// Phase is "pre" when the call was blocked before execution,
	// "post" when its output was blocked after execution.
	Phase string
}

// Error implements the error interface.
func (e *ErrBlocked) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("frenum: blocked %q by rule %q: %s", e.Tool, e.Rule, e.Reason)
	}
	return fmt.Sprintf("frenum: blocked %q: %s", e.Tool, e.Reason)
}
