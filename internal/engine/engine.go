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
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
)

// AuditFunc receives every EvalResult, synchronously, after the
// verdict is computed and before Evaluate returns. Its outcome never
// affects the verdict. The hook must be safe for concurrent use if
// the engine is shared across goroutines; the engine does not
// serialize calls to it.
type AuditFunc func(EvalResult)

// Engine evaluates tool calls against an ordered rule list.
//
// Evaluation is a pure fold over the list: rules run in configured
// order, the first block short-circuits, and nothing is retained
// between calls. The engine is read-only after construction and safe
// for concurrent use.
type Engine struct {
	rules         []RuleConfig
	policyVersion string
	audit         AuditFunc
	logger        *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithAudit injects the audit callback invoked once per Evaluate.
func WithAudit(fn AuditFunc) Option {
	return func(e *Engine) {
		e.audit = fn
	}
}

// WithLogger sets the engine's logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an engine from a validated policy config.
func New(cfg *Config, opts ...Option) *Engine {
	e := &Engine{
		policyVersion: "1.0.0",
		logger:        slog.Default(),
	}
	if cfg != nil {
		e.rules = append([]RuleConfig(nil), cfg.Rules...)
		if cfg.PolicyVersion != "" {
			e.policyVersion = cfg.PolicyVersion
		}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}

	e.logger.Info("engine: rules loaded",
		"count", len(e.rules),
		"policy_version", e.policyVersion,
	)

	return e
}

// Rules returns a copy of the configured rule list.
func (e *Engine) Rules() []RuleConfig {
	return append([]RuleConfig(nil), e.rules...)
}

// PolicyVersion returns the loaded policy version string.
func (e *Engine) PolicyVersion() string {
	return e.policyVersion
}

// Evaluate runs one tool call through every applicable rule for the
// given phase and returns the aggregate verdict.
//
// Rules run in configured order. Semantic rules, rules for another
// phase, and rules whose applies_to patterns do not match the tool
// name are skipped without being recorded. The first rule that
// blocks ends evaluation — later rules never run, which makes rule
// order policy-significant.
//
// An unknown rule type or invalid rule parameter fails the whole
// evaluation; misconfigured guardrails fail loud, never open.
func (e *Engine) Evaluate(call ToolCall, phase Phase) (EvalResult, error) {
	if phase == "" {
		phase = PhasePre
	}

	var (
		results  []RuleResult
		blocking *RuleResult
	)

	for _, rule := range e.rules {
		if rule.Kind == KindSemantic {
			continue
		}
		if rule.Phase != phase {
			continue
		}
		if !appliesTo(rule, call.Name) {
			continue
		}

		handler, err := handlerFor(rule.Type)
		if err != nil {
			return EvalResult{}, err
		}
		result, err := handler(rule, call)
		if err != nil {
			return EvalResult{}, err
		}
		results = append(results, result)

		if result.Decision == DecisionBlock {
			blocking = &results[len(results)-1]
			break
		}
	}

	decision := DecisionAllow
	if blocking != nil {
		decision = DecisionBlock
	}

	res := EvalResult{
		Decision:       decision,
		ToolCall:       call,
		RulesEvaluated: results,
		BlockingRule:   blocking,
		DecisionID:     newDecisionID(),
		Timestamp:      time.Now().UTC(),
	}

	e.logger.Debug("engine: evaluated tool call",
		"tool", call.Name,
		"phase", phase,
		"decision", decision,
		"rules_evaluated", len(results),
		"decision_id", res.DecisionID,
	)

	if e.audit != nil {
		e.audit(res)
	}

	return res, nil
}

// Guard evaluates a tool call and returns it unchanged when allowed.
// On block it returns a *BlockedError carrying the full EvalResult.
func (e *Engine) Guard(call ToolCall, phase Phase) (ToolCall, error) {
	res, err := e.Evaluate(call, phase)
	if err != nil {
		return call, err
	}
	if res.Blocked() {
		return call, &BlockedError{Result: res}
	}
	return call, nil
}

// newDecisionID returns a fresh decision identifier. ULIDs are
// time-ordered and fixed-length, which keeps audit records sortable.
func newDecisionID() string {
	return ulid.Make().String()
}
