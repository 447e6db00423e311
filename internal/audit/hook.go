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

package audit

import (
	"log/slog"
	"strings"

	"github.com/terry-li-hm/frenum/internal/engine"
)

// redactEvidenceLen is how many characters of matched evidence are
// kept in the decision log. Enough to recognize what matched, not
// enough to reconstruct a full credential or identifier.
const redactEvidenceLen = 10

// Redact shortens matched evidence for durable storage. The engine
// already truncates evidence to 50 characters for in-memory results;
// the log keeps only a prefix with a mask suffix.
func Redact(value string) string {
	value = strings.TrimRight(value, "*")
	if value == "" {
		return ""
	}
	runes := []rune(value)
	if len(runes) > redactEvidenceLen {
		runes = runes[:redactEvidenceLen]
	}
	return string(runes) + "***"
}

// FromEvalResult converts an engine evaluation into a log event,
// redacting matched evidence.
func FromEvalResult(res engine.EvalResult, policyVersion string) Event {
	outcomes := make([]RuleOutcome, 0, len(res.RulesEvaluated))
	for _, rr := range res.RulesEvaluated {
		outcomes = append(outcomes, ruleOutcome(rr))
	}

	var blocking *RuleOutcome
	if res.BlockingRule != nil {
		o := ruleOutcome(*res.BlockingRule)
		blocking = &o
	}

	return Event{
		ID:             res.DecisionID,
		Timestamp:      res.Timestamp,
		PolicyVersion:  policyVersion,
		Tool:           res.ToolCall.Name,
		Args:           res.ToolCall.Args,
		UserID:         res.ToolCall.UserID,
		RequestID:      res.ToolCall.RequestID,
		CallID:         res.ToolCall.CallID,
		Decision:       res.Decision.String(),
		Reason:         res.Reason(),
		RulesEvaluated: outcomes,
		BlockingRule:   blocking,
	}
}

func ruleOutcome(rr engine.RuleResult) RuleOutcome {
	return RuleOutcome{
		Name:         rr.RuleName,
		Type:         rr.RuleType,
		Decision:     rr.Decision.String(),
		Reason:       rr.Reason,
		MatchedValue: Redact(rr.MatchedValue),
	}
}

// Hook adapts a Sink into an engine audit callback. A sink failure
// is logged, never propagated — recording must not take the policy
// engine down with it.
func Hook(sink Sink, policyVersion string, logger *slog.Logger) engine.AuditFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(res engine.EvalResult) {
		event := FromEvalResult(res, policyVersion)
		if err := sink.Write(event); err != nil {
			logger.Error("audit: record decision",
				"decision_id", res.DecisionID,
				"error", err,
			)
		}
	}
}
