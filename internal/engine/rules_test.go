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
	"strings"
	"testing"
)

func regexBlockRule(fields, patterns []string) RuleConfig {
	return RuleConfig{
		Name: "rb",
		Type: "regex_block",
		Params: map[string]any{
			"fields":   fields,
			"patterns": patterns,
		},
	}
}

func TestRegexBlock(t *testing.T) {
	tests := []struct {
		name    string
		rule    RuleConfig
		call    ToolCall
		want    Decision
		reason  string
		matched string
	}{
		{
			name: "pattern match blocks",
			rule: regexBlockRule([]string{"query"}, []string{`(?i)DROP\s+TABLE`}),
			call: sqlCall("please DROP TABLE users now"),
			want:    DecisionBlock,
			reason:  "Pattern matched in 'query': DROP TABLE",
			matched: "DROP TABLE",
		},
		{
			name: "no match allows",
			rule: regexBlockRule([]string{"query"}, []string{`(?i)DROP\s+TABLE`}),
			call: sqlCall("SELECT 1"),
			want:    DecisionAllow,
			reason: "No blocked patterns found",
		},
		{
			name: "absent field skipped",
			rule: regexBlockRule([]string{"missing"}, []string{`.`}),
			call: sqlCall("DROP TABLE users"),
			want: DecisionAllow,
		},
		{
			name: "numeric value matched as string",
			rule: regexBlockRule([]string{"limit"}, []string{`^9999$`}),
			call: ToolCall{Name: "search", Args: map[string]any{"limit": 9999}},
			want: DecisionBlock,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := evalRegexBlock(tt.rule, tt.call)
			if err != nil {
				t.Fatalf("evalRegexBlock: %v", err)
			}
			if got.Decision != tt.want {
				t.Fatalf("want %s, got %s (%s)", tt.want, got.Decision, got.Reason)
			}
			if tt.reason != "" && got.Reason != tt.reason {
				t.Errorf("want reason %q, got %q", tt.reason, got.Reason)
			}
			if tt.matched != "" && got.MatchedValue != tt.matched {
				t.Errorf("want matched value %q, got %q", tt.matched, got.MatchedValue)
			}
		})
	}
}

func TestRegexBlock_EvidenceTruncated(t *testing.T) {
	long := strings.Repeat("A", 80)
	rule := regexBlockRule([]string{"query"}, []string{`A+`})
	got, err := evalRegexBlock(rule, sqlCall(long))
	if err != nil {
		t.Fatalf("evalRegexBlock: %v", err)
	}
	if len(got.MatchedValue) != 50 {
		t.Errorf("want 50-char evidence, got %d", len(got.MatchedValue))
	}
}

func TestRegexBlock_InvalidPatternFails(t *testing.T) {
	rule := regexBlockRule([]string{"query"}, []string{`(unclosed`})
	_, err := evalRegexBlock(rule, sqlCall("anything"))
	if err == nil {
		t.Fatal("want error for invalid pattern, got nil")
	}
}

func TestRegexRequire(t *testing.T) {
	rule := RuleConfig{
		Name: "rr",
		Type: "regex_require",
		Params: map[string]any{
			"fields":  []string{"account_id"},
			"pattern": `ACC-\d{6}`,
		},
	}

	tests := []struct {
		name   string
		args   map[string]any
		want   Decision
		reason string
	}{
		{
			name:   "missing field blocks",
			args:   map[string]any{},
			want:   DecisionBlock,
			reason: "Required field 'account_id' is missing",
		},
		{
			name:   "full match allows",
			args:   map[string]any{"account_id": "ACC-123456"},
			want:   DecisionAllow,
			reason: "All required fields valid",
		},
		{
			name:   "partial match blocks",
			args:   map[string]any{"account_id": "prefix ACC-123456 suffix"},
			want:   DecisionBlock,
			reason: "Field 'account_id' does not match required pattern",
		},
		{
			name: "nil value treated as missing",
			args: map[string]any{"account_id": nil},
			want: DecisionBlock,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := evalRegexRequire(rule, ToolCall{Name: "transfer", Args: tt.args})
			if err != nil {
				t.Fatalf("evalRegexRequire: %v", err)
			}
			if got.Decision != tt.want {
				t.Fatalf("want %s, got %s (%s)", tt.want, got.Decision, got.Reason)
			}
			if tt.reason != "" && got.Reason != tt.reason {
				t.Errorf("want reason %q, got %q", tt.reason, got.Reason)
			}
		})
	}
}

func TestPIIDetect(t *testing.T) {
	rule := func(detectors []string, action string) RuleConfig {
		params := map[string]any{"detectors": detectors}
		if action != "" {
			params["action"] = action
		}
		return RuleConfig{Name: "pii", Type: "pii_detect", Params: params}
	}

	tests := []struct {
		name string
		rule RuleConfig
		args map[string]any
		want Decision
	}{
		{
			name: "email in flat arg",
			rule: rule([]string{"email"}, ""),
			args: map[string]any{"q": "reach me at alice@example.com"},
			want: DecisionBlock,
		},
		{
			name: "ssn in list element",
			rule: rule([]string{"ssn"}, ""),
			args: map[string]any{"rows": []any{"id", "ssn 123-45-6789"}},
			want: DecisionBlock,
		},
		{
			name: "credit card digit groups",
			rule: rule([]string{"credit_card"}, ""),
			args: map[string]any{"note": "card 4111 1111 1111 1111"},
			want: DecisionBlock,
		},
		{
			name: "action allow downgrades to allow",
			rule: rule([]string{"email"}, "allow"),
			args: map[string]any{"q": "alice@example.com"},
			want: DecisionAllow,
		},
		{
			name: "clean args allow",
			rule: rule([]string{"email", "phone_intl", "ssn"}, ""),
			args: map[string]any{"q": "weather in hong kong"},
			want: DecisionAllow,
		},
		{
			name: "unknown detector ignored",
			rule: rule([]string{"not_a_detector"}, ""),
			args: map[string]any{"q": "alice@example.com"},
			want: DecisionAllow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := evalPIIDetect(tt.rule, ToolCall{Name: "search", Args: tt.args})
			if err != nil {
				t.Fatalf("evalPIIDetect: %v", err)
			}
			if got.Decision != tt.want {
				t.Fatalf("want %s, got %s (%s)", tt.want, got.Decision, got.Reason)
			}
		})
	}
}

func TestPIIDetect_EvidenceMasked(t *testing.T) {
	rule := RuleConfig{Name: "pii", Type: "pii_detect", Params: map[string]any{
		"detectors": []string{"email"},
	}}
	got, err := evalPIIDetect(rule, ToolCall{Name: "search", Args: map[string]any{
		"q": "alice.wong@example.com",
	}})
	if err != nil {
		t.Fatalf("evalPIIDetect: %v", err)
	}
	if !strings.HasSuffix(got.MatchedValue, "***") {
		t.Errorf("evidence not masked: %q", got.MatchedValue)
	}
	if len(got.MatchedValue) > 13 {
		t.Errorf("evidence too long: %q", got.MatchedValue)
	}
}

func TestEntitlement(t *testing.T) {
	rule := func(params map[string]any) RuleConfig {
		return RuleConfig{Name: "ent", Type: "entitlement", Params: params}
	}
	roles := map[string]any{
		"analyst": []any{"search", "get_data"},
		"admin":   []any{"*"},
	}

	tests := []struct {
		name string
		rule RuleConfig
		call ToolCall
		want Decision
	}{
		{
			name: "role allowed for tool",
			rule: rule(map[string]any{"roles": roles}),
			call: ToolCall{Name: "search", Metadata: map[string]any{"role": "analyst"}},
			want: DecisionAllow,
		},
		{
			name: "role not allowed for tool",
			rule: rule(map[string]any{"roles": roles}),
			call: ToolCall{Name: "delete_account", Metadata: map[string]any{"role": "analyst"}},
			want: DecisionBlock,
		},
		{
			name: "wildcard role allows everything",
			rule: rule(map[string]any{"roles": roles}),
			call: ToolCall{Name: "delete_account", Metadata: map[string]any{"role": "admin"}},
			want: DecisionAllow,
		},
		{
			name: "unknown role blocks by default",
			rule: rule(map[string]any{"roles": roles}),
			call: ToolCall{Name: "search", Metadata: map[string]any{"role": "guest"}},
			want: DecisionBlock,
		},
		{
			name: "unknown role with default allow",
			rule: rule(map[string]any{"roles": roles, "default": "allow"}),
			call: ToolCall{Name: "search", Metadata: map[string]any{"role": "guest"}},
			want: DecisionAllow,
		},
		{
			name: "custom role_field",
			rule: rule(map[string]any{"roles": roles, "role_field": "team"}),
			call: ToolCall{Name: "search", Metadata: map[string]any{"team": "analyst"}},
			want: DecisionAllow,
		},
		{
			name: "user id matching a role name",
			rule: rule(map[string]any{"roles": roles}),
			call: ToolCall{Name: "search", UserID: "analyst", Metadata: map[string]any{}},
			want: DecisionAllow,
		},
		{
			name: "no role at all blocks",
			rule: rule(map[string]any{"roles": roles}),
			call: ToolCall{Name: "search", Metadata: map[string]any{}},
			want: DecisionBlock,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := evalEntitlement(tt.rule, tt.call)
			if err != nil {
				t.Fatalf("evalEntitlement: %v", err)
			}
			if got.Decision != tt.want {
				t.Fatalf("want %s, got %s (%s)", tt.want, got.Decision, got.Reason)
			}
		})
	}
}

func TestBudget(t *testing.T) {
	rule := func(params map[string]any) RuleConfig {
		if _, ok := params["max_cost"]; !ok {
			params["max_cost"] = 10.0
		}
		return RuleConfig{Name: "budget", Type: "budget", Params: params}
	}

	tests := []struct {
		name string
		rule RuleConfig
		meta map[string]any
		want Decision
	}{
		{
			name: "within threshold allows",
			rule: rule(map[string]any{}),
			meta: map[string]any{"estimated_cost": 5.0},
			want: DecisionAllow,
		},
		{
			name: "over threshold blocks",
			rule: rule(map[string]any{}),
			meta: map[string]any{"estimated_cost": 10.5},
			want: DecisionBlock,
		},
		{
			name: "exactly at threshold allows",
			rule: rule(map[string]any{}),
			meta: map[string]any{"estimated_cost": 10.0},
			want: DecisionAllow,
		},
		{
			name: "missing cost allows by default",
			rule: rule(map[string]any{}),
			meta: map[string]any{},
			want: DecisionAllow,
		},
		{
			name: "missing cost with on_missing block",
			rule: rule(map[string]any{"on_missing": "block"}),
			meta: map[string]any{},
			want: DecisionBlock,
		},
		{
			name: "unparseable cost blocks",
			rule: rule(map[string]any{}),
			meta: map[string]any{"estimated_cost": "cheap"},
			want: DecisionBlock,
		},
		{
			name: "numeric string parses",
			rule: rule(map[string]any{}),
			meta: map[string]any{"estimated_cost": "7.5"},
			want: DecisionAllow,
		},
		{
			name: "custom cost_field",
			rule: rule(map[string]any{"cost_field": "tokens", "max_cost": 100}),
			meta: map[string]any{"tokens": 250},
			want: DecisionBlock,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := evalBudget(tt.rule, ToolCall{Name: "search", Metadata: tt.meta})
			if err != nil {
				t.Fatalf("evalBudget: %v", err)
			}
			if got.Decision != tt.want {
				t.Fatalf("want %s, got %s (%s)", tt.want, got.Decision, got.Reason)
			}
		})
	}
}

func TestBudget_NonNumericMaxCostFailsEvaluation(t *testing.T) {
	rule := RuleConfig{Name: "spend_cap", Type: "budget", Params: map[string]any{
		"max_cost": "not_a_number",
	}}

	_, err := evalBudget(rule, ToolCall{Name: "search", Metadata: map[string]any{"estimated_cost": 0.0}})
	if err == nil {
		t.Fatal("expected error for non-numeric max_cost, got nil")
	}
	if !strings.Contains(err.Error(), "max_cost") {
		t.Errorf("error should name the bad parameter, got: %v", err)
	}

	// The misconfiguration surfaces through full evaluation too,
	// instead of failing open.
	e := setupEngine(t, `
rules:
  - name: spend_cap
    type: budget
    applies_to: ["*"]
    params:
      max_cost: "not_a_number"
`)
	_, err = e.Evaluate(ToolCall{Name: "search", Metadata: map[string]any{"estimated_cost": 0.0}}, PhasePre)
	if err == nil {
		t.Fatal("expected evaluation error, got nil")
	}
}

func TestToolAllowlist(t *testing.T) {
	rule := RuleConfig{Name: "allowed", Type: "tool_allowlist", Params: map[string]any{
		"allowed_tools": []any{"search", "get_data"},
	}}

	got, err := evalToolAllowlist(rule, ToolCall{Name: "search"})
	if err != nil {
		t.Fatalf("evalToolAllowlist: %v", err)
	}
	if got.Decision != DecisionAllow {
		t.Errorf("want allow for listed tool, got %s", got.Decision)
	}

	got, err = evalToolAllowlist(rule, ToolCall{Name: "delete_account"})
	if err != nil {
		t.Fatalf("evalToolAllowlist: %v", err)
	}
	if got.Decision != DecisionBlock {
		t.Errorf("want block for unlisted tool, got %s", got.Decision)
	}
	if got.Reason != "Tool 'delete_account' not in allowlist" {
		t.Errorf("unexpected reason %q", got.Reason)
	}
}

func TestToolAllowlist_NoGlobbing(t *testing.T) {
	// Allowlist entries are literal names, not patterns.
	rule := RuleConfig{Name: "allowed", Type: "tool_allowlist", Params: map[string]any{
		"allowed_tools": []any{"search_*"},
	}}
	got, err := evalToolAllowlist(rule, ToolCall{Name: "search_web"})
	if err != nil {
		t.Fatalf("evalToolAllowlist: %v", err)
	}
	if got.Decision != DecisionBlock {
		t.Errorf("allowlist entry treated as pattern: %s", got.Decision)
	}
}

func TestExtractStrings_DepthBound(t *testing.T) {
	// Build nesting deeper than the recursion bound.
	leaf := any("buried@example.com")
	for i := 0; i < maxExtractDepth+5; i++ {
		leaf = map[string]any{"k": leaf}
	}
	got := extractStrings(leaf, 0)
	if len(got) != 0 {
		t.Errorf("expected extraction to stop at depth bound, got %v", got)
	}
}

func TestExtractStrings_Deterministic(t *testing.T) {
	args := map[string]any{
		"b": "second",
		"a": "first",
		"c": []any{"third", map[string]any{"z": "fifth", "y": "fourth"}},
	}
	want := []string{"first", "second", "third", "fourth", "fifth"}
	for i := 0; i < 5; i++ {
		got := extractStrings(args, 0)
		if strings.Join(got, "|") != strings.Join(want, "|") {
			t.Fatalf("want %v, got %v", want, got)
		}
	}
}
