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

package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/terry-li-hm/frenum/internal/audit"
	"github.com/terry-li-hm/frenum/internal/engine"
)

// contextKey is an unexported type for context keys, preventing
// collisions with keys from other packages.
type contextKey string

const (
	// UserIDKey is the context key for the end-user identifier.
	UserIDKey contextKey = "frenum-user-id"

	// RequestIDKey is the context key for the agent request id.
	RequestIDKey contextKey = "frenum-request-id"

	// MetadataKey is the context key for caller metadata
	// (map[string]any), consulted by entitlement and budget rules.
	MetadataKey contextKey = "frenum-metadata"
)

// ToolFunc is a runtime tool function wrapped by policy checks.
type ToolFunc func(ctx context.Context, args map[string]any) (any, error)

// SDK wraps the policy engine for agent runtime integrations.
type SDK struct {
	engine *engine.Engine
	logger *slog.Logger
}

// Option configures an SDK.
type Option func(*config)

type config struct {
	logger *slog.Logger
	sink   audit.Sink
}

// WithLogger sets the logger used by SDK wrappers.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithAuditSink records every evaluation to the decision log.
func WithAuditSink(sink audit.Sink) Option {
	return func(c *config) {
		c.sink = sink
	}
}

// New creates an SDK from a policy configuration file path.
func New(configPath string, opts ...Option) (*SDK, error) {
	cfg, err := engine.NewFileStore(configPath).Load()
	if err != nil {
		return nil, fmt.Errorf("sdk: load policy: %w", err)
	}
	return FromConfig(cfg, opts...), nil
}

// FromConfig creates an SDK from an already-loaded policy config.
func FromConfig(cfg *engine.Config, opts ...Option) *SDK {
	c := config{logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}

	engOpts := []engine.Option{engine.WithLogger(c.logger)}
	if c.sink != nil {
		engOpts = append(engOpts, engine.WithAudit(audit.Hook(c.sink, cfg.PolicyVersion, c.logger)))
	}

	return &SDK{
		engine: engine.New(cfg, engOpts...),
		logger: c.logger,
	}
}

// Engine exposes the underlying policy engine.
func (s *SDK) Engine() *engine.Engine {
	return s.engine
}

// Wrap returns a policy-enforced wrapper for a tool function. The
// call is evaluated pre-phase before fn runs; fn's serialized result
// is evaluated post-phase before it is returned. A post-phase block
// withholds the result.
func (s *SDK) Wrap(toolName string, fn ToolFunc) ToolFunc {
	return func(ctx context.Context, args map[string]any) (any, error) {
		start := time.Now()
		call := s.buildToolCall(ctx, toolName, args)

		if _, err := s.engine.Guard(call, engine.PhasePre); err != nil {
			return nil, s.blockedError(toolName, "pre", err)
		}

		result, err := fn(ctx, args)
		if err != nil {
			return nil, err
		}

		post := call
		post.Args = map[string]any{"result": serializeResult(result)}
		if _, err := s.engine.Guard(post, engine.PhasePost); err != nil {
			return nil, s.blockedError(toolName, "post", err)
		}

		s.logger.Debug("sdk: tool completed",
			"tool", toolName,
			"call_id", call.CallID,
			"duration", time.Since(start),
		)
		return result, nil
	}
}

// Preflight checks whether a tool call would be allowed without
// executing it. Agents use this to plan around policy restrictions
// before attempting blocked actions.
func (s *SDK) Preflight(ctx context.Context, toolName string, args map[string]any) (PreflightResult, error) {
	call := s.buildToolCall(ctx, toolName, args)
	res, err := s.engine.Evaluate(call, engine.PhasePre)
	if err != nil {
		return PreflightResult{}, fmt.Errorf("sdk: preflight: %w", err)
	}

	pr := PreflightResult{
		Allowed:    !res.Blocked(),
		Decision:   res.Decision.String(),
		Reason:     res.Reason(),
		DecisionID: res.DecisionID,
		Rules:      res.RuleNames(),
	}
	if res.BlockingRule != nil {
		pr.BlockingRule = res.BlockingRule.RuleName
	}
	return pr, nil
}

// PreflightResult is the outcome of a preflight policy check.
type PreflightResult struct {
	// Allowed is true if the tool call would proceed.
	Allowed bool

	// Decision is "allow" or "block".
	Decision string

	// Reason is the human-readable reason for the decision.
	Reason string

	// BlockingRule names the rule that would block, if any.
	BlockingRule string

	// DecisionID identifies the evaluation in the decision log.
	DecisionID string

	// Rules lists the rules that ran, in order.
	Rules []string
}

func (s *SDK) buildToolCall(ctx context.Context, toolName string, args map[string]any) engine.ToolCall {
	if args == nil {
		args = make(map[string]any)
	}
	return engine.ToolCall{
		Name:      toolName,
		Args:      args,
		CallID:    uuid.NewString(),
		UserID:    stringValue(ctx, UserIDKey),
		RequestID: stringValue(ctx, RequestIDKey),
		Metadata:  metadataValue(ctx),
	}
}

func (s *SDK) blockedError(toolName, phase string, err error) error {
	var blocked *engine.BlockedError
	if !errors.As(err, &blocked) {
		return fmt.Errorf("sdk: evaluate %q: %w", toolName, err)
	}

	e := &ErrBlocked{
		Tool:       toolName,
		Reason:     blocked.Result.Reason(),
		DecisionID: blocked.Result.DecisionID,
		Phase:      phase,
	}
	if blocked.Result.BlockingRule != nil {
		e.Rule = blocked.Result.BlockingRule.RuleName
	}

	s.logger.Info("sdk: tool blocked",
		"tool", toolName,
		"phase", phase,
		"rule", e.Rule,
		"reason", e.Reason,
	)
	return e
}

// serializeResult renders a tool result for post-phase scanning.
// Strings pass through; everything else is JSON-encoded.
func serializeResult(result any) string {
	switch v := result.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}

func metadataValue(ctx context.Context) map[string]any {
	if ctx == nil {
		return nil
	}
	value, _ := ctx.Value(MetadataKey).(map[string]any)
	return value
}
