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

// Package server exposes the policy engine over HTTP: evaluation,
// policy inspection, health, Prometheus metrics, and a websocket
// stream of live decisions.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/terry-li-hm/frenum/internal/audit"
	"github.com/terry-li-hm/frenum/internal/build"
	"github.com/terry-li-hm/frenum/internal/engine"
)

// maxRequestBody is the maximum allowed request body size (1MB).
const maxRequestBody = 1 << 20

// Server serves policy evaluation over HTTP.
type Server struct {
	eng            atomic.Pointer[engine.Engine]
	sink           audit.Sink
	configPath     string
	token          string
	logger         *slog.Logger
	metricsEnabled bool
	hub            *Hub
	startedAt      time.Time

	mu     sync.Mutex
	server *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithAuditSink records every served evaluation to the decision log.
func WithAuditSink(sink audit.Sink) Option {
	return func(s *Server) {
		s.sink = sink
	}
}

// WithToken enables bearer-token auth on all /v1 endpoints. Empty
// token leaves the server open, for local use.
func WithToken(token string) Option {
	return func(s *Server) {
		s.token = strings.TrimSpace(token)
	}
}

// WithConfigPath sets the policy path reported by /v1/policy.
func WithConfigPath(path string) Option {
	return func(s *Server) {
		s.configPath = path
	}
}

// WithMetrics enables the /metrics Prometheus endpoint.
func WithMetrics(enabled bool) Option {
	return func(s *Server) {
		s.metricsEnabled = enabled
	}
}

// WithLogger sets the logger used by the server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates an evaluation server around eng.
func New(eng *engine.Engine, opts ...Option) *Server {
	s := &Server{
		logger:    slog.Default(),
		startedAt: time.Now().UTC(),
	}
	s.eng.Store(eng)
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.hub = NewHub(s.logger)
	return s
}

// Engine returns the engine currently serving evaluations.
func (s *Server) Engine() *engine.Engine {
	return s.eng.Load()
}

// SwapEngine replaces the serving engine. In-flight requests finish
// against the engine they started with; new requests see the
// replacement. Used for policy hot reload.
func (s *Server) SwapEngine(eng *engine.Engine) {
	if eng == nil {
		return
	}
	s.eng.Store(eng)
	s.logger.Info("server: policy swapped",
		"policy_version", eng.PolicyVersion(),
		"rules", len(eng.Rules()),
	)
}

// ListenAndServe starts serving HTTP requests at addr.
func (s *Server) ListenAndServe(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	return s.Serve(listener)
}

// Serve starts serving HTTP requests on an existing listener.
func (s *Server) Serve(listener net.Listener) error {
	srv := &http.Server{
		Addr:         listener.Addr().String(),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	s.logger.Info("server: listening",
		"addr", srv.Addr,
		"metrics", s.metricsEnabled,
		"rules", len(s.Engine().Rules()),
	)

	if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: serve: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server and closes stream clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Shutdown()

	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// Handler returns the server's HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/evaluate", s.handleEvaluate)
	mux.HandleFunc("GET /v1/policy", s.handlePolicy)
	mux.HandleFunc("GET /v1/stream", s.handleStream)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metricsEnabled {
		mux.Handle("GET /metrics", MetricsHandler())
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	return http.MaxBytesHandler(mux, maxRequestBody)
}

// evaluateRequest is the JSON body for POST /v1/evaluate.
type evaluateRequest struct {
	Name      string         `json:"name"`
	Args      map[string]any `json:"args"`
	CallID    string         `json:"call_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	// Phase is "pre" or "post"; defaults to pre.
	Phase string `json:"phase,omitempty"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if !s.checkAuth(w, r) {
		return
	}

	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Args == nil {
		req.Args = map[string]any{}
	}

	phase := engine.PhasePre
	switch req.Phase {
	case "", "pre":
	case "post":
		phase = engine.PhasePost
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid phase %q", req.Phase))
		return
	}

	call := engine.ToolCall{
		Name:      req.Name,
		Args:      req.Args,
		CallID:    req.CallID,
		UserID:    req.UserID,
		RequestID: req.RequestID,
		Metadata:  req.Metadata,
	}

	eng := s.Engine()
	start := time.Now()
	result, err := eng.Evaluate(call, phase)
	if err != nil {
		s.logger.Error("server: evaluation failed", "tool", req.Name, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if s.metricsEnabled {
		rule := ""
		if result.BlockingRule != nil {
			rule = result.BlockingRule.RuleName
		}
		RecordDecision(result.Decision.String(), rule, time.Since(start))
		SetRuleCount(len(eng.Rules()))
		SetUptime(time.Since(s.startedAt))
	}

	event := audit.FromEvalResult(result, eng.PolicyVersion())
	if s.sink != nil {
		if err := s.sink.Write(event); err != nil {
			s.logger.Error("server: audit write failed", "decision_id", result.DecisionID, "error", err)
		}
	}
	s.hub.Broadcast(event)

	writeJSON(w, http.StatusOK, map[string]any{
		"decision_id":     result.DecisionID,
		"decision":        result.Decision.String(),
		"reason":          result.Reason(),
		"blocking_rule":   blockingRuleName(result),
		"rules_evaluated": result.RuleNames(),
		"timestamp":       result.Timestamp.Format(time.RFC3339Nano),
	})
}

func blockingRuleName(result engine.EvalResult) string {
	if result.BlockingRule == nil {
		return ""
	}
	return result.BlockingRule.RuleName
}

// handlePolicy returns the loaded policy version and rule inventory.
func (s *Server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	if !s.checkAuth(w, r) {
		return
	}

	eng := s.Engine()
	rules := eng.Rules()
	inventory := make([]map[string]any, 0, len(rules))
	for _, rule := range rules {
		inventory = append(inventory, map[string]any{
			"name":       rule.Name,
			"type":       rule.Type,
			"kind":       string(rule.Kind),
			"phase":      string(rule.Phase),
			"applies_to": rule.AppliesTo,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"config_path":    s.configPath,
		"policy_version": eng.PolicyVersion(),
		"rule_count":     len(rules),
		"rules":          inventory,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
		"version":        build.Version,
	})
}

// checkAuth validates the bearer token when one is configured.
func (s *Server) checkAuth(w http.ResponseWriter, r *http.Request) bool {
	if s.token == "" {
		return true
	}

	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		writeError(w, http.StatusUnauthorized, "missing authorization header")
		return false
	}
	token := strings.TrimPrefix(auth, "Bearer ")
	if token == auth || subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) != 1 {
		writeError(w, http.StatusUnauthorized, "invalid authorization token")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
