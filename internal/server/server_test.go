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

package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terry-li-hm/frenum/internal/audit"
	"github.com/terry-li-hm/frenum/internal/engine"
)

const serverPolicy = `
policy_version: "3.0.0"
rules:
  - name: sql_guard
    type: regex_block
    applies_to: ["execute_sql"]
    params:
      fields: ["query"]
      patterns: ['(?i)DROP\s+TABLE']
  - name: pii_guard
    type: pii_detect
    applies_to: ["*"]
    params:
      detectors: ["email"]
      action: block
`

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()

	cfg, err := engine.ParseConfig([]byte(serverPolicy))
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(cfg, engine.WithLogger(logger))
	opts = append(opts, WithLogger(logger))
	return New(eng, opts...)
}

func postEvaluate(t *testing.T, ts *httptest.Server, body map[string]any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/evaluate", bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestHandleEvaluate_Block(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	resp, body := postEvaluate(t, ts, map[string]any{
		"name": "execute_sql",
		"args": map[string]any{"query": "DROP TABLE users"},
	}, nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "block", body["decision"])
	assert.Equal(t, "sql_guard", body["blocking_rule"])
	assert.NotEmpty(t, body["decision_id"])
	assert.Contains(t, body["reason"], "Pattern matched")
}

func TestHandleEvaluate_Allow(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	resp, body := postEvaluate(t, ts, map[string]any{
		"name": "execute_sql",
		"args": map[string]any{"query": "SELECT 1"},
	}, nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "allow", body["decision"])
	assert.Equal(t, "All rules passed", body["reason"])
	rules, ok := body["rules_evaluated"].([]any)
	require.True(t, ok)
	assert.Len(t, rules, 2)
}

func TestHandleEvaluate_BadRequests(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing name", map[string]any{"args": map[string]any{}}},
		{"bad phase", map[string]any{"name": "x", "phase": "during"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := postEvaluate(t, ts, tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestHandleEvaluate_WritesAudit(t *testing.T) {
	dir := t.TempDir()
	sink, err := audit.NewJSONLSink(dir,
		audit.WithFsync(false),
		audit.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })

	s := newTestServer(t, WithAuditSink(sink))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	_, body := postEvaluate(t, ts, map[string]any{
		"name":    "send_message",
		"args":    map[string]any{"body": "reach me at alice@example.com"},
		"user_id": "alice",
	}, nil)
	assert.Equal(t, "block", body["decision"])
	require.NoError(t, sink.Flush())

	// The recorded event carries redacted evidence, never the raw match.
	events, _, err := audit.ReadEventsFromOffset(sink.FilePath(), 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "block", events[0].Decision)
	assert.Equal(t, "3.0.0", events[0].PolicyVersion)
	require.NotNil(t, events[0].BlockingRule)
	assert.Equal(t, "alice@exam***", events[0].BlockingRule.MatchedValue)
}

func TestHandlePolicy(t *testing.T) {
	s := newTestServer(t, WithConfigPath("policy.yaml"))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	resp, err := ts.Client().Get(ts.URL + "/v1/policy")
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "policy.yaml", body["config_path"])
	assert.Equal(t, "3.0.0", body["policy_version"])
	assert.EqualValues(t, 2, body["rule_count"])

	rules, ok := body["rules"].([]any)
	require.True(t, ok)
	require.Len(t, rules, 2)
	first := rules[0].(map[string]any)
	assert.Equal(t, "sql_guard", first["name"])
	assert.Equal(t, "regex_block", first["type"])
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	resp, err := ts.Client().Get(ts.URL + "/healthz")
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestAuth(t *testing.T) {
	s := newTestServer(t, WithToken("secret-token"))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	resp, body := postEvaluate(t, ts, map[string]any{"name": "search"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, body["error"])

	resp, _ = postEvaluate(t, ts, map[string]any{"name": "search"},
		map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = postEvaluate(t, ts, map[string]any{"name": "search"},
		map[string]string{"Authorization": "Bearer secret-token"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "allow", body["decision"])
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, WithMetrics(true))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	_, body := postEvaluate(t, ts, map[string]any{
		"name": "execute_sql",
		"args": map[string]any{"query": "DROP TABLE users"},
	}, nil)
	assert.Equal(t, "block", body["decision"])

	resp, err := ts.Client().Get(ts.URL + "/metrics")
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "frenum_decisions_total")
	assert.Contains(t, out, "frenum_eval_duration_seconds")
	assert.Contains(t, out, "frenum_rule_count")
}

func TestMetricsDisabledByDefault(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	resp, err := ts.Client().Get(ts.URL + "/metrics")
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStream_ReceivesDecisions(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	// The hub registers the client synchronously during the upgrade
	// handler, but give the pumps a moment on slow machines.
	require.Eventually(t, func() bool { return s.hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	_, body := postEvaluate(t, ts, map[string]any{
		"name": "execute_sql",
		"args": map[string]any{"query": "DROP TABLE users"},
	}, nil)
	assert.Equal(t, "block", body["decision"])

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event audit.Event
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "block", event.Decision)
	assert.Equal(t, "execute_sql", event.Tool)
	assert.NotEmpty(t, event.ID)
}

func TestHubShutdown_DropsClients(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Equal(t, 0, hub.ClientCount())

	hub.Shutdown()
	// Broadcast after shutdown is a no-op, not a panic.
	hub.Broadcast(audit.Event{ID: "x"})
}

func TestSwapEngine_ServesReplacementPolicy(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	_, body := postEvaluate(t, ts, map[string]any{
		"name": "execute_sql",
		"args": map[string]any{"query": "DROP TABLE users"},
	}, nil)
	assert.Equal(t, "block", body["decision"])

	// Swap in a policy without the SQL rule; the same call passes.
	replacement := `
policy_version: "4.0.0"
rules:
  - name: pii_guard
    type: pii_detect
    applies_to: ["*"]
    params:
      detectors: ["email"]
      action: block
`
	cfg, err := engine.ParseConfig([]byte(replacement))
	require.NoError(t, err)
	s.SwapEngine(engine.New(cfg, engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))))

	_, body = postEvaluate(t, ts, map[string]any{
		"name": "execute_sql",
		"args": map[string]any{"query": "DROP TABLE users"},
	}, nil)
	assert.Equal(t, "allow", body["decision"])
	assert.Equal(t, "4.0.0", s.Engine().PolicyVersion())

	// A nil swap is ignored.
	s.SwapEngine(nil)
	assert.Equal(t, "4.0.0", s.Engine().PolicyVersion())
}
