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

// Package audit provides a tamper-evident decision log for policy
// evaluations.
//
// Every evaluation is recorded as an Event with a cryptographic hash
// chain: each event's hash covers the previous event's hash, so
// modifying any recorded decision breaks the chain for everything
// after it. The log is what compliance reviews replay — it must be
// possible to show, after the fact, exactly which rules ran and why
// a call was blocked.
package audit

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Event is one recorded policy evaluation, written to the decision
// log as a single JSONL line.
type Event struct {
	// ID is the evaluation's decision ID (a ULID).
	ID string `json:"id"`

	// Timestamp is when the evaluation completed (UTC).
	Timestamp time.Time `json:"timestamp"`

	// PolicyVersion is the version of the policy that produced this
	// decision.
	PolicyVersion string `json:"policy_version"`

	// Tool is the tool the agent invoked.
	Tool string `json:"tool"`

	// Args contains the tool call arguments as evaluated.
	Args map[string]any `json:"args"`

	// UserID identifies the end user, when the caller supplied one.
	UserID string `json:"user_id,omitempty"`

	// RequestID identifies the enclosing agent request.
	RequestID string `json:"request_id,omitempty"`

	// CallID is the caller-assigned tool call identifier.
	CallID string `json:"call_id,omitempty"`

	// Decision is the final verdict, "allow" or "block".
	Decision string `json:"decision"`

	// Reason is the human-readable explanation for the verdict.
	Reason string `json:"reason"`

	// RulesEvaluated lists every rule that ran, in order.
	RulesEvaluated []RuleOutcome `json:"rules_evaluated"`

	// BlockingRule is the rule that caused a block, or nil.
	BlockingRule *RuleOutcome `json:"blocking_rule,omitempty"`

	// PrevHash is the hash of the preceding event in the chain.
	// Empty string for the first event.
	PrevHash string `json:"prev_hash"`

	// Hash is the SHA-256 hash of this event (excluding the hash
	// field itself). Set by ComputeHash.
	Hash string `json:"hash"`
}

// RuleOutcome is one rule's verdict within a recorded evaluation.
// MatchedValue is redacted before the event reaches a sink.
type RuleOutcome struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Decision     string `json:"decision"`
	Reason       string `json:"reason,omitempty"`
	MatchedValue string `json:"matched_value,omitempty"`
}

// ComputeHash calculates the SHA-256 hash for this event.
//
// The hash covers every field except Hash itself, with PrevHash
// prepended to the serialized payload:
//
//	hash(event_N) = SHA-256(prev_hash + json(event_N without hash))
func (e *Event) ComputeHash() error {
	e.Hash = ""

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: marshal event for hashing: %w", err)
	}

	payload := append([]byte(e.PrevHash), data...)
	h := sha256.Sum256(payload)
	e.Hash = "sha256:" + hex.EncodeToString(h[:])
	return nil
}

// VerifyHash reports whether the event's stored hash matches the
// recomputed value.
func (e *Event) VerifyHash() (bool, error) {
	expected := e.Hash

	if err := e.ComputeHash(); err != nil {
		return false, err
	}
	computed := e.Hash
	e.Hash = expected

	return subtle.ConstantTimeCompare([]byte(computed), []byte(expected)) == 1, nil
}

// ChainAnchor records the hash chain state at a checkpoint. Written
// to a separate file every N events so truncation of the log itself
// is detectable.
type ChainAnchor struct {
	// EventID is the decision ID of the event at this checkpoint.
	EventID string `json:"event_id"`

	// Hash is the chain head hash at this checkpoint.
	Hash string `json:"hash"`

	// EventCount is the total number of events written so far.
	EventCount int64 `json:"event_count"`

	// Timestamp is when this anchor was written.
	Timestamp time.Time `json:"timestamp"`

	// File is the log file this anchor references.
	File string `json:"file"`
}

// VerifyChain walks a slice of events in order and returns the index
// of the first event whose hash does not verify or whose PrevHash
// does not match its predecessor, or -1 if the chain is intact.
func VerifyChain(events []Event) (int, error) {
	prev := ""
	for i := range events {
		if events[i].PrevHash != prev {
			return i, nil
		}
		ok, err := events[i].VerifyHash()
		if err != nil {
			return i, err
		}
		if !ok {
			return i, nil
		}
		prev = events[i].Hash
	}
	return -1, nil
}
