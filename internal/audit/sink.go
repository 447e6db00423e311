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

import "log/slog"

// Sink writes tamper-evident decision events to a persistent store.
type Sink interface {
	Write(event Event) error
	Flush() error
	Close() error
}

// JSONL sink defaults. Fsync is on out of the box: a decision record
// that never reached disk cannot be replayed in a dispute.
const (
	defaultRotateSize     = int64(100) << 20
	defaultAnchorInterval = 100
)

// SinkOption configures a JSONLSink.
type SinkOption func(*JSONLSink)

// WithFsync controls whether each write syncs to disk before
// returning.
func WithFsync(enabled bool) SinkOption {
	return func(s *JSONLSink) {
		s.fsync = enabled
	}
}

// WithRotateSize caps the size of one log file in bytes.
func WithRotateSize(size int64) SinkOption {
	return func(s *JSONLSink) {
		if size > 0 {
			s.rotateSize = size
		}
	}
}

// WithAnchorInterval sets how many events pass between chain anchor
// checkpoints.
func WithAnchorInterval(events int) SinkOption {
	return func(s *JSONLSink) {
		if events > 0 {
			s.anchorInterval = events
		}
	}
}

// WithLogger sets the logger used by the sink.
func WithLogger(logger *slog.Logger) SinkOption {
	return func(s *JSONLSink) {
		if logger != nil {
			s.logger = logger
		}
	}
}
