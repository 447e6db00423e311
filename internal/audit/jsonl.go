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
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const anchorFilename = "decision-anchor.json"

// JSONLSink is an append-only JSONL decision log with hash chaining.
// Files are named by UTC date and rotate on day change or when they
// exceed the configured size.
type JSONLSink struct {
	mu sync.Mutex

	dir            string
	file           *os.File
	currentFile    string
	currentSize    int64
	lastHash       string
	eventCount     int64
	fsync          bool
	rotateSize     int64
	anchorInterval int
	closed         bool
	logger         *slog.Logger
}

// NewJSONLSink opens (or creates) a JSONL decision log in dir. On
// startup it recovers the chain head from the anchor file when the
// anchor agrees with the log's actual last line; a disagreeing anchor
// is treated as untrusted and logged.
func NewJSONLSink(dir string, opts ...SinkOption) (*JSONLSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("audit: sink dir is empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("audit: create sink dir: %w", err)
	}

	sink := &JSONLSink{
		dir:            dir,
		fsync:          true,
		rotateSize:     defaultRotateSize,
		anchorInterval: defaultAnchorInterval,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(sink)
		}
	}
	sink.recoverState()

	if err := sink.openFileLocked(sink.dailyFilename()); err != nil {
		return nil, err
	}
	return sink, nil
}

// recoverState restores lastHash and eventCount from the anchor file,
// falling back to counting log lines when the anchor is missing or
// does not match the log.
func (s *JSONLSink) recoverState() {
	anchorPath := filepath.Join(s.dir, anchorFilename)
	data, err := os.ReadFile(anchorPath)
	if err == nil {
		var anchor ChainAnchor
		if json.Unmarshal(data, &anchor) == nil && anchor.File != "" {
			lastHash, ok := lastLineHash(filepath.Join(s.dir, anchor.File))
			if ok && lastHash == anchor.Hash {
				s.lastHash = anchor.Hash
				s.eventCount = anchor.EventCount
				s.logger.Info("audit: recovered chain state from anchor",
					"event_count", anchor.EventCount,
					"hash", anchor.Hash,
				)
				return
			}
			s.logger.Warn("audit: anchor does not match log tail, falling back to line count",
				"anchor_hash", anchor.Hash,
				"file", anchor.File,
			)
		}
	}

	s.eventCount = countLogLines(s.dir)
	if s.eventCount > 0 {
		s.logger.Info("audit: recovered event count from log files", "event_count", s.eventCount)
	}
}

// Write appends one decision event to the log, linking it into the
// hash chain. The event's ID and Timestamp are filled in if empty.
func (s *JSONLSink) Write(event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("audit: write on closed sink")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	event.PrevHash = s.lastHash
	if err := event.ComputeHash(); err != nil {
		return err
	}

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: marshal event: %w", err)
	}
	line = append(line, '\n')

	if s.needRotateLocked(len(line)) {
		if err := s.rotateLocked(); err != nil {
			return err
		}
	}

	if _, err := s.file.Write(line); err != nil {
		return fmt.Errorf("audit: write event: %w", err)
	}
	s.currentSize += int64(len(line))

	if s.fsync {
		if err := s.file.Sync(); err != nil {
			return fmt.Errorf("audit: fsync event: %w", err)
		}
	}

	s.lastHash = event.Hash
	s.eventCount++
	if s.anchorInterval > 0 && s.eventCount%int64(s.anchorInterval) == 0 {
		if err := s.writeAnchorLocked(event); err != nil {
			return err
		}
	}

	s.logger.Debug("audit: wrote decision",
		"decision_id", event.ID,
		"decision", event.Decision,
		"event_count", s.eventCount,
	)
	return nil
}

// Flush flushes pending data to disk.
func (s *JSONLSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.file == nil {
		return nil
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("audit: flush sink: %w", err)
	}
	return nil
}

// Close flushes and closes the sink. Subsequent writes fail.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.file == nil {
		return nil
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("audit: close sync: %w", err)
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("audit: close sink file: %w", err)
	}
	s.file = nil
	return nil
}

// FilePath returns the path of the log file currently being written.
func (s *JSONLSink) FilePath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filepath.Join(s.dir, s.currentFile)
}

func (s *JSONLSink) needRotateLocked(incoming int) bool {
	if !strings.HasPrefix(s.currentFile, utcDay()) {
		return true
	}
	return s.rotateSize > 0 && s.currentSize+int64(incoming) > s.rotateSize
}

func (s *JSONLSink) rotateLocked() error {
	prevFile := s.currentFile
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			return fmt.Errorf("audit: close rotated file: %w", err)
		}
		s.file = nil
	}

	// Day change gets the new day's base name; size rotation within
	// the same day gets a sequence number.
	name := s.dailyFilename()
	if strings.HasPrefix(prevFile, utcDay()) {
		name = s.sequencedFilename()
	}

	if err := s.openFileLocked(name); err != nil {
		return err
	}
	if err := s.writeChainContinuationLocked(prevFile); err != nil {
		return err
	}

	s.logger.Info("audit: rotated decision log",
		"file", s.currentFile,
		"prev_file", prevFile,
	)
	return nil
}

func (s *JSONLSink) openFileLocked(name string) error {
	path := filepath.Join(s.dir, name)
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("audit: open log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("audit: stat log file: %w", err)
	}

	s.file = file
	s.currentFile = name
	s.currentSize = info.Size()
	return nil
}

// writeChainContinuationLocked writes a header line into a freshly
// rotated file so the chain can be followed across files.
func (s *JSONLSink) writeChainContinuationLocked(prevFile string) error {
	header := map[string]any{
		"chain_continue": s.lastHash,
		"prev_file":      prevFile,
	}
	line, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("audit: marshal chain continuation: %w", err)
	}
	line = append(line, '\n')

	if _, err := s.file.Write(line); err != nil {
		return fmt.Errorf("audit: write chain continuation: %w", err)
	}
	s.currentSize += int64(len(line))

	if !s.fsync {
		return nil
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("audit: fsync chain continuation: %w", err)
	}
	return nil
}

func (s *JSONLSink) writeAnchorLocked(event Event) error {
	anchor := ChainAnchor{
		EventID:    event.ID,
		Hash:       event.Hash,
		EventCount: s.eventCount,
		Timestamp:  time.Now().UTC(),
		File:       s.currentFile,
	}
	data, err := json.Marshal(anchor)
	if err != nil {
		return fmt.Errorf("audit: marshal anchor: %w", err)
	}

	// Write-then-rename so a crash never leaves a torn anchor.
	path := filepath.Join(s.dir, anchorFilename)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("audit: write anchor: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("audit: rename anchor: %w", err)
	}
	return nil
}

func utcDay() string {
	return time.Now().UTC().Format("2006-01-02")
}

func (s *JSONLSink) dailyFilename() string {
	return utcDay() + ".jsonl"
}

func (s *JSONLSink) sequencedFilename() string {
	day := utcDay()
	for seq := 1; ; seq++ {
		name := fmt.Sprintf("%s.p%d.jsonl", day, seq)
		if _, err := os.Stat(filepath.Join(s.dir, name)); os.IsNotExist(err) {
			return name
		}
	}
}

// lastLineHash reads the last non-empty line of a JSONL file and
// extracts its "hash" field.
func lastLineHash(path string) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	var lastLine string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			lastLine = line
		}
	}
	if lastLine == "" {
		return "", false
	}

	var partial struct {
		Hash string `json:"hash"`
	}
	if err := json.Unmarshal([]byte(lastLine), &partial); err != nil {
		return "", false
	}
	return partial.Hash, partial.Hash != ""
}

// countLogLines counts non-empty lines across all .jsonl files in dir.
func countLogLines(dir string) int64 {
	var count int64
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		f, err := os.Open(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			if len(scanner.Bytes()) > 0 {
				count++
			}
		}
		_ = f.Close()
	}
	return count
}
