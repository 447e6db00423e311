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

// Package watch reloads policy configuration when the file changes
// on disk. Replacement configs are parsed and linted before being
// accepted; an invalid replacement is rejected and the previously
// loaded config stays active.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/terry-li-hm/frenum/internal/engine"
)

const defaultDebounce = 200 * time.Millisecond

// ReloadFunc receives each accepted config, with any lint warnings
// it carried.
type ReloadFunc func(cfg *engine.Config, warnings []engine.LintFinding)

// Watcher watches one policy file and delivers validated reloads.
type Watcher struct {
	path       string
	debounce   time.Duration
	newWatcher func() (*fsnotify.Watcher, error)
	logger     *slog.Logger
	onReload   ReloadFunc
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long the watcher waits after the last write
// before reloading. Editors often produce bursts of events per save.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger used by the watcher.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// New creates a watcher for the policy file at path. onReload is
// called for every accepted replacement config.
func New(path string, onReload ReloadFunc, opts ...Option) *Watcher {
	w := &Watcher{
		path:       filepath.Clean(path),
		debounce:   defaultDebounce,
		newWatcher: fsnotify.NewWatcher,
		logger:     slog.Default(),
		onReload:   onReload,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Run watches until ctx is cancelled. The parent directory is
// watched rather than the file itself so atomic-rename saves are
// seen as creates.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := w.newWatcher()
	if err != nil {
		return fmt.Errorf("watch: create file watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch: watch directory %s: %w", dir, err)
	}

	w.logger.Info("watch: watching policy file", "path", w.path)

	return w.loop(ctx, watcher.Events, watcher.Errors)
}

// loop drains watcher channels until ctx is cancelled. A closed
// error channel is parked (nil receive blocks forever) so events
// keep flowing.
func (w *Watcher) loop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error) error {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt, ok := <-events:
			if !ok {
				return nil
			}
			if filepath.Clean(evt.Name) != w.path {
				continue
			}
			if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) && !evt.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Error("watch: watcher error", "error", err)
		}
	}
}

// reload loads and validates the replacement config, delivering it
// only when it parses and lints clean of errors.
func (w *Watcher) reload() {
	cfg, err := engine.NewFileStore(w.path).Load()
	if err != nil {
		w.logger.Error("watch: reload rejected, keeping previous policy", "error", err)
		return
	}

	findings := engine.Lint(cfg.Rules)
	errors, warnings := engine.CountFindings(findings)
	if errors > 0 {
		for _, f := range findings {
			if f.Severity == engine.LintError {
				w.logger.Error("watch: policy lint error", "rule", f.RuleName, "code", f.Code, "message", f.Message)
			}
		}
		w.logger.Error("watch: reload rejected, keeping previous policy", "lint_errors", errors)
		return
	}

	var warnFindings []engine.LintFinding
	for _, f := range findings {
		if f.Severity == engine.LintWarning {
			warnFindings = append(warnFindings, f)
		}
	}

	w.logger.Info("watch: policy reloaded",
		"path", w.path,
		"policy_version", cfg.PolicyVersion,
		"rules", len(cfg.Rules),
		"lint_warnings", warnings,
	)
	if w.onReload != nil {
		w.onReload(cfg, warnFindings)
	}
}
