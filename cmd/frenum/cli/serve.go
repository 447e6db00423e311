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

package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/terry-li-hm/frenum/internal/audit"
	"github.com/terry-li-hm/frenum/internal/engine"
	"github.com/terry-li-hm/frenum/internal/server"
	"github.com/terry-li-hm/frenum/internal/watch"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		listenAddr string
		auditDir   string
		metrics    bool
		token      string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve policy evaluation over HTTP with hot reload",
		Long: `Start the evaluation server. Agent runtimes POST tool calls to
/v1/evaluate and receive allow/block decisions; /v1/stream pushes
live decisions over a websocket.

The policy file is watched for changes. A valid replacement is
swapped in without restarting; an invalid one is rejected and the
running policy stays active.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger(opts, cmd.ErrOrStderr())

			cfg, err := engine.NewFileStore(opts.configPath).Load()
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			eng := engine.New(cfg, engine.WithLogger(logger))

			srvOpts := []server.Option{
				server.WithLogger(logger),
				server.WithConfigPath(opts.configPath),
				server.WithMetrics(metrics),
				server.WithToken(token),
			}

			var sink *audit.JSONLSink
			if auditDir != "" {
				sink, err = audit.NewJSONLSink(auditDir, audit.WithLogger(logger))
				if err != nil {
					return fmt.Errorf("serve: %w", err)
				}
				srvOpts = append(srvOpts, server.WithAuditSink(sink))
			}

			srv := server.New(eng, srvOpts...)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			watcher := watch.New(opts.configPath,
				func(cfg *engine.Config, _ []engine.LintFinding) {
					srv.SwapEngine(engine.New(cfg, engine.WithLogger(logger)))
				},
				watch.WithLogger(logger),
			)
			go func() {
				if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("serve: policy watcher stopped", "error", err)
				}
			}()

			serveErr := make(chan error, 1)
			go func() {
				serveErr <- srv.ListenAndServe(listenAddr)
			}()

			fmt.Fprintf(cmd.ErrOrStderr(), "serve: listening on %s (%d rules, policy %s)\n",
				listenAddr, len(eng.Rules()), eng.PolicyVersion())

			select {
			case <-ctx.Done():
				logger.Info("serve: shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Error("serve: shutdown failed", "error", err)
				}
				if sink != nil {
					if err := sink.Close(); err != nil {
						logger.Error("serve: close audit sink failed", "error", err)
					}
				}
				return nil
			case err := <-serveErr:
				if sink != nil {
					_ = sink.Close()
				}
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("serve: %w", err)
				}
				return nil
			}
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:8711", "Address to listen on")
	cmd.Flags().StringVar(&auditDir, "audit-dir", "", "Directory for the hash-chained decision log (empty disables)")
	cmd.Flags().BoolVar(&metrics, "metrics", false, "Expose Prometheus metrics on /metrics")
	cmd.Flags().StringVar(&token, "token", "", "Bearer token required on /v1 endpoints (empty leaves the server open)")

	return cmd
}
