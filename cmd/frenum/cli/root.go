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
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

// Execute runs the frenum CLI command tree.
func Execute() error {
	cmd := NewRootCmd(context.Background(), os.Stdout, os.Stderr)
	if err := cmd.Execute(); err != nil {
		var ec interface{ ExitCode() int }
		if !errors.As(err, &ec) {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
		return err
	}
	return nil
}

// ExitCode returns the process exit code implied by err.
// Non-nil errors default to exit code 1 unless they expose ExitCode().
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var ec interface{ ExitCode() int }
	if errors.As(err, &ec) {
		code := ec.ExitCode()
		if code > 0 {
			return code
		}
	}

	return 1
}

// exitCodeError carries an exit code through cobra's RunE chain
// without printing anything itself.
type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func (e exitCodeError) ExitCode() int {
	if e.code < 1 {
		return 1
	}
	return e.code
}

// NewRootCmd builds the frenum root command.
func NewRootCmd(ctx context.Context, outWriter, errWriter io.Writer) *cobra.Command {
	opts := &rootOptions{}
	var showVersion bool
	if ctx == nil {
		ctx = context.Background()
	}

	cmd := &cobra.Command{
		Use:           "frenum",
		Short:         "Deterministic policy checks for LLM agent tool calls",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if showVersion {
				return writeVersion(cmd.OutOrStdout())
			}
			return cmd.Help()
		},
	}
	cmd.SetContext(ctx)
	cmd.SetOut(outWriter)
	cmd.SetErr(errWriter)

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "policy.yaml", "Path to policy config file")
	cmd.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVar(&showVersion, "version", false, "Print version information and exit")

	const (
		groupSetup   = "setup"
		groupPolicy  = "policy"
		groupRuntime = "runtime"
	)
	cmd.AddGroup(
		&cobra.Group{ID: groupSetup, Title: "Setup"},
		&cobra.Group{ID: groupPolicy, Title: "Policy"},
		&cobra.Group{ID: groupRuntime, Title: "Runtime"},
	)

	versionCmd := newVersionCmd()
	initCmd := newInitCmd(opts)
	testCmd := newTestCmd(opts)
	lintCmd := newLintCmd(opts)
	evalCmd := newEvalCmd(opts)
	serveCmd := newServeCmd(opts)
	watchCmd := newWatchCmd(opts)

	initCmd.GroupID = groupSetup

	testCmd.GroupID = groupPolicy
	lintCmd.GroupID = groupPolicy
	evalCmd.GroupID = groupPolicy

	serveCmd.GroupID = groupRuntime
	watchCmd.GroupID = groupRuntime

	cmd.AddCommand(versionCmd)
	cmd.AddCommand(initCmd)
	cmd.AddCommand(testCmd)
	cmd.AddCommand(lintCmd)
	cmd.AddCommand(evalCmd)
	cmd.AddCommand(serveCmd)
	cmd.AddCommand(watchCmd)

	return cmd
}

// newLogger builds the slog logger commands hand to the engine and
// its surroundings. Quiet by default so command output stays clean.
func newLogger(opts *rootOptions, w io.Writer) *slog.Logger {
	if !opts.verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
