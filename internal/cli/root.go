// Copyright 2025 Tom Barlow
//
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

// Package cli wires the regress command line: workflow selection,
// engine connection, batch scheduling, retries, and reporting.
package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// ErrFailedExecutions signals that the batch completed but at least one
// workflow failed. The process must exit non-zero without printing a
// stack of wrapped errors.
var ErrFailedExecutions = errors.New("one or more workflows failed")

// SetVersion sets the version information (called from main).
func SetVersion(v, c, b string) {
	version, commit, buildDate = v, c, b
}

// NewRootCommand creates the root Cobra command for regress.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regress",
		Short: "regress - batch regression testing for workflow executions",
		Long: `regress runs a set of workflow definitions against an execution
engine, normalizes each workflow's output, compares it against stored
snapshots, and reports regressions.

Run 'regress run' to execute a batch.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
	}

	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "regress %s (commit %s, built %s)\n", version, commit, buildDate)
		},
	}
}
