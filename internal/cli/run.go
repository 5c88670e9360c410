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

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/tombee/regress/internal/batch"
	"github.com/tombee/regress/internal/config"
	"github.com/tombee/regress/internal/executor"
	"github.com/tombee/regress/internal/log"
	"github.com/tombee/regress/internal/metrics"
	"github.com/tombee/regress/internal/report"
	"github.com/tombee/regress/pkg/engine"
	"github.com/tombee/regress/pkg/workflow"
)

type runFlags struct {
	configPath   string
	engineURL    string
	workflowsDir string
	ids          string
	skip         string
	filter       string
	concurrency  int
	retries      int
	timeout      time.Duration
	snapshotDir  string
	compareDir   string
	shallow      bool
	githubCI     bool
	output       string
	short        bool
	debug        bool
	metricsAddr  string
}

func newRunCommand() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a batch of workflows and compare their output against snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(cmd, &flags)
			if err != nil {
				return err
			}
			return runBatch(cmd, cfg)
		},
	}

	// Accept underscore spellings (engine_url) for parity with the
	// config file keys.
	cmd.Flags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	cmd.Flags().StringVar(&flags.configPath, "config", "", "Path to config file")
	cmd.Flags().StringVar(&flags.engineURL, "engine-url", "", "Base URL of the workflow execution engine")
	cmd.Flags().StringVar(&flags.workflowsDir, "workflows", "", "Directory holding workflow definitions (one JSON file each)")
	cmd.Flags().StringVar(&flags.ids, "ids", "", "Comma-separated workflow ids to run (default: all)")
	cmd.Flags().StringVar(&flags.skip, "skip", "", "Comma-separated workflow ids to skip")
	cmd.Flags().StringVar(&flags.filter, "filter", "", "Expression selecting workflows, e.g. 'len(nodes) > 2'")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "Number of concurrent workers")
	cmd.Flags().IntVar(&flags.retries, "retries", 0, "Retry budget for warned/failed workflows")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "Per-workflow execution timeout")
	cmd.Flags().StringVar(&flags.snapshotDir, "snapshot", "", "Directory to write normalized execution snapshots")
	cmd.Flags().StringVar(&flags.compareDir, "compare", "", "Directory of baseline snapshots to compare against")
	cmd.Flags().BoolVar(&flags.shallow, "shallow", false, "Compare output shape only, ignoring nested values")
	cmd.Flags().BoolVar(&flags.githubCI, "github-ci", false, "Emit a short CI summary message")
	cmd.Flags().StringVar(&flags.output, "output", "", "Report file path (default: stdout)")
	cmd.Flags().BoolVar(&flags.short, "short", false, "Omit successful execution detail from the report")
	cmd.Flags().BoolVar(&flags.debug, "debug", false, "Enable debug logging and the progress display")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run")

	return cmd
}

// buildConfig layers flag overrides on top of the loaded configuration.
// Only flags the user actually set override file/env values.
func buildConfig(cmd *cobra.Command, flags *runFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}

	set := cmd.Flags().Changed
	if set("engine-url") {
		cfg.EngineURL = flags.engineURL
	}
	if set("workflows") {
		cfg.WorkflowsDir = flags.workflowsDir
	}
	if set("ids") {
		cfg.IDs = config.ParseIDList(flags.ids)
	}
	if set("skip") {
		cfg.Skip = config.ParseIDList(flags.skip)
	}
	if set("filter") {
		cfg.Filter = flags.filter
	}
	if set("concurrency") {
		cfg.Concurrency = flags.concurrency
	}
	if set("retries") {
		cfg.Retries = flags.retries
	}
	if set("timeout") {
		cfg.Timeout = flags.timeout
	}
	if set("snapshot") {
		cfg.SnapshotDir = flags.snapshotDir
	}
	if set("compare") {
		cfg.CompareDir = flags.compareDir
	}
	if set("shallow") {
		cfg.Shallow = flags.shallow
	}
	if set("github-ci") {
		cfg.CISummary = flags.githubCI
	}
	if set("output") {
		cfg.Output = flags.output
	}
	if set("short") {
		cfg.ShortOutput = flags.short
	}
	if set("debug") {
		cfg.Debug = flags.debug
	}
	if set("metrics-addr") {
		cfg.MetricsAddr = flags.metricsAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	logCfg := log.FromEnv()
	if cfg.Debug {
		logCfg.Level = "debug"
	}
	return log.New(logCfg)
}

// runBatch executes the full pipeline: list workflows, run the pool
// with retries, and report.
func runBatch(cmd *cobra.Command, cfg *config.Config) error {
	logger := newLogger(cfg)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// First signal cancels the run gracefully: workers stop at their
	// next queue pop. A second signal terminates immediately.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Warn("received signal, cancelling batch", slog.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
			return
		}
		<-sigCh
		os.Exit(130)
	}()

	store := workflow.NewFileStore(cfg.WorkflowsDir)
	wfs, err := store.List(ctx, workflow.Query{
		IncludeIDs: cfg.IDs,
		ExcludeIDs: cfg.Skip,
		Filter:     cfg.Filter,
	})
	if err != nil {
		return fmt.Errorf("list workflows: %w", err)
	}
	if len(wfs) == 0 {
		return fmt.Errorf("no workflows matched in %s", cfg.WorkflowsDir)
	}

	var recorder *metrics.Recorder
	if cfg.MetricsAddr != "" {
		recorder = metrics.NewRecorder()
		go func() {
			if err := recorder.Serve(ctx, cfg.MetricsAddr); err != nil {
				logger.Error("metrics listener failed", log.Error(err))
			}
		}()
	}

	eng := engine.NewClient(cfg.EngineURL, engine.WithLogger(logger))
	exec := executor.New(eng, executor.Config{
		Timeout:     cfg.Timeout,
		CompareDir:  cfg.CompareDir,
		SnapshotDir: cfg.SnapshotDir,
		Shallow:     cfg.Shallow,
		CIMode:      cfg.CISummary,
	}, logger)

	schedOpts := []batch.SchedulerOption{batch.WithLogger(logger)}
	if recorder != nil {
		schedOpts = append(schedOpts, batch.WithMetrics(recorder))
	}
	if cfg.Debug && term.IsTerminal(int(os.Stderr.Fd())) {
		schedOpts = append(schedOpts, batch.WithProgress(batch.NewProgressTracker(cfg.Concurrency, os.Stderr)))
	}

	sched := batch.NewScheduler(exec, cfg.Concurrency, schedOpts...)
	runnerOpts := []batch.RunnerOption{batch.WithRunnerLogger(logger)}
	if recorder != nil {
		runnerOpts = append(runnerOpts, batch.WithRunnerMetrics(recorder))
	}
	runner := batch.NewRunner(sched, cfg.Retries, runnerOpts...)

	result, err := runner.Run(ctx, wfs)
	if err != nil {
		return err
	}

	if cfg.CISummary {
		result.Message = report.CIMessage(result)
		fmt.Fprintln(cmd.OutOrStdout(), result.Message)
	}

	if cfg.Output != "" {
		if err := report.Write(cfg.Output, result, cfg.ShortOutput); err != nil {
			return err
		}
		report.Summary(cmd.ErrOrStderr(), result)
	} else {
		data, err := report.Marshal(result, cfg.ShortOutput)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	}

	if result.Summary.Failed > 0 {
		return ErrFailedExecutions
	}
	return nil
}
