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

// Package batch orchestrates batch regression runs: a fixed worker pool
// drains a shared workflow queue, outcomes are folded into an aggregate
// result on a single goroutine, and a retry engine re-runs failed or
// warned workflows and merges net-new successes back in.
package batch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tombee/regress/internal/executor"
	"github.com/tombee/regress/internal/log"
	"github.com/tombee/regress/internal/metrics"
	"github.com/tombee/regress/pkg/workflow"
)

// WorkflowExecutor executes a single workflow and classifies it.
type WorkflowExecutor interface {
	Execute(ctx context.Context, wf workflow.Descriptor) executor.Outcome
}

// Scheduler runs one pool pass over a workflow list.
type Scheduler struct {
	exec     WorkflowExecutor
	workers  int
	logger   *slog.Logger
	progress *ProgressTracker
	recorder *metrics.Recorder
}

// SchedulerOption customizes a Scheduler.
type SchedulerOption func(*Scheduler)

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = logger }
}

// WithProgress attaches a per-worker progress display.
func WithProgress(p *ProgressTracker) SchedulerOption {
	return func(s *Scheduler) { s.progress = p }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(r *metrics.Recorder) SchedulerOption {
	return func(s *Scheduler) { s.recorder = r }
}

// NewScheduler creates a Scheduler with the given concurrency
// (minimum 1, which is also the default).
func NewScheduler(exec WorkflowExecutor, workers int, opts ...SchedulerOption) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	s := &Scheduler{
		exec:    exec,
		workers: workers,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = log.WithComponent(s.logger, "scheduler")
	return s
}

// Run drains the workflow list through the worker pool and aggregates
// outcomes. Cancellation stops workers at their next queue pop; already
// claimed workflows finish and their outcomes are kept, unclaimed ones
// are simply absent from the result. An unknown outcome status is an
// internal consistency violation: the pass is aborted and the error
// returned.
func (s *Scheduler) Run(ctx context.Context, wfs []workflow.Descriptor) (*Result, error) {
	result := newResult(len(wfs))
	logger := log.WithBatch(s.logger, result.BatchID)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	q := newQueue(wfs)
	outcomes := make(chan executor.Outcome)

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go s.worker(runCtx, i, q, outcomes, &wg, logger)
	}
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	// Outcome folding stays on this goroutine so Result mutation is
	// never concurrent. On a fold error the channel is still drained so
	// the workers can exit.
	var foldErr error
	for out := range outcomes {
		if foldErr != nil {
			continue
		}
		if err := result.fold(out); err != nil {
			foldErr = err
			cancel()
		}
	}
	if foldErr != nil {
		return nil, foldErr
	}

	if err := ctx.Err(); err != nil {
		logger.Warn("batch pass cancelled",
			slog.Int("unprocessed", q.remaining()),
			slog.Int("completed", len(result.Outcomes)))
	}

	return result, nil
}

// worker drains the queue until it is empty or cancellation is observed
// at the next pop.
func (s *Scheduler) worker(ctx context.Context, id int, q *queue, outcomes chan<- executor.Outcome, wg *sync.WaitGroup, batchLogger *slog.Logger) {
	defer wg.Done()
	defer s.progress.Done(id)

	logger := batchLogger.With(slog.Int(log.WorkerIDKey, id))

	for {
		if ctx.Err() != nil {
			return
		}
		wf, ok := q.pop()
		if !ok {
			return
		}

		s.progress.Update(id, wf.ID, executor.StatusRunning)
		s.recorder.ExecutionStarted()

		started := time.Now()
		out := s.exec.Execute(ctx, wf)
		elapsed := time.Since(started)

		s.recorder.ExecutionFinished(string(out.Status), elapsed)
		s.progress.Update(id, wf.ID, out.Status)
		logger.Info("workflow executed",
			slog.String(log.WorkflowIDKey, wf.ID),
			slog.String(log.StatusKey, string(out.Status)),
			log.Duration(log.DurationKey, elapsed.Milliseconds()))

		// The send is unconditional: the aggregator drains the channel
		// until every worker has exited, so a claimed workflow that
		// finished is always reported, even when cancellation raced the
		// delivery.
		outcomes <- out
	}
}
