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

package batch

import (
	"context"
	"log/slog"

	"github.com/tombee/regress/internal/log"
	"github.com/tombee/regress/internal/metrics"
	"github.com/tombee/regress/pkg/workflow"
)

// Runner drives the full run-compare-retry cycle: one initial pool pass
// followed by retry passes over the warned/failed subset while the
// budget lasts. Retry is indiscriminate: structural regressions are
// re-run alongside transient failures.
type Runner struct {
	sched    *Scheduler
	retries  int
	logger   *slog.Logger
	recorder *metrics.Recorder
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithRunnerLogger attaches a structured logger.
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// WithRunnerMetrics attaches a metrics recorder.
func WithRunnerMetrics(rec *metrics.Recorder) RunnerOption {
	return func(r *Runner) { r.recorder = rec }
}

// NewRunner creates a Runner with the given retry budget (minimum 0).
func NewRunner(sched *Scheduler, retries int, opts ...RunnerOption) *Runner {
	if retries < 0 {
		retries = 0
	}
	r := &Runner{
		sched:   sched,
		retries: retries,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = log.WithComponent(r.logger, "runner")
	return r
}

// Run executes the batch and retry passes, returning the merged result.
// The budget is decremented per pass whether or not it produced new
// successes.
func (r *Runner) Run(ctx context.Context, wfs []workflow.Descriptor) (*Result, error) {
	result, err := r.sched.Run(ctx, wfs)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]workflow.Descriptor, len(wfs))
	for _, wf := range wfs {
		byID[wf.ID] = wf
	}

	attempt := 0
	for budget := r.retries; budget > 0 && result.HasFailures() && ctx.Err() == nil; budget-- {
		attempt++
		ids := result.FailingIDs()
		subset := make([]workflow.Descriptor, 0, len(ids))
		for _, id := range ids {
			if wf, ok := byID[id]; ok {
				subset = append(subset, wf)
			}
		}

		r.logger.Info("retrying workflows",
			slog.Int(log.AttemptKey, attempt),
			slog.Int("count", len(subset)),
			slog.Int("remaining_budget", budget))
		r.recorder.RetryPass()

		retried, err := r.sched.Run(ctx, subset)
		if err != nil {
			return nil, err
		}
		result = Merge(result, retried)
	}

	return result, nil
}
