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

// Package executor runs a single workflow through the execution engine
// with a timeout, normalizes its output, compares it against the stored
// snapshot, and classifies the result. Every failure mode is converted
// into an outcome; Execute never panics outward and never aborts the
// batch.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tombee/regress/internal/log"
	"github.com/tombee/regress/internal/normalize"
	"github.com/tombee/regress/internal/rules"
	"github.com/tombee/regress/internal/snapshot"
	"github.com/tombee/regress/pkg/engine"
	regresserrors "github.com/tombee/regress/pkg/errors"
	"github.com/tombee/regress/pkg/workflow"
)

// Status is the classification of a workflow execution.
type Status string

const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// DefaultTimeout bounds a single workflow execution.
const DefaultTimeout = 5 * time.Minute

// Outcome is the terminal result of executing one workflow.
type Outcome struct {
	WorkflowID string         `json:"workflowId"`
	Name       string         `json:"workflowName"`
	Status     Status         `json:"executionStatus"`
	Elapsed    time.Duration  `json:"elapsed"`
	Error      string         `json:"error,omitempty"`
	Diff       *snapshot.Diff `json:"changes,omitempty"`
	Coverage   map[string]int `json:"coverage,omitempty"`
}

// Config controls executor behavior.
type Config struct {
	// Timeout bounds a single execution (default 5m).
	Timeout time.Duration

	// CompareDir, when set, enables snapshot comparison against the
	// baselines stored there.
	CompareDir string

	// SnapshotDir, when set, persists the post-rule normalized output
	// there after comparison.
	SnapshotDir string

	// Shallow collapses every node's output to shape markers before
	// comparison.
	Shallow bool

	// CIMode switches comparator messages to CI-friendly text.
	CIMode bool
}

// Executor executes single workflows against an engine.
type Executor struct {
	engine  engine.Engine
	cfg     Config
	compare *snapshot.Store
	capture *snapshot.Store
	logger  *slog.Logger
}

// New creates an Executor. A nil logger falls back to slog.Default.
func New(eng engine.Engine, cfg Config, logger *slog.Logger) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Executor{
		engine: eng,
		cfg:    cfg,
		logger: log.WithComponent(logger, "executor"),
	}
	if cfg.CompareDir != "" {
		e.compare = snapshot.NewStore(cfg.CompareDir)
	}
	if cfg.SnapshotDir != "" {
		e.capture = snapshot.NewStore(cfg.SnapshotDir)
	}
	return e
}

type awaitResult struct {
	rec *engine.ExecutionRecord
	err error
}

// Execute runs one workflow and produces exactly one Outcome. Coverage
// is recorded for every node regardless of how the execution ends.
func (e *Executor) Execute(ctx context.Context, wf workflow.Descriptor) Outcome {
	started := time.Now()
	out := Outcome{
		WorkflowID: wf.ID,
		Name:       wf.Name,
		Status:     StatusRunning,
		Coverage:   wf.NodeTypeCounts(),
	}
	finish := func(status Status, errMsg string) Outcome {
		out.Status = status
		out.Error = errMsg
		out.Elapsed = time.Since(started)
		return out
	}

	startNode, err := wf.StartNode()
	if err != nil {
		return finish(StatusError, err.Error())
	}

	execID, err := e.engine.Run(ctx, &wf, startNode)
	if err != nil {
		return finish(StatusError, err.Error())
	}

	// Await completion racing a fixed timeout. On timeout the in-flight
	// call is abandoned; a later completion is discarded with the
	// buffered channel.
	await := make(chan awaitResult, 1)
	go func() {
		rec, err := e.engine.AwaitCompletion(ctx, execID)
		await <- awaitResult{rec: rec, err: err}
	}()

	timer := time.NewTimer(e.cfg.Timeout)
	defer timer.Stop()

	var res awaitResult
	select {
	case <-timer.C:
		timeoutErr := &regresserrors.TimeoutError{Operation: "workflow execution", Duration: e.cfg.Timeout}
		e.logger.Warn("execution timed out",
			slog.String(log.WorkflowIDKey, wf.ID),
			slog.Duration("timeout", e.cfg.Timeout))
		return finish(StatusWarning, timeoutErr.Error())
	case <-ctx.Done():
		return finish(StatusWarning, "execution interrupted")
	case res = <-await:
	}

	if res.err != nil {
		if IsTransient(res.err.Error()) {
			return finish(StatusWarning, res.err.Error())
		}
		return finish(StatusError, res.err.Error())
	}
	if res.rec == nil {
		return finish(StatusError, "engine returned no data for execution "+execID)
	}
	if execErr := res.rec.Data.Error; execErr != nil {
		msg := execErr.String()
		if IsTransient(msg) {
			return finish(StatusWarning, msg)
		}
		return finish(StatusError, msg)
	}

	return e.classify(wf, res.rec, &out, finish)
}

// classify applies normalization and snapshot comparison to a
// successful engine result, then persists the new baseline. Comparison
// strictly precedes the snapshot write so a simultaneous
// compare-and-recapture never diffs the new data against itself.
func (e *Executor) classify(wf workflow.Descriptor, rec *engine.ExecutionRecord, out *Outcome, finish func(Status, string) Outcome) Outcome {
	if e.compare == nil && e.capture == nil {
		return finish(StatusSuccess, "")
	}

	set := rules.Extract(wf.Nodes)
	normalized := normalize.ApplyRules(rec.Data.RunData, set)

	status, errMsg := StatusSuccess, ""
	if e.compare != nil {
		var diff *snapshot.Diff
		status, errMsg, diff = e.compareAgainstBaseline(wf.ID, normalized)
		out.Diff = diff
	}

	if e.capture != nil {
		stored := *rec
		stored.Data.RunData = normalized
		if err := e.capture.Save(wf.ID, &stored); err != nil {
			e.logger.Error("snapshot write failed",
				slog.String(log.WorkflowIDKey, wf.ID),
				log.Error(err))
			if status == StatusSuccess {
				return finish(StatusError, fmt.Sprintf("writing snapshot: %v", err))
			}
		}
	}

	return finish(status, errMsg)
}

// compareAgainstBaseline diffs the normalized output against the stored
// baseline. The stored baseline is post-rule but never shallow-collapsed,
// so in shallow mode the collapse is applied symmetrically to both sides
// here.
func (e *Executor) compareAgainstBaseline(workflowID string, normalized map[string][]engine.TaskOutput) (Status, string, *snapshot.Diff) {
	baseline, err := e.compare.Load(workflowID)
	if err != nil {
		return StatusError, err.Error(), nil
	}
	if baseline == nil {
		return StatusWarning, "snapshot not found", nil
	}

	expected := baseline.Data.RunData
	received := normalized
	if e.cfg.Shallow {
		expected = normalize.Shallow(expected)
		received = normalize.Shallow(received)
	}

	diff, err := snapshot.Compare(expected, received)
	if err != nil {
		return StatusError, err.Error(), nil
	}
	if diff.Empty() {
		return StatusSuccess, "", nil
	}

	if diff.Breaking() {
		return StatusError, diff.Message(e.cfg.CIMode), diff
	}
	return StatusWarning, diff.Message(e.cfg.CIMode), diff
}
