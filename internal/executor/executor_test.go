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

package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/regress/internal/snapshot"
	"github.com/tombee/regress/pkg/engine"
	regresserrors "github.com/tombee/regress/pkg/errors"
	"github.com/tombee/regress/pkg/workflow"
)

// stubEngine implements engine.Engine with injectable behavior.
type stubEngine struct {
	runFn   func(ctx context.Context, wf *workflow.Descriptor, startNode string) (string, error)
	awaitFn func(ctx context.Context, executionID string) (*engine.ExecutionRecord, error)
}

func (s *stubEngine) Run(ctx context.Context, wf *workflow.Descriptor, startNode string) (string, error) {
	if s.runFn != nil {
		return s.runFn(ctx, wf, startNode)
	}
	return uuid.NewString(), nil
}

func (s *stubEngine) AwaitCompletion(ctx context.Context, executionID string) (*engine.ExecutionRecord, error) {
	return s.awaitFn(ctx, executionID)
}

func testWorkflow(id string) workflow.Descriptor {
	return workflow.Descriptor{
		ID:   id,
		Name: "wf-" + id,
		Nodes: []workflow.Node{
			{Name: "Trigger", Type: "base.manualTrigger"},
			{Name: "Set", Type: "base.set"},
		},
	}
}

func successRecord(json map[string]any) *engine.ExecutionRecord {
	return &engine.ExecutionRecord{
		Finished:  true,
		StoppedAt: time.Now(),
		Data: engine.ResultData{
			RunData: map[string][]engine.TaskOutput{
				"Set": {{Data: map[string][]engine.Record{"main": {{JSON: json}}}}},
			},
		},
	}
}

func TestExecuteSuccessWithoutSnapshots(t *testing.T) {
	eng := &stubEngine{
		awaitFn: func(ctx context.Context, id string) (*engine.ExecutionRecord, error) {
			return successRecord(map[string]any{"id": 1}), nil
		},
	}
	exec := New(eng, Config{}, nil)

	out := exec.Execute(t.Context(), testWorkflow("1"))

	assert.Equal(t, StatusSuccess, out.Status)
	assert.Empty(t, out.Error)
	assert.Equal(t, map[string]int{"base.manualTrigger": 1, "base.set": 1}, out.Coverage)
	assert.Greater(t, out.Elapsed, time.Duration(0))
}

func TestExecuteMissingStartNode(t *testing.T) {
	eng := &stubEngine{awaitFn: func(ctx context.Context, id string) (*engine.ExecutionRecord, error) {
		t.Fatal("engine must not be invoked without a start node")
		return nil, nil
	}}
	exec := New(eng, Config{}, nil)

	wf := workflow.Descriptor{ID: "9", Name: "no-start", Nodes: []workflow.Node{{Name: "Set", Type: "base.set"}}}
	out := exec.Execute(t.Context(), wf)

	assert.Equal(t, StatusError, out.Status)
	assert.Contains(t, out.Error, "start node")
	assert.Equal(t, map[string]int{"base.set": 1}, out.Coverage, "coverage recorded regardless of outcome")
}

func TestExecuteEngineRejectsRun(t *testing.T) {
	eng := &stubEngine{
		runFn: func(ctx context.Context, wf *workflow.Descriptor, startNode string) (string, error) {
			return "", errors.New("workflow is deactivated")
		},
	}
	exec := New(eng, Config{}, nil)

	out := exec.Execute(t.Context(), testWorkflow("1"))
	assert.Equal(t, StatusError, out.Status)
	assert.Contains(t, out.Error, "deactivated")
}

func TestExecuteTimeout(t *testing.T) {
	eng := &stubEngine{
		awaitFn: func(ctx context.Context, id string) (*engine.ExecutionRecord, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	exec := New(eng, Config{Timeout: 30 * time.Millisecond}, nil)

	done := make(chan Outcome, 1)
	go func() { done <- exec.Execute(t.Context(), testWorkflow("1")) }()

	select {
	case out := <-done:
		assert.Equal(t, StatusWarning, out.Status)
		timeoutErr := &regresserrors.TimeoutError{Operation: "workflow execution", Duration: 30 * time.Millisecond}
		assert.Equal(t, timeoutErr.Error(), out.Error)
	case <-time.After(2 * time.Second):
		t.Fatal("executor did not terminate after timeout")
	}
}

func TestExecuteTransientFailureIsWarning(t *testing.T) {
	eng := &stubEngine{
		awaitFn: func(ctx context.Context, id string) (*engine.ExecutionRecord, error) {
			return &engine.ExecutionRecord{
				Finished:  false,
				StoppedAt: time.Now(),
				Data:      engine.ResultData{Error: &engine.ExecutionError{Message: "read ECONNRESET", LastNodeExecuted: "HTTP"}},
			}, nil
		},
	}
	exec := New(eng, Config{}, nil)

	out := exec.Execute(t.Context(), testWorkflow("1"))
	assert.Equal(t, StatusWarning, out.Status)
	assert.Contains(t, out.Error, "ECONNRESET")
	assert.Contains(t, out.Error, "HTTP")
}

func TestExecuteFatalFailureIsError(t *testing.T) {
	eng := &stubEngine{
		awaitFn: func(ctx context.Context, id string) (*engine.ExecutionRecord, error) {
			return &engine.ExecutionRecord{
				StoppedAt: time.Now(),
				Data:      engine.ResultData{Error: &engine.ExecutionError{Message: "unknown node type base.missing"}},
			}, nil
		},
	}
	exec := New(eng, Config{}, nil)

	out := exec.Execute(t.Context(), testWorkflow("1"))
	assert.Equal(t, StatusError, out.Status)
}

func TestExecuteNoRecordIsError(t *testing.T) {
	eng := &stubEngine{
		awaitFn: func(ctx context.Context, id string) (*engine.ExecutionRecord, error) {
			return nil, nil
		},
	}
	exec := New(eng, Config{}, nil)

	out := exec.Execute(t.Context(), testWorkflow("1"))
	assert.Equal(t, StatusError, out.Status)
	assert.Contains(t, out.Error, "no data")
}

func TestExecuteMissingBaselineWritesSnapshot(t *testing.T) {
	dir := t.TempDir()
	eng := &stubEngine{
		awaitFn: func(ctx context.Context, id string) (*engine.ExecutionRecord, error) {
			return successRecord(map[string]any{"id": 1}), nil
		},
	}
	exec := New(eng, Config{CompareDir: dir, SnapshotDir: dir}, nil)

	out := exec.Execute(t.Context(), testWorkflow("42"))

	assert.Equal(t, StatusWarning, out.Status)
	assert.Equal(t, "snapshot not found", out.Error)
	assert.FileExists(t, snapshot.NewStore(dir).Path("42"), "new snapshot written after comparison")

	// Second run compares against the just-captured baseline.
	out = exec.Execute(t.Context(), testWorkflow("42"))
	assert.Equal(t, StatusSuccess, out.Status)
}

func TestExecuteBreakingChange(t *testing.T) {
	dir := t.TempDir()
	store := snapshot.NewStore(dir)
	require.NoError(t, store.Save("42", successRecord(map[string]any{"id": 1, "total": 10})))

	eng := &stubEngine{
		awaitFn: func(ctx context.Context, id string) (*engine.ExecutionRecord, error) {
			return successRecord(map[string]any{"id": 1}), nil
		},
	}
	exec := New(eng, Config{CompareDir: dir}, nil)

	out := exec.Execute(t.Context(), testWorkflow("42"))
	assert.Equal(t, StatusError, out.Status)
	require.NotNil(t, out.Diff)
	assert.True(t, out.Diff.Breaking())
}

func TestExecuteAdditiveChangeIsWarning(t *testing.T) {
	dir := t.TempDir()
	store := snapshot.NewStore(dir)
	require.NoError(t, store.Save("42", successRecord(map[string]any{"id": 1})))

	eng := &stubEngine{
		awaitFn: func(ctx context.Context, id string) (*engine.ExecutionRecord, error) {
			return successRecord(map[string]any{"id": 1, "extra": true}), nil
		},
	}
	exec := New(eng, Config{CompareDir: dir}, nil)

	out := exec.Execute(t.Context(), testWorkflow("42"))
	assert.Equal(t, StatusWarning, out.Status)
	require.NotNil(t, out.Diff)
	assert.False(t, out.Diff.Breaking())
}

func TestExecuteShallowIgnoresNestedChanges(t *testing.T) {
	dir := t.TempDir()
	store := snapshot.NewStore(dir)
	require.NoError(t, store.Save("42", successRecord(map[string]any{
		"payload": map[string]any{"a": 1, "b": 2},
	})))

	eng := &stubEngine{
		awaitFn: func(ctx context.Context, id string) (*engine.ExecutionRecord, error) {
			return successRecord(map[string]any{
				"payload": map[string]any{"completely": "different", "keys": true},
			}), nil
		},
	}
	exec := New(eng, Config{CompareDir: dir, Shallow: true}, nil)

	out := exec.Execute(t.Context(), testWorkflow("42"))
	assert.Equal(t, StatusSuccess, out.Status, "shallow mode collapses nested objects to shape markers")
}

func TestExecuteCIModeMessage(t *testing.T) {
	dir := t.TempDir()
	store := snapshot.NewStore(dir)
	require.NoError(t, store.Save("42", successRecord(map[string]any{"a": 1, "b": 2, "c": 3})))

	eng := &stubEngine{
		awaitFn: func(ctx context.Context, id string) (*engine.ExecutionRecord, error) {
			return successRecord(map[string]any{"a": 1}), nil
		},
	}
	exec := New(eng, Config{CompareDir: dir, CIMode: true}, nil)

	out := exec.Execute(t.Context(), testWorkflow("42"))
	assert.Equal(t, StatusError, out.Status)
	assert.Contains(t, out.Error, "2 path(s) no longer returned")
}
