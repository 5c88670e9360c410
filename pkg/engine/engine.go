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

// Package engine defines the execution-engine collaborator interface
// and the execution record model produced by it. The runner only ever
// talks to the engine through the Engine interface.
package engine

import (
	"context"
	"time"

	"github.com/tombee/regress/pkg/workflow"
)

// Engine is the external workflow execution engine.
type Engine interface {
	// Run starts an execution of the given workflow from startNode and
	// returns the engine-assigned execution ID.
	Run(ctx context.Context, wf *workflow.Descriptor, startNode string) (string, error)

	// AwaitCompletion blocks until the execution finishes and returns
	// its record. A nil record with a nil error means the engine has no
	// data for this execution.
	AwaitCompletion(ctx context.Context, executionID string) (*ExecutionRecord, error)
}

// ExecutionRecord is the engine's account of one workflow execution.
type ExecutionRecord struct {
	ID        string     `json:"id,omitempty"`
	Finished  bool       `json:"finished"`
	StartedAt time.Time  `json:"startedAt"`
	StoppedAt time.Time  `json:"stoppedAt"`
	Data      ResultData `json:"data"`
}

// ResultData is the result tree of an execution.
type ResultData struct {
	Error   *ExecutionError         `json:"error,omitempty"`
	RunData map[string][]TaskOutput `json:"runData,omitempty"`
}

// ExecutionError carries the engine's error info for a failed execution.
type ExecutionError struct {
	Message          string `json:"message"`
	Description      string `json:"description,omitempty"`
	LastNodeExecuted string `json:"lastNodeExecuted,omitempty"`
}

// String renders the error for outcome messages, naming the failing
// node when the engine reported one.
func (e *ExecutionError) String() string {
	msg := e.Message
	if msg == "" {
		msg = e.Description
	}
	if e.LastNodeExecuted != "" {
		return msg + " (node: " + e.LastNodeExecuted + ")"
	}
	return msg
}

// TaskOutput is one task's output, keyed by connection type
// (typically "main") with the JSON records emitted on it.
type TaskOutput struct {
	Data map[string][]Record `json:"data"`
}

// Record is a single JSON record produced by a node.
type Record struct {
	JSON map[string]any `json:"json"`
}
