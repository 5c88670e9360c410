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
	"fmt"

	"github.com/google/uuid"

	"github.com/tombee/regress/internal/executor"
)

// Failure pairs a workflow id with the error text that failed or warned it.
type Failure struct {
	WorkflowID string `json:"workflowId"`
	Error      string `json:"error"`
}

// Summary holds the running outcome counts of a batch. Invariant:
// Successful + Warning + Failed equals the number of outcomes with a
// terminal status.
type Summary struct {
	Successful int       `json:"successfulExecutions"`
	Warning    int       `json:"warningExecutions"`
	Failed     int       `json:"failedExecutions"`
	Warnings   []Failure `json:"warnings"`
	Errors     []Failure `json:"errors"`
}

// Result is the aggregate of one batch run (including retry passes).
type Result struct {
	BatchID  string             `json:"batchId"`
	Total    int                `json:"totalWorkflows"`
	Summary  Summary            `json:"summary"`
	Coverage map[string]int     `json:"coverage"`
	Outcomes []executor.Outcome `json:"executions"`
	Message  string             `json:"message,omitempty"`
}

func newResult(total int) *Result {
	return &Result{
		BatchID:  uuid.NewString(),
		Total:    total,
		Coverage: make(map[string]int),
	}
}

// fold accumulates one outcome. Coverage is summed only over successful
// executions. An outcome with a non-terminal or unknown status is an
// internal consistency violation and aborts the batch.
func (r *Result) fold(out executor.Outcome) error {
	switch out.Status {
	case executor.StatusSuccess:
		r.Summary.Successful++
		for nodeType, count := range out.Coverage {
			r.Coverage[nodeType] += count
		}
	case executor.StatusWarning:
		r.Summary.Warning++
		r.Summary.Warnings = append(r.Summary.Warnings, Failure{WorkflowID: out.WorkflowID, Error: out.Error})
	case executor.StatusError:
		r.Summary.Failed++
		r.Summary.Errors = append(r.Summary.Errors, Failure{WorkflowID: out.WorkflowID, Error: out.Error})
	default:
		return fmt.Errorf("internal consistency violation: unknown execution status %q for workflow %s", out.Status, out.WorkflowID)
	}

	r.Outcomes = append(r.Outcomes, out)
	return nil
}

// HasFailures reports whether any outcome warned or failed.
func (r *Result) HasFailures() bool {
	return r.Summary.Warning > 0 || r.Summary.Failed > 0
}

// FailingIDs returns the distinct workflow ids currently marked warning
// or error, in outcome order.
func (r *Result) FailingIDs() []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, out := range r.Outcomes {
		if out.Status != executor.StatusWarning && out.Status != executor.StatusError {
			continue
		}
		if _, ok := seen[out.WorkflowID]; ok {
			continue
		}
		seen[out.WorkflowID] = struct{}{}
		ids = append(ids, out.WorkflowID)
	}
	return ids
}

// Merge folds a retry pass into a prior result, returning a new Result.
// Only retried outcomes that are now successful are merged: the prior
// outcome is removed, the matching warning/error entry and counter are
// dropped, and the new success is appended. Outcomes that failed again
// keep their prior record authoritative. Merging a workflow whose prior
// record was already successful is a no-op, so Merge is idempotent.
func Merge(prior, retried *Result) *Result {
	merged := &Result{
		BatchID:  prior.BatchID,
		Total:    prior.Total,
		Summary:  cloneSummary(prior.Summary),
		Coverage: cloneCoverage(prior.Coverage),
		Outcomes: append([]executor.Outcome(nil), prior.Outcomes...),
		Message:  prior.Message,
	}

	for _, out := range retried.Outcomes {
		if out.Status != executor.StatusSuccess {
			continue
		}

		idx := outcomeIndex(merged.Outcomes, out.WorkflowID)
		if idx < 0 || merged.Outcomes[idx].Status == executor.StatusSuccess {
			continue
		}

		switch merged.Outcomes[idx].Status {
		case executor.StatusWarning:
			merged.Summary.Warning--
			merged.Summary.Warnings = dropFailure(merged.Summary.Warnings, out.WorkflowID)
		case executor.StatusError:
			merged.Summary.Failed--
			merged.Summary.Errors = dropFailure(merged.Summary.Errors, out.WorkflowID)
		}

		merged.Outcomes = append(merged.Outcomes[:idx], merged.Outcomes[idx+1:]...)
		merged.Summary.Successful++
		for nodeType, count := range out.Coverage {
			merged.Coverage[nodeType] += count
		}
		merged.Outcomes = append(merged.Outcomes, out)
	}

	return merged
}

func outcomeIndex(outcomes []executor.Outcome, workflowID string) int {
	for i, out := range outcomes {
		if out.WorkflowID == workflowID {
			return i
		}
	}
	return -1
}

func dropFailure(failures []Failure, workflowID string) []Failure {
	out := failures[:0]
	for _, f := range failures {
		if f.WorkflowID != workflowID {
			out = append(out, f)
		}
	}
	return out
}

func cloneSummary(s Summary) Summary {
	s.Warnings = append([]Failure(nil), s.Warnings...)
	s.Errors = append([]Failure(nil), s.Errors...)
	return s
}

func cloneCoverage(coverage map[string]int) map[string]int {
	out := make(map[string]int, len(coverage))
	for k, v := range coverage {
		out[k] = v
	}
	return out
}
