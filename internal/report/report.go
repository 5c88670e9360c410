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

// Package report renders batch results: a JSON artifact, an optional
// short variant that drops successful execution detail, a one-line CI
// summary message, and a human-readable summary.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tombee/regress/internal/batch"
	"github.com/tombee/regress/internal/executor"
)

// ciListLimit is the failure count at or above which the CI message
// switches from per-workflow detail to a bare count.
const ciListLimit = 6

// CIMessage builds the short pipeline-integration message. Fewer than
// six failed workflows are listed by id with their error text; at six
// or more only the count is reported.
func CIMessage(result *batch.Result) string {
	failed := result.Summary.Errors
	if len(failed) == 0 {
		return fmt.Sprintf("All %d workflows passed.", result.Total)
	}
	if len(failed) >= ciListLimit {
		return fmt.Sprintf("%d workflows failed.", len(failed))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d workflow(s) failed:", len(failed))
	for _, f := range failed {
		fmt.Fprintf(&b, "\n- %s: %s", f.WorkflowID, f.Error)
	}
	return b.String()
}

// Short returns a copy of the result with successful execution records
// dropped. Summary counts and coverage are untouched, so the short
// variant still accounts for every workflow.
func Short(result *batch.Result) *batch.Result {
	short := *result
	short.Outcomes = make([]executor.Outcome, 0, len(result.Outcomes))
	for _, out := range result.Outcomes {
		if out.Status == executor.StatusSuccess {
			continue
		}
		short.Outcomes = append(short.Outcomes, out)
	}
	return &short
}

// Marshal serializes the result (optionally shortened) as indented JSON.
func Marshal(result *batch.Result, short bool) ([]byte, error) {
	if short {
		result = Short(result)
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal batch result: %w", err)
	}
	return data, nil
}

// Write persists the JSON report to path, creating parent directories
// as needed.
func Write(path string, result *batch.Result, short bool) error {
	data, err := Marshal(result, short)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// Summary writes a human-readable run summary to w.
func Summary(w io.Writer, result *batch.Result) {
	fmt.Fprintf(w, "Batch %s: %d workflow(s)\n", result.BatchID, result.Total)
	fmt.Fprintf(w, "  success: %d\n", result.Summary.Successful)
	fmt.Fprintf(w, "  warning: %d\n", result.Summary.Warning)
	fmt.Fprintf(w, "  failed:  %d\n", result.Summary.Failed)

	if len(result.Summary.Warnings) > 0 {
		fmt.Fprintln(w, "Warnings:")
		for _, f := range result.Summary.Warnings {
			fmt.Fprintf(w, "  %s: %s\n", f.WorkflowID, f.Error)
		}
	}
	if len(result.Summary.Errors) > 0 {
		fmt.Fprintln(w, "Errors:")
		for _, f := range result.Summary.Errors {
			fmt.Fprintf(w, "  %s: %s\n", f.WorkflowID, f.Error)
		}
	}

	if len(result.Coverage) > 0 {
		fmt.Fprintln(w, "Node coverage:")
		types := make([]string, 0, len(result.Coverage))
		for nodeType := range result.Coverage {
			types = append(types, nodeType)
		}
		sort.Strings(types)
		for _, nodeType := range types {
			fmt.Fprintf(w, "  %s: %d\n", nodeType, result.Coverage[nodeType])
		}
	}
}
