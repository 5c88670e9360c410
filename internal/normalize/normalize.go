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

// Package normalize transforms raw per-node execution output before
// snapshot comparison, reducing noise from acceptable volatility while
// preserving the shape changes that indicate regressions. Normalization
// never changes an execution's success/failure classification.
package normalize

import (
	"reflect"

	"github.com/tombee/regress/internal/rules"
	"github.com/tombee/regress/pkg/engine"
)

// ApplyRules returns a copy of runData with each ruled node's output
// capped, restricted to kept properties, and stripped of ignored
// properties. Nodes without rules are copied untouched. The input is
// never mutated.
func ApplyRules(runData map[string][]engine.TaskOutput, set rules.Set) map[string][]engine.TaskOutput {
	out := make(map[string][]engine.TaskOutput, len(runData))
	for node, tasks := range runData {
		r, ruled := set[node]
		copied := make([]engine.TaskOutput, len(tasks))
		for i, task := range tasks {
			if ruled {
				copied[i] = applyTaskRules(task, r)
			} else {
				copied[i] = copyTask(task)
			}
		}
		out[node] = copied
	}
	return out
}

// Shallow returns a copy of runData with every record's top-level
// fields collapsed to type-preserving placeholders: arrays become a
// single-element marker array, nested objects become a boolean-flag
// marker object, scalars are left untouched. Applied to every node
// regardless of declared rules.
func Shallow(runData map[string][]engine.TaskOutput) map[string][]engine.TaskOutput {
	out := make(map[string][]engine.TaskOutput, len(runData))
	for node, tasks := range runData {
		copied := make([]engine.TaskOutput, len(tasks))
		for i, task := range tasks {
			shallowed := engine.TaskOutput{Data: make(map[string][]engine.Record, len(task.Data))}
			for conn, records := range task.Data {
				rows := make([]engine.Record, len(records))
				for j, rec := range records {
					rows[j] = shallowRecord(rec)
				}
				shallowed.Data[conn] = rows
			}
			copied[i] = shallowed
		}
		out[node] = copied
	}
	return out
}

func applyTaskRules(task engine.TaskOutput, r rules.NodeRules) engine.TaskOutput {
	out := engine.TaskOutput{Data: make(map[string][]engine.Record, len(task.Data))}
	for conn, records := range task.Data {
		if r.CapResults > 0 && len(records) > r.CapResults {
			records = records[:r.CapResults]
		}
		rows := make([]engine.Record, len(records))
		for i, rec := range records {
			rows[i] = filterRecord(rec, r)
		}
		out.Data[conn] = rows
	}
	return out
}

func filterRecord(rec engine.Record, r rules.NodeRules) engine.Record {
	filtered := make(map[string]any, len(rec.JSON))
	for key, value := range rec.JSON {
		if len(r.KeepOnlyProperties) > 0 {
			if _, keep := r.KeepOnlyProperties[key]; !keep {
				continue
			}
		}
		if _, ignored := r.IgnoredProperties[key]; ignored {
			continue
		}
		filtered[key] = value
	}
	return engine.Record{JSON: filtered}
}

func shallowRecord(rec engine.Record) engine.Record {
	collapsed := make(map[string]any, len(rec.JSON))
	for key, value := range rec.JSON {
		collapsed[key] = shallowValue(value)
	}
	return engine.Record{JSON: collapsed}
}

// shallowValue collapses container values to shape markers. The reflect
// fallback covers typed slices/maps that did not pass through JSON
// decoding.
func shallowValue(v any) any {
	switch v.(type) {
	case map[string]any:
		return map[string]any{"object": true}
	case []any:
		return []any{true}
	case nil:
		return nil
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array:
		return []any{true}
	case reflect.Map:
		return map[string]any{"object": true}
	default:
		return v
	}
}

func copyTask(task engine.TaskOutput) engine.TaskOutput {
	out := engine.TaskOutput{Data: make(map[string][]engine.Record, len(task.Data))}
	for conn, records := range task.Data {
		rows := make([]engine.Record, len(records))
		copy(rows, records)
		out.Data[conn] = rows
	}
	return out
}
