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

package snapshot

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tombee/regress/pkg/engine"
)

// Diff records the structural differences between an expected (stored)
// and received (fresh) execution output. Paths use dotted keys with
// bracketed indices, e.g. "Set[0].data.main[1].total".
type Diff struct {
	// Added are paths present in the received output only.
	Added []string `json:"added,omitempty"`

	// Removed are paths present in the expected output only. Any
	// removal is treated as a breaking change.
	Removed []string `json:"removed,omitempty"`
}

// Empty reports whether the outputs were structurally identical.
func (d *Diff) Empty() bool {
	return d == nil || (len(d.Added) == 0 && len(d.Removed) == 0)
}

// Breaking reports whether the diff contains removed paths.
func (d *Diff) Breaking() bool {
	return d != nil && len(d.Removed) > 0
}

// Message renders the diff classification for outcome reporting.
// In CI mode the removed-path count is stated so pipeline logs carry
// the magnitude of the break.
func (d *Diff) Message(ciMode bool) string {
	if d.Breaking() {
		if ciMode {
			return fmt.Sprintf("comparison failed: %d path(s) no longer returned", len(d.Removed))
		}
		return "comparison detected a breaking change in the execution output"
	}
	return "execution output contains data that was not present in the snapshot"
}

// Compare structurally diffs two run-data trees by key presence:
// recursive on containers, ignoring value changes inside otherwise
// equal container shapes. Returns nil when the shapes match.
func Compare(expected, received map[string][]engine.TaskOutput) (*Diff, error) {
	exp, err := toGeneric(expected)
	if err != nil {
		return nil, err
	}
	rec, err := toGeneric(received)
	if err != nil {
		return nil, err
	}

	d := &Diff{}
	diffValue("", exp, rec, d)
	if d.Empty() {
		return nil, nil
	}
	return d, nil
}

// toGeneric round-trips the typed run data through JSON so the diff
// walks plain maps and slices regardless of how the tree was built.
func toGeneric(runData map[string][]engine.TaskOutput) (any, error) {
	data, err := json.Marshal(runData)
	if err != nil {
		return nil, fmt.Errorf("encoding run data for comparison: %w", err)
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("decoding run data for comparison: %w", err)
	}
	return generic, nil
}

func diffValue(path string, expected, received any, d *Diff) {
	expMap, expIsMap := expected.(map[string]any)
	recMap, recIsMap := received.(map[string]any)
	expSlice, expIsSlice := expected.([]any)
	recSlice, recIsSlice := received.([]any)

	switch {
	case expIsMap && recIsMap:
		diffMap(path, expMap, recMap, d)
	case expIsSlice && recIsSlice:
		diffSlice(path, expSlice, recSlice, d)
	case expIsMap || expIsSlice || recIsMap || recIsSlice:
		// Container shape changed (container vs scalar, or map vs array).
		d.Removed = append(d.Removed, path)
		d.Added = append(d.Added, path)
	default:
		// Both primitives: value changes are not structural.
	}
}

func diffMap(path string, expected, received map[string]any, d *Diff) {
	for key, expVal := range expected {
		recVal, ok := received[key]
		if !ok {
			d.Removed = append(d.Removed, joinPath(path, key))
			continue
		}
		diffValue(joinPath(path, key), expVal, recVal, d)
	}
	for key := range received {
		if _, ok := expected[key]; !ok {
			d.Added = append(d.Added, joinPath(path, key))
		}
	}
}

func diffSlice(path string, expected, received []any, d *Diff) {
	common := len(expected)
	if len(received) < common {
		common = len(received)
	}
	for i := 0; i < common; i++ {
		diffValue(indexPath(path, i), expected[i], received[i], d)
	}
	for i := common; i < len(expected); i++ {
		d.Removed = append(d.Removed, indexPath(path, i))
	}
	for i := common; i < len(received); i++ {
		d.Added = append(d.Added, indexPath(path, i))
	}
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func indexPath(path string, i int) string {
	return fmt.Sprintf("%s[%d]", path, i)
}
