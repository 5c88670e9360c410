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

package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/regress/internal/rules"
	"github.com/tombee/regress/pkg/engine"
)

func rows(n int) []engine.Record {
	out := make([]engine.Record, n)
	for i := range out {
		out[i] = engine.Record{JSON: map[string]any{"row": i}}
	}
	return out
}

func TestApplyRulesCapPreservesOrder(t *testing.T) {
	runData := map[string][]engine.TaskOutput{
		"HTTP Request": {{Data: map[string][]engine.Record{"main": rows(5)}}},
	}
	set := rules.Set{"HTTP Request": {CapResults: 2}}

	got := ApplyRules(runData, set)

	records := got["HTTP Request"][0].Data["main"]
	require.Len(t, records, 2)
	assert.Equal(t, 0, records[0].JSON["row"])
	assert.Equal(t, 1, records[1].JSON["row"])

	// Input untouched.
	assert.Len(t, runData["HTTP Request"][0].Data["main"], 5)
}

func TestApplyRulesCapShorterThanOutput(t *testing.T) {
	runData := map[string][]engine.TaskOutput{
		"N": {{Data: map[string][]engine.Record{"main": rows(1)}}},
	}
	got := ApplyRules(runData, rules.Set{"N": {CapResults: 5}})
	assert.Len(t, got["N"][0].Data["main"], 1)
}

func TestApplyRulesIgnoredProperties(t *testing.T) {
	runData := map[string][]engine.TaskOutput{
		"N": {{Data: map[string][]engine.Record{"main": {
			{JSON: map[string]any{"id": 1, "requestId": "abc", "timestamp": "now"}},
		}}}},
	}
	set := rules.Set{"N": {IgnoredProperties: map[string]struct{}{"requestId": {}, "timestamp": {}}}}

	got := ApplyRules(runData, set)

	assert.Equal(t, map[string]any{"id": 1}, got["N"][0].Data["main"][0].JSON)
}

func TestApplyRulesKeepOnlyProperties(t *testing.T) {
	runData := map[string][]engine.TaskOutput{
		"N": {{Data: map[string][]engine.Record{"main": {
			{JSON: map[string]any{"id": 1, "total": 9.5, "noise": "x"}},
		}}}},
	}
	set := rules.Set{"N": {KeepOnlyProperties: map[string]struct{}{"id": {}, "total": {}}}}

	got := ApplyRules(runData, set)

	assert.Equal(t, map[string]any{"id": 1, "total": 9.5}, got["N"][0].Data["main"][0].JSON)
}

func TestApplyRulesUnruledNodeUntouched(t *testing.T) {
	runData := map[string][]engine.TaskOutput{
		"Other": {{Data: map[string][]engine.Record{"main": rows(5)}}},
	}
	got := ApplyRules(runData, rules.Set{"N": {CapResults: 1}})
	assert.Len(t, got["Other"][0].Data["main"], 5)
}

func TestShallowMarkers(t *testing.T) {
	runData := map[string][]engine.TaskOutput{
		"N": {{Data: map[string][]engine.Record{"main": {
			{JSON: map[string]any{
				"nestedObject": map[string]any{"deep": map[string]any{"x": 1}},
				"nestedArray":  []any{1, 2, 3},
				"scalar":       "kept",
				"count":        7,
				"absent":       nil,
			}},
		}}}},
	}

	got := Shallow(runData)

	json := got["N"][0].Data["main"][0].JSON
	assert.Equal(t, map[string]any{"object": true}, json["nestedObject"])
	assert.Equal(t, []any{true}, json["nestedArray"])
	assert.Equal(t, "kept", json["scalar"])
	assert.Equal(t, 7, json["count"])
	assert.Nil(t, json["absent"])
}

func TestShallowTypedContainers(t *testing.T) {
	runData := map[string][]engine.TaskOutput{
		"N": {{Data: map[string][]engine.Record{"main": {
			{JSON: map[string]any{
				"ids":  []int{1, 2},
				"meta": map[string]string{"a": "b"},
			}},
		}}}},
	}

	json := Shallow(runData)["N"][0].Data["main"][0].JSON
	assert.Equal(t, []any{true}, json["ids"])
	assert.Equal(t, map[string]any{"object": true}, json["meta"])
}

func TestShallowAppliesToEveryNode(t *testing.T) {
	runData := map[string][]engine.TaskOutput{
		"A": {{Data: map[string][]engine.Record{"main": {{JSON: map[string]any{"v": []any{1}}}}}}},
		"B": {{Data: map[string][]engine.Record{"main": {{JSON: map[string]any{"v": []any{2}}}}}}},
	}

	got := Shallow(runData)
	assert.Equal(t, []any{true}, got["A"][0].Data["main"][0].JSON["v"])
	assert.Equal(t, []any{true}, got["B"][0].Data["main"][0].JSON["v"])
}
