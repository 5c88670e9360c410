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

// Package rules parses per-node free-text annotations into output
// normalization rules. A node's notes may contain KEY=VALUE lines:
//
//	CAP_RESULTS_LENGTH=<int>          truncate output rows to the first N
//	IGNORED_PROPERTIES=<comma list>   strip the named fields from each record
//	KEEP_ONLY_PROPERTIES=<comma list> restrict records to the named fields
//
// Malformed lines are silently skipped.
package rules

import (
	"strconv"
	"strings"

	"github.com/tombee/regress/pkg/workflow"
)

// Annotation keys recognized in node notes.
const (
	KeyCapResults = "CAP_RESULTS_LENGTH"
	KeyIgnored    = "IGNORED_PROPERTIES"
	KeyKeepOnly   = "KEEP_ONLY_PROPERTIES"
)

// NodeRules holds the normalization rules declared by a single node.
type NodeRules struct {
	// CapResults truncates the node's output rows to the first N (0 = no cap).
	CapResults int

	// IgnoredProperties are fields stripped from each output record.
	IgnoredProperties map[string]struct{}

	// KeepOnlyProperties, when non-empty, restricts each output record
	// to only the named fields.
	KeepOnlyProperties map[string]struct{}
}

// Empty reports whether the rule set declares nothing.
func (r NodeRules) Empty() bool {
	return r.CapResults == 0 && len(r.IgnoredProperties) == 0 && len(r.KeepOnlyProperties) == 0
}

// Set maps node names to their declared rules.
type Set map[string]NodeRules

// Extract parses the notes of every node into a rule set. Nodes without
// valid annotations do not appear in the result. Pure function of the
// input; never fails.
func Extract(nodes []workflow.Node) Set {
	set := make(Set)
	for _, node := range nodes {
		if node.Notes == "" {
			continue
		}
		r := parseNotes(node.Notes)
		if !r.Empty() {
			set[node.Name] = r
		}
	}
	return set
}

func parseNotes(notes string) NodeRules {
	var r NodeRules
	for _, line := range strings.Split(notes, "\n") {
		parts := strings.Split(strings.TrimSpace(line), "=")
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch key {
		case KeyCapResults:
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				continue
			}
			r.CapResults = n
		case KeyIgnored:
			r.IgnoredProperties = propertySet(value)
		case KeyKeepOnly:
			r.KeepOnlyProperties = propertySet(value)
		}
	}
	return r
}

func propertySet(list string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, p := range strings.Split(list, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			set[p] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}
