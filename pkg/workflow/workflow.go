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

// Package workflow defines the workflow descriptors consumed by the
// regression runner and the store that supplies them. Descriptors are
// owned by the caller and read-only to the runner.
package workflow

import (
	"strings"

	"github.com/tombee/regress/pkg/errors"
)

// Node is a unit of work within a workflow. Notes may carry free-text
// edge-case annotations parsed by the rules package.
type Node struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Notes string `json:"notes,omitempty"`
}

// Descriptor identifies a workflow and its ordered node list.
type Descriptor struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Nodes []Node `json:"nodes"`
}

// StartNode returns the name of the workflow's designated start node:
// the first node whose type names a trigger or an explicit start node.
// Returns a NotFoundError when the workflow has no such node.
func (d *Descriptor) StartNode() (string, error) {
	for _, n := range d.Nodes {
		t := strings.ToLower(n.Type)
		if strings.Contains(t, "trigger") || t == "start" || strings.HasSuffix(t, ".start") {
			return n.Name, nil
		}
	}
	return "", &errors.NotFoundError{Resource: "start node", ID: d.ID}
}

// NodeTypeCounts returns the number of occurrences of each node type.
// This is the per-workflow coverage contribution.
func (d *Descriptor) NodeTypeCounts() map[string]int {
	counts := make(map[string]int, len(d.Nodes))
	for _, n := range d.Nodes {
		counts[n.Type]++
	}
	return counts
}

// NodeTypes returns the distinct node types in first-seen order.
func (d *Descriptor) NodeTypes() []string {
	seen := make(map[string]struct{}, len(d.Nodes))
	types := make([]string, 0, len(d.Nodes))
	for _, n := range d.Nodes {
		if _, ok := seen[n.Type]; ok {
			continue
		}
		seen[n.Type] = struct{}{}
		types = append(types, n.Type)
	}
	return types
}
