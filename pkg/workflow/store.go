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

package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/goccy/go-json"

	"github.com/tombee/regress/pkg/errors"
)

// Query defines filtering options for listing workflows.
type Query struct {
	// IncludeIDs restricts the result to the listed workflow IDs (empty = all).
	IncludeIDs []string

	// ExcludeIDs removes the listed workflow IDs from the result.
	ExcludeIDs []string

	// Filter is an optional expression evaluated per workflow against
	// {id, name, nodes, types}; workflows where it yields false are skipped.
	Filter string
}

// Store defines the interface for workflow retrieval.
type Store interface {
	// List returns all workflows matching the query, in stable order.
	List(ctx context.Context, q Query) ([]Descriptor, error)
}

// FileStore reads one JSON-encoded Descriptor per file from a directory.
// Files are processed in lexical name order so batches are deterministic.
type FileStore struct {
	dir string
}

// NewFileStore creates a store over the given directory.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// List implements Store.
func (s *FileStore) List(ctx context.Context, q Query) ([]Descriptor, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &errors.ConfigError{Key: "workflows_dir", Reason: "cannot read workflow directory", Cause: err}
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var program *vm.Program
	if q.Filter != "" {
		program, err = expr.Compile(q.Filter, expr.AsBool(), expr.AllowUndefinedVariables())
		if err != nil {
			return nil, &errors.ConfigError{Key: "filter", Reason: "invalid filter expression", Cause: err}
		}
	}

	include := idSet(q.IncludeIDs)
	exclude := idSet(q.ExcludeIDs)

	var out []Descriptor
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := filepath.Join(s.dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading workflow file %s: %w", path, err)
		}

		var wf Descriptor
		if err := json.Unmarshal(data, &wf); err != nil {
			return nil, fmt.Errorf("parsing workflow file %s: %w", path, err)
		}
		if wf.ID == "" {
			return nil, &errors.ValidationError{Field: "id", Message: fmt.Sprintf("workflow file %s has no id", name)}
		}

		if len(include) > 0 {
			if _, ok := include[wf.ID]; !ok {
				continue
			}
		}
		if _, ok := exclude[wf.ID]; ok {
			continue
		}

		if program != nil {
			keep, err := matchFilter(program, &wf)
			if err != nil {
				return nil, &errors.ConfigError{Key: "filter", Reason: "filter evaluation failed", Cause: err}
			}
			if !keep {
				continue
			}
		}

		out = append(out, wf)
	}

	return out, nil
}

func matchFilter(program *vm.Program, wf *Descriptor) (bool, error) {
	env := map[string]any{
		"id":    wf.ID,
		"name":  wf.Name,
		"nodes": len(wf.Nodes),
		"types": wf.NodeTypes(),
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	keep, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("filter expression returned %T, want bool", result)
	}
	return keep, nil
}

func idSet(ids []string) map[string]struct{} {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
