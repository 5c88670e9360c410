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

// Package snapshot persists normalized execution records as regression
// baselines (one JSON file per workflow id) and structurally compares a
// fresh execution against the stored baseline.
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/tombee/regress/pkg/engine"
)

// Store reads and writes snapshot files under a directory. Snapshot
// identity is the workflow id; files are overwritten wholesale, never
// merged.
type Store struct {
	dir string
}

// NewStore creates a store over the given directory.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store's directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the snapshot file path for a workflow id.
func (s *Store) Path(workflowID string) string {
	return filepath.Join(s.dir, workflowID+".json")
}

// Load reads the snapshot for a workflow id. A missing file returns
// (nil, nil); any other failure is an error.
func (s *Store) Load(workflowID string) (*engine.ExecutionRecord, error) {
	data, err := os.ReadFile(s.Path(workflowID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot for workflow %s: %w", workflowID, err)
	}

	var rec engine.ExecutionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing snapshot for workflow %s: %w", workflowID, err)
	}
	return &rec, nil
}

// Save writes the snapshot for a workflow id, replacing any previous
// one. The write goes through a temp file so a crash never leaves a
// truncated baseline behind.
func (s *Store) Save(workflowID string, rec *engine.ExecutionRecord) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot for workflow %s: %w", workflowID, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+workflowID+"-*.tmp")
	if err != nil {
		return fmt.Errorf("writing snapshot for workflow %s: %w", workflowID, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing snapshot for workflow %s: %w", workflowID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing snapshot for workflow %s: %w", workflowID, err)
	}

	if err := os.Rename(tmp.Name(), s.Path(workflowID)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing snapshot for workflow %s: %w", workflowID, err)
	}
	return nil
}
