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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/regress/pkg/engine"
)

func TestStoreLoadMissing(t *testing.T) {
	store := NewStore(t.TempDir())

	rec, err := store.Load("1207")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())

	rec := &engine.ExecutionRecord{
		Finished: true,
		Data: engine.ResultData{
			RunData: map[string][]engine.TaskOutput{
				"Set": {{Data: map[string][]engine.Record{"main": {{JSON: map[string]any{"id": float64(1)}}}}}},
			},
		},
	}

	require.NoError(t, store.Save("1207", rec))
	assert.FileExists(t, store.Path("1207"))

	loaded, err := store.Load("1207")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, loaded.Finished)
	assert.Equal(t, rec.Data.RunData, loaded.Data.RunData)
}

func TestStoreSaveOverwrites(t *testing.T) {
	store := NewStore(t.TempDir())

	first := &engine.ExecutionRecord{Data: engine.ResultData{RunData: map[string][]engine.TaskOutput{
		"A": {{Data: map[string][]engine.Record{"main": {{JSON: map[string]any{"v": float64(1)}}}}}},
	}}}
	second := &engine.ExecutionRecord{Data: engine.ResultData{RunData: map[string][]engine.TaskOutput{
		"B": {{Data: map[string][]engine.Record{"main": {{JSON: map[string]any{"v": float64(2)}}}}}},
	}}}

	require.NoError(t, store.Save("7", first))
	require.NoError(t, store.Save("7", second))

	loaded, err := store.Load("7")
	require.NoError(t, err)
	assert.NotContains(t, loaded.Data.RunData, "A")
	assert.Contains(t, loaded.Data.RunData, "B")
}

func TestStoreSaveCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "snapshots")
	store := NewStore(dir)

	require.NoError(t, store.Save("1", &engine.ExecutionRecord{}))
	assert.DirExists(t, dir)
}

func TestStoreLoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	require.NoError(t, os.WriteFile(store.Path("9"), []byte("{broken"), 0o644))

	_, err := store.Load("9")
	require.Error(t, err)
}
