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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/regress/pkg/workflow"
)

func descriptors(n int) []workflow.Descriptor {
	out := make([]workflow.Descriptor, n)
	for i := range out {
		out[i] = workflow.Descriptor{ID: fmt.Sprintf("%d", i+1), Name: fmt.Sprintf("wf-%d", i+1)}
	}
	return out
}

func TestQueueFIFO(t *testing.T) {
	q := newQueue(descriptors(3))

	wf, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, "1", wf.ID)

	wf, ok = q.pop()
	require.True(t, ok)
	assert.Equal(t, "2", wf.ID)

	assert.Equal(t, 1, q.remaining())

	wf, ok = q.pop()
	require.True(t, ok)
	assert.Equal(t, "3", wf.ID)

	_, ok = q.pop()
	assert.False(t, ok)
}

func TestQueueEachClaimedExactlyOnce(t *testing.T) {
	const workflows = 200
	const workers = 8

	q := newQueue(descriptors(workflows))

	var mu sync.Mutex
	claimed := make(map[string]int)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				wf, ok := q.pop()
				if !ok {
					return
				}
				mu.Lock()
				claimed[wf.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, claimed, workflows)
	for id, count := range claimed {
		assert.Equal(t, 1, count, "workflow %s claimed %d times", id, count)
	}
}
