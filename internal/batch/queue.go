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
	"sync"

	"github.com/tombee/regress/pkg/workflow"
)

// queue is the shared work queue drained by the worker pool. Pops are
// mutually exclusive so each workflow is claimed by exactly one worker,
// in the original workflow ordering.
type queue struct {
	mu    sync.Mutex
	items []workflow.Descriptor
}

func newQueue(items []workflow.Descriptor) *queue {
	return &queue{items: items}
}

// pop claims the next workflow. ok is false when the queue is empty.
func (q *queue) pop() (workflow.Descriptor, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return workflow.Descriptor{}, false
	}
	wf := q.items[0]
	q.items = q.items[1:]
	return wf, true
}

// remaining returns the number of unclaimed workflows.
func (q *queue) remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
