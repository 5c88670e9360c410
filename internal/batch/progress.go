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
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/tombee/regress/internal/executor"
)

var (
	workerStyle  = lipgloss.NewStyle().Faint(true)
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	idleStyle    = lipgloss.NewStyle().Faint(true)
)

// ProgressTracker maintains one display slot per worker and redraws the
// whole block after each status change. Workers write their slot;
// rendering happens under the same lock so updates never interleave.
// All methods are nil-safe so progress display stays optional.
type ProgressTracker struct {
	mu       sync.Mutex
	slots    []slot
	out      io.Writer
	rendered bool
}

type slot struct {
	workflowID string
	status     executor.Status
	idle       bool
}

// NewProgressTracker creates a tracker with one slot per worker.
func NewProgressTracker(workers int, out io.Writer) *ProgressTracker {
	slots := make([]slot, workers)
	for i := range slots {
		slots[i].idle = true
	}
	return &ProgressTracker{slots: slots, out: out}
}

// Update publishes a worker's currently-running workflow and its
// last-known status, then redraws all slots.
func (p *ProgressTracker) Update(worker int, workflowID string, status executor.Status) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if worker < 0 || worker >= len(p.slots) {
		return
	}
	p.slots[worker] = slot{workflowID: workflowID, status: status}
	p.render()
}

// Done marks a worker's slot idle after it exits.
func (p *ProgressTracker) Done(worker int) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if worker < 0 || worker >= len(p.slots) {
		return
	}
	p.slots[worker] = slot{idle: true}
	p.render()
}

// render redraws the slot block in place. Caller holds p.mu.
func (p *ProgressTracker) render() {
	if p.rendered {
		fmt.Fprintf(p.out, "\x1b[%dA", len(p.slots))
	}
	for i, s := range p.slots {
		fmt.Fprintf(p.out, "\x1b[2K%s %s\n", workerStyle.Render(fmt.Sprintf("worker %d:", i)), renderSlot(s))
	}
	p.rendered = true
}

func renderSlot(s slot) string {
	if s.idle {
		return idleStyle.Render("idle")
	}
	label := fmt.Sprintf("%s [%s]", s.workflowID, s.status)
	switch s.status {
	case executor.StatusRunning:
		return runningStyle.Render(label)
	case executor.StatusSuccess:
		return successStyle.Render(label)
	case executor.StatusWarning:
		return warningStyle.Render(label)
	case executor.StatusError:
		return errorStyle.Render(label)
	default:
		return label
	}
}
