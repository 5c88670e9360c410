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
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/regress/pkg/errors"
)

func TestStartNode(t *testing.T) {
	tests := []struct {
		name    string
		nodes   []Node
		want    string
		wantErr bool
	}{
		{
			name: "webhook trigger",
			nodes: []Node{
				{Name: "Set", Type: "base.set"},
				{Name: "Webhook", Type: "base.webhookTrigger"},
			},
			want: "Webhook",
		},
		{
			name: "explicit start node",
			nodes: []Node{
				{Name: "Start", Type: "base.start"},
				{Name: "HTTP", Type: "base.httpRequest"},
			},
			want: "Start",
		},
		{
			name: "first trigger wins",
			nodes: []Node{
				{Name: "Cron", Type: "base.cronTrigger"},
				{Name: "Manual", Type: "base.manualTrigger"},
			},
			want: "Cron",
		},
		{
			name: "no start node",
			nodes: []Node{
				{Name: "Set", Type: "base.set"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := Descriptor{ID: "1", Name: tt.name, Nodes: tt.nodes}
			got, err := wf.StartNode()
			if tt.wantErr {
				require.Error(t, err)
				var notFound *errors.NotFoundError
				assert.True(t, stderrors.As(err, &notFound))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNodeTypeCounts(t *testing.T) {
	wf := Descriptor{
		ID: "7",
		Nodes: []Node{
			{Name: "A", Type: "base.set"},
			{Name: "B", Type: "base.set"},
			{Name: "C", Type: "base.httpRequest"},
		},
	}

	assert.Equal(t, map[string]int{"base.set": 2, "base.httpRequest": 1}, wf.NodeTypeCounts())
	assert.Equal(t, []string{"base.set", "base.httpRequest"}, wf.NodeTypes())
}
