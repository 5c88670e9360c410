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

package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tombee/regress/pkg/errors"
	"github.com/tombee/regress/pkg/workflow"
)

// Client is an HTTP implementation of Engine.
//
// The engine is expected to expose:
//
//	POST {base}/workflows/run           -> {"executionId": "..."}
//	GET  {base}/executions/{id}         -> ExecutionRecord (404 = unknown)
//
// AwaitCompletion polls until the record reports completion.
type Client struct {
	baseURL    string
	httpClient *http.Client
	poll       time.Duration
	logger     *slog.Logger
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithPollInterval overrides the completion poll interval.
func WithPollInterval(d time.Duration) ClientOption {
	return func(c *Client) { c.poll = d }
}

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates an engine client for the given base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		poll:       time.Second,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type runRequest struct {
	Workflow  *workflow.Descriptor `json:"workflow"`
	StartNode string               `json:"startNode"`
}

type runResponse struct {
	ExecutionID string `json:"executionId"`
}

// Run implements Engine.
func (c *Client) Run(ctx context.Context, wf *workflow.Descriptor, startNode string) (string, error) {
	body, err := json.Marshal(runRequest{Workflow: wf, StartNode: startNode})
	if err != nil {
		return "", fmt.Errorf("encoding run request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/workflows/run", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &errors.EngineError{Operation: "run workflow", Message: err.Error(), Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &errors.EngineError{
			Operation:  "run workflow",
			StatusCode: resp.StatusCode,
			Message:    readErrorBody(resp.Body),
		}
	}

	var out runResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &errors.EngineError{Operation: "run workflow", Message: "malformed response", Cause: err}
	}
	if out.ExecutionID == "" {
		return "", &errors.EngineError{Operation: "run workflow", Message: "engine returned no execution id"}
	}

	c.logger.Debug("execution started",
		slog.String("workflow_id", wf.ID),
		slog.String("execution_id", out.ExecutionID))

	return out.ExecutionID, nil
}

// AwaitCompletion implements Engine. It polls the execution until the
// engine reports it finished (or errored), or the context is cancelled.
func (c *Client) AwaitCompletion(ctx context.Context, executionID string) (*ExecutionRecord, error) {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		rec, done, err := c.fetch(ctx, executionID)
		if err != nil {
			return nil, err
		}
		if done {
			return rec, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// fetch retrieves the execution record once. done reports whether the
// execution has reached a terminal state (including "not found").
func (c *Client) fetch(ctx context.Context, executionID string) (*ExecutionRecord, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/executions/"+executionID, nil)
	if err != nil {
		return nil, false, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, &errors.EngineError{Operation: "fetch execution", Message: err.Error(), Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, true, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, false, &errors.EngineError{
			Operation:  "fetch execution",
			StatusCode: resp.StatusCode,
			Message:    readErrorBody(resp.Body),
		}
	}

	var rec ExecutionRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, false, &errors.EngineError{Operation: "fetch execution", Message: "malformed response", Cause: err}
	}

	done := rec.Finished || rec.Data.Error != nil || !rec.StoppedAt.IsZero()
	return &rec, done, nil
}

// readErrorBody extracts a short error message from a response body.
func readErrorBody(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil || len(data) == 0 {
		return ""
	}
	return strings.TrimSpace(string(data))
}
