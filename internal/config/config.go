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

// Package config loads and validates regression-run configuration from
// an optional YAML file plus environment variables. Flag overrides are
// applied by the CLI layer after Load.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	regresserrors "github.com/tombee/regress/pkg/errors"
)

var (
	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

// Config represents the complete regression-run configuration.
type Config struct {
	// EngineURL is the base URL of the workflow execution engine.
	// Environment: REGRESS_ENGINE_URL
	EngineURL string `yaml:"engine_url"`

	// WorkflowsDir holds the workflow definitions to run, one JSON file
	// per workflow.
	// Environment: REGRESS_WORKFLOWS_DIR
	WorkflowsDir string `yaml:"workflows_dir"`

	// Concurrency is the worker pool size. Default: 1.
	Concurrency int `yaml:"concurrency"`

	// Retries is the retry budget for warned/failed workflows. Default: 0.
	// Environment: REGRESS_RETRIES
	Retries int `yaml:"retries"`

	// Timeout bounds a single workflow execution. Default: 5m.
	Timeout time.Duration `yaml:"timeout"`

	// IDs restricts the run to the listed workflow ids (comma-separated
	// in file/env form).
	IDs []string `yaml:"ids,omitempty"`

	// Skip excludes the listed workflow ids.
	Skip []string `yaml:"skip,omitempty"`

	// Filter is an optional expression evaluated per workflow; only
	// workflows for which it is true are run.
	Filter string `yaml:"filter,omitempty"`

	// SnapshotDir, when set, persists normalized execution output there.
	SnapshotDir string `yaml:"snapshot_dir,omitempty"`

	// CompareDir, when set, enables comparison against the baselines
	// stored there.
	CompareDir string `yaml:"compare_dir,omitempty"`

	// Shallow collapses node output to shape markers before comparison.
	Shallow bool `yaml:"shallow"`

	// CISummary enables the short pipeline-integration message.
	CISummary bool `yaml:"ci_summary"`

	// Output is the report file path; empty writes the report to stdout.
	Output string `yaml:"output,omitempty"`

	// ShortOutput drops successful execution detail from the report.
	ShortOutput bool `yaml:"short_output"`

	// Debug enables debug logging and the per-worker progress display.
	// Environment: REGRESS_DEBUG
	Debug bool `yaml:"debug"`

	// MetricsAddr, when set, serves Prometheus metrics on that address
	// for the duration of the run.
	// Environment: REGRESS_METRICS_ADDR
	MetricsAddr string `yaml:"metrics_addr,omitempty"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		EngineURL:    "http://localhost:5678",
		WorkflowsDir: "workflows",
		Concurrency:  1,
		Retries:      0,
		Timeout:      5 * time.Minute,
	}
}

// Load builds the effective configuration: defaults, then the YAML file
// if a path is given, then environment overrides, then validation.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &regresserrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &regresserrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}

	return cfg, nil
}

// applyDefaults fills zero values left by a minimal config file.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.EngineURL == "" {
		c.EngineURL = defaults.EngineURL
	}
	if c.WorkflowsDir == "" {
		c.WorkflowsDir = defaults.WorkflowsDir
	}
	if c.Concurrency == 0 {
		c.Concurrency = defaults.Concurrency
	}
	if c.Timeout == 0 {
		c.Timeout = defaults.Timeout
	}
}

func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("REGRESS_ENGINE_URL"); val != "" {
		c.EngineURL = val
	}
	if val := os.Getenv("REGRESS_WORKFLOWS_DIR"); val != "" {
		c.WorkflowsDir = val
	}
	if val := os.Getenv("REGRESS_CONCURRENCY"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Concurrency = n
		}
	}
	if val := os.Getenv("REGRESS_RETRIES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Retries = n
		}
	}
	if val := os.Getenv("REGRESS_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Timeout = d
		}
	}
	if val := os.Getenv("REGRESS_METRICS_ADDR"); val != "" {
		c.MetricsAddr = val
	}
	if val := os.Getenv("REGRESS_DEBUG"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Debug = b
		}
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []string

	if u, err := url.Parse(c.EngineURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("engine_url must be an absolute URL, got %q", c.EngineURL))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Sprintf("concurrency must be at least 1, got %d", c.Concurrency))
	}
	if c.Retries < 0 {
		errs = append(errs, fmt.Sprintf("retries must not be negative, got %d", c.Retries))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Sprintf("timeout must be positive, got %v", c.Timeout))
	}
	for _, id := range append(append([]string(nil), c.IDs...), c.Skip...) {
		if strings.TrimSpace(id) == "" {
			errs = append(errs, "workflow id lists must not contain empty entries")
			break
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}
	return nil
}

// ParseIDList splits a comma-separated id list, trimming whitespace and
// dropping empty entries.
func ParseIDList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	return ids
}
