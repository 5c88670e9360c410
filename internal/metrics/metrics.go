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

// Package metrics exposes Prometheus instrumentation for batch runs.
// Long batches can serve /metrics while executing so progress is
// observable from outside the process. All Recorder methods are nil-safe
// so instrumentation stays optional.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the batch run metrics on a private registry.
type Recorder struct {
	registry   *prometheus.Registry
	executions *prometheus.CounterVec
	duration   prometheus.Histogram
	inFlight   prometheus.Gauge
	retryPass  prometheus.Counter
}

// NewRecorder creates a Recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "regress_executions_total",
			Help: "Workflow executions by outcome status.",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "regress_execution_duration_seconds",
			Help:    "Wall-clock duration of workflow executions.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 11),
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "regress_executions_in_flight",
			Help: "Workflow executions currently running.",
		}),
		retryPass: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "regress_retry_passes_total",
			Help: "Retry passes performed over failed or warned workflows.",
		}),
	}
	r.registry.MustRegister(r.executions, r.duration, r.inFlight, r.retryPass)
	return r
}

// Registry returns the recorder's registry for embedding callers.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ExecutionStarted marks one execution as in flight.
func (r *Recorder) ExecutionStarted() {
	if r == nil {
		return
	}
	r.inFlight.Inc()
}

// ExecutionFinished records one finished execution.
func (r *Recorder) ExecutionFinished(status string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.inFlight.Dec()
	r.executions.WithLabelValues(status).Inc()
	r.duration.Observe(elapsed.Seconds())
}

// RetryPass records one retry pass over the failing subset.
func (r *Recorder) RetryPass() {
	if r == nil {
		return
	}
	r.retryPass.Inc()
}

// Serve exposes /metrics on addr until the context is cancelled.
func (r *Recorder) Serve(ctx context.Context, addr string) error {
	if r == nil {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
