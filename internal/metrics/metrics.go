// Package metrics turns provisioning events into Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/imamik/nexus/internal/provisioning"
)

const namespace = "nexus"

// Recorder is a provisioning.Observer that records metrics in its own registry.
type Recorder struct {
	registry *prometheus.Registry

	runsTotal      *prometheus.CounterVec
	tasksTotal     *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec
	retriesTotal   *prometheus.CounterVec
	waitsTotal     *prometheus.CounterVec
	waitDuration   *prometheus.HistogramVec
	heartbeats     *prometheus.CounterVec
	conflictsTotal *prometheus.CounterVec
}

// NewRecorder creates a recorder with all collectors registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "run",
				Name:      "completed_total",
				Help:      "Total number of runs by result",
			},
			[]string{"result"},
		),
		tasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "task",
				Name:      "finished_total",
				Help:      "Total number of vendor tasks by terminal status and detail",
			},
			[]string{"vendor", "status", "detail"},
		),
		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "task",
				Name:      "duration_seconds",
				Help:      "Duration of vendor tasks in seconds",
				Buckets:   prometheus.ExponentialBuckets(5, 2, 10), // 5s to ~43min
			},
			[]string{"vendor"},
		),
		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "task",
				Name:      "retries_total",
				Help:      "Total number of retried driver steps",
			},
			[]string{"vendor", "step"},
		),
		waitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "challenge",
				Name:      "waits_total",
				Help:      "Total number of challenge waits by outcome",
			},
			[]string{"vendor", "challenge", "outcome"},
		),
		waitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "challenge",
				Name:      "wait_seconds",
				Help:      "Time spent waiting for a challenge to be completed",
				Buckets:   prometheus.LinearBuckets(15, 15, 20), // 15s to 5min
			},
			[]string{"vendor", "challenge"},
		),
		heartbeats: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "challenge",
				Name:      "heartbeats_total",
				Help:      "Total number of heartbeats emitted while waiting",
			},
			[]string{"vendor"},
		),
		conflictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "conflict",
				Name:      "resolved_total",
				Help:      "Total number of duplicate prompts by action",
			},
			[]string{"vendor", "action"},
		),
	}

	r.registry.MustRegister(
		r.runsTotal,
		r.tasksTotal,
		r.taskDuration,
		r.retriesTotal,
		r.waitsTotal,
		r.waitDuration,
		r.heartbeats,
		r.conflictsTotal,
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Event implements provisioning.Observer.
func (r *Recorder) Event(e provisioning.Event) {
	f := e.Fields
	switch e.Type {
	case provisioning.EventRunCompleted:
		r.runsTotal.WithLabelValues(f["result"]).Inc()

	case provisioning.EventTaskSucceeded, provisioning.EventTaskFailed, provisioning.EventTaskSkipped:
		detail := f["kind"]
		if detail == "" {
			detail = f["reason"]
		}
		r.tasksTotal.WithLabelValues(e.Vendor, f["status"], detail).Inc()
		if d, err := time.ParseDuration(f["duration"]); err == nil && d > 0 {
			r.taskDuration.WithLabelValues(e.Vendor).Observe(d.Seconds())
		}

	case provisioning.EventTaskRetry:
		r.retriesTotal.WithLabelValues(e.Vendor, f["step"]).Inc()

	case provisioning.EventWaitClosed:
		r.waitsTotal.WithLabelValues(e.Vendor, f["challenge"], f["outcome"]).Inc()
		if d, err := time.ParseDuration(f["elapsed"]); err == nil {
			r.waitDuration.WithLabelValues(e.Vendor, f["challenge"]).Observe(d.Seconds())
		}

	case provisioning.EventWaitHeartbeat:
		r.heartbeats.WithLabelValues(e.Vendor).Inc()

	case provisioning.EventConflictResolved:
		r.conflictsTotal.WithLabelValues(e.Vendor, f["action"]).Inc()
	}
}

// WithFields implements provisioning.Observer. Context fields are not labels.
func (r *Recorder) WithFields(map[string]string) provisioning.Observer { return r }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (r *Recorder) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
