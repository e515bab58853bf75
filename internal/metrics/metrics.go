package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors for supervisor operations. They are
// registered via Register.
var (
	regOK atomic.Bool

	supervisorStarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fsproxy",
			Subsystem: "supervisor",
			Name:      "starts_total",
			Help:      "Number of successful workload starts.",
		},
	)
	supervisorStops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fsproxy",
			Subsystem: "supervisor",
			Name:      "stops_total",
			Help:      "Number of completed stop operations.",
		},
	)
	supervisorForcedKills = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fsproxy",
			Subsystem: "supervisor",
			Name:      "forced_kills_total",
			Help:      "Number of terminations that escalated past the graceful phase.",
		},
	)
	supervisorRestarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fsproxy",
			Subsystem: "supervisor",
			Name:      "restarts_total",
			Help:      "Number of restart operations that respawned the server.",
		},
	)
	workloadUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fsproxy",
			Subsystem: "server",
			Name:      "up",
			Help:      "1 while the supervised server workload is serving.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{supervisorStarts, supervisorStops, supervisorForcedKills, supervisorRestarts, workloadUp}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler serving Prometheus metrics for the
// DefaultGatherer. The caller wires the route.
func Handler() http.Handler { return promhttp.Handler() }

// Lightweight helpers used by internal packages. They no-op if Register
// hasn't been called.

func IncStart() {
	if regOK.Load() {
		supervisorStarts.Inc()
	}
}

func IncStop() {
	if regOK.Load() {
		supervisorStops.Inc()
	}
}

func IncForcedKill() {
	if regOK.Load() {
		supervisorForcedKills.Inc()
	}
}

func IncRestart() {
	if regOK.Load() {
		supervisorRestarts.Inc()
	}
}

func SetUp(up bool) {
	if regOK.Load() {
		if up {
			workloadUp.Set(1)
		} else {
			workloadUp.Set(0)
		}
	}
}
