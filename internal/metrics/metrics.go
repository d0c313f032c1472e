// Package metrics exposes Prometheus collectors for reservations and dispatch.
//
// Collectors are package-level and registered via Register. The Inc*/Observe*
// helpers are no-ops until Register succeeds, so library code can call them
// unconditionally (tests, CLI one-shots).
package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	regOK atomic.Bool

	reservationsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "schedbot",
			Subsystem: "reservation",
			Name:      "created_total",
			Help:      "Number of reservations created.",
		},
	)
	reservationsDeleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "schedbot",
			Subsystem: "reservation",
			Name:      "deleted_total",
			Help:      "Number of delete operations that removed something, by kind (entry|bucket).",
		}, []string{"kind"},
	)
	dispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "schedbot",
			Subsystem: "dispatch",
			Name:      "total",
			Help:      "Dispatch attempts by account and result (sent|failed).",
		}, []string{"account", "result"},
	)
	tickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "schedbot",
			Subsystem: "tick",
			Name:      "duration_seconds",
			Help:      "Wall time of one account tick, including all sends.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// Register registers all collectors with r.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{reservationsCreated, reservationsDeleted, dispatches, tickDuration}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
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

// Handler serves the default gatherer.
func Handler() http.Handler { return promhttp.Handler() }

func IncCreated() {
	if regOK.Load() {
		reservationsCreated.Inc()
	}
}

func IncDeleted(kind string) {
	if regOK.Load() {
		reservationsDeleted.WithLabelValues(kind).Inc()
	}
}

func IncDispatch(account, result string) {
	if regOK.Load() {
		dispatches.WithLabelValues(account, result).Inc()
	}
}

func ObserveTick(seconds float64) {
	if regOK.Load() {
		tickDuration.Observe(seconds)
	}
}
