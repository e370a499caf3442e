// Package metrics holds the relay's Prometheus collectors.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	DeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_deliveries_total",
		Help: "Per-target delivery outcomes.",
	}, []string{"mode", "via", "result", "kind"})

	CyclesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_cycles_total",
		Help: "Broadcast cycles by status (ok, skipped, error).",
	}, []string{"status"})

	CycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_cycle_duration_seconds",
		Help:    "Wall time of one broadcast cycle.",
		Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
	})

	NextCycleSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_next_cycle_wait_seconds",
		Help: "Wait before the next cycle as last computed by the scheduler.",
	})

	GatewayRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relay_gateway_request_duration_seconds",
		Help:    "Duration of MTProto requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "status"})

	PanelActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_panel_actions_total",
		Help: "Operator panel actions handled.",
	}, []string{"action"})
)

var registerOnce sync.Once

// MustRegister registers all collectors once; later calls are no-ops.
func MustRegister(registerer prometheus.Registerer) {
	registerOnce.Do(func() {
		registerer.MustRegister(
			DeliveriesTotal,
			CyclesTotal,
			CycleDuration,
			NextCycleSeconds,
			GatewayRequestDuration,
			PanelActionsTotal,
		)
	})
}

func ObserveDelivery(mode, via string, ok bool, kind string) {
	result := "ok"
	if !ok {
		result = "fail"
	}
	DeliveriesTotal.WithLabelValues(mode, via, result, kind).Inc()
}

func ObserveCycle(status string, d time.Duration) {
	CyclesTotal.WithLabelValues(status).Inc()
	if status != "skipped" {
		CycleDuration.Observe(d.Seconds())
	}
}

func ObserveGatewayRequest(operation string, started time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	GatewayRequestDuration.WithLabelValues(operation, status).Observe(time.Since(started).Seconds())
}
