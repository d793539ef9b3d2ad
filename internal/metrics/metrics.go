// Package metrics exposes the counters and gauges the pipeline engine
// updates on every cycle, served over /metrics for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "release_monitor_cycles_total",
		Help: "Polling cycles completed, labeled by outcome.",
	}, []string{"result"})

	ObjectsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "release_monitor_objects_processed_total",
		Help: "Candidate objects processed, labeled by outcome.",
	}, []string{"result"})

	WebhookDeliveryFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "release_monitor_webhook_delivery_failures_total",
		Help: "Webhook deliveries that did not succeed.",
	})

	LastCycleDurationSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "release_monitor_last_cycle_duration_seconds",
		Help: "Wall-clock duration of the most recently completed polling cycle.",
	})
)

// Serve starts a /metrics endpoint on addr in the background. A failure to
// bind is logged by the caller via the returned error channel's first (and
// only) value; Serve itself never blocks.
func Serve(addr string) <-chan error {
	errCh := make(chan error, 1)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		errCh <- http.ListenAndServe(addr, mux)
	}()
	return errCh
}
