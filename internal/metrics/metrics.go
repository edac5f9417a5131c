// Package metrics provides Prometheus metrics for the demo stack.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	serviceUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "demostack",
		Subsystem: "stack",
		Name:      "service_up",
		Help:      "1 when the service is running, 0 otherwise",
	}, []string{"service"})

	restartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "demostack",
		Subsystem: "stack",
		Name:      "restarts_total",
		Help:      "Supervisor relaunches per collector",
	}, []string{"collector"})

	portAllocationAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "demostack",
		Subsystem: "ports",
		Name:      "allocation_attempts_total",
		Help:      "Port candidates probed per service",
	}, []string{"service"})

	collectorLinesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "demostack",
		Subsystem: "collect",
		Name:      "lines_total",
		Help:      "Lines captured per collector",
	}, []string{"collector"})
)

// SetServiceUp records whether a service is currently running.
func SetServiceUp(service string, up bool) {
	v := 0.0
	if up {
		v = 1.0
	}
	serviceUp.WithLabelValues(service).Set(v)
}

// IncRestarts counts one supervisor relaunch.
func IncRestarts(collector string) {
	restartsTotal.WithLabelValues(collector).Inc()
}

// AddPortAllocationAttempts counts candidates probed during a lease.
func AddPortAllocationAttempts(service string, attempts int) {
	portAllocationAttempts.WithLabelValues(service).Add(float64(attempts))
}

// IncCollectorLines counts one captured line.
func IncCollectorLines(collector string) {
	collectorLinesTotal.WithLabelValues(collector).Inc()
}

// HTTPHandler returns the Prometheus metrics HTTP handler.
// This collects all promauto-registered metrics automatically.
func HTTPHandler() http.Handler {
	return promhttp.Handler()
}
