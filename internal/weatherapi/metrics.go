package weatherapi

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherapi_requests_total",
			Help: "Upstream weather API requests by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherapi_request_duration_seconds",
			Help:    "Latency of upstream weather API requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

func init() { prometheus.MustRegister(requestCounter, requestDuration) }

func observe(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		if k := KindOf(err); k != "" {
			outcome = string(k)
		} else {
			outcome = "error"
		}
	}
	requestCounter.WithLabelValues(op, outcome).Inc()
	requestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
