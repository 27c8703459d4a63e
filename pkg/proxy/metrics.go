package proxy

import (
	"github.com/LeeDigitalWorks/zapgate/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RequestsTotal counts handled requests by method, decision and response status
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapgate",
		Name:      "requests_total",
		Help:      "Number of proxied requests",
	}, []string{"method", "decision", "status_code"})

	RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "zapgate",
		Name:      "request_duration_seconds",
		Help:      "Duration of proxied requests including the upstream round trip",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "decision"})

	// RangeAttemptsTotal counts upstream attempts for range requests.
	// outcome: content_range/missing_content_range/not_ok
	RangeAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapgate",
		Subsystem: "range",
		Name:      "attempts_total",
		Help:      "Upstream attempts made for range requests",
	}, []string{"outcome"})

	// RangeExhaustedTotal counts range requests answered without Content-Range
	// after every attempt
	RangeExhaustedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "zapgate",
		Subsystem: "range",
		Name:      "exhausted_total",
		Help:      "Range requests that fell back to the full object",
	})

	UpstreamErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "zapgate",
		Subsystem: "upstream",
		Name:      "errors_total",
		Help:      "Upstream round trips that failed without a response",
	})

	FilterErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapgate",
		Subsystem: "filter",
		Name:      "errors_total",
		Help:      "Requests stopped by a filter",
	}, []string{"filter", "code"})

	FilterRunDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "zapgate",
		Subsystem: "filter",
		Name:      "run_duration_seconds",
		Help:      "Duration of filter runs in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"filter"})

	BodySpilledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "zapgate",
		Subsystem: "body",
		Name:      "spilled_total",
		Help:      "Request bodies too large for memory that were buffered on disk",
	})
)

func init() {
	debug.Registry().MustRegister(
		RequestsTotal,
		RequestDuration,
		RangeAttemptsTotal,
		RangeExhaustedTotal,
		UpstreamErrorsTotal,
		FilterErrorsTotal,
		FilterRunDuration,
		BodySpilledTotal,
	)
}
