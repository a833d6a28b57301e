// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestDuration observes API latency by route pattern.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "embytv_http_request_duration_seconds",
		Help:    "HTTP request latencies in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	// HTTPRequestsInFlight is the number of requests being served.
	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "embytv_http_requests_in_flight",
		Help: "Current number of HTTP requests being served",
	})

	// PlaybackRequestShared counts API negotiations answered by a joined in-flight call.
	PlaybackRequestShared = promauto.NewCounter(prometheus.CounterOpts{
		Name: "embytv_api_playback_shared_total",
		Help: "Playback API requests that joined an identical in-flight negotiation.",
	})
)
