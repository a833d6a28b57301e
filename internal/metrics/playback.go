// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics provides Prometheus metrics for the embytv playback core.
// No item, session or user ids in labels.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NegotiationTotal counts PlaybackInfo negotiations by result (ok|no_sources|error).
	NegotiationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embytv_negotiation_total",
		Help: "Total number of PlaybackInfo negotiations, by result.",
	}, []string{"result"})

	// NegotiationDuration observes round-trip time of PlaybackInfo negotiations.
	NegotiationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "embytv_negotiation_duration_seconds",
		Help:    "PlaybackInfo negotiation latency.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	// ProfileHevcForcedTotal counts negotiations where HEVC was disabled for lack of hardware support.
	ProfileHevcForcedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "embytv_profile_hevc_forced_off_total",
		Help: "Total number of device profiles built with HEVC forced off by capabilities.",
	})

	// PlayMethodTotal counts resolved play methods.
	PlayMethodTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embytv_play_method_total",
		Help: "Total number of resolved playbacks, by play method.",
	}, []string{"method"})

	// URLRewriteTotal counts stream URLs routed through the stream endpoint.
	URLRewriteTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "embytv_stream_url_rewrite_total",
		Help: "Total number of stream URLs rewritten for a non-default track selection.",
	})

	// TrackMatchTotal counts track selections by type and matching strategy (none on miss).
	TrackMatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embytv_track_match_total",
		Help: "Total number of track selections, by track type and strategy.",
	}, []string{"type", "strategy"})

	// SessionReportTotal counts session reports by event and result.
	SessionReportTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embytv_session_report_total",
		Help: "Total number of session reports, by event (playing|progress|stopped) and result (ok|error).",
	}, []string{"event", "result"})

	// SessionResolveTotal counts diagnostic session resolutions (found|not_found|error).
	SessionResolveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embytv_session_resolve_total",
		Help: "Total number of diagnostic server session resolutions, by result.",
	}, []string{"result"})

	// FallbackTotal counts transcode fallback outcomes (recovered|suppressed|failed).
	FallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embytv_transcode_fallback_total",
		Help: "Total number of transcode fallback attempts, by outcome.",
	}, []string{"outcome"})

	// ActivePlaybacks tracks playback instances that have not been torn down.
	ActivePlaybacks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "embytv_active_playbacks",
		Help: "Current number of live playback instances.",
	})

	// UpstreamRequestTotal counts Emby API requests by operation and outcome class.
	UpstreamRequestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embytv_upstream_request_total",
		Help: "Total number of Emby API requests, by operation and outcome.",
	}, []string{"operation", "outcome"})

	// UpstreamBreakerState is one-hot per breaker: the active state reads 1.
	UpstreamBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "embytv_upstream_breaker_state",
		Help: "Emby upstream breaker state, one series per state set to 1 when active.",
	}, []string{"breaker", "state"})

	// UpstreamBreakerTripsTotal counts breaker openings by cause.
	UpstreamBreakerTripsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embytv_upstream_breaker_trips_total",
		Help: "Total number of times the Emby upstream breaker opened, by reason.",
	}, []string{"breaker", "reason"})
)

var breakerStates = []string{"closed", "half-open", "open"}

// SetUpstreamBreakerState marks state as the only active state of breaker.
func SetUpstreamBreakerState(breaker, state string) {
	for _, s := range breakerStates {
		v := 0.0
		if s == state {
			v = 1
		}
		UpstreamBreakerState.WithLabelValues(breaker, s).Set(v)
	}
}

func RecordUpstreamBreakerTrip(breaker, reason string) {
	UpstreamBreakerTripsTotal.WithLabelValues(breaker, reason).Inc()
}
