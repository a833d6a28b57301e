// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package negotiate turns probed capabilities into a device profile, asks the
// server how to play an item, and resolves the answer into a stream URL.
package negotiate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/embytv/internal/capabilities"
	"github.com/ManuGH/embytv/internal/emby"
	xglog "github.com/ManuGH/embytv/internal/log"
	"github.com/ManuGH/embytv/internal/metrics"
	"github.com/ManuGH/embytv/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrNoMediaSources is returned when the server offers nothing to play.
// Its text is the user-visible message.
var ErrNoMediaSources = errors.New("failed to get playback info")

// PlaybackInfoClient is the server call the negotiator depends on.
type PlaybackInfoClient interface {
	PlaybackInfo(ctx context.Context, itemID string, q emby.PlaybackInfoQuery, profile *emby.DeviceProfile) (*emby.PlaybackInfoResponse, error)
}

// Options configures bitrate ceilings.
type Options struct {
	MaxStreamingBitrate int64
	MaxStaticBitrate    int64
}

// Request is one negotiation.
type Request struct {
	ItemID             string
	StartPositionTicks int64
	AudioIndex         *int
	SubtitleIndex      *int
	MediaSourceID      string
	DisableHevc        bool
}

// Result is the negotiated outcome.
type Result struct {
	MediaSources  []emby.MediaSourceInfo
	PlaySessionID string
	Profile       *emby.DeviceProfile
	Decision      ProfileDecision
}

// Negotiator issues PlaybackInfo requests. Safe for concurrent use.
type Negotiator struct {
	client PlaybackInfoClient
	caps   capabilities.Source
	opts   Options
	tracer trace.Tracer
}

// New creates a negotiator.
func New(client PlaybackInfoClient, caps capabilities.Source, opts Options) *Negotiator {
	if opts.MaxStreamingBitrate <= 0 {
		opts.MaxStreamingBitrate = DefaultMaxStreamingBitrate
	}
	if opts.MaxStaticBitrate <= 0 {
		opts.MaxStaticBitrate = DefaultMaxStaticBitrate
	}
	return &Negotiator{
		client: client,
		caps:   caps,
		opts:   opts,
		tracer: telemetry.Tracer("embytv/negotiate"),
	}
}

// GetPlaybackInfo builds a fresh device profile and sends exactly one
// PlaybackInfo request. There is no retry loop at this level.
func (n *Negotiator) GetPlaybackInfo(ctx context.Context, req Request) (*Result, error) {
	caps := n.caps.Probe()
	profile, decision := BuildDeviceProfile(caps, ProfileOptions{
		DisableHevc:         req.DisableHevc,
		MaxStreamingBitrate: n.opts.MaxStreamingBitrate,
		MaxStaticBitrate:    n.opts.MaxStaticBitrate,
	})

	ctx, span := n.tracer.Start(ctx, "negotiate.playback_info",
		trace.WithAttributes(telemetry.NegotiationAttributes(req.ItemID, req.StartPositionTicks, decision.DisableHevc, decision.FinalLevel)...))
	defer span.End()

	logger := xglog.WithComponentFromContext(ctx, "negotiate").With().
		Str(xglog.FieldItemID, req.ItemID).
		Bool("disable_hevc", decision.DisableHevc).
		Int(xglog.FieldLevel, decision.FinalLevel).
		Logger()

	if decision.HevcForced {
		metrics.ProfileHevcForcedTotal.Inc()
		logger.Debug().Str(xglog.FieldEvent, "negotiate.hevc_forced_off").Msg("no HEVC decoder, advertising H.264 only")
	}

	start := time.Now()
	resp, err := n.client.PlaybackInfo(ctx, req.ItemID, emby.PlaybackInfoQuery{
		StartTimeTicks:      req.StartPositionTicks,
		MaxStreamingBitrate: n.opts.MaxStreamingBitrate,
		AudioStreamIndex:    req.AudioIndex,
		SubtitleStreamIndex: req.SubtitleIndex,
		MediaSourceID:       req.MediaSourceID,
	}, profile)
	metrics.NegotiationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.NegotiationTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn().Err(err).Str(xglog.FieldEvent, "negotiate.failed").Msg("playback info request failed")
		return nil, fmt.Errorf("playback info for %s: %w", req.ItemID, err)
	}

	if len(resp.MediaSources) == 0 {
		metrics.NegotiationTotal.WithLabelValues("no_sources").Inc()
		span.SetStatus(codes.Error, "no media sources")
		logger.Warn().Str(xglog.FieldEvent, "negotiate.no_sources").Str("error_code", resp.ErrorCode).Msg("server returned no media sources")
		if resp.ErrorCode != "" {
			return nil, fmt.Errorf("%w: %s", ErrNoMediaSources, resp.ErrorCode)
		}
		return nil, ErrNoMediaSources
	}

	sources := make([]emby.MediaSourceInfo, len(resp.MediaSources))
	copy(sources, resp.MediaSources)
	for i := range sources {
		if sources[i].PlaySessionID == "" {
			sources[i].PlaySessionID = resp.PlaySessionID
		}
	}

	metrics.NegotiationTotal.WithLabelValues("ok").Inc()
	span.SetAttributes(attribute.Int(telemetry.SourceCountKey, len(sources)))
	logger.Info().
		Str(xglog.FieldEvent, "negotiate.ok").
		Str(xglog.FieldPlaySessionID, resp.PlaySessionID).
		Int("sources", len(sources)).
		Msg("playback negotiated")

	return &Result{
		MediaSources:  sources,
		PlaySessionID: resp.PlaySessionID,
		Profile:       profile,
		Decision:      decision,
	}, nil
}

// Source returns the media source with the given id, or the first one.
func (r *Result) Source(mediaSourceID string) *emby.MediaSourceInfo {
	if len(r.MediaSources) == 0 {
		return nil
	}
	for i := range r.MediaSources {
		if mediaSourceID != "" && r.MediaSources[i].ID == mediaSourceID {
			return &r.MediaSources[i]
		}
	}
	return &r.MediaSources[0]
}
