// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fallback retries a failed playback once through server transcoding.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ManuGH/embytv/internal/emby"
	xglog "github.com/ManuGH/embytv/internal/log"
	"github.com/ManuGH/embytv/internal/metrics"
	"github.com/ManuGH/embytv/internal/negotiate"
	"github.com/rs/zerolog"
)

var (
	// ErrFallbackExhausted is returned for errors after the one allowed fallback.
	ErrFallbackExhausted = errors.New("transcode fallback already attempted")
	// ErrNoUsableSource is returned when re-negotiation offers nothing playable.
	ErrNoUsableSource = errors.New("fallback negotiation returned no usable source")
)

// Negotiator re-requests playback info.
type Negotiator interface {
	GetPlaybackInfo(ctx context.Context, req negotiate.Request) (*negotiate.Result, error)
}

// EncodingStopper cancels a server-side transcode.
type EncodingStopper interface {
	StopActiveEncodings(ctx context.Context, playSessionID string) error
}

// Target swaps the player onto the fallback source, seeks and resumes.
type Target interface {
	ApplyFallback(ctx context.Context, out Outcome) error
}

// State is what the controller needs to know about the failed playback.
type State struct {
	ItemID            string
	MediaSourceID     string
	PlaySessionID     string
	PositionTicks     int64
	TranscodingActive bool
	Tracks            negotiate.Tracks
}

// Outcome is the source the player was moved to.
type Outcome struct {
	Result        *negotiate.Result
	Source        emby.MediaSourceInfo
	Resolution    negotiate.Resolution
	PlaySessionID string
	PositionTicks int64
}

// Controller is armed until its first fallback and fired afterwards.
type Controller struct {
	negotiator Negotiator
	stopper    EncodingStopper
	target     Target
	logger     zerolog.Logger

	mu    sync.Mutex
	fired bool
}

// New creates an armed controller.
func New(negotiator Negotiator, stopper EncodingStopper, target Target) *Controller {
	return &Controller{
		negotiator: negotiator,
		stopper:    stopper,
		target:     target,
		logger:     xglog.WithComponent("fallback"),
	}
}

// Fired reports whether the fallback has been used.
func (c *Controller) Fired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fired
}

// Reset re-arms the controller after an explicit track change or a new item.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fired = false
}

// OnPlaybackError handles a player error. The first call stops a running
// transcode, re-negotiates with HEVC disabled at the last position and hands
// the new source to the target. Later calls return ErrFallbackExhausted
// without touching the network.
func (c *Controller) OnPlaybackError(ctx context.Context, cause error, st State) (Outcome, error) {
	logger := xglog.WithContext(ctx, c.logger).With().
		Str(xglog.FieldItemID, st.ItemID).
		Str(xglog.FieldPlaySessionID, st.PlaySessionID).
		Logger()

	c.mu.Lock()
	if c.fired {
		c.mu.Unlock()
		metrics.FallbackTotal.WithLabelValues("suppressed").Inc()
		logger.Warn().Err(cause).Str(xglog.FieldEvent, "fallback.exhausted").Msg("playback failed again after transcode fallback")
		if cause == nil {
			return Outcome{}, ErrFallbackExhausted
		}
		return Outcome{}, fmt.Errorf("%w: %w", ErrFallbackExhausted, cause)
	}
	c.fired = true
	c.mu.Unlock()

	logger.Info().Err(cause).
		Str(xglog.FieldEvent, "fallback.start").
		Int64(xglog.FieldPositionTicks, st.PositionTicks).
		Msg("playback error, retrying with server transcoding")

	if st.TranscodingActive && st.PlaySessionID != "" {
		if err := c.stopper.StopActiveEncodings(ctx, st.PlaySessionID); err != nil {
			logger.Warn().Err(err).Str(xglog.FieldEvent, "fallback.stop_encodings_failed").Msg("could not stop active encoding")
		}
	}

	req := negotiate.Request{
		ItemID:             st.ItemID,
		StartPositionTicks: st.PositionTicks,
		MediaSourceID:      st.MediaSourceID,
		DisableHevc:        true,
	}
	if st.Tracks.Audio >= 0 {
		a := st.Tracks.Audio
		req.AudioIndex = &a
	}
	if st.Tracks.Subtitle != negotiate.IndexUnset {
		s := st.Tracks.Subtitle
		req.SubtitleIndex = &s
	}

	res, err := c.negotiator.GetPlaybackInfo(ctx, req)
	if err != nil {
		metrics.FallbackTotal.WithLabelValues("failed").Inc()
		logger.Error().Err(err).Str(xglog.FieldEvent, "fallback.negotiate_failed").Msg("fallback negotiation failed")
		return Outcome{}, fmt.Errorf("fallback negotiation: %w", err)
	}

	src := res.Source(st.MediaSourceID)
	resolution, err := negotiate.Resolve(src, st.Tracks, negotiate.ResolveOptions{})
	if err != nil {
		metrics.FallbackTotal.WithLabelValues("failed").Inc()
		logger.Error().Str(xglog.FieldEvent, "fallback.no_source").Msg("fallback negotiation returned no usable source")
		return Outcome{}, ErrNoUsableSource
	}

	out := Outcome{
		Result:        res,
		Source:        *src,
		Resolution:    resolution,
		PlaySessionID: src.PlaySessionID,
		PositionTicks: st.PositionTicks,
	}
	if err := c.target.ApplyFallback(ctx, out); err != nil {
		metrics.FallbackTotal.WithLabelValues("failed").Inc()
		logger.Error().Err(err).Str(xglog.FieldEvent, "fallback.apply_failed").Msg("could not switch player to fallback source")
		return Outcome{}, fmt.Errorf("apply fallback: %w", err)
	}

	metrics.FallbackTotal.WithLabelValues("recovered").Inc()
	logger.Info().
		Str(xglog.FieldEvent, "fallback.applied").
		Str(xglog.FieldPlayMethod, string(resolution.Method)).
		Str(xglog.FieldMediaSourceID, src.ID).
		Msg("switched to fallback source")
	return out, nil
}
