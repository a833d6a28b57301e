// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package reporting

import (
	"context"
	"time"

	"github.com/ManuGH/embytv/internal/emby"
	xglog "github.com/ManuGH/embytv/internal/log"
	"github.com/ManuGH/embytv/internal/metrics"
	"github.com/rs/zerolog"
)

// SessionLister lists the server's active sessions.
type SessionLister interface {
	Sessions(ctx context.Context) ([]emby.SessionInfo, error)
}

const (
	DefaultResolveAttempts = 4
	DefaultResolveInterval = 1200 * time.Millisecond
)

// Resolver finds the server session backing a playback, for diagnostics only.
type Resolver struct {
	client   SessionLister
	attempts int
	interval time.Duration
	deviceID string
	logger   zerolog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithAttempts sets the poll budget.
func WithAttempts(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.attempts = n
		}
	}
}

// WithInterval sets the wait before each poll.
func WithInterval(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d >= 0 {
			r.interval = d
		}
	}
}

// WithDeviceID ignores sessions of other devices playing the same item.
func WithDeviceID(id string) ResolverOption {
	return func(r *Resolver) { r.deviceID = id }
}

// NewResolver creates a resolver.
func NewResolver(client SessionLister, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		client:   client,
		attempts: DefaultResolveAttempts,
		interval: DefaultResolveInterval,
		logger:   xglog.WithComponent("reporting"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve polls the session list. A Transcode session whose TranscodingInfo
// has not arrived yet does not count. It gives up quietly after the budget.
func (r *Resolver) Resolve(ctx context.Context, itemID, mediaSourceID string) (emby.SessionInfo, bool) {
	logger := xglog.WithContext(ctx, r.logger)
	timer := time.NewTimer(r.interval)
	defer timer.Stop()

	for attempt := 1; attempt <= r.attempts; attempt++ {
		select {
		case <-ctx.Done():
			return emby.SessionInfo{}, false
		case <-timer.C:
		}

		sessions, err := r.client.Sessions(ctx)
		if err != nil {
			metrics.SessionResolveTotal.WithLabelValues("error").Inc()
			logger.Debug().Err(err).Int(xglog.FieldAttempt, attempt).Msg("session list failed")
		} else if s, ok := r.match(sessions, itemID, mediaSourceID); ok {
			metrics.SessionResolveTotal.WithLabelValues("found").Inc()
			logger.Debug().
				Str(xglog.FieldEvent, "report.session_resolved").
				Str(xglog.FieldSessionID, s.ID).
				Int(xglog.FieldAttempt, attempt).
				Msg("server session resolved")
			return s, true
		}
		timer.Reset(r.interval)
	}

	metrics.SessionResolveTotal.WithLabelValues("not_found").Inc()
	logger.Debug().Str(xglog.FieldEvent, "report.session_not_found").Str(xglog.FieldItemID, itemID).Msg("server session not found")
	return emby.SessionInfo{}, false
}

func (r *Resolver) match(sessions []emby.SessionInfo, itemID, mediaSourceID string) (emby.SessionInfo, bool) {
	for _, s := range sessions {
		if r.deviceID != "" && s.DeviceID != "" && s.DeviceID != r.deviceID {
			continue
		}
		if !playsItem(s, itemID, mediaSourceID) {
			continue
		}
		if s.PlayState != nil && s.PlayState.PlayMethod == emby.PlayMethodTranscode && s.Transcoding == nil {
			continue
		}
		return s, true
	}
	return emby.SessionInfo{}, false
}

func playsItem(s emby.SessionInfo, itemID, mediaSourceID string) bool {
	if s.NowPlayingItem != nil && itemID != "" && s.NowPlayingItem.ID == itemID {
		return true
	}
	if mediaSourceID == "" {
		return false
	}
	if s.PlayState != nil && s.PlayState.MediaSourceID == mediaSourceID {
		return true
	}
	return s.NowPlayingItem != nil && s.NowPlayingItem.MediaSourceID == mediaSourceID
}
