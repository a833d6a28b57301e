// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package reporting keeps the server's session view in sync with playback.
package reporting

import (
	"context"
	"sync"
	"time"

	"github.com/ManuGH/embytv/internal/emby"
	xglog "github.com/ManuGH/embytv/internal/log"
	"github.com/ManuGH/embytv/internal/metrics"
	"github.com/rs/zerolog"
)

// Reporter is the server's session report API.
type Reporter interface {
	ReportPlaying(ctx context.Context, info emby.PlaybackProgressInfo) error
	ReportProgress(ctx context.Context, info emby.PlaybackProgressInfo) error
	ReportStopped(ctx context.Context, info emby.PlaybackProgressInfo) error
}

// Snapshotter returns the current playback state for a progress report.
// ok is false when no state is available (e.g. the player is gone).
type Snapshotter func(ctx context.Context) (info emby.PlaybackProgressInfo, ok bool)

// State is the reporter lifecycle.
type State string

const (
	StateIdle     State = "idle"
	StateReported State = "reported"
	StateStopped  State = "stopped"
)

// Config tunes report cadence.
type Config struct {
	ProgressInterval time.Duration // poll period
	ProgressEvery    int           // send progress on every Nth playing poll
	StopTimeout      time.Duration
}

// DefaultConfig reports progress roughly every five seconds.
func DefaultConfig() Config {
	return Config{
		ProgressInterval: time.Second,
		ProgressEvery:    5,
		StopTimeout:      10 * time.Second,
	}
}

// Tracker reports one playback instance. Report failures are logged and
// counted, never returned.
type Tracker struct {
	client   Reporter
	snapshot Snapshotter
	cfg      Config
	logger   zerolog.Logger

	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	done    chan struct{}
	playing chan struct{}

	stopOnce sync.Once
}

// NewTracker creates an idle tracker.
func NewTracker(client Reporter, snapshot Snapshotter, cfg Config) *Tracker {
	def := DefaultConfig()
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = def.ProgressInterval
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = def.ProgressEvery
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = def.StopTimeout
	}
	return &Tracker{
		client:   client,
		snapshot: snapshot,
		cfg:      cfg,
		logger:   xglog.WithComponent("reporting"),
		state:    StateIdle,
		playing:  make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// PlayingReported is closed once the playing report has been attempted.
func (t *Tracker) PlayingReported() <-chan struct{} {
	return t.playing
}

// OnIsPlayingChanged feeds player isPlaying transitions. The first true
// transition sends the playing report and starts the progress loop; info is
// the state captured at that moment.
func (t *Tracker) OnIsPlayingChanged(ctx context.Context, isPlaying bool, info emby.PlaybackProgressInfo) {
	if !isPlaying {
		return
	}
	t.mu.Lock()
	if t.state != StateIdle {
		t.mu.Unlock()
		return
	}
	t.state = StateReported
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t.cancel = cancel
	t.done = make(chan struct{})
	done := t.done
	t.mu.Unlock()

	go func() {
		defer close(done)
		t.send(loopCtx, "playing", t.client.ReportPlaying, info)
		close(t.playing)
		t.progressLoop(loopCtx)
	}()
}

func (t *Tracker) progressLoop(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.ProgressInterval)
	defer ticker.Stop()

	ticks := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		info, ok := t.snapshot(ctx)
		if !ok || info.IsPaused {
			continue
		}
		ticks++
		if ticks%t.cfg.ProgressEvery != 0 {
			continue
		}
		t.send(ctx, "progress", t.client.ReportProgress, info)
	}
}

// Stop sends the final stopped report. Only the first call has an effect;
// it returns true for that call. The progress loop is finished before the
// report goes out, and the report is not bound to ctx's cancellation.
func (t *Tracker) Stop(ctx context.Context, info emby.PlaybackProgressInfo) bool {
	fired := false
	t.stopOnce.Do(func() {
		fired = true

		t.mu.Lock()
		t.state = StateStopped
		cancel, done := t.cancel, t.done
		t.mu.Unlock()

		if cancel != nil {
			cancel()
			<-done
		}

		stopCtx, cancelStop := context.WithTimeout(context.WithoutCancel(ctx), t.cfg.StopTimeout)
		defer cancelStop()
		t.send(stopCtx, "stopped", t.client.ReportStopped, info)
	})
	return fired
}

func (t *Tracker) send(ctx context.Context, event string, fn func(context.Context, emby.PlaybackProgressInfo) error, info emby.PlaybackProgressInfo) {
	if info.SeekableRanges == nil {
		info.SeekableRanges = []emby.SeekableRange{}
	}
	err := fn(ctx, info)
	logger := xglog.WithContext(ctx, t.logger)
	if err != nil {
		metrics.SessionReportTotal.WithLabelValues(event, "error").Inc()
		logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "report."+event+"_failed").
			Str(xglog.FieldItemID, info.ItemID).
			Str(xglog.FieldPlaySessionID, info.PlaySessionID).
			Msg("session report failed")
		return
	}
	metrics.SessionReportTotal.WithLabelValues(event, "ok").Inc()
	logger.Debug().
		Str(xglog.FieldEvent, "report."+event).
		Str(xglog.FieldItemID, info.ItemID).
		Int64(xglog.FieldPositionTicks, info.PositionTicks).
		Str(xglog.FieldPlayMethod, string(info.PlayMethod)).
		Msg("session report sent")
}
