// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package playback drives one playback instance: negotiation, track
// selection, session reports, transcode fallback and teardown.
package playback

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/embytv/internal/emby"
	"github.com/ManuGH/embytv/internal/fallback"
	xglog "github.com/ManuGH/embytv/internal/log"
	"github.com/ManuGH/embytv/internal/metrics"
	"github.com/ManuGH/embytv/internal/negotiate"
	"github.com/ManuGH/embytv/internal/player"
	"github.com/ManuGH/embytv/internal/reporting"
	"github.com/ManuGH/embytv/internal/tracks"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// User-visible messages.
const (
	MessageNegotiationFailed = "failed to get playback info"
	MessagePlaybackFailed    = "playback failed"
)

// IndexUnset marks a track index not chosen yet.
const IndexUnset = negotiate.IndexUnset

// Selection is the per-instance track and fallback state.
type Selection struct {
	AudioIndex             int
	SubtitleIndex          int
	DisableHevc            bool
	TriedTranscodeFallback bool
}

func (s Selection) tracks() negotiate.Tracks {
	return negotiate.Tracks{Audio: s.AudioIndex, Subtitle: s.SubtitleIndex}
}

// Negotiator requests playback info.
type Negotiator interface {
	GetPlaybackInfo(ctx context.Context, req negotiate.Request) (*negotiate.Result, error)
}

// Server is the Emby surface a playback needs beyond negotiation.
type Server interface {
	reporting.Reporter
	fallback.EncodingStopper
	negotiate.SubtitleURLBuilder
	AbsoluteURL(raw string) string
}

// Deps are the collaborators of a Session.
type Deps struct {
	Negotiator Negotiator
	Server     Server
	Player     player.Player
	// Resolver is optional; without it no diagnostics are produced.
	Resolver *reporting.Resolver
	Report   reporting.Config
}

// Options describe what to play.
type Options struct {
	ItemID        string
	MediaSourceID string
	StartPosition time.Duration
	// Initial track preferences; nil uses the source defaults.
	AudioIndex    *int
	SubtitleIndex *int

	SeekStep     time.Duration
	SeekInterval time.Duration
}

// Callbacks are invoked on the loop goroutine, except OnExit and
// OnDiagnostics which run on background goroutines.
type Callbacks struct {
	OnMessage     func(msg string)
	OnExit        func(err error)
	OnDiagnostics func(d reporting.Diagnostics)
}

// Session is one playback instance.
type Session struct {
	id    string
	deps  Deps
	opts  Options
	cb    Callbacks
	loop  *Loop
	sel   *tracks.Selector
	fb    *fallback.Controller
	track *reporting.Tracker

	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// loop-owned state
	selection    Selection
	trigger      uint64
	reloadCancel context.CancelFunc
	result       *negotiate.Result
	source       *emby.MediaSourceInfo
	resolution   negotiate.Resolution
	loaded       bool
	closed       bool
	resolving    bool
	seekCancel   context.CancelFunc

	started   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
	exitErr   error
}

// NewSession wires a session. Nothing happens until Start.
func NewSession(deps Deps, opts Options, cb Callbacks) *Session {
	if opts.SeekStep <= 0 {
		opts.SeekStep = 10 * time.Second
	}
	if opts.SeekInterval <= 0 {
		opts.SeekInterval = 200 * time.Millisecond
	}
	s := &Session{
		id:   uuid.NewString(),
		deps: deps,
		opts: opts,
		cb:   cb,
		loop: NewLoop(),
		sel:  tracks.NewSelector(),
		selection: Selection{
			AudioIndex:    IndexUnset,
			SubtitleIndex: IndexUnset,
		},
		done: make(chan struct{}),
	}
	if opts.AudioIndex != nil {
		s.selection.AudioIndex = *opts.AudioIndex
	}
	if opts.SubtitleIndex != nil {
		s.selection.SubtitleIndex = *opts.SubtitleIndex
	}
	s.logger = xglog.WithComponent("playback").With().
		Str(xglog.FieldPlaybackID, s.id).
		Str(xglog.FieldItemID, opts.ItemID).
		Logger()
	s.fb = fallback.New(deps.Negotiator, deps.Server, fallbackTarget{s})
	s.track = reporting.NewTracker(deps.Server, s.snapshot, deps.Report)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// ID is the playback instance id.
func (s *Session) ID() string { return s.id }

// Start begins the first load.
func (s *Session) Start(ctx context.Context) error {
	s.cancel()
	s.ctx, s.cancel = context.WithCancel(xglog.ContextWithPlaybackID(ctx, s.id))
	if s.started.CompareAndSwap(false, true) {
		metrics.ActivePlaybacks.Inc()
	}
	return s.loop.Call(ctx, func() {
		s.reload("initial")
	})
}

// Done is closed once teardown has finished.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err is the error the session exited with, valid after Done.
func (s *Session) Err() error {
	<-s.done
	return s.exitErr
}

// Selection returns the current selection.
func (s *Session) Selection(ctx context.Context) (Selection, error) {
	var out Selection
	err := s.loop.Call(ctx, func() { out = s.selection })
	return out, err
}

// SelectTracks switches audio/subtitle. Selecting the current pair is a
// no-op. It reports whether a re-negotiation was started.
func (s *Session) SelectTracks(ctx context.Context, audio, subtitle int) (bool, error) {
	var reloaded bool
	err := s.loop.Call(ctx, func() {
		reloaded = s.selectTracks(audio, subtitle)
	})
	return reloaded, err
}

// HandleEvent feeds a player callback.
func (s *Session) HandleEvent(ev player.Event) {
	s.loop.Post(func() { s.handleEvent(ev) })
}

// Close tears the session down. Safe to call from any goroutine, including
// callbacks; only the first call has an effect.
func (s *Session) Close(err error) {
	s.closeOnce.Do(func() {
		go s.teardown(err)
	})
}

func (s *Session) selectTracks(audio, subtitle int) bool {
	if s.closed {
		return false
	}
	prev := s.selection.tracks()
	next := negotiate.Tracks{Audio: audio, Subtitle: subtitle}
	if prev == next {
		return false
	}
	s.selection.AudioIndex = audio
	s.selection.SubtitleIndex = subtitle
	s.selection.TriedTranscodeFallback = false
	s.fb.Reset()

	if s.source != nil && !s.resolution.FromTranscoding &&
		(negotiate.NeedsRewrite(s.source, prev) || negotiate.NeedsRewrite(s.source, next)) {
		s.reload("track_change")
		return true
	}
	s.applyTracks()
	return false
}

// reload starts a negotiation keyed by a new trigger; the previous one is cancelled.
func (s *Session) reload(reason string) {
	s.trigger++
	trigger := s.trigger
	if s.reloadCancel != nil {
		s.reloadCancel()
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.reloadCancel = cancel

	req := negotiate.Request{
		ItemID:             s.opts.ItemID,
		MediaSourceID:      s.opts.MediaSourceID,
		StartPositionTicks: emby.ToTicks(s.position()),
		DisableHevc:        s.selection.DisableHevc,
	}
	if s.source != nil {
		req.MediaSourceID = s.source.ID
	}
	if s.selection.AudioIndex >= 0 {
		a := s.selection.AudioIndex
		req.AudioIndex = &a
	}
	if s.selection.SubtitleIndex != IndexUnset {
		sub := s.selection.SubtitleIndex
		req.SubtitleIndex = &sub
	}

	s.logger.Debug().
		Str(xglog.FieldEvent, "playback.reload").
		Str(xglog.FieldTrigger, reason).
		Uint64("trigger_id", trigger).
		Msg("negotiating")

	go func() {
		res, err := s.deps.Negotiator.GetPlaybackInfo(ctx, req)
		s.loop.Post(func() { s.onNegotiated(ctx, trigger, res, err) })
	}()
}

func (s *Session) onNegotiated(ctx context.Context, trigger uint64, res *negotiate.Result, err error) {
	if s.closed || trigger != s.trigger {
		s.logger.Debug().Uint64("trigger_id", trigger).Msg("dropping superseded negotiation")
		return
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn().Err(err).Str(xglog.FieldEvent, "playback.negotiation_failed").Msg("negotiation failed")
		s.message(MessageNegotiationFailed)
		return
	}

	src := res.Source(s.opts.MediaSourceID)
	if s.source != nil {
		src = res.Source(s.source.ID)
	}
	if s.selection.AudioIndex == IndexUnset {
		s.selection.AudioIndex = negotiate.DefaultAudioIndex(src)
	}
	if s.selection.SubtitleIndex == IndexUnset {
		s.selection.SubtitleIndex = negotiate.DefaultSubtitleIndex(src)
	}

	resolution, err := negotiate.Resolve(src, s.selection.tracks(), negotiate.ResolveOptions{DisableHevc: s.selection.DisableHevc})
	if err != nil {
		s.logger.Warn().Err(err).Str(xglog.FieldEvent, "playback.no_url").Msg("negotiated source has no playable url")
		s.message(MessageNegotiationFailed)
		return
	}
	s.load(res, src, resolution, s.position())
}

// load puts a negotiated source on the player.
func (s *Session) load(res *negotiate.Result, src *emby.MediaSourceInfo, resolution negotiate.Resolution, at time.Duration) {
	s.result = res
	s.source = src
	s.resolution = resolution

	item := player.MediaItem{
		ItemID: s.opts.ItemID,
		URL:    s.deps.Server.AbsoluteURL(resolution.URL),
	}
	for _, d := range negotiate.SubtitleDeliveries(s.deps.Server, s.opts.ItemID, src) {
		item.Subtitles = append(item.Subtitles, player.SubtitleConfig{
			ID:       d.ID,
			URL:      d.URL,
			MimeType: d.MimeType,
			Language: d.Language,
			Label:    d.Label,
			Default:  d.Default,
			Forced:   d.Forced,
		})
	}

	p := s.deps.Player
	p.SetMediaItem(item, at)
	p.Prepare()
	p.Play()
	s.loaded = true

	s.logger.Info().
		Str(xglog.FieldEvent, "playback.loaded").
		Str(xglog.FieldPlayMethod, string(resolution.Method)).
		Str(xglog.FieldMediaSourceID, src.ID).
		Str(xglog.FieldPlaySessionID, src.PlaySessionID).
		Bool("rewritten", resolution.Rewritten).
		Msg("media item loaded")
}

func (s *Session) applyTracks() {
	if s.source == nil {
		return
	}
	streams := s.source.MediaStreams
	if s.selection.AudioIndex >= 0 {
		s.sel.SelectAudio(s.deps.Player, streams, s.selection.AudioIndex)
	}
	if s.selection.SubtitleIndex != IndexUnset {
		s.sel.SelectSubtitle(s.deps.Player, streams, s.selection.SubtitleIndex)
	}
}

func (s *Session) handleEvent(ev player.Event) {
	if s.closed {
		return
	}
	switch ev.Kind {
	case player.EventIsPlayingChanged:
		if !s.loaded {
			return
		}
		s.track.OnIsPlayingChanged(s.ctx, ev.IsPlaying, s.progressInfo())
		if ev.IsPlaying && !s.resolving {
			s.resolving = true
			s.startResolve()
		}
	case player.EventTracksChanged:
		s.applyTracks()
	case player.EventEnded:
		if !s.deps.Player.IsLooping() {
			s.Close(nil)
		}
	case player.EventError:
		s.onPlayerError(ev.Err)
	}
}

func (s *Session) startResolve() {
	if s.deps.Resolver == nil || s.cb.OnDiagnostics == nil || s.source == nil {
		return
	}
	itemID, sourceID := s.opts.ItemID, s.source.ID
	ctx := s.ctx
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-s.track.PlayingReported():
		}
		if sess, ok := s.deps.Resolver.Resolve(ctx, itemID, sourceID); ok {
			s.cb.OnDiagnostics(reporting.Summarize(sess))
		}
	}()
}

func (s *Session) onPlayerError(cause error) {
	if !s.loaded {
		return
	}
	st := fallback.State{
		ItemID:            s.opts.ItemID,
		MediaSourceID:     s.source.ID,
		PlaySessionID:     s.source.PlaySessionID,
		PositionTicks:     emby.ToTicks(s.deps.Player.CurrentPosition()),
		TranscodingActive: s.resolution.FromTranscoding,
		Tracks:            s.selection.tracks(),
	}
	// supersede any in-flight reload
	s.trigger++
	if s.reloadCancel != nil {
		s.reloadCancel()
		s.reloadCancel = nil
	}

	ctx := s.ctx
	go func() {
		_, err := s.fb.OnPlaybackError(ctx, cause, st)
		switch {
		case err == nil:
		case errors.Is(err, fallback.ErrFallbackExhausted):
			s.loop.Post(func() { s.message(MessagePlaybackFailed) })
			s.Close(err)
		case ctx.Err() != nil:
		default:
			s.loop.Post(func() { s.message(MessagePlaybackFailed) })
		}
	}()
}

// fallbackTarget moves the player onto the fallback source.
type fallbackTarget struct{ s *Session }

func (t fallbackTarget) ApplyFallback(ctx context.Context, out fallback.Outcome) error {
	s := t.s
	var applyErr error
	err := s.loop.Call(ctx, func() {
		if s.closed {
			applyErr = ErrLoopStopped
			return
		}
		s.selection.DisableHevc = true
		s.selection.TriedTranscodeFallback = true
		src := out.Source
		pos := emby.FromTicks(out.PositionTicks)
		s.load(out.Result, &src, out.Resolution, pos)
		s.deps.Player.SeekTo(pos)
		s.deps.Player.Play()
	})
	if err != nil {
		return err
	}
	return applyErr
}

func (s *Session) message(msg string) {
	if s.cb.OnMessage != nil {
		s.cb.OnMessage(msg)
	}
}

func (s *Session) position() time.Duration {
	if s.loaded {
		return s.deps.Player.CurrentPosition()
	}
	return s.opts.StartPosition
}

// progressInfo captures the report payload. Loop only.
func (s *Session) progressInfo() emby.PlaybackProgressInfo {
	p := s.deps.Player
	info := emby.PlaybackProgressInfo{
		ItemID:         s.opts.ItemID,
		PositionTicks:  emby.ToTicks(s.position()),
		IsPaused:       s.loaded && !p.IsPlaying(),
		PlayMethod:     s.resolution.Method,
		SeekableRanges: []emby.SeekableRange{},
	}
	if s.source != nil {
		info.MediaSourceID = s.source.ID
		info.PlaySessionID = s.source.PlaySessionID
	}
	if s.selection.AudioIndex >= 0 {
		a := s.selection.AudioIndex
		info.AudioStreamIndex = &a
	}
	if s.selection.SubtitleIndex != IndexUnset {
		sub := s.selection.SubtitleIndex
		info.SubtitleStreamIndex = &sub
	}
	if d := p.Duration(); s.loaded && d > 0 {
		info.SeekableRanges = append(info.SeekableRanges, emby.SeekableRange{Start: 0, End: emby.ToTicks(d)})
	}
	return info
}

func (s *Session) snapshot(ctx context.Context) (emby.PlaybackProgressInfo, bool) {
	var info emby.PlaybackProgressInfo
	ok := false
	err := s.loop.Call(ctx, func() {
		if s.closed || !s.loaded {
			return
		}
		info, ok = s.progressInfo(), true
	})
	return info, ok && err == nil
}

// teardown runs once: pending work is cancelled, the stop report goes out,
// then the player is released.
func (s *Session) teardown(cause error) {
	var info emby.PlaybackProgressInfo
	loaded := false
	_ = s.loop.Call(context.Background(), func() {
		s.closed = true
		s.trigger++
		if s.reloadCancel != nil {
			s.reloadCancel()
		}
		if s.seekCancel != nil {
			s.seekCancel()
			s.seekCancel = nil
		}
		loaded = s.loaded
		info = s.progressInfo()
	})

	// in-flight negotiation and fallback work ends before the stop report
	s.cancel()
	reported := loaded || s.track.State() != reporting.StateIdle
	if reported {
		s.track.Stop(s.ctx, info)
	}

	_ = s.loop.Call(context.Background(), func() {
		s.deps.Player.Release()
	})
	s.loop.Stop()
	<-s.loop.Done()

	if s.started.Load() {
		metrics.ActivePlaybacks.Dec()
	}
	ev := s.logger.Info()
	if cause != nil {
		ev = s.logger.Warn().Err(cause)
	}
	ev.Str(xglog.FieldEvent, "playback.closed").Bool("reported_stop", reported).Msg("playback instance closed")

	s.exitErr = cause
	if s.cb.OnExit != nil {
		s.cb.OnExit(cause)
	}
	close(s.done)
}
