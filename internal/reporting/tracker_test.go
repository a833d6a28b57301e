// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package reporting

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuGH/embytv/internal/emby"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeReporter struct {
	mu     sync.Mutex
	events []string
	infos  []emby.PlaybackProgressInfo
	ctxErr map[string]error
	fail   map[string]error
}

func newFakeReporter() *fakeReporter {
	return &fakeReporter{ctxErr: map[string]error{}, fail: map[string]error{}}
}

func (f *fakeReporter) record(ctx context.Context, event string, info emby.PlaybackProgressInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	f.infos = append(f.infos, info)
	f.ctxErr[event] = ctx.Err()
	return f.fail[event]
}

func (f *fakeReporter) ReportPlaying(ctx context.Context, info emby.PlaybackProgressInfo) error {
	return f.record(ctx, "playing", info)
}

func (f *fakeReporter) ReportProgress(ctx context.Context, info emby.PlaybackProgressInfo) error {
	return f.record(ctx, "progress", info)
}

func (f *fakeReporter) ReportStopped(ctx context.Context, info emby.PlaybackProgressInfo) error {
	return f.record(ctx, "stopped", info)
}

func (f *fakeReporter) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e == event {
			n++
		}
	}
	return n
}

func (f *fakeReporter) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func fastConfig() Config {
	return Config{ProgressInterval: 2 * time.Millisecond, ProgressEvery: 5, StopTimeout: time.Second}
}

func snapshotOf(paused *atomic.Bool, pos *atomic.Int64) Snapshotter {
	return func(context.Context) (emby.PlaybackProgressInfo, bool) {
		return emby.PlaybackProgressInfo{ItemID: "item", PositionTicks: pos.Load(), IsPaused: paused.Load()}, true
	}
}

func TestTracker_PlayingOnceThenProgress(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rep := newFakeReporter()
	var paused atomic.Bool
	var pos atomic.Int64
	tr := NewTracker(rep, snapshotOf(&paused, &pos), fastConfig())
	assert.Equal(t, StateIdle, tr.State())

	tr.OnIsPlayingChanged(context.Background(), false, emby.PlaybackProgressInfo{})
	assert.Equal(t, StateIdle, tr.State())

	tr.OnIsPlayingChanged(context.Background(), true, emby.PlaybackProgressInfo{ItemID: "item", PlayMethod: emby.PlayMethodDirectPlay})
	tr.OnIsPlayingChanged(context.Background(), true, emby.PlaybackProgressInfo{ItemID: "item"})
	assert.Equal(t, StateReported, tr.State())

	<-tr.PlayingReported()
	require.Eventually(t, func() bool { return rep.count("progress") >= 2 }, 2*time.Second, time.Millisecond)

	assert.True(t, tr.Stop(context.Background(), emby.PlaybackProgressInfo{ItemID: "item", PositionTicks: 99}))
	assert.Equal(t, StateStopped, tr.State())

	events := rep.Events()
	assert.Equal(t, "playing", events[0])
	assert.Equal(t, "stopped", events[len(events)-1])
	assert.Equal(t, 1, rep.count("playing"))
	assert.Equal(t, 1, rep.count("stopped"))

	rep.mu.Lock()
	last := rep.infos[len(rep.infos)-1]
	rep.mu.Unlock()
	assert.Equal(t, int64(99), last.PositionTicks)
	assert.NotNil(t, last.SeekableRanges)
}

func TestTracker_NoProgressWhilePaused(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rep := newFakeReporter()
	var paused atomic.Bool
	var pos atomic.Int64
	paused.Store(true)
	tr := NewTracker(rep, snapshotOf(&paused, &pos), fastConfig())

	tr.OnIsPlayingChanged(context.Background(), true, emby.PlaybackProgressInfo{ItemID: "item"})
	<-tr.PlayingReported()
	time.Sleep(40 * time.Millisecond)
	assert.Zero(t, rep.count("progress"))

	tr.Stop(context.Background(), emby.PlaybackProgressInfo{})
}

func TestTracker_StopExactlyOnceAcrossExitPaths(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rep := newFakeReporter()
	var paused atomic.Bool
	var pos atomic.Int64
	tr := NewTracker(rep, snapshotOf(&paused, &pos), fastConfig())
	tr.OnIsPlayingChanged(context.Background(), true, emby.PlaybackProgressInfo{ItemID: "item"})

	var fired atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tr.Stop(context.Background(), emby.PlaybackProgressInfo{ItemID: "item"}) {
				fired.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), fired.Load())
	assert.Equal(t, 1, rep.count("stopped"))

	// no transitions after stop
	tr.OnIsPlayingChanged(context.Background(), true, emby.PlaybackProgressInfo{})
	assert.Equal(t, StateStopped, tr.State())
}

func TestTracker_StopSurvivesCancelledContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rep := newFakeReporter()
	tr := NewTracker(rep, func(context.Context) (emby.PlaybackProgressInfo, bool) { return emby.PlaybackProgressInfo{}, false }, fastConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.True(t, tr.Stop(ctx, emby.PlaybackProgressInfo{ItemID: "item"}))

	rep.mu.Lock()
	defer rep.mu.Unlock()
	assert.Equal(t, []string{"stopped"}, rep.events)
	assert.NoError(t, rep.ctxErr["stopped"])
}

func TestTracker_ReportErrorsAreSwallowed(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rep := newFakeReporter()
	rep.fail["playing"] = errors.New("boom")
	rep.fail["stopped"] = errors.New("boom")
	var paused atomic.Bool
	var pos atomic.Int64
	tr := NewTracker(rep, snapshotOf(&paused, &pos), fastConfig())

	tr.OnIsPlayingChanged(context.Background(), true, emby.PlaybackProgressInfo{})
	<-tr.PlayingReported()
	assert.True(t, tr.Stop(context.Background(), emby.PlaybackProgressInfo{}))
	assert.Equal(t, 1, rep.count("stopped"))
}
