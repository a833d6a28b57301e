// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package player

import (
	"slices"
	"sync"
	"time"
)

// Override is a recorded SetTrackOverride call.
type Override struct {
	Type  TrackType
	Group int
	Track int
}

// Fake is an in-memory Player for tests and the headless daemon. It records
// every call and guards its state so tests can inspect it from any goroutine.
type Fake struct {
	mu sync.Mutex

	groups   []TrackGroup
	item     MediaItem
	items    []MediaItem
	position time.Duration
	duration time.Duration
	playing  bool
	looping  bool
	released bool

	prepares  int
	seeks     []time.Duration
	overrides []Override
	disabled  map[TrackType]bool
	calls     []string
}

// NewFake returns a fake player exposing the given track groups.
func NewFake(groups ...TrackGroup) *Fake {
	return &Fake{groups: groups, disabled: map[TrackType]bool{}}
}

func (f *Fake) record(call string) { f.calls = append(f.calls, call) }

func (f *Fake) SetMediaItem(item MediaItem, start time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("set_media_item")
	f.item = item
	f.items = append(f.items, item)
	f.position = start
}

func (f *Fake) Prepare() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("prepare")
	f.prepares++
}

func (f *Fake) Play() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("play")
	f.playing = true
}

func (f *Fake) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("pause")
	f.playing = false
}

func (f *Fake) SeekTo(pos time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("seek")
	if pos < 0 {
		pos = 0
	}
	if f.duration > 0 && pos > f.duration {
		pos = f.duration
	}
	f.position = pos
	f.seeks = append(f.seeks, pos)
}

func (f *Fake) CurrentPosition() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position
}

func (f *Fake) Duration() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.duration
}

func (f *Fake) IsPlaying() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing
}

func (f *Fake) IsLooping() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.looping
}

func (f *Fake) TrackGroups() []TrackGroup {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]TrackGroup, len(f.groups))
	for i, g := range f.groups {
		g.Formats = slices.Clone(g.Formats)
		out[i] = g
	}
	return out
}

func (f *Fake) SetTrackOverride(t TrackType, group, track int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("track_override")
	f.overrides = append(f.overrides, Override{Type: t, Group: group, Track: track})
	for i := range f.groups {
		if f.groups[i].Type != t {
			continue
		}
		if i == group {
			f.groups[i].Selected = track
		} else {
			f.groups[i].Selected = -1
		}
	}
}

func (f *Fake) SetTrackTypeDisabled(t TrackType, disabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("track_disabled")
	f.disabled[t] = disabled
}

func (f *Fake) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("release")
	f.released = true
	f.playing = false
}

// SetPosition moves the playhead without recording a seek.
func (f *Fake) SetPosition(pos time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.position = pos
}

// SetDuration sets the media duration.
func (f *Fake) SetDuration(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.duration = d
}

// SetLooping toggles repeat mode.
func (f *Fake) SetLooping(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.looping = v
}

// SetTrackGroups replaces the runtime track groups.
func (f *Fake) SetTrackGroups(groups ...TrackGroup) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups = groups
}

// MediaItem returns the current item.
func (f *Fake) MediaItem() MediaItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.item
}

// MediaItems returns every item set so far.
func (f *Fake) MediaItems() []MediaItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.items)
}

// Seeks returns the recorded seek targets.
func (f *Fake) Seeks() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.seeks)
}

// Overrides returns the recorded track overrides.
func (f *Fake) Overrides() []Override {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.overrides)
}

// Disabled reports whether a track type was disabled.
func (f *Fake) Disabled(t TrackType) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disabled[t]
}

// Released reports whether Release was called.
func (f *Fake) Released() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}

// Prepares returns how often Prepare was called.
func (f *Fake) Prepares() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prepares
}

// Calls returns the ordered call log.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}
