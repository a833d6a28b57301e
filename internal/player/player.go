// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package player models the platform media player the playback core drives.
// Implementations are not safe for concurrent use; every call must come from
// the goroutine that owns the player.
package player

import "time"

// TrackType is a runtime track category.
type TrackType int

const (
	TrackTypeVideo TrackType = iota
	TrackTypeAudio
	TrackTypeText
)

func (t TrackType) String() string {
	switch t {
	case TrackTypeVideo:
		return "video"
	case TrackTypeAudio:
		return "audio"
	case TrackTypeText:
		return "text"
	default:
		return "unknown"
	}
}

// Format is one runtime track as the player sees it. ID is assigned by the
// extractor, or by the client for side-loaded subtitles.
type Format struct {
	ID       string
	Label    string
	Language string
	Codec    string
	MimeType string
}

// TrackGroup is a group of alternative formats of one type.
type TrackGroup struct {
	Type     TrackType
	Formats  []Format
	Selected int // index into Formats, -1 when none
}

// SubtitleConfig side-loads an external subtitle with the media item.
type SubtitleConfig struct {
	ID       string
	URL      string
	MimeType string
	Language string
	Label    string
	Default  bool
	Forced   bool
}

// MediaItem is what the player is asked to play.
type MediaItem struct {
	ItemID    string
	URL       string
	Subtitles []SubtitleConfig
}

// Player is the subset of the platform player the core needs.
type Player interface {
	SetMediaItem(item MediaItem, start time.Duration)
	Prepare()
	Play()
	Pause()
	SeekTo(pos time.Duration)

	CurrentPosition() time.Duration
	Duration() time.Duration
	IsPlaying() bool
	IsLooping() bool

	TrackGroups() []TrackGroup
	// SetTrackOverride selects formats[track] of groups[group] for its type.
	SetTrackOverride(t TrackType, group, track int)
	SetTrackTypeDisabled(t TrackType, disabled bool)

	Release()
}

// EventKind classifies player callbacks.
type EventKind int

const (
	EventIsPlayingChanged EventKind = iota
	EventTracksChanged
	EventEnded
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventIsPlayingChanged:
		return "is_playing_changed"
	case EventTracksChanged:
		return "tracks_changed"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a player callback delivered on the owner goroutine.
type Event struct {
	Kind      EventKind
	IsPlaying bool
	Err       error
}
