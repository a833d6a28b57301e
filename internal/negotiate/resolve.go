// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package negotiate

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/ManuGH/embytv/internal/emby"
	"github.com/ManuGH/embytv/internal/metrics"
)

// ErrNoPlayableURL is returned when a source has neither URL.
var ErrNoPlayableURL = errors.New("media source has no playable url")

// IndexUnset marks a track index that has not been chosen yet.
const IndexUnset = math.MinInt32

// SubtitleDisabled is the subtitle index that turns text tracks off.
const SubtitleDisabled = -1

// Tracks is the current audio/subtitle choice by server index.
type Tracks struct {
	Audio    int
	Subtitle int
}

// UnsetTracks is the selection before the first load.
var UnsetTracks = Tracks{Audio: IndexUnset, Subtitle: IndexUnset}

// ResolveOptions are caller overrides.
type ResolveOptions struct {
	// DisableHevc prefers the transcoding URL even when a direct URL exists.
	DisableHevc bool
}

// Resolution is the chosen play method and URL (server relative).
type Resolution struct {
	Method          emby.PlayMethod
	URL             string
	FromTranscoding bool
	Rewritten       bool
}

// Resolve picks the stream URL and play method for a source.
func Resolve(src *emby.MediaSourceInfo, tracks Tracks, opts ResolveOptions) (Resolution, error) {
	if src == nil {
		return Resolution{}, ErrNoPlayableURL
	}
	var res Resolution
	switch {
	case src.DirectStreamURL != "" && !(opts.DisableHevc && src.TranscodingURL != ""):
		res.URL = src.DirectStreamURL
	case src.TranscodingURL != "":
		res.URL = src.TranscodingURL
		res.FromTranscoding = true
	default:
		return Resolution{}, ErrNoPlayableURL
	}

	switch {
	case res.FromTranscoding:
		res.Method = emby.PlayMethodTranscode
	case src.SupportsDirectPlay:
		res.Method = emby.PlayMethodDirectPlay
	case src.SupportsDirectStream:
		res.Method = emby.PlayMethodDirectStream
	default:
		res.Method = emby.PlayMethodTranscode
	}

	if !res.FromTranscoding && NeedsRewrite(src, tracks) {
		res.URL = RewriteStreamURL(res.URL, tracks)
		res.Rewritten = true
		metrics.URLRewriteTotal.Inc()
	}
	metrics.PlayMethodTotal.WithLabelValues(string(res.Method)).Inc()
	return res, nil
}

// DefaultAudioIndex is the source's physical default audio stream, or IndexUnset.
func DefaultAudioIndex(src *emby.MediaSourceInfo) int {
	if src.DefaultAudioStreamIndex != nil {
		return *src.DefaultAudioStreamIndex
	}
	audio := src.StreamsOf(emby.StreamTypeAudio)
	for _, ms := range audio {
		if ms.IsDefault {
			return ms.Index
		}
	}
	if len(audio) > 0 {
		return audio[0].Index
	}
	return IndexUnset
}

// DefaultSubtitleIndex is the source's physical default subtitle stream, or -1.
func DefaultSubtitleIndex(src *emby.MediaSourceInfo) int {
	if src.DefaultSubtitleStreamIndex != nil {
		return *src.DefaultSubtitleStreamIndex
	}
	for _, ms := range src.StreamsOf(emby.StreamTypeSubtitle) {
		if ms.IsDefault {
			return ms.Index
		}
	}
	return SubtitleDisabled
}

// NeedsRewrite reports whether the selection differs from what the source
// plays by itself: a non-default audio track, or an internal subtitle that
// is not the default one.
func NeedsRewrite(src *emby.MediaSourceInfo, tracks Tracks) bool {
	if src == nil {
		return false
	}
	if tracks.Audio >= 0 && tracks.Audio != DefaultAudioIndex(src) {
		return true
	}
	if tracks.Subtitle >= 0 && tracks.Subtitle != DefaultSubtitleIndex(src) {
		if ms, ok := src.StreamByIndex(tracks.Subtitle); ok && !ms.IsExternal {
			return true
		}
	}
	return false
}

var originalSegment = regexp.MustCompile(`(^|/)original\.([A-Za-z0-9]+)(/|$)`)

// RewriteStreamURL routes a direct URL through the remuxing endpoint:
// original.<ext> becomes stream.<ext>, stale index parameters are dropped and
// the current indices are appended once.
func RewriteStreamURL(raw string, tracks Tracks) string {
	path, query, _ := strings.Cut(raw, "?")
	path = originalSegment.ReplaceAllString(path, "${1}stream.${2}${3}")

	var params []string
	if query != "" {
		for _, p := range strings.Split(query, "&") {
			key, _, _ := strings.Cut(p, "=")
			if p == "" || strings.EqualFold(key, "AudioStreamIndex") || strings.EqualFold(key, "SubtitleStreamIndex") {
				continue
			}
			params = append(params, p)
		}
	}
	if tracks.Audio >= 0 {
		params = append(params, "AudioStreamIndex="+strconv.Itoa(tracks.Audio))
	}
	if tracks.Subtitle != IndexUnset {
		params = append(params, "SubtitleStreamIndex="+strconv.Itoa(tracks.Subtitle))
	}
	if len(params) == 0 {
		return path
	}
	return path + "?" + strings.Join(params, "&")
}
