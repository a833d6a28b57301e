// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package negotiate

import (
	"strings"
	"testing"

	"github.com/ManuGH/embytv/internal/emby"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func sourceWithTracks() *emby.MediaSourceInfo {
	return &emby.MediaSourceInfo{
		ID:                      "src",
		SupportsDirectPlay:      true,
		DirectStreamURL:         "/Videos/item/original.mkv?Static=true&AudioStreamIndex=1&api_key=x",
		TranscodingURL:          "/videos/item/master.m3u8?PlaySessionId=p",
		DefaultAudioStreamIndex: intPtr(1),
		MediaStreams: []emby.MediaStream{
			{Index: 0, Type: emby.StreamTypeVideo},
			{Index: 1, Type: emby.StreamTypeAudio, IsDefault: true},
			{Index: 2, Type: emby.StreamTypeAudio},
			{Index: 3, Type: emby.StreamTypeSubtitle},
			{Index: 4, Type: emby.StreamTypeSubtitle, IsExternal: true},
		},
	}
}

func TestResolve_TranscodingOnlySource(t *testing.T) {
	src := &emby.MediaSourceInfo{TranscodingURL: "/videos/x/stream.m3u8", SupportsDirectPlay: true}
	res, err := Resolve(src, UnsetTracks, ResolveOptions{})
	require.NoError(t, err)
	assert.Equal(t, emby.PlayMethodTranscode, res.Method)
	assert.Equal(t, "/videos/x/stream.m3u8", res.URL)
	assert.True(t, res.FromTranscoding)
}

func TestResolve_Methods(t *testing.T) {
	tests := []struct {
		name string
		src  emby.MediaSourceInfo
		opts ResolveOptions
		want emby.PlayMethod
		url  string
	}{
		{
			name: "direct play",
			src:  emby.MediaSourceInfo{DirectStreamURL: "/d", TranscodingURL: "/t", SupportsDirectPlay: true, SupportsDirectStream: true},
			want: emby.PlayMethodDirectPlay, url: "/d",
		},
		{
			name: "direct stream",
			src:  emby.MediaSourceInfo{DirectStreamURL: "/d", SupportsDirectStream: true},
			want: emby.PlayMethodDirectStream, url: "/d",
		},
		{
			name: "direct url without support flags",
			src:  emby.MediaSourceInfo{DirectStreamURL: "/d"},
			want: emby.PlayMethodTranscode, url: "/d",
		},
		{
			name: "hevc disabled prefers transcoding",
			src:  emby.MediaSourceInfo{DirectStreamURL: "/d", TranscodingURL: "/t", SupportsDirectPlay: true},
			opts: ResolveOptions{DisableHevc: true},
			want: emby.PlayMethodTranscode, url: "/t",
		},
		{
			name: "hevc disabled without transcoding url keeps direct",
			src:  emby.MediaSourceInfo{DirectStreamURL: "/d", SupportsDirectPlay: true},
			opts: ResolveOptions{DisableHevc: true},
			want: emby.PlayMethodDirectPlay, url: "/d",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Resolve(&tt.src, UnsetTracks, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Method)
			assert.Equal(t, tt.url, res.URL)
		})
	}
}

func TestResolve_NoURL(t *testing.T) {
	_, err := Resolve(&emby.MediaSourceInfo{}, UnsetTracks, ResolveOptions{})
	assert.ErrorIs(t, err, ErrNoPlayableURL)
	_, err = Resolve(nil, UnsetTracks, ResolveOptions{})
	assert.ErrorIs(t, err, ErrNoPlayableURL)
}

func TestResolve_RewritesForNonDefaultAudio(t *testing.T) {
	res, err := Resolve(sourceWithTracks(), Tracks{Audio: 2, Subtitle: -1}, ResolveOptions{})
	require.NoError(t, err)
	assert.True(t, res.Rewritten)
	assert.Equal(t, "/Videos/item/stream.mkv?Static=true&api_key=x&AudioStreamIndex=2&SubtitleStreamIndex=-1", res.URL)
}

func TestRewriteStreamURL_Property(t *testing.T) {
	got := RewriteStreamURL("http://h/Videos/1/original.mkv?AudioStreamIndex=1&SubtitleStreamIndex=5&audiostreamindex=9&x=y", Tracks{Audio: 7, Subtitle: IndexUnset})
	assert.Contains(t, got, "stream.mkv")
	assert.NotContains(t, got, "original.mkv")
	assert.NotContains(t, got, "AudioStreamIndex=1")
	assert.Equal(t, 1, strings.Count(strings.ToLower(got), "audiostreamindex="))
	assert.Equal(t, 1, strings.Count(got, "AudioStreamIndex=7"))
	assert.NotContains(t, got, "SubtitleStreamIndex")
	assert.Contains(t, got, "x=y")
}

func TestRewriteStreamURL_NoQuery(t *testing.T) {
	assert.Equal(t, "/Videos/1/stream.mp4?AudioStreamIndex=3&SubtitleStreamIndex=4",
		RewriteStreamURL("/Videos/1/original.mp4", Tracks{Audio: 3, Subtitle: 4}))
	assert.Equal(t, "/Videos/1/stream.mp4", RewriteStreamURL("/Videos/1/stream.mp4", UnsetTracks))
	assert.Equal(t, "/Videos/originals/x.mkv", RewriteStreamURL("/Videos/originals/x.mkv", UnsetTracks))
}

func TestNeedsRewrite(t *testing.T) {
	src := sourceWithTracks()
	tests := []struct {
		name   string
		tracks Tracks
		want   bool
	}{
		{name: "unset", tracks: UnsetTracks, want: false},
		{name: "default audio", tracks: Tracks{Audio: 1, Subtitle: -1}, want: false},
		{name: "other audio", tracks: Tracks{Audio: 2, Subtitle: -1}, want: true},
		{name: "internal subtitle", tracks: Tracks{Audio: 1, Subtitle: 3}, want: true},
		{name: "external subtitle", tracks: Tracks{Audio: 1, Subtitle: 4}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NeedsRewrite(src, tt.tracks))
		})
	}
}

func TestDefaultIndices(t *testing.T) {
	src := &emby.MediaSourceInfo{MediaStreams: []emby.MediaStream{
		{Index: 5, Type: emby.StreamTypeAudio},
		{Index: 6, Type: emby.StreamTypeAudio, IsDefault: true},
		{Index: 7, Type: emby.StreamTypeSubtitle, IsDefault: true},
	}}
	assert.Equal(t, 6, DefaultAudioIndex(src))
	assert.Equal(t, 7, DefaultSubtitleIndex(src))

	src.MediaStreams[1].IsDefault = false
	src.MediaStreams[2].IsDefault = false
	assert.Equal(t, 5, DefaultAudioIndex(src))
	assert.Equal(t, -1, DefaultSubtitleIndex(src))
	assert.Equal(t, IndexUnset, DefaultAudioIndex(&emby.MediaSourceInfo{}))
}
