// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package capabilities

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	codecs []CodecInfo
	err    error
	levels map[string][]ProfileLevel // codec name -> avc levels
	fail   map[string]error
	panics map[string]bool
}

func (f *fakeLister) Codecs() ([]CodecInfo, error) { return f.codecs, f.err }

func (f *fakeLister) Capabilities(c CodecInfo, mime string) (TypeCapabilities, error) {
	if f.panics[c.Name] {
		panic("firmware bug")
	}
	if err := f.fail[c.Name]; err != nil {
		return TypeCapabilities{}, err
	}
	return TypeCapabilities{ProfileLevels: f.levels[c.Name]}, nil
}

type fakeDisplay struct {
	modern    Size
	hasModern bool
	legacy    Size
	legacyErr error
}

func (d fakeDisplay) WindowBounds() (Size, bool) { return d.modern, d.hasModern }
func (d fakeDisplay) LegacySize() (Size, error)  { return d.legacy, d.legacyErr }

func TestProbe_ClassifiesDecodersAndSkipsEncoders(t *testing.T) {
	lister := &fakeLister{codecs: []CodecInfo{
		{Name: "c2.avc.decoder", SupportedTypes: []string{"video/avc"}},
		{Name: "c2.avc.encoder", IsEncoder: true, SupportedTypes: []string{"video/hevc"}},
		{Name: "c2.aac.decoder", SupportedTypes: []string{"audio/mp4a-latm"}},
		{Name: "c2.dts.decoder", SupportedTypes: []string{"audio/vnd.dts.hd"}},
		{Name: "c2.raw.decoder", SupportedTypes: []string{"audio/raw"}},
	}}
	caps := NewProber(lister, StaticDisplay{Width: 1920, Height: 1080}).Probe()

	assert.Equal(t, []string{"h264"}, caps.VideoCodecs)
	assert.Equal(t, []string{"aac", "dts", "dtshd"}, caps.AudioCodecs)
	assert.False(t, caps.SupportsHEVC())
	assert.Equal(t, 1920, caps.MaxWidth)
	assert.Equal(t, 1080, caps.MaxHeight)
}

func TestProbe_HEVCReportedUnderBothNames(t *testing.T) {
	lister := &fakeLister{codecs: []CodecInfo{
		{Name: "hevc", SupportedTypes: []string{"video/hevc"}},
	}}
	caps := NewProber(lister, nil).Probe()
	assert.True(t, caps.SupportsVideo("hevc"))
	assert.True(t, caps.SupportsVideo("H265"))
}

func TestProbe_H264LevelIsMaximum(t *testing.T) {
	lister := &fakeLister{
		codecs: []CodecInfo{
			{Name: "a", SupportedTypes: []string{"video/avc"}},
			{Name: "b", SupportedTypes: []string{"video/avc"}},
		},
		levels: map[string][]ProfileLevel{
			"a": {{Profile: 1, Level: AVCLevel41}, {Profile: 2, Level: AVCLevel42}},
			"b": {{Profile: 8, Level: AVCLevel51}, {Profile: 8, Level: 0x7}},
		},
	}
	caps := NewProber(lister, nil).Probe()
	assert.Equal(t, 51, caps.H264Level())
}

func TestAVCLevelNumber(t *testing.T) {
	tests := map[int]int{
		AVCLevel1:  10,
		AVCLevel1b: 9,
		AVCLevel3:  30,
		AVCLevel51: 51,
		AVCLevel62: 62,
	}
	for platform, want := range tests {
		got, ok := AVCLevelNumber(platform)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := AVCLevelNumber(0x3)
	assert.False(t, ok)
}

func TestAVCLevelConstant_RoundTrips(t *testing.T) {
	c, ok := AVCLevelConstant(51)
	require.True(t, ok)
	assert.Equal(t, AVCLevel51, c)

	_, ok = AVCLevelConstant(47)
	assert.False(t, ok)
}

func TestProbe_UHDFloorWithHEVCOrAV1(t *testing.T) {
	for _, mime := range []string{"video/hevc", "video/av01"} {
		lister := &fakeLister{codecs: []CodecInfo{{Name: "x", SupportedTypes: []string{mime}}}}
		caps := NewProber(lister, StaticDisplay{Width: 1280, Height: 720}).Probe()
		assert.Equal(t, UHDWidth, caps.MaxWidth, mime)
		assert.Equal(t, UHDHeight, caps.MaxHeight, mime)
	}
}

func TestProbe_FailingEntriesAreSkipped(t *testing.T) {
	lister := &fakeLister{
		codecs: []CodecInfo{
			{Name: "broken", SupportedTypes: []string{"video/hevc"}},
			{Name: "crashy", SupportedTypes: []string{"video/av01"}},
			{Name: "ok", SupportedTypes: []string{"video/avc", "audio/ac3"}},
		},
		fail:   map[string]error{"broken": errors.New("illegal argument")},
		panics: map[string]bool{"crashy": true},
	}
	var caps DeviceCapabilities
	require.NotPanics(t, func() { caps = NewProber(lister, nil).Probe() })
	assert.Equal(t, []string{"h264"}, caps.VideoCodecs)
	assert.Equal(t, []string{"ac3"}, caps.AudioCodecs)
}

func TestProbe_ListFailureYieldsEmptySnapshot(t *testing.T) {
	caps := NewProber(&fakeLister{err: errors.New("no codec service")}, nil).Probe()
	assert.Empty(t, caps.VideoCodecs)
	assert.Equal(t, 1920, caps.MaxWidth)
}

func TestProbe_DisplayFallbacks(t *testing.T) {
	tests := []struct {
		name    string
		display Display
		want    Size
	}{
		{name: "modern", display: fakeDisplay{hasModern: true, modern: Size{2560, 1440}, legacy: Size{1, 1}}, want: Size{2560, 1440}},
		{name: "legacy", display: fakeDisplay{legacy: Size{1280, 720}}, want: Size{1280, 720}},
		{name: "none", display: fakeDisplay{legacyErr: errors.New("no display")}, want: Size{1920, 1080}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caps := NewProber(&fakeLister{}, tt.display).Probe()
			assert.Equal(t, tt.want, Size{caps.MaxWidth, caps.MaxHeight})
		})
	}
}

type countingSource struct{ n atomic.Int32 }

func (c *countingSource) Probe() DeviceCapabilities {
	c.n.Add(1)
	return DeviceCapabilities{VideoCodecs: []string{"h264"}}
}

func TestCache_ProbesOnce(t *testing.T) {
	src := &countingSource{}
	cache := NewCache(src)
	first := cache.Probe()
	first.VideoCodecs[0] = "mutated"

	second := cache.Probe()
	assert.Equal(t, []string{"h264"}, second.VideoCodecs)
	assert.Equal(t, int32(1), src.n.Load())
}
