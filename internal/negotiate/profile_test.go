// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package negotiate

import (
	"strings"
	"testing"

	"github.com/ManuGH/embytv/internal/capabilities"
	"github.com/ManuGH/embytv/internal/emby"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hevcCaps(level int) capabilities.DeviceCapabilities {
	return capabilities.DeviceCapabilities{
		VideoCodecs: []string{"h264", "h265", "hevc", "vp9"},
		AudioCodecs: []string{"aac", "ac3", "eac3"},
		CodecLevels: []capabilities.CodecLevel{{Codec: "h264", MaxLevel: level}},
		MaxWidth:    3840,
		MaxHeight:   2160,
	}
}

func findCondition(t *testing.T, p *emby.DeviceProfile, codec, property string) string {
	t.Helper()
	for _, cp := range p.CodecProfiles {
		if cp.Codec != codec {
			continue
		}
		for _, c := range cp.Conditions {
			if c.Property == property {
				return c.Value
			}
		}
	}
	t.Fatalf("no %s condition for %s", property, codec)
	return ""
}

func TestDecide_ForcesHevcOffWithoutHardware(t *testing.T) {
	caps := capabilities.DeviceCapabilities{VideoCodecs: []string{"h264"}}
	for _, requested := range []bool{false, true} {
		d := Decide(caps, requested)
		assert.True(t, d.DisableHevc)
		assert.Equal(t, !requested, d.HevcForced)
	}
}

func TestDecide_Levels(t *testing.T) {
	tests := []struct {
		name        string
		caps        capabilities.DeviceCapabilities
		disableHevc bool
		want        int
	}{
		{name: "clamped", caps: hevcCaps(63), want: 62},
		{name: "clamped far above", caps: hevcCaps(90), want: 62},
		{name: "passthrough", caps: hevcCaps(52), want: 52},
		{name: "hevc disabled by caller", caps: hevcCaps(62), disableHevc: true, want: 51},
		{name: "hevc disabled low level", caps: hevcCaps(41), disableHevc: true, want: 51},
		{name: "no hevc hardware", caps: capabilities.DeviceCapabilities{VideoCodecs: []string{"h264"}, CodecLevels: []capabilities.CodecLevel{{Codec: "h264", MaxLevel: 62}}}, want: 51},
		{name: "unreported level", caps: capabilities.DeviceCapabilities{VideoCodecs: []string{"hevc"}}, want: 51},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.caps, tt.disableHevc).FinalLevel)
		})
	}
}

func TestBuildDeviceProfile_H264AacOnly(t *testing.T) {
	caps := capabilities.DeviceCapabilities{
		VideoCodecs: []string{"h264"},
		AudioCodecs: []string{"aac"},
		MaxWidth:    1920,
		MaxHeight:   1080,
	}
	p, d := BuildDeviceProfile(caps, ProfileOptions{DisableHevc: false})
	assert.True(t, d.DisableHevc)
	assert.Equal(t, 51, d.FinalLevel)
	assert.Equal(t, "51", findCondition(t, p, "h264", "VideoLevel"))

	for _, dp := range p.DirectPlayProfiles {
		assert.NotContains(t, strings.ToLower(dp.VideoCodec), "hevc")
		assert.NotContains(t, strings.ToLower(dp.VideoCodec), "h265")
	}
	for _, tp := range p.TranscodingProfiles {
		assert.NotContains(t, tp.VideoCodec, "hevc")
	}
	for _, cp := range p.CodecProfiles {
		assert.NotEqual(t, "hevc", cp.Codec)
	}

	wantDirect := []emby.DirectPlayProfile{
		{Type: "Video", Container: "mp4,m4v,mkv,webm,mov,ts,m2ts,avi", VideoCodec: "h264", AudioCodec: "aac"},
		{Type: "Audio", Container: "aac,m4a,m4b,mp4", AudioCodec: "aac"},
	}
	if diff := cmp.Diff(wantDirect, p.DirectPlayProfiles); diff != "" {
		t.Errorf("direct play profiles mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildDeviceProfile_HevcEnabled(t *testing.T) {
	p, d := BuildDeviceProfile(hevcCaps(52), ProfileOptions{MaxStreamingBitrate: 40_000_000})
	assert.False(t, d.DisableHevc)
	assert.Equal(t, int64(40_000_000), p.MaxStreamingBitrate)
	assert.Equal(t, DefaultMaxStaticBitrate, p.MaxStaticBitrate)
	assert.Equal(t, 3840, p.MaxCanvasWidth)
	require.NotEmpty(t, p.DirectPlayProfiles)
	assert.Equal(t, "h264,h265,hevc,vp9", p.DirectPlayProfiles[0].VideoCodec)
	assert.Equal(t, "hvc1|hev1|hevc|hdmv", findCondition(t, p, "hevc", "VideoCodecTag"))
	assert.Equal(t, "3840", findCondition(t, p, "h264", "Width"))

	var hls, mkv *emby.TranscodingProfile
	for i := range p.TranscodingProfiles {
		tp := &p.TranscodingProfiles[i]
		switch {
		case tp.Type == "Video" && tp.Protocol == "hls":
			hls = tp
		case tp.Type == "Video" && tp.Container == "mkv":
			mkv = tp
		}
	}
	require.NotNil(t, hls)
	require.NotNil(t, mkv)
	assert.Equal(t, "ts", hls.Container)
	assert.Equal(t, "hevc,h264", hls.VideoCodec)
	assert.Equal(t, "aac,ac3,eac3", hls.AudioCodec)
	assert.Equal(t, "Static", mkv.Context)
}

func TestBuildDeviceProfile_DisableHevcStripsBothNames(t *testing.T) {
	p, d := BuildDeviceProfile(hevcCaps(62), ProfileOptions{DisableHevc: true})
	assert.Equal(t, 51, d.FinalLevel)
	assert.Equal(t, "h264,vp9", p.DirectPlayProfiles[0].VideoCodec)
}

func TestBuildDeviceProfile_SubtitleAndResponseProfiles(t *testing.T) {
	p, _ := BuildDeviceProfile(hevcCaps(51), ProfileOptions{})

	got := map[string][]string{}
	for _, sp := range p.SubtitleProfiles {
		got[sp.Method] = append(got[sp.Method], sp.Format)
	}
	want := map[string][]string{
		"Hls":      {"vtt"},
		"Embed":    {"eia_608", "eia_708", "srt", "subrip"},
		"External": {"vtt", "ass", "ssa", "srt", "subrip"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("subtitle profiles mismatch (-want +got):\n%s", diff)
	}

	wantResp := []emby.ResponseProfile{
		{Type: "Video", Container: "m4v", MimeType: "video/mp4"},
		{Type: "Video", Container: "mkv", MimeType: "video/x-matroska"},
	}
	if diff := cmp.Diff(wantResp, p.ResponseProfiles); diff != "" {
		t.Errorf("response profiles mismatch (-want +got):\n%s", diff)
	}
}
