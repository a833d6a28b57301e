// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package negotiate

import (
	"slices"
	"strconv"
	"strings"

	"github.com/ManuGH/embytv/internal/capabilities"
	"github.com/ManuGH/embytv/internal/emby"
)

const (
	// MaxH264Level is the highest level the server accepts in a codec profile.
	MaxH264Level = 62
	// CompatH264Level is advertised whenever HEVC is off, and when no level was probed.
	CompatH264Level = 51
)

const (
	DefaultMaxStreamingBitrate int64 = 120_000_000
	DefaultMaxStaticBitrate    int64 = 100_000_000
	musicTranscodingBitrate    int64 = 192_000
)

var videoContainers = []string{"mp4", "m4v", "mkv", "webm", "mov", "ts", "m2ts", "avi"}

// ProfileOptions are the caller-controlled knobs of a device profile.
type ProfileOptions struct {
	DisableHevc         bool
	MaxStreamingBitrate int64
	MaxStaticBitrate    int64
}

// ProfileDecision records the effective choices behind a device profile.
type ProfileDecision struct {
	DisableHevc bool `json:"disableHevc"`
	// HevcForced is set when capabilities, not the caller, turned HEVC off.
	HevcForced bool `json:"hevcForced"`
	FinalLevel int  `json:"finalLevel"`
}

// Decide computes the HEVC switch and advertised H.264 level.
func Decide(caps capabilities.DeviceCapabilities, disableHevc bool) ProfileDecision {
	d := ProfileDecision{DisableHevc: disableHevc}
	if !caps.SupportsHEVC() {
		d.HevcForced = !disableHevc
		d.DisableHevc = true
	}

	level := caps.H264Level()
	if level <= 0 {
		level = CompatH264Level
	}
	d.FinalLevel = min(level, MaxH264Level)
	if d.DisableHevc {
		d.FinalLevel = CompatH264Level
	}
	return d
}

// BuildDeviceProfile assembles the profile sent with PlaybackInfo.
func BuildDeviceProfile(caps capabilities.DeviceCapabilities, opts ProfileOptions) (*emby.DeviceProfile, ProfileDecision) {
	d := Decide(caps, opts.DisableHevc)

	streaming := opts.MaxStreamingBitrate
	if streaming <= 0 {
		streaming = DefaultMaxStreamingBitrate
	}
	static := opts.MaxStaticBitrate
	if static <= 0 {
		static = DefaultMaxStaticBitrate
	}

	video := directVideoCodecs(caps, d.DisableHevc)
	audio := slices.Clone(caps.AudioCodecs)

	p := &emby.DeviceProfile{
		Name:                             "embytv",
		MaxStreamingBitrate:              streaming,
		MaxStaticBitrate:                 static,
		MusicStreamingTranscodingBitrate: musicTranscodingBitrate,
		MaxCanvasWidth:                   caps.MaxWidth,
		MaxCanvasHeight:                  caps.MaxHeight,
		ContainerProfiles:                []emby.ContainerProfile{},
	}

	if len(video) > 0 {
		p.DirectPlayProfiles = append(p.DirectPlayProfiles, emby.DirectPlayProfile{
			Type:       "Video",
			Container:  strings.Join(videoContainers, ","),
			VideoCodec: strings.Join(video, ","),
			AudioCodec: strings.Join(audio, ","),
		})
	}
	for _, codec := range audio {
		p.DirectPlayProfiles = append(p.DirectPlayProfiles, emby.DirectPlayProfile{
			Type:       "Audio",
			Container:  audioContainer(codec),
			AudioCodec: codec,
		})
	}

	p.TranscodingProfiles = transcodingProfiles(caps, d.DisableHevc)
	p.CodecProfiles = codecProfiles(caps, d)
	p.SubtitleProfiles = subtitleProfiles()
	p.ResponseProfiles = []emby.ResponseProfile{
		{Type: "Video", Container: "m4v", MimeType: "video/mp4"},
		{Type: "Video", Container: "mkv", MimeType: "video/x-matroska"},
	}
	return p, d
}

func directVideoCodecs(caps capabilities.DeviceCapabilities, disableHevc bool) []string {
	out := make([]string, 0, len(caps.VideoCodecs))
	for _, c := range caps.VideoCodecs {
		if disableHevc && isHevc(c) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func isHevc(codec string) bool {
	return strings.EqualFold(codec, capabilities.CodecHEVC) || strings.EqualFold(codec, capabilities.CodecH265)
}

func audioContainer(codec string) string {
	switch codec {
	case capabilities.CodecAAC:
		return "aac,m4a,m4b,mp4"
	case capabilities.CodecOpus:
		return "ogg,opus,webm,webma"
	case capabilities.CodecFLAC:
		return "flac"
	case capabilities.CodecMP3:
		return "mp3"
	default:
		return codec
	}
}

// transcodeAudio is the preferred audio set for video transcodes.
func transcodeAudio(caps capabilities.DeviceCapabilities) string {
	var out []string
	for _, c := range []string{capabilities.CodecAAC, capabilities.CodecMP3, capabilities.CodecAC3, capabilities.CodecEAC3} {
		if caps.SupportsAudio(c) {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		out = []string{capabilities.CodecAAC}
	}
	return strings.Join(out, ",")
}

func transcodingProfiles(caps capabilities.DeviceCapabilities, disableHevc bool) []emby.TranscodingProfile {
	videoCodec := capabilities.CodecH264
	if !disableHevc {
		videoCodec = capabilities.CodecHEVC + "," + capabilities.CodecH264
	}
	audio := transcodeAudio(caps)

	return []emby.TranscodingProfile{
		{Type: "Audio", Container: "mp3", AudioCodec: "mp3", Protocol: "http", Context: "Streaming"},
		{Type: "Audio", Container: "aac", AudioCodec: "aac", Protocol: "http", Context: "Streaming"},
		{Type: "Audio", Container: "opus", AudioCodec: "opus", Protocol: "http", Context: "Streaming"},
		{Type: "Audio", Container: "mp3", AudioCodec: "mp3", Protocol: "http", Context: "Static"},
		{
			Type:                "Video",
			Container:           "ts",
			VideoCodec:          videoCodec,
			AudioCodec:          audio,
			Protocol:            "hls",
			Context:             "Streaming",
			MaxAudioChannels:    "6",
			MinSegments:         1,
			SegmentLength:       3,
			BreakOnNonKeyFrames: true,
		},
		{
			Type:                  "Video",
			Container:             "mkv",
			VideoCodec:            videoCodec,
			AudioCodec:            audio,
			Protocol:              "http",
			Context:               "Static",
			MaxAudioChannels:      "6",
			CopyTimestamps:        true,
			EstimateContentLength: true,
		},
	}
}

func codecProfiles(caps capabilities.DeviceCapabilities, d ProfileDecision) []emby.CodecProfile {
	h264 := emby.CodecProfile{
		Type:  "Video",
		Codec: capabilities.CodecH264,
		Conditions: []emby.ProfileCondition{
			{Condition: "EqualsAny", Property: "VideoProfile", Value: "high|main|baseline|constrained baseline"},
			{Condition: "LessThanEqual", Property: "VideoLevel", Value: strconv.Itoa(d.FinalLevel)},
			{Condition: "NotEquals", Property: "IsAnamorphic", Value: "true"},
		},
	}
	if caps.MaxWidth > 0 && caps.MaxHeight > 0 {
		h264.Conditions = append(h264.Conditions,
			emby.ProfileCondition{Condition: "LessThanEqual", Property: "Width", Value: strconv.Itoa(caps.MaxWidth)},
			emby.ProfileCondition{Condition: "LessThanEqual", Property: "Height", Value: strconv.Itoa(caps.MaxHeight)},
		)
	}
	out := []emby.CodecProfile{h264}

	if !d.DisableHevc {
		out = append(out, emby.CodecProfile{
			Type:  "Video",
			Codec: capabilities.CodecHEVC,
			Conditions: []emby.ProfileCondition{
				{Condition: "EqualsAny", Property: "VideoCodecTag", Value: "hvc1|hev1|hevc|hdmv"},
				{Condition: "EqualsAny", Property: "VideoProfile", Value: "main|main 10"},
			},
		})
	}
	return out
}

func subtitleProfiles() []emby.SubtitleProfile {
	return []emby.SubtitleProfile{
		{Format: "vtt", Method: emby.SubtitleDeliveryHls},
		{Format: "eia_608", Method: emby.SubtitleDeliveryEmbed},
		{Format: "eia_708", Method: emby.SubtitleDeliveryEmbed},
		{Format: "vtt", Method: emby.SubtitleDeliveryExternal},
		{Format: "ass", Method: emby.SubtitleDeliveryExternal},
		{Format: "ssa", Method: emby.SubtitleDeliveryExternal},
		{Format: "srt", Method: emby.SubtitleDeliveryExternal},
		{Format: "subrip", Method: emby.SubtitleDeliveryExternal},
		{Format: "srt", Method: emby.SubtitleDeliveryEmbed},
		{Format: "subrip", Method: emby.SubtitleDeliveryEmbed},
	}
}
