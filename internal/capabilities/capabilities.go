// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package capabilities probes what the local decoder stack can play.
package capabilities

import (
	"slices"
	"strings"
)

// Canonical codec names reported in DeviceCapabilities.
const (
	CodecH264   = "h264"
	CodecHEVC   = "hevc"
	CodecH265   = "h265"
	CodecAV1    = "av1"
	CodecVP9    = "vp9"
	CodecAAC    = "aac"
	CodecAC3    = "ac3"
	CodecEAC3   = "eac3"
	CodecMP3    = "mp3"
	CodecFLAC   = "flac"
	CodecOpus   = "opus"
	CodecDTS    = "dts"
	CodecDTSHD  = "dtshd"
	CodecTrueHD = "truehd"
	CodecAC4    = "ac4"
)

// UHD canvas reported for HEVC/AV1 capable devices.
const (
	UHDWidth  = 3840
	UHDHeight = 2160
)

// CodecLevel is the highest level a decoder reported for a codec.
type CodecLevel struct {
	Codec    string `yaml:"codec" json:"codec"`
	MaxLevel int    `yaml:"maxLevel" json:"maxLevel"`
}

// DeviceCapabilities is a snapshot of what the device can decode.
// Values are computed once and must be treated as read-only.
type DeviceCapabilities struct {
	VideoCodecs []string     `yaml:"videoCodecs" json:"videoCodecs"`
	AudioCodecs []string     `yaml:"audioCodecs" json:"audioCodecs"`
	CodecLevels []CodecLevel `yaml:"codecLevels,omitempty" json:"codecLevels,omitempty"`
	MaxWidth    int          `yaml:"maxWidth" json:"maxWidth"`
	MaxHeight   int          `yaml:"maxHeight" json:"maxHeight"`
}

// SupportsVideo reports whether the named video codec can be decoded.
func (c DeviceCapabilities) SupportsVideo(codec string) bool {
	return containsFold(c.VideoCodecs, codec)
}

// SupportsAudio reports whether the named audio codec can be decoded.
func (c DeviceCapabilities) SupportsAudio(codec string) bool {
	return containsFold(c.AudioCodecs, codec)
}

// SupportsHEVC reports HEVC under either of its names.
func (c DeviceCapabilities) SupportsHEVC() bool {
	return c.SupportsVideo(CodecHEVC) || c.SupportsVideo(CodecH265)
}

// SupportsAV1 reports AV1 decode support.
func (c DeviceCapabilities) SupportsAV1() bool {
	return c.SupportsVideo(CodecAV1)
}

// MaxLevel returns the reported level for codec, 0 when unknown.
func (c DeviceCapabilities) MaxLevel(codec string) int {
	for _, cl := range c.CodecLevels {
		if strings.EqualFold(cl.Codec, codec) {
			return cl.MaxLevel
		}
	}
	return 0
}

// H264Level returns the highest H.264 level, 0 when none was reported.
func (c DeviceCapabilities) H264Level() int {
	return c.MaxLevel(CodecH264)
}

// Clone returns a deep copy.
func (c DeviceCapabilities) Clone() DeviceCapabilities {
	return DeviceCapabilities{
		VideoCodecs: slices.Clone(c.VideoCodecs),
		AudioCodecs: slices.Clone(c.AudioCodecs),
		CodecLevels: slices.Clone(c.CodecLevels),
		MaxWidth:    c.MaxWidth,
		MaxHeight:   c.MaxHeight,
	}
}

// Source yields a capability snapshot.
type Source interface {
	Probe() DeviceCapabilities
}

// Static is a fixed snapshot, e.g. loaded from a file.
type Static DeviceCapabilities

// Probe returns a copy of the snapshot.
func (s Static) Probe() DeviceCapabilities {
	return DeviceCapabilities(s).Clone()
}

func containsFold(list []string, want string) bool {
	for _, v := range list {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}
