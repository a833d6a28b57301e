// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package reporting

import (
	"fmt"
	"strings"

	"github.com/ManuGH/embytv/internal/emby"
)

// Diagnostics is the overlay summary of a server session.
type Diagnostics struct {
	SessionID     string          `json:"sessionId"`
	PlayMethod    emby.PlayMethod `json:"playMethod,omitempty"`
	Transcoding   bool            `json:"transcoding"`
	Container     string          `json:"container,omitempty"`
	VideoCodec    string          `json:"videoCodec,omitempty"`
	AudioCodec    string          `json:"audioCodec,omitempty"`
	Bitrate       int64           `json:"bitrate,omitempty"`
	Width         int             `json:"width,omitempty"`
	Height        int             `json:"height,omitempty"`
	Framerate     float64         `json:"framerate,omitempty"`
	VideoDirect   bool            `json:"videoDirect"`
	AudioDirect   bool            `json:"audioDirect"`
	HWDecode      bool            `json:"hwDecode"`
	HWEncode      bool            `json:"hwEncode"`
	HWAccel       string          `json:"hwAccel,omitempty"`
	Progress      float64         `json:"progress,omitempty"`
	Reasons       []string        `json:"reasons,omitempty"`
	ReasonCodes   []string        `json:"reasonCodes,omitempty"`
	PositionTicks int64           `json:"positionTicks,omitempty"`
}

// Summarize extracts the overlay fields of a session.
func Summarize(s emby.SessionInfo) Diagnostics {
	d := Diagnostics{SessionID: s.ID}
	if s.PlayState != nil {
		d.PlayMethod = s.PlayState.PlayMethod
		d.PositionTicks = s.PlayState.PositionTicks
	}
	ti := s.Transcoding
	if ti == nil {
		return d
	}
	d.Transcoding = d.PlayMethod == emby.PlayMethodTranscode || !ti.IsVideoDirect || !ti.IsAudioDirect
	d.Container = ti.Container
	d.VideoCodec = ti.VideoCodec
	d.AudioCodec = ti.AudioCodec
	d.Bitrate = ti.Bitrate
	d.Width, d.Height = ti.Width, ti.Height
	d.Framerate = ti.Framerate
	d.VideoDirect = ti.IsVideoDirect
	d.AudioDirect = ti.IsAudioDirect
	d.HWDecode = ti.VideoDecoderIsHardware
	d.HWEncode = ti.VideoEncoderIsHardware
	d.HWAccel = ti.VideoEncoderHwAccel
	if d.HWAccel == "" {
		d.HWAccel = ti.VideoDecoderHwAccel
	}
	d.Progress = ti.CompletionPercentage
	for _, code := range ti.TranscodeReasons {
		d.ReasonCodes = append(d.ReasonCodes, code)
		d.Reasons = append(d.Reasons, ReasonText(code))
	}
	return d
}

// Lines renders the summary as overlay text.
func (d Diagnostics) Lines() []string {
	lines := []string{"Play method: " + orDash(string(d.PlayMethod))}
	if !d.Transcoding {
		return lines
	}
	stream := func(codec string, direct bool) string {
		if direct {
			return orDash(codec) + " (direct)"
		}
		return orDash(codec)
	}
	lines = append(lines,
		fmt.Sprintf("Video: %s", stream(d.VideoCodec, d.VideoDirect)),
		fmt.Sprintf("Audio: %s", stream(d.AudioCodec, d.AudioDirect)),
	)
	if d.Bitrate > 0 {
		lines = append(lines, fmt.Sprintf("Bitrate: %.1f Mbps", float64(d.Bitrate)/1_000_000))
	}
	if d.HWDecode || d.HWEncode {
		lines = append(lines, strings.TrimSpace(fmt.Sprintf("Hardware: decode=%t encode=%t %s", d.HWDecode, d.HWEncode, d.HWAccel)))
	}
	if len(d.Reasons) > 0 {
		lines = append(lines, "Reason: "+strings.Join(d.Reasons, ", "))
	}
	return lines
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
