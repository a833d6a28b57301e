// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package reporting

import (
	"testing"

	"github.com/ManuGH/embytv/internal/emby"
	"github.com/stretchr/testify/assert"
)

func TestReasonText(t *testing.T) {
	assert.Equal(t, "Video codec not supported", ReasonText("VideoCodecNotSupported"))
	assert.Equal(t, "Bitrate exceeds limit", ReasonText(string(ReasonContainerBitrateExceedsLimit)))
	assert.Equal(t, "SomethingNew", ReasonText("SomethingNew"))
}

func TestSummarize(t *testing.T) {
	d := Summarize(emby.SessionInfo{
		ID:        "s",
		PlayState: &emby.PlayState{PlayMethod: emby.PlayMethodTranscode, PositionTicks: 10},
		Transcoding: &emby.TranscodingInfo{
			VideoCodec:             "h264",
			AudioCodec:             "aac",
			IsAudioDirect:          true,
			Bitrate:                8_000_000,
			VideoDecoderIsHardware: true,
			VideoEncoderHwAccel:    "vaapi",
			TranscodeReasons:       []string{"VideoCodecNotSupported", "Custom"},
		},
	})
	assert.True(t, d.Transcoding)
	assert.Equal(t, []string{"Video codec not supported", "Custom"}, d.Reasons)
	assert.Equal(t, []string{"VideoCodecNotSupported", "Custom"}, d.ReasonCodes)
	assert.Equal(t, "vaapi", d.HWAccel)
	assert.Equal(t, []string{
		"Play method: Transcode",
		"Video: h264",
		"Audio: aac (direct)",
		"Bitrate: 8.0 Mbps",
		"Hardware: decode=true encode=false vaapi",
		"Reason: Video codec not supported, Custom",
	}, d.Lines())
}

func TestSummarize_DirectPlay(t *testing.T) {
	d := Summarize(emby.SessionInfo{ID: "s", PlayState: &emby.PlayState{PlayMethod: emby.PlayMethodDirectPlay}})
	assert.False(t, d.Transcoding)
	assert.Equal(t, []string{"Play method: DirectPlay"}, d.Lines())
}
