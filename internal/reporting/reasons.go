// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package reporting

// TranscodeReason is a server transcode reason code.
type TranscodeReason string

const (
	ReasonContainerNotSupported        TranscodeReason = "ContainerNotSupported"
	ReasonVideoCodecNotSupported       TranscodeReason = "VideoCodecNotSupported"
	ReasonAudioCodecNotSupported       TranscodeReason = "AudioCodecNotSupported"
	ReasonSubtitleCodecNotSupported    TranscodeReason = "SubtitleCodecNotSupported"
	ReasonContainerBitrateExceedsLimit TranscodeReason = "ContainerBitrateExceedsLimit"
	ReasonVideoBitrateNotSupported     TranscodeReason = "VideoBitrateNotSupported"
	ReasonAudioBitrateNotSupported     TranscodeReason = "AudioBitrateNotSupported"
	ReasonAudioChannelsNotSupported    TranscodeReason = "AudioChannelsNotSupported"
	ReasonAudioProfileNotSupported     TranscodeReason = "AudioProfileNotSupported"
	ReasonAudioSampleRateNotSupported  TranscodeReason = "AudioSampleRateNotSupported"
	ReasonAudioBitDepthNotSupported    TranscodeReason = "AudioBitDepthNotSupported"
	ReasonSecondaryAudioNotSupported   TranscodeReason = "SecondaryAudioNotSupported"
	ReasonVideoResolutionNotSupported  TranscodeReason = "VideoResolutionNotSupported"
	ReasonVideoLevelNotSupported       TranscodeReason = "VideoLevelNotSupported"
	ReasonVideoProfileNotSupported     TranscodeReason = "VideoProfileNotSupported"
	ReasonVideoBitDepthNotSupported    TranscodeReason = "VideoBitDepthNotSupported"
	ReasonVideoFramerateNotSupported   TranscodeReason = "VideoFramerateNotSupported"
	ReasonVideoRangeNotSupported       TranscodeReason = "VideoRangeNotSupported"
	ReasonRefFramesNotSupported        TranscodeReason = "RefFramesNotSupported"
	ReasonAnamorphicVideoNotSupported  TranscodeReason = "AnamorphicVideoNotSupported"
	ReasonInterlacedVideoNotSupported  TranscodeReason = "InterlacedVideoNotSupported"
	ReasonUnknownVideoStreamInfo       TranscodeReason = "UnknownVideoStreamInfo"
	ReasonUnknownAudioStreamInfo       TranscodeReason = "UnknownAudioStreamInfo"
	ReasonDirectPlayError              TranscodeReason = "DirectPlayError"
)

var reasonText = map[TranscodeReason]string{
	ReasonContainerNotSupported:        "Container not supported",
	ReasonVideoCodecNotSupported:       "Video codec not supported",
	ReasonAudioCodecNotSupported:       "Audio codec not supported",
	ReasonSubtitleCodecNotSupported:    "Subtitle format not supported",
	ReasonContainerBitrateExceedsLimit: "Bitrate exceeds limit",
	ReasonVideoBitrateNotSupported:     "Video bitrate not supported",
	ReasonAudioBitrateNotSupported:     "Audio bitrate not supported",
	ReasonAudioChannelsNotSupported:    "Audio channels not supported",
	ReasonAudioProfileNotSupported:     "Audio profile not supported",
	ReasonAudioSampleRateNotSupported:  "Audio sample rate not supported",
	ReasonAudioBitDepthNotSupported:    "Audio bit depth not supported",
	ReasonSecondaryAudioNotSupported:   "Secondary audio not supported",
	ReasonVideoResolutionNotSupported:  "Video resolution not supported",
	ReasonVideoLevelNotSupported:       "Video level not supported",
	ReasonVideoProfileNotSupported:     "Video profile not supported",
	ReasonVideoBitDepthNotSupported:    "Video bit depth not supported",
	ReasonVideoFramerateNotSupported:   "Video framerate not supported",
	ReasonVideoRangeNotSupported:       "HDR range not supported",
	ReasonRefFramesNotSupported:        "Reference frames not supported",
	ReasonAnamorphicVideoNotSupported:  "Anamorphic video not supported",
	ReasonInterlacedVideoNotSupported:  "Interlaced video not supported",
	ReasonUnknownVideoStreamInfo:       "Unknown video stream",
	ReasonUnknownAudioStreamInfo:       "Unknown audio stream",
	ReasonDirectPlayError:              "Direct play failed",
}

// ReasonText returns the display text for a reason code. Unknown codes are
// returned unchanged.
func ReasonText(code string) string {
	if text, ok := reasonText[TranscodeReason(code)]; ok {
		return text
	}
	return code
}
