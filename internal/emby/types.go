// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package emby

import (
	"strings"
	"time"
)

// TicksPerSecond is the server time unit: 10,000,000 ticks per second.
const TicksPerSecond int64 = 10_000_000

// ToTicks converts a duration into server ticks.
func ToTicks(d time.Duration) int64 {
	return int64(d / 100)
}

// FromTicks converts server ticks into a duration.
func FromTicks(ticks int64) time.Duration {
	return time.Duration(ticks) * 100
}

// PlayMethod is the server's play method vocabulary.
type PlayMethod string

const (
	PlayMethodDirectPlay   PlayMethod = "DirectPlay"
	PlayMethodDirectStream PlayMethod = "DirectStream"
	PlayMethodTranscode    PlayMethod = "Transcode"
)

// StreamType classifies a MediaStream.
type StreamType string

const (
	StreamTypeVideo    StreamType = "Video"
	StreamTypeAudio    StreamType = "Audio"
	StreamTypeSubtitle StreamType = "Subtitle"
)

// Subtitle delivery methods used in SubtitleProfiles.
const (
	SubtitleDeliveryEmbed    = "Embed"
	SubtitleDeliveryExternal = "External"
	SubtitleDeliveryHls      = "Hls"
	SubtitleDeliveryEncode   = "Encode"
)

// DeviceProfile is the capability document sent with PlaybackInfo.
type DeviceProfile struct {
	Name                             string               `json:"Name,omitempty"`
	MaxStreamingBitrate              int64                `json:"MaxStreamingBitrate,omitempty"`
	MaxStaticBitrate                 int64                `json:"MaxStaticBitrate,omitempty"`
	MusicStreamingTranscodingBitrate int64                `json:"MusicStreamingTranscodingBitrate,omitempty"`
	MaxCanvasWidth                   int                  `json:"MaxCanvasWidth,omitempty"`
	MaxCanvasHeight                  int                  `json:"MaxCanvasHeight,omitempty"`
	DirectPlayProfiles               []DirectPlayProfile  `json:"DirectPlayProfiles"`
	TranscodingProfiles              []TranscodingProfile `json:"TranscodingProfiles"`
	ContainerProfiles                []ContainerProfile   `json:"ContainerProfiles"`
	CodecProfiles                    []CodecProfile       `json:"CodecProfiles"`
	SubtitleProfiles                 []SubtitleProfile    `json:"SubtitleProfiles"`
	ResponseProfiles                 []ResponseProfile    `json:"ResponseProfiles"`
}

type DirectPlayProfile struct {
	Type       string `json:"Type"`                 // "Video" | "Audio"
	Container  string `json:"Container,omitempty"`  // e.g. "mp4,m4v"
	VideoCodec string `json:"VideoCodec,omitempty"` // e.g. "h264,hevc"
	AudioCodec string `json:"AudioCodec,omitempty"` // e.g. "aac,ac3"
}

type TranscodingProfile struct {
	Type                  string `json:"Type"`
	Container             string `json:"Container"`
	VideoCodec            string `json:"VideoCodec,omitempty"`
	AudioCodec            string `json:"AudioCodec,omitempty"`
	Protocol              string `json:"Protocol"` // "hls" | "http"
	Context               string `json:"Context"`  // "Streaming" | "Static"
	MaxAudioChannels      string `json:"MaxAudioChannels,omitempty"`
	MinSegments           int    `json:"MinSegments,omitempty"`
	SegmentLength         int    `json:"SegmentLength,omitempty"`
	BreakOnNonKeyFrames   bool   `json:"BreakOnNonKeyFrames,omitempty"`
	CopyTimestamps        bool   `json:"CopyTimestamps,omitempty"`
	EstimateContentLength bool   `json:"EstimateContentLength,omitempty"`
}

type ContainerProfile struct {
	Type       string             `json:"Type"`
	Container  string             `json:"Container"`
	Conditions []ProfileCondition `json:"Conditions"`
}

type CodecProfile struct {
	Type       string             `json:"Type"` // "Video" | "VideoAudio" | "Audio"
	Codec      string             `json:"Codec,omitempty"`
	Container  string             `json:"Container,omitempty"`
	Conditions []ProfileCondition `json:"Conditions"`
}

type ProfileCondition struct {
	Condition  string `json:"Condition"` // "LessThanEqual" | "EqualsAny" | "NotEquals" | ...
	Property   string `json:"Property"`
	Value      string `json:"Value"`
	IsRequired bool   `json:"IsRequired"`
}

type SubtitleProfile struct {
	Format    string `json:"Format"`
	Method    string `json:"Method"`
	Protocol  string `json:"Protocol,omitempty"`
	Container string `json:"Container,omitempty"`
}

type ResponseProfile struct {
	Type      string `json:"Type"`
	Container string `json:"Container"`
	MimeType  string `json:"MimeType"`
}

// PlaybackInfoQuery carries the query parameters of POST /Items/{id}/PlaybackInfo.
type PlaybackInfoQuery struct {
	UserID              string
	StartTimeTicks      int64
	MaxStreamingBitrate int64
	AudioStreamIndex    *int
	SubtitleStreamIndex *int
	MediaSourceID       string
}

// PlaybackInfoRequest is the JSON body of POST /Items/{id}/PlaybackInfo.
type PlaybackInfoRequest struct {
	DeviceProfile *DeviceProfile `json:"DeviceProfile,omitempty"`
}

type PlaybackInfoResponse struct {
	MediaSources  []MediaSourceInfo `json:"MediaSources"`
	PlaySessionID string            `json:"PlaySessionId,omitempty"`
	ErrorCode     string            `json:"ErrorCode,omitempty"`
}

type MediaSourceInfo struct {
	ID        string `json:"Id"`
	Path      string `json:"Path,omitempty"`
	Protocol  string `json:"Protocol,omitempty"`
	Container string `json:"Container,omitempty"`
	Bitrate   int64  `json:"Bitrate,omitempty"`

	// Runtime ticks: 10,000,000 ticks per second.
	RunTimeTicks int64 `json:"RunTimeTicks,omitempty"`

	SupportsDirectPlay   bool `json:"SupportsDirectPlay"`
	SupportsDirectStream bool `json:"SupportsDirectStream"`
	SupportsTranscoding  bool `json:"SupportsTranscoding"`

	DirectStreamURL        string `json:"DirectStreamUrl,omitempty"`
	TranscodingURL         string `json:"TranscodingUrl,omitempty"`
	TranscodingContainer   string `json:"TranscodingContainer,omitempty"`
	TranscodingSubProtocol string `json:"TranscodingSubProtocol,omitempty"`

	PlaySessionID string `json:"PlaySessionId,omitempty"`

	DefaultAudioStreamIndex    *int `json:"DefaultAudioStreamIndex,omitempty"`
	DefaultSubtitleStreamIndex *int `json:"DefaultSubtitleStreamIndex,omitempty"`

	MediaStreams []MediaStream `json:"MediaStreams"`
}

// StreamsOf returns the streams of the given type in metadata order.
func (s *MediaSourceInfo) StreamsOf(t StreamType) []MediaStream {
	return FilterStreams(s.MediaStreams, t)
}

// StreamByIndex returns the stream carrying the given server index.
func (s *MediaSourceInfo) StreamByIndex(index int) (MediaStream, bool) {
	for _, ms := range s.MediaStreams {
		if ms.Index == index {
			return ms, true
		}
	}
	return MediaStream{}, false
}

// MediaStream is one audio/video/subtitle track as described by the server.
// Index is server assigned and not necessarily contiguous.
type MediaStream struct {
	Index                  int        `json:"Index"`
	Type                   StreamType `json:"Type"`
	Codec                  string     `json:"Codec,omitempty"`
	Language               string     `json:"Language,omitempty"`
	Title                  string     `json:"Title,omitempty"`
	DisplayTitle           string     `json:"DisplayTitle,omitempty"`
	IsDefault              bool       `json:"IsDefault"`
	IsForced               bool       `json:"IsForced,omitempty"`
	IsExternal             bool       `json:"IsExternal"`
	SupportsExternalStream bool       `json:"SupportsExternalStream"`
	DeliveryMethod         string     `json:"DeliveryMethod,omitempty"`
	DeliveryURL            string     `json:"DeliveryUrl,omitempty"`
}

// Label returns the best human label for the stream.
func (m MediaStream) Label() string {
	if m.DisplayTitle != "" {
		return m.DisplayTitle
	}
	return m.Title
}

// FilterStreams returns the streams of the given type, preserving order.
func FilterStreams(streams []MediaStream, t StreamType) []MediaStream {
	out := make([]MediaStream, 0, len(streams))
	for _, ms := range streams {
		if strings.EqualFold(string(ms.Type), string(t)) {
			out = append(out, ms)
		}
	}
	return out
}

// SeekableRange is a seekable window in ticks.
type SeekableRange struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// PlaybackProgressInfo is the body of the playing/progress/stopped reports.
type PlaybackProgressInfo struct {
	ItemID              string          `json:"ItemId"`
	MediaSourceID       string          `json:"MediaSourceId,omitempty"`
	PlaySessionID       string          `json:"PlaySessionId,omitempty"`
	PositionTicks       int64           `json:"PositionTicks"`
	IsPaused            bool            `json:"IsPaused"`
	PlayMethod          PlayMethod      `json:"PlayMethod,omitempty"`
	AudioStreamIndex    *int            `json:"AudioStreamIndex,omitempty"`
	SubtitleStreamIndex *int            `json:"SubtitleStreamIndex,omitempty"`
	SeekableRanges      []SeekableRange `json:"SeekableRanges"`
	EventName           string          `json:"EventName,omitempty"`
}

// SessionInfo is the subset of GET /Sessions used for diagnostics.
type SessionInfo struct {
	ID             string           `json:"Id"`
	UserID         string           `json:"UserId,omitempty"`
	Client         string           `json:"Client,omitempty"`
	DeviceID       string           `json:"DeviceId,omitempty"`
	DeviceName     string           `json:"DeviceName,omitempty"`
	NowPlayingItem *NowPlayingItem  `json:"NowPlayingItem,omitempty"`
	PlayState      *PlayState       `json:"PlayState,omitempty"`
	Transcoding    *TranscodingInfo `json:"TranscodingInfo,omitempty"`
}

type NowPlayingItem struct {
	ID            string `json:"Id"`
	Name          string `json:"Name,omitempty"`
	MediaSourceID string `json:"MediaSourceId,omitempty"`
	RunTimeTicks  int64  `json:"RunTimeTicks,omitempty"`
}

type PlayState struct {
	PositionTicks       int64      `json:"PositionTicks,omitempty"`
	IsPaused            bool       `json:"IsPaused"`
	PlayMethod          PlayMethod `json:"PlayMethod,omitempty"`
	MediaSourceID       string     `json:"MediaSourceId,omitempty"`
	AudioStreamIndex    *int       `json:"AudioStreamIndex,omitempty"`
	SubtitleStreamIndex *int       `json:"SubtitleStreamIndex,omitempty"`
}

// TranscodingInfo is the server's view of an active encoding.
type TranscodingInfo struct {
	AudioCodec                   string   `json:"AudioCodec,omitempty"`
	VideoCodec                   string   `json:"VideoCodec,omitempty"`
	Container                    string   `json:"Container,omitempty"`
	Bitrate                      int64    `json:"Bitrate,omitempty"`
	Framerate                    float64  `json:"Framerate,omitempty"`
	CompletionPercentage         float64  `json:"CompletionPercentage,omitempty"`
	Width                        int      `json:"Width,omitempty"`
	Height                       int      `json:"Height,omitempty"`
	AudioChannels                int      `json:"AudioChannels,omitempty"`
	IsVideoDirect                bool     `json:"IsVideoDirect"`
	IsAudioDirect                bool     `json:"IsAudioDirect"`
	VideoDecoderIsHardware       bool     `json:"VideoDecoderIsHardware"`
	VideoEncoderIsHardware       bool     `json:"VideoEncoderIsHardware"`
	VideoDecoderHwAccel          string   `json:"VideoDecoderHwAccel,omitempty"`
	VideoEncoderHwAccel          string   `json:"VideoEncoderHwAccel,omitempty"`
	TranscodeReasons             []string `json:"TranscodeReasons,omitempty"`
	CurrentThrottle              int      `json:"CurrentThrottle,omitempty"`
	TranscodingPositionTicks     int64    `json:"TranscodingPositionTicks,omitempty"`
	TranscodingStartPositionTick int64    `json:"TranscodingStartPositionTicks,omitempty"`
}
