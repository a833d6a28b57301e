// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	ItemIDKey          = "emby.item_id"
	MediaSourceIDKey   = "emby.media_source_id"
	PlayMethodKey      = "playback.method"
	DisableHevcKey     = "playback.disable_hevc"
	H264LevelKey       = "playback.h264_level"
	SourceCountKey     = "playback.source_count"
	AudioIndexKey      = "playback.audio_index"
	SubtitleIndexKey   = "playback.subtitle_index"
	StartTicksKey      = "playback.start_ticks"
	FallbackAttemptKey = "playback.fallback"
)

// NegotiationAttributes creates span attributes for a PlaybackInfo negotiation.
func NegotiationAttributes(itemID string, startTicks int64, disableHevc bool, level int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ItemIDKey, itemID),
		attribute.Int64(StartTicksKey, startTicks),
		attribute.Bool(DisableHevcKey, disableHevc),
		attribute.Int(H264LevelKey, level),
	}
}
