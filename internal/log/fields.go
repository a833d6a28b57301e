// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldPlaybackID    = "playback_id"
	FieldRequestID     = "request_id"
	FieldItemID        = "item_id"
	FieldMediaSourceID = "media_source_id"
	FieldPlaySessionID = "play_session_id"
	FieldSessionID     = "session_id"
	FieldDeviceID      = "device_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldTrigger   = "trigger"

	// Media / stream fields
	FieldPlayMethod    = "play_method"
	FieldCodec         = "codec"
	FieldLevel         = "level"
	FieldAudioIndex    = "audio_index"
	FieldSubtitleIndex = "subtitle_index"
	FieldStrategy      = "strategy"
	FieldTrackType     = "track_type"
	FieldPositionTicks = "position_ticks"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Network fields
	FieldBaseURL   = "base_url"
	FieldURL       = "url"
	FieldOperation = "operation"
	FieldStatus    = "status"
	FieldAttempt   = "attempt"
)
