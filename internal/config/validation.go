// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"net/url"

	"github.com/rs/zerolog"
)

// maxAVCLevel is the highest H.264 level number a device can report (6.2).
const maxAVCLevel = 62

// Validate checks cfg and returns every problem found, joined.
func Validate(cfg AppConfig) error {
	var errs []error
	add := func(field, msg string) {
		errs = append(errs, &FieldError{Field: field, Message: msg})
	}

	if cfg.Emby.BaseURL == "" {
		add("emby.baseUrl", "is required")
	} else if u, err := url.Parse(cfg.Emby.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("emby.baseUrl", "must be an absolute http(s) URL")
	}
	if cfg.Emby.UserID == "" {
		add("emby.userId", "is required")
	}
	if cfg.Emby.Timeout <= 0 {
		add("emby.timeout", "must be positive")
	}
	if cfg.Emby.MaxRetries < -1 {
		add("emby.maxRetries", "must be -1 (off) or more")
	}
	if cfg.Emby.RateLimit < 0 {
		add("emby.rateLimit", "must not be negative")
	}

	if cfg.Playback.MaxStreamingBitrate <= 0 {
		add("playback.maxStreamingBitrate", "must be positive")
	}
	if cfg.Playback.MaxStaticBitrate <= 0 {
		add("playback.maxStaticBitrate", "must be positive")
	}
	if cfg.Playback.ProgressInterval <= 0 {
		add("playback.progressInterval", "must be positive")
	}
	if cfg.Playback.ProgressEvery < 1 {
		add("playback.progressEvery", "must be at least 1")
	}
	if cfg.Playback.StopTimeout <= 0 {
		add("playback.stopTimeout", "must be positive")
	}
	if cfg.Playback.ResolveAttempts < 1 {
		add("playback.resolveAttempts", "must be at least 1")
	}
	if cfg.Playback.ResolveInterval < 0 {
		add("playback.resolveInterval", "must not be negative")
	}

	if cfg.Capabilities.SnapshotPath == "" && cfg.Capabilities.FFmpegPath == "" {
		add("capabilities", "snapshotPath or ffmpegPath is required")
	}
	if cfg.Capabilities.H264Level < 0 || cfg.Capabilities.H264Level > maxAVCLevel {
		add("capabilities.h264Level", "must be between 0 and 62")
	}
	if cfg.Capabilities.MaxWidth < 0 || cfg.Capabilities.MaxHeight < 0 {
		add("capabilities.maxWidth", "canvas size must not be negative")
	}

	if cfg.API.ListenAddr == "" {
		add("api.listenAddr", "is required")
	}
	if cfg.API.RateLimit < 0 {
		add("api.rateLimit", "must not be negative")
	}
	if cfg.API.RateLimit > 0 && cfg.API.RateWindow <= 0 {
		add("api.rateWindow", "must be positive when rateLimit is set")
	}

	if cfg.Log.Level != "" {
		if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
			add("log.level", "unknown level "+cfg.Log.Level)
		}
	}

	if cfg.Telemetry.Enabled {
		switch cfg.Telemetry.Exporter {
		case "grpc", "http":
		default:
			add("telemetry.exporter", "must be grpc or http")
		}
		if cfg.Telemetry.Endpoint == "" {
			add("telemetry.endpoint", "is required when telemetry is enabled")
		}
	}
	if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
		add("telemetry.samplingRate", "must be between 0 and 1")
	}

	return errors.Join(errs...)
}
