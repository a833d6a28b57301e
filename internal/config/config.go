// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the daemon configuration: YAML file, EMBYTV_*
// environment overrides, defaults, validation and hot reload.
package config

import (
	"time"
)

// AppConfig is the complete daemon configuration.
type AppConfig struct {
	Emby         EmbyConfig         `yaml:"emby"`
	Playback     PlaybackConfig     `yaml:"playback"`
	Capabilities CapabilitiesConfig `yaml:"capabilities"`
	API          APIConfig          `yaml:"api"`
	Log          LogConfig          `yaml:"log"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
}

// EmbyConfig addresses the Emby server and tunes the client.
type EmbyConfig struct {
	BaseURL    string `yaml:"baseUrl"`
	APIKey     string `yaml:"apiKey"`
	UserID     string `yaml:"userId"`
	DeviceID   string `yaml:"deviceId"`
	DeviceName string `yaml:"deviceName"`

	Timeout          time.Duration `yaml:"timeout"`
	MaxRetries       int           `yaml:"maxRetries"`
	RateLimit        float64       `yaml:"rateLimit"` // requests per second
	RateLimitBurst   int           `yaml:"rateLimitBurst"`
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerReset     time.Duration `yaml:"breakerReset"`
}

// PlaybackConfig carries negotiation and reporting knobs.
type PlaybackConfig struct {
	MaxStreamingBitrate int64         `yaml:"maxStreamingBitrate"`
	MaxStaticBitrate    int64         `yaml:"maxStaticBitrate"`
	ProgressInterval    time.Duration `yaml:"progressInterval"`
	ProgressEvery       int           `yaml:"progressEvery"`
	StopTimeout         time.Duration `yaml:"stopTimeout"`
	ResolveAttempts     int           `yaml:"resolveAttempts"`
	ResolveInterval     time.Duration `yaml:"resolveInterval"`
}

// CapabilitiesConfig selects where decoder capabilities come from.
// A snapshot file wins; otherwise ffmpeg is probed.
type CapabilitiesConfig struct {
	SnapshotPath string `yaml:"snapshotPath"`
	FFmpegPath   string `yaml:"ffmpegPath"`
	// H264Level is the AVC level number to assume for ffmpeg probes (e.g. 51). 0 = unreported.
	H264Level int `yaml:"h264Level"`
	MaxWidth  int `yaml:"maxWidth"`
	MaxHeight int `yaml:"maxHeight"`
}

// APIConfig configures the diagnostics HTTP listener.
type APIConfig struct {
	ListenAddr string        `yaml:"listenAddr"`
	RateLimit  int           `yaml:"rateLimit"` // requests per window per client IP
	RateWindow time.Duration `yaml:"rateWindow"`
}

// LogConfig configures zerolog.
type LogConfig struct {
	Level string `yaml:"level"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"` // grpc | http
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
	Environment  string  `yaml:"environment"`
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		Emby: EmbyConfig{
			DeviceName:       "embytv",
			Timeout:          15 * time.Second,
			MaxRetries:       2,
			RateLimit:        20,
			RateLimitBurst:   40,
			BreakerThreshold: 5,
			BreakerReset:     30 * time.Second,
		},
		Playback: PlaybackConfig{
			MaxStreamingBitrate: 120_000_000,
			MaxStaticBitrate:    100_000_000,
			ProgressInterval:    time.Second,
			ProgressEvery:       5,
			StopTimeout:         10 * time.Second,
			ResolveAttempts:     4,
			ResolveInterval:     1200 * time.Millisecond,
		},
		Capabilities: CapabilitiesConfig{
			FFmpegPath: "ffmpeg",
		},
		API: APIConfig{
			ListenAddr: ":8097",
			RateLimit:  120,
			RateWindow: time.Minute,
		},
		Log: LogConfig{Level: "info"},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
			Environment:  "production",
		},
	}
}
