// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Environment keys. Env wins over the file, the file over defaults.
const (
	EnvEmbyURL             = "EMBYTV_EMBY_URL"
	EnvAPIKey              = "EMBYTV_API_KEY"
	EnvUserID              = "EMBYTV_USER_ID"
	EnvDeviceID            = "EMBYTV_DEVICE_ID"
	EnvDeviceName          = "EMBYTV_DEVICE_NAME"
	EnvEmbyTimeout         = "EMBYTV_EMBY_TIMEOUT"
	EnvEmbyRateLimit       = "EMBYTV_EMBY_RATE_LIMIT"
	EnvMaxStreamingBitrate = "EMBYTV_MAX_STREAMING_BITRATE"
	EnvProgressInterval    = "EMBYTV_PROGRESS_INTERVAL"
	EnvSnapshotPath        = "EMBYTV_CAPABILITIES_SNAPSHOT"
	EnvFFmpegPath          = "EMBYTV_FFMPEG"
	EnvH264Level           = "EMBYTV_H264_LEVEL"
	EnvListenAddr          = "EMBYTV_LISTEN"
	EnvLogLevel            = "EMBYTV_LOG_LEVEL"
	EnvTelemetryEnabled    = "EMBYTV_TELEMETRY_ENABLED"
	EnvTelemetryExporter   = "EMBYTV_TELEMETRY_EXPORTER"
	EnvTelemetryEndpoint   = "EMBYTV_TELEMETRY_ENDPOINT"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	ConsumedEnvKeys map[string]struct{}

	// generated device id, stable across reloads of one process
	deviceID string
}

// NewLoader creates a new configuration loader. An empty path means ENV only.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath:      configPath,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path is the watched config file, empty when ENV only.
func (l *Loader) Path() string { return l.configPath }

// Load builds the effective configuration and validates it.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()
	if l.configPath != "" {
		if err := loadFile(l.configPath, &cfg); err != nil {
			return AppConfig{}, fmt.Errorf("load %s: %w", l.configPath, err)
		}
	}
	l.mergeEnv(&cfg)

	if cfg.Emby.DeviceID == "" {
		if l.deviceID == "" {
			l.deviceID = uuid.NewString()
		}
		cfg.Emby.DeviceID = l.deviceID
	}

	if err := Validate(cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// loadFile decodes path over dst in strict mode.
func loadFile(path string, dst *AppConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("%w: %w", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.Emby.BaseURL = l.envString(EnvEmbyURL, cfg.Emby.BaseURL)
	cfg.Emby.APIKey = l.envString(EnvAPIKey, cfg.Emby.APIKey)
	cfg.Emby.UserID = l.envString(EnvUserID, cfg.Emby.UserID)
	cfg.Emby.DeviceID = l.envString(EnvDeviceID, cfg.Emby.DeviceID)
	cfg.Emby.DeviceName = l.envString(EnvDeviceName, cfg.Emby.DeviceName)
	cfg.Emby.Timeout = l.envDuration(EnvEmbyTimeout, cfg.Emby.Timeout)
	cfg.Emby.RateLimit = l.envFloat(EnvEmbyRateLimit, cfg.Emby.RateLimit)

	cfg.Playback.MaxStreamingBitrate = l.envInt64(EnvMaxStreamingBitrate, cfg.Playback.MaxStreamingBitrate)
	cfg.Playback.ProgressInterval = l.envDuration(EnvProgressInterval, cfg.Playback.ProgressInterval)

	cfg.Capabilities.SnapshotPath = l.envString(EnvSnapshotPath, cfg.Capabilities.SnapshotPath)
	cfg.Capabilities.FFmpegPath = l.envString(EnvFFmpegPath, cfg.Capabilities.FFmpegPath)
	cfg.Capabilities.H264Level = l.envInt(EnvH264Level, cfg.Capabilities.H264Level)

	cfg.API.ListenAddr = l.envString(EnvListenAddr, cfg.API.ListenAddr)
	cfg.Log.Level = l.envString(EnvLogLevel, cfg.Log.Level)

	cfg.Telemetry.Enabled = l.envBool(EnvTelemetryEnabled, cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString(EnvTelemetryExporter, cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString(EnvTelemetryEndpoint, cfg.Telemetry.Endpoint)
}

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envInt64(key string, defaultVal int64) int64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt64(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}
