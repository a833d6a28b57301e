// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
emby:
  baseUrl: http://emby.local:8096
  userId: user-1
`

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileOverDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
emby:
  baseUrl: http://emby.local:8096
  userId: user-1
  timeout: 5s
playback:
  progressEvery: 3
  resolveInterval: 1500ms
capabilities:
  h264Level: 51
`)
	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "http://emby.local:8096", cfg.Emby.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Emby.Timeout)
	assert.Equal(t, 3, cfg.Playback.ProgressEvery)
	assert.Equal(t, 1500*time.Millisecond, cfg.Playback.ResolveInterval)
	assert.Equal(t, 51, cfg.Capabilities.H264Level)

	// untouched keys keep their defaults
	d := Defaults()
	assert.Equal(t, d.Playback.ProgressInterval, cfg.Playback.ProgressInterval)
	assert.Equal(t, d.Playback.ResolveAttempts, cfg.Playback.ResolveAttempts)
	assert.Equal(t, d.API.ListenAddr, cfg.API.ListenAddr)
}

func TestLoad_EnvOverFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), minimalYAML)
	t.Setenv(EnvEmbyURL, "https://other.example")
	t.Setenv(EnvProgressInterval, "250ms")
	t.Setenv(EnvMaxStreamingBitrate, "8000000")
	t.Setenv(EnvH264Level, "not-a-number")

	l := NewLoader(path)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "https://other.example", cfg.Emby.BaseURL)
	assert.Equal(t, 250*time.Millisecond, cfg.Playback.ProgressInterval)
	assert.Equal(t, int64(8_000_000), cfg.Playback.MaxStreamingBitrate)
	assert.Equal(t, 0, cfg.Capabilities.H264Level, "invalid env keeps the file/default value")
	assert.Contains(t, l.ConsumedEnvKeys, EnvH264Level)
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv(EnvEmbyURL, "http://emby:8096")
	t.Setenv(EnvUserID, "u")
	cfg, err := NewLoader("").Load()
	require.NoError(t, err)
	assert.Equal(t, "http://emby:8096", cfg.Emby.BaseURL)
}

func TestLoad_UnknownFieldIsRejected(t *testing.T) {
	path := writeConfig(t, t.TempDir(), minimalYAML+"  password: nope\n")
	_, err := NewLoader(path).Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownConfigField), "got %v", err)
}

func TestLoad_MultipleDocumentsRejected(t *testing.T) {
	path := writeConfig(t, t.TempDir(), minimalYAML+"---\nlog:\n  level: debug\n")
	_, err := NewLoader(path).Load()
	assert.ErrorContains(t, err, "multiple documents")
}

func TestLoad_GeneratedDeviceIDIsStable(t *testing.T) {
	path := writeConfig(t, t.TempDir(), minimalYAML)
	l := NewLoader(path)

	first, err := l.Load()
	require.NoError(t, err)
	require.Len(t, first.Emby.DeviceID, 36)

	second, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, first.Emby.DeviceID, second.Emby.DeviceID)

	other, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.NotEqual(t, first.Emby.DeviceID, other.Emby.DeviceID)
}

func TestLoad_ExplicitDeviceIDWins(t *testing.T) {
	path := writeConfig(t, t.TempDir(), minimalYAML+"  deviceId: living-room\n")
	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "living-room", cfg.Emby.DeviceID)
}

func TestValidate(t *testing.T) {
	valid := Defaults()
	valid.Emby.BaseURL = "http://emby.local:8096"
	valid.Emby.UserID = "u"
	require.NoError(t, Validate(valid))

	tests := []struct {
		name   string
		mutate func(*AppConfig)
		field  string
	}{
		{"missing base url", func(c *AppConfig) { c.Emby.BaseURL = "" }, "emby.baseUrl"},
		{"relative base url", func(c *AppConfig) { c.Emby.BaseURL = "emby.local" }, "emby.baseUrl"},
		{"missing user", func(c *AppConfig) { c.Emby.UserID = "" }, "emby.userId"},
		{"progress every zero", func(c *AppConfig) { c.Playback.ProgressEvery = 0 }, "playback.progressEvery"},
		{"level too high", func(c *AppConfig) { c.Capabilities.H264Level = 63 }, "capabilities.h264Level"},
		{"no capability source", func(c *AppConfig) {
			c.Capabilities.FFmpegPath = ""
			c.Capabilities.SnapshotPath = ""
		}, "capabilities"},
		{"bad log level", func(c *AppConfig) { c.Log.Level = "loud" }, "log.level"},
		{"bad exporter", func(c *AppConfig) {
			c.Telemetry.Enabled = true
			c.Telemetry.Exporter = "zipkin"
		}, "telemetry.exporter"},
		{"sampling out of range", func(c *AppConfig) { c.Telemetry.SamplingRate = 2 }, "telemetry.samplingRate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)

			var fe *FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	err := Validate(AppConfig{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "emby.baseUrl")
	assert.ErrorContains(t, err, "emby.userId")
	assert.ErrorContains(t, err, "playback.progressEvery")
}
