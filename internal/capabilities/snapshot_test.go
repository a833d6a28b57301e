// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package capabilities

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_WriteAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "caps.yaml")
	want := DeviceCapabilities{
		VideoCodecs: []string{"h264", "hevc"},
		AudioCodecs: []string{"aac"},
		CodecLevels: []CodecLevel{{Codec: "h264", MaxLevel: 52}},
		MaxWidth:    3840,
		MaxHeight:   2160,
	}
	require.NoError(t, WriteSnapshot(path, want))

	got, err := LoadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadSnapshot_RejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "caps.yaml")
	require.NoError(t, os.WriteFile(path, []byte("videoCodecs: [h264]\nbogus: 1\n"), 0o600))
	_, err := LoadSnapshot(path)
	assert.Error(t, err)
}

func TestFileSource_FallsBack(t *testing.T) {
	src := FileSource{
		Path:     filepath.Join(t.TempDir(), "missing.yaml"),
		Fallback: Static{AudioCodecs: []string{"mp3"}},
	}
	assert.Equal(t, []string{"mp3"}, src.Probe().AudioCodecs)

	assert.Empty(t, FileSource{Path: "/nonexistent/caps.yaml"}.Probe().VideoCodecs)
}
