// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_WriteThenCheck(t *testing.T) {
	dir := t.TempDir()
	fixtures := filepath.Join(dir, "profiles")
	manifest := filepath.Join(dir, "baseline.json")

	require.NoError(t, run(fixtures, manifest, false))
	require.NoError(t, run(fixtures, manifest, true))

	raw, err := os.ReadFile(filepath.Join(fixtures, "hevc_uhd_fallback.json"))
	require.NoError(t, err)
	var f Fixture
	require.NoError(t, json.Unmarshal(raw, &f))
	assert.True(t, f.Decision.DisableHevc)
	assert.Equal(t, 51, f.Decision.FinalLevel)

	var m Manifest
	raw, err = os.ReadFile(manifest)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Len(t, m.Hashes, len(presets))
}

func TestRun_DetectsDrift(t *testing.T) {
	dir := t.TempDir()
	fixtures := filepath.Join(dir, "profiles")
	manifest := filepath.Join(dir, "baseline.json")
	require.NoError(t, run(fixtures, manifest, false))

	require.NoError(t, os.WriteFile(filepath.Join(fixtures, "h264_only.json"), []byte("{}\n"), 0o644))
	err := run(fixtures, manifest, true)
	assert.ErrorIs(t, err, errDrift)
}

func TestRun_CheckWithoutFixturesFails(t *testing.T) {
	dir := t.TempDir()
	assert.Error(t, run(filepath.Join(dir, "none"), filepath.Join(dir, "m.json"), true))
}
