// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command generate-profile-fixtures renders the device profile sent to Emby
// for a fixed set of device presets and records their hashes, so profile
// changes show up as fixture drift in review.
package main

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ManuGH/embytv/internal/capabilities"
	"github.com/ManuGH/embytv/internal/emby"
	"github.com/ManuGH/embytv/internal/negotiate"
)

type preset struct {
	name        string
	caps        capabilities.DeviceCapabilities
	disableHevc bool
}

var presets = []preset{
	{
		name: "h264_only",
		caps: capabilities.DeviceCapabilities{
			VideoCodecs: []string{"h264", "mpeg2video"},
			AudioCodecs: []string{"aac", "mp3", "ac3"},
			CodecLevels: []capabilities.CodecLevel{{Codec: "h264", MaxLevel: 42}},
			MaxWidth:    1920,
			MaxHeight:   1080,
		},
	},
	{
		name: "hevc_uhd",
		caps: capabilities.DeviceCapabilities{
			VideoCodecs: []string{"h264", "hevc", "vp9"},
			AudioCodecs: []string{"aac", "ac3", "eac3", "opus"},
			CodecLevels: []capabilities.CodecLevel{{Codec: "h264", MaxLevel: 52}},
			MaxWidth:    capabilities.UHDWidth,
			MaxHeight:   capabilities.UHDHeight,
		},
	},
	{
		name: "hevc_uhd_fallback",
		caps: capabilities.DeviceCapabilities{
			VideoCodecs: []string{"h264", "hevc", "vp9"},
			AudioCodecs: []string{"aac", "ac3", "eac3", "opus"},
			CodecLevels: []capabilities.CodecLevel{{Codec: "h264", MaxLevel: 52}},
			MaxWidth:    capabilities.UHDWidth,
			MaxHeight:   capabilities.UHDHeight,
		},
		disableHevc: true,
	},
	{
		name: "unprobed",
		caps: capabilities.DeviceCapabilities{
			VideoCodecs: []string{"h264", "hevc", "av1"},
			AudioCodecs: []string{"aac", "truehd", "dts"},
		},
	},
}

// Fixture is one rendered preset.
type Fixture struct {
	Preset   string                          `json:"preset"`
	Decision negotiate.ProfileDecision       `json:"decision"`
	Profile  *emby.DeviceProfile             `json:"profile"`
	Input    capabilities.DeviceCapabilities `json:"input"`
}

type Manifest struct {
	Version string            `json:"version"`
	Hashes  map[string]string `json:"hashes"` // file -> sha256 hex
}

var errDrift = errors.New("fixture drift")

func main() {
	var (
		fixturesDir  = flag.String("fixtures", "fixtures/profiles", "directory containing device profile fixtures")
		manifestPath = flag.String("manifest", "fixtures/PROFILE_BASELINE.json", "output manifest path")
		check        = flag.Bool("check", false, "check mode: do not modify, fail on drift")
	)
	flag.Parse()

	if err := run(*fixturesDir, *manifestPath, *check); err != nil {
		fail(err.Error())
	}
	fmt.Printf("OK: %d fixtures processed. mode=%s\n", len(presets), ternary(*check, "check", "write"))
}

func run(fixturesDir, manifestPath string, check bool) error {
	if !check {
		if err := os.MkdirAll(fixturesDir, 0o755); err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(manifestPath), 0o755); err != nil {
			return err
		}
	}

	hashes := make(map[string]string, len(presets))
	for _, p := range presets {
		profile, decision := negotiate.BuildDeviceProfile(p.caps, negotiate.ProfileOptions{DisableHevc: p.disableHevc})
		out, err := marshalCanonical(Fixture{Preset: p.name, Decision: decision, Profile: profile, Input: p.caps})
		if err != nil {
			return err
		}

		fileName := p.name + ".json"
		if err := syncFile(filepath.Join(fixturesDir, fileName), out, check); err != nil {
			return err
		}
		sum := sha256.Sum256(out)
		hashes[fileName] = hex.EncodeToString(sum[:])
	}

	manifest, err := marshalCanonical(Manifest{Version: "profile-baseline-v1", Hashes: hashes})
	if err != nil {
		return err
	}
	return syncFile(manifestPath, manifest, check)
}

// syncFile writes data to path, or in check mode compares against it.
func syncFile(path string, data []byte, check bool) error {
	if !check {
		return os.WriteFile(path, data, 0o644)
	}
	existing, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("fixture missing: %s (run generator without --check)", path)
	}
	if !bytes.Equal(bytes.TrimSpace(existing), bytes.TrimSpace(data)) {
		return fmt.Errorf("%w: %s (run generator without --check)", errDrift, path)
	}
	return nil
}

func marshalCanonical(v any) ([]byte, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func ternary[T any](cond bool, a, b T) T {
	if cond {
		return a
	}
	return b
}

func fail(msg string) {
	_, _ = fmt.Fprintln(os.Stderr, "FAIL:", msg)
	os.Exit(1)
}
