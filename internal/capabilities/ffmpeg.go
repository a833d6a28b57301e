// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package capabilities

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ffmpeg decoder name -> MIME types it covers.
var ffmpegDecoderTypes = map[string][]string{
	"h264":       {"video/avc"},
	"hevc":       {"video/hevc"},
	"av1":        {"video/av01"},
	"libdav1d":   {"video/av01"},
	"libaom-av1": {"video/av01"},
	"vp9":        {"video/x-vnd.on2.vp9"},
	"libvpx-vp9": {"video/x-vnd.on2.vp9"},
	"aac":        {"audio/mp4a-latm"},
	"aac_fixed":  {"audio/mp4a-latm"},
	"ac3":        {"audio/ac3"},
	"eac3":       {"audio/eac3"},
	"mp3":        {"audio/mpeg"},
	"mp3float":   {"audio/mpeg"},
	"flac":       {"audio/flac"},
	"opus":       {"audio/opus"},
	"libopus":    {"audio/opus"},
	"dca":        {"audio/vnd.dts", "audio/vnd.dts.hd"},
	"truehd":     {"audio/true-hd"},
}

// FFmpegLister lists the decoders of a local ffmpeg build.
// ffmpeg does not report profile levels; H264Level, when set, is reported
// as the platform constant for every H.264 decoder.
type FFmpegLister struct {
	Binary    string
	Timeout   time.Duration
	H264Level int // platform constant, e.g. AVCLevel51; 0 reports nothing

	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Codecs runs `ffmpeg -hide_banner -decoders` and parses the table.
func (l *FFmpegLister) Codecs() ([]CodecInfo, error) {
	bin := l.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	run := l.run
	if run == nil {
		run = runCommand
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	out, err := run(ctx, bin, "-hide_banner", "-decoders")
	if err != nil {
		return nil, fmt.Errorf("list ffmpeg decoders: %w", err)
	}
	return ParseDecoders(out), nil
}

// Capabilities reports the configured H.264 level for avc types.
func (l *FFmpegLister) Capabilities(codec CodecInfo, mimeType string) (TypeCapabilities, error) {
	if mimeType == "video/avc" && l.H264Level > 0 {
		return TypeCapabilities{ProfileLevels: []ProfileLevel{{Level: l.H264Level}}}, nil
	}
	return TypeCapabilities{}, nil
}

// ParseDecoders parses ffmpeg's decoder table. Decoders without a known
// MIME mapping are dropped. Hardware variants such as h264_cuvid map to
// their base codec.
func ParseDecoders(out []byte) []CodecInfo {
	var codecs []CodecInfo
	inTable := false
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !inTable {
			if strings.HasPrefix(line, "------") {
				inTable = true
			}
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || len(fields[0]) != 6 {
			continue
		}
		flags, name := fields[0], fields[1]
		if flags[0] != 'V' && flags[0] != 'A' {
			continue
		}
		types, ok := ffmpegDecoderTypes[name]
		if !ok {
			if i := strings.IndexByte(name, '_'); i > 0 {
				types, ok = ffmpegDecoderTypes[name[:i]]
			}
		}
		if !ok {
			continue
		}
		codecs = append(codecs, CodecInfo{Name: name, SupportedTypes: types})
	}
	return codecs
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) // #nosec G204 -- binary path comes from operator config
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}
