// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package capabilities

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	xglog "github.com/ManuGH/embytv/internal/log"
	"github.com/rs/zerolog"
)

// CodecInfo describes one installed codec.
type CodecInfo struct {
	Name           string
	IsEncoder      bool
	SupportedTypes []string // MIME types, e.g. "video/avc"
}

// ProfileLevel is a platform (profile, level) constant pair.
type ProfileLevel struct {
	Profile int
	Level   int
}

// TypeCapabilities is what a codec reports for one MIME type.
type TypeCapabilities struct {
	ProfileLevels []ProfileLevel
}

// CodecLister enumerates installed codecs.
// Capabilities may fail (or panic) for individual types on buggy firmwares.
type CodecLister interface {
	Codecs() ([]CodecInfo, error)
	Capabilities(codec CodecInfo, mimeType string) (TypeCapabilities, error)
}

// Size is a pixel size.
type Size struct {
	Width  int
	Height int
}

// Display exposes the panel resolution.
type Display interface {
	// WindowBounds uses the modern windowing API; ok is false when unavailable.
	WindowBounds() (size Size, ok bool)
	// LegacySize is the pre-windowing display size query.
	LegacySize() (Size, error)
}

// Platform AVC level constants.
const (
	AVCLevel1  = 0x01
	AVCLevel1b = 0x02
	AVCLevel11 = 0x04
	AVCLevel12 = 0x08
	AVCLevel13 = 0x10
	AVCLevel2  = 0x20
	AVCLevel21 = 0x40
	AVCLevel22 = 0x80
	AVCLevel3  = 0x100
	AVCLevel31 = 0x200
	AVCLevel32 = 0x400
	AVCLevel4  = 0x800
	AVCLevel41 = 0x1000
	AVCLevel42 = 0x2000
	AVCLevel5  = 0x4000
	AVCLevel51 = 0x8000
	AVCLevel52 = 0x10000
	AVCLevel6  = 0x20000
	AVCLevel61 = 0x40000
	AVCLevel62 = 0x80000
)

var avcLevels = map[int]int{
	AVCLevel1:  10,
	AVCLevel1b: 9,
	AVCLevel11: 11,
	AVCLevel12: 12,
	AVCLevel13: 13,
	AVCLevel2:  20,
	AVCLevel21: 21,
	AVCLevel22: 22,
	AVCLevel3:  30,
	AVCLevel31: 31,
	AVCLevel32: 32,
	AVCLevel4:  40,
	AVCLevel41: 41,
	AVCLevel42: 42,
	AVCLevel5:  50,
	AVCLevel51: 51,
	AVCLevel52: 52,
	AVCLevel6:  60,
	AVCLevel61: 61,
	AVCLevel62: 62,
}

// AVCLevelNumber maps a platform AVC level constant to its numeric level.
func AVCLevelNumber(platform int) (int, bool) {
	n, ok := avcLevels[platform]
	return n, ok
}

// AVCLevelConstant is the inverse of AVCLevelNumber.
func AVCLevelConstant(level int) (int, bool) {
	for c, n := range avcLevels {
		if n == level {
			return c, true
		}
	}
	return 0, false
}

type mimeClass struct {
	video  bool
	codecs []string
}

var mimeTable = map[string]mimeClass{
	"video/avc":           {video: true, codecs: []string{CodecH264}},
	"video/hevc":          {video: true, codecs: []string{CodecHEVC, CodecH265}},
	"video/av01":          {video: true, codecs: []string{CodecAV1}},
	"video/x-vnd.on2.vp9": {video: true, codecs: []string{CodecVP9}},
	"audio/mp4a-latm":     {codecs: []string{CodecAAC}},
	"audio/ac3":           {codecs: []string{CodecAC3}},
	"audio/eac3":          {codecs: []string{CodecEAC3}},
	"audio/eac3-joc":      {codecs: []string{CodecEAC3}},
	"audio/mpeg":          {codecs: []string{CodecMP3}},
	"audio/flac":          {codecs: []string{CodecFLAC}},
	"audio/opus":          {codecs: []string{CodecOpus}},
	"audio/vnd.dts":       {codecs: []string{CodecDTS}},
	"audio/vnd.dts.hd":    {codecs: []string{CodecDTS, CodecDTSHD}},
	"audio/true-hd":       {codecs: []string{CodecTrueHD}},
	"audio/ac4":           {codecs: []string{CodecAC4}},
}

// Fallback panel size when neither display query answers.
var defaultSize = Size{Width: 1920, Height: 1080}

// Prober computes DeviceCapabilities from the codec list and display metrics.
type Prober struct {
	lister  CodecLister
	display Display
	logger  zerolog.Logger
}

// NewProber creates a prober. display may be nil.
func NewProber(lister CodecLister, display Display) *Prober {
	return &Prober{
		lister:  lister,
		display: display,
		logger:  xglog.WithComponent("capabilities"),
	}
}

// Probe enumerates decoders and the display. It never fails: codec entries
// that cannot be queried are skipped.
func (p *Prober) Probe() DeviceCapabilities {
	video := map[string]struct{}{}
	audio := map[string]struct{}{}
	h264Level := 0

	var codecs []CodecInfo
	if p.lister != nil {
		list, err := p.lister.Codecs()
		if err != nil {
			p.logger.Warn().Err(err).Str(xglog.FieldEvent, "capabilities.list_failed").Msg("codec enumeration failed")
		}
		codecs = list
	}

	for _, codec := range codecs {
		if codec.IsEncoder {
			continue
		}
		for _, mime := range codec.SupportedTypes {
			class, ok := mimeTable[strings.ToLower(mime)]
			if !ok {
				continue
			}
			caps, err := p.queryType(codec, mime)
			if err != nil {
				p.logger.Warn().
					Err(err).
					Str(xglog.FieldEvent, "capabilities.type_skipped").
					Str(xglog.FieldCodec, codec.Name).
					Str("mime", mime).
					Msg("skipping codec type")
				continue
			}
			target := audio
			if class.video {
				target = video
			}
			for _, name := range class.codecs {
				target[name] = struct{}{}
			}
			if strings.EqualFold(mime, "video/avc") {
				for _, pl := range caps.ProfileLevels {
					if n, ok := avcLevels[pl.Level]; ok && n > h264Level {
						h264Level = n
					}
				}
			}
		}
	}

	size := p.screenSize()
	out := DeviceCapabilities{
		VideoCodecs: sortedKeys(video),
		AudioCodecs: sortedKeys(audio),
		MaxWidth:    size.Width,
		MaxHeight:   size.Height,
	}
	if h264Level > 0 {
		out.CodecLevels = []CodecLevel{{Codec: CodecH264, MaxLevel: h264Level}}
	}
	// HEVC/AV1 decoders handle 4K even behind a 1080p panel.
	if out.SupportsHEVC() || out.SupportsAV1() {
		out.MaxWidth = max(out.MaxWidth, UHDWidth)
		out.MaxHeight = max(out.MaxHeight, UHDHeight)
	}

	p.logger.Info().
		Str(xglog.FieldEvent, "capabilities.probed").
		Strs("video", out.VideoCodecs).
		Strs("audio", out.AudioCodecs).
		Int(xglog.FieldLevel, h264Level).
		Int("max_width", out.MaxWidth).
		Int("max_height", out.MaxHeight).
		Msg("device capabilities probed")
	return out
}

// queryType isolates one capability query; a panic counts as an error.
func (p *Prober) queryType(codec CodecInfo, mime string) (caps TypeCapabilities, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("capability query panicked: %v", r)
		}
	}()
	return p.lister.Capabilities(codec, mime)
}

func (p *Prober) screenSize() Size {
	if p.display == nil {
		return defaultSize
	}
	if s, ok := p.display.WindowBounds(); ok && s.Width > 0 && s.Height > 0 {
		return s
	}
	s, err := p.display.LegacySize()
	if err != nil || s.Width <= 0 || s.Height <= 0 {
		p.logger.Debug().Err(err).Msg("display size unavailable, assuming 1080p")
		return defaultSize
	}
	return s
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Cache probes its source once and serves the snapshot for the process lifetime.
type Cache struct {
	src  Source
	once sync.Once
	caps DeviceCapabilities
}

// NewCache wraps a source.
func NewCache(src Source) *Cache {
	return &Cache{src: src}
}

// Probe returns the cached snapshot, probing on first use.
func (c *Cache) Probe() DeviceCapabilities {
	c.once.Do(func() {
		c.caps = c.src.Probe()
	})
	return c.caps.Clone()
}

// StaticDisplay is a Display with a fixed size and no modern API.
type StaticDisplay Size

func (d StaticDisplay) WindowBounds() (Size, bool) { return Size{}, false }

func (d StaticDisplay) LegacySize() (Size, error) {
	if d.Width <= 0 || d.Height <= 0 {
		return Size{}, fmt.Errorf("display size not configured")
	}
	return Size(d), nil
}
