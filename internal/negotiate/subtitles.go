// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package negotiate

import (
	"strconv"
	"strings"

	"github.com/ManuGH/embytv/internal/emby"
)

// SubtitleURLBuilder builds side-channel subtitle URLs.
type SubtitleURLBuilder interface {
	SubtitleURL(itemID, mediaSourceID string, index int, format string) string
}

// SubtitleDelivery is an external subtitle the player loads from a URL.
// ID is the server index as a string, which the player uses as track id.
type SubtitleDelivery struct {
	ID       string `json:"id"`
	Index    int    `json:"index"`
	Language string `json:"language,omitempty"`
	Label    string `json:"label,omitempty"`
	Format   string `json:"format"`
	MimeType string `json:"mimeType"`
	URL      string `json:"url"`
	Default  bool   `json:"default,omitempty"`
	Forced   bool   `json:"forced,omitempty"`
}

// SubtitleFormat maps a subtitle codec to the requested delivery format.
// Everything but WebVTT is requested as srt so the server reformats it.
func SubtitleFormat(codec string) string {
	switch strings.ToLower(codec) {
	case "vtt", "webvtt":
		return "vtt"
	default:
		return "srt"
	}
}

func subtitleMime(format string) string {
	if format == "vtt" {
		return "text/vtt"
	}
	return "application/x-subrip"
}

// SubtitleDeliveries lists the externally deliverable subtitle streams of a source.
func SubtitleDeliveries(b SubtitleURLBuilder, itemID string, src *emby.MediaSourceInfo) []SubtitleDelivery {
	if src == nil {
		return nil
	}
	var out []SubtitleDelivery
	for _, ms := range src.StreamsOf(emby.StreamTypeSubtitle) {
		if !ms.IsExternal && !ms.SupportsExternalStream {
			continue
		}
		format := SubtitleFormat(ms.Codec)
		out = append(out, SubtitleDelivery{
			ID:       strconv.Itoa(ms.Index),
			Index:    ms.Index,
			Language: ms.Language,
			Label:    ms.Label(),
			Format:   format,
			MimeType: subtitleMime(format),
			URL:      b.SubtitleURL(itemID, src.ID, ms.Index, format),
			Default:  ms.IsDefault,
			Forced:   ms.IsForced,
		})
	}
	return out
}
