// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package tracks maps server stream indices onto the player's runtime tracks.
package tracks

import (
	"strconv"
	"strings"

	"github.com/ManuGH/embytv/internal/emby"
	xglog "github.com/ManuGH/embytv/internal/log"
	"github.com/ManuGH/embytv/internal/metrics"
	"github.com/ManuGH/embytv/internal/player"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"
)

// Strategy names the rule that produced a match.
type Strategy string

const (
	StrategyID         Strategy = "id"
	StrategyLabel      Strategy = "label"
	StrategyFuzzyLabel Strategy = "fuzzy_label"
	StrategyLanguage   Strategy = "language"
	StrategyOrdinal    Strategy = "ordinal"
	StrategyNone       Strategy = "none"
)

// Candidate is one runtime format with its position in the player's groups.
type Candidate struct {
	Group  int
	Track  int
	Format player.Format
}

// Candidates flattens the groups of one type in player order.
func Candidates(groups []player.TrackGroup, t player.TrackType) []Candidate {
	var out []Candidate
	for gi, g := range groups {
		if g.Type != t {
			continue
		}
		for ti, f := range g.Formats {
			out = append(out, Candidate{Group: gi, Track: ti, Format: f})
		}
	}
	return out
}

// Match finds the runtime candidate for the server stream with targetIndex.
// metadata must be filtered to the target's type. Rules apply in order:
// id, label, fuzzy label, language, ordinal.
func Match(runtime []Candidate, metadata []emby.MediaStream, targetIndex int) (Candidate, Strategy, bool) {
	if len(runtime) == 0 {
		return Candidate{}, StrategyNone, false
	}

	id := strconv.Itoa(targetIndex)
	for _, c := range runtime {
		if c.Format.ID == id {
			return c, StrategyID, true
		}
	}

	ordinal := -1
	var target emby.MediaStream
	for i, ms := range metadata {
		if ms.Index == targetIndex {
			target, ordinal = ms, i
			break
		}
	}
	if ordinal < 0 {
		return Candidate{}, StrategyNone, false
	}

	if label := strings.TrimSpace(target.Label()); label != "" {
		for _, c := range runtime {
			if strings.EqualFold(strings.TrimSpace(c.Format.Label), label) {
				return c, StrategyLabel, true
			}
		}
		want := strings.ToLower(label)
		for _, c := range runtime {
			got := strings.ToLower(strings.TrimSpace(c.Format.Label))
			if got != "" && (strings.Contains(got, want) || strings.Contains(want, got)) {
				return c, StrategyFuzzyLabel, true
			}
		}
	}

	if c, ok := matchLanguage(runtime, target.Language); ok {
		return c, StrategyLanguage, true
	}

	if ordinal < len(runtime) {
		return runtime[ordinal], StrategyOrdinal, true
	}
	return Candidate{}, StrategyNone, false
}

func matchLanguage(runtime []Candidate, lang string) (Candidate, bool) {
	want := strings.ToLower(strings.TrimSpace(lang))
	if want == "" || want == "und" {
		return Candidate{}, false
	}
	for _, c := range runtime {
		if strings.ToLower(strings.TrimSpace(c.Format.Language)) == want {
			return c, true
		}
	}
	// eng vs en-US
	wantBase, ok := baseLanguage(want)
	if !ok {
		return Candidate{}, false
	}
	for _, c := range runtime {
		if got, ok := baseLanguage(c.Format.Language); ok && got == wantBase {
			return c, true
		}
	}
	return Candidate{}, false
}

func baseLanguage(code string) (string, bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", false
	}
	tag, err := language.Parse(code)
	if err != nil {
		return "", false
	}
	base, conf := tag.Base()
	if conf == language.No || base.String() == "und" {
		return "", false
	}
	return base.String(), true
}

// Selector applies matches to a player.
type Selector struct {
	logger zerolog.Logger
}

// NewSelector creates a selector.
func NewSelector() *Selector {
	return &Selector{logger: xglog.WithComponent("tracks")}
}

// SelectAudio selects the runtime audio track for a server index. On a miss
// the current selection is left alone.
func (s *Selector) SelectAudio(p player.Player, streams []emby.MediaStream, targetIndex int) bool {
	return s.apply(p, player.TrackTypeAudio, emby.FilterStreams(streams, emby.StreamTypeAudio), targetIndex)
}

// SelectSubtitle selects the runtime text track; -1 disables text tracks.
func (s *Selector) SelectSubtitle(p player.Player, streams []emby.MediaStream, targetIndex int) bool {
	if targetIndex < 0 {
		p.SetTrackTypeDisabled(player.TrackTypeText, true)
		metrics.TrackMatchTotal.WithLabelValues(player.TrackTypeText.String(), "disabled").Inc()
		s.logger.Debug().Str(xglog.FieldEvent, "tracks.text_disabled").Msg("subtitles disabled")
		return true
	}
	ok := s.apply(p, player.TrackTypeText, emby.FilterStreams(streams, emby.StreamTypeSubtitle), targetIndex)
	if ok {
		p.SetTrackTypeDisabled(player.TrackTypeText, false)
	}
	return ok
}

func (s *Selector) apply(p player.Player, t player.TrackType, metadata []emby.MediaStream, targetIndex int) bool {
	c, strategy, ok := Match(Candidates(p.TrackGroups(), t), metadata, targetIndex)
	metrics.TrackMatchTotal.WithLabelValues(t.String(), string(strategy)).Inc()
	if !ok {
		s.logger.Warn().
			Str(xglog.FieldEvent, "tracks.no_match").
			Str(xglog.FieldTrackType, t.String()).
			Int("target_index", targetIndex).
			Msg("no runtime track for server stream, keeping current selection")
		return false
	}
	p.SetTrackOverride(t, c.Group, c.Track)
	s.logger.Debug().
		Str(xglog.FieldEvent, "tracks.selected").
		Str(xglog.FieldTrackType, t.String()).
		Str(xglog.FieldStrategy, string(strategy)).
		Int("target_index", targetIndex).
		Str("runtime_id", c.Format.ID).
		Msg("track selected")
	return true
}
