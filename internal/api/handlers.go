// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ManuGH/embytv/internal/capabilities"
	"github.com/ManuGH/embytv/internal/emby"
	xglog "github.com/ManuGH/embytv/internal/log"
	"github.com/ManuGH/embytv/internal/metrics"
	"github.com/ManuGH/embytv/internal/negotiate"
	"github.com/ManuGH/embytv/internal/reporting"
	"github.com/ManuGH/embytv/internal/resilience"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 64 << 10

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	caps := s.deps.Capabilities.Probe()
	writeJSON(w, r, http.StatusOK, struct {
		Capabilities capabilities.DeviceCapabilities `json:"capabilities"`
		Decision     negotiate.ProfileDecision       `json:"decision"`
	}{caps, negotiate.Decide(caps, false)})
}

// PlaybackRequest is the body of POST /api/v1/items/{itemId}/playback.
type PlaybackRequest struct {
	MediaSourceID       string `json:"mediaSourceId,omitempty"`
	StartTimeTicks      int64  `json:"startTimeTicks,omitempty"`
	AudioStreamIndex    *int   `json:"audioStreamIndex,omitempty"`
	SubtitleStreamIndex *int   `json:"subtitleStreamIndex,omitempty"`
	DisableHevc         bool   `json:"disableHevc,omitempty"`
}

// PlaybackResponse describes what a client should play.
type PlaybackResponse struct {
	ItemID              string                       `json:"itemId"`
	MediaSourceID       string                       `json:"mediaSourceId"`
	PlaySessionID       string                       `json:"playSessionId,omitempty"`
	PlayMethod          emby.PlayMethod              `json:"playMethod"`
	URL                 string                       `json:"url"`
	Rewritten           bool                         `json:"rewritten"`
	FromTranscoding     bool                         `json:"fromTranscoding"`
	AudioStreamIndex    int                          `json:"audioStreamIndex"`
	SubtitleStreamIndex int                          `json:"subtitleStreamIndex"`
	Decision            negotiate.ProfileDecision    `json:"decision"`
	Subtitles           []negotiate.SubtitleDelivery `json:"subtitles"`
}

func (s *Server) handlePlayback(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemId")
	logger := xglog.WithComponentFromContext(r.Context(), "api").With().Str(xglog.FieldItemID, itemID).Logger()

	var body PlaybackRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeProblem(w, r, http.StatusBadRequest, ProblemBadRequest, "Bad Request", "INVALID_BODY", err.Error())
		return
	}
	if body.StartTimeTicks < 0 {
		writeProblem(w, r, http.StatusBadRequest, ProblemBadRequest, "Bad Request", "INVALID_POSITION", "startTimeTicks must not be negative")
		return
	}

	key := playbackKey(itemID, body)
	ch := s.sf.DoChan(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.cfg.NegotiateTimeout)
		defer cancel()
		return s.negotiate(ctx, itemID, body)
	})

	select {
	case res := <-ch:
		if res.Shared {
			metrics.PlaybackRequestShared.Inc()
		}
		if res.Err != nil {
			logger.Warn().Err(res.Err).Str("event", "api.playback_failed").Bool("shared", res.Shared).Msg("negotiation failed")
			s.writeNegotiationError(w, r, res.Err)
			return
		}
		writeJSON(w, r, http.StatusOK, res.Val)
	case <-r.Context().Done():
		logger.Debug().Str("event", "api.client_gone").Msg("client left before negotiation finished")
	}
}

func playbackKey(itemID string, b PlaybackRequest) string {
	idx := func(p *int) string {
		if p == nil {
			return "-"
		}
		return fmt.Sprint(*p)
	}
	return fmt.Sprintf("%s|%s|%d|%s|%s|%t", itemID, b.MediaSourceID, b.StartTimeTicks,
		idx(b.AudioStreamIndex), idx(b.SubtitleStreamIndex), b.DisableHevc)
}

func (s *Server) negotiate(ctx context.Context, itemID string, body PlaybackRequest) (*PlaybackResponse, error) {
	res, err := s.deps.Negotiator.GetPlaybackInfo(ctx, negotiate.Request{
		ItemID:             itemID,
		StartPositionTicks: body.StartTimeTicks,
		AudioIndex:         body.AudioStreamIndex,
		SubtitleIndex:      body.SubtitleStreamIndex,
		MediaSourceID:      body.MediaSourceID,
		DisableHevc:        body.DisableHevc,
	})
	if err != nil {
		return nil, err
	}
	src := res.Source(body.MediaSourceID)

	tracks := negotiate.Tracks{
		Audio:    negotiate.DefaultAudioIndex(src),
		Subtitle: negotiate.DefaultSubtitleIndex(src),
	}
	if body.AudioStreamIndex != nil {
		tracks.Audio = *body.AudioStreamIndex
	}
	if body.SubtitleStreamIndex != nil {
		tracks.Subtitle = *body.SubtitleStreamIndex
	}

	resolution, err := negotiate.Resolve(src, tracks, negotiate.ResolveOptions{DisableHevc: body.DisableHevc})
	if err != nil {
		return nil, err
	}

	out := &PlaybackResponse{
		ItemID:              itemID,
		MediaSourceID:       src.ID,
		PlaySessionID:       src.PlaySessionID,
		PlayMethod:          resolution.Method,
		URL:                 s.deps.URLs.AbsoluteURL(resolution.URL),
		Rewritten:           resolution.Rewritten,
		FromTranscoding:     resolution.FromTranscoding,
		AudioStreamIndex:    tracks.Audio,
		SubtitleStreamIndex: tracks.Subtitle,
		Decision:            res.Decision,
		Subtitles:           negotiate.SubtitleDeliveries(s.deps.URLs, itemID, src),
	}
	if out.Subtitles == nil {
		out.Subtitles = []negotiate.SubtitleDelivery{}
	}
	return out, nil
}

func (s *Server) writeNegotiationError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, emby.ErrNotFound):
		writeProblem(w, r, http.StatusNotFound, ProblemNotFound, "Not Found", "ITEM_NOT_FOUND", "item not found on the server")
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, emby.ErrUpstreamUnavailable), errors.Is(err, emby.ErrTimeout):
		w.Header().Set("Retry-After", "5")
		writeProblem(w, r, http.StatusServiceUnavailable, ProblemUnavailable, "Service Unavailable", "UPSTREAM_UNAVAILABLE", err.Error())
	default:
		writeProblem(w, r, http.StatusBadGateway, ProblemUpstream, "Bad Gateway", "NEGOTIATION_FAILED", err.Error())
	}
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sessions == nil {
		writeProblem(w, r, http.StatusNotFound, ProblemNotFound, "Not Found", "SESSIONS_DISABLED", "")
		return
	}
	itemID := chi.URLParam(r, "itemId")
	sess, ok := s.deps.Sessions.Resolve(r.Context(), itemID, r.URL.Query().Get("mediaSourceId"))
	if !ok {
		writeProblem(w, r, http.StatusNotFound, ProblemNotFound, "Not Found", "SESSION_NOT_FOUND", "no active session plays this item")
		return
	}
	d := reporting.Summarize(sess)
	writeJSON(w, r, http.StatusOK, struct {
		reporting.Diagnostics
		Lines []string `json:"lines"`
	}{d, d.Lines()})
}
