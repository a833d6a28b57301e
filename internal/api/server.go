// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api serves the daemon's diagnostics and negotiation endpoints.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ManuGH/embytv/internal/capabilities"
	"github.com/ManuGH/embytv/internal/emby"
	xglog "github.com/ManuGH/embytv/internal/log"
	"github.com/ManuGH/embytv/internal/negotiate"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Negotiator requests playback info.
type Negotiator interface {
	GetPlaybackInfo(ctx context.Context, req negotiate.Request) (*negotiate.Result, error)
}

// URLBuilder turns server-relative URLs into playable ones.
type URLBuilder interface {
	negotiate.SubtitleURLBuilder
	AbsoluteURL(raw string) string
}

// SessionResolver finds the server session of a playing item.
type SessionResolver interface {
	Resolve(ctx context.Context, itemID, mediaSourceID string) (emby.SessionInfo, bool)
}

// Deps are the collaborators of the API.
type Deps struct {
	Capabilities capabilities.Source
	Negotiator   Negotiator
	URLs         URLBuilder
	Sessions     SessionResolver
	// Ready serves /readyz when set.
	Ready http.Handler
}

// Config tunes the HTTP surface.
type Config struct {
	// RateLimit is requests per RateWindow per client IP; 0 disables limiting.
	RateLimit  int
	RateWindow time.Duration
	// TracingService names server spans; empty disables tracing.
	TracingService string
	// NegotiateTimeout bounds a shared negotiation independent of any one caller.
	NegotiateTimeout time.Duration
}

// Server is the HTTP API.
type Server struct {
	deps   Deps
	cfg    Config
	sf     singleflight.Group
	router chi.Router
	logger zerolog.Logger
}

// New builds the router.
func New(deps Deps, cfg Config) *Server {
	if cfg.NegotiateTimeout <= 0 {
		cfg.NegotiateTimeout = 30 * time.Second
	}
	s := &Server{
		deps:   deps,
		cfg:    cfg,
		logger: xglog.WithComponent("api"),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(Recoverer)
	r.Use(RequestID)
	if s.cfg.TracingService != "" {
		r.Use(OTelHTTP(s.cfg.TracingService))
	}
	r.Use(Observe)

	r.Get("/healthz", s.handleHealth)
	if s.deps.Ready != nil {
		r.Method(http.MethodGet, "/readyz", s.deps.Ready)
	}
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.RateLimit > 0 {
			r.Use(RateLimit(s.cfg.RateLimit, s.cfg.RateWindow))
		}
		r.Get("/capabilities", s.handleCapabilities)
		r.Post("/items/{itemId}/playback", s.handlePlayback)
		r.Get("/items/{itemId}/session", s.handleSession)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, r, http.StatusNotFound, ProblemNotFound, "Not Found", "NOT_FOUND", "")
	})
	return r
}
