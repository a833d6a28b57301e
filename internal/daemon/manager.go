// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon runs the long-lived parts of embytv: the API server,
// background workers and ordered shutdown.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	xglog "github.com/ManuGH/embytv/internal/log"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrManagerStarted is returned by a second Start.
var ErrManagerStarted = errors.New("manager already started")

// ShutdownHook performs cleanup during graceful shutdown.
// Hooks run in reverse registration order (LIFO).
type ShutdownHook func(ctx context.Context) error

// Worker is a background task bound to the manager's lifetime. It must
// return when ctx is cancelled.
type Worker func(ctx context.Context) error

// ServerConfig configures the API listener.
type ServerConfig struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	// Listener overrides ListenAddr (tests).
	Listener net.Listener
}

func (c ServerConfig) withDefaults() ServerConfig {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 60 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 120 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 15 * time.Second
	}
	return c
}

type namedHook struct {
	name string
	hook ShutdownHook
}

type namedWorker struct {
	name string
	run  Worker
}

// Manager manages the daemon lifecycle.
type Manager struct {
	cfg     ServerConfig
	handler http.Handler
	logger  zerolog.Logger

	mu      sync.Mutex
	started bool
	hooks   []namedHook
	workers []namedWorker
	addr    net.Addr
}

// NewManager creates a manager serving handler.
func NewManager(cfg ServerConfig, handler http.Handler) *Manager {
	return &Manager{
		cfg:     cfg.withDefaults(),
		handler: handler,
		logger:  xglog.WithComponent("daemon"),
	}
}

// RegisterShutdownHook registers a cleanup function.
func (m *Manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, namedHook{name: name, hook: hook})
}

// Go registers a worker started with the manager. A worker error stops the daemon.
func (m *Manager) Go(name string, w Worker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers = append(m.workers, namedWorker{name: name, run: w})
}

// Addr is the bound listen address, nil before Start.
func (m *Manager) Addr() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addr
}

// Start serves until ctx ends or a component fails, then shuts down.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrManagerStarted
	}
	m.started = true
	workers := append([]namedWorker(nil), m.workers...)
	m.mu.Unlock()

	ln := m.cfg.Listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", m.cfg.ListenAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", m.cfg.ListenAddr, err)
		}
	}
	m.mu.Lock()
	m.addr = ln.Addr()
	m.mu.Unlock()

	srv := &http.Server{
		Handler:           m.handler,
		ReadTimeout:       m.cfg.ReadTimeout,
		ReadHeaderTimeout: m.cfg.ReadTimeout / 2,
		WriteTimeout:      m.cfg.WriteTimeout,
		IdleTimeout:       m.cfg.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m.logger.Info().Str("event", "api.listening").Str("addr", ln.Addr().String()).Msg("API server listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	for _, w := range workers {
		w := w
		g.Go(func() error {
			if err := w.run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s: %w", w.name, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		// detached but bounded: shutdown must finish after the parent is gone
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.ShutdownTimeout)
		defer cancel()
		return m.shutdown(shutdownCtx, srv)
	})

	err := g.Wait()
	if err != nil {
		m.logger.Error().Err(err).Str("event", "daemon.failed").Msg("daemon stopped with error")
	}
	return err
}

func (m *Manager) shutdown(ctx context.Context, srv *http.Server) error {
	m.logger.Info().Str("event", "daemon.shutdown").Msg("shutting down")

	var errs []error
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("api server shutdown: %w", err))
	}

	m.mu.Lock()
	hooks := append([]namedHook(nil), m.hooks...)
	m.mu.Unlock()
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		if err := h.hook(ctx); err != nil {
			m.logger.Warn().Err(err).Str("hook", h.name).Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
		}
	}
	return errors.Join(errs...)
}
