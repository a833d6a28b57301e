// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ManuGH/embytv/internal/api"
	"github.com/ManuGH/embytv/internal/capabilities"
	"github.com/ManuGH/embytv/internal/config"
	"github.com/ManuGH/embytv/internal/daemon"
	"github.com/ManuGH/embytv/internal/emby"
	"github.com/ManuGH/embytv/internal/health"
	xglog "github.com/ManuGH/embytv/internal/log"
	"github.com/ManuGH/embytv/internal/negotiate"
	"github.com/ManuGH/embytv/internal/reporting"
	"github.com/ManuGH/embytv/internal/telemetry"
	"golang.org/x/time/rate"
)

// services are the long-lived collaborators built from one config.
type services struct {
	client     *emby.Client
	caps       capabilities.Source
	negotiator *negotiate.Negotiator
	resolver   *reporting.Resolver
}

func buildServices(cfg config.AppConfig) (*services, error) {
	client, err := buildClient(cfg.Emby)
	if err != nil {
		return nil, err
	}
	caps := buildCapabilities(cfg.Capabilities)
	return &services{
		client: client,
		caps:   caps,
		negotiator: negotiate.New(client, caps, negotiate.Options{
			MaxStreamingBitrate: cfg.Playback.MaxStreamingBitrate,
			MaxStaticBitrate:    cfg.Playback.MaxStaticBitrate,
		}),
		resolver: reporting.NewResolver(client,
			reporting.WithAttempts(cfg.Playback.ResolveAttempts),
			reporting.WithInterval(cfg.Playback.ResolveInterval),
			reporting.WithDeviceID(cfg.Emby.DeviceID),
		),
	}, nil
}

func buildClient(cfg config.EmbyConfig) (*emby.Client, error) {
	client, err := emby.NewClient(emby.Options{
		BaseURL:          cfg.BaseURL,
		APIKey:           cfg.APIKey,
		UserID:           cfg.UserID,
		DeviceID:         cfg.DeviceID,
		DeviceName:       cfg.DeviceName,
		Version:          version,
		Timeout:          cfg.Timeout,
		MaxRetries:       cfg.MaxRetries,
		RateLimit:        rate.Limit(cfg.RateLimit),
		RateLimitBurst:   cfg.RateLimitBurst,
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerReset:     cfg.BreakerReset,
	})
	if err != nil {
		return nil, fmt.Errorf("emby client: %w", err)
	}
	return client, nil
}

// buildCapabilities prefers a snapshot file and probes ffmpeg otherwise.
// The result is probed once per process.
func buildCapabilities(cfg config.CapabilitiesConfig) capabilities.Source {
	var src capabilities.Source
	if cfg.FFmpegPath != "" {
		lister := &capabilities.FFmpegLister{Binary: cfg.FFmpegPath, Timeout: 10 * time.Second}
		if c, ok := capabilities.AVCLevelConstant(cfg.H264Level); ok {
			lister.H264Level = c
		}
		src = capabilities.NewProber(lister, capabilities.StaticDisplay{Width: cfg.MaxWidth, Height: cfg.MaxHeight})
	}
	if cfg.SnapshotPath != "" {
		src = capabilities.FileSource{Path: cfg.SnapshotPath, Fallback: src}
	}
	if src == nil {
		src = capabilities.Static{}
	}
	return capabilities.NewCache(src)
}

func serve(ctx context.Context, loader *config.Loader, cfg config.AppConfig) error {
	logger := xglog.WithComponent("daemon")

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "embytv",
		ServiceVersion: version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	svc, err := buildServices(cfg)
	if err != nil {
		return err
	}
	caps := svc.caps.Probe()
	logger.Info().
		Str("event", "capabilities.ready").
		Strs("video", caps.VideoCodecs).
		Strs("audio", caps.AudioCodecs).
		Int("h264_level", caps.H264Level()).
		Msg("decoder capabilities ready")

	tracing := ""
	if cfg.Telemetry.Enabled {
		tracing = "embytv-api"
	}
	ready := health.NewManager(version)
	ready.RegisterChecker(health.NewBreakerChecker("emby", svc.client.BreakerState))
	ready.RegisterChecker(health.NewCapabilitiesChecker(svc.caps))
	ready.RegisterChecker(health.NewFileChecker("capability_snapshot", cfg.Capabilities.SnapshotPath))

	srv := api.New(api.Deps{
		Capabilities: svc.caps,
		Negotiator:   svc.negotiator,
		URLs:         svc.client,
		Sessions:     svc.resolver,
		Ready:        http.HandlerFunc(ready.ServeReady),
	}, api.Config{
		RateLimit:      cfg.API.RateLimit,
		RateWindow:     cfg.API.RateWindow,
		TracingService: tracing,
	})

	holder := config.NewHolder(cfg, loader)
	mgr := daemon.NewManager(daemon.ServerConfig{ListenAddr: cfg.API.ListenAddr}, srv.Handler())
	mgr.RegisterShutdownHook("telemetry", tp.Shutdown)
	mgr.RegisterShutdownHook("config", func(context.Context) error {
		holder.Stop()
		return nil
	})
	mgr.Go("config-watcher", func(ctx context.Context) error {
		updates := make(chan config.AppConfig, 1)
		holder.RegisterListener(updates)
		if err := holder.StartWatcher(ctx); err != nil {
			// the daemon keeps its startup config
			logger.Warn().Err(err).Str("event", "config.watcher_unavailable").Msg("config hot reload disabled")
			return nil
		}
		return applyReloads(ctx, updates)
	})
	return mgr.Start(ctx)
}

// applyReloads applies the settings that can change without a restart.
// Emby and capability settings take effect on the next start.
func applyReloads(ctx context.Context, updates <-chan config.AppConfig) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cfg := <-updates:
			xglog.Configure(xglog.Config{Level: cfg.Log.Level, Service: "embytv", Version: version})
		}
	}
}

// maskURL removes user info from a URL string for safe logging.
func maskURL(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url-redacted"
	}
	parsedURL.User = nil
	return parsedURL.String()
}
