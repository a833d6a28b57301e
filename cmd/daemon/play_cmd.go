// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ManuGH/embytv/internal/config"
	xglog "github.com/ManuGH/embytv/internal/log"
	"github.com/ManuGH/embytv/internal/playback"
	"github.com/ManuGH/embytv/internal/player"
	"github.com/ManuGH/embytv/internal/reporting"
)

// playOptions drive a headless playback against the configured server.
type playOptions struct {
	ItemID        string
	MediaSourceID string
	Start         time.Duration
	Watch         time.Duration
	Tick          time.Duration
	AudioIndex    *int
	SubtitleIndex *int
}

// runPlayCLI plays an item on a simulated player so negotiation, session
// reporting and diagnostics can be exercised without a device.
func runPlayCLI(args []string) int {
	fs := flag.NewFlagSet("embytv play", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	file := configFileFlag(fs)
	source := fs.String("source", "", "media source id (default: first source)")
	start := fs.Duration("start", 0, "start position")
	watch := fs.Duration("watch", 30*time.Second, "how long to play before stopping")
	audio := fs.Int("audio", -2, "audio stream index (-2 keeps the server default)")
	subtitle := fs.Int("subtitle", -2, "subtitle stream index (-1 disables, -2 keeps the server default)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: embytv play [flags] <itemId>")
		return 2
	}

	xglog.Configure(xglog.Config{Level: "warn", Service: "embytv", Version: version})

	path := strings.TrimSpace(*file)
	if path == "" {
		path = resolveDefaultConfigPath()
	}
	cfg, err := config.NewLoader(path).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}
	svc, err := buildServices(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	opts := playOptions{
		ItemID:        fs.Arg(0),
		MediaSourceID: *source,
		Start:         *start,
		Watch:         *watch,
		Tick:          time.Second,
	}
	if *audio >= 0 {
		opts.AudioIndex = audio
	}
	if *subtitle >= -1 {
		opts.SubtitleIndex = subtitle
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := playback.Deps{
		Negotiator: svc.negotiator,
		Server:     svc.client,
		Resolver:   svc.resolver,
		Report: reporting.Config{
			ProgressInterval: cfg.Playback.ProgressInterval,
			ProgressEvery:    cfg.Playback.ProgressEvery,
			StopTimeout:      cfg.Playback.StopTimeout,
		},
	}
	if err := playHeadless(ctx, deps, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Playback error: %v\n", err)
		return 1
	}
	return 0
}

// playHeadless runs one session on a fake player that advances its clock
// every Tick until Watch has elapsed, then reports a natural end.
func playHeadless(ctx context.Context, deps playback.Deps, opts playOptions, out io.Writer) error {
	out = &syncWriter{w: out}
	fake := player.NewFake()
	deps.Player = fake

	failed := make(chan string, 1)
	session := playback.NewSession(deps, playback.Options{
		ItemID:        opts.ItemID,
		MediaSourceID: opts.MediaSourceID,
		StartPosition: opts.Start,
		AudioIndex:    opts.AudioIndex,
		SubtitleIndex: opts.SubtitleIndex,
	}, playback.Callbacks{
		OnMessage: func(msg string) {
			fmt.Fprintf(out, "message: %s\n", msg)
			select {
			case failed <- msg:
			default:
			}
		},
		OnDiagnostics: func(d reporting.Diagnostics) {
			for _, line := range d.Lines() {
				fmt.Fprintln(out, line)
			}
		},
	})
	if err := session.Start(ctx); err != nil {
		return err
	}

	item, err := waitLoaded(ctx, fake, failed)
	if err != nil {
		session.Close(nil)
		<-session.Done()
		return err
	}
	fmt.Fprintf(out, "stream: %s\n", item.URL)
	for _, sub := range item.Subtitles {
		fmt.Fprintf(out, "subtitle: %s (%s) %s\n", sub.Label, sub.Language, sub.URL)
	}

	session.HandleEvent(player.Event{Kind: player.EventIsPlayingChanged, IsPlaying: true})

	tick := opts.Tick
	if tick <= 0 {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	deadline := time.NewTimer(opts.Watch)
	defer deadline.Stop()

	pos := opts.Start
	for {
		select {
		case <-ctx.Done():
			session.Close(nil)
			<-session.Done()
			return nil
		case <-session.Done():
			return session.Err()
		case <-ticker.C:
			pos += tick
			fake.SetPosition(pos)
		case <-deadline.C:
			fmt.Fprintf(out, "ended at %s\n", pos)
			session.HandleEvent(player.Event{Kind: player.EventEnded})
			<-session.Done()
			return session.Err()
		}
	}
}

// waitLoaded blocks until the session has put a stream on the player.
func waitLoaded(ctx context.Context, fake *player.Fake, failed <-chan string) (player.MediaItem, error) {
	poll := time.NewTicker(10 * time.Millisecond)
	defer poll.Stop()
	for {
		if item := fake.MediaItem(); item.URL != "" {
			return item, nil
		}
		select {
		case <-ctx.Done():
			return player.MediaItem{}, ctx.Err()
		case msg := <-failed:
			return player.MediaItem{}, errors.New(msg)
		case <-poll.C:
		}
	}
}

// syncWriter serializes writes from session callbacks and the driver loop.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
