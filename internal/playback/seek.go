// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playback

import (
	"context"
	"time"
)

// BeginSeek starts a repeating seek (key held down). forward picks the
// direction. A running seek loop is replaced.
func (s *Session) BeginSeek(forward bool) {
	s.loop.Post(func() {
		if s.closed || !s.loaded {
			return
		}
		if s.seekCancel != nil {
			s.seekCancel()
		}
		ctx, cancel := context.WithCancel(s.ctx)
		s.seekCancel = cancel

		step := s.opts.SeekStep
		if !forward {
			step = -step
		}
		s.seekBy(step)
		go s.seekLoop(ctx, step)
	})
}

// EndSeek stops the repeating seek (key released).
func (s *Session) EndSeek() {
	s.loop.Post(func() {
		if s.seekCancel != nil {
			s.seekCancel()
			s.seekCancel = nil
		}
	})
}

func (s *Session) seekLoop(ctx context.Context, step time.Duration) {
	ticker := time.NewTicker(s.opts.SeekInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		s.loop.Post(func() {
			if ctx.Err() == nil && !s.closed {
				s.seekBy(step)
			}
		})
	}
}

func (s *Session) seekBy(step time.Duration) {
	p := s.deps.Player
	target := p.CurrentPosition() + step
	if target < 0 {
		target = 0
	}
	if d := p.Duration(); d > 0 && target > d {
		target = d
	}
	p.SeekTo(target)
}
