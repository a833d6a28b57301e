// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playback

import (
	"context"
	"errors"
	"sync"
)

// ErrLoopStopped is returned by Call once the loop has exited.
var ErrLoopStopped = errors.New("playback loop stopped")

// Loop runs posted functions one at a time on a single goroutine. It owns
// the player: every player call goes through it.
type Loop struct {
	tasks    chan func()
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewLoop starts a loop.
func NewLoop() *Loop {
	l := &Loop{
		tasks: make(chan func(), 64),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case <-l.stop:
			return
		case fn := <-l.tasks:
			fn()
		}
	}
}

// Post queues fn. It returns false when the loop is stopping.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.stop:
		return false
	default:
	}
	select {
	case <-l.stop:
		return false
	case l.tasks <- fn:
		return true
	}
}

// Call runs fn on the loop and waits for it. Must not be called from the loop.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	if !l.Post(func() {
		defer close(ran)
		fn()
	}) {
		return ErrLoopStopped
	}
	select {
	case <-ran:
		return nil
	case <-l.done:
		select {
		case <-ran:
			return nil
		default:
			return ErrLoopStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop ends the loop after the running task. Queued tasks are dropped.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Done is closed when the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
