// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package frame

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultFPS is the frame rate NewLoop uses for a non-positive fps.
const DefaultFPS = 60

// Loop is a real-time Scheduler. Every callback, frames and timers alike,
// runs on the goroutine that called Run.
type Loop struct {
	interval time.Duration

	mu     sync.Mutex
	frames []*loopFrame
	posted []func()
	wake   chan struct{}
}

type loopFrame struct {
	fn        func(time.Time)
	cancelled atomic.Bool
}

var _ Scheduler = (*Loop)(nil)

// NewLoop returns a Loop ticking at fps frames per second.
func NewLoop(fps int) *Loop {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &Loop{
		interval: time.Second / time.Duration(fps),
		wake:     make(chan struct{}, 1),
	}
}

// Interval returns the frame interval.
func (l *Loop) Interval() time.Duration { return l.interval }

// ScheduleFrame runs fn on the next tick.
func (l *Loop) ScheduleFrame(fn func(time.Time)) CancelFunc {
	f := &loopFrame{fn: fn}
	l.mu.Lock()
	l.frames = append(l.frames, f)
	l.mu.Unlock()
	return func() { f.cancelled.Store(true) }
}

// After runs fn on the loop goroutine once d has elapsed.
func (l *Loop) After(d time.Duration, fn func()) CancelFunc {
	var cancelled atomic.Bool
	t := time.AfterFunc(d, func() {
		l.Post(func() {
			if !cancelled.Load() {
				fn()
			}
		})
	})
	return func() {
		cancelled.Store(true)
		t.Stop()
	}
}

// Post queues fn to run on the loop goroutine as soon as possible.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.posted = append(l.posted, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run drives the loop until ctx is done and returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
			l.runPosted()
		case now := <-ticker.C:
			l.runPosted()
			l.runFrames(now)
		}
	}
}

func (l *Loop) runPosted() {
	l.mu.Lock()
	posted := l.posted
	l.posted = nil
	l.mu.Unlock()

	for _, fn := range posted {
		fn()
	}
}

func (l *Loop) runFrames(now time.Time) {
	l.mu.Lock()
	frames := l.frames
	l.frames = nil
	l.mu.Unlock()

	for _, f := range frames {
		if !f.cancelled.Load() {
			f.fn(now)
		}
	}
}
