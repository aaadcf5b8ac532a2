// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package frame

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runLoop(t *testing.T, l *Loop) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.ErrorIs(t, <-done, context.Canceled)
	})
}

func TestNewLoopInterval(t *testing.T) {
	assert.Equal(t, time.Second/60, NewLoop(0).Interval())
	assert.Equal(t, time.Second/120, NewLoop(120).Interval())
}

func TestLoopRunsFrames(t *testing.T) {
	l := NewLoop(200)
	runLoop(t, l)

	var frames atomic.Int32
	var tick func(time.Time)
	tick = func(time.Time) {
		if frames.Add(1) < 3 {
			l.ScheduleFrame(tick)
		}
	}
	l.ScheduleFrame(tick)

	require.Eventually(t, func() bool { return frames.Load() == 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestLoopCancelledFrameNeverRuns(t *testing.T) {
	l := NewLoop(200)
	var ran atomic.Bool
	cancel := l.ScheduleFrame(func(time.Time) { ran.Store(true) })
	cancel()
	runLoop(t, l)

	time.Sleep(30 * time.Millisecond)
	assert.False(t, ran.Load())
}

func TestLoopAfterAndPost(t *testing.T) {
	l := NewLoop(200)
	runLoop(t, l)

	var fired, cancelled, posted atomic.Bool
	l.After(10*time.Millisecond, func() { fired.Store(true) })
	stop := l.After(10*time.Millisecond, func() { cancelled.Store(true) })
	stop()
	l.Post(func() { posted.Store(true) })

	require.Eventually(t, func() bool { return fired.Load() && posted.Load() }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.False(t, cancelled.Load())
}
