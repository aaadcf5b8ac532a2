// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package frame provides the scheduling abstraction the render loop runs on.
//
// A Scheduler delivers one-shot frame callbacks and delayed timers. Two
// implementations are provided: Loop runs callbacks on a single goroutine
// at a fixed frame rate, and Manual is driven explicitly by tests.
package frame

import "time"

// CancelFunc cancels a scheduled callback. Calling it more than once, or
// after the callback ran, has no effect.
type CancelFunc func()

// Scheduler schedules render-loop callbacks.
type Scheduler interface {
	// ScheduleFrame runs fn once at the next frame with the frame time.
	ScheduleFrame(fn func(now time.Time)) CancelFunc

	// After runs fn once after d.
	After(d time.Duration, fn func()) CancelFunc
}
