// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package frame

import (
	"sort"
	"sync"
	"time"
)

// Manual is a deterministic Scheduler whose clock only moves when told to.
// Callbacks run on the goroutine that calls Step or Advance.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	frames []*manualFrame
	timers []*manualTimer
}

type manualFrame struct {
	fn        func(time.Time)
	cancelled bool
}

type manualTimer struct {
	at        time.Time
	seq       uint64
	fn        func()
	cancelled bool
}

var _ Scheduler = (*Manual)(nil)

// NewManual returns a Manual scheduler whose clock starts at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the current clock value.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// ScheduleFrame queues fn for the next Step.
func (m *Manual) ScheduleFrame(fn func(time.Time)) CancelFunc {
	f := &manualFrame{fn: fn}
	m.mu.Lock()
	m.frames = append(m.frames, f)
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		f.cancelled = true
		m.mu.Unlock()
	}
}

// After queues fn to fire once the clock has moved d past now.
func (m *Manual) After(d time.Duration, fn func()) CancelFunc {
	m.mu.Lock()
	m.seq++
	t := &manualTimer{at: m.now.Add(d), seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		t.cancelled = true
		m.mu.Unlock()
	}
}

// Advance moves the clock by d and fires every timer that came due, in
// deadline order. Timers scheduled by a firing timer fire in the same call
// if they are already due. It returns the number of timers fired.
func (m *Manual) Advance(d time.Duration) int {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()

	fired := 0
	for {
		t := m.popDue()
		if t == nil {
			return fired
		}
		t.fn()
		fired++
	}
}

func (m *Manual) popDue() *manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.compactTimers()
	sort.Slice(m.timers, func(i, j int) bool {
		if m.timers[i].at.Equal(m.timers[j].at) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].at.Before(m.timers[j].at)
	})
	if len(m.timers) == 0 || m.timers[0].at.After(m.now) {
		return nil
	}
	t := m.timers[0]
	m.timers = m.timers[1:]
	return t
}

func (m *Manual) compactTimers() {
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.cancelled {
			live = append(live, t)
		}
	}
	m.timers = live
}

// Step advances the clock by d, fires due timers, then runs the frame
// callbacks that were pending before the frames started. Frames scheduled
// by those callbacks wait for the next Step. It returns the number of frame
// callbacks run.
func (m *Manual) Step(d time.Duration) int {
	m.Advance(d)

	m.mu.Lock()
	pending := m.frames
	m.frames = nil
	now := m.now
	m.mu.Unlock()

	ran := 0
	for _, f := range pending {
		m.mu.Lock()
		cancelled := f.cancelled
		m.mu.Unlock()
		if cancelled {
			continue
		}
		f.fn(now)
		ran++
	}
	return ran
}

// PendingFrames returns the number of frame callbacks waiting to run.
func (m *Manual) PendingFrames() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, f := range m.frames {
		if !f.cancelled {
			n++
		}
	}
	return n
}

// PendingTimers returns the number of timers waiting to fire.
func (m *Manual) PendingTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, t := range m.timers {
		if !t.cancelled {
			n++
		}
	}
	return n
}
