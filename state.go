// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package polytope

// State is the lifecycle state of a Core.
type State int

const (
	// StateConstructed is the state after NewCore, before the first Start.
	StateConstructed State = iota

	// StateRunning means frames are being scheduled and drawn.
	StateRunning

	// StateStopped means no frame is scheduled. Start resumes.
	StateStopped

	// StateRecovering means the GPU context was lost and a reacquisition
	// is pending.
	StateRecovering

	// StateFailed is terminal: recovery gave up.
	StateFailed

	// StateDisposed is terminal: every GPU handle has been released.
	StateDisposed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateRecovering:
		return "recovering"
	case StateFailed:
		return "failed"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}
