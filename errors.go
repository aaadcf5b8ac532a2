// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package polytope

import (
	"errors"
	"fmt"

	"github.com/gogpu/polytope/internal/gpu"
)

var (
	// ErrDisposed is returned by every method of a disposed Core.
	ErrDisposed = errors.New("polytope: core disposed")

	// ErrRecoveryFailed is delivered when the GPU context could not be
	// reacquired within the attempt ceiling. The Core must be recreated.
	ErrRecoveryFailed = errors.New("polytope: context recovery failed")

	// ErrContextLost reports that the GPU context is gone.
	ErrContextLost = fmt.Errorf("polytope: %w", gpu.ErrContextLost)
)

// ConstructionError is returned by NewCore. Everything acquired before the
// failure has been released.
type ConstructionError struct {
	Err error
}

func (e *ConstructionError) Error() string {
	return "polytope: construct core: " + e.Err.Error()
}

func (e *ConstructionError) Unwrap() error { return e.Err }
