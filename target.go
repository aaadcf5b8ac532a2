// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package polytope

import (
	"sync"

	"github.com/gogpu/wgpu/hal"
)

// Target is the drawable the core renders into. Size is read once per frame.
type Target interface {
	Size() (width, height int)
}

// SurfaceTarget is a Target backed by a presentable surface. When
// SurfaceView returns a view the core draws into it; otherwise the core
// draws into its own offscreen texture.
type SurfaceTarget interface {
	Target
	SurfaceView() hal.TextureView
}

// FixedTarget is an offscreen Target with a settable size.
type FixedTarget struct {
	mu     sync.Mutex
	width  int
	height int
}

// NewFixedTarget returns a target of w x h pixels.
func NewFixedTarget(w, h int) *FixedTarget {
	return &FixedTarget{width: w, height: h}
}

// Size returns the current size.
func (t *FixedTarget) Size() (width, height int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.width, t.height
}

// Resize changes the size seen by the next frame.
func (t *FixedTarget) Resize(w, h int) {
	t.mu.Lock()
	t.width, t.height = w, h
	t.mu.Unlock()
}
