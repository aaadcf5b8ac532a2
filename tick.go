// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package polytope

import (
	"errors"
	"time"

	"github.com/gogpu/polytope/internal/gpu"
	"github.com/gogpu/polytope/params"
	"github.com/gogpu/wgpu/hal"
)

// tick runs one frame: advance time, follow the target size, rebuild the
// program if the strategy changed, upload dirty parameters, draw, and
// schedule the next frame. A stale seq means the frame was cancelled.
func (c *Core) tick(seq uint64, now time.Time) {
	err := c.runFrame(seq, now)
	if err != nil {
		c.report(err)
	}
}

func (c *Core) runFrame(seq uint64, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if seq != c.frameSeq || c.state != StateRunning {
		return nil
	}
	c.cancelFrame = nil

	// Time.
	if !c.lastTick.IsZero() {
		c.frameTime = now.Sub(c.lastTick)
		c.elapsed += c.frameTime
	}
	c.lastTick = now
	c.store.Set(params.Time, params.Scalar(float32(c.elapsed.Seconds())))
	c.store.MarkDirty(params.Time)

	// Size. A zero-sized target skips drawing but keeps the loop alive.
	w, h := c.target.Size()
	if w <= 0 || h <= 0 {
		c.scheduleFrameLocked()
		return nil
	}
	view := c.surfaceView()
	if view == nil {
		// No-op unless the size changed.
		if err := c.gpu.Resize(uint32(w), uint32(h)); err != nil {
			return c.frameErrorLocked(err)
		}
	}
	if w != c.width || h != c.height {
		c.width, c.height = w, h
		c.store.Set(params.Resolution, params.Vec2(float32(w), float32(h)))
	}

	// Recompile.
	if c.needsRecompile || c.program == nil {
		if err := c.swapProgramLocked(); err != nil {
			c.cancelFrameLocked()
			c.state = StateStopped
			return err
		}
		c.logger.Info("polytope: program swapped",
			"geometry", c.geometry,
			"projection", c.projection)
	}

	// Upload. Names that did not reach the GPU go back into the dirty set.
	pending := c.store.DrainDirty()
	for i, u := range pending {
		slot, ok := c.program.Slot(u.Name)
		if !ok {
			continue
		}
		if err := c.gpu.WriteUniform(slot.Offset, u.Value.Bytes()); err != nil {
			for _, rest := range pending[i:] {
				c.store.MarkDirty(rest.Name)
			}
			return c.frameErrorLocked(err)
		}
	}

	// Draw.
	if err := c.gpu.Draw(c.program.Pipeline(), view, c.opts.clear); err != nil {
		return c.frameErrorLocked(err)
	}
	c.frames++

	c.scheduleFrameLocked()
	return nil
}

// surfaceView returns the target's surface view, or nil to draw offscreen.
func (c *Core) surfaceView() hal.TextureView {
	if st, ok := c.target.(SurfaceTarget); ok {
		return st.SurfaceView()
	}
	return nil
}

// frameErrorLocked handles a failure inside a frame. Context loss starts
// recovery and is not reported; anything else stops the core and is
// returned for reporting.
func (c *Core) frameErrorLocked(err error) error {
	if errors.Is(err, gpu.ErrContextLost) {
		c.logger.Warn("polytope: context lost during frame", "err", err)
		return c.loseContextLocked(err)
	}
	c.cancelFrameLocked()
	c.state = StateStopped
	return err
}
