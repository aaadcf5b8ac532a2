// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package polytope

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// loseContextLocked drops every handle tied to the lost device and schedules
// the first reacquisition. Parameter values survive; they are marked dirty
// once a new context is up. The returned error is non-nil only if the
// backoff policy refused to retry at all.
func (c *Core) loseContextLocked(cause error) error {
	c.cancelFrameLocked()
	c.cancelRetryLocked()
	c.resumeRunning = c.state == StateRunning
	c.state = StateRecovering
	c.contextAlive = false

	if c.gpu != nil {
		c.gpu.MarkLost()
	}
	c.composer.Detach()
	c.releaseContextLocked()
	c.program = nil
	c.needsRecompile = true
	c.recoveryAttempts = 0

	c.logger.Warn("polytope: context lost, recovering",
		"cause", cause,
		"resume", c.resumeRunning)

	c.opts.backOff.Reset()
	if !c.scheduleRetryLocked() {
		return fmt.Errorf("%w: backoff stopped: %w", ErrRecoveryFailed, cause)
	}
	return nil
}

// scheduleRetryLocked arms the next recovery attempt, or fails the core if
// the backoff policy has given up.
func (c *Core) scheduleRetryLocked() bool {
	delay := c.opts.backOff.NextBackOff()
	if delay == backoff.Stop {
		c.state = StateFailed
		return false
	}
	c.retrySeq++
	seq := c.retrySeq
	c.cancelRetry = c.opts.scheduler.After(delay, func() {
		c.attemptRecovery(seq)
	})
	c.logger.Debug("polytope: recovery scheduled",
		"attempt", c.recoveryAttempts+1,
		"delay", delay)
	return true
}

// attemptRecovery tries to reacquire the device. A stale seq means the
// attempt was cancelled by Stop, Dispose or a newer loss.
func (c *Core) attemptRecovery(seq uint64) {
	if err := c.reacquire(seq); err != nil {
		c.report(err)
	}
}

func (c *Core) reacquire(seq uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if seq != c.retrySeq || c.state != StateRecovering {
		return nil
	}
	c.cancelRetry = nil

	start := time.Now()
	err := c.acquireLocked()
	if err != nil {
		c.recoveryAttempts++
		c.logger.Warn("polytope: recovery attempt failed",
			"attempt", c.recoveryAttempts,
			"max", c.opts.maxAttempts,
			"err", err)
		if c.recoveryAttempts >= c.opts.maxAttempts {
			c.state = StateFailed
			return fmt.Errorf("%w after %d attempts: %w", ErrRecoveryFailed, c.recoveryAttempts, err)
		}
		if !c.scheduleRetryLocked() {
			return fmt.Errorf("%w: backoff stopped after %d attempts: %w", ErrRecoveryFailed, c.recoveryAttempts, err)
		}
		return nil
	}

	c.resetAfterAcquireLocked()
	c.recoveryAttempts = 0
	c.width, c.height = 0, 0
	c.logger.Info("polytope: context recovered",
		"duration", time.Since(start),
		"resume", c.resumeRunning)

	if !c.resumeRunning {
		c.state = StateStopped
		return nil
	}
	c.resumeRunning = false
	c.state = StateRunning
	c.lastTick = time.Time{}
	c.scheduleFrameLocked()
	return nil
}
