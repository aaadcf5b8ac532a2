// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package polytope

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/polytope/frame"
	"github.com/gogpu/polytope/internal/gpu"
	"github.com/gogpu/polytope/params"
	"github.com/gogpu/polytope/shader"
	"github.com/gogpu/polytope/strategy"
	"github.com/gogpu/polytope/strategy/builtin"
)

// Config describes what a Core renders.
type Config struct {
	Geometries  *strategy.Registry
	Projections *strategy.Registry

	// Schema defaults to params.DefaultSchema().
	Schema *params.Schema

	// Devices opens the GPU device. Required.
	Devices DeviceSource

	// Geometry and Projection select the initial pair. An empty or
	// unregistered name falls back to the matching Fallback field.
	Geometry   string
	Projection string

	// Fallbacks default to builtin.DefaultGeometry and
	// builtin.DefaultProjection.
	FallbackGeometry   string
	FallbackProjection string

	InitialParameters params.Set

	// OnError receives errors raised inside the frame loop and recovery.
	// It is called without internal locks held.
	OnError func(error)
}

// Strategy selects a geometry/projection pair. Empty fields keep the
// current selection.
type Strategy struct {
	Geometry   string
	Projection string
}

// Status is a read-only snapshot of a Core.
type Status struct {
	State            State
	Running          bool
	Geometry         string
	Projection       string
	FrameTime        time.Duration
	Elapsed          time.Duration
	Frames           uint64
	RecoveryAttempts int
	ContextAlive     bool
	CachedPrograms   int
	Parameters       params.Set
}

// Core renders a geometry/projection pair every frame, uploads changed
// parameters, and reacquires the GPU context after a loss.
//
// All methods are safe for concurrent use. Frame and recovery callbacks
// run on the scheduler.
type Core struct {
	target  Target
	devices DeviceSource
	onError func(error)
	opts    options
	store   *params.Store
	logger  *slog.Logger

	// stopLoop ends the core-owned frame.Loop, if any.
	stopLoop context.CancelFunc

	mu               sync.Mutex
	state            State
	device           *Device
	gpu              *gpu.Context
	composer         *shader.Composer
	program          *shader.Program
	geometry         string
	projection       string
	needsRecompile   bool
	contextAlive     bool
	recoveryAttempts int
	resumeRunning    bool
	elapsed          time.Duration
	lastTick         time.Time
	width            int
	height           int
	frames           uint64
	frameTime        time.Duration

	cancelFrame frame.CancelFunc
	frameSeq    uint64
	cancelRetry frame.CancelFunc
	retrySeq    uint64
}

// NewCore validates cfg, opens a device and prepares the composer. The
// first program is compiled by Start.
//
// Any failure is returned as *ConstructionError.
func NewCore(target Target, cfg Config, opts ...Option) (*Core, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = Logger()
	}

	switch {
	case target == nil:
		return nil, &ConstructionError{Err: errors.New("target is nil")}
	case cfg.Geometries == nil || cfg.Geometries.Role() != strategy.RoleGeometry:
		return nil, &ConstructionError{Err: errors.New("geometry registry required")}
	case cfg.Projections == nil || cfg.Projections.Role() != strategy.RoleProjection:
		return nil, &ConstructionError{Err: errors.New("projection registry required")}
	case cfg.Devices == nil:
		return nil, &ConstructionError{Err: errors.New("device source required")}
	}

	geometry, err := resolveStrategy(logger, cfg.Geometries, cfg.Geometry, cfg.FallbackGeometry, builtin.DefaultGeometry)
	if err != nil {
		return nil, &ConstructionError{Err: err}
	}
	projection, err := resolveStrategy(logger, cfg.Projections, cfg.Projection, cfg.FallbackProjection, builtin.DefaultProjection)
	if err != nil {
		return nil, &ConstructionError{Err: err}
	}

	schema := cfg.Schema
	if schema == nil {
		schema = params.DefaultSchema()
	}
	store := params.NewStore(schema)
	store.SetMany(cfg.InitialParameters)

	c := &Core{
		target:         target,
		devices:        cfg.Devices,
		onError:        cfg.OnError,
		opts:           o,
		store:          store,
		logger:         logger,
		state:          StateConstructed,
		geometry:       geometry,
		projection:     projection,
		needsRecompile: true,
	}

	if err := c.acquireLocked(); err != nil {
		return nil, &ConstructionError{Err: err}
	}
	composer, err := shader.NewComposer(shader.ComposerConfig{
		Geometries:       cfg.Geometries,
		Projections:      cfg.Projections,
		Schema:           schema,
		Compiler:         o.compiler,
		Backend:          c.gpu,
		Logger:           logger,
		ProgramCacheSize: o.programCacheSize,
	})
	if err != nil {
		c.releaseContextLocked()
		return nil, &ConstructionError{Err: err}
	}
	c.composer = composer

	if c.opts.scheduler == nil {
		loop := frame.NewLoop(o.fps)
		ctx, cancel := context.WithCancel(context.Background())
		go func() { _ = loop.Run(ctx) }()
		c.opts.scheduler = loop
		c.stopLoop = cancel
	}

	logger.Info("polytope: core created",
		"geometry", geometry,
		"projection", projection,
		"uniform_size", schema.Size())
	return c, nil
}

// resolveStrategy returns name if it is registered, else the fallback.
func resolveStrategy(logger *slog.Logger, reg *strategy.Registry, name, fallback, def string) (string, error) {
	if fallback == "" {
		fallback = def
	}
	if name != "" && reg.Has(name) {
		return name, nil
	}
	if !reg.Has(fallback) {
		if name == "" {
			name = fallback
		}
		_, err := reg.Get(name)
		return "", fmt.Errorf("no usable %s strategy: %w", reg.Role(), err)
	}
	if name != "" {
		logger.Warn("polytope: unknown strategy, using fallback",
			"role", reg.Role().String(),
			"name", name,
			"fallback", fallback)
	}
	return fallback, nil
}

// Start begins rendering. It is valid from StateConstructed and
// StateStopped, and a no-op while running. The program is compiled
// synchronously; a compile error is returned and the state is unchanged.
func (c *Core) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateDisposed:
		return ErrDisposed
	case StateFailed:
		return ErrRecoveryFailed
	case StateRunning:
		return nil
	case StateRecovering:
		c.resumeRunning = true
		return nil
	}

	if c.gpu == nil {
		if err := c.acquireLocked(); err != nil {
			return fmt.Errorf("%w: %w", ErrContextLost, err)
		}
		c.resetAfterAcquireLocked()
	}
	if c.program == nil || c.needsRecompile {
		if err := c.swapProgramLocked(); err != nil {
			return err
		}
	}

	c.state = StateRunning
	c.lastTick = time.Time{}
	c.scheduleFrameLocked()
	c.logger.Info("polytope: started", "geometry", c.geometry, "projection", c.projection)
	return nil
}

// Stop cancels the scheduled frame and any pending recovery attempt.
// It is idempotent.
func (c *Core) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateDisposed:
		return ErrDisposed
	case StateRunning:
		c.cancelFrameLocked()
		c.state = StateStopped
		c.logger.Info("polytope: stopped", "frames", c.frames)
	case StateRecovering:
		c.cancelRetryLocked()
		c.resumeRunning = false
		c.state = StateStopped
		c.logger.Info("polytope: stopped during recovery", "attempts", c.recoveryAttempts)
	}
	return nil
}

// Dispose cancels every callback and releases every GPU handle. All later
// calls return ErrDisposed.
func (c *Core) Dispose() error {
	c.mu.Lock()
	if c.state == StateDisposed {
		c.mu.Unlock()
		return nil
	}
	c.cancelFrameLocked()
	c.cancelRetryLocked()
	c.program = nil
	if c.composer != nil {
		c.composer.Release()
	}
	c.releaseContextLocked()
	c.contextAlive = false
	c.state = StateDisposed
	stopLoop := c.stopLoop
	c.mu.Unlock()

	if stopLoop != nil {
		stopLoop()
	}
	c.logger.Info("polytope: disposed")
	return nil
}

// UpdateParameters writes partial into the parameter store. Values are
// clamped, unknown names ignored. Writes are kept in every state but
// Disposed and reach the GPU on the next frame with a live context.
func (c *Core) UpdateParameters(partial params.Set) error {
	c.mu.Lock()
	disposed := c.state == StateDisposed
	c.mu.Unlock()
	if disposed {
		return ErrDisposed
	}

	changed := c.store.SetMany(partial)
	if len(changed) > 0 {
		c.logger.Debug("polytope: parameters updated", "changed", changed)
	}
	return nil
}

// SetStrategy selects a new pair. The program is rebuilt on the next
// frame, so several calls between frames compile only the final pair.
// Unknown names are reported through OnError by that frame.
func (c *Core) SetStrategy(s Strategy) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateDisposed {
		return ErrDisposed
	}
	geometry, projection := c.geometry, c.projection
	if s.Geometry != "" {
		geometry = s.Geometry
	}
	if s.Projection != "" {
		projection = s.Projection
	}
	if geometry == c.geometry && projection == c.projection {
		return nil
	}
	c.geometry, c.projection = geometry, projection
	c.needsRecompile = true
	c.logger.Debug("polytope: strategy selected", "geometry", geometry, "projection", projection)
	return nil
}

// NotifyContextLost reports a platform context-loss event. The core enters
// StateRecovering and retries after the backoff interval.
func (c *Core) NotifyContextLost() error {
	c.mu.Lock()
	switch c.state {
	case StateDisposed:
		c.mu.Unlock()
		return ErrDisposed
	case StateRecovering, StateFailed:
		c.mu.Unlock()
		return nil
	}
	err := c.loseContextLocked(ErrContextLost)
	c.mu.Unlock()

	if err != nil {
		c.report(err)
	}
	return nil
}

// Status returns a snapshot of the core.
func (c *Core) Status() (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateDisposed {
		return Status{State: StateDisposed}, ErrDisposed
	}
	return Status{
		State:            c.state,
		Running:          c.state == StateRunning,
		Geometry:         c.geometry,
		Projection:       c.projection,
		FrameTime:        c.frameTime,
		Elapsed:          c.elapsed,
		Frames:           c.frames,
		RecoveryAttempts: c.recoveryAttempts,
		ContextAlive:     c.contextAlive,
		CachedPrograms:   c.composer.CachedPrograms(),
		Parameters:       c.store.Snapshot(),
	}, nil
}

// PendingUpload returns the parameter names waiting for the next upload,
// in schema order.
func (c *Core) PendingUpload() []string {
	return c.store.DirtyNames()
}

// report delivers err to OnError. Caller must not hold c.mu.
func (c *Core) report(err error) {
	c.logger.Error("polytope: render error", "err", err)
	if c.onError != nil {
		c.onError(err)
	}
}

// acquireLocked opens a device and builds the GPU context on it.
func (c *Core) acquireLocked() error {
	dev, err := c.devices.OpenDevice()
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	if dev == nil || dev.Device == nil || dev.Queue == nil {
		dev.release()
		return errors.New("open device: incomplete device")
	}
	ctx, err := gpu.NewContext(dev.Device, dev.Queue, dev.Format, c.store.Schema().Size())
	if err != nil {
		dev.release()
		return err
	}
	c.device = dev
	c.gpu = ctx
	c.contextAlive = true
	if c.composer != nil {
		c.composer.SetBackend(ctx)
	}
	return nil
}

// resetAfterAcquireLocked runs once per recreated context and drops every
// handle tied to the previous one.
func (c *Core) resetAfterAcquireLocked() {
	c.composer.InvalidateAll()
	c.program = nil
	c.needsRecompile = true
	c.store.MarkAllDirty()
}

// releaseContextLocked destroys the GPU context and closes the device.
func (c *Core) releaseContextLocked() {
	if c.gpu != nil {
		c.gpu.Destroy()
		c.gpu = nil
	}
	if c.device != nil {
		c.device.release()
		c.device = nil
	}
}

// swapProgramLocked builds the selected pair and makes it current. Every
// parameter is marked dirty because the new pipeline has no uniform state.
func (c *Core) swapProgramLocked() error {
	prog, err := c.composer.Program(context.Background(), c.geometry, c.projection)
	if err != nil {
		return err
	}
	c.program = prog
	c.needsRecompile = false
	c.store.MarkAllDirty()
	return nil
}

func (c *Core) scheduleFrameLocked() {
	c.frameSeq++
	seq := c.frameSeq
	c.cancelFrame = c.opts.scheduler.ScheduleFrame(func(now time.Time) {
		c.tick(seq, now)
	})
}

func (c *Core) cancelFrameLocked() {
	c.frameSeq++
	if c.cancelFrame != nil {
		c.cancelFrame()
		c.cancelFrame = nil
	}
}

func (c *Core) cancelRetryLocked() {
	c.retrySeq++
	if c.cancelRetry != nil {
		c.cancelRetry()
		c.cancelRetry = nil
	}
}
