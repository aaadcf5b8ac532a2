// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package polytope

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gogpu/polytope/frame"
	"github.com/gogpu/polytope/params"
	"github.com/gogpu/polytope/shader"
	"github.com/gogpu/polytope/strategy"
	"github.com/gogpu/polytope/strategy/builtin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// stubCompiler returns a SPIR-V header for every source and counts calls.
type stubCompiler struct {
	mu    sync.Mutex
	calls int
	fail  string
}

func (s *stubCompiler) Compile(source string) ([]uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail != "" && strings.Contains(source, s.fail) {
		return nil, errors.New("error: expected ';' at line 3")
	}
	return []uint32{0x07230203}, nil
}

func (s *stubCompiler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// flakyDevices hands out noop devices until fail is set.
type flakyDevices struct {
	mu    sync.Mutex
	fail  bool
	opens int
}

func (f *flakyDevices) OpenDevice() (*Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	if f.fail {
		return nil, errors.New("adapter unavailable")
	}
	return NoopDevices().OpenDevice()
}

func (f *flakyDevices) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

type fixture struct {
	core     *Core
	sched    *frame.Manual
	compiler *stubCompiler
	devices  *flakyDevices
	target   *FixedTarget
	errs     []error
}

func newFixture(t *testing.T, mutate func(*Config), opts ...Option) *fixture {
	t.Helper()

	geoms, projs, err := builtin.Registries()
	require.NoError(t, err)

	f := &fixture{
		sched:    frame.NewManual(epoch),
		compiler: &stubCompiler{},
		devices:  &flakyDevices{},
		target:   NewFixedTarget(320, 240),
	}
	cfg := Config{
		Geometries:  geoms,
		Projections: projs,
		Devices:     f.devices,
		Geometry:    "grid",
		Projection:  "linear",
		InitialParameters: params.Scalars(map[string]float64{
			params.Dimension:   4,
			params.GridDensity: 8,
		}),
		OnError: func(err error) { f.errs = append(f.errs, err) },
	}
	if mutate != nil {
		mutate(&cfg)
	}

	opts = append([]Option{
		WithScheduler(f.sched),
		WithCompiler(f.compiler),
		WithLogger(slog.New(slog.DiscardHandler)),
	}, opts...)
	f.core, err = NewCore(f.target, cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.core.Dispose() })
	return f
}

func (f *fixture) status(t *testing.T) Status {
	t.Helper()
	st, err := f.core.Status()
	require.NoError(t, err)
	return st
}

func TestCoreStartRendersAndUploads(t *testing.T) {
	f := newFixture(t, nil)

	st := f.status(t)
	assert.Equal(t, StateConstructed, st.State)
	assert.False(t, st.Running)

	require.NoError(t, f.core.Start())
	assert.True(t, f.status(t).Running)
	assert.NotEmpty(t, f.core.PendingUpload(), "new program starts fully dirty")
	assert.Equal(t, 1, f.sched.PendingFrames())

	assert.Equal(t, 1, f.sched.Step(16*time.Millisecond))
	st = f.status(t)
	assert.Equal(t, StateRunning, st.State)
	assert.Empty(t, f.core.PendingUpload())
	assert.Equal(t, uint64(1), st.Frames)
	assert.Equal(t, "grid", st.Geometry)
	assert.Equal(t, "linear", st.Projection)
	assert.Equal(t, 1, st.CachedPrograms)
	assert.True(t, st.ContextAlive)
	assert.Equal(t, 1, f.sched.PendingFrames(), "next frame scheduled")
	assert.Empty(t, f.errs)

	// Start while running is a no-op.
	require.NoError(t, f.core.Start())
	assert.Equal(t, 1, f.sched.PendingFrames())
}

func TestCoreTimeAndResolution(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.core.Start())

	f.sched.Step(16 * time.Millisecond)
	f.sched.Step(16 * time.Millisecond)
	f.sched.Step(16 * time.Millisecond)

	st := f.status(t)
	assert.Equal(t, 32*time.Millisecond, st.Elapsed)
	assert.Equal(t, 16*time.Millisecond, st.FrameTime)
	assert.InDelta(t, 0.032, st.Parameters[params.Time].Float(), 1e-6)

	res := st.Parameters[params.Resolution]
	assert.Equal(t, float32(320), res.At(0))
	assert.Equal(t, float32(240), res.At(1))

	f.target.Resize(640, 480)
	f.sched.Step(16 * time.Millisecond)
	res = f.status(t).Parameters[params.Resolution]
	assert.Equal(t, float32(640), res.At(0))
	assert.Equal(t, float32(480), res.At(1))
}

func TestCoreZeroSizeSkipsDraw(t *testing.T) {
	f := newFixture(t, nil)
	f.target.Resize(0, 0)
	require.NoError(t, f.core.Start())

	f.sched.Step(16 * time.Millisecond)
	assert.Equal(t, uint64(0), f.status(t).Frames)
	assert.Equal(t, 1, f.sched.PendingFrames(), "loop keeps running")

	f.target.Resize(10, 10)
	f.sched.Step(16 * time.Millisecond)
	assert.Equal(t, uint64(1), f.status(t).Frames)
}

func TestCoreConstructionFallsBackOnUnknownStrategy(t *testing.T) {
	f := newFixture(t, func(cfg *Config) {
		cfg.Geometry = "no-such-geometry"
		cfg.Projection = ""
	})

	st := f.status(t)
	assert.Equal(t, builtin.DefaultGeometry, st.Geometry)
	assert.Equal(t, builtin.DefaultProjection, st.Projection)
}

func TestCoreConstructionErrors(t *testing.T) {
	geoms, projs, err := builtin.Registries()
	require.NoError(t, err)
	target := NewFixedTarget(1, 1)

	tests := []struct {
		name string
		cfg  Config
		is   error
	}{
		{
			name: "missing registries",
			cfg:  Config{Devices: NoopDevices()},
		},
		{
			name: "swapped registries",
			cfg:  Config{Geometries: projs, Projections: geoms, Devices: NoopDevices()},
		},
		{
			name: "missing devices",
			cfg:  Config{Geometries: geoms, Projections: projs},
		},
		{
			name: "unregistered fallback",
			cfg: Config{
				Geometries:       geoms,
				Projections:      projs,
				Devices:          NoopDevices(),
				FallbackGeometry: "missing",
			},
		},
		{
			name: "device failure",
			cfg: Config{
				Geometries:  geoms,
				Projections: projs,
				Devices: DeviceSourceFunc(func() (*Device, error) {
					return nil, errBoom
				}),
			},
			is: errBoom,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, err := NewCore(target, tt.cfg, WithScheduler(frame.NewManual(epoch)))
			assert.Nil(t, core)
			var ce *ConstructionError
			require.ErrorAs(t, err, &ce)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}

	var unknown *strategy.UnknownStrategyError
	_, err = NewCore(target, tests[3].cfg, WithScheduler(frame.NewManual(epoch)))
	assert.ErrorAs(t, err, &unknown)
}

var errBoom = errors.New("boom")

func TestCoreStartCompileError(t *testing.T) {
	f := newFixture(t, nil)
	f.compiler.fail = "fn fs_main"

	err := f.core.Start()
	var ce *shader.CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, shader.StageFragment, ce.Stage)
	assert.Equal(t, StateConstructed, f.status(t).State)
	assert.Equal(t, 0, f.sched.PendingFrames())

	f.compiler.fail = ""
	require.NoError(t, f.core.Start())
	assert.Equal(t, StateRunning, f.status(t).State)
}

func TestCoreSetStrategyUnknownReportsAndStops(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.core.Start())
	f.sched.Step(16 * time.Millisecond)

	require.NoError(t, f.core.SetStrategy(Strategy{Geometry: "no-such-geometry"}))
	f.sched.Step(16 * time.Millisecond)

	require.Len(t, f.errs, 1)
	var unknown *strategy.UnknownStrategyError
	require.ErrorAs(t, f.errs[0], &unknown)
	assert.Equal(t, "no-such-geometry", unknown.Name)

	st := f.status(t)
	assert.False(t, st.Running)
	assert.Equal(t, StateStopped, st.State)
	assert.Equal(t, 0, f.sched.PendingFrames())

	// A valid pair brings it back.
	require.NoError(t, f.core.SetStrategy(Strategy{Geometry: "hypercube"}))
	require.NoError(t, f.core.Start())
	assert.Equal(t, "hypercube", f.status(t).Geometry)
}

func TestCoreSetStrategyCoalesces(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.core.Start())
	f.sched.Step(16 * time.Millisecond)
	assert.Equal(t, 2, f.compiler.count(), "vertex and one fragment stage")

	require.NoError(t, f.core.SetStrategy(Strategy{Geometry: "hypercube"}))
	require.NoError(t, f.core.SetStrategy(Strategy{Geometry: "torus", Projection: "perspective"}))
	f.sched.Step(16 * time.Millisecond)

	assert.Equal(t, 3, f.compiler.count(), "only the final pair is compiled")
	st := f.status(t)
	assert.Equal(t, "torus", st.Geometry)
	assert.Equal(t, "perspective", st.Projection)
	assert.Empty(t, f.core.PendingUpload())

	// Returning to a cached pair does not compile.
	require.NoError(t, f.core.SetStrategy(Strategy{Geometry: "grid", Projection: "linear"}))
	f.sched.Step(16 * time.Millisecond)
	assert.Equal(t, 3, f.compiler.count())
	assert.Equal(t, 2, f.status(t).CachedPrograms)

	// Same pair is not a change.
	require.NoError(t, f.core.SetStrategy(Strategy{}))
	f.sched.Step(16 * time.Millisecond)
	assert.Equal(t, 3, f.compiler.count())
	assert.Empty(t, f.errs)
}

func TestCoreParametersClampedAndUploaded(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.core.Start())
	f.sched.Step(16 * time.Millisecond)

	require.NoError(t, f.core.UpdateParameters(params.Scalars(map[string]float64{
		params.GridDensity: 100,
		"unknownParam":     1,
	})))
	assert.Equal(t, []string{params.GridDensity}, f.core.PendingUpload())
	assert.Equal(t, float32(25), f.status(t).Parameters[params.GridDensity].Float())

	f.sched.Step(16 * time.Millisecond)
	assert.Empty(t, f.core.PendingUpload())
}

func TestCoreContextLossRecovers(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.core.Start())
	f.sched.Step(16 * time.Millisecond)
	compiles := f.compiler.count()

	require.NoError(t, f.core.NotifyContextLost())
	st := f.status(t)
	assert.Equal(t, StateRecovering, st.State)
	assert.False(t, st.ContextAlive)
	assert.False(t, st.Running)
	assert.Equal(t, 0, st.CachedPrograms)
	assert.Equal(t, 0, f.sched.PendingFrames())
	assert.Equal(t, 1, f.sched.PendingTimers())

	// A second notification while recovering is ignored.
	require.NoError(t, f.core.NotifyContextLost())
	assert.Equal(t, 1, f.sched.PendingTimers())

	// Writes during recovery are kept.
	require.NoError(t, f.core.UpdateParameters(params.Scalars(map[string]float64{params.GridDensity: 12})))

	f.sched.Advance(DefaultRecoveryInterval)
	st = f.status(t)
	assert.Equal(t, StateRunning, st.State)
	assert.True(t, st.ContextAlive)
	assert.Equal(t, 0, st.RecoveryAttempts)
	assert.Equal(t, float32(12), st.Parameters[params.GridDensity].Float())
	assert.Equal(t, params.DefaultSchema().Names(), f.core.PendingUpload(), "everything re-uploads")

	f.sched.Step(16 * time.Millisecond)
	assert.Empty(t, f.core.PendingUpload())
	assert.Equal(t, compiles+2, f.compiler.count(), "stages rebuilt on the new device")
	assert.Equal(t, uint64(2), f.status(t).Frames)
	assert.Empty(t, f.errs, "context loss is not an error")
}

func TestCoreRecoveryFailsAfterCeiling(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.core.Start())
	f.sched.Step(16 * time.Millisecond)

	f.devices.setFail(true)
	require.NoError(t, f.core.NotifyContextLost())

	for i := 1; i < DefaultMaxRecoveryAttempts; i++ {
		f.sched.Advance(DefaultRecoveryInterval)
		st := f.status(t)
		assert.Equal(t, StateRecovering, st.State)
		assert.Equal(t, i, st.RecoveryAttempts)
	}
	f.sched.Advance(DefaultRecoveryInterval)

	st := f.status(t)
	assert.Equal(t, StateFailed, st.State)
	assert.Equal(t, DefaultMaxRecoveryAttempts, st.RecoveryAttempts)
	assert.Equal(t, 0, f.sched.PendingTimers())
	require.Len(t, f.errs, 1)
	assert.ErrorIs(t, f.errs[0], ErrRecoveryFailed)

	// Nothing else is attempted.
	f.sched.Advance(10 * DefaultRecoveryInterval)
	assert.Equal(t, StateFailed, f.status(t).State)

	assert.NoError(t, f.core.UpdateParameters(params.Scalars(map[string]float64{params.HueShift: 0.1})))
	assert.ErrorIs(t, f.core.Start(), ErrRecoveryFailed)
}

func TestCoreRecoveryRetriesThenSucceeds(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.core.Start())

	f.devices.setFail(true)
	require.NoError(t, f.core.NotifyContextLost())
	f.sched.Advance(DefaultRecoveryInterval)
	assert.Equal(t, 1, f.status(t).RecoveryAttempts)

	f.devices.setFail(false)
	f.sched.Advance(DefaultRecoveryInterval)
	st := f.status(t)
	assert.Equal(t, StateRunning, st.State)
	assert.Equal(t, 0, st.RecoveryAttempts)
	assert.Empty(t, f.errs)
}

func TestCoreStopDuringRecovery(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.core.Start())
	require.NoError(t, f.core.NotifyContextLost())

	require.NoError(t, f.core.Stop())
	assert.Equal(t, StateStopped, f.status(t).State)
	assert.Equal(t, 0, f.sched.PendingTimers())

	f.sched.Advance(time.Second)
	st := f.status(t)
	assert.Equal(t, StateStopped, st.State)
	assert.False(t, st.ContextAlive)

	opens := f.devices.opens
	require.NoError(t, f.core.Start())
	assert.Equal(t, opens+1, f.devices.opens)
	st = f.status(t)
	assert.Equal(t, StateRunning, st.State)
	assert.True(t, st.ContextAlive)
}

func TestCoreLossWhileStoppedRecoversStopped(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.core.Start())
	require.NoError(t, f.core.Stop())
	require.NoError(t, f.core.Stop())

	require.NoError(t, f.core.NotifyContextLost())
	f.sched.Advance(DefaultRecoveryInterval)

	st := f.status(t)
	assert.Equal(t, StateStopped, st.State)
	assert.True(t, st.ContextAlive)
	assert.Equal(t, 0, f.sched.PendingFrames())
}

func TestCoreStartDuringRecoveryResumes(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.core.NotifyContextLost())
	require.NoError(t, f.core.Start())
	assert.Equal(t, StateRecovering, f.status(t).State)

	f.sched.Advance(DefaultRecoveryInterval)
	assert.Equal(t, StateRunning, f.status(t).State)
	assert.Equal(t, 1, f.sched.PendingFrames())
}

func TestCoreDispose(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.core.Start())
	f.sched.Step(16 * time.Millisecond)

	require.NoError(t, f.core.Dispose())
	require.NoError(t, f.core.Dispose())
	assert.Equal(t, 0, f.sched.PendingFrames())

	_, err := f.core.Status()
	assert.ErrorIs(t, err, ErrDisposed)
	assert.ErrorIs(t, f.core.Start(), ErrDisposed)
	assert.ErrorIs(t, f.core.Stop(), ErrDisposed)
	assert.ErrorIs(t, f.core.UpdateParameters(params.Set{}), ErrDisposed)
	assert.ErrorIs(t, f.core.SetStrategy(Strategy{Geometry: "torus"}), ErrDisposed)
	assert.ErrorIs(t, f.core.NotifyContextLost(), ErrDisposed)

	// Stale callbacks do nothing.
	f.sched.Step(16 * time.Millisecond)
	assert.Empty(t, f.errs)
}

func TestCoreDisposeDuringRecovery(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.core.Start())
	require.NoError(t, f.core.NotifyContextLost())

	require.NoError(t, f.core.Dispose())
	assert.Equal(t, 0, f.sched.PendingTimers())
	f.sched.Advance(time.Second)
	assert.Empty(t, f.errs)
}

func TestCoreOwnsLoopWithoutScheduler(t *testing.T) {
	geoms, projs, err := builtin.Registries()
	require.NoError(t, err)

	var mu sync.Mutex
	var errs []error
	core, err := NewCore(NewFixedTarget(8, 8), Config{
		Geometries:  geoms,
		Projections: projs,
		Devices:     NoopDevices(),
		OnError: func(err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		},
	},
		WithFPS(240),
		WithCompiler(&stubCompiler{}),
		WithLogger(slog.New(slog.DiscardHandler)),
	)
	require.NoError(t, err)
	require.NoError(t, core.Start())

	assert.Eventually(t, func() bool {
		st, err := core.Status()
		return err == nil && st.Frames >= 3
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, core.Dispose())
	mu.Lock()
	assert.Empty(t, errs)
	mu.Unlock()
}
