package polytope

import (
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/polytope/frame"
	"github.com/gogpu/polytope/shader"
)

// Recovery defaults.
const (
	DefaultMaxRecoveryAttempts = 3
	DefaultRecoveryInterval    = 500 * time.Millisecond
)

// Option configures a Core during creation.
// Use functional options to customize Core behavior.
//
// Example:
//
//	// Real-time loop owned by the core
//	core, err := polytope.NewCore(target, cfg)
//
//	// Deterministic scheduling for tests
//	sched := frame.NewManual(time.Now())
//	core, err := polytope.NewCore(target, cfg, polytope.WithScheduler(sched))
type Option func(*options)

// options holds optional configuration for Core creation.
type options struct {
	scheduler        frame.Scheduler
	backOff          backoff.BackOff
	maxAttempts      int
	compiler         shader.Compiler
	clear            gputypes.Color
	programCacheSize int
	logger           *slog.Logger
	fps              int
}

// defaultOptions returns the default core options.
func defaultOptions() options {
	return options{
		scheduler:   nil, // Will be set to a frame.Loop owned by the core
		backOff:     backoff.NewConstantBackOff(DefaultRecoveryInterval),
		maxAttempts: DefaultMaxRecoveryAttempts,
		compiler:    nil, // shader.NagaCompiler
		clear:       gputypes.Color{R: 0, G: 0, B: 0, A: 1},
		fps:         frame.DefaultFPS,
	}
}

// WithScheduler sets the scheduler frames and recovery timers run on.
// The caller drives it; without this option the core runs its own
// frame.Loop until Dispose.
func WithScheduler(s frame.Scheduler) Option {
	return func(o *options) {
		o.scheduler = s
	}
}

// WithFPS sets the frame rate of the core-owned loop. It has no effect
// together with WithScheduler.
func WithFPS(fps int) Option {
	return func(o *options) {
		if fps > 0 {
			o.fps = fps
		}
	}
}

// WithBackOff sets the delay policy between recovery attempts. The policy
// is Reset when a recovery starts. Returning backoff.Stop ends recovery.
//
// Example:
//
//	b := backoff.NewExponentialBackOff()
//	core, err := polytope.NewCore(target, cfg, polytope.WithBackOff(b))
func WithBackOff(b backoff.BackOff) Option {
	return func(o *options) {
		if b != nil {
			o.backOff = b
		}
	}
}

// WithMaxRecoveryAttempts sets how many failed reacquisitions move the core
// to StateFailed.
func WithMaxRecoveryAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithCompiler sets the WGSL compiler. Defaults to shader.NagaCompiler.
func WithCompiler(c shader.Compiler) Option {
	return func(o *options) {
		o.compiler = c
	}
}

// WithClearColor sets the color the target is cleared to each frame.
func WithClearColor(c gputypes.Color) Option {
	return func(o *options) {
		o.clear = c
	}
}

// WithProgramCacheSize limits the number of linked programs kept.
func WithProgramCacheSize(n int) Option {
	return func(o *options) {
		o.programCacheSize = n
	}
}

// WithLogger sets a logger for this core only. Defaults to Logger().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}
