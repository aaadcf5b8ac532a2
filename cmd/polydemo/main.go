// Command polydemo runs a polytope render core headlessly and cycles through
// the registered strategies.
//
// Settings come from POLYTOPE_* environment variables; flags override them.
//
//	POLYTOPE_BACKEND=vulkan polydemo -duration 10s -preset look.toml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/polytope"
	"github.com/gogpu/polytope/internal/config"
	"github.com/gogpu/polytope/internal/telemetry"
	"github.com/gogpu/polytope/params"
	"github.com/gogpu/polytope/strategy"
	"github.com/gogpu/polytope/strategy/builtin"

	_ "github.com/gogpu/wgpu/hal/vulkan"
)

type demoConfig struct {
	Backend     string        `env:"POLYTOPE_BACKEND" envDefault:"noop"`
	Geometry    string        `env:"POLYTOPE_GEOMETRY"`
	Projection  string        `env:"POLYTOPE_PROJECTION"`
	Preset      string        `env:"POLYTOPE_PRESET"`
	StrategyDir string        `env:"POLYTOPE_STRATEGY_DIR"`
	Width       int           `env:"POLYTOPE_WIDTH" envDefault:"800"`
	Height      int           `env:"POLYTOPE_HEIGHT" envDefault:"600"`
	FPS         int           `env:"POLYTOPE_FPS" envDefault:"60"`
	Duration    time.Duration `env:"POLYTOPE_DURATION" envDefault:"5s"`
	Cycle       time.Duration `env:"POLYTOPE_CYCLE" envDefault:"1s"`
	LogLevel    string        `env:"POLYTOPE_LOG_LEVEL" envDefault:"info"`
}

func main() {
	var cfg demoConfig
	if err := config.ParseEnv(&cfg); err != nil {
		log.Fatal(err)
	}

	flag.StringVar(&cfg.Backend, "backend", cfg.Backend, "GPU backend: noop or vulkan")
	flag.StringVar(&cfg.Geometry, "geometry", cfg.Geometry, "initial geometry strategy")
	flag.StringVar(&cfg.Projection, "projection", cfg.Projection, "initial projection strategy")
	flag.StringVar(&cfg.Preset, "preset", cfg.Preset, "TOML preset file")
	flag.StringVar(&cfg.StrategyDir, "strategies", cfg.StrategyDir, "directory with geometry/ and projection/ WGSL fragments")
	flag.IntVar(&cfg.Width, "width", cfg.Width, "target width")
	flag.IntVar(&cfg.Height, "height", cfg.Height, "target height")
	flag.IntVar(&cfg.FPS, "fps", cfg.FPS, "frame rate")
	flag.DurationVar(&cfg.Duration, "duration", cfg.Duration, "how long to run")
	flag.DurationVar(&cfg.Cycle, "cycle", cfg.Cycle, "strategy switch interval, 0 to disable")
	flag.StringVar(&cfg.LogLevel, "log", cfg.LogLevel, "log level: debug, info, warn, error")
	flag.Parse()

	if err := run(cfg); err != nil {
		log.Fatalf("polydemo: %v", err)
	}
}

func run(cfg demoConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	polytope.SetLogger(logger)

	shutdown, err := telemetry.Setup(ctx, "polydemo")
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", "err", err)
		}
	}()

	geoms, projs, err := builtin.Registries()
	if err != nil {
		return err
	}
	if cfg.StrategyDir != "" {
		if err := loadStrategies(ctx, logger, cfg.StrategyDir, geoms, projs); err != nil {
			return err
		}
	}

	devices, err := deviceSource(cfg.Backend)
	if err != nil {
		return err
	}

	coreCfg := polytope.Config{
		Geometries:  geoms,
		Projections: projs,
		Devices:     devices,
		Geometry:    cfg.Geometry,
		Projection:  cfg.Projection,
		OnError: func(err error) {
			logger.Error("render error", "err", err)
		},
	}
	if cfg.Preset != "" {
		preset, err := config.LoadPreset(cfg.Preset)
		if err != nil {
			return err
		}
		values, err := preset.Values()
		if err != nil {
			return err
		}
		coreCfg.InitialParameters = values
		if coreCfg.Geometry == "" {
			coreCfg.Geometry = preset.Geometry
		}
		if coreCfg.Projection == "" {
			coreCfg.Projection = preset.Projection
		}
	}

	target := polytope.NewFixedTarget(cfg.Width, cfg.Height)
	core, err := polytope.NewCore(target, coreCfg, polytope.WithFPS(cfg.FPS))
	if err != nil {
		return err
	}
	defer core.Dispose()

	if err := core.Start(); err != nil {
		return err
	}

	deadline := time.NewTimer(cfg.Duration)
	defer deadline.Stop()

	var cycle <-chan time.Time
	if cfg.Cycle > 0 {
		t := time.NewTicker(cfg.Cycle)
		defer t.Stop()
		cycle = t.C
	}

	pairs := strategyPairs(geoms, projs)
	next := 0
	started := time.Now()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-deadline.C:
			break loop
		case now := <-cycle:
			next = (next + 1) % len(pairs)
			if err := core.SetStrategy(pairs[next]); err != nil {
				return err
			}
			// A pair that failed to build stops the core; try the next one.
			if st, err := core.Status(); err == nil && st.State == polytope.StateStopped {
				if err := core.Start(); err != nil {
					logger.Warn("skipping pair", "geometry", pairs[next].Geometry, "projection", pairs[next].Projection, "err", err)
				}
			}
			// Sweep the mouse across the target while cycling.
			x := float32(now.Sub(started).Seconds() / cfg.Duration.Seconds())
			_ = core.UpdateParameters(params.Set{
				params.Mouse:          params.Vec2(x, 0.5),
				params.MouseIntensity: params.Scalar(0.5),
			})
		}
	}

	st, err := core.Status()
	if err != nil {
		return err
	}
	logger.Info("done",
		"state", st.State.String(),
		"frames", st.Frames,
		"elapsed", st.Elapsed,
		"programs", st.CachedPrograms,
		"geometry", st.Geometry,
		"projection", st.Projection)
	return nil
}

// loadStrategies registers fragments from dir/geometry and dir/projection
// and keeps watching both directories for new files.
func loadStrategies(ctx context.Context, logger *slog.Logger, dir string, geoms, projs *strategy.Registry) error {
	fsys := os.DirFS(dir)
	for _, reg := range []*strategy.Registry{geoms, projs} {
		sub := reg.Role().String()
		n, err := reg.LoadDir(fsys, sub)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}
		logger.Info("strategies loaded", "role", sub, "count", n)

		go func(reg *strategy.Registry, path string) {
			err := reg.Watch(ctx, path, func(err error) {
				logger.Warn("strategy rejected", "err", err)
			})
			if err != nil {
				logger.Warn("strategy watch stopped", "err", err)
			}
		}(reg, filepath.Join(dir, sub))
	}
	return nil
}

func deviceSource(backend string) (polytope.DeviceSource, error) {
	switch strings.ToLower(backend) {
	case "", "noop":
		return polytope.NoopDevices(), nil
	case "vulkan":
		return polytope.BackendDevices(gputypes.BackendVulkan), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}

// strategyPairs lists every geometry with every projection.
func strategyPairs(geoms, projs *strategy.Registry) []polytope.Strategy {
	var out []polytope.Strategy
	for _, g := range geoms.Names() {
		for _, p := range projs.Names() {
			out = append(out, polytope.Strategy{Geometry: g, Projection: p})
		}
	}
	return out
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
