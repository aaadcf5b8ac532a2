// Package polytope renders four-dimensional geometry through composable
// WGSL shader strategies.
//
// # Overview
//
// A geometry strategy maps a point in 4D space to a density; a projection
// strategy reduces 4D to 3D. polytope injects one of each into a fragment
// template, compiles it with naga, links it into a wgpu pipeline and draws
// a full-screen pass every frame. Visual parameters live in a clamped
// store; only the ones that changed since the last frame are uploaded.
//
// # Quick Start
//
//	import (
//		"github.com/gogpu/polytope"
//		"github.com/gogpu/polytope/strategy/builtin"
//	)
//
//	geoms, projs, err := builtin.Registries()
//	if err != nil {
//		log.Fatal(err)
//	}
//	core, err := polytope.NewCore(polytope.NewFixedTarget(800, 600), polytope.Config{
//		Geometries:  geoms,
//		Projections: projs,
//		Devices:     polytope.NoopDevices(),
//		Geometry:    "hypercube",
//		Projection:  "perspective",
//		OnError:     func(err error) { log.Println(err) },
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer core.Dispose()
//
//	core.Start()
//	core.UpdateParameters(params.Scalars(map[string]float64{"gridDensity": 12}))
//
// # Lifecycle
//
// A Core moves between these states:
//
//	Constructed --Start--> Running <--Start/Stop--> Stopped
//	Running/Stopped --context loss--> Recovering --ok--> Running or Stopped
//	Recovering --attempt ceiling--> Failed
//	any --Dispose--> Disposed
//
// Each frame advances time, follows the target size, swaps the program
// when the strategy changed, uploads dirty parameters and draws, in that
// order.
//
// # Scheduling
//
// Frames and recovery timers run on a frame.Scheduler. Without
// WithScheduler the core owns a frame.Loop; tests pass a frame.Manual and
// advance it explicitly.
package polytope

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
