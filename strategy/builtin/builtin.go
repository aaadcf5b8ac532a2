// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package builtin ships the stock geometry and projection fragments.
package builtin

import (
	"embed"
	"fmt"

	"github.com/gogpu/polytope/strategy"
)

//go:embed shaders/geometry/*.wgsl shaders/projection/*.wgsl
var shaderFS embed.FS

const (
	geometryDir   = "shaders/geometry"
	projectionDir = "shaders/projection"
)

// Names of the strategies a core falls back to when a requested one is missing.
const (
	DefaultGeometry   = "grid"
	DefaultProjection = "linear"
)

// RegisterAll registers every built-in geometry into geoms and every
// built-in projection into projs.
func RegisterAll(geoms, projs *strategy.Registry) error {
	if _, err := geoms.LoadDir(shaderFS, geometryDir); err != nil {
		return fmt.Errorf("builtin: geometries: %w", err)
	}
	if _, err := projs.LoadDir(shaderFS, projectionDir); err != nil {
		return fmt.Errorf("builtin: projections: %w", err)
	}
	return nil
}

// Registries returns fresh registries populated with the built-ins.
func Registries() (geoms, projs *strategy.Registry, err error) {
	geoms = strategy.NewGeometryRegistry()
	projs = strategy.NewProjectionRegistry()
	if err := RegisterAll(geoms, projs); err != nil {
		return nil, nil, err
	}
	return geoms, projs, nil
}
