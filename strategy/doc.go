// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package strategy holds the pluggable WGSL fragments that a shader program
// is assembled from.
//
// There are two roles:
//
//   - Geometry strategies supply fn densityField(p: vec3<f32>) -> f32, the
//     field that decides which points belong to the rendered structure.
//   - Projection strategies supply fn reduceDimension(p: vec4<f32>) -> vec3<f32>,
//     the map from four-dimensional coordinates to display space.
//
// Each role has its own Registry. Registries are plain values passed to the
// render core; there is no package-level registry, so several cores with
// different strategy sets can live in one process.
//
//	geoms := strategy.NewGeometryRegistry()
//	if err := geoms.Register("grid", gridSource); err != nil {
//	    return err // *InvalidStrategyError
//	}
//
// Registration checks that the fragment declares the role's required
// function. The shader composer injects fragments textually, and a missing
// function would otherwise only show up as a confusing link error.
//
// Definitions are immutable once registered. Registering a name twice fails
// and keeps the first definition.
package strategy
