// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package shader composes WGSL render programs from geometry and projection
// strategies.
//
// A fragment template carries two injection markers:
//
//	//#inject geometry
//	//#inject projection
//
// The Composer prepends the uniform declarations generated from a
// params.Schema, substitutes the registered fragments at the markers,
// compiles the result to SPIR-V and links it with the shared full-screen
// vertex stage. Compiled stages and linked programs are cached per
// geometry/projection pair, so switching back to a previous pair does not
// recompile.
//
// Compile failures are reported as *CompileError with the failing line
// mapped back to the template or to the injected fragment it came from.
package shader
