// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package gpu wraps a wgpu HAL device for the render core.
//
// A Context owns the per-device resources a frame needs: the parameter
// uniform buffer and its bind group, the pipeline layout every program is
// linked against, and an offscreen color target used when the caller has no
// surface. It creates shader modules and pipelines for the shader composer
// and encodes, submits and waits for one full-screen draw per frame.
//
// Submission and fence failures are reported as ErrContextLost; the caller
// discards the Context and opens a new device.
package gpu
