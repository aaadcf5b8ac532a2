// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package gpu

import "errors"

var (
	// ErrContextLost is returned when the device stopped accepting work.
	// The context cannot be used again; open a new device.
	ErrContextLost = errors.New("gpu: context lost")

	// ErrNoPipeline is returned by Draw without a pipeline.
	ErrNoPipeline = errors.New("gpu: no pipeline")

	// ErrNoTarget is returned by Draw when neither a surface view nor an
	// offscreen target exists.
	ErrNoTarget = errors.New("gpu: no render target")

	// ErrUniformRange is returned for a uniform write outside the buffer.
	ErrUniformRange = errors.New("gpu: uniform write out of range")

	// ErrInvalidSize is returned for a zero target dimension.
	ErrInvalidSize = errors.New("gpu: invalid target size")
)
