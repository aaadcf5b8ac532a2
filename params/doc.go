// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package params declares render parameters, their valid ranges and their
// WGSL uniform layout, and tracks which values changed since the last GPU
// upload.
//
// Values are clamped when written, never when read. A write that leaves a
// value unchanged does not mark it dirty, so the render loop only uploads
// what actually moved.
package params
