// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package params

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"

	"golang.org/x/image/math/f32"
)

// Value is a parameter value of one to four float32 components.
// The zero Value has no components and never matches a declared parameter.
type Value struct {
	n int
	v f32.Vec4
}

// Scalar returns a one-component value.
func Scalar(x float32) Value { return Value{n: 1, v: f32.Vec4{x}} }

// Vec2 returns a two-component value.
func Vec2(x, y float32) Value { return Value{n: 2, v: f32.Vec4{x, y}} }

// Vec3 returns a three-component value.
func Vec3(x, y, z float32) Value { return Value{n: 3, v: f32.Vec4{x, y, z}} }

// Vec4 returns a four-component value.
func Vec4(x, y, z, w float32) Value { return Value{n: 4, v: f32.Vec4{x, y, z, w}} }

// Len returns the number of components.
func (v Value) Len() int { return v.n }

// At returns component i, or 0 if i is out of range.
func (v Value) At(i int) float32 {
	if i < 0 || i >= v.n {
		return 0
	}
	return v.v[i]
}

// Float returns the first component.
func (v Value) Float() float32 { return v.v[0] }

// Components returns a copy of the components.
func (v Value) Components() []float32 {
	out := make([]float32, v.n)
	copy(out, v.v[:v.n])
	return out
}

// Equal reports whether v and o have the same length and identical components.
func (v Value) Equal(o Value) bool {
	if v.n != o.n {
		return false
	}
	for i := 0; i < v.n; i++ {
		if v.v[i] != o.v[i] {
			return false
		}
	}
	return true
}

// Bytes returns the components as little-endian float32s, the layout WGSL
// uniform buffers expect.
func (v Value) Bytes() []byte {
	out := make([]byte, 4*v.n)
	for i := 0; i < v.n; i++ {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v.v[i]))
	}
	return out
}

// String formats the value as a scalar or a bracketed vector.
func (v Value) String() string {
	if v.n == 1 {
		return strconv.FormatFloat(float64(v.v[0]), 'g', -1, 32)
	}
	parts := make([]string, v.n)
	for i := range parts {
		parts[i] = strconv.FormatFloat(float64(v.v[i]), 'g', -1, 32)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Set is a partial mapping from parameter names to values, as sent by
// presentation layers.
type Set map[string]Value

// Scalars builds a Set of one-component values.
func Scalars(m map[string]float64) Set {
	s := make(Set, len(m))
	for k, x := range m {
		s[k] = Scalar(float32(x))
	}
	return s
}
