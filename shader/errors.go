// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package shader

import (
	"errors"
	"fmt"
	"strings"
)

// ErrReleased is returned by a Composer after Release.
var ErrReleased = errors.New("shader: composer released")

// ErrDetached is returned by a Composer between Detach and SetBackend.
var ErrDetached = errors.New("shader: composer has no backend")

// InjectionError reports a template whose markers cannot be substituted.
type InjectionError struct {
	Marker string
	Reason string
}

func (e *InjectionError) Error() string {
	return fmt.Sprintf("shader: injection %q: %s", e.Marker, e.Reason)
}

// CompileError reports a stage the compiler rejected.
type CompileError struct {
	Stage      Stage
	Geometry   string
	Projection string

	// Line is the 1-based line in the assembled source, or 0 if the
	// compiler message carried none.
	Line int

	// Origin is the source the failing line came from.
	Origin Origin

	// Excerpt shows the numbered lines around Line, the failing one
	// marked with '>'.
	Excerpt string

	Err error
}

func (e *CompileError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "shader: compile %s stage", e.Stage)
	if e.Geometry != "" || e.Projection != "" {
		fmt.Fprintf(&b, " (%s/%s)", e.Geometry, e.Projection)
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, " at line %d (%s)", e.Line, e.Origin)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	if e.Excerpt != "" {
		b.WriteString("\n")
		b.WriteString(e.Excerpt)
	}
	return b.String()
}

func (e *CompileError) Unwrap() error { return e.Err }

// LinkError reports a pipeline that could not be created from compiled stages.
type LinkError struct {
	Geometry   string
	Projection string
	Err        error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("shader: link %s/%s: %v", e.Geometry, e.Projection, e.Err)
}

func (e *LinkError) Unwrap() error { return e.Err }
