// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package strategy

import (
	"regexp"
)

// Role identifies which injection point a strategy fills.
type Role int

const (
	// RoleGeometry strategies supply densityField.
	RoleGeometry Role = iota

	// RoleProjection strategies supply reduceDimension.
	RoleProjection
)

// Function names each role must declare.
const (
	DensityFieldFunc    = "densityField"
	ReduceDimensionFunc = "reduceDimension"
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleGeometry:
		return "geometry"
	case RoleProjection:
		return "projection"
	default:
		return "unknown"
	}
}

// RequiredFunction returns the WGSL function a fragment of this role must declare.
func (r Role) RequiredFunction() string {
	if r == RoleProjection {
		return ReduceDimensionFunc
	}
	return DensityFieldFunc
}

// Strategy is anything that can provide a named WGSL fragment.
type Strategy interface {
	// Name returns the registry key.
	Name() string

	// FragmentSource returns the WGSL text injected into the base template.
	FragmentSource() string
}

// Fragment is the plain value implementation of Strategy.
type Fragment struct {
	ID     string
	Source string
}

// Name returns the fragment ID.
func (f Fragment) Name() string { return f.ID }

// FragmentSource returns the WGSL source.
func (f Fragment) FragmentSource() string { return f.Source }

var _ Strategy = Fragment{}

// Definition is a registered strategy. Definitions are never mutated after
// registration.
type Definition struct {
	Name   string
	Role   Role
	Source string
}

// declRegexps holds the precompiled declaration matchers per role.
var declRegexps = map[Role]*regexp.Regexp{
	RoleGeometry:   regexp.MustCompile(`\bfn\s+` + DensityFieldFunc + `\s*\(`),
	RoleProjection: regexp.MustCompile(`\bfn\s+` + ReduceDimensionFunc + `\s*\(`),
}

// Declares reports whether source declares the role's required function.
func Declares(role Role, source string) bool {
	re, ok := declRegexps[role]
	if !ok {
		return false
	}
	return re.MatchString(source)
}
