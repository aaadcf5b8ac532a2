// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package strategy

import "fmt"

// InvalidStrategyError is returned when a strategy cannot be registered.
// The registry is left unchanged.
type InvalidStrategyError struct {
	Role   Role
	Name   string
	Reason string
}

func (e *InvalidStrategyError) Error() string {
	return fmt.Sprintf("strategy: invalid %s strategy %q: %s", e.Role, e.Name, e.Reason)
}

// UnknownStrategyError is returned when a name is not registered.
// Callers in the render loop fall back to a default instead of failing.
type UnknownStrategyError struct {
	Role Role
	Name string
}

func (e *UnknownStrategyError) Error() string {
	return fmt.Sprintf("strategy: unknown %s strategy %q", e.Role, e.Name)
}
