// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package strategy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// FragmentExt is the file extension LoadDir and Watch pick up.
const FragmentExt = ".wgsl"

// LoadDir registers every *.wgsl file directly under dir in fsys.
// The strategy name is the file name without extension.
//
// Loading stops at the first error. Strategies registered before the error
// stay registered. The returned count covers the successful registrations.
func (r *Registry) LoadDir(fsys fs.FS, dir string) (int, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return 0, fmt.Errorf("strategy: read %s: %w", dir, err)
	}

	n := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), FragmentExt) {
			continue
		}
		src, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return n, fmt.Errorf("strategy: read %s: %w", e.Name(), err)
		}
		if err := r.Register(strings.TrimSuffix(e.Name(), FragmentExt), string(src)); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Watch registers *.wgsl files that appear in dir after the call.
//
// Registered definitions are immutable, so rewriting an existing file reports
// an *InvalidStrategyError through onErr instead of replacing the strategy.
// Watch blocks until ctx is done or the watcher fails.
func (r *Registry) Watch(ctx context.Context, dir string, onErr func(error)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("strategy: create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("strategy: watch %s: %w", dir, err)
	}
	if onErr == nil {
		onErr = func(error) {}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !strings.HasSuffix(ev.Name, FragmentExt) {
				continue
			}
			if err := r.registerFile(ev.Name); err != nil {
				onErr(err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("strategy: watcher: %w", err)
		}
	}
}

// registerFile registers a single fragment file from the OS filesystem.
// Editors often emit Create and Write for one save; the second event for a
// name registered by the first is not reported.
func (r *Registry) registerFile(file string) error {
	name := strings.TrimSuffix(filepath.Base(file), FragmentExt)
	src, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("strategy: read %s: %w", file, err)
	}
	if len(bytes.TrimSpace(src)) == 0 {
		// Truncated by an editor mid-save; the following Write event carries the content.
		return nil
	}
	def, getErr := r.Get(name)
	if getErr == nil && def.Source == string(src) {
		return nil
	}
	err = r.Register(name, string(src))
	var invalid *InvalidStrategyError
	if errors.As(err, &invalid) && getErr == nil {
		invalid.Reason = "already registered; definitions are immutable"
	}
	return err
}
