// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package gpu

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// createNoopDevice creates a noop device and queue for testing.
// Returns the device, queue, and a cleanup function.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

func newTestContext(t *testing.T) *Context {
	t.Helper()
	device, queue, cleanup := createNoopDevice(t)
	ctx, err := NewContext(device, queue, gputypes.TextureFormatUndefined, 100)
	if err != nil {
		cleanup()
		t.Fatalf("NewContext failed: %v", err)
	}
	t.Cleanup(func() {
		ctx.Destroy()
		cleanup()
	})
	return ctx
}

// linkTestPipeline creates a pipeline from placeholder SPIR-V.
func linkTestPipeline(t *testing.T, ctx *Context) hal.RenderPipeline {
	t.Helper()
	words := []uint32{0x07230203}
	vs, err := ctx.CreateShaderModule("vs", words)
	if err != nil {
		t.Fatalf("CreateShaderModule(vs): %v", err)
	}
	fs, err := ctx.CreateShaderModule("fs", words)
	if err != nil {
		t.Fatalf("CreateShaderModule(fs): %v", err)
	}
	p, err := ctx.CreatePipeline("test", vs, fs)
	if err != nil {
		t.Fatalf("CreatePipeline: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil pipeline")
	}
	return p
}

func TestNewContext(t *testing.T) {
	ctx := newTestContext(t)

	if got := ctx.UniformSize(); got != 112 {
		t.Errorf("UniformSize() = %d, want 112", got)
	}
	if got := ctx.Format(); got != gputypes.TextureFormatBGRA8Unorm {
		t.Errorf("Format() = %v, want BGRA8Unorm", got)
	}
	if w, h := ctx.Size(); w != 0 || h != 0 {
		t.Errorf("Size() = %dx%d before Resize", w, h)
	}
	if ctx.Lost() {
		t.Error("new context must not be lost")
	}
}

func TestNewContextRequiresDevice(t *testing.T) {
	if _, err := NewContext(nil, nil, gputypes.TextureFormatBGRA8Unorm, 16); err == nil {
		t.Fatal("expected error for nil device")
	}
}

func TestContextResize(t *testing.T) {
	ctx := newTestContext(t)

	if err := ctx.Resize(0, 10); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("Resize(0, 10) = %v, want ErrInvalidSize", err)
	}
	if err := ctx.Resize(64, 32); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if w, h := ctx.Size(); w != 64 || h != 32 {
		t.Errorf("Size() = %dx%d, want 64x32", w, h)
	}
	// Same size is a no-op.
	if err := ctx.Resize(64, 32); err != nil {
		t.Fatalf("Resize: %v", err)
	}
}

func TestContextWriteUniform(t *testing.T) {
	ctx := newTestContext(t)

	if err := ctx.WriteUniform(0, make([]byte, 112)); err != nil {
		t.Errorf("full write: %v", err)
	}
	if err := ctx.WriteUniform(108, make([]byte, 4)); err != nil {
		t.Errorf("tail write: %v", err)
	}
	if err := ctx.WriteUniform(110, make([]byte, 4)); !errors.Is(err, ErrUniformRange) {
		t.Errorf("overflow write = %v, want ErrUniformRange", err)
	}
}

func TestContextDraw(t *testing.T) {
	ctx := newTestContext(t)
	pipeline := linkTestPipeline(t, ctx)
	clear := gputypes.Color{R: 0, G: 0, B: 0, A: 1}

	if err := ctx.Draw(pipeline, nil, clear); !errors.Is(err, ErrNoTarget) {
		t.Errorf("Draw without target = %v, want ErrNoTarget", err)
	}
	if err := ctx.Draw(nil, nil, clear); !errors.Is(err, ErrNoPipeline) {
		t.Errorf("Draw without pipeline = %v, want ErrNoPipeline", err)
	}

	if err := ctx.Resize(32, 32); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := ctx.Draw(pipeline, nil, clear); err != nil {
			t.Fatalf("Draw #%d: %v", i, err)
		}
	}
	if got := ctx.Frames(); got != 3 {
		t.Errorf("Frames() = %d, want 3", got)
	}
	ctx.DestroyPipeline(pipeline)
}

func TestContextLost(t *testing.T) {
	ctx := newTestContext(t)
	pipeline := linkTestPipeline(t, ctx)
	if err := ctx.Resize(8, 8); err != nil {
		t.Fatalf("Resize: %v", err)
	}

	ctx.MarkLost()
	if !ctx.Lost() {
		t.Fatal("expected lost context")
	}
	if err := ctx.Draw(pipeline, nil, gputypes.Color{}); !errors.Is(err, ErrContextLost) {
		t.Errorf("Draw on lost context = %v, want ErrContextLost", err)
	}
	if err := ctx.WriteUniform(0, []byte{1, 2, 3, 4}); !errors.Is(err, ErrContextLost) {
		t.Errorf("WriteUniform on lost context = %v, want ErrContextLost", err)
	}
	if _, err := ctx.CreateShaderModule("x", []uint32{0x07230203}); !errors.Is(err, ErrContextLost) {
		t.Errorf("CreateShaderModule on lost context = %v, want ErrContextLost", err)
	}

	// Destroying handles of a lost context is a no-op.
	ctx.DestroyPipeline(pipeline)
	ctx.Destroy()
	ctx.Destroy()
}

// faultyQueue fails writes or submissions with the configured errors.
type faultyQueue struct {
	hal.Queue
	writeErr  error
	submitErr error
}

func (q *faultyQueue) WriteBuffer(b hal.Buffer, offset uint64, data []byte) error {
	if q.writeErr != nil {
		return q.writeErr
	}
	return q.Queue.WriteBuffer(b, offset, data)
}

func (q *faultyQueue) Submit(cmds []hal.CommandBuffer) (uint64, error) {
	if q.submitErr != nil {
		return 0, q.submitErr
	}
	return q.Queue.Submit(cmds)
}

func newFaultyContext(t *testing.T) (*Context, *faultyQueue) {
	t.Helper()
	device, queue, cleanup := createNoopDevice(t)
	q := &faultyQueue{Queue: queue}
	ctx, err := NewContext(device, q, gputypes.TextureFormatUndefined, 16)
	if err != nil {
		cleanup()
		t.Fatalf("NewContext failed: %v", err)
	}
	t.Cleanup(func() {
		ctx.Destroy()
		cleanup()
	})
	return ctx, q
}

func TestContextWriteUniformErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantLost bool
	}{
		{"device lost", hal.ErrDeviceLost, true},
		{"out of memory", hal.ErrDeviceOutOfMemory, true},
		{"invalid buffer", errors.New("invalid buffer"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, q := newFaultyContext(t)
			q.writeErr = tt.err

			err := ctx.WriteUniform(0, []byte{1, 2, 3, 4})
			if !errors.Is(err, tt.err) {
				t.Fatalf("WriteUniform = %v, want wrapping %v", err, tt.err)
			}
			if got := errors.Is(err, ErrContextLost); got != tt.wantLost {
				t.Errorf("errors.Is(err, ErrContextLost) = %v, want %v", got, tt.wantLost)
			}
			if ctx.Lost() != tt.wantLost {
				t.Errorf("Lost() = %v, want %v", ctx.Lost(), tt.wantLost)
			}
		})
	}
}

func TestContextSubmitFailureLosesContext(t *testing.T) {
	ctx, q := newFaultyContext(t)
	pipeline := linkTestPipeline(t, ctx)
	if err := ctx.Resize(8, 8); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	q.submitErr = errors.New("queue submit rejected")

	if err := ctx.Draw(pipeline, nil, gputypes.Color{A: 1}); !errors.Is(err, ErrContextLost) {
		t.Fatalf("Draw = %v, want ErrContextLost", err)
	}
	if !ctx.Lost() {
		t.Error("expected lost context after failed submit")
	}
	if got := ctx.Frames(); got != 0 {
		t.Errorf("Frames() = %d, want 0", got)
	}
}
