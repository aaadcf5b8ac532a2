// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package gpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// uniformAlign is the size granularity of uniform buffer bindings.
const uniformAlign = 16

// Context holds the GPU resources for one device. It is created for a live
// device and discarded when that device is lost.
//
// Context is safe for concurrent use.
type Context struct {
	mu sync.Mutex

	device hal.Device
	queue  hal.Queue
	format gputypes.TextureFormat

	uniformSize   uint64
	uniformBuf    hal.Buffer
	uniformLayout hal.BindGroupLayout
	pipeLayout    hal.PipelineLayout
	bindGroup     hal.BindGroup

	// Offscreen color target, used when Draw gets no surface view.
	colorTex  hal.Texture
	colorView hal.TextureView
	width     uint32
	height    uint32

	frames    uint64
	lost      bool
	destroyed bool
}

// NewContext allocates the uniform buffer and layouts on device.
// uniformSize is rounded up to a multiple of 16 bytes.
func NewContext(device hal.Device, queue hal.Queue, format gputypes.TextureFormat, uniformSize uint64) (*Context, error) {
	if device == nil || queue == nil {
		return nil, errors.New("gpu: device and queue are required")
	}
	if format == gputypes.TextureFormatUndefined {
		format = gputypes.TextureFormatBGRA8Unorm
	}
	if uniformSize == 0 {
		uniformSize = uniformAlign
	}
	uniformSize = (uniformSize + uniformAlign - 1) / uniformAlign * uniformAlign

	c := &Context{
		device:      device,
		queue:       queue,
		format:      format,
		uniformSize: uniformSize,
	}
	if err := c.createBindings(); err != nil {
		c.destroyBindings()
		return nil, err
	}
	slogger().Debug("gpu: context created", "format", format, "uniform_size", uniformSize)
	return c, nil
}

func (c *Context) createBindings() error {
	buf, err := c.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "polytope_params",
		Size:  c.uniformSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create uniform buffer: %w", err)
	}
	c.uniformBuf = buf

	layout, err := c.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "polytope_params_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create uniform layout: %w", err)
	}
	c.uniformLayout = layout

	pipeLayout, err := c.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "polytope_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{c.uniformLayout},
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}
	c.pipeLayout = pipeLayout

	bindGroup, err := c.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "polytope_params_bind",
		Layout: c.uniformLayout,
		Entries: []gputypes.BindGroupEntry{
			{
				Binding: 0,
				Resource: gputypes.BufferBinding{
					Buffer: c.uniformBuf.NativeHandle(),
					Offset: 0,
					Size:   c.uniformSize,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create uniform bind group: %w", err)
	}
	c.bindGroup = bindGroup
	return nil
}

// Format returns the color target format pipelines are built for.
func (c *Context) Format() gputypes.TextureFormat { return c.format }

// UniformSize returns the uniform buffer size in bytes.
func (c *Context) UniformSize() uint64 { return c.uniformSize }

// Size returns the offscreen target size.
func (c *Context) Size() (width, height uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width, c.height
}

// Frames returns the number of frames submitted.
func (c *Context) Frames() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// Lost reports whether the context has seen a device failure.
func (c *Context) Lost() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lost
}

// MarkLost flags the context as lost. Later calls fail with ErrContextLost
// and Destroy leaves the device handles alone.
func (c *Context) MarkLost() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lost = true
}

func (c *Context) usableLocked() error {
	if c.lost || c.destroyed {
		return ErrContextLost
	}
	return nil
}

// Resize recreates the offscreen color target at w x h. It is a no-op if
// the size is unchanged.
func (c *Context) Resize(w, h uint32) error {
	if w == 0 || h == 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, w, h)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.usableLocked(); err != nil {
		return err
	}
	if c.width == w && c.height == h && c.colorTex != nil {
		return nil
	}
	c.destroyTarget()

	tex, err := c.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "polytope_color",
		Size:          hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        c.format,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("create color texture: %w", err)
	}
	c.colorTex = tex

	view, err := c.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         "polytope_color_view",
		Format:        c.format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		c.destroyTarget()
		return fmt.Errorf("create color view: %w", err)
	}
	c.colorView = view
	c.width = w
	c.height = h

	slogger().Debug("gpu: target resized", "width", w, "height", h)
	return nil
}

// CreateShaderModule creates a module from SPIR-V words.
func (c *Context) CreateShaderModule(label string, spirv []uint32) (hal.ShaderModule, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.usableLocked(); err != nil {
		return nil, err
	}
	return c.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
}

// DestroyShaderModule destroys m unless the context is lost.
func (c *Context) DestroyShaderModule(m hal.ShaderModule) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m == nil || c.lost || c.destroyed {
		return
	}
	c.device.DestroyShaderModule(m)
}

// CreatePipeline links a vertex and fragment module into a render pipeline
// bound to the context's uniform layout.
func (c *Context) CreatePipeline(label string, vs, fs hal.ShaderModule) (hal.RenderPipeline, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.usableLocked(); err != nil {
		return nil, err
	}
	pipeline, err := c.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  label,
		Layout: c.pipeLayout,
		Vertex: hal.VertexState{
			Module:     vs,
			EntryPoint: "vs_main",
		},
		Fragment: &hal.FragmentState{
			Module:     fs,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{
					Format:    c.format,
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create render pipeline: %w", err)
	}
	return pipeline, nil
}

// DestroyPipeline destroys p unless the context is lost.
func (c *Context) DestroyPipeline(p hal.RenderPipeline) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p == nil || c.lost || c.destroyed {
		return
	}
	c.device.DestroyRenderPipeline(p)
}

// WriteUniform copies data into the uniform buffer at offset. A write the
// device rejects as lost or out of memory marks the context lost and returns
// an error wrapping ErrContextLost.
func (c *Context) WriteUniform(offset uint64, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.usableLocked(); err != nil {
		return err
	}
	if offset+uint64(len(data)) > c.uniformSize {
		return fmt.Errorf("%w: [%d, %d) of %d", ErrUniformRange, offset, offset+uint64(len(data)), c.uniformSize)
	}
	if err := c.queue.WriteBuffer(c.uniformBuf, offset, data); err != nil {
		if isDeviceFailure(err) {
			c.lost = true
			slogger().Warn("gpu: uniform write failed", "err", err)
			return fmt.Errorf("%w: write uniform: %w", ErrContextLost, err)
		}
		return fmt.Errorf("gpu: write uniform: %w", err)
	}
	return nil
}

func isDeviceFailure(err error) bool {
	return errors.Is(err, hal.ErrDeviceLost) || errors.Is(err, hal.ErrDeviceOutOfMemory)
}

// Draw clears the target to clear, draws one full-screen triangle with
// pipeline, submits and waits for completion. A nil view draws into the
// offscreen target.
//
// Encoding, submission or wait failures mark the context lost and return
// an error wrapping ErrContextLost.
func (c *Context) Draw(pipeline hal.RenderPipeline, view hal.TextureView, clear gputypes.Color) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.usableLocked(); err != nil {
		return err
	}
	if pipeline == nil {
		return ErrNoPipeline
	}
	if view == nil {
		view = c.colorView
	}
	if view == nil {
		return ErrNoTarget
	}

	if err := c.encodeSubmit(pipeline, view, clear); err != nil {
		c.lost = true
		slogger().Warn("gpu: frame submission failed", "err", err)
		return fmt.Errorf("%w: %w", ErrContextLost, err)
	}
	c.frames++
	return nil
}

func (c *Context) encodeSubmit(pipeline hal.RenderPipeline, view hal.TextureView, clear gputypes.Color) error {
	encoder, err := c.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "polytope_frame_encoder",
	})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("polytope_frame"); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}

	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "polytope_frame_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: clear,
		}},
	})
	rp.SetPipeline(pipeline)
	rp.SetBindGroup(0, c.bindGroup, nil)
	rp.Draw(3, 1, 0, 0)
	rp.End()

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		encoder.DiscardEncoding()
		return fmt.Errorf("end encoding: %w", err)
	}
	defer c.device.FreeCommandBuffer(cmdBuf)

	if _, err := c.queue.Submit([]hal.CommandBuffer{cmdBuf}); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	// The command buffer is freed on return, so the frame must be done.
	if err := c.device.WaitIdle(); err != nil {
		return fmt.Errorf("wait for GPU: %w", err)
	}
	return nil
}

// Destroy releases every resource the context created. Handles of a lost
// context are dropped without calling into the device. The device itself
// belongs to the caller.
func (c *Context) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return
	}
	if !c.lost {
		c.destroyTarget()
		c.destroyBindings()
	}
	c.destroyed = true
	slogger().Debug("gpu: context destroyed", "lost", c.lost, "frames", c.frames)
}

func (c *Context) destroyTarget() {
	if c.colorView != nil {
		c.device.DestroyTextureView(c.colorView)
		c.colorView = nil
	}
	if c.colorTex != nil {
		c.device.DestroyTexture(c.colorTex)
		c.colorTex = nil
	}
	c.width = 0
	c.height = 0
}

func (c *Context) destroyBindings() {
	if c.bindGroup != nil {
		c.device.DestroyBindGroup(c.bindGroup)
		c.bindGroup = nil
	}
	if c.pipeLayout != nil {
		c.device.DestroyPipelineLayout(c.pipeLayout)
		c.pipeLayout = nil
	}
	if c.uniformLayout != nil {
		c.device.DestroyBindGroupLayout(c.uniformLayout)
		c.uniformLayout = nil
	}
	if c.uniformBuf != nil {
		c.device.DestroyBuffer(c.uniformBuf)
		c.uniformBuf = nil
	}
}
