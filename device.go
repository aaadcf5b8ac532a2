// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package polytope

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// Device is an open GPU device and its queue.
type Device struct {
	Device hal.Device
	Queue  hal.Queue

	// Format is the color format the core renders in. Undefined means
	// BGRA8Unorm.
	Format gputypes.TextureFormat

	// Release closes the device. It may be nil when the device is owned
	// elsewhere.
	Release func()
}

func (d *Device) release() {
	if d != nil && d.Release != nil {
		d.Release()
	}
}

// DeviceSource opens GPU devices. The core opens one at construction and
// another after each context loss.
type DeviceSource interface {
	OpenDevice() (*Device, error)
}

// DeviceSourceFunc adapts a function to DeviceSource.
type DeviceSourceFunc func() (*Device, error)

// OpenDevice calls f.
func (f DeviceSourceFunc) OpenDevice() (*Device, error) { return f() }

// NoopDevices returns a source of wgpu noop devices. Nothing is rendered;
// every GPU call succeeds. Use it for headless runs and tests.
func NoopDevices() DeviceSource {
	return DeviceSourceFunc(func() (*Device, error) {
		return openDevice(&noop.API{}, "noop")
	})
}

// BackendDevices returns a source of devices from the given wgpu HAL
// backend. Discrete GPUs are preferred, then integrated ones.
func BackendDevices(backend gputypes.Backend) DeviceSource {
	return DeviceSourceFunc(func() (*Device, error) {
		b, ok := hal.GetBackend(backend)
		if !ok {
			return nil, fmt.Errorf("polytope: backend %v not available", backend)
		}
		return openDevice(b, fmt.Sprint(backend))
	})
}

// instanceCreator is the part of a HAL backend openDevice needs.
type instanceCreator interface {
	CreateInstance(desc *hal.InstanceDescriptor) (hal.Instance, error)
}

func openDevice(b instanceCreator, name string) (*Device, error) {
	instance, err := b.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, errors.New("no GPU adapters found")
	}

	selected := pickAdapter(adapters)

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("open device: %w", err)
	}
	Logger().Info("polytope: device opened", "backend", name, "adapter", selected.Info.Name)

	return &Device{
		Device: openDev.Device,
		Queue:  openDev.Queue,
		Format: gputypes.TextureFormatBGRA8Unorm,
		Release: func() {
			openDev.Device.Destroy()
			instance.Destroy()
		},
	}, nil
}

// pickAdapter returns the first discrete GPU, else the first integrated one,
// else the first adapter. adapters must not be empty.
func pickAdapter(adapters []hal.ExposedAdapter) *hal.ExposedAdapter {
	for _, want := range []gputypes.DeviceType{gputypes.DeviceTypeDiscreteGPU, gputypes.DeviceTypeIntegratedGPU} {
		for i := range adapters {
			if adapters[i].Info.DeviceType == want {
				return &adapters[i]
			}
		}
	}
	return &adapters[0]
}

// halProvider is implemented by host providers that expose wgpu HAL types.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// SharedDevices returns a source that hands out the host's device, such as
// a gogpu window's. The host owns the device: Release is a no-op, and
// after a context loss the host is expected to expose a fresh device.
func SharedDevices(provider gpucontext.DeviceProvider) DeviceSource {
	return DeviceSourceFunc(func() (*Device, error) {
		hp, ok := provider.(halProvider)
		if !ok {
			return nil, errors.New("polytope: provider does not expose HAL types")
		}
		device, ok := hp.HalDevice().(hal.Device)
		if !ok || device == nil {
			return nil, errors.New("polytope: provider HalDevice is not hal.Device")
		}
		queue, ok := hp.HalQueue().(hal.Queue)
		if !ok || queue == nil {
			return nil, errors.New("polytope: provider HalQueue is not hal.Queue")
		}
		return &Device{
			Device: device,
			Queue:  queue,
			Format: provider.SurfaceFormat(),
		}, nil
	})
}
