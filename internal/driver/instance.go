// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi"
)

// Instance implements rhi.Instance for one backend.
type Instance struct {
	cfg    rhi.Config
	native Native

	mu      sync.Mutex
	hal     hal.Instance
	devices []*Device
}

// NewInstance creates an instance driving native. The hal instance is
// created lazily by the first CreateDevice.
func NewInstance(cfg rhi.Config, native Native) *Instance {
	return &Instance{cfg: cfg.Normalize(), native: native}
}

// Backend implements rhi.Instance.
func (i *Instance) Backend() rhi.Backend { return i.native.Backend() }

// Config implements rhi.Instance.
func (i *Instance) Config() rhi.Config { return i.cfg }

// Native returns the backend half of the driver.
func (i *Instance) Native() Native { return i.native }

// variant returns the hal backend selected by the configuration.
func (i *Instance) variant() (gputypes.Backend, error) {
	switch i.cfg.Execution {
	case rhi.ExecutionNoop:
		return gputypes.BackendEmpty, nil
	case rhi.ExecutionNative, "":
		return i.native.Variant(), nil
	default:
		return 0, fmt.Errorf("%w: execution %q", rhi.ErrInvalidDescriptor, i.cfg.Execution)
	}
}

// CreateDevice implements rhi.Instance. It opens the first adapter the
// hal instance reports.
func (i *Instance) CreateDevice() (rhi.Device, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.hal == nil {
		variant, err := i.variant()
		if err != nil {
			return nil, err
		}
		backend, ok := hal.GetBackend(variant)
		if !ok {
			return nil, fmt.Errorf("%w: hal backend %s not available", rhi.ErrBackendNotRegistered, variant)
		}
		inst, err := backend.CreateInstance(&hal.InstanceDescriptor{})
		if err != nil {
			return nil, fmt.Errorf("create hal instance: %w", err)
		}
		i.hal = inst
	}

	adapters := i.hal.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return nil, rhi.ErrNoAdapter
	}
	selected := adapters[0]

	open, err := selected.Adapter.Open(gputypes.Features(0), selected.Capabilities.Limits)
	if err != nil {
		return nil, fmt.Errorf("open device: %w", err)
	}
	dev := i.openLocked(open, selected)
	slogger().Info("rhi: device created",
		"backend", i.native.Backend(), "adapter", selected.Info.Name, "id", dev.id)
	return dev, nil
}

// OpenDevice wraps an already opened hal device. It is used to drive
// devices created outside the instance, such as test doubles.
func (i *Instance) OpenDevice(open hal.OpenDevice, adapter hal.ExposedAdapter) *Device {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.openLocked(open, adapter)
}

func (i *Instance) openLocked(open hal.OpenDevice, adapter hal.ExposedAdapter) *Device {
	dev := newDevice(i, open, adapter)
	i.devices = append(i.devices, dev)
	return dev
}

// Destroy implements rhi.Instance. Devices still open are destroyed.
func (i *Instance) Destroy() {
	i.mu.Lock()
	devices := i.devices
	i.devices = nil
	inst := i.hal
	i.hal = nil
	i.mu.Unlock()

	for _, d := range devices {
		d.Destroy()
	}
	if inst != nil {
		inst.Destroy()
	}
}

// forget drops a destroyed device from the instance.
func (i *Instance) forget(d *Device) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for k, dev := range i.devices {
		if dev == d {
			i.devices = append(i.devices[:k], i.devices[k+1:]...)
			return
		}
	}
}
