// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/google/uuid"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/binding"
	"github.com/gogpu/rhi/internal/cache"
	"github.com/gogpu/rhi/internal/descheap"
	"github.com/gogpu/rhi/internal/raytrace"
)

// virtualBase is the first address handed out on devices without buffer
// device addresses.
const virtualBase = 1 << 32

// Device implements rhi.Device over a hal device.
type Device struct {
	inst    *Instance
	cfg     rhi.Config
	native  Native
	id      uuid.UUID
	adapter hal.ExposedAdapter
	limits  gputypes.Limits

	hal   hal.Device
	queue hal.Queue
	// rt is nil when the hal device has no raytracing extension.
	rt raytrace.Device

	model    binding.Model
	heaps    *descheap.Set
	samplers *cache.Sharded[rhi.SamplerDescriptor, *samplerEntry]
	epoch    time.Time

	// submitMu serializes access to the hal queue, which every rhi queue
	// type shares.
	submitMu sync.Mutex
	queues   [3]*Queue

	nextAddress atomic.Uint64
	destroyed   atomic.Bool
}

func newDevice(inst *Instance, open hal.OpenDevice, adapter hal.ExposedAdapter) *Device {
	limits := adapter.Capabilities.Limits
	if limits.MaxBindGroups == 0 {
		limits = gputypes.DefaultLimits()
	}
	d := &Device{
		inst:    inst,
		cfg:     inst.cfg,
		native:  inst.native,
		id:      uuid.New(),
		adapter: adapter,
		limits:  limits,
		hal:     open.Device,
		queue:   open.Queue,
		model:   inst.native.BindingModel(limits),
		epoch:   time.Now(),
	}
	d.nextAddress.Store(virtualBase)

	if rt, ok := open.Device.(raytrace.Device); ok {
		d.rt = rt
	} else {
		slogger().Warn("rhi: device has no raytracing extension", "adapter", adapter.Info.Name)
	}

	h := d.cfg.Heaps
	d.heaps = descheap.NewSet(descheap.Capacities{
		Resource:     h.Resource,
		Sampler:      h.Sampler,
		RenderTarget: h.RenderTarget,
		DepthStencil: h.DepthStencil,
	}, inst.native.DescriptorSize(), 0)

	d.samplers = cache.New(d.cfg.SamplerCacheSize, hashSampler, func(_ rhi.SamplerDescriptor, e *samplerEntry) {
		e.evict()
	})

	for _, t := range []rhi.QueueType{rhi.QueueGraphics, rhi.QueueCompute, rhi.QueueTransfer} {
		d.queues[t] = &Queue{dev: d, typ: t}
	}
	return d
}

// Backend implements rhi.Device.
func (d *Device) Backend() rhi.Backend { return d.native.Backend() }

// ID implements rhi.Device.
func (d *Device) ID() uuid.UUID { return d.id }

// AdapterInfo implements rhi.Device.
func (d *Device) AdapterInfo() gpucontext.AdapterInfo { return adapterInfo(d.adapter.Info) }

// Limits implements rhi.Device.
func (d *Device) Limits() gputypes.Limits { return d.limits }

// IsRaytracingSupported implements rhi.Device.
func (d *Device) IsRaytracingSupported() bool { return d.rt != nil }

// Queue implements rhi.Device. Unknown queue types map to the graphics
// queue.
func (d *Device) Queue(t rhi.QueueType) rhi.Queue {
	if int(t) >= len(d.queues) {
		t = rhi.QueueGraphics
	}
	return d.queues[t]
}

// Heaps returns the descriptor arenas of the device.
func (d *Device) Heaps() *descheap.Set { return d.heaps }

// SamplerStats returns the sampler cache counters.
func (d *Device) SamplerStats() cache.Stats { return d.samplers.Stats() }

// HAL returns the hal device.
func (d *Device) HAL() hal.Device { return d.hal }

// label returns l, or a generated debug label for objects of kind.
func (d *Device) label(kind, l string) string {
	if l != "" {
		return l
	}
	return fmt.Sprintf("%s%s-%s", d.cfg.Label, kind, uuid.NewString()[:8])
}

// validate reports whether hot-path assertions are enabled.
func (d *Device) validate() bool { return d.cfg.Validation }

// completed returns the highest finished submission index.
func (d *Device) completed() uint64 {
	d.submitMu.Lock()
	defer d.submitMu.Unlock()
	return d.queue.PollCompleted()
}

// bufferAddress returns the device address of buf. Devices without the
// raytracing extension hand out unique virtual addresses so that address
// arithmetic stays consistent.
func (d *Device) bufferAddress(buf hal.Buffer, size uint64) uint64 {
	if d.rt != nil {
		return d.rt.BufferDeviceAddress(buf)
	}
	span := max(size, 1)
	span = (span + 255) &^ 255
	return d.nextAddress.Add(span) - span
}

// timestamp returns the host timestamp of the device in queue ticks.
func (d *Device) timestamp() uint64 {
	period := d.queue.GetTimestampPeriod()
	ns := float64(time.Since(d.epoch).Nanoseconds())
	if period <= 0 {
		return uint64(ns)
	}
	return uint64(ns / float64(period))
}

// CreateIndirectCommandBuffer implements rhi.Device.
func (d *Device) CreateIndirectCommandBuffer(*rhi.IndirectCommandBufferDescriptor) (rhi.IndirectCommandBuffer, error) {
	return nil, fmt.Errorf("create indirect command buffer: %w", rhi.ErrNotImplemented)
}

// WaitIdle implements rhi.Device.
func (d *Device) WaitIdle() error {
	if d.destroyed.Load() {
		return rhi.ErrDeviceDestroyed
	}
	if err := d.hal.WaitIdle(); err != nil {
		return fmt.Errorf("wait idle: %w", err)
	}
	return nil
}

// Destroy implements rhi.Device. It waits for the device to go idle,
// releases the cached samplers and destroys the hal device.
func (d *Device) Destroy() {
	if !d.destroyed.CompareAndSwap(false, true) {
		return
	}
	if err := d.hal.WaitIdle(); err != nil {
		slogger().Warn("rhi: wait idle on destroy", "err", err)
	}
	d.samplers.Clear()
	d.heaps.Reset()
	d.hal.Destroy()
	d.inst.forget(d)
	slogger().Info("rhi: device destroyed", "id", d.id)
}
