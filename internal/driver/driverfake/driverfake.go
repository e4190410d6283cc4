// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package driverfake provides a hal device with the raytracing extension
// for driver tests. Everything except raytracing is delegated to the hal
// noop backend; raytracing calls are recorded for inspection.
package driverfake

import (
	"encoding/binary"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/rhi/internal/accel"
	"github.com/gogpu/rhi/internal/raytrace"
)

// IdentifierSize is the shader identifier size the fake reports.
const IdentifierSize = 32

// AddressBase is the first buffer address the fake hands out.
const AddressBase = 0x1_0000_0000

// Device is a noop hal device that implements raytrace.Device.
type Device struct {
	*noop.Device

	// Timestamps makes CreateQuerySet succeed for timestamp sets.
	Timestamps bool

	mu         sync.Mutex
	next       uint64
	addresses  map[hal.Buffer]uint64
	builds     []accel.BuildDescriptor
	dispatches []raytrace.DispatchDescriptor
	bound      map[uint32]uint64
	tables     map[uint32]uint64
	heaps      [2]uint64
}

// New returns a fake device.
func New() *Device {
	return &Device{
		Device:    &noop.Device{},
		next:      AddressBase,
		addresses: make(map[hal.Buffer]uint64),
		bound:     make(map[uint32]uint64),
		tables:    make(map[uint32]uint64),
	}
}

// Open returns an opened fake device and the adapter it reports.
func Open() (*Device, hal.OpenDevice, hal.ExposedAdapter) {
	d := New()
	open := hal.OpenDevice{Device: d, Queue: &noop.Queue{}}
	adapter := hal.ExposedAdapter{
		Adapter: &noop.Adapter{},
		Info: gputypes.AdapterInfo{
			Name:       "Fake Raytracing Adapter",
			Vendor:     "gogpu",
			DeviceType: gputypes.DeviceTypeOther,
			Backend:    gputypes.BackendEmpty,
		},
		Capabilities: hal.Capabilities{Limits: gputypes.DefaultLimits()},
	}
	return d, open, adapter
}

// CreateBuffer assigns each buffer a 256-byte aligned address range.
func (d *Device) CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error) {
	buf, err := d.Device.CreateBuffer(desc)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.addresses[buf] = d.next
	d.next += accel.AlignUp(max(desc.Size, 1), 256)
	d.mu.Unlock()
	return buf, nil
}

// DestroyBuffer forgets the buffer address.
func (d *Device) DestroyBuffer(buf hal.Buffer) {
	d.mu.Lock()
	delete(d.addresses, buf)
	d.mu.Unlock()
}

// CreateQuerySet returns a placeholder set when Timestamps is set.
func (d *Device) CreateQuerySet(desc *hal.QuerySetDescriptor) (hal.QuerySet, error) {
	if d.Timestamps && desc.Type == hal.QueryTypeTimestamp {
		return &noop.Resource{}, nil
	}
	return d.Device.CreateQuerySet(desc)
}

// CreateCommandEncoder returns an encoder that records raytracing work.
func (d *Device) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	enc, err := d.Device.CreateCommandEncoder(desc)
	if err != nil {
		return nil, err
	}
	return &CommandEncoder{CommandEncoder: enc, dev: d}, nil
}

// AccelStructPrebuildInfo implements raytrace.Device with the estimate
// sizes, so results are deterministic.
func (d *Device) AccelStructPrebuildInfo(in *accel.Inputs) (accel.PrebuildInfo, error) {
	return accel.Estimate(*in), nil
}

// BufferDeviceAddress implements raytrace.Device.
func (d *Device) BufferDeviceAddress(buf hal.Buffer) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addresses[buf]
}

// ShaderIdentifierSize implements raytrace.Device.
func (d *Device) ShaderIdentifierSize() uint32 { return IdentifierSize }

// CreateRaytracingPipeline implements raytrace.Device. Every function entry
// and hit group gets an identifier derived from its export order.
func (d *Device) CreateRaytracingPipeline(desc *raytrace.PipelineDescriptor) (raytrace.Pipeline, error) {
	p := &Pipeline{ids: make(map[string][]byte)}
	n := uint32(0)
	add := func(name string) {
		if name == "" {
			return
		}
		if _, ok := p.ids[name]; ok {
			return
		}
		n++
		p.ids[name] = Identifier(n)
	}
	for _, f := range desc.Functions {
		add(f.EntryName)
	}
	for _, g := range desc.HitGroups {
		add(g.Name)
	}
	return p, nil
}

// DestroyRaytracingPipeline implements raytrace.Device.
func (d *Device) DestroyRaytracingPipeline(raytrace.Pipeline) {}

// Builds returns the acceleration structure builds recorded so far.
func (d *Device) Builds() []accel.BuildDescriptor {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]accel.BuildDescriptor(nil), d.builds...)
}

// Dispatches returns the ray dispatches recorded so far.
func (d *Device) Dispatches() []raytrace.DispatchDescriptor {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]raytrace.DispatchDescriptor(nil), d.dispatches...)
}

// BoundAccelStruct returns the address last bound to param.
func (d *Device) BoundAccelStruct(param uint32) (uint64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	addr, ok := d.bound[param]
	return addr, ok
}

// BoundDescriptorTable returns the table address last bound to param.
func (d *Device) BoundDescriptorTable(param uint32) (uint64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	addr, ok := d.tables[param]
	return addr, ok
}

// DescriptorHeaps returns the arena addresses last bound by an encoder.
func (d *Device) DescriptorHeaps() (resource, sampler uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.heaps[0], d.heaps[1]
}

// Identifier returns the identifier the fake assigns to the n-th export,
// counting from 1.
func Identifier(n uint32) []byte {
	id := make([]byte, IdentifierSize)
	for i := 0; i < IdentifierSize; i += 4 {
		binary.LittleEndian.PutUint32(id[i:], n)
	}
	return id
}

// Pipeline implements raytrace.Pipeline.
type Pipeline struct {
	noop.Resource
	ids map[string][]byte
}

// ShaderIdentifier implements raytrace.Pipeline.
func (p *Pipeline) ShaderIdentifier(name string) ([]byte, bool) {
	id, ok := p.ids[name]
	return id, ok
}

// CommandEncoder wraps a noop encoder and implements
// raytrace.CommandEncoder.
type CommandEncoder struct {
	hal.CommandEncoder
	dev      *Device
	pipeline raytrace.Pipeline
}

// BuildAccelStruct implements raytrace.CommandEncoder.
func (e *CommandEncoder) BuildAccelStruct(desc *accel.BuildDescriptor) error {
	e.dev.mu.Lock()
	defer e.dev.mu.Unlock()
	b := *desc
	b.Inputs.Geometries = append([]accel.Geometry(nil), desc.Inputs.Geometries...)
	e.dev.builds = append(e.dev.builds, b)
	return nil
}

// SetRaytracingPipeline implements raytrace.CommandEncoder.
func (e *CommandEncoder) SetRaytracingPipeline(p raytrace.Pipeline) { e.pipeline = p }

// SetRaytracingBindGroup implements raytrace.CommandEncoder.
func (e *CommandEncoder) SetRaytracingBindGroup(uint32, hal.BindGroup) {}

// SetDescriptorHeaps implements raytrace.CommandEncoder.
func (e *CommandEncoder) SetDescriptorHeaps(resource, sampler uint64) {
	e.dev.mu.Lock()
	e.dev.heaps = [2]uint64{resource, sampler}
	e.dev.mu.Unlock()
}

// SetDescriptorTable implements raytrace.CommandEncoder.
func (e *CommandEncoder) SetDescriptorTable(param uint32, address uint64) {
	e.dev.mu.Lock()
	e.dev.tables[param] = address
	e.dev.mu.Unlock()
}

// SetAccelStruct implements raytrace.CommandEncoder.
func (e *CommandEncoder) SetAccelStruct(param uint32, address uint64) {
	e.dev.mu.Lock()
	e.dev.bound[param] = address
	e.dev.mu.Unlock()
}

// DispatchRays implements raytrace.CommandEncoder.
func (e *CommandEncoder) DispatchRays(desc *raytrace.DispatchDescriptor) {
	e.dev.mu.Lock()
	e.dev.dispatches = append(e.dev.dispatches, *desc)
	e.dev.mu.Unlock()
}

var (
	_ hal.Device              = (*Device)(nil)
	_ raytrace.Device         = (*Device)(nil)
	_ raytrace.CommandEncoder = (*CommandEncoder)(nil)
	_ raytrace.Pipeline       = (*Pipeline)(nil)
)
