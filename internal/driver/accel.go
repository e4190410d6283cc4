// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/accel"
)

// accelStruct is the storage both acceleration structure levels share.
type accelStruct struct {
	dev     *Device
	label   string
	flags   accel.Flags
	sizes   accel.PrebuildInfo
	result  *Buffer
	scratch *Buffer
}

// prebuild returns aligned build sizes for in. Without the raytracing
// extension, or when the query fails with validation off, the sizes are
// estimated.
func (d *Device) prebuild(label string, in *accel.Inputs) (accel.PrebuildInfo, error) {
	if d.rt != nil {
		info, err := d.rt.AccelStructPrebuildInfo(in)
		if err == nil {
			return info.Aligned(), nil
		}
		err = fmt.Errorf("prebuild %s %q: %w", in.Level, label, err)
		if d.validate() {
			return accel.PrebuildInfo{}, err
		}
		slogger().Warn("rhi: prebuild query failed, sizes estimated", "err", err)
	}
	return accel.Estimate(*in).Aligned(), nil
}

// allocate creates the result and scratch buffers for sizes.
func (a *accelStruct) allocate() error {
	var err error
	a.result, err = a.dev.createBuffer(&rhi.BufferDescriptor{
		Label:        a.label + "-result",
		Size:         max(a.sizes.ResultSize, accel.ResultAlignment),
		Usage:        rhi.BufferUsageAccelStruct,
		InitialState: rhi.StateAccelStruct,
	})
	if err != nil {
		return err
	}
	a.scratch, err = a.dev.createBuffer(&rhi.BufferDescriptor{
		Label:        a.label + "-scratch",
		Size:         max(a.sizes.ScratchSize, a.sizes.UpdateScratchSize, accel.ScratchAlignment),
		Usage:        rhi.BufferUsageStorage,
		InitialState: rhi.StateUnorderedAccess,
	})
	return err
}

func (a *accelStruct) Label() string { return a.label }

// ResultAddress implements rhi.AccelStruct.
func (a *accelStruct) ResultAddress() uint64 { return a.result.address }

// ResultSize implements rhi.AccelStruct.
func (a *accelStruct) ResultSize() uint64 { return a.result.size }

// ScratchSize implements rhi.AccelStruct.
func (a *accelStruct) ScratchSize() uint64 { return a.scratch.size }

func (a *accelStruct) destroy() {
	if a.result != nil {
		a.result.Destroy()
		a.result = nil
	}
	if a.scratch != nil {
		a.scratch.Destroy()
		a.scratch = nil
	}
}

// BLAS implements rhi.BLAS.
type BLAS struct {
	accelStruct
	geometries []rhi.Geometry
	inputs     accel.Inputs
}

// CreateBLAS implements rhi.Device.
func (d *Device) CreateBLAS(desc *rhi.BLASDescriptor) (rhi.BLAS, error) {
	if d.rt == nil {
		return nil, fmt.Errorf("create BLAS: %w", rhi.ErrRaytracingNotSupported)
	}
	if desc == nil || len(desc.Geometries) == 0 {
		return nil, fmt.Errorf("%w: BLAS without geometry", rhi.ErrInvalidDescriptor)
	}
	b := &BLAS{
		accelStruct: accelStruct{
			dev:   d,
			label: d.label("blas", desc.Label),
			flags: accel.FromBuildFlags(desc.Flags),
		},
		geometries: append([]rhi.Geometry(nil), desc.Geometries...),
	}
	b.inputs = accel.Inputs{Level: accel.LevelBottom, Flags: b.flags}
	for i, g := range desc.Geometries {
		ag, err := accel.TranslateGeometry(g)
		if err != nil {
			return nil, fmt.Errorf("BLAS %q geometry %d: %w", b.label, i, err)
		}
		b.inputs.Geometries = append(b.inputs.Geometries, ag)
	}

	sizes, err := d.prebuild(b.label, &b.inputs)
	if err != nil {
		return nil, err
	}
	b.sizes = sizes
	if err := b.allocate(); err != nil {
		b.destroy()
		return nil, fmt.Errorf("create BLAS %q: %w", b.label, err)
	}
	slogger().Debug("rhi: BLAS created", "label", b.label, "geometries", len(b.geometries),
		"result", b.sizes.ResultSize, "scratch", b.ScratchSize())
	return b, nil
}

// Geometries implements rhi.BLAS.
func (b *BLAS) Geometries() []rhi.Geometry { return b.geometries }

// Destroy implements rhi.Resource.
func (b *BLAS) Destroy() { b.destroy() }

func asBLAS(b rhi.BLAS) (*BLAS, error) {
	blas, ok := b.(*BLAS)
	if !ok || blas == nil {
		return nil, fmt.Errorf("%w: BLAS %T not created by this backend", rhi.ErrInvalidDescriptor, b)
	}
	return blas, nil
}

// TLAS implements rhi.TLAS.
//
// Instances are serialized into an upload buffer that the build reads.
// Each record embeds the BLAS result address at serialization time, so a
// rebuilt or destroyed BLAS is only picked up by the next UpdateTLAS.
type TLAS struct {
	accelStruct
	instances []rhi.TLASInstance
	instBuf   *Buffer
	// builtAt is the submission that carries the first build.
	builtAt atomic.Uint64
}

// CreateTLAS implements rhi.Device.
func (d *Device) CreateTLAS(desc *rhi.TLASDescriptor) (rhi.TLAS, error) {
	if d.rt == nil {
		return nil, fmt.Errorf("create TLAS: %w", rhi.ErrRaytracingNotSupported)
	}
	if desc == nil {
		return nil, fmt.Errorf("%w: nil TLAS descriptor", rhi.ErrInvalidDescriptor)
	}
	t := &TLAS{
		accelStruct: accelStruct{
			dev:   d,
			label: d.label("tlas", desc.Label),
			flags: accel.FromBuildFlags(desc.Flags),
		},
	}
	if err := checkInstances(desc.Instances); err != nil {
		return nil, fmt.Errorf("TLAS %q: %w", t.label, err)
	}

	buf, err := d.createBuffer(&rhi.BufferDescriptor{
		Label:   t.label + "-instances",
		Size:    accel.InstanceBufferSize(len(desc.Instances)),
		Usage:   rhi.BufferUsageAccelStructInput,
		Storage: rhi.StorageUpload,
	})
	if err != nil {
		return nil, fmt.Errorf("create TLAS %q: %w", t.label, err)
	}
	t.instBuf = buf
	if err := t.writeInstances(desc.Instances); err != nil {
		t.Destroy()
		return nil, err
	}

	in := t.inputs()
	sizes, err := d.prebuild(t.label, &in)
	if err != nil {
		t.Destroy()
		return nil, err
	}
	t.sizes = sizes
	if err := t.allocate(); err != nil {
		t.Destroy()
		return nil, fmt.Errorf("create TLAS %q: %w", t.label, err)
	}
	slogger().Debug("rhi: TLAS created", "label", t.label, "instances", len(t.instances),
		"result", t.sizes.ResultSize, "scratch", t.ScratchSize())
	return t, nil
}

func checkInstances(instances []rhi.TLASInstance) error {
	for i, inst := range instances {
		if inst.BLAS == nil {
			return fmt.Errorf("%w: instance %d has no BLAS", rhi.ErrInvalidDescriptor, i)
		}
	}
	return nil
}

// writeInstances serializes instances into the instance buffer and keeps
// a copy.
func (t *TLAS) writeInstances(instances []rhi.TLASInstance) error {
	if err := checkInstances(instances); err != nil {
		return fmt.Errorf("TLAS %q: %w", t.label, err)
	}
	if len(instances) > 0 {
		if err := t.instBuf.Write(0, accel.SerializeInstances(instances)); err != nil {
			return fmt.Errorf("TLAS %q instances: %w", t.label, err)
		}
	}
	t.instances = append(t.instances[:0], instances...)
	return nil
}

func (t *TLAS) inputs() accel.Inputs {
	return accel.Inputs{
		Level:           accel.LevelTop,
		Flags:           t.flags,
		InstanceAddress: t.instBuf.address,
		InstanceCount:   uint32(len(t.instances)),
	}
}

// Instances implements rhi.TLAS.
func (t *TLAS) Instances() []rhi.TLASInstance { return t.instances }

// Native implements rhi.BindElement. Acceleration structures are bound by
// result address.
func (t *TLAS) Native() rhi.Handle { return rhi.Handle(t.result.address) }

// Built implements rhi.TLAS.
func (t *TLAS) Built() bool {
	at := t.builtAt.Load()
	return at != 0 && t.dev.completed() >= at
}

// Destroy implements rhi.Resource.
func (t *TLAS) Destroy() {
	t.destroy()
	if t.instBuf != nil {
		t.instBuf.Destroy()
		t.instBuf = nil
	}
}

func asTLAS(t rhi.TLAS) (*TLAS, error) {
	tlas, ok := t.(*TLAS)
	if !ok || tlas == nil {
		return nil, fmt.Errorf("%w: TLAS %T not created by this backend", rhi.ErrInvalidDescriptor, t)
	}
	return tlas, nil
}
