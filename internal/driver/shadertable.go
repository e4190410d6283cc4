// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import (
	"fmt"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/sbt"
)

// ShaderTable implements rhi.ShaderTable.
//
// The record layout depends on the pipeline's local parameter count, so
// the backing upload buffer is allocated by Generate. Before the first
// Generate the regions describe a table without local data at address 0.
type ShaderTable struct {
	dev    *Device
	label  string
	desc   rhi.ShaderTableDescriptor
	params sbt.Params
	layout sbt.Layout
	buffer *Buffer
}

// CreateShaderTable implements rhi.Device.
func (d *Device) CreateShaderTable(desc *rhi.ShaderTableDescriptor) (rhi.ShaderTable, error) {
	if d.rt == nil {
		return nil, fmt.Errorf("create shader table: %w", rhi.ErrRaytracingNotSupported)
	}
	if desc == nil || desc.RayGen.Name == "" {
		return nil, fmt.Errorf("%w: shader table without a ray generation record", rhi.ErrInvalidDescriptor)
	}
	params := d.native.ShaderTableParams()
	if n := d.rt.ShaderIdentifierSize(); n != 0 {
		params.IdentifierSize = n
	}
	st := &ShaderTable{
		dev:    d,
		label:  d.label("shader-table", desc.Label),
		params: params,
		desc: rhi.ShaderTableDescriptor{
			Label:     desc.Label,
			RayGen:    desc.RayGen,
			Miss:      append([]rhi.ShaderTableEntry(nil), desc.Miss...),
			HitGroups: append([]rhi.ShaderTableEntry(nil), desc.HitGroups...),
		},
	}
	st.layout = sbt.NewLayout(params, 0, &st.desc)
	return st, nil
}

// Label implements rhi.Resource.
func (st *ShaderTable) Label() string { return st.label }

// Generate implements rhi.ShaderTable.
func (st *ShaderTable) Generate(pipeline rhi.RaytracingPipeline) error {
	p, ok := pipeline.(*RaytracingPipeline)
	if !ok || p == nil {
		return fmt.Errorf("%w: raytracing pipeline %T not created by this backend", rhi.ErrInvalidDescriptor, pipeline)
	}
	layout := sbt.NewLayout(st.params, p.maxLocal, &st.desc)

	if st.buffer == nil || st.buffer.size < layout.Size() {
		buf, err := st.dev.createBuffer(&rhi.BufferDescriptor{
			Label:   st.label + "-records",
			Size:    layout.Size(),
			Usage:   rhi.BufferUsageShaderTable,
			Storage: rhi.StorageUpload,
		})
		if err != nil {
			return fmt.Errorf("generate shader table %q: %w", st.label, err)
		}
		if st.buffer != nil {
			st.buffer.Destroy()
		}
		st.buffer = buf
	}

	records := make([]byte, layout.Size())
	if err := sbt.Write(records, layout, &st.desc, p); err != nil {
		return fmt.Errorf("generate shader table %q: %w", st.label, err)
	}
	for _, e := range st.entries() {
		if len(e.LocalTables) > 0 {
			slogger().Debug("rhi: local bind tables not copied into shader record",
				"table", st.label, "export", e.Name, "tables", len(e.LocalTables))
		}
	}
	if err := st.buffer.Write(0, records); err != nil {
		return fmt.Errorf("generate shader table %q: %w", st.label, err)
	}
	st.layout = layout
	return nil
}

func (st *ShaderTable) entries() []rhi.ShaderTableEntry {
	out := make([]rhi.ShaderTableEntry, 0, 1+len(st.desc.Miss)+len(st.desc.HitGroups))
	out = append(out, st.desc.RayGen)
	out = append(out, st.desc.Miss...)
	return append(out, st.desc.HitGroups...)
}

// Update implements rhi.ShaderTable.
func (st *ShaderTable) Update(*rhi.ShaderTableDescriptor) error {
	return fmt.Errorf("update shader table %q: %w", st.label, rhi.ErrNotImplemented)
}

// Stride implements rhi.ShaderTable.
func (st *ShaderTable) Stride() uint64 { return st.layout.Stride }

// Size implements rhi.ShaderTable.
func (st *ShaderTable) Size() uint64 { return st.layout.Size() }

func (st *ShaderTable) base() uint64 {
	if st.buffer == nil {
		return 0
	}
	return st.buffer.address
}

// RayGen implements rhi.ShaderTable.
func (st *ShaderTable) RayGen() rhi.ShaderTableRegion { return st.layout.RayGen(st.base()) }

// Miss implements rhi.ShaderTable.
func (st *ShaderTable) Miss() rhi.ShaderTableRegion { return st.layout.Miss(st.base()) }

// HitGroups implements rhi.ShaderTable.
func (st *ShaderTable) HitGroups() rhi.ShaderTableRegion { return st.layout.HitGroups(st.base()) }

// Destroy implements rhi.Resource.
func (st *ShaderTable) Destroy() {
	if st.buffer != nil {
		st.buffer.Destroy()
		st.buffer = nil
	}
}

func asShaderTable(t rhi.ShaderTable) *ShaderTable {
	st, ok := t.(*ShaderTable)
	if !ok || st == nil {
		panic(fmt.Errorf("%w: shader table %T not created by this backend", rhi.ErrInvalidDescriptor, t))
	}
	return st
}
