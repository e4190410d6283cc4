// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/binding"
	"github.com/gogpu/rhi/internal/raytrace"
)

// PipelineLayout implements rhi.PipelineLayout.
//
// The hal pipeline layout places each table's bind group at its table
// index. Indices no table uses are filled with empty bind group layouts
// owned by the pipeline layout.
type PipelineLayout struct {
	dev      *Device
	hal      hal.PipelineLayout
	label    string
	tables   []*BindTableLayout
	resolver *binding.Resolver
	empty    []hal.BindGroupLayout
}

// CreatePipelineLayout implements rhi.Device.
func (d *Device) CreatePipelineLayout(desc *rhi.PipelineLayoutDescriptor) (rhi.PipelineLayout, error) {
	return d.createPipelineLayout(desc)
}

func (d *Device) createPipelineLayout(desc *rhi.PipelineLayoutDescriptor) (*PipelineLayout, error) {
	if desc == nil {
		return nil, fmt.Errorf("%w: nil pipeline layout descriptor", rhi.ErrInvalidDescriptor)
	}
	pl := &PipelineLayout{dev: d, label: d.label("pipeline-layout", desc.Label)}

	tables := make([]binding.Table, 0, len(desc.Tables))
	groups := map[uint32]*BindTableLayout{}
	var count uint32
	for _, t := range desc.Tables {
		l, err := asBindTableLayout(t)
		if err != nil {
			return nil, err
		}
		pl.tables = append(pl.tables, l)
		tables = append(tables, binding.Table{Index: l.index, Elements: l.elements})
		if prev, dup := groups[l.index]; dup {
			slogger().Debug("rhi: table index declared twice, later layout wins",
				"layout", pl.label, "index", l.index, "previous", prev.label, "table", l.label)
		}
		groups[l.index] = l
		count = max(count, l.index+1)
	}

	r, err := binding.Build(tables, d.model)
	if err != nil {
		return nil, fmt.Errorf("create pipeline layout %q: %w", pl.label, err)
	}
	pl.resolver = r

	bgls := make([]hal.BindGroupLayout, count)
	for i := range bgls {
		if l, ok := groups[uint32(i)]; ok {
			bgls[i] = l.hal
			continue
		}
		e, err := d.hal.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label: fmt.Sprintf("%s-empty-%d", pl.label, i),
		})
		if err != nil {
			pl.Destroy()
			return nil, fmt.Errorf("create pipeline layout %q: %w", pl.label, err)
		}
		pl.empty = append(pl.empty, e)
		bgls[i] = e
	}

	layout, err := d.hal.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            pl.label,
		BindGroupLayouts: bgls,
	})
	if err != nil {
		pl.Destroy()
		return nil, fmt.Errorf("create pipeline layout %q: %w", pl.label, err)
	}
	pl.hal = layout
	return pl, nil
}

// Label implements rhi.Resource.
func (pl *PipelineLayout) Label() string { return pl.label }

// Tables implements rhi.PipelineLayout.
func (pl *PipelineLayout) Tables() []rhi.BindTableLayout {
	out := make([]rhi.BindTableLayout, len(pl.tables))
	for i, t := range pl.tables {
		out[i] = t
	}
	return out
}

// ParamCount implements rhi.PipelineLayout.
func (pl *PipelineLayout) ParamCount() int { return pl.resolver.ParamCount() }

// Resolve implements rhi.PipelineLayout.
func (pl *PipelineLayout) Resolve(stage rhi.BindStage, table, slot uint32, bindType rhi.BindType) (uint32, bool) {
	p, ok := pl.resolver.Resolve(stage, table, slot, bindType)
	return p.Index, ok
}

// Resolver returns the compiled stage maps.
func (pl *PipelineLayout) Resolver() *binding.Resolver { return pl.resolver }

// Destroy implements rhi.Resource. The table layouts stay owned by their
// creators.
func (pl *PipelineLayout) Destroy() {
	if pl.hal != nil {
		pl.dev.hal.DestroyPipelineLayout(pl.hal)
		pl.hal = nil
	}
	for _, e := range pl.empty {
		pl.dev.hal.DestroyBindGroupLayout(e)
	}
	pl.empty = nil
}

func asPipelineLayout(l rhi.PipelineLayout) (*PipelineLayout, error) {
	pl, ok := l.(*PipelineLayout)
	if !ok || pl == nil {
		return nil, fmt.Errorf("%w: pipeline layout %T not created by this backend", rhi.ErrInvalidDescriptor, l)
	}
	return pl, nil
}

// ComputePipeline implements rhi.ComputePipeline.
type ComputePipeline struct {
	dev    *Device
	hal    hal.ComputePipeline
	label  string
	layout *PipelineLayout
}

// CreateComputePipeline implements rhi.Device.
func (d *Device) CreateComputePipeline(desc *rhi.ComputePipelineDescriptor) (rhi.ComputePipeline, error) {
	if desc == nil || desc.Layout == nil || desc.Compute == nil {
		return nil, fmt.Errorf("%w: compute pipeline needs a layout and a function", rhi.ErrInvalidDescriptor)
	}
	layout, err := asPipelineLayout(desc.Layout)
	if err != nil {
		return nil, err
	}
	cs, err := asFunction(desc.Compute, rhi.FunctionCompute)
	if err != nil {
		return nil, err
	}
	label := d.label("compute-pipeline", desc.Label)
	p, err := d.hal.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  label,
		Layout: layout.hal,
		Compute: hal.ComputeState{
			Module:     cs.hal,
			EntryPoint: cs.entry,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create compute pipeline %q: %w", label, err)
	}
	return &ComputePipeline{dev: d, hal: p, label: label, layout: layout}, nil
}

// Label implements rhi.Resource.
func (p *ComputePipeline) Label() string { return p.label }

// Layout implements rhi.ComputePipeline.
func (p *ComputePipeline) Layout() rhi.PipelineLayout { return p.layout }

// Destroy implements rhi.Resource.
func (p *ComputePipeline) Destroy() {
	if p.hal != nil {
		p.dev.hal.DestroyComputePipeline(p.hal)
		p.hal = nil
	}
}

// RasterPipeline implements rhi.RasterPipeline.
type RasterPipeline struct {
	dev    *Device
	hal    hal.RenderPipeline
	label  string
	layout *PipelineLayout
}

// CreateRasterPipeline implements rhi.Device.
func (d *Device) CreateRasterPipeline(desc *rhi.RasterPipelineDescriptor) (rhi.RasterPipeline, error) {
	if desc == nil || desc.Layout == nil || desc.Vertex == nil {
		return nil, fmt.Errorf("%w: raster pipeline needs a layout and a vertex function", rhi.ErrInvalidDescriptor)
	}
	layout, err := asPipelineLayout(desc.Layout)
	if err != nil {
		return nil, err
	}
	vs, err := asFunction(desc.Vertex, rhi.FunctionVertex)
	if err != nil {
		return nil, err
	}
	label := d.label("raster-pipeline", desc.Label)

	hd := &hal.RenderPipelineDescriptor{
		Label:  label,
		Layout: layout.hal,
		Vertex: hal.VertexState{
			Module:     vs.hal,
			EntryPoint: vs.entry,
			Buffers:    desc.VertexBuffers,
		},
		Primitive: desc.Primitive,
		Multisample: gputypes.MultisampleState{
			Count: max(desc.SampleCount, 1),
			Mask:  ^uint64(0),
		},
	}
	if desc.Fragment != nil {
		fs, err := asFunction(desc.Fragment, rhi.FunctionFragment)
		if err != nil {
			return nil, err
		}
		hd.Fragment = &hal.FragmentState{
			Module:     fs.hal,
			EntryPoint: fs.entry,
			Targets:    desc.Targets,
		}
	}
	if ds := desc.DepthStencil; ds != nil {
		face := hal.StencilFaceState{Compare: gputypes.CompareFunctionAlways}
		hd.DepthStencil = &hal.DepthStencilState{
			Format:            ds.Format,
			DepthWriteEnabled: ds.DepthWrite,
			DepthCompare:      ds.DepthCompare,
			StencilFront:      face,
			StencilBack:       face,
			StencilReadMask:   0xFF,
			StencilWriteMask:  0xFF,
		}
	}

	p, err := d.hal.CreateRenderPipeline(hd)
	if err != nil {
		return nil, fmt.Errorf("create raster pipeline %q: %w", label, err)
	}
	return &RasterPipeline{dev: d, hal: p, label: label, layout: layout}, nil
}

// Label implements rhi.Resource.
func (p *RasterPipeline) Label() string { return p.label }

// Layout implements rhi.RasterPipeline.
func (p *RasterPipeline) Layout() rhi.PipelineLayout { return p.layout }

// Destroy implements rhi.Resource.
func (p *RasterPipeline) Destroy() {
	if p.hal != nil {
		p.dev.hal.DestroyRenderPipeline(p.hal)
		p.hal = nil
	}
}

// RaytracingPipeline implements rhi.RaytracingPipeline.
type RaytracingPipeline struct {
	dev      *Device
	rt       raytrace.Pipeline
	label    string
	layout   *PipelineLayout
	maxLocal uint32
}

// CreateRaytracingPipeline implements rhi.Device.
func (d *Device) CreateRaytracingPipeline(desc *rhi.RaytracingPipelineDescriptor) (rhi.RaytracingPipeline, error) {
	if d.rt == nil {
		return nil, fmt.Errorf("create raytracing pipeline: %w", rhi.ErrRaytracingNotSupported)
	}
	if desc == nil || desc.Layout == nil || len(desc.Functions) == 0 {
		return nil, fmt.Errorf("%w: raytracing pipeline needs a layout and functions", rhi.ErrInvalidDescriptor)
	}
	layout, err := asPipelineLayout(desc.Layout)
	if err != nil {
		return nil, err
	}
	label := d.label("raytracing-pipeline", desc.Label)

	rd := &raytrace.PipelineDescriptor{
		Label:             label,
		Layout:            layout.hal,
		MaxPayloadSize:    desc.MaxPayloadSize,
		MaxAttributeSize:  desc.MaxAttributeSize,
		MaxRecursionDepth: max(desc.MaxRecursionDepth, 1),
	}
	hasRayGen := false
	for _, f := range desc.Functions {
		fn, err := asFunction(f)
		if err != nil {
			return nil, err
		}
		if !fn.typ.IsRaytracing() {
			return nil, fmt.Errorf("%w: function %q is not a raytracing function", rhi.ErrInvalidDescriptor, fn.label)
		}
		hasRayGen = hasRayGen || fn.typ == rhi.FunctionRayGeneration
		rd.Functions = append(rd.Functions, fn.library())
	}
	if !hasRayGen {
		return nil, fmt.Errorf("%w: raytracing pipeline %q has no ray generation function", rhi.ErrInvalidDescriptor, label)
	}
	for _, hg := range desc.HitGroups {
		if hg.Name == "" {
			return nil, fmt.Errorf("%w: unnamed hit group", rhi.ErrInvalidDescriptor)
		}
		rd.HitGroups = append(rd.HitGroups, raytrace.HitGroup{
			Name:         hg.Name,
			Procedural:   hg.Type == rhi.HitGroupProcedural,
			ClosestHit:   hg.ClosestHit,
			AnyHit:       hg.AnyHit,
			Intersection: hg.Intersection,
		})
	}

	var maxLocal uint32
	for _, ll := range desc.LocalLayouts {
		local, err := asPipelineLayout(ll.Layout)
		if err != nil {
			return nil, err
		}
		n := uint32(local.ParamCount())
		maxLocal = max(maxLocal, n)
		rd.LocalLayouts = append(rd.LocalLayouts, raytrace.LocalLayout{
			Export:     ll.Export,
			Layout:     local.hal,
			ParamCount: n,
		})
	}

	p, err := d.rt.CreateRaytracingPipeline(rd)
	if err != nil {
		return nil, fmt.Errorf("create raytracing pipeline %q: %w", label, err)
	}
	return &RaytracingPipeline{dev: d, rt: p, label: label, layout: layout, maxLocal: maxLocal}, nil
}

// Label implements rhi.Resource.
func (p *RaytracingPipeline) Label() string { return p.label }

// Layout implements rhi.RaytracingPipeline.
func (p *RaytracingPipeline) Layout() rhi.PipelineLayout { return p.layout }

// MaxLocalRootParameters implements rhi.RaytracingPipeline.
func (p *RaytracingPipeline) MaxLocalRootParameters() uint32 { return p.maxLocal }

// ShaderIdentifier implements rhi.RaytracingPipeline.
func (p *RaytracingPipeline) ShaderIdentifier(name string) ([]byte, bool) {
	return p.rt.ShaderIdentifier(name)
}

// Destroy implements rhi.Resource.
func (p *RaytracingPipeline) Destroy() {
	if p.rt != nil {
		p.dev.rt.DestroyRaytracingPipeline(p.rt)
		p.rt = nil
	}
}
