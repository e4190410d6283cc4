// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import (
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/accel"
	"github.com/gogpu/rhi/internal/cmdstate"
	"github.com/gogpu/rhi/internal/raytrace"
)

// passEncoder is the state every pass encoder shares: the owning command
// buffer and the pass kind it records into.
type passEncoder struct {
	cb   *CommandBuffer
	pass cmdstate.Pass
}

func newPassEncoder(cb *CommandBuffer, pass cmdstate.Pass) passEncoder {
	return passEncoder{cb: cb, pass: pass}
}

// nativeBinder receives the native parameters bindTable resolves. Nil
// funcs are skipped.
type nativeBinder struct {
	group func(index uint32, g hal.BindGroup)
	table func(param uint32, address uint64)
	accel func(param uint32, address uint64)
}

// check panics when the encoder's pass is no longer open.
func (e *passEncoder) check() {
	if !e.cb.machine.InPass(e.pass) {
		panic(fmt.Errorf("%w: %s encoder of %q used outside its pass", rhi.ErrNoPassOpen, e.pass, e.cb.label))
	}
}

// ResourceBarrier implements rhi.Encoder.
func (e *passEncoder) ResourceBarrier(b rhi.Barrier) {
	e.check()
	e.cb.ResourceBarriers([]rhi.Barrier{b})
}

// ResourceBarriers implements rhi.Encoder.
func (e *passEncoder) ResourceBarriers(bs []rhi.Barrier) {
	e.check()
	e.cb.ResourceBarriers(bs)
}

// BeginQuery implements rhi.Encoder. Only one query is active per pass.
func (e *passEncoder) BeginQuery(heap rhi.QueryHeap, index uint32) {
	e.check()
	h := e.queryHeap(heap, index)
	if h.typ == rhi.QueryTimestamp {
		panic(fmt.Errorf("%w: begin query on timestamp heap %q", rhi.ErrInvalidDescriptor, h.label))
	}
	if q := e.cb.query; q != nil {
		panic(fmt.Errorf("%w: query %d of %q is still active", rhi.ErrInvalidDescriptor, q.index, q.heap.label))
	}
	e.cb.query = &activeQuery{heap: h, index: index}
}

// EndQuery implements rhi.Encoder.
func (e *passEncoder) EndQuery(heap rhi.QueryHeap, index uint32) {
	e.check()
	h := e.queryHeap(heap, index)
	q := e.cb.query
	if q == nil || q.heap != h || q.index != index {
		panic(fmt.Errorf("%w: end query %d of %q that was not begun", rhi.ErrInvalidDescriptor, index, h.label))
	}
	e.cb.query = nil
	e.cb.ops = append(e.cb.ops, queryOp{kind: queryZero, heap: h, index: index})
}

// WriteTimestamp implements rhi.Encoder. hal only writes timestamps at
// pass boundaries, so heaps backed by a hal query set ignore it.
func (e *passEncoder) WriteTimestamp(heap rhi.QueryHeap, index uint32) {
	e.check()
	h := e.queryHeap(heap, index)
	if h.typ != rhi.QueryTimestamp {
		panic(fmt.Errorf("%w: timestamp into %s heap %q", rhi.ErrInvalidDescriptor, h.typ, h.label))
	}
	if h.set != nil {
		slogger().Warn("rhi: standalone timestamp ignored, use pass timestamp writes", "heap", h.label, "index", index)
		return
	}
	e.cb.ops = append(e.cb.ops, queryOp{kind: queryTimestamp, heap: h, index: index})
}

func (e *passEncoder) queryHeap(heap rhi.QueryHeap, index uint32) *QueryHeap {
	h := asQueryHeap(heap)
	if index >= h.count {
		panic(fmt.Errorf("%w: query %d of heap %q with %d queries", rhi.ErrQueryOutOfRange, index, h.label, h.count))
	}
	return h
}

// bindTable resolves every element of table at table index for the given
// stages, first match wins. Each resolved descriptor element is bound at
// its slot address in the arenas bound at Begin, and the table's bind
// group is bound once if any resolved element has a hal binding.
// Acceleration structures are bound by address.
func (e *passEncoder) bindTable(layout *PipelineLayout, stages []rhi.BindStage, table rhi.BindTable, index uint32, nb nativeBinder) {
	e.check()
	if layout == nil {
		panic(fmt.Errorf("%w: SetBindTable before SetPipeline", rhi.ErrInvalidDescriptor))
	}
	bt := asBindTable(table)
	grouped := false
	for i, el := range bt.layout.elements {
		for _, st := range stages {
			p, ok := layout.resolver.Resolve(st, index, el.Slot, el.Type)
			if !ok {
				continue
			}
			if el.Type == rhi.BindTypeAccelStruct {
				if tlas, ok := bt.elements[i].(*TLAS); ok && nb.accel != nil {
					nb.accel(p.Index, tlas.ResultAddress())
				}
				break
			}
			addr := e.cb.descriptorAddress(bt, i)
			if nb.table != nil {
				nb.table(p.Index, addr)
			}
			grouped = grouped || bt.layout.bindings[i] != noBinding
			break
		}
	}
	if grouped && nb.group != nil {
		nb.group(index, bt.halGroup())
	}
}

// TransferEncoder implements rhi.TransferEncoder.
type TransferEncoder struct {
	passEncoder
}

// CopyBufferToBuffer implements rhi.TransferEncoder.
func (e *TransferEncoder) CopyBufferToBuffer(src rhi.Buffer, srcOffset uint64, dst rhi.Buffer, dstOffset, size uint64) {
	e.check()
	e.cb.enc.CopyBufferToBuffer(mustBuffer(src).hal, mustBuffer(dst).hal, []hal.BufferCopy{{
		SrcOffset: srcOffset,
		DstOffset: dstOffset,
		Size:      size,
	}})
}

// CopyBufferToTexture implements rhi.TransferEncoder.
func (e *TransferEncoder) CopyBufferToTexture(src rhi.Buffer, layout rhi.BufferTextureLayout, dst rhi.Texture, origin rhi.TextureOrigin, size rhi.Extent) {
	e.check()
	e.cb.enc.CopyBufferToTexture(mustBuffer(src).hal, mustTexture(dst).hal, []hal.BufferTextureCopy{{
		BufferLayout: dataLayout(layout),
		TextureBase:  copyTexture(dst, origin),
		Size:         extent(size),
	}})
}

// CopyTextureToBuffer implements rhi.TransferEncoder.
func (e *TransferEncoder) CopyTextureToBuffer(src rhi.Texture, origin rhi.TextureOrigin, dst rhi.Buffer, layout rhi.BufferTextureLayout, size rhi.Extent) {
	e.check()
	e.cb.enc.CopyTextureToBuffer(mustTexture(src).hal, mustBuffer(dst).hal, []hal.BufferTextureCopy{{
		BufferLayout: dataLayout(layout),
		TextureBase:  copyTexture(src, origin),
		Size:         extent(size),
	}})
}

// CopyTextureToTexture implements rhi.TransferEncoder.
func (e *TransferEncoder) CopyTextureToTexture(src rhi.Texture, srcOrigin rhi.TextureOrigin, dst rhi.Texture, dstOrigin rhi.TextureOrigin, size rhi.Extent) {
	e.check()
	e.cb.enc.CopyTextureToTexture(mustTexture(src).hal, mustTexture(dst).hal, []hal.TextureCopy{{
		SrcBase: copyTexture(src, srcOrigin),
		DstBase: copyTexture(dst, dstOrigin),
		Size:    extent(size),
	}})
}

// ClearBuffer implements rhi.TransferEncoder.
func (e *TransferEncoder) ClearBuffer(buf rhi.Buffer, offset, size uint64) {
	e.check()
	e.cb.enc.ClearBuffer(mustBuffer(buf).hal, offset, size)
}

// CopyAccelStruct implements rhi.TransferEncoder.
func (e *TransferEncoder) CopyAccelStruct(rhi.AccelStruct, rhi.AccelStruct) error {
	e.check()
	return fmt.Errorf("copy acceleration structure: %w", rhi.ErrNotImplemented)
}

func dataLayout(l rhi.BufferTextureLayout) hal.ImageDataLayout {
	return hal.ImageDataLayout{Offset: l.Offset, BytesPerRow: l.BytesPerRow, RowsPerImage: l.RowsPerImage}
}

func copyTexture(t rhi.Texture, o rhi.TextureOrigin) hal.ImageCopyTexture {
	return hal.ImageCopyTexture{
		Texture:  mustTexture(t).hal,
		MipLevel: o.Mip,
		Origin:   hal.Origin3D{X: o.X, Y: o.Y, Z: o.Z},
		Aspect:   gputypes.TextureAspectAll,
	}
}

func extent(e rhi.Extent) hal.Extent3D {
	return hal.Extent3D{Width: e.Width, Height: max(e.Height, 1), DepthOrArrayLayers: max(e.Depth, 1)}
}

// ComputeEncoder implements rhi.ComputeEncoder.
type ComputeEncoder struct {
	passEncoder
	pipeline *ComputePipeline
}

// SetPipeline implements rhi.ComputeEncoder.
func (e *ComputeEncoder) SetPipeline(p rhi.ComputePipeline) {
	e.check()
	cp, ok := p.(*ComputePipeline)
	if !ok || cp == nil {
		panic(fmt.Errorf("%w: compute pipeline %T not created by this backend", rhi.ErrInvalidDescriptor, p))
	}
	e.pipeline = cp
	e.cb.compute.SetPipeline(cp.hal)
}

// SetBindTable implements rhi.ComputeEncoder.
func (e *ComputeEncoder) SetBindTable(table rhi.BindTable, index uint32) {
	var layout *PipelineLayout
	if e.pipeline != nil {
		layout = e.pipeline.layout
	}
	e.bindTable(layout, []rhi.BindStage{rhi.BindStageCompute}, table, index, nativeBinder{
		group: func(i uint32, g hal.BindGroup) { e.cb.compute.SetBindGroup(i, g, nil) },
	})
}

// Dispatch implements rhi.ComputeEncoder.
func (e *ComputeEncoder) Dispatch(x, y, z uint32) {
	e.check()
	e.cb.compute.Dispatch(x, y, z)
}

// DispatchIndirect implements rhi.ComputeEncoder.
func (e *ComputeEncoder) DispatchIndirect(buf rhi.Buffer, offset uint64) {
	e.check()
	e.cb.compute.DispatchIndirect(mustBuffer(buf).hal, offset)
}

// RasterEncoder implements rhi.RasterEncoder.
type RasterEncoder struct {
	passEncoder
	pipeline *RasterPipeline
}

// SetPipeline implements rhi.RasterEncoder.
func (e *RasterEncoder) SetPipeline(p rhi.RasterPipeline) {
	e.check()
	rp, ok := p.(*RasterPipeline)
	if !ok || rp == nil {
		panic(fmt.Errorf("%w: raster pipeline %T not created by this backend", rhi.ErrInvalidDescriptor, p))
	}
	e.pipeline = rp
	e.cb.render.SetPipeline(rp.hal)
}

// SetBindTable implements rhi.RasterEncoder. Elements resolve for the
// vertex stage first, then the fragment stage.
func (e *RasterEncoder) SetBindTable(table rhi.BindTable, index uint32) {
	var layout *PipelineLayout
	if e.pipeline != nil {
		layout = e.pipeline.layout
	}
	e.bindTable(layout, []rhi.BindStage{rhi.BindStageVertex, rhi.BindStageFragment}, table, index, nativeBinder{
		group: func(i uint32, g hal.BindGroup) { e.cb.render.SetBindGroup(i, g, nil) },
	})
}

// SetViewport implements rhi.RasterEncoder.
func (e *RasterEncoder) SetViewport(x, y, width, height, minDepth, maxDepth float32) {
	e.check()
	e.cb.render.SetViewport(x, y, width, height, minDepth, maxDepth)
}

// SetScissor implements rhi.RasterEncoder.
func (e *RasterEncoder) SetScissor(x, y, width, height uint32) {
	e.check()
	e.cb.render.SetScissorRect(x, y, width, height)
}

// SetStencilReference implements rhi.RasterEncoder.
func (e *RasterEncoder) SetStencilReference(ref uint32) {
	e.check()
	e.cb.render.SetStencilReference(ref)
}

// SetVertexBuffer implements rhi.RasterEncoder.
func (e *RasterEncoder) SetVertexBuffer(slot uint32, buf rhi.Buffer, offset uint64) {
	e.check()
	e.cb.render.SetVertexBuffer(slot, mustBuffer(buf).hal, offset)
}

// SetIndexBuffer implements rhi.RasterEncoder.
func (e *RasterEncoder) SetIndexBuffer(buf rhi.Buffer, format gputypes.IndexFormat, offset uint64) {
	e.check()
	e.cb.render.SetIndexBuffer(mustBuffer(buf).hal, format, offset)
}

// Draw implements rhi.RasterEncoder.
func (e *RasterEncoder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	e.check()
	e.cb.render.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
}

// DrawIndexed implements rhi.RasterEncoder.
func (e *RasterEncoder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	e.check()
	e.cb.render.DrawIndexed(indexCount, instanceCount, firstIndex, baseVertex, firstInstance)
}

// DrawIndirect implements rhi.RasterEncoder.
func (e *RasterEncoder) DrawIndirect(buf rhi.Buffer, offset uint64) {
	e.check()
	e.cb.render.DrawIndirect(mustBuffer(buf).hal, offset)
}

// DrawIndexedIndirect implements rhi.RasterEncoder.
func (e *RasterEncoder) DrawIndexedIndirect(buf rhi.Buffer, offset uint64) {
	e.check()
	e.cb.render.DrawIndexedIndirect(mustBuffer(buf).hal, offset)
}

// RaytracingEncoder implements rhi.RaytracingEncoder. Without the hal
// raytracing extension, builds and dispatches record nothing.
type RaytracingEncoder struct {
	passEncoder
	pipeline *RaytracingPipeline
}

// SetPipeline implements rhi.RaytracingEncoder.
func (e *RaytracingEncoder) SetPipeline(p rhi.RaytracingPipeline) {
	e.check()
	rp, ok := p.(*RaytracingPipeline)
	if !ok || rp == nil {
		panic(fmt.Errorf("%w: raytracing pipeline %T not created by this backend", rhi.ErrInvalidDescriptor, p))
	}
	e.pipeline = rp
	if e.cb.rt != nil {
		e.cb.rt.SetRaytracingPipeline(rp.rt)
	}
}

// SetBindTable implements rhi.RaytracingEncoder. Descriptor elements are
// bound as descriptor tables and acceleration structures by address.
func (e *RaytracingEncoder) SetBindTable(table rhi.BindTable, index uint32) {
	var layout *PipelineLayout
	if e.pipeline != nil {
		layout = e.pipeline.layout
	}
	var nb nativeBinder
	if rt := e.cb.rt; rt != nil {
		nb = nativeBinder{group: rt.SetRaytracingBindGroup, table: rt.SetDescriptorTable, accel: rt.SetAccelStruct}
	}
	e.bindTable(layout, []rhi.BindStage{rhi.BindStageCompute}, table, index, nb)
}

// build records one acceleration structure build. Failures are returned
// with validation on and logged otherwise.
func (e *RaytracingEncoder) build(label string, desc *accel.BuildDescriptor) error {
	if e.cb.rt == nil {
		return nil
	}
	if err := e.cb.rt.BuildAccelStruct(desc); err != nil {
		err = fmt.Errorf("build %s %q: %w", desc.Inputs.Level, label, err)
		if e.cb.dev.validate() {
			return err
		}
		slogger().Warn("rhi: acceleration structure build failed", "err", err)
	}
	return nil
}

// BuildBLAS implements rhi.RaytracingEncoder.
func (e *RaytracingEncoder) BuildBLAS(blas rhi.BLAS) error {
	e.check()
	b, err := asBLAS(blas)
	if err != nil {
		return err
	}
	return e.build(b.label, &accel.BuildDescriptor{
		Inputs:  b.inputs,
		Dest:    b.result.address,
		Scratch: b.scratch.address,
	})
}

// BuildTLAS implements rhi.RaytracingEncoder.
func (e *RaytracingEncoder) BuildTLAS(tlas rhi.TLAS) error {
	e.check()
	t, err := asTLAS(tlas)
	if err != nil {
		return err
	}
	if err := e.build(t.label, &accel.BuildDescriptor{
		Inputs:  t.inputs(),
		Dest:    t.result.address,
		Scratch: t.scratch.address,
	}); err != nil {
		return err
	}
	if e.cb.rt != nil {
		e.cb.builds = append(e.cb.builds, t)
	}
	return nil
}

// UpdateTLAS implements rhi.RaytracingEncoder. The instance buffer is
// rewritten immediately; the refit reads it when the command buffer runs.
// tlas must have been built with BuildAllowUpdate, and instances must
// keep the instance count.
func (e *RaytracingEncoder) UpdateTLAS(tlas rhi.TLAS, instances []rhi.TLASInstance) error {
	e.check()
	t, err := asTLAS(tlas)
	if err != nil {
		return err
	}
	if !t.Built() && !slices.Contains(e.cb.builds, t) {
		return fmt.Errorf("update %q: %w", t.label, rhi.ErrAccelStructNotBuilt)
	}
	if t.flags&accel.FlagAllowUpdate == 0 {
		return fmt.Errorf("%w: %q was not built with BuildAllowUpdate", rhi.ErrInvalidDescriptor, t.label)
	}
	if len(instances) != len(t.instances) {
		return fmt.Errorf("%w: update of %q with %d instances, built with %d",
			rhi.ErrInvalidDescriptor, t.label, len(instances), len(t.instances))
	}
	if err := t.writeInstances(instances); err != nil {
		return err
	}

	in := t.inputs()
	in.Flags |= accel.FlagPerformUpdate
	return e.build(t.label, &accel.BuildDescriptor{
		Inputs:  in,
		Dest:    t.result.address,
		Source:  t.result.address,
		Scratch: t.scratch.address,
	})
}

// DispatchRays implements rhi.RaytracingEncoder. It is a no-op on
// devices without raytracing.
func (e *RaytracingEncoder) DispatchRays(table rhi.ShaderTable, width, height, depth uint32) {
	e.check()
	if e.cb.rt == nil {
		return
	}
	st := asShaderTable(table)
	if e.pipeline == nil {
		panic(fmt.Errorf("%w: DispatchRays before SetPipeline", rhi.ErrInvalidDescriptor))
	}
	e.cb.rt.DispatchRays(&raytrace.DispatchDescriptor{
		RayGen:    st.RayGen(),
		Miss:      st.Miss(),
		HitGroups: st.HitGroups(),
		Width:     width,
		Height:    max(height, 1),
		Depth:     max(depth, 1),
	})
}
