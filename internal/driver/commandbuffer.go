// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import (
	"fmt"
	"strings"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/cmdstate"
	"github.com/gogpu/rhi/internal/descheap"
	"github.com/gogpu/rhi/internal/raytrace"
)

// CommandBuffer implements rhi.CommandBuffer over one hal command
// encoder. It is not safe for concurrent use.
type CommandBuffer struct {
	dev   *Device
	label string
	queue rhi.QueueType

	enc hal.CommandEncoder
	// rt is nil when the encoder has no raytracing extension.
	rt      raytrace.CommandEncoder
	machine cmdstate.Machine

	recorded    hal.CommandBuffer
	submittedAt uint64
	// arenas are the resource and sampler arenas bound at Begin, indexed
	// by descheap.Kind.
	arenas [2]descheap.Allocation

	// scopes is the debug label stack; hal has no debug markers, so the
	// innermost scope names hal passes.
	scopes []string

	barriers barrierBatch
	resolves []resolveRange
	ops      []queryOp
	builds   []*TLAS

	render  hal.RenderPassEncoder
	compute hal.ComputePassEncoder
	targets []descheap.Allocation
	query   *activeQuery
	// passEnd is the host timestamp recorded when the open pass ends.
	passEnd *queryOp
}

type resolveRange struct {
	heap         *QueryHeap
	first, count uint32
}

type activeQuery struct {
	heap  *QueryHeap
	index uint32
}

// CreateCommandBuffer implements rhi.Device.
func (d *Device) CreateCommandBuffer(queue rhi.QueueType) (rhi.CommandBuffer, error) {
	if d.destroyed.Load() {
		return nil, rhi.ErrDeviceDestroyed
	}
	if queue > rhi.QueueTransfer {
		return nil, fmt.Errorf("%w: queue type %s", rhi.ErrInvalidDescriptor, queue)
	}
	label := d.label("command-buffer", "")
	enc, err := d.hal.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("create command buffer: %w", err)
	}
	cb := &CommandBuffer{
		dev:      d,
		label:    label,
		queue:    queue,
		enc:      enc,
		barriers: barrierBatch{native: d.native},
	}
	if rt, ok := enc.(raytrace.CommandEncoder); ok && d.rt != nil {
		cb.rt = rt
	}
	return cb, nil
}

func asCommandBuffer(c rhi.CommandBuffer) (*CommandBuffer, error) {
	cb, ok := c.(*CommandBuffer)
	if !ok || cb == nil {
		return nil, fmt.Errorf("%w: command buffer %T not created by this backend", rhi.ErrInvalidDescriptor, c)
	}
	return cb, nil
}

// Label implements rhi.Resource.
func (cb *CommandBuffer) Label() string { return cb.label }

// QueueType implements rhi.CommandBuffer.
func (cb *CommandBuffer) QueueType() rhi.QueueType { return cb.queue }

// State implements rhi.CommandBuffer.
func (cb *CommandBuffer) State() rhi.CommandBufferState { return cb.machine.State() }

func (cb *CommandBuffer) pushScope(name string) string {
	cb.scopes = append(cb.scopes, name)
	scope := strings.Join(cb.scopes, "/")
	slogger().Debug("rhi: scope push", "scope", scope)
	return scope
}

func (cb *CommandBuffer) popScope() {
	if n := len(cb.scopes); n > 0 {
		slogger().Debug("rhi: scope pop", "scope", strings.Join(cb.scopes, "/"))
		cb.scopes = cb.scopes[:n-1]
	}
}

// Begin implements rhi.CommandBuffer. An ended or submitted buffer is
// reset first; a submitted one once the queue has finished executing it.
// Begin binds the device descriptor arenas for the whole recording.
func (cb *CommandBuffer) Begin() error {
	if cb.dev.destroyed.Load() {
		return rhi.ErrDeviceDestroyed
	}
	switch cb.machine.State() {
	case rhi.CommandBufferEnded, rhi.CommandBufferSubmitted:
		cb.waitSubmitted()
		cb.release()
	}
	if err := cb.machine.Begin(); err != nil {
		return fmt.Errorf("begin %q: %w", cb.label, err)
	}
	if err := cb.enc.BeginEncoding(cb.label); err != nil {
		cb.machine.Abort()
		return fmt.Errorf("begin %q: %w", cb.label, err)
	}
	cb.scopes = cb.scopes[:0]
	cb.pushScope(cb.label)
	cb.bindArenas()
	slogger().Debug("rhi: command buffer recording", "buffer", cb.label, "queue", cb.queue)
	return nil
}

// bindArenas binds the shader-visible descriptor arenas. Every table bound
// during the recording must have its slots inside them.
func (cb *CommandBuffer) bindArenas() {
	res := cb.dev.heaps.Arena(descheap.KindResource).Span()
	smp := cb.dev.heaps.Arena(descheap.KindSampler).Span()
	cb.arenas = [2]descheap.Allocation{descheap.KindResource: res, descheap.KindSampler: smp}
	if cb.rt != nil {
		cb.rt.SetDescriptorHeaps(res.GPU, smp.GPU)
	}
}

// descriptorAddress returns the GPU address of the slot of element i of t.
// It panics when the slot is not inside the arenas bound at Begin, which
// happens once t is destroyed.
func (cb *CommandBuffer) descriptorAddress(t *BindTable, i int) uint64 {
	a := t.slots(i)
	if !a.Valid() || !cb.arenas[a.Heap].Contains(a) {
		panic(fmt.Errorf("%w: bind table %q element %d has no descriptor slot in the bound arenas",
			rhi.ErrInvalidDescriptor, t.label, i))
	}
	_, gpu := cb.dev.heaps.Arena(a.Heap).Address(a.Index + t.layout.offsets[i])
	return gpu
}

// End implements rhi.CommandBuffer.
func (cb *CommandBuffer) End() error {
	if err := cb.machine.End(); err != nil {
		return fmt.Errorf("end %q: %w", cb.label, err)
	}
	cb.barriers.flush(cb.enc)
	recorded, err := cb.enc.EndEncoding()
	if err != nil {
		cb.machine.Abort()
		return fmt.Errorf("end %q: %w", cb.label, err)
	}
	cb.recorded = recorded
	cb.popScope()
	return nil
}

// Reset implements rhi.CommandBuffer. A submitted buffer is reset once
// the queue has finished executing it.
func (cb *CommandBuffer) Reset() error {
	cb.waitSubmitted()
	if err := cb.machine.Reset(); err != nil {
		return fmt.Errorf("reset %q: %w", cb.label, err)
	}
	cb.release()
	return nil
}

func (cb *CommandBuffer) waitSubmitted() {
	if cb.machine.State() != rhi.CommandBufferSubmitted {
		return
	}
	for cb.dev.completed() < cb.submittedAt {
		time.Sleep(cb.dev.cfg.FencePollInterval.Duration)
	}
}

// release drops everything a recording produced.
func (cb *CommandBuffer) release() {
	if cb.recorded != nil {
		// The encoder recycles the buffer; it must not also be freed.
		cb.enc.ResetAll([]hal.CommandBuffer{cb.recorded})
		cb.recorded = nil
	}
	cb.submittedAt = 0
	cb.ops = nil
	cb.builds = nil
	cb.resolves = nil
	cb.query = nil
	cb.scopes = cb.scopes[:0]
	cb.arenas = [2]descheap.Allocation{}
}

// Destroy implements rhi.Resource.
func (cb *CommandBuffer) Destroy() {
	switch cb.machine.State() {
	case rhi.CommandBufferRecording, rhi.CommandBufferEncodingPass:
		cb.freeTargets()
		cb.enc.DiscardEncoding()
	case rhi.CommandBufferSubmitted:
		cb.waitSubmitted()
	}
	cb.machine.Abort()
	cb.release()
	cb.enc.Destroy()
}

// submitted is called by the queue after the hal submission succeeded.
func (cb *CommandBuffer) submitted(index uint64) {
	if err := cb.machine.Submit(); err != nil {
		slogger().Warn("rhi: submitted command buffer in wrong state", "buffer", cb.label, "err", err)
	}
	cb.submittedAt = index
	for _, op := range cb.ops {
		op.apply()
	}
	for _, t := range cb.builds {
		t.builtAt.Store(index)
	}
}

// mustRecord panics unless commands may be recorded.
func (cb *CommandBuffer) mustRecord(op string) {
	switch cb.machine.State() {
	case rhi.CommandBufferRecording, rhi.CommandBufferEncodingPass:
	default:
		panic(fmt.Errorf("%w: %s in state %s", rhi.ErrNotRecording, op, cb.machine.State()))
	}
}

// ResourceBarrier implements rhi.CommandBuffer.
func (cb *CommandBuffer) ResourceBarrier(b rhi.Barrier) {
	cb.ResourceBarriers([]rhi.Barrier{b})
}

// ResourceBarriers implements rhi.CommandBuffer. Barriers recorded in a
// raster pass execute when the pass ends.
func (cb *CommandBuffer) ResourceBarriers(bs []rhi.Barrier) {
	cb.mustRecord("resource barrier")
	for _, b := range bs {
		cb.barriers.add(b)
	}
	if cb.machine.InPass(cmdstate.PassRaster) {
		if !cb.barriers.empty() {
			slogger().Debug("rhi: barriers deferred to raster pass end", "buffer", cb.label, "count", len(bs))
		}
		return
	}
	cb.barriers.flush(cb.enc)
}

// ResolveQuery implements rhi.CommandBuffer.
func (cb *CommandBuffer) ResolveQuery(heap rhi.QueryHeap, first, count uint32) {
	cb.mustRecord("resolve query")
	h := asQueryHeap(heap)
	if !h.inRange(first, count) {
		panic(fmt.Errorf("%w: resolve [%d,+%d) of heap %q with %d queries",
			rhi.ErrQueryOutOfRange, first, count, h.label, h.count))
	}
	r := resolveRange{heap: h, first: first, count: count}
	if h.set == nil {
		cb.ops = append(cb.ops, queryOp{kind: queryResolve, heap: h, index: first, count: count})
		return
	}
	if cb.render != nil || cb.compute != nil {
		cb.resolves = append(cb.resolves, r)
		return
	}
	cb.resolve(r)
}

func (cb *CommandBuffer) resolve(r resolveRange) {
	cb.enc.ResolveQuerySet(r.heap.set, r.first, r.count, r.heap.readback.hal, uint64(r.first)*8)
}

// afterPass runs the work held back while a hal pass was open.
func (cb *CommandBuffer) afterPass() {
	cb.barriers.flush(cb.enc)
	for _, r := range cb.resolves {
		cb.resolve(r)
	}
	cb.resolves = nil
	cb.query = nil
}

func (cb *CommandBuffer) beginPass(p cmdstate.Pass, label string) (string, error) {
	if err := cb.machine.BeginPass(p); err != nil {
		return "", fmt.Errorf("%q: %w", cb.label, err)
	}
	if label == "" {
		label = strings.ToLower(p.String())
	}
	return cb.pushScope(label), nil
}

func (cb *CommandBuffer) endPass(p cmdstate.Pass) error {
	if err := cb.machine.EndPass(p); err != nil {
		return fmt.Errorf("%q: %w", cb.label, err)
	}
	cb.addOp(cb.passEnd)
	cb.passEnd = nil
	cb.popScope()
	return nil
}

func (cb *CommandBuffer) requireQueue(p cmdstate.Pass, allowed ...rhi.QueueType) error {
	for _, q := range allowed {
		if cb.queue == q {
			return nil
		}
	}
	return fmt.Errorf("%w: %s pass on %s command buffer %q", rhi.ErrWrongPass, p, cb.queue, cb.label)
}

// BeginTransferPass implements rhi.CommandBuffer.
func (cb *CommandBuffer) BeginTransferPass(desc *rhi.TransferPassDescriptor) (rhi.TransferEncoder, error) {
	var label string
	if desc != nil {
		label = desc.Label
	}
	if _, err := cb.beginPass(cmdstate.PassTransfer, label); err != nil {
		return nil, fmt.Errorf("begin transfer pass %w", err)
	}
	return &TransferEncoder{passEncoder: newPassEncoder(cb, cmdstate.PassTransfer)}, nil
}

// EndTransferPass implements rhi.CommandBuffer.
func (cb *CommandBuffer) EndTransferPass() error {
	if err := cb.endPass(cmdstate.PassTransfer); err != nil {
		return fmt.Errorf("end transfer pass %w", err)
	}
	cb.afterPass()
	return nil
}

// BeginComputePass implements rhi.CommandBuffer.
func (cb *CommandBuffer) BeginComputePass(desc *rhi.ComputePassDescriptor) (rhi.ComputeEncoder, error) {
	if desc == nil {
		desc = &rhi.ComputePassDescriptor{}
	}
	if err := cb.requireQueue(cmdstate.PassCompute, rhi.QueueGraphics, rhi.QueueCompute); err != nil {
		return nil, err
	}
	hd := &hal.ComputePassDescriptor{}
	begin, end, err := cb.passTimestamps(desc.Timestamps)
	if err != nil {
		return nil, err
	}
	if ts := desc.Timestamps; ts != nil && begin == nil {
		h := asQueryHeap(ts.Heap)
		hd.TimestampWrites = &hal.ComputePassTimestampWrites{
			QuerySet:                  h.set,
			BeginningOfPassWriteIndex: &ts.BeginIndex,
			EndOfPassWriteIndex:       &ts.EndIndex,
		}
	}

	scope, err := cb.beginPass(cmdstate.PassCompute, desc.Label)
	if err != nil {
		return nil, fmt.Errorf("begin compute pass %w", err)
	}
	hd.Label = scope
	cb.addOp(begin)
	cb.passEnd = end
	cb.compute = cb.enc.BeginComputePass(hd)
	return &ComputeEncoder{passEncoder: newPassEncoder(cb, cmdstate.PassCompute)}, nil
}

// EndComputePass implements rhi.CommandBuffer.
func (cb *CommandBuffer) EndComputePass() error {
	if err := cb.endPass(cmdstate.PassCompute); err != nil {
		return fmt.Errorf("end compute pass %w", err)
	}
	cb.compute.End()
	cb.compute = nil
	cb.afterPass()
	return nil
}

// BeginRasterPass implements rhi.CommandBuffer. Attachments without a
// load op load their contents; attachments without a store op store them.
func (cb *CommandBuffer) BeginRasterPass(desc *rhi.RasterPassDescriptor) (rhi.RasterEncoder, error) {
	if desc == nil {
		desc = &rhi.RasterPassDescriptor{}
	}
	if err := cb.requireQueue(cmdstate.PassRaster, rhi.QueueGraphics); err != nil {
		return nil, err
	}
	hd, err := cb.renderPassDescriptor(desc)
	if err != nil {
		return nil, fmt.Errorf("begin raster pass: %w", err)
	}
	begin, end, err := cb.passTimestamps(desc.Timestamps)
	if err != nil {
		return nil, err
	}
	if ts := desc.Timestamps; ts != nil && begin == nil {
		h := asQueryHeap(ts.Heap)
		hd.TimestampWrites = &hal.RenderPassTimestampWrites{
			QuerySet:                  h.set,
			BeginningOfPassWriteIndex: &ts.BeginIndex,
			EndOfPassWriteIndex:       &ts.EndIndex,
		}
	}
	if err := cb.allocateTargets(len(desc.Colors), desc.Depth != nil); err != nil {
		return nil, fmt.Errorf("begin raster pass: %w", err)
	}

	scope, err := cb.beginPass(cmdstate.PassRaster, desc.Label)
	if err != nil {
		cb.freeTargets()
		return nil, fmt.Errorf("begin raster pass %w", err)
	}
	hd.Label = scope
	cb.addOp(begin)
	cb.passEnd = end
	cb.render = cb.enc.BeginRenderPass(hd)
	return &RasterEncoder{passEncoder: newPassEncoder(cb, cmdstate.PassRaster)}, nil
}

func (cb *CommandBuffer) renderPassDescriptor(desc *rhi.RasterPassDescriptor) (*hal.RenderPassDescriptor, error) {
	hd := &hal.RenderPassDescriptor{
		ColorAttachments: make([]hal.RenderPassColorAttachment, len(desc.Colors)),
	}
	for i, c := range desc.Colors {
		view, err := asTextureView(c.View)
		if err != nil {
			return nil, fmt.Errorf("color target %d: %w", i, err)
		}
		att := hal.RenderPassColorAttachment{
			View:       view.hal,
			LoadOp:     loadOp(c.Load),
			StoreOp:    storeOp(c.Store),
			ClearValue: c.Clear,
		}
		if c.Resolve != nil {
			rv, err := asTextureView(c.Resolve)
			if err != nil {
				return nil, fmt.Errorf("resolve target %d: %w", i, err)
			}
			att.ResolveTarget = rv.hal
		}
		hd.ColorAttachments[i] = att
	}
	if d := desc.Depth; d != nil {
		view, err := asTextureView(d.View)
		if err != nil {
			return nil, fmt.Errorf("depth target: %w", err)
		}
		hd.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:              view.hal,
			DepthLoadOp:       loadOp(d.DepthLoad),
			DepthStoreOp:      storeOp(d.DepthStore),
			DepthClearValue:   d.ClearDepth,
			DepthReadOnly:     d.ReadOnly,
			StencilLoadOp:     loadOp(d.StencilLoad),
			StencilStoreOp:    storeOp(d.StencilStore),
			StencilClearValue: d.ClearStencil,
			StencilReadOnly:   d.ReadOnly,
		}
	}
	return hd, nil
}

func loadOp(op gputypes.LoadOp) gputypes.LoadOp {
	if op == gputypes.LoadOpUndefined {
		return gputypes.LoadOpLoad
	}
	return op
}

func storeOp(op gputypes.StoreOp) gputypes.StoreOp {
	if op == gputypes.StoreOpUndefined {
		return gputypes.StoreOpStore
	}
	return op
}

// allocateTargets reserves the CPU-only attachment descriptors of a
// raster pass.
func (cb *CommandBuffer) allocateTargets(colors int, depth bool) error {
	if colors > 0 {
		a, err := cb.dev.heaps.Arena(descheap.KindRenderTarget).Allocate(uint32(colors))
		if err != nil {
			return fmt.Errorf("%w: render targets: %w", rhi.ErrDescriptorHeapFull, err)
		}
		cb.targets = append(cb.targets, a)
	}
	if depth {
		a, err := cb.dev.heaps.Arena(descheap.KindDepthStencil).Allocate(1)
		if err != nil {
			cb.freeTargets()
			return fmt.Errorf("%w: depth stencil: %w", rhi.ErrDescriptorHeapFull, err)
		}
		cb.targets = append(cb.targets, a)
	}
	return nil
}

func (cb *CommandBuffer) freeTargets() {
	for _, a := range cb.targets {
		if err := cb.dev.heaps.Arena(a.Heap).Free(a.Index); err != nil {
			slogger().Warn("rhi: free pass target descriptors", "buffer", cb.label, "err", err)
		}
	}
	cb.targets = cb.targets[:0]
}

// EndRasterPass implements rhi.CommandBuffer.
func (cb *CommandBuffer) EndRasterPass() error {
	if err := cb.endPass(cmdstate.PassRaster); err != nil {
		return fmt.Errorf("end raster pass %w", err)
	}
	cb.render.End()
	cb.render = nil
	cb.freeTargets()
	cb.afterPass()
	return nil
}

// BeginRaytracingPass implements rhi.CommandBuffer.
func (cb *CommandBuffer) BeginRaytracingPass(desc *rhi.RaytracingPassDescriptor) (rhi.RaytracingEncoder, error) {
	var label string
	if desc != nil {
		label = desc.Label
	}
	if err := cb.requireQueue(cmdstate.PassRaytracing, rhi.QueueGraphics, rhi.QueueCompute); err != nil {
		return nil, err
	}
	if _, err := cb.beginPass(cmdstate.PassRaytracing, label); err != nil {
		return nil, fmt.Errorf("begin raytracing pass %w", err)
	}
	if cb.rt == nil {
		slogger().Debug("rhi: raytracing pass on device without raytracing, commands dropped", "buffer", cb.label)
	}
	return &RaytracingEncoder{passEncoder: newPassEncoder(cb, cmdstate.PassRaytracing)}, nil
}

// EndRaytracingPass implements rhi.CommandBuffer.
func (cb *CommandBuffer) EndRaytracingPass() error {
	if err := cb.endPass(cmdstate.PassRaytracing); err != nil {
		return fmt.Errorf("end raytracing pass %w", err)
	}
	cb.afterPass()
	return nil
}

// passTimestamps validates pass timestamp writes. Heaps without a hal
// query set return the host operations to record at pass begin and end;
// a nil begin with non-nil ts means the hal pass writes them.
func (cb *CommandBuffer) passTimestamps(ts *rhi.TimestampWrites) (begin, end *queryOp, err error) {
	if ts == nil {
		return nil, nil, nil
	}
	if ts.Heap == nil {
		return nil, nil, fmt.Errorf("%w: timestamp writes without a heap", rhi.ErrInvalidDescriptor)
	}
	h := asQueryHeap(ts.Heap)
	if h.typ != rhi.QueryTimestamp {
		return nil, nil, fmt.Errorf("%w: timestamp writes into %s heap %q", rhi.ErrInvalidDescriptor, h.typ, h.label)
	}
	if ts.BeginIndex >= h.count || ts.EndIndex >= h.count {
		return nil, nil, fmt.Errorf("%w: timestamp indices %d,%d of heap %q with %d queries",
			rhi.ErrQueryOutOfRange, ts.BeginIndex, ts.EndIndex, h.label, h.count)
	}
	if h.set != nil {
		return nil, nil, nil
	}
	return &queryOp{kind: queryTimestamp, heap: h, index: ts.BeginIndex},
		&queryOp{kind: queryTimestamp, heap: h, index: ts.EndIndex}, nil
}

func (cb *CommandBuffer) addOp(op *queryOp) {
	if op != nil {
		cb.ops = append(cb.ops, *op)
	}
}
