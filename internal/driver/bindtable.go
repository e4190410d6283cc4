// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/binding"
	"github.com/gogpu/rhi/internal/descheap"
)

// noBinding marks an element without a hal bind group entry.
const noBinding = -1

// BindTableLayout implements rhi.BindTableLayout.
//
// An element is bound at hal binding Slot of bind group Index, so hal
// bindings match the slots the binding model reports. Acceleration
// structures and bindless arrays have no hal entry: the former are bound
// through the raytracing extension, the latter only natively.
type BindTableLayout struct {
	dev      *Device
	hal      hal.BindGroupLayout
	label    string
	index    uint32
	elements []rhi.BindTableLayoutElement
	bindings []int
	// offsets[i] is the slot of element i within the table's run of
	// resource or sampler descriptors.
	offsets []uint32

	samplers  uint32
	resources uint32
}

// CreateBindTableLayout implements rhi.Device.
func (d *Device) CreateBindTableLayout(desc *rhi.BindTableLayoutDescriptor) (rhi.BindTableLayout, error) {
	if desc == nil {
		return nil, fmt.Errorf("%w: nil bind table layout descriptor", rhi.ErrInvalidDescriptor)
	}
	elems := append([]rhi.BindTableLayoutElement(nil), desc.Elements...)
	if err := binding.ValidateTable(binding.Table{Index: desc.Index, Elements: elems}, d.model); err != nil {
		return nil, fmt.Errorf("create bind table layout: %w", err)
	}

	l := &BindTableLayout{
		dev:      d,
		label:    d.label("bind-table-layout", desc.Label),
		index:    desc.Index,
		elements: elems,
		bindings: make([]int, len(elems)),
		offsets:  make([]uint32, len(elems)),
	}
	entries := make([]gputypes.BindGroupLayoutEntry, 0, len(elems))
	taken := make(map[uint32]int, len(elems))
	for i, e := range elems {
		if e.Type == rhi.BindTypeSampler {
			l.offsets[i] = l.samplers
			l.samplers++
		} else {
			l.offsets[i] = l.resources
			l.resources++
		}
		l.bindings[i] = noBinding
		if e.IsBindless() {
			slogger().Debug("rhi: bindless element bound natively only",
				"layout", l.label, "slot", e.Slot, "count", e.Count)
			continue
		}
		entry, ok := layoutEntry(e, e.Slot)
		if !ok {
			continue
		}
		if j, dup := taken[e.Slot]; dup {
			return nil, fmt.Errorf("%w: layout %q elements %d and %d both need hal binding %d",
				rhi.ErrInvalidDescriptor, l.label, j, i, e.Slot)
		}
		taken[e.Slot] = i
		l.bindings[i] = int(e.Slot)
		entries = append(entries, entry)
	}

	bgl, err := d.hal.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{Label: l.label, Entries: entries})
	if err != nil {
		return nil, fmt.Errorf("create bind table layout %q: %w", l.label, err)
	}
	l.hal = bgl
	return l, nil
}

// Label implements rhi.Resource.
func (l *BindTableLayout) Label() string { return l.label }

// Index implements rhi.BindTableLayout.
func (l *BindTableLayout) Index() uint32 { return l.index }

// Elements implements rhi.BindTableLayout.
func (l *BindTableLayout) Elements() []rhi.BindTableLayoutElement { return l.elements }

// Destroy implements rhi.Resource.
func (l *BindTableLayout) Destroy() {
	if l.hal != nil {
		l.dev.hal.DestroyBindGroupLayout(l.hal)
		l.hal = nil
	}
}

func asBindTableLayout(l rhi.BindTableLayout) (*BindTableLayout, error) {
	btl, ok := l.(*BindTableLayout)
	if !ok || btl == nil {
		return nil, fmt.Errorf("%w: bind table layout %T not created by this backend", rhi.ErrInvalidDescriptor, l)
	}
	return btl, nil
}

// BindTable implements rhi.BindTable.
type BindTable struct {
	dev      *Device
	layout   *BindTableLayout
	label    string
	elements []rhi.BindElement
	handles  []rhi.Handle

	resourceSlots descheap.Allocation
	samplerSlots  descheap.Allocation

	group hal.BindGroup
	// dirty is set by SetBindElement; the bind group is rebuilt on the
	// next bind.
	dirty bool
}

// CreateBindTable implements rhi.Device.
func (d *Device) CreateBindTable(desc *rhi.BindTableDescriptor) (rhi.BindTable, error) {
	if desc == nil || desc.Layout == nil {
		return nil, fmt.Errorf("%w: bind table without layout", rhi.ErrInvalidDescriptor)
	}
	layout, err := asBindTableLayout(desc.Layout)
	if err != nil {
		return nil, err
	}
	if len(desc.Elements) != len(layout.elements) {
		return nil, fmt.Errorf("%w: %d elements for layout %q of %d",
			rhi.ErrInvalidDescriptor, len(desc.Elements), layout.label, len(layout.elements))
	}

	t := &BindTable{
		dev:      d,
		layout:   layout,
		label:    d.label("bind-table", desc.Label),
		elements: make([]rhi.BindElement, len(desc.Elements)),
		handles:  make([]rhi.Handle, len(desc.Elements)),
	}
	for i, e := range desc.Elements {
		typ := layout.elements[i].Type
		h, err := elementHandle(e, typ)
		if err != nil {
			return nil, fmt.Errorf("bind table %q element %d: %w", t.label, i, err)
		}
		t.elements[i] = e
		t.handles[i] = h
	}

	if err := t.allocate(); err != nil {
		return nil, err
	}
	if err := t.rebuild(); err != nil {
		t.free()
		return nil, err
	}
	return t, nil
}

// slots returns the descriptor run element i lives in.
func (t *BindTable) slots(i int) descheap.Allocation {
	if t.layout.elements[i].Type == rhi.BindTypeSampler {
		return t.samplerSlots
	}
	return t.resourceSlots
}

// allocate reserves shader-visible descriptor slots for the table.
func (t *BindTable) allocate() error {
	var err error
	if t.layout.resources > 0 {
		t.resourceSlots, err = t.dev.heaps.Arena(descheap.KindResource).Allocate(t.layout.resources)
		if err != nil {
			return heapError(t.label, err)
		}
	}
	if t.layout.samplers > 0 {
		t.samplerSlots, err = t.dev.heaps.Arena(descheap.KindSampler).Allocate(t.layout.samplers)
		if err != nil {
			t.free()
			return heapError(t.label, err)
		}
	}
	slogger().Debug("rhi: bind table slots allocated", "table", t.label,
		"resource", t.resourceSlots.Index, "sampler", t.samplerSlots.Index)
	return nil
}

func (t *BindTable) free() {
	if t.resourceSlots.Valid() {
		_ = t.dev.heaps.Arena(descheap.KindResource).Free(t.resourceSlots.Index)
		t.resourceSlots = descheap.Allocation{}
	}
	if t.samplerSlots.Valid() {
		_ = t.dev.heaps.Arena(descheap.KindSampler).Free(t.samplerSlots.Index)
		t.samplerSlots = descheap.Allocation{}
	}
}

func heapError(label string, err error) error {
	if errors.Is(err, descheap.ErrFull) {
		return fmt.Errorf("bind table %q: %w: %w", label, rhi.ErrDescriptorHeapFull, err)
	}
	return fmt.Errorf("bind table %q: %w", label, err)
}

// rebuild recreates the hal bind group from the current elements.
func (t *BindTable) rebuild() error {
	entries := make([]gputypes.BindGroupEntry, 0, len(t.elements))
	for i, e := range t.elements {
		b := t.layout.bindings[i]
		if b == noBinding {
			continue
		}
		res, ok := bindingResource(e)
		if !ok {
			continue
		}
		entries = append(entries, gputypes.BindGroupEntry{Binding: uint32(b), Resource: res})
	}
	group, err := t.dev.hal.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   t.label,
		Layout:  t.layout.hal,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("create bind table %q: %w", t.label, err)
	}
	if t.group != nil {
		t.dev.hal.DestroyBindGroup(t.group)
	}
	t.group = group
	t.dirty = false
	return nil
}

// halGroup returns the bind group, rebuilding it after element patches.
func (t *BindTable) halGroup() hal.BindGroup {
	if t.dirty {
		if err := t.rebuild(); err != nil {
			slogger().Warn("rhi: bind table rebuild failed", "table", t.label, "err", err)
		}
	}
	return t.group
}

// Label implements rhi.Resource.
func (t *BindTable) Label() string { return t.label }

// Layout implements rhi.BindTable.
func (t *BindTable) Layout() rhi.BindTableLayout { return t.layout }

// Len implements rhi.BindTable.
func (t *BindTable) Len() int { return len(t.handles) }

// Handle implements rhi.BindTable.
func (t *BindTable) Handle(index int) rhi.Handle { return t.handles[index] }

// SetBindElement implements rhi.BindTable.
func (t *BindTable) SetBindElement(element rhi.BindElement, bindType rhi.BindType, index uint32) {
	if t.dev.validate() {
		if int(index) >= len(t.handles) {
			panic(fmt.Errorf("%w: bind element index %d out of range [0,%d)", rhi.ErrInvalidDescriptor, index, len(t.handles)))
		}
		if want := t.layout.elements[index].Type; want != bindType {
			panic(fmt.Errorf("%w: bind element %d declared %s, set as %s", rhi.ErrBindTypeMismatch, index, want, bindType))
		}
		if _, err := elementHandle(element, bindType); err != nil {
			panic(err)
		}
	}
	t.elements[index] = element
	t.handles[index] = element.Native()
	t.dirty = true
}

// Destroy implements rhi.Resource.
func (t *BindTable) Destroy() {
	if t.group != nil {
		t.dev.hal.DestroyBindGroup(t.group)
		t.group = nil
	}
	t.free()
}

func asBindTable(t rhi.BindTable) *BindTable {
	bt, ok := t.(*BindTable)
	if !ok || bt == nil {
		panic(fmt.Errorf("%w: bind table %T not created by this backend", rhi.ErrInvalidDescriptor, t))
	}
	return bt
}

// elementHandle dispatches on the declared bind type to fetch the native
// handle of e.
func elementHandle(e rhi.BindElement, t rhi.BindType) (rhi.Handle, error) {
	if e == nil {
		return 0, fmt.Errorf("%w: nil element for %s", rhi.ErrBindTypeMismatch, t)
	}
	var ok bool
	switch {
	case t == rhi.BindTypeSampler:
		_, ok = e.(*Sampler)
	case t == rhi.BindTypeAccelStruct:
		_, ok = e.(*TLAS)
	case t.IsTexture():
		_, ok = e.(*TextureView)
	case t.IsBuffer():
		_, ok = e.(*BufferView)
	}
	if !ok {
		return 0, fmt.Errorf("%w: %T bound as %s", rhi.ErrBindTypeMismatch, e, t)
	}
	return e.Native(), nil
}

// bindingResource returns the hal resource of e.
func bindingResource(e rhi.BindElement) (gputypes.BindingResource, bool) {
	switch el := e.(type) {
	case *Sampler:
		return gputypes.SamplerBinding{Sampler: el.entry.hal.NativeHandle()}, true
	case *TextureView:
		return gputypes.TextureViewBinding{TextureView: el.hal.NativeHandle()}, true
	case *BufferView:
		return gputypes.BufferBinding{
			Buffer: el.buffer.hal.NativeHandle(),
			Offset: el.offset,
			Size:   el.size,
		}, true
	default:
		return nil, false
	}
}
