// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi"
)

// Buffer implements rhi.Buffer.
type Buffer struct {
	dev     *Device
	hal     hal.Buffer
	label   string
	size    uint64
	usage   rhi.BufferUsage
	storage rhi.StorageMode
	address uint64
	state   atomic.Uint32
}

// CreateBuffer implements rhi.Device.
func (d *Device) CreateBuffer(desc *rhi.BufferDescriptor) (rhi.Buffer, error) {
	return d.createBuffer(desc)
}

func (d *Device) createBuffer(desc *rhi.BufferDescriptor) (*Buffer, error) {
	if desc == nil || desc.Size == 0 {
		return nil, fmt.Errorf("%w: buffer size is zero", rhi.ErrInvalidDescriptor)
	}
	label := d.label("buffer", desc.Label)
	hb, err := d.hal.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  desc.Size,
		Usage: halBufferUsage(desc.Usage, desc.Storage),
	})
	if err != nil {
		return nil, fmt.Errorf("create buffer %q: %w", label, err)
	}
	b := &Buffer{
		dev:     d,
		hal:     hb,
		label:   label,
		size:    desc.Size,
		usage:   desc.Usage,
		storage: desc.Storage,
	}
	b.address = d.bufferAddress(hb, desc.Size)
	b.state.Store(uint32(desc.InitialState))
	return b, nil
}

// Label implements rhi.Resource.
func (b *Buffer) Label() string { return b.label }

// Size implements rhi.Buffer.
func (b *Buffer) Size() uint64 { return b.size }

// Usage implements rhi.Buffer.
func (b *Buffer) Usage() rhi.BufferUsage { return b.usage }

// Storage implements rhi.Buffer.
func (b *Buffer) Storage() rhi.StorageMode { return b.storage }

// State implements rhi.Buffer.
func (b *Buffer) State() rhi.ResourceState { return rhi.ResourceState(b.state.Load()) }

// SetState implements rhi.Buffer.
func (b *Buffer) SetState(s rhi.ResourceState) { b.state.Store(uint32(s)) }

// Native implements rhi.Buffer.
func (b *Buffer) Native() rhi.Handle { return rhi.Handle(b.hal.NativeHandle()) }

// GPUAddress implements rhi.Buffer.
func (b *Buffer) GPUAddress() uint64 { return b.address }

// Write implements rhi.Buffer. Upload buffers are written through a
// mapping; other buffers go through the queue's staging path.
func (b *Buffer) Write(offset uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("%w: write of %d bytes at %d overflows buffer of %d",
			rhi.ErrInvalidDescriptor, len(data), offset, b.size)
	}
	if b.storage != rhi.StorageUpload {
		b.dev.submitMu.Lock()
		defer b.dev.submitMu.Unlock()
		if err := b.dev.queue.WriteBuffer(b.hal, offset, data); err != nil {
			return fmt.Errorf("write buffer %q: %w", b.label, err)
		}
		return nil
	}

	m, err := b.dev.hal.MapBuffer(b.hal, offset, uint64(len(data)))
	if err != nil {
		return fmt.Errorf("map buffer %q: %w", b.label, err)
	}
	copy(unsafe.Slice((*byte)(m.Ptr), len(data)), data)
	if err := b.dev.hal.UnmapBuffer(b.hal); err != nil {
		return fmt.Errorf("unmap buffer %q: %w", b.label, err)
	}
	return nil
}

// Read implements rhi.Buffer.
func (b *Buffer) Read(offset uint64, dst []byte) error {
	if b.storage != rhi.StorageReadback {
		return fmt.Errorf("%w: read from non-readback buffer %q", rhi.ErrInvalidDescriptor, b.label)
	}
	if len(dst) == 0 {
		return nil
	}
	if offset+uint64(len(dst)) > b.size {
		return fmt.Errorf("%w: read of %d bytes at %d overflows buffer of %d",
			rhi.ErrInvalidDescriptor, len(dst), offset, b.size)
	}
	m, err := b.dev.hal.MapBuffer(b.hal, offset, uint64(len(dst)))
	if err != nil {
		return fmt.Errorf("map buffer %q: %w", b.label, err)
	}
	copy(dst, unsafe.Slice((*byte)(m.Ptr), len(dst)))
	if err := b.dev.hal.UnmapBuffer(b.hal); err != nil {
		return fmt.Errorf("unmap buffer %q: %w", b.label, err)
	}
	return nil
}

// Destroy implements rhi.Resource.
func (b *Buffer) Destroy() {
	if b.hal != nil {
		b.dev.hal.DestroyBuffer(b.hal)
		b.hal = nil
	}
}

// BufferView implements rhi.BufferView.
type BufferView struct {
	label  string
	buffer *Buffer
	offset uint64
	size   uint64
	stride uint32
}

// CreateBufferView implements rhi.Device.
func (d *Device) CreateBufferView(desc *rhi.BufferViewDescriptor) (rhi.BufferView, error) {
	if desc == nil || desc.Buffer == nil {
		return nil, fmt.Errorf("%w: buffer view without buffer", rhi.ErrInvalidDescriptor)
	}
	buf, err := asBuffer(desc.Buffer)
	if err != nil {
		return nil, err
	}
	if desc.Offset >= buf.size {
		return nil, fmt.Errorf("%w: view offset %d beyond buffer of %d", rhi.ErrInvalidDescriptor, desc.Offset, buf.size)
	}
	size := desc.Size
	if size == 0 {
		size = buf.size - desc.Offset
	}
	if desc.Offset+size > buf.size {
		return nil, fmt.Errorf("%w: view [%d,%d) beyond buffer of %d",
			rhi.ErrInvalidDescriptor, desc.Offset, desc.Offset+size, buf.size)
	}
	if desc.Stride != 0 && size%uint64(desc.Stride) != 0 {
		return nil, fmt.Errorf("%w: view size %d not a multiple of stride %d", rhi.ErrInvalidDescriptor, size, desc.Stride)
	}
	return &BufferView{
		label:  d.label("buffer-view", desc.Label),
		buffer: buf,
		offset: desc.Offset,
		size:   size,
		stride: desc.Stride,
	}, nil
}

// Label implements rhi.Resource.
func (v *BufferView) Label() string { return v.label }

// Destroy implements rhi.Resource. Views own no native object.
func (v *BufferView) Destroy() {}

// Native implements rhi.BindElement. A view's handle is the device
// address of its first byte, so views at different offsets differ.
func (v *BufferView) Native() rhi.Handle { return rhi.Handle(v.buffer.address + v.offset) }

// Buffer implements rhi.BufferView.
func (v *BufferView) Buffer() rhi.Buffer { return v.buffer }

// Offset implements rhi.BufferView.
func (v *BufferView) Offset() uint64 { return v.offset }

// Size implements rhi.BufferView.
func (v *BufferView) Size() uint64 { return v.size }

func asBuffer(b rhi.Buffer) (*Buffer, error) {
	buf, ok := b.(*Buffer)
	if !ok || buf == nil {
		return nil, fmt.Errorf("%w: buffer %T not created by this backend", rhi.ErrInvalidDescriptor, b)
	}
	return buf, nil
}

// mustBuffer is asBuffer for encoder paths, where a foreign buffer is a
// programming error.
func mustBuffer(b rhi.Buffer) *Buffer {
	buf, err := asBuffer(b)
	if err != nil {
		panic(err)
	}
	return buf
}
