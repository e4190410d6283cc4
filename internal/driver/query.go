// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi"
)

// QueryHeap implements rhi.QueryHeap.
//
// Timestamp heaps are backed by a hal query set when the device supports
// one; pass timestamps are then written by the GPU and ResolveQuery
// copies them with hal ResolveQuerySet. Every other heap keeps its values
// on the host: timestamps are taken when the recording command buffer is
// submitted and occlusion or statistics queries read zero. Either way
// results land in a readback buffer that ResolveData reads.
type QueryHeap struct {
	dev      *Device
	label    string
	typ      rhi.QueryType
	count    uint32
	set      hal.QuerySet
	readback *Buffer

	mu     sync.Mutex
	values []uint64
}

// CreateQueryHeap implements rhi.Device.
func (d *Device) CreateQueryHeap(desc *rhi.QueryHeapDescriptor) (rhi.QueryHeap, error) {
	if desc == nil || desc.Count == 0 {
		return nil, fmt.Errorf("%w: query heap of zero queries", rhi.ErrInvalidDescriptor)
	}
	if desc.Count > d.cfg.Queries.MaxPerHeap {
		return nil, fmt.Errorf("%w: %d queries, max %d per heap", rhi.ErrLimitExceeded, desc.Count, d.cfg.Queries.MaxPerHeap)
	}
	h := &QueryHeap{
		dev:    d,
		label:  d.label("query-heap", desc.Label),
		typ:    desc.Type,
		count:  desc.Count,
		values: make([]uint64, desc.Count),
	}

	if desc.Type == rhi.QueryTimestamp {
		set, err := d.hal.CreateQuerySet(&hal.QuerySetDescriptor{
			Label: h.label,
			Type:  hal.QueryTypeTimestamp,
			Count: desc.Count,
		})
		switch {
		case errors.Is(err, hal.ErrTimestampsNotSupported):
			slogger().Warn("rhi: timestamps taken on the host", "heap", h.label)
		case err != nil:
			return nil, fmt.Errorf("create query heap %q: %w", h.label, err)
		default:
			h.set = set
		}
	} else {
		slogger().Warn("rhi: query type not counted by the execution layer, results read zero",
			"heap", h.label, "type", desc.Type)
	}

	rb, err := d.createBuffer(&rhi.BufferDescriptor{
		Label:        h.label + "-readback",
		Size:         uint64(desc.Count) * 8,
		Usage:        rhi.BufferUsageQueryResolve | rhi.BufferUsageCopyDst,
		Storage:      rhi.StorageReadback,
		InitialState: rhi.StateCopyDst,
	})
	if err != nil {
		h.Destroy()
		return nil, fmt.Errorf("create query heap %q: %w", h.label, err)
	}
	h.readback = rb
	return h, nil
}

// Label implements rhi.Resource.
func (h *QueryHeap) Label() string { return h.label }

// Type implements rhi.QueryHeap.
func (h *QueryHeap) Type() rhi.QueryType { return h.typ }

// Count implements rhi.QueryHeap.
func (h *QueryHeap) Count() uint32 { return h.count }

func (h *QueryHeap) inRange(first, count uint32) bool {
	return count > 0 && first < h.count && count <= h.count-first
}

// ResolveData implements rhi.QueryHeap.
func (h *QueryHeap) ResolveData(first, count uint32, dst []uint64) bool {
	if !h.inRange(first, count) || len(dst) < int(count) {
		return false
	}
	raw := make([]byte, int(count)*8)
	if err := h.readback.Read(uint64(first)*8, raw); err != nil {
		slogger().Warn("rhi: query readback failed", "heap", h.label, "err", err)
		return false
	}
	for i := range count {
		dst[i] = binary.LittleEndian.Uint64(raw[i*8:])
	}
	return true
}

// Destroy implements rhi.Resource.
func (h *QueryHeap) Destroy() {
	if h.set != nil {
		h.dev.hal.DestroyQuerySet(h.set)
		h.set = nil
	}
	if h.readback != nil {
		h.readback.Destroy()
		h.readback = nil
	}
}

func (h *QueryHeap) store(index uint32, v uint64) {
	h.mu.Lock()
	h.values[index] = v
	h.mu.Unlock()
}

// flush writes host values [first, first+count) to the readback buffer.
func (h *QueryHeap) flush(first, count uint32) error {
	raw := make([]byte, int(count)*8)
	h.mu.Lock()
	for i := range count {
		binary.LittleEndian.PutUint64(raw[i*8:], h.values[first+i])
	}
	h.mu.Unlock()
	return h.readback.Write(uint64(first)*8, raw)
}

func asQueryHeap(q rhi.QueryHeap) *QueryHeap {
	h, ok := q.(*QueryHeap)
	if !ok || h == nil {
		panic(fmt.Errorf("%w: query heap %T not created by this backend", rhi.ErrInvalidDescriptor, q))
	}
	return h
}

type queryOpKind uint8

const (
	queryTimestamp queryOpKind = iota
	queryZero
	queryResolve
)

// queryOp is a host query operation applied when its command buffer is
// submitted.
type queryOp struct {
	kind  queryOpKind
	heap  *QueryHeap
	index uint32
	count uint32
}

func (op queryOp) apply() {
	switch op.kind {
	case queryTimestamp:
		op.heap.store(op.index, op.heap.dev.timestamp())
	case queryZero:
		op.heap.store(op.index, 0)
	case queryResolve:
		if err := op.heap.flush(op.index, op.count); err != nil {
			slogger().Warn("rhi: query resolve failed", "heap", op.heap.label, "err", err)
		}
	}
}
