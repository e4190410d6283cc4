// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import (
	"errors"
	"testing"

	"github.com/gogpu/rhi"
)

func mustQueryHeap(t *testing.T, d *Device, typ rhi.QueryType, count uint32) *QueryHeap {
	t.Helper()
	h, err := d.CreateQueryHeap(&rhi.QueryHeapDescriptor{Type: typ, Count: count})
	if err != nil {
		t.Fatalf("CreateQueryHeap(%s, %d) error = %v", typ, count, err)
	}
	t.Cleanup(h.Destroy)
	return h.(*QueryHeap)
}

func TestCreateQueryHeap(t *testing.T) {
	d := newTestDevice(t)
	tests := []struct {
		name  string
		count uint32
		want  error
	}{
		{"Zero", 0, rhi.ErrInvalidDescriptor},
		{"One", 1, nil},
		{"Max", d.cfg.Queries.MaxPerHeap, nil},
		{"OverMax", d.cfg.Queries.MaxPerHeap + 1, rhi.ErrLimitExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := d.CreateQueryHeap(&rhi.QueryHeapDescriptor{Type: rhi.QueryTimestamp, Count: tt.count})
			if !errors.Is(err, tt.want) {
				t.Fatalf("CreateQueryHeap(%d) error = %v, want %v", tt.count, err, tt.want)
			}
			if err == nil {
				if got := h.Count(); got != tt.count {
					t.Errorf("Count() = %d, want %d", got, tt.count)
				}
				h.Destroy()
			}
		})
	}
}

func TestHostTimestamps(t *testing.T) {
	d := newTestDevice(t)
	heap := mustQueryHeap(t, d, rhi.QueryTimestamp, 4)
	if heap.set != nil {
		t.Fatal("noop device created a hal query set")
	}

	cb := mustCommandBuffer(t, d, rhi.QueueCompute)
	if err := cb.Begin(); err != nil {
		t.Fatal(err)
	}
	enc, err := cb.BeginComputePass(&rhi.ComputePassDescriptor{
		Timestamps: &rhi.TimestampWrites{Heap: heap, BeginIndex: 0, EndIndex: 1},
	})
	if err != nil {
		t.Fatalf("BeginComputePass() error = %v", err)
	}
	enc.WriteTimestamp(heap, 2)
	if err := cb.EndComputePass(); err != nil {
		t.Fatal(err)
	}
	cb.ResolveQuery(heap, 0, 3)
	submit(t, d, cb)

	got := make([]uint64, 3)
	if !heap.ResolveData(0, 3, got) {
		t.Fatal("ResolveData() = false, want true")
	}
	if got[0] > got[2] || got[2] > got[1] {
		t.Errorf("ResolveData() = %v, want begin <= mid <= end", got)
	}
	if heap.ResolveData(2, 3, got) {
		t.Error("ResolveData() out of range = true, want false")
	}
}

func TestPassTimestampValidation(t *testing.T) {
	d := newTestDevice(t)
	ts := mustQueryHeap(t, d, rhi.QueryTimestamp, 2)
	occ := mustQueryHeap(t, d, rhi.QueryOcclusion, 2)
	tests := []struct {
		name string
		ts   *rhi.TimestampWrites
		want error
	}{
		{"NoHeap", &rhi.TimestampWrites{}, rhi.ErrInvalidDescriptor},
		{"WrongType", &rhi.TimestampWrites{Heap: occ}, rhi.ErrInvalidDescriptor},
		{"OutOfRange", &rhi.TimestampWrites{Heap: ts, EndIndex: 2}, rhi.ErrQueryOutOfRange},
		{"Valid", &rhi.TimestampWrites{Heap: ts, EndIndex: 1}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := mustCommandBuffer(t, d, rhi.QueueGraphics)
			if err := cb.Begin(); err != nil {
				t.Fatal(err)
			}
			_, err := cb.BeginRasterPass(&rhi.RasterPassDescriptor{Timestamps: tt.ts})
			if !errors.Is(err, tt.want) {
				t.Errorf("BeginRasterPass() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestOcclusionQueriesReadZero(t *testing.T) {
	d := newTestDevice(t)
	heap := mustQueryHeap(t, d, rhi.QueryOcclusion, 2)

	// Seed a non-zero value so the zeroing is observable.
	heap.store(1, 42)

	cb := mustCommandBuffer(t, d, rhi.QueueGraphics)
	if err := cb.Begin(); err != nil {
		t.Fatal(err)
	}
	enc, err := cb.BeginRasterPass(nil)
	if err != nil {
		t.Fatal(err)
	}
	enc.BeginQuery(heap, 1)
	mustPanic(t, rhi.ErrInvalidDescriptor, func() { enc.BeginQuery(heap, 0) })
	mustPanic(t, rhi.ErrInvalidDescriptor, func() { enc.EndQuery(heap, 0) })
	enc.Draw(3, 1, 0, 0)
	enc.EndQuery(heap, 1)
	mustPanic(t, rhi.ErrInvalidDescriptor, func() { enc.WriteTimestamp(heap, 0) })
	mustPanic(t, rhi.ErrQueryOutOfRange, func() { enc.BeginQuery(heap, 2) })
	if err := cb.EndRasterPass(); err != nil {
		t.Fatal(err)
	}
	cb.ResolveQuery(heap, 0, 2)
	mustPanic(t, rhi.ErrQueryOutOfRange, func() { cb.ResolveQuery(heap, 1, 2) })
	submit(t, d, cb)

	got := []uint64{7, 7}
	if !heap.ResolveData(0, 2, got) {
		t.Fatal("ResolveData() = false, want true")
	}
	if got[0] != 0 || got[1] != 0 {
		t.Errorf("ResolveData() = %v, want [0 0]", got)
	}
}

func TestHALQuerySetResolveDeferred(t *testing.T) {
	d, fake := newRTDevice(t)
	fake.Timestamps = true
	heap := mustQueryHeap(t, d, rhi.QueryTimestamp, 2)
	if heap.set == nil {
		t.Fatal("CreateQueryHeap() has no hal query set")
	}

	cb := mustCommandBuffer(t, d, rhi.QueueGraphics)
	if err := cb.Begin(); err != nil {
		t.Fatal(err)
	}
	enc, err := cb.BeginRasterPass(&rhi.RasterPassDescriptor{
		Timestamps: &rhi.TimestampWrites{Heap: heap, BeginIndex: 0, EndIndex: 1},
	})
	if err != nil {
		t.Fatalf("BeginRasterPass() error = %v", err)
	}
	if cb.passEnd != nil {
		t.Error("hal-backed pass timestamps recorded a host end op")
	}
	enc.WriteTimestamp(heap, 0)
	cb.ResolveQuery(heap, 0, 2)
	if got := len(cb.resolves); got != 1 {
		t.Errorf("resolves inside pass = %d, want 1", got)
	}
	if err := cb.EndRasterPass(); err != nil {
		t.Fatal(err)
	}
	if got := len(cb.resolves); got != 0 {
		t.Errorf("resolves after pass = %d, want 0", got)
	}
	if got := len(cb.ops); got != 0 {
		t.Errorf("host ops = %d, want 0", got)
	}
	submit(t, d, cb)
}
