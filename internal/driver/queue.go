// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi"
)

// Queue implements rhi.Queue. Every queue type of a device submits to the
// single hal queue in FIFO order.
type Queue struct {
	dev *Device
	typ rhi.QueueType
}

// Type implements rhi.Queue.
func (q *Queue) Type() rhi.QueueType { return q.typ }

// accepts reports whether command buffers recorded for t may run on q.
// Graphics queues run everything, compute queues run compute and
// transfer work, transfer queues run transfer work only.
func (q *Queue) accepts(t rhi.QueueType) bool {
	switch q.typ {
	case rhi.QueueGraphics:
		return true
	case rhi.QueueCompute:
		return t == rhi.QueueCompute || t == rhi.QueueTransfer
	default:
		return t == rhi.QueueTransfer
	}
}

// Submit implements rhi.Queue.
func (q *Queue) Submit(cmd rhi.CommandBuffer, signalFence rhi.Fence, waitSemaphore, signalSemaphore rhi.Semaphore) error {
	b := rhi.Submission{SignalFence: signalFence}
	if cmd != nil {
		b.CommandBuffers = []rhi.CommandBuffer{cmd}
	}
	if waitSemaphore != nil {
		b.WaitSemaphores = []rhi.Semaphore{waitSemaphore}
	}
	if signalSemaphore != nil {
		b.SignalSemaphores = []rhi.Semaphore{signalSemaphore}
	}
	return q.submit(b)
}

// Submits implements rhi.Queue. Batches are submitted in order; the first
// failing batch stops the call.
func (q *Queue) Submits(batches []rhi.Submission) error {
	for i, b := range batches {
		if err := q.submit(b); err != nil {
			return fmt.Errorf("submission %d: %w", i, err)
		}
	}
	return nil
}

func (q *Queue) submit(b rhi.Submission) error {
	d := q.dev
	if d.destroyed.Load() {
		return rhi.ErrDeviceDestroyed
	}

	cmds := make([]*CommandBuffer, len(b.CommandBuffers))
	halCmds := make([]hal.CommandBuffer, 0, len(b.CommandBuffers))
	for i, c := range b.CommandBuffers {
		cb, err := asCommandBuffer(c)
		if err != nil {
			return err
		}
		if !q.accepts(cb.queue) {
			return fmt.Errorf("%w: %s command buffer %q on %s queue",
				rhi.ErrInvalidDescriptor, cb.queue, cb.label, q.typ)
		}
		if err := cb.machine.CanSubmit(); err != nil {
			return fmt.Errorf("submit %q: %w", cb.label, err)
		}
		cmds[i] = cb
		halCmds = append(halCmds, cb.recorded)
	}

	var fence *Fence
	if b.SignalFence != nil {
		f, err := asFence(b.SignalFence)
		if err != nil {
			return err
		}
		fence = f
	}
	signals := make([]*Semaphore, len(b.SignalSemaphores))
	for i, s := range b.SignalSemaphores {
		sem, err := asSemaphore(s)
		if err != nil {
			return err
		}
		signals[i] = sem
	}

	waits := make([]*Semaphore, 0, len(b.WaitSemaphores))
	restore := func() {
		for _, s := range waits {
			s.pending.Store(true)
		}
	}
	for _, s := range b.WaitSemaphores {
		sem, err := asSemaphore(s)
		if err != nil {
			restore()
			return err
		}
		if !sem.pending.CompareAndSwap(true, false) {
			restore()
			return fmt.Errorf("wait on %q: %w", sem.label, rhi.ErrSemaphoreNotSignaled)
		}
		waits = append(waits, sem)
	}

	d.submitMu.Lock()
	index, err := d.queue.Submit(halCmds)
	d.submitMu.Unlock()
	if err != nil {
		restore()
		return fmt.Errorf("submit: %w", err)
	}

	for _, cb := range cmds {
		cb.submitted(index)
	}
	if fence != nil {
		fence.target.Store(index)
	}
	for _, s := range signals {
		if s.pending.Swap(true) {
			slogger().Warn("rhi: semaphore signaled twice without a wait", "semaphore", s.label)
		}
	}
	slogger().Debug("rhi: submitted", "queue", q.typ, "index", index, "buffers", len(cmds))
	return nil
}

// WaitIdle implements rhi.Queue.
func (q *Queue) WaitIdle() error { return q.dev.WaitIdle() }

// TimestampPeriod implements rhi.Queue.
func (q *Queue) TimestampPeriod() float32 { return q.dev.queue.GetTimestampPeriod() }

// UpdateTileMappings implements rhi.Queue.
func (q *Queue) UpdateTileMappings(rhi.Texture, []rhi.TileRegion) error {
	return fmt.Errorf("update tile mappings: %w", rhi.ErrNotImplemented)
}

// Fence implements rhi.Fence over hal submission indices. A fence armed
// by a submission is signaled once the queue reports that submission
// complete.
type Fence struct {
	dev    *Device
	label  string
	target atomic.Uint64
}

// CreateFence implements rhi.Device.
func (d *Device) CreateFence() (rhi.Fence, error) {
	return &Fence{dev: d, label: d.label("fence", "")}, nil
}

// Label implements rhi.Resource.
func (f *Fence) Label() string { return f.label }

// Signaled implements rhi.Fence.
func (f *Fence) Signaled() bool {
	t := f.target.Load()
	return t != 0 && f.dev.completed() >= t
}

// Wait implements rhi.Fence. It polls queue completion every
// Config.FencePollInterval until the fence is signaled or ctx is done.
func (f *Fence) Wait(ctx context.Context) error {
	t := f.target.Load()
	if t == 0 {
		return fmt.Errorf("wait on %q: %w", f.label, rhi.ErrFenceNotSubmitted)
	}
	if f.dev.completed() >= t {
		return nil
	}
	ticker := time.NewTicker(f.dev.cfg.FencePollInterval.Duration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if f.dev.completed() >= t {
				return nil
			}
		}
	}
}

// Reset implements rhi.Fence.
func (f *Fence) Reset() { f.target.Store(0) }

// Destroy implements rhi.Resource.
func (f *Fence) Destroy() {}

func asFence(f rhi.Fence) (*Fence, error) {
	fence, ok := f.(*Fence)
	if !ok || fence == nil {
		return nil, fmt.Errorf("%w: fence %T not created by this backend", rhi.ErrInvalidDescriptor, f)
	}
	return fence, nil
}

// Semaphore implements rhi.Semaphore as a binary signal. Ordering between
// the signaling and waiting submissions is given by the shared hal queue.
type Semaphore struct {
	label   string
	pending atomic.Bool
}

// CreateSemaphore implements rhi.Device.
func (d *Device) CreateSemaphore() (rhi.Semaphore, error) {
	return &Semaphore{label: d.label("semaphore", "")}, nil
}

// Label implements rhi.Resource.
func (s *Semaphore) Label() string { return s.label }

// Destroy implements rhi.Resource.
func (s *Semaphore) Destroy() {}

func asSemaphore(s rhi.Semaphore) (*Semaphore, error) {
	sem, ok := s.(*Semaphore)
	if !ok || sem == nil {
		return nil, fmt.Errorf("%w: semaphore %T not created by this backend", rhi.ErrInvalidDescriptor, s)
	}
	return sem, nil
}
