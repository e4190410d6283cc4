// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/cache"
)

// samplerEntry is one cached hal sampler shared by every rhi.Sampler
// created from an equal descriptor. It is destroyed once it has been
// evicted and its last user released it.
type samplerEntry struct {
	dev *Device
	hal hal.Sampler

	mu        sync.Mutex
	refs      int
	evicted   bool
	destroyed bool
}

func (e *samplerEntry) acquire() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return false
	}
	e.refs++
	return true
}

func (e *samplerEntry) release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refs--
	if e.refs <= 0 && e.evicted {
		e.destroyLocked()
	}
}

func (e *samplerEntry) evict() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.evicted = true
	if e.refs <= 0 {
		e.destroyLocked()
	}
}

func (e *samplerEntry) destroyLocked() {
	if e.destroyed {
		return
	}
	e.destroyed = true
	e.dev.hal.DestroySampler(e.hal)
}

// hashSampler hashes every field of a sampler key.
func hashSampler(d rhi.SamplerDescriptor) uint64 {
	var b [48]byte
	buf := b[:0]
	buf = binary.LittleEndian.AppendUint32(buf, uint32(d.AddressU))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(d.AddressV))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(d.AddressW))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(d.MagFilter))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(d.MinFilter))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(d.MipmapFilter))
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(d.LodMinClamp))
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(d.LodMaxClamp))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(d.Compare))
	buf = binary.LittleEndian.AppendUint16(buf, d.Anisotropy)
	return cache.HashBytes(buf)
}

// Sampler implements rhi.Sampler.
type Sampler struct {
	entry    *samplerEntry
	label    string
	released atomic.Bool
}

// CreateSampler implements rhi.Device. Equal descriptors, ignoring the
// label, share one hal sampler.
func (d *Device) CreateSampler(desc *rhi.SamplerDescriptor) (rhi.Sampler, error) {
	if desc == nil {
		return nil, fmt.Errorf("%w: nil sampler descriptor", rhi.ErrInvalidDescriptor)
	}
	key := *desc
	key.Label = ""
	if key.LodMaxClamp == 0 {
		key.LodMaxClamp = 32
	}
	if key.Anisotropy == 0 {
		key.Anisotropy = 1
	}
	label := d.label("sampler", desc.Label)

	for {
		e, hit, err := d.samplers.GetOrCreate(key, func() (*samplerEntry, error) {
			hs, err := d.hal.CreateSampler(&hal.SamplerDescriptor{
				Label:        label,
				AddressModeU: key.AddressU,
				AddressModeV: key.AddressV,
				AddressModeW: key.AddressW,
				MagFilter:    key.MagFilter,
				MinFilter:    key.MinFilter,
				MipmapFilter: key.MipmapFilter,
				LodMinClamp:  key.LodMinClamp,
				LodMaxClamp:  key.LodMaxClamp,
				Compare:      key.Compare,
				Anisotropy:   key.Anisotropy,
			})
			if err != nil {
				return nil, err
			}
			return &samplerEntry{dev: d, hal: hs}, nil
		})
		if err != nil {
			return nil, fmt.Errorf("create sampler %q: %w", label, err)
		}
		if e.acquire() {
			if hit {
				slogger().Debug("rhi: sampler cache hit", "label", label)
			}
			return &Sampler{entry: e, label: label}, nil
		}
		// Evicted and destroyed between lookup and acquire; the cache no
		// longer holds it.
	}
}

// Label implements rhi.Resource.
func (s *Sampler) Label() string { return s.label }

// Native implements rhi.BindElement.
func (s *Sampler) Native() rhi.Handle { return rhi.Handle(s.entry.hal.NativeHandle()) }

// Destroy implements rhi.Resource. The hal sampler outlives this handle
// while the cache holds it.
func (s *Sampler) Destroy() {
	if s.released.CompareAndSwap(false, true) {
		s.entry.release()
	}
}
