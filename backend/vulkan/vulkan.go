// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package vulkan registers the Vulkan backend.
//
// Each bind table is a descriptor set at the table index and each
// element is bound at its slot. Barriers are translated to the Vulkan
// synchronization structures of github.com/goki/vulkan.
//
//	import _ "github.com/gogpu/rhi/backend/vulkan"
package vulkan

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/binding"
	"github.com/gogpu/rhi/internal/driver"
	"github.com/gogpu/rhi/internal/sbt"
)

// ShaderTableParams are the shader group handle size, handle alignment
// and base alignment most raytracing drivers report.
var ShaderTableParams = sbt.Params{IdentifierSize: 32, RecordAlignment: 32, TableAlignment: 64}

// DescriptorSize is the descriptor buffer stride used for arena
// accounting.
const DescriptorSize = 16

func init() {
	rhi.RegisterBackend(rhi.BackendVulkan, New)
}

// New creates a Vulkan instance with the default queue families.
func New(cfg rhi.Config) (rhi.Instance, error) {
	return driver.NewInstance(cfg, Native{Families: DefaultFamilies}), nil
}

// DefaultFamilies are the queue family indices of graphics, compute and
// transfer queues on devices exposing one family per queue type.
var DefaultFamilies = [3]uint32{0, 1, 2}

// Native implements driver.Native for Vulkan.
type Native struct {
	// Families maps rhi.QueueType to a queue family index for ownership
	// transfers.
	Families [3]uint32
}

// Backend implements driver.Native.
func (Native) Backend() rhi.Backend { return rhi.BackendVulkan }

// Variant implements driver.Native.
func (Native) Variant() gputypes.Backend { return gputypes.BackendVulkan }

// BindingModel implements driver.Native.
func (Native) BindingModel(limits gputypes.Limits) binding.Model {
	return SetModel{MaxSets: limits.MaxBindGroups, MaxBindings: limits.MaxBindingsPerBindGroup}
}

// TranslateBarrier implements driver.Native.
func (n Native) TranslateBarrier(b rhi.Barrier) driver.NativeBarrier { return n.Translate(b) }

// ShaderTableParams implements driver.Native.
func (Native) ShaderTableParams() sbt.Params { return ShaderTableParams }

// DescriptorSize implements driver.Native.
func (Native) DescriptorSize() uint32 { return DescriptorSize }

// SetModel binds each table as descriptor set tableIndex with elements at
// binding = slot.
type SetModel struct {
	MaxSets     uint32
	MaxBindings uint32
}

// Place implements binding.Model.
func (SetModel) Place(table uint32, _ int, elem rhi.BindTableLayoutElement, index uint32) binding.Param {
	return binding.Param{Index: index, Group: table, Binding: elem.Slot}
}

// Limits implements binding.Model. A variable-count binding must be the
// last binding of its set.
func (m SetModel) Limits() binding.Limits {
	return binding.Limits{MaxTables: m.MaxSets, MaxElementsPerTable: m.MaxBindings, BindlessTail: true}
}
