// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package dx12 registers the Direct3D 12 backend.
//
// Bind tables are laid out as root-signature descriptor tables, one root
// parameter per element. Barriers are expressed as D3D12_RESOURCE_BARRIER
// records. Native execution goes through the hal dx12 backend, which only
// builds on Windows; elsewhere the backend still registers and can run
// with rhi.ExecutionNoop.
//
// To use it, import the package for its side effect:
//
//	import _ "github.com/gogpu/rhi/backend/dx12"
package dx12

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/binding"
	"github.com/gogpu/rhi/internal/driver"
	"github.com/gogpu/rhi/internal/sbt"
)

// DescriptorSize is the CBV/SRV/UAV descriptor increment reported by
// current D3D12 drivers.
const DescriptorSize = 32

func init() {
	rhi.RegisterBackend(rhi.BackendDX12, New)
}

// New creates a DX12 instance. It is the factory registered with
// rhi.RegisterBackend.
func New(cfg rhi.Config) (rhi.Instance, error) {
	return driver.NewInstance(cfg, Native{}), nil
}

// Native implements driver.Native for Direct3D 12.
type Native struct{}

// Backend implements driver.Native.
func (Native) Backend() rhi.Backend { return rhi.BackendDX12 }

// Variant implements driver.Native.
func (Native) Variant() gputypes.Backend { return gputypes.BackendDX12 }

// BindingModel implements driver.Native.
func (Native) BindingModel(gputypes.Limits) binding.Model { return RootModel{} }

// TranslateBarrier implements driver.Native.
func (Native) TranslateBarrier(b rhi.Barrier) driver.NativeBarrier { return Translate(b) }

// ShaderTableParams implements driver.Native.
func (Native) ShaderTableParams() sbt.Params { return sbt.DX12Params }

// DescriptorSize implements driver.Native.
func (Native) DescriptorSize() uint32 { return DescriptorSize }

// MaxRootParameters is the number of descriptor tables a root signature
// fits: 64 DWORDs at one DWORD per table.
const MaxRootParameters = 64

// RootModel places every bind table element in its own root parameter.
// The register space is the table index and the register is the slot.
type RootModel struct{}

// Place implements binding.Model.
func (RootModel) Place(table uint32, _ int, elem rhi.BindTableLayoutElement, index uint32) binding.Param {
	return binding.Param{Index: index, Group: table, Binding: elem.Slot}
}

// Limits implements binding.Model. Unbounded descriptor ranges must close
// their table.
func (RootModel) Limits() binding.Limits {
	return binding.Limits{MaxParams: MaxRootParameters, BindlessTail: true}
}
