// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package driver implements every rhi interface on top of the
// github.com/gogpu/wgpu/hal hardware abstraction layer.
//
// The implementation is shared by all backends. What differs between DX12,
// Metal and Vulkan is captured by a Native: the binding model that places
// bind table elements into native parameters, the native form of resource
// barriers, and the raytracing table constants. Backend packages construct
// an Instance with their Native and register it with rhi.RegisterBackend.
//
// Execution goes through the hal backend named by Native.Variant, or
// through the hal noop backend when the configuration selects
// rhi.ExecutionNoop.
package driver

import (
	"log/slog"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/binding"
	"github.com/gogpu/rhi/internal/sbt"

	// Registers the noop hal backend used by rhi.ExecutionNoop.
	_ "github.com/gogpu/wgpu/hal/noop"
)

// Native is the backend-specific half of the driver.
type Native interface {
	// Backend is the RHI backend the native layer translates to.
	Backend() rhi.Backend

	// Variant is the hal backend that executes natively.
	Variant() gputypes.Backend

	// BindingModel returns the binding model for a device with limits.
	BindingModel(limits gputypes.Limits) binding.Model

	// TranslateBarrier converts a barrier to its native form. It panics
	// on combinations the native API cannot express.
	TranslateBarrier(b rhi.Barrier) NativeBarrier

	// ShaderTableParams are the shader table constants of the backend.
	ShaderTableParams() sbt.Params

	// DescriptorSize is the byte stride of one descriptor slot.
	DescriptorSize() uint32
}

// NativeBarrier is a barrier in its native form.
type NativeBarrier interface {
	// States decodes the native barrier back to the resource states it
	// moves between.
	States() (before, after rhi.ResourceState)
}

// slogger returns the logger shared with package rhi.
func slogger() *slog.Logger {
	return rhi.Logger()
}

var (
	_ rhi.Instance           = (*Instance)(nil)
	_ rhi.Device             = (*Device)(nil)
	_ rhi.Queue              = (*Queue)(nil)
	_ rhi.Buffer             = (*Buffer)(nil)
	_ rhi.BufferView         = (*BufferView)(nil)
	_ rhi.Texture            = (*Texture)(nil)
	_ rhi.TextureView        = (*TextureView)(nil)
	_ rhi.Sampler            = (*Sampler)(nil)
	_ rhi.Function           = (*Function)(nil)
	_ rhi.BindTableLayout    = (*BindTableLayout)(nil)
	_ rhi.BindTable          = (*BindTable)(nil)
	_ rhi.PipelineLayout     = (*PipelineLayout)(nil)
	_ rhi.ComputePipeline    = (*ComputePipeline)(nil)
	_ rhi.RasterPipeline     = (*RasterPipeline)(nil)
	_ rhi.RaytracingPipeline = (*RaytracingPipeline)(nil)
	_ rhi.BLAS               = (*BLAS)(nil)
	_ rhi.TLAS               = (*TLAS)(nil)
	_ rhi.ShaderTable        = (*ShaderTable)(nil)
	_ rhi.QueryHeap          = (*QueryHeap)(nil)
	_ rhi.Fence              = (*Fence)(nil)
	_ rhi.Semaphore          = (*Semaphore)(nil)
	_ rhi.CommandBuffer      = (*CommandBuffer)(nil)
	_ rhi.TransferEncoder    = (*TransferEncoder)(nil)
	_ rhi.ComputeEncoder     = (*ComputeEncoder)(nil)
	_ rhi.RasterEncoder      = (*RasterEncoder)(nil)
	_ rhi.RaytracingEncoder  = (*RaytracingEncoder)(nil)
)
