// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package raytrace declares the optional raytracing extension of a hal
// device and command encoder.
//
// The hal interfaces carry no raytracing entry points. A hal device that
// supports hardware raytracing also implements Device, and the command
// encoders it creates implement CommandEncoder. The driver discovers both
// by type assertion, the same way optional hal capabilities such as
// hal.MaxStagingBufferSizer are discovered.
package raytrace

import (
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/accel"
)

// Device is implemented by hal devices with raytracing support.
type Device interface {
	// AccelStructPrebuildInfo returns the memory a build of in needs.
	AccelStructPrebuildInfo(in *accel.Inputs) (accel.PrebuildInfo, error)

	// BufferDeviceAddress returns the device address of a buffer created
	// by this device.
	BufferDeviceAddress(buf hal.Buffer) uint64

	// ShaderIdentifierSize is the byte size of one shader identifier.
	ShaderIdentifierSize() uint32

	CreateRaytracingPipeline(desc *PipelineDescriptor) (Pipeline, error)
	DestroyRaytracingPipeline(p Pipeline)
}

// CommandEncoder is implemented by hal command encoders of devices that
// implement Device.
type CommandEncoder interface {
	BuildAccelStruct(desc *accel.BuildDescriptor) error
	SetRaytracingPipeline(p Pipeline)
	SetRaytracingBindGroup(index uint32, group hal.BindGroup)
	// SetDescriptorHeaps binds the shader-visible resource and sampler
	// descriptor arenas, given by the address of their first slot, for
	// the rest of the recording.
	SetDescriptorHeaps(resource, sampler uint64)
	// SetDescriptorTable binds the descriptor table starting at address
	// to a root parameter.
	SetDescriptorTable(param uint32, address uint64)
	// SetAccelStruct binds an acceleration structure address directly to
	// a root parameter.
	SetAccelStruct(param uint32, address uint64)
	DispatchRays(desc *DispatchDescriptor)
}

// Pipeline is a compiled raytracing state object.
type Pipeline interface {
	hal.Resource
	ShaderIdentifier(name string) ([]byte, bool)
}

// Function is one shader library entry of a raytracing pipeline.
type Function struct {
	Type      rhi.FunctionType
	EntryName string
	ByteCode  []byte
}

// HitGroup names the functions of one hit group.
type HitGroup struct {
	Name         string
	Procedural   bool
	ClosestHit   string
	AnyHit       string
	Intersection string
}

// LocalLayout binds a local pipeline layout to an export.
type LocalLayout struct {
	Export     string
	Layout     hal.PipelineLayout
	ParamCount uint32
}

// PipelineDescriptor describes a raytracing state object.
type PipelineDescriptor struct {
	Label             string
	Layout            hal.PipelineLayout
	Functions         []Function
	HitGroups         []HitGroup
	LocalLayouts      []LocalLayout
	MaxPayloadSize    uint32
	MaxAttributeSize  uint32
	MaxRecursionDepth uint32
}

// DispatchDescriptor describes one ray dispatch.
type DispatchDescriptor struct {
	RayGen    rhi.ShaderTableRegion
	Miss      rhi.ShaderTableRegion
	HitGroups rhi.ShaderTableRegion
	Width     uint32
	Height    uint32
	Depth     uint32
}
