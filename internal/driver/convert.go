// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import (
	"encoding/binary"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi"
)

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

// halBufferUsage maps RHI buffer usage and storage to hal usage flags.
func halBufferUsage(u rhi.BufferUsage, s rhi.StorageMode) gputypes.BufferUsage {
	var out gputypes.BufferUsage
	if u&rhi.BufferUsageVertex != 0 {
		out |= gputypes.BufferUsageVertex
	}
	if u&rhi.BufferUsageIndex != 0 {
		out |= gputypes.BufferUsageIndex
	}
	if u&rhi.BufferUsageUniform != 0 {
		out |= gputypes.BufferUsageUniform
	}
	if u&(rhi.BufferUsageStorage|rhi.BufferUsageAccelStruct|rhi.BufferUsageAccelStructInput|rhi.BufferUsageShaderTable) != 0 {
		out |= gputypes.BufferUsageStorage
	}
	if u&rhi.BufferUsageIndirect != 0 {
		out |= gputypes.BufferUsageIndirect
	}
	if u&rhi.BufferUsageCopySrc != 0 {
		out |= gputypes.BufferUsageCopySrc
	}
	if u&rhi.BufferUsageCopyDst != 0 {
		out |= gputypes.BufferUsageCopyDst
	}
	if u&rhi.BufferUsageQueryResolve != 0 {
		out |= gputypes.BufferUsageQueryResolve
	}
	switch s {
	case rhi.StorageUpload:
		out |= gputypes.BufferUsageMapWrite
	case rhi.StorageReadback:
		out |= gputypes.BufferUsageMapRead
	}
	return out
}

// halTextureUsage maps RHI texture usage to hal usage flags.
func halTextureUsage(u rhi.TextureUsage) gputypes.TextureUsage {
	var out gputypes.TextureUsage
	if u&rhi.TextureUsageSampled != 0 {
		out |= gputypes.TextureUsageTextureBinding
	}
	if u&rhi.TextureUsageStorage != 0 {
		out |= gputypes.TextureUsageStorageBinding
	}
	if u&(rhi.TextureUsageRenderTarget|rhi.TextureUsageDepthStencil) != 0 {
		out |= gputypes.TextureUsageRenderAttachment
	}
	if u&rhi.TextureUsageCopySrc != 0 {
		out |= gputypes.TextureUsageCopySrc
	}
	if u&rhi.TextureUsageCopyDst != 0 {
		out |= gputypes.TextureUsageCopyDst
	}
	return out
}

func halTextureDimension(d rhi.TextureDimension) gputypes.TextureDimension {
	switch d {
	case rhi.Texture1D:
		return gputypes.TextureDimension1D
	case rhi.Texture3D:
		return gputypes.TextureDimension3D
	default:
		return gputypes.TextureDimension2D
	}
}

// defaultViewDimension is the view dimension a view of a texture takes
// when the descriptor leaves it unset.
func defaultViewDimension(desc rhi.TextureDescriptor) gputypes.TextureViewDimension {
	switch desc.Dimension {
	case rhi.Texture1D:
		return gputypes.TextureViewDimension1D
	case rhi.Texture3D:
		return gputypes.TextureViewDimension3D
	}
	if desc.DepthOrLayers > 1 {
		return gputypes.TextureViewDimension2DArray
	}
	return gputypes.TextureViewDimension2D
}

func halShaderStages(s rhi.ShaderStage) gputypes.ShaderStages {
	var out gputypes.ShaderStages
	if s&rhi.ShaderStageVertex != 0 {
		out |= gputypes.ShaderStageVertex
	}
	if s&rhi.ShaderStageFragment != 0 {
		out |= gputypes.ShaderStageFragment
	}
	if s&rhi.ShaderStageCompute != 0 {
		out |= gputypes.ShaderStageCompute
	}
	return out
}

// layoutEntry returns the hal bind group layout entry of an element bound
// at binding. Acceleration structures have no hal entry.
func layoutEntry(e rhi.BindTableLayoutElement, binding uint32) (gputypes.BindGroupLayoutEntry, bool) {
	out := gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: halShaderStages(e.Visibility),
	}
	switch e.Type {
	case rhi.BindTypeSampler:
		out.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}
	case rhi.BindTypeUniformBuffer:
		out.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
	case rhi.BindTypeBuffer:
		out.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}
	case rhi.BindTypeStorageBuffer:
		out.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}
	case rhi.BindTypeTexture2D:
		out.Texture = sampled(gputypes.TextureViewDimension2D)
	case rhi.BindTypeTexture2DArray:
		out.Texture = sampled(gputypes.TextureViewDimension2DArray)
	case rhi.BindTypeTextureCube:
		out.Texture = sampled(gputypes.TextureViewDimensionCube)
	case rhi.BindTypeTextureCubeArray:
		out.Texture = sampled(gputypes.TextureViewDimensionCubeArray)
	case rhi.BindTypeTexture3D:
		out.Texture = sampled(gputypes.TextureViewDimension3D)
	case rhi.BindTypeStorageTexture2D:
		out.StorageTexture = storage(gputypes.TextureViewDimension2D)
	case rhi.BindTypeStorageTexture2DArray:
		out.StorageTexture = storage(gputypes.TextureViewDimension2DArray)
	case rhi.BindTypeStorageTexture3D:
		out.StorageTexture = storage(gputypes.TextureViewDimension3D)
	default:
		return out, false
	}
	return out, true
}

func sampled(dim gputypes.TextureViewDimension) *gputypes.TextureBindingLayout {
	return &gputypes.TextureBindingLayout{
		SampleType:    gputypes.TextureSampleTypeFloat,
		ViewDimension: dim,
	}
}

func storage(dim gputypes.TextureViewDimension) *gputypes.StorageTextureBindingLayout {
	return &gputypes.StorageTextureBindingLayout{
		Access:        gputypes.StorageTextureAccessReadWrite,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		ViewDimension: dim,
	}
}

// adapterInfo converts hal adapter metadata to the gpucontext form.
func adapterInfo(info gputypes.AdapterInfo) gpucontext.AdapterInfo {
	t := gpucontext.AdapterTypeUnknown
	switch info.DeviceType {
	case gputypes.DeviceTypeDiscreteGPU:
		t = gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		t = gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU:
		t = gpucontext.AdapterTypeSoftware
	}
	return gpucontext.AdapterInfo{Name: info.Name, Type: t}
}

// spirvWords returns code as SPIR-V words when it starts with the SPIR-V
// magic number.
func spirvWords(code []byte) ([]uint32, bool) {
	if len(code) < 4 || len(code)%4 != 0 {
		return nil, false
	}
	if binary.LittleEndian.Uint32(code) != spirvMagic {
		return nil, false
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	return words, true
}
