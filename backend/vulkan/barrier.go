// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/gogpu/rhi"
)

// Masks used by the translation. The raytracing and shading rate values
// belong to extensions the bindings do not define.
const (
	accessAccelRead       = vk.AccessFlags(0x00200000)
	accessAccelWrite      = vk.AccessFlags(0x00400000)
	accessShadingRateRead = vk.AccessFlags(0x00800000)
	stageRaytracing       = vk.PipelineStageFlags(0x00200000)
	stageAccelBuild       = vk.PipelineStageFlags(0x02000000)
	layoutShadingRate     = vk.ImageLayout(1000164003)
	stageAllCommands      = vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)
	accessShaderReadWrite = vk.AccessFlags(vk.AccessShaderReadBit | vk.AccessShaderWriteBit)
	accessColorReadWrite  = vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit)
	accessDepthReadWrite  = vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit)
	accessMemoryWrite     = vk.AccessFlags(vk.AccessMemoryWriteBit)
	accessMemoryReadWrite = vk.AccessFlags(vk.AccessMemoryReadBit | vk.AccessMemoryWriteBit)
)

// Barrier is one translated pipeline barrier. Exactly one of Memory,
// Buffer and Image is set; Resource is the handle the buffer or image
// barrier applies to.
type Barrier struct {
	SrcStage vk.PipelineStageFlags
	DstStage vk.PipelineStageFlags
	Memory   *vk.MemoryBarrier
	Buffer   *vk.BufferMemoryBarrier
	Image    *vk.ImageMemoryBarrier
	Resource rhi.Handle
}

// States implements driver.NativeBarrier. Memory barriers only order
// aliased memory and carry no state.
func (b Barrier) States() (before, after rhi.ResourceState) {
	switch {
	case b.Buffer != nil:
		return decodeAccess(b.Buffer.SrcAccessMask), decodeAccess(b.Buffer.DstAccessMask)
	case b.Image != nil:
		return decodeImage(b.Image.OldLayout, b.Image.SrcAccessMask), decodeImage(b.Image.NewLayout, b.Image.DstAccessMask)
	default:
		return rhi.StateCommon, rhi.StateCommon
	}
}

var accessMap = []struct {
	state  rhi.ResourceState
	access vk.AccessFlags
}{
	{rhi.StateVertexBuffer, vk.AccessFlags(vk.AccessVertexAttributeReadBit)},
	{rhi.StateConstantBuffer, vk.AccessFlags(vk.AccessUniformReadBit)},
	{rhi.StateIndexBuffer, vk.AccessFlags(vk.AccessIndexReadBit)},
	{rhi.StateRenderTarget, accessColorReadWrite},
	{rhi.StateUnorderedAccess, accessShaderReadWrite},
	{rhi.StateDepthWrite, accessDepthReadWrite},
	{rhi.StateDepthRead, vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit)},
	{rhi.StateNonPixelShaderResource, vk.AccessFlags(vk.AccessShaderReadBit)},
	{rhi.StatePixelShaderResource, vk.AccessFlags(vk.AccessShaderReadBit)},
	{rhi.StateIndirectArgument, vk.AccessFlags(vk.AccessIndirectCommandReadBit)},
	{rhi.StateCopyDst, vk.AccessFlags(vk.AccessTransferWriteBit)},
	{rhi.StateCopySrc, vk.AccessFlags(vk.AccessTransferReadBit)},
	{rhi.StateResolveDst, vk.AccessFlags(vk.AccessTransferWriteBit)},
	{rhi.StateResolveSrc, vk.AccessFlags(vk.AccessTransferReadBit)},
	{rhi.StateAccelStruct, accessAccelRead | accessAccelWrite},
	{rhi.StateShadingRate, accessShadingRateRead},
}

// Access returns the access mask of a resource in state s.
func Access(s rhi.ResourceState) vk.AccessFlags {
	var a vk.AccessFlags
	for _, m := range accessMap {
		if s&m.state != 0 {
			a |= m.access
		}
	}
	return a
}

// decodeAccess maps an access mask back to states. Write access takes
// precedence over the read access of the same unit, and shader reads
// decode to both shader resource states.
func decodeAccess(a vk.AccessFlags) rhi.ResourceState {
	var s rhi.ResourceState
	has := func(f vk.AccessFlags) bool { return a&f == f }
	if has(vk.AccessFlags(vk.AccessVertexAttributeReadBit)) {
		s |= rhi.StateVertexBuffer
	}
	if has(vk.AccessFlags(vk.AccessUniformReadBit)) {
		s |= rhi.StateConstantBuffer
	}
	if has(vk.AccessFlags(vk.AccessIndexReadBit)) {
		s |= rhi.StateIndexBuffer
	}
	if has(vk.AccessFlags(vk.AccessIndirectCommandReadBit)) {
		s |= rhi.StateIndirectArgument
	}
	switch {
	case has(vk.AccessFlags(vk.AccessShaderWriteBit)):
		s |= rhi.StateUnorderedAccess
	case has(vk.AccessFlags(vk.AccessShaderReadBit)):
		s |= rhi.StateShaderResource
	}
	if has(vk.AccessFlags(vk.AccessColorAttachmentWriteBit)) {
		s |= rhi.StateRenderTarget
	}
	switch {
	case has(vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit)):
		s |= rhi.StateDepthWrite
	case has(vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit)):
		s |= rhi.StateDepthRead
	}
	if has(vk.AccessFlags(vk.AccessTransferWriteBit)) {
		s |= rhi.StateCopyDst
	}
	if has(vk.AccessFlags(vk.AccessTransferReadBit)) {
		s |= rhi.StateCopySrc
	}
	if a&(accessAccelRead|accessAccelWrite) != 0 {
		s |= rhi.StateAccelStruct
	}
	if has(accessShadingRateRead) {
		s |= rhi.StateShadingRate
	}
	return s
}

// Layout returns the image layout of a texture in state s. Common is
// Undefined as a source, since its contents may be discarded, and General
// as a destination. States sharing no optimal layout use General.
func Layout(s rhi.ResourceState, source bool) vk.ImageLayout {
	only := func(mask rhi.ResourceState) bool { return s&^mask == 0 }
	switch {
	case s == rhi.StateCommon && source:
		return vk.ImageLayoutUndefined
	case s == rhi.StateCommon:
		return vk.ImageLayoutGeneral
	case s == rhi.StatePresent:
		return vk.ImageLayoutPresentSrc
	case s == rhi.StateRenderTarget:
		return vk.ImageLayoutColorAttachmentOptimal
	case s&rhi.StateDepthWrite != 0 && only(rhi.StateDepthWrite|rhi.StateDepthRead):
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case s&rhi.StateDepthRead != 0 && only(rhi.StateDepthRead|rhi.StateShaderResource):
		return vk.ImageLayoutDepthStencilReadOnlyOptimal
	case only(rhi.StateShaderResource):
		return vk.ImageLayoutShaderReadOnlyOptimal
	case only(rhi.StateCopyDst | rhi.StateResolveDst):
		return vk.ImageLayoutTransferDstOptimal
	case only(rhi.StateCopySrc | rhi.StateResolveSrc):
		return vk.ImageLayoutTransferSrcOptimal
	case s == rhi.StateShadingRate:
		return layoutShadingRate
	default:
		return vk.ImageLayoutGeneral
	}
}

func decodeImage(l vk.ImageLayout, a vk.AccessFlags) rhi.ResourceState {
	switch l {
	case vk.ImageLayoutUndefined:
		return rhi.StateCommon
	case vk.ImageLayoutPresentSrc:
		return rhi.StatePresent
	case vk.ImageLayoutColorAttachmentOptimal:
		return rhi.StateRenderTarget
	case vk.ImageLayoutDepthStencilAttachmentOptimal:
		return rhi.StateDepthWrite
	case vk.ImageLayoutDepthStencilReadOnlyOptimal:
		return rhi.StateDepthRead | decodeAccess(a)&rhi.StateShaderResource
	case vk.ImageLayoutShaderReadOnlyOptimal:
		return rhi.StateShaderResource
	case vk.ImageLayoutTransferDstOptimal:
		return rhi.StateCopyDst
	case vk.ImageLayoutTransferSrcOptimal:
		return rhi.StateCopySrc
	case layoutShadingRate:
		return rhi.StateShadingRate
	default:
		return decodeAccess(a)
	}
}

// Stages returns the pipeline stage mask of p. An empty mask waits on,
// and blocks, all commands.
func Stages(p rhi.PipelineStage) vk.PipelineStageFlags {
	if p == rhi.PipelineStageNone {
		return stageAllCommands
	}
	var f vk.PipelineStageFlags
	for _, m := range stageMap {
		if p&m.stage != 0 {
			f |= m.flags
		}
	}
	return f
}

var stageMap = []struct {
	stage rhi.PipelineStage
	flags vk.PipelineStageFlags
}{
	{rhi.PipelineStageTop, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)},
	{rhi.PipelineStageDrawIndirect, vk.PipelineStageFlags(vk.PipelineStageDrawIndirectBit)},
	{rhi.PipelineStageVertexInput, vk.PipelineStageFlags(vk.PipelineStageVertexInputBit)},
	{rhi.PipelineStageVertexShader, vk.PipelineStageFlags(vk.PipelineStageVertexShaderBit)},
	{rhi.PipelineStageFragmentShader, vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)},
	{rhi.PipelineStageEarlyDepth, vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit)},
	{rhi.PipelineStageLateDepth, vk.PipelineStageFlags(vk.PipelineStageLateFragmentTestsBit)},
	{rhi.PipelineStageColorOutput, vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)},
	{rhi.PipelineStageComputeShader, vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit)},
	{rhi.PipelineStageTransfer, vk.PipelineStageFlags(vk.PipelineStageTransferBit)},
	{rhi.PipelineStageRaytracing, stageRaytracing},
	{rhi.PipelineStageAccelStructBuild, stageAccelBuild},
	{rhi.PipelineStageBottom, vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)},
	{rhi.PipelineStageHost, vk.PipelineStageFlags(vk.PipelineStageHostBit)},
	{rhi.PipelineStageAllGraphics, vk.PipelineStageFlags(vk.PipelineStageAllGraphicsBit)},
	{rhi.PipelineStageAllCommands, stageAllCommands},
}

const (
	textureOnly = rhi.StateRenderTarget | rhi.StateDepthWrite | rhi.StateDepthRead |
		rhi.StateResolveDst | rhi.StateResolveSrc | rhi.StatePresent | rhi.StateShadingRate
	bufferOnly = rhi.StateVertexBuffer | rhi.StateConstantBuffer | rhi.StateIndexBuffer |
		rhi.StateIndirectArgument | rhi.StateAccelStruct
)

// families returns the source and destination queue family indices.
func (n Native) families(b rhi.Barrier) (src, dst uint32) {
	if !b.IsQueueTransfer() {
		return vk.QueueFamilyIgnored, vk.QueueFamilyIgnored
	}
	return n.family(b.Before().Queue), n.family(b.After().Queue)
}

func (n Native) family(q rhi.QueueType) uint32 {
	if int(q) >= len(n.Families) {
		panic(fmt.Sprintf("rhi: vulkan: no queue family for %s", q))
	}
	return n.Families[q]
}

// Translate converts b to a Vulkan pipeline barrier. Transitions between
// queue types become queue family ownership transfers.
func (n Native) Translate(b rhi.Barrier) Barrier {
	before, after := b.Before(), b.After()
	out := Barrier{SrcStage: Stages(before.Stage), DstStage: Stages(after.Stage)}

	if b.Kind == rhi.BarrierAliasing {
		out.Memory = &vk.MemoryBarrier{
			SType:         vk.StructureTypeMemoryBarrier,
			SrcAccessMask: accessMemoryWrite,
			DstAccessMask: accessMemoryReadWrite,
		}
		return out
	}

	srcAccess, dstAccess := Access(before.State), Access(after.State)
	switch b.Kind {
	case rhi.BarrierSyncUAV:
		srcAccess = vk.AccessFlags(vk.AccessShaderWriteBit)
		dstAccess = accessShaderReadWrite
	case rhi.BarrierTransition:
	default:
		panic(fmt.Sprintf("rhi: vulkan: unknown barrier kind %s", b.Kind))
	}
	srcFamily, dstFamily := n.families(b)

	switch b.Resource {
	case rhi.ResourceBuffer:
		if (before.State|after.State)&textureOnly != 0 {
			panic(fmt.Sprintf("rhi: vulkan: buffer cannot move %s -> %s", before.State, after.State))
		}
		if b.Buffer.Buffer != nil {
			out.Resource = b.Buffer.Buffer.Native()
		}
		out.Buffer = &vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       srcAccess,
			DstAccessMask:       dstAccess,
			SrcQueueFamilyIndex: srcFamily,
			DstQueueFamilyIndex: dstFamily,
			Size:                vk.DeviceSize(vk.WholeSize),
		}
	case rhi.ResourceTexture:
		if (before.State|after.State)&bufferOnly != 0 {
			panic(fmt.Sprintf("rhi: vulkan: texture cannot move %s -> %s", before.State, after.State))
		}
		if b.Texture.Texture != nil {
			out.Resource = b.Texture.Texture.Native()
		}
		oldLayout, newLayout := Layout(before.State, true), Layout(after.State, false)
		if b.Kind == rhi.BarrierSyncUAV {
			oldLayout, newLayout = vk.ImageLayoutGeneral, vk.ImageLayoutGeneral
		}
		out.Image = &vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       srcAccess,
			DstAccessMask:       dstAccess,
			OldLayout:           oldLayout,
			NewLayout:           newLayout,
			SrcQueueFamilyIndex: srcFamily,
			DstQueueFamilyIndex: dstFamily,
			SubresourceRange:    subresourceRange(b.Texture.Range, before.State|after.State),
		}
	default:
		panic(fmt.Sprintf("rhi: vulkan: barrier on resource kind %s", b.Resource))
	}
	return out
}

func subresourceRange(r rhi.TextureRange, states rhi.ResourceState) vk.ImageSubresourceRange {
	aspect := vk.ImageAspectFlags(vk.ImageAspectColorBit)
	if states&(rhi.StateDepthWrite|rhi.StateDepthRead) != 0 {
		aspect = vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	levels, layers := r.MipCount, r.LayerCount
	if levels == 0 {
		levels = vk.RemainingMipLevels
	}
	if layers == 0 {
		layers = vk.RemainingArrayLayers
	}
	return vk.ImageSubresourceRange{
		AspectMask:     aspect,
		BaseMipLevel:   r.BaseMip,
		LevelCount:     levels,
		BaseArrayLayer: r.BaseLayer,
		LayerCount:     layers,
	}
}
