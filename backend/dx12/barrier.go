// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package dx12

import (
	"fmt"
	"math/bits"

	"github.com/gogpu/rhi"
)

// ResourceStates mirrors D3D12_RESOURCE_STATES.
type ResourceStates uint32

const (
	StateCommon                  ResourceStates = 0
	StateVertexAndConstantBuffer ResourceStates = 0x1
	StateIndexBuffer             ResourceStates = 0x2
	StateRenderTarget            ResourceStates = 0x4
	StateUnorderedAccess         ResourceStates = 0x8
	StateDepthWrite              ResourceStates = 0x10
	StateDepthRead               ResourceStates = 0x20
	StateNonPixelShaderResource  ResourceStates = 0x40
	StatePixelShaderResource     ResourceStates = 0x80
	StateIndirectArgument        ResourceStates = 0x200
	StateCopyDest                ResourceStates = 0x400
	StateCopySource              ResourceStates = 0x800
	StateResolveDest             ResourceStates = 0x1000
	StateResolveSource           ResourceStates = 0x2000
	StateAccelerationStructure   ResourceStates = 0x400000
	StateShadingRateSource       ResourceStates = 0x1000000
	StatePresent                 ResourceStates = 0

	writeStates = StateRenderTarget | StateUnorderedAccess | StateDepthWrite |
		StateCopyDest | StateResolveDest
)

// BarrierType mirrors D3D12_RESOURCE_BARRIER_TYPE.
type BarrierType uint8

const (
	BarrierTypeTransition BarrierType = iota
	BarrierTypeAliasing
	BarrierTypeUAV
)

func (t BarrierType) String() string {
	switch t {
	case BarrierTypeTransition:
		return "Transition"
	case BarrierTypeAliasing:
		return "Aliasing"
	case BarrierTypeUAV:
		return "UAV"
	default:
		return fmt.Sprintf("BarrierType(%d)", uint8(t))
	}
}

// AllSubresources is D3D12_RESOURCE_BARRIER_ALL_SUBRESOURCES.
const AllSubresources = 0xFFFFFFFF

// ResourceBarrier mirrors D3D12_RESOURCE_BARRIER. Resource is used by
// transition and UAV barriers, ResourceBefore and ResourceAfter by
// aliasing barriers.
type ResourceBarrier struct {
	Type           BarrierType
	Resource       rhi.Handle
	ResourceBefore rhi.Handle
	ResourceAfter  rhi.Handle
	Subresource    uint32
	StateBefore    ResourceStates
	StateAfter     ResourceStates
}

// States implements driver.NativeBarrier. Aliasing barriers carry no
// state change.
func (b ResourceBarrier) States() (before, after rhi.ResourceState) {
	switch b.Type {
	case BarrierTypeUAV:
		return rhi.StateUnorderedAccess, rhi.StateUnorderedAccess
	case BarrierTypeAliasing:
		return rhi.StateCommon, rhi.StateCommon
	default:
		return Decode(b.StateBefore), Decode(b.StateAfter)
	}
}

var stateMap = []struct {
	rhi rhi.ResourceState
	d3d ResourceStates
}{
	{rhi.StateVertexBuffer, StateVertexAndConstantBuffer},
	{rhi.StateConstantBuffer, StateVertexAndConstantBuffer},
	{rhi.StateIndexBuffer, StateIndexBuffer},
	{rhi.StateRenderTarget, StateRenderTarget},
	{rhi.StateUnorderedAccess, StateUnorderedAccess},
	{rhi.StateDepthWrite, StateDepthWrite},
	{rhi.StateDepthRead, StateDepthRead},
	{rhi.StateNonPixelShaderResource, StateNonPixelShaderResource},
	{rhi.StatePixelShaderResource, StatePixelShaderResource},
	{rhi.StateIndirectArgument, StateIndirectArgument},
	{rhi.StateCopyDst, StateCopyDest},
	{rhi.StateCopySrc, StateCopySource},
	{rhi.StateResolveDst, StateResolveDest},
	{rhi.StateResolveSrc, StateResolveSource},
	{rhi.StateAccelStruct, StateAccelerationStructure},
	{rhi.StateShadingRate, StateShadingRateSource},
}

const (
	textureOnly = rhi.StateRenderTarget | rhi.StateDepthWrite | rhi.StateDepthRead |
		rhi.StateResolveDst | rhi.StateResolveSrc | rhi.StatePresent | rhi.StateShadingRate
	bufferOnly = rhi.StateVertexBuffer | rhi.StateConstantBuffer | rhi.StateIndexBuffer |
		rhi.StateIndirectArgument | rhi.StateAccelStruct
)

// Encode converts s to D3D12 states for a resource of kind. It panics on
// states D3D12 rejects: texture states on buffers and the reverse, and a
// write state combined with any other state.
func Encode(s rhi.ResourceState, kind rhi.ResourceKind) ResourceStates {
	switch {
	case kind == rhi.ResourceBuffer && s&textureOnly != 0:
		panic(fmt.Sprintf("rhi: dx12: buffer cannot be in state %s", s))
	case kind == rhi.ResourceTexture && s&bufferOnly != 0:
		panic(fmt.Sprintf("rhi: dx12: texture cannot be in state %s", s))
	}
	var out ResourceStates
	for _, m := range stateMap {
		if s&m.rhi != 0 {
			out |= m.d3d
		}
	}
	if w := out & writeStates; w != 0 && (bits.OnesCount32(uint32(w)) > 1 || out != w) {
		panic(fmt.Sprintf("rhi: dx12: write state combined with other states in %s", s))
	}
	return out
}

// Decode converts D3D12 states back to resource states. The shared
// vertex and constant buffer state decodes to both, and PRESENT decodes
// to Common.
func Decode(s ResourceStates) rhi.ResourceState {
	var out rhi.ResourceState
	for _, m := range stateMap {
		if s&m.d3d != 0 {
			out |= m.rhi
		}
	}
	return out
}

func handle(r interface{ Native() rhi.Handle }) rhi.Handle {
	if r == nil {
		return 0
	}
	return r.Native()
}

// subresource returns the subresource index of r, or AllSubresources
// when r spans more than one subresource.
func subresource(tex rhi.Texture, r rhi.TextureRange) uint32 {
	if tex == nil || r.MipCount != 1 || r.LayerCount != 1 {
		return AllSubresources
	}
	mips := max(tex.Descriptor().MipLevels, 1)
	return r.BaseMip + r.BaseLayer*mips
}

// Translate converts b to a D3D12 resource barrier. D3D12 has no queue
// ownership transfer, so the queue of either access is ignored.
func Translate(b rhi.Barrier) ResourceBarrier {
	var res, aliased rhi.Handle
	sub := uint32(AllSubresources)
	switch b.Resource {
	case rhi.ResourceBuffer:
		res = handle(b.Buffer.Buffer)
		aliased = handle(b.Buffer.Aliased)
	case rhi.ResourceTexture:
		res = handle(b.Texture.Texture)
		aliased = handle(b.Texture.Aliased)
		sub = subresource(b.Texture.Texture, b.Texture.Range)
	default:
		panic(fmt.Sprintf("rhi: dx12: barrier on resource kind %s", b.Resource))
	}

	switch b.Kind {
	case rhi.BarrierSyncUAV:
		return ResourceBarrier{Type: BarrierTypeUAV, Resource: res, Subresource: sub}
	case rhi.BarrierAliasing:
		return ResourceBarrier{Type: BarrierTypeAliasing, ResourceBefore: res, ResourceAfter: aliased}
	case rhi.BarrierTransition:
		return ResourceBarrier{
			Type:        BarrierTypeTransition,
			Resource:    res,
			Subresource: sub,
			StateBefore: Encode(b.Before().State, b.Resource),
			StateAfter:  Encode(b.After().State, b.Resource),
		}
	default:
		panic(fmt.Sprintf("rhi: dx12: unknown barrier kind %s", b.Kind))
	}
}
