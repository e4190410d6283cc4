// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi"
)

const (
	bufferOnlyStates = rhi.StateVertexBuffer | rhi.StateConstantBuffer | rhi.StateIndexBuffer |
		rhi.StateIndirectArgument | rhi.StateAccelStruct
	textureOnlyStates = rhi.StateRenderTarget | rhi.StateDepthWrite | rhi.StateDepthRead |
		rhi.StatePresent | rhi.StateShadingRate | rhi.StateResolveSrc
)

// bufferUsage maps a buffer resource state to hal buffer usage.
func bufferUsage(s rhi.ResourceState) gputypes.BufferUsage {
	if s&textureOnlyStates != 0 {
		panic(fmt.Sprintf("rhi: buffer cannot be in state %s", s))
	}
	var u gputypes.BufferUsage
	if s&rhi.StateVertexBuffer != 0 {
		u |= gputypes.BufferUsageVertex
	}
	if s&rhi.StateConstantBuffer != 0 {
		u |= gputypes.BufferUsageUniform
	}
	if s&rhi.StateIndexBuffer != 0 {
		u |= gputypes.BufferUsageIndex
	}
	if s&(rhi.StateUnorderedAccess|rhi.StateShaderResource|rhi.StateAccelStruct) != 0 {
		u |= gputypes.BufferUsageStorage
	}
	if s&rhi.StateIndirectArgument != 0 {
		u |= gputypes.BufferUsageIndirect
	}
	if s&(rhi.StateCopyDst|rhi.StateResolveDst) != 0 {
		u |= gputypes.BufferUsageCopyDst
	}
	if s&rhi.StateCopySrc != 0 {
		u |= gputypes.BufferUsageCopySrc
	}
	return u
}

// textureUsage maps a texture resource state to hal texture usage.
func textureUsage(s rhi.ResourceState) gputypes.TextureUsage {
	if s&bufferOnlyStates != 0 {
		panic(fmt.Sprintf("rhi: texture cannot be in state %s", s))
	}
	var u gputypes.TextureUsage
	if s&(rhi.StateRenderTarget|rhi.StateDepthWrite|rhi.StateDepthRead|rhi.StateShadingRate) != 0 {
		u |= gputypes.TextureUsageRenderAttachment
	}
	if s&rhi.StateUnorderedAccess != 0 {
		u |= gputypes.TextureUsageStorageBinding
	}
	if s&rhi.StateShaderResource != 0 {
		u |= gputypes.TextureUsageTextureBinding
	}
	if s&(rhi.StateCopyDst|rhi.StateResolveDst) != 0 {
		u |= gputypes.TextureUsageCopyDst
	}
	if s&(rhi.StateCopySrc|rhi.StateResolveSrc) != 0 {
		u |= gputypes.TextureUsageCopySrc
	}
	return u
}

// barrierBatch collects translated barriers until they are flushed to a
// hal encoder.
type barrierBatch struct {
	native   Native
	buffers  []hal.BufferBarrier
	textures []hal.TextureBarrier
}

func (bb *barrierBatch) empty() bool { return len(bb.buffers) == 0 && len(bb.textures) == 0 }

// add translates b to its native form and queues the decoded transition.
// The decoded states only pick hal usages. The resource's tracked state
// moves to the after state b requested, not the decoded one.
func (bb *barrierBatch) add(b rhi.Barrier) {
	before, after := bb.native.TranslateBarrier(b).States()
	track := b.Kind != rhi.BarrierAliasing

	if b.Kind == rhi.BarrierAliasing && before == rhi.StateCommon && after == rhi.StateCommon {
		slogger().Debug("rhi: aliasing barrier has no hal form", "barrier", b.String())
		return
	}

	switch b.Resource {
	case rhi.ResourceBuffer:
		buf := mustBuffer(b.Buffer.Buffer)
		bb.buffers = append(bb.buffers, hal.BufferBarrier{
			Buffer: buf.hal,
			Usage: hal.BufferUsageTransition{
				OldUsage: bufferUsage(before),
				NewUsage: bufferUsage(after),
			},
		})
		if track {
			buf.SetState(b.After().State)
		}
	case rhi.ResourceTexture:
		tex := mustTexture(b.Texture.Texture)
		r := b.Texture.Range
		bb.textures = append(bb.textures, hal.TextureBarrier{
			Texture: tex.hal,
			Range: hal.TextureRange{
				Aspect:          gputypes.TextureAspectAll,
				BaseMipLevel:    r.BaseMip,
				MipLevelCount:   r.MipCount,
				BaseArrayLayer:  r.BaseLayer,
				ArrayLayerCount: r.LayerCount,
			},
			Usage: hal.TextureUsageTransition{
				OldUsage: textureUsage(before),
				NewUsage: textureUsage(after),
			},
		})
		if track {
			tex.SetState(b.After().State)
		}
	default:
		panic(fmt.Sprintf("rhi: barrier on unknown resource kind %s", b.Resource))
	}
}

// flush records the queued barriers on enc.
func (bb *barrierBatch) flush(enc hal.CommandEncoder) {
	if len(bb.buffers) > 0 {
		enc.TransitionBuffers(bb.buffers)
		bb.buffers = nil
	}
	if len(bb.textures) > 0 {
		enc.TransitionTextures(bb.textures)
		bb.textures = nil
	}
}
