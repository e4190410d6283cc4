// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package metal

import (
	"fmt"

	"github.com/gogpu/rhi"
)

// BarrierScope mirrors MTLBarrierScope.
type BarrierScope uint8

const (
	ScopeBuffers BarrierScope = 1 << iota
	ScopeTextures
	ScopeRenderTargets
)

// ResourceUsage mirrors MTLResourceUsage.
type ResourceUsage uint8

const (
	UsageRead ResourceUsage = 1 << iota
	UsageWrite
)

// RenderStages mirrors MTLRenderStages.
type RenderStages uint8

const (
	RenderStageVertex RenderStages = 1 << iota
	RenderStageFragment
	RenderStageTile
)

// Barrier is a Metal memory barrier. Metal tracks hazards by usage, not
// by state, so the barrier keeps the states it was translated from for
// the residency set.
//
// A barrier that moves a resource between queues becomes a fence
// hand-off: the source queue updates FenceQueue's fence after
// BeforeStages and the destination waits on it before AfterStages.
type Barrier struct {
	Scope        BarrierScope
	Resource     rhi.Handle
	Usage        ResourceUsage
	BeforeStages RenderStages
	AfterStages  RenderStages
	Fence        bool
	FenceQueue   rhi.QueueType
	WaitQueue    rhi.QueueType
	Before       rhi.ResourceState
	After        rhi.ResourceState
}

// States implements driver.NativeBarrier.
func (b Barrier) States() (before, after rhi.ResourceState) { return b.Before, b.After }

const (
	textureOnly = rhi.StateRenderTarget | rhi.StateDepthWrite | rhi.StateDepthRead |
		rhi.StateResolveDst | rhi.StateResolveSrc | rhi.StatePresent
	bufferOnly = rhi.StateVertexBuffer | rhi.StateConstantBuffer | rhi.StateIndexBuffer |
		rhi.StateIndirectArgument | rhi.StateAccelStruct
	renderTargetStates = rhi.StateRenderTarget | rhi.StateDepthWrite | rhi.StateDepthRead |
		rhi.StateResolveDst | rhi.StateResolveSrc
	writeStates = rhi.StateRenderTarget | rhi.StateUnorderedAccess | rhi.StateDepthWrite |
		rhi.StateCopyDst | rhi.StateResolveDst
)

// usage returns the usage Metal tracks for a resource in state s.
func usage(s rhi.ResourceState) ResourceUsage {
	var u ResourceUsage
	if s&writeStates != 0 {
		u |= UsageWrite
	}
	if s&^(rhi.StateRenderTarget|rhi.StateDepthWrite|rhi.StateCopyDst|rhi.StateResolveDst) != 0 {
		u |= UsageRead
	}
	return u
}

// stages returns the render stages that cover p. Compute and transfer
// stages have no render stage.
func stages(p rhi.PipelineStage) RenderStages {
	if p == rhi.PipelineStageNone || p&(rhi.PipelineStageAllGraphics|rhi.PipelineStageAllCommands|
		rhi.PipelineStageTop|rhi.PipelineStageBottom) != 0 {
		return RenderStageVertex | RenderStageFragment
	}
	var s RenderStages
	if p&(rhi.PipelineStageDrawIndirect|rhi.PipelineStageVertexInput|rhi.PipelineStageVertexShader) != 0 {
		s |= RenderStageVertex
	}
	if p&(rhi.PipelineStageFragmentShader|rhi.PipelineStageEarlyDepth|rhi.PipelineStageLateDepth|
		rhi.PipelineStageColorOutput) != 0 {
		s |= RenderStageFragment
	}
	return s
}

func check(s rhi.ResourceState, kind rhi.ResourceKind) {
	switch {
	case s&rhi.StateShadingRate != 0:
		panic(fmt.Sprintf("rhi: metal: rasterization rate maps are not resources, state %s", s))
	case kind == rhi.ResourceBuffer && s&textureOnly != 0:
		panic(fmt.Sprintf("rhi: metal: buffer cannot be in state %s", s))
	case kind == rhi.ResourceTexture && s&bufferOnly != 0:
		panic(fmt.Sprintf("rhi: metal: texture cannot be in state %s", s))
	}
}

// Translate converts b to a Metal barrier.
func Translate(b rhi.Barrier) Barrier {
	before, after := b.Before(), b.After()
	out := Barrier{
		BeforeStages: stages(before.Stage),
		AfterStages:  stages(after.Stage),
	}
	switch b.Resource {
	case rhi.ResourceBuffer:
		out.Scope = ScopeBuffers
		if b.Buffer.Buffer != nil {
			out.Resource = b.Buffer.Buffer.Native()
		}
	case rhi.ResourceTexture:
		out.Scope = ScopeTextures
		if b.Texture.Texture != nil {
			out.Resource = b.Texture.Texture.Native()
		}
		if (before.State|after.State)&renderTargetStates != 0 {
			out.Scope |= ScopeRenderTargets
		}
	default:
		panic(fmt.Sprintf("rhi: metal: barrier on resource kind %s", b.Resource))
	}

	switch b.Kind {
	case rhi.BarrierSyncUAV:
		out.Before, out.After = rhi.StateUnorderedAccess, rhi.StateUnorderedAccess
		out.Usage = UsageRead | UsageWrite
	case rhi.BarrierAliasing:
		// Heap aliasing is ordered by the scope alone.
		out.Usage = UsageWrite
	case rhi.BarrierTransition:
		check(before.State, b.Resource)
		check(after.State, b.Resource)
		out.Before, out.After = before.State, after.State
		out.Usage = usage(after.State)
		if b.IsQueueTransfer() {
			out.Fence = true
			out.FenceQueue = before.Queue
			out.WaitQueue = after.Queue
		}
	default:
		panic(fmt.Sprintf("rhi: metal: unknown barrier kind %s", b.Kind))
	}
	return out
}
