package rhi

import "fmt"

// BarrierKind selects the hazard a barrier resolves.
type BarrierKind uint8

const (
	// BarrierSyncUAV orders unordered-access writes against later accesses
	// of the same resource without a state change.
	BarrierSyncUAV BarrierKind = iota
	// BarrierAliasing orders the end of one resource's use of memory
	// against the start of another resource placed on the same memory.
	BarrierAliasing
	// BarrierTransition changes a resource's state.
	BarrierTransition
)

func (k BarrierKind) String() string {
	switch k {
	case BarrierSyncUAV:
		return "SyncUAV"
	case BarrierAliasing:
		return "Aliasing"
	case BarrierTransition:
		return "Transition"
	default:
		return fmt.Sprintf("BarrierKind(%d)", uint8(k))
	}
}

// ResourceKind selects which resource payload a barrier carries.
type ResourceKind uint8

const (
	ResourceBuffer ResourceKind = iota
	ResourceTexture
)

func (k ResourceKind) String() string {
	switch k {
	case ResourceBuffer:
		return "Buffer"
	case ResourceTexture:
		return "Texture"
	default:
		return fmt.Sprintf("ResourceKind(%d)", uint8(k))
	}
}

// Access describes one side of a barrier.
type Access struct {
	State ResourceState
	Stage PipelineStage
	Queue QueueType
}

// BufferBarrierInfo is the buffer payload of a barrier.
type BufferBarrierInfo struct {
	Buffer Buffer
	// Aliased is the resource taking over the memory in an aliasing
	// barrier. Nil means any resource.
	Aliased Buffer
	Before  Access
	After   Access
}

// TextureBarrierInfo is the texture payload of a barrier.
type TextureBarrierInfo struct {
	Texture Texture
	// Aliased is the resource taking over the memory in an aliasing
	// barrier. Nil means any resource.
	Aliased Texture
	Range   TextureRange
	Before  Access
	After   Access
}

// TextureRange selects a subresource range. A zero Count selects all
// remaining mips or layers.
type TextureRange struct {
	BaseMip    uint32
	MipCount   uint32
	BaseLayer  uint32
	LayerCount uint32
}

// Barrier is a tagged resource synchronization directive. Construct one
// with SyncUAVBuffer, SyncUAVTexture, AliasingBuffer, AliasingTexture,
// TransitionBuffer or TransitionTexture.
type Barrier struct {
	Kind     BarrierKind
	Resource ResourceKind
	Buffer   BufferBarrierInfo
	Texture  TextureBarrierInfo
}

func (b Barrier) String() string {
	switch b.Resource {
	case ResourceTexture:
		return fmt.Sprintf("%s(Texture %s->%s)", b.Kind, b.Texture.Before.State, b.Texture.After.State)
	default:
		return fmt.Sprintf("%s(Buffer %s->%s)", b.Kind, b.Buffer.Before.State, b.Buffer.After.State)
	}
}

// Before returns the source access of the barrier.
func (b Barrier) Before() Access {
	if b.Resource == ResourceTexture {
		return b.Texture.Before
	}
	return b.Buffer.Before
}

// After returns the destination access of the barrier.
func (b Barrier) After() Access {
	if b.Resource == ResourceTexture {
		return b.Texture.After
	}
	return b.Buffer.After
}

// IsQueueTransfer reports whether the barrier hands ownership between
// queue types.
func (b Barrier) IsQueueTransfer() bool {
	return b.Kind == BarrierTransition && b.Before().Queue != b.After().Queue
}

// SyncUAVBuffer orders unordered-access writes to buf against later
// accesses. The buffer's tracked state stays UnorderedAccess.
func SyncUAVBuffer(buf Buffer, before, after PipelineStage) Barrier {
	return Barrier{
		Kind:     BarrierSyncUAV,
		Resource: ResourceBuffer,
		Buffer: BufferBarrierInfo{
			Buffer: buf,
			Before: Access{State: StateUnorderedAccess, Stage: before},
			After:  Access{State: StateUnorderedAccess, Stage: after},
		},
	}
}

// SyncUAVTexture orders unordered-access writes to tex against later
// accesses.
func SyncUAVTexture(tex Texture, before, after PipelineStage) Barrier {
	return Barrier{
		Kind:     BarrierSyncUAV,
		Resource: ResourceTexture,
		Texture: TextureBarrierInfo{
			Texture: tex,
			Before:  Access{State: StateUnorderedAccess, Stage: before},
			After:   Access{State: StateUnorderedAccess, Stage: after},
		},
	}
}

// AliasingBuffer hands the memory of before over to after.
func AliasingBuffer(before, after Buffer) Barrier {
	return Barrier{
		Kind:     BarrierAliasing,
		Resource: ResourceBuffer,
		Buffer: BufferBarrierInfo{
			Buffer:  before,
			Aliased: after,
			Before:  Access{Stage: PipelineStageAllCommands},
			After:   Access{Stage: PipelineStageAllCommands},
		},
	}
}

// AliasingTexture hands the memory of before over to after.
func AliasingTexture(before, after Texture) Barrier {
	return Barrier{
		Kind:     BarrierAliasing,
		Resource: ResourceTexture,
		Texture: TextureBarrierInfo{
			Texture: before,
			Aliased: after,
			Before:  Access{Stage: PipelineStageAllCommands},
			After:   Access{Stage: PipelineStageAllCommands},
		},
	}
}

// TransitionBuffer moves buf from the before access to the after access.
// Differing queue types describe an ownership hand-off.
func TransitionBuffer(buf Buffer, before, after Access) Barrier {
	return Barrier{
		Kind:     BarrierTransition,
		Resource: ResourceBuffer,
		Buffer: BufferBarrierInfo{
			Buffer: buf,
			Before: before,
			After:  after,
		},
	}
}

// TransitionTexture moves a subresource range of tex from the before
// access to the after access.
func TransitionTexture(tex Texture, rng TextureRange, before, after Access) Barrier {
	return Barrier{
		Kind:     BarrierTransition,
		Resource: ResourceTexture,
		Texture: TextureBarrierInfo{
			Texture: tex,
			Range:   rng,
			Before:  before,
			After:   after,
		},
	}
}
