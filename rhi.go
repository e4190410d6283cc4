package rhi

import (
	"context"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/google/uuid"
)

// Instance is the entry point of one backend. It is created once per
// process by CreateInstance and never switches backend.
type Instance interface {
	Backend() Backend
	Config() Config
	// CreateDevice opens the first adapter of the execution layer.
	CreateDevice() (Device, error)
	Destroy()
}

// Device creates resources and owns the queues, descriptor arenas and
// query pools shared by everything created from it.
type Device interface {
	Backend() Backend
	ID() uuid.UUID
	AdapterInfo() gpucontext.AdapterInfo
	Limits() gputypes.Limits
	IsRaytracingSupported() bool
	Queue(QueueType) Queue

	CreateBuffer(desc *BufferDescriptor) (Buffer, error)
	CreateBufferView(desc *BufferViewDescriptor) (BufferView, error)
	CreateTexture(desc *TextureDescriptor) (Texture, error)
	CreateTextureView(desc *TextureViewDescriptor) (TextureView, error)
	CreateSampler(desc *SamplerDescriptor) (Sampler, error)
	CreateFunction(desc *FunctionDescriptor) (Function, error)
	CreateBindTableLayout(desc *BindTableLayoutDescriptor) (BindTableLayout, error)
	CreateBindTable(desc *BindTableDescriptor) (BindTable, error)
	CreatePipelineLayout(desc *PipelineLayoutDescriptor) (PipelineLayout, error)
	CreateComputePipeline(desc *ComputePipelineDescriptor) (ComputePipeline, error)
	CreateRasterPipeline(desc *RasterPipelineDescriptor) (RasterPipeline, error)
	CreateRaytracingPipeline(desc *RaytracingPipelineDescriptor) (RaytracingPipeline, error)
	CreateBLAS(desc *BLASDescriptor) (BLAS, error)
	CreateTLAS(desc *TLASDescriptor) (TLAS, error)
	CreateShaderTable(desc *ShaderTableDescriptor) (ShaderTable, error)
	CreateQueryHeap(desc *QueryHeapDescriptor) (QueryHeap, error)
	CreateCommandBuffer(queue QueueType) (CommandBuffer, error)
	CreateFence() (Fence, error)
	CreateSemaphore() (Semaphore, error)
	// CreateIndirectCommandBuffer always returns ErrNotImplemented.
	CreateIndirectCommandBuffer(desc *IndirectCommandBufferDescriptor) (IndirectCommandBuffer, error)

	WaitIdle() error
	Destroy()
}

// Queue executes submitted command buffers in FIFO order.
type Queue interface {
	Type() QueueType
	// Submit enqueues cmd. waitSemaphore, if not nil, must have been
	// signaled by an earlier submission. signalFence and signalSemaphore,
	// if not nil, are signaled when cmd completes.
	Submit(cmd CommandBuffer, signalFence Fence, waitSemaphore, signalSemaphore Semaphore) error
	Submits(batches []Submission) error
	WaitIdle() error
	TimestampPeriod() float32
	// UpdateTileMappings always returns ErrNotImplemented.
	UpdateTileMappings(tex Texture, regions []TileRegion) error
}

// Resource is implemented by every owning RHI object.
type Resource interface {
	Label() string
	Destroy()
}

// Buffer is a linear GPU allocation.
type Buffer interface {
	Resource
	Size() uint64
	Usage() BufferUsage
	Storage() StorageMode
	// State is the last state recorded by a barrier on the recording
	// goroutine.
	State() ResourceState
	SetState(ResourceState)
	Native() Handle
	GPUAddress() uint64
	// Write copies data into an upload buffer.
	Write(offset uint64, data []byte) error
	// Read copies from a readback buffer.
	Read(offset uint64, dst []byte) error
}

// BufferView is a window into a buffer bound through a bind table.
type BufferView interface {
	Resource
	BindElement
	Buffer() Buffer
	Offset() uint64
	Size() uint64
}

// Texture is an image allocation.
type Texture interface {
	Resource
	Descriptor() TextureDescriptor
	State() ResourceState
	SetState(ResourceState)
	Native() Handle
}

// TextureView is a view of a texture subresource range.
type TextureView interface {
	Resource
	BindElement
	Texture() Texture
}

// Sampler is a texture sampling state object.
type Sampler interface {
	Resource
	BindElement
}

// Function is an opaque shader entry point.
type Function interface {
	Resource
	Type() FunctionType
	EntryName() string
}

// BindTableLayout is the compiled shape of a bind table.
type BindTableLayout interface {
	Resource
	Index() uint32
	Elements() []BindTableLayoutElement
}

// BindTable holds one native handle per declared element.
type BindTable interface {
	Resource
	Layout() BindTableLayout
	Len() int
	Handle(index int) Handle
	// SetBindElement replaces the element at position index. The caller
	// guarantees index < Len() and that bindType matches the layout; with
	// Config.Validation both are asserted.
	SetBindElement(element BindElement, bindType BindType, index uint32)
}

// PipelineLayout resolves abstract bind slots to native parameters.
type PipelineLayout interface {
	Resource
	Tables() []BindTableLayout
	// ParamCount is the number of native parameters; it equals the sum of
	// elements across tables.
	ParamCount() int
	// Resolve returns the native parameter of an element, or false when
	// the element is not bound for the stage.
	Resolve(stage BindStage, table, slot uint32, bindType BindType) (uint32, bool)
}

// ComputePipeline is a compiled compute pipeline.
type ComputePipeline interface {
	Resource
	Layout() PipelineLayout
}

// RasterPipeline is a compiled graphics pipeline.
type RasterPipeline interface {
	Resource
	Layout() PipelineLayout
}

// RaytracingPipeline is a compiled raytracing pipeline.
type RaytracingPipeline interface {
	Resource
	Layout() PipelineLayout
	// MaxLocalRootParameters is the largest local layout parameter count
	// across the pipeline's exports.
	MaxLocalRootParameters() uint32
	// ShaderIdentifier returns the opaque identifier of an export.
	ShaderIdentifier(name string) ([]byte, bool)
}

// AccelStruct is implemented by BLAS and TLAS.
type AccelStruct interface {
	Resource
	ResultAddress() uint64
	ResultSize() uint64
	ScratchSize() uint64
}

// BLAS is a bottom-level acceleration structure.
type BLAS interface {
	AccelStruct
	Geometries() []Geometry
}

// TLAS is a top-level acceleration structure.
type TLAS interface {
	AccelStruct
	BindElement
	Instances() []TLASInstance
	// Built reports whether the initial build has completed on the device.
	Built() bool
}

// ShaderTable is a raytracing dispatch table.
type ShaderTable interface {
	Resource
	// Generate writes the identifiers queried from pipeline into the table.
	Generate(pipeline RaytracingPipeline) error
	// Update always returns ErrNotImplemented.
	Update(desc *ShaderTableDescriptor) error
	Stride() uint64
	Size() uint64
	RayGen() ShaderTableRegion
	Miss() ShaderTableRegion
	HitGroups() ShaderTableRegion
}

// QueryHeap is a pool of queries of one type.
type QueryHeap interface {
	Resource
	Type() QueryType
	Count() uint32
	// ResolveData copies resolved results into dst. It returns true when
	// the readback succeeded.
	ResolveData(first, count uint32, dst []uint64) bool
}

// Fence is a binary host-visible completion primitive.
type Fence interface {
	Resource
	Wait(ctx context.Context) error
	Reset()
	Signaled() bool
}

// Semaphore is a GPU-only binary signal between submissions.
type Semaphore interface {
	Resource
}

// IndirectCommandBuffer is reserved for GPU-generated command streams.
type IndirectCommandBuffer interface {
	Resource
}

// CommandBufferState is the recording state of a command buffer.
type CommandBufferState uint8

const (
	CommandBufferInitial CommandBufferState = iota
	CommandBufferRecording
	CommandBufferEncodingPass
	CommandBufferEnded
	CommandBufferSubmitted
)

func (s CommandBufferState) String() string {
	switch s {
	case CommandBufferInitial:
		return "Initial"
	case CommandBufferRecording:
		return "Recording"
	case CommandBufferEncodingPass:
		return "EncodingPass"
	case CommandBufferEnded:
		return "Ended"
	case CommandBufferSubmitted:
		return "Submitted"
	default:
		return "Unknown"
	}
}

// CommandBuffer records commands for one queue type.
//
// State machine:
//
//	Initial      -> Begin()         -> Recording
//	Recording    -> Begin*Pass()    -> EncodingPass
//	EncodingPass -> End*Pass()      -> Recording
//	Recording    -> End()           -> Ended
//	Ended        -> Queue.Submit()  -> Submitted
//	Ended/Submitted -> Reset()      -> Initial
//
// A command buffer is not safe for concurrent use. Exactly one pass may be
// open at a time.
type CommandBuffer interface {
	Resource
	QueueType() QueueType
	State() CommandBufferState

	// Begin starts a recording. On an Ended or Submitted buffer it waits
	// for the previous submission and drops what was recorded.
	Begin() error
	End() error
	Reset() error

	BeginTransferPass(desc *TransferPassDescriptor) (TransferEncoder, error)
	EndTransferPass() error
	BeginComputePass(desc *ComputePassDescriptor) (ComputeEncoder, error)
	EndComputePass() error
	BeginRasterPass(desc *RasterPassDescriptor) (RasterEncoder, error)
	EndRasterPass() error
	BeginRaytracingPass(desc *RaytracingPassDescriptor) (RaytracingEncoder, error)
	EndRaytracingPass() error

	ResourceBarrier(b Barrier)
	ResourceBarriers(bs []Barrier)
	// ResolveQuery copies query results into the heap's readback storage.
	ResolveQuery(heap QueryHeap, first, count uint32)
}

// Encoder is the part shared by every pass encoder.
type Encoder interface {
	ResourceBarrier(b Barrier)
	ResourceBarriers(bs []Barrier)
	BeginQuery(heap QueryHeap, index uint32)
	EndQuery(heap QueryHeap, index uint32)
	WriteTimestamp(heap QueryHeap, index uint32)
}

// TransferEncoder records copies.
type TransferEncoder interface {
	Encoder
	CopyBufferToBuffer(src Buffer, srcOffset uint64, dst Buffer, dstOffset, size uint64)
	CopyBufferToTexture(src Buffer, layout BufferTextureLayout, dst Texture, origin TextureOrigin, size Extent)
	CopyTextureToBuffer(src Texture, origin TextureOrigin, dst Buffer, layout BufferTextureLayout, size Extent)
	CopyTextureToTexture(src Texture, srcOrigin TextureOrigin, dst Texture, dstOrigin TextureOrigin, size Extent)
	ClearBuffer(buf Buffer, offset, size uint64)
	// CopyAccelStruct always returns ErrNotImplemented.
	CopyAccelStruct(dst, src AccelStruct) error
}

// ComputeEncoder records dispatches.
type ComputeEncoder interface {
	Encoder
	SetPipeline(p ComputePipeline)
	SetBindTable(table BindTable, index uint32)
	Dispatch(x, y, z uint32)
	DispatchIndirect(buf Buffer, offset uint64)
}

// RasterEncoder records draws.
type RasterEncoder interface {
	Encoder
	SetPipeline(p RasterPipeline)
	SetBindTable(table BindTable, index uint32)
	SetViewport(x, y, width, height, minDepth, maxDepth float32)
	SetScissor(x, y, width, height uint32)
	SetStencilReference(ref uint32)
	SetVertexBuffer(slot uint32, buf Buffer, offset uint64)
	SetIndexBuffer(buf Buffer, format gputypes.IndexFormat, offset uint64)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32)
	DrawIndirect(buf Buffer, offset uint64)
	DrawIndexedIndirect(buf Buffer, offset uint64)
}

// RaytracingEncoder records acceleration structure builds and ray
// dispatches. On devices without raytracing, builds and dispatches are
// no-ops.
type RaytracingEncoder interface {
	Encoder
	SetPipeline(p RaytracingPipeline)
	SetBindTable(table BindTable, index uint32)
	BuildBLAS(blas BLAS) error
	BuildTLAS(tlas TLAS) error
	// UpdateTLAS re-serializes instances into the TLAS instance buffer and
	// refits the structure in place.
	UpdateTLAS(tlas TLAS, instances []TLASInstance) error
	DispatchRays(table ShaderTable, width, height, depth uint32)
}
