package rhi

import "github.com/gogpu/gputypes"

// BufferDescriptor describes a buffer to create.
type BufferDescriptor struct {
	Label   string
	Size    uint64
	Usage   BufferUsage
	Storage StorageMode
	// InitialState is the state the buffer is tracked in after creation.
	InitialState ResourceState
}

// BufferViewDescriptor describes a typed or structured window into a buffer.
type BufferViewDescriptor struct {
	Label  string
	Buffer Buffer
	Offset uint64
	// Size of zero selects the rest of the buffer.
	Size uint64
	// Stride is the element size of structured views; zero for raw views.
	Stride uint32
}

// TextureDescriptor describes a texture to create.
type TextureDescriptor struct {
	Label         string
	Dimension     TextureDimension
	Format        gputypes.TextureFormat
	Width         uint32
	Height        uint32
	DepthOrLayers uint32
	MipLevels     uint32
	SampleCount   uint32
	Usage         TextureUsage
	InitialState  ResourceState
}

// TextureViewDescriptor describes a view of a texture.
type TextureViewDescriptor struct {
	Label   string
	Texture Texture
	// Format of zero uses the texture's format.
	Format    gputypes.TextureFormat
	Dimension gputypes.TextureViewDimension
	Aspect    gputypes.TextureAspect
	Range     TextureRange
}

// SamplerDescriptor describes a sampler. Equal descriptors share one
// native sampler.
type SamplerDescriptor struct {
	Label        string
	AddressU     gputypes.AddressMode
	AddressV     gputypes.AddressMode
	AddressW     gputypes.AddressMode
	MagFilter    gputypes.FilterMode
	MinFilter    gputypes.FilterMode
	MipmapFilter gputypes.FilterMode
	LodMinClamp  float32
	LodMaxClamp  float32
	Compare      gputypes.CompareFunction
	Anisotropy   uint16
}

// FunctionDescriptor wraps opaque shader bytecode. The RHI neither
// compiles nor reflects it.
type FunctionDescriptor struct {
	Label     string
	ByteCode  []byte
	EntryName string
	Type      FunctionType
}

// BindTableLayoutElement declares one bindable element of a table.
type BindTableLayoutElement struct {
	Slot       uint32
	Type       BindType
	Visibility ShaderStage
	// Count greater than one declares a bindless array.
	Count uint32
}

// IsBindless reports whether the element is a variable-size array.
func (e BindTableLayoutElement) IsBindless() bool { return e.Count > 1 }

// BindTableLayoutDescriptor declares the shape of a bind table.
type BindTableLayoutDescriptor struct {
	Label string
	// Index is the table index; tables are partitioned by it, for example
	// by frequency of change.
	Index    uint32
	Elements []BindTableLayoutElement
}

// BindElement is an object a bind table can reference: a Sampler, a
// BufferView, a TextureView or a TLAS.
type BindElement interface {
	Native() Handle
}

// BindTableDescriptor binds concrete elements to a layout, one per
// declared element in layout order.
type BindTableDescriptor struct {
	Label    string
	Layout   BindTableLayout
	Elements []BindElement
}

// PipelineLayoutDescriptor lists the tables a pipeline binds.
type PipelineLayoutDescriptor struct {
	Label  string
	Tables []BindTableLayout
}

// ComputePipelineDescriptor describes a compute pipeline.
type ComputePipelineDescriptor struct {
	Label   string
	Layout  PipelineLayout
	Compute Function
}

// DepthStencilState describes depth testing of a raster pipeline.
type DepthStencilState struct {
	Format       gputypes.TextureFormat
	DepthWrite   bool
	DepthCompare gputypes.CompareFunction
}

// RasterPipelineDescriptor describes a graphics pipeline.
type RasterPipelineDescriptor struct {
	Label         string
	Layout        PipelineLayout
	Vertex        Function
	Fragment      Function
	VertexBuffers []gputypes.VertexBufferLayout
	Primitive     gputypes.PrimitiveState
	Targets       []gputypes.ColorTargetState
	DepthStencil  *DepthStencilState
	SampleCount   uint32
}

// HitGroupType selects the geometry a hit group intersects.
type HitGroupType uint8

const (
	HitGroupTriangles HitGroupType = iota
	HitGroupProcedural
)

// HitGroupDescriptor names the functions of one hit group.
type HitGroupDescriptor struct {
	Name         string
	Type         HitGroupType
	ClosestHit   string
	AnyHit       string
	Intersection string
}

// LocalLayout attaches a local pipeline layout to an exported program.
type LocalLayout struct {
	Export string
	Layout PipelineLayout
}

// RaytracingPipelineDescriptor describes a raytracing pipeline.
type RaytracingPipelineDescriptor struct {
	Label             string
	Layout            PipelineLayout
	Functions         []Function
	HitGroups         []HitGroupDescriptor
	LocalLayouts      []LocalLayout
	MaxPayloadSize    uint32
	MaxAttributeSize  uint32
	MaxRecursionDepth uint32
}

// GeometryType selects the variant of an acceleration structure geometry.
type GeometryType uint8

const (
	GeometryTriangles GeometryType = iota
	GeometryAABBs
	GeometryCurves
)

func (g GeometryType) String() string {
	switch g {
	case GeometryTriangles:
		return "Triangles"
	case GeometryAABBs:
		return "AABBs"
	case GeometryCurves:
		return "Curves"
	default:
		return "Unknown"
	}
}

// GeometryFlags are per-geometry build flags.
type GeometryFlags uint8

const (
	GeometryOpaque GeometryFlags = 1 << iota
	GeometryNoDuplicateAnyHit
)

// BufferRef references a range of an externally owned buffer.
type BufferRef struct {
	Buffer Buffer
	Offset uint64
	Stride uint64
	Count  uint32
}

// Geometry is one entry of a bottom-level acceleration structure.
//
// Triangles use Vertices, VertexFormat and optionally Indices and
// Transform. AABBs use AABBs. Curves use Vertices as control points, Radii
// and Indices as segment starts.
type Geometry struct {
	Type         GeometryType
	Flags        GeometryFlags
	Vertices     BufferRef
	VertexFormat gputypes.VertexFormat
	Indices      BufferRef
	IndexFormat  gputypes.IndexFormat
	Transform    BufferRef
	AABBs        BufferRef
	Radii        BufferRef
}

// BuildFlags tune acceleration structure builds.
type BuildFlags uint8

const (
	BuildAllowUpdate BuildFlags = 1 << iota
	BuildAllowCompaction
	BuildPreferFastTrace
	BuildPreferFastBuild
	BuildMinimizeMemory
)

// BLASDescriptor describes a bottom-level acceleration structure.
type BLASDescriptor struct {
	Label      string
	Geometries []Geometry
	Flags      BuildFlags
}

// InstanceFlags are per-instance flags of a top-level structure.
type InstanceFlags uint8

const (
	InstanceTriangleCullDisable InstanceFlags = 1 << iota
	InstanceTriangleFrontCCW
	InstanceForceOpaque
	InstanceForceNonOpaque
)

// TLASInstance places a BLAS in a top-level acceleration structure.
// The TLAS does not own the BLAS: the BLAS must outlive every TLAS build
// and update that references it.
type TLASInstance struct {
	// InstanceID is the 24-bit custom index visible to shaders.
	InstanceID uint32
	Mask       uint8
	// HitGroupIndex is the 24-bit hit-group contribution.
	HitGroupIndex uint32
	// Transform is a row-major 4x4 matrix; the last row is ignored.
	Transform [4][4]float32
	Flags     InstanceFlags
	BLAS      BLAS
}

// IdentityTransform returns the identity 4x4 matrix.
func IdentityTransform() [4][4]float32 {
	return [4][4]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
}

// TLASDescriptor describes a top-level acceleration structure.
type TLASDescriptor struct {
	Label     string
	Instances []TLASInstance
	Flags     BuildFlags
}

// ShaderTableEntry is one record of a shader table.
type ShaderTableEntry struct {
	// Name is the exported program or hit group name.
	Name string
	// LocalTables are bound through the program's local layout.
	LocalTables []BindTable
}

// ShaderTableDescriptor describes the records of a shader table.
type ShaderTableDescriptor struct {
	Label     string
	RayGen    ShaderTableEntry
	Miss      []ShaderTableEntry
	HitGroups []ShaderTableEntry
}

// ShaderTableRegion is a GPU address range of a shader table.
type ShaderTableRegion struct {
	Address uint64
	Size    uint64
	Stride  uint64
}

// QueryHeapDescriptor describes a query heap.
type QueryHeapDescriptor struct {
	Label string
	Type  QueryType
	Count uint32
}

// IndirectCommandBufferDescriptor describes an indirect command buffer.
type IndirectCommandBufferDescriptor struct {
	Label       string
	MaxCommands uint32
}

// TileRegion selects a tile of a tiled (sparse) texture.
type TileRegion struct {
	Mip     uint32
	X, Y, Z uint32
}

// TransferPassDescriptor describes a copy pass.
type TransferPassDescriptor struct {
	Label string
}

// TimestampWrites records timestamps at pass begin and end.
type TimestampWrites struct {
	Heap       QueryHeap
	BeginIndex uint32
	EndIndex   uint32
}

// ComputePassDescriptor describes a compute pass.
type ComputePassDescriptor struct {
	Label      string
	Timestamps *TimestampWrites
}

// ColorTarget is a color attachment of a raster pass.
type ColorTarget struct {
	View    TextureView
	Resolve TextureView
	Load    gputypes.LoadOp
	Store   gputypes.StoreOp
	Clear   gputypes.Color
}

// DepthTarget is the depth-stencil attachment of a raster pass.
type DepthTarget struct {
	View         TextureView
	DepthLoad    gputypes.LoadOp
	DepthStore   gputypes.StoreOp
	ClearDepth   float32
	StencilLoad  gputypes.LoadOp
	StencilStore gputypes.StoreOp
	ClearStencil uint32
	ReadOnly     bool
}

// RasterPassDescriptor describes a render pass.
type RasterPassDescriptor struct {
	Label      string
	Colors     []ColorTarget
	Depth      *DepthTarget
	Timestamps *TimestampWrites
}

// RaytracingPassDescriptor describes a raytracing pass.
type RaytracingPassDescriptor struct {
	Label string
}

// Submission is one batch of a Queue.Submits call.
type Submission struct {
	CommandBuffers   []CommandBuffer
	WaitSemaphores   []Semaphore
	SignalSemaphores []Semaphore
	SignalFence      Fence
}

// BufferTextureLayout describes texel data in a buffer.
type BufferTextureLayout struct {
	Offset       uint64
	BytesPerRow  uint32
	RowsPerImage uint32
}

// TextureOrigin is a texel location in a mip level.
type TextureOrigin struct {
	Mip     uint32
	X, Y, Z uint32
}

// Extent is a texel extent.
type Extent struct {
	Width, Height, Depth uint32
}
