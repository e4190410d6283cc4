package rhi

import (
	"fmt"
	"runtime"
	"strings"
)

// Backend identifies one of the native graphics APIs the RHI translates to.
type Backend uint8

const (
	// BackendUndefined selects the platform default at instance creation.
	BackendUndefined Backend = iota
	// BackendDX12 uses root-signature tables.
	BackendDX12
	// BackendMetal uses argument buffers.
	BackendMetal
	// BackendVulkan uses descriptor sets.
	BackendVulkan
)

// Backend names as used in configuration files and the registry.
const (
	BackendNameDX12   = "dx12"
	BackendNameMetal  = "metal"
	BackendNameVulkan = "vulkan"
)

// String returns the registry name of the backend.
func (b Backend) String() string {
	switch b {
	case BackendDX12:
		return BackendNameDX12
	case BackendMetal:
		return BackendNameMetal
	case BackendVulkan:
		return BackendNameVulkan
	default:
		return "undefined"
	}
}

// ParseBackend converts a backend name to a Backend.
// The empty string maps to BackendUndefined.
func ParseBackend(name string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return BackendUndefined, nil
	case BackendNameDX12, "d3d12":
		return BackendDX12, nil
	case BackendNameMetal, "mtl":
		return BackendMetal, nil
	case BackendNameVulkan, "vk":
		return BackendVulkan, nil
	}
	return BackendUndefined, fmt.Errorf("%w: unknown backend %q", ErrInvalidDescriptor, name)
}

// PlatformBackend returns the backend native to the running platform:
// DX12 on Windows, Metal on Apple platforms and Vulkan elsewhere.
func PlatformBackend() Backend {
	return platformBackend(runtime.GOOS)
}

func platformBackend(goos string) Backend {
	switch goos {
	case "windows":
		return BackendDX12
	case "darwin", "ios":
		return BackendMetal
	default:
		return BackendVulkan
	}
}

// Handle is a non-owning reference to a native object.
// The object it refers to is owned by an RHI resource; holders of a Handle
// must not outlive that resource.
type Handle uintptr

// BindType is the declared type of a bindable element.
type BindType uint8

const (
	BindTypeUndefined BindType = iota
	BindTypeSampler
	BindTypeTexture2D
	BindTypeTexture2DArray
	BindTypeTextureCube
	BindTypeTextureCubeArray
	BindTypeTexture3D
	BindTypeBuffer
	BindTypeUniformBuffer
	BindTypeStorageBuffer
	BindTypeStorageTexture2D
	BindTypeStorageTexture2DArray
	BindTypeStorageTexture3D
	BindTypeAccelStruct
)

var bindTypeNames = [...]string{
	BindTypeUndefined:             "Undefined",
	BindTypeSampler:               "Sampler",
	BindTypeTexture2D:             "Texture2D",
	BindTypeTexture2DArray:        "Texture2DArray",
	BindTypeTextureCube:           "TextureCube",
	BindTypeTextureCubeArray:      "TextureCubeArray",
	BindTypeTexture3D:             "Texture3D",
	BindTypeBuffer:                "Buffer",
	BindTypeUniformBuffer:         "UniformBuffer",
	BindTypeStorageBuffer:         "StorageBuffer",
	BindTypeStorageTexture2D:      "StorageTexture2D",
	BindTypeStorageTexture2DArray: "StorageTexture2DArray",
	BindTypeStorageTexture3D:      "StorageTexture3D",
	BindTypeAccelStruct:           "AccelStruct",
}

func (t BindType) String() string {
	if int(t) < len(bindTypeNames) {
		return bindTypeNames[t]
	}
	return fmt.Sprintf("BindType(%d)", uint8(t))
}

// BindClass groups bind types into the resource classes native APIs
// address separately. Lookups keyed by class resolve Texture2D and
// TextureCube to the same parameter.
type BindClass uint8

const (
	BindClassNone BindClass = iota
	BindClassSRV
	BindClassSampler
	BindClassCBV
	BindClassUAV
)

func (c BindClass) String() string {
	switch c {
	case BindClassSRV:
		return "SRV"
	case BindClassSampler:
		return "Sampler"
	case BindClassCBV:
		return "CBV"
	case BindClassUAV:
		return "UAV"
	default:
		return "None"
	}
}

// Class returns the resource class of the bind type.
func (t BindType) Class() BindClass {
	switch t {
	case BindTypeSampler:
		return BindClassSampler
	case BindTypeTexture2D, BindTypeTexture2DArray, BindTypeTextureCube,
		BindTypeTextureCubeArray, BindTypeTexture3D, BindTypeBuffer, BindTypeAccelStruct:
		return BindClassSRV
	case BindTypeUniformBuffer:
		return BindClassCBV
	case BindTypeStorageBuffer, BindTypeStorageTexture2D, BindTypeStorageTexture2DArray,
		BindTypeStorageTexture3D:
		return BindClassUAV
	default:
		return BindClassNone
	}
}

// IsTexture reports whether the bind type takes a texture view.
func (t BindType) IsTexture() bool {
	switch t {
	case BindTypeTexture2D, BindTypeTexture2DArray, BindTypeTextureCube, BindTypeTextureCubeArray,
		BindTypeTexture3D, BindTypeStorageTexture2D, BindTypeStorageTexture2DArray, BindTypeStorageTexture3D:
		return true
	}
	return false
}

// IsBuffer reports whether the bind type takes a buffer view.
func (t BindType) IsBuffer() bool {
	return t == BindTypeBuffer || t == BindTypeUniformBuffer || t == BindTypeStorageBuffer
}

// ShaderStage is a visibility mask over the programmable stages.
type ShaderStage uint8

const (
	ShaderStageVertex ShaderStage = 1 << iota
	ShaderStageFragment
	ShaderStageCompute

	ShaderStageNone ShaderStage = 0
	ShaderStageAll              = ShaderStageVertex | ShaderStageFragment | ShaderStageCompute
)

func (s ShaderStage) String() string {
	if s == ShaderStageNone {
		return "None"
	}
	if s == ShaderStageAll {
		return "All"
	}
	var parts []string
	if s&ShaderStageVertex != 0 {
		parts = append(parts, "Vertex")
	}
	if s&ShaderStageFragment != 0 {
		parts = append(parts, "Fragment")
	}
	if s&ShaderStageCompute != 0 {
		parts = append(parts, "Compute")
	}
	return strings.Join(parts, "|")
}

// BindStage selects one of the stage maps a pipeline layout resolves
// against.
type BindStage uint8

const (
	BindStageVertex BindStage = iota
	BindStageFragment
	BindStageCompute
	BindStageAll

	// BindStageCount is the number of stage maps.
	BindStageCount = 4
)

func (s BindStage) String() string {
	switch s {
	case BindStageVertex:
		return "Vertex"
	case BindStageFragment:
		return "Fragment"
	case BindStageCompute:
		return "Compute"
	case BindStageAll:
		return "All"
	default:
		return fmt.Sprintf("BindStage(%d)", uint8(s))
	}
}

// Stages returns the stage maps a visibility mask inserts into.
func (s ShaderStage) Stages() []BindStage {
	var out []BindStage
	if s&ShaderStageVertex != 0 {
		out = append(out, BindStageVertex)
	}
	if s&ShaderStageFragment != 0 {
		out = append(out, BindStageFragment)
	}
	if s&ShaderStageCompute != 0 {
		out = append(out, BindStageCompute)
	}
	if s&ShaderStageAll == ShaderStageAll {
		out = append(out, BindStageAll)
	}
	return out
}

// FunctionType is the pipeline stage a shader function is built for.
type FunctionType uint8

const (
	FunctionVertex FunctionType = iota
	FunctionFragment
	FunctionCompute
	FunctionRayGeneration
	FunctionMiss
	FunctionClosestHit
	FunctionAnyHit
	FunctionIntersection
	FunctionCallable
)

// IsRaytracing reports whether the function belongs to a raytracing pipeline.
func (t FunctionType) IsRaytracing() bool { return t >= FunctionRayGeneration }

// ResourceState is the usage state a resource is in from the GPU's view.
type ResourceState uint32

const (
	StateCommon       ResourceState = 0
	StateVertexBuffer ResourceState = 1 << (iota - 1)
	StateConstantBuffer
	StateIndexBuffer
	StateRenderTarget
	StateUnorderedAccess
	StateDepthWrite
	StateDepthRead
	StateNonPixelShaderResource
	StatePixelShaderResource
	StateIndirectArgument
	StateCopyDst
	StateCopySrc
	StateResolveDst
	StateResolveSrc
	StateAccelStruct
	StatePresent
	StateShadingRate

	StateShaderResource = StateNonPixelShaderResource | StatePixelShaderResource
	StateGenericRead    = StateVertexBuffer | StateConstantBuffer | StateIndexBuffer |
		StateShaderResource | StateIndirectArgument | StateCopySrc
)

var resourceStateNames = []struct {
	s    ResourceState
	name string
}{
	{StateVertexBuffer, "VertexBuffer"},
	{StateConstantBuffer, "ConstantBuffer"},
	{StateIndexBuffer, "IndexBuffer"},
	{StateRenderTarget, "RenderTarget"},
	{StateUnorderedAccess, "UnorderedAccess"},
	{StateDepthWrite, "DepthWrite"},
	{StateDepthRead, "DepthRead"},
	{StateNonPixelShaderResource, "NonPixelShaderResource"},
	{StatePixelShaderResource, "PixelShaderResource"},
	{StateIndirectArgument, "IndirectArgument"},
	{StateCopyDst, "CopyDst"},
	{StateCopySrc, "CopySrc"},
	{StateResolveDst, "ResolveDst"},
	{StateResolveSrc, "ResolveSrc"},
	{StateAccelStruct, "AccelStruct"},
	{StatePresent, "Present"},
	{StateShadingRate, "ShadingRate"},
}

func (s ResourceState) String() string {
	if s == StateCommon {
		return "Common"
	}
	var parts []string
	for _, n := range resourceStateNames {
		if s&n.s != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// PipelineStage is a mask of pipeline stages a barrier synchronizes.
type PipelineStage uint32

const (
	PipelineStageNone PipelineStage = 0
	PipelineStageTop  PipelineStage = 1 << (iota - 1)
	PipelineStageDrawIndirect
	PipelineStageVertexInput
	PipelineStageVertexShader
	PipelineStageFragmentShader
	PipelineStageEarlyDepth
	PipelineStageLateDepth
	PipelineStageColorOutput
	PipelineStageComputeShader
	PipelineStageTransfer
	PipelineStageRaytracing
	PipelineStageAccelStructBuild
	PipelineStageBottom
	PipelineStageHost
	PipelineStageAllGraphics
	PipelineStageAllCommands
)

// QueueType is the kind of queue a command buffer is recorded for.
type QueueType uint8

const (
	QueueGraphics QueueType = iota
	QueueCompute
	QueueTransfer
)

func (q QueueType) String() string {
	switch q {
	case QueueGraphics:
		return "Graphics"
	case QueueCompute:
		return "Compute"
	case QueueTransfer:
		return "Transfer"
	default:
		return fmt.Sprintf("QueueType(%d)", uint8(q))
	}
}

// QueryType selects what a query heap records.
type QueryType uint8

const (
	QueryOcclusion QueryType = iota
	QueryTimestamp
	QueryPipelineStatistics
)

func (q QueryType) String() string {
	switch q {
	case QueryOcclusion:
		return "Occlusion"
	case QueryTimestamp:
		return "Timestamp"
	case QueryPipelineStatistics:
		return "PipelineStatistics"
	default:
		return fmt.Sprintf("QueryType(%d)", uint8(q))
	}
}

// StorageMode selects the memory a buffer lives in.
type StorageMode uint8

const (
	// StorageDefault is device-local memory.
	StorageDefault StorageMode = iota
	// StorageUpload is host-writable memory read by the device.
	StorageUpload
	// StorageReadback is device-writable memory read by the host.
	StorageReadback
)

// BufferUsage is a mask of the ways a buffer may be used.
type BufferUsage uint32

const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageIndex
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageIndirect
	BufferUsageCopySrc
	BufferUsageCopyDst
	BufferUsageAccelStruct
	BufferUsageAccelStructInput
	BufferUsageShaderTable
	BufferUsageQueryResolve
)

// TextureUsage is a mask of the ways a texture may be used.
type TextureUsage uint32

const (
	TextureUsageSampled TextureUsage = 1 << iota
	TextureUsageStorage
	TextureUsageRenderTarget
	TextureUsageDepthStencil
	TextureUsageCopySrc
	TextureUsageCopyDst
)

// TextureDimension is the dimensionality of a texture.
type TextureDimension uint8

const (
	Texture1D TextureDimension = iota
	Texture2D
	Texture3D
)
