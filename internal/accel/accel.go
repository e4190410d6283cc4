// Package accel translates acceleration structure descriptions into the
// build inputs of the raytracing hal extension.
package accel

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"golang.org/x/exp/constraints"

	"github.com/gogpu/rhi"
)

// AlignUp rounds v up to a multiple of align. align must be a power of two.
func AlignUp[T constraints.Unsigned](v, align T) T {
	if align == 0 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

// Alignment requirements of acceleration structure memory.
const (
	// ResultAlignment is the byte alignment of a result buffer.
	ResultAlignment = 256
	// ScratchAlignment is the byte alignment of a scratch buffer.
	ScratchAlignment = 256
	// InstanceAlignment is the byte alignment of instance records.
	InstanceAlignment = 16
)

// Level distinguishes bottom- and top-level structures.
type Level uint8

const (
	LevelBottom Level = iota
	LevelTop
)

func (l Level) String() string {
	if l == LevelTop {
		return "TLAS"
	}
	return "BLAS"
}

// Flags are native build flags.
type Flags uint32

const (
	FlagAllowUpdate     Flags = 1 << 0
	FlagAllowCompaction Flags = 1 << 1
	FlagPreferFastTrace Flags = 1 << 2
	FlagPreferFastBuild Flags = 1 << 3
	FlagMinimizeMemory  Flags = 1 << 4
	FlagPerformUpdate   Flags = 1 << 5
)

// FromBuildFlags converts RHI build flags to native flags.
func FromBuildFlags(f rhi.BuildFlags) Flags {
	var out Flags
	if f&rhi.BuildAllowUpdate != 0 {
		out |= FlagAllowUpdate
	}
	if f&rhi.BuildAllowCompaction != 0 {
		out |= FlagAllowCompaction
	}
	if f&rhi.BuildPreferFastTrace != 0 {
		out |= FlagPreferFastTrace
	}
	if f&rhi.BuildPreferFastBuild != 0 {
		out |= FlagPreferFastBuild
	}
	if f&rhi.BuildMinimizeMemory != 0 {
		out |= FlagMinimizeMemory
	}
	return out
}

// Geometry is one BLAS geometry with its inputs resolved to device
// addresses.
type Geometry struct {
	Type  rhi.GeometryType
	Flags rhi.GeometryFlags

	VertexAddress uint64
	VertexStride  uint64
	VertexCount   uint32
	VertexFormat  gputypes.VertexFormat

	// IndexAddress is zero for non-indexed triangles.
	IndexAddress uint64
	IndexCount   uint32
	IndexFormat  gputypes.IndexFormat

	TransformAddress uint64

	AABBAddress uint64
	AABBStride  uint64
	AABBCount   uint32

	RadiusAddress uint64
	RadiusStride  uint64
}

// Indexed reports whether triangle geometry carries an index buffer.
func (g Geometry) Indexed() bool { return g.IndexAddress != 0 || g.IndexCount != 0 }

// Primitives returns the number of primitives the geometry contributes.
func (g Geometry) Primitives() uint32 {
	switch g.Type {
	case rhi.GeometryAABBs:
		return g.AABBCount
	case rhi.GeometryCurves:
		if g.IndexCount > 0 {
			return g.IndexCount
		}
		if g.VertexCount > 0 {
			return g.VertexCount - 1
		}
		return 0
	default:
		if g.Indexed() {
			return g.IndexCount / 3
		}
		return g.VertexCount / 3
	}
}

func address(ref rhi.BufferRef) uint64 {
	if ref.Buffer == nil {
		return 0
	}
	return ref.Buffer.GPUAddress() + ref.Offset
}

// TranslateGeometry resolves the buffer references of g to device
// addresses plus byte offsets.
func TranslateGeometry(g rhi.Geometry) (Geometry, error) {
	out := Geometry{Type: g.Type, Flags: g.Flags}
	switch g.Type {
	case rhi.GeometryTriangles:
		if g.Vertices.Buffer == nil || g.Vertices.Count == 0 {
			return Geometry{}, fmt.Errorf("%w: triangle geometry without vertices", rhi.ErrInvalidDescriptor)
		}
		out.VertexAddress = address(g.Vertices)
		out.VertexStride = g.Vertices.Stride
		out.VertexCount = g.Vertices.Count
		out.VertexFormat = g.VertexFormat
		if g.Indices.Buffer != nil {
			out.IndexAddress = address(g.Indices)
			out.IndexCount = g.Indices.Count
			out.IndexFormat = g.IndexFormat
		}
		out.TransformAddress = address(g.Transform)
	case rhi.GeometryAABBs:
		if g.AABBs.Buffer == nil || g.AABBs.Count == 0 {
			return Geometry{}, fmt.Errorf("%w: AABB geometry without boxes", rhi.ErrInvalidDescriptor)
		}
		out.AABBAddress = address(g.AABBs)
		out.AABBStride = g.AABBs.Stride
		out.AABBCount = g.AABBs.Count
	case rhi.GeometryCurves:
		if g.Vertices.Buffer == nil || g.Radii.Buffer == nil {
			return Geometry{}, fmt.Errorf("%w: curve geometry needs control points and radii", rhi.ErrInvalidDescriptor)
		}
		out.VertexAddress = address(g.Vertices)
		out.VertexStride = g.Vertices.Stride
		out.VertexCount = g.Vertices.Count
		out.VertexFormat = g.VertexFormat
		out.RadiusAddress = address(g.Radii)
		out.RadiusStride = g.Radii.Stride
		if g.Indices.Buffer != nil {
			out.IndexAddress = address(g.Indices)
			out.IndexCount = g.Indices.Count
			out.IndexFormat = g.IndexFormat
		}
	default:
		return Geometry{}, fmt.Errorf("%w: geometry type %v", rhi.ErrInvalidDescriptor, g.Type)
	}
	return out, nil
}

// Inputs describe what a build consumes.
type Inputs struct {
	Level Level
	Flags Flags
	// Geometries are set for bottom-level builds.
	Geometries []Geometry
	// InstanceAddress and InstanceCount are set for top-level builds.
	InstanceAddress uint64
	InstanceCount   uint32
}

// PrebuildInfo holds the memory a build needs.
type PrebuildInfo struct {
	ResultSize        uint64
	ScratchSize       uint64
	UpdateScratchSize uint64
}

// Aligned returns info with every size rounded up to its alignment.
func (p PrebuildInfo) Aligned() PrebuildInfo {
	return PrebuildInfo{
		ResultSize:        AlignUp[uint64](p.ResultSize, ResultAlignment),
		ScratchSize:       AlignUp[uint64](p.ScratchSize, ScratchAlignment),
		UpdateScratchSize: AlignUp[uint64](p.UpdateScratchSize, ScratchAlignment),
	}
}

// BuildDescriptor is one recorded build.
type BuildDescriptor struct {
	Inputs Inputs
	// Dest is the result address.
	Dest uint64
	// Source is the structure being refit. It equals Dest for in-place
	// updates and is zero for full builds.
	Source  uint64
	Scratch uint64
}

// Update reports whether the build refits an existing structure.
func (d BuildDescriptor) Update() bool { return d.Inputs.Flags&FlagPerformUpdate != 0 }

// Estimate returns conservative prebuild sizes for devices whose
// extension does not report them.
func Estimate(in Inputs) PrebuildInfo {
	const (
		nodeSize = 64
		leafSize = 64
	)
	var prims uint64
	if in.Level == LevelTop {
		prims = uint64(in.InstanceCount)
	} else {
		for _, g := range in.Geometries {
			prims += uint64(g.Primitives())
		}
	}
	if prims == 0 {
		prims = 1
	}
	result := prims*leafSize + (prims-1)*nodeSize + 128
	scratch := prims * 32
	info := PrebuildInfo{ResultSize: result, ScratchSize: scratch}
	if in.Flags&FlagAllowUpdate != 0 {
		info.UpdateScratchSize = scratch / 2
	}
	return info.Aligned()
}

// InstanceSize is the byte size of one serialized instance record.
const InstanceSize = 64

// InstanceRecord is the native instance layout:
//
//	[0:48)  row-major 3x4 float32 transform
//	[48:52) instance id (24 bits) | mask (8 bits) << 24
//	[52:56) hit group index (24 bits) | flags (8 bits) << 24
//	[56:64) BLAS result address
type InstanceRecord struct {
	Transform     [3][4]float32
	InstanceID    uint32
	Mask          uint8
	HitGroupIndex uint32
	Flags         uint8
	BLASAddress   uint64
}

// FromInstance builds the record of inst. The BLAS address is read once;
// the TLAS keeps no reference to the BLAS.
func FromInstance(inst rhi.TLASInstance) InstanceRecord {
	r := InstanceRecord{
		InstanceID:    inst.InstanceID & 0xFFFFFF,
		Mask:          inst.Mask,
		HitGroupIndex: inst.HitGroupIndex & 0xFFFFFF,
		Flags:         uint8(inst.Flags),
	}
	copy(r.Transform[:], inst.Transform[:3])
	if inst.BLAS != nil {
		r.BLASAddress = inst.BLAS.ResultAddress()
	}
	return r
}

// Encode writes the record into dst, which must hold InstanceSize bytes.
func (r InstanceRecord) Encode(dst []byte) {
	_ = dst[InstanceSize-1]
	off := 0
	for row := range r.Transform {
		for col := range r.Transform[row] {
			binary.LittleEndian.PutUint32(dst[off:], math.Float32bits(r.Transform[row][col]))
			off += 4
		}
	}
	binary.LittleEndian.PutUint32(dst[48:], r.InstanceID&0xFFFFFF|uint32(r.Mask)<<24)
	binary.LittleEndian.PutUint32(dst[52:], r.HitGroupIndex&0xFFFFFF|uint32(r.Flags)<<24)
	binary.LittleEndian.PutUint64(dst[56:], r.BLASAddress)
}

// DecodeInstance reads a record written by Encode.
func DecodeInstance(src []byte) InstanceRecord {
	_ = src[InstanceSize-1]
	var r InstanceRecord
	off := 0
	for row := range r.Transform {
		for col := range r.Transform[row] {
			r.Transform[row][col] = math.Float32frombits(binary.LittleEndian.Uint32(src[off:]))
			off += 4
		}
	}
	idMask := binary.LittleEndian.Uint32(src[48:])
	r.InstanceID = idMask & 0xFFFFFF
	r.Mask = uint8(idMask >> 24)
	hitFlags := binary.LittleEndian.Uint32(src[52:])
	r.HitGroupIndex = hitFlags & 0xFFFFFF
	r.Flags = uint8(hitFlags >> 24)
	r.BLASAddress = binary.LittleEndian.Uint64(src[56:])
	return r
}

// SerializeInstances encodes instances into a new buffer image.
func SerializeInstances(instances []rhi.TLASInstance) []byte {
	out := make([]byte, len(instances)*InstanceSize)
	for i, inst := range instances {
		FromInstance(inst).Encode(out[i*InstanceSize:])
	}
	return out
}

// InstanceBufferSize returns the byte size of the instance buffer for n
// instances. An empty TLAS still gets one record of storage.
func InstanceBufferSize(n int) uint64 {
	return uint64(max(n, 1)) * InstanceSize
}
