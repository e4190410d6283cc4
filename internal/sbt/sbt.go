// Package sbt computes shader binding table layouts and writes shader
// identifiers into table memory.
package sbt

import (
	"fmt"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/accel"
)

// LocalParamSize is the byte size of one local root parameter in a record.
const LocalParamSize = 8

// Params are the backend constants that shape a table.
type Params struct {
	// IdentifierSize is the byte size of an opaque shader identifier.
	IdentifierSize uint32
	// RecordAlignment is the alignment of one record.
	RecordAlignment uint32
	// TableAlignment is the alignment of a table start, and of the stride.
	TableAlignment uint32
}

// DX12Params are the D3D12 raytracing constants.
var DX12Params = Params{IdentifierSize: 32, RecordAlignment: 32, TableAlignment: 64}

// Stride returns the record stride for a pipeline whose largest local
// layout has maxLocalParams parameters.
func (p Params) Stride(maxLocalParams uint32) uint64 {
	rec := accel.AlignUp(uint64(p.IdentifierSize), uint64(p.RecordAlignment))
	rec = max(rec, uint64(maxLocalParams)*LocalParamSize)
	return accel.AlignUp(rec, uint64(p.TableAlignment))
}

// Layout is the placement of records in one table buffer: the ray
// generation record, then miss records, then hit group records.
type Layout struct {
	Stride    uint64
	MissCount uint32
	HitCount  uint32
}

// NewLayout lays out a table for desc.
func NewLayout(p Params, maxLocalParams uint32, desc *rhi.ShaderTableDescriptor) Layout {
	return Layout{
		Stride:    p.Stride(maxLocalParams),
		MissCount: uint32(len(desc.Miss)),
		HitCount:  uint32(len(desc.HitGroups)),
	}
}

// Records returns the total record count.
func (l Layout) Records() uint32 { return 1 + l.MissCount + l.HitCount }

// Size returns the byte size of the table.
func (l Layout) Size() uint64 { return uint64(l.Records()) * l.Stride }

// MissOffset returns the byte offset of the first miss record.
func (l Layout) MissOffset() uint64 { return l.Stride }

// HitOffset returns the byte offset of the first hit group record.
func (l Layout) HitOffset() uint64 { return uint64(1+l.MissCount) * l.Stride }

// RayGen returns the ray generation region of a table at base.
func (l Layout) RayGen(base uint64) rhi.ShaderTableRegion {
	return rhi.ShaderTableRegion{Address: base, Size: l.Stride, Stride: l.Stride}
}

// Miss returns the miss region of a table at base.
func (l Layout) Miss(base uint64) rhi.ShaderTableRegion {
	return rhi.ShaderTableRegion{
		Address: base + l.MissOffset(),
		Size:    uint64(l.MissCount) * l.Stride,
		Stride:  l.Stride,
	}
}

// HitGroups returns the hit group region of a table at base.
func (l Layout) HitGroups(base uint64) rhi.ShaderTableRegion {
	return rhi.ShaderTableRegion{
		Address: base + l.HitOffset(),
		Size:    uint64(l.HitCount) * l.Stride,
		Stride:  l.Stride,
	}
}

// Names returns the export names of desc in record order.
func Names(desc *rhi.ShaderTableDescriptor) []string {
	names := make([]string, 0, 1+len(desc.Miss)+len(desc.HitGroups))
	names = append(names, desc.RayGen.Name)
	for _, e := range desc.Miss {
		names = append(names, e.Name)
	}
	for _, e := range desc.HitGroups {
		names = append(names, e.Name)
	}
	return names
}

// IdentifierSource looks up shader identifiers by export name.
type IdentifierSource interface {
	ShaderIdentifier(name string) ([]byte, bool)
}

// Write copies the identifier of every record into dst in record order.
// dst must be at least l.Size() bytes.
func Write(dst []byte, l Layout, desc *rhi.ShaderTableDescriptor, ids IdentifierSource) error {
	if uint64(len(dst)) < l.Size() {
		return fmt.Errorf("sbt: buffer of %d bytes, table needs %d", len(dst), l.Size())
	}
	for i, name := range Names(desc) {
		id, ok := ids.ShaderIdentifier(name)
		if !ok {
			return fmt.Errorf("%w: no shader identifier for export %q", rhi.ErrInvalidDescriptor, name)
		}
		if uint64(len(id)) > l.Stride {
			return fmt.Errorf("sbt: identifier of %q is %d bytes, stride %d", name, len(id), l.Stride)
		}
		off := uint64(i) * l.Stride
		copy(dst[off:off+l.Stride], id)
	}
	return nil
}
