// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import (
	"bytes"
	"errors"
	"testing"
	"unsafe"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/accel"
	"github.com/gogpu/rhi/internal/driver/driverfake"
)

func mustBLAS(t *testing.T, d *Device) *BLAS {
	t.Helper()
	vb, err := d.CreateBuffer(&rhi.BufferDescriptor{
		Size:  3 * 12,
		Usage: rhi.BufferUsageAccelStructInput,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(vb.Destroy)
	b, err := d.CreateBLAS(&rhi.BLASDescriptor{
		Geometries: []rhi.Geometry{{
			Type:         rhi.GeometryTriangles,
			Flags:        rhi.GeometryOpaque,
			Vertices:     rhi.BufferRef{Buffer: vb, Stride: 12, Count: 3},
			VertexFormat: gputypes.VertexFormatFloat32x3,
		}},
	})
	if err != nil {
		t.Fatalf("CreateBLAS() error = %v", err)
	}
	t.Cleanup(b.Destroy)
	return b.(*BLAS)
}

func instances(blas rhi.BLAS, n int, shift float32) []rhi.TLASInstance {
	out := make([]rhi.TLASInstance, n)
	for i := range out {
		m := rhi.IdentityTransform()
		m[0][3] = float32(i) + shift
		out[i] = rhi.TLASInstance{InstanceID: uint32(i), Mask: 0xFF, Transform: m, BLAS: blas}
	}
	return out
}

func mustTLAS(t *testing.T, d *Device, inst []rhi.TLASInstance, flags rhi.BuildFlags) *TLAS {
	t.Helper()
	tl, err := d.CreateTLAS(&rhi.TLASDescriptor{Instances: inst, Flags: flags})
	if err != nil {
		t.Fatalf("CreateTLAS() error = %v", err)
	}
	t.Cleanup(tl.Destroy)
	return tl.(*TLAS)
}

// mapped returns the current contents of an upload buffer.
func mapped(t *testing.T, b *Buffer) []byte {
	t.Helper()
	m, err := b.dev.hal.MapBuffer(b.hal, 0, b.size)
	if err != nil {
		t.Fatalf("MapBuffer() error = %v", err)
	}
	defer func() { _ = b.dev.hal.UnmapBuffer(b.hal) }()
	return bytes.Clone(unsafe.Slice((*byte)(m.Ptr), b.size))
}

func TestAccelStructSizes(t *testing.T) {
	d, _ := newRTDevice(t)
	b := mustBLAS(t, d)
	if b.ResultAddress()%accel.ResultAlignment != 0 {
		t.Errorf("ResultAddress() = %#x, want %d-aligned", b.ResultAddress(), accel.ResultAlignment)
	}
	if b.ResultSize() < accel.ResultAlignment || b.ScratchSize() < accel.ScratchAlignment {
		t.Errorf("sizes = %d/%d, want at least %d/%d",
			b.ResultSize(), b.ScratchSize(), accel.ResultAlignment, accel.ScratchAlignment)
	}
	if got := len(b.Geometries()); got != 1 {
		t.Errorf("Geometries() = %d, want 1", got)
	}

	if _, err := d.CreateBLAS(&rhi.BLASDescriptor{}); !errors.Is(err, rhi.ErrInvalidDescriptor) {
		t.Errorf("CreateBLAS(empty) error = %v, want %v", err, rhi.ErrInvalidDescriptor)
	}
	if _, err := d.CreateTLAS(&rhi.TLASDescriptor{Instances: []rhi.TLASInstance{{}}}); !errors.Is(err, rhi.ErrInvalidDescriptor) {
		t.Errorf("CreateTLAS(nil BLAS) error = %v, want %v", err, rhi.ErrInvalidDescriptor)
	}
}

func TestBuildAndBuilt(t *testing.T) {
	d, fake := newRTDevice(t)
	blas := mustBLAS(t, d)
	tlas := mustTLAS(t, d, instances(blas, 2, 0), 0)

	cb := mustCommandBuffer(t, d, rhi.QueueCompute)
	if err := cb.Begin(); err != nil {
		t.Fatal(err)
	}
	enc, err := cb.BeginRaytracingPass(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := enc.BuildBLAS(blas); err != nil {
		t.Fatalf("BuildBLAS() error = %v", err)
	}
	if err := enc.BuildTLAS(tlas); err != nil {
		t.Fatalf("BuildTLAS() error = %v", err)
	}
	if err := cb.EndRaytracingPass(); err != nil {
		t.Fatal(err)
	}

	builds := fake.Builds()
	if len(builds) != 2 {
		t.Fatalf("Builds() = %d, want 2", len(builds))
	}
	if got := builds[0].Inputs.Level; got != accel.LevelBottom {
		t.Errorf("first build level = %s, want %s", got, accel.LevelBottom)
	}
	top := builds[1]
	if top.Dest != tlas.ResultAddress() || top.Update() {
		t.Errorf("TLAS build dest %#x update %v, want %#x false", top.Dest, top.Update(), tlas.ResultAddress())
	}
	if got, want := top.Inputs.InstanceAddress, tlas.instBuf.GPUAddress(); got != want {
		t.Errorf("InstanceAddress = %#x, want %#x", got, want)
	}

	rec := accel.DecodeInstance(mapped(t, tlas.instBuf)[accel.InstanceSize:])
	if rec.BLASAddress != blas.ResultAddress() || rec.InstanceID != 1 {
		t.Errorf("instance 1 = id %d BLAS %#x, want id 1 BLAS %#x", rec.InstanceID, rec.BLASAddress, blas.ResultAddress())
	}

	if tlas.Built() {
		t.Error("Built() = true before submission")
	}
	submit(t, d, cb)
	if !tlas.Built() {
		t.Error("Built() = false after completion")
	}
}

func TestUpdateTLAS(t *testing.T) {
	d, fake := newRTDevice(t)
	blas := mustBLAS(t, d)
	tlas := mustTLAS(t, d, instances(blas, 2, 0), rhi.BuildAllowUpdate)
	static := mustTLAS(t, d, instances(blas, 2, 0), 0)

	record := func(t *testing.T, fn func(rhi.RaytracingEncoder) error) error {
		t.Helper()
		cb := mustCommandBuffer(t, d, rhi.QueueGraphics)
		if err := cb.Begin(); err != nil {
			t.Fatal(err)
		}
		enc, err := cb.BeginRaytracingPass(nil)
		if err != nil {
			t.Fatal(err)
		}
		ferr := fn(enc)
		if err := cb.EndRaytracingPass(); err != nil {
			t.Fatal(err)
		}
		submit(t, d, cb)
		return ferr
	}

	moved := instances(blas, 2, 10)
	err := record(t, func(enc rhi.RaytracingEncoder) error { return enc.UpdateTLAS(tlas, moved) })
	if !errors.Is(err, rhi.ErrAccelStructNotBuilt) {
		t.Errorf("UpdateTLAS() before build error = %v, want %v", err, rhi.ErrAccelStructNotBuilt)
	}

	// A build recorded earlier in the same command buffer allows the update.
	err = record(t, func(enc rhi.RaytracingEncoder) error {
		if err := enc.BuildTLAS(tlas); err != nil {
			return err
		}
		if err := enc.BuildTLAS(static); err != nil {
			return err
		}
		return enc.UpdateTLAS(tlas, moved)
	})
	if err != nil {
		t.Fatalf("UpdateTLAS() after build error = %v", err)
	}

	builds := fake.Builds()
	refit := builds[len(builds)-1]
	if !refit.Update() || refit.Source != tlas.ResultAddress() || refit.Dest != tlas.ResultAddress() {
		t.Errorf("refit = update %v src %#x dst %#x, want in-place update of %#x",
			refit.Update(), refit.Source, refit.Dest, tlas.ResultAddress())
	}
	if got, want := mapped(t, tlas.instBuf), accel.SerializeInstances(moved); !bytes.Equal(got, want) {
		t.Error("instance buffer after refit differs from serialized instances")
	}
	if got := tlas.Instances()[1].Transform[0][3]; got != 11 {
		t.Errorf("Instances()[1] x translation = %v, want 11", got)
	}

	// The refit must read the same bytes a fresh build of the moved
	// instances would.
	fresh := mustTLAS(t, d, moved, rhi.BuildAllowUpdate)
	if !bytes.Equal(mapped(t, tlas.instBuf), mapped(t, fresh.instBuf)) {
		t.Error("refit instance buffer differs from a fresh TLAS of the same instances")
	}

	tests := []struct {
		name string
		tlas *TLAS
		inst []rhi.TLASInstance
		want error
	}{
		{"NoAllowUpdate", static, moved, rhi.ErrInvalidDescriptor},
		{"CountChanged", tlas, instances(blas, 3, 0), rhi.ErrInvalidDescriptor},
		{"NilBLAS", tlas, []rhi.TLASInstance{{}, {}}, rhi.ErrInvalidDescriptor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := record(t, func(enc rhi.RaytracingEncoder) error { return enc.UpdateTLAS(tt.tlas, tt.inst) })
			if !errors.Is(err, tt.want) {
				t.Errorf("UpdateTLAS() error = %v, want %v", err, tt.want)
			}
		})
	}
}

// An update may follow a build recorded earlier in the same command
// buffer. Other command buffers see the build once it is submitted.
func TestUpdateTLASSameBufferBuild(t *testing.T) {
	d, _ := newRTDevice(t)
	blas := mustBLAS(t, d)
	tlas := mustTLAS(t, d, instances(blas, 2, 0), rhi.BuildAllowUpdate)
	moved := instances(blas, 2, 5)

	inPass := func(t *testing.T, cb *CommandBuffer, fn func(rhi.RaytracingEncoder) error) error {
		t.Helper()
		enc, err := cb.BeginRaytracingPass(nil)
		if err != nil {
			t.Fatal(err)
		}
		ferr := fn(enc)
		if err := cb.EndRaytracingPass(); err != nil {
			t.Fatal(err)
		}
		return ferr
	}
	begin := func(t *testing.T, cb *CommandBuffer) {
		t.Helper()
		if err := cb.Begin(); err != nil {
			t.Fatal(err)
		}
	}
	update := func(enc rhi.RaytracingEncoder) error { return enc.UpdateTLAS(tlas, moved) }

	first := mustCommandBuffer(t, d, rhi.QueueGraphics)
	begin(t, first)
	err := inPass(t, first, func(enc rhi.RaytracingEncoder) error {
		if err := enc.BuildTLAS(tlas); err != nil {
			return err
		}
		return update(enc)
	})
	if err != nil {
		t.Fatalf("UpdateTLAS() after build in the same buffer error = %v", err)
	}
	if err := first.End(); err != nil {
		t.Fatal(err)
	}

	second := mustCommandBuffer(t, d, rhi.QueueGraphics)
	begin(t, second)
	if err := inPass(t, second, update); !errors.Is(err, rhi.ErrAccelStructNotBuilt) {
		t.Errorf("UpdateTLAS() before the building buffer is submitted error = %v, want %v", err, rhi.ErrAccelStructNotBuilt)
	}

	begin(t, first)
	if err := inPass(t, first, update); !errors.Is(err, rhi.ErrAccelStructNotBuilt) {
		t.Errorf("UpdateTLAS() after re-Begin dropped the build error = %v, want %v", err, rhi.ErrAccelStructNotBuilt)
	}
	if err := inPass(t, first, func(enc rhi.RaytracingEncoder) error { return enc.BuildTLAS(tlas) }); err != nil {
		t.Fatalf("BuildTLAS() error = %v", err)
	}
	submit(t, d, first)

	third := mustCommandBuffer(t, d, rhi.QueueGraphics)
	begin(t, third)
	if err := inPass(t, third, update); err != nil {
		t.Errorf("UpdateTLAS() after the build was submitted error = %v", err)
	}
}

// rtPipeline creates a pipeline exporting rg, two miss shaders and three
// hit groups.
func rtPipeline(t *testing.T, d *Device, layout rhi.PipelineLayout) *RaytracingPipeline {
	t.Helper()
	fn := func(name string, typ rhi.FunctionType) rhi.Function {
		f, err := d.CreateFunction(&rhi.FunctionDescriptor{ByteCode: []byte(name), EntryName: name, Type: typ})
		if err != nil {
			t.Fatalf("CreateFunction(%s) error = %v", name, err)
		}
		t.Cleanup(f.Destroy)
		return f
	}
	p, err := d.CreateRaytracingPipeline(&rhi.RaytracingPipelineDescriptor{
		Layout: layout,
		Functions: []rhi.Function{
			fn("rg", rhi.FunctionRayGeneration),
			fn("ms0", rhi.FunctionMiss),
			fn("ms1", rhi.FunctionMiss),
			fn("ch", rhi.FunctionClosestHit),
		},
		HitGroups: []rhi.HitGroupDescriptor{
			{Name: "hg0", ClosestHit: "ch"},
			{Name: "hg1", ClosestHit: "ch"},
			{Name: "hg2", ClosestHit: "ch"},
		},
		MaxPayloadSize: 16,
	})
	if err != nil {
		t.Fatalf("CreateRaytracingPipeline() error = %v", err)
	}
	t.Cleanup(p.Destroy)
	return p.(*RaytracingPipeline)
}

func emptyLayout(t *testing.T, d *Device) rhi.PipelineLayout {
	t.Helper()
	l, err := d.CreatePipelineLayout(&rhi.PipelineLayoutDescriptor{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(l.Destroy)
	return l
}

func TestShaderTableLayout(t *testing.T) {
	d, fake := newRTDevice(t)
	p := rtPipeline(t, d, emptyLayout(t, d))

	st, err := d.CreateShaderTable(&rhi.ShaderTableDescriptor{
		RayGen:    rhi.ShaderTableEntry{Name: "rg"},
		Miss:      []rhi.ShaderTableEntry{{Name: "ms0"}, {Name: "ms1"}},
		HitGroups: []rhi.ShaderTableEntry{{Name: "hg0"}, {Name: "hg1"}, {Name: "hg2"}},
	})
	if err != nil {
		t.Fatalf("CreateShaderTable() error = %v", err)
	}
	defer st.Destroy()
	if err := st.Generate(p); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	stride := st.Stride()
	if stride != 64 {
		t.Errorf("Stride() = %d, want 64", stride)
	}
	if got, want := st.Size(), 6*stride; got != want {
		t.Errorf("Size() = %d, want %d", got, want)
	}
	base := st.RayGen().Address
	if base == 0 {
		t.Error("RayGen().Address = 0 after Generate")
	}
	if got, want := st.Miss(), (rhi.ShaderTableRegion{Address: base + stride, Size: 2 * stride, Stride: stride}); got != want {
		t.Errorf("Miss() = %+v, want %+v", got, want)
	}
	if got, want := st.HitGroups(), (rhi.ShaderTableRegion{Address: base + 3*stride, Size: 3 * stride, Stride: stride}); got != want {
		t.Errorf("HitGroups() = %+v, want %+v", got, want)
	}

	records := mapped(t, st.(*ShaderTable).buffer)
	for i, name := range []string{"rg", "ms0", "ms1", "hg0", "hg1", "hg2"} {
		want, _ := p.ShaderIdentifier(name)
		got := records[uint64(i)*stride : uint64(i)*stride+driverfake.IdentifierSize]
		if !bytes.Equal(got, want) {
			t.Errorf("record %d identifier = %x, want %x (%s)", i, got, want, name)
		}
	}

	if err := st.Update(nil); !errors.Is(err, rhi.ErrNotImplemented) {
		t.Errorf("Update() error = %v, want %v", err, rhi.ErrNotImplemented)
	}

	cb := mustCommandBuffer(t, d, rhi.QueueCompute)
	if err := cb.Begin(); err != nil {
		t.Fatal(err)
	}
	enc, err := cb.BeginRaytracingPass(nil)
	if err != nil {
		t.Fatal(err)
	}
	mustPanic(t, rhi.ErrInvalidDescriptor, func() { enc.DispatchRays(st, 8, 8, 1) })
	enc.SetPipeline(p)
	enc.DispatchRays(st, 8, 0, 0)
	if err := cb.EndRaytracingPass(); err != nil {
		t.Fatal(err)
	}

	ds := fake.Dispatches()
	if len(ds) != 1 {
		t.Fatalf("Dispatches() = %d, want 1", len(ds))
	}
	if ds[0].HitGroups != st.HitGroups() || ds[0].Width != 8 || ds[0].Height != 1 || ds[0].Depth != 1 {
		t.Errorf("dispatch = %+v, want hit region %+v and 8x1x1", ds[0], st.HitGroups())
	}
}

func TestShaderTableUnknownExport(t *testing.T) {
	d, _ := newRTDevice(t)
	p := rtPipeline(t, d, emptyLayout(t, d))
	st, err := d.CreateShaderTable(&rhi.ShaderTableDescriptor{RayGen: rhi.ShaderTableEntry{Name: "missing"}})
	if err != nil {
		t.Fatal(err)
	}
	defer st.Destroy()
	if err := st.Generate(p); err == nil {
		t.Error("Generate() with unknown export = nil error")
	}
	if _, err := d.CreateShaderTable(&rhi.ShaderTableDescriptor{}); !errors.Is(err, rhi.ErrInvalidDescriptor) {
		t.Errorf("CreateShaderTable(no raygen) error = %v, want %v", err, rhi.ErrInvalidDescriptor)
	}
}

func TestRaytracingBindAccelStruct(t *testing.T) {
	d, fake := newRTDevice(t)
	blas := mustBLAS(t, d)
	tlas := mustTLAS(t, d, instances(blas, 1, 0), 0)

	btl, err := d.CreateBindTableLayout(&rhi.BindTableLayoutDescriptor{
		Elements: []rhi.BindTableLayoutElement{
			{Slot: 0, Type: rhi.BindTypeAccelStruct, Visibility: rhi.ShaderStageCompute},
		},
	})
	if err != nil {
		t.Fatalf("CreateBindTableLayout() error = %v", err)
	}
	defer btl.Destroy()
	table, err := d.CreateBindTable(&rhi.BindTableDescriptor{Layout: btl, Elements: []rhi.BindElement{tlas}})
	if err != nil {
		t.Fatalf("CreateBindTable() error = %v", err)
	}
	defer table.Destroy()
	layout, err := d.CreatePipelineLayout(&rhi.PipelineLayoutDescriptor{Tables: []rhi.BindTableLayout{btl}})
	if err != nil {
		t.Fatal(err)
	}
	defer layout.Destroy()
	p := rtPipeline(t, d, layout)

	param, ok := layout.Resolve(rhi.BindStageCompute, 0, 0, rhi.BindTypeAccelStruct)
	if !ok {
		t.Fatal("Resolve() = false for the acceleration structure")
	}

	cb := mustCommandBuffer(t, d, rhi.QueueCompute)
	if err := cb.Begin(); err != nil {
		t.Fatal(err)
	}
	enc, err := cb.BeginRaytracingPass(nil)
	if err != nil {
		t.Fatal(err)
	}
	enc.SetPipeline(p)
	enc.SetBindTable(table, 0)
	if got, ok := fake.BoundAccelStruct(param); !ok || got != tlas.ResultAddress() {
		t.Errorf("BoundAccelStruct(%d) = %#x, %v, want %#x, true", param, got, ok, tlas.ResultAddress())
	}
	if got := table.Handle(0); got != tlas.Native() {
		t.Errorf("Handle(0) = %#x, want %#x", got, tlas.Native())
	}
	if _, ok := fake.BoundDescriptorTable(param); ok {
		t.Errorf("BoundDescriptorTable(%d) set for an acceleration structure", param)
	}
}
