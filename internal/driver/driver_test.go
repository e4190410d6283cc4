// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/binding"
	"github.com/gogpu/rhi/internal/driver/driverfake"
	"github.com/gogpu/rhi/internal/sbt"
)

// flatModel places every element at its flat parameter index.
type flatModel struct{}

func (flatModel) Place(table uint32, pos int, e rhi.BindTableLayoutElement, index uint32) binding.Param {
	return binding.Param{Index: index, Group: table, Binding: uint32(pos), Class: e.Type.Class()}
}

func (flatModel) Limits() binding.Limits { return binding.Limits{} }

// stateBarrier is a native barrier that keeps the states verbatim.
type stateBarrier struct{ before, after rhi.ResourceState }

func (b stateBarrier) States() (before, after rhi.ResourceState) { return b.before, b.after }

type testNative struct{}

func (testNative) Backend() rhi.Backend                         { return rhi.BackendVulkan }
func (testNative) Variant() gputypes.Backend                    { return gputypes.BackendEmpty }
func (testNative) BindingModel(gputypes.Limits) binding.Model   { return flatModel{} }
func (testNative) ShaderTableParams() sbt.Params                { return sbt.DX12Params }
func (testNative) DescriptorSize() uint32                       { return 32 }
func (testNative) TranslateBarrier(b rhi.Barrier) NativeBarrier { return stateBarrier{b.Before().State, b.After().State} }

func testConfig() rhi.Config {
	cfg := rhi.DefaultConfig()
	cfg.Execution = rhi.ExecutionNoop
	cfg.Validation = true
	return cfg.Normalize()
}

// newTestDevice opens a device on the hal noop backend.
func newTestDevice(t *testing.T) *Device {
	t.Helper()
	return openNoop(t, testNative{}, nil)
}

// openNoop opens a device for native on the hal noop backend. A non-nil
// wrap replaces the hal device before the driver sees it.
func openNoop(t *testing.T, native Native, wrap func(hal.Device) hal.Device) *Device {
	t.Helper()
	open, err := (&noop.Adapter{}).Open(0, gputypes.DefaultLimits())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if wrap != nil {
		open.Device = wrap(open.Device)
	}
	inst := NewInstance(testConfig(), native)
	dev := inst.OpenDevice(open, hal.ExposedAdapter{
		Adapter:      &noop.Adapter{},
		Info:         gputypes.AdapterInfo{Name: "Noop Adapter"},
		Capabilities: hal.Capabilities{Limits: gputypes.DefaultLimits()},
	})
	t.Cleanup(inst.Destroy)
	return dev
}

// newRTDevice opens a device on the raytracing fake.
func newRTDevice(t *testing.T) (*Device, *driverfake.Device) {
	t.Helper()
	fake, open, adapter := driverfake.Open()
	inst := NewInstance(testConfig(), testNative{})
	dev := inst.OpenDevice(open, adapter)
	t.Cleanup(inst.Destroy)
	return dev, fake
}

func mustCommandBuffer(t *testing.T, d *Device, q rhi.QueueType) *CommandBuffer {
	t.Helper()
	c, err := d.CreateCommandBuffer(q)
	if err != nil {
		t.Fatalf("CreateCommandBuffer(%s) error = %v", q, err)
	}
	t.Cleanup(c.Destroy)
	return c.(*CommandBuffer)
}

// submit ends cb and submits it on its own queue type.
func submit(t *testing.T, d *Device, cb *CommandBuffer) {
	t.Helper()
	if err := cb.End(); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if err := d.Queue(cb.queue).Submit(cb, nil, nil, nil); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
}

func mustPanic(t *testing.T, want error, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		if r == nil {
			t.Fatalf("no panic, want %v", want)
		}
		err, ok := r.(error)
		if want != nil && (!ok || !errors.Is(err, want)) {
			t.Fatalf("panic %v, want %v", r, want)
		}
	}()
	fn()
}

func TestCreateDeviceNoop(t *testing.T) {
	inst := NewInstance(testConfig(), testNative{})
	defer inst.Destroy()

	dev, err := inst.CreateDevice()
	if err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}
	if got := dev.Backend(); got != rhi.BackendVulkan {
		t.Errorf("Backend() = %s, want %s", got, rhi.BackendVulkan)
	}
	if dev.IsRaytracingSupported() {
		t.Error("IsRaytracingSupported() = true on the noop backend")
	}
	if got := dev.Limits().MaxBindGroups; got == 0 {
		t.Error("Limits().MaxBindGroups = 0, want adapter limits")
	}
}

func TestCreateDeviceBadExecution(t *testing.T) {
	cfg := testConfig()
	cfg.Execution = "simulated"
	inst := NewInstance(cfg, testNative{})
	defer inst.Destroy()
	if _, err := inst.CreateDevice(); !errors.Is(err, rhi.ErrInvalidDescriptor) {
		t.Errorf("CreateDevice() error = %v, want %v", err, rhi.ErrInvalidDescriptor)
	}
}

func TestDeviceDestroyed(t *testing.T) {
	d := newTestDevice(t)
	d.Destroy()
	d.Destroy()
	if _, err := d.CreateCommandBuffer(rhi.QueueGraphics); !errors.Is(err, rhi.ErrDeviceDestroyed) {
		t.Errorf("CreateCommandBuffer() error = %v, want %v", err, rhi.ErrDeviceDestroyed)
	}
	if err := d.WaitIdle(); !errors.Is(err, rhi.ErrDeviceDestroyed) {
		t.Errorf("WaitIdle() error = %v, want %v", err, rhi.ErrDeviceDestroyed)
	}
}

func TestBufferWriteRead(t *testing.T) {
	d := newTestDevice(t)

	rb, err := d.CreateBuffer(&rhi.BufferDescriptor{Size: 16, Storage: rhi.StorageReadback})
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	defer rb.Destroy()

	want := []byte{1, 2, 3, 4}
	if err := rb.Write(4, want); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got := make([]byte, 4)
	if err := rb.Read(4, got); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("Read() = %v, want %v", got, want)
	}

	if err := rb.Write(14, want); !errors.Is(err, rhi.ErrInvalidDescriptor) {
		t.Errorf("Write() overflow error = %v, want %v", err, rhi.ErrInvalidDescriptor)
	}
	if err := rb.Read(14, got); !errors.Is(err, rhi.ErrInvalidDescriptor) {
		t.Errorf("Read() overflow error = %v, want %v", err, rhi.ErrInvalidDescriptor)
	}

	up, err := d.CreateBuffer(&rhi.BufferDescriptor{Size: 16, Storage: rhi.StorageUpload})
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	defer up.Destroy()
	if err := up.Write(0, want); err != nil {
		t.Errorf("Write() upload error = %v", err)
	}
	if err := up.Read(0, got); !errors.Is(err, rhi.ErrInvalidDescriptor) {
		t.Errorf("Read() upload error = %v, want %v", err, rhi.ErrInvalidDescriptor)
	}
}

func TestBufferAddresses(t *testing.T) {
	d := newTestDevice(t)
	a, _ := d.CreateBuffer(&rhi.BufferDescriptor{Size: 10})
	b, _ := d.CreateBuffer(&rhi.BufferDescriptor{Size: 10})
	if a.GPUAddress() == 0 || a.GPUAddress()%256 != 0 {
		t.Errorf("GPUAddress() = %#x, want non-zero and 256-aligned", a.GPUAddress())
	}
	if got, want := b.GPUAddress()-a.GPUAddress(), uint64(256); got != want {
		t.Errorf("address gap = %d, want %d", got, want)
	}
	if _, err := d.CreateBuffer(&rhi.BufferDescriptor{}); !errors.Is(err, rhi.ErrInvalidDescriptor) {
		t.Errorf("CreateBuffer(size 0) error = %v, want %v", err, rhi.ErrInvalidDescriptor)
	}
}

func TestSamplerDedup(t *testing.T) {
	d := newTestDevice(t)
	linear := rhi.SamplerDescriptor{MagFilter: gputypes.FilterModeLinear, MinFilter: gputypes.FilterModeLinear}

	a, err := d.CreateSampler(&rhi.SamplerDescriptor{Label: "a", MagFilter: linear.MagFilter, MinFilter: linear.MinFilter})
	if err != nil {
		t.Fatalf("CreateSampler() error = %v", err)
	}
	b, _ := d.CreateSampler(&rhi.SamplerDescriptor{Label: "b", MagFilter: linear.MagFilter, MinFilter: linear.MinFilter})
	c, _ := d.CreateSampler(&rhi.SamplerDescriptor{MagFilter: gputypes.FilterModeNearest})

	if a.(*Sampler).entry != b.(*Sampler).entry {
		t.Error("equal descriptors with different labels got different hal samplers")
	}
	if a.(*Sampler).entry == c.(*Sampler).entry {
		t.Error("different descriptors share a hal sampler")
	}
	if got := a.Label(); got != "a" {
		t.Errorf("Label() = %q, want %q", got, "a")
	}
	st := d.SamplerStats()
	if st.Hits != 1 || st.Misses != 2 {
		t.Errorf("SamplerStats() = %d hits %d misses, want 1 hits 2 misses", st.Hits, st.Misses)
	}

	a.Destroy()
	a.Destroy()
	e := b.(*Sampler).entry
	if e.destroyed {
		t.Error("shared sampler destroyed while still referenced")
	}
}

func TestNotImplemented(t *testing.T) {
	d := newTestDevice(t)
	if _, err := d.CreateIndirectCommandBuffer(&rhi.IndirectCommandBufferDescriptor{}); !errors.Is(err, rhi.ErrNotImplemented) {
		t.Errorf("CreateIndirectCommandBuffer() error = %v, want %v", err, rhi.ErrNotImplemented)
	}
	if err := d.Queue(rhi.QueueGraphics).UpdateTileMappings(nil, nil); !errors.Is(err, rhi.ErrNotImplemented) {
		t.Errorf("UpdateTileMappings() error = %v, want %v", err, rhi.ErrNotImplemented)
	}

	cb := mustCommandBuffer(t, d, rhi.QueueTransfer)
	if err := cb.Begin(); err != nil {
		t.Fatal(err)
	}
	enc, err := cb.BeginTransferPass(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := enc.CopyAccelStruct(nil, nil); !errors.Is(err, rhi.ErrNotImplemented) {
		t.Errorf("CopyAccelStruct() error = %v, want %v", err, rhi.ErrNotImplemented)
	}
}

func TestRaytracingNotSupported(t *testing.T) {
	d := newTestDevice(t)
	tests := []struct {
		name string
		fn   func() error
	}{
		{"CreateBLAS", func() error { _, err := d.CreateBLAS(&rhi.BLASDescriptor{}); return err }},
		{"CreateTLAS", func() error { _, err := d.CreateTLAS(&rhi.TLASDescriptor{}); return err }},
		{"CreateShaderTable", func() error { _, err := d.CreateShaderTable(&rhi.ShaderTableDescriptor{}); return err }},
		{"CreateRaytracingPipeline", func() error {
			_, err := d.CreateRaytracingPipeline(&rhi.RaytracingPipelineDescriptor{})
			return err
		}},
		{"CreateFunction", func() error {
			_, err := d.CreateFunction(&rhi.FunctionDescriptor{
				ByteCode: []byte("rg"), EntryName: "rg", Type: rhi.FunctionRayGeneration,
			})
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, rhi.ErrRaytracingNotSupported) {
				t.Errorf("%s() error = %v, want %v", tt.name, err, rhi.ErrRaytracingNotSupported)
			}
		})
	}

	// A raytracing pass still opens and closes without the extension, and
	// dispatches record nothing.
	cb := mustCommandBuffer(t, d, rhi.QueueCompute)
	if err := cb.Begin(); err != nil {
		t.Fatal(err)
	}
	enc, err := cb.BeginRaytracingPass(nil)
	if err != nil {
		t.Fatalf("BeginRaytracingPass() error = %v", err)
	}
	st, _ := d.CreateShaderTable(&rhi.ShaderTableDescriptor{RayGen: rhi.ShaderTableEntry{Name: "rg"}})
	enc.DispatchRays(st, 8, 8, 1)
	enc.DispatchRays(nil, 8, 8, 1)
	if err := cb.EndRaytracingPass(); err != nil {
		t.Fatalf("EndRaytracingPass() error = %v", err)
	}
	submit(t, d, cb)
}
