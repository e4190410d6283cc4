// Package rhi is a render hardware interface over DX12, Metal and Vulkan.
//
// # Overview
//
// rhi exposes one explicit GPU API with bind tables, resource barriers,
// queue submission and hardware raytracing. A backend translates the
// portable model into its native one: bind tables become root parameters,
// argument buffers or descriptor sets, and barriers become D3D12 resource
// states, Metal usage barriers or Vulkan pipeline barriers. Commands are
// executed through the gogpu/wgpu hal.
//
// # Quick Start
//
//	import (
//		"github.com/gogpu/rhi"
//		_ "github.com/gogpu/rhi/backend/all"
//	)
//
//	inst := rhi.MustCreateInstance(rhi.DefaultConfig())
//	defer inst.Destroy()
//
//	dev, err := inst.CreateDevice()
//	if err != nil {
//		return err
//	}
//	defer dev.Destroy()
//
//	cb, _ := dev.CreateCommandBuffer(rhi.QueueGraphics)
//	err = rhi.Record(cb, func() error {
//		return rhi.ComputePass(cb, nil, func(enc rhi.ComputeEncoder) error {
//			enc.SetPipeline(pipeline)
//			enc.SetBindTable(table, 0)
//			enc.Dispatch(64, 1, 1)
//			return nil
//		})
//	})
//
// # Backends
//
// Backends register themselves when imported. The backend is fixed when
// the Instance is created; CreateInstance picks PlatformBackend when the
// configuration names none.
//
//   - backend/dx12: root signatures, D3D12 resource states
//   - backend/metal: argument buffers, usage barriers and fences
//   - backend/vulkan: descriptor sets, pipeline barriers
//
// Config.Execution selects the hal layer behind a backend. The noop layer
// runs the full translation without a GPU and is what the tests use.
//
// # Binding Model
//
// A BindTableLayout declares elements by (slot, type, visibility). A
// PipelineLayout resolves every element visible to a stage to a native
// parameter index; PipelineLayout.Resolve reports it. An element with
// Count greater than one is a bindless array.
//
// # Synchronization
//
// Resources carry the state of their last recorded barrier. Barriers are
// batched and flushed before the next draw, dispatch, copy or pass change.
// A barrier whose access names two queues transfers ownership between
// them; pair it with a Semaphore between the submissions.
//
// # Logging
//
// rhi is silent by default. SetLogger installs any slog.Logger for rhi and
// its backends.
package rhi
