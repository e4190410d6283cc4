package rhi

import "errors"

// Record begins cb, runs fn and ends cb. End runs on every exit path,
// including a panic in fn; its error is joined with fn's.
func Record(cb CommandBuffer, fn func() error) (err error) {
	if err := cb.Begin(); err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, cb.End())
	}()
	return fn()
}

// TransferPass opens a transfer pass on cb for the duration of fn.
func TransferPass(cb CommandBuffer, desc *TransferPassDescriptor, fn func(TransferEncoder) error) (err error) {
	enc, err := cb.BeginTransferPass(desc)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, cb.EndTransferPass())
	}()
	return fn(enc)
}

// ComputePass opens a compute pass on cb for the duration of fn.
func ComputePass(cb CommandBuffer, desc *ComputePassDescriptor, fn func(ComputeEncoder) error) (err error) {
	enc, err := cb.BeginComputePass(desc)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, cb.EndComputePass())
	}()
	return fn(enc)
}

// RasterPass opens a raster pass on cb for the duration of fn.
func RasterPass(cb CommandBuffer, desc *RasterPassDescriptor, fn func(RasterEncoder) error) (err error) {
	enc, err := cb.BeginRasterPass(desc)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, cb.EndRasterPass())
	}()
	return fn(enc)
}

// RaytracingPass opens a raytracing pass on cb for the duration of fn.
func RaytracingPass(cb CommandBuffer, desc *RaytracingPassDescriptor, fn func(RaytracingEncoder) error) (err error) {
	enc, err := cb.BeginRaytracingPass(desc)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, cb.EndRaytracingPass())
	}()
	return fn(enc)
}
