package rhi

import "errors"

// Backend and device errors.
var (
	// ErrBackendNotRegistered is returned when no backend is registered
	// under the requested name.
	ErrBackendNotRegistered = errors.New("rhi: backend not registered")

	// ErrNoAdapter is returned when the execution layer reports no adapter.
	ErrNoAdapter = errors.New("rhi: no adapter available")

	// ErrDeviceDestroyed is returned by operations on a destroyed device.
	ErrDeviceDestroyed = errors.New("rhi: device destroyed")
)

// Configuration and precondition errors.
var (
	// ErrInvalidDescriptor is returned when a descriptor is malformed.
	ErrInvalidDescriptor = errors.New("rhi: invalid descriptor")

	// ErrLimitExceeded is returned when a layout exceeds the backend's
	// hardware binding limits.
	ErrLimitExceeded = errors.New("rhi: backend limit exceeded")

	// ErrBindTypeMismatch is returned when a bound object does not match
	// the bind type declared by the layout.
	ErrBindTypeMismatch = errors.New("rhi: bind type mismatch")

	// ErrDescriptorHeapFull is returned when a descriptor arena cannot
	// satisfy an allocation.
	ErrDescriptorHeapFull = errors.New("rhi: descriptor heap full")
)

// Command recording errors.
var (
	// ErrNotRecording is returned when recording into a command buffer
	// that has not begun.
	ErrNotRecording = errors.New("rhi: command buffer not recording")

	// ErrAlreadyRecording is returned by Begin on a recording buffer.
	ErrAlreadyRecording = errors.New("rhi: command buffer already recording")

	// ErrPassOpen is returned when a pass is begun while another pass is
	// open, or the buffer is ended with a pass open.
	ErrPassOpen = errors.New("rhi: a pass is already open")

	// ErrNoPassOpen is returned when ending a pass that was never begun.
	ErrNoPassOpen = errors.New("rhi: no pass is open")

	// ErrWrongPass is returned when ending a pass of a different kind than
	// the open one.
	ErrWrongPass = errors.New("rhi: wrong pass kind ended")

	// ErrNotEnded is returned when submitting a buffer that was not ended.
	ErrNotEnded = errors.New("rhi: command buffer not ended")

	// ErrAlreadySubmitted is returned when resubmitting a buffer without
	// resetting it.
	ErrAlreadySubmitted = errors.New("rhi: command buffer already submitted")
)

// Synchronization errors.
var (
	// ErrSemaphoreNotSignaled is returned when a submission waits on a
	// semaphore no earlier submission signals.
	ErrSemaphoreNotSignaled = errors.New("rhi: semaphore wait without pending signal")

	// ErrFenceNotSubmitted is returned when waiting on a fence that no
	// submission will signal.
	ErrFenceNotSubmitted = errors.New("rhi: fence not submitted")
)

// Feature errors.
var (
	// ErrRaytracingNotSupported is returned when creating raytracing
	// objects on a device without raytracing.
	ErrRaytracingNotSupported = errors.New("rhi: raytracing not supported")

	// ErrAccelStructNotBuilt is returned when updating a TLAS whose initial
	// build has not completed on the device.
	ErrAccelStructNotBuilt = errors.New("rhi: acceleration structure not built")

	// ErrQueryOutOfRange is returned when a query index exceeds the heap.
	ErrQueryOutOfRange = errors.New("rhi: query index out of range")

	// ErrNotImplemented is returned by operations the RHI documents but
	// does not provide. It is never returned for a silent no-op.
	ErrNotImplemented = errors.New("rhi: not implemented")
)
