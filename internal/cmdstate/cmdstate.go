// Package cmdstate tracks the recording state of a command buffer.
//
// State machine:
//
//	Initial      -> Begin()       -> Recording
//	Recording    -> BeginPass(k)  -> EncodingPass(k)
//	EncodingPass -> EndPass(k)    -> Recording
//	Recording    -> End()         -> Ended
//	Ended        -> Submit()      -> Submitted
//	Ended        -> Reset()       -> Initial
//	Submitted    -> Reset()       -> Initial
//	Ended        -> Begin()       -> Recording
//	Submitted    -> Begin()       -> Recording
//
// A Machine is not safe for concurrent use; command buffers are recorded
// from a single goroutine.
package cmdstate

import (
	"fmt"

	"github.com/gogpu/rhi"
)

// Pass is the kind of the open pass.
type Pass uint8

const (
	PassNone Pass = iota
	PassTransfer
	PassCompute
	PassRaster
	PassRaytracing
)

func (p Pass) String() string {
	switch p {
	case PassNone:
		return "None"
	case PassTransfer:
		return "Transfer"
	case PassCompute:
		return "Compute"
	case PassRaster:
		return "Raster"
	case PassRaytracing:
		return "Raytracing"
	default:
		return fmt.Sprintf("Pass(%d)", uint8(p))
	}
}

// Machine is the command buffer state machine.
type Machine struct {
	state rhi.CommandBufferState
	pass  Pass
}

// State returns the current state.
func (m *Machine) State() rhi.CommandBufferState { return m.state }

// Pass returns the kind of the open pass, or PassNone.
func (m *Machine) Pass() Pass { return m.pass }

// Begin moves Initial, Ended or Submitted to Recording. The caller resets
// whatever the previous recording left behind.
func (m *Machine) Begin() error {
	switch m.state {
	case rhi.CommandBufferInitial, rhi.CommandBufferEnded, rhi.CommandBufferSubmitted:
		m.state = rhi.CommandBufferRecording
		m.pass = PassNone
		return nil
	default:
		return fmt.Errorf("%w: begin in state %s", rhi.ErrAlreadyRecording, m.state)
	}
}

// BeginPass opens a pass of kind p.
func (m *Machine) BeginPass(p Pass) error {
	switch m.state {
	case rhi.CommandBufferRecording:
		m.state = rhi.CommandBufferEncodingPass
		m.pass = p
		return nil
	case rhi.CommandBufferEncodingPass:
		return fmt.Errorf("%w: cannot begin %s pass inside %s pass", rhi.ErrPassOpen, p, m.pass)
	default:
		return fmt.Errorf("%w: begin %s pass in state %s", rhi.ErrNotRecording, p, m.state)
	}
}

// EndPass closes the open pass, which must be of kind p.
func (m *Machine) EndPass(p Pass) error {
	switch m.state {
	case rhi.CommandBufferEncodingPass:
		if m.pass != p {
			return fmt.Errorf("%w: end %s pass while %s pass is open", rhi.ErrWrongPass, p, m.pass)
		}
		m.state = rhi.CommandBufferRecording
		m.pass = PassNone
		return nil
	case rhi.CommandBufferRecording:
		return fmt.Errorf("%w: end %s pass", rhi.ErrNoPassOpen, p)
	default:
		return fmt.Errorf("%w: end %s pass in state %s", rhi.ErrNotRecording, p, m.state)
	}
}

// InPass reports whether a pass of kind p is open.
func (m *Machine) InPass(p Pass) bool {
	return m.state == rhi.CommandBufferEncodingPass && m.pass == p
}

// Recording reports whether commands may be recorded outside a pass.
func (m *Machine) Recording() bool { return m.state == rhi.CommandBufferRecording }

// End moves Recording to Ended.
func (m *Machine) End() error {
	switch m.state {
	case rhi.CommandBufferRecording:
		m.state = rhi.CommandBufferEnded
		return nil
	case rhi.CommandBufferEncodingPass:
		return fmt.Errorf("%w: end with %s pass open", rhi.ErrPassOpen, m.pass)
	default:
		return fmt.Errorf("%w: end in state %s", rhi.ErrNotRecording, m.state)
	}
}

// CanSubmit reports whether the buffer may be submitted.
func (m *Machine) CanSubmit() error {
	switch m.state {
	case rhi.CommandBufferEnded:
		return nil
	case rhi.CommandBufferSubmitted:
		return rhi.ErrAlreadySubmitted
	default:
		return fmt.Errorf("%w: state %s", rhi.ErrNotEnded, m.state)
	}
}

// Submit moves Ended to Submitted.
func (m *Machine) Submit() error {
	if err := m.CanSubmit(); err != nil {
		return err
	}
	m.state = rhi.CommandBufferSubmitted
	return nil
}

// Reset returns an Ended or Submitted buffer to Initial. Resetting an
// Initial buffer is a no-op.
func (m *Machine) Reset() error {
	switch m.state {
	case rhi.CommandBufferInitial, rhi.CommandBufferEnded, rhi.CommandBufferSubmitted:
		m.state = rhi.CommandBufferInitial
		m.pass = PassNone
		return nil
	default:
		return fmt.Errorf("%w: reset in state %s", rhi.ErrAlreadyRecording, m.state)
	}
}

// Abort drops any open pass and returns to Initial. It is used when the
// backing encoder is discarded.
func (m *Machine) Abort() {
	m.state = rhi.CommandBufferInitial
	m.pass = PassNone
}
