package rhi

import (
	"errors"
	"testing"
)

// recorder is a CommandBuffer that records lifecycle calls.
type recorder struct {
	CommandBuffer
	calls    []string
	beginErr error
	endErr   error
}

func (r *recorder) Begin() error {
	r.calls = append(r.calls, "Begin")
	return r.beginErr
}

func (r *recorder) End() error {
	r.calls = append(r.calls, "End")
	return r.endErr
}

func (r *recorder) BeginComputePass(*ComputePassDescriptor) (ComputeEncoder, error) {
	r.calls = append(r.calls, "BeginComputePass")
	return nil, nil
}

func (r *recorder) EndComputePass() error {
	r.calls = append(r.calls, "EndComputePass")
	return nil
}

func (r *recorder) BeginTransferPass(*TransferPassDescriptor) (TransferEncoder, error) {
	r.calls = append(r.calls, "BeginTransferPass")
	return nil, ErrPassOpen
}

func TestRecord(t *testing.T) {
	fnErr := errors.New("fn failed")
	endErr := errors.New("end failed")
	tests := []struct {
		name      string
		rec       *recorder
		fn        func(cb CommandBuffer) error
		wantErrs  []error
		wantCalls int
	}{
		{
			name:      "OK",
			rec:       &recorder{},
			fn:        func(CommandBuffer) error { return nil },
			wantCalls: 2,
		},
		{
			name:      "FnError",
			rec:       &recorder{},
			fn:        func(CommandBuffer) error { return fnErr },
			wantErrs:  []error{fnErr},
			wantCalls: 2,
		},
		{
			name:      "BothErrors",
			rec:       &recorder{endErr: endErr},
			fn:        func(CommandBuffer) error { return fnErr },
			wantErrs:  []error{fnErr, endErr},
			wantCalls: 2,
		},
		{
			name:      "BeginError",
			rec:       &recorder{beginErr: ErrAlreadyRecording},
			fn:        func(CommandBuffer) error { return fnErr },
			wantErrs:  []error{ErrAlreadyRecording},
			wantCalls: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Record(tt.rec, func() error { return tt.fn(tt.rec) })
			for _, want := range tt.wantErrs {
				if !errors.Is(err, want) {
					t.Errorf("Record() error = %v, want %v", err, want)
				}
			}
			if tt.wantErrs == nil && err != nil {
				t.Errorf("Record() error = %v, want nil", err)
			}
			if len(tt.rec.calls) != tt.wantCalls {
				t.Errorf("calls = %v, want %d calls", tt.rec.calls, tt.wantCalls)
			}
		})
	}
}

func TestRecordEndsOnPanic(t *testing.T) {
	rec := &recorder{}
	defer func() {
		if recover() == nil {
			t.Fatal("Record() swallowed the panic")
		}
		if len(rec.calls) != 2 || rec.calls[1] != "End" {
			t.Errorf("calls = %v, want End after panic", rec.calls)
		}
	}()
	_ = Record(rec, func() error { panic("boom") })
}

func TestComputePass(t *testing.T) {
	rec := &recorder{}
	ran := false
	err := ComputePass(rec, nil, func(ComputeEncoder) error {
		ran = true
		return nil
	})
	if err != nil || !ran {
		t.Fatalf("ComputePass() = %v, ran %v", err, ran)
	}
	if want := []string{"BeginComputePass", "EndComputePass"}; len(rec.calls) != 2 || rec.calls[0] != want[0] || rec.calls[1] != want[1] {
		t.Errorf("calls = %v, want %v", rec.calls, want)
	}
}

func TestTransferPassBeginError(t *testing.T) {
	rec := &recorder{}
	err := TransferPass(rec, nil, func(TransferEncoder) error {
		t.Error("fn ran after BeginTransferPass failed")
		return nil
	})
	if !errors.Is(err, ErrPassOpen) {
		t.Errorf("TransferPass() error = %v, want %v", err, ErrPassOpen)
	}
}
