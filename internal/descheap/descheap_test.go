package descheap

import (
	"errors"
	"sync"
	"testing"
)

func TestArenaAllocateFree(t *testing.T) {
	a := New(Config{Kind: KindResource, Capacity: 8, Stride: 32, CPUBase: 0x1000, GPUBase: 0x9000})

	first, err := a.Allocate(3)
	if err != nil {
		t.Fatalf("Allocate(3) error = %v", err)
	}
	if first.Index != 0 || first.Count != 3 {
		t.Errorf("Allocate(3) = %+v, want index 0 count 3", first)
	}
	if first.CPU != 0x1000 || first.GPU != 0x9000 {
		t.Errorf("addresses = %#x/%#x, want 0x1000/0x9000", first.CPU, first.GPU)
	}

	second, err := a.Allocate(2)
	if err != nil {
		t.Fatalf("Allocate(2) error = %v", err)
	}
	if second.Index != 3 {
		t.Errorf("second.Index = %d, want 3", second.Index)
	}
	if second.CPU != 0x1000+3*32 {
		t.Errorf("second.CPU = %#x, want %#x", second.CPU, 0x1000+3*32)
	}

	if err := a.Free(first.Index); err != nil {
		t.Fatalf("Free() error = %v", err)
	}
	again, err := a.Allocate(3)
	if err != nil {
		t.Fatalf("Allocate(3) after free error = %v", err)
	}
	if again.Index != 0 {
		t.Errorf("reused Index = %d, want 0", again.Index)
	}
}

func TestArenaFull(t *testing.T) {
	a := New(Config{Kind: KindSampler, Capacity: 4})
	if _, err := a.Allocate(4); err != nil {
		t.Fatalf("Allocate(4) error = %v", err)
	}
	if _, err := a.Allocate(1); !errors.Is(err, ErrFull) {
		t.Errorf("Allocate(1) on full arena error = %v, want ErrFull", err)
	}
	if _, err := a.Allocate(0); err == nil {
		t.Error("Allocate(0) error = nil, want error")
	}
}

func TestArenaCoalesce(t *testing.T) {
	a := New(Config{Kind: KindResource, Capacity: 6})
	var idx []uint32
	for range 3 {
		alloc, err := a.Allocate(2)
		if err != nil {
			t.Fatalf("Allocate(2) error = %v", err)
		}
		idx = append(idx, alloc.Index)
	}

	// Free out of order; the three runs must merge back into one.
	for _, i := range []uint32{idx[2], idx[0], idx[1]} {
		if err := a.Free(i); err != nil {
			t.Fatalf("Free(%d) error = %v", i, err)
		}
	}
	s := a.Stats()
	if s.FreeRuns != 1 || s.Largest != 6 || s.Used != 0 {
		t.Errorf("Stats() = %v, want one run of 6", s)
	}
	if _, err := a.Allocate(6); err != nil {
		t.Errorf("Allocate(6) after coalesce error = %v", err)
	}
}

func TestArenaBadFree(t *testing.T) {
	a := New(Config{Kind: KindResource, Capacity: 4})
	alloc, _ := a.Allocate(2)
	if err := a.Free(alloc.Index + 1); !errors.Is(err, ErrBadFree) {
		t.Errorf("Free(interior) error = %v, want ErrBadFree", err)
	}
	if err := a.Free(alloc.Index); err != nil {
		t.Fatalf("Free() error = %v", err)
	}
	if err := a.Free(alloc.Index); !errors.Is(err, ErrBadFree) {
		t.Errorf("double Free() error = %v, want ErrBadFree", err)
	}
}

func TestCPUOnlyKindsHaveNoGPUAddress(t *testing.T) {
	tests := []struct {
		kind    Kind
		visible bool
	}{
		{KindResource, true},
		{KindSampler, true},
		{KindRenderTarget, false},
		{KindDepthStencil, false},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			a := New(Config{Kind: tt.kind, Capacity: 2, GPUBase: 0x100, CPUBase: 0x100})
			alloc, err := a.Allocate(1)
			if err != nil {
				t.Fatalf("Allocate() error = %v", err)
			}
			if got := alloc.GPU != 0; got != tt.visible {
				t.Errorf("GPU address set = %v, want %v", got, tt.visible)
			}
			if alloc.Heap != tt.kind {
				t.Errorf("Heap = %v, want %v", alloc.Heap, tt.kind)
			}
		})
	}
}

func TestArenaReset(t *testing.T) {
	a := New(Config{Kind: KindResource, Capacity: 4})
	_, _ = a.Allocate(1)
	_, _ = a.Allocate(3)
	a.Reset()
	if s := a.Stats(); s.Used != 0 || s.Allocated != 0 || s.Largest != 4 {
		t.Errorf("Stats() after Reset = %v", s)
	}
}

func TestArenaConcurrent(t *testing.T) {
	a := New(Config{Kind: KindResource, Capacity: 1024})
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				alloc, err := a.Allocate(4)
				if err != nil {
					t.Errorf("Allocate() error = %v", err)
					return
				}
				if err := a.Free(alloc.Index); err != nil {
					t.Errorf("Free() error = %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
	if s := a.Stats(); s.Used != 0 || s.FreeRuns != 1 {
		t.Errorf("Stats() = %v, want empty arena", s)
	}
}

func TestSetArenasDoNotAlias(t *testing.T) {
	s := NewSet(Capacities{Resource: 4, Sampler: 4, RenderTarget: 4, DepthStencil: 4}, 32, 0)
	seen := map[uint64]Kind{}
	for k := KindResource; k <= KindDepthStencil; k++ {
		alloc, err := s.Arena(k).Allocate(1)
		if err != nil {
			t.Fatalf("%v Allocate() error = %v", k, err)
		}
		if prev, dup := seen[alloc.CPU]; dup {
			t.Errorf("%v CPU address %#x aliases %v", k, alloc.CPU, prev)
		}
		seen[alloc.CPU] = k
	}
}
