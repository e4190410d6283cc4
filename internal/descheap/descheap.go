// Package descheap implements the per-device descriptor arenas.
//
// An arena is a fixed-capacity array of descriptor slots. Allocate hands
// out a contiguous run of slots and returns its first index together with
// the CPU and GPU addresses of that slot; Free returns the run. Callers
// never see raw heap offsets, only indices and the addresses derived from
// them.
package descheap

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Kind is the descriptor class an arena stores.
type Kind uint8

const (
	// KindResource holds shader-visible CBV/SRV/UAV descriptors.
	KindResource Kind = iota
	// KindSampler holds shader-visible samplers.
	KindSampler
	// KindRenderTarget holds CPU-only render target views.
	KindRenderTarget
	// KindDepthStencil holds CPU-only depth-stencil views.
	KindDepthStencil
)

func (k Kind) String() string {
	switch k {
	case KindResource:
		return "Resource"
	case KindSampler:
		return "Sampler"
	case KindRenderTarget:
		return "RenderTarget"
	case KindDepthStencil:
		return "DepthStencil"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// ShaderVisible reports whether descriptors of this kind are bound to
// shaders and therefore have GPU addresses.
func (k Kind) ShaderVisible() bool {
	return k == KindResource || k == KindSampler
}

var (
	// ErrFull is returned when no free run is large enough.
	ErrFull = errors.New("descheap: arena full")

	// ErrBadFree is returned when freeing an index that is not allocated.
	ErrBadFree = errors.New("descheap: index not allocated")
)

// Allocation is a run of slots handed out by an arena.
type Allocation struct {
	Index uint32
	Count uint32
	// CPU is the host-side address of the first slot.
	CPU uint64
	// GPU is the shader-visible address of the first slot, zero for
	// CPU-only kinds.
	GPU  uint64
	Heap Kind
}

// Valid reports whether the allocation came from an arena.
func (a Allocation) Valid() bool { return a.Count != 0 }

// Contains reports whether every slot of b lies inside a.
func (a Allocation) Contains(b Allocation) bool {
	return a.Heap == b.Heap && b.Index >= a.Index && b.Index+b.Count <= a.Index+a.Count
}

// Config sizes an arena.
type Config struct {
	Kind     Kind
	Capacity uint32
	// Stride is the byte size of one descriptor.
	Stride uint32
	// CPUBase and GPUBase are the addresses of slot zero.
	CPUBase uint64
	GPUBase uint64
}

type run struct {
	start, count uint32
}

// Stats reports arena occupancy.
type Stats struct {
	Capacity  uint32
	Used      uint32
	FreeRuns  int
	Largest   uint32
	Allocated int
}

func (s Stats) String() string {
	return fmt.Sprintf("Arena[%d/%d used, %d free runs, largest %d]",
		s.Used, s.Capacity, s.FreeRuns, s.Largest)
}

// Arena is a first-fit range allocator over descriptor slots.
//
// Arena is safe for concurrent use.
type Arena struct {
	mu sync.Mutex

	cfg  Config
	free []run // sorted by start, never adjacent
	live map[uint32]uint32
	used uint32
}

// New creates an arena with every slot free.
func New(cfg Config) *Arena {
	if cfg.Stride == 0 {
		cfg.Stride = 32
	}
	a := &Arena{
		cfg:  cfg,
		live: make(map[uint32]uint32),
	}
	if cfg.Capacity > 0 {
		a.free = []run{{start: 0, count: cfg.Capacity}}
	}
	return a
}

// Kind returns the descriptor class of the arena.
func (a *Arena) Kind() Kind { return a.cfg.Kind }

// Capacity returns the number of slots.
func (a *Arena) Capacity() uint32 { return a.cfg.Capacity }

// Allocate reserves count contiguous slots.
func (a *Arena) Allocate(count uint32) (Allocation, error) {
	if count == 0 {
		return Allocation{}, fmt.Errorf("descheap: allocate zero slots from %s arena", a.cfg.Kind)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for i, r := range a.free {
		if r.count < count {
			continue
		}
		index := r.start
		if r.count == count {
			a.free = append(a.free[:i], a.free[i+1:]...)
		} else {
			a.free[i] = run{start: r.start + count, count: r.count - count}
		}
		a.live[index] = count
		a.used += count
		return a.allocation(index, count), nil
	}
	return Allocation{}, fmt.Errorf("%w: %s arena needs %d slots, %d of %d used",
		ErrFull, a.cfg.Kind, count, a.used, a.cfg.Capacity)
}

// Free returns the run starting at index to the arena. Adjacent free runs
// are merged.
func (a *Arena) Free(index uint32) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	count, ok := a.live[index]
	if !ok {
		return fmt.Errorf("%w: %s arena index %d", ErrBadFree, a.cfg.Kind, index)
	}
	delete(a.live, index)
	a.used -= count

	i := sort.Search(len(a.free), func(i int) bool { return a.free[i].start > index })
	a.free = append(a.free, run{})
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = run{start: index, count: count}

	// Merge with the next run, then with the previous one.
	if i+1 < len(a.free) && a.free[i].start+a.free[i].count == a.free[i+1].start {
		a.free[i].count += a.free[i+1].count
		a.free = append(a.free[:i+1], a.free[i+2:]...)
	}
	if i > 0 && a.free[i-1].start+a.free[i-1].count == a.free[i].start {
		a.free[i-1].count += a.free[i].count
		a.free = append(a.free[:i], a.free[i+1:]...)
	}
	return nil
}

// Reset frees every allocation.
func (a *Arena) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	clear(a.live)
	a.used = 0
	a.free = a.free[:0]
	if a.cfg.Capacity > 0 {
		a.free = append(a.free, run{start: 0, count: a.cfg.Capacity})
	}
}

// Span returns the whole arena as one allocation. It is what a command
// buffer binds before recording.
func (a *Arena) Span() Allocation { return a.allocation(0, a.cfg.Capacity) }

// Address returns the CPU and GPU addresses of slot index.
func (a *Arena) Address(index uint32) (cpu, gpu uint64) {
	alloc := a.allocation(index, 1)
	return alloc.CPU, alloc.GPU
}

// Stats returns a snapshot of arena occupancy.
func (a *Arena) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Stats{
		Capacity:  a.cfg.Capacity,
		Used:      a.used,
		FreeRuns:  len(a.free),
		Allocated: len(a.live),
	}
	for _, r := range a.free {
		s.Largest = max(s.Largest, r.count)
	}
	return s
}

func (a *Arena) allocation(index, count uint32) Allocation {
	off := uint64(index) * uint64(a.cfg.Stride)
	alloc := Allocation{
		Index: index,
		Count: count,
		CPU:   a.cfg.CPUBase + off,
		Heap:  a.cfg.Kind,
	}
	if a.cfg.Kind.ShaderVisible() {
		alloc.GPU = a.cfg.GPUBase + off
	}
	return alloc
}

// Set is the group of arenas owned by one device.
type Set struct {
	arenas [4]*Arena
}

// Capacities sizes the arenas of a Set.
type Capacities struct {
	Resource     uint32
	Sampler      uint32
	RenderTarget uint32
	DepthStencil uint32
}

// NewSet creates one arena per kind. base offsets the addresses of each
// arena so that allocations from different arenas never alias.
func NewSet(caps Capacities, stride uint32, base uint64) *Set {
	s := &Set{}
	sizes := [4]uint32{caps.Resource, caps.Sampler, caps.RenderTarget, caps.DepthStencil}
	const span = 1 << 32
	for k := range s.arenas {
		b := base + uint64(k)*span
		s.arenas[k] = New(Config{
			Kind:     Kind(k),
			Capacity: sizes[k],
			Stride:   stride,
			CPUBase:  b,
			GPUBase:  b,
		})
	}
	return s
}

// Arena returns the arena of kind k.
func (s *Set) Arena(k Kind) *Arena { return s.arenas[k] }

// Reset frees every allocation in every arena.
func (s *Set) Reset() {
	for _, a := range s.arenas {
		a.Reset()
	}
}
