// Package binding compiles bind table layouts into per-stage lookup maps
// from abstract bind slots to backend-native parameters.
package binding

import (
	"fmt"
	"sort"

	"github.com/gogpu/rhi"
)

// MaxSlot is the largest slot a key can encode.
const MaxSlot = 0xFF

// Key is the lookup key of a bind slot: (tableIndex<<8 | slot) and the
// resource class of the bind type. Keying by class makes Texture2D and
// TextureCube declarations resolve to the same parameter.
type Key struct {
	Slot  uint32
	Class rhi.BindClass
}

// MakeKey builds the key of a bind slot.
func MakeKey(table, slot uint32, class rhi.BindClass) Key {
	return Key{Slot: table<<8 | slot, Class: class}
}

// Table returns the table index encoded in the key.
func (k Key) Table() uint32 { return k.Slot >> 8 }

// SlotIndex returns the slot encoded in the key.
func (k Key) SlotIndex() uint32 { return k.Slot & MaxSlot }

func (k Key) String() string {
	return fmt.Sprintf("(%d,%d,%s)", k.Table(), k.SlotIndex(), k.Class)
}

// Param is the native location of one element.
type Param struct {
	// Index is the flat native parameter index (root parameter on DX12).
	Index uint32
	// Group is the native grouping: descriptor set, argument buffer index
	// or register space.
	Group uint32
	// Binding is the location within the group: binding number, argument
	// id or register.
	Binding uint32
	Class   rhi.BindClass
}

// Table is the input shape of one bind table layout.
type Table struct {
	Index    uint32
	Elements []rhi.BindTableLayoutElement
}

// Limits are the hardware binding limits of a backend model.
type Limits struct {
	MaxTables           uint32
	MaxParams           uint32
	MaxElementsPerTable uint32
	// BindlessTail requires a bindless element to be the last element of
	// its table.
	BindlessTail bool
}

// Model places elements into a backend's native binding model.
type Model interface {
	// Place returns the native location of the element at position pos of
	// table, given its flat parameter index.
	Place(table uint32, pos int, elem rhi.BindTableLayoutElement, index uint32) Param
	Limits() Limits
}

// ValidateTable checks the invariants of a single table layout.
func ValidateTable(t Table, m Model) error {
	lim := m.Limits()
	if lim.MaxElementsPerTable != 0 && uint32(len(t.Elements)) > lim.MaxElementsPerTable {
		return fmt.Errorf("%w: table %d has %d elements, max %d",
			rhi.ErrLimitExceeded, t.Index, len(t.Elements), lim.MaxElementsPerTable)
	}
	if t.Index > 0xFFFFFF {
		return fmt.Errorf("%w: table index %d", rhi.ErrInvalidDescriptor, t.Index)
	}

	seen := make(map[Key]int, len(t.Elements))
	bindless := -1
	for i, e := range t.Elements {
		if e.Slot > MaxSlot {
			return fmt.Errorf("%w: table %d slot %d exceeds %d", rhi.ErrLimitExceeded, t.Index, e.Slot, MaxSlot)
		}
		if e.Type.Class() == rhi.BindClassNone {
			return fmt.Errorf("%w: table %d slot %d has no bind type", rhi.ErrInvalidDescriptor, t.Index, e.Slot)
		}
		k := MakeKey(t.Index, e.Slot, e.Type.Class())
		if j, dup := seen[k]; dup {
			return fmt.Errorf("%w: table %d elements %d and %d share slot %s",
				rhi.ErrInvalidDescriptor, t.Index, j, i, k)
		}
		seen[k] = i

		if e.IsBindless() {
			if bindless >= 0 {
				return fmt.Errorf("%w: table %d declares more than one bindless element",
					rhi.ErrInvalidDescriptor, t.Index)
			}
			bindless = i
		}
	}
	if lim.BindlessTail && bindless >= 0 && bindless != len(t.Elements)-1 {
		return fmt.Errorf("%w: table %d bindless element %d must be last",
			rhi.ErrInvalidDescriptor, t.Index, bindless)
	}
	return nil
}

// Resolver maps bind slots to native parameters for the four stage
// categories. It is immutable after Build and safe for concurrent reads.
type Resolver struct {
	maps   [rhi.BindStageCount]map[Key]Param
	params []Param
	tables []Table
}

// Build compiles tables in declaration order. Each element takes the next
// native parameter and is inserted into every stage map its visibility
// implies. A key declared twice keeps the later declaration.
func Build(tables []Table, m Model) (*Resolver, error) {
	lim := m.Limits()
	if lim.MaxTables != 0 && uint32(len(tables)) > lim.MaxTables {
		return nil, fmt.Errorf("%w: %d tables, max %d", rhi.ErrLimitExceeded, len(tables), lim.MaxTables)
	}

	total := 0
	for _, t := range tables {
		if err := ValidateTable(t, m); err != nil {
			return nil, err
		}
		total += len(t.Elements)
	}
	if lim.MaxParams != 0 && uint32(total) > lim.MaxParams {
		return nil, fmt.Errorf("%w: %d parameters, max %d", rhi.ErrLimitExceeded, total, lim.MaxParams)
	}

	r := &Resolver{
		params: make([]Param, 0, total),
		tables: tables,
	}
	for i := range r.maps {
		r.maps[i] = make(map[Key]Param, total)
	}

	for _, t := range tables {
		for pos, e := range t.Elements {
			index := uint32(len(r.params))
			p := m.Place(t.Index, pos, e, index)
			p.Index = index
			p.Class = e.Type.Class()
			r.params = append(r.params, p)

			key := MakeKey(t.Index, e.Slot, p.Class)
			for _, stage := range e.Visibility.Stages() {
				if prev, ok := r.maps[stage][key]; ok {
					rhi.Logger().Debug("binding: duplicate slot overwrites earlier declaration",
						"stage", stage, "key", key.String(), "previous", prev.Index, "param", index)
				}
				r.maps[stage][key] = p
			}
		}
	}
	return r, nil
}

// Resolve returns the native parameter bound at (table, slot) for the
// resource class of bindType, or false if no element was declared there
// for stage.
func (r *Resolver) Resolve(stage rhi.BindStage, table, slot uint32, bindType rhi.BindType) (Param, bool) {
	if int(stage) >= len(r.maps) {
		return Param{}, false
	}
	p, ok := r.maps[stage][MakeKey(table, slot, bindType.Class())]
	return p, ok
}

// ParamCount returns the number of native parameters.
func (r *Resolver) ParamCount() int { return len(r.params) }

// Param returns the parameter with flat index i.
func (r *Resolver) Param(i int) Param { return r.params[i] }

// Tables returns the tables the resolver was built from.
func (r *Resolver) Tables() []Table { return r.tables }

// Entry is one resolved mapping, used for diagnostics.
type Entry struct {
	Key   Key
	Param Param
}

// Entries returns the mappings of a stage map sorted by key.
func (r *Resolver) Entries(stage rhi.BindStage) []Entry {
	m := r.maps[stage]
	out := make([]Entry, 0, len(m))
	for k, p := range m {
		out = append(out, Entry{Key: k, Param: p})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Slot != out[j].Key.Slot {
			return out[i].Key.Slot < out[j].Key.Slot
		}
		return out[i].Key.Class < out[j].Key.Class
	})
	return out
}
