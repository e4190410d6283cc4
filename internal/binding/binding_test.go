package binding

import (
	"errors"
	"testing"

	"github.com/gogpu/rhi"
)

// flatModel places every element at its flat index.
type flatModel struct {
	limits Limits
}

func (m flatModel) Place(table uint32, pos int, _ rhi.BindTableLayoutElement, index uint32) Param {
	return Param{Group: table, Binding: uint32(pos)}
}

func (m flatModel) Limits() Limits { return m.limits }

func elem(slot uint32, t rhi.BindType, vis rhi.ShaderStage) rhi.BindTableLayoutElement {
	return rhi.BindTableLayoutElement{Slot: slot, Type: t, Visibility: vis}
}

func TestMakeKey(t *testing.T) {
	k := MakeKey(2, 7, rhi.BindClassCBV)
	if k.Slot != 2<<8|7 {
		t.Errorf("MakeKey().Slot = %#x, want %#x", k.Slot, 2<<8|7)
	}
	if k.Table() != 2 || k.SlotIndex() != 7 {
		t.Errorf("Table(), SlotIndex() = %d, %d, want 2, 7", k.Table(), k.SlotIndex())
	}
	if got := k.String(); got != "(2,7,CBV)" {
		t.Errorf("String() = %q, want %q", got, "(2,7,CBV)")
	}
}

func TestResolveUniformBufferAllStages(t *testing.T) {
	r, err := Build([]Table{{
		Index:    2,
		Elements: []rhi.BindTableLayoutElement{elem(0, rhi.BindTypeUniformBuffer, rhi.ShaderStageAll)},
	}}, flatModel{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if _, ok := r.Resolve(rhi.BindStageCompute, 2, 0, rhi.BindTypeUniformBuffer); !ok {
		t.Error("Resolve(Compute, 2, 0, UniformBuffer) = absent, want present")
	}
	if _, ok := r.Resolve(rhi.BindStageCompute, 2, 1, rhi.BindTypeUniformBuffer); ok {
		t.Error("Resolve(Compute, 2, 1, UniformBuffer) = present, want absent")
	}
	if _, ok := r.Resolve(rhi.BindStageCompute, 3, 0, rhi.BindTypeUniformBuffer); ok {
		t.Error("Resolve(Compute, 3, 0, UniformBuffer) = present, want absent")
	}
	if _, ok := r.Resolve(rhi.BindStageCompute, 2, 0, rhi.BindTypeStorageBuffer); ok {
		t.Error("Resolve(Compute, 2, 0, StorageBuffer) = present, want absent (different class)")
	}
}

func TestResolveCompleteness(t *testing.T) {
	tables := []Table{
		{Index: 0, Elements: []rhi.BindTableLayoutElement{
			elem(0, rhi.BindTypeUniformBuffer, rhi.ShaderStageVertex),
			elem(1, rhi.BindTypeTexture2D, rhi.ShaderStageFragment),
			elem(2, rhi.BindTypeSampler, rhi.ShaderStageFragment),
		}},
		{Index: 1, Elements: []rhi.BindTableLayoutElement{
			elem(0, rhi.BindTypeStorageBuffer, rhi.ShaderStageCompute),
			elem(1, rhi.BindTypeBuffer, rhi.ShaderStageVertex|rhi.ShaderStageCompute),
			elem(3, rhi.BindTypeUniformBuffer, rhi.ShaderStageAll),
		}},
	}
	r, err := Build(tables, flatModel{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if r.ParamCount() != 6 {
		t.Errorf("ParamCount() = %d, want 6", r.ParamCount())
	}

	stages := []struct {
		stage rhi.BindStage
		bit   rhi.ShaderStage
	}{
		{rhi.BindStageVertex, rhi.ShaderStageVertex},
		{rhi.BindStageFragment, rhi.ShaderStageFragment},
		{rhi.BindStageCompute, rhi.ShaderStageCompute},
	}
	for _, tbl := range tables {
		for _, e := range tbl.Elements {
			for _, s := range stages {
				_, ok := r.Resolve(s.stage, tbl.Index, e.Slot, e.Type)
				want := e.Visibility&s.bit != 0
				if ok != want {
					t.Errorf("Resolve(%v, %d, %d, %v) present = %v, want %v",
						s.stage, tbl.Index, e.Slot, e.Type, ok, want)
				}
			}
			_, ok := r.Resolve(rhi.BindStageAll, tbl.Index, e.Slot, e.Type)
			if want := e.Visibility == rhi.ShaderStageAll; ok != want {
				t.Errorf("Resolve(All, %d, %d, %v) present = %v, want %v", tbl.Index, e.Slot, e.Type, ok, want)
			}
		}
	}
}

func TestResolveStability(t *testing.T) {
	r, err := Build([]Table{{Index: 0, Elements: []rhi.BindTableLayoutElement{
		elem(0, rhi.BindTypeTexture2D, rhi.ShaderStageAll),
		elem(1, rhi.BindTypeSampler, rhi.ShaderStageAll),
	}}}, flatModel{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	for _, stage := range []rhi.BindStage{rhi.BindStageVertex, rhi.BindStageFragment, rhi.BindStageCompute, rhi.BindStageAll} {
		a, _ := r.Resolve(stage, 0, 1, rhi.BindTypeSampler)
		b, _ := r.Resolve(stage, 0, 1, rhi.BindTypeSampler)
		if a != b {
			t.Errorf("Resolve(%v) not stable: %+v then %+v", stage, a, b)
		}
		if a.Index != 1 {
			t.Errorf("Resolve(%v).Index = %d, want 1", stage, a.Index)
		}
	}
}

func TestResolveClassAliasing(t *testing.T) {
	r, err := Build([]Table{{Index: 0, Elements: []rhi.BindTableLayoutElement{
		elem(4, rhi.BindTypeTexture2D, rhi.ShaderStageFragment),
	}}}, flatModel{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	p, ok := r.Resolve(rhi.BindStageFragment, 0, 4, rhi.BindTypeTextureCube)
	if !ok {
		t.Fatal("TextureCube lookup of a Texture2D slot should resolve under SRV")
	}
	if p.Class != rhi.BindClassSRV {
		t.Errorf("Class = %v, want SRV", p.Class)
	}
}

func TestBuildDuplicateAcrossLayoutsLaterWins(t *testing.T) {
	tables := []Table{
		{Index: 1, Elements: []rhi.BindTableLayoutElement{elem(0, rhi.BindTypeUniformBuffer, rhi.ShaderStageCompute)}},
		{Index: 1, Elements: []rhi.BindTableLayoutElement{elem(0, rhi.BindTypeUniformBuffer, rhi.ShaderStageCompute)}},
	}
	r, err := Build(tables, flatModel{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	p, ok := r.Resolve(rhi.BindStageCompute, 1, 0, rhi.BindTypeUniformBuffer)
	if !ok {
		t.Fatal("Resolve() = absent, want present")
	}
	if p.Index != 1 {
		t.Errorf("Resolve().Index = %d, want 1 (later declaration)", p.Index)
	}
	if r.ParamCount() != 2 {
		t.Errorf("ParamCount() = %d, want 2", r.ParamCount())
	}
}

func TestValidateTable(t *testing.T) {
	tests := []struct {
		name    string
		table   Table
		limits  Limits
		wantErr error
	}{
		{
			name: "valid",
			table: Table{Elements: []rhi.BindTableLayoutElement{
				elem(0, rhi.BindTypeUniformBuffer, rhi.ShaderStageAll),
			}},
		},
		{
			name: "duplicate slot in class",
			table: Table{Elements: []rhi.BindTableLayoutElement{
				elem(0, rhi.BindTypeTexture2D, rhi.ShaderStageAll),
				elem(0, rhi.BindTypeTextureCube, rhi.ShaderStageAll),
			}},
			wantErr: rhi.ErrInvalidDescriptor,
		},
		{
			name: "same slot different class",
			table: Table{Elements: []rhi.BindTableLayoutElement{
				elem(0, rhi.BindTypeTexture2D, rhi.ShaderStageAll),
				elem(0, rhi.BindTypeSampler, rhi.ShaderStageAll),
			}},
		},
		{
			name: "slot too large",
			table: Table{Elements: []rhi.BindTableLayoutElement{
				elem(256, rhi.BindTypeSampler, rhi.ShaderStageAll),
			}},
			wantErr: rhi.ErrLimitExceeded,
		},
		{
			name: "undefined type",
			table: Table{Elements: []rhi.BindTableLayoutElement{
				elem(0, rhi.BindTypeUndefined, rhi.ShaderStageAll),
			}},
			wantErr: rhi.ErrInvalidDescriptor,
		},
		{
			name: "bindless not at tail",
			table: Table{Elements: []rhi.BindTableLayoutElement{
				{Slot: 0, Type: rhi.BindTypeTexture2D, Visibility: rhi.ShaderStageAll, Count: 128},
				elem(1, rhi.BindTypeSampler, rhi.ShaderStageAll),
			}},
			limits:  Limits{BindlessTail: true},
			wantErr: rhi.ErrInvalidDescriptor,
		},
		{
			name: "bindless not at tail allowed",
			table: Table{Elements: []rhi.BindTableLayoutElement{
				{Slot: 0, Type: rhi.BindTypeTexture2D, Visibility: rhi.ShaderStageAll, Count: 128},
				elem(1, rhi.BindTypeSampler, rhi.ShaderStageAll),
			}},
		},
		{
			name: "two bindless",
			table: Table{Elements: []rhi.BindTableLayoutElement{
				{Slot: 0, Type: rhi.BindTypeTexture2D, Visibility: rhi.ShaderStageAll, Count: 16},
				{Slot: 1, Type: rhi.BindTypeBuffer, Visibility: rhi.ShaderStageAll, Count: 16},
			}},
			wantErr: rhi.ErrInvalidDescriptor,
		},
		{
			name: "too many elements",
			table: Table{Elements: []rhi.BindTableLayoutElement{
				elem(0, rhi.BindTypeSampler, rhi.ShaderStageAll),
				elem(1, rhi.BindTypeSampler, rhi.ShaderStageAll),
			}},
			limits:  Limits{MaxElementsPerTable: 1},
			wantErr: rhi.ErrLimitExceeded,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTable(tt.table, flatModel{limits: tt.limits})
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateTable() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateTable() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestBuildLimits(t *testing.T) {
	tables := []Table{
		{Index: 0, Elements: []rhi.BindTableLayoutElement{elem(0, rhi.BindTypeSampler, rhi.ShaderStageAll)}},
		{Index: 1, Elements: []rhi.BindTableLayoutElement{elem(0, rhi.BindTypeSampler, rhi.ShaderStageAll)}},
	}
	if _, err := Build(tables, flatModel{limits: Limits{MaxTables: 1}}); !errors.Is(err, rhi.ErrLimitExceeded) {
		t.Errorf("Build(MaxTables=1) error = %v, want ErrLimitExceeded", err)
	}
	if _, err := Build(tables, flatModel{limits: Limits{MaxParams: 1}}); !errors.Is(err, rhi.ErrLimitExceeded) {
		t.Errorf("Build(MaxParams=1) error = %v, want ErrLimitExceeded", err)
	}
	if _, err := Build(tables, flatModel{limits: Limits{MaxTables: 2, MaxParams: 2}}); err != nil {
		t.Errorf("Build(at limits) error = %v, want nil", err)
	}
}

func TestEntriesSorted(t *testing.T) {
	r, err := Build([]Table{
		{Index: 1, Elements: []rhi.BindTableLayoutElement{elem(0, rhi.BindTypeSampler, rhi.ShaderStageAll)}},
		{Index: 0, Elements: []rhi.BindTableLayoutElement{
			elem(1, rhi.BindTypeTexture2D, rhi.ShaderStageAll),
			elem(1, rhi.BindTypeSampler, rhi.ShaderStageAll),
		}},
	}, flatModel{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	entries := r.Entries(rhi.BindStageAll)
	if len(entries) != 3 {
		t.Fatalf("len(Entries()) = %d, want 3", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		a, b := entries[i-1].Key, entries[i].Key
		if a.Slot > b.Slot || (a.Slot == b.Slot && a.Class > b.Class) {
			t.Errorf("Entries() not sorted at %d: %v before %v", i, a, b)
		}
	}
}
