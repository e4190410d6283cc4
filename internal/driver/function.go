// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import (
	"fmt"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/raytrace"
)

// Function implements rhi.Function.
//
// Raster and compute functions are compiled into a hal shader module at
// creation. Raytracing functions keep their bytecode for the raytracing
// pipeline, which the hal extension compiles as one library.
type Function struct {
	dev   *Device
	hal   hal.ShaderModule
	label string
	typ   rhi.FunctionType
	entry string
	code  []byte
}

// CreateFunction implements rhi.Device. SPIR-V bytecode is passed to hal
// as words; anything else is passed as WGSL text.
func (d *Device) CreateFunction(desc *rhi.FunctionDescriptor) (rhi.Function, error) {
	if desc == nil || len(desc.ByteCode) == 0 {
		return nil, fmt.Errorf("%w: function without bytecode", rhi.ErrInvalidDescriptor)
	}
	if desc.EntryName == "" {
		return nil, fmt.Errorf("%w: function without entry point", rhi.ErrInvalidDescriptor)
	}
	f := &Function{
		dev:   d,
		label: d.label("function", desc.Label),
		typ:   desc.Type,
		entry: desc.EntryName,
		code:  append([]byte(nil), desc.ByteCode...),
	}
	if desc.Type.IsRaytracing() {
		if d.rt == nil {
			return nil, fmt.Errorf("create function %q: %w", f.label, rhi.ErrRaytracingNotSupported)
		}
		return f, nil
	}

	var src hal.ShaderSource
	if words, ok := spirvWords(desc.ByteCode); ok {
		src.SPIRV = words
	} else {
		src.WGSL = string(desc.ByteCode)
	}
	m, err := d.hal.CreateShaderModule(&hal.ShaderModuleDescriptor{Label: f.label, Source: src})
	if err != nil {
		return nil, fmt.Errorf("create function %q: %w", f.label, err)
	}
	f.hal = m
	return f, nil
}

// Label implements rhi.Resource.
func (f *Function) Label() string { return f.label }

// Type implements rhi.Function.
func (f *Function) Type() rhi.FunctionType { return f.typ }

// EntryName implements rhi.Function.
func (f *Function) EntryName() string { return f.entry }

// Destroy implements rhi.Resource.
func (f *Function) Destroy() {
	if f.hal != nil {
		f.dev.hal.DestroyShaderModule(f.hal)
		f.hal = nil
	}
}

func (f *Function) library() raytrace.Function {
	return raytrace.Function{Type: f.typ, EntryName: f.entry, ByteCode: f.code}
}

func asFunction(f rhi.Function, want ...rhi.FunctionType) (*Function, error) {
	fn, ok := f.(*Function)
	if !ok || fn == nil {
		return nil, fmt.Errorf("%w: function %T not created by this backend", rhi.ErrInvalidDescriptor, f)
	}
	if len(want) == 0 {
		return fn, nil
	}
	for _, t := range want {
		if fn.typ == t {
			return fn, nil
		}
	}
	return nil, fmt.Errorf("%w: function %q has type %d, want %v", rhi.ErrInvalidDescriptor, fn.label, fn.typ, want)
}
