// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package metal registers the Metal backend.
//
// Each bind table is an argument buffer bound at the table index, and
// each element takes the argument id of its position in the table.
// Native execution goes through the hal metal backend on Apple platforms.
//
//	import _ "github.com/gogpu/rhi/backend/metal"
package metal

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/binding"
	"github.com/gogpu/rhi/internal/driver"
	"github.com/gogpu/rhi/internal/sbt"
)

// MaxArgumentBuffers is the number of buffer argument table entries a
// stage can bind.
const MaxArgumentBuffers = 31

// ArgumentSize is the byte size of one argument buffer entry, a GPU
// resource ID.
const ArgumentSize = 8

// ShaderTableParams lay out intersection function table records: one
// function handle per record.
var ShaderTableParams = sbt.Params{IdentifierSize: 8, RecordAlignment: 8, TableAlignment: 64}

func init() {
	rhi.RegisterBackend(rhi.BackendMetal, New)
}

// New creates a Metal instance.
func New(cfg rhi.Config) (rhi.Instance, error) {
	return driver.NewInstance(cfg, Native{}), nil
}

// Native implements driver.Native for Metal.
type Native struct{}

func (Native) Backend() rhi.Backend                                { return rhi.BackendMetal }
func (Native) Variant() gputypes.Backend                           { return gputypes.BackendMetal }
func (Native) BindingModel(gputypes.Limits) binding.Model          { return ArgumentModel{} }
func (Native) TranslateBarrier(b rhi.Barrier) driver.NativeBarrier { return Translate(b) }
func (Native) ShaderTableParams() sbt.Params                       { return ShaderTableParams }
func (Native) DescriptorSize() uint32                              { return ArgumentSize }

// ArgumentModel places a table in the argument buffer at its table index.
type ArgumentModel struct{}

// Place implements binding.Model.
func (ArgumentModel) Place(table uint32, pos int, _ rhi.BindTableLayoutElement, index uint32) binding.Param {
	return binding.Param{Index: index, Group: table, Binding: uint32(pos)}
}

// Limits implements binding.Model. Argument buffers have no tail
// restriction on arrays.
func (ArgumentModel) Limits() binding.Limits {
	return binding.Limits{MaxTables: MaxArgumentBuffers}
}
