// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi"
)

// Texture implements rhi.Texture.
type Texture struct {
	dev   *Device
	hal   hal.Texture
	label string
	desc  rhi.TextureDescriptor
	state atomic.Uint32
}

// CreateTexture implements rhi.Device.
func (d *Device) CreateTexture(desc *rhi.TextureDescriptor) (rhi.Texture, error) {
	if desc == nil || desc.Width == 0 {
		return nil, fmt.Errorf("%w: texture width is zero", rhi.ErrInvalidDescriptor)
	}
	if desc.Format == gputypes.TextureFormatUndefined {
		return nil, fmt.Errorf("%w: texture format undefined", rhi.ErrInvalidDescriptor)
	}
	norm := *desc
	norm.Label = d.label("texture", desc.Label)
	norm.Height = max(norm.Height, 1)
	norm.DepthOrLayers = max(norm.DepthOrLayers, 1)
	norm.MipLevels = max(norm.MipLevels, 1)
	norm.SampleCount = max(norm.SampleCount, 1)

	ht, err := d.hal.CreateTexture(&hal.TextureDescriptor{
		Label: norm.Label,
		Size: hal.Extent3D{
			Width:              norm.Width,
			Height:             norm.Height,
			DepthOrArrayLayers: norm.DepthOrLayers,
		},
		MipLevelCount: norm.MipLevels,
		SampleCount:   norm.SampleCount,
		Dimension:     halTextureDimension(norm.Dimension),
		Format:        norm.Format,
		Usage:         halTextureUsage(norm.Usage),
	})
	if err != nil {
		return nil, fmt.Errorf("create texture %q: %w", norm.Label, err)
	}
	t := &Texture{dev: d, hal: ht, label: norm.Label, desc: norm}
	t.state.Store(uint32(norm.InitialState))
	return t, nil
}

// Label implements rhi.Resource.
func (t *Texture) Label() string { return t.label }

// Descriptor implements rhi.Texture.
func (t *Texture) Descriptor() rhi.TextureDescriptor { return t.desc }

// State implements rhi.Texture.
func (t *Texture) State() rhi.ResourceState { return rhi.ResourceState(t.state.Load()) }

// SetState implements rhi.Texture.
func (t *Texture) SetState(s rhi.ResourceState) { t.state.Store(uint32(s)) }

// Native implements rhi.Texture.
func (t *Texture) Native() rhi.Handle { return rhi.Handle(t.hal.NativeHandle()) }

// Destroy implements rhi.Resource.
func (t *Texture) Destroy() {
	if t.hal != nil {
		t.dev.hal.DestroyTexture(t.hal)
		t.hal = nil
	}
}

// TextureView implements rhi.TextureView.
type TextureView struct {
	dev     *Device
	hal     hal.TextureView
	label   string
	texture *Texture
	format  gputypes.TextureFormat
}

// CreateTextureView implements rhi.Device.
func (d *Device) CreateTextureView(desc *rhi.TextureViewDescriptor) (rhi.TextureView, error) {
	if desc == nil || desc.Texture == nil {
		return nil, fmt.Errorf("%w: texture view without texture", rhi.ErrInvalidDescriptor)
	}
	tex, err := asTexture(desc.Texture)
	if err != nil {
		return nil, err
	}
	td := tex.desc
	format := desc.Format
	if format == gputypes.TextureFormatUndefined {
		format = td.Format
	}
	dim := desc.Dimension
	if dim == gputypes.TextureViewDimensionUndefined {
		dim = defaultViewDimension(td)
	}
	aspect := desc.Aspect
	if aspect == 0 {
		aspect = gputypes.TextureAspectAll
	}
	r := desc.Range
	if r.BaseMip >= td.MipLevels || (td.Dimension != rhi.Texture3D && r.BaseLayer >= td.DepthOrLayers) {
		return nil, fmt.Errorf("%w: view range %+v outside texture %q", rhi.ErrInvalidDescriptor, r, tex.label)
	}

	label := d.label("texture-view", desc.Label)
	hv, err := d.hal.CreateTextureView(tex.hal, &hal.TextureViewDescriptor{
		Label:           label,
		Format:          format,
		Dimension:       dim,
		Aspect:          aspect,
		BaseMipLevel:    r.BaseMip,
		MipLevelCount:   r.MipCount,
		BaseArrayLayer:  r.BaseLayer,
		ArrayLayerCount: r.LayerCount,
	})
	if err != nil {
		return nil, fmt.Errorf("create texture view %q: %w", label, err)
	}
	return &TextureView{dev: d, hal: hv, label: label, texture: tex, format: format}, nil
}

// Label implements rhi.Resource.
func (v *TextureView) Label() string { return v.label }

// Native implements rhi.BindElement.
func (v *TextureView) Native() rhi.Handle { return rhi.Handle(v.hal.NativeHandle()) }

// Texture implements rhi.TextureView.
func (v *TextureView) Texture() rhi.Texture { return v.texture }

// Destroy implements rhi.Resource.
func (v *TextureView) Destroy() {
	if v.hal != nil {
		v.dev.hal.DestroyTextureView(v.hal)
		v.hal = nil
	}
}

func asTexture(t rhi.Texture) (*Texture, error) {
	tex, ok := t.(*Texture)
	if !ok || tex == nil {
		return nil, fmt.Errorf("%w: texture %T not created by this backend", rhi.ErrInvalidDescriptor, t)
	}
	return tex, nil
}

func mustTexture(t rhi.Texture) *Texture {
	tex, err := asTexture(t)
	if err != nil {
		panic(err)
	}
	return tex
}

func asTextureView(v rhi.TextureView) (*TextureView, error) {
	tv, ok := v.(*TextureView)
	if !ok || tv == nil {
		return nil, fmt.Errorf("%w: texture view %T not created by this backend", rhi.ErrInvalidDescriptor, v)
	}
	return tv, nil
}
