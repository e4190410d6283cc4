// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !android && !js

package vulkan

// Registers the hal vulkan backend that executes rhi.ExecutionNative.
import _ "github.com/gogpu/wgpu/hal/vulkan"
