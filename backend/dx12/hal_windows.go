// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package dx12

// Registers the hal dx12 backend that executes rhi.ExecutionNative.
import _ "github.com/gogpu/wgpu/hal/dx12"
