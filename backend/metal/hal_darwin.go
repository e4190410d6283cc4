// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package metal

// Registers the hal metal backend that executes rhi.ExecutionNative.
import _ "github.com/gogpu/wgpu/hal/metal"
