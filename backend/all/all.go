// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package all registers every backend. The hal driver behind each one is
// only linked on the platforms that support it.
//
//	import _ "github.com/gogpu/rhi/backend/all"
package all

import (
	_ "github.com/gogpu/rhi/backend/dx12"
	_ "github.com/gogpu/rhi/backend/metal"
	_ "github.com/gogpu/rhi/backend/vulkan"
)
