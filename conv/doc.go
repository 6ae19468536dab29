// Copyright 2026 convgen Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package conv compiles tiled, register-blocked 2D convolution kernels for
// Metal-class GPUs.
//
// Given a convolution description and a target device, the compiler picks a
// tuned set of execution parameters (block sizes, weight upload strategy,
// work-group layout), emits the kernel source specialized to those
// parameters, reorders the weight tensor into the blocked channel-packed
// layout the kernel expects, and computes the dispatch grid consistent with
// the chosen tiling.
//
// The central type is ConvParams: one immutable value selected per
// (convolution, device, precision) combination, shared by the source
// generator, the weight reordering, and dispatch sizing. Compiling a
// convolution is a pure computation; the returned ComputeTask is handed to
// an external runtime that compiles the source text and launches it.
//
//	dev := conv.DetectHost()
//	task, err := conv.NewConvolution(attr, dstShape, conv.PrecisionF32, dev)
//	if err != nil {
//		// malformed attributes or an internal parameter contract violation
//	}
//	groupSize, groupsCount := conv.DispatchSizes(task.Params, dstShape)
package conv
