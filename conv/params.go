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

package conv

import "fmt"

// WeightsUpload selects how the generated kernel brings weights into the
// compute loop.
type WeightsUpload int

const (
	// WeightsUploadSIMD8Broadcast has each lane of an 8-wide SIMD group
	// load one weight vector and share it by broadcast, avoiding a
	// staging buffer.
	WeightsUploadSIMD8Broadcast WeightsUpload = iota
	// WeightsUploadSIMD16Broadcast is the 16-wide variant.
	WeightsUploadSIMD16Broadcast
	// WeightsUploadSIMD32Broadcast is the 32-wide variant.
	WeightsUploadSIMD32Broadcast
	// WeightsUploadLocalMem stages weights in threadgroup memory through a
	// cooperative copy bracketed by barriers.
	WeightsUploadLocalMem
	// WeightsUploadGlobalMem reads weights directly from device memory.
	WeightsUploadGlobalMem
	// WeightsUploadConstantMem indexes weights in the constant address
	// space; only valid when the whole weight set is statically known and
	// small (no channel-group loops, 1x1 unit kernel on both axes).
	WeightsUploadConstantMem
)

func (u WeightsUpload) String() string {
	switch u {
	case WeightsUploadSIMD8Broadcast:
		return "simd8-broadcast"
	case WeightsUploadSIMD16Broadcast:
		return "simd16-broadcast"
	case WeightsUploadSIMD32Broadcast:
		return "simd32-broadcast"
	case WeightsUploadLocalMem:
		return "local-mem"
	case WeightsUploadGlobalMem:
		return "global-mem"
	case WeightsUploadConstantMem:
		return "constant-mem"
	default:
		return fmt.Sprintf("WeightsUpload(%d)", int(u))
	}
}

// isSIMDBroadcast reports whether the strategy is one of the broadcast
// variants; simdSize returns the group width (1 when not broadcasting).
func (u WeightsUpload) isSIMDBroadcast() bool {
	return u == WeightsUploadSIMD8Broadcast || u == WeightsUploadSIMD16Broadcast ||
		u == WeightsUploadSIMD32Broadcast
}

func (u WeightsUpload) simdSize() int {
	switch u {
	case WeightsUploadSIMD8Broadcast:
		return 8
	case WeightsUploadSIMD16Broadcast:
		return 16
	case WeightsUploadSIMD32Broadcast:
		return 32
	default:
		return 1
	}
}

// WeightsLayout orders the 4x4 channel micro-block of the reordered
// weights.
type WeightsLayout int

const (
	// WeightsLayoutO4I4 keeps four input channels contiguous per output
	// channel; the kernel accumulates with dot products.
	WeightsLayoutO4I4 WeightsLayout = iota
	// WeightsLayoutI4O4 keeps four output channels contiguous per input
	// channel; the kernel accumulates with scaled vector adds.
	WeightsLayoutI4O4
)

func (l WeightsLayout) String() string {
	if l == WeightsLayoutO4I4 {
		return "o4i4"
	}
	return "i4o4"
}

// ConvParams is the complete tiling/layout configuration for one compiled
// convolution. A value is produced once by SelectParams (or one of the
// specialized constructors), validated, and then shared read-only by the
// source generator, the weight reordering and dispatch sizing.
type ConvParams struct {
	// BlockSize is how many output elements one thread computes per axis:
	// X and Y in pixels, Z in channel-groups.
	BlockSize Int3
	// WorkGroupSize is threads per work-group per dispatch axis.
	WorkGroupSize Int3
	// WorkGroupLaunchOrder permutes logical grid axes onto physical
	// dispatch axes.
	WorkGroupLaunchOrder Int3
	// SrcDepthLoopSize is how many input channel-groups each accumulation
	// loop iteration consumes.
	SrcDepthLoopSize int
	// NeedSrcLoop is false when the static unroll covers every input
	// channel-group; NeedDstLoop is false when BlockSize.Z covers every
	// output channel-group.
	NeedSrcLoop bool
	NeedDstLoop bool
	// LinearWH flattens the X/Y tile axes onto one dispatch axis;
	// LinearWHS flattens all three. At most one may be set.
	LinearWH  bool
	LinearWHS bool

	WeightsUpload WeightsUpload
	WeightLayout  WeightsLayout

	// DifferentWeightsPerRow selects a distinct weight set per output row;
	// only the Winograd-specialized path uses it.
	DifferentWeightsPerRow bool

	// XKernelIs1/YKernelIs1 hold when the kernel is degenerate on that
	// axis (size 1, unit stride, unit dilation, zero padding), letting the
	// generator drop the spatial loop and the bounds masking there.
	XKernelIs1 bool
	YKernelIs1 bool
}

// ParamError reports a ConvParams contract violation. Malformed parameters
// are a programming error in the selector, never repaired silently.
type ParamError struct {
	Field  string
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("conv: invalid params: %s %s", e.Field, e.Reason)
}

// Validate checks the ConvParams invariants. Every compiled task runs its
// parameters through here before any source text or buffer is produced.
func (p ConvParams) Validate() error {
	if p.BlockSize.X < 1 || p.BlockSize.Y < 1 || p.BlockSize.Z < 1 {
		return &ParamError{"BlockSize", fmt.Sprintf("components must be >= 1, got %+v", p.BlockSize)}
	}
	if p.WorkGroupSize.X < 1 || p.WorkGroupSize.Y < 1 || p.WorkGroupSize.Z < 1 {
		return &ParamError{"WorkGroupSize", fmt.Sprintf("components must be >= 1, got %+v", p.WorkGroupSize)}
	}
	if p.SrcDepthLoopSize < 1 {
		return &ParamError{"SrcDepthLoopSize", fmt.Sprintf("must be >= 1, got %d", p.SrcDepthLoopSize)}
	}
	if !isPermutation(p.WorkGroupLaunchOrder) {
		return &ParamError{"WorkGroupLaunchOrder", fmt.Sprintf("must be a permutation of {0,1,2}, got %+v", p.WorkGroupLaunchOrder)}
	}
	if p.LinearWH && p.LinearWHS {
		return &ParamError{"LinearWH/LinearWHS", "are mutually exclusive"}
	}
	switch p.WeightsUpload {
	case WeightsUploadSIMD8Broadcast, WeightsUploadSIMD16Broadcast,
		WeightsUploadSIMD32Broadcast, WeightsUploadLocalMem,
		WeightsUploadGlobalMem:
	case WeightsUploadConstantMem:
		if p.NeedSrcLoop || p.NeedDstLoop || !p.XKernelIs1 || !p.YKernelIs1 {
			return &ParamError{"WeightsUpload",
				"constant-mem requires a statically known weight set (no channel loops, 1x1 unit kernel)"}
		}
	default:
		return &ParamError{"WeightsUpload", fmt.Sprintf("unknown strategy %d", int(p.WeightsUpload))}
	}
	switch p.WeightLayout {
	case WeightsLayoutO4I4, WeightsLayoutI4O4:
	default:
		return &ParamError{"WeightLayout", fmt.Sprintf("unknown layout %d", int(p.WeightLayout))}
	}
	return nil
}

func isPermutation(v Int3) bool {
	var seen [3]bool
	for i := 0; i < 3; i++ {
		a := v.Axis(i)
		if a < 0 || a > 2 || seen[a] {
			return false
		}
		seen[a] = true
	}
	return true
}
