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

// MemoryType is the address-space binding the runtime should use for a
// buffer.
type MemoryType int

const (
	// MemoryGlobal binds the buffer as general device-readable memory.
	MemoryGlobal MemoryType = iota
	// MemoryConstant binds it read-only in the constant address space.
	MemoryConstant
)

// Buffer is a serialized kernel argument buffer: 4-float vector elements,
// already converted to the task's storage precision.
type Buffer struct {
	Data   []byte
	Memory MemoryType
}

// KernelArgs are the integer arguments the runtime binds once per task.
// PaddingX/PaddingY are the negated prepended paddings: the kernel adds
// them to the strided coordinate.
type KernelArgs struct {
	KernelSizeX, KernelSizeY int
	DilationX, DilationY     int
	StrideX, StrideY         int
	PaddingX, PaddingY       int
}

// ComputeTask is everything the external runtime needs to compile and
// launch one convolution: the kernel source, the reordered weight and
// padded bias buffers, the static integer arguments, and the parameter
// record that dispatch sizing and runtime-argument updates are computed
// from. Params is immutable; every derived quantity is recomputed from it
// rather than cached.
type ComputeTask struct {
	Source  string
	Params  ConvParams
	Weights Buffer
	Biases  Buffer
	Args    KernelArgs
}

// ShapeError reports a runtime-argument binding failure against a
// malformed destination shape.
type ShapeError struct {
	Shape  BHWC
	Reason string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("conv: cannot bind runtime args for shape %+v: %s", e.Shape, e.Reason)
}

// NewConvolution compiles a 2D convolution for the given device and
// destination shape. Any failure aborts before a single buffer is
// produced; no partial task is ever returned.
func NewConvolution(attr Conv2DAttributes, dstShape BHWC, precision Precision, dev DeviceInfo) (*ComputeTask, error) {
	if err := attr.validate(); err != nil {
		return nil, err
	}
	params := SelectParams(dev, attr, precision, dstShape)
	if err := params.Validate(); err != nil {
		return nil, err
	}

	memType := MemoryGlobal
	if params.WeightsUpload == WeightsUploadConstantMem {
		memType = MemoryConstant
	}

	task := &ComputeTask{
		Source: GenerateKernel(params),
		Params: params,
		Weights: Buffer{
			Data:   packBuffer(ReorderWeights(attr.Weights, params), precision),
			Memory: memType,
		},
		Biases: Buffer{
			Data:   packBuffer(padBias(attr.Bias, attr.Weights.Shape.O, params), precision),
			Memory: memType,
		},
		Args: KernelArgs{
			KernelSizeX: attr.Weights.Shape.W,
			KernelSizeY: attr.Weights.Shape.H,
			DilationX:   attr.Dilations.W,
			DilationY:   attr.Dilations.H,
			StrideX:     attr.Strides.W,
			StrideY:     attr.Strides.H,
			PaddingX:    -attr.Padding.Prepended.W,
			PaddingY:    -attr.Padding.Prepended.H,
		},
	}
	return task, nil
}

// NewWinograd4x4To6x6 compiles the 1x1 convolution that follows the
// Winograd 4x4-to-6x6 input transform. attr.Weights must already hold the
// transformed weight tensor; each output row addresses its own weight set.
// The bias is folded by the output transform, so this task carries a
// zero bias buffer.
func NewWinograd4x4To6x6(attr Conv2DAttributes, dstShape BHWC, precision Precision, dev DeviceInfo) (*ComputeTask, error) {
	if err := attr.validate(); err != nil {
		return nil, err
	}
	params := winogradParams(dev)
	if err := params.Validate(); err != nil {
		return nil, err
	}

	dstGroups := channelGroups(attr.Weights.Shape.O)
	zeroBias := make([]float32, AlignByN(dstGroups, params.BlockSize.Z)*4)

	task := &ComputeTask{
		Source: GenerateKernel(params),
		Params: params,
		Weights: Buffer{
			Data:   packBuffer(ReorderWeights(attr.Weights, params), precision),
			Memory: MemoryGlobal,
		},
		Biases: Buffer{
			Data:   packBuffer(zeroBias, precision),
			Memory: MemoryGlobal,
		},
		Args: KernelArgs{
			KernelSizeX: 1,
			KernelSizeY: 1,
			DilationX:   1,
			DilationY:   1,
			StrideX:     1,
			StrideY:     1,
		},
	}
	return task, nil
}

// RuntimeArgs returns the two scalar arguments the kernel's linearized
// thread-id decode divides by. They must be recomputed and rebound
// whenever the destination shape changes.
func (t *ComputeTask) RuntimeArgs(dst BHWC) (taskSizeX, taskSizeY int, err error) {
	if dst.W <= 0 || dst.H <= 0 || dst.C <= 0 {
		return 0, 0, &ShapeError{Shape: dst, Reason: "width, height and channels must be positive"}
	}
	gridX := DivideRoundUp(dst.W, t.Params.BlockSize.X)
	gridY := DivideRoundUp(dst.H, t.Params.BlockSize.Y)
	return gridX, gridX * gridY, nil
}

// DispatchSizes computes the (work-group size, work-group count) pair for
// a destination shape under one parameter record, honoring the
// linearization mode and the launch-order permutation.
func DispatchSizes(p ConvParams, dst BHWC) (groupSize, groupsCount Int3) {
	grid := gridDims(dst, p.BlockSize)
	groupSize = p.WorkGroupSize

	var wg Int3
	switch {
	case p.LinearWHS:
		wg.X = DivideRoundUp(grid.X*grid.Y*grid.Z, p.WorkGroupSize.X)
		groupsCount = Int3{wg.X, 1, 1}
	case p.LinearWH:
		wg.X = DivideRoundUp(grid.X*grid.Y, p.WorkGroupSize.X)
		wg.Y = DivideRoundUp(grid.Z, p.WorkGroupSize.Y)
		groupsCount = Int3{
			wg.Axis(p.WorkGroupLaunchOrder.X),
			wg.Axis(p.WorkGroupLaunchOrder.Y),
			1,
		}
	default:
		wg.X = DivideRoundUp(grid.X, p.WorkGroupSize.X)
		wg.Y = DivideRoundUp(grid.Y, p.WorkGroupSize.Y)
		wg.Z = DivideRoundUp(grid.Z, p.WorkGroupSize.Z)
		groupsCount = Int3{
			wg.Axis(p.WorkGroupLaunchOrder.X),
			wg.Axis(p.WorkGroupLaunchOrder.Y),
			wg.Axis(p.WorkGroupLaunchOrder.Z),
		}
	}
	return groupSize, groupsCount
}
