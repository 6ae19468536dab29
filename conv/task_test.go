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

import (
	"errors"
	"strings"
	"testing"
)

func TestNewConvolutionGeneric(t *testing.T) {
	attr := testAttr(16, 3, 3, 8, unitHW(), unitHW(), HW{H: 1, W: 1})
	dst := BHWC{B: 1, H: 32, W: 32, C: 16}
	dev := DeviceInfo{Family: FamilyGeneric, ComputeUnits: 4}

	task, err := NewConvolution(attr, dst, PrecisionF32, dev)
	if err != nil {
		t.Fatal(err)
	}

	p := task.Params
	if p.BlockSize != (Int3{1, 1, 4}) {
		t.Errorf("BlockSize = %+v, want {1 1 4}", p.BlockSize)
	}
	if p.WorkGroupSize != (Int3{8, 4, 1}) {
		t.Errorf("WorkGroupSize = %+v, want {8 4 1}", p.WorkGroupSize)
	}
	if p.WeightLayout != WeightsLayoutO4I4 {
		t.Errorf("WeightLayout = %v, want O4I4", p.WeightLayout)
	}

	wantArgs := KernelArgs{
		KernelSizeX: 3, KernelSizeY: 3,
		DilationX: 1, DilationY: 1,
		StrideX: 1, StrideY: 1,
		PaddingX: -1, PaddingY: -1,
	}
	if task.Args != wantArgs {
		t.Errorf("Args = %+v, want %+v", task.Args, wantArgs)
	}

	// 3x3 x aligned 4 output groups x 2 input groups, 16 floats each.
	if got, want := len(task.Weights.Data), 3*3*4*2*16*4; got != want {
		t.Errorf("weight buffer = %d bytes, want %d", got, want)
	}
	if got, want := len(task.Biases.Data), 16*4; got != want {
		t.Errorf("bias buffer = %d bytes, want %d", got, want)
	}
	if task.Weights.Memory != MemoryGlobal || task.Biases.Memory != MemoryGlobal {
		t.Error("buffers must bind as global memory")
	}
	if !strings.Contains(task.Source, "kernel void ComputeFunction(") {
		t.Error("task source is not a compute kernel")
	}

	taskX, taskY, err := task.RuntimeArgs(dst)
	if err != nil {
		t.Fatal(err)
	}
	if taskX != 32 || taskY != 1024 {
		t.Errorf("runtime args = (%d, %d), want (32, 1024)", taskX, taskY)
	}

	groupSize, groupsCount := DispatchSizes(p, dst)
	if groupSize != (Int3{8, 4, 1}) {
		t.Errorf("groupSize = %+v, want {8 4 1}", groupSize)
	}
	// Logical grid (4, 8, 1) permuted through launch order {2, 0, 1}.
	if groupsCount != (Int3{1, 4, 8}) {
		t.Errorf("groupsCount = %+v, want {1 4 8}", groupsCount)
	}
}

func TestNewConvolutionHalfPrecisionBuffers(t *testing.T) {
	attr := testAttr(16, 3, 3, 8, unitHW(), unitHW(), HW{})
	dst := BHWC{B: 1, H: 32, W: 32, C: 16}
	dev := DeviceInfo{Family: FamilyGeneric, ComputeUnits: 4}

	f32, err := NewConvolution(attr, dst, PrecisionF32, dev)
	if err != nil {
		t.Fatal(err)
	}
	f16, err := NewConvolution(attr, dst, PrecisionF16, dev)
	if err != nil {
		t.Fatal(err)
	}
	if len(f16.Weights.Data)*2 != len(f32.Weights.Data) {
		t.Errorf("half weights = %d bytes, float weights = %d bytes, want half the size",
			len(f16.Weights.Data), len(f32.Weights.Data))
	}
	if len(f16.Biases.Data)*2 != len(f32.Biases.Data) {
		t.Errorf("half biases = %d bytes, float biases = %d bytes, want half the size",
			len(f16.Biases.Data), len(f32.Biases.Data))
	}
}

func TestNewConvolutionConstantMemory(t *testing.T) {
	attr := testAttr(4, 1, 1, 16, unitHW(), unitHW(), HW{})
	dst := BHWC{B: 1, H: 8, W: 8, C: 4}
	dev := DeviceInfo{Family: FamilyApple, ComputeUnits: 1000}

	task, err := NewConvolution(attr, dst, PrecisionF32, dev)
	if err != nil {
		t.Fatal(err)
	}
	if task.Params.WeightsUpload != WeightsUploadConstantMem {
		t.Fatalf("WeightsUpload = %v, want constant-mem", task.Params.WeightsUpload)
	}
	if task.Weights.Memory != MemoryConstant {
		t.Error("weight buffer must bind in the constant address space")
	}
	if task.Biases.Memory != MemoryConstant {
		t.Error("bias buffer must bind in the constant address space")
	}
}

func TestNewConvolutionInvalidAttributes(t *testing.T) {
	dst := BHWC{B: 1, H: 8, W: 8, C: 16}
	dev := DeviceInfo{Family: FamilyGeneric, ComputeUnits: 4}

	tests := []struct {
		name   string
		mutate func(*Conv2DAttributes)
	}{
		{"zero output channels", func(a *Conv2DAttributes) { a.Weights.Shape.O = 0 }},
		{"short weight data", func(a *Conv2DAttributes) { a.Weights.Data = a.Weights.Data[1:] }},
		{"zero stride", func(a *Conv2DAttributes) { a.Strides.W = 0 }},
		{"zero dilation", func(a *Conv2DAttributes) { a.Dilations.H = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attr := testAttr(16, 3, 3, 8, unitHW(), unitHW(), HW{})
			tt.mutate(&attr)
			if _, err := NewConvolution(attr, dst, PrecisionF32, dev); err == nil {
				t.Error("NewConvolution accepted invalid attributes")
			}
		})
	}
}

func TestRuntimeArgsBadShape(t *testing.T) {
	attr := testAttr(16, 3, 3, 8, unitHW(), unitHW(), HW{})
	dst := BHWC{B: 1, H: 32, W: 32, C: 16}
	task, err := NewConvolution(attr, dst, PrecisionF32, DeviceInfo{Family: FamilyGeneric, ComputeUnits: 4})
	if err != nil {
		t.Fatal(err)
	}

	_, _, err = task.RuntimeArgs(BHWC{B: 1, H: 32, W: 0, C: 16})
	var shapeErr *ShapeError
	if !errors.As(err, &shapeErr) {
		t.Fatalf("RuntimeArgs error = %v, want *ShapeError", err)
	}
	if shapeErr.Shape.W != 0 {
		t.Errorf("ShapeError.Shape = %+v, want the offending shape", shapeErr.Shape)
	}
}

func TestNewWinograd4x4To6x6(t *testing.T) {
	// Transformed weights: 36 spatial taps laid out on the H axis.
	attr := testAttr(16, 36, 1, 8, unitHW(), unitHW(), HW{})
	dst := BHWC{B: 1, H: 36, W: 64, C: 16}
	dev := DeviceInfo{Family: FamilyApple, ComputeUnits: 8, Bionic: true}

	task, err := NewWinograd4x4To6x6(attr, dst, PrecisionF32, dev)
	if err != nil {
		t.Fatal(err)
	}
	if !task.Params.DifferentWeightsPerRow {
		t.Error("DifferentWeightsPerRow = false, want per-row weight sets")
	}

	wantArgs := KernelArgs{
		KernelSizeX: 1, KernelSizeY: 1,
		DilationX: 1, DilationY: 1,
		StrideX: 1, StrideY: 1,
	}
	if task.Args != wantArgs {
		t.Errorf("Args = %+v, want the unit 1x1 arguments %+v", task.Args, wantArgs)
	}

	// The output transform folds the bias, so this stage adds zeros:
	// 4 output groups aligned to the block, 4 channels, 4 bytes each.
	if got, want := len(task.Biases.Data), 16*4; got != want {
		t.Fatalf("bias buffer = %d bytes, want %d", got, want)
	}
	for i, b := range task.Biases.Data {
		if b != 0 {
			t.Fatalf("bias byte %d = %#x, want a zero buffer", i, b)
		}
	}

	if !strings.Contains(task.Source, "(Z * args.src_tensor.Height() + Y * 4) * 4 * args.src_tensor.Slices()") {
		t.Error("source does not index a weight set per output row")
	}
}

func TestDispatchSizesLinear(t *testing.T) {
	dst := BHWC{B: 1, H: 16, W: 16, C: 32}

	p := validParams()
	p.LinearWHS = true
	p.WorkGroupSize = Int3{32, 1, 1}
	_, count := DispatchSizes(p, dst)
	// 16*16*ceil(8/4) = 512 threads in 32-wide groups.
	if count != (Int3{16, 1, 1}) {
		t.Errorf("linear-WHS groupsCount = %+v, want {16 1 1}", count)
	}

	p = validParams()
	p.LinearWH = true
	p.WorkGroupSize = Int3{32, 1, 1}
	p.WorkGroupLaunchOrder = Int3{0, 1, 2}
	_, count = DispatchSizes(p, dst)
	// ceil(256/32) spatial groups, 2 channel-group slabs.
	if count != (Int3{8, 2, 1}) {
		t.Errorf("linear-WH groupsCount = %+v, want {8 2 1}", count)
	}
}
