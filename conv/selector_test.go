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

import "testing"

// testAttr builds attributes for an out x kh x kw x in weight tensor with
// the given strides/dilations/prepended padding.
func testAttr(out, kh, kw, in int, stride, dilation, padding HW) Conv2DAttributes {
	shape := OHWI{O: out, H: kh, W: kw, I: in}
	return Conv2DAttributes{
		Weights:   Tensor{Shape: shape, Data: make([]float32, shape.Count())},
		Bias:      make([]float32, out),
		Strides:   stride,
		Dilations: dilation,
		Padding:   Padding2D{Prepended: padding},
	}
}

func unitHW() HW { return HW{H: 1, W: 1} }

func TestKernelUnitFlags(t *testing.T) {
	tests := []struct {
		name  string
		attr  Conv2DAttributes
		wantX bool
		wantY bool
	}{
		{"1x1 unit", testAttr(16, 1, 1, 8, unitHW(), unitHW(), HW{}), true, true},
		{"3x3", testAttr(16, 3, 3, 8, unitHW(), unitHW(), HW{}), false, false},
		{"1x3 mixed", testAttr(16, 1, 3, 8, unitHW(), unitHW(), HW{}), false, true},
		{"3x1 mixed", testAttr(16, 3, 1, 8, unitHW(), unitHW(), HW{}), true, false},
		{"1x1 strided", testAttr(16, 1, 1, 8, HW{H: 2, W: 2}, unitHW(), HW{}), false, false},
		{"1x1 dilated", testAttr(16, 1, 1, 8, unitHW(), HW{H: 2, W: 2}, HW{}), false, false},
		{"1x1 padded", testAttr(16, 1, 1, 8, unitHW(), unitHW(), HW{H: 1, W: 1}), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := kernelXIs1(tt.attr); got != tt.wantX {
				t.Errorf("kernelXIs1 = %v, want %v", got, tt.wantX)
			}
			if got := kernelYIs1(tt.attr); got != tt.wantY {
				t.Errorf("kernelYIs1 = %v, want %v", got, tt.wantY)
			}
		})
	}
}

func TestRecommendedBlockSize(t *testing.T) {
	dst := BHWC{B: 1, H: 32, W: 32, C: 16}
	// Non-staging devices measure waves on the fully linear grid:
	// ceil(32*32*4/32) = 128 work-groups.
	tests := []struct {
		units int
		want  int
	}{
		{1, 8},   // 128 >= 1*64
		{4, 4},   // 128 >= 4*32
		{8, 2},   // 128 >= 8*16
		{100, 1}, // starved
	}
	for _, tt := range tests {
		dev := DeviceInfo{Family: FamilyApple, ComputeUnits: tt.units}
		if got := recommendedBlockSize(dev, dst); got != tt.want {
			t.Errorf("recommendedBlockSize(units=%d) = %d, want %d", tt.units, got, tt.want)
		}
	}
}

func TestSelectParamsGenericBaseline(t *testing.T) {
	attr := testAttr(16, 3, 3, 8, unitHW(), unitHW(), unitHW())
	dst := BHWC{B: 1, H: 32, W: 32, C: 16}
	p := SelectParams(DeviceInfo{Family: FamilyGeneric, ComputeUnits: 4}, attr, PrecisionF32, dst)

	if p.BlockSize != (Int3{1, 1, 4}) {
		t.Errorf("BlockSize = %+v, want {1 1 4}", p.BlockSize)
	}
	if p.WorkGroupSize != (Int3{8, 4, 1}) {
		t.Errorf("WorkGroupSize = %+v, want {8 4 1}", p.WorkGroupSize)
	}
	if p.WorkGroupLaunchOrder != (Int3{2, 0, 1}) {
		t.Errorf("WorkGroupLaunchOrder = %+v, want {2 0 1}", p.WorkGroupLaunchOrder)
	}
	if p.LinearWH || p.LinearWHS {
		t.Errorf("linearization = wh:%v whs:%v, want none", p.LinearWH, p.LinearWHS)
	}
	if p.WeightsUpload != WeightsUploadGlobalMem {
		t.Errorf("WeightsUpload = %v, want global-mem", p.WeightsUpload)
	}
	// The untuned fallback pins O4I4 regardless of precision.
	if p.WeightLayout != WeightsLayoutO4I4 {
		t.Errorf("WeightLayout = %v, want o4i4", p.WeightLayout)
	}
	if !p.NeedSrcLoop || !p.NeedDstLoop {
		t.Errorf("need loops = src:%v dst:%v, want both true", p.NeedSrcLoop, p.NeedDstLoop)
	}
	if p.XKernelIs1 || p.YKernelIs1 {
		t.Errorf("kernel unit flags = %v/%v, want false for 3x3", p.XKernelIs1, p.YKernelIs1)
	}
}

func TestSelectParamsAMDLayoutByPrecision(t *testing.T) {
	attr := testAttr(16, 3, 3, 8, unitHW(), unitHW(), unitHW())
	dst := BHWC{B: 1, H: 32, W: 32, C: 16}
	dev := DeviceInfo{Family: FamilyAMD, ComputeUnits: 16}

	tests := []struct {
		precision Precision
		want      WeightsLayout
	}{
		{PrecisionF32, WeightsLayoutI4O4},
		{PrecisionF16, WeightsLayoutI4O4},
		{PrecisionF32F16, WeightsLayoutO4I4},
	}
	for _, tt := range tests {
		p := SelectParams(dev, attr, tt.precision, dst)
		if p.WeightLayout != tt.want {
			t.Errorf("precision %v: WeightLayout = %v, want %v", tt.precision, p.WeightLayout, tt.want)
		}
	}
}

func TestSelectParamsIntel(t *testing.T) {
	attr := testAttr(16, 3, 3, 8, unitHW(), unitHW(), unitHW())
	dst := BHWC{B: 1, H: 32, W: 32, C: 16}
	p := SelectParams(DeviceInfo{Family: FamilyIntel, ComputeUnits: 24}, attr, PrecisionF32, dst)

	if p.WeightsUpload != WeightsUploadSIMD8Broadcast {
		t.Errorf("WeightsUpload = %v, want simd8-broadcast", p.WeightsUpload)
	}
	if p.BlockSize.Z != 4 {
		t.Errorf("BlockSize.Z = %d, want 4 (dst groups divisible by 4)", p.BlockSize.Z)
	}
	// Two input channel-groups unroll the depth loop by 2.
	if p.SrcDepthLoopSize != 2 {
		t.Errorf("SrcDepthLoopSize = %d, want 2", p.SrcDepthLoopSize)
	}
	if p.WeightLayout != WeightsLayoutI4O4 {
		t.Errorf("WeightLayout = %v, want i4o4 for f32", p.WeightLayout)
	}
	if p.LinearWH {
		// grid (32,32,1) with wg (8,2,1) gives 64 groups, the same as the
		// 16-wide linear grid; linearization must not trigger on a tie.
		t.Error("LinearWH = true, want false on equal group counts")
	}
}

func TestSelectParamsAppleEntryStagesLocalMem(t *testing.T) {
	attr := testAttr(32, 3, 3, 16, unitHW(), unitHW(), unitHW())
	dst := BHWC{B: 1, H: 32, W: 32, C: 32}
	p := SelectParams(DeviceInfo{Family: FamilyAppleEntry, ComputeUnits: 1}, attr, PrecisionF32, dst)

	if p.WeightsUpload != WeightsUploadLocalMem {
		t.Errorf("WeightsUpload = %v, want local-mem", p.WeightsUpload)
	}
	if p.BlockSize != (Int3{2, 1, 4}) {
		t.Errorf("BlockSize = %+v, want {2 1 4}", p.BlockSize)
	}
	// Wider X than Y block swaps the work-group aspect.
	if p.WorkGroupSize != (Int3{4, 8, 1}) {
		t.Errorf("WorkGroupSize = %+v, want {4 8 1}", p.WorkGroupSize)
	}
	if p.WeightLayout != WeightsLayoutO4I4 {
		t.Errorf("WeightLayout = %v, want o4i4", p.WeightLayout)
	}
}

func TestSelectParamsNeedLoops(t *testing.T) {
	// Four output channel-groups covered by BlockSize.Z=4: no dst loop.
	attr := testAttr(16, 1, 1, 8, unitHW(), unitHW(), HW{})
	dst := BHWC{B: 1, H: 32, W: 32, C: 16}
	p := SelectParams(DeviceInfo{Family: FamilyApple, ComputeUnits: 1, Bionic: true}, attr, PrecisionF32, dst)
	if p.BlockSize.Z != 4 {
		t.Fatalf("BlockSize.Z = %d, want 4", p.BlockSize.Z)
	}
	if p.NeedDstLoop {
		t.Error("NeedDstLoop = true, want false when block covers all output channel-groups")
	}
	if !p.NeedSrcLoop {
		t.Error("NeedSrcLoop = false, want true with 2 input channel-groups and loop size 1")
	}

	// One input channel-group and loop size 1: no src loop either.
	attr = testAttr(4, 1, 1, 4, unitHW(), unitHW(), HW{})
	dst = BHWC{B: 1, H: 8, W: 8, C: 4}
	p = SelectParams(DeviceInfo{Family: FamilyApple, ComputeUnits: 1000}, attr, PrecisionF32, dst)
	if p.SrcDepthLoopSize != 1 {
		t.Fatalf("SrcDepthLoopSize = %d, want 1", p.SrcDepthLoopSize)
	}
	if p.NeedSrcLoop {
		t.Error("NeedSrcLoop = true, want false with a single input channel-group")
	}
}

func TestSelectParamsConstantMemPromotion(t *testing.T) {
	// 1x1 unit kernel, one output channel-group, and a depth unroll that
	// covers all four input channel-groups: the whole weight set is
	// statically known, so it lives in constant memory.
	attr := testAttr(4, 1, 1, 16, unitHW(), unitHW(), HW{})
	dst := BHWC{B: 1, H: 8, W: 8, C: 4}
	dev := DeviceInfo{Family: FamilyApple, ComputeUnits: 1000}
	p := SelectParams(dev, attr, PrecisionF32, dst)

	if p.SrcDepthLoopSize != 4 {
		t.Fatalf("SrcDepthLoopSize = %d, want 4", p.SrcDepthLoopSize)
	}
	if p.NeedSrcLoop || p.NeedDstLoop {
		t.Fatalf("need loops = src:%v dst:%v, want both false", p.NeedSrcLoop, p.NeedDstLoop)
	}
	if p.WeightsUpload != WeightsUploadConstantMem {
		t.Errorf("WeightsUpload = %v, want constant-mem", p.WeightsUpload)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}

	// A 3x3 kernel blocks the promotion even with identical channel math.
	attr = testAttr(4, 3, 3, 16, unitHW(), unitHW(), unitHW())
	p = SelectParams(dev, attr, PrecisionF32, dst)
	if p.WeightsUpload == WeightsUploadConstantMem {
		t.Error("WeightsUpload = constant-mem, want a loaded strategy for 3x3")
	}
}

func TestSelectParamsAppleChannelGroupTilingBy3(t *testing.T) {
	// Exactly three output channel-groups with block volume for 4: tile
	// by 3 instead of padding a quarter of the weights.
	attr := testAttr(12, 3, 3, 16, unitHW(), unitHW(), unitHW())
	dst := BHWC{B: 1, H: 64, W: 64, C: 12}
	p := SelectParams(DeviceInfo{Family: FamilyApple, ComputeUnits: 1}, attr, PrecisionF32, dst)
	if p.BlockSize.Z != 3 {
		t.Errorf("BlockSize.Z = %d, want 3 for exactly 3 output channel-groups", p.BlockSize.Z)
	}
}

func TestWinogradParams(t *testing.T) {
	tests := []struct {
		name       string
		dev        DeviceInfo
		wantUpload WeightsUpload
		wantWG     Int3
		wantBlock  Int3
		wantLayout WeightsLayout
	}{
		{"apple entry", DeviceInfo{Family: FamilyAppleEntry, ComputeUnits: 4},
			WeightsUploadLocalMem, Int3{32, 1, 1}, Int3{4, 1, 4}, WeightsLayoutO4I4},
		{"apple", DeviceInfo{Family: FamilyApple, ComputeUnits: 8, Bionic: true},
			WeightsUploadGlobalMem, Int3{8, 4, 1}, Int3{4, 1, 4}, WeightsLayoutO4I4},
		{"intel", DeviceInfo{Family: FamilyIntel, ComputeUnits: 24},
			WeightsUploadSIMD8Broadcast, Int3{16, 1, 1}, Int3{1, 1, 4}, WeightsLayoutI4O4},
		{"amd", DeviceInfo{Family: FamilyAMD, ComputeUnits: 36},
			WeightsUploadGlobalMem, Int3{32, 1, 1}, Int3{2, 1, 4}, WeightsLayoutI4O4},
		{"generic", DeviceInfo{Family: FamilyGeneric, ComputeUnits: 4},
			WeightsUploadGlobalMem, Int3{32, 1, 1}, Int3{2, 1, 4}, WeightsLayoutI4O4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := winogradParams(tt.dev)
			if !p.DifferentWeightsPerRow {
				t.Error("DifferentWeightsPerRow = false, want true")
			}
			if !p.XKernelIs1 || !p.YKernelIs1 {
				t.Errorf("kernel unit flags = %v/%v, want both true", p.XKernelIs1, p.YKernelIs1)
			}
			if p.WeightsUpload != tt.wantUpload {
				t.Errorf("WeightsUpload = %v, want %v", p.WeightsUpload, tt.wantUpload)
			}
			if p.WorkGroupSize != tt.wantWG {
				t.Errorf("WorkGroupSize = %+v, want %+v", p.WorkGroupSize, tt.wantWG)
			}
			if p.BlockSize != tt.wantBlock {
				t.Errorf("BlockSize = %+v, want %+v", p.BlockSize, tt.wantBlock)
			}
			if p.WeightLayout != tt.wantLayout {
				t.Errorf("WeightLayout = %v, want %v", p.WeightLayout, tt.wantLayout)
			}
			if err := p.Validate(); err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}

// Whatever the family and shape, the selector must only ever produce
// parameters that pass their own contract.
func TestSelectParamsAlwaysValid(t *testing.T) {
	families := []DeviceInfo{
		{Family: FamilyAppleEntry, ComputeUnits: 1},
		{Family: FamilyAppleEntry, ComputeUnits: 6},
		{Family: FamilyApple, ComputeUnits: 4},
		{Family: FamilyApple, ComputeUnits: 8, Bionic: true},
		{Family: FamilyIntel, ComputeUnits: 24},
		{Family: FamilyAMD, ComputeUnits: 36},
		{Family: FamilyGeneric, ComputeUnits: 2},
	}
	attrs := []Conv2DAttributes{
		testAttr(16, 3, 3, 8, unitHW(), unitHW(), unitHW()),
		testAttr(16, 1, 1, 8, unitHW(), unitHW(), HW{}),
		testAttr(3, 5, 5, 3, HW{H: 2, W: 2}, unitHW(), HW{H: 2, W: 2}),
		testAttr(128, 3, 3, 64, unitHW(), HW{H: 2, W: 2}, unitHW()),
		testAttr(12, 1, 1, 4, unitHW(), unitHW(), HW{}),
	}
	shapes := []BHWC{
		{1, 7, 5, 3},
		{1, 32, 32, 16},
		{1, 33, 31, 12},
		{1, 224, 224, 64},
		{1, 1, 1, 128},
	}
	for _, dev := range families {
		for _, attr := range attrs {
			for _, dst := range shapes {
				for _, prec := range []Precision{PrecisionF32, PrecisionF16, PrecisionF32F16} {
					p := SelectParams(dev, attr, prec, dst)
					if err := p.Validate(); err != nil {
						t.Errorf("SelectParams(%v, out=%d, %+v, %v): %v",
							dev.Family, attr.Weights.Shape.O, dst, prec, err)
					}
				}
			}
		}
	}
}
