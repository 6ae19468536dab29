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

// kernelXIs1 holds when the kernel is degenerate along X: a single column
// with unit stride, unit dilation and no padding. The generator then drops
// the X kernel loop and X bounds masking entirely.
func kernelXIs1(attr Conv2DAttributes) bool {
	return attr.Weights.Shape.W == 1 && attr.Strides.W == 1 &&
		attr.Dilations.W == 1 && attr.Padding.Prepended.W == 0 &&
		attr.Padding.Appended.W == 0
}

func kernelYIs1(attr Conv2DAttributes) bool {
	return attr.Weights.Shape.H == 1 && attr.Strides.H == 1 &&
		attr.Dilations.H == 1 && attr.Padding.Prepended.H == 0 &&
		attr.Padding.Appended.H == 0
}

// maximumPossibleWaves estimates how many work-groups the destination
// shape can keep in flight with a canonical 32-wide work-group and no
// register blocking. Devices that stage weights through local memory are
// measured on the linear-WH grid they will actually use.
func maximumPossibleWaves(dev DeviceInfo, dst BHWC) int {
	unit := Int3{1, 1, 1}
	if dev.localMemoryPreferred() {
		return GroupsCountLinearWH(dst, Int3{32, 1, 1}, unit)
	}
	return GroupsCountLinearWHS(dst, Int3{32, 1, 1}, unit)
}

// recommendedBlockSize picks the total per-thread block volume from the
// wave estimate: a device with far more waves than compute units can
// afford larger register blocks without starving occupancy.
func recommendedBlockSize(dev DeviceInfo, dst BHWC) int {
	maxWaves := maximumPossibleWaves(dev, dst)
	cu := dev.ComputeUnits
	switch {
	case maxWaves >= cu*64:
		return 8
	case maxWaves >= cu*32:
		return 4
	case maxWaves >= cu*16:
		return 2
	default:
		return 1
	}
}

func paramsForAppleEntry(dev DeviceInfo, attr Conv2DAttributes, dst BHWC) ConvParams {
	dstGroups := channelGroups(dst.C)
	srcGroups := channelGroups(attr.Weights.Shape.I)

	p := ConvParams{
		WeightsUpload:        WeightsUploadLocalMem,
		XKernelIs1:           kernelXIs1(attr),
		YKernelIs1:           kernelYIs1(attr),
		SrcDepthLoopSize:     1,
		BlockSize:            Int3{1, 1, 1},
		NeedSrcLoop:          true,
		NeedDstLoop:          true,
		WorkGroupLaunchOrder: Int3{0, 1, 2},
		WeightLayout:         WeightsLayoutO4I4,
	}

	blkTotal := recommendedBlockSize(dev, dst)
	if blkTotal >= 4 && (dstGroups%4 == 0 || dstGroups >= 16) {
		p.BlockSize.Z = 4
		blkTotal /= 4
	} else if blkTotal >= 2 && (dstGroups%2 == 0 || dstGroups >= 4) {
		p.BlockSize.Z = 2
		blkTotal /= 2
	}
	if blkTotal >= 4 {
		p.BlockSize.X = 2
		p.BlockSize.Y = 2
		blkTotal /= 4
	} else if blkTotal >= 2 {
		// Prefer the axis whose dimension does not divide evenly, so the
		// tail-block waste lands where a tail already exists.
		if dst.W%2 != 0 && dst.H%2 == 0 {
			p.BlockSize.Y = 2
		} else {
			p.BlockSize.X = 2
		}
		blkTotal /= 2
	}

	if p.BlockSize.X <= p.BlockSize.Y {
		p.WorkGroupSize = Int3{8, 4, 1}
	} else {
		p.WorkGroupSize = Int3{4, 8, 1}
	}

	g1 := GroupsCount(dst, p.WorkGroupSize, p.BlockSize)
	g2 := GroupsCountLinearWH(dst, Int3{32, 1, 1}, p.BlockSize)
	g3 := GroupsCountLinearWHS(dst, Int3{32, 1, 1}, p.BlockSize)

	if g2 < g1 {
		p.LinearWH = true
		p.WorkGroupSize = Int3{32, 1, 1}
		p.WorkGroupLaunchOrder = Int3{0, 1, 2}
	}
	// Full linearization costs a div/mod per thread to recover X/Y/Z, so
	// the occupancy win has to be large on this family before it pays.
	const preciseThreshold = 3.1
	preciseRatio := float32(g2) / float32(g3)
	if preciseRatio > preciseThreshold {
		p.LinearWH = false
		p.LinearWHS = true
		p.WorkGroupSize = Int3{32, 1, 1}
		p.WeightsUpload = WeightsUploadGlobalMem
	}

	if p.SrcDepthLoopSize == srcGroups {
		p.NeedSrcLoop = false
	}
	if p.BlockSize.Z == dstGroups {
		p.NeedDstLoop = false
	}
	if !p.NeedDstLoop && !p.NeedSrcLoop && p.XKernelIs1 && p.YKernelIs1 {
		p.WeightsUpload = WeightsUploadConstantMem
	}
	return p
}

func paramsForApple(dev DeviceInfo, attr Conv2DAttributes, dst BHWC) ConvParams {
	dstGroups := channelGroups(dst.C)
	srcGroups := channelGroups(attr.Weights.Shape.I)

	blkTotal := recommendedBlockSize(dev, dst)
	blockSize := Int3{1, 1, 1}
	if blkTotal >= 2 && dev.Bionic {
		if dst.H%2 != 0 && dst.W%2 == 0 {
			blockSize.X = 2
		} else {
			blockSize.Y = 2
		}
		blkTotal /= 2
	}
	if blkTotal >= 4 && (dstGroups%4 == 0 || dstGroups >= 16) {
		blockSize.Z = 4
		blkTotal /= 4
	} else if blkTotal >= 2 && (dstGroups%2 == 0 || dstGroups >= 4) {
		blockSize.Z = 2
		blkTotal /= 2
	}
	// Three output channel-groups tile exactly by 3 when the volume would
	// otherwise allow 4; alignment padding would waste a quarter of it.
	if blkTotal >= 4 && dstGroups == 3 {
		blockSize.Z = 3
		blkTotal /= 4
	}

	p := ConvParams{
		WeightsUpload:        WeightsUploadGlobalMem,
		XKernelIs1:           kernelXIs1(attr),
		YKernelIs1:           kernelYIs1(attr),
		SrcDepthLoopSize:     1,
		BlockSize:            blockSize,
		NeedSrcLoop:          true,
		NeedDstLoop:          true,
		WorkGroupSize:        Int3{8, 4, 1},
		WorkGroupLaunchOrder: Int3{2, 0, 1},
		WeightLayout:         WeightsLayoutO4I4,
	}

	g1 := GroupsCount(dst, Int3{8, 4, 1}, blockSize)
	g2 := GroupsCountLinearWH(dst, Int3{32, 1, 1}, blockSize)
	g3 := GroupsCountLinearWHS(dst, Int3{32, 1, 1}, blockSize)
	if g2 < g1 {
		p.LinearWH = true
		p.WorkGroupSize = Int3{32, 1, 1}
		p.WorkGroupLaunchOrder = Int3{0, 1, 2}
	}
	preciseThreshold := float32(1.04)
	if dev.Bionic {
		preciseThreshold = 1.0
	}
	preciseRatio := float32(g2) / float32(g3)
	if preciseRatio > preciseThreshold {
		p.LinearWH = false
		p.LinearWHS = true
		p.WorkGroupSize = Int3{32, 1, 1}
	}

	// Depth unrolling only when spatial tiling leaves register headroom.
	totalElements := p.BlockSize.X * p.BlockSize.Y * p.BlockSize.Z
	if totalElements == 1 {
		if srcGroups%4 == 0 {
			p.SrcDepthLoopSize = 4
		} else if srcGroups%2 == 0 {
			p.SrcDepthLoopSize = 2
		}
	} else if totalElements == 2 {
		if srcGroups%2 == 0 {
			p.SrcDepthLoopSize = 2
		}
	}
	if p.SrcDepthLoopSize == srcGroups {
		p.NeedSrcLoop = false
	}
	if p.BlockSize.Z == dstGroups {
		p.NeedDstLoop = false
	}
	if !p.NeedDstLoop && !p.NeedSrcLoop && p.XKernelIs1 && p.YKernelIs1 {
		p.WeightsUpload = WeightsUploadConstantMem
	}
	return p
}

func paramsForIntel(attr Conv2DAttributes, precision Precision, dst BHWC) ConvParams {
	dstGroups := channelGroups(dst.C)
	srcGroups := channelGroups(attr.Weights.Shape.I)

	p := ConvParams{
		WeightsUpload:        WeightsUploadSIMD8Broadcast,
		XKernelIs1:           kernelXIs1(attr),
		YKernelIs1:           kernelYIs1(attr),
		SrcDepthLoopSize:     1,
		NeedSrcLoop:          true,
		NeedDstLoop:          true,
		WorkGroupLaunchOrder: Int3{2, 0, 1},
		BlockSize:            Int3{1, 1, 1},
	}
	if dstGroups%4 == 0 || dstGroups >= 8 {
		p.BlockSize.Z = 4
	} else if dstGroups%2 == 0 || dstGroups >= 4 {
		p.BlockSize.Z = 2
	}
	p.WorkGroupSize = Int3{8, 2, 1}
	if precision == PrecisionF32F16 {
		p.WeightLayout = WeightsLayoutO4I4
	} else {
		p.WeightLayout = WeightsLayoutI4O4
	}

	if srcGroups%2 == 0 {
		p.SrcDepthLoopSize = 2
	}

	g1 := GroupsCount(dst, p.WorkGroupSize, p.BlockSize)
	g2 := GroupsCountLinearWH(dst, Int3{16, 1, 1}, p.BlockSize)
	if g2 < g1 {
		p.LinearWH = true
		p.WorkGroupSize = Int3{16, 1, 1}
		p.WorkGroupLaunchOrder = Int3{1, 0, 2}
	}
	return p
}

// paramsForAMD is the fixed safe baseline, also used for unrecognized
// devices (with the layout pinned to O4I4 there).
func paramsForAMD(attr Conv2DAttributes, precision Precision) ConvParams {
	p := ConvParams{
		BlockSize:            Int3{1, 1, 4},
		WorkGroupSize:        Int3{8, 4, 1},
		WorkGroupLaunchOrder: Int3{2, 0, 1},
		SrcDepthLoopSize:     1,
		NeedSrcLoop:          true,
		NeedDstLoop:          true,
		WeightsUpload:        WeightsUploadGlobalMem,
		XKernelIs1:           kernelXIs1(attr),
		YKernelIs1:           kernelYIs1(attr),
	}
	if precision == PrecisionF32F16 {
		p.WeightLayout = WeightsLayoutO4I4
	} else {
		p.WeightLayout = WeightsLayoutI4O4
	}
	return p
}

// SelectParams produces the tiling configuration for one convolution on
// one device. It is a pure function: same inputs, same parameters.
func SelectParams(dev DeviceInfo, attr Conv2DAttributes, precision Precision, dst BHWC) ConvParams {
	switch dev.Family {
	case FamilyAppleEntry:
		return paramsForAppleEntry(dev, attr, dst)
	case FamilyApple:
		return paramsForApple(dev, attr, dst)
	case FamilyIntel:
		return paramsForIntel(attr, precision, dst)
	case FamilyAMD:
		return paramsForAMD(attr, precision)
	default:
		p := paramsForAMD(attr, precision)
		p.WeightLayout = WeightsLayoutO4I4
		return p
	}
}

// winogradParams is the fixed-kernel specialization used after the
// Winograd 4x4-to-6x6 input transform: the spatial kernel is statically
// 1x1 and each output row reads its own weight set.
func winogradParams(dev DeviceInfo) ConvParams {
	p := ConvParams{
		WorkGroupLaunchOrder:   Int3{2, 0, 1},
		SrcDepthLoopSize:       1,
		NeedSrcLoop:            true,
		NeedDstLoop:            true,
		DifferentWeightsPerRow: true,
		XKernelIs1:             true,
		YKernelIs1:             true,
	}
	switch {
	case dev.IsApple() && dev.localMemoryPreferred():
		p.WeightLayout = WeightsLayoutO4I4
		p.WeightsUpload = WeightsUploadLocalMem
		p.WorkGroupSize = Int3{32, 1, 1}
		p.BlockSize = Int3{4, 1, 4}
	case dev.IsApple():
		p.WeightLayout = WeightsLayoutO4I4
		p.WeightsUpload = WeightsUploadGlobalMem
		p.WorkGroupSize = Int3{8, 4, 1}
		p.BlockSize = Int3{4, 1, 4}
	case dev.Family == FamilyIntel:
		p.WeightLayout = WeightsLayoutI4O4
		p.WeightsUpload = WeightsUploadSIMD8Broadcast
		p.WorkGroupSize = Int3{16, 1, 1}
		p.BlockSize = Int3{1, 1, 4}
	default:
		p.WeightLayout = WeightsLayoutI4O4
		p.WeightsUpload = WeightsUploadGlobalMem
		p.WorkGroupSize = Int3{32, 1, 1}
		p.BlockSize = Int3{2, 1, 4}
	}
	return p
}
