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
	"bytes"
	"fmt"
)

// globalIDsConfig drives the thread-id derivation prologue. The id name
// tables let the same generator serve kernels with different argument
// attribute names.
type globalIDsConfig struct {
	globalIDs  [3]string
	groupIDs   [3]string
	localSizes [3]string
	localIDs   [3]string
	blockSize  Int3
	launch     Int3
	linearWH   bool
	linearWHS  bool
	taskSizeW  string // required when linearWH or linearWHS
	taskSizeWH string // required when linearWHS
}

// emitGlobalIDs writes the X/Y/Z derivation for the selected linearization
// mode. Fully-linear decodes one flat id with div/mod against the two
// runtime task sizes; linear-WH splits two dispatch axes; 3-D reads three
// axes directly, remapped through the launch order.
func emitGlobalIDs(buf *bytes.Buffer, cfg globalIDsConfig) {
	var remap Int3
	remap.setAxis(cfg.launch.X, 0)
	remap.setAxis(cfg.launch.Y, 1)
	remap.setAxis(cfg.launch.Z, 2)
	if cfg.linearWHS {
		fmt.Fprintf(buf, "  int linear_whs = %s;\n", cfg.globalIDs[0])
		fmt.Fprintf(buf, "  int Z = (linear_whs / %s) * %d;\n", cfg.taskSizeWH, cfg.blockSize.Z)
		fmt.Fprintf(buf, "  int linear_wh = linear_whs %% %s;\n", cfg.taskSizeWH)
		fmt.Fprintf(buf, "  int Y = (linear_wh / %s) * %d;\n", cfg.taskSizeW, cfg.blockSize.Y)
		fmt.Fprintf(buf, "  int X = (linear_wh %% %s) * %d;\n", cfg.taskSizeW, cfg.blockSize.X)
		return
	}
	if cfg.linearWH {
		if cfg.launch.X == 0 {
			fmt.Fprintf(buf, "  int linear_wh = %s;\n", cfg.globalIDs[0])
		} else {
			fmt.Fprintf(buf, "  int linear_wh = %s * %s + %s;\n",
				cfg.groupIDs[remap.Axis(0)], cfg.localSizes[0], cfg.localIDs[0])
		}
		fmt.Fprintf(buf, "  int Y = (linear_wh / %s) * %d;\n", cfg.taskSizeW, cfg.blockSize.Y)
		fmt.Fprintf(buf, "  int X = (linear_wh %% %s) * %d;\n", cfg.taskSizeW, cfg.blockSize.X)
		if cfg.launch.Y == 1 {
			fmt.Fprintf(buf, "  int Z = %s * %d;\n", cfg.globalIDs[1], cfg.blockSize.Z)
		} else {
			fmt.Fprintf(buf, "  int Z = (%s * %s + %s) * %d;\n",
				cfg.groupIDs[remap.Axis(1)], cfg.localSizes[1], cfg.localIDs[1], cfg.blockSize.Z)
		}
		return
	}
	names := [3]string{"X", "Y", "Z"}
	blocks := [3]int{cfg.blockSize.X, cfg.blockSize.Y, cfg.blockSize.Z}
	for axis := 0; axis < 3; axis++ {
		if cfg.launch.Axis(axis) == axis {
			fmt.Fprintf(buf, "  int %s = %s * %d;\n", names[axis], cfg.globalIDs[axis], blocks[axis])
		} else {
			fmt.Fprintf(buf, "  int %s = (%s * %s + %s) * %d;\n", names[axis],
				cfg.groupIDs[remap.Axis(axis)], cfg.localSizes[axis], cfg.localIDs[axis], blocks[axis])
		}
	}
}

// emitUploadByThreads writes the cooperative copy that spreads
// elementsToUpload vector loads across every thread of the work-group.
func emitUploadByThreads(buf *bytes.Buffer, localPtr, globalPtr, globalOffset, lid string,
	totalWorkItems, elementsToUpload int) {
	offset := ""
	if globalOffset != "" {
		offset = globalOffset + " + "
	}
	groups := elementsToUpload / totalWorkItems
	remainder := elementsToUpload % totalWorkItems
	for i := 0; i < groups; i++ {
		fmt.Fprintf(buf, "    %s[%s + %d] = %s[%s%s + %d];\n",
			localPtr, lid, totalWorkItems*i, globalPtr, offset, lid, totalWorkItems*i)
	}
	if remainder != 0 {
		fmt.Fprintf(buf, "    if (%s < %d) {\n", lid, remainder)
		fmt.Fprintf(buf, "      %s[%s + %d] = %s[%s%s + %d];\n",
			localPtr, lid, totalWorkItems*groups, globalPtr, offset, lid, totalWorkItems*groups)
		fmt.Fprintf(buf, "    }\n")
	}
}

var vecChannels = [4]string{"x", "y", "z", "w"}

// GenerateKernel emits the convolution kernel source for one parameter
// record. The emission is a fixed pipeline over the (validated) params;
// there is no runtime failure mode here. The $0/$1 markers are the
// runtime's substitution points for argument declarations.
func GenerateKernel(p ConvParams) string {
	ids := globalIDsConfig{
		groupIDs:   [3]string{"group_id.x", "group_id.y", "group_id.z"},
		globalIDs:  [3]string{"ugid.x", "ugid.y", "ugid.z"},
		localIDs:   [3]string{"tid3d.x", "tid3d.y", "tid3d.z"},
		localSizes: [3]string{"lsize.x", "lsize.y", "lsize.z"},
		linearWH:   p.LinearWH,
		linearWHS:  p.LinearWHS,
		taskSizeW:  "args.task_size_x",
		taskSizeWH: "args.task_size_y",
		blockSize:  p.BlockSize,
		launch:     p.WorkGroupLaunchOrder,
	}

	addrSpace := "device"
	if p.WeightsUpload == WeightsUploadConstantMem {
		addrSpace = "constant"
	}
	useLocalMem := p.WeightsUpload == WeightsUploadLocalMem
	localMemSize := p.BlockSize.Z * 4 * p.SrcDepthLoopSize

	useSIMDBroadcast := p.WeightsUpload.isSIMDBroadcast()
	simdSize := p.WeightsUpload.simdSize()

	// The whole weight set fits in constant memory only when nothing is
	// looped over and the kernel is unit on both axes.
	useFilterConstants := !p.NeedDstLoop && !p.NeedSrcLoop && p.XKernelIs1 && p.YKernelIs1

	buf := new(bytes.Buffer)
	buf.Grow(16 * 1024)
	buf.WriteString(`
#include <metal_stdlib>
using namespace metal;

struct uniforms {
    int4 task_sizes;
};
$0

kernel void ComputeFunction(
    $1
    uint tid[[thread_index_in_threadgroup]],
    uint3 group_id[[threadgroup_position_in_grid]],
    uint3 tid3d[[thread_position_in_threadgroup]],
    uint3 lsize[[threads_per_threadgroup]],
`)
	if useSIMDBroadcast {
		buf.WriteString("    uint simd_id[[thread_index_in_simdgroup]],\n")
	}
	buf.WriteString("    uint3 ugid[[thread_position_in_grid]]){\n")
	emitGlobalIDs(buf, ids)
	buf.WriteString("  if (Z >= args.dst_tensor.Slices()) return;\n")

	// Staged and broadcast uploads need every thread of the group alive
	// for the shared load, so the width/height check moves past the loop.
	lateXYCheck := useLocalMem || useSIMDBroadcast
	if !lateXYCheck && !p.LinearWHS {
		buf.WriteString("  if (X >= args.dst_tensor.Width() || Y >= args.dst_tensor.Height()) return;\n")
	}

	for z := 0; z < p.BlockSize.Z; z++ {
		for y := 0; y < p.BlockSize.Y; y++ {
			for x := 0; x < p.BlockSize.X; x++ {
				fmt.Fprintf(buf, "  ACCUM_FLT4 r%d%d%d = ACCUM_FLT4(0.0f, 0.0f, 0.0f, 0.0f);\n", z, y, x)
			}
		}
	}

	if !useFilterConstants {
		kernX := ""
		if !p.XKernelIs1 {
			kernX = " * args.kernel_size_x"
		}
		kernY := ""
		if !p.YKernelIs1 {
			kernY = " * args.kernel_size_y"
		}
		if !p.NeedDstLoop {
			fmt.Fprintf(buf, "  %s FLT4* tmp = args.weights.GetPtr();\n", addrSpace)
		} else if p.DifferentWeightsPerRow {
			fmt.Fprintf(buf, "  %s FLT4* tmp = args.weights.GetPtr() + (Z * args.src_tensor.Height() + Y * %d) * 4 * args.src_tensor.Slices();\n",
				addrSpace, p.BlockSize.Z)
		} else {
			fmt.Fprintf(buf, "  %s FLT4* tmp = args.weights.GetPtr() + Z * 4 * args.src_tensor.Slices()%s%s;\n",
				addrSpace, kernX, kernY)
		}
	}

	if !p.XKernelIs1 {
		for x := 0; x < p.BlockSize.X; x++ {
			fmt.Fprintf(buf, "  int x%d = (X + %d) * args.stride_x + args.padding_x;\n", x, x)
		}
	}
	if !p.YKernelIs1 {
		for y := 0; y < p.BlockSize.Y; y++ {
			fmt.Fprintf(buf, "  int y%d = (Y + %d) * args.stride_y + args.padding_y;\n", y, y)
		}
	}
	if useLocalMem {
		fmt.Fprintf(buf, "  threadgroup FLT4 weights_cache[%d];\n", localMemSize)
	}

	// Per-tile source coordinates. Looped axes get a do/while with an
	// out-of-bounds flag plus clamping, so the load address stays valid
	// even when the contribution is masked off; unit axes clamp once.
	if !p.YKernelIs1 {
		buf.WriteString("  int y = 0;\n")
		buf.WriteString("  do {\n")
		for y := 0; y < p.BlockSize.Y; y++ {
			fmt.Fprintf(buf, "  int c_y%d = y * args.dilation_y + y%d;\n", y, y)
			fmt.Fprintf(buf, "  bool y%d_out = c_y%d < 0 || c_y%d >= args.src_tensor.Height();\n", y, y, y)
			fmt.Fprintf(buf, "  c_y%d = clamp(c_y%d, 0, args.src_tensor.Height() - 1);\n", y, y)
		}
	} else {
		for y := 0; y < p.BlockSize.Y; y++ {
			fmt.Fprintf(buf, "  int c_y%d = clamp(Y + %d, 0, args.src_tensor.Height() - 1);\n", y, y)
		}
	}
	if !p.XKernelIs1 {
		buf.WriteString("  int x = 0;\n")
		buf.WriteString("  do {\n")
		for x := 0; x < p.BlockSize.X; x++ {
			fmt.Fprintf(buf, "  int c_x%d = x * args.dilation_x + x%d;\n", x, x)
			fmt.Fprintf(buf, "  bool x%d_out = c_x%d < 0 || c_x%d >= args.src_tensor.Width();\n", x, x, x)
			fmt.Fprintf(buf, "  c_x%d = clamp(c_x%d, 0, args.src_tensor.Width() - 1);\n", x, x)
		}
	} else {
		for x := 0; x < p.BlockSize.X; x++ {
			fmt.Fprintf(buf, "  int c_x%d = clamp(X + %d, 0, args.src_tensor.Width() - 1);\n", x, x)
		}
	}

	// Mask multipliers only for axes that can actually run out of range.
	for y := 0; y < p.BlockSize.Y; y++ {
		for x := 0; x < p.BlockSize.X; x++ {
			switch {
			case !p.YKernelIs1 && !p.XKernelIs1:
				fmt.Fprintf(buf, "  FLT m%d%d = !(y%d_out || x%d_out);\n", y, x, y, x)
			case !p.YKernelIs1:
				fmt.Fprintf(buf, "  FLT m%d%d = !y%d_out;\n", y, x, y)
			case !p.XKernelIs1:
				fmt.Fprintf(buf, "  FLT m%d%d = !x%d_out;\n", y, x, x)
			}
		}
	}
	for y := 0; y < p.BlockSize.Y; y++ {
		for x := 0; x < p.BlockSize.X; x++ {
			fmt.Fprintf(buf, "  device FLT4* src_loc_%d%d = args.src_tensor.GetHandle() + args.src_tensor.GetWHOffset(c_x%d, c_y%d);\n",
				y, x, x, y)
		}
	}

	buf.WriteString("  int s = 0;\n")
	if p.NeedSrcLoop {
		buf.WriteString("  do {\n")
	}
	if useLocalMem {
		totalWorkItems := p.WorkGroupSize.X * p.WorkGroupSize.Y * p.WorkGroupSize.Z
		buf.WriteString("    SIMDGROUP_BARRIER(mem_flags::mem_none);\n")
		emitUploadByThreads(buf, "weights_cache", "tmp", "", "tid", totalWorkItems, localMemSize)
		buf.WriteString("    SIMDGROUP_BARRIER(mem_flags::mem_threadgroup);\n")
	} else if useSIMDBroadcast {
		parts := localMemSize / simdSize
		remainder := localMemSize % simdSize
		for i := 0; i < parts; i++ {
			fmt.Fprintf(buf, "    FLT4 simd_w%d = tmp[simd_id + %d];\n", i, i*simdSize)
		}
		if remainder != 0 {
			fmt.Fprintf(buf, "    FLT4 simd_w%d;\n", parts)
			fmt.Fprintf(buf, "    if (simd_id < %d) {\n", remainder)
			fmt.Fprintf(buf, "      simd_w%d = tmp[simd_id + %d];\n", parts, parts*simdSize)
			fmt.Fprintf(buf, "    }\n")
		}
	}

	readSrc := func() {
		for y := 0; y < p.BlockSize.Y; y++ {
			for x := 0; x < p.BlockSize.X; x++ {
				if !p.YKernelIs1 || !p.XKernelIs1 {
					fmt.Fprintf(buf, "    src%d%d = *src_loc_%d%d * m%d%d;\n", y, x, y, x, y, x)
				} else {
					fmt.Fprintf(buf, "    src%d%d = *src_loc_%d%d;\n", y, x, y, x)
				}
			}
		}
		for y := 0; y < p.BlockSize.Y; y++ {
			for x := 0; x < p.BlockSize.X; x++ {
				fmt.Fprintf(buf, "    src_loc_%d%d += args.src_tensor.SliceStride();\n", y, x)
			}
		}
	}
	convCore := func(offset int) {
		name := "tmp"
		if useLocalMem {
			name = "weights_cache"
		}
		if useFilterConstants {
			name = "args.weights.GetPtr()"
		}
		for z := 0; z < p.BlockSize.Z; z++ {
			for ch := 0; ch < 4; ch++ {
				for y := 0; y < p.BlockSize.Y; y++ {
					for x := 0; x < p.BlockSize.X; x++ {
						fVal := fmt.Sprintf("%s[%d]", name, z*4+ch+offset)
						if useSIMDBroadcast {
							fVal = fmt.Sprintf("simd_broadcast(simd_w%d, %du)",
								(z*4+ch+offset)/simdSize, (z*4+ch+offset)%simdSize)
						}
						if p.WeightLayout == WeightsLayoutO4I4 {
							fmt.Fprintf(buf, "    r%d%d%d.%s += dot(%s, src%d%d);\n",
								z, y, x, vecChannels[ch], fVal, y, x)
						} else {
							fmt.Fprintf(buf, "    r%d%d%d += %s * src%d%d.%s;\n",
								z, y, x, fVal, y, x, vecChannels[ch])
						}
					}
				}
			}
		}
	}

	for y := 0; y < p.BlockSize.Y; y++ {
		for x := 0; x < p.BlockSize.X; x++ {
			fmt.Fprintf(buf, "    FLT4 src%d%d;\n", y, x)
		}
	}
	readSrc()
	buf.WriteString("    s += 1;\n")
	convCore(0)
	for i := 1; i < p.SrcDepthLoopSize; i++ {
		readSrc()
		convCore(i * p.BlockSize.Z * 4)
		buf.WriteString("    s += 1;\n")
	}
	if !useFilterConstants {
		fmt.Fprintf(buf, "    tmp += %d;\n", p.BlockSize.Z*4*p.SrcDepthLoopSize)
	}
	if p.NeedSrcLoop {
		buf.WriteString("  } while (s < args.src_tensor.Slices());\n")
	}
	if !p.XKernelIs1 {
		buf.WriteString("  x++;\n")
		buf.WriteString("  } while (x < args.kernel_size_x);\n")
	}
	if !p.YKernelIs1 {
		buf.WriteString("  y++;\n")
		buf.WriteString("  } while (y < args.kernel_size_y);\n")
	}

	if lateXYCheck && !p.LinearWHS {
		buf.WriteString("  if (X >= args.dst_tensor.Width() || Y >= args.dst_tensor.Height()) return;\n")
	}

	for y := 0; y < p.BlockSize.Y; y++ {
		for x := 0; x < p.BlockSize.X; x++ {
			fmt.Fprintf(buf, "  args.dst_tensor.GetAddress(offset_%d%d, X + %d, Y + %d, Z);\n", y, x, x, y)
		}
	}

	biasName := "args.biases.GetPtr()"
	if p.NeedDstLoop {
		buf.WriteString("  device FLT4* bias_loc = args.biases.GetPtr() + Z;\n")
		biasName = "bias_loc"
	}
	for y := 0; y < p.BlockSize.Y; y++ {
		for x := 0; x < p.BlockSize.X; x++ {
			for z := 0; z < p.BlockSize.Z; z++ {
				fmt.Fprintf(buf, "  r%d%d%d += TO_ACCUM4_TYPE(%s[%d]);\n", z, y, x, biasName, z)
			}
		}
	}

	// Final stores: channel-group tiles guard on the slice range; spatial
	// tile offsets beyond 0 guard on width/height (offset 0 was already
	// checked before or after the loop).
	for z := 0; z < p.BlockSize.Z; z++ {
		fmt.Fprintf(buf, "  if (Z + %d < args.dst_tensor.Slices()) {\n", z)
		for y := 0; y < p.BlockSize.Y; y++ {
			for x := 0; x < p.BlockSize.X; x++ {
				check := ""
				if x >= 1 {
					check = fmt.Sprintf("(X + %d) < args.dst_tensor.Width()", x)
				}
				if y >= 1 {
					if check != "" {
						check += " && "
					}
					check += fmt.Sprintf("(Y + %d) < args.dst_tensor.Height()", y)
				}
				if check != "" {
					fmt.Fprintf(buf, "    if (%s) {\n", check)
				} else {
					buf.WriteString("    {\n")
				}
				fmt.Fprintf(buf, "      FLT4 value = FLT4(r%d%d%d);\n", z, y, x)
				fmt.Fprintf(buf, "      int linear_index = offset_%d%d + args.dst_tensor.SliceStride() * %d;\n", y, x, z)
				fmt.Fprintf(buf, "      args.dst_tensor.Linking(value, X + %d, Y + %d, Z + %d);\n", x, y, z)
				fmt.Fprintf(buf, "      args.dst_tensor.WriteLinear(value, linear_index);\n")
				buf.WriteString("    }\n")
			}
		}
		buf.WriteString("  }\n")
	}
	buf.WriteString("}\n")
	return buf.String()
}
