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
	"encoding/binary"
	"math"

	"github.com/x448/float16"
)

// ReorderWeights flattens an OHWI weight tensor into the blocked,
// channel-packed order the generated kernel reads: channel-group tile,
// kernel row, kernel column, input channel-group, within-tile output
// channel-group, then a 4x4 channel micro-block whose axis order follows
// the weight layout. Channel pairs outside the true tensor extents are
// emitted as 0 so the kernel can always issue full 4-wide vector loads
// without channel bounds checks.
//
// Output length is kw*kh*alignUp(outGroups, block.z)*4*inGroups*4.
func ReorderWeights(weights Tensor, p ConvParams) []float32 {
	dstGroups := channelGroups(weights.Shape.O)
	srcGroups := channelGroups(weights.Shape.I)
	out := make([]float32, weights.Shape.W*weights.Shape.H*
		AlignByN(dstGroups, p.BlockSize.Z)*4*srcGroups*4)

	isO4I4 := p.WeightLayout == WeightsLayoutO4I4

	counter := 0
	for d := 0; d < DivideRoundUp(dstGroups, p.BlockSize.Z); d++ {
		for y := 0; y < weights.Shape.H; y++ {
			for x := 0; x < weights.Shape.W; x++ {
				for s := 0; s < srcGroups; s++ {
					for k := 0; k < p.BlockSize.Z; k++ {
						for j := 0; j < 4; j++ {
							for i := 0; i < 4; i++ {
								var srcCh, dstCh int
								if isO4I4 {
									srcCh = s*4 + i
									dstCh = (d*p.BlockSize.Z+k)*4 + j
								} else {
									srcCh = s*4 + j
									dstCh = (d*p.BlockSize.Z+k)*4 + i
								}
								if srcCh >= weights.Shape.I || dstCh >= weights.Shape.O {
									out[counter] = 0
								} else {
									out[counter] = weights.Data[weights.Shape.LinearIndex(dstCh, y, x, srcCh)]
								}
								counter++
							}
						}
					}
				}
			}
		}
	}
	return out
}

// padBias resizes a bias vector to alignUp(outGroups, block.z)*4 elements,
// zero-filling the tail, so the kernel's per-tile bias loads stay in
// bounds for every channel-group tile.
func padBias(bias []float32, outChannels int, p ConvParams) []float32 {
	dstGroups := channelGroups(outChannels)
	out := make([]float32, AlignByN(dstGroups, p.BlockSize.Z)*4)
	copy(out, bias)
	return out
}

// packBuffer serializes a float32 slice into the little-endian byte layout
// the runtime uploads: 4-byte floats for full float32 precision, IEEE 754
// half floats otherwise.
func packBuffer(data []float32, precision Precision) []byte {
	if precision.StorageIsHalf() {
		out := make([]byte, len(data)*2)
		for i, v := range data {
			binary.LittleEndian.PutUint16(out[i*2:], float16.Fromfloat32(v).Bits())
		}
		return out
	}
	out := make([]byte, len(data)*4)
	for i, v := range data {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}
