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

// Int3 is a 3-component integer vector used for block sizes, work-group
// sizes, launch orders and dispatch grids.
type Int3 struct {
	X, Y, Z int
}

// Axis returns component i (0=X, 1=Y, 2=Z).
func (v Int3) Axis(i int) int {
	switch i {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

func (v *Int3) setAxis(i, val int) {
	switch i {
	case 0:
		v.X = val
	case 1:
		v.Y = val
	default:
		v.Z = val
	}
}

// DivideRoundUp returns ceil(n/d) for positive d.
func DivideRoundUp(n, d int) int {
	return (n + d - 1) / d
}

// AlignByN rounds n up to the nearest multiple of align.
func AlignByN(n, align int) int {
	return DivideRoundUp(n, align) * align
}

// channelGroups returns the number of 4-channel groups covering c channels.
func channelGroups(c int) int {
	return DivideRoundUp(c, 4)
}

// gridDims returns the per-axis tile counts for a destination shape under a
// block size: one logical thread per (X tile, Y tile, channel-group tile).
func gridDims(dst BHWC, block Int3) Int3 {
	return Int3{
		X: DivideRoundUp(dst.W, block.X),
		Y: DivideRoundUp(dst.H, block.Y),
		Z: DivideRoundUp(channelGroups(dst.C), block.Z),
	}
}

// GroupsCount returns the 3-D dispatch work-group count for a destination
// shape, work-group size and block size.
func GroupsCount(dst BHWC, wg, block Int3) int {
	grid := gridDims(dst, block)
	return DivideRoundUp(grid.X, wg.X) * DivideRoundUp(grid.Y, wg.Y) *
		DivideRoundUp(grid.Z, wg.Z)
}

// GroupsCountLinearWH returns the work-group count when the X and Y tile
// axes are flattened onto dispatch axis 0 and the channel-group axis stays
// on dispatch axis 1.
func GroupsCountLinearWH(dst BHWC, wg, block Int3) int {
	grid := gridDims(dst, block)
	return DivideRoundUp(grid.X*grid.Y, wg.X) * DivideRoundUp(grid.Z, wg.Y)
}

// GroupsCountLinearWHS returns the work-group count when all three tile
// axes are flattened onto dispatch axis 0.
func GroupsCountLinearWHS(dst BHWC, wg, block Int3) int {
	grid := gridDims(dst, block)
	return DivideRoundUp(grid.X*grid.Y*grid.Z, wg.X)
}
