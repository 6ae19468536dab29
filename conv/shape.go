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

// BHWC is a batch-height-width-channels activation shape.
type BHWC struct {
	B, H, W, C int
}

// OHWI is an output-channels-height-width-input-channels weight shape.
type OHWI struct {
	O, H, W, I int
}

// LinearIndex returns the flat offset of element (o, h, w, i).
func (s OHWI) LinearIndex(o, h, w, i int) int {
	return ((o*s.H+h)*s.W+w)*s.I + i
}

// Count returns the number of elements in the shape.
func (s OHWI) Count() int {
	return s.O * s.H * s.W * s.I
}

// HW is a height-width pair used for strides, dilations and paddings.
type HW struct {
	H, W int
}

// Padding2D holds the padding prepended before and appended after the
// spatial extent on each axis.
type Padding2D struct {
	Prepended HW
	Appended  HW
}

// Tensor is a dense float32 weight tensor in OHWI layout. Activation
// tensors never pass through the compiler; only weights do.
type Tensor struct {
	Shape OHWI
	Data  []float32
}

// Conv2DAttributes describes a 2D convolution: its weights, bias and the
// spatial striding/dilation/padding attributes.
type Conv2DAttributes struct {
	Weights   Tensor
	Bias      []float32
	Strides   HW
	Dilations HW
	Padding   Padding2D
}

func (attr *Conv2DAttributes) validate() error {
	w := attr.Weights.Shape
	if w.O <= 0 || w.H <= 0 || w.W <= 0 || w.I <= 0 {
		return fmt.Errorf("conv: weight shape %+v has a non-positive dimension", w)
	}
	if len(attr.Weights.Data) != w.Count() {
		return fmt.Errorf("conv: weight data has %d elements, shape %+v needs %d",
			len(attr.Weights.Data), w, w.Count())
	}
	if attr.Strides.W <= 0 || attr.Strides.H <= 0 {
		return fmt.Errorf("conv: strides %+v must be positive", attr.Strides)
	}
	if attr.Dilations.W <= 0 || attr.Dilations.H <= 0 {
		return fmt.Errorf("conv: dilations %+v must be positive", attr.Dilations)
	}
	return nil
}

// Precision selects the numeric mode the generated kernel computes in.
type Precision int

const (
	// PrecisionF32 computes and stores in float32.
	PrecisionF32 Precision = iota
	// PrecisionF16 computes and stores in half precision.
	PrecisionF16
	// PrecisionF32F16 stores in half precision but accumulates in float32.
	PrecisionF32F16
)

func (p Precision) String() string {
	switch p {
	case PrecisionF32:
		return "f32"
	case PrecisionF16:
		return "f16"
	case PrecisionF32F16:
		return "f32f16"
	default:
		return fmt.Sprintf("Precision(%d)", int(p))
	}
}

// StorageIsHalf reports whether buffers for this precision are serialized
// as IEEE 754 half floats. Only full float32 mode keeps 4-byte storage.
func (p Precision) StorageIsHalf() bool {
	return p != PrecisionF32
}
