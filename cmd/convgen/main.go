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

// Command convgen compiles a convolution kernel for a described shape and
// device, and prints the chosen tiling parameters, the dispatch sizes and
// the generated kernel source.
//
// Usage:
//
//	convgen -src 1x32x32x8 -dst 1x32x32x16 -kernel 3x3 -family apple
//	convgen -dst 1x224x224x64 -kernel 1x1 -family intel -precision f16
//	convgen -dst 1x56x56x128 -kernel 3x3 -stride 2x2 -pad 1x1 -source=false
//
// The weight and bias buffers are synthesized (zeros) since only their
// layout matters here; real callers pass trained tensors through the
// conv package directly.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gpukit/convgen/conv"
)

var (
	srcShape   = flag.String("src", "1x32x32x8", "Source shape as BxHxWxC")
	dstShape   = flag.String("dst", "1x32x32x16", "Destination shape as BxHxWxC")
	kernelSize = flag.String("kernel", "3x3", "Kernel size as HxW")
	stride     = flag.String("stride", "1x1", "Strides as HxW")
	dilation   = flag.String("dilation", "1x1", "Dilations as HxW")
	pad        = flag.String("pad", "0x0", "Prepended padding as HxW")
	family     = flag.String("family", "", "Device family (apple-entry, apple, intel, amd, generic); default: detect host")
	units      = flag.Int("units", 0, "Compute unit count override (0 keeps the detected/default value)")
	precision  = flag.String("precision", "f32", "Numeric precision (f32, f16, f32f16)")
	winograd   = flag.Bool("winograd", false, "Compile the post-transform Winograd 4x4-to-6x6 path")
	showSource = flag.Bool("source", true, "Print the generated kernel source")
)

func main() {
	flag.Parse()

	src, err := parseBHWC(*srcShape)
	if err != nil {
		fatalf("bad -src: %v", err)
	}
	dst, err := parseBHWC(*dstShape)
	if err != nil {
		fatalf("bad -dst: %v", err)
	}
	kh, kw, err := parsePair(*kernelSize)
	if err != nil {
		fatalf("bad -kernel: %v", err)
	}
	sh, sw, err := parsePair(*stride)
	if err != nil {
		fatalf("bad -stride: %v", err)
	}
	dh, dw, err := parsePair(*dilation)
	if err != nil {
		fatalf("bad -dilation: %v", err)
	}
	ph, pw, err := parsePair(*pad)
	if err != nil {
		fatalf("bad -pad: %v", err)
	}

	dev := conv.DetectHost()
	if *family != "" {
		dev = conv.DeviceInfo{Family: conv.ParseFamily(*family), ComputeUnits: 8}
		if dev.Family == conv.FamilyApple {
			dev.Bionic = true
		}
	}
	if *units > 0 {
		dev.ComputeUnits = *units
	}

	var prec conv.Precision
	switch *precision {
	case "f32":
		prec = conv.PrecisionF32
	case "f16":
		prec = conv.PrecisionF16
	case "f32f16":
		prec = conv.PrecisionF32F16
	default:
		fatalf("bad -precision: %q (want f32, f16 or f32f16)", *precision)
	}

	shape := conv.OHWI{O: dst.C, H: kh, W: kw, I: src.C}
	attr := conv.Conv2DAttributes{
		Weights:   conv.Tensor{Shape: shape, Data: make([]float32, shape.Count())},
		Bias:      make([]float32, dst.C),
		Strides:   conv.HW{H: sh, W: sw},
		Dilations: conv.HW{H: dh, W: dw},
		Padding:   conv.Padding2D{Prepended: conv.HW{H: ph, W: pw}},
	}

	var task *conv.ComputeTask
	if *winograd {
		task, err = conv.NewWinograd4x4To6x6(attr, dst, prec, dev)
	} else {
		task, err = conv.NewConvolution(attr, dst, prec, dev)
	}
	if err != nil {
		fatalf("%v", err)
	}

	p := task.Params
	fmt.Printf("device:        %s (%d compute units)\n", dev.Family, dev.ComputeUnits)
	fmt.Printf("block size:    %dx%dx%d\n", p.BlockSize.X, p.BlockSize.Y, p.BlockSize.Z)
	fmt.Printf("work group:    %dx%dx%d (launch order %d,%d,%d)\n",
		p.WorkGroupSize.X, p.WorkGroupSize.Y, p.WorkGroupSize.Z,
		p.WorkGroupLaunchOrder.X, p.WorkGroupLaunchOrder.Y, p.WorkGroupLaunchOrder.Z)
	fmt.Printf("weights:       %s upload, %s layout, %d bytes\n",
		p.WeightsUpload, p.WeightLayout, len(task.Weights.Data))
	fmt.Printf("linearization: wh=%v whs=%v, src depth loop %d\n",
		p.LinearWH, p.LinearWHS, p.SrcDepthLoopSize)

	taskX, taskY, err := task.RuntimeArgs(dst)
	if err != nil {
		fatalf("%v", err)
	}
	groupSize, groupsCount := conv.DispatchSizes(p, dst)
	fmt.Printf("runtime args:  task_size_x=%d task_size_y=%d\n", taskX, taskY)
	fmt.Printf("dispatch:      groups %dx%dx%d of %dx%dx%d threads\n",
		groupsCount.X, groupsCount.Y, groupsCount.Z,
		groupSize.X, groupSize.Y, groupSize.Z)

	if *showSource {
		fmt.Println()
		fmt.Print(task.Source)
	}
}

func parseBHWC(s string) (conv.BHWC, error) {
	parts, err := parseInts(s, 4)
	if err != nil {
		return conv.BHWC{}, err
	}
	return conv.BHWC{B: parts[0], H: parts[1], W: parts[2], C: parts[3]}, nil
}

func parsePair(s string) (h, w int, err error) {
	parts, err := parseInts(s, 2)
	if err != nil {
		return 0, 0, err
	}
	return parts[0], parts[1], nil
}

func parseInts(s string, n int) ([]int, error) {
	fields := strings.Split(s, "x")
	if len(fields) != n {
		return nil, fmt.Errorf("%q: want %d x-separated integers", s, n)
	}
	out := make([]int, n)
	for i, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("%q: %v", s, err)
		}
		out[i] = v
	}
	return out, nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
