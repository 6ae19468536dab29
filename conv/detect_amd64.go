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

//go:build amd64

package conv

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// DetectHost returns a best-effort DeviceInfo for the machine the compiler
// runs on. Intel Macs drive Metal through the integrated GPU unless an AMD
// dGPU is present, which is not visible from the CPU side; the Intel
// heuristics are the safer default there. cpu.X86.HasSSE42 distinguishes a
// real x86 host from an emulated one where the guess would be meaningless.
func DetectHost() DeviceInfo {
	if runtime.GOOS == "darwin" && cpu.X86.HasSSE42 {
		return DeviceInfo{Family: FamilyIntel, ComputeUnits: 24}
	}
	return DeviceInfo{Family: FamilyGeneric, ComputeUnits: 4}
}
