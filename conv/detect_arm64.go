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

//go:build arm64

package conv

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// DetectHost returns a best-effort DeviceInfo for the machine the compiler
// runs on. On Apple silicon the GPU is at least A11/M1 class, so the Apple
// family with the Bionic flag applies. The GPU core count is not visible
// from the CPU side; the performance-core count is the closest proxy
// (Apple ships GPUs with at least as many cores).
func DetectHost() DeviceInfo {
	if runtime.GOOS == "darwin" && cpu.ARM64.HasASIMD {
		cores := runtime.NumCPU()
		if cores < 8 {
			cores = 8
		}
		return DeviceInfo{Family: FamilyApple, ComputeUnits: cores, Bionic: true}
	}
	// Non-Apple arm64: the GPU vendor is unknowable from here.
	return DeviceInfo{Family: FamilyGeneric, ComputeUnits: 4}
}
