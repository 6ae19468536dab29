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

// DeviceFamily identifies which tuning heuristics apply to a GPU. The set
// is closed: anything the compiler does not recognize uses FamilyGeneric.
type DeviceFamily int

const (
	// FamilyAppleEntry covers early Apple GPUs (A7/A8 class) where local
	// memory is preferred over global for weight staging.
	FamilyAppleEntry DeviceFamily = iota
	// FamilyApple covers A9-and-higher Apple GPUs.
	FamilyApple
	// FamilyIntel covers Intel integrated GPUs with 8-wide SIMD groups.
	FamilyIntel
	// FamilyAMD covers discrete AMD GPUs.
	FamilyAMD
	// FamilyGeneric is the safe untuned baseline for unrecognized devices.
	// It shares the AMD parameter defaults.
	FamilyGeneric
)

func (f DeviceFamily) String() string {
	switch f {
	case FamilyAppleEntry:
		return "apple-entry"
	case FamilyApple:
		return "apple"
	case FamilyIntel:
		return "intel"
	case FamilyAMD:
		return "amd"
	case FamilyGeneric:
		return "generic"
	default:
		return fmt.Sprintf("DeviceFamily(%d)", int(f))
	}
}

// ParseFamily maps a family selector string to its DeviceFamily. Unknown
// selectors resolve to FamilyGeneric rather than failing: an unrecognized
// GPU must still compile, just without family tuning.
func ParseFamily(s string) DeviceFamily {
	switch s {
	case "apple-entry", "apple-a7", "apple-a8":
		return FamilyAppleEntry
	case "apple", "apple-a9", "apple-bionic":
		return FamilyApple
	case "intel":
		return FamilyIntel
	case "amd":
		return FamilyAMD
	default:
		return FamilyGeneric
	}
}

// DeviceInfo carries the capabilities the parameter heuristics read.
type DeviceInfo struct {
	Family DeviceFamily

	// ComputeUnits is the GPU core count, used by the wave-occupancy
	// estimate that sizes register blocks on Apple devices.
	ComputeUnits int

	// Bionic marks the A11-and-higher variants of FamilyApple; these
	// tolerate wider spatial tiling and full grid linearization better.
	Bionic bool
}

// IsApple reports whether the device uses either Apple heuristic.
func (d DeviceInfo) IsApple() bool {
	return d.Family == FamilyAppleEntry || d.Family == FamilyApple
}

// localMemoryPreferred reports whether cooperative threadgroup staging
// beats direct global reads for weight upload on this device.
func (d DeviceInfo) localMemoryPreferred() bool {
	return d.Family == FamilyAppleEntry
}
