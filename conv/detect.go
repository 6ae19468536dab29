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

//go:build !arm64 && !amd64

package conv

// DetectHost returns a best-effort DeviceInfo for the machine the compiler
// runs on. On architectures without a detection path it reports the
// generic family, which selects the untuned baseline parameters.
func DetectHost() DeviceInfo {
	return DeviceInfo{Family: FamilyGeneric, ComputeUnits: 4}
}
