// Copyright 2022 Intel Corporation. All Rights Reserved.
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

// Package stress implements the IOMMU map/unmap stress loop.
//
// A pass walks the IOVA space from 0 up to a configured limit in fixed
// strides. At every offset a single DMA mapping backed by the same anonymous
// memory region is created and then immediately removed. Failing to create a
// mapping is expected, for instance when it collides with an entry left over
// by another user of the container, and the offset is simply skipped. Failing
// to remove a mapping that was just created leaves a translation the tool
// can no longer account for and aborts the run.
//
// Note that nothing limits how many offsets in a row may fail to map. With
// a persistently failing container a pass degenerates into a tight loop of
// failing kernel calls that ends only when the walk reaches its limit.
package stress

import (
	"fmt"

	"github.com/soleen/iova-stress/pkg/units"
)

// MinStride is the smallest IOVA distance between two consecutive mappings.
const MinStride = 2 * units.MiB

// Run describes a single stress pass.
type Run struct {
	// IOVASpaceLimit is the exclusive upper bound of the walked IOVA space.
	IOVASpaceLimit units.Bytes
	// MapLength is the length of every mapping in the pass.
	MapLength units.Bytes
	// Verbose enables progress reporting at every TiB of IOVA space.
	Verbose bool
}

// Stride returns the IOVA distance between consecutive mappings.
func (r Run) Stride() units.Bytes {
	return units.Max(r.MapLength, MinStride)
}

// Validate checks that the run can be executed.
func (r Run) Validate() error {
	if r.IOVASpaceLimit == 0 {
		return stressError("invalid run: empty IOVA space")
	}
	if r.MapLength == 0 {
		return stressError("invalid run: zero mapping length")
	}
	return nil
}

// String returns a short description of the run.
func (r Run) String() string {
	return fmt.Sprintf("%s mappings every %s of %s IOVA space", r.MapLength, r.Stride(), r.IOVASpaceLimit)
}

// Passes returns the stress runs of an invocation: one at the native page
// size and, if altLength is non-zero, a second one at altLength.
func Passes(limit, pageSize, altLength units.Bytes, verbose bool) []Run {
	runs := []Run{
		{IOVASpaceLimit: limit, MapLength: pageSize, Verbose: verbose},
	}
	if altLength != 0 {
		runs = append(runs, Run{IOVASpaceLimit: limit, MapLength: altLength, Verbose: verbose})
	}
	return runs
}

func stressError(format string, args ...interface{}) error {
	return fmt.Errorf("stress: "+format, args...)
}
