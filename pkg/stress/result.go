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

package stress

import (
	"fmt"
	"time"

	"github.com/soleen/iova-stress/pkg/procstats"
	"github.com/soleen/iova-stress/pkg/units"
)

// RunResult is the outcome of a completed pass.
type RunResult struct {
	// MapLength is the length of every mapping of the pass.
	MapLength units.Bytes
	// Stride is the IOVA distance between mappings.
	Stride units.Bytes
	// IOVASpace is the size of the walked IOVA space.
	IOVASpace units.Bytes
	// Elapsed is the time spent walking the IOVA space.
	Elapsed time.Duration
	// CPU is the CPU time consumed walking the IOVA space, if sampled.
	CPU procstats.CPUTimes
	// FreeBefore is the free memory sampled before the pass.
	FreeBefore units.Bytes
	// FreeAfter is the free memory sampled after the pass.
	FreeAfter units.Bytes
	// Overhead is the estimated kernel memory overhead, never negative.
	Overhead units.Bytes
	// Offsets is the number of offsets visited.
	Offsets uint64
	// Mapped is the number of offsets mapped and unmapped.
	Mapped uint64
	// Retryable is the number of offsets skipped because mapping failed.
	Retryable uint64
}

// kernelOverhead estimates kernel memory overhead from the drop in free
// memory, clamped to zero if free memory grew.
func kernelOverhead(before, after units.Bytes) units.Bytes {
	if after >= before {
		return 0
	}
	return before - after
}

// String returns the report line of the pass.
func (r *RunResult) String() string {
	ms := r.Elapsed.Milliseconds()
	return fmt.Sprintf("map size: %dKB stride: %dKB iova space: %dT kernel memory overhead: %dMB time: %d.%03ds",
		r.MapLength.KB(), r.Stride.KB(), r.IOVASpace.TB(), r.Overhead.MB(), ms/1000, ms%1000)
}
