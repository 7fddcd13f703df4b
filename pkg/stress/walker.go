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
	"github.com/soleen/iova-stress/pkg/units"
)

// Walker generates the IOVA offsets of a pass.
//
// Offsets start at 0 and increase by the stride for as long as they stay
// below the limit. A walker is not restartable.
type Walker struct {
	stride  uint64
	limit   uint64
	next    uint64
	done    bool
	visited uint64
}

// NewWalker creates a walker for the given stride and limit. Strides below
// MinStride are raised to MinStride.
func NewWalker(stride, limit units.Bytes) *Walker {
	stride = units.Max(stride, MinStride)
	return &Walker{
		stride: uint64(stride),
		limit:  uint64(limit),
		done:   limit == 0,
	}
}

// Stride returns the effective stride of the walker.
func (w *Walker) Stride() units.Bytes {
	return units.Bytes(w.stride)
}

// Next returns the next offset, or false once the IOVA space is exhausted.
func (w *Walker) Next() (uint64, bool) {
	if w.done {
		return 0, false
	}

	offset := w.next
	w.visited++

	// offset + stride would reach the limit or wrap around
	if w.limit-offset <= w.stride {
		w.done = true
	} else {
		w.next = offset + w.stride
	}

	return offset, true
}

// Count returns the total number of offsets the walker produces.
func (w *Walker) Count() uint64 {
	if w.limit == 0 {
		return 0
	}
	return (w.limit-1)/w.stride + 1
}

// Visited returns the number of offsets produced so far.
func (w *Walker) Visited() uint64 {
	return w.visited
}
