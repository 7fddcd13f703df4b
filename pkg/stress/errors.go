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

	"github.com/soleen/iova-stress/pkg/units"
)

// UnmapError is returned when removing a freshly created mapping fails.
type UnmapError struct {
	// IOVA is the offset of the mapping which could not be removed.
	IOVA uint64
	// Length is the length of the mapping.
	Length units.Bytes
	// Err is the error returned by the kernel interface.
	Err error
}

func (e *UnmapError) Error() string {
	return fmt.Sprintf("stress: DMA unmap failed at 0x%x (length %s): %v", e.IOVA, e.Length, e.Err)
}

func (e *UnmapError) Unwrap() error {
	return e.Err
}

// AllocError is returned when the backing memory of a pass cannot be allocated.
type AllocError struct {
	// Size is the requested size of the backing region.
	Size units.Bytes
	// Err is the underlying allocation error.
	Err error
}

func (e *AllocError) Error() string {
	return fmt.Sprintf("stress: failed to allocate %s backing region: %v", e.Size, e.Err)
}

func (e *AllocError) Unwrap() error {
	return e.Err
}
