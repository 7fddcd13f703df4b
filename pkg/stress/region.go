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
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/soleen/iova-stress/pkg/units"
)

// Region is the anonymous memory backing every mapping of a pass.
type Region interface {
	// Addr returns the process virtual address of the region.
	Addr() uintptr
	// Size returns the size of the region.
	Size() units.Bytes
	// Release unmaps the region from the process address space.
	Release() error
}

// Allocator allocates backing regions.
type Allocator interface {
	Allocate(size units.Bytes) (Region, error)
}

// AllocatorFunc adapts a function to an Allocator.
type AllocatorFunc func(size units.Bytes) (Region, error)

// Allocate calls f(size).
func (f AllocatorFunc) Allocate(size units.Bytes) (Region, error) {
	return f(size)
}

type mmapRegion struct {
	mem []byte
}

// MmapAllocator returns an allocator of private anonymous mmap'ed regions.
func MmapAllocator() Allocator {
	return AllocatorFunc(mmapAllocate)
}

func mmapAllocate(size units.Bytes) (Region, error) {
	if size == 0 || uint64(size) > uint64(maxInt) {
		return nil, stressError("invalid region size %d", uint64(size))
	}
	mem, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, errors.Wrapf(err, "mmap of %s failed", size)
	}
	return &mmapRegion{mem: mem}, nil
}

const maxInt = int(^uint(0) >> 1)

func (r *mmapRegion) Addr() uintptr {
	if len(r.mem) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&r.mem[0]))
}

func (r *mmapRegion) Size() units.Bytes {
	return units.Bytes(len(r.mem))
}

func (r *mmapRegion) Release() error {
	if r.mem == nil {
		return nil
	}
	err := unix.Munmap(r.mem)
	r.mem = nil
	if err != nil {
		return errors.Wrap(err, "munmap failed")
	}
	return nil
}
