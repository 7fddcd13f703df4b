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

// Package vfio is a minimal binding to the Linux VFIO container and group
// interfaces needed to drive IOMMU DMA mappings from user space.
package vfio

import (
	"unsafe"
)

// ioctl request numbers, from include/uapi/linux/vfio.h
const (
	vfioType = ';'
	vfioBase = 100
)

// _IO(VFIO_TYPE, VFIO_BASE + nr)
func vfioIO(nr uintptr) uintptr {
	return vfioType<<8 | (vfioBase + nr)
}

var (
	vfioGetAPIVersion       = vfioIO(0)
	vfioCheckExtension      = vfioIO(1)
	vfioSetIOMMU            = vfioIO(2)
	vfioGroupGetStatus      = vfioIO(3)
	vfioGroupSetContainer   = vfioIO(4)
	vfioGroupUnsetContainer = vfioIO(5)
	vfioIOMMUGetInfo        = vfioIO(12)
	vfioIOMMUMapDMA         = vfioIO(13)
	vfioIOMMUUnmapDMA       = vfioIO(14)
)

const (
	// APIVersion is the only VFIO API version we know how to talk to.
	APIVersion = 0
)

// IOMMUType is a VFIO IOMMU model, also usable as an extension to check.
type IOMMUType uintptr

const (
	// Type1 is the original x86 type1 IOMMU model.
	Type1 IOMMUType = 1
	// Type1v2 is type1 with stricter unmap semantics.
	Type1v2 IOMMUType = 3
)

// String returns the command line name of the IOMMU type.
func (t IOMMUType) String() string {
	switch t {
	case Type1:
		return "type1"
	case Type1v2:
		return "type1v2"
	}
	return "unknown"
}

// ParseIOMMUType returns the IOMMU type for the given name.
func ParseIOMMUType(name string) (IOMMUType, error) {
	switch name {
	case "type1":
		return Type1, nil
	case "type1v2":
		return Type1v2, nil
	}
	return 0, vfioError("unknown IOMMU type %q (expected type1 or type1v2)", name)
}

// group status flags
const (
	groupFlagsViable       = 1 << 0
	groupFlagsContainerSet = 1 << 1
)

// DMA mapping access flags.
const (
	// DMARead allows the device to read the mapped memory.
	DMARead uint32 = 1 << 0
	// DMAWrite allows the device to write the mapped memory.
	DMAWrite uint32 = 1 << 1
)

// iommu info flags
const (
	iommuInfoPgsizes = 1 << 0
)

// struct vfio_group_status
type groupStatus struct {
	argsz uint32
	flags uint32
}

// struct vfio_iommu_type1_dma_map
type iommuType1DmaMap struct {
	argsz uint32
	flags uint32
	vaddr uint64
	iova  uint64
	size  uint64
}

// struct vfio_iommu_type1_dma_unmap
type iommuType1DmaUnmap struct {
	argsz uint32
	flags uint32
	iova  uint64
	size  uint64
}

// struct vfio_iommu_type1_info
type iommuType1Info struct {
	argsz       uint32
	flags       uint32
	iovaPgsizes uint64
	capOffset   uint32
	pad         uint32
}

// DMAMap describes a single DMA mapping request.
type DMAMap struct {
	// Vaddr is the process virtual address of the backing memory.
	Vaddr uintptr
	// IOVA is the I/O virtual address to map at.
	IOVA uint64
	// Size is the length of the mapping in bytes.
	Size uint64
	// Flags are the DMARead/DMAWrite access flags.
	Flags uint32
}

// DMAUnmap describes a single DMA unmapping request.
type DMAUnmap struct {
	// IOVA is the I/O virtual address of the mapping.
	IOVA uint64
	// Size is the length of the mapping in bytes.
	Size uint64
}

func newGroupStatus() *groupStatus {
	return &groupStatus{argsz: uint32(unsafe.Sizeof(groupStatus{}))}
}

func newDmaMap(m DMAMap) *iommuType1DmaMap {
	return &iommuType1DmaMap{
		argsz: uint32(unsafe.Sizeof(iommuType1DmaMap{})),
		flags: m.Flags,
		vaddr: uint64(m.Vaddr),
		iova:  m.IOVA,
		size:  m.Size,
	}
}

func newDmaUnmap(u DMAUnmap) *iommuType1DmaUnmap {
	return &iommuType1DmaUnmap{
		argsz: uint32(unsafe.Sizeof(iommuType1DmaUnmap{})),
		iova:  u.IOVA,
		size:  u.Size,
	}
}

func newIOMMUInfo() *iommuType1Info {
	return &iommuType1Info{argsz: uint32(unsafe.Sizeof(iommuType1Info{}))}
}
