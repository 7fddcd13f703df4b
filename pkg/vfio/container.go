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

package vfio

import (
	"fmt"
	"math/bits"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	logger "github.com/soleen/iova-stress/pkg/log"
	"github.com/soleen/iova-stress/pkg/units"
)

var log = logger.NewLogger("vfio")

// ContainerPath is the VFIO container device node.
const ContainerPath = "/dev/vfio/vfio"

// Container is an open VFIO container.
type Container struct {
	fd        int
	path      string
	iommuType IOMMUType
}

// IOMMUInfo describes the IOMMU backing a container.
type IOMMUInfo struct {
	// PageSizes lists the supported IOMMU page sizes, smallest first.
	PageSizes []units.Bytes
}

// OpenContainer opens a new VFIO container and checks its API version.
func OpenContainer() (*Container, error) {
	return openContainer(devPath(ContainerPath))
}

func openContainer(path string) (*Container, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open VFIO container %q", path)
	}

	c := &Container{fd: fd, path: path}

	version, err := c.APIVersion()
	if err != nil {
		c.Close()
		return nil, err
	}
	if version != APIVersion {
		c.Close()
		return nil, vfioError("%s: unsupported VFIO API version %d (expected %d)",
			path, version, APIVersion)
	}

	log.Debug("opened container %s (fd %d)", path, fd)

	return c, nil
}

// Fd returns the file descriptor of the container.
func (c *Container) Fd() int {
	return c.fd
}

// APIVersion returns the VFIO API version of the container.
func (c *Container) APIVersion() (int, error) {
	v, err := ioctlValue(c.fd, vfioGetAPIVersion, 0)
	if err != nil {
		return -1, errors.Wrapf(err, "%s: VFIO_GET_API_VERSION failed", c.path)
	}
	return int(v), nil
}

// CheckExtension checks if the container supports the given IOMMU type.
func (c *Container) CheckExtension(t IOMMUType) (bool, error) {
	v, err := ioctlValue(c.fd, vfioCheckExtension, t)
	if err != nil {
		return false, errors.Wrapf(err, "%s: VFIO_CHECK_EXTENSION(%s) failed", c.path, t)
	}
	return v > 0, nil
}

// SetIOMMU selects the IOMMU model for the container. At least one group
// must already be attached to the container.
func (c *Container) SetIOMMU(t IOMMUType) error {
	ok, err := c.CheckExtension(t)
	if err != nil {
		return err
	}
	if !ok {
		return vfioError("%s: IOMMU type %s not supported", c.path, t)
	}
	if _, err := ioctlValue(c.fd, vfioSetIOMMU, t); err != nil {
		return errors.Wrapf(err, "%s: VFIO_SET_IOMMU(%s) failed", c.path, t)
	}
	c.iommuType = t
	log.Debug("container %s: IOMMU type set to %s", c.path, t)
	return nil
}

// IOMMUType returns the IOMMU type set for the container, or 0.
func (c *Container) IOMMUType() IOMMUType {
	return c.iommuType
}

// IOMMUInfo queries information about the IOMMU of the container.
func (c *Container) IOMMUInfo() (*IOMMUInfo, error) {
	info := newIOMMUInfo()
	if _, err := ioctlPtr(c.fd, vfioIOMMUGetInfo, info); err != nil {
		return nil, errors.Wrapf(err, "%s: VFIO_IOMMU_GET_INFO failed", c.path)
	}
	return info.decode(), nil
}

func (info *iommuType1Info) decode() *IOMMUInfo {
	i := &IOMMUInfo{}
	if info.flags&iommuInfoPgsizes == 0 {
		return i
	}
	for mask := info.iovaPgsizes; mask != 0; mask &= mask - 1 {
		i.PageSizes = append(i.PageSizes, units.Bytes(1)<<bits.TrailingZeros64(mask))
	}
	return i
}

// MinPageSize returns the smallest supported IOMMU page size, or 0 if unknown.
func (i *IOMMUInfo) MinPageSize() units.Bytes {
	if len(i.PageSizes) == 0 {
		return 0
	}
	return i.PageSizes[0]
}

// MapDMA maps a process virtual address range at the given IOVA.
func (c *Container) MapDMA(m DMAMap) error {
	if _, err := ioctlPtr(c.fd, vfioIOMMUMapDMA, newDmaMap(m)); err != nil {
		return errors.Wrapf(err, "VFIO_IOMMU_MAP_DMA failed at 0x%x", m.IOVA)
	}
	return nil
}

// UnmapDMA unmaps the mapping at the given IOVA. An unmap that removes
// fewer bytes than requested is an error.
func (c *Container) UnmapDMA(u DMAUnmap) error {
	req := newDmaUnmap(u)
	if _, err := ioctlPtr(c.fd, vfioIOMMUUnmapDMA, req); err != nil {
		return errors.Wrapf(err, "VFIO_IOMMU_UNMAP_DMA failed at 0x%x", u.IOVA)
	}
	return checkUnmapped(u, req)
}

func checkUnmapped(u DMAUnmap, req *iommuType1DmaUnmap) error {
	if req.size != u.Size {
		return vfioError("VFIO_IOMMU_UNMAP_DMA at 0x%x unmapped %d bytes, expected %d",
			u.IOVA, req.size, u.Size)
	}
	return nil
}

// Close closes the container.
func (c *Container) Close() error {
	if c == nil || c.fd < 0 {
		return nil
	}
	err := unix.Close(c.fd)
	c.fd = -1
	if err != nil {
		return errors.Wrapf(err, "failed to close VFIO container %q", c.path)
	}
	return nil
}

// Session is a container with a single group attached and an IOMMU set.
type Session struct {
	*Container
	Group *Group
}

// Attach opens the given group, attaches it to a new container and sets
// the IOMMU type of the container.
func Attach(groupID int, t IOMMUType) (*Session, error) {
	c, err := OpenContainer()
	if err != nil {
		return nil, err
	}

	g, err := OpenGroup(groupID)
	if err != nil {
		c.Close()
		return nil, err
	}

	s := &Session{Container: c, Group: g}

	if err := g.SetContainer(c); err != nil {
		s.Close()
		return nil, err
	}
	if err := c.SetIOMMU(t); err != nil {
		s.Close()
		return nil, err
	}

	log.Info("attached IOMMU group %d to container (%s IOMMU)", groupID, t)

	return s, nil
}

// Close detaches the group and closes both the group and the container.
func (s *Session) Close() error {
	var result *multierror.Error

	if s.Group != nil {
		if s.Group.attached {
			result = multierror.Append(result, s.Group.UnsetContainer())
		}
		result = multierror.Append(result, s.Group.Close())
	}
	result = multierror.Append(result, s.Container.Close())

	return result.ErrorOrNil()
}

func vfioError(format string, args ...interface{}) error {
	return fmt.Errorf("vfio: "+format, args...)
}
