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
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Group is an open VFIO group.
type Group struct {
	id       int
	fd       int
	path     string
	attached bool
}

// GroupStatus is the status of a VFIO group.
type GroupStatus struct {
	flags uint32
}

// Viable returns true if all devices in the group are bound to VFIO
// drivers or not bound at all.
func (s GroupStatus) Viable() bool {
	return s.flags&groupFlagsViable != 0
}

// ContainerSet returns true if the group is attached to a container.
func (s GroupStatus) ContainerSet() bool {
	return s.flags&groupFlagsContainerSet != 0
}

// String returns the status as a string.
func (s GroupStatus) String() string {
	flags := []string{}
	if s.Viable() {
		flags = append(flags, "viable")
	} else {
		flags = append(flags, "not viable")
	}
	if s.ContainerSet() {
		flags = append(flags, "container set")
	}
	return strings.Join(flags, ",")
}

// OpenGroup opens the VFIO group with the given id.
func OpenGroup(id int) (*Group, error) {
	path := GroupPath(id)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open VFIO group %q", path)
	}

	g := &Group{id: id, fd: fd, path: path}

	status, err := g.Status()
	if err != nil {
		g.Close()
		return nil, err
	}
	if !status.Viable() {
		g.Close()
		return nil, vfioError("group %d is not viable, %s", id, describeGroup(id))
	}

	log.Debug("opened group %s (fd %d): %s", path, fd, status)

	return g, nil
}

// describeGroup lists the drivers bound to the devices of a group.
func describeGroup(id int) string {
	devices, err := GroupDevices(id)
	if err != nil || len(devices) == 0 {
		return "all devices must be bound to vfio drivers"
	}
	bound := make([]string, 0, len(devices))
	for _, dev := range devices {
		drv := dev.Driver
		if drv == "" {
			drv = "no driver"
		}
		bound = append(bound, dev.Name+": "+drv)
	}
	return "all devices must be bound to vfio drivers (" + strings.Join(bound, ", ") + ")"
}

// ID returns the IOMMU group number of the group.
func (g *Group) ID() int {
	return g.id
}

// Status queries the status of the group.
func (g *Group) Status() (GroupStatus, error) {
	status := newGroupStatus()
	if _, err := ioctlPtr(g.fd, vfioGroupGetStatus, status); err != nil {
		return GroupStatus{}, errors.Wrapf(err, "%s: VFIO_GROUP_GET_STATUS failed", g.path)
	}
	return GroupStatus{flags: status.flags}, nil
}

// SetContainer attaches the group to the given container.
func (g *Group) SetContainer(c *Container) error {
	fd := int32(c.Fd())
	if _, err := ioctlPtr(g.fd, vfioGroupSetContainer, &fd); err != nil {
		return errors.Wrapf(err, "%s: VFIO_GROUP_SET_CONTAINER failed", g.path)
	}
	g.attached = true
	return nil
}

// UnsetContainer detaches the group from its container.
func (g *Group) UnsetContainer() error {
	if _, err := ioctlValue(g.fd, vfioGroupUnsetContainer, 0); err != nil {
		return errors.Wrapf(err, "%s: VFIO_GROUP_UNSET_CONTAINER failed", g.path)
	}
	g.attached = false
	return nil
}

// Close closes the group.
func (g *Group) Close() error {
	if g == nil || g.fd < 0 {
		return nil
	}
	err := unix.Close(g.fd)
	g.fd = -1
	if err != nil {
		return errors.Wrapf(err, "failed to close VFIO group %q", g.path)
	}
	return nil
}

// String returns the group id as a string.
func (g *Group) String() string {
	return strconv.Itoa(g.id)
}
