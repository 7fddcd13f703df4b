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
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

// to mock in tests
var (
	mockRoot = ""
)

const (
	iommuGroupsDir = "/sys/kernel/iommu_groups"
	vfioDevDir     = "/dev/vfio"
)

// Device is a device in an IOMMU group.
type Device struct {
	// Name is the sysfs name of the device, usually a PCI address.
	Name string
	// Driver is the name of the driver bound to the device, if any.
	Driver string
}

func devPath(path string) string {
	return filepath.Join(mockRoot, path)
}

// GroupPath returns the path of the VFIO device node for the given group.
func GroupPath(id int) string {
	return devPath(filepath.Join(vfioDevDir, strconv.Itoa(id)))
}

// Groups returns the IOMMU groups of the system in ascending order.
func Groups() ([]int, error) {
	dir := devPath(iommuGroupsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read IOMMU groups from %s", dir)
	}

	groups := make([]int, 0, len(entries))
	for _, e := range entries {
		id, err := strconv.Atoi(e.Name())
		if err != nil || id < 0 {
			log.Debug("ignoring unexpected IOMMU group entry %q", e.Name())
			continue
		}
		groups = append(groups, id)
	}
	sort.Ints(groups)

	return groups, nil
}

// FirstGroup returns the lowest numbered IOMMU group with a VFIO device node.
func FirstGroup() (int, error) {
	groups, err := Groups()
	if err != nil {
		return -1, err
	}
	for _, id := range groups {
		if _, err := os.Stat(GroupPath(id)); err == nil {
			log.Debug("found VFIO group %d", id)
			return id, nil
		}
	}
	return -1, vfioError("no IOMMU group bound to vfio found (%d groups checked)", len(groups))
}

// GroupDevices returns the devices of the given IOMMU group.
func GroupDevices(id int) ([]Device, error) {
	dir := devPath(filepath.Join(iommuGroupsDir, strconv.Itoa(id), "devices"))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read IOMMU group %d devices", id)
	}

	devices := make([]Device, 0, len(entries))
	for _, e := range entries {
		dev := Device{Name: e.Name()}
		if drv, err := os.Readlink(filepath.Join(dir, e.Name(), "driver")); err == nil {
			dev.Driver = filepath.Base(drv)
		}
		devices = append(devices, dev)
	}

	return devices, nil
}
