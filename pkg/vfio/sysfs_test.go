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
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

type group struct {
	id      int
	devices map[string]string
	bound   bool
}

func setupMockRoot(t *testing.T, groups []group) {
	root := t.TempDir()
	for _, g := range groups {
		id := strconv.Itoa(g.id)
		devices := filepath.Join(root, iommuGroupsDir, id, "devices")
		require.NoError(t, os.MkdirAll(devices, 0755))
		for name, drv := range g.devices {
			require.NoError(t, os.MkdirAll(filepath.Join(devices, name), 0755))
			if drv != "" {
				target := filepath.Join("..", "..", "bus", "pci", "drivers", drv)
				require.NoError(t, os.Symlink(target, filepath.Join(devices, name, "driver")))
			}
		}
		if g.bound {
			require.NoError(t, os.MkdirAll(filepath.Join(root, vfioDevDir), 0755))
			require.NoError(t, os.WriteFile(filepath.Join(root, vfioDevDir, id), nil, 0600))
		}
	}
	require.NoError(t, os.MkdirAll(filepath.Join(root, iommuGroupsDir), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, iommuGroupsDir, "README"), nil, 0600))

	mockRoot = root
	t.Cleanup(func() { mockRoot = "" })
}

func TestGroups(t *testing.T) {
	setupMockRoot(t, []group{{id: 83}, {id: 7}, {id: 12}})

	groups, err := Groups()
	require.NoError(t, err)
	require.Equal(t, []int{7, 12, 83}, groups)
}

func TestFirstGroup(t *testing.T) {
	tcases := []struct {
		name     string
		groups   []group
		expected int
		err      string
	}{
		{
			name:     "lowest bound group wins",
			groups:   []group{{id: 2}, {id: 83, bound: true}, {id: 10, bound: true}},
			expected: 10,
		},
		{
			name:   "no bound groups",
			groups: []group{{id: 0}, {id: 1}},
			err:    "no IOMMU group bound to vfio found (2 groups checked)",
		},
		{
			name: "no groups at all",
			err:  "no IOMMU group bound to vfio found",
		},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			setupMockRoot(t, tc.groups)
			id, err := FirstGroup()
			if tc.err != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.err)
				require.Equal(t, -1, id)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expected, id)
		})
	}
}

func TestFirstGroupNoIOMMU(t *testing.T) {
	mockRoot = t.TempDir()
	t.Cleanup(func() { mockRoot = "" })

	_, err := FirstGroup()
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to read IOMMU groups")
}

func TestGroupDevices(t *testing.T) {
	setupMockRoot(t, []group{
		{
			id: 83,
			devices: map[string]string{
				"0000:02:00.0": "vfio-pci",
				"0000:02:00.1": "ixgbe",
				"0000:02:00.2": "",
			},
		},
	})

	devices, err := GroupDevices(83)
	require.NoError(t, err)
	require.Equal(t, []Device{
		{Name: "0000:02:00.0", Driver: "vfio-pci"},
		{Name: "0000:02:00.1", Driver: "ixgbe"},
		{Name: "0000:02:00.2"},
	}, devices)

	require.Equal(t,
		"all devices must be bound to vfio drivers (0000:02:00.0: vfio-pci, 0000:02:00.1: ixgbe, 0000:02:00.2: no driver)",
		describeGroup(83))

	_, err = GroupDevices(84)
	require.Error(t, err)
	require.Equal(t, "all devices must be bound to vfio drivers", describeGroup(84))
}

func TestOpenMissing(t *testing.T) {
	mockRoot = t.TempDir()
	t.Cleanup(func() { mockRoot = "" })

	_, err := OpenContainer()
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to open VFIO container")

	_, err = OpenGroup(83)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to open VFIO group")

	_, err = Attach(83, Type1)
	require.Error(t, err)
}

func TestGroupPath(t *testing.T) {
	require.Equal(t, "/dev/vfio/83", GroupPath(83))
}
