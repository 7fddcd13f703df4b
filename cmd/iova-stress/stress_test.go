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

package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/soleen/iova-stress/pkg/config"
	"github.com/soleen/iova-stress/pkg/stress"
	"github.com/soleen/iova-stress/pkg/units"
	"github.com/soleen/iova-stress/pkg/vfio"
)

type fakeSession struct {
	group     int
	iommuType vfio.IOMMUType
	maps      int
	unmaps    int
	failUnmap bool
	closed    bool
	closeErr  error
}

func (s *fakeSession) MapDMA(m vfio.DMAMap) error {
	s.maps++
	return nil
}

func (s *fakeSession) UnmapDMA(u vfio.DMAUnmap) error {
	s.unmaps++
	if s.failUnmap && u.IOVA == uint64(2*units.MiB) {
		return errors.New("invalid argument")
	}
	return nil
}

func (s *fakeSession) IOMMUInfo() (*vfio.IOMMUInfo, error) {
	return &vfio.IOMMUInfo{PageSizes: []units.Bytes{4 * units.KiB, 2 * units.MiB}}, nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return s.closeErr
}

func mockVFIO(t *testing.T, s *fakeSession) {
	oldAttach, oldFirst, oldDevices, oldPageSize := attach, firstGroup, groupDevices, pageSize
	attach = func(group int, typ vfio.IOMMUType) (session, error) {
		s.group = group
		s.iommuType = typ
		return s, nil
	}
	firstGroup = func() (int, error) { return 7, nil }
	groupDevices = func(int) ([]vfio.Device, error) {
		return []vfio.Device{{Name: "0000:02:00.1", Driver: "vfio-pci"}}, nil
	}
	pageSize = func() int { return 4096 }
	t.Cleanup(func() {
		attach, firstGroup, groupDevices, pageSize = oldAttach, oldFirst, oldDevices, oldPageSize
	})
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.IOVASpaceTB = 1
	return cfg
}

func TestRun(t *testing.T) {
	s := &fakeSession{}
	mockVFIO(t, s)

	cfg := testConfig()
	cfg.AltMapSizeMB = 4
	cfg.IOMMUType = "type1v2"

	out := &bytes.Buffer{}
	require.NoError(t, run(cfg, out))

	require.Equal(t, 7, s.group)
	require.Equal(t, vfio.Type1v2, s.iommuType)
	require.True(t, s.closed)

	// 1T in 2M strides, then in 4M strides
	require.Equal(t, 524288+262144, s.maps)
	require.Equal(t, s.maps, s.unmaps)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[0], "map size: 4KB stride: 2048KB iova space: 1T "), lines[0])
	require.True(t, strings.HasPrefix(lines[1], "map size: 4096KB stride: 4096KB iova space: 1T "), lines[1])
}

func TestRunExplicitGroup(t *testing.T) {
	s := &fakeSession{}
	mockVFIO(t, s)
	firstGroup = func() (int, error) { return -1, errors.New("must not be called") }

	cfg := testConfig()
	cfg.Group = 83

	require.NoError(t, run(cfg, &bytes.Buffer{}))
	require.Equal(t, 83, s.group)
	require.Equal(t, vfio.Type1, s.iommuType)
}

func TestRunFatalUnmap(t *testing.T) {
	s := &fakeSession{failUnmap: true, closeErr: errors.New("close failed")}
	mockVFIO(t, s)

	cfg := testConfig()
	cfg.MetricsFile = filepath.Join(t.TempDir(), "metrics.prom")

	out := &bytes.Buffer{}
	err := run(cfg, out)
	require.Error(t, err)

	var uerr *stress.UnmapError
	require.True(t, errors.As(err, &uerr))
	require.Equal(t, uint64(2*units.MiB), uerr.IOVA)
	require.Contains(t, err.Error(), "close failed")

	require.Equal(t, 2, s.maps)
	require.True(t, s.closed)
	require.Empty(t, out.String())

	_, serr := os.Stat(cfg.MetricsFile)
	require.NoError(t, serr)
}

func TestRunNoGroup(t *testing.T) {
	s := &fakeSession{}
	mockVFIO(t, s)
	firstGroup = func() (int, error) { return -1, errors.New("no IOMMU group bound to vfio found") }

	err := run(testConfig(), &bytes.Buffer{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no IOMMU group")
	require.Equal(t, 0, s.maps)
}

func TestRunAttachFailure(t *testing.T) {
	s := &fakeSession{}
	mockVFIO(t, s)
	attach = func(int, vfio.IOMMUType) (session, error) { return nil, errors.New("group is not viable") }

	err := run(testConfig(), &bytes.Buffer{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to set up IOMMU group 7: group is not viable")
}

func TestRunMetricsFile(t *testing.T) {
	s := &fakeSession{}
	mockVFIO(t, s)

	cfg := testConfig()
	cfg.MetricsFile = filepath.Join(t.TempDir(), "metrics.prom")

	require.NoError(t, run(cfg, &bytes.Buffer{}))

	data, err := os.ReadFile(cfg.MetricsFile)
	require.NoError(t, err)
	require.Contains(t, string(data), "iova_stress_offsets_total")
	require.Contains(t, string(data), `outcome="mapped"`)

	cfg.MetricsFile = filepath.Join(t.TempDir(), "missing", "metrics.prom")
	err = run(cfg, &bytes.Buffer{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to create metrics file")
}
