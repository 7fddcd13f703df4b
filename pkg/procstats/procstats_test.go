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

package procstats

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const stat = "4242 (iova-stress) R 1 4242 4242 34816 4242 4194304 10243 0 0 0 " +
	"250 2467 0 0 20 0 1 0 1874420 10526720 1130 18446744073709551615 1 1 0 0 0 0 0 0 0 0 0 0 17 3 0 0 0 0 0\n"

func setupProc(t *testing.T, content string) string {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "4242"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "4242", "stat"), []byte(content), 0644))
	require.NoError(t, os.Symlink("4242", filepath.Join(root, "self")))
	return root
}

func TestSelfSampler(t *testing.T) {
	s, err := NewSelfSampler(setupProc(t, stat))
	require.NoError(t, err)

	times, err := s.CPUTimes()
	require.NoError(t, err)
	require.Equal(t, CPUTimes{User: 2500 * time.Millisecond, System: 24670 * time.Millisecond}, times)
	require.Equal(t, "user 2.5s, system 24.67s", times.String())
}

func TestSelfSamplerErrors(t *testing.T) {
	_, err := NewSelfSampler(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)

	_, err = NewSelfSampler(t.TempDir())
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to look up own process")

	root := setupProc(t, stat)
	s, err := NewSelfSampler(root)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(root, "4242", "stat")))
	_, err = s.CPUTimes()
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to read stat of process 4242")
}

func TestSub(t *testing.T) {
	before := CPUTimes{User: time.Second, System: 2 * time.Second}
	after := CPUTimes{User: 3 * time.Second, System: 30 * time.Second}
	require.Equal(t, CPUTimes{User: 2 * time.Second, System: 28 * time.Second}, after.Sub(before))
}

func TestRealSelf(t *testing.T) {
	if _, err := os.Stat("/proc/self/stat"); err != nil {
		t.Skip("procfs not available")
	}
	s, err := NewSelfSampler("/proc")
	require.NoError(t, err)
	_, err = s.CPUTimes()
	require.NoError(t, err)
}
