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

package units

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTerabytes(t *testing.T) {
	tcases := []struct {
		name          string
		count         uint64
		expected      Bytes
		expectedError bool
	}{
		{
			name:     "zero",
			count:    0,
			expected: 0,
		}, {
			name:     "one",
			count:    1,
			expected: 1 << 40,
		}, {
			name:     "default iova space",
			count:    45,
			expected: 45 * TiB,
		}, {
			name:     "largest",
			count:    MaxTerabytes,
			expected: Bytes(MaxTerabytes << 40),
		}, {
			name:          "overflow",
			count:         MaxTerabytes + 1,
			expectedError: true,
		}, {
			name:          "way out of range",
			count:         1 << 62,
			expectedError: true,
		},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := Terabytes(tc.count)
			if tc.expectedError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expected, b)
			require.Equal(t, tc.count, b.TB())
		})
	}
}

func TestMegabytes(t *testing.T) {
	b, err := Megabytes(3)
	require.NoError(t, err)
	require.Equal(t, 3*MiB, b)
	require.Equal(t, uint64(3), b.MB())
	require.Equal(t, uint64(3*1024), b.KB())

	_, err = Megabytes(MaxMegabytes + 1)
	require.Error(t, err)
}

func TestString(t *testing.T) {
	tcases := []struct {
		in       Bytes
		expected string
	}{
		{0, "0"},
		{512, "512"},
		{4 * KiB, "4K"},
		{2 * MiB, "2M"},
		{3 * MiB, "3M"},
		{MiB + KiB, "1025K"},
		{GiB, "1G"},
		{45 * TiB, "45T"},
	}
	for _, tc := range tcases {
		t.Run(tc.expected, func(t *testing.T) {
			require.Equal(t, tc.expected, tc.in.String())
		})
	}
}

func TestAlign(t *testing.T) {
	require.Equal(t, 2*MiB, (MiB + 1).AlignUp(2*MiB))
	require.Equal(t, 2*MiB, (2 * MiB).AlignUp(2*MiB))
	require.Equal(t, MiB, (MiB + 4095).AlignDown(4*KiB))
	require.True(t, (6 * MiB).IsAligned(2*MiB))
	require.False(t, (3 * MiB).IsAligned(2*MiB))
	require.False(t, Bytes(42).IsAligned(0))
	require.Equal(t, 2*MiB, Max(4*KiB, 2*MiB))
	require.Equal(t, 4*MiB, Max(4*MiB, 2*MiB))
}
