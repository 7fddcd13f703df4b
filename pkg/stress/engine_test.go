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
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	logger "github.com/soleen/iova-stress/pkg/log"
	"github.com/soleen/iova-stress/pkg/units"
	"github.com/soleen/iova-stress/pkg/vfio"
)

func TestEngineProcess(t *testing.T) {
	req := Request{
		Vaddr:  0x7f0000000000,
		IOVA:   0x40000000,
		Length: 4 * units.KiB,
		Flags:  vfio.DMARead | vfio.DMAWrite,
	}

	tcases := []struct {
		name      string
		failMap   bool
		failUnmap bool
		outcome   Outcome
		calls     []call
	}{
		{
			name:    "mapped and unmapped",
			outcome: Mapped,
			calls: []call{
				{"map", 0x7f0000000000, 0x40000000, 4096, 3},
				{op: "unmap", iova: 0x40000000, size: 4096},
			},
		},
		{
			name:    "map collision is retryable",
			failMap: true,
			outcome: Retryable,
			calls: []call{
				{"map", 0x7f0000000000, 0x40000000, 4096, 3},
			},
		},
		{
			name:      "unmap failure is fatal",
			failUnmap: true,
			outcome:   Fatal,
			calls: []call{
				{"map", 0x7f0000000000, 0x40000000, 4096, 3},
				{op: "unmap", iova: 0x40000000, size: 4096},
			},
		},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			m := newFakeMapper()
			m.failMap = func(uint64) bool { return tc.failMap }
			m.failUnmap = func(uint64) bool { return tc.failUnmap }

			e := NewEngine(m, logger.Get("stress"))
			outcome, err := e.Process(req)
			require.Equal(t, tc.outcome, outcome)
			require.Equal(t, tc.calls, m.calls)

			switch tc.outcome {
			case Mapped:
				require.NoError(t, err)
				require.Equal(t, uint64(1), e.Mapped())
				require.Equal(t, uint64(0), e.Retryable())
			case Retryable:
				require.NoError(t, err)
				require.Equal(t, uint64(0), e.Mapped())
				require.Equal(t, uint64(1), e.Retryable())
			case Fatal:
				var uerr *UnmapError
				require.True(t, errors.As(err, &uerr))
				require.Equal(t, req.IOVA, uerr.IOVA)
				require.Equal(t, req.Length, uerr.Length)
				require.ErrorIs(t, err, errNoEntry)
				require.Contains(t, err.Error(), "DMA unmap failed at 0x40000000")
				require.Equal(t, uint64(0), e.Mapped())
			}
		})
	}
}

func TestEnginePairing(t *testing.T) {
	m := newFakeMapper()
	m.failMap = func(iova uint64) bool { return iova%(3*uint64(units.MiB)) == 0 }

	e := NewEngine(m, logger.Get("stress"))
	for iova := uint64(0); iova < uint64(64*units.MiB); iova += uint64(units.MiB) {
		_, err := e.Process(Request{Vaddr: 0x1000, IOVA: iova, Length: 8 * units.KiB})
		require.NoError(t, err)
	}

	require.Equal(t, m.maps, e.Mapped()+e.Retryable())
	require.Equal(t, m.unmaps, e.Mapped())

	for i, c := range m.calls {
		if c.op != "unmap" {
			continue
		}
		prev := m.calls[i-1]
		require.Equal(t, "map", prev.op)
		require.Equal(t, prev.iova, c.iova)
		require.Equal(t, prev.size, c.size)
		require.NotZero(t, c.iova%(3*uint64(units.MiB)), "unmap after failed map")
	}
}

func TestOutcomeString(t *testing.T) {
	require.Equal(t, "mapped", Mapped.String())
	require.Equal(t, "retryable", Retryable.String())
	require.Equal(t, "fatal", Fatal.String())
	require.Equal(t, "unknown", Outcome(-1).String())
}
