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
	"time"

	"github.com/soleen/iova-stress/pkg/units"
	"github.com/soleen/iova-stress/pkg/vfio"
)

var (
	errCollision = errors.New("file exists")
	errNoEntry   = errors.New("no such entry")
)

type call struct {
	op    string
	vaddr uintptr
	iova  uint64
	size  uint64
	flags uint32
}

// fakeMapper records calls and fails them as scripted.
type fakeMapper struct {
	calls     []call
	maps      uint64
	unmaps    uint64
	record    bool
	failMap   func(iova uint64) bool
	failUnmap func(iova uint64) bool
}

func newFakeMapper() *fakeMapper {
	return &fakeMapper{record: true}
}

func (m *fakeMapper) MapDMA(req vfio.DMAMap) error {
	m.maps++
	if m.record {
		m.calls = append(m.calls, call{"map", req.Vaddr, req.IOVA, req.Size, req.Flags})
	}
	if m.failMap != nil && m.failMap(req.IOVA) {
		return errCollision
	}
	return nil
}

func (m *fakeMapper) UnmapDMA(req vfio.DMAUnmap) error {
	m.unmaps++
	if m.record {
		m.calls = append(m.calls, call{op: "unmap", iova: req.IOVA, size: req.Size})
	}
	if m.failUnmap != nil && m.failUnmap(req.IOVA) {
		return errNoEntry
	}
	return nil
}

// fakeSampler returns scripted free memory values, repeating the last one.
type fakeSampler struct {
	values []units.Bytes
	fail   map[int]error
	calls  int
}

func (*fakeSampler) Name() string {
	return "fake"
}

func (s *fakeSampler) FreeMemory() (units.Bytes, error) {
	idx := s.calls
	s.calls++
	if err, ok := s.fail[idx]; ok {
		return 0, err
	}
	if len(s.values) == 0 {
		return 0, nil
	}
	if idx >= len(s.values) {
		idx = len(s.values) - 1
	}
	return s.values[idx], nil
}

// fakeClock advances by step every time it is read.
type fakeClock struct {
	now  time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

type fakeRegion struct {
	addr     uintptr
	size     units.Bytes
	released int
	err      error
}

func (r *fakeRegion) Addr() uintptr {
	return r.addr
}

func (r *fakeRegion) Size() units.Bytes {
	return r.size
}

func (r *fakeRegion) Release() error {
	r.released++
	return r.err
}

type fakeAllocator struct {
	regions []*fakeRegion
	err     error
	release error
}

func (a *fakeAllocator) Allocate(size units.Bytes) (Region, error) {
	if a.err != nil {
		return nil, a.err
	}
	r := &fakeRegion{
		addr: 0x7f0000000000 + uintptr(len(a.regions))*0x10000000,
		size: size,
		err:  a.release,
	}
	a.regions = append(a.regions, r)
	return r, nil
}
