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

// Package memstat samples system-wide free memory.
package memstat

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"

	"github.com/soleen/iova-stress/pkg/units"
)

const (
	// SourceSysinfo samples free memory using sysinfo(2).
	SourceSysinfo = "sysinfo"
	// SourceMeminfo samples free memory from /proc/meminfo.
	SourceMeminfo = "meminfo"
)

// Sampler reads the current amount of free system memory.
type Sampler interface {
	// Name returns the name of the memory source.
	Name() string
	// FreeMemory returns the amount of free system memory.
	FreeMemory() (units.Bytes, error)
}

// NewSampler creates a sampler for the named memory source.
func NewSampler(source string) (Sampler, error) {
	switch source {
	case SourceSysinfo, "":
		return NewSysinfoSampler(), nil
	case SourceMeminfo:
		return NewMeminfoSampler(procfs.DefaultMountPoint)
	}
	return nil, memstatError("unknown memory source %q", source)
}

// Sources returns the names of the supported memory sources.
func Sources() []string {
	return []string{SourceSysinfo, SourceMeminfo}
}

type sysinfoSampler struct {
	sysinfo func(*unix.Sysinfo_t) error
}

// NewSysinfoSampler creates a sampler which uses sysinfo(2).
func NewSysinfoSampler() Sampler {
	return &sysinfoSampler{sysinfo: unix.Sysinfo}
}

func (*sysinfoSampler) Name() string {
	return SourceSysinfo
}

func (s *sysinfoSampler) FreeMemory() (units.Bytes, error) {
	info := unix.Sysinfo_t{}
	if err := s.sysinfo(&info); err != nil {
		return 0, errors.Wrap(err, "sysinfo failed")
	}
	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	return units.Bytes(uint64(info.Freeram) * unit), nil
}

type meminfoSampler struct {
	fs procfs.FS
}

// NewMeminfoSampler creates a sampler which reads meminfo under the
// given procfs mount point.
func NewMeminfoSampler(mountPoint string) (Sampler, error) {
	fs, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to access procfs at %q", mountPoint)
	}
	return &meminfoSampler{fs: fs}, nil
}

func (*meminfoSampler) Name() string {
	return SourceMeminfo
}

func (s *meminfoSampler) FreeMemory() (units.Bytes, error) {
	mi, err := s.fs.Meminfo()
	if err != nil {
		return 0, errors.Wrap(err, "failed to read meminfo")
	}
	if mi.MemFree == nil {
		return 0, memstatError("meminfo has no MemFree entry")
	}
	return units.Bytes(*mi.MemFree) * units.KiB, nil
}

func memstatError(format string, args ...interface{}) error {
	return fmt.Errorf("memstat: "+format, args...)
}
