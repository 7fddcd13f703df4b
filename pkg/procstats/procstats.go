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

// Package procstats samples the CPU time consumed by a process.
package procstats

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/procfs"
)

// userHZ is the clock tick rate of CPU times in /proc/<pid>/stat.
const userHZ = 100

// CPUTimes is the CPU time consumed by a process.
type CPUTimes struct {
	// User is the time spent in user mode.
	User time.Duration
	// System is the time spent in kernel mode.
	System time.Duration
}

// Sub returns the CPU time consumed since an earlier sample.
func (t CPUTimes) Sub(earlier CPUTimes) CPUTimes {
	return CPUTimes{
		User:   t.User - earlier.User,
		System: t.System - earlier.System,
	}
}

// String returns the CPU times as a string.
func (t CPUTimes) String() string {
	return fmt.Sprintf("user %s, system %s", t.User, t.System)
}

// Sampler samples CPU times.
type Sampler interface {
	CPUTimes() (CPUTimes, error)
}

type procSampler struct {
	proc procfs.Proc
}

// NewSelfSampler creates a sampler for the calling process, using procfs
// mounted at the given mount point.
func NewSelfSampler(mountPoint string) (Sampler, error) {
	fs, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to access procfs at %q", mountPoint)
	}
	proc, err := fs.Self()
	if err != nil {
		return nil, errors.Wrap(err, "failed to look up own process")
	}
	return &procSampler{proc: proc}, nil
}

func (s *procSampler) CPUTimes() (CPUTimes, error) {
	stat, err := s.proc.Stat()
	if err != nil {
		return CPUTimes{}, errors.Wrapf(err, "failed to read stat of process %d", s.proc.PID)
	}
	return CPUTimes{
		User:   ticks(stat.UTime),
		System: ticks(stat.STime),
	}, nil
}

func ticks(t uint) time.Duration {
	return time.Duration(t) * time.Second / userHZ
}
