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
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	logger "github.com/soleen/iova-stress/pkg/log"
	"github.com/soleen/iova-stress/pkg/memstat"
	"github.com/soleen/iova-stress/pkg/procstats"
	"github.com/soleen/iova-stress/pkg/units"
	"github.com/soleen/iova-stress/pkg/vfio"
)

var log = logger.NewLogger("stress")

// Clock returns the current time.
type Clock func() time.Time

// Orchestrator runs stress passes against a mapper.
type Orchestrator struct {
	mapper  Mapper
	clock   Clock
	sampler memstat.Sampler
	cpu     procstats.Sampler
	alloc   Allocator
	out     io.Writer
	log     logger.Logger
}

// Option is an option for an Orchestrator.
type Option func(*Orchestrator)

// WithClock sets the clock used to time passes.
func WithClock(clock Clock) Option {
	return func(o *Orchestrator) {
		o.clock = clock
	}
}

// WithSampler sets the free memory sampler.
func WithSampler(s memstat.Sampler) Option {
	return func(o *Orchestrator) {
		o.sampler = s
	}
}

// WithCPUSampler enables sampling the CPU time consumed by passes.
func WithCPUSampler(s procstats.Sampler) Option {
	return func(o *Orchestrator) {
		o.cpu = s
	}
}

// WithAllocator sets the backing region allocator.
func WithAllocator(a Allocator) Option {
	return func(o *Orchestrator) {
		o.alloc = a
	}
}

// WithOutput sets the writer for report and progress lines.
func WithOutput(w io.Writer) Option {
	return func(o *Orchestrator) {
		o.out = w
	}
}

// WithLogger sets the logger for diagnostic messages.
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		o.log = l
	}
}

// NewOrchestrator creates an orchestrator for the given mapper.
func NewOrchestrator(mapper Mapper, options ...Option) *Orchestrator {
	o := &Orchestrator{
		mapper:  mapper,
		clock:   time.Now,
		sampler: memstat.NewSysinfoSampler(),
		alloc:   MmapAllocator(),
		out:     os.Stdout,
		log:     log,
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

// RunAll runs the given passes in order, skipping any with a zero mapping
// length. It stops at the first failing pass and returns the results of
// the passes completed so far.
func (o *Orchestrator) RunAll(runs ...Run) ([]*RunResult, error) {
	results := make([]*RunResult, 0, len(runs))
	for idx, run := range runs {
		if run.MapLength == 0 {
			o.log.Debug("pass #%d: no mapping length, skipped", idx+1)
			continue
		}

		o.log.Info("pass #%d: %s", idx+1, run)

		r, err := o.RunPass(run)
		if err != nil {
			return results, err
		}
		results = append(results, r)
	}
	return results, nil
}

// RunPass runs a single pass and reports its result.
func (o *Orchestrator) RunPass(run Run) (*RunResult, error) {
	if err := run.Validate(); err != nil {
		return nil, err
	}

	stride := run.Stride()
	region, err := o.alloc.Allocate(stride)
	if err != nil {
		return nil, &AllocError{Size: stride, Err: err}
	}

	before, err := o.sampler.FreeMemory()
	if err != nil {
		return nil, o.release(region, errors.Wrap(err, "failed to sample free memory"))
	}

	cpuStart := o.cpuTimes()
	start := o.clock()

	walker := NewWalker(stride, run.IOVASpaceLimit)
	engine := NewEngine(o.mapper, o.log)
	nextTB := uint64(0)

	for iova, ok := walker.Next(); ok; iova, ok = walker.Next() {
		if run.Verbose {
			if tb := iova / uint64(units.TiB); tb >= nextTB {
				o.progress(tb)
				nextTB = tb + 1
			}
		}

		req := Request{
			Vaddr:  region.Addr(),
			IOVA:   iova,
			Length: run.MapLength,
			Flags:  vfio.DMARead | vfio.DMAWrite,
		}
		if outcome, err := engine.Process(req); outcome == Fatal {
			o.log.Error("aborting pass after %d offsets: %v", walker.Visited(), err)
			return nil, o.release(region, err)
		}
	}

	elapsed := o.clock().Sub(start)
	cpu := o.cpuTimes().Sub(cpuStart)

	after, err := o.sampler.FreeMemory()
	if err != nil {
		return nil, o.release(region, errors.Wrap(err, "failed to sample free memory"))
	}
	if err := o.release(region, nil); err != nil {
		return nil, err
	}

	r := &RunResult{
		MapLength:  run.MapLength,
		Stride:     stride,
		IOVASpace:  run.IOVASpaceLimit,
		Elapsed:    elapsed,
		CPU:        cpu,
		FreeBefore: before,
		FreeAfter:  after,
		Overhead:   kernelOverhead(before, after),
		Offsets:    walker.Visited(),
		Mapped:     engine.Mapped(),
		Retryable:  engine.Retryable(),
	}

	if o.cpu != nil {
		o.log.Info("%s pass CPU time: %s", run.MapLength, cpu)
	}
	if r.Retryable > 0 {
		o.log.Warn("%d of %d offsets could not be mapped", r.Retryable, r.Offsets)
	}

	fmt.Fprintln(o.out, r.String())
	passes.record(r)

	return r, nil
}

// progress reports free memory at the start of every TiB of IOVA space.
func (o *Orchestrator) progress(tb uint64) {
	free, err := o.sampler.FreeMemory()
	if err != nil {
		o.log.Warn("failed to sample free memory at %dT: %v", tb, err)
		return
	}
	fmt.Fprintf(o.out, "iova space: %5dT\tfree memory: %5dG\n", tb, free.GB())
}

// cpuTimes samples consumed CPU time, if enabled.
func (o *Orchestrator) cpuTimes() procstats.CPUTimes {
	if o.cpu == nil {
		return procstats.CPUTimes{}
	}
	t, err := o.cpu.CPUTimes()
	if err != nil {
		o.log.Warn("failed to sample CPU time: %v", err)
	}
	return t
}

// release releases the backing region, combining any error with err.
func (o *Orchestrator) release(region Region, err error) error {
	rerr := region.Release()
	if rerr == nil {
		return err
	}
	rerr = errors.Wrap(rerr, "failed to release backing region")
	if err == nil {
		return rerr
	}
	return multierror.Append(err, rerr)
}
