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
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/soleen/iova-stress/pkg/metrics"
)

// Prometheus Metric descriptor indices and descriptor table
const (
	passDurationDesc = iota
	kernelOverheadDesc
	freeMemoryDesc
	offsetsDesc
	iovaSpaceDesc
	cpuTimeDesc
	numDescriptors
)

var descriptors = [numDescriptors]*prometheus.Desc{
	passDurationDesc: prometheus.NewDesc(
		"iova_stress_pass_duration_seconds",
		"Time spent walking the IOVA space in a stress pass.",
		[]string{
			// pass number
			"pass",
			// length of each mapping
			"map_size",
		}, nil,
	),
	kernelOverheadDesc: prometheus.NewDesc(
		"iova_stress_kernel_memory_overhead_bytes",
		"Estimated kernel memory overhead of a stress pass.",
		[]string{
			"pass",
			"map_size",
		}, nil,
	),
	freeMemoryDesc: prometheus.NewDesc(
		"iova_stress_free_memory_bytes",
		"Free system memory sampled before and after a stress pass.",
		[]string{
			"pass",
			"map_size",
			// before or after
			"sample",
		}, nil,
	),
	offsetsDesc: prometheus.NewDesc(
		"iova_stress_offsets_total",
		"IOVA offsets processed in a stress pass by outcome.",
		[]string{
			"pass",
			"map_size",
			// mapped or retryable
			"outcome",
		}, nil,
	),
	iovaSpaceDesc: prometheus.NewDesc(
		"iova_stress_iova_space_bytes",
		"Size of the IOVA space walked in a stress pass.",
		[]string{
			"pass",
			"map_size",
			"stride",
		}, nil,
	),
	cpuTimeDesc: prometheus.NewDesc(
		"iova_stress_pass_cpu_seconds",
		"CPU time consumed by a stress pass.",
		[]string{
			"pass",
			"map_size",
			// user or system
			"mode",
		}, nil,
	),
}

// passStats records the results of completed passes.
type passStats struct {
	sync.Mutex
	results []*RunResult
}

var passes = &passStats{}

func (s *passStats) record(r *RunResult) {
	s.Lock()
	defer s.Unlock()
	s.results = append(s.results, r)
}

func (s *passStats) snapshot() []*RunResult {
	s.Lock()
	defer s.Unlock()
	return append([]*RunResult(nil), s.results...)
}

func (s *passStats) reset() {
	s.Lock()
	defer s.Unlock()
	s.results = nil
}

type collector struct {
	stats *passStats
}

// NewCollector creates new Prometheus collector for stress pass results.
func NewCollector() (prometheus.Collector, error) {
	return &collector{stats: passes}, nil
}

// Describe implements prometheus.Collector interface
func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range descriptors {
		ch <- d
	}
}

// Collect implements prometheus.Collector interface
func (c *collector) Collect(ch chan<- prometheus.Metric) {
	for idx, r := range c.stats.snapshot() {
		updatePassMetrics(ch, strconv.Itoa(idx+1), r)
	}
}

func updatePassMetrics(ch chan<- prometheus.Metric, pass string, r *RunResult) {
	size := r.MapLength.String()

	ch <- prometheus.MustNewConstMetric(
		descriptors[passDurationDesc],
		prometheus.GaugeValue,
		r.Elapsed.Seconds(),
		pass, size,
	)
	ch <- prometheus.MustNewConstMetric(
		descriptors[kernelOverheadDesc],
		prometheus.GaugeValue,
		float64(r.Overhead),
		pass, size,
	)
	ch <- prometheus.MustNewConstMetric(
		descriptors[freeMemoryDesc],
		prometheus.GaugeValue,
		float64(r.FreeBefore),
		pass, size, "before",
	)
	ch <- prometheus.MustNewConstMetric(
		descriptors[freeMemoryDesc],
		prometheus.GaugeValue,
		float64(r.FreeAfter),
		pass, size, "after",
	)
	ch <- prometheus.MustNewConstMetric(
		descriptors[offsetsDesc],
		prometheus.CounterValue,
		float64(r.Mapped),
		pass, size, Mapped.String(),
	)
	ch <- prometheus.MustNewConstMetric(
		descriptors[offsetsDesc],
		prometheus.CounterValue,
		float64(r.Retryable),
		pass, size, Retryable.String(),
	)
	ch <- prometheus.MustNewConstMetric(
		descriptors[iovaSpaceDesc],
		prometheus.GaugeValue,
		float64(r.IOVASpace),
		pass, size, r.Stride.String(),
	)
	ch <- prometheus.MustNewConstMetric(
		descriptors[cpuTimeDesc],
		prometheus.CounterValue,
		r.CPU.User.Seconds(),
		pass, size, "user",
	)
	ch <- prometheus.MustNewConstMetric(
		descriptors[cpuTimeDesc],
		prometheus.CounterValue,
		r.CPU.System.Seconds(),
		pass, size, "system",
	)
}

func init() {
	err := metrics.RegisterCollector("stress", NewCollector)
	if err != nil {
		log.Error("failed register stress collector: %v", err)
	}
}
