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
	"io"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/prometheus/procfs"

	"github.com/soleen/iova-stress/pkg/config"
	logger "github.com/soleen/iova-stress/pkg/log"
	"github.com/soleen/iova-stress/pkg/memstat"
	"github.com/soleen/iova-stress/pkg/metrics"
	"github.com/soleen/iova-stress/pkg/procstats"
	"github.com/soleen/iova-stress/pkg/stress"
	"github.com/soleen/iova-stress/pkg/units"
	"github.com/soleen/iova-stress/pkg/vfio"
)

var log = logger.NewLogger("iova-stress")

// session is an attached VFIO container.
type session interface {
	stress.Mapper
	IOMMUInfo() (*vfio.IOMMUInfo, error)
	Close() error
}

// to mock in tests
var (
	attach = func(group int, t vfio.IOMMUType) (session, error) {
		s, err := vfio.Attach(group, t)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	firstGroup   = vfio.FirstGroup
	groupDevices = vfio.GroupDevices
	pageSize     = os.Getpagesize
)

// run sets up VFIO and runs the configured stress passes.
func run(cfg *config.Config, out io.Writer) (retErr error) {
	iommuType, err := vfio.ParseIOMMUType(cfg.IOMMUType)
	if err != nil {
		return err
	}
	space, err := cfg.IOVASpace()
	if err != nil {
		return err
	}
	alt, err := cfg.AltMapSize()
	if err != nil {
		return err
	}

	sampler, err := memstat.NewSampler(cfg.MemorySource)
	if err != nil {
		return err
	}

	group, err := resolveGroup(cfg.Group)
	if err != nil {
		return err
	}

	s, err := attach(group, iommuType)
	if err != nil {
		return errors.Wrapf(err, "failed to set up IOMMU group %d", group)
	}
	defer func() {
		if err := s.Close(); err != nil {
			retErr = multierror.Append(retErr, err)
		}
	}()

	logIOMMUInfo(s)

	options := []stress.Option{
		stress.WithSampler(sampler),
		stress.WithOutput(out),
	}
	if cpu, err := procstats.NewSelfSampler(procfs.DefaultMountPoint); err == nil {
		options = append(options, stress.WithCPUSampler(cpu))
	} else {
		log.Warn("CPU time will not be reported: %v", err)
	}

	o := stress.NewOrchestrator(s, options...)
	_, err = o.RunAll(stress.Passes(space, units.Bytes(pageSize()), alt, cfg.Verbose)...)

	if cfg.MetricsFile != "" {
		if merr := writeMetrics(cfg.MetricsFile); merr != nil {
			if err == nil {
				return merr
			}
			log.Error("%v", merr)
		}
	}

	return err
}

// resolveGroup returns the configured group or the first one bound to vfio.
func resolveGroup(group int) (int, error) {
	if group == config.DefaultGroup {
		id, err := firstGroup()
		if err != nil {
			return -1, err
		}
		log.Info("using first available IOMMU group %d", id)
		group = id
	}

	if devices, err := groupDevices(group); err == nil {
		for _, dev := range devices {
			log.Info("IOMMU group %d: device %s (driver %s)", group, dev.Name, driverName(dev))
		}
	} else {
		log.Debug("failed to list devices of IOMMU group %d: %v", group, err)
	}

	return group, nil
}

func driverName(dev vfio.Device) string {
	if dev.Driver == "" {
		return "none"
	}
	return dev.Driver
}

func logIOMMUInfo(s session) {
	info, err := s.IOMMUInfo()
	if err != nil {
		log.Warn("%v", err)
		return
	}
	if len(info.PageSizes) == 0 {
		log.Info("IOMMU page sizes unknown")
		return
	}
	log.Info("IOMMU page sizes: %v", info.PageSizes)
	if smallest := info.MinPageSize(); smallest > units.Bytes(pageSize()) {
		log.Warn("smallest IOMMU page size %s is larger than the native page size %s",
			smallest, units.Bytes(pageSize()))
	}
}

func writeMetrics(path string) error {
	g, err := metrics.NewMetricGatherer()
	if err != nil {
		return errors.Wrap(err, "failed to create metrics gatherer")
	}
	return metrics.WriteFile(path, g)
}
