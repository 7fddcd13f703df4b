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

package config

import (
	"flag"

	"github.com/pkg/errors"

	logger "github.com/soleen/iova-stress/pkg/log"
)

const (
	optConfig       = "config"
	optGroup        = "g"
	optIOVASpace    = "s"
	optAltMapSize   = "m"
	optVerbose      = "v"
	optIOMMUType    = "iommu"
	optMemorySource = "memory-source"
	optMetricsFile  = "metrics-file"

	// logger options, registered by pkg/log
	optLogger      = "logger"
	optLoggerLevel = "logger-level"
	optLoggerDebug = "logger-debug"
)

// Flags binds configuration to command line flags.
type Flags struct {
	path string
	cfg  *Config
}

// RegisterFlags registers configuration flags in the given flag set.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{cfg: Default()}

	fs.StringVar(&f.path, optConfig, "",
		"YAML configuration file, command line flags override its values.")
	fs.IntVar(&f.cfg.Group, optGroup, f.cfg.Group,
		"IOMMU group to use, -1 for the first group bound to vfio.")
	fs.Uint64Var(&f.cfg.IOVASpaceTB, optIOVASpace, f.cfg.IOVASpaceTB,
		"size of the IOVA space to walk, in terabytes.")
	fs.Uint64Var(&f.cfg.AltMapSizeMB, optAltMapSize, f.cfg.AltMapSizeMB,
		"mapping size of an optional second pass, in megabytes (0 disables it).")
	fs.BoolVar(&f.cfg.Verbose, optVerbose, f.cfg.Verbose,
		"report free memory at every terabyte of IOVA space.")
	fs.StringVar(&f.cfg.IOMMUType, optIOMMUType, f.cfg.IOMMUType,
		"VFIO IOMMU model to use (type1, type1v2).")
	fs.StringVar(&f.cfg.MemorySource, optMemorySource, f.cfg.MemorySource,
		"where to sample free memory from (sysinfo, meminfo).")
	fs.StringVar(&f.cfg.MetricsFile, optMetricsFile, f.cfg.MetricsFile,
		"write pass metrics in Prometheus text format to this file.")

	return f
}

// Load returns the effective configuration after fs has been parsed: the
// configuration file, if any, overridden by the flags given on the command
// line. Logger settings from the file are applied unless the corresponding
// logger flag was given.
func (f *Flags) Load(fs *flag.FlagSet) (*Config, error) {
	cfg := Default()
	if f.path != "" {
		c, err := FromFile(f.path)
		if err != nil {
			return nil, err
		}
		cfg = c
	}

	explicit := map[string]bool{}
	fs.Visit(func(flg *flag.Flag) {
		explicit[flg.Name] = true
	})

	for name, override := range map[string]func(dst, src *Config){
		optGroup:        func(dst, src *Config) { dst.Group = src.Group },
		optIOVASpace:    func(dst, src *Config) { dst.IOVASpaceTB = src.IOVASpaceTB },
		optAltMapSize:   func(dst, src *Config) { dst.AltMapSizeMB = src.AltMapSizeMB },
		optVerbose:      func(dst, src *Config) { dst.Verbose = src.Verbose },
		optIOMMUType:    func(dst, src *Config) { dst.IOMMUType = src.IOMMUType },
		optMemorySource: func(dst, src *Config) { dst.MemorySource = src.MemorySource },
		optMetricsFile:  func(dst, src *Config) { dst.MetricsFile = src.MetricsFile },
	} {
		if explicit[name] {
			override(cfg, f.cfg)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := cfg.Logger.apply(explicit); err != nil {
		return nil, err
	}

	return cfg, nil
}

// apply activates logger settings not overridden on the command line.
func (l *Logger) apply(explicit map[string]bool) error {
	if l.Backend != "" && !explicit[optLogger] {
		if err := logger.SetBackend(l.Backend); err != nil {
			return errors.Wrap(err, "invalid logger backend in configuration")
		}
	}
	if l.Level != "" && !explicit[optLoggerLevel] {
		var level logger.Level
		if err := level.Set(l.Level); err != nil {
			return errors.Wrap(err, "invalid logger level in configuration")
		}
	}
	if l.Debug != "" && !explicit[optLoggerDebug] {
		if err := logger.SetDebug(l.Debug); err != nil {
			return errors.Wrap(err, "invalid logger debug sources in configuration")
		}
	}
	return nil
}
