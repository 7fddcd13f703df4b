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

// Package config holds the configuration of a stress invocation.
package config

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"sigs.k8s.io/yaml"

	"github.com/soleen/iova-stress/pkg/memstat"
	"github.com/soleen/iova-stress/pkg/units"
	"github.com/soleen/iova-stress/pkg/vfio"
)

const (
	// DefaultGroup requests the first IOMMU group bound to vfio.
	DefaultGroup = -1
	// DefaultIOVASpaceTB is the default size of the walked IOVA space.
	DefaultIOVASpaceTB = 45
	// DefaultIOMMUType is the default VFIO IOMMU model.
	DefaultIOMMUType = "type1"
)

// Config is the configuration of a stress invocation.
type Config struct {
	// Group is the IOMMU group to use, or DefaultGroup for the first available.
	Group int `json:"group"`
	// IOVASpaceTB is the size of the walked IOVA space in TiB.
	IOVASpaceTB uint64 `json:"iovaSpaceTB"`
	// AltMapSizeMB is the mapping size of the optional second pass in MiB.
	AltMapSizeMB uint64 `json:"altMapSizeMB,omitempty"`
	// Verbose enables per-TiB progress reporting.
	Verbose bool `json:"verbose,omitempty"`
	// IOMMUType is the VFIO IOMMU model, type1 or type1v2.
	IOMMUType string `json:"iommuType"`
	// MemorySource is where free memory is sampled from, sysinfo or meminfo.
	MemorySource string `json:"memorySource"`
	// MetricsFile is where pass metrics are written after the run, if set.
	MetricsFile string `json:"metricsFile,omitempty"`
	// Logger configures logging.
	Logger Logger `json:"logger,omitempty"`
}

// Logger is the logging configuration.
type Logger struct {
	// Backend is the logger backend, fmt or klog.
	Backend string `json:"backend,omitempty"`
	// Level is the lowest severity logged.
	Level string `json:"level,omitempty"`
	// Debug is a comma-separated list of sources to enable debugging for.
	Debug string `json:"debug,omitempty"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Group:        DefaultGroup,
		IOVASpaceTB:  DefaultIOVASpaceTB,
		IOMMUType:    DefaultIOMMUType,
		MemorySource: memstat.SourceSysinfo,
	}
}

// Validate checks the configuration, reporting all problems found.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.Group < DefaultGroup {
		result = multierror.Append(result, configError("invalid IOMMU group %d", c.Group))
	}
	if c.IOVASpaceTB == 0 {
		result = multierror.Append(result, configError("IOVA space must be at least 1T"))
	}
	if _, err := c.IOVASpace(); err != nil {
		result = multierror.Append(result, err)
	}
	if _, err := c.AltMapSize(); err != nil {
		result = multierror.Append(result, err)
	}
	if _, err := vfio.ParseIOMMUType(c.IOMMUType); err != nil {
		result = multierror.Append(result, err)
	}
	if !isMemorySource(c.MemorySource) {
		result = multierror.Append(result,
			configError("unknown memory source %q (expected one of %v)", c.MemorySource, memstat.Sources()))
	}

	return result.ErrorOrNil()
}

func isMemorySource(name string) bool {
	for _, s := range memstat.Sources() {
		if s == name {
			return true
		}
	}
	return false
}

// IOVASpace returns the size of the walked IOVA space.
func (c *Config) IOVASpace() (units.Bytes, error) {
	return units.Terabytes(c.IOVASpaceTB)
}

// AltMapSize returns the mapping size of the second pass, 0 if disabled.
func (c *Config) AltMapSize() (units.Bytes, error) {
	return units.Megabytes(c.AltMapSizeMB)
}

// String returns the configuration as YAML.
func (c *Config) String() string {
	raw, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(raw)
}

func configError(format string, args ...interface{}) error {
	return fmt.Errorf("config: "+format, args...)
}
