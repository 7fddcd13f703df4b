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
	"os"

	"sigs.k8s.io/yaml"

	logger "github.com/soleen/iova-stress/pkg/log"
)

var log = logger.NewLogger("config")

// FromFile loads configuration from the given YAML file. Unset values are
// left at their defaults, unknown keys are an error.
func FromFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, configError("failed to read file %q: %v", path, err)
	}
	return FromData(raw, path)
}

// FromData loads configuration from YAML data.
func FromData(raw []byte, origin string) (*Config, error) {
	cfg := Default()
	if err := yaml.UnmarshalStrict(raw, cfg); err != nil {
		return nil, configError("failed to load configuration from %q: %v", origin, err)
	}
	log.Debug("configuration loaded from %s", origin)
	return cfg, nil
}
