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
	"flag"
	"os"
	"strings"

	"github.com/soleen/iova-stress/pkg/config"
	logger "github.com/soleen/iova-stress/pkg/log"
	_ "github.com/soleen/iova-stress/pkg/metrics/register"
	_ "github.com/soleen/iova-stress/pkg/version"
)

func main() {
	flags := config.RegisterFlags(flag.CommandLine)
	flag.Usage = usage
	flag.Parse()

	if len(flag.Args()) != 0 {
		log.Error("unknown command-line arguments: %s", strings.Join(flag.Args(), ","))
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := flags.Load(flag.CommandLine)
	if err != nil {
		log.Fatal("invalid configuration: %v", err)
	}
	log.Debug("configuration:")
	log.DebugBlock("  ", "%s", cfg)

	if err := run(cfg, os.Stdout); err != nil {
		log.Error("%v", err)
		logger.Sync()
		os.Exit(1)
	}

	logger.Sync()
}
