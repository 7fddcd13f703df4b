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

//
// This module lets one tag built binaries with version metadata.
//
// Two pieces of metadata are tracked:
//   - Version: version number, by convention one provided by 'git describe'
//   - Build:   build id, by convention the git SHA1 the binary has been built from.
//
// To override them, pass the corresponding linker flags, for instance:
//
//   go build -ldflags \
//     "-X=github.com/soleen/iova-stress/pkg/version.Version=<version> \
//      -X=github.com/soleen/iova-stress/pkg/version.Build=<build-id>"
//
// Without linker flags the module version and VCS revision recorded by the
// Go toolchain are used, if available.
//

package version

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strconv"
)

// Default values of variables we'll override with the linker.
var (
	// Version is our version as given by 'git describe'.
	Version = "unknown"
	// Build is the SHA1 of the repository we've been built from.
	Build = "unknown"
)

// to mock in tests
var (
	output    io.Writer = os.Stdout
	exit                = os.Exit
	buildInfo           = debug.ReadBuildInfo
)

// Info returns the version and build id of this binary.
func Info() (string, string) {
	version, build := Version, Build
	info, ok := buildInfo()
	if !ok {
		return version, build
	}
	if version == "unknown" && info.Main.Version != "" {
		version = info.Main.Version
	}
	if build == "unknown" {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				build = s.Value
			}
		}
	}
	return version, build
}

// PrintVersionInfo prints version information about this binary.
func PrintVersionInfo() {
	version, build := Info()
	fmt.Fprintf(output, "%s version information:\n", filepath.Base(os.Args[0]))
	fmt.Fprintf(output, "  - version: %s\n", version)
	fmt.Fprintf(output, "  - build:   %s\n", build)
}

// Dummy struct used to hook into flag.Value.Set of -version during commandline parsing.
type versionFlag struct{}

// IsBoolFlag tell flag that we only have optional arguments.
func (versionFlag) IsBoolFlag() bool {
	return true
}

// Set is our dummy flag.Value setter.
func (versionFlag) Set(value string) error {
	print, err := strconv.ParseBool(value)
	if err != nil {
		return err
	}
	if print {
		PrintVersionInfo()
		exit(0)
	}

	return nil
}

// String is our dummy flag.Value stringification function.
func (versionFlag) String() string {
	return "false"
}

// Put in place a '--version' command line option for us.
func init() {
	flag.Var(versionFlag{}, "version", "Print version information about "+filepath.Base(os.Args[0]))
}
