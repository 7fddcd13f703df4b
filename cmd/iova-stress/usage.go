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
	"fmt"
	"os"
	"path/filepath"
)

const usageText = `Usage: %[1]s [options]

Stress the IOMMU by mapping and unmapping a DMA region at every 2M (or
every map size, if larger) of IOVA space, and report the kernel memory
overhead and the time it takes.

The first pass maps native pages. With -m a second pass maps regions of
the given size.

Example:
  Find a device and its IOMMU group:
    # lspci -v -s 0000:02:00.1 | grep 'IOMMU group'
          Flags: fast devsel, NUMA node 0, IOMMU group 83
  Bind it to vfio-pci:
    # lspci -n -s 0000:02:00.1
    02:00.1 0200: 8086:1889 (rev 11)
    # echo 8086 1889 > /sys/bus/pci/drivers/vfio-pci/new_id
  Walk 16T of IOVA space with progress reports:
    # %[1]s -g 83 -s 16 -v
    iova space:     0T	free memory:  1504G
    iova space:     1T	free memory:  1503G
    ...
    map size: 4KB stride: 2048KB iova space: 16T kernel memory overhead: 30MB time: 24.699s

Options:
`

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), usageText, filepath.Base(os.Args[0]))
	flag.PrintDefaults()
}
