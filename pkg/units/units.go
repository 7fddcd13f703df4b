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

// Package units provides named byte-size units and overflow-checked
// conversions between them.
package units

import (
	"fmt"
	"math"
	"strconv"
)

// Bytes is an amount of memory or address space in bytes.
type Bytes uint64

const (
	kibShift = 10
	mibShift = 20
	gibShift = 30
	tibShift = 40
)

const (
	// KiB is one kibibyte.
	KiB Bytes = 1 << kibShift
	// MiB is one mebibyte.
	MiB Bytes = 1 << mibShift
	// GiB is one gibibyte.
	GiB Bytes = 1 << gibShift
	// TiB is one tebibyte.
	TiB Bytes = 1 << tibShift
)

const (
	// MaxMegabytes is the largest megabyte count representable in Bytes.
	MaxMegabytes = uint64(math.MaxUint64) >> mibShift
	// MaxTerabytes is the largest terabyte count representable in Bytes.
	MaxTerabytes = uint64(math.MaxUint64) >> tibShift
)

// Megabytes converts a count of megabytes to Bytes.
func Megabytes(count uint64) (Bytes, error) {
	if count > MaxMegabytes {
		return 0, unitsError("%d MB overflows a 64-bit byte count (max %d MB)",
			count, MaxMegabytes)
	}
	return Bytes(count << mibShift), nil
}

// Terabytes converts a count of terabytes to Bytes.
func Terabytes(count uint64) (Bytes, error) {
	if count > MaxTerabytes {
		return 0, unitsError("%d TB overflows a 64-bit byte count (max %d TB)",
			count, MaxTerabytes)
	}
	return Bytes(count << tibShift), nil
}

// KB returns b in whole kibibytes.
func (b Bytes) KB() uint64 {
	return uint64(b >> kibShift)
}

// MB returns b in whole mebibytes.
func (b Bytes) MB() uint64 {
	return uint64(b >> mibShift)
}

// GB returns b in whole gibibytes.
func (b Bytes) GB() uint64 {
	return uint64(b >> gibShift)
}

// TB returns b in whole tebibytes.
func (b Bytes) TB() uint64 {
	return uint64(b >> tibShift)
}

// AlignUp rounds b up to a multiple of align, which must be a power of two.
func (b Bytes) AlignUp(align Bytes) Bytes {
	return (b + align - 1) &^ (align - 1)
}

// AlignDown rounds b down to a multiple of align, which must be a power of two.
func (b Bytes) AlignDown(align Bytes) Bytes {
	return b &^ (align - 1)
}

// IsAligned checks if b is a multiple of align.
func (b Bytes) IsAligned(align Bytes) bool {
	return align != 0 && b%align == 0
}

// String returns b using the largest unit that divides it evenly.
func (b Bytes) String() string {
	for _, u := range []struct {
		size   Bytes
		suffix string
	}{
		{TiB, "T"},
		{GiB, "G"},
		{MiB, "M"},
		{KiB, "K"},
	} {
		if b >= u.size && b%u.size == 0 {
			return strconv.FormatUint(uint64(b/u.size), 10) + u.suffix
		}
	}
	return strconv.FormatUint(uint64(b), 10)
}

// Max returns the larger of a and b.
func Max(a, b Bytes) Bytes {
	if a > b {
		return a
	}
	return b
}

func unitsError(format string, args ...interface{}) error {
	return fmt.Errorf("units: "+format, args...)
}
