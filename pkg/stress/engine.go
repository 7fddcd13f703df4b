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
	"time"

	logger "github.com/soleen/iova-stress/pkg/log"
	"github.com/soleen/iova-stress/pkg/units"
	"github.com/soleen/iova-stress/pkg/vfio"
)

// Mapper is the kernel interface for creating and removing DMA mappings.
type Mapper interface {
	MapDMA(vfio.DMAMap) error
	UnmapDMA(vfio.DMAUnmap) error
}

// Outcome is the result of processing a single offset.
type Outcome int

const (
	// Mapped means the mapping was created and removed.
	Mapped Outcome = iota
	// Retryable means the mapping could not be created and the offset was skipped.
	Retryable
	// Fatal means a created mapping could not be removed.
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case Mapped:
		return "mapped"
	case Retryable:
		return "retryable"
	case Fatal:
		return "fatal"
	}
	return "unknown"
}

// Request is a request to map and unmap a single IOVA offset.
type Request struct {
	// Vaddr is the address of the backing memory.
	Vaddr uintptr
	// IOVA is the offset to map at.
	IOVA uint64
	// Length is the length of the mapping.
	Length units.Bytes
	// Flags are the DMA access flags.
	Flags uint32
}

// Engine maps and immediately unmaps single offsets.
type Engine struct {
	mapper    Mapper
	log       logger.Logger
	mapped    uint64
	retryable uint64
}

// collision messages are rate-limited, a saturated container fails every offset
const collisionLogInterval = time.Second

// NewEngine creates a mapping engine for the given mapper.
func NewEngine(mapper Mapper, log logger.Logger) *Engine {
	return &Engine{
		mapper: mapper,
		log: logger.RateLimit(log, logger.Rate{
			Limit:     logger.Every(collisionLogInterval),
			Burst:     1,
			PerFormat: true,
		}),
	}
}

// Process maps the request and, if that succeeds, unmaps it. A failed map
// is Retryable and is never followed by an unmap. A failed unmap is Fatal
// and the returned error is an *UnmapError.
func (e *Engine) Process(req Request) (Outcome, error) {
	m := vfio.DMAMap{
		Vaddr: req.Vaddr,
		IOVA:  req.IOVA,
		Size:  uint64(req.Length),
		Flags: req.Flags,
	}
	if err := e.mapper.MapDMA(m); err != nil {
		e.retryable++
		e.log.Debug("skipping IOVA 0x%x, DMA map failed: %v", req.IOVA, err)
		return Retryable, nil
	}

	u := vfio.DMAUnmap{
		IOVA: req.IOVA,
		Size: uint64(req.Length),
	}
	if err := e.mapper.UnmapDMA(u); err != nil {
		return Fatal, &UnmapError{IOVA: req.IOVA, Length: req.Length, Err: err}
	}

	e.mapped++
	return Mapped, nil
}

// Mapped returns the number of Mapped outcomes so far.
func (e *Engine) Mapped() uint64 {
	return e.mapped
}

// Retryable returns the number of Retryable outcomes so far.
func (e *Engine) Retryable() uint64 {
	return e.retryable
}
