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

package log

import (
	"fmt"
	"sync"
)

// logging is our runtime state.
type logging struct {
	sync.RWMutex
	level   Level                // lowest unsuppressed severity
	active  Backend              // active backend
	backend map[string]BackendFn // registered backends
	loggers map[string]logger    // source to logger mapping
	sources map[logger]string    // logger to source mapping
	configs map[logger]config    // logger configuration
	enable  srcmap               // sources with logging enabled/disabled
	debug   srcmap               // sources with debugging enabled/disabled
	align   int                  // longest source name seen
}

// our runtime logging state
var log = &logging{
	level:   DefaultLevel,
	active:  createFmtBackend(),
	backend: make(map[string]BackendFn),
	loggers: make(map[string]logger),
	sources: make(map[logger]string),
	configs: make(map[logger]config),
	enable:  make(srcmap),
	debug:   make(srcmap),
}

// NewLogger creates a new logger, getting the existing one if possible.
func NewLogger(source string) Logger {
	return log.get(source)
}

// Get returns the logger for the given source, creating it if necessary.
func Get(source string) Logger {
	return log.get(source)
}

// SetLevel sets the lowest severity level of messages to pass through.
func SetLevel(level Level) {
	log.Lock()
	defer log.Unlock()
	log.level = level
}

// SetBackend activates the named logging backend.
func SetBackend(name string) error {
	log.Lock()
	defer log.Unlock()
	return log.setBackend(name)
}

// SetDebug parses a source map specification and updates debugging with it.
func SetDebug(value string) error {
	return defaults.Debug.Set(value)
}

// Sync waits for all pending messages to get emitted.
func Sync() {
	log.RLock()
	active := log.active
	log.RUnlock()
	active.Sync()
}

// get returns the logger for source, creating one if necessary.
func (log *logging) get(source string) logger {
	log.Lock()
	defer log.Unlock()

	if l, ok := log.loggers[source]; ok {
		return l
	}

	l := logger(len(log.loggers))
	log.loggers[source] = l
	log.sources[l] = source
	log.configs[l] = mkConfig(log.enable.isEnabled(source, true), log.debug.isEnabled(source, false))

	if len(source) > log.align {
		log.align = len(source)
		log.active.SetSourceAlignment(log.align)
	}

	return l
}

// setBackend activates the named backend, stopping the previous one.
func (log *logging) setBackend(name string) error {
	if log.active != nil && log.active.Name() == name {
		return nil
	}

	fn, ok := log.backend[name]
	if !ok {
		return loggerError("can't activate unknown backend '%s'", name)
	}

	if log.active != nil {
		log.active.Stop()
	}
	log.active = fn()
	log.active.SetSourceAlignment(log.align)

	return nil
}

// update reconfigures all loggers after the source maps have changed.
func (log *logging) update() {
	for source, l := range log.loggers {
		cfg := log.configs[l]
		cfg.setLogging(log.enable.isEnabled(source, true))
		cfg.setDebugging(log.debug.isEnabled(source, false))
		log.configs[l] = cfg
	}
}

// loggerError returns a package-specific formatted error.
func loggerError(format string, args ...interface{}) error {
	return fmt.Errorf("logger: "+format, args...)
}
