// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perf

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/golang/glog"
	"github.com/perfevent/perf/internal/config"
)

// EventSource resolves dynamic PMU types from an event source directory,
// usually /sys/bus/event_source/devices. Each PMU is resolved once; later
// lookups reuse the result.
//
// An EventSource is safe for concurrent use.
type EventSource struct {
	root string

	mu        sync.Mutex
	types     map[string]EventType
	retprobes map[string]uint64
}

// NewEventSource returns an EventSource reading from root.
func NewEventSource(root string) *EventSource {
	return &EventSource{
		root:      root,
		types:     make(map[string]EventType),
		retprobes: make(map[string]uint64),
	}
}

// Type returns the event type of the named PMU, such as "kprobe".
func (es *EventSource) Type(pmu string) (EventType, error) {
	es.mu.Lock()
	defer es.mu.Unlock()
	if et, ok := es.types[pmu]; ok {
		return et, nil
	}
	et, err := readEventType(es.root, pmu)
	if err != nil {
		return 0, err
	}
	glog.V(2).Infof("perf: PMU %q has event type %d", pmu, et)
	es.types[pmu] = et
	return et, nil
}

// RetprobeBit returns the Config bit which turns a probe on the named PMU
// into a return probe. It is described by <pmu>/format/retprobe, in the
// form "config:<bit>".
func (es *EventSource) RetprobeBit(pmu string) (uint64, error) {
	es.mu.Lock()
	defer es.mu.Unlock()
	if bit, ok := es.retprobes[pmu]; ok {
		return bit, nil
	}
	p := filepath.Join(es.root, pmu, "format", "retprobe")
	content, err := os.ReadFile(p)
	if err != nil {
		return 0, err
	}
	field := strings.TrimSpace(string(content))
	n, err := strconv.ParseUint(strings.TrimPrefix(field, "config:"), 10, 6)
	if err != nil || !strings.HasPrefix(field, "config:") {
		return 0, fmt.Errorf("perf: unexpected retprobe format %q in %s", field, p)
	}
	bit := uint64(1) << n
	es.retprobes[pmu] = bit
	return bit, nil
}

// LookupEventType reads the event type of the named PMU from the event
// source directory given by the PERF_EVENT_SOURCE_DIR environment
// variable. Results are not cached.
func LookupEventType(pmu string) (EventType, error) {
	return readEventType(config.Global.EventSourceDir, pmu)
}

func readEventType(root, pmu string) (EventType, error) {
	et, err := readUint(filepath.Join(root, pmu, "type"), 32)
	if err != nil {
		return 0, fmt.Errorf("perf: resolving PMU %q: %w", pmu, err)
	}
	return EventType(et), nil
}

// eventSource returns es, or a fresh EventSource over the configured
// directory if es is nil.
func eventSource(es *EventSource) *EventSource {
	if es != nil {
		return es
	}
	return NewEventSource(config.Global.EventSourceDir)
}

// Kprobe configures a kernel probe on a function or an address.
//
// If Func is set, the probe is placed at Offset bytes into the function.
// Otherwise, it is placed at Addr.
type Kprobe struct {
	Func     string
	Offset   uint64
	Addr     uint64
	Retprobe bool

	// Source resolves the kprobe PMU. If nil, a new EventSource over the
	// configured directory is used.
	Source *EventSource
}

// Configure implements the Configurator interface. It sets the Label,
// Type, Config, Config1 and Config2 fields on attr.
func (kp Kprobe) Configure(attr *Attr) error {
	es := eventSource(kp.Source)
	et, err := es.Type("kprobe")
	if err != nil {
		return err
	}
	attr.Type = et
	attr.Config = 0
	if kp.Retprobe {
		bit, err := es.RetprobeBit("kprobe")
		if err != nil {
			return err
		}
		attr.Config = bit
	}
	if kp.Func != "" {
		attr.Label = "kprobe:" + kp.Func
		attr.setProbeTarget(kp.Func)
		attr.Config2 = kp.Offset
	} else {
		attr.Label = fmt.Sprintf("kprobe:%#x", kp.Addr)
		attr.probeTarget = nil
		attr.Config1 = 0
		attr.Config2 = kp.Addr
	}
	return nil
}

// Uprobe configures a user space probe at Offset bytes into the
// executable or library at Path.
type Uprobe struct {
	Path     string
	Offset   uint64
	Retprobe bool

	// Source resolves the uprobe PMU. If nil, a new EventSource over the
	// configured directory is used.
	Source *EventSource
}

// Configure implements the Configurator interface. It sets the Label,
// Type, Config, Config1 and Config2 fields on attr.
func (up Uprobe) Configure(attr *Attr) error {
	es := eventSource(up.Source)
	et, err := es.Type("uprobe")
	if err != nil {
		return err
	}
	attr.Type = et
	attr.Config = 0
	if up.Retprobe {
		bit, err := es.RetprobeBit("uprobe")
		if err != nil {
			return err
		}
		attr.Config = bit
	}
	attr.Label = fmt.Sprintf("uprobe:%s+%#x", up.Path, up.Offset)
	attr.setProbeTarget(up.Path)
	attr.Config2 = up.Offset
	return nil
}
