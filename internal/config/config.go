// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config holds the environment-overridable settings of package perf.
package config

import (
	"github.com/golang/glog"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is the environment variable prefix, e.g. PERF_RING_PAGES.
const Prefix = "PERF"

// Perf contains overridable configuration options for package perf.
type Perf struct {
	// RingPages is the number of data pages mapped for a ring buffer
	// when no explicit size is requested. The mapping is rounded up to
	// a power of two pages.
	RingPages int `split_words:"true" default:"128"`

	// TraceFS is the mount point of tracefs, used to resolve
	// tracepoint IDs.
	TraceFS string `envconfig:"TRACEFS" default:"/sys/kernel/debug/tracing"`

	// EventSourceDir is the sysfs directory listing dynamic PMUs.
	EventSourceDir string `split_words:"true" default:"/sys/bus/event_source/devices"`

	// ParanoidFile reports the perf_event_paranoid level.
	ParanoidFile string `split_words:"true" default:"/proc/sys/kernel/perf_event_paranoid"`
}

// Global is the configuration loaded from the environment at init time.
var Global Perf

// Load reads a Perf from the environment, applying defaults for unset
// variables.
func Load() (Perf, error) {
	var p Perf
	if err := envconfig.Process(Prefix, &p); err != nil {
		return Perf{}, err
	}
	return p, nil
}

func init() {
	p, err := Load()
	if err != nil {
		glog.Fatal(err)
	}
	Global = p
}
