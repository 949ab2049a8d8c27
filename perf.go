// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package perf provides access to the Linux perf API: opening counters and
// groups, reading counts, and consuming records from the memory mapped ring
// buffer. See man 2 perf_event_open.
//
// Counting events
//
// Open a Counter, then read it:
//
//	c, err := perf.Open(attr, perf.CallingThread, perf.AnyCPU, nil, 0)
//	cnt, err := c.Measure(f)
//
// Several events can be measured together through a Group, whose counts
// are decoded in place from the kernel's read_format layout.
//
// Sampling
//
// A Counter configured with a sample period or frequency writes records to
// its ring buffer. Map it with MapRing, then call ReadRecord or
// ReadRawRecord. Both block until a record is available, the context is
// done, or the counter hangs up.
package perf

import (
	"os"

	"github.com/perfevent/perf/internal/config"
)

// Supported returns a boolean indicating whether the host kernel supports
// the perf_event_open system call, which is a prerequisite for the
// functionality of this package.
func Supported() bool {
	_, err := os.Stat(config.Global.ParanoidFile)
	return err == nil
}

// marshalBitwiseUint64 marshals a set of bitwise flags into a
// uint64, LSB first.
func marshalBitwiseUint64(fields []bool) uint64 {
	var res uint64
	for shift, set := range fields {
		if set {
			res |= 1 << uint(shift)
		}
	}
	return res
}
