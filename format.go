// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perf

import (
	"math/bits"

	"golang.org/x/sys/unix"
)

// ReadFormat is the read_format bitmask of an event. It determines the
// shape of the data returned by read(2) on the event file descriptor.
type ReadFormat uint64

// ReadFormat bits.
const (
	FormatTotalTimeEnabled ReadFormat = unix.PERF_FORMAT_TOTAL_TIME_ENABLED
	FormatTotalTimeRunning ReadFormat = unix.PERF_FORMAT_TOTAL_TIME_RUNNING
	FormatID               ReadFormat = unix.PERF_FORMAT_ID
	FormatGroup            ReadFormat = unix.PERF_FORMAT_GROUP
	FormatLost             ReadFormat = unix.PERF_FORMAT_LOST
)

const (
	formatDurations = FormatTotalTimeEnabled | FormatTotalTimeRunning
	formatPerEntry  = FormatID | FormatLost
)

// prefixLen returns the number of u64 words preceding the entries of a
// group read: nr, then the optional durations.
func (f ReadFormat) prefixLen() int {
	return 1 + bits.OnesCount64(uint64(f&formatDurations))
}

// elementLen returns the number of u64 words in one group read entry.
func (f ReadFormat) elementLen() int {
	return 1 + bits.OnesCount64(uint64(f&formatPerEntry))
}

// prefixOffset returns the word offset of the duration field bit within a
// group read. Fields appear in bit order.
func (f ReadFormat) prefixOffset(bit ReadFormat) int {
	lower := f & formatDurations & (bit - 1)
	return 1 + bits.OnesCount64(uint64(lower))
}

// elementOffset returns the word offset of the per-entry field bit within
// an entry.
func (f ReadFormat) elementOffset(bit ReadFormat) int {
	lower := f & formatPerEntry & (bit - 1)
	return 1 + bits.OnesCount64(uint64(lower))
}

// groupReadLen returns the size in u64 words of a group read with nr
// entries.
func (f ReadFormat) groupReadLen(nr int) int {
	return f.prefixLen() + nr*f.elementLen()
}

// readLen returns the size in u64 words of a non-group read: the value,
// followed by every optional field.
func (f ReadFormat) readLen() int {
	return 1 + bits.OnesCount64(uint64(f&(formatDurations|formatPerEntry)))
}

// CountFormat configures the format of Count or GroupCount measurements.
//
// Enabled and Running configure the event to include time enabled and
// time running measurements with the counts. Usually, these two values
// are equal. They may differ when events are multiplexed.
//
// If ID is set, the unique ID assigned to the event by the kernel is
// included in counts. It is the same value returned by (*Counter).ID.
//
// If Lost is set, the number of lost samples is included. It requires
// Linux 6.0 or later.
//
// If Group is set, callers must use ReadGroupCount on the associated
// Counter. Otherwise, they must use ReadCount.
type CountFormat struct {
	Enabled bool
	Running bool
	ID      bool
	Group   bool
	Lost    bool
}

// ReadFormat returns the read_format bitmask corresponding to f.
func (f CountFormat) ReadFormat() ReadFormat {
	// Always keep this in sync with the type definition above.
	fields := []bool{
		f.Enabled,
		f.Running,
		f.ID,
		f.Group,
		f.Lost,
	}
	return ReadFormat(marshalBitwiseUint64(fields))
}
