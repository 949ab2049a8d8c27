// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perf

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Count is a measurement taken by a Counter.
//
// The Value field is always present and populated.
//
// The TimeEnabled field is populated if CountFormat.Enabled is set on
// the Counter the Count was read from. Ditto for TimeRunning, ID and Lost.
type Count struct {
	Value       uint64
	TimeEnabled time.Duration
	TimeRunning time.Duration
	ID          uint64
	Lost        uint64
	Label       string
}

// decodeCount decodes a non-group read. It panics if buf does not have
// the length f calls for.
func decodeCount(buf []byte, f ReadFormat) Count {
	if want := 8 * f.readLen(); len(buf) != want {
		panic(fmt.Sprintf("perf: read of %d bytes, want %d for format %#x", len(buf), want, uint64(f)))
	}
	var cnt Count
	NewCursor(buf).count(&cnt, f)
	return cnt
}

// GroupCount is a group of measurements taken by a Counter group. It is
// immutable once built.
//
// The layout of the underlying data is
//
//	nr, [time_enabled], [time_running], nr * (value, [id], [lost])
//
// where the optional fields are present as the ReadFormat says.
type GroupCount struct {
	format ReadFormat
	words  []uint64

	// skipLeader hides the first entry, which belongs to a placeholder
	// group leader.
	skipLeader bool
}

// NewGroupCount decodes buf, the result of a read(2) on a group leader
// opened with read format f.
//
// It panics if the length of buf does not match the entry count it
// carries: that means f is not the format the counters were opened with.
func NewGroupCount(buf []byte, f ReadFormat) *GroupCount {
	if len(buf)%8 != 0 {
		panic(fmt.Sprintf("perf: group read of %d bytes is not a whole number of words", len(buf)))
	}
	words := make([]uint64, len(buf)/8)
	for i := range words {
		words[i] = binary.NativeEndian.Uint64(buf[8*i:])
	}
	return newGroupCountWords(words, f)
}

func newGroupCountWords(words []uint64, f ReadFormat) *GroupCount {
	if len(words) == 0 {
		panic("perf: empty group read")
	}
	nr := words[0]
	if nr > uint64(len(words)) || f.groupReadLen(int(nr)) != len(words) {
		panic(fmt.Sprintf("perf: group read of %d words does not hold %d entries of format %#x", len(words), nr, uint64(f)))
	}
	return &GroupCount{format: f, words: words}
}

// withoutLeader returns gc with its first entry hidden from Len, At and
// Iter. Get still sees it.
func (gc *GroupCount) withoutLeader() *GroupCount {
	if gc.words[0] == 0 {
		panic("perf: skipping the leader of an empty group read")
	}
	dup := *gc
	dup.skipLeader = true
	return &dup
}

func (gc *GroupCount) nr() int { return int(gc.words[0]) }

func (gc *GroupCount) first() int {
	if gc.skipLeader {
		return 1
	}
	return 0
}

// Len returns the number of entries.
func (gc *GroupCount) Len() int { return gc.nr() - gc.first() }

// Format returns the read format gc was decoded with.
func (gc *GroupCount) Format() ReadFormat { return gc.format }

// TimeEnabled returns the time the group was enabled, if the read format
// includes it.
func (gc *GroupCount) TimeEnabled() (time.Duration, bool) {
	return gc.prefix(FormatTotalTimeEnabled)
}

// TimeRunning returns the time the group was running, if the read format
// includes it.
func (gc *GroupCount) TimeRunning() (time.Duration, bool) {
	return gc.prefix(FormatTotalTimeRunning)
}

func (gc *GroupCount) prefix(bit ReadFormat) (time.Duration, bool) {
	if gc.format&bit == 0 {
		return 0, false
	}
	return time.Duration(gc.words[gc.format.prefixOffset(bit)]), true
}

// entry returns entry i, counting the leader.
func (gc *GroupCount) entry(i int) GroupEntry {
	n := gc.format.elementLen()
	off := gc.format.prefixLen() + i*n
	return GroupEntry{format: gc.format, words: gc.words[off : off+n : off+n]}
}

// At returns the i'th entry. It panics if i is out of range.
func (gc *GroupCount) At(i int) GroupEntry {
	if i < 0 || i >= gc.Len() {
		panic(fmt.Sprintf("perf: group entry %d out of range [0, %d)", i, gc.Len()))
	}
	return gc.entry(gc.first() + i)
}

// Get returns the entry for the counter with the given ID. It searches
// every entry, the hidden leader included. Get always fails if the read
// format does not include IDs.
func (gc *GroupCount) Get(id uint64) (GroupEntry, bool) {
	if gc.format&FormatID == 0 {
		return GroupEntry{}, false
	}
	for i := 0; i < gc.nr(); i++ {
		e := gc.entry(i)
		if eid, _ := e.ID(); eid == id {
			return e, true
		}
	}
	return GroupEntry{}, false
}

// Entries returns all visible entries, in order.
func (gc *GroupCount) Entries() []GroupEntry {
	es := make([]GroupEntry, 0, gc.Len())
	for it := gc.Iter(); ; {
		e, ok := it.Next()
		if !ok {
			return es
		}
		es = append(es, e)
	}
}

// Iter returns an iterator over the visible entries.
func (gc *GroupCount) Iter() *GroupIter {
	return &GroupIter{gc: gc, front: gc.first(), back: gc.nr()}
}

// GroupEntry is one counter's value in a GroupCount.
type GroupEntry struct {
	format ReadFormat
	words  []uint64
}

// Value returns the counter value.
func (e GroupEntry) Value() uint64 { return e.words[0] }

// ID returns the counter ID, if the read format includes it.
func (e GroupEntry) ID() (uint64, bool) { return e.field(FormatID) }

// Lost returns the number of lost samples, if the read format includes it.
func (e GroupEntry) Lost() (uint64, bool) { return e.field(FormatLost) }

func (e GroupEntry) field(bit ReadFormat) (uint64, bool) {
	if e.format&bit == 0 {
		return 0, false
	}
	return e.words[e.format.elementOffset(bit)], true
}

// GroupIter iterates over the entries of a GroupCount from both ends.
type GroupIter struct {
	gc    *GroupCount
	front int // next entry from the front
	back  int // one past the next entry from the back
}

// Next returns the next entry from the front.
func (it *GroupIter) Next() (GroupEntry, bool) {
	if it.front >= it.back {
		return GroupEntry{}, false
	}
	e := it.gc.entry(it.front)
	it.front++
	return e, true
}

// Prev returns the next entry from the back.
func (it *GroupIter) Prev() (GroupEntry, bool) {
	if it.front >= it.back {
		return GroupEntry{}, false
	}
	it.back--
	return it.gc.entry(it.back), true
}

// Len returns the number of entries left.
func (it *GroupIter) Len() int { return it.back - it.front }
