// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

// ErrTruncated is returned when a record ends before all the fields its
// format calls for have been decoded.
var ErrTruncated = errors.New("perf: unexpected end of record data")

// span is a view of bytes which may be split in two pieces, when it wraps
// around the end of the ring buffer. If the span is contiguous, tail is
// empty.
type span struct {
	head []byte
	tail []byte
}

func (s span) len() int { return len(s.head) + len(s.tail) }

// truncate returns the first n bytes of s. It panics if s is shorter
// than n.
func (s span) truncate(n int) span {
	if n > s.len() {
		panic("perf: truncating span beyond its length")
	}
	if n <= len(s.head) {
		return span{head: s.head[:n]}
	}
	return span{head: s.head, tail: s.tail[:n-len(s.head)]}
}

// copyTo fills dst from the front of s and returns the rest of s.
// It panics if s is shorter than dst.
func (s span) copyTo(dst []byte) span {
	if len(dst) > s.len() {
		panic("perf: copying past the end of a span")
	}
	n := copy(dst, s.head)
	if n < len(s.head) {
		return span{head: s.head[n:], tail: s.tail}
	}
	m := copy(dst[n:], s.tail)
	return span{head: s.tail[m:]}
}

// skip drops n bytes from the front of s.
func (s span) skip(n int) span {
	if n > s.len() {
		panic("perf: skipping past the end of a span")
	}
	if n < len(s.head) {
		return span{head: s.head[n:], tail: s.tail}
	}
	return span{head: s.tail[n-len(s.head):]}
}

// bytes returns a contiguous copy of s.
func (s span) bytes() []byte {
	b := make([]byte, s.len())
	s.copyTo(b)
	return b
}

// Cursor decodes the fields of a record payload. The payload may be split
// around the end of the ring buffer.
//
// Reads never go past the end of the payload. Once a read would, the
// Cursor records ErrTruncated, returned by Err, and every later read
// yields zero values.
type Cursor struct {
	s   span
	off int // bytes consumed so far
	err error
}

// NewCursor returns a Cursor over a contiguous payload.
func NewCursor(p []byte) *Cursor {
	return &Cursor{s: span{head: p}}
}

func newSpanCursor(s span) *Cursor {
	return &Cursor{s: s}
}

// Len returns the number of bytes left to decode.
func (c *Cursor) Len() int { return c.s.len() }

// Offset returns the number of bytes consumed so far.
func (c *Cursor) Offset() int { return c.off }

// Err returns ErrTruncated if a read went past the end of the payload.
func (c *Cursor) Err() error { return c.err }

// take copies the next len(dst) bytes into dst.
func (c *Cursor) take(dst []byte) bool {
	if c.err != nil {
		return false
	}
	if len(dst) > c.s.len() {
		c.err = ErrTruncated
		return false
	}
	c.s = c.s.copyTo(dst)
	c.off += len(dst)
	return true
}

// skip drops n bytes.
func (c *Cursor) skip(n int) {
	if c.err != nil {
		return
	}
	if n < 0 || n > c.s.len() {
		c.err = ErrTruncated
		return
	}
	c.s = c.s.skip(n)
	c.off += n
}

// uint64 decodes the next 64 bit field into v.
func (c *Cursor) uint64(v *uint64) {
	var buf [8]byte
	if c.take(buf[:]) {
		*v = binary.NativeEndian.Uint64(buf[:])
	}
}

// uint64If decodes the next 64 bit field into v, if cond is true.
func (c *Cursor) uint64If(cond bool, v *uint64) {
	if cond {
		c.uint64(v)
	}
}

// uint32 decodes a pair of uint32s into a and b.
func (c *Cursor) uint32(a, b *uint32) {
	var buf [8]byte
	if c.take(buf[:]) {
		*a = binary.NativeEndian.Uint32(buf[0:4])
		*b = binary.NativeEndian.Uint32(buf[4:8])
	}
}

// uint32If decodes a pair of uint32s into a and b, if cond is true.
func (c *Cursor) uint32If(cond bool, a, b *uint32) {
	if cond {
		c.uint32(a, b)
	}
}

// uint32One decodes a single uint32 into v.
func (c *Cursor) uint32One(v *uint32) {
	var buf [4]byte
	if c.take(buf[:]) {
		*v = binary.NativeEndian.Uint32(buf[:])
	}
}

// uint16 decodes a pair of uint16s into a and b.
func (c *Cursor) uint16(a, b *uint16) {
	var buf [4]byte
	if c.take(buf[:]) {
		*a = binary.NativeEndian.Uint16(buf[0:2])
		*b = binary.NativeEndian.Uint16(buf[2:4])
	}
}

// duration decodes a duration into d.
func (c *Cursor) duration(d *time.Duration) {
	var v uint64
	c.uint64(&v)
	*d = time.Duration(v)
}

// uint64s decodes n 64 bit fields.
func (c *Cursor) uint64s(n uint64) []uint64 {
	if c.err != nil {
		return nil
	}
	if n > uint64(c.s.len()/8) {
		c.err = ErrTruncated
		return nil
	}
	vs := make([]uint64, n)
	for i := range vs {
		c.uint64(&vs[i])
	}
	return vs
}

// uint64Tuples decodes n tuples of width 64 bit fields each, as one flat
// slice. n is checked against the payload before it is scaled by width.
func (c *Cursor) uint64Tuples(n, width uint64) []uint64 {
	if c.err != nil {
		return nil
	}
	if n > uint64(c.s.len())/(8*width) {
		c.err = ErrTruncated
		return nil
	}
	return c.uint64s(n * width)
}

// bytes decodes n raw bytes.
func (c *Cursor) bytes(n uint64) []byte {
	if c.err != nil {
		return nil
	}
	if n > uint64(c.s.len()) {
		c.err = ErrTruncated
		return nil
	}
	b := make([]byte, n)
	c.take(b)
	return b
}

// string decodes a NUL-terminated string into s. The string is padded
// with NUL bytes up to a multiple of 8 bytes, counted from the start of
// the record; the padding is consumed. The NUL terminator is not included
// in s.
func (c *Cursor) string(s *string) {
	if c.err != nil {
		return
	}
	if i := bytes.IndexByte(c.s.head, 0); i >= 0 {
		*s = string(c.s.head[:i])
		c.skip(c.padded(i + 1))
		return
	}
	if i := bytes.IndexByte(c.s.tail, 0); i >= 0 {
		*s = string(c.s.head) + string(c.s.tail[:i])
		c.skip(c.padded(len(c.s.head) + i + 1))
		return
	}
	c.err = ErrTruncated
}

// padded rounds n up so that the cursor stays 8-byte aligned relative to
// the start of the record. The payload itself starts 8 bytes in, after
// the record header.
func (c *Cursor) padded(n int) int {
	end := c.off + n
	return (end+7)&^7 - c.off
}

// rest consumes and returns all remaining bytes.
func (c *Cursor) rest() []byte {
	if c.err != nil {
		return nil
	}
	b := c.s.bytes()
	c.skip(len(b))
	return b
}
