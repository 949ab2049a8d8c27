// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perf

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/bits"
	"os"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/golang/glog"
	"golang.org/x/sys/unix"
)

// recordHeaderSize is the size of the header preceding every record.
const recordHeaderSize = 8

// controlPage is a view of the first page of a ring buffer mapping. The
// kernel publishes data_head; the consumer publishes data_tail.
type controlPage struct {
	meta *unix.PerfEventMmapPage
}

// head loads data_head. The atomic load orders every subsequent read of
// record bytes after it.
func (cp controlPage) head() uint64 {
	return atomic.LoadUint64(&cp.meta.Data_head)
}

// tail reads data_tail. Only the consumer writes it, so a plain read
// suffices.
func (cp controlPage) tail() uint64 {
	return cp.meta.Data_tail
}

// setTail publishes data_tail. The atomic store orders every preceding
// read of record bytes before it.
func (cp controlPage) setTail(v uint64) {
	atomic.StoreUint64(&cp.meta.Data_tail, v)
}

// ringMapLen returns the length of a mapping with room for at least n
// bytes of data: one control page followed by a power of two number of
// data pages, at least one.
func ringMapLen(pageSize, n int) int {
	if n < pageSize {
		n = pageSize
	}
	data := 1 << bits.Len(uint(n-1))
	return pageSize + data
}

// Ring is the memory mapped ring buffer of an event.
//
// A Ring has exactly one consumer: its methods must not be called
// concurrently with each other.
type Ring struct {
	sys  Sys
	fd   int    // perf event file descriptor
	mem  []byte // the whole mapping
	cp   controlPage
	data []byte // data region of the mapping
	evfd int    // unblocks ppoll on fd when a context is canceled
	hup  bool   // POLLHUP was observed on fd
}

// NewRing wraps mapping, a ring buffer mapping established on the perf
// event file descriptor fd. The Ring takes ownership of mapping and
// unmaps it on Close.
func NewRing(sys Sys, fd int, mapping []byte) (*Ring, error) {
	pageSize := os.Getpagesize()
	if len(mapping) < pageSize*2 {
		return nil, fmt.Errorf("perf: ring mapping of %d bytes is too small", len(mapping))
	}
	cp := controlPage{meta: (*unix.PerfEventMmapPage)(unsafe.Pointer(&mapping[0]))}
	off, size := cp.meta.Data_offset, cp.meta.Data_size
	if size == 0 {
		// Kernels before 4.1 do not report the data region geometry.
		off, size = uint64(pageSize), uint64(len(mapping)-pageSize)
	}
	if off+size > uint64(len(mapping)) || bits.OnesCount64(size) != 1 {
		return nil, fmt.Errorf("perf: bad ring geometry: data offset %d, size %d, mapping %d", off, size, len(mapping))
	}
	evfd, err := sys.Eventfd()
	if err != nil {
		return nil, os.NewSyscallError("eventfd", err)
	}
	glog.V(2).Infof("perf: ring on fd %d: %d data bytes at offset %d", fd, size, off)
	return &Ring{
		sys:  sys,
		fd:   fd,
		mem:  mapping,
		cp:   cp,
		data: mapping[off : off+size],
		evfd: evfd,
	}, nil
}

// Next returns the oldest pending record, if there is one. It does not
// block.
//
// The record refers to the ring's memory until it is released. Until
// Release is called on it, Next keeps returning the same record.
func (r *Ring) Next() (*RawRecord, bool) {
	if r.closed() {
		return nil, false
	}
	tail := r.cp.tail()
	head := r.cp.head()
	if tail == head {
		return nil, false
	}
	size := uint64(len(r.data))
	modTail, modHead := tail%size, head%size
	var s span
	if modHead > modTail {
		s = span{head: r.data[modTail:modHead]}
	} else {
		s = span{head: r.data[modTail:], tail: r.data[:modHead]}
	}
	var hdr [recordHeaderSize]byte
	s = s.copyTo(hdr[:])
	raw := &RawRecord{Header: parseRecordHeader(hdr), ring: r, start: tail}
	if raw.Header.Size < recordHeaderSize {
		panic(fmt.Sprintf("perf: record size %d is smaller than its header", raw.Header.Size))
	}
	raw.span = s.truncate(int(raw.Header.Size) - recordHeaderSize)
	raw.end = tail + uint64(raw.Header.Size)
	return raw, true
}

// ReadRawRecord returns the next record, waiting for one if the ring is
// empty. It returns io.EOF once the monitored task has exited and every
// buffered record has been read, and ctx.Err() if ctx is done first.
//
// Wait errors other than EINTR indicate resource exhaustion and cause a
// panic.
func (r *Ring) ReadRawRecord(ctx context.Context) (*RawRecord, error) {
	if r.closed() {
		return nil, os.ErrClosed
	}
	if raw, ok := r.Next(); ok {
		return raw, nil
	}
	if r.hup {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	woken := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		r.wake()
		close(woken)
	})
	defer func() {
		// A wakeup already under way must finish before the caller can
		// close the eventfd.
		if !stop() {
			<-woken
		}
	}()

	deadline, hasDeadline := ctx.Deadline()
	for {
		var timeout *unix.Timespec
		if hasDeadline {
			d := time.Until(deadline)
			if d <= 0 {
				return nil, context.DeadlineExceeded
			}
			ts := unix.NsecToTimespec(d.Nanoseconds())
			timeout = &ts
		}
		fds := []unix.PollFd{
			{Fd: int32(r.fd), Events: unix.POLLIN | unix.POLLHUP},
			{Fd: int32(r.evfd), Events: unix.POLLIN},
		}
		_, err := r.sys.Ppoll(fds, timeout)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			panic(os.NewSyscallError("ppoll", err))
		}
		if fds[1].Revents&unix.POLLIN != 0 {
			r.drainWake()
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if raw, ok := r.Next(); ok {
			return raw, nil
		}
		if fds[0].Revents&unix.POLLHUP != 0 {
			glog.V(1).Infof("perf: ring on fd %d hung up", r.fd)
			r.hup = true
			return nil, io.EOF
		}
	}
}

// ReadRecord reads the next record like ReadRawRecord, decodes it
// according to cfg and releases it.
func (r *Ring) ReadRecord(ctx context.Context, cfg ParseConfig) (Record, error) {
	raw, err := r.ReadRawRecord(ctx)
	if err != nil {
		return nil, err
	}
	defer raw.Release()
	return raw.Decode(cfg)
}

// wake raises POLLIN on the eventfd. It runs when the context passed to
// ReadRawRecord is done.
func (r *Ring) wake() {
	var one [8]byte
	binary.NativeEndian.PutUint64(one[:], 1)
	r.sys.Write(r.evfd, one[:])
}

// drainWake resets the eventfd counter.
func (r *Ring) drainWake() {
	var buf [8]byte
	r.sys.Read(r.evfd, buf[:])
}

// Close unmaps the ring and releases its resources. It does not close the
// perf event file descriptor. Once the Ring is closed, Next reports no
// records and ReadRawRecord returns os.ErrClosed, as does a second Close.
func (r *Ring) Close() error {
	if r.closed() {
		return os.ErrClosed
	}
	muerr := r.sys.Munmap(r.mem)
	evfderr := r.sys.Close(r.evfd)
	r.mem, r.data = nil, nil
	if muerr != nil {
		return os.NewSyscallError("munmap", muerr)
	}
	if evfderr != nil {
		return os.NewSyscallError("close", evfderr)
	}
	return nil
}

func (r *Ring) closed() bool { return r.mem == nil }

// RawRecord is a record read from a ring buffer, not yet decoded.
//
// The payload refers to the ring buffer memory: it is only valid until
// Release is called.
type RawRecord struct {
	Header RecordHeader

	span  span   // payload, after the header
	ring  *Ring  // owning ring
	start uint64 // data_tail when the record was read
	end   uint64 // data_tail after the record
}

// Len returns the size of the payload, excluding the header.
func (raw *RawRecord) Len() int { return raw.span.len() }

// Cursor returns a Cursor over the payload.
func (raw *RawRecord) Cursor() *Cursor { return newSpanCursor(raw.span) }

// Bytes returns a copy of the payload.
func (raw *RawRecord) Bytes() []byte { return raw.span.bytes() }

// Decode decodes the record according to cfg. The result does not refer
// to the ring buffer.
func (raw *RawRecord) Decode(cfg ParseConfig) (Record, error) {
	return ParseRecord(cfg, raw.Header, raw.Cursor())
}

// Release hands the record's memory back to the kernel. It is safe to
// call more than once. Releasing a record which is no longer the oldest
// pending record does nothing.
func (raw *RawRecord) Release() {
	if raw.ring == nil {
		return
	}
	if !raw.ring.closed() && raw.ring.cp.tail() == raw.start {
		raw.ring.cp.setTail(raw.end)
	}
	raw.ring = nil
	raw.span = span{}
}
