// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perf

import (
	"encoding/binary"
	"os"
	"sync"
	"testing"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

type fakeOpen struct {
	attr    unix.PerfEventAttr
	pid     int
	cpu     int
	groupFD int
	flags   int
}

type fakeIoctl struct {
	fd  int
	req uint
	arg int
}

// fakeSys is a Sys which records the calls it sees and serves canned
// results, in place of a kernel with perf events.
type fakeSys struct {
	mu      sync.Mutex
	nextFD  int
	opens   []fakeOpen
	ioctls  []fakeIoctl
	closed  []int
	reads   map[int][]byte // canned read(2) results, by fd
	openErr error

	// ring mapping served by Mmap
	words    []uint64
	dataSize int

	// eventfd emulation: writes to the eventfd post to wake
	evfd int
	wake chan struct{}

	writeDelay       time.Duration // applied to every write
	writesAfterClose int           // writes to an already closed fd

	polls int
	// poll, if set, replaces the default ppoll behavior, which waits for
	// the eventfd or the timeout.
	poll func(fds []unix.PollFd, timeout *unix.Timespec) (int, error)
}

func newFakeSys() *fakeSys {
	return &fakeSys{
		nextFD: 3,
		reads:  make(map[int][]byte),
		wake:   make(chan struct{}, 1),
	}
}

func (fs *fakeSys) PerfEventOpen(attr *unix.PerfEventAttr, pid, cpu, groupFD, flags int) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.openErr != nil {
		return -1, fs.openErr
	}
	fs.opens = append(fs.opens, fakeOpen{attr: *attr, pid: pid, cpu: cpu, groupFD: groupFD, flags: flags})
	fd := fs.nextFD
	fs.nextFD++
	return fd, nil
}

// fakeID is the ID the fake kernel assigns to the event on fd.
func fakeID(fd int) uint64 { return uint64(fd) * 100 }

func (fs *fakeSys) IoctlInt(fd int, req uint, arg int) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.ioctls = append(fs.ioctls, fakeIoctl{fd: fd, req: req, arg: arg})
	return nil
}

func (fs *fakeSys) IoctlPointer(fd int, req uint, arg unsafe.Pointer) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.ioctls = append(fs.ioctls, fakeIoctl{fd: fd, req: req})
	if req == unix.PERF_EVENT_IOC_ID {
		*(*uint64)(arg) = fakeID(fd)
	}
	return nil
}

func (fs *fakeSys) Read(fd int, p []byte) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fd == fs.evfd {
		return 8, nil
	}
	b, ok := fs.reads[fd]
	if !ok {
		return 0, unix.EBADF
	}
	if len(p) < len(b) {
		return 0, unix.ENOSPC
	}
	return copy(p, b), nil
}

func (fs *fakeSys) Write(fd int, p []byte) (int, error) {
	time.Sleep(fs.writeDelay)
	fs.mu.Lock()
	for _, c := range fs.closed {
		if c == fd {
			fs.writesAfterClose++
		}
	}
	fs.mu.Unlock()
	if fd == fs.evfd {
		select {
		case fs.wake <- struct{}{}:
		default:
		}
		return len(p), nil
	}
	return 0, unix.EBADF
}

func (fs *fakeSys) Mmap(fd int, length int) ([]byte, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.words = make([]uint64, length/8)
	mem := unsafe.Slice((*byte)(unsafe.Pointer(&fs.words[0])), length)
	pageSize := os.Getpagesize()
	meta := (*unix.PerfEventMmapPage)(unsafe.Pointer(&mem[0]))
	meta.Data_offset = uint64(pageSize)
	meta.Data_size = uint64(length - pageSize)
	if fs.dataSize != 0 {
		meta.Data_size = uint64(fs.dataSize)
	}
	return mem, nil
}

func (fs *fakeSys) Munmap(b []byte) error { return nil }

func (fs *fakeSys) Ppoll(fds []unix.PollFd, timeout *unix.Timespec) (int, error) {
	fs.mu.Lock()
	fs.polls++
	poll := fs.poll
	fs.mu.Unlock()
	if poll != nil {
		return poll(fds, timeout)
	}
	var timer <-chan time.Time
	if timeout != nil {
		timer = time.After(time.Duration(timeout.Nano()))
	}
	select {
	case <-fs.wake:
		fds[1].Revents = unix.POLLIN
		return 1, nil
	case <-timer:
		return 0, nil
	}
}

func (fs *fakeSys) Eventfd() (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.evfd = fs.nextFD
	fs.nextFD++
	return fs.evfd, nil
}

func (fs *fakeSys) Close(fd int) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.closed = append(fs.closed, fd)
	return nil
}

func (fs *fakeSys) pollCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.polls
}

// testRing is a Ring over fake memory, along with a producer which
// writes records the way the kernel does.
type testRing struct {
	*Ring
	fs   *fakeSys
	head uint64
}

// newTestRing returns a ring with a data region of dataSize bytes, which
// must be a power of two no larger than a page.
func newTestRing(t *testing.T, dataSize int) *testRing {
	t.Helper()
	fs := newFakeSys()
	fs.dataSize = dataSize
	pageSize := os.Getpagesize()
	mem, err := fs.Mmap(0, 2*pageSize)
	if err != nil {
		t.Fatal(err)
	}
	r, err := NewRing(fs, 0, mem)
	if err != nil {
		t.Fatal(err)
	}
	return &testRing{Ring: r, fs: fs}
}

// seek moves both ends of the empty ring to pos.
func (tr *testRing) seek(pos uint64) {
	tr.head = pos
	tr.cp.meta.Data_tail = pos
	tr.cp.meta.Data_head = pos
}

// write copies a record into the data region, wrapping around its end,
// without publishing it.
func (tr *testRing) write(rec []byte) {
	size := uint64(len(tr.data))
	for i, b := range rec {
		tr.data[(tr.head+uint64(i))%size] = b
	}
	tr.head += uint64(len(rec))
}

// publish makes written records visible to the consumer.
func (tr *testRing) publish() {
	tr.cp.meta.Data_head = tr.head
}

// rawRecord encodes a record header followed by payload.
func rawRecord(typ RecordType, misc uint16, payload []byte) []byte {
	b := make([]byte, recordHeaderSize+len(payload))
	binary.NativeEndian.PutUint32(b[0:4], uint32(typ))
	binary.NativeEndian.PutUint16(b[4:6], misc)
	binary.NativeEndian.PutUint16(b[6:8], uint16(len(b)))
	copy(b[recordHeaderSize:], payload)
	return b
}

// encoder builds record payloads.
type encoder struct {
	b []byte
}

func (e *encoder) u64(vs ...uint64) *encoder {
	for _, v := range vs {
		e.b = binary.NativeEndian.AppendUint64(e.b, v)
	}
	return e
}

func (e *encoder) u32(vs ...uint32) *encoder {
	for _, v := range vs {
		e.b = binary.NativeEndian.AppendUint32(e.b, v)
	}
	return e
}

func (e *encoder) u16(vs ...uint16) *encoder {
	for _, v := range vs {
		e.b = binary.NativeEndian.AppendUint16(e.b, v)
	}
	return e
}

func (e *encoder) raw(b []byte) *encoder {
	e.b = append(e.b, b...)
	return e
}

// str appends a NUL-terminated string padded to 8 bytes, counting the
// record header which precedes the payload.
func (e *encoder) str(s string) *encoder {
	e.b = append(e.b, s...)
	e.b = append(e.b, 0)
	for (recordHeaderSize+len(e.b))%8 != 0 {
		e.b = append(e.b, 0)
	}
	return e
}

func (e *encoder) bytes() []byte { return e.b }

// mustPanic runs f and fails the test if it does not panic.
func mustPanic(t *testing.T, f func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Helper()
			t.Fatal("did not panic")
		}
	}()
	f()
}
