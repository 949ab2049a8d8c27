// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perf

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Sys is the operating system transport used by counters and rings.
//
// LinuxSys is the real implementation. Tests substitute their own to
// exercise the package without a kernel that supports perf events.
// Implementations return raw errno values; callers add context.
type Sys interface {
	PerfEventOpen(attr *unix.PerfEventAttr, pid, cpu, groupFD, flags int) (int, error)
	IoctlInt(fd int, req uint, arg int) error
	IoctlPointer(fd int, req uint, arg unsafe.Pointer) error
	Read(fd int, p []byte) (int, error)
	Write(fd int, p []byte) (int, error)
	Mmap(fd int, length int) ([]byte, error)
	Munmap(b []byte) error
	Ppoll(fds []unix.PollFd, timeout *unix.Timespec) (int, error)
	Eventfd() (int, error)
	Close(fd int) error
}

// LinuxSys implements Sys using the Linux system calls.
type LinuxSys struct{}

var _ Sys = LinuxSys{}

func (LinuxSys) PerfEventOpen(attr *unix.PerfEventAttr, pid, cpu, groupFD, flags int) (int, error) {
	return unix.PerfEventOpen(attr, pid, cpu, groupFD, flags)
}

func (LinuxSys) IoctlInt(fd int, req uint, arg int) error {
	_, _, e := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(arg))
	if e != 0 {
		return e
	}
	return nil
}

func (LinuxSys) IoctlPointer(fd int, req uint, arg unsafe.Pointer) error {
	_, _, e := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(arg))
	if e != 0 {
		return e
	}
	return nil
}

func (LinuxSys) Read(fd int, p []byte) (int, error) { return unix.Read(fd, p) }

func (LinuxSys) Write(fd int, p []byte) (int, error) { return unix.Write(fd, p) }

func (LinuxSys) Mmap(fd int, length int) ([]byte, error) {
	return unix.Mmap(fd, 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

func (LinuxSys) Munmap(b []byte) error { return unix.Munmap(b) }

func (LinuxSys) Ppoll(fds []unix.PollFd, timeout *unix.Timespec) (int, error) {
	return unix.Ppoll(fds, timeout, nil)
}

// Eventfd returns a non-blocking, close-on-exec event file descriptor.
func (LinuxSys) Eventfd() (int, error) {
	return unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
}

func (LinuxSys) Close(fd int) error { return unix.Close(fd) }
