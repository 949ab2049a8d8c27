// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perf

// Perf file descriptor ioctls.

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctlFlags selects whether an ioctl applies to a single event or to the
// whole group led by the event.
type ioctlFlags int

// PERF_IOC_FLAG_GROUP, which golang.org/x/sys/unix does not define.
const (
	ioctlSingle ioctlFlags = 0
	ioctlGroup  ioctlFlags = 1
)

func ioctlEnable(sys Sys, fd int, flags ioctlFlags) error {
	err := sys.IoctlInt(fd, unix.PERF_EVENT_IOC_ENABLE, int(flags))
	return wrapIoctlError("PERF_EVENT_IOC_ENABLE", err)
}

func ioctlDisable(sys Sys, fd int, flags ioctlFlags) error {
	err := sys.IoctlInt(fd, unix.PERF_EVENT_IOC_DISABLE, int(flags))
	return wrapIoctlError("PERF_EVENT_IOC_DISABLE", err)
}

func ioctlReset(sys Sys, fd int, flags ioctlFlags) error {
	err := sys.IoctlInt(fd, unix.PERF_EVENT_IOC_RESET, int(flags))
	return wrapIoctlError("PERF_EVENT_IOC_RESET", err)
}

func ioctlRefresh(sys Sys, fd int, delta int) error {
	err := sys.IoctlInt(fd, unix.PERF_EVENT_IOC_REFRESH, delta)
	return wrapIoctlError("PERF_EVENT_IOC_REFRESH", err)
}

func ioctlPeriod(sys Sys, fd int, p *uint64) error {
	err := sys.IoctlPointer(fd, unix.PERF_EVENT_IOC_PERIOD, unsafe.Pointer(p))
	return wrapIoctlError("PERF_EVENT_IOC_PERIOD", err)
}

func ioctlSetOutput(sys Sys, fd int, target int) error {
	err := sys.IoctlInt(fd, unix.PERF_EVENT_IOC_SET_OUTPUT, target)
	return wrapIoctlError("PERF_EVENT_IOC_SET_OUTPUT", err)
}

func ioctlID(sys Sys, fd int) (uint64, error) {
	var id uint64
	err := sys.IoctlPointer(fd, unix.PERF_EVENT_IOC_ID, unsafe.Pointer(&id))
	return id, wrapIoctlError("PERF_EVENT_IOC_ID", err)
}

func ioctlSetBPF(sys Sys, fd int, progfd uint32) error {
	err := sys.IoctlInt(fd, unix.PERF_EVENT_IOC_SET_BPF, int(progfd))
	return wrapIoctlError("PERF_EVENT_IOC_SET_BPF", err)
}

func ioctlPauseOutput(sys Sys, fd int, pause bool) error {
	arg := 0
	if pause {
		arg = 1
	}
	err := sys.IoctlInt(fd, unix.PERF_EVENT_IOC_PAUSE_OUTPUT, arg)
	return wrapIoctlError("PERF_EVENT_IOC_PAUSE_OUTPUT", err)
}

func wrapIoctlError(ioctl string, err error) error {
	if err == nil {
		return nil
	}
	return &ioctlError{ioctl: ioctl, err: err}
}

type ioctlError struct {
	ioctl string
	err   error
}

func (e *ioctlError) Error() string {
	return fmt.Sprintf("%s: %v", e.ioctl, e.err)
}

func (e *ioctlError) Unwrap() error { return e.err }
