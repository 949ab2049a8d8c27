// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/golang/glog"
	"github.com/perfevent/perf/internal/config"
	"golang.org/x/sys/unix"
)

// Counter states.
const (
	counterStateUninitialized = 0
	counterStateOK            = 1
	counterStateClosed        = 2
)

// Counter is an open perf event: a kernel-side counter, and, once mapped,
// its ring buffer.
type Counter struct {
	// state is the state of the counter. See counterState* constants.
	state int32

	// sys carries out system calls on behalf of the counter.
	sys Sys

	// fd is the event file descriptor.
	fd int

	// id is the kernel-assigned ID, read once at open time.
	id uint64

	// attr is the set of attributes the Counter was configured with.
	// It is a clone of the original.
	attr *Attr

	// members contains the other counters in the group, if this counter
	// is a group leader, in the order they were opened.
	members []*Counter

	// owned contains the counters closed along with this one.
	owned []*Counter

	// placeholderLeader is set if the counter is a dummy event leading
	// a Group. Its own entry is hidden from group reads.
	placeholderLeader bool

	// ring is the memory mapped ring buffer, if any.
	ring *Ring
}

// Open opens the event configured by attr.
//
// The pid and cpu parameters specify which thread and CPU to monitor:
//
//   - if pid == CallingThread and cpu == AnyCPU, the event measures
//     the calling thread on any CPU
//
//   - if pid == CallingThread and cpu >= 0, the event measures
//     the calling thread only when running on the specified CPU
//
//   - if pid > 0 and cpu == AnyCPU, the event measures the specified
//     thread on any CPU
//
//   - if pid > 0 and cpu >= 0, the event measures the specified thread
//     only when running on the specified CPU
//
//   - if pid == AllThreads and cpu >= 0, the event measures all threads
//     on the specified CPU
//
//   - finally, the pid == AllThreads and cpu == AnyCPU setting is invalid
//
// If group is non-nil, the returned Counter is made part of the group
// associated with the specified group Counter. If group is non-nil, and
// NoGroup | FDOutput are not set, the attr.Options.Disabled setting is
// ignored: the group leader controls when the entire group is enabled.
func Open(attr *Attr, pid, cpu int, group *Counter, flags Flag) (*Counter, error) {
	return OpenWith(LinuxSys{}, attr, pid, cpu, group, flags)
}

// OpenWith is like Open, but carries out system calls through sys.
func OpenWith(sys Sys, attr *Attr, pid, cpu int, group *Counter, flags Flag) (*Counter, error) {
	groupfd := -1
	if group != nil {
		if err := group.ok(); err != nil {
			return nil, err
		}
		groupfd = group.fd
	}
	flags |= cloexec
	fd, err := sys.PerfEventOpen(attr.sysAttr(), pid, cpu, groupfd, int(flags))
	runtime.KeepAlive(attr)
	if err != nil {
		return nil, openError(err)
	}
	id, err := ioctlID(sys, fd)
	if err != nil {
		sys.Close(fd)
		return nil, err
	}
	attrClone := new(Attr)
	*attrClone = *attr
	if attrClone.Label == "" {
		attrClone.Label = defaultLabel(attrClone)
	}
	c := &Counter{
		state: counterStateOK,
		sys:   sys,
		fd:    fd,
		id:    id,
		attr:  attrClone,
	}
	if group != nil && flags&NoGroup == 0 {
		group.members = append(group.members, c)
	}
	glog.V(1).Infof("perf: opened %q (type %d, config %#x) for pid %d, cpu %d: fd %d, id %d",
		attrClone.Label, attr.Type, attr.Config, pid, cpu, fd, id)
	return c, nil
}

// openError wraps an error from perf_event_open. Permission errors
// usually come from the perf_event_paranoid setting, so they mention it.
func openError(err error) error {
	serr := os.NewSyscallError("perf_event_open", err)
	if !errors.Is(err, unix.EACCES) && !errors.Is(err, unix.EPERM) {
		return serr
	}
	path := config.Global.ParanoidFile
	level, rerr := os.ReadFile(path)
	if rerr != nil {
		return fmt.Errorf("%w (see %s)", serr, path)
	}
	return fmt.Errorf("%w (%s is %s)", serr, path, strings.TrimSpace(string(level)))
}

func (c *Counter) ok() error {
	if c == nil {
		return os.ErrInvalid
	}
	switch c.state {
	case counterStateUninitialized:
		return os.ErrInvalid
	case counterStateOK:
		return nil
	default: // counterStateClosed
		return os.ErrClosed
	}
}

// ID returns the unique event ID value for c.
func (c *Counter) ID() uint64 { return c.id }

// Label returns the label c was configured with.
func (c *Counter) Label() string { return c.attr.Label }

// Members returns the counters opened as part of the group c leads, in
// the order they were opened.
func (c *Counter) Members() []*Counter {
	return append([]*Counter(nil), c.members...)
}

// ParseConfig returns the configuration needed to decode records from
// the ring buffer of c.
func (c *Counter) ParseConfig() ParseConfig { return c.attr.ParseConfig() }

// ioctlFlags returns the flags for ioctls which should apply to the
// whole group, if c leads one.
func (c *Counter) ioctlFlags() ioctlFlags {
	if c.placeholderLeader || len(c.members) > 0 {
		return ioctlGroup
	}
	return ioctlSingle
}

// Enable enables the counter, and the rest of its group if it leads one.
func (c *Counter) Enable() error {
	if err := c.ok(); err != nil {
		return err
	}
	return ioctlEnable(c.sys, c.fd, c.ioctlFlags())
}

// Disable disables the counter, and the rest of its group if it leads one.
func (c *Counter) Disable() error {
	if err := c.ok(); err != nil {
		return err
	}
	return ioctlDisable(c.sys, c.fd, c.ioctlFlags())
}

// Reset resets the counter, and the rest of its group if it leads one.
func (c *Counter) Reset() error {
	if err := c.ok(); err != nil {
		return err
	}
	return ioctlReset(c.sys, c.fd, c.ioctlFlags())
}

// Refresh enables the counter for n more overflows. When they are used
// up, the counter is disabled and the ring reports POLLHUP.
func (c *Counter) Refresh(n int) error {
	if err := c.ok(); err != nil {
		return err
	}
	return ioctlRefresh(c.sys, c.fd, n)
}

// UpdatePeriod updates the overflow period for the counter. On older
// kernels, the new period does not take effect until after the next
// overflow.
func (c *Counter) UpdatePeriod(p uint64) error {
	if err := c.ok(); err != nil {
		return err
	}
	return ioctlPeriod(c.sys, c.fd, &p)
}

// SetOutput tells the kernel to report event notifications to the
// specified target Counter rather than c. c and target must be on the
// same CPU.
//
// If target is nil, output from c is ignored.
func (c *Counter) SetOutput(target *Counter) error {
	if err := c.ok(); err != nil {
		return err
	}
	if target == nil {
		return ioctlSetOutput(c.sys, c.fd, -1)
	}
	if err := target.ok(); err != nil {
		return err
	}
	return ioctlSetOutput(c.sys, c.fd, target.fd)
}

// SetBPF attaches a BPF program to c, which must be a kprobe tracepoint
// event. progfd is the file descriptor associated with the BPF program.
func (c *Counter) SetBPF(progfd uint32) error {
	if err := c.ok(); err != nil {
		return err
	}
	return ioctlSetBPF(c.sys, c.fd, progfd)
}

// PauseOutput pauses the output from c.
func (c *Counter) PauseOutput() error {
	if err := c.ok(); err != nil {
		return err
	}
	return ioctlPauseOutput(c.sys, c.fd, true)
}

// ResumeOutput resumes output from c.
func (c *Counter) ResumeOutput() error {
	if err := c.ok(); err != nil {
		return err
	}
	return ioctlPauseOutput(c.sys, c.fd, false)
}

// measure disables the counter, resets it, enables it, runs f, then
// disables it again.
func (c *Counter) measure(f func()) error {
	if err := c.Disable(); err != nil {
		return err
	}
	if err := c.Reset(); err != nil {
		return err
	}
	if err := c.Enable(); err != nil {
		return err
	}
	f()
	return c.Disable()
}

// Measure disables the counter, resets it, enables it, runs f, disables
// it again, then reads the Count associated with the counter.
func (c *Counter) Measure(f func()) (Count, error) {
	if err := c.measure(f); err != nil {
		return Count{}, err
	}
	return c.ReadCount()
}

// MeasureGroup is like Measure, but for counter groups.
func (c *Counter) MeasureGroup(f func()) (*GroupCount, error) {
	if err := c.measure(f); err != nil {
		return nil, err
	}
	return c.ReadGroupCount()
}

// ReadCount reads the measurement associated with c. If the Counter was
// configured with CountFormat.Group, ReadCount returns an error.
func (c *Counter) ReadCount() (Count, error) {
	if err := c.ok(); err != nil {
		return Count{}, err
	}
	if c.attr.CountFormat.Group {
		return Count{}, errors.New("perf: calling ReadCount on group Counter")
	}
	f := c.attr.CountFormat.ReadFormat()
	buf := make([]byte, 8*f.readLen())
	n, err := c.sys.Read(c.fd, buf)
	if err != nil {
		return Count{}, os.NewSyscallError("read", err)
	}
	cnt := decodeCount(buf[:n], f)
	cnt.Label = c.attr.Label
	return cnt, nil
}

// ReadGroupCount reads the measurements associated with c. If the Counter
// was not configured with CountFormat.Group, ReadGroupCount returns an
// error.
//
// If c is the placeholder leader of a Group, its own entry is hidden:
// the entries correspond to c.Members().
func (c *Counter) ReadGroupCount() (*GroupCount, error) {
	if err := c.ok(); err != nil {
		return nil, err
	}
	if !c.attr.CountFormat.Group {
		return nil, errors.New("perf: calling ReadGroupCount on non-group Counter")
	}
	f := c.attr.CountFormat.ReadFormat()
	buf := make([]byte, 8*f.groupReadLen(1+len(c.members)))
	n, err := c.sys.Read(c.fd, buf)
	if err != nil {
		return nil, os.NewSyscallError("read", err)
	}
	gc := NewGroupCount(buf[:n], f)
	if c.placeholderLeader {
		gc = gc.withoutLeader()
	}
	return gc, nil
}

// MapRing maps the ring buffer of c, with the number of data pages given
// by the PERF_RING_PAGES environment variable.
func (c *Counter) MapRing() (*Ring, error) {
	return c.MapRingPages(config.Global.RingPages)
}

// MapRingPages maps the ring buffer of c, with room for at least n data
// pages. The data region is rounded up to a power of two pages.
func (c *Counter) MapRingPages(n int) (*Ring, error) {
	if err := c.ok(); err != nil {
		return nil, err
	}
	if c.ring != nil {
		return nil, errors.New("perf: ring buffer already mapped")
	}
	if n < 1 {
		return nil, fmt.Errorf("perf: invalid ring buffer size of %d pages", n)
	}
	pageSize := os.Getpagesize()
	mem, err := c.sys.Mmap(c.fd, ringMapLen(pageSize, n*pageSize))
	if err != nil {
		return nil, os.NewSyscallError("mmap", err)
	}
	r, err := NewRing(c.sys, c.fd, mem)
	if err != nil {
		c.sys.Munmap(mem)
		return nil, err
	}
	c.ring = r
	return r, nil
}

var errNoRing = errors.New("perf: no ring buffer mapped")

// ReadRawRecord reads the next raw record from the ring buffer of c. See
// (*Ring).ReadRawRecord.
func (c *Counter) ReadRawRecord(ctx context.Context) (*RawRecord, error) {
	if err := c.ok(); err != nil {
		return nil, err
	}
	if c.ring == nil {
		return nil, errNoRing
	}
	return c.ring.ReadRawRecord(ctx)
}

// ReadRecord reads and decodes the next record from the ring buffer of c.
// The record is released before ReadRecord returns.
func (c *Counter) ReadRecord(ctx context.Context) (Record, error) {
	if err := c.ok(); err != nil {
		return nil, err
	}
	if c.ring == nil {
		return nil, errNoRing
	}
	return c.ring.ReadRecord(ctx, c.attr.ParseConfig())
}

// Close closes the counter, the counters it owns and its ring buffer.
// Close must not be called concurrently with any other methods on the
// Counter.
func (c *Counter) Close() error {
	if err := c.ok(); err != nil {
		return err
	}
	c.state = counterStateClosed
	var errs []error
	for _, m := range c.owned {
		if err := m.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.ring != nil {
		if err := c.ring.Close(); err != nil {
			errs = append(errs, err)
		}
		c.ring = nil
	}
	if err := c.sys.Close(c.fd); err != nil {
		errs = append(errs, os.NewSyscallError("close", err))
	}
	glog.V(1).Infof("perf: closed %q on fd %d", c.attr.Label, c.fd)
	return errors.Join(errs...)
}
