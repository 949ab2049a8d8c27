// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perf

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/perfevent/perf/internal/config"
	"golang.org/x/sys/unix"
)

func openFake(t *testing.T, fs *fakeSys, attr *Attr, group *Counter) *Counter {
	t.Helper()
	c, err := OpenWith(fs, attr, CallingThread, AnyCPU, group, 0)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestOpenWith(t *testing.T) {
	fs := newFakeSys()
	attr := new(Attr)
	PageFaults.Configure(attr)
	c := openFake(t, fs, attr, nil)

	if len(fs.opens) != 1 {
		t.Fatalf("%d opens, want 1", len(fs.opens))
	}
	o := fs.opens[0]
	if o.flags&int(cloexec) == 0 {
		t.Error("event not opened close-on-exec")
	}
	if o.groupFD != -1 {
		t.Errorf("groupFD = %d, want -1", o.groupFD)
	}
	if o.attr.Type != unix.PERF_TYPE_SOFTWARE || o.attr.Config != unix.PERF_COUNT_SW_PAGE_FAULTS {
		t.Errorf("opened type %d, config %d", o.attr.Type, o.attr.Config)
	}
	if c.ID() != fakeID(c.fd) {
		t.Errorf("ID = %d, want %d", c.ID(), fakeID(c.fd))
	}
	if c.Label() != "page-faults" {
		t.Errorf("Label = %q", c.Label())
	}

	// The counter keeps its own copy of the attributes.
	attr.Label = "changed"
	if c.Label() != "page-faults" {
		t.Error("Counter shares attributes with the caller")
	}
}

func TestOpenPermissionError(t *testing.T) {
	dir := t.TempDir()
	paranoid := filepath.Join(dir, "perf_event_paranoid")
	if err := os.WriteFile(paranoid, []byte("3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	saved := config.Global
	config.Global.ParanoidFile = paranoid
	defer func() { config.Global = saved }()

	fs := newFakeSys()
	fs.openErr = unix.EACCES
	_, err := OpenWith(fs, new(Attr), CallingThread, AnyCPU, nil, 0)
	if !errors.Is(err, unix.EACCES) {
		t.Fatalf("got %v, want EACCES", err)
	}
	if !strings.Contains(err.Error(), paranoid+" is 3") {
		t.Fatalf("error %q does not report the paranoid level", err)
	}

	fs.openErr = unix.EINVAL
	_, err = OpenWith(fs, new(Attr), CallingThread, AnyCPU, nil, 0)
	if !errors.Is(err, unix.EINVAL) || strings.Contains(err.Error(), paranoid) {
		t.Fatalf("got %v", err)
	}
}

func TestCounterIoctlScope(t *testing.T) {
	fs := newFakeSys()
	leaderAttr := new(Attr)
	CPUCycles.Configure(leaderAttr)
	leader := openFake(t, fs, leaderAttr, nil)

	single := openFake(t, fs, new(Attr), nil)
	if err := single.Enable(); err != nil {
		t.Fatal(err)
	}

	// Once it has members, the leader applies ioctls to the whole group.
	openFake(t, fs, new(Attr), leader)
	if err := leader.Enable(); err != nil {
		t.Fatal(err)
	}
	if fs.opens[2].groupFD != leader.fd {
		t.Fatalf("member opened with groupFD %d, want %d", fs.opens[2].groupFD, leader.fd)
	}

	var enables []fakeIoctl
	for _, io := range fs.ioctls {
		if io.req == unix.PERF_EVENT_IOC_ENABLE {
			enables = append(enables, io)
		}
	}
	want := []fakeIoctl{
		{fd: single.fd, req: unix.PERF_EVENT_IOC_ENABLE, arg: int(ioctlSingle)},
		{fd: leader.fd, req: unix.PERF_EVENT_IOC_ENABLE, arg: int(ioctlGroup)},
	}
	if diff := cmp.Diff(want, enables, cmp.AllowUnexported(fakeIoctl{})); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestCounterMeasure(t *testing.T) {
	fs := newFakeSys()
	attr := new(Attr)
	Instructions.Configure(attr)
	attr.CountFormat = CountFormat{Enabled: true, Running: true}
	c := openFake(t, fs, attr, nil)
	fs.reads[c.fd] = (&encoder{}).u64(500, 40, 30).bytes()

	ran := false
	got, err := c.Measure(func() { ran = true })
	if err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Fatal("Measure did not run f")
	}
	want := Count{Value: 500, TimeEnabled: 40, TimeRunning: 30, Label: "instructions"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}

	var reqs []uint
	for _, io := range fs.ioctls[1:] { // skip PERF_EVENT_IOC_ID
		reqs = append(reqs, io.req)
	}
	wantReqs := []uint{
		unix.PERF_EVENT_IOC_DISABLE,
		unix.PERF_EVENT_IOC_RESET,
		unix.PERF_EVENT_IOC_ENABLE,
		unix.PERF_EVENT_IOC_DISABLE,
	}
	if diff := cmp.Diff(wantReqs, reqs); diff != "" {
		t.Fatalf("ioctls (-want +got):\n%s", diff)
	}

	if _, err := c.ReadGroupCount(); err == nil {
		t.Fatal("ReadGroupCount succeeded on a non-group counter")
	}
}

func TestGroupOpenWith(t *testing.T) {
	fs := newFakeSys()
	g := Group{CountFormat: CountFormat{Lost: true}}
	g.Options.ExcludeKernel = true
	g.Add(Instructions, CPUCycles)

	leader, err := g.OpenWith(fs, CallingThread, AnyCPU)
	if err != nil {
		t.Fatal(err)
	}
	if len(fs.opens) != 3 {
		t.Fatalf("%d opens, want 3", len(fs.opens))
	}
	lo := fs.opens[0]
	if lo.attr.Type != unix.PERF_TYPE_SOFTWARE || lo.attr.Config != unix.PERF_COUNT_SW_DUMMY {
		t.Fatalf("leader opened with type %d, config %d", lo.attr.Type, lo.attr.Config)
	}
	wantFormat := uint64(FormatGroup | FormatID | FormatTotalTimeEnabled | FormatTotalTimeRunning | FormatLost)
	for i, o := range fs.opens {
		if o.attr.Read_format != wantFormat {
			t.Errorf("open %d: read_format %#x, want %#x", i, o.attr.Read_format, wantFormat)
		}
	}
	for i, o := range fs.opens[1:] {
		if o.groupFD != leader.fd {
			t.Errorf("member %d: groupFD %d, want %d", i, o.groupFD, leader.fd)
		}
		if o.attr.Bits&(1<<5) == 0 { // exclude_kernel
			t.Errorf("member %d: group Options not applied", i)
		}
	}

	members := leader.Members()
	if len(members) != 2 || members[0].Label() != "instructions" || members[1].Label() != "cpu-cycles" {
		t.Fatalf("got %d members", len(members))
	}

	// nr, enabled, running, then value, id, lost for the leader and
	// each member.
	fs.reads[leader.fd] = (&encoder{}).u64(3, 900, 900,
		0, fakeID(leader.fd), 0,
		1000, members[0].ID(), 0,
		2500, members[1].ID(), 1).bytes()
	gc, err := leader.ReadGroupCount()
	if err != nil {
		t.Fatal(err)
	}
	if gc.Len() != 2 {
		t.Fatalf("Len = %d, want 2", gc.Len())
	}
	want := []groupEntryValues{
		{1000, members[0].ID(), 0},
		{2500, members[1].ID(), 1},
	}
	if diff := cmp.Diff(want, entryValues(gc.Entries())); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if e, ok := gc.Get(members[1].ID()); !ok || e.Value() != 2500 {
		t.Fatalf("Get(%d) = %d, %t", members[1].ID(), e.Value(), ok)
	}

	if _, err := leader.ReadCount(); err == nil {
		t.Fatal("ReadCount succeeded on a group counter")
	}

	if err := leader.Close(); err != nil {
		t.Fatal(err)
	}
	wantClosed := []int{members[0].fd, members[1].fd, leader.fd}
	if diff := cmp.Diff(wantClosed, fs.closed); diff != "" {
		t.Fatalf("closed fds (-want +got):\n%s", diff)
	}
	if err := members[0].Enable(); !errors.Is(err, os.ErrClosed) {
		t.Fatalf("Enable on closed member: got %v", err)
	}
}

func TestGroupOpenMemberFailure(t *testing.T) {
	fs := &failingOpenSys{fakeSys: newFakeSys(), failAt: 2}
	var g Group
	g.Add(Instructions, CPUCycles)

	_, err := g.OpenWith(fs, CallingThread, AnyCPU)
	if !errors.Is(err, unix.ENOENT) {
		t.Fatalf("got %v, want ENOENT", err)
	}
	if !strings.Contains(err.Error(), `#1 ("cpu-cycles")`) {
		t.Fatalf("error %q does not name the failing event", err)
	}
	// The leader and the first member are closed.
	if diff := cmp.Diff([]int{4, 3}, fs.closed); diff != "" {
		t.Fatalf("closed fds (-want +got):\n%s", diff)
	}
}

// failingOpenSys fails the open call with index failAt.
type failingOpenSys struct {
	*fakeSys
	failAt int
	n      int
}

func (fs *failingOpenSys) PerfEventOpen(attr *unix.PerfEventAttr, pid, cpu, groupFD, flags int) (int, error) {
	n := fs.n
	fs.n++
	if n == fs.failAt {
		return -1, unix.ENOENT
	}
	return fs.fakeSys.PerfEventOpen(attr, pid, cpu, groupFD, flags)
}

func TestGroupOpenErrors(t *testing.T) {
	fs := newFakeSys()
	var empty Group
	if _, err := empty.OpenWith(fs, CallingThread, AnyCPU); err == nil {
		t.Fatal("opened an empty group")
	}

	var g Group
	g.Add(Instructions)
	g.Add(configuratorFunc(func(*Attr) error { return os.ErrNotExist }))
	g.Add(CPUCycles)
	if _, err := g.OpenWith(fs, CallingThread, AnyCPU); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("got %v, want the configuration error", err)
	}
	if len(fs.opens) != 0 {
		t.Fatalf("%d events opened despite the configuration error", len(fs.opens))
	}
}

func TestCounterMapRing(t *testing.T) {
	fs := newFakeSys()
	attr := new(Attr)
	Dummy.Configure(attr)
	attr.Options.Mmap = true
	c := openFake(t, fs, attr, nil)

	if _, err := c.ReadRawRecord(context.Background()); !errors.Is(err, errNoRing) {
		t.Fatalf("got %v before mapping, want errNoRing", err)
	}
	if _, err := c.MapRingPages(0); err == nil {
		t.Fatal("mapped a ring with no data pages")
	}
	r, err := c.MapRingPages(3)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(r.data), 4*os.Getpagesize(); got != want {
		t.Fatalf("data region of %d bytes, want %d", got, want)
	}
	if _, err := c.MapRingPages(1); err == nil {
		t.Fatal("mapped a second ring")
	}

	tr := &testRing{Ring: r, fs: fs}
	payload, want := testMmapRecord()
	tr.write(rawRecord(RecordTypeMmap, 2, payload))
	tr.publish()
	got, err := c.ReadRecord(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if mr := got.(*MmapRecord); mr.Filename != want.Filename || mr.Pid != want.Pid {
		t.Fatalf("got %+v", mr)
	}

	evfd := r.evfd
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{evfd, c.fd}, fs.closed); diff != "" {
		t.Fatalf("closed fds (-want +got):\n%s", diff)
	}
	if err := c.Close(); !errors.Is(err, os.ErrClosed) {
		t.Fatalf("second Close: got %v, want os.ErrClosed", err)
	}
	if _, err := c.ReadRecord(context.Background()); !errors.Is(err, os.ErrClosed) {
		t.Fatalf("ReadRecord after Close: got %v", err)
	}
}

func TestCounterSetOutput(t *testing.T) {
	fs := newFakeSys()
	a := openFake(t, fs, new(Attr), nil)
	b := openFake(t, fs, new(Attr), nil)
	if err := b.SetOutput(a); err != nil {
		t.Fatal(err)
	}
	if err := b.SetOutput(nil); err != nil {
		t.Fatal(err)
	}
	var got []int
	for _, io := range fs.ioctls {
		if io.req == unix.PERF_EVENT_IOC_SET_OUTPUT {
			got = append(got, io.arg)
		}
	}
	if diff := cmp.Diff([]int{a.fd, -1}, got); diff != "" {
		t.Fatalf("SET_OUTPUT targets (-want +got):\n%s", diff)
	}

	var zero Counter
	if err := zero.Enable(); !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("Enable on zero Counter: got %v", err)
	}
}

func TestOpenDefaultLabel(t *testing.T) {
	tests := []struct {
		attr *Attr
		want string
	}{
		{&Attr{Type: SoftwareEvent, Config: unix.PERF_COUNT_SW_CPU_CLOCK}, "cpu-clock"},
		{&Attr{Type: HardwareEvent, Config: unix.PERF_COUNT_HW_BRANCH_MISSES}, "branch-misses"},
		{&Attr{Type: HardwareCacheEvent, Config: 0 | 0<<8 | 1<<16}, "L1-dcache-load-misses"},
		{Breakpoint(BreakpointTypeW, 0x4000, BreakpointLength8), "breakpoint-w-0x4000"},
		{&Attr{Type: BreakpointEvent, BreakpointType: uint32(BreakpointTypeR), Config1: 0x10}, "breakpoint-r-0x10"},
		{&Attr{Type: 42, Config: 7}, "event-42-0x7"},
		{&Attr{Label: "mine", Type: HardwareEvent}, "mine"},
	}
	fs := newFakeSys()
	for _, tt := range tests {
		c := openFake(t, fs, tt.attr, nil)
		if c.Label() != tt.want {
			t.Errorf("got label %q, want %q", c.Label(), tt.want)
		}
	}
}
