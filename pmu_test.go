// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perf

import (
	"os"
	"path/filepath"
	"testing"
	"unsafe"
)

// fakeEventSource lays out an event source directory with a kprobe and
// a uprobe PMU.
func fakeEventSource(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	pmus := map[string]string{"kprobe": "6\n", "uprobe": "7\n"}
	for pmu, typ := range pmus {
		if err := os.MkdirAll(filepath.Join(root, pmu, "format"), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(root, pmu, "type"), []byte(typ), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(root, pmu, "format", "retprobe"), []byte("config:0\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestEventSourceCaches(t *testing.T) {
	root := fakeEventSource(t)
	es := NewEventSource(root)

	et, err := es.Type("kprobe")
	if err != nil {
		t.Fatal(err)
	}
	if et != 6 {
		t.Fatalf("kprobe type = %d, want 6", et)
	}
	if err := os.Remove(filepath.Join(root, "kprobe", "type")); err != nil {
		t.Fatal(err)
	}
	if et, err := es.Type("kprobe"); err != nil || et != 6 {
		t.Fatalf("second lookup: %d, %v", et, err)
	}
	if _, err := readEventType(root, "kprobe"); err == nil {
		t.Fatal("uncached lookup found a removed type file")
	}
	if _, err := es.Type("nosuchpmu"); err == nil {
		t.Fatal("resolved a missing PMU")
	}
}

func TestEventSourceRetprobeBit(t *testing.T) {
	root := fakeEventSource(t)
	es := NewEventSource(root)
	bit, err := es.RetprobeBit("uprobe")
	if err != nil {
		t.Fatal(err)
	}
	if bit != 1 {
		t.Fatalf("bit = %#x, want 1", bit)
	}

	p := filepath.Join(root, "kprobe", "format", "retprobe")
	if err := os.WriteFile(p, []byte("config1:3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := es.RetprobeBit("kprobe"); err == nil {
		t.Fatal("accepted a retprobe field outside config")
	}
}

func TestKprobeConfigure(t *testing.T) {
	es := NewEventSource(fakeEventSource(t))

	attr := new(Attr)
	kp := Kprobe{Func: "do_sys_open", Offset: 4, Retprobe: true, Source: es}
	if err := kp.Configure(attr); err != nil {
		t.Fatal(err)
	}
	if attr.Type != 6 || attr.Config != 1 || attr.Config2 != 4 || attr.Label != "kprobe:do_sys_open" {
		t.Fatalf("got %+v", attr)
	}
	sa := attr.sysAttr()
	if sa.Ext1 != uint64(uintptr(unsafe.Pointer(&attr.probeTarget[0]))) {
		t.Fatal("config1 does not point to the function name")
	}
	if string(attr.probeTarget) != "do_sys_open\x00" {
		t.Fatalf("probe target %q", attr.probeTarget)
	}

	// Reconfiguring for an address drops the function name.
	kp = Kprobe{Addr: 0xffffffff81000000, Source: es}
	if err := kp.Configure(attr); err != nil {
		t.Fatal(err)
	}
	sa = attr.sysAttr()
	if sa.Config != 0 || sa.Ext1 != 0 || sa.Ext2 != 0xffffffff81000000 {
		t.Fatalf("got config %#x, config1 %#x, config2 %#x", sa.Config, sa.Ext1, sa.Ext2)
	}
}

func TestUprobeConfigure(t *testing.T) {
	es := NewEventSource(fakeEventSource(t))
	attr := new(Attr)
	up := Uprobe{Path: "/bin/true", Offset: 0x1040, Source: es}
	if err := up.Configure(attr); err != nil {
		t.Fatal(err)
	}
	if attr.Type != 7 || attr.Config != 0 || attr.Config2 != 0x1040 || attr.Label != "uprobe:/bin/true+0x1040" {
		t.Fatalf("got %+v", attr)
	}
	if string(attr.probeTarget) != "/bin/true\x00" {
		t.Fatalf("probe target %q", attr.probeTarget)
	}
}
