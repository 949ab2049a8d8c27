// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perf_test

import (
	"os/exec"
	"testing"

	"github.com/perfevent/perf"
)

func TestCommand(t *testing.T) {
	requires(t, paranoid(1), hardwarePMU)

	cmd := exec.Command("echo", "hello world")

	fa := &perf.Attr{
		CountFormat: perf.CountFormat{
			Running: true,
			ID:      true,
		},
	}
	perf.Instructions.Configure(fa)
	fa.Options.ExcludeKernel = true
	fa.Options.ExcludeHypervisor = true

	count, err := perf.Command(fa, cmd, perf.AnyCPU, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Logf("count = %v", count.Value)

	// The exact value is unknown, but echo runs well over a thousand
	// user space instructions.
	if count.Value < 1000 {
		t.Fatalf("counter read %d, want at least 1000", count.Value)
	}
}

func TestCommandGroup(t *testing.T) {
	requires(t, paranoid(1), hardwarePMU)

	cmd := exec.Command("echo", "hello world")

	var g perf.Group
	g.CountFormat = perf.CountFormat{
		Running: true,
		ID:      true,
	}
	g.Options.ExcludeKernel = true
	g.Options.ExcludeHypervisor = true
	g.Add(perf.Instructions, perf.CPUCycles)

	counts, err := g.Command(cmd, perf.AnyCPU)
	if err != nil {
		t.Fatal(err)
	}
	for i, e := range counts.Entries() {
		t.Logf("entry %d: %d", i, e.Value())
		if e.Value() < 1000 {
			t.Fatalf("entry %d read %d, want at least 1000", i, e.Value())
		}
	}
}
