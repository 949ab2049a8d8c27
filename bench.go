// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perf

import (
	"runtime"
	"testing"
)

// Stopper implements the Stop() method.
type Stopper func()

// Stop calls the given stopper.
func (s Stopper) Stop() { s() }

// Benchmark counts instructions and CPU cycles on the calling thread until
// the returned Stopper is stopped, then reports instrs/cycle, instrs/op and
// cycles/op on b. The goroutine is locked to its thread in the meantime.
//
//	func BenchmarkMultiply(b *testing.B) {
//		defer perf.Benchmark(b).Stop()
//		for i := 0; i < b.N; i++ {
//			v += 10 * x
//		}
//	}
func Benchmark(b *testing.B) Stopper {
	var g Group
	g.Options.ExcludeKernel = true
	g.Options.ExcludeHypervisor = true
	g.Add(Instructions, CPUCycles)

	leader, err := g.Open(CallingThread, AnyCPU)
	if err != nil {
		b.Fatal(err)
	}
	if err := leader.Disable(); err != nil {
		leader.Close()
		b.Fatal(err)
	}
	if err := leader.Reset(); err != nil {
		leader.Close()
		b.Fatal(err)
	}
	runtime.LockOSThread()
	if err := leader.Enable(); err != nil {
		runtime.UnlockOSThread()
		leader.Close()
		b.Fatal(err)
	}

	return Stopper(func() {
		defer leader.Close()
		err := leader.Disable()
		runtime.UnlockOSThread()
		if err != nil {
			b.Fatal(err)
		}
		gc, err := leader.ReadGroupCount()
		if err != nil {
			b.Fatal(err)
		}
		instrs := float64(gc.At(0).Value())
		cycles := float64(gc.At(1).Value())
		b.ReportMetric(instrs/cycles, "instrs/cycle")
		b.ReportMetric(instrs/float64(b.N), "instrs/op")
		b.ReportMetric(cycles/float64(b.N), "cycles/op")
	})
}
