// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perf

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unsafe"

	"github.com/perfevent/perf/internal/config"
	"golang.org/x/sys/unix"
)

// A Configurator configures event attributes. Implementations should only
// set the fields they need. See (*Group).Add for more details.
type Configurator interface {
	Configure(attr *Attr) error
}

type configuratorFunc func(attr *Attr) error

func (cf configuratorFunc) Configure(attr *Attr) error { return cf(attr) }

// HardwareCounter is a hardware performance counter.
type HardwareCounter uint64

// Hardware performance counters.
const (
	CPUCycles             HardwareCounter = unix.PERF_COUNT_HW_CPU_CYCLES
	Instructions          HardwareCounter = unix.PERF_COUNT_HW_INSTRUCTIONS
	CacheReferences       HardwareCounter = unix.PERF_COUNT_HW_CACHE_REFERENCES
	CacheMisses           HardwareCounter = unix.PERF_COUNT_HW_CACHE_MISSES
	BranchInstructions    HardwareCounter = unix.PERF_COUNT_HW_BRANCH_INSTRUCTIONS
	BranchMisses          HardwareCounter = unix.PERF_COUNT_HW_BRANCH_MISSES
	BusCycles             HardwareCounter = unix.PERF_COUNT_HW_BUS_CYCLES
	StalledCyclesFrontend HardwareCounter = unix.PERF_COUNT_HW_STALLED_CYCLES_FRONTEND
	StalledCyclesBackend  HardwareCounter = unix.PERF_COUNT_HW_STALLED_CYCLES_BACKEND
	RefCPUCycles          HardwareCounter = unix.PERF_COUNT_HW_REF_CPU_CYCLES
)

var hardwareLabels = map[HardwareCounter]string{
	CPUCycles:             "cpu-cycles",
	Instructions:          "instructions",
	CacheReferences:       "cache-references",
	CacheMisses:           "cache-misses",
	BranchInstructions:    "branch-instructions",
	BranchMisses:          "branch-misses",
	BusCycles:             "bus-cycles",
	StalledCyclesFrontend: "stalled-cycles-frontend",
	StalledCyclesBackend:  "stalled-cycles-backend",
	RefCPUCycles:          "ref-cycles",
}

func (hwc HardwareCounter) String() string {
	if l, ok := hardwareLabels[hwc]; ok {
		return l
	}
	return fmt.Sprintf("hardware-counter-%d", uint64(hwc))
}

// Configure configures attr to measure hwc. It sets the Label, Type, and
// Config fields on attr.
func (hwc HardwareCounter) Configure(attr *Attr) error {
	attr.Label = hwc.String()
	attr.Type = HardwareEvent
	attr.Config = uint64(hwc)
	return nil
}

// AllHardwareCounters returns a slice of all known hardware counters.
func AllHardwareCounters() []Configurator {
	return []Configurator{
		CPUCycles,
		Instructions,
		CacheReferences,
		CacheMisses,
		BranchInstructions,
		BranchMisses,
		BusCycles,
		StalledCyclesFrontend,
		StalledCyclesBackend,
		RefCPUCycles,
	}
}

// SoftwareCounter is a software performance counter.
type SoftwareCounter uint64

// Software performance counters.
const (
	CPUClock        SoftwareCounter = unix.PERF_COUNT_SW_CPU_CLOCK
	TaskClock       SoftwareCounter = unix.PERF_COUNT_SW_TASK_CLOCK
	PageFaults      SoftwareCounter = unix.PERF_COUNT_SW_PAGE_FAULTS
	ContextSwitches SoftwareCounter = unix.PERF_COUNT_SW_CONTEXT_SWITCHES
	CPUMigrations   SoftwareCounter = unix.PERF_COUNT_SW_CPU_MIGRATIONS
	MinorPageFaults SoftwareCounter = unix.PERF_COUNT_SW_PAGE_FAULTS_MIN
	MajorPageFaults SoftwareCounter = unix.PERF_COUNT_SW_PAGE_FAULTS_MAJ
	AlignmentFaults SoftwareCounter = unix.PERF_COUNT_SW_ALIGNMENT_FAULTS
	EmulationFaults SoftwareCounter = unix.PERF_COUNT_SW_EMULATION_FAULTS
	Dummy           SoftwareCounter = unix.PERF_COUNT_SW_DUMMY
	BPFOutput       SoftwareCounter = unix.PERF_COUNT_SW_BPF_OUTPUT
)

var softwareLabels = map[SoftwareCounter]string{
	CPUClock:        "cpu-clock",
	TaskClock:       "task-clock",
	PageFaults:      "page-faults",
	ContextSwitches: "context-switches",
	CPUMigrations:   "cpu-migrations",
	MinorPageFaults: "minor-faults",
	MajorPageFaults: "major-faults",
	AlignmentFaults: "alignment-faults",
	EmulationFaults: "emulation-faults",
	Dummy:           "dummy",
	BPFOutput:       "bpf-output",
}

func (swc SoftwareCounter) String() string {
	if l, ok := softwareLabels[swc]; ok {
		return l
	}
	return fmt.Sprintf("software-counter-%d", uint64(swc))
}

// Configure configures attr to measure swc. It sets the Label, Type, and
// Config fields on attr.
func (swc SoftwareCounter) Configure(attr *Attr) error {
	attr.Label = swc.String()
	attr.Type = SoftwareEvent
	attr.Config = uint64(swc)
	return nil
}

// AllSoftwareCounters returns a slice of all known software counters.
func AllSoftwareCounters() []Configurator {
	return []Configurator{
		CPUClock,
		TaskClock,
		PageFaults,
		ContextSwitches,
		CPUMigrations,
		MinorPageFaults,
		MajorPageFaults,
		AlignmentFaults,
		EmulationFaults,
		Dummy,
		BPFOutput,
	}
}

// Cache identifies a cache.
type Cache uint64

// Caches.
const (
	L1D  Cache = unix.PERF_COUNT_HW_CACHE_L1D
	L1I  Cache = unix.PERF_COUNT_HW_CACHE_L1I
	LL   Cache = unix.PERF_COUNT_HW_CACHE_LL
	DTLB Cache = unix.PERF_COUNT_HW_CACHE_DTLB
	ITLB Cache = unix.PERF_COUNT_HW_CACHE_ITLB
	BPU  Cache = unix.PERF_COUNT_HW_CACHE_BPU
	NODE Cache = unix.PERF_COUNT_HW_CACHE_NODE
)

var cacheLabels = [...]string{"L1-dcache", "L1-icache", "LLC", "dTLB", "iTLB", "branch", "node"}

func (c Cache) String() string {
	if int(c) < len(cacheLabels) {
		return cacheLabels[c]
	}
	return fmt.Sprintf("cache-%d", uint64(c))
}

// AllCaches returns a slice of all known cache types.
func AllCaches() []Cache {
	return []Cache{L1D, L1I, LL, DTLB, ITLB, BPU, NODE}
}

// CacheOp is a cache operation.
type CacheOp uint64

// Cache operations.
const (
	Read     CacheOp = unix.PERF_COUNT_HW_CACHE_OP_READ
	Write    CacheOp = unix.PERF_COUNT_HW_CACHE_OP_WRITE
	Prefetch CacheOp = unix.PERF_COUNT_HW_CACHE_OP_PREFETCH
)

var cacheOpLabels = [...]string{"loads", "stores", "prefetches"}

func (op CacheOp) String() string {
	if int(op) < len(cacheOpLabels) {
		return cacheOpLabels[op]
	}
	return fmt.Sprintf("op-%d", uint64(op))
}

// AllCacheOps returns a slice of all known cache operations.
func AllCacheOps() []CacheOp {
	return []CacheOp{Read, Write, Prefetch}
}

// CacheOpResult is the result of a cache operation.
type CacheOpResult uint64

// Cache operation results.
const (
	Access CacheOpResult = unix.PERF_COUNT_HW_CACHE_RESULT_ACCESS
	Miss   CacheOpResult = unix.PERF_COUNT_HW_CACHE_RESULT_MISS
)

// AllCacheOpResults returns a slice of all known cache operation results.
func AllCacheOpResults() []CacheOpResult {
	return []CacheOpResult{Access, Miss}
}

// A HardwareCacheCounter groups a cache, a cache operation, and an operation
// result. It measures the number of results for the specified op, on the
// specified cache.
type HardwareCacheCounter struct {
	Cache  Cache
	Op     CacheOp
	Result CacheOpResult
}

func (hwcc HardwareCacheCounter) String() string {
	if hwcc.Result == Miss {
		return fmt.Sprintf("%v-%v-misses", hwcc.Cache, strings.TrimSuffix(hwcc.Op.String(), "s"))
	}
	return fmt.Sprintf("%v-%v", hwcc.Cache, hwcc.Op)
}

// Configure configures attr to measure hwcc. It sets the Label, Type, and
// Config fields on attr.
func (hwcc HardwareCacheCounter) Configure(attr *Attr) error {
	attr.Label = hwcc.String()
	attr.Type = HardwareCacheEvent
	attr.Config = uint64(hwcc.Cache) | uint64(hwcc.Op)<<8 | uint64(hwcc.Result)<<16
	return nil
}

// HardwareCacheCounters returns cache counters which measure the cartesian
// product of the specified caches, operations and results.
func HardwareCacheCounters(caches []Cache, ops []CacheOp, results []CacheOpResult) []Configurator {
	counters := make([]Configurator, 0, len(caches)*len(ops)*len(results))
	for _, cache := range caches {
		for _, op := range ops {
			for _, result := range results {
				c := HardwareCacheCounter{
					Cache:  cache,
					Op:     op,
					Result: result,
				}
				counters = append(counters, c)
			}
		}
	}
	return counters
}

// Tracepoint returns a Configurator for the specified category and event.
// The returned Configurator sets the Label, Type, and Config fields on attr.
//
// The tracepoint ID is read from <tracefs>/events/<category>/<event>/id,
// where the tracefs root comes from the PERF_TRACEFS environment variable.
func Tracepoint(category, event string) Configurator {
	return configuratorFunc(func(attr *Attr) error {
		cfg, err := readUint(filepath.Join(config.Global.TraceFS, "events", category, event, "id"), 64)
		if err != nil {
			return err
		}
		attr.Label = category + ":" + event
		attr.Type = TracepointEvent
		attr.Config = cfg
		return nil
	})
}

// defaultLabel computes a label for an Attr configured without one.
func defaultLabel(attr *Attr) string {
	switch attr.Type {
	case HardwareEvent:
		return HardwareCounter(attr.Config).String()
	case SoftwareEvent:
		return SoftwareCounter(attr.Config).String()
	case HardwareCacheEvent:
		return HardwareCacheCounter{
			Cache:  Cache(attr.Config & 0xff),
			Op:     CacheOp(attr.Config >> 8 & 0xff),
			Result: CacheOpResult(attr.Config >> 16 & 0xff),
		}.String()
	case BreakpointEvent:
		return fmt.Sprintf("breakpoint-%v-%#x", BreakpointType(attr.BreakpointType), attr.Config1)
	case TracepointEvent:
		return fmt.Sprintf("tracepoint-%d", attr.Config)
	}
	return fmt.Sprintf("event-%d-%#x", uint32(attr.Type), attr.Config)
}

// readUint reads a decimal number, followed by an optional newline,
// from the file at path.
func readUint(path string, bitSize int) (uint64, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(strings.TrimSpace(string(content)), 10, bitSize)
	if err != nil {
		return 0, fmt.Errorf("perf: parsing %s: %w", path, err)
	}
	return n, nil
}

// Breakpoint returns an Attr configured to record breakpoint events.
//
// typ is the type of the breakpoint.
//
// addr is the address of the breakpoint. For execution breakpoints, this
// is the memory address of the instruction of interest; for read and write
// breakpoints, it is the memory address of the memory location of interest.
//
// length is the length of the breakpoint being measured.
//
// The returned Attr can be reconfigured after it is returned. Breakpoint
// sets the Type, BreakpointType, Config1 and Config2 fields on attr.
func Breakpoint(typ BreakpointType, addr uint64, length BreakpointLength) *Attr {
	return &Attr{
		Label:          fmt.Sprintf("breakpoint-%v-%#x", typ, addr),
		Type:           BreakpointEvent,
		BreakpointType: uint32(typ),
		Config1:        addr,
		Config2:        uint64(length),
	}
}

// BreakpointType is the type of a breakpoint.
type BreakpointType uint32

// Breakpoint types. Values are |-ed together. The combination of
// BreakpointTypeR or BreakpointTypeW with BreakpointTypeX is invalid.
const (
	BreakpointTypeEmpty BreakpointType = 0x0
	BreakpointTypeR     BreakpointType = 0x1
	BreakpointTypeW     BreakpointType = 0x2
	BreakpointTypeRW    BreakpointType = BreakpointTypeR | BreakpointTypeW
	BreakpointTypeX     BreakpointType = 0x4
)

func (typ BreakpointType) String() string {
	switch typ {
	case BreakpointTypeEmpty:
		return "empty"
	case BreakpointTypeR:
		return "r"
	case BreakpointTypeW:
		return "w"
	case BreakpointTypeRW:
		return "rw"
	case BreakpointTypeX:
		return "x"
	}
	return fmt.Sprintf("%#x", uint32(typ))
}

// BreakpointLength is the length of the breakpoint being measured.
type BreakpointLength uint64

// Breakpoint length values.
const (
	BreakpointLength1 BreakpointLength = 1
	BreakpointLength2 BreakpointLength = 2
	BreakpointLength4 BreakpointLength = 4
	BreakpointLength8 BreakpointLength = 8
)

// ExecutionBreakpointLength returns the length of an execution breakpoint:
// sizeof(long) on the host.
func ExecutionBreakpointLength() BreakpointLength {
	var x uintptr
	return BreakpointLength(unsafe.Sizeof(x))
}

// ExecutionBreakpoint returns an Attr configured to record an execution
// breakpoint at the specified address.
func ExecutionBreakpoint(addr uint64) *Attr {
	return Breakpoint(BreakpointTypeX, addr, ExecutionBreakpointLength())
}
