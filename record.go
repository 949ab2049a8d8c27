// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perf

import (
	"encoding/binary"
	"fmt"

	"github.com/golang/glog"
	"golang.org/x/sys/unix"
)

// ParseConfig is the subset of event attributes which determines the
// layout of records in the ring buffer. See (*Attr).ParseConfig.
type ParseConfig struct {
	SampleType   SampleType
	ReadFormat   ReadFormat
	SampleIDAll  bool
	BranchFormat BranchSampleFormat
	RegsUser     uint64 // register mask for SampleTypeRegsUser
	RegsIntr     uint64 // register mask for SampleTypeRegsIntr
}

// Record is the interface implemented by all record types.
type Record interface {
	Header() RecordHeader
	DecodeFrom(hdr RecordHeader, c *Cursor, cfg *ParseConfig)
}

// ParseRecord decodes the payload of a record with the given header.
//
// If the payload is too short for the fields cfg calls for, ParseRecord
// returns an error wrapping ErrTruncated. If bytes are left over after
// decoding, the layout described by cfg does not match the one the
// kernel used, and ParseRecord panics.
func ParseRecord(cfg ParseConfig, hdr RecordHeader, c *Cursor) (Record, error) {
	rec := newRecord(hdr.Type)
	rec.DecodeFrom(hdr, c, &cfg)
	if err := c.Err(); err != nil {
		glog.V(1).Infof("perf: decoding %v record of size %d: %v", hdr.Type, hdr.Size, err)
		return nil, fmt.Errorf("perf: decoding %v record: %w", hdr.Type, err)
	}
	if n := c.Len(); n != 0 {
		panic(fmt.Sprintf("perf: %d bytes of unexpected trailing data in %v record", n, hdr.Type))
	}
	return rec, nil
}

// RecordType is the type of an overflow record.
type RecordType uint32

// Known record types.
const (
	RecordTypeMmap          RecordType = unix.PERF_RECORD_MMAP
	RecordTypeLost          RecordType = unix.PERF_RECORD_LOST
	RecordTypeComm          RecordType = unix.PERF_RECORD_COMM
	RecordTypeExit          RecordType = unix.PERF_RECORD_EXIT
	RecordTypeThrottle      RecordType = unix.PERF_RECORD_THROTTLE
	RecordTypeUnthrottle    RecordType = unix.PERF_RECORD_UNTHROTTLE
	RecordTypeFork          RecordType = unix.PERF_RECORD_FORK
	RecordTypeRead          RecordType = unix.PERF_RECORD_READ
	RecordTypeSample        RecordType = unix.PERF_RECORD_SAMPLE
	RecordTypeMmap2         RecordType = unix.PERF_RECORD_MMAP2
	RecordTypeAux           RecordType = unix.PERF_RECORD_AUX
	RecordTypeItraceStart   RecordType = unix.PERF_RECORD_ITRACE_START
	RecordTypeLostSamples   RecordType = unix.PERF_RECORD_LOST_SAMPLES
	RecordTypeSwitch        RecordType = unix.PERF_RECORD_SWITCH
	RecordTypeSwitchCPUWide RecordType = unix.PERF_RECORD_SWITCH_CPU_WIDE
	RecordTypeNamespaces    RecordType = unix.PERF_RECORD_NAMESPACES
	RecordTypeKsymbol       RecordType = unix.PERF_RECORD_KSYMBOL
	RecordTypeBPFEvent      RecordType = unix.PERF_RECORD_BPF_EVENT
	RecordTypeCgroup        RecordType = unix.PERF_RECORD_CGROUP
	RecordTypeTextPoke      RecordType = unix.PERF_RECORD_TEXT_POKE
	RecordTypeAuxOutputHWID RecordType = unix.PERF_RECORD_AUX_OUTPUT_HW_ID
)

var recordTypeNames = map[RecordType]string{
	RecordTypeMmap:          "mmap",
	RecordTypeLost:          "lost",
	RecordTypeComm:          "comm",
	RecordTypeExit:          "exit",
	RecordTypeThrottle:      "throttle",
	RecordTypeUnthrottle:    "unthrottle",
	RecordTypeFork:          "fork",
	RecordTypeRead:          "read",
	RecordTypeSample:        "sample",
	RecordTypeMmap2:         "mmap2",
	RecordTypeAux:           "aux",
	RecordTypeItraceStart:   "itrace_start",
	RecordTypeLostSamples:   "lost_samples",
	RecordTypeSwitch:        "switch",
	RecordTypeSwitchCPUWide: "switch_cpu_wide",
	RecordTypeNamespaces:    "namespaces",
	RecordTypeKsymbol:       "ksymbol",
	RecordTypeBPFEvent:      "bpf_event",
	RecordTypeCgroup:        "cgroup",
	RecordTypeTextPoke:      "text_poke",
	RecordTypeAuxOutputHWID: "aux_output_hw_id",
}

func (rt RecordType) String() string {
	if name, ok := recordTypeNames[rt]; ok {
		return name
	}
	return fmt.Sprintf("RecordType(%d)", uint32(rt))
}

var newRecordFuncs = map[RecordType]func() Record{
	RecordTypeMmap:          func() Record { return &MmapRecord{} },
	RecordTypeLost:          func() Record { return &LostRecord{} },
	RecordTypeComm:          func() Record { return &CommRecord{} },
	RecordTypeExit:          func() Record { return &ExitRecord{} },
	RecordTypeThrottle:      func() Record { return &ThrottleRecord{} },
	RecordTypeUnthrottle:    func() Record { return &UnthrottleRecord{} },
	RecordTypeFork:          func() Record { return &ForkRecord{} },
	RecordTypeRead:          func() Record { return &ReadRecord{} },
	RecordTypeSample:        func() Record { return &SampleRecord{} },
	RecordTypeMmap2:         func() Record { return &Mmap2Record{} },
	RecordTypeAux:           func() Record { return &AuxRecord{} },
	RecordTypeItraceStart:   func() Record { return &ItraceStartRecord{} },
	RecordTypeLostSamples:   func() Record { return &LostSamplesRecord{} },
	RecordTypeSwitch:        func() Record { return &SwitchRecord{} },
	RecordTypeSwitchCPUWide: func() Record { return &SwitchCPUWideRecord{} },
	RecordTypeNamespaces:    func() Record { return &NamespacesRecord{} },
	RecordTypeKsymbol:       func() Record { return &KsymbolRecord{} },
	RecordTypeBPFEvent:      func() Record { return &BPFEventRecord{} },
	RecordTypeCgroup:        func() Record { return &CgroupRecord{} },
	RecordTypeTextPoke:      func() Record { return &TextPokeRecord{} },
	RecordTypeAuxOutputHWID: func() Record { return &AuxOutputHWIDRecord{} },
}

// newRecord returns an empty Record of the given type. Types this package
// does not know about produce an *UnknownRecord.
func newRecord(rt RecordType) Record {
	if f, ok := newRecordFuncs[rt]; ok {
		return f()
	}
	return &UnknownRecord{}
}

// RecordHeader is the header present in every overflow record.
type RecordHeader struct {
	Type RecordType
	Misc uint16
	Size uint16
}

func parseRecordHeader(b [recordHeaderSize]byte) RecordHeader {
	return RecordHeader{
		Type: RecordType(binary.NativeEndian.Uint32(b[0:4])),
		Misc: binary.NativeEndian.Uint16(b[4:6]),
		Size: binary.NativeEndian.Uint16(b[6:8]),
	}
}

// Header returns rh itself, so that types which embed a RecordHeader
// automatically implement a part of the Record interface.
func (rh RecordHeader) Header() RecordHeader { return rh }

// CPUMode returns the CPU mode in use when the sample happened.
func (rh RecordHeader) CPUMode() CPUMode {
	return CPUMode(rh.Misc & unix.PERF_RECORD_MISC_CPUMODE_MASK)
}

// CPUMode is a CPU operation mode.
type CPUMode uint8

// Known CPU modes.
const (
	UnknownMode     CPUMode = unix.PERF_RECORD_MISC_CPUMODE_UNKNOWN
	KernelMode      CPUMode = unix.PERF_RECORD_MISC_KERNEL
	UserMode        CPUMode = unix.PERF_RECORD_MISC_USER
	HypervisorMode  CPUMode = unix.PERF_RECORD_MISC_HYPERVISOR
	GuestKernelMode CPUMode = unix.PERF_RECORD_MISC_GUEST_KERNEL
	GuestUserMode   CPUMode = unix.PERF_RECORD_MISC_GUEST_USER
)

// Misc bits. Several share a value; their meaning depends on the record
// type.
const (
	miscMmapData         = unix.PERF_RECORD_MISC_MMAP_DATA
	miscCommExec         = unix.PERF_RECORD_MISC_COMM_EXEC
	miscForkExec         = unix.PERF_RECORD_MISC_FORK_EXEC
	miscSwitchOut        = unix.PERF_RECORD_MISC_SWITCH_OUT
	miscExactIP          = unix.PERF_RECORD_MISC_EXACT_IP
	miscSwitchOutPreempt = unix.PERF_RECORD_MISC_SWITCH_OUT_PREEMPT
	miscMmapBuildID      = unix.PERF_RECORD_MISC_MMAP_BUILD_ID
)

// SampleID identifies when and where a record was collected.
//
// A SampleID trails every non-sample record if Options.SampleIDAll is set
// on the associated event. Which fields are present depends on the
// SampleFormat; use Has to tell a present zero from an absent field.
type SampleID struct {
	Pid      uint32
	Tid      uint32
	Time     uint64
	ID       uint64 // also holds the identifier, if requested
	StreamID uint64
	CPU      uint32

	present SampleType
}

// Has reports whether the field selected by t was present in the record.
func (id SampleID) Has(t SampleType) bool {
	return id.present&t != 0
}

// sampleID decodes a SampleID trailer, if cfg asks for one.
func (c *Cursor) sampleID(id *SampleID, cfg *ParseConfig) {
	if !cfg.SampleIDAll {
		return
	}
	st := cfg.SampleType
	if st&SampleTypeTID != 0 {
		c.uint32(&id.Pid, &id.Tid)
		id.present |= SampleTypeTID
	}
	if st&SampleTypeTime != 0 {
		c.uint64(&id.Time)
		id.present |= SampleTypeTime
	}
	if st&SampleTypeID != 0 {
		c.uint64(&id.ID)
		id.present |= SampleTypeID
	}
	if st&SampleTypeStreamID != 0 {
		c.uint64(&id.StreamID)
		id.present |= SampleTypeStreamID
	}
	if st&SampleTypeCPU != 0 {
		var res uint32
		c.uint32(&id.CPU, &res)
		id.present |= SampleTypeCPU
	}
	if st&SampleTypeIdentifier != 0 {
		c.uint64(&id.ID)
		id.present |= SampleTypeIdentifier | SampleTypeID
	}
}

// count decodes a non-group read_format value.
func (c *Cursor) count(cnt *Count, f ReadFormat) {
	c.uint64(&cnt.Value)
	if f&FormatTotalTimeEnabled != 0 {
		c.duration(&cnt.TimeEnabled)
	}
	if f&FormatTotalTimeRunning != 0 {
		c.duration(&cnt.TimeRunning)
	}
	c.uint64If(f&FormatID != 0, &cnt.ID)
	c.uint64If(f&FormatLost != 0, &cnt.Lost)
}

// groupCount decodes a group read_format value.
func (c *Cursor) groupCount(f ReadFormat) *GroupCount {
	var nr uint64
	c.uint64(&nr)
	if c.err != nil {
		return nil
	}
	if nr > uint64(c.Len()/8) {
		c.err = ErrTruncated
		return nil
	}
	words := make([]uint64, 1, f.groupReadLen(int(nr)))
	words[0] = nr
	words = append(words, c.uint64s(uint64(cap(words)-1))...)
	if c.err != nil {
		return nil
	}
	return newGroupCountWords(words, f)
}

// MmapRecord (PERF_RECORD_MMAP) records PROT_EXEC mappings such that
// user-space IPs can be correlated to code.
type MmapRecord struct {
	RecordHeader
	Pid        uint32 // process ID
	Tid        uint32 // thread ID
	Addr       uint64 // address of the allocated memory
	Len        uint64 // length of the allocated memory
	PageOffset uint64 // page offset of the allocated memory
	Filename   string // describes backing of allocated memory
	SampleID
}

func (mr *MmapRecord) DecodeFrom(hdr RecordHeader, c *Cursor, cfg *ParseConfig) {
	mr.RecordHeader = hdr
	c.uint32(&mr.Pid, &mr.Tid)
	c.uint64(&mr.Addr)
	c.uint64(&mr.Len)
	c.uint64(&mr.PageOffset)
	c.string(&mr.Filename)
	c.sampleID(&mr.SampleID, cfg)
}

// Executable returns a boolean indicating whether the mapping is executable.
func (mr *MmapRecord) Executable() bool {
	// The data bit is set when the mapping is _not_ executable.
	return mr.RecordHeader.Misc&miscMmapData == 0
}

// LostRecord (PERF_RECORD_LOST) indicates when events are lost.
type LostRecord struct {
	RecordHeader
	ID   uint64 // the unique ID for the lost events
	Lost uint64 // the number of lost events
	SampleID
}

func (lr *LostRecord) DecodeFrom(hdr RecordHeader, c *Cursor, cfg *ParseConfig) {
	lr.RecordHeader = hdr
	c.uint64(&lr.ID)
	c.uint64(&lr.Lost)
	c.sampleID(&lr.SampleID, cfg)
}

// CommRecord (PERF_RECORD_COMM) indicates a change in the process name.
type CommRecord struct {
	RecordHeader
	Pid     uint32 // process ID
	Tid     uint32 // threadID
	NewName string // the new name of the process
	SampleID
}

func (cr *CommRecord) DecodeFrom(hdr RecordHeader, c *Cursor, cfg *ParseConfig) {
	cr.RecordHeader = hdr
	c.uint32(&cr.Pid, &cr.Tid)
	c.string(&cr.NewName)
	c.sampleID(&cr.SampleID, cfg)
}

// WasExec returns a boolean indicating whether a process name change
// was caused by an exec(2) system call.
func (cr *CommRecord) WasExec() bool {
	return cr.RecordHeader.Misc&miscCommExec != 0
}

// ExitRecord (PERF_RECORD_EXIT) indicates a process exit event.
type ExitRecord struct {
	RecordHeader
	Pid  uint32 // process ID
	Ppid uint32 // parent process ID
	Tid  uint32 // thread ID
	Ptid uint32 // parent thread ID
	Time uint64 // time when the process exited
	SampleID
}

func (er *ExitRecord) DecodeFrom(hdr RecordHeader, c *Cursor, cfg *ParseConfig) {
	er.RecordHeader = hdr
	c.uint32(&er.Pid, &er.Ppid)
	c.uint32(&er.Tid, &er.Ptid)
	c.uint64(&er.Time)
	c.sampleID(&er.SampleID, cfg)
}

// ThrottleRecord (PERF_RECORD_THROTTLE) indicates a throttle event.
type ThrottleRecord struct {
	RecordHeader
	Time     uint64
	ID       uint64
	StreamID uint64
	SampleID
}

func (tr *ThrottleRecord) DecodeFrom(hdr RecordHeader, c *Cursor, cfg *ParseConfig) {
	tr.RecordHeader = hdr
	c.uint64(&tr.Time)
	c.uint64(&tr.ID)
	c.uint64(&tr.StreamID)
	c.sampleID(&tr.SampleID, cfg)
}

// UnthrottleRecord (PERF_RECORD_UNTHROTTLE) indicates an unthrottle event.
type UnthrottleRecord struct {
	RecordHeader
	Time     uint64
	ID       uint64
	StreamID uint64
	SampleID
}

func (ur *UnthrottleRecord) DecodeFrom(hdr RecordHeader, c *Cursor, cfg *ParseConfig) {
	ur.RecordHeader = hdr
	c.uint64(&ur.Time)
	c.uint64(&ur.ID)
	c.uint64(&ur.StreamID)
	c.sampleID(&ur.SampleID, cfg)
}

// ForkRecord (PERF_RECORD_FORK) indicates a fork event.
type ForkRecord struct {
	RecordHeader
	Pid  uint32 // process ID
	Ppid uint32 // parent process ID
	Tid  uint32 // thread ID
	Ptid uint32 // parent thread ID
	Time uint64 // time when the fork occurred
	SampleID
}

func (fr *ForkRecord) DecodeFrom(hdr RecordHeader, c *Cursor, cfg *ParseConfig) {
	fr.RecordHeader = hdr
	c.uint32(&fr.Pid, &fr.Ppid)
	c.uint32(&fr.Tid, &fr.Ptid)
	c.uint64(&fr.Time)
	c.sampleID(&fr.SampleID, cfg)
}

// WasExec reports whether the new task came from an exec(2) rather than
// a fork.
func (fr *ForkRecord) WasExec() bool {
	return fr.RecordHeader.Misc&miscForkExec != 0
}

// ReadRecord (PERF_RECORD_READ) indicates a read event, generated for
// inherited events when a child exits.
//
// Count is populated for events without CountFormat.Group; Group is
// populated otherwise.
type ReadRecord struct {
	RecordHeader
	Pid   uint32 // process ID
	Tid   uint32 // thread ID
	Count Count
	Group *GroupCount
	SampleID
}

func (rr *ReadRecord) DecodeFrom(hdr RecordHeader, c *Cursor, cfg *ParseConfig) {
	rr.RecordHeader = hdr
	c.uint32(&rr.Pid, &rr.Tid)
	if cfg.ReadFormat&FormatGroup != 0 {
		rr.Group = c.groupCount(cfg.ReadFormat)
	} else {
		c.count(&rr.Count, cfg.ReadFormat)
	}
	c.sampleID(&rr.SampleID, cfg)
}

// Mmap2Record (PERF_RECORD_MMAP2) includes extended information on mmap(2)
// calls returning executable mappings. It is similar to MmapRecord, but
// includes extra values, allowing unique identification of shared mappings.
//
// If HasBuildID reports true, the kernel sent a build ID in place of the
// device and inode fields.
type Mmap2Record struct {
	RecordHeader
	Pid             uint32 // process ID
	Tid             uint32 // thread ID
	Addr            uint64 // address of the allocated memory
	Len             uint64 // length of the allocated memory
	PageOffset      uint64 // page offset of the allocated memory
	MajorID         uint32 // major ID of the underlying device
	MinorID         uint32 // minor ID of the underlying device
	Inode           uint64 // inode number
	InodeGeneration uint64 // inode generation
	BuildID         []byte
	Prot            uint32 // protection information
	Flags           uint32 // flags information
	Filename        string // describes the backing of the allocated memory
	SampleID
}

func (mr *Mmap2Record) DecodeFrom(hdr RecordHeader, c *Cursor, cfg *ParseConfig) {
	mr.RecordHeader = hdr
	c.uint32(&mr.Pid, &mr.Tid)
	c.uint64(&mr.Addr)
	c.uint64(&mr.Len)
	c.uint64(&mr.PageOffset)
	if mr.HasBuildID() {
		// u8 size, u8 reserved[3], u8 build_id[20]
		b := c.bytes(24)
		if b != nil {
			n := int(b[0])
			if n > 20 {
				n = 20
			}
			mr.BuildID = b[4 : 4+n]
		}
	} else {
		c.uint32(&mr.MajorID, &mr.MinorID)
		c.uint64(&mr.Inode)
		c.uint64(&mr.InodeGeneration)
	}
	c.uint32(&mr.Prot, &mr.Flags)
	c.string(&mr.Filename)
	c.sampleID(&mr.SampleID, cfg)
}

// Executable returns a boolean indicating whether the mapping is executable.
func (mr *Mmap2Record) Executable() bool {
	// The data bit is set when the mapping is _not_ executable.
	return mr.RecordHeader.Misc&miscMmapData == 0
}

// HasBuildID reports whether the record carries a build ID.
func (mr *Mmap2Record) HasBuildID() bool {
	return mr.RecordHeader.Misc&miscMmapBuildID != 0
}

// AuxRecord (PERF_RECORD_AUX) reports that new data is available in the
// AUX buffer region.
type AuxRecord struct {
	RecordHeader
	Offset uint64  // offset in the AUX mmap region where the new data begins
	Size   uint64  // size of data made available
	Flags  AuxFlag // describes the update
	SampleID
}

// AuxFlag describes an update to a record in the AUX buffer region.
type AuxFlag uint64

// AuxFlag bits.
const (
	AuxTruncated AuxFlag = unix.PERF_AUX_FLAG_TRUNCATED // record was truncated to fit
	AuxOverwrite AuxFlag = unix.PERF_AUX_FLAG_OVERWRITE // snapshot from overwrite mode
	AuxPartial   AuxFlag = unix.PERF_AUX_FLAG_PARTIAL   // record contains gaps
	AuxCollision AuxFlag = unix.PERF_AUX_FLAG_COLLISION // sample collided with another
)

func (ar *AuxRecord) DecodeFrom(hdr RecordHeader, c *Cursor, cfg *ParseConfig) {
	ar.RecordHeader = hdr
	c.uint64(&ar.Offset)
	c.uint64(&ar.Size)
	var flag uint64
	c.uint64(&flag)
	ar.Flags = AuxFlag(flag)
	c.sampleID(&ar.SampleID, cfg)
}

// ItraceStartRecord (PERF_RECORD_ITRACE_START) indicates which process
// has initiated an instruction trace event, allowing tools to correlate
// instruction addresses in the AUX buffer with the proper executable.
type ItraceStartRecord struct {
	RecordHeader
	Pid uint32 // process ID of the thread starting an instruction trace
	Tid uint32 // thread ID of the thread starting an instruction trace
	SampleID
}

func (ir *ItraceStartRecord) DecodeFrom(hdr RecordHeader, c *Cursor, cfg *ParseConfig) {
	ir.RecordHeader = hdr
	c.uint32(&ir.Pid, &ir.Tid)
	c.sampleID(&ir.SampleID, cfg)
}

// LostSamplesRecord (PERF_RECORD_LOST_SAMPLES) indicates some number of
// samples that may have been lost, when using hardware sampling such as
// Intel PEBS.
type LostSamplesRecord struct {
	RecordHeader
	Lost uint64 // the number of potentially lost samples
	SampleID
}

func (lr *LostSamplesRecord) DecodeFrom(hdr RecordHeader, c *Cursor, cfg *ParseConfig) {
	lr.RecordHeader = hdr
	c.uint64(&lr.Lost)
	c.sampleID(&lr.SampleID, cfg)
}

// SwitchRecord (PERF_RECORD_SWITCH) indicates that a context switch has
// happened.
type SwitchRecord struct {
	RecordHeader
	SampleID
}

func (sr *SwitchRecord) DecodeFrom(hdr RecordHeader, c *Cursor, cfg *ParseConfig) {
	sr.RecordHeader = hdr
	c.sampleID(&sr.SampleID, cfg)
}

// Out returns a boolean indicating whether the context switch was
// out of the current process, or into the current process.
func (sr *SwitchRecord) Out() bool {
	return sr.RecordHeader.Misc&miscSwitchOut != 0
}

// Preempted indicates whether the thread was preempted in TASK_RUNNING state.
func (sr *SwitchRecord) Preempted() bool {
	return sr.RecordHeader.Misc&miscSwitchOutPreempt != 0
}

// SwitchCPUWideRecord (PERF_RECORD_SWITCH_CPU_WIDE) indicates a context
// switch, but only occurs when sampling in CPU-wide mode. It provides
// information on the process being switched to / from.
type SwitchCPUWideRecord struct {
	RecordHeader
	Pid uint32
	Tid uint32
	SampleID
}

func (sr *SwitchCPUWideRecord) DecodeFrom(hdr RecordHeader, c *Cursor, cfg *ParseConfig) {
	sr.RecordHeader = hdr
	c.uint32(&sr.Pid, &sr.Tid)
	c.sampleID(&sr.SampleID, cfg)
}

// Out returns a boolean indicating whether the context switch was
// out of the current process, or into the current process.
func (sr *SwitchCPUWideRecord) Out() bool {
	return sr.RecordHeader.Misc&miscSwitchOut != 0
}

// Preempted indicates whether the thread was preempted in TASK_RUNNING state.
func (sr *SwitchCPUWideRecord) Preempted() bool {
	return sr.RecordHeader.Misc&miscSwitchOutPreempt != 0
}

// Namespace identifies one namespace of a task.
type Namespace struct {
	Dev   uint64
	Inode uint64
}

// NamespacesRecord (PERF_RECORD_NAMESPACES) describes the namespaces of
// a new task.
type NamespacesRecord struct {
	RecordHeader
	Pid        uint32
	Tid        uint32
	Namespaces []Namespace
	SampleID
}

func (nr *NamespacesRecord) DecodeFrom(hdr RecordHeader, c *Cursor, cfg *ParseConfig) {
	nr.RecordHeader = hdr
	c.uint32(&nr.Pid, &nr.Tid)
	var num uint64
	c.uint64(&num)
	words := c.uint64Tuples(num, 2)
	if words != nil {
		nr.Namespaces = make([]Namespace, num)
		for i := range nr.Namespaces {
			nr.Namespaces[i] = Namespace{Dev: words[2*i], Inode: words[2*i+1]}
		}
	}
	c.sampleID(&nr.SampleID, cfg)
}

// KsymbolRecord (PERF_RECORD_KSYMBOL) reports registration or
// unregistration of a kernel symbol, such as a JIT-compiled BPF program.
type KsymbolRecord struct {
	RecordHeader
	Addr  uint64
	Len   uint32
	Type  uint16
	Flags uint16
	Name  string
	SampleID
}

func (kr *KsymbolRecord) DecodeFrom(hdr RecordHeader, c *Cursor, cfg *ParseConfig) {
	kr.RecordHeader = hdr
	c.uint64(&kr.Addr)
	c.uint32One(&kr.Len)
	c.uint16(&kr.Type, &kr.Flags)
	c.string(&kr.Name)
	c.sampleID(&kr.SampleID, cfg)
}

// Unregistered reports whether the symbol went away.
func (kr *KsymbolRecord) Unregistered() bool {
	return kr.Flags&unix.PERF_RECORD_KSYMBOL_FLAGS_UNREGISTER != 0
}

// BPFEventRecord (PERF_RECORD_BPF_EVENT) reports loading or unloading of
// a BPF program.
type BPFEventRecord struct {
	RecordHeader
	Type  uint16
	Flags uint16
	ID    uint32
	Tag   [8]byte
	SampleID
}

func (br *BPFEventRecord) DecodeFrom(hdr RecordHeader, c *Cursor, cfg *ParseConfig) {
	br.RecordHeader = hdr
	c.uint16(&br.Type, &br.Flags)
	c.uint32One(&br.ID)
	c.take(br.Tag[:])
	c.sampleID(&br.SampleID, cfg)
}

// CgroupRecord (PERF_RECORD_CGROUP) associates a cgroup ID with its path.
type CgroupRecord struct {
	RecordHeader
	ID   uint64
	Path string
	SampleID
}

func (cr *CgroupRecord) DecodeFrom(hdr RecordHeader, c *Cursor, cfg *ParseConfig) {
	cr.RecordHeader = hdr
	c.uint64(&cr.ID)
	c.string(&cr.Path)
	c.sampleID(&cr.SampleID, cfg)
}

// TextPokeRecord (PERF_RECORD_TEXT_POKE) reports a change to kernel text.
type TextPokeRecord struct {
	RecordHeader
	Addr     uint64
	OldBytes []byte
	NewBytes []byte
	SampleID
}

func (tr *TextPokeRecord) DecodeFrom(hdr RecordHeader, c *Cursor, cfg *ParseConfig) {
	tr.RecordHeader = hdr
	c.uint64(&tr.Addr)
	var oldLen, newLen uint16
	c.uint16(&oldLen, &newLen)
	tr.OldBytes = c.bytes(uint64(oldLen))
	tr.NewBytes = c.bytes(uint64(newLen))
	c.skip(c.padded(0))
	c.sampleID(&tr.SampleID, cfg)
}

// AuxOutputHWIDRecord (PERF_RECORD_AUX_OUTPUT_HW_ID) carries the hardware
// ID of the AUX output event.
type AuxOutputHWIDRecord struct {
	RecordHeader
	HWID uint64
	SampleID
}

func (ar *AuxOutputHWIDRecord) DecodeFrom(hdr RecordHeader, c *Cursor, cfg *ParseConfig) {
	ar.RecordHeader = hdr
	c.uint64(&ar.HWID)
	c.sampleID(&ar.SampleID, cfg)
}

// UnknownRecord is a record of a type this package does not decode. Data
// holds the payload verbatim, including any SampleID trailer.
type UnknownRecord struct {
	RecordHeader
	Data []byte
}

func (ur *UnknownRecord) DecodeFrom(hdr RecordHeader, c *Cursor, cfg *ParseConfig) {
	ur.RecordHeader = hdr
	ur.Data = c.rest()
}
