// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perf

import (
	"math/bits"

	"golang.org/x/sys/unix"
)

// SampleType is the sample_type bitmask of an event. It selects the
// fields present in sample records, and in SampleID trailers.
type SampleType uint64

// SampleType bits.
const (
	SampleTypeIP           SampleType = unix.PERF_SAMPLE_IP
	SampleTypeTID          SampleType = unix.PERF_SAMPLE_TID
	SampleTypeTime         SampleType = unix.PERF_SAMPLE_TIME
	SampleTypeAddr         SampleType = unix.PERF_SAMPLE_ADDR
	SampleTypeRead         SampleType = unix.PERF_SAMPLE_READ
	SampleTypeCallchain    SampleType = unix.PERF_SAMPLE_CALLCHAIN
	SampleTypeID           SampleType = unix.PERF_SAMPLE_ID
	SampleTypeCPU          SampleType = unix.PERF_SAMPLE_CPU
	SampleTypePeriod       SampleType = unix.PERF_SAMPLE_PERIOD
	SampleTypeStreamID     SampleType = unix.PERF_SAMPLE_STREAM_ID
	SampleTypeRaw          SampleType = unix.PERF_SAMPLE_RAW
	SampleTypeBranchStack  SampleType = unix.PERF_SAMPLE_BRANCH_STACK
	SampleTypeRegsUser     SampleType = unix.PERF_SAMPLE_REGS_USER
	SampleTypeStackUser    SampleType = unix.PERF_SAMPLE_STACK_USER
	SampleTypeWeight       SampleType = unix.PERF_SAMPLE_WEIGHT
	SampleTypeDataSource   SampleType = unix.PERF_SAMPLE_DATA_SRC
	SampleTypeIdentifier   SampleType = unix.PERF_SAMPLE_IDENTIFIER
	SampleTypeTransaction  SampleType = unix.PERF_SAMPLE_TRANSACTION
	SampleTypeRegsIntr     SampleType = unix.PERF_SAMPLE_REGS_INTR
	SampleTypePhysAddr     SampleType = unix.PERF_SAMPLE_PHYS_ADDR
	SampleTypeAux          SampleType = unix.PERF_SAMPLE_AUX
	SampleTypeCgroup       SampleType = unix.PERF_SAMPLE_CGROUP
	SampleTypeDataPageSize SampleType = unix.PERF_SAMPLE_DATA_PAGE_SIZE
	SampleTypeCodePageSize SampleType = unix.PERF_SAMPLE_CODE_PAGE_SIZE
	SampleTypeWeightStruct SampleType = unix.PERF_SAMPLE_WEIGHT_STRUCT
)

// SampleFormat configures information requested in overflow packets.
type SampleFormat struct {
	IP              bool
	Tid             bool
	Time            bool
	Addr            bool
	Count           bool
	Callchain       bool
	ID              bool
	CPU             bool
	Period          bool
	StreamID        bool
	Raw             bool
	BranchStack     bool
	UserRegisters   bool
	UserStack       bool
	Weight          bool
	DataSource      bool
	Identifier      bool
	Transaction     bool
	IntrRegisters   bool
	PhysicalAddress bool
	Aux             bool
	Cgroup          bool
	DataPageSize    bool
	CodePageSize    bool
	WeightStruct    bool
}

// SampleType packs the SampleFormat into a bitmask.
func (st SampleFormat) SampleType() SampleType {
	// Always keep this in sync with the type definition above.
	fields := []bool{
		st.IP,
		st.Tid,
		st.Time,
		st.Addr,
		st.Count,
		st.Callchain,
		st.ID,
		st.CPU,
		st.Period,
		st.StreamID,
		st.Raw,
		st.BranchStack,
		st.UserRegisters,
		st.UserStack,
		st.Weight,
		st.DataSource,
		st.Identifier,
		st.Transaction,
		st.IntrRegisters,
		st.PhysicalAddress,
		st.Aux,
		st.Cgroup,
		st.DataPageSize,
		st.CodePageSize,
		st.WeightStruct,
	}
	return SampleType(marshalBitwiseUint64(fields))
}

// BranchSampleFormat specifies what branches to include in the branch
// record of samples. Values are or-ed together.
type BranchSampleFormat uint64

// BranchSampleFormat bits.
const (
	BranchSampleUser      BranchSampleFormat = unix.PERF_SAMPLE_BRANCH_USER
	BranchSampleKernel    BranchSampleFormat = unix.PERF_SAMPLE_BRANCH_KERNEL
	BranchSampleHV        BranchSampleFormat = unix.PERF_SAMPLE_BRANCH_HV
	BranchSampleAny       BranchSampleFormat = unix.PERF_SAMPLE_BRANCH_ANY
	BranchSampleAnyCall   BranchSampleFormat = unix.PERF_SAMPLE_BRANCH_ANY_CALL
	BranchSampleAnyReturn BranchSampleFormat = unix.PERF_SAMPLE_BRANCH_ANY_RETURN
	BranchSampleIndCall   BranchSampleFormat = unix.PERF_SAMPLE_BRANCH_IND_CALL
	BranchSampleAbortTx   BranchSampleFormat = unix.PERF_SAMPLE_BRANCH_ABORT_TX
	BranchSampleInTx      BranchSampleFormat = unix.PERF_SAMPLE_BRANCH_IN_TX
	BranchSampleNoTx      BranchSampleFormat = unix.PERF_SAMPLE_BRANCH_NO_TX
	BranchSampleCond      BranchSampleFormat = unix.PERF_SAMPLE_BRANCH_COND
	BranchSampleCallStack BranchSampleFormat = unix.PERF_SAMPLE_BRANCH_CALL_STACK
	BranchSampleIndJump   BranchSampleFormat = unix.PERF_SAMPLE_BRANCH_IND_JUMP
	BranchSampleCall      BranchSampleFormat = unix.PERF_SAMPLE_BRANCH_CALL
	BranchSampleNoFlags   BranchSampleFormat = unix.PERF_SAMPLE_BRANCH_NO_FLAGS
	BranchSampleNoCycles  BranchSampleFormat = unix.PERF_SAMPLE_BRANCH_NO_CYCLES
	BranchSampleTypeSave  BranchSampleFormat = unix.PERF_SAMPLE_BRANCH_TYPE_SAVE
	BranchSampleHWIndex   BranchSampleFormat = unix.PERF_SAMPLE_BRANCH_HW_INDEX
	BranchSamplePrivSave  BranchSampleFormat = unix.PERF_SAMPLE_BRANCH_PRIV_SAVE
)

// SampleRecord indicates a sample.
//
// Fields on SampleRecord are set according to the SampleFormat the event
// was configured with. A boolean flag in SampleFormat typically enables
// the homonymous field in SampleRecord.
//
// If SampleFormat.Count is set, Count holds the value of the sampled
// event, or Group the values of the whole group if the event was opened
// with CountFormat.Group.
type SampleRecord struct {
	RecordHeader
	Identifier uint64
	IP         uint64
	Pid        uint32
	Tid        uint32
	Time       uint64
	Addr       uint64
	ID         uint64
	StreamID   uint64
	CPU        uint32
	Res        uint32
	Period     uint64
	Count      Count
	Group      *GroupCount
	Callchain  []uint64

	Raw                  []byte
	BranchHWIndex        int64 // -1 unless BranchSampleHWIndex is set
	BranchStack          []BranchEntry
	UserRegisterABI      uint64
	UserRegisters        []uint64
	UserStack            []byte
	UserStackDynamicSize uint64
	Weight               uint64
	DataSource           DataSource
	Transaction          Transaction
	IntrRegisterABI      uint64
	IntrRegisters        []uint64
	PhysicalAddress      uint64
	CgroupID             uint64
	DataPageSize         uint64
	CodePageSize         uint64
	Aux                  []byte
}

// DecodeFrom decodes a sample record. Sample records never carry a
// SampleID trailer: the identifying fields are part of the sample itself.
func (sr *SampleRecord) DecodeFrom(hdr RecordHeader, c *Cursor, cfg *ParseConfig) {
	sr.RecordHeader = hdr
	st := cfg.SampleType
	has := func(bit SampleType) bool { return st&bit != 0 }

	c.uint64If(has(SampleTypeIdentifier), &sr.Identifier)
	c.uint64If(has(SampleTypeIP), &sr.IP)
	c.uint32If(has(SampleTypeTID), &sr.Pid, &sr.Tid)
	c.uint64If(has(SampleTypeTime), &sr.Time)
	c.uint64If(has(SampleTypeAddr), &sr.Addr)
	c.uint64If(has(SampleTypeID), &sr.ID)
	c.uint64If(has(SampleTypeStreamID), &sr.StreamID)
	c.uint32If(has(SampleTypeCPU), &sr.CPU, &sr.Res)
	c.uint64If(has(SampleTypePeriod), &sr.Period)
	if has(SampleTypeRead) {
		if cfg.ReadFormat&FormatGroup != 0 {
			sr.Group = c.groupCount(cfg.ReadFormat)
		} else {
			c.count(&sr.Count, cfg.ReadFormat)
		}
	}
	if has(SampleTypeCallchain) {
		var nr uint64
		c.uint64(&nr)
		sr.Callchain = c.uint64s(nr)
	}
	if has(SampleTypeRaw) {
		var size uint32
		c.uint32One(&size)
		sr.Raw = c.bytes(uint64(size))
	}
	sr.BranchHWIndex = -1
	if has(SampleTypeBranchStack) {
		c.branchStack(sr, cfg.BranchFormat)
	}
	if has(SampleTypeRegsUser) {
		sr.UserRegisterABI, sr.UserRegisters = c.registers(cfg.RegsUser)
	}
	if has(SampleTypeStackUser) {
		var size uint64
		c.uint64(&size)
		sr.UserStack = c.bytes(size)
		c.uint64If(size != 0, &sr.UserStackDynamicSize)
	}
	c.uint64If(has(SampleTypeWeight|SampleTypeWeightStruct), &sr.Weight)
	if has(SampleTypeDataSource) {
		var ds uint64
		c.uint64(&ds)
		sr.DataSource = DataSource(ds)
	}
	if has(SampleTypeTransaction) {
		var tx uint64
		c.uint64(&tx)
		sr.Transaction = Transaction(tx)
	}
	if has(SampleTypeRegsIntr) {
		sr.IntrRegisterABI, sr.IntrRegisters = c.registers(cfg.RegsIntr)
	}
	c.uint64If(has(SampleTypePhysAddr), &sr.PhysicalAddress)
	c.uint64If(has(SampleTypeCgroup), &sr.CgroupID)
	c.uint64If(has(SampleTypeDataPageSize), &sr.DataPageSize)
	c.uint64If(has(SampleTypeCodePageSize), &sr.CodePageSize)
	if has(SampleTypeAux) {
		var size uint64
		c.uint64(&size)
		sr.Aux = c.bytes(size)
	}
}

// Register dump ABIs, as reported in the first word of a register dump.
const (
	RegsABINone uint64 = 0 // PERF_SAMPLE_REGS_ABI_NONE
	RegsABI32   uint64 = 1 // PERF_SAMPLE_REGS_ABI_32
	RegsABI64   uint64 = 2 // PERF_SAMPLE_REGS_ABI_64
)

// registers decodes a register dump: the ABI, then one word per bit in
// mask, unless the ABI is RegsABINone.
func (c *Cursor) registers(mask uint64) (abi uint64, regs []uint64) {
	c.uint64(&abi)
	if abi == RegsABINone {
		return abi, nil
	}
	return abi, c.uint64s(uint64(bits.OnesCount64(mask)))
}

func (c *Cursor) branchStack(sr *SampleRecord, bf BranchSampleFormat) {
	var nr uint64
	c.uint64(&nr)
	if bf&BranchSampleHWIndex != 0 {
		var idx uint64
		c.uint64(&idx)
		sr.BranchHWIndex = int64(idx)
	}
	words := c.uint64Tuples(nr, 3)
	if words == nil {
		return
	}
	sr.BranchStack = make([]BranchEntry, nr)
	for i := range sr.BranchStack {
		sr.BranchStack[i] = newBranchEntry(words[3*i], words[3*i+1], words[3*i+2])
	}
}

// ExactIP indicates that sr.IP points to the actual instruction that
// triggered the event. See also Options.PreciseIP.
func (sr *SampleRecord) ExactIP() bool {
	return sr.RecordHeader.Misc&miscExactIP != 0
}

// Weights splits Weight into its three parts, for events sampled with
// SampleFormat.WeightStruct.
func (sr *SampleRecord) Weights() (var1 uint32, var2, var3 uint16) {
	return uint32(sr.Weight), uint16(sr.Weight >> 32), uint16(sr.Weight >> 48)
}

// BranchEntry is one entry of a sampled branch stack.
type BranchEntry struct {
	From             uint64
	To               uint64
	Mispredicted     bool
	Predicted        bool
	InTransaction    bool
	TransactionAbort bool
	Cycles           uint16
	BranchType       BranchType
}

func newBranchEntry(from, to, flags uint64) BranchEntry {
	return BranchEntry{
		From:             from,
		To:               to,
		Mispredicted:     flags&(1<<0) != 0,
		Predicted:        flags&(1<<1) != 0,
		InTransaction:    flags&(1<<2) != 0,
		TransactionAbort: flags&(1<<3) != 0,
		Cycles:           uint16(flags >> 4),
		BranchType:       BranchType((flags >> 20) & 0xf),
	}
}

// BranchType classifies a sampled branch. It is only reported if
// BranchSampleTypeSave is set.
type BranchType uint8

// Branch types.
const (
	BranchTypeUnknown  BranchType = unix.PERF_BR_UNKNOWN
	BranchTypeCond     BranchType = unix.PERF_BR_COND
	BranchTypeUncond   BranchType = unix.PERF_BR_UNCOND
	BranchTypeInd      BranchType = unix.PERF_BR_IND
	BranchTypeCall     BranchType = unix.PERF_BR_CALL
	BranchTypeIndCall  BranchType = unix.PERF_BR_IND_CALL
	BranchTypeRet      BranchType = unix.PERF_BR_RET
	BranchTypeSyscall  BranchType = unix.PERF_BR_SYSCALL
	BranchTypeSysret   BranchType = unix.PERF_BR_SYSRET
	BranchTypeCondCall BranchType = unix.PERF_BR_COND_CALL
	BranchTypeCondRet  BranchType = unix.PERF_BR_COND_RET
)

// DataSource describes the memory access behind a sample, if
// SampleFormat.DataSource is set.
type DataSource uint64

// MemOp is a memory operation.
type MemOp uint8

// Known memory operations.
const (
	MemOpNA       MemOp = unix.PERF_MEM_OP_NA
	MemOpLoad     MemOp = unix.PERF_MEM_OP_LOAD
	MemOpStore    MemOp = unix.PERF_MEM_OP_STORE
	MemOpPrefetch MemOp = unix.PERF_MEM_OP_PFETCH
	MemOpExec     MemOp = unix.PERF_MEM_OP_EXEC
)

// MemLevel is a memory level. Values are or-ed together.
type MemLevel uint32

// Known memory levels.
const (
	MemLevelNA           MemLevel = unix.PERF_MEM_LVL_NA
	MemLevelHit          MemLevel = unix.PERF_MEM_LVL_HIT
	MemLevelMiss         MemLevel = unix.PERF_MEM_LVL_MISS
	MemLevelL1           MemLevel = unix.PERF_MEM_LVL_L1
	MemLevelLFB          MemLevel = unix.PERF_MEM_LVL_LFB
	MemLevelL2           MemLevel = unix.PERF_MEM_LVL_L2
	MemLevelL3           MemLevel = unix.PERF_MEM_LVL_L3
	MemLevelLocalDRAM    MemLevel = unix.PERF_MEM_LVL_LOC_RAM
	MemLevelRemoteDRAM1  MemLevel = unix.PERF_MEM_LVL_REM_RAM1
	MemLevelRemoteDRAM2  MemLevel = unix.PERF_MEM_LVL_REM_RAM2
	MemLevelRemoteCache1 MemLevel = unix.PERF_MEM_LVL_REM_CCE1
	MemLevelRemoteCache2 MemLevel = unix.PERF_MEM_LVL_REM_CCE2
	MemLevelIO           MemLevel = unix.PERF_MEM_LVL_IO
	MemLevelUncached     MemLevel = unix.PERF_MEM_LVL_UNC
)

// MemLevelNumber is a memory level number.
type MemLevelNumber uint8

// Known memory level numbers.
const (
	MemLevelNumberL1       MemLevelNumber = unix.PERF_MEM_LVLNUM_L1
	MemLevelNumberL2       MemLevelNumber = unix.PERF_MEM_LVLNUM_L2
	MemLevelNumberL3       MemLevelNumber = unix.PERF_MEM_LVLNUM_L3
	MemLevelNumberL4       MemLevelNumber = unix.PERF_MEM_LVLNUM_L4
	MemLevelNumberAnyCache MemLevelNumber = unix.PERF_MEM_LVLNUM_ANY_CACHE
	MemLevelNumberLFB      MemLevelNumber = unix.PERF_MEM_LVLNUM_LFB
	MemLevelNumberRAM      MemLevelNumber = unix.PERF_MEM_LVLNUM_RAM
	MemLevelNumberPMem     MemLevelNumber = unix.PERF_MEM_LVLNUM_PMEM
	MemLevelNumberNA       MemLevelNumber = unix.PERF_MEM_LVLNUM_NA
)

// MemSnoopMode is a memory snoop mode. Values are or-ed together.
type MemSnoopMode uint8

// Known memory snoop modes.
const (
	MemSnoopModeNA          MemSnoopMode = unix.PERF_MEM_SNOOP_NA
	MemSnoopModeNone        MemSnoopMode = unix.PERF_MEM_SNOOP_NONE
	MemSnoopModeHit         MemSnoopMode = unix.PERF_MEM_SNOOP_HIT
	MemSnoopModeMiss        MemSnoopMode = unix.PERF_MEM_SNOOP_MISS
	MemSnoopModeHitModified MemSnoopMode = unix.PERF_MEM_SNOOP_HITM
)

// MemTLB describes a TLB access. Values are or-ed together.
type MemTLB uint8

// Known TLB access bits.
const (
	MemTLBNA   MemTLB = unix.PERF_MEM_TLB_NA
	MemTLBHit  MemTLB = unix.PERF_MEM_TLB_HIT
	MemTLBMiss MemTLB = unix.PERF_MEM_TLB_MISS
	MemTLBL1   MemTLB = unix.PERF_MEM_TLB_L1
	MemTLBL2   MemTLB = unix.PERF_MEM_TLB_L2
	MemTLBWalk MemTLB = unix.PERF_MEM_TLB_WK
	MemTLBOS   MemTLB = unix.PERF_MEM_TLB_OS
)

func (ds DataSource) field(shift, width uint) uint64 {
	return (uint64(ds) >> shift) & (1<<width - 1)
}

// MemOp returns the memory operation.
func (ds DataSource) MemOp() MemOp {
	return MemOp(ds.field(unix.PERF_MEM_OP_SHIFT, 5))
}

// MemLevel returns the memory hierarchy level, in the legacy encoding.
func (ds DataSource) MemLevel() MemLevel {
	return MemLevel(ds.field(unix.PERF_MEM_LVL_SHIFT, 14))
}

// MemSnoopMode returns the snoop mode.
func (ds DataSource) MemSnoopMode() MemSnoopMode {
	return MemSnoopMode(ds.field(unix.PERF_MEM_SNOOP_SHIFT, 5))
}

// Locked reports whether the access was a locked transaction.
func (ds DataSource) Locked() bool {
	return ds.field(unix.PERF_MEM_LOCK_SHIFT, 2)&unix.PERF_MEM_LOCK_LOCKED != 0
}

// MemTLB returns the TLB access bits.
func (ds DataSource) MemTLB() MemTLB {
	return MemTLB(ds.field(unix.PERF_MEM_TLB_SHIFT, 7))
}

// MemLevelNumber returns the memory hierarchy level number.
func (ds DataSource) MemLevelNumber() MemLevelNumber {
	return MemLevelNumber(ds.field(unix.PERF_MEM_LVLNUM_SHIFT, 4))
}

// Remote reports whether the access was to a remote node.
func (ds DataSource) Remote() bool {
	return ds.field(unix.PERF_MEM_REMOTE_SHIFT, 1) == unix.PERF_MEM_REMOTE_REMOTE
}

// Hops returns the number of interconnect hops to the data source.
func (ds DataSource) Hops() uint8 {
	return uint8(ds.field(unix.PERF_MEM_HOPS_SHIFT, 3))
}

// Transaction describes a transactional memory abort.
type Transaction uint64

// Transaction bits: values should be &-ed with Transaction values.
const (
	// TransactionElision indicates an abort from an elision type
	// transaction (Intel CPU specific).
	TransactionElision Transaction = unix.PERF_TXN_ELISION

	// TransactionGeneric indicates an abort from a generic transaction.
	TransactionGeneric Transaction = unix.PERF_TXN_TRANSACTION

	// TransactionSync indicates a synchronous abort (related to the
	// reported instruction).
	TransactionSync Transaction = unix.PERF_TXN_SYNC

	// TransactionAsync indicates an asynchronous abort (unrelated to
	// the reported instruction).
	TransactionAsync Transaction = unix.PERF_TXN_ASYNC

	// TransactionRetryable indicates whether retrying the transaction
	// may have succeeded.
	TransactionRetryable Transaction = unix.PERF_TXN_RETRY

	// TransactionConflict indicates an abort due to memory conflicts
	// with other threads.
	TransactionConflict Transaction = unix.PERF_TXN_CONFLICT

	// TransactionWriteCapacity indicates an abort due to write capacity
	// overflow.
	TransactionWriteCapacity Transaction = unix.PERF_TXN_CAPACITY_WRITE

	// TransactionReadCapacity indicates an abort due to read capacity
	// overflow.
	TransactionReadCapacity Transaction = unix.PERF_TXN_CAPACITY_READ
)

// UserAbortCode returns the user-specified abort code associated with
// the transaction.
func (txn Transaction) UserAbortCode() uint32 {
	return uint32(txn >> unix.PERF_TXN_ABORT_SHIFT)
}
