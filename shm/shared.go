// Package shm owns the shared statistics plane: two file-backed shared
// mappings (per-instance stats and their checksums), the sentinel probe
// pages, and the locks that serialise multi-writer regions. The parent
// creates the plane before the first worker is spawned; workers attach to
// the same segments through inherited descriptors and write only their own
// slot.
package shm

import (
	"os"
	"sync/atomic"
	"time"
	"unsafe"
)

const (
	// MaxMetrics is the number of auxiliary metric slots per instance.
	MaxMetrics = 8
	// MetricDescLen bounds an auxiliary metric description.
	MetricDescLen = 40
)

// Metric is one auxiliary measurement published by a worker. Desc is a
// NUL-padded description; a zero first byte means the slot is unused.
type Metric struct {
	Value float64
	Desc  [MetricDescLen]byte
}

// SetDesc stores a bounded copy of s into the description field.
func (m *Metric) SetDesc(s string) {
	n := copy(m.Desc[:MetricDescLen-1], s)
	for i := n; i < MetricDescLen; i++ {
		m.Desc[i] = 0
	}
}

// Description returns the NUL-trimmed description, empty if unused.
func (m *Metric) Description() string {
	for i, b := range m.Desc {
		if b == 0 {
			return string(m.Desc[:i])
		}
	}
	return string(m.Desc[:])
}

// Stats is one per-instance record in the shared stats segment. Exactly one
// worker writes a given slot; the parent reads it only after that worker has
// been reaped. All fields are fixed-size so the record has the same layout
// in every process attached to the segment.
type Stats struct {
	PID             int64
	StartNs         int64
	DurationNs      int64
	DurationTotalNs int64
	Counter         uint64
	CounterTotal    uint64
	UtimeNs         int64
	StimeNs         int64
	UtimeTotalNs    int64
	StimeTotalNs    int64
	MaxRSSKB        int64
	PerfCycles      uint64
	PerfInstrs      uint64
	PerfCacheMiss   uint64
	IRQCount        uint64
	TZMaxMilliC     int64
	Signalled       uint32
	Completed       uint32
	CounterReady    uint32
	RunOK           uint32
	ForceKilled     uint32
	Alarmed         uint32
	State           uint32
	_               uint32
	Metrics         [MaxMetrics]Metric
}

// Per-instance lifecycle states stored in Stats.State.
const (
	StatePlanned uint32 = iota
	StateSpawning
	StateRunning
	StateStopping
	StateExited
	StateReaped
)

// AddCounter bumps the bogo-ops counter. Plain add: the slot has a single
// writer while the worker is alive.
func (s *Stats) AddCounter(n uint64) { s.Counter += n }

// ChecksumData is the hashed portion of a checksum record. Pad must be zero
// when the hash is computed.
type ChecksumData struct {
	Counter uint64
	RunOK   uint32
	Pad     uint32
}

// Checksum lives in its own shared segment so that a wild write into the
// stats area cannot also fix up the hash that guards it.
type Checksum struct {
	Data ChecksumData
	Hash uint32
	_    uint32
}

// Header sits at the front of the stats segment.
type Header struct {
	Length         uint64
	ChecksumLength uint64
	NumSlots       uint32
	CaughtSigint   uint32
	TimeStartedNs  int64
	Started        int64
	Exited         int64
	Reaped         int64
	Failed         int64
	Alarmed        int64
	LogLock        uint32
	WarnOnceLock   uint32
	PortLock       uint32
	MemCacheLevel  uint32
	MemCacheWays   uint32
	_              uint32
	MemCacheSize   uint64
}

var (
	headerSize   = int(unsafe.Sizeof(Header{}))
	statsSize    = int(unsafe.Sizeof(Stats{}))
	checksumSize = int(unsafe.Sizeof(Checksum{}))
)

// InstanceStarted bumps the started count; called by a worker after attach.
func (h *Header) InstanceStarted() { atomic.AddInt64(&h.Started, 1) }

// InstanceExited records a worker leaving; mirrors the original convention
// of moving an instance from started to exited just before exit.
func (h *Header) InstanceExited() {
	atomic.AddInt64(&h.Exited, 1)
	atomic.AddInt64(&h.Started, -1)
}

// InstanceReaped is bumped by the parent once waitpid has observed a child.
func (h *Header) InstanceReaped() { atomic.AddInt64(&h.Reaped, 1) }

// InstanceFailed is bumped by a worker exiting with a failure status.
func (h *Header) InstanceFailed() { atomic.AddInt64(&h.Failed, 1) }

// InstanceAlarmed is bumped the first time a worker observes SIGALRM.
func (h *Header) InstanceAlarmed() { atomic.AddInt64(&h.Alarmed, 1) }

// SetCaughtSigint flags interrupt delivery; readable from every process.
func (h *Header) SetCaughtSigint() { atomic.StoreUint32(&h.CaughtSigint, 1) }

// GotSigint reports whether an interrupt was caught anywhere in the fleet.
func (h *Header) GotSigint() bool { return atomic.LoadUint32(&h.CaughtSigint) == 1 }

// Counts returns a snapshot of the instance accounting counters.
func (h *Header) Counts() (started, exited, reaped, failed, alarmed int64) {
	return atomic.LoadInt64(&h.Started),
		atomic.LoadInt64(&h.Exited),
		atomic.LoadInt64(&h.Reaped),
		atomic.LoadInt64(&h.Failed),
		atomic.LoadInt64(&h.Alarmed)
}

// TimeStarted reports when the plane was created.
func (h *Header) TimeStarted() time.Time { return time.Unix(0, h.TimeStartedNs) }

// Mapped holds the three sentinel probe pages workloads use to observe
// faults. WO is mapped PROT_READ: workloads expect reads of it to succeed
// and writes to fault, and probes depend on that exact protection.
type Mapped struct {
	None []byte
	RO   []byte
	WO   []byte
}

// Plane is an attached pair of shared segments plus the sentinel pages.
type Plane struct {
	hdr      *Header
	stats    []byte
	sums     []byte
	pageSize int
	guard    []byte
	owner    bool

	Mapped Mapped

	statsFile *os.File
	sumsFile  *os.File
}

// Files returns the backing files of the stats and checksum segments so the
// scheduler can pass them to spawned workers. Nil when attached as a worker.
func (p *Plane) Files() (stats, checksums *os.File) {
	return p.statsFile, p.sumsFile
}

// Header exposes the shared header.
func (p *Plane) Header() *Header { return p.hdr }

// NumSlots reports the per-instance slot capacity of the plane.
func (p *Plane) NumSlots() int { return int(p.hdr.NumSlots) }

// PageSize reports the page size the plane was laid out with.
func (p *Plane) PageSize() int { return p.pageSize }

// Stat returns the i'th per-instance record.
func (p *Plane) Stat(i int) *Stats {
	if i < 0 || i >= int(p.hdr.NumSlots) {
		panic("shm: stats slot out of range")
	}
	off := headerSize + i*statsSize
	return (*Stats)(unsafe.Pointer(&p.stats[off]))
}

// Checksum returns the i'th checksum record.
func (p *Plane) Checksum(i int) *Checksum {
	if i < 0 || i >= int(p.hdr.NumSlots) {
		panic("shm: checksum slot out of range")
	}
	return (*Checksum)(unsafe.Pointer(&p.sums[i*checksumSize]))
}

// SegmentSizes reports the mapped lengths of the stats and checksum areas.
func (p *Plane) SegmentSizes() (stats, checksums int) {
	return len(p.stats), len(p.sums)
}

// LogLock serialises log writes across the fleet.
func (p *Plane) LogLock() *Lock { return newLock(&p.hdr.LogLock) }

// WarnOnceLock returns the lock over the header's warn-once word. Nothing
// takes it: the logging package keeps warn-once state per process.
func (p *Plane) WarnOnceLock() *Lock { return newLock(&p.hdr.WarnOnceLock) }

// PortLock returns the lock over the header's port word. Nothing takes it:
// there is no port map, and the sock stressor offsets its port per instance.
func (p *Plane) PortLock() *Lock { return newLock(&p.hdr.PortLock) }

func alignUp(n, page int) int {
	return (n + page - 1) &^ (page - 1)
}

func planeHeader(b []byte) unsafe.Pointer { return unsafe.Pointer(&b[0]) }
