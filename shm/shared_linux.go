//go:build linux

package shm

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Create maps the shared plane for numInstances workers. The stats segment
// carries the header, one Stats record per instance and a trailing guard
// page protected PROT_NONE so a runaway write off the end of the stats area
// faults instead of corrupting adjacent state. The checksum records live in
// a second, separate segment.
func Create(numInstances int) (*Plane, error) {
	if numInstances < 0 {
		return nil, fmt.Errorf("shm: negative instance count %d", numInstances)
	}
	pageSize := os.Getpagesize()

	statsLen := alignUp(headerSize+statsSize*numInstances+2*pageSize, pageSize)
	sumsLen := alignUp(checksumSize*numInstances, pageSize)
	if sumsLen == 0 {
		sumsLen = pageSize
	}

	statsFD, err := unix.MemfdCreate("stressfleet-stats", unix.MFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("shm: memfd stats: %w", err)
	}
	statsFile := os.NewFile(uintptr(statsFD), "stressfleet-stats")
	if err := statsFile.Truncate(int64(statsLen)); err != nil {
		_ = statsFile.Close()
		return nil, fmt.Errorf("shm: size stats segment: %w", err)
	}

	sumsFD, err := unix.MemfdCreate("stressfleet-checksums", unix.MFD_CLOEXEC)
	if err != nil {
		_ = statsFile.Close()
		return nil, fmt.Errorf("shm: memfd checksums: %w", err)
	}
	sumsFile := os.NewFile(uintptr(sumsFD), "stressfleet-checksums")
	if err := sumsFile.Truncate(int64(sumsLen)); err != nil {
		_ = sumsFile.Close()
		_ = statsFile.Close()
		return nil, fmt.Errorf("shm: size checksum segment: %w", err)
	}

	p, err := attach(statsFile, sumsFile, true)
	if err != nil {
		_ = sumsFile.Close()
		_ = statsFile.Close()
		return nil, err
	}

	hdr := p.hdr
	hdr.Length = uint64(statsLen)
	hdr.ChecksumLength = uint64(sumsLen)
	hdr.NumSlots = uint32(numInstances)
	hdr.TimeStartedNs = time.Now().UnixNano()
	hdr.MemCacheLevel = 2
	return p, nil
}

// Attach maps an existing plane from inherited descriptors in a worker
// process. The worker finds its slot count in the shared header.
func Attach(statsFile, sumsFile *os.File) (*Plane, error) {
	return attach(statsFile, sumsFile, false)
}

func attach(statsFile, sumsFile *os.File, owner bool) (*Plane, error) {
	pageSize := os.Getpagesize()

	st, err := statsFile.Stat()
	if err != nil {
		return nil, fmt.Errorf("shm: stat stats segment: %w", err)
	}
	stats, err := unix.Mmap(int(statsFile.Fd()), 0, int(st.Size()),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shm: map stats segment: %w", err)
	}

	ss, err := sumsFile.Stat()
	if err != nil {
		_ = unix.Munmap(stats)
		return nil, fmt.Errorf("shm: stat checksum segment: %w", err)
	}
	sums, err := unix.Mmap(int(sumsFile.Fd()), 0, int(ss.Size()),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Munmap(stats)
		return nil, fmt.Errorf("shm: map checksum segment: %w", err)
	}

	// Guard page at the tail of the stats mapping. Each attached process
	// protects its own view; protections are per-mapping, not per-file.
	guard := stats[len(stats)-pageSize:]
	if err := unix.Mprotect(guard, unix.PROT_NONE); err != nil {
		_ = unix.Munmap(sums)
		_ = unix.Munmap(stats)
		return nil, fmt.Errorf("shm: protect guard page: %w", err)
	}

	mapped, err := mapSentinels(pageSize)
	if err != nil {
		_ = unix.Munmap(sums)
		_ = unix.Munmap(stats)
		return nil, err
	}

	p := &Plane{
		stats:    stats,
		sums:     sums,
		pageSize: pageSize,
		guard:    guard,
		owner:    owner,
		Mapped:   mapped,
	}
	p.hdr = (*Header)(planeHeader(stats))
	if owner {
		p.statsFile = statsFile
		p.sumsFile = sumsFile
	}
	return p, nil
}

// mapSentinels allocates the three probe pages. Failures unwind in reverse
// order of allocation.
func mapSentinels(pageSize int) (Mapped, error) {
	none, err := unix.Mmap(-1, 0, pageSize, unix.PROT_NONE,
		unix.MAP_ANON|unix.MAP_SHARED)
	if err != nil {
		return Mapped{}, fmt.Errorf("shm: map PROT_NONE page: %w", err)
	}
	ro, err := unix.Mmap(-1, 0, pageSize, unix.PROT_READ,
		unix.MAP_ANON|unix.MAP_SHARED)
	if err != nil {
		_ = unix.Munmap(none)
		return Mapped{}, fmt.Errorf("shm: map PROT_READ page: %w", err)
	}
	// The "wo" page is mapped PROT_READ, not PROT_WRITE; workloads probe it
	// expecting reads to succeed and writes to fault.
	wo, err := unix.Mmap(-1, 0, pageSize, unix.PROT_READ,
		unix.MAP_ANON|unix.MAP_SHARED)
	if err != nil {
		_ = unix.Munmap(ro)
		_ = unix.Munmap(none)
		return Mapped{}, fmt.Errorf("shm: map wo page: %w", err)
	}
	return Mapped{None: none, RO: ro, WO: wo}, nil
}

// Close unmaps everything in reverse order of allocation and, for the
// owning parent, closes the backing descriptors.
func (p *Plane) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	keep(unix.Munmap(p.Mapped.WO))
	keep(unix.Munmap(p.Mapped.RO))
	keep(unix.Munmap(p.Mapped.None))
	keep(unix.Munmap(p.sums))
	keep(unix.Munmap(p.stats))
	if p.owner {
		if p.sumsFile != nil {
			keep(p.sumsFile.Close())
		}
		if p.statsFile != nil {
			keep(p.statsFile.Close())
		}
	}
	return firstErr
}
