//go:build linux

package adapters

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// PerfCounters samples hardware cycles, instructions and cache misses for
// the calling process through perf_event_open. Opening fails quietly on
// hosts that restrict perf; Read then reports zeros.
type PerfCounters struct {
	fds [3]int
}

var perfConfigs = [3]uint64{
	unix.PERF_COUNT_HW_CPU_CYCLES,
	unix.PERF_COUNT_HW_INSTRUCTIONS,
	unix.PERF_COUNT_HW_CACHE_MISSES,
}

// Open installs the counters on the calling process, all CPUs, and starts
// them counting.
func (p *PerfCounters) Open() {
	for i := range p.fds {
		p.fds[i] = -1
	}
	for i, config := range perfConfigs {
		attr := unix.PerfEventAttr{
			Type:   unix.PERF_TYPE_HARDWARE,
			Size:   uint32(unix.PERF_ATTR_SIZE_VER7),
			Config: config,
			Bits:   unix.PerfBitDisabled | unix.PerfBitInherit,
		}
		fd, err := unix.PerfEventOpen(&attr, 0, -1, -1, unix.PERF_FLAG_FD_CLOEXEC)
		if err != nil {
			continue
		}
		p.fds[i] = fd
		_ = unix.IoctlSetInt(fd, unix.PERF_EVENT_IOC_RESET, 0)
		_ = unix.IoctlSetInt(fd, unix.PERF_EVENT_IOC_ENABLE, 0)
	}
}

// Read stops the counters and returns their values.
func (p *PerfCounters) Read() (cycles, instructions, cacheMisses uint64) {
	var out [3]uint64
	for i, fd := range p.fds {
		if fd < 0 {
			continue
		}
		_ = unix.IoctlSetInt(fd, unix.PERF_EVENT_IOC_DISABLE, 0)
		var buf [8]byte
		if n, err := unix.Read(fd, buf[:]); err == nil && n == 8 {
			out[i] = binary.LittleEndian.Uint64(buf[:])
		}
	}
	return out[0], out[1], out[2]
}

// Close releases the counter descriptors.
func (p *PerfCounters) Close() {
	for i, fd := range p.fds {
		if fd >= 0 {
			_ = unix.Close(fd)
			p.fds[i] = -1
		}
	}
}
