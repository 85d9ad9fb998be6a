//go:build !linux

package adapters

// PerfCounters is a no-op off linux.
type PerfCounters struct{}

func (p *PerfCounters) Open() {}

func (p *PerfCounters) Read() (cycles, instructions, cacheMisses uint64) { return 0, 0, 0 }

func (p *PerfCounters) Close() {}
