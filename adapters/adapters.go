// Package adapters holds the thin facades to external collaborators:
// kernel log, vmstat, thermal zones, perf counters, ftrace, clocksource,
// KSM, OOM score, disk stats and the optional eBPF profile collector. Each
// is an on/off pair called at defined points of the run; a facility that is
// absent or unreadable degrades to a no-op rather than failing the run.
package adapters

import (
	"sync"
	"time"
)

// Options selects which collaborators a run enables.
type Options struct {
	VmstatInterval time.Duration // 0 disables vmstat sampling
	Thermal        bool
	Klog           bool
	Ftrace         bool
	Smart          bool
	Thrash         bool
	Ignite         bool
	ProfileDir     string // BPF object directory; empty disables
}

// Set is the bundle of collaborators for one run.
type Set struct {
	opts Options

	mu      sync.Mutex
	klog    *klogTail
	vmstat  *vmstatSampler
	smart   *diskSnapshot
	thrash  *thrasher
	ftrace  *ftraceTracker
	profile *profileCollector
}

// NewSet builds the bundle; nothing starts until StartAll.
func NewSet(opts Options) *Set {
	return &Set{opts: opts}
}

// StartAll turns on every enabled collaborator. Failures are logged at
// debug level inside each facade and disable only that facade.
func (s *Set) StartAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opts.Klog {
		s.klog = startKlogTail()
	}
	if s.opts.VmstatInterval > 0 {
		s.vmstat = startVmstat(s.opts.VmstatInterval)
	}
	if s.opts.Smart {
		s.smart = snapshotDisks()
	}
	if s.opts.Thrash {
		s.thrash = startThrasher()
	}
	if s.opts.Ftrace {
		s.ftrace = startFtrace()
	}
	if s.opts.ProfileDir != "" {
		s.profile = startProfile(s.opts.ProfileDir)
	}
	if s.opts.Thermal {
		logThermalZones()
	}
	ClocksourceCheck()
}

// StopAll tears everything down in reverse order. A kernel log scan that
// found oopses clears *success.
func (s *Set) StopAll(success *bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.profile != nil {
		s.profile.stop()
		s.profile = nil
	}
	if s.ftrace != nil {
		s.ftrace.stop()
		s.ftrace = nil
	}
	if s.thrash != nil {
		s.thrash.stop()
		s.thrash = nil
	}
	if s.smart != nil {
		s.smart.report()
		s.smart = nil
	}
	if s.vmstat != nil {
		s.vmstat.stop()
		s.vmstat = nil
	}
	if s.klog != nil {
		s.klog.stop(success)
		s.klog = nil
	}
}

// OOMKilled reports whether the kernel log recorded an OOM kill of pid.
// Without a readable kernel log this is always false and SIGKILL deaths
// are reported as "possibly" OOM.
func (s *Set) OOMKilled(pid int) bool {
	s.mu.Lock()
	k := s.klog
	s.mu.Unlock()
	if k == nil {
		return false
	}
	return k.oomKilled(pid)
}

// FtraceAddPID registers a spawned child with the ftrace PID filter.
func (s *Set) FtraceAddPID(pid int) {
	s.mu.Lock()
	f := s.ftrace
	s.mu.Unlock()
	if f != nil {
		f.addPID(pid)
	}
}

// IgniteStart nudges cpufreq governors to their performance setting while
// the fleet is busy. Best effort; most hosts refuse without privilege.
func (s *Set) IgniteStart() {
	if s.opts.Ignite {
		igniteCPUs(true)
	}
}

// IgniteStop restores the governors recorded by IgniteStart.
func (s *Set) IgniteStop() {
	if s.opts.Ignite {
		igniteCPUs(false)
	}
}
