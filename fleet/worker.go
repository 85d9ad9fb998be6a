package fleet

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"stressfleet/adapters"
	"stressfleet/core/mwc"
	"stressfleet/core/status"
	"stressfleet/core/stressor"
	"stressfleet/logging"
	"stressfleet/shm"
)

// WorkerOptions is the contract between the parent's spawn arguments and
// the re-entered worker subcommand.
type WorkerOptions struct {
	Stressor     string
	Slot         int
	Instance     int32
	NumInstances int32
	MaxOps       uint64
	EndNs        int64
	BackoffUs    int64
	Started      int32
	IoniceClass  int
	IoniceLevel  int
	TempPath     string
	Verify       bool
	DryRun       bool
	KeepFiles    bool
	KeepName     bool
	Abort        bool
	Perf         bool
	Verbose      bool
	Quiet        bool
	Opts         []string
}

// WorkerMain is the whole life of one instance: attach the plane, run the
// workload, seal the checksum, report through the exit code.
func WorkerMain(reg *stressor.Registry, o WorkerOptions) int {
	name := stressor.MungeName(o.Stressor)
	if o.KeepName {
		name = o.Stressor
	}
	_ = logging.Setup(logging.Options{Verbose: o.Verbose, Quiet: o.Quiet, ProcName: name})

	mod, err := reg.Lookup(o.Stressor)
	if err != nil {
		logging.Failf("%v", err)
		return status.Failure
	}

	statsFile := os.NewFile(3, "stressfleet-stats")
	sumsFile := os.NewFile(4, "stressfleet-checksums")
	plane, err := shm.Attach(statsFile, sumsFile)
	if err != nil {
		logging.Failf("cannot attach shared plane: %v", err)
		return status.Failure
	}
	defer plane.Close()
	logging.SetFleetLock(plane.LogLock())

	if o.Slot < 0 || o.Slot >= plane.NumSlots() {
		logging.Failf("stats slot %d out of range", o.Slot)
		return status.Failure
	}
	s := plane.Stat(o.Slot)
	sum := plane.Checksum(o.Slot)
	hdr := plane.Header()

	hdr.InstanceStarted()
	atomic.StoreUint32(&s.State, shm.StateSpawning)

	var terminated atomic.Bool
	stopSignals := installWorkerHandlers(hdr, s, &terminated)
	defer stopSignals()

	setupWorkerProcess(name, o)
	mwc.Reseed()

	rc := status.Success
	if ds, ok := mod.(stressor.Defaulter); ok {
		ds.SetDefault()
	}
	if lim, ok := mod.(stressor.Limiter); ok {
		if free := freeMemBytes(); free > 0 && o.NumInstances > 0 {
			lim.SetLimit(free / uint64(o.NumInstances))
		}
	}
	if err := applyModuleOptions(mod, o.Opts); err != nil {
		logging.Failf("%v", err)
		rc = status.Failure
	}
	if init, ok := mod.(stressor.Initializer); ok && rc == status.Success {
		if err := init.Init(); err != nil {
			logging.Warnf("init failed: %v", err)
			rc = status.NoResource
		} else {
			defer init.Deinit()
		}
	}

	// Staggered start keeps a large fleet from stampeding the scheduler.
	time.Sleep(time.Duration(o.BackoffUs*int64(o.Started)) * time.Microsecond)

	logging.Debugf("started (instance %d on CPU %d)", o.Instance, currentCPU())

	var perf adapters.PerfCounters
	if o.Perf {
		perf.Open()
	}
	irqBefore := interruptCount()

	end := time.Unix(0, o.EndNs)
	if remain := time.Until(end); remain > 0 {
		armAlarm(remain)
	}

	start := time.Now()
	s.StartNs = start.UnixNano()
	if rc == status.Success && stressor.ContinueFlag() && !o.DryRun {
		args := &stressor.Args{
			Stats:        s,
			Metrics:      s.Metrics[:],
			Name:         name,
			Verify:       o.Verify || mod.Info().Verify == stressor.VerifyAlways,
			MaxOps:       o.MaxOps,
			Instance:     uint32(o.Instance),
			NumInstances: uint32(o.NumInstances),
			PID:          os.Getpid(),
			PageSize:     plane.PageSize(),
			TimeEnd:      end,
			TempDir:      tempDirPath(o.TempPath, name, os.Getpid(), uint32(o.Instance)),
			Mapped:       &plane.Mapped,
			Info:         mod.Info(),
		}
		adapters.OOMScoreAdjust(false)

		*sum = shm.Checksum{}
		atomic.StoreUint32(&s.State, shm.StateRunning)
		start = time.Now()
		s.StartNs = start.UnixNano()
		rc = mod.Run(args)
		disarmAlarm()

		atomic.StoreUint32(&s.State, shm.StateStopping)
		s.Completed = 1
		if rc == status.Success {
			s.RunOK = 1
		}
		sum.Data.RunOK = s.RunOK

		// A counter left in a non-ready state means the worker was cut
		// down mid-update; its numbers cannot be trusted.
		if s.CounterReady == 0 && s.ForceKilled == 0 {
			logging.Warnf("bogo-ops counter in non-ready state, metrics are " +
				"untrustworthy (process may have been terminated prematurely)")
			rc = status.MetricsUntrustworthy
		}
		sum.Data.Counter = s.Counter
		sum.Finalise()
	}

	if o.Perf {
		s.PerfCycles, s.PerfInstrs, s.PerfCacheMiss = perf.Read()
		perf.Close()
	}
	if irqAfter := interruptCount(); irqAfter >= irqBefore {
		s.IRQCount = irqAfter - irqBefore
	}
	s.TZMaxMilliC = adapters.MaxThermalZoneMilliC()

	finish := time.Now()
	s.DurationNs = finish.UnixNano() - s.StartNs
	s.CounterTotal += s.Counter
	s.DurationTotalNs += s.DurationNs
	readUsage(s)

	logging.Debugf("exited (instance %d on CPU %d)", o.Instance, currentCPU())

	// Succeeded but finished well before the deadline without reaching an
	// ops budget: likely a workload bug, worth a warning. Half a second of
	// slop absorbs scheduling jitter.
	if s.RunOK == 1 && !hdr.GotSigint() &&
		finish.Add(500*time.Millisecond).Before(end) &&
		!(o.MaxOps > 0 && s.Counter >= o.MaxOps) {
		logging.Warnf("finished prematurely after just %.2fs", finish.Sub(start).Seconds())
	}

	if rc != status.Success && o.Abort {
		stressor.ContinueSet(false)
		_ = unix.Kill(os.Getppid(), unix.SIGALRM)
	}
	// A terminating signal (not the ALRM shutdown path) overrides the
	// workload's own verdict.
	if terminated.Load() {
		rc = status.Signaled
	}
	atomic.StoreUint32(&s.State, shm.StateExited)
	hdr.InstanceExited()
	if rc == status.Failure {
		hdr.InstanceFailed()
	}
	return rc
}

// installWorkerHandlers wires the child signal set: every shutdown signal
// clears the continue flag so the workload returns at its next checkpoint.
// SIGALRM is the cooperative shutdown path; only the terminating set marks
// the worker as killed by signal.
func installWorkerHandlers(hdr *shm.Header, s *shm.Stats, terminated *atomic.Bool) func() {
	signal.Ignore(ignoreSignals...)
	ch := make(chan os.Signal, 8)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGHUP, syscall.SIGALRM)
	signal.Notify(ch, terminateSignals...)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-ch:
				switch sig {
				case syscall.SIGALRM:
					if atomic.CompareAndSwapUint32(&s.Alarmed, 0, 1) {
						hdr.InstanceAlarmed()
					}
				case syscall.SIGINT, syscall.SIGHUP:
					hdr.SetCaughtSigint()
				default:
					terminated.Store(true)
				}
				stressor.ContinueSet(false)
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}

// setupWorkerProcess applies the per-child process attributes: name,
// non-dumpable, parent-death alarm, io priority, conservative umask.
func setupWorkerProcess(name string, o WorkerOptions) {
	setProcName(name)
	_ = unix.Prctl(unix.PR_SET_DUMPABLE, 0, 0, 0, 0)
	_ = unix.Prctl(unix.PR_SET_PDEATHSIG, uintptr(unix.SIGALRM), 0, 0, 0)
	setIOPriority(o.IoniceClass, o.IoniceLevel)
	unix.Umask(0o077)
}

func setProcName(name string) {
	b, err := unix.BytePtrFromString(name)
	if err != nil {
		return
	}
	_ = unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(b)), 0, 0, 0)
}

// io priority classes per the ioprio_set(2) interface.
const (
	IoprioClassRT   = 1
	IoprioClassBE   = 2
	IoprioClassIdle = 3
)

func setIOPriority(class, level int) {
	if class <= 0 {
		return
	}
	const ioprioWhoProcess = 1
	const ioprioClassShift = 13
	prio := (class << ioprioClassShift) | level
	_, _, _ = unix.Syscall(unix.SYS_IOPRIO_SET, ioprioWhoProcess, 0, uintptr(prio))
}

// readUsage folds rusage for the worker and anything it spawned into the
// stats slot.
func readUsage(s *shm.Stats) {
	var self, children unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &self); err != nil {
		return
	}
	_ = unix.Getrusage(unix.RUSAGE_CHILDREN, &children)

	s.UtimeNs = tvToNs(self.Utime) + tvToNs(children.Utime)
	s.StimeNs = tvToNs(self.Stime) + tvToNs(children.Stime)
	s.UtimeTotalNs += s.UtimeNs
	s.StimeTotalNs += s.StimeNs
	if self.Maxrss > s.MaxRSSKB {
		s.MaxRSSKB = self.Maxrss
	}
	if children.Maxrss > s.MaxRSSKB {
		s.MaxRSSKB = children.Maxrss
	}
}

func tvToNs(tv unix.Timeval) int64 {
	return tv.Sec*int64(time.Second) + tv.Usec*int64(time.Microsecond)
}

// applyModuleOptions feeds "name=value" settings to the module that owns
// them; settings for other stressors pass through silently.
func applyModuleOptions(mod stressor.Module, opts []string) error {
	setter, ok := mod.(stressor.OptionSetter)
	if !ok {
		return nil
	}
	known := map[string]struct{}{}
	for _, opt := range setter.Options() {
		known[opt] = struct{}{}
	}
	for _, kv := range opts {
		name, value, found := strings.Cut(kv, "=")
		if !found {
			return fmt.Errorf("malformed option %q, want name=value", kv)
		}
		if _, mine := known[name]; !mine {
			continue
		}
		if err := setter.SetOption(name, value); err != nil {
			return fmt.Errorf("option %s: %w", name, err)
		}
	}
	return nil
}

func currentCPU() int {
	// unix.Getcpu is not exported by this version of golang.org/x/sys/unix;
	// call the getcpu(2) syscall directly instead.
	var cpu, node uint32
	_, _, errno := unix.Syscall(unix.SYS_GETCPU,
		uintptr(unsafe.Pointer(&cpu)), uintptr(unsafe.Pointer(&node)), 0)
	if errno != 0 {
		return -1
	}
	return int(cpu)
}

// freeMemBytes reports currently free RAM, for sizing workload ceilings.
func freeMemBytes() uint64 {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return 0
	}
	unit := uint64(si.Unit)
	if unit == 0 {
		unit = 1
	}
	return uint64(si.Freeram) * unit
}

// interruptCount reads the host's total interrupt count from /proc/stat.
func interruptCount() uint64 {
	data, err := os.ReadFile("/proc/stat")
	if err != nil {
		return 0
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "intr ") {
			fields := strings.Fields(line)
			if len(fields) > 1 {
				var n uint64
				_, _ = fmt.Sscanf(fields[1], "%d", &n)
				return n
			}
		}
	}
	return 0
}
