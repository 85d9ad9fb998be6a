// Package fleet fans the run list out into worker processes and drives
// their lifecycle: spawn with staggered backoff, signal-driven shutdown
// with escalation, wait/reap with partial-failure accounting, and the three
// execution policies sharing one launch/reap core.
package fleet

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"stressfleet/adapters"
	"stressfleet/core/plan"
	"stressfleet/core/status"
	"stressfleet/core/stressor"
	"stressfleet/logging"
	"stressfleet/shm"
)

// DefaultTimeout is the per-run wall clock budget when none is given.
const DefaultTimeout = 24 * time.Hour

// DefaultSequentialTimeout bounds each entry in sequential mode when no
// timeout was given.
const DefaultSequentialTimeout = 60 * time.Second

// DefaultBackoff is the per-instance spawn stagger.
const DefaultBackoff = 10000 * time.Microsecond

// maxPermute clamps how many runnable entries participate in permute mode;
// entries beyond the clamp never permute.
const maxPermute = 16

// Config carries the fleet-level knobs resolved from the CLI.
type Config struct {
	Timeout     time.Duration
	Backoff     time.Duration
	Abort       bool
	Aggressive  bool
	Perf        bool
	Verify      bool
	DryRun      bool
	KeepFiles   bool
	KeepName    bool
	TempPath    string
	IoniceClass int
	IoniceLevel int
	Verbose     bool
	Quiet       bool
	// StressorOpts are per-stressor "name=value" settings forwarded to
	// every worker verbatim.
	StressorOpts []string
}

// Results summarises a completed run.
type Results struct {
	Duration        time.Duration
	Success         bool
	ResourceSuccess bool
	MetricsSuccess  bool
	CaughtSigint    bool
	Worst           status.Worst
}

// Runner owns one fleet execution across the shared plane.
type Runner struct {
	Plane *shm.Plane
	List  *plan.List
	Cfg   Config
	Adapt *adapters.Set

	res Results

	waitFlag      atomic.Bool
	terminated    atomic.Bool
	interrupted   atomic.Bool
	killCount     atomic.Int32
	deadlineArmed atomic.Bool
	deadlineAt    atomic.Value
	sigalrm       alarmInfo
}

// NewRunner wires a runner over an allocated plane and planned list.
func NewRunner(p *shm.Plane, l *plan.List, cfg Config, adapt *adapters.Set) *Runner {
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if adapt == nil {
		adapt = adapters.NewSet(adapters.Options{})
	}
	return &Runner{Plane: p, List: l, Cfg: cfg, Adapt: adapt,
		res: Results{Success: true, ResourceSuccess: true, MetricsSuccess: true}}
}

// RunParallel executes every active entry's instances at once.
func (r *Runner) RunParallel() Results {
	stop := r.installHandlers()
	defer stop()

	timeout := r.Cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	r.runOnce(r.List.Entries, timeout)
	return r.finish()
}

// RunSequential walks entries one at a time, running each entry's
// instances in parallel in isolation.
func (r *Runner) RunSequential() Results {
	stop := r.installHandlers()
	defer stop()

	timeout := r.Cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultSequentialTimeout
	}
	for _, e := range r.List.Entries {
		if !stressor.ContinueFlag() {
			break
		}
		if !e.Runnable() || e.Instances == 0 {
			continue
		}
		// Detach the entry: a one-entry view keeps every other entry's
		// children unspawned while this one runs.
		r.runOnce([]*plan.Entry{e}, timeout)
	}
	return r.finish()
}

// RunPermute runs every non-empty subset of the first maxPermute runnable
// entries, in natural integer order of the subset mask.
func (r *Runner) RunPermute() Results {
	stop := r.installHandlers()
	defer stop()

	timeout := r.Cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var runnable []*plan.Entry
	for _, e := range r.List.Entries {
		e.Ignore.Permute = true
		if e.Runnable() && e.Instances > 0 {
			runnable = append(runnable, e)
		}
	}
	perms := len(runnable)
	if perms > maxPermute {
		logging.Infof("permute: limiting to first %d stressors", maxPermute)
		perms = maxPermute
	}
	numPerms := 1 << perms

	for i := 1; stressor.ContinueFlag() && i < numPerms; i++ {
		names := applyPermuteMask(runnable, i, perms)
		logging.Infof("permute: %s", strings.Join(names, ", "))
		r.runOnce(r.List.Entries, timeout)
		logging.Infof("permute: %.2f%% complete", float64(i)/float64(numPerms-1)*100.0)
	}
	for _, e := range r.List.Entries {
		e.Ignore.Permute = false
	}
	return r.finish()
}

// applyPermuteMask enables exactly the runnable entries whose bit is set
// in mask and returns their names in list order.
func applyPermuteMask(runnable []*plan.Entry, mask, perms int) []string {
	var names []string
	for j := 0; j < perms; j++ {
		on := mask&(1<<j) != 0
		runnable[j].Ignore.Permute = !on
		if on {
			names = append(names, runnable[j].Name())
		}
	}
	return names
}

// runOnce launches the active instances of the given entries, arms the
// deadline, then reaps the lot. It is the shared core of all three
// policies.
func (r *Runner) runOnce(entries []*plan.Entry, timeout time.Duration) {
	r.waitFlag.Store(true)
	r.killCount.Store(0)
	start := time.Now()
	started := int32(0)
	logging.Debugf("starting stressors")

	deadline := time.Now().Add(timeout)
launch:
	for _, e := range entries {
		if !e.Active() {
			continue
		}
		for j := int32(0); j < e.Instances; j++ {
			if timeout > 0 && time.Now().After(deadline) {
				break launch
			}
			if !stressor.ContinueFlag() {
				break launch
			}
			slot := e.SlotBase + int(j)
			s := r.Plane.Stat(slot)
			s.PID = -1
			s.CounterReady = 1
			s.Counter = 0
			atomic.StoreUint32(&s.State, shm.StatePlanned)

			pid, err := r.spawnInstance(e, j, slot, started, deadline)
			if err != nil {
				logging.Failf("cannot spawn %s instance %d: %v", e.Name(), j, err)
				r.killStressors(false)
				break launch
			}
			atomic.StoreInt64(&s.PID, int64(pid))
			atomic.StoreUint32(&s.Signalled, 0)
			started++
			r.Adapt.FtraceAddPID(pid)

			if !stressor.ContinueFlag() {
				logging.Debugf("abort signal during startup, cleaning up")
				r.killStressors(true)
				break launch
			}
		}
	}
	logging.Debugf("%d stressors started", started)

	r.armDeadline(timeout)
	r.Adapt.IgniteStart()
	r.waitStressors(entries)
	r.Adapt.IgniteStop()
	r.disarmDeadline()

	r.res.Duration += time.Since(start)
}

func (r *Runner) finish() Results {
	r.noteExternalAlarm()
	r.res.CaughtSigint = r.interrupted.Load()
	if r.terminated.Load() {
		r.res.Worst.Observe(status.Signaled)
	}
	if !r.res.Success {
		r.res.Worst.Observe(status.NotSuccess)
	}
	if !r.res.ResourceSuccess {
		r.res.Worst.Observe(status.NoResource)
	}
	if !r.res.MetricsSuccess {
		r.res.Worst.Observe(status.MetricsUntrustworthy)
	}
	return r.res
}

// Banner logs the dispatching line naming every stressor about to run.
func (r *Runner) Banner() {
	var parts []string
	for _, e := range r.List.Entries {
		if e.Runnable() && e.Instances > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", e.Instances, e.Name()))
		}
	}
	logging.Infof("dispatching hogs: %s", strings.Join(parts, ", "))
}
