package fleet

import (
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"

	"stressfleet/core/plan"
	"stressfleet/core/status"
	"stressfleet/core/stressor"
	"stressfleet/logging"
	"stressfleet/shm"
)

// waitStressors reaps every started child of the given entries. In
// aggressive mode it first churns CPU affinities until the fleet drains.
func (r *Runner) waitStressors(entries []*plan.Entry) {
	if r.Cfg.Aggressive {
		r.waitAggressive(entries)
	}
	for _, e := range entries {
		if !e.Runnable() || e.Ignore.Permute {
			continue
		}
		for j := int32(0); j < e.Instances; j++ {
			s := r.Plane.Stat(e.SlotBase + int(j))
			pid := atomic.LoadInt64(&s.PID)
			if pid > 0 {
				r.waitPid(e, int(pid), s)
				if !r.Cfg.KeepFiles {
					cleanTempDir(r.Cfg.TempPath, e.Name(), int(pid), uint32(j))
				}
			}
		}
	}
}

// waitPid blocks until one child is reaped and folds its exit status into
// the entry's accounting.
func (r *Runner) waitPid(e *plan.Entry, pid int, s *shm.Stats) {
	var ws unix.WaitStatus
	for {
		reaped, err := unix.Wait4(pid, &ws, 0, nil)
		if err == syscall.EINTR {
			// Somebody interrupted the wait.
			continue
		}
		if err == syscall.ECHILD {
			// Child gone already; mark the slot done anyhow.
			r.instanceFinished(s)
			return
		}
		if err != nil || reaped != pid {
			logging.Failf("%s: [%d] wait failed: %v", e.Name(), pid, err)
			r.instanceFinished(s)
			return
		}
		break
	}

	exitStatus := ws.ExitStatus()
	doAbort := false

	if ws.Signaled() {
		sig := ws.Signal()
		if sig != unix.SIGALRM {
			logging.Debugf("%s: [%d] terminated on signal: %d (%s)",
				e.Name(), pid, int(sig), sig.String())
		}
		// An OOM or SIGKILL death came from outside the harness, so it
		// is not flagged as a direct failure.
		switch {
		case r.Adapt.OOMKilled(pid):
			logging.Debugf("%s: [%d] killed by the OOM killer", e.Name(), pid)
		case sig == unix.SIGKILL:
			logging.Debugf("%s: [%d] possibly killed by the OOM killer", e.Name(), pid)
		case sig != unix.SIGALRM:
			r.res.Success = false
		}
		// A signalled child carries no exit code of its own; it reads as
		// zero, so the verdict above stands and the exit table sees success.
		exitStatus = status.Success
	}

	switch exitStatus {
	case status.Success:
		e.Status[plan.StatusPassed]++
	case status.NoResource:
		e.Status[plan.StatusSkipped]++
		logging.Warnf("%s: [%d] aborted early, out of system resources", e.Name(), pid)
		r.res.ResourceSuccess = false
		doAbort = true
	case status.NotImplemented:
		e.Status[plan.StatusSkipped]++
		doAbort = true
	case status.Signaled:
		doAbort = true
	case status.BySysExit:
		e.Status[plan.StatusFailed]++
		logging.Debugf("%s: [%d] aborted via exit() which was not expected", e.Name(), pid)
		doAbort = true
	case status.MetricsUntrustworthy:
		e.Status[plan.StatusBadMetrics]++
		r.res.MetricsSuccess = false
	case status.Failure:
		// A worker-side harness bug; report as a stressor failure.
		e.Status[plan.StatusFailed]++
		exitStatus = status.NotSuccess
		fallthrough
	default:
		logging.Failf("%s: [%d] terminated with an error, exit status=%d (%s)",
			e.Name(), pid, exitStatus, status.String(exitStatus))
		r.res.Success = false
		doAbort = true
	}
	r.res.Worst.Observe(exitStatus)

	if r.Cfg.Abort && doAbort {
		stressor.ContinueSet(false)
		r.waitFlag.Store(false)
		r.killStressors(true)
	}

	r.instanceFinished(s)
	logging.Debugf("%s: [%d] terminated (%s)", e.Name(), pid, status.String(exitStatus))
}

// instanceFinished clears the slot's PID so later broadcast and reap
// passes skip it, and counts the reap.
func (r *Runner) instanceFinished(s *shm.Stats) {
	atomic.StoreInt64(&s.PID, 0)
	atomic.StoreUint32(&s.State, shm.StateReaped)
	r.Plane.Header().InstanceReaped()
}
