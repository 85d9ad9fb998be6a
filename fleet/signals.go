package fleet

import (
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"stressfleet/core/stressor"
	"stressfleet/logging"
)

// terminating signals beyond the interrupt pair; any of these starts the
// shutdown broadcast.
var terminateSignals = []os.Signal{
	syscall.SIGQUIT,
	syscall.SIGTERM,
	syscall.SIGXCPU,
	syscall.SIGXFSZ,
	unix.SIGPWR,
	syscall.SIGVTALRM,
}

var ignoreSignals = []os.Signal{
	syscall.SIGUSR1,
	syscall.SIGTTOU,
	syscall.SIGTTIN,
	syscall.SIGWINCH,
}

// alarmInfo records an externally sourced SIGALRM for diagnostics. The
// runtime does not expose siginfo, so origin is inferred: an alarm that
// fires while no deadline is armed, or well before it, was user-sent.
type alarmInfo struct {
	triggered atomic.Bool
	whenNs    atomic.Int64
}

func (a *alarmInfo) record() {
	if a.triggered.CompareAndSwap(false, true) {
		a.whenNs.Store(time.Now().UnixNano())
	}
}

// installHandlers wires the parent signal plane. It returns a stop function
// that removes the handlers and drains the delivery goroutine.
func (r *Runner) installHandlers() func() {
	signal.Ignore(ignoreSignals...)

	ch := make(chan os.Signal, 16)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGHUP, syscall.SIGALRM, syscall.SIGUSR2)
	signal.Notify(ch, terminateSignals...)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-ch:
				r.handleSignal(sig)
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

func (r *Runner) handleSignal(sig os.Signal) {
	switch sig {
	case syscall.SIGINT, syscall.SIGHUP:
		r.interrupted.Store(true)
		r.Plane.Header().SetCaughtSigint()
		stressor.ContinueSet(false)
		r.waitFlag.Store(false)
		r.killStressors(true)

	case syscall.SIGALRM:
		if !r.deadlineArmed.Load() || time.Now().Before(r.deadlineAt.Load().(time.Time).Add(-time.Second)) {
			r.sigalrm.record()
		}
		r.Plane.Header().SetCaughtSigint()
		r.waitFlag.Store(false)
		r.killStressors(false)

	case syscall.SIGUSR2:
		statsSnapshot()

	default:
		// Terminating set: one-line diagnostic, broadcast, shut down.
		r.terminated.Store(true)
		stressor.ContinueSet(false)
		r.waitFlag.Store(false)
		RawDiag("stressfleet: info: [" + strconv.Itoa(os.Getpid()) +
			"] terminated by signal " + sig.String() + "\n")
		r.killStressors(true)
	}
}

// killStressors broadcasts shutdown to every live instance. The signalled
// bit stops duplicate SIGALRMs; after five forced broadcasts the signal is
// upgraded to SIGKILL and resent regardless.
func (r *Runner) killStressors(force bool) {
	sig := unix.SIGALRM
	if force {
		if r.killCount.Add(1) > 5 {
			sig = unix.SIGKILL
		}
	}
	for _, e := range r.List.Entries {
		if !e.Runnable() {
			continue
		}
		for j := int32(0); j < e.Instances; j++ {
			s := r.Plane.Stat(e.SlotBase + int(j))
			pid := atomic.LoadInt64(&s.PID)
			if pid <= 0 {
				continue
			}
			if atomic.LoadUint32(&s.Signalled) != 0 && sig != unix.SIGKILL {
				continue
			}
			_ = unix.Kill(int(pid), sig)
			atomic.StoreUint32(&s.Signalled, 1)
		}
	}
}

// statsSnapshot emits a one-line system snapshot: load averages and free
// memory. Formatted into a fixed buffer and written with write(2).
func statsSnapshot() {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return
	}
	const scale = 65536.0
	buf := make([]byte, 0, 96)
	buf = append(buf, "Load Avg: "...)
	for i, v := range si.Loads {
		if i > 0 {
			buf = append(buf, ' ')
		}
		buf = strconv.AppendFloat(buf, float64(v)/scale, 'f', 2, 64)
	}
	mb := uint64(si.Unit)
	if mb == 0 {
		mb = 1
	}
	buf = append(buf, ", MemFree: "...)
	buf = strconv.AppendUint(buf, uint64(si.Freeram)*mb>>20, 10)
	buf = append(buf, " MB, MemTotal: "...)
	buf = strconv.AppendUint(buf, uint64(si.Totalram)*mb>>20, 10)
	buf = append(buf, " MB\n"...)
	_, _ = unix.Write(1, buf)
}

// RawDiag writes a preformatted diagnostic straight to stderr with
// write(2), bypassing the logger and its locks; usable from terminal
// shutdown paths.
func RawDiag(line string) {
	_, _ = unix.Write(2, []byte(line))
}

// armDeadline installs the overall run timeout as a real ITIMER_REAL so an
// outside observer sees the same SIGALRM the original's alarm(2) raised.
func (r *Runner) armDeadline(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	r.deadlineAt.Store(time.Now().Add(timeout))
	r.deadlineArmed.Store(true)
	armAlarm(timeout)
}

func (r *Runner) disarmDeadline() {
	disarmAlarm()
	r.deadlineArmed.Store(false)
}

// armAlarm raises SIGALRM in this process after d.
func armAlarm(d time.Duration) {
	it := unix.Itimerval{Value: unix.NsecToTimeval(d.Nanoseconds())}
	_, _ = unix.Setitimer(unix.ITIMER_REAL, it)
}

func disarmAlarm() {
	_, _ = unix.Setitimer(unix.ITIMER_REAL, unix.Itimerval{})
}

// noteExternalAlarm logs a recorded user-sent SIGALRM, if any.
func (r *Runner) noteExternalAlarm() {
	if r.sigalrm.triggered.Load() {
		when := time.Unix(0, r.sigalrm.whenNs.Load())
		logging.Debugf("terminated by SIGALRM externally at %s (sender pid/uid unavailable)",
			when.Format("15:04:05.00"))
	}
}
