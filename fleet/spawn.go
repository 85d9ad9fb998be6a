package fleet

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"stressfleet/core/plan"
	"stressfleet/core/stressor"
)

// spawnInstance launches one worker process for entry e, instance j,
// writing stats slot `slot`. The worker is this same executable re-entered
// through the hidden worker subcommand; the two shared segments ride along
// as descriptors 3 and 4. EAGAIN is retried forever with a short sleep,
// bounded in practice by the run deadline.
func (r *Runner) spawnInstance(e *plan.Entry, j int32, slot int, started int32, deadline time.Time) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("resolve own executable: %w", err)
	}
	statsFile, sumsFile := r.Plane.Files()
	if statsFile == nil || sumsFile == nil {
		return 0, errors.New("shared plane has no backing files")
	}

	args := []string{
		"worker",
		"--stressor", e.Name(),
		"--slot", strconv.Itoa(slot),
		"--instance", strconv.FormatInt(int64(j), 10),
		"--num-instances", strconv.FormatInt(int64(e.Instances), 10),
		"--max-ops", strconv.FormatUint(e.OpsBudget, 10),
		"--end-ns", strconv.FormatInt(deadline.UnixNano(), 10),
		"--backoff-us", strconv.FormatInt(r.Cfg.Backoff.Microseconds(), 10),
		"--started", strconv.FormatInt(int64(started), 10),
		"--ionice-class", strconv.Itoa(r.Cfg.IoniceClass),
		"--ionice-level", strconv.Itoa(r.Cfg.IoniceLevel),
		"--temp-path", r.Cfg.TempPath,
	}
	if r.Cfg.Verify || e.Module.Info().Verify == stressor.VerifyAlways {
		args = append(args, "--verify")
	}
	if r.Cfg.DryRun {
		args = append(args, "--dry-run")
	}
	if r.Cfg.Abort {
		args = append(args, "--abort")
	}
	if r.Cfg.Perf {
		args = append(args, "--perf")
	}
	if r.Cfg.KeepFiles {
		args = append(args, "--keep-files")
	}
	if r.Cfg.KeepName {
		args = append(args, "--keep-name")
	}
	if r.Cfg.Verbose {
		args = append(args, "--verbose")
	}
	if r.Cfg.Quiet {
		args = append(args, "--quiet")
	}
	for _, opt := range r.Cfg.StressorOpts {
		args = append(args, "--set", opt)
	}

	for {
		cmd := exec.Command(exe, args...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.ExtraFiles = []*os.File{statsFile, sumsFile}
		err := cmd.Start()
		if err == nil {
			// The child is reaped by the fleet wait cycle, not by
			// cmd.Wait; release the handle so exec.Cmd does not
			// interfere.
			pid := cmd.Process.Pid
			_ = cmd.Process.Release()
			return pid, nil
		}
		if isEAGAIN(err) {
			time.Sleep(100 * time.Millisecond)
			if !stressor.ContinueFlag() || time.Now().After(deadline) {
				return 0, fmt.Errorf("spawn retries exhausted: %w", err)
			}
			continue
		}
		return 0, err
	}
}

func isEAGAIN(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EAGAIN
	}
	var sysErr *os.SyscallError
	if errors.As(err, &sysErr) {
		if errno, ok := sysErr.Err.(syscall.Errno); ok {
			return errno == syscall.EAGAIN
		}
	}
	return false
}
