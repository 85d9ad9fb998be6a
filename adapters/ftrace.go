package adapters

import (
	"os"
	"strconv"
	"sync"

	"stressfleet/logging"
)

const ftracePIDPath = "/sys/kernel/tracing/set_ftrace_pid"

// ftraceTracker registers fleet PIDs with the kernel function tracer's PID
// filter so an operator-configured trace follows only our children.
type ftraceTracker struct {
	mu   sync.Mutex
	file *os.File
}

func startFtrace() *ftraceTracker {
	f, err := os.OpenFile(ftracePIDPath, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		logging.Debugf("ftrace: %v", err)
		return nil
	}
	return &ftraceTracker{file: f}
}

func (t *ftraceTracker) addPID(pid int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = t.file.WriteString(strconv.Itoa(pid) + "\n")
}

func (t *ftraceTracker) stop() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.file.Close()
}
