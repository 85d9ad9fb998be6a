// Package logging provides the harness log surface. Lines go through zap;
// when the shared plane is up, a futex lock in the shared header serialises
// writers across the whole fleet so parent and worker lines do not shear.
// Fatal-signal paths must not come through here; they write preformatted
// buffers with raw write(2) (see fleet.RawDiag).
package logging

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configure the process logger once, at startup.
type Options struct {
	Verbose  bool // debug lines
	Quiet    bool // errors only
	LogFile  string
	ProcName string // worker name prefix, e.g. "cpu"
}

type state struct {
	mu       sync.Mutex
	log      *zap.SugaredLogger
	procName string
	fileSync func() error

	fleetLock sync.Locker

	warnMu   sync.Mutex
	warnSeen map[string]struct{}
}

var cur = &state{
	log:      newLogger(Options{}, os.Stderr),
	warnSeen: map[string]struct{}{},
}

func newLogger(opts Options, sink *os.File) *zap.SugaredLogger {
	level := zapcore.InfoLevel
	if opts.Verbose {
		level = zapcore.DebugLevel
	}
	if opts.Quiet {
		level = zapcore.ErrorLevel
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = "" // harness lines carry their own context
	enc := zapcore.NewConsoleEncoder(encCfg)
	core := zapcore.NewCore(enc, zapcore.Lock(sink), level)
	return zap.New(core).Sugar()
}

// Setup reconfigures the process logger. Call once before spawning.
func Setup(opts Options) error {
	cur.mu.Lock()
	defer cur.mu.Unlock()

	log := newLogger(opts, os.Stderr)
	if opts.LogFile != "" {
		f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("logging: open %s: %w", opts.LogFile, err)
		}
		cur.fileSync = f.Sync
		// The file gets a copy of every line that goes to stderr.
		tee := zapcore.NewTee(log.Desugar().Core(), newLogger(opts, f).Desugar().Core())
		log = zap.New(tee).Sugar()
	}
	cur.log = log
	cur.procName = opts.ProcName
	return nil
}

// SetFleetLock installs the shared-plane lock used to serialise log writes
// across processes. Pass nil to drop back to process-local locking.
func SetFleetLock(l sync.Locker) {
	cur.mu.Lock()
	defer cur.mu.Unlock()
	cur.fleetLock = l
}

func (s *state) emit(f func(*zap.SugaredLogger)) {
	s.mu.Lock()
	log := s.log
	lock := s.fleetLock
	s.mu.Unlock()

	if lock != nil {
		lock.Lock()
		defer lock.Unlock()
	}
	f(log)
}

func (s *state) prefix(format string) string {
	if s.procName == "" {
		return format
	}
	return s.procName + ": [" + fmt.Sprint(os.Getpid()) + "] " + format
}

// Debugf is a debug line, visible under --verbose.
func Debugf(format string, args ...any) {
	cur.emit(func(l *zap.SugaredLogger) { l.Debugf(cur.prefix(format), args...) })
}

// Infof is a normal harness line.
func Infof(format string, args ...any) {
	cur.emit(func(l *zap.SugaredLogger) { l.Infof(cur.prefix(format), args...) })
}

// Warnf is a non-fatal complaint.
func Warnf(format string, args ...any) {
	cur.emit(func(l *zap.SugaredLogger) { l.Warnf(cur.prefix(format), args...) })
}

// Failf reports a validation or integrity failure. The run continues; the
// caller is responsible for folding the failure into the exit status.
func Failf(format string, args ...any) {
	cur.emit(func(l *zap.SugaredLogger) { l.Errorf(cur.prefix(format), args...) })
}

// Metricf writes a metrics table line to stdout, outside zap so the table
// stays machine-parsable.
func Metricf(format string, args ...any) {
	cur.emit(func(*zap.SugaredLogger) {
		fmt.Fprintf(os.Stdout, format+"\n", args...)
	})
}

// WarnOncef emits a warning a single time per key for the process lifetime.
func WarnOncef(key, format string, args ...any) {
	cur.warnMu.Lock()
	_, seen := cur.warnSeen[key]
	if !seen {
		cur.warnSeen[key] = struct{}{}
	}
	cur.warnMu.Unlock()
	if !seen {
		Warnf(format, args...)
	}
}

// Sync flushes any file sink.
func Sync() {
	cur.mu.Lock()
	defer cur.mu.Unlock()
	_ = cur.log.Sync()
	if cur.fileSync != nil {
		_ = cur.fileSync()
	}
}
