// Package stressor defines the workload module contract and the catalog the
// run-plan builder selects from. The orchestrator sees every workload only
// through the Module interface and its optional capability extensions.
package stressor

import (
	"sync/atomic"
	"time"

	"stressfleet/shm"
)

// VerifyMode describes whether a stressor can self-check its work.
type VerifyMode int

const (
	VerifyNone VerifyMode = iota
	VerifyOptional
	VerifyAlways
)

// Help is one usage line contributed by a module.
type Help struct {
	Opt         string
	Description string
}

// Info is the immutable descriptor of a stressor. Identity is the ID, never
// the address of the module value.
type Info struct {
	ID     uint32
	Name   string
	Short  byte
	Class  Class
	Verify VerifyMode
	OpsOpt string
	Help   []Help
}

// Module is the uniform surface every workload exposes to the core.
type Module interface {
	Info() *Info
	// Run executes the workload until the continue check fails, bumping
	// the bogo-ops counter as work completes, and returns a status code
	// from core/status.
	Run(args *Args) int
}

// SupportChecker is implemented by modules that can refuse to run on this
// host. A non-nil error marks the entry unsupported during planning.
type SupportChecker interface {
	Supported(name string) error
}

// Initializer is implemented by modules with per-run setup and teardown.
type Initializer interface {
	Init() error
	Deinit()
}

// Defaulter is implemented by modules with settings to reset before a run.
type Defaulter interface {
	SetDefault()
}

// Limiter is implemented by modules that honor a resource ceiling.
type Limiter interface {
	SetLimit(max uint64)
}

// OptionSetter is implemented by modules with their own tunables. Setters
// receive raw option text and validate it themselves.
type OptionSetter interface {
	Options() []string
	SetOption(name, value string) error
}

// Args is handed to Module.Run inside the worker process.
type Args struct {
	// Stats is the worker's own slot in the shared stats segment; the
	// workload mutates Counter, CounterReady, RunOK and ForceKilled.
	Stats *shm.Stats
	// Metrics views the auxiliary metric slots of the same record.
	Metrics []shm.Metric

	Name         string
	Verify       bool
	MaxOps       uint64
	Instance     uint32
	NumInstances uint32
	PID          int
	PageSize     int
	TimeEnd      time.Time
	TempDir      string
	Mapped       *shm.Mapped
	Info         *Info
}

// continueFlag is the process-wide run/stop flag. It starts true and is
// cleared by signal delivery or an abort; workloads poll it at their
// checkpoints. It is a plain data word so the signal path can clear it
// without taking locks or allocating.
var continueFlag atomic.Bool

func init() { continueFlag.Store(true) }

// ContinueSet flips the global continue flag.
func ContinueSet(v bool) { continueFlag.Store(v) }

// ContinueFlag reports the global continue flag alone.
func ContinueFlag() bool { return continueFlag.Load() }

// Continue is the workload checkpoint: true while the run flag holds and the
// ops budget, if any, has not been reached.
func (a *Args) Continue() bool {
	return continueFlag.Load() && (a.MaxOps == 0 || a.Stats.Counter < a.MaxOps)
}

// BumpCounter adds completed work to the bogo-ops counter.
func (a *Args) BumpCounter(n uint64) { a.Stats.AddCounter(n) }
