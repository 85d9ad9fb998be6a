// Package plan turns selection inputs into the ordered run list the fleet
// scheduler executes. The list is built once during planning and mutated
// only by planning hooks; ignore flags keep dropped entries in place so
// status reporting can still name them.
package plan

import (
	"errors"
	"fmt"

	"stressfleet/core/mwc"
	"stressfleet/core/stressor"
)

// IgnoreReason says why an entry produces no children.
type IgnoreReason uint8

const (
	NotIgnored IgnoreReason = iota
	Unsupported
	Excluded
)

// Status kinds accumulated per entry during the reap cycle.
const (
	StatusPassed = iota
	StatusSkipped
	StatusFailed
	StatusBadMetrics
	numStatus
)

// Ignore carries the two ignore dimensions: Run drops an entry from every
// run; Permute drops it from the current permutation only.
type Ignore struct {
	Run     IgnoreReason
	Permute bool
}

// Entry is one row of the run list: one stressor at a chosen multiplicity.
type Entry struct {
	Module    stressor.Module
	Instances int32
	OpsBudget uint64 // per-instance budget after sharing; 0 = run to deadline
	Ignore    Ignore

	// SlotBase indexes this entry's first record in the shared stats
	// array; instances j occupies SlotBase+j.
	SlotBase int

	Status    [numStatus]uint32
	Completed int32
}

// Name returns the entry's munged stressor name.
func (e *Entry) Name() string { return stressor.MungeName(e.Module.Info().Name) }

// Runnable reports whether the entry may produce children at all.
func (e *Entry) Runnable() bool { return e.Ignore.Run == NotIgnored }

// Active reports whether the entry produces children in the current run,
// honoring the per-permutation flag.
func (e *Entry) Active() bool {
	return e.Ignore.Run == NotIgnored && !e.Ignore.Permute && e.Instances > 0
}

// List is the ordered run list.
type List struct {
	Entries []*Entry
}

// TotalInstances sums instance counts over entries that will run.
func (l *List) TotalInstances() int {
	total := 0
	for _, e := range l.Entries {
		if e.Runnable() {
			total += int(e.Instances)
		}
	}
	return total
}

// AssignSlots gives each runnable entry its (offset, len) view into the
// shared stats array and returns the total slot count.
func (l *List) AssignSlots() int {
	next := 0
	for _, e := range l.Entries {
		if !e.Runnable() {
			continue
		}
		e.SlotBase = next
		next += int(e.Instances)
	}
	return next
}

// Mode selects how the run list is built and executed.
type Mode int

const (
	ModeExplicit Mode = iota
	ModeParallel
	ModeSequential
	ModePermute
	ModeRandom
)

func (m Mode) String() string {
	switch m {
	case ModeExplicit:
		return "explicit"
	case ModeParallel:
		return "parallel"
	case ModeSequential:
		return "sequential"
	case ModePermute:
		return "permute"
	case ModeRandom:
		return "random"
	}
	return "unknown"
}

// Selection is one explicitly requested stressor. Order is preserved so a
// given command line always yields the same run list.
type Selection struct {
	Name      string
	Instances int32
	OpsBudget uint64
}

// Inputs are the planning inputs. ConfiguredCPUs and OnlineCPUs resolve the
// instance-count conventions: a count of 0 means "configured CPUs" and a
// negative count means "online CPUs".
type Inputs struct {
	Explicit          []Selection
	Mode              Mode
	Count             int32
	Class             stressor.Class
	Exclude           []string
	With              []string
	AllowPathological bool
	Rand              *mwc.State
	ConfiguredCPUs    int32
	OnlineCPUs        int32
}

// ErrOnlyUnsupported is returned with a valid (empty-of-work) list when
// every selected stressor was dropped as unsupported; the caller exits
// success in that case.
var ErrOnlyUnsupported = errors.New("plan: all selected stressors unsupported")

// Build applies the planning rules in order and returns the run list.
func Build(reg *stressor.Registry, in Inputs) (*List, error) {
	if err := validate(in); err != nil {
		return nil, err
	}

	l := &List{}
	index := map[uint32]*Entry{}
	add := func(m stressor.Module, instances int32) *Entry {
		info := m.Info()
		if e, ok := index[info.ID]; ok {
			e.Instances += instances
			return e
		}
		e := &Entry{Module: m, Instances: instances}
		index[info.ID] = e
		l.Entries = append(l.Entries, e)
		return e
	}

	// Rule 1: seed from explicit mentions, preserving order.
	for _, sel := range in.Explicit {
		m, err := reg.Lookup(sel.Name)
		if err != nil {
			return nil, err
		}
		e := add(m, resolveCount(sel.Instances, in))
		e.OpsBudget = sel.OpsBudget
	}

	switch in.Mode {
	case ModeRandom:
		// Rule 2: random-N samples the full catalog with replacement,
		// each draw adding one instance to the drawn stressor.
		if len(in.Explicit) > 0 {
			return nil, errors.New("plan: cannot use random selection with explicitly chosen stressors")
		}
		for _, m := range reg.All() {
			add(m, 0)
		}
		n := resolveCount(in.Count, in)
		rnd := in.Rand
		if rnd == nil {
			rnd = mwc.New()
		}
		for i := int32(0); i < n; i++ {
			pick := int(rnd.Rand32ModN(uint32(len(l.Entries))))
			l.Entries[pick].Instances++
		}

	case ModeParallel, ModeSequential, ModePermute:
		// Rule 3: a with-list restricts the enabled set; otherwise the
		// whole catalog runs at the chosen multiplicity. When stressors
		// were named explicitly and there is no with-list, only the named
		// ones run and the catalog is not added.
		count := resolveCount(in.Count, in)
		if len(in.With) > 0 {
			for _, name := range in.With {
				m, err := reg.Lookup(name)
				if err != nil {
					return nil, err
				}
				add(m, count)
			}
		} else if len(in.Explicit) == 0 {
			for _, m := range reg.All() {
				add(m, count)
			}
		}
	}

	// Rule 4: the class filter zeroes instance counts outside the mask but
	// keeps the entries listed.
	if in.Class != 0 {
		for _, e := range l.Entries {
			if !e.Module.Info().Class.Intersects(in.Class) {
				e.Instances = 0
			}
		}
	}

	// Rule 5: per-module supported() hook.
	unsupported := false
	for _, e := range l.Entries {
		if e.Instances == 0 || e.Ignore.Run != NotIgnored {
			continue
		}
		if sc, ok := e.Module.(stressor.SupportChecker); ok {
			if err := sc.Supported(e.Name()); err != nil {
				e.Ignore.Run = Unsupported
				unsupported = true
			}
		}
	}

	// Rule 6: pathological workloads run only behind the opt-in.
	if !in.AllowPathological {
		for _, e := range l.Entries {
			if e.Instances > 0 && e.Ignore.Run == NotIgnored &&
				e.Module.Info().Class.Intersects(stressor.ClassPathological) {
				e.Ignore.Run = Excluded
			}
		}
	}

	// Rule 7: the exclusion list.
	for _, name := range in.Exclude {
		m, err := reg.Lookup(name)
		if err != nil {
			return nil, err
		}
		if e, ok := index[m.Info().ID]; ok {
			e.Ignore.Run = Excluded
		}
	}

	if l.TotalInstances() == 0 {
		if unsupported && onlyUnsupported(l) {
			return l, ErrOnlyUnsupported
		}
		return l, errors.New("plan: no stress workers invoked")
	}
	return l, nil
}

func validate(in Inputs) error {
	if in.Class != 0 {
		switch in.Mode {
		case ModeParallel, ModeSequential, ModePermute:
		default:
			return fmt.Errorf("plan: class selection needs --sequential, --all or --permute")
		}
	}
	return nil
}

// resolveCount applies the instance-count conventions.
func resolveCount(n int32, in Inputs) int32 {
	switch {
	case n == 0:
		return in.ConfiguredCPUs
	case n < 0:
		return in.OnlineCPUs
	default:
		return n
	}
}

func onlyUnsupported(l *List) bool {
	for _, e := range l.Entries {
		if e.Instances > 0 && e.Ignore.Run != Unsupported {
			return false
		}
	}
	return true
}

// ShareOpsBudget divides each entry's total ops budget across its
// instances, rounding up so the fleet never undershoots the requested work.
func (l *List) ShareOpsBudget() {
	for _, e := range l.Entries {
		if !e.Runnable() || e.Instances == 0 || e.OpsBudget == 0 {
			continue
		}
		n := uint64(e.Instances)
		e.OpsBudget = (e.OpsBudget + n - 1) / n
	}
}
