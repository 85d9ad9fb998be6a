//go:build linux

package fleet

import (
	"testing"

	"stressfleet/adapters"
	"stressfleet/core/plan"
	"stressfleet/core/status"
	"stressfleet/core/stressor"
	"stressfleet/shm"
)

type noopModule struct {
	info stressor.Info
}

func (m *noopModule) Info() *stressor.Info   { return &m.info }
func (m *noopModule) Run(*stressor.Args) int { return 0 }

func testRunner(t *testing.T, instances ...int32) *Runner {
	t.Helper()
	l := &plan.List{}
	for i, n := range instances {
		l.Entries = append(l.Entries, &plan.Entry{
			Module: &noopModule{info: stressor.Info{
				ID:   uint32(i + 1),
				Name: string(rune('a' + i)),
			}},
			Instances: n,
		})
	}
	total := l.AssignSlots()
	p, err := shm.Create(total)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return NewRunner(p, l, Config{}, adapters.NewSet(adapters.Options{}))
}

func TestKillStressorsSignalledBits(t *testing.T) {
	r := testRunner(t, 2)
	e := r.List.Entries[0]

	// PID <= 0 slots are never targeted.
	r.Plane.Stat(e.SlotBase).PID = 0
	r.Plane.Stat(e.SlotBase + 1).PID = -1
	r.killStressors(false)
	if r.Plane.Stat(e.SlotBase).Signalled != 0 || r.Plane.Stat(e.SlotBase+1).Signalled != 0 {
		t.Fatal("dead slots were signalled")
	}
}

func TestKillEscalatesAfterFiveBroadcasts(t *testing.T) {
	r := testRunner(t, 1)
	for i := 0; i < 5; i++ {
		r.killStressors(true)
	}
	if r.killCount.Load() != 5 {
		t.Fatalf("count %d", r.killCount.Load())
	}
	r.killStressors(true)
	if r.killCount.Load() != 6 {
		t.Fatalf("count %d", r.killCount.Load())
	}
}

func TestFinishFoldsFlagsIntoWorst(t *testing.T) {
	r := testRunner(t, 1)
	r.res.MetricsSuccess = false
	res := r.finish()
	if res.Worst.Code() != status.MetricsUntrustworthy {
		t.Fatalf("code %d", res.Worst.Code())
	}

	r2 := testRunner(t, 1)
	r2.res.ResourceSuccess = false
	r2.res.MetricsSuccess = false
	res2 := r2.finish()
	if code := res2.Worst.Code(); code != status.NoResource {
		t.Fatalf("code %d, want NoResource over MetricsUntrustworthy", code)
	}

	r3 := testRunner(t, 1)
	r3.res.Success = false
	res3 := r3.finish()
	if code := res3.Worst.Code(); code != status.NotSuccess {
		t.Fatalf("code %d", code)
	}
}

func TestPermuteFlagsRestored(t *testing.T) {
	stressor.ContinueSet(false) // run no permutations, only flag bookkeeping
	defer stressor.ContinueSet(true)

	r := testRunner(t, 1, 1, 1)
	_ = r.RunPermute()
	for _, e := range r.List.Entries {
		if e.Ignore.Permute {
			t.Fatalf("%s left permute-ignored", e.Name())
		}
	}
}

func TestPermuteCoverage(t *testing.T) {
	// With k runnable entries there are 2^k-1 subsets and each entry is
	// active in exactly 2^(k-1) of them.
	r := testRunner(t, 1, 1, 1)
	runnable := r.List.Entries
	const k = 3

	participation := make([]int, k)
	subsets := 0
	for mask := 1; mask < 1<<k; mask++ {
		names := applyPermuteMask(runnable, mask, k)
		subsets++
		active := 0
		for i, e := range runnable {
			if !e.Ignore.Permute {
				participation[i]++
				active++
			}
		}
		if len(names) != active {
			t.Fatalf("mask %d: %d names for %d active entries", mask, len(names), active)
		}
	}
	if subsets != (1<<k)-1 {
		t.Fatalf("%d subsets, want %d", subsets, (1<<k)-1)
	}
	for i, n := range participation {
		if n != 1<<(k-1) {
			t.Fatalf("entry %d participated %d times, want %d", i, n, 1<<(k-1))
		}
	}
}

func TestSequentialSkipsIgnoredEntries(t *testing.T) {
	stressor.ContinueSet(true)
	r := testRunner(t, 0, 1)
	r.List.Entries[1].Ignore.Run = plan.Excluded
	res := r.RunSequential()
	if !res.Success {
		t.Fatal("empty sequential run should succeed")
	}
	started, _, _, _, _ := r.Plane.Header().Counts()
	if started != 0 {
		t.Fatalf("ignored entries spawned %d instances", started)
	}
}
