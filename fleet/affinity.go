package fleet

import (
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"stressfleet/core/mwc"
	"stressfleet/core/plan"
)

// churnInterval matches 1s / (5 * ticks-per-sec) at the usual 100 Hz
// scheduler tick.
const churnInterval = 2 * time.Millisecond

// waitAggressive keeps moving live children between CPUs picked at random
// from the parent's own affinity mask, to stress scheduler placement and
// memory locality. Best effort: any affinity failure ends the churn and
// falls back to the plain reap. The loop exits once no child is alive or
// the wait flag drops.
func (r *Runner) waitAggressive(entries []*plan.Entry) {
	var parentMask unix.CPUSet
	for r.waitFlag.Load() {
		if err := unix.SchedGetaffinity(0, &parentMask); err != nil {
			return
		}
		ncpu := parentMask.Count()
		if ncpu == 0 {
			return
		}

		time.Sleep(churnInterval)

		alive := false
		for _, e := range entries {
			if !e.Runnable() || e.Ignore.Permute {
				continue
			}
			for j := int32(0); j < e.Instances; j++ {
				s := r.Plane.Stat(e.SlotBase + int(j))
				pid := atomic.LoadInt64(&s.PID)
				if pid <= 0 {
					continue
				}
				// Liveness probe without reaping; the reap pass
				// still observes the real exit status.
				if err := unix.Kill(int(pid), 0); err != nil {
					continue
				}
				alive = true

				var cpu int
				for {
					cpu = int(mwc.Rand32ModN(uint32(maxCPU())))
					if parentMask.IsSet(cpu) {
						break
					}
				}
				var mask unix.CPUSet
				mask.Zero()
				mask.Set(cpu)
				if err := unix.SchedSetaffinity(int(pid), &mask); err != nil {
					return
				}
			}
		}
		if !alive {
			return
		}
	}
}

func maxCPU() int {
	n := configuredCPUs()
	if n <= 0 {
		n = 1
	}
	return n
}
