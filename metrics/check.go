package metrics

import (
	"math"
	"time"

	"stressfleet/core/plan"
	"stressfleet/logging"
	"stressfleet/shm"
)

// suspiciousRunTime is how long a run can hold every counter at zero
// before the numbers themselves look wrong.
const suspiciousRunTime = 30 * time.Second

// Check independently re-hashes every completed stats slot against the
// worker-written checksum record in the second segment. Any mismatch is
// reported and fails the run; an all-zero counter set over a long run gets
// a warning only.
func Check(p *shm.Plane, l *plan.List) bool {
	ok := true
	var counterCheck uint64
	minRunTime := time.Duration(math.MaxInt64)

	for _, e := range l.Entries {
		if !e.Runnable() {
			continue
		}
		for j := int32(0); j < e.Instances; j++ {
			s := p.Stat(e.SlotBase + int(j))
			if s.Completed == 0 {
				continue
			}
			counterCheck |= s.Counter
			if d := time.Duration(s.DurationNs); d < minRunTime {
				minRunTime = d
			}

			c := p.Checksum(e.SlotBase + int(j))
			counterBad, runOKBad, hashBad := c.VerifyStats(s)
			if counterBad {
				logging.Failf("%s instance %d corrupted bogo-ops counter, %d vs %d",
					e.Name(), j, s.Counter, c.Data.Counter)
				ok = false
			}
			if runOKBad {
				logging.Failf("%s instance %d corrupted run flag, %d vs %d",
					e.Name(), j, s.RunOK, c.Data.RunOK)
				ok = false
			}
			if hashBad {
				logging.Failf("%s instance %d hash error in bogo-ops counter and run flag, vs %d",
					e.Name(), j, c.Hash)
				ok = false
			}
		}
	}

	if counterCheck == 0 && minRunTime > suspiciousRunTime && minRunTime != time.Duration(math.MaxInt64) {
		logging.Warnf("metrics-check: all bogo-op counters are zero, data may be incorrect")
	}

	if ok {
		logging.Debugf("metrics-check: all stressor metrics validated and sane")
	} else {
		logging.Failf("metrics-check: stressor metrics corrupted, data is compromised")
	}
	return ok
}
