package metrics

import (
	"fmt"
	"strings"

	"stressfleet/core/plan"
	"stressfleet/logging"
)

// Dump writes the metrics table. Brief mode drops the CPU-usage and RSS
// columns and any entry that counted no bogo ops and did not run OK.
func Dump(sums []EntrySummary, brief bool) {
	if brief {
		logging.Metricf("%-13s %9s %9s %9s %9s %12s %14s",
			"stressor", "bogo ops", "real time", "usr time", "sys time",
			"bogo ops/s", "bogo ops/s")
		logging.Metricf("%-13s %9s %9s %9s %9s %12s %14s",
			"", "", "(secs) ", "(secs) ", "(secs) ", "(real time)", "(usr+sys time)")
	} else {
		logging.Metricf("%-13s %9s %9s %9s %9s %12s %14s %12s %13s",
			"stressor", "bogo ops", "real time", "usr time", "sys time",
			"bogo ops/s", "bogo ops/s", "CPU used per", "RSS Max")
		logging.Metricf("%-13s %9s %9s %9s %9s %12s %14s %12s %13s",
			"", "", "(secs) ", "(secs) ", "(secs) ", "(real time)", "(usr+sys time)",
			"instance (%)", "(KB)")
	}

	miscSeen := false
	for _, s := range sums {
		if brief && s.BogoOps == 0 && !s.RunOK {
			continue
		}
		if brief {
			logging.Metricf("%-13s %9d %9.2f %9.2f %9.2f %12.2f %14.2f",
				s.Name, s.BogoOps, s.WallTime, s.UserTime, s.SystemTime,
				s.RateRealTime, s.RateCPUTime)
		} else {
			logging.Metricf("%-13s %9d %9.2f %9.2f %9.2f %12.2f %14.2f %12.2f %13d",
				s.Name, s.BogoOps, s.WallTime, s.UserTime, s.SystemTime,
				s.RateRealTime, s.RateCPUTime, s.CPUUsage, s.MaxRSSKB)
		}
		if len(s.Aux) > 0 {
			miscSeen = true
		}
	}

	if miscSeen && !brief {
		logging.Metricf("miscellaneous metrics:")
		for _, s := range sums {
			for _, aux := range s.Aux {
				logging.Metricf("%-13s %13.2f %s (geometric mean of %d instances)",
					s.Name, aux.GeoMean, aux.Desc, aux.N)
			}
		}
	}
}

// statusNames orders the exit-status summary lines.
var statusNames = []struct {
	kind int
	name string
}{
	{plan.StatusSkipped, "skipped"},
	{plan.StatusPassed, "passed"},
	{plan.StatusFailed, "failed"},
	{plan.StatusBadMetrics, "metrics untrustworthy"},
}

// StatusSummary emits one line per status kind naming each stressor's
// count. Entries ignored outright count as skipped in full.
func StatusSummary(l *plan.List) {
	for _, sn := range statusNames {
		var parts []string
		total := uint32(0)
		for _, e := range l.Entries {
			count := e.Status[sn.kind]
			if !e.Runnable() && sn.kind == plan.StatusSkipped {
				count = uint32(e.Instances)
			}
			if count > 0 {
				parts = append(parts, fmt.Sprintf("%s (%d)", e.Name(), count))
				total += count
			}
		}
		if total > 0 {
			logging.Infof("%s: %d:%s", sn.name, total, " "+strings.Join(parts, " "))
		} else {
			logging.Infof("%s: 0", sn.name)
		}
	}
}
