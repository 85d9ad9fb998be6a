package adapters

import (
	"os"
	"path/filepath"
	"strings"

	"stressfleet/logging"
)

// ClocksourceCheck warns when the host runs on a clocksource whose
// timestamps drift under heavy load, which skews every rate the metrics
// engine computes.
func ClocksourceCheck() {
	data, err := os.ReadFile("/sys/devices/system/clocksource/clocksource0/current_clocksource")
	if err != nil {
		return
	}
	src := strings.TrimSpace(string(data))
	switch src {
	case "tsc", "arch_sys_counter", "kvm-clock":
	default:
		logging.WarnOncef("clocksource",
			"using %s clocksource, timing measurements may be degraded under load", src)
	}
}

// OOMScoreAdjust steers the kernel OOM killer toward or away from the
// calling process. Workers make themselves preferred victims unless the
// workload asked to survive.
func OOMScoreAdjust(avoid bool) {
	score := "900"
	if avoid {
		score = "-500"
	}
	_ = os.WriteFile("/proc/self/oom_score_adj", []byte(score), 0o644)
}

// KSMMergeHint asks the kernel same-page merger to run, letting vm-heavy
// workloads exercise page deduplication.
func KSMMergeHint() {
	if err := os.WriteFile("/sys/kernel/mm/ksm/run", []byte("1"), 0o644); err != nil {
		logging.Debugf("ksm: %v", err)
	}
}

// CpuidleLogInfo names the idle states the host exposes.
func CpuidleLogInfo() {
	states, err := filepath.Glob("/sys/devices/system/cpu/cpu0/cpuidle/state*")
	if err != nil || len(states) == 0 {
		return
	}
	var names []string
	for _, state := range states {
		name, err := os.ReadFile(filepath.Join(state, "name"))
		if err != nil {
			continue
		}
		names = append(names, strings.TrimSpace(string(name)))
	}
	if len(names) > 0 {
		logging.Debugf("cpuidle states: %s", strings.Join(names, " "))
	}
}

// igniteCPUs flips cpufreq governors to performance (on) and back to their
// recorded previous setting (off). Best effort; typically needs root.
var ignitePrev map[string]string

func igniteCPUs(on bool) {
	paths, err := filepath.Glob("/sys/devices/system/cpu/cpu*/cpufreq/scaling_governor")
	if err != nil {
		return
	}
	if on {
		ignitePrev = map[string]string{}
		for _, path := range paths {
			prev, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			if err := os.WriteFile(path, []byte("performance"), 0o644); err == nil {
				ignitePrev[path] = strings.TrimSpace(string(prev))
			}
		}
		return
	}
	for path, prev := range ignitePrev {
		_ = os.WriteFile(path, []byte(prev), 0o644)
	}
	ignitePrev = nil
}
