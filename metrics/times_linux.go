//go:build linux

package metrics

import (
	"time"

	"golang.org/x/sys/unix"
)

// userHz is the kernel tick rate assumed when scaling times(2) values; the
// kernel has exported 100 here for every mainstream configuration.
const userHz = 100

// CollectTimes gathers child CPU time consumed under this parent plus the
// load averages.
func CollectTimes(duration time.Duration, configuredCPUs int) TimesInfo {
	ti := TimesInfo{RunTime: duration.Seconds()}
	ti.AvailableCPUTime = float64(configuredCPUs) * ti.RunTime

	var tms unix.Tms
	if _, err := unix.Times(&tms); err == nil {
		ti.UserTime = float64(tms.Cutime) / userHz
		ti.SystemTime = float64(tms.Cstime) / userHz
		ti.TotalTime = ti.UserTime + ti.SystemTime
		if ti.AvailableCPUTime > 0 {
			ti.UserPercent = 100.0 * ti.UserTime / ti.AvailableCPUTime
			ti.SystemPercent = 100.0 * ti.SystemTime / ti.AvailableCPUTime
			ti.TotalPercent = 100.0 * ti.TotalTime / ti.AvailableCPUTime
		}
	}

	if l1, l5, l15, err := LoadAvg(); err == nil {
		ti.HaveLoadAvg = true
		ti.Load1, ti.Load5, ti.Load15 = l1, l5, l15
	}
	return ti
}

// LoadAvg reads the 1/5/15 minute load averages.
func LoadAvg() (l1, l5, l15 float64, err error) {
	var si unix.Sysinfo_t
	if err = unix.Sysinfo(&si); err != nil {
		return 0, 0, 0, err
	}
	const scale = 65536.0
	return float64(si.Loads[0]) / scale,
		float64(si.Loads[1]) / scale,
		float64(si.Loads[2]) / scale,
		nil
}
