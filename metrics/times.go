package metrics

import (
	"stressfleet/logging"
)

// TimesInfo is the overall run accounting for the times block.
type TimesInfo struct {
	RunTime          float64
	AvailableCPUTime float64
	UserTime         float64
	SystemTime       float64
	TotalTime        float64
	UserPercent      float64
	SystemPercent    float64
	TotalPercent     float64
	HaveLoadAvg      bool
	Load1            float64
	Load5            float64
	Load15           float64
}

// DumpTimes logs the run time block.
func DumpTimes(ti TimesInfo) {
	logging.Infof("for a %.2fs run time:", ti.RunTime)
	logging.Infof("  %8.2fs available CPU time", ti.AvailableCPUTime)
	logging.Infof("  %8.2fs user time   (%6.2f%%)", ti.UserTime, ti.UserPercent)
	logging.Infof("  %8.2fs system time (%6.2f%%)", ti.SystemTime, ti.SystemPercent)
	logging.Infof("  %8.2fs total time  (%6.2f%%)", ti.TotalTime, ti.TotalPercent)
	if ti.HaveLoadAvg {
		logging.Infof("load average: %.2f %.2f %.2f", ti.Load1, ti.Load5, ti.Load15)
	}
}
