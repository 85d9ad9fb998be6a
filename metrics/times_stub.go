//go:build !linux

package metrics

import (
	"errors"
	"time"
)

// CollectTimes reports wall clock only off linux.
func CollectTimes(duration time.Duration, configuredCPUs int) TimesInfo {
	ti := TimesInfo{RunTime: duration.Seconds()}
	ti.AvailableCPUTime = float64(configuredCPUs) * ti.RunTime
	return ti
}

// LoadAvg is unavailable off linux.
func LoadAvg() (l1, l5, l15 float64, err error) {
	return 0, 0, 0, errors.New("load averages unavailable")
}
