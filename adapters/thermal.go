package adapters

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"stressfleet/logging"
)

const thermalRoot = "/sys/class/thermal"

// MaxThermalZoneMilliC returns the hottest thermal zone reading in
// millidegrees C, or 0 when no zone is readable.
func MaxThermalZoneMilliC() int64 {
	zones, err := filepath.Glob(filepath.Join(thermalRoot, "thermal_zone*"))
	if err != nil {
		return 0
	}
	var max int64
	for _, zone := range zones {
		data, err := os.ReadFile(filepath.Join(zone, "temp"))
		if err != nil {
			continue
		}
		if v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64); err == nil && v > max {
			max = v
		}
	}
	return max
}

// logThermalZones names each readable zone and its current temperature.
func logThermalZones() {
	zones, err := filepath.Glob(filepath.Join(thermalRoot, "thermal_zone*"))
	if err != nil || len(zones) == 0 {
		logging.Debugf("thermal: no thermal zones")
		return
	}
	for _, zone := range zones {
		typ, err := os.ReadFile(filepath.Join(zone, "type"))
		if err != nil {
			continue
		}
		temp, err := os.ReadFile(filepath.Join(zone, "temp"))
		if err != nil {
			continue
		}
		milli, err := strconv.ParseInt(strings.TrimSpace(string(temp)), 10, 64)
		if err != nil {
			continue
		}
		logging.Infof("thermal: %s %.2f C",
			strings.TrimSpace(string(typ)), float64(milli)/1000.0)
	}
}
