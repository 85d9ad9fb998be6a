package adapters

import (
	"os"
	"strconv"
	"strings"

	"stressfleet/logging"
)

// diskSnapshot records /proc/diskstats at run start so the stop side can
// report sectors moved per device during the run.
type diskSnapshot struct {
	before map[string][2]int64 // device -> sectors read, written
}

func snapshotDisks() *diskSnapshot {
	stats, err := readDiskstats()
	if err != nil {
		logging.Debugf("smart: %v", err)
		return nil
	}
	return &diskSnapshot{before: stats}
}

func (d *diskSnapshot) report() {
	if d == nil {
		return
	}
	after, err := readDiskstats()
	if err != nil {
		return
	}
	for dev, b := range d.before {
		a, ok := after[dev]
		if !ok {
			continue
		}
		rd, wr := a[0]-b[0], a[1]-b[1]
		if rd == 0 && wr == 0 {
			continue
		}
		logging.Infof("smart: %s: %d sectors read, %d sectors written", dev, rd, wr)
	}
}

func readDiskstats() (map[string][2]int64, error) {
	data, err := os.ReadFile("/proc/diskstats")
	if err != nil {
		return nil, err
	}
	out := map[string][2]int64{}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 10 {
			continue
		}
		dev := fields[2]
		// Loop and ram devices only add noise; partitions are kept.
		if strings.HasPrefix(dev, "loop") || strings.HasPrefix(dev, "ram") {
			continue
		}
		rd, err1 := strconv.ParseInt(fields[5], 10, 64)
		wr, err2 := strconv.ParseInt(fields[9], 10, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		out[dev] = [2]int64{rd, wr}
	}
	return out, nil
}
