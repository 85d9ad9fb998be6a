package fleet

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// ConfiguredCPUs counts processors configured on the host, online or not.
func ConfiguredCPUs() int { return configuredCPUs() }

// OnlineCPUs counts processors currently online.
func OnlineCPUs() int { return runtime.NumCPU() }

func configuredCPUs() int {
	data, err := os.ReadFile("/sys/devices/system/cpu/possible")
	if err != nil {
		return runtime.NumCPU()
	}
	n := countCPUList(strings.TrimSpace(string(data)))
	if n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

// countCPUList parses a kernel cpulist like "0-3,7,9-11".
func countCPUList(list string) int {
	total := 0
	for _, seg := range strings.Split(list, ",") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(seg, "-"); ok {
			a, err1 := strconv.Atoi(lo)
			b, err2 := strconv.Atoi(hi)
			if err1 != nil || err2 != nil || b < a {
				continue
			}
			total += b - a + 1
		} else if _, err := strconv.Atoi(seg); err == nil {
			total++
		}
	}
	return total
}

// tempDirPath names the per-instance scratch directory.
func tempDirPath(base, name string, pid int, instance uint32) string {
	if base == "" {
		base = "."
	}
	return filepath.Join(base, fmt.Sprintf("%s-%d-%d", name, pid, instance))
}

// cleanTempDir removes a worker's scratch directory if it left one behind.
func cleanTempDir(base, name string, pid int, instance uint32) {
	dir := tempDirPath(base, name, pid, instance)
	if _, err := os.Stat(dir); err != nil {
		return
	}
	_ = os.RemoveAll(dir)
}
