package adapters

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"stressfleet/logging"
)

// vmstatSampler periodically logs deltas of interesting /proc/vmstat
// counters while the fleet runs.
type vmstatSampler struct {
	cancel context.CancelFunc
	group  *errgroup.Group
}

var vmstatKeys = []string{"pgfault", "pgmajfault", "pswpin", "pswpout", "pgscan_direct"}

func startVmstat(interval time.Duration) *vmstatSampler {
	prev, err := readVmstat()
	if err != nil {
		logging.Debugf("vmstat: %v", err)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				cur, err := readVmstat()
				if err != nil {
					return nil
				}
				var parts []string
				for _, key := range vmstatKeys {
					parts = append(parts, key+" "+strconv.FormatInt(cur[key]-prev[key], 10))
				}
				logging.Infof("vmstat: %s", strings.Join(parts, ", "))
				prev = cur
			}
		}
	})
	return &vmstatSampler{cancel: cancel, group: g}
}

func (v *vmstatSampler) stop() {
	if v == nil {
		return
	}
	v.cancel()
	_ = v.group.Wait()
}

func readVmstat() (map[string]int64, error) {
	data, err := os.ReadFile("/proc/vmstat")
	if err != nil {
		return nil, err
	}
	out := map[string]int64{}
	for _, line := range strings.Split(string(data), "\n") {
		key, val, found := strings.Cut(line, " ")
		if !found {
			continue
		}
		if n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
			out[key] = n
		}
	}
	return out, nil
}
