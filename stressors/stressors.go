// Package stressors is the built-in workload catalog. Each module exercises
// one subsystem through the uniform stressor interface; the orchestrator
// never sees past that surface.
package stressors

import (
	"fmt"
	"strconv"
	"strings"

	"stressfleet/core/stressor"
)

// RegisterAll installs the built-in catalog into reg.
func RegisterAll(reg *stressor.Registry) error {
	mods := []stressor.Module{
		&cpuStressor{},
		&memcpyStressor{},
		&vmStressor{},
		&pipeStressor{},
		&hddStressor{},
		&sockStressor{},
		&switchStressor{},
		&forkStressor{},
		&sleepStressor{},
		&zeroStressor{},
		&oomableStressor{},
	}
	for _, m := range mods {
		if err := reg.Register(m); err != nil {
			return err
		}
	}
	return nil
}

// parseBytes reads a byte size with an optional k/m/g suffix.
func parseBytes(s string) (uint64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	mult := uint64(1)
	switch {
	case strings.HasSuffix(s, "k"):
		mult, s = 1<<10, strings.TrimSuffix(s, "k")
	case strings.HasSuffix(s, "m"):
		mult, s = 1<<20, strings.TrimSuffix(s, "m")
	case strings.HasSuffix(s, "g"):
		mult, s = 1<<30, strings.TrimSuffix(s, "g")
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	if n != 0 && n > (^uint64(0))/mult {
		return 0, fmt.Errorf("size %q overflows", s)
	}
	return n * mult, nil
}

// checkInterval is how many inner iterations a workload runs between
// deadline checks; bogo counters advance once per interval.
const checkInterval = 1024
