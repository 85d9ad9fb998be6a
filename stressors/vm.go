package stressors

import (
	"fmt"
	"time"

	"stressfleet/core/mwc"
	"stressfleet/core/status"
	"stressfleet/core/stressor"
)

// vmStressor dirties anonymous memory page by page, then walks it back
// verifying the fill pattern. One bogo op is one full write+readback pass.
type vmStressor struct {
	bytes uint64
}

var vmInfo = stressor.Info{
	ID:     3,
	Name:   "vm",
	Short:  'm',
	Class:  stressor.ClassVM | stressor.ClassMemory | stressor.ClassOS,
	Verify: stressor.VerifyOptional,
	OpsOpt: "vm-ops",
	Help: []stressor.Help{
		{Opt: "vm-bytes", Description: "memory per instance (default 64m)"},
	},
}

func (v *vmStressor) Info() *stressor.Info { return &vmInfo }

func (v *vmStressor) SetDefault() { v.bytes = 64 << 20 }

func (v *vmStressor) SetLimit(max uint64) {
	if v.bytes > max {
		v.bytes = max
	}
}

func (v *vmStressor) Options() []string { return []string{"vm-bytes"} }

func (v *vmStressor) SetOption(name, value string) error {
	n, err := parseBytes(value)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("vm-bytes must be nonzero")
	}
	v.bytes = n
	return nil
}

func (v *vmStressor) Run(args *stressor.Args) int {
	size := v.bytes
	if size == 0 {
		size = 64 << 20
	}
	buf := make([]byte, size)
	pageSize := uint64(args.PageSize)

	var faults uint64
	start := time.Now()
	for args.Continue() && time.Now().Before(args.TimeEnd) {
		fill := byte(mwc.Rand32())
		for off := uint64(0); off < size; off += pageSize {
			buf[off] = fill
			faults++
		}
		if args.Verify {
			for off := uint64(0); off < size; off += pageSize {
				if buf[off] != fill {
					return status.NotSuccess
				}
			}
		}
		args.BumpCounter(1)
	}
	if d := time.Since(start).Seconds(); d > 0 && len(args.Metrics) > 0 {
		args.Metrics[0].SetDesc("pages touched per sec")
		args.Metrics[0].Value = float64(faults) / d
	}
	return status.Success
}
