package stressors

import (
	"fmt"
	"os"
	"time"

	"stressfleet/core/status"
	"stressfleet/core/stressor"
)

// zeroStressor streams reads from /dev/zero, checking the first byte of
// every 512-byte block for zero. One bogo op is one page read.
type zeroStressor struct{}

var zeroInfo = stressor.Info{
	ID:     10,
	Name:   "zero",
	Class:  stressor.ClassDevice | stressor.ClassMemory | stressor.ClassOS,
	Verify: stressor.VerifyAlways,
	OpsOpt: "zero-ops",
}

func (z *zeroStressor) Info() *stressor.Info { return &zeroInfo }

func (z *zeroStressor) Supported(name string) error {
	if _, err := os.Stat("/dev/zero"); err != nil {
		return fmt.Errorf("%s: no /dev/zero: %w", name, err)
	}
	return nil
}

func (z *zeroStressor) Run(args *stressor.Args) int {
	f, err := os.Open("/dev/zero")
	if err != nil {
		return status.NoResource
	}
	defer f.Close()

	buf := make([]byte, args.PageSize)
	for args.Continue() && time.Now().Before(args.TimeEnd) {
		for i := 0; i < checkInterval; i++ {
			n, err := f.Read(buf)
			if err != nil {
				return status.NotSuccess
			}
			for j := 0; j < n; j += 512 {
				if buf[j] != 0 {
					return status.NotSuccess
				}
			}
		}
		args.BumpCounter(checkInterval)
	}
	return status.Success
}

// oomableStressor grows its heap until the kernel intervenes. It sits in
// the pathological class: on a host without an OOM killer margin it can
// take the whole box down, so it only runs behind --pathological.
type oomableStressor struct{}

var oomableInfo = stressor.Info{
	ID:     11,
	Name:   "oomable",
	Class:  stressor.ClassVM | stressor.ClassMemory | stressor.ClassPathological,
	Verify: stressor.VerifyNone,
	OpsOpt: "oomable-ops",
}

func (o *oomableStressor) Info() *stressor.Info { return &oomableInfo }

func (o *oomableStressor) Run(args *stressor.Args) int {
	// Expecting to be killed; flag it so a mid-update counter is not
	// misread as corruption.
	args.Stats.ForceKilled = 1

	const chunk = 16 << 20
	var hoard [][]byte
	for args.Continue() && time.Now().Before(args.TimeEnd) {
		block := make([]byte, chunk)
		for i := 0; i < len(block); i += args.PageSize {
			block[i] = 0xa5
		}
		hoard = append(hoard, block)
		args.BumpCounter(1)
	}
	_ = hoard
	return status.Success
}
