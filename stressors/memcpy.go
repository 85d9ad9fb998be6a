package stressors

import (
	"bytes"
	"time"

	"stressfleet/core/mwc"
	"stressfleet/core/status"
	"stressfleet/core/stressor"
)

// memcpyStressor streams copies through a cache-sized buffer to hammer the
// CPU cache hierarchy. One bogo op is one full buffer copy.
type memcpyStressor struct{}

var memcpyInfo = stressor.Info{
	ID:     2,
	Name:   "memcpy",
	Class:  stressor.ClassCPUCache | stressor.ClassMemory,
	Verify: stressor.VerifyAlways,
	OpsOpt: "memcpy-ops",
}

func (m *memcpyStressor) Info() *stressor.Info { return &memcpyInfo }

func (m *memcpyStressor) Run(args *stressor.Args) int {
	const bufLen = 2 << 20
	src := make([]byte, bufLen)
	dst := make([]byte, bufLen)
	for i := range src {
		src[i] = byte(mwc.Rand32())
	}

	for args.Continue() && time.Now().Before(args.TimeEnd) {
		copy(dst, src)
		if !bytes.Equal(dst[:64], src[:64]) || dst[bufLen-1] != src[bufLen-1] {
			return status.NotSuccess
		}
		// Rotate so consecutive copies do not collapse to no-ops.
		src[0], src[bufLen-1] = src[bufLen-1], src[0]
		args.BumpCounter(1)
	}
	return status.Success
}
