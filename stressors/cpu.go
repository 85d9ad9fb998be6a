package stressors

import (
	"fmt"
	"math"
	"time"

	"stressfleet/core/status"
	"stressfleet/core/stressor"
)

// cpuStressor burns cycles on floating point and integer kernels. One bogo
// op is one pass of the selected method.
type cpuStressor struct {
	method string
}

var cpuInfo = stressor.Info{
	ID:     1,
	Name:   "cpu",
	Short:  'c',
	Class:  stressor.ClassCPU,
	Verify: stressor.VerifyOptional,
	OpsOpt: "cpu-ops",
	Help: []stressor.Help{
		{Opt: "cpu-method", Description: "cpu workload: sqrt, trig, int64 or all"},
	},
}

func (c *cpuStressor) Info() *stressor.Info { return &cpuInfo }

func (c *cpuStressor) SetDefault() { c.method = "all" }

func (c *cpuStressor) Options() []string { return []string{"cpu-method"} }

func (c *cpuStressor) SetOption(name, value string) error {
	switch value {
	case "sqrt", "trig", "int64", "all":
		c.method = value
		return nil
	}
	return fmt.Errorf("unknown cpu method %q, want sqrt, trig, int64 or all", value)
}

func (c *cpuStressor) Run(args *stressor.Args) int {
	method := c.method
	if method == "" {
		method = "all"
	}
	rc := status.Success
	passes := uint64(0)
	start := time.Now()
	for args.Continue() && time.Now().Before(args.TimeEnd) {
		var ok bool
		switch method {
		case "sqrt":
			ok = cpuSqrt()
		case "trig":
			ok = cpuTrig()
		case "int64":
			ok = cpuInt64()
		default:
			ok = cpuSqrt() && cpuTrig() && cpuInt64()
		}
		if args.Verify && !ok {
			rc = status.NotSuccess
			break
		}
		passes++
		args.BumpCounter(1)
	}
	if d := time.Since(start).Seconds(); d > 0 && len(args.Metrics) > 0 {
		args.Metrics[0].SetDesc("cpu passes per sec")
		args.Metrics[0].Value = float64(passes) / d
	}
	return rc
}

func cpuSqrt() bool {
	var sum float64
	for i := 1; i < checkInterval; i++ {
		sum += math.Sqrt(float64(i))
	}
	// The series is monotone; a wildly wrong sum means broken arithmetic.
	return sum > float64(checkInterval-1)
}

func cpuTrig() bool {
	var sum float64
	for i := 0; i < checkInterval; i++ {
		theta := float64(i) * math.Pi / float64(checkInterval)
		s, c := math.Sincos(theta)
		sum += s*s + c*c
	}
	return math.Abs(sum-float64(checkInterval)) < 1e-6*float64(checkInterval)
}

func cpuInt64() bool {
	v := uint64(0xdeadbeefcafef00d)
	for i := 0; i < checkInterval; i++ {
		v ^= v << 13
		v ^= v >> 7
		v ^= v << 17
	}
	return v != 0
}
