package stressors

import (
	"runtime"
	"time"

	"stressfleet/core/status"
	"stressfleet/core/stressor"
)

// switchStressor forces rapid context switching by bouncing a token
// between two goroutines over unbuffered channels. One bogo op is one
// round trip.
type switchStressor struct{}

var switchInfo = stressor.Info{
	ID:     7,
	Name:   "switch",
	Short:  's',
	Class:  stressor.ClassScheduler | stressor.ClassOS,
	Verify: stressor.VerifyNone,
	OpsOpt: "switch-ops",
}

func (s *switchStressor) Info() *stressor.Info { return &switchInfo }

func (s *switchStressor) Run(args *stressor.Args) int {
	ping := make(chan struct{})
	pong := make(chan struct{})
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ping:
				pong <- struct{}{}
			case <-done:
				return
			}
		}
	}()

	for args.Continue() && time.Now().Before(args.TimeEnd) {
		for i := 0; i < checkInterval; i++ {
			ping <- struct{}{}
			<-pong
		}
		runtime.Gosched()
		args.BumpCounter(checkInterval)
	}
	close(done)
	return status.Success
}

// sleepStressor cycles short sleeps to exercise timer delivery and the
// scheduler's wakeup path. One bogo op is one sleep completed.
type sleepStressor struct{}

var sleepInfo = stressor.Info{
	ID:     9,
	Name:   "sleep",
	Class:  stressor.ClassScheduler | stressor.ClassInterrupt,
	Verify: stressor.VerifyNone,
	OpsOpt: "sleep-ops",
}

func (s *sleepStressor) Info() *stressor.Info { return &sleepInfo }

func (s *sleepStressor) Run(args *stressor.Args) int {
	for args.Continue() && time.Now().Before(args.TimeEnd) {
		time.Sleep(100 * time.Microsecond)
		args.BumpCounter(1)
	}
	return status.Success
}
