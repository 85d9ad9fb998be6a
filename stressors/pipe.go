package stressors

import (
	"os"
	"time"

	"stressfleet/core/status"
	"stressfleet/core/stressor"
)

// pipeStressor shuttles pages through an os pipe between two goroutines.
// One bogo op is one page written and read back.
type pipeStressor struct{}

var pipeInfo = stressor.Info{
	ID:     4,
	Name:   "pipe",
	Short:  'p',
	Class:  stressor.ClassPipe | stressor.ClassOS | stressor.ClassScheduler,
	Verify: stressor.VerifyOptional,
	OpsOpt: "pipe-ops",
}

func (p *pipeStressor) Info() *stressor.Info { return &pipeInfo }

func (p *pipeStressor) Run(args *stressor.Args) int {
	r, w, err := os.Pipe()
	if err != nil {
		return status.NoResource
	}

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		defer w.Close()
		buf := make([]byte, args.PageSize)
		seq := byte(0)
		for args.Continue() && time.Now().Before(args.TimeEnd) {
			for i := range buf {
				buf[i] = seq
			}
			if _, err := w.Write(buf); err != nil {
				return
			}
			seq++
		}
	}()

	rc := status.Success
	buf := make([]byte, args.PageSize)
	seq := byte(0)
	for {
		n, err := r.Read(buf)
		if err != nil {
			break
		}
		if args.Verify && n == len(buf) && (buf[0] != seq || buf[n-1] != seq) {
			rc = status.NotSuccess
			break
		}
		seq++
		args.BumpCounter(1)
	}
	// Closing the read side unblocks a writer stuck on a full pipe.
	_ = r.Close()
	<-writeDone
	return rc
}
