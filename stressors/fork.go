package stressors

import (
	"os/exec"
	"time"

	"stressfleet/core/status"
	"stressfleet/core/stressor"
)

// forkStressor spawns and reaps short-lived processes to pound process
// creation. One bogo op is one child spawned and waited for.
type forkStressor struct{}

var forkInfo = stressor.Info{
	ID:     8,
	Name:   "fork",
	Short:  'f',
	Class:  stressor.ClassScheduler | stressor.ClassOS,
	Verify: stressor.VerifyNone,
	OpsOpt: "fork-ops",
}

func (f *forkStressor) Info() *stressor.Info { return &forkInfo }

// Supported needs a binary cheap enough to spawn in a tight loop.
func (f *forkStressor) Supported(name string) error {
	_, err := exec.LookPath("true")
	return err
}

func (f *forkStressor) Run(args *stressor.Args) int {
	path, err := exec.LookPath("true")
	if err != nil {
		return status.NotImplemented
	}
	for args.Continue() && time.Now().Before(args.TimeEnd) {
		cmd := exec.Command(path)
		if err := cmd.Start(); err != nil {
			return status.NoResource
		}
		_ = cmd.Wait()
		args.BumpCounter(1)
	}
	return status.Success
}
