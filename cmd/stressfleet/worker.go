package main

import (
	"os"

	"github.com/spf13/cobra"

	"stressfleet/core/stressor"
	"stressfleet/fleet"
)

// newWorkerCmd is the hidden re-exec entry point: the parent spawns
// "stressfleet worker ..." for every instance with the shared segments on
// descriptors 3 and 4.
func newWorkerCmd(reg *stressor.Registry) *cobra.Command {
	var o fleet.WorkerOptions

	cmd := &cobra.Command{
		Use:    "worker",
		Hidden: true,
		Run: func(_ *cobra.Command, _ []string) {
			os.Exit(fleet.WorkerMain(reg, o))
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&o.Stressor, "stressor", "", "stressor name")
	fs.IntVar(&o.Slot, "slot", 0, "stats slot index")
	fs.Int32Var(&o.Instance, "instance", 0, "instance number")
	fs.Int32Var(&o.NumInstances, "num-instances", 1, "sibling instance count")
	fs.Uint64Var(&o.MaxOps, "max-ops", 0, "bogo ops budget")
	fs.Int64Var(&o.EndNs, "end-ns", 0, "deadline, unix nanoseconds")
	fs.Int64Var(&o.BackoffUs, "backoff-us", 0, "start stagger unit")
	fs.Int32Var(&o.Started, "started", 0, "instances started before this one")
	fs.IntVar(&o.IoniceClass, "ionice-class", 0, "io priority class")
	fs.IntVar(&o.IoniceLevel, "ionice-level", 0, "io priority level")
	fs.StringVar(&o.TempPath, "temp-path", ".", "scratch space root")
	fs.BoolVar(&o.Verify, "verify", false, "verify workload output")
	fs.BoolVar(&o.DryRun, "dry-run", false, "skip the workload body")
	fs.BoolVar(&o.KeepFiles, "keep-files", false, "keep scratch files")
	fs.BoolVar(&o.KeepName, "keep-name", false, "do not munge the log name")
	fs.BoolVar(&o.Abort, "abort", false, "signal the parent on failure")
	fs.BoolVar(&o.Perf, "perf", false, "sample perf counters")
	fs.BoolVar(&o.Verbose, "verbose", false, "debug output")
	fs.BoolVar(&o.Quiet, "quiet", false, "errors only")
	fs.StringArrayVar(&o.Opts, "set", nil, "stressor option name=value")
	_ = cmd.MarkFlagRequired("stressor")

	return cmd
}
