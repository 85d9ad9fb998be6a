package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"stressfleet/adapters"
	"stressfleet/core/mwc"
	"stressfleet/core/plan"
	"stressfleet/core/status"
	"stressfleet/core/stressor"
	"stressfleet/fleet"
	"stressfleet/logging"
	"stressfleet/metrics"
	"stressfleet/shm"
	"stressfleet/stressors"
)

const version = "0.9.0"

type rootFlags struct {
	all        int32
	sequential int32
	permute    int32
	random     int32
	with       string
	classes    []string
	exclude    string

	timeout   string
	backoffUs int64

	abort        bool
	aggressive   bool
	metricsOn    bool
	metricsBrief bool
	verify       bool
	pathological bool
	dryRun       bool
	times        bool

	seed       uint64
	noRandSeed bool

	keepFiles bool
	keepName  bool
	tempPath  string
	yamlFile  string
	jobFile   string
	logFile   string

	verbose     bool
	quiet       bool
	showVersion bool

	ioniceClass int
	ioniceLevel int

	perf    bool
	vmstat  bool
	thermal bool
	klog    bool
	ftrace  bool
	smart   bool
	thrash  bool
	ignite  bool
	ksm     bool
	bpfDir  string
}

// run wires the whole harness: plan, shared plane, fleet, metrics, exit.
func run(args []string) int {
	reg := stressor.NewRegistry()
	if err := stressors.RegisterAll(reg); err != nil {
		fmt.Fprintln(os.Stderr, "stressfleet:", err)
		return status.Failure
	}

	var rf rootFlags
	exitCode := status.Success

	rootCmd := &cobra.Command{
		Use:           "stressfleet",
		Short:         "stress test a system under a wall-clock budget",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			code, err := rf.execute(cmd, reg)
			exitCode = code
			return err
		},
	}
	rf.install(rootCmd.Flags(), reg)
	rootCmd.AddCommand(newWorkerCmd(reg))

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "stressfleet:", err)
		if exitCode == status.Success {
			exitCode = status.Failure
		}
	}
	return exitCode
}

func (rf *rootFlags) install(fs *pflag.FlagSet, reg *stressor.Registry) {
	fs.Int32VarP(&rf.all, "all", "a", 0, "start N instances of every stressor")
	fs.Int32Var(&rf.sequential, "sequential", 0, "run every stressor one by one with N instances")
	fs.Int32Var(&rf.permute, "permute", 0, "run permutations of stressors with N instances each")
	fs.Int32Var(&rf.random, "random", 0, "start N randomly selected stressor instances")
	fs.StringVar(&rf.with, "with", "", "comma separated list restricting multi-select modes")
	fs.StringArrayVar(&rf.classes, "class", nil, "restrict to a stressor class; trailing ? lists members")
	fs.StringVarP(&rf.exclude, "exclude", "x", "", "comma separated stressors to exclude")

	fs.StringVarP(&rf.timeout, "timeout", "t", "", "run deadline, plain seconds or a duration")
	fs.Int64Var(&rf.backoffUs, "backoff", fleet.DefaultBackoff.Microseconds(), "microseconds of per-instance start stagger")

	fs.BoolVar(&rf.abort, "abort", false, "abort the whole fleet on the first failure")
	fs.BoolVar(&rf.aggressive, "aggressive", false, "churn child CPU affinities while waiting")
	fs.BoolVarP(&rf.metricsOn, "metrics", "M", false, "print bogo-ops metrics")
	fs.BoolVar(&rf.metricsBrief, "metrics-brief", false, "print metrics, dropping zero-work entries")
	fs.BoolVar(&rf.verify, "verify", false, "ask stressors to verify their own work")
	fs.BoolVar(&rf.pathological, "pathological", false, "allow stressors that may hang the host")
	fs.BoolVar(&rf.dryRun, "dry-run", false, "plan and spawn accounting without running workloads")
	fs.BoolVar(&rf.times, "times", false, "show cumulative time statistics at the end")

	fs.Uint64Var(&rf.seed, "seed", 0, "seed the PRNG for reproducible plans")
	fs.BoolVar(&rf.noRandSeed, "no-rand-seed", false, "use the fixed default PRNG state")

	fs.BoolVar(&rf.keepFiles, "keep-files", false, "keep per-instance scratch files")
	fs.BoolVar(&rf.keepName, "keep-name", false, "do not munge stressor names in output")
	fs.StringVar(&rf.tempPath, "temp-path", ".", "directory for per-instance scratch space")
	fs.StringVar(&rf.yamlFile, "yaml", "", "write a YAML report to this file")
	fs.StringVar(&rf.jobFile, "job", "", "read options from a job file")
	fs.StringVar(&rf.logFile, "log-file", "", "also append log lines to this file")

	fs.BoolVarP(&rf.verbose, "verbose", "v", false, "debug output")
	fs.BoolVarP(&rf.quiet, "quiet", "q", false, "errors only")
	fs.BoolVarP(&rf.showVersion, "version", "V", false, "print version and exit")

	fs.IntVar(&rf.ioniceClass, "ionice-class", 0, "io priority class for workers (1=rt, 2=be, 3=idle)")
	fs.IntVar(&rf.ioniceLevel, "ionice-level", 0, "io priority level for workers")

	fs.BoolVar(&rf.perf, "perf", false, "sample hardware perf counters per worker")
	fs.BoolVar(&rf.vmstat, "vmstat", false, "log vmstat deltas during the run")
	fs.BoolVar(&rf.thermal, "tz", false, "log thermal zone temperatures")
	fs.BoolVar(&rf.klog, "klog-check", false, "watch the kernel log for errors and OOM kills")
	fs.BoolVar(&rf.ftrace, "ftrace", false, "register fleet pids with the ftrace filter")
	fs.BoolVar(&rf.smart, "smart", false, "report per-disk sector deltas")
	fs.BoolVar(&rf.thrash, "thrash", false, "apply background page pressure")
	fs.BoolVar(&rf.ignite, "ignite-cpu", false, "push cpufreq governors to performance")
	fs.BoolVar(&rf.ksm, "ksm", false, "hint the kernel same-page merger on")
	fs.StringVar(&rf.bpfDir, "bpf-dir", "", "load profile BPF objects from this directory")

	// One instance-count flag and one ops-budget flag per catalog entry,
	// plus each module's own tunables.
	for _, m := range reg.All() {
		info := m.Info()
		name := stressor.MungeName(info.Name)
		if info.Short != 0 {
			fs.Int32P(name, string(info.Short), 0, fmt.Sprintf("start N %s stressors", name))
		} else {
			fs.Int32(name, 0, fmt.Sprintf("start N %s stressors", name))
		}
		fs.Uint64(info.OpsOpt, 0, fmt.Sprintf("stop %s after N bogo operations", name))
		for _, h := range info.Help {
			fs.String(h.Opt, "", h.Description)
		}
	}
}

func (rf *rootFlags) execute(cmd *cobra.Command, reg *stressor.Registry) (int, error) {
	if rf.showVersion {
		fmt.Printf("stressfleet %s\n", version)
		return status.Success, nil
	}

	if err := logging.Setup(logging.Options{Verbose: rf.verbose, Quiet: rf.quiet, LogFile: rf.logFile}); err != nil {
		return status.Failure, err
	}

	// Mutually exclusive multi-select modes.
	modes := 0
	for _, name := range []string{"all", "sequential", "permute", "random"} {
		if flagChanged(cmd, name) {
			modes++
		}
	}
	if modes > 1 {
		return status.Failure, errors.New("cannot invoke --random, --sequential, --all or --permute options together")
	}
	if rf.noRandSeed && flagChanged(cmd, "seed") {
		return status.Failure, errors.New("cannot invoke mutually exclusive --seed and --no-rand-seed options together")
	}
	if rf.with != "" && !flagChanged(cmd, "sequential") && !flagChanged(cmd, "all") && !flagChanged(cmd, "permute") {
		return status.Failure, errors.New("the --with option also requires the --sequential, --all or --permute options")
	}

	switch {
	case flagChanged(cmd, "seed"):
		mwc.Seed(rf.seed)
	case rf.noRandSeed:
		// default fixed state
	default:
		mwc.Reseed()
	}

	// Class selection; a trailing '?' lists the members and stops.
	var classMask stressor.Class
	for _, raw := range rf.classes {
		if name, found := strings.CutSuffix(raw, "?"); found {
			c, err := stressor.ParseClass(name)
			if err != nil {
				return status.Failure, err
			}
			members := reg.ClassMembers(c)
			fmt.Printf("class '%s' stressors: %s\n", stressor.MungeName(name), strings.Join(members, " "))
			return status.Success, nil
		}
		c, err := stressor.ParseClass(raw)
		if err != nil {
			return status.Failure, err
		}
		classMask |= c
	}

	inputs, err := rf.planInputs(cmd, reg, classMask)
	if err != nil {
		return status.Failure, err
	}

	list, err := plan.Build(reg, inputs)
	if err != nil {
		if errors.Is(err, plan.ErrOnlyUnsupported) {
			logging.Infof("No stress workers invoked (one or more were unsupported)")
			return status.Success, nil
		}
		return status.Failure, err
	}
	list.ShareOpsBudget()

	timeout, err := parseTimeout(rf.timeout)
	if err != nil {
		return status.Failure, err
	}

	return rf.runFleet(reg, list, inputs, timeout, rf.stressorOpts(cmd.Flags(), reg))
}

// planInputs folds flag state into the plan builder inputs. Per-stressor
// flags are visited in pflag's deterministic order.
func (rf *rootFlags) planInputs(cmd *cobra.Command, reg *stressor.Registry, classMask stressor.Class) (plan.Inputs, error) {
	in := plan.Inputs{
		Class:             classMask,
		AllowPathological: rf.pathological,
		ConfiguredCPUs:    int32(fleet.ConfiguredCPUs()),
		OnlineCPUs:        int32(fleet.OnlineCPUs()),
	}
	if rf.exclude != "" {
		in.Exclude = splitList(rf.exclude)
	}
	if rf.with != "" {
		in.With = splitList(rf.with)
	}

	switch {
	case flagChanged(cmd, "random"):
		in.Mode = plan.ModeRandom
		in.Count = rf.random
	case flagChanged(cmd, "sequential"):
		in.Mode = plan.ModeSequential
		in.Count = rf.sequential
	case flagChanged(cmd, "permute"):
		in.Mode = plan.ModePermute
		in.Count = rf.permute
	case flagChanged(cmd, "all"):
		in.Mode = plan.ModeParallel
		in.Count = rf.all
	default:
		in.Mode = plan.ModeExplicit
	}

	fs := cmd.Flags()
	var visitErr error
	for _, m := range reg.All() {
		info := m.Info()
		name := stressor.MungeName(info.Name)
		if !fs.Changed(name) {
			continue
		}
		n, err := fs.GetInt32(name)
		if err != nil {
			visitErr = err
			continue
		}
		ops, _ := fs.GetUint64(info.OpsOpt)
		in.Explicit = append(in.Explicit, plan.Selection{Name: name, Instances: n, OpsBudget: ops})
	}
	if visitErr != nil {
		return in, visitErr
	}
	if in.Mode == plan.ModeRandom && len(in.Explicit) > 0 {
		return in, errors.New("cannot specify random option with other stress processes selected")
	}
	return in, nil
}

// stressorOpts gathers every changed per-stressor tunable as name=value.
func (rf *rootFlags) stressorOpts(fs *pflag.FlagSet, reg *stressor.Registry) []string {
	var out []string
	for _, m := range reg.All() {
		for _, h := range m.Info().Help {
			if fs.Changed(h.Opt) {
				v, err := fs.GetString(h.Opt)
				if err == nil {
					out = append(out, h.Opt+"="+v)
				}
			}
		}
	}
	return out
}

func (rf *rootFlags) runFleet(reg *stressor.Registry, list *plan.List, inputs plan.Inputs, timeout time.Duration, stressorOpts []string) (int, error) {
	total := list.AssignSlots()
	plane, err := shm.Create(total)
	if err != nil {
		return status.Failure, err
	}
	defer plane.Close()
	logging.SetFleetLock(plane.LogLock())

	ri := metrics.NewRunInfo(strings.Join(os.Args[1:], " "),
		fleet.OnlineCPUs(), fleet.ConfiguredCPUs(), os.Getpagesize())
	logging.Infof("system: %s %s %s, %d processors online, %d processors configured",
		ri.Sysname, ri.Release, ri.Machine, ri.CPUsOnline, ri.CPUsConfigured)

	if rf.ksm {
		adapters.KSMMergeHint()
	}
	adapters.CpuidleLogInfo()

	adapt := adapters.NewSet(adapters.Options{
		VmstatInterval: vmstatInterval(rf.vmstat),
		Thermal:        rf.thermal,
		Klog:           rf.klog,
		Ftrace:         rf.ftrace,
		Smart:          rf.smart,
		Thrash:         rf.thrash,
		Ignite:         rf.ignite,
		ProfileDir:     rf.bpfDir,
	})
	adapt.StartAll()

	cfg := fleet.Config{
		Timeout:      timeout,
		Backoff:      time.Duration(rf.backoffUs) * time.Microsecond,
		Abort:        rf.abort,
		Aggressive:   rf.aggressive,
		Perf:         rf.perf,
		Verify:       rf.verify,
		DryRun:       rf.dryRun,
		KeepFiles:    rf.keepFiles,
		KeepName:     rf.keepName,
		TempPath:     rf.tempPath,
		IoniceClass:  rf.ioniceClass,
		IoniceLevel:  rf.ioniceLevel,
		Verbose:      rf.verbose,
		Quiet:        rf.quiet,
		StressorOpts: stressorOpts,
	}
	runner := fleet.NewRunner(plane, list, cfg, adapt)
	runner.Banner()

	var res fleet.Results
	switch inputs.Mode {
	case plan.ModeSequential:
		res = runner.RunSequential()
	case plan.ModePermute:
		res = runner.RunPermute()
	default:
		res = runner.RunParallel()
	}

	success := res.Success
	adapt.StopAll(&success)

	sums := metrics.Summarise(plane, list)
	if rf.metricsOn || rf.metricsBrief {
		metrics.Dump(sums, rf.metricsBrief)
	}
	if !metrics.Check(plane, list) {
		success = false
	}

	ti := metrics.CollectTimes(res.Duration, fleet.ConfiguredCPUs())
	if rf.times {
		metrics.DumpTimes(ti)
	}
	metrics.StatusSummary(list)

	if rf.yamlFile != "" {
		if err := metrics.WriteYAML(rf.yamlFile, ri, sums, ti); err != nil {
			logging.Failf("%v", err)
		}
	}

	worst := res.Worst
	if !success {
		worst.Observe(status.NotSuccess)
	}
	if res.CaughtSigint {
		logging.Warnf("run interrupted by signal")
	}
	logging.Infof("%s run completed in %.2fs",
		map[bool]string{true: "successful", false: "unsuccessful"}[success],
		res.Duration.Seconds())
	logging.Sync()

	return worst.Code(), nil
}

func flagChanged(cmd *cobra.Command, name string) bool {
	return cmd.Flags().Changed(name)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseTimeout accepts plain seconds ("60") or a duration ("90s", "2m").
func parseTimeout(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseUint(s, 10, 32); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid timeout %q", s)
	}
	return d, nil
}

func vmstatInterval(enabled bool) time.Duration {
	if !enabled {
		return 0
	}
	return time.Second
}
