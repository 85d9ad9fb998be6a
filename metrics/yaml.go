package metrics

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// RunInfo heads the YAML report.
type RunInfo struct {
	RunID          string
	Date           time.Time
	Hostname       string
	Sysname        string
	Release        string
	Machine        string
	CPUsOnline     int
	CPUsConfigured int
	PageSize       int
	Invocation     string
}

// NewRunInfo stamps a fresh run identity.
func NewRunInfo(invocation string, online, configured, pageSize int) RunInfo {
	host, _ := os.Hostname()
	ri := RunInfo{
		RunID:          uuid.NewString(),
		Date:           time.Now(),
		Hostname:       host,
		CPUsOnline:     online,
		CPUsConfigured: configured,
		PageSize:       pageSize,
		Invocation:     invocation,
	}
	ri.Sysname, ri.Release, ri.Machine = unameStrings()
	return ri
}

// WriteYAML emits the full report document to path: runinfo, one metrics
// block per entry, then the times block. Key order follows the report
// layout, so the document is built from explicit nodes rather than maps.
func WriteYAML(path string, ri RunInfo, sums []EntrySummary, ti TimesInfo) error {
	root := mappingNode()
	appendKeyed(root, "runinfo", runinfoNode(ri))
	appendKeyed(root, "metrics", metricsNode(sums))
	appendKeyed(root, "times", timesNode(ti))

	doc := &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal yaml report: %w", err)
	}
	out := append([]byte("---\n"), data...)
	out = append(out, []byte("...\n")...)
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write yaml report: %w", err)
	}
	return nil
}

func runinfoNode(ri RunInfo) *yaml.Node {
	n := mappingNode()
	appendScalar(n, "run-id", ri.RunID)
	appendScalar(n, "date-yyyy-mm-dd", ri.Date.Format("2006:01:02"))
	appendScalar(n, "time-hh-mm-ss", ri.Date.Format("15:04:05"))
	appendScalar(n, "epoch-secs", strconv.FormatInt(ri.Date.Unix(), 10))
	appendScalar(n, "hostname", ri.Hostname)
	appendScalar(n, "sysname", ri.Sysname)
	appendScalar(n, "release", ri.Release)
	appendScalar(n, "machine", ri.Machine)
	appendScalar(n, "cpus-online", strconv.Itoa(ri.CPUsOnline))
	appendScalar(n, "cpus-configured", strconv.Itoa(ri.CPUsConfigured))
	appendScalar(n, "pagesize", strconv.Itoa(ri.PageSize))
	appendScalar(n, "invocation", ri.Invocation)
	return n
}

func metricsNode(sums []EntrySummary) *yaml.Node {
	seq := &yaml.Node{Kind: yaml.SequenceNode}
	for _, s := range sums {
		m := mappingNode()
		appendScalar(m, "stressor", s.Name)
		appendScalar(m, "bogo-ops", strconv.FormatUint(s.BogoOps, 10))
		appendFloat(m, "bogo-ops-per-second-usr-sys-time", s.RateCPUTime)
		appendFloat(m, "bogo-ops-per-second-real-time", s.RateRealTime)
		appendFloat(m, "wall-clock-time", s.WallTime)
		appendFloat(m, "user-time", s.UserTime)
		appendFloat(m, "system-time", s.SystemTime)
		appendFloat(m, "cpu-usage-per-instance", s.CPUUsage)
		appendScalar(m, "max-rss", strconv.FormatInt(s.MaxRSSKB, 10))
		for _, aux := range s.Aux {
			appendFloat(m, yamlifyDescription(aux.Desc), aux.Mean)
		}
		seq.Content = append(seq.Content, m)
	}
	return seq
}

func timesNode(ti TimesInfo) *yaml.Node {
	n := mappingNode()
	appendFloat(n, "run-time", ti.RunTime)
	appendFloat(n, "available-cpu-time", ti.AvailableCPUTime)
	appendFloat(n, "user-time", ti.UserTime)
	appendFloat(n, "system-time", ti.SystemTime)
	appendFloat(n, "total-time", ti.TotalTime)
	appendFloat(n, "user-time-percent", ti.UserPercent)
	appendFloat(n, "system-time-percent", ti.SystemPercent)
	appendFloat(n, "total-time-percent", ti.TotalPercent)
	if ti.HaveLoadAvg {
		appendFloat(n, "load-average-1-minute", ti.Load1)
		appendFloat(n, "load-average-5-minute", ti.Load5)
		appendFloat(n, "load-average-15-minute", ti.Load15)
	}
	return n
}

// yamlifyDescription folds an auxiliary metric description into a YAML
// key: lower case, spaces to hyphens, everything else non-alphanumeric
// dropped, at most 40 characters.
func yamlifyDescription(desc string) string {
	out := make([]byte, 0, 40)
	for i := 0; i < len(desc) && len(out) < 40; i++ {
		ch := desc[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= '0' && ch <= '9':
			out = append(out, ch)
		case ch >= 'A' && ch <= 'Z':
			out = append(out, ch+'a'-'A')
		case ch == ' ':
			out = append(out, '-')
		}
	}
	return string(out)
}

func mappingNode() *yaml.Node { return &yaml.Node{Kind: yaml.MappingNode} }

func appendKeyed(m *yaml.Node, key string, value *yaml.Node) {
	m.Content = append(m.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: key}, value)
}

func appendScalar(m *yaml.Node, key, value string) {
	appendKeyed(m, key, &yaml.Node{Kind: yaml.ScalarNode, Value: value})
}

func appendFloat(m *yaml.Node, key string, v float64) {
	appendKeyed(m, key, &yaml.Node{
		Kind:  yaml.ScalarNode,
		Value: strconv.FormatFloat(v, 'f', 6, 64),
	})
}
