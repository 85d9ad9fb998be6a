package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestWriteYAMLShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.yaml")

	ri := NewRunInfo("--cpu 2 --metrics", 4, 4, 4096)
	sums := []EntrySummary{
		{
			Name:         "cpu",
			BogoOps:      1000,
			WallTime:     2.0,
			UserTime:     1.5,
			SystemTime:   0.5,
			RateRealTime: 500,
			RateCPUTime:  500,
			CPUUsage:     50,
			MaxRSSKB:     1234,
			Aux: []AuxMetric{
				{Desc: "Widgets Per Sec", Mean: 42.5, GeoMean: 40.1, N: 2},
			},
		},
	}
	ti := TimesInfo{RunTime: 2.0, AvailableCPUTime: 8.0, HaveLoadAvg: true, Load1: 1.5}

	require.NoError(t, WriteYAML(path, ri, sums, ti))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, len(data) > 0 && string(data[:4]) == "---\n", "document marker")

	var doc struct {
		RunInfo map[string]any   `yaml:"runinfo"`
		Metrics []map[string]any `yaml:"metrics"`
		Times   map[string]any   `yaml:"times"`
	}
	require.NoError(t, yaml.Unmarshal(data, &doc))

	assert.Equal(t, ri.RunID, doc.RunInfo["run-id"])
	require.Len(t, doc.Metrics, 1)
	m := doc.Metrics[0]
	assert.Equal(t, "cpu", m["stressor"])
	assert.Equal(t, 1000, m["bogo-ops"])
	for _, key := range []string{
		"bogo-ops-per-second-usr-sys-time",
		"bogo-ops-per-second-real-time",
		"wall-clock-time",
		"user-time",
		"system-time",
		"cpu-usage-per-instance",
		"max-rss",
		"widgets-per-sec",
	} {
		assert.Contains(t, m, key)
	}
	assert.Contains(t, doc.Times, "run-time")
	assert.Contains(t, doc.Times, "load-average-1-minute")
}

func TestRunInfoIdentity(t *testing.T) {
	a := NewRunInfo("x", 1, 1, 4096)
	b := NewRunInfo("x", 1, 1, 4096)
	assert.NotEqual(t, a.RunID, b.RunID, "each run gets a fresh id")
	assert.NotZero(t, a.Date)
}
