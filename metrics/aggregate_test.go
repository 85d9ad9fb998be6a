//go:build linux

package metrics

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stressfleet/core/plan"
	"stressfleet/core/stressor"
	"stressfleet/shm"
)

type stubModule struct {
	info stressor.Info
}

func (s *stubModule) Info() *stressor.Info   { return &s.info }
func (s *stubModule) Run(*stressor.Args) int { return 0 }

func planeWithEntry(t *testing.T, instances int32) (*shm.Plane, *plan.List, *plan.Entry) {
	t.Helper()
	e := &plan.Entry{
		Module:    &stubModule{info: stressor.Info{ID: 1, Name: "cpu", Class: stressor.ClassCPU}},
		Instances: instances,
	}
	l := &plan.List{Entries: []*plan.Entry{e}}
	total := l.AssignSlots()
	p, err := shm.Create(total)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p, l, e
}

func TestSummariseSumsAndRates(t *testing.T) {
	p, l, e := planeWithEntry(t, 2)

	for j := 0; j < 2; j++ {
		s := p.Stat(e.SlotBase + j)
		s.Completed = 1
		s.RunOK = 1
		s.CounterTotal = 500
		s.DurationTotalNs = int64(2 * time.Second)
		s.UtimeTotalNs = int64(1 * time.Second)
		s.StimeTotalNs = int64(500 * time.Millisecond)
		s.MaxRSSKB = int64(1000 * (j + 1))
	}

	sums := Summarise(p, l)
	require.Len(t, sums, 1)
	s := sums[0]
	assert.Equal(t, uint64(1000), s.BogoOps)
	assert.Equal(t, 2, s.Completed)
	assert.InDelta(t, 2.0, s.WallTime, 1e-9, "mean wall time across instances")
	assert.InDelta(t, 500.0, s.RateRealTime, 1e-6)
	assert.InDelta(t, 1000.0/3.0, s.RateCPUTime, 1e-6)
	// 3s cpu over 2s wall over 2 instances.
	assert.InDelta(t, 75.0, s.CPUUsage, 1e-6)
	assert.Equal(t, int64(2000), s.MaxRSSKB)
}

func TestAuxGeometricMean(t *testing.T) {
	p, l, e := planeWithEntry(t, 3)

	values := []float64{2.0, 8.0, 4.0}
	for j, v := range values {
		s := p.Stat(e.SlotBase + j)
		s.Completed = 1
		s.Metrics[0].SetDesc("widgets per sec")
		s.Metrics[0].Value = v
	}

	sums := Summarise(p, l)
	require.Len(t, sums, 1)
	require.Len(t, sums[0].Aux, 1)
	aux := sums[0].Aux[0]
	want := math.Pow(2.0*8.0*4.0, 1.0/3.0)
	assert.InDelta(t, want, aux.GeoMean, 1e-9)
	assert.InDelta(t, (2.0+8.0+4.0)/3.0, aux.Mean, 1e-9)
	assert.Equal(t, 3, aux.N)
}

func TestAuxGeometricMeanLargeValuesNoOverflow(t *testing.T) {
	p, l, e := planeWithEntry(t, 4)
	for j := 0; j < 4; j++ {
		s := p.Stat(e.SlotBase + j)
		s.Completed = 1
		s.Metrics[0].SetDesc("huge")
		s.Metrics[0].Value = 1e300
	}
	sums := Summarise(p, l)
	require.Len(t, sums[0].Aux, 1)
	assert.InDelta(t, 1e300, sums[0].Aux[0].GeoMean, 1e287)
	assert.False(t, math.IsInf(sums[0].Aux[0].GeoMean, 1))
}

func TestIntegrityCheckRoundtrip(t *testing.T) {
	p, l, e := planeWithEntry(t, 1)

	s := p.Stat(e.SlotBase)
	s.Completed = 1
	s.Counter = 12345
	s.RunOK = 1
	s.DurationNs = int64(time.Second)

	c := p.Checksum(e.SlotBase)
	c.Data.Counter = s.Counter
	c.Data.RunOK = s.RunOK
	c.Finalise()

	assert.True(t, Check(p, l))

	// Any post-hoc flip in the stats slot must fail the check.
	s.Counter ^= 4
	assert.False(t, Check(p, l))
}

func TestYamlifyDescription(t *testing.T) {
	assert.Equal(t, "widgets-per-sec", yamlifyDescription("Widgets Per Sec"))
	assert.Equal(t, "nanosecs-x10", yamlifyDescription("NanoSecs (x10)"))
	long := yamlifyDescription("a very long description that keeps going and going and going far past forty")
	assert.LessOrEqual(t, len(long), 40)
}
