// Package metrics turns reaped per-instance stats into the run report:
// per-entry aggregates, the post-run integrity check, the exit-status
// summary, and the YAML emission.
package metrics

import (
	"math"
	"time"

	"stressfleet/core/plan"
	"stressfleet/shm"
)

// AuxMetric is one auxiliary measurement aggregated across instances.
type AuxMetric struct {
	Desc    string
	Mean    float64
	GeoMean float64
	N       int
}

// EntrySummary is the aggregate of one run-list entry over its completed
// instances.
type EntrySummary struct {
	Name      string
	Completed int
	RunOK     bool

	BogoOps    uint64
	WallTime   float64 // mean wall clock over completed instances, seconds
	UserTime   float64
	SystemTime float64

	RateRealTime float64 // bogo-ops per second of wall time
	RateCPUTime  float64 // bogo-ops per second of usr+sys time
	CPUUsage     float64 // percent per instance

	MaxRSSKB int64
	Aux      []AuxMetric
}

// Summarise aggregates every runnable entry of the list.
func Summarise(p *shm.Plane, l *plan.List) []EntrySummary {
	var out []EntrySummary
	for _, e := range l.Entries {
		if !e.Runnable() || e.Instances == 0 {
			continue
		}
		out = append(out, summariseEntry(p, e))
	}
	return out
}

func summariseEntry(p *shm.Plane, e *plan.Entry) EntrySummary {
	sum := EntrySummary{Name: e.Name()}

	var (
		cTotal uint64
		rTotal time.Duration
		uTotal time.Duration
		sTotal time.Duration
		maxRSS int64
	)
	for j := int32(0); j < e.Instances; j++ {
		s := p.Stat(e.SlotBase + int(j))
		if s.Completed != 0 {
			sum.Completed++
		}
		sum.RunOK = sum.RunOK || s.RunOK != 0
		cTotal += s.CounterTotal
		uTotal += time.Duration(s.UtimeTotalNs)
		sTotal += time.Duration(s.StimeTotalNs)
		rTotal += time.Duration(s.DurationTotalNs)
		if s.MaxRSSKB > maxRSS {
			maxRSS = s.MaxRSSKB
		}
	}
	e.Completed = int32(sum.Completed)

	sum.BogoOps = cTotal
	sum.MaxRSSKB = maxRSS
	sum.UserTime = uTotal.Seconds()
	sum.SystemTime = sTotal.Seconds()

	// Wall time is the arithmetic mean across completed instances: the
	// instances ran concurrently, so their durations overlap.
	if sum.Completed > 0 {
		sum.WallTime = rTotal.Seconds() / float64(sum.Completed)
	}
	if sum.WallTime > 0 {
		sum.RateRealTime = float64(cTotal) / sum.WallTime
	}
	if usTotal := sum.UserTime + sum.SystemTime; usTotal > 0 {
		sum.RateCPUTime = float64(cTotal) / usTotal
	}
	if sum.WallTime > 0 && sum.Completed > 0 {
		sum.CPUUsage = 100.0 * (sum.UserTime + sum.SystemTime) / sum.WallTime / float64(sum.Completed)
	}

	sum.Aux = auxMetrics(p, e)
	return sum
}

// auxMetrics folds the auxiliary metric slots: arithmetic mean for the
// YAML block and a geometric mean for the report, the latter accumulated
// as decomposed mantissa and exponent so a long product cannot overflow.
func auxMetrics(p *shm.Plane, e *plan.Entry) []AuxMetric {
	if e.Instances == 0 {
		return nil
	}
	first := p.Stat(e.SlotBase)
	var out []AuxMetric
	for i := 0; i < shm.MaxMetrics; i++ {
		desc := first.Metrics[i].Description()
		if desc == "" {
			continue
		}
		var (
			total    float64
			mantissa = 1.0
			exponent int64
			n        float64
		)
		for j := int32(0); j < e.Instances; j++ {
			v := p.Stat(e.SlotBase + int(j)).Metrics[i].Value
			total += v
			if v > 0.0 {
				frac, exp := math.Frexp(v)
				mantissa *= frac
				exponent += int64(exp)
				n++
			}
		}
		m := AuxMetric{Desc: desc, N: int(n)}
		if e.Completed > 0 {
			m.Mean = total / float64(e.Completed)
		}
		if n > 0 {
			inv := 1.0 / n
			m.GeoMean = math.Pow(mantissa, inv) * math.Pow(2.0, float64(exponent)*inv)
		}
		out = append(out, m)
	}
	return out
}
