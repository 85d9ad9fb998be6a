package plan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stressfleet/core/mwc"
	"stressfleet/core/stressor"
)

type fakeModule struct {
	info        stressor.Info
	unsupported bool
}

func (f *fakeModule) Info() *stressor.Info   { return &f.info }
func (f *fakeModule) Run(*stressor.Args) int { return 0 }
func (f *fakeModule) Supported(string) error {
	if f.unsupported {
		return errors.New("not here")
	}
	return nil
}

func testRegistry(t *testing.T) *stressor.Registry {
	t.Helper()
	reg := stressor.NewRegistry()
	mods := []*fakeModule{
		{info: stressor.Info{ID: 1, Name: "cpu", Class: stressor.ClassCPU}},
		{info: stressor.Info{ID: 2, Name: "vm", Class: stressor.ClassVM | stressor.ClassMemory}},
		{info: stressor.Info{ID: 3, Name: "pipe", Class: stressor.ClassPipe | stressor.ClassOS}},
		{info: stressor.Info{ID: 4, Name: "oomable", Class: stressor.ClassVM | stressor.ClassPathological}},
		{info: stressor.Info{ID: 5, Name: "gpu-burn", Class: stressor.ClassGPU}, unsupported: true},
	}
	for _, m := range mods {
		require.NoError(t, reg.Register(m))
	}
	return reg
}

func inputs() Inputs {
	return Inputs{ConfiguredCPUs: 4, OnlineCPUs: 2}
}

func TestExplicitSeed(t *testing.T) {
	reg := testRegistry(t)
	in := inputs()
	in.Explicit = []Selection{{Name: "cpu", Instances: 2}, {Name: "VM", Instances: 1}}

	l, err := Build(reg, in)
	require.NoError(t, err)
	require.Len(t, l.Entries, 2)
	assert.Equal(t, "cpu", l.Entries[0].Name())
	assert.Equal(t, int32(2), l.Entries[0].Instances)
	assert.Equal(t, "vm", l.Entries[1].Name())
	assert.Equal(t, int32(1), l.Entries[1].Instances)
	assert.Equal(t, 3, l.TotalInstances())
}

func TestUnknownNameFails(t *testing.T) {
	reg := testRegistry(t)
	in := inputs()
	in.Explicit = []Selection{{Name: "nope", Instances: 1}}

	_, err := Build(reg, in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "valid stressors")
}

func TestCountConventions(t *testing.T) {
	reg := testRegistry(t)
	in := inputs()
	in.Explicit = []Selection{{Name: "cpu", Instances: 0}, {Name: "vm", Instances: -1}}

	l, err := Build(reg, in)
	require.NoError(t, err)
	assert.Equal(t, int32(4), l.Entries[0].Instances, "0 means configured CPUs")
	assert.Equal(t, int32(2), l.Entries[1].Instances, "negative means online CPUs")
}

func TestRandomProducesExactlyN(t *testing.T) {
	reg := testRegistry(t)
	for _, seed := range []uint64{1, 99, 0xfeedface} {
		rnd := mwc.New()
		rnd.Seed(seed)
		in := inputs()
		in.Mode = ModeRandom
		in.Count = 7
		in.Rand = rnd

		l, _ := Build(reg, in)
		require.NotNil(t, l)
		total := int32(0)
		for _, e := range l.Entries {
			total += e.Instances
		}
		assert.Equal(t, int32(7), total, "seed %d", seed)
	}
}

func TestRandomRejectsExplicit(t *testing.T) {
	reg := testRegistry(t)
	in := inputs()
	in.Mode = ModeRandom
	in.Count = 3
	in.Explicit = []Selection{{Name: "cpu", Instances: 1}}

	_, err := Build(reg, in)
	require.Error(t, err)
}

func TestPlanDeterminism(t *testing.T) {
	reg := testRegistry(t)
	build := func() *List {
		rnd := mwc.New()
		rnd.Seed(42)
		in := inputs()
		in.Mode = ModeRandom
		in.Count = 9
		in.Rand = rnd
		l, err := Build(reg, in)
		require.NoError(t, err)
		return l
	}
	a, b := build(), build()
	require.Equal(t, len(a.Entries), len(b.Entries))
	for i := range a.Entries {
		assert.Equal(t, a.Entries[i].Name(), b.Entries[i].Name())
		assert.Equal(t, a.Entries[i].Instances, b.Entries[i].Instances)
		assert.Equal(t, a.Entries[i].Ignore, b.Entries[i].Ignore)
	}
}

func TestWithListRestricts(t *testing.T) {
	reg := testRegistry(t)
	in := inputs()
	in.Mode = ModeSequential
	in.Count = 2
	in.With = []string{"cpu", "pipe"}

	l, err := Build(reg, in)
	require.NoError(t, err)
	require.Len(t, l.Entries, 2)
	assert.Equal(t, "cpu", l.Entries[0].Name())
	assert.Equal(t, "pipe", l.Entries[1].Name())
}

func TestAllEnablesCatalog(t *testing.T) {
	reg := testRegistry(t)
	in := inputs()
	in.Mode = ModeParallel
	in.Count = 1

	l, err := Build(reg, in)
	require.NoError(t, err)
	require.Len(t, l.Entries, 5)
	// pathological gated, gpu-burn unsupported; both stay listed.
	byName := map[string]*Entry{}
	for _, e := range l.Entries {
		byName[e.Name()] = e
	}
	assert.Equal(t, Excluded, byName["oomable"].Ignore.Run)
	assert.Equal(t, Unsupported, byName["gpu-burn"].Ignore.Run)
	assert.Equal(t, NotIgnored, byName["cpu"].Ignore.Run)
}

func TestPathologicalOptIn(t *testing.T) {
	reg := testRegistry(t)
	in := inputs()
	in.Mode = ModeParallel
	in.Count = 1
	in.AllowPathological = true

	l, err := Build(reg, in)
	require.NoError(t, err)
	for _, e := range l.Entries {
		if e.Name() == "oomable" {
			assert.Equal(t, NotIgnored, e.Ignore.Run)
		}
	}
}

func TestClassFilterZeroesOthers(t *testing.T) {
	reg := testRegistry(t)
	in := inputs()
	in.Mode = ModeParallel
	in.Count = 3
	in.Class = stressor.ClassVM

	l, err := Build(reg, in)
	require.NoError(t, err)
	for _, e := range l.Entries {
		if e.Module.Info().Class.Intersects(stressor.ClassVM) {
			assert.Equal(t, int32(3), e.Instances, e.Name())
		} else {
			assert.Equal(t, int32(0), e.Instances, e.Name())
			assert.Equal(t, NotIgnored, e.Ignore.Run, e.Name())
		}
	}
}

func TestClassWithoutMultiSelectFails(t *testing.T) {
	reg := testRegistry(t)
	in := inputs()
	in.Class = stressor.ClassCPU
	in.Explicit = []Selection{{Name: "cpu", Instances: 1}}

	_, err := Build(reg, in)
	require.Error(t, err)
}

func TestExcludeMarksEntries(t *testing.T) {
	reg := testRegistry(t)
	in := inputs()
	in.Mode = ModeParallel
	in.Count = 1
	in.Exclude = []string{"VM"}

	l, err := Build(reg, in)
	require.NoError(t, err)
	for _, e := range l.Entries {
		if e.Name() == "vm" {
			assert.Equal(t, Excluded, e.Ignore.Run)
		}
	}
}

func TestOnlyUnsupportedIsSoftFailure(t *testing.T) {
	reg := testRegistry(t)
	in := inputs()
	in.Explicit = []Selection{{Name: "gpu-burn", Instances: 2}}

	l, err := Build(reg, in)
	require.ErrorIs(t, err, ErrOnlyUnsupported)
	require.NotNil(t, l)
}

func TestSlotAssignment(t *testing.T) {
	reg := testRegistry(t)
	in := inputs()
	in.Explicit = []Selection{
		{Name: "cpu", Instances: 2},
		{Name: "vm", Instances: 3},
		{Name: "pipe", Instances: 1},
	}
	in.Exclude = []string{"vm"}

	l, err := Build(reg, in)
	require.NoError(t, err)
	total := l.AssignSlots()
	assert.Equal(t, 3, total)
	assert.Equal(t, 0, l.Entries[0].SlotBase)
	assert.Equal(t, 2, l.Entries[2].SlotBase)
}

func TestShareOpsBudgetRoundsUp(t *testing.T) {
	reg := testRegistry(t)
	in := inputs()
	in.Explicit = []Selection{{Name: "cpu", Instances: 3, OpsBudget: 10}}

	l, err := Build(reg, in)
	require.NoError(t, err)
	l.ShareOpsBudget()
	assert.Equal(t, uint64(4), l.Entries[0].OpsBudget)
}
