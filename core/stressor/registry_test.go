package stressor

import (
	"testing"

	"stressfleet/shm"
)

func testStats() *shm.Stats { return &shm.Stats{} }

type nullModule struct {
	info Info
}

func (n *nullModule) Info() *Info   { return &n.info }
func (n *nullModule) Run(*Args) int { return 0 }

func TestRegistryLookupMunging(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(&nullModule{info: Info{ID: 1, Name: "mem_copy", Class: ClassMemory}}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	for _, name := range []string{"mem-copy", "mem_copy", "MEM-Copy"} {
		if _, err := reg.Lookup(name); err != nil {
			t.Fatalf("Lookup(%q): %v", name, err)
		}
	}
	if _, err := reg.Lookup("memcopy"); err == nil {
		t.Fatal("expected lookup failure")
	}
}

func TestRegistryDuplicateID(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(&nullModule{info: Info{ID: 7, Name: "a"}}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register(&nullModule{info: Info{ID: 7, Name: "b"}}); err == nil {
		t.Fatal("duplicate id accepted")
	}
	if err := reg.Register(&nullModule{info: Info{ID: 8, Name: "A"}}); err == nil {
		t.Fatal("duplicate munged name accepted")
	}
}

func TestRegistryOrderByID(t *testing.T) {
	reg := NewRegistry()
	for _, e := range []struct {
		id   uint32
		name string
	}{{3, "c"}, {1, "a"}, {2, "b"}} {
		if err := reg.Register(&nullModule{info: Info{ID: e.id, Name: e.name}}); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	names := reg.Names()
	want := []string{"a", "b", "c"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names %v, want %v", names, want)
		}
	}
}

func TestClassMembers(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register(&nullModule{info: Info{ID: 1, Name: "cpu", Class: ClassCPU}})
	_ = reg.Register(&nullModule{info: Info{ID: 2, Name: "vm", Class: ClassVM | ClassMemory}})

	members := reg.ClassMembers(ClassMemory)
	if len(members) != 1 || members[0] != "vm" {
		t.Fatalf("members %v", members)
	}
}

func TestParseClass(t *testing.T) {
	c, err := ParseClass("CPU_Cache")
	if err != nil {
		t.Fatalf("ParseClass: %v", err)
	}
	if c != ClassCPUCache {
		t.Fatalf("class %v", c)
	}
	if _, err := ParseClass("warp-drive"); err == nil {
		t.Fatal("expected unknown class error")
	}
}

func TestArgsContinueHonorsOpsBudget(t *testing.T) {
	defer ContinueSet(true)
	ContinueSet(true)

	a := &Args{MaxOps: 2}
	a.Stats = testStats()
	if !a.Continue() {
		t.Fatal("fresh args should continue")
	}
	a.BumpCounter(2)
	if a.Continue() {
		t.Fatal("budget reached, should stop")
	}

	a.Stats.Counter = 0
	ContinueSet(false)
	if a.Continue() {
		t.Fatal("cleared flag should stop")
	}
}
