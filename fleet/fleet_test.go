package fleet

import (
	"errors"
	"os"
	"syscall"
	"testing"

	"stressfleet/core/stressor"
)

func TestCountCPUList(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"0-3", 4},
		{"0-3,7,9-11", 8},
		{"0", 1},
		{"", 0},
		{"junk", 0},
	}
	for _, tc := range cases {
		if got := countCPUList(tc.in); got != tc.want {
			t.Fatalf("countCPUList(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestTempDirPath(t *testing.T) {
	got := tempDirPath("/tmp/scratch", "hdd", 123, 4)
	if got != "/tmp/scratch/hdd-123-4" {
		t.Fatalf("path %q", got)
	}
	if got := tempDirPath("", "hdd", 1, 0); got != "hdd-1-0" {
		t.Fatalf("default base path %q", got)
	}
}

func TestIsEAGAIN(t *testing.T) {
	if !isEAGAIN(syscall.EAGAIN) {
		t.Fatal("plain errno not recognised")
	}
	if !isEAGAIN(&os.SyscallError{Syscall: "fork", Err: syscall.EAGAIN}) {
		t.Fatal("wrapped errno not recognised")
	}
	if isEAGAIN(errors.New("nope")) || isEAGAIN(syscall.ENOMEM) {
		t.Fatal("false positive")
	}
}

type optModule struct {
	info stressor.Info
	set  map[string]string
}

func (m *optModule) Info() *stressor.Info   { return &m.info }
func (m *optModule) Run(*stressor.Args) int { return 0 }
func (m *optModule) Options() []string      { return []string{"vm-bytes", "vm-mode"} }
func (m *optModule) SetOption(name, value string) error {
	if value == "bad" {
		return errors.New("bad value")
	}
	if m.set == nil {
		m.set = map[string]string{}
	}
	m.set[name] = value
	return nil
}

func TestApplyModuleOptions(t *testing.T) {
	m := &optModule{info: stressor.Info{ID: 1, Name: "vm"}}
	err := applyModuleOptions(m, []string{"vm-bytes=256m", "cpu-method=trig", "vm-mode=walk"})
	if err != nil {
		t.Fatalf("applyModuleOptions: %v", err)
	}
	if m.set["vm-bytes"] != "256m" || m.set["vm-mode"] != "walk" {
		t.Fatalf("options %v", m.set)
	}
	if _, ok := m.set["cpu-method"]; ok {
		t.Fatal("foreign option applied")
	}

	if err := applyModuleOptions(m, []string{"malformed"}); err == nil {
		t.Fatal("malformed option accepted")
	}
	if err := applyModuleOptions(m, []string{"vm-bytes=bad"}); err == nil {
		t.Fatal("setter error swallowed")
	}
}

