//go:build linux

package main

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"stressfleet/core/status"
)

// TestMain doubles as the worker entry point: spawned instances re-exec
// this test binary with "worker" as the first argument.
func TestMain(m *testing.M) {
	if len(os.Args) > 1 && os.Args[1] == "worker" {
		os.Exit(run(os.Args[1:]))
	}
	os.Exit(m.Run())
}

func TestVersionFlag(t *testing.T) {
	if code := run([]string{"--version"}); code != status.Success {
		t.Fatalf("exit %d", code)
	}
}

func TestClassQueryListsAndExits(t *testing.T) {
	if code := run([]string{"--class", "cpu?"}); code != status.Success {
		t.Fatalf("exit %d", code)
	}
}

func TestUnknownStressorFails(t *testing.T) {
	if code := run([]string{"--exclude", "warp-core", "--cpu", "1", "--timeout", "1"}); code != status.Failure {
		t.Fatalf("exit %d, want failure", code)
	}
}

func TestConflictingModesFail(t *testing.T) {
	if code := run([]string{"--all", "1", "--sequential", "1"}); code != status.Failure {
		t.Fatalf("exit %d, want failure", code)
	}
}

func TestClassWithoutMultiSelectFails(t *testing.T) {
	if code := run([]string{"--class", "cpu", "--cpu", "1", "--timeout", "1"}); code != status.Failure {
		t.Fatalf("exit %d, want failure", code)
	}
}

func TestSeedConflictFails(t *testing.T) {
	if code := run([]string{"--seed", "7", "--no-rand-seed", "--cpu", "1"}); code != status.Failure {
		t.Fatalf("exit %d, want failure", code)
	}
}

func TestEndToEndExplicitRun(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a worker fleet")
	}
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "report.yaml")

	code := run([]string{
		"--cpu", "2", "--vm", "1", "--vm-bytes", "8m",
		"--timeout", "1", "--metrics", "--times",
		"--temp-path", dir,
		"--yaml", yamlPath,
	})
	if code != status.Success {
		t.Fatalf("exit %d, want success", code)
	}

	data, err := os.ReadFile(yamlPath)
	if err != nil {
		t.Fatalf("yaml report: %v", err)
	}
	var doc struct {
		Metrics []map[string]any `yaml:"metrics"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if len(doc.Metrics) != 2 {
		t.Fatalf("%d metrics blocks, want 2", len(doc.Metrics))
	}
	names := map[any]bool{}
	for _, m := range doc.Metrics {
		names[m["stressor"]] = true
	}
	if !names["cpu"] || !names["vm"] {
		t.Fatalf("metrics blocks %v", names)
	}
}

func TestEndToEndOpsBudget(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a worker fleet")
	}
	dir := t.TempDir()
	// A tiny ops budget finishes long before the deadline.
	code := run([]string{
		"--cpu", "1", "--cpu-ops", "10",
		"--timeout", "10", "--temp-path", dir,
	})
	if code != status.Success {
		t.Fatalf("exit %d, want success", code)
	}
}
