//go:build linux

package shm

import (
	"os"
	"testing"
)

func TestCreateLayout(t *testing.T) {
	const n = 5
	p, err := Create(n)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer p.Close()

	page := os.Getpagesize()
	statsLen, sumsLen := p.SegmentSizes()
	want := alignUp(headerSize+statsSize*n+2*page, page)
	if statsLen != want {
		t.Fatalf("stats segment %d bytes, want %d", statsLen, want)
	}
	if statsLen%page != 0 || sumsLen%page != 0 {
		t.Fatalf("segments not page aligned: %d %d", statsLen, sumsLen)
	}
	if got := alignUp(checksumSize*n, page); sumsLen != got {
		t.Fatalf("checksum segment %d bytes, want %d", sumsLen, got)
	}
	if p.NumSlots() != n {
		t.Fatalf("slots %d, want %d", p.NumSlots(), n)
	}
	if p.Header().Length != uint64(statsLen) {
		t.Fatalf("header length %d, want %d", p.Header().Length, statsLen)
	}
}

func TestSlotIsolation(t *testing.T) {
	p, err := Create(3)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer p.Close()

	for i := 0; i < 3; i++ {
		s := p.Stat(i)
		s.PID = int64(100 + i)
		s.Counter = uint64(i) * 7
	}
	for i := 0; i < 3; i++ {
		s := p.Stat(i)
		if s.PID != int64(100+i) || s.Counter != uint64(i)*7 {
			t.Fatalf("slot %d clobbered: pid=%d counter=%d", i, s.PID, s.Counter)
		}
	}
}

func TestAttachSeesParentWrites(t *testing.T) {
	p, err := Create(2)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer p.Close()

	p.Stat(1).Counter = 42
	statsFile, sumsFile := p.Files()

	child, err := Attach(statsFile, sumsFile)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	defer child.Close()

	if child.NumSlots() != 2 {
		t.Fatalf("attached slots %d, want 2", child.NumSlots())
	}
	if got := child.Stat(1).Counter; got != 42 {
		t.Fatalf("attached counter %d, want 42", got)
	}

	child.Stat(0).Counter = 7
	if got := p.Stat(0).Counter; got != 7 {
		t.Fatalf("parent view %d, want 7", got)
	}
}

func TestInstanceCounts(t *testing.T) {
	p, err := Create(1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer p.Close()

	h := p.Header()
	h.InstanceStarted()
	h.InstanceStarted()
	h.InstanceExited()
	h.InstanceReaped()
	started, exited, reaped, failed, alarmed := h.Counts()
	if started != 1 || exited != 1 || reaped != 1 || failed != 0 || alarmed != 0 {
		t.Fatalf("counts %d %d %d %d %d", started, exited, reaped, failed, alarmed)
	}
}

func TestSentinelPages(t *testing.T) {
	p, err := Create(1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer p.Close()

	page := os.Getpagesize()
	if len(p.Mapped.None) != page || len(p.Mapped.RO) != page || len(p.Mapped.WO) != page {
		t.Fatal("sentinel pages not page sized")
	}
	// Both ro and wo pages must be readable; wo is PROT_READ on purpose.
	_ = p.Mapped.RO[0]
	_ = p.Mapped.WO[page-1]
}

func TestSharedLockRoundtrip(t *testing.T) {
	p, err := Create(1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer p.Close()

	l := p.LogLock()
	done := make(chan struct{})
	l.Lock()
	go func() {
		l.Lock()
		l.Unlock()
		close(done)
	}()
	l.Unlock()
	<-done
}
