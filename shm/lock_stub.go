//go:build !linux

package shm

import "sync"

// Lock degrades to a process-local mutex off linux, where the plane itself
// is unavailable anyway.
type Lock struct {
	mu *sync.Mutex
}

var stubLocks sync.Map

func newLock(state *uint32) *Lock {
	mu, _ := stubLocks.LoadOrStore(state, &sync.Mutex{})
	return &Lock{mu: mu.(*sync.Mutex)}
}

func (l *Lock) Lock()   { l.mu.Lock() }
func (l *Lock) Unlock() { l.mu.Unlock() }
