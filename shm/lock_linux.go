//go:build linux

package shm

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Lock is a futex-backed mutex whose state word lives in the shared header,
// so it serialises across every process attached to the plane. It is held
// only across short formatting operations, never across spawn or signal
// delivery.
type Lock struct {
	state *uint32
}

func newLock(state *uint32) *Lock { return &Lock{state: state} }

// Lock acquires the mutex, sleeping in the kernel under contention.
func (l *Lock) Lock() {
	if atomic.CompareAndSwapUint32(l.state, 0, 1) {
		return
	}
	for {
		if atomic.LoadUint32(l.state) == 2 || atomic.CompareAndSwapUint32(l.state, 1, 2) {
			futexWait(l.state, 2)
		}
		if atomic.CompareAndSwapUint32(l.state, 0, 2) {
			return
		}
	}
}

// Unlock releases the mutex and wakes one waiter if any slept.
func (l *Lock) Unlock() {
	if atomic.SwapUint32(l.state, 0) == 2 {
		futexWake(l.state, 1)
	}
}

// FUTEX_WAIT and FUTEX_WAKE are not exported by golang.org/x/sys/unix;
// their values are fixed by the Linux futex(2) ABI.
const (
	futexWaitOp = 0
	futexWakeOp = 1
)

func futexWait(addr *uint32, val uint32) {
	_, _, _ = unix.Syscall6(unix.SYS_FUTEX, uintptr(unsafe.Pointer(addr)),
		uintptr(futexWaitOp), uintptr(val), 0, 0, 0)
}

func futexWake(addr *uint32, n int) {
	_, _, _ = unix.Syscall6(unix.SYS_FUTEX, uintptr(unsafe.Pointer(addr)),
		uintptr(futexWakeOp), uintptr(n), 0, 0, 0)
}
