// Package sync provides the locking primitives used throughout the kernel:
// a plain spinlock (frame allocator bitmap, event-stream FIFOs) and a
// reader-writer spinlock (the object registry). Both are safe to use
// before the Go runtime's own scheduler is available since they never
// park a goroutine, only busy-wait.
package sync

import "sync/atomic"

// Spinlock implements a lock where the caller busy-waits until it becomes
// available. Re-acquiring a lock already held by the current execution
// context deadlocks, same as any other non-reentrant lock.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock is obtained.
func (l *Spinlock) Acquire() {
	for !l.TryToAcquire() {
		archSpinWait()
	}
}

// TryToAcquire attempts to acquire the lock without blocking and reports
// whether it succeeded.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.SwapUint32(&l.state, 1) == 0
}

// Release relinquishes a held lock. Calling Release on an already-free lock
// has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}

// archSpinWait issues a PAUSE between failed lock attempts so the CPU can
// de-pipeline the spin loop. It never calls into the scheduler directly to
// avoid acquiring a lock while already inside one (see the lock-ordering
// rule: never acquire in reverse, never park inside a lock).
func archSpinWait()
