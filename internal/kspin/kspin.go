// Package kspin provides the lock primitive arena and slab code build on.
//
// The kernel this module is modeled after synchronizes with an
// interrupt-safe spinlock: acquire disables interrupts on the current
// CPU and remembers whether they were enabled; release restores that
// state. Go has no interrupts to mask, so Lock is a plain mutex that
// preserves the same acquire/release shape so call sites read the way
// the spec describes them, without pretending to do IRQ masking it
// cannot actually perform.
package kspin

import "sync"

// Lock is an IRQ-save-flavored mutex. Zero value is ready to use.
type Lock struct {
	mu sync.Mutex
}

// Acquire locks l.
func (l *Lock) Acquire() {
	l.mu.Lock()
}

// Release unlocks l.
func (l *Lock) Release() {
	l.mu.Unlock()
}
