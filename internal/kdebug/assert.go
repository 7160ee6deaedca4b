//go:build debug

// Package kdebug includes debugging helpers: Assert/Log are invariant
// checks and trace lines compiled out of normal builds, Warnf/Panicf (in
// kdebug.go) are the always-on panic/warn reporter contract.
package kdebug

// Enabled is true when this binary was built with -tags debug.
const Enabled = true

// Assert panics if cond is false. Used for invariant checks
// (free-list bucketing, alloc-hash status, segment ordering) that are
// expensive enough that they should not run in production builds.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		Panicf("assertion failed: "+format, args...)
	}
}

// Log prints a debug trace line, tagged with the goroutine id.
func Log(format string, args ...any) {
	Warnf(format, args...)
}
