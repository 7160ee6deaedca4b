package vmem

// Flags combines exactly one allocation policy bit with at most one
// memory-discipline bit. The two bit ranges are disjoint; init
// asserts that at package load time rather than leaving it as an
// unchecked convention.
type Flags uint32

// Allocation policies (low byte).
const (
	BestFit Flags = 1 << iota
	InstantFit
	NextFit
)

const policyMask Flags = BestFit | InstantFit | NextFit

// Memory discipline (high bits, disjoint from the policy range).
const (
	MemAtomic Flags = 1 << (8 + iota)
	MemWait
	MemError
)

const memMask Flags = MemAtomic | MemWait | MemError

func init() {
	if policyMask&memMask != 0 {
		panic("vmem: allocation-policy and memory-discipline flag bits overlap")
	}
}

// policy returns the requested allocation policy, defaulting to
// InstantFit when the caller specified none.
func (f Flags) policy() Flags {
	if p := f & policyMask; p != 0 {
		return p
	}
	return InstantFit
}

// atomic reports whether the caller asked for MEM_ATOMIC (must not
// block; OOM surfaces as a null return rather than a panic).
func (f Flags) atomic() bool {
	return f&MemAtomic != 0
}

// mem isolates the memory-discipline bits, for forwarding to an import
// call without leaking the caller's allocation policy into the
// source's own policy choice.
func (f Flags) mem() Flags {
	return f & memMask
}
