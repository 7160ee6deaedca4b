package vmem

import "errors"

// ErrOutOfMemory is returned by an atomic (MEM_ATOMIC) allocation that
// cannot be satisfied. Non-atomic callers never see this error: they
// panic instead.
var ErrOutOfMemory = errors.New("vmem: out of memory")

// ErrConstraintUnsatisfiable is returned by Xalloc when no existing
// segment satisfies align/phase/nocross/minaddr/maxaddr and importing
// is forbidden because the request is constrained: a blind import
// could strand a span that the constraints can never use, so Xalloc
// fails out instead.
var ErrConstraintUnsatisfiable = errors.New("vmem: xalloc constraints cannot be satisfied without stranding a span")

// ErrSourcedArenaAdd is returned by Add when called on an arena that
// has a source: arenas that grow by import may not also be grown
// manually.
var ErrSourcedArenaAdd = errors.New("vmem: Add is forbidden on an arena with a source")
