//go:build !debug

package kdebug

// Enabled is false for ordinary builds; Assert/Log compile to nothing.
const Enabled = false

func Assert(bool, string, ...any) {}
func Log(string, ...any)          {}
