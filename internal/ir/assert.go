package ir

import "github.com/pkg/errors"

// CompilerBug marks a panic raised from a failed internal invariant: such
// violations indicate a compiler bug, not a user error, and are never
// returned as a normal error value.
type CompilerBug struct {
	Err error
}

func (b *CompilerBug) Error() string { return b.Err.Error() }
func (b *CompilerBug) Unwrap() error { return b.Err }

// Assertf panics with a CompilerBug if cond is false. It is used at pass
// boundaries to enforce IR well-formedness and the transactional
// discipline around tombstoned instructions.
func Assertf(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(&CompilerBug{Err: errors.Errorf(format, args...)})
	}
}
