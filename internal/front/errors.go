package front

import (
	"github.com/pkg/errors"

	"github.com/Engineev/mxc/internal/position"
)

// Class distinguishes the three fatal error categories the front end
// reports, each tagged with a source position.
type Class int

const (
	Lexical Class = iota
	Syntactic
	Semantic
)

func (c Class) String() string {
	switch c {
	case Lexical:
		return "lexical error"
	case Syntactic:
		return "syntax error"
	case Semantic:
		return "semantic error"
	default:
		return "error"
	}
}

// Error is a positioned, classified front-end diagnostic. The front end
// never returns a bare error for a user-facing failure: every lexing,
// parsing, or semantic-checking failure is wrapped in one of these so
// cmd/mxc can format it consistently and exit with the right code.
type Error struct {
	Class Class
	Pos   position.Position
	Msg   string
}

func (e *Error) Error() string {
	return e.Pos.String() + ": " + e.Class.String() + ": " + e.Msg
}

func newError(class Class, pos position.Position, format string, args ...interface{}) error {
	return errors.WithStack(&Error{Class: class, Pos: pos, Msg: errors.Errorf(format, args...).Error()})
}

func lexErr(pos position.Position, format string, args ...interface{}) error {
	return newError(Lexical, pos, format, args...)
}

func syntaxErr(pos position.Position, format string, args ...interface{}) error {
	return newError(Syntactic, pos, format, args...)
}

func semaErr(pos position.Position, format string, args ...interface{}) error {
	return newError(Semantic, pos, format, args...)
}
