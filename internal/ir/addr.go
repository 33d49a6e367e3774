// Package ir defines the typed linear SSA intermediate representation: the
// operand universe, the closed instruction-kind sum, basic blocks, function
// modules and the top-level module, plus the invariants asserted over them.
package ir

import "fmt"

// AddrKind distinguishes the four members of the typed-address operand
// universe.
type AddrKind uint8

const (
	// AddrImm is a 64-bit signed integer literal.
	AddrImm AddrKind = iota
	// AddrLocal is a function-unique SSA-name register.
	AddrLocal
	// AddrGlobal is a module-unique global register (address of a global).
	AddrGlobal
	// AddrLabel is a numeric basic-block label.
	AddrLabel
	// AddrNone marks an absent operand (e.g. a void return value).
	AddrNone
)

// Addr is an operand: one of a literal, a local register, a global register
// or a block label. It is a small value type, copied freely.
type Addr struct {
	Kind  AddrKind
	Imm   int64
	Name  string // AddrLocal / AddrGlobal identifier
	Label int    // AddrLabel block id
}

// Imm builds an integer literal operand.
func Imm(n int64) Addr { return Addr{Kind: AddrImm, Imm: n} }

// Local builds a local-register operand.
func Local(name string) Addr { return Addr{Kind: AddrLocal, Name: name} }

// Global builds a global-register operand. Names conventionally begin with
// "@"; NewGlobal on Module enforces this.
func Global(name string) Addr { return Addr{Kind: AddrGlobal, Name: name} }

// Label builds a basic-block label operand.
func Label(id int) Addr { return Addr{Kind: AddrLabel, Label: id} }

// None is the absent operand.
var NoAddr = Addr{Kind: AddrNone}

// NullGlobal is the distinguished global representing null.
const NullGlobal = "@null"

// IsConst reports whether a is an integer literal.
func (a Addr) IsConst() bool { return a.Kind == AddrImm }

// IsLocal reports whether a is a local SSA register.
func (a Addr) IsLocal() bool { return a.Kind == AddrLocal }

// IsGlobal reports whether a is a global register.
func (a Addr) IsGlobal() bool { return a.Kind == AddrGlobal }

// Equal reports structural equality between two addresses.
func (a Addr) Equal(b Addr) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case AddrImm:
		return a.Imm == b.Imm
	case AddrLocal, AddrGlobal:
		return a.Name == b.Name
	case AddrLabel:
		return a.Label == b.Label
	default:
		return true
	}
}

// String renders an address using the textual IR syntax: literal, %local,
// @global, <label>.
func (a Addr) String() string {
	switch a.Kind {
	case AddrImm:
		return fmt.Sprintf("%d", a.Imm)
	case AddrLocal:
		return "%" + a.Name
	case AddrGlobal:
		return a.Name
	case AddrLabel:
		return fmt.Sprintf("<%d>", a.Label)
	default:
		return "<none>"
	}
}
