// Package asmir is the x86-64 assembly-level IR: physical registers, an
// unbounded virtual-register namespace, and a flat per-function
// instruction list with explicit operands.
package asmir

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// OperandKind distinguishes the operand forms an Instr's A/B fields may
// take.
type OperandKind uint8

const (
	// OpNone marks an absent operand.
	OpNone OperandKind = iota
	// OpImm is a 64-bit signed integer literal.
	OpImm
	// OpVReg is an unlimited-supply virtual register, later colored by
	// internal/backend/regalloc.
	OpVReg
	// OpPReg is a precolored physical register (an ABI or ISA requirement
	// forces a specific one, e.g. idiv's dividend in rax).
	OpPReg
	// OpSlot is a spill/local stack slot, addressed [rbp - 8*(Slot+1)].
	OpSlot
	// OpGlobal is a rip-relative reference to a module global.
	OpGlobal
	// OpArgSlot is an incoming stack argument (the 7th+ ABI argument),
	// addressed [rbp + 16 + 8*Index].
	OpArgSlot
)

// Operand is one instruction operand: exactly one of a literal, a virtual
// register, a physical register, a stack slot or a global reference.
type Operand struct {
	Kind   OperandKind
	Imm    int64
	VReg   int
	PReg   x86asm.Reg
	Slot   int
	Global string
}

func Imm(n int64) Operand        { return Operand{Kind: OpImm, Imm: n} }
func VReg(id int) Operand        { return Operand{Kind: OpVReg, VReg: id} }
func PReg(r x86asm.Reg) Operand  { return Operand{Kind: OpPReg, PReg: r} }
func Slot(i int) Operand         { return Operand{Kind: OpSlot, Slot: i} }
func Global(name string) Operand { return Operand{Kind: OpGlobal, Global: name} }
func ArgSlot(i int) Operand      { return Operand{Kind: OpArgSlot, Slot: i} }

// IsReg reports whether o is a virtual or physical register, the two kinds
// liveness/interference analysis tracks.
func (o Operand) IsReg() bool { return o.Kind == OpVReg || o.Kind == OpPReg }

func (o Operand) String() string {
	switch o.Kind {
	case OpImm:
		return fmt.Sprintf("%d", o.Imm)
	case OpVReg:
		return fmt.Sprintf("v%d", o.VReg)
	case OpPReg:
		return o.PReg.String()
	case OpSlot:
		return fmt.Sprintf("[rbp-%d]", 8*(o.Slot+1))
	case OpArgSlot:
		return fmt.Sprintf("[rbp+%d]", 16+8*o.Slot)
	case OpGlobal:
		return o.Global
	default:
		return "<none>"
	}
}

// Mnemonic is the closed set of instruction shapes isel may emit, matching
// named instructions (mov, add/sub/imul/idiv, shl/shr,
// bitwise, lea, push/pop, call/ret, cmp/jcc/jmp) plus the peephole targets
// inc/dec.
type Mnemonic uint8

const (
	Mov Mnemonic = iota
	Lea
	Add
	Sub
	IMul
	IDiv
	Neg
	Not
	And
	Or
	Xor
	Shl
	Shr
	Inc
	Dec
	Push
	Pop
	Cmp
	Test
	SetFromCond // dst := (flags satisfy Cond) ? 1 : 0, pre-peephole relation lowering
	Jmp
	Jcc
	Call
	Ret
	Leave
	Label // pseudo-instruction marking a block boundary in the flat stream
)

func (m Mnemonic) String() string {
	names := [...]string{
		"mov", "lea", "add", "sub", "imul", "idiv", "neg", "not", "and", "or",
		"xor", "shl", "shr", "inc", "dec", "push", "pop", "cmp", "test",
		"set", "jmp", "j", "call", "ret", "leave", "label",
	}
	if int(m) < len(names) {
		return names[m]
	}
	return "?"
}

// Cond is a condition code, used by both Jcc and SetFromCond.
type Cond uint8

const (
	CondE Cond = iota
	CondNE
	CondL
	CondLE
	CondG
	CondGE
)

func (c Cond) Suffix() string {
	return [...]string{"e", "ne", "l", "le", "g", "ge"}[c]
}

// Instr is one assembly instruction. Which of A/B/Target/Callee/Cond are
// meaningful depends on Op; RMW instructions (Add, Sub, IMul, And, Or, Xor,
// Shl, Shr, Neg, Not, Inc, Dec) read and write A.
type Instr struct {
	Op Mnemonic

	A, B       Operand
	HasA, HasB bool

	Cond Cond

	Target int // Jmp/Jcc target block label

	Callee   string // Call target symbol
	External bool   // Call target is a runtime symbol, not a defined function

	// ImplicitUses/ImplicitDefs record ABI-mandated physical-register
	// traffic an instruction causes beyond A/B (idiv's rax/rdx, call's
	// argument/return registers), so liveness sees the whole picture.
	ImplicitUses []x86asm.Reg
	ImplicitDefs []x86asm.Reg
}

// Defs returns the operand(s) this instruction writes.
func (in *Instr) Defs() []Operand {
	var out []Operand
	switch in.Op {
	case Mov, Lea, Pop, SetFromCond:
		if in.HasA {
			out = append(out, in.A)
		}
	case Add, Sub, IMul, And, Or, Xor, Shl, Shr, Neg, Not, Inc, Dec:
		if in.HasA {
			out = append(out, in.A)
		}
	}
	return out
}

// Uses returns the operand(s) this instruction reads.
func (in *Instr) Uses() []Operand {
	var out []Operand
	switch in.Op {
	case Mov, Lea:
		if in.HasB {
			out = append(out, in.B)
		}
	case Add, Sub, IMul, And, Or, Xor, Shl, Shr:
		if in.HasA {
			out = append(out, in.A)
		}
		if in.HasB {
			out = append(out, in.B)
		}
	case Neg, Not, Inc, Dec:
		if in.HasA {
			out = append(out, in.A)
		}
	case IDiv:
		if in.HasA {
			out = append(out, in.A)
		}
	case Push, Cmp, Test:
		if in.HasA {
			out = append(out, in.A)
		}
		if in.HasB {
			out = append(out, in.B)
		}
	}
	return out
}

// IsMove reports whether in is a register-to-register mov, the shape the
// coalescer looks for.
func (in *Instr) IsMove() bool {
	return in.Op == Mov && in.HasA && in.HasB && in.A.IsReg() && in.B.IsReg()
}

// Block is a label-identified, linear instruction list; control transfers
// are derived from the block's final instruction exactly as in internal/ir.
type Block struct {
	Label int
	Insts []*Instr
}

func (b *Block) Append(in *Instr) { b.Insts = append(b.Insts, in) }

// Successors returns the block labels a Block's trailing Jmp/Jcc run
// transfers control to (Ret ends a block with none; a conditional branch
// is always emitted as a Jcc immediately followed by a Jmp).
func (b *Block) Successors() []int {
	var out []int
	for i := len(b.Insts) - 1; i >= 0; i-- {
		in := b.Insts[i]
		if in.Op == Jmp || in.Op == Jcc {
			out = append(out, in.Target)
			continue
		}
		break
	}
	return out
}

// AllDefs returns every register operand (virtual or physical) this
// instruction writes, including ABI-implicit ones (e.g. idiv's rax/rdx).
func (in *Instr) AllDefs() []Operand {
	out := in.Defs()
	for _, r := range in.ImplicitDefs {
		out = append(out, PReg(r))
	}
	return out
}

// AllUses returns every register operand this instruction reads, including
// ABI-implicit ones (e.g. a call's argument registers).
func (in *Instr) AllUses() []Operand {
	out := in.Uses()
	for _, r := range in.ImplicitUses {
		out = append(out, PReg(r))
	}
	return out
}

// Function is one assembled function's text: an ordered block list plus
// bookkeeping regalloc needs (spill slot count) and emit needs (which
// callee-saved registers were actually used, so the prologue/epilogue only
// saves/restores what the body touches).
type Function struct {
	Name     string
	Params   int // count of incoming arguments, informing ABI unmarshalling
	Blocks   []*Block
	External bool

	NumVRegs   int // total virtual registers minted, for regalloc's graph size
	SpillSlots int // stack slots allocated to spilled registers so far

	nextVReg int
}

func (f *Function) NewBlock(label int) *Block {
	b := &Block{Label: label}
	f.Blocks = append(f.Blocks, b)
	return b
}

func (f *Function) NewVReg() Operand {
	id := f.nextVReg
	f.nextVReg++
	if id+1 > f.NumVRegs {
		f.NumVRegs = id + 1
	}
	return VReg(id)
}

func (f *Function) BlockByLabel(label int) *Block {
	for _, b := range f.Blocks {
		if b.Label == label {
			return b
		}
	}
	return nil
}

// Program is a whole compiled module's assembly IR.
type Program struct {
	Functions []*Function
	Globals   []Global
}

// Global mirrors ir.GlobalVar for the assembly back end.
type Global struct {
	Name    string
	Size    int64
	Init    []byte
	HasInit bool
}
