package ir

import "fmt"

// InstID is the stable identity of an instruction: an index into its
// owning function's instruction arena. Identity is distinct from value
// equality, two instructions can be structurally equal yet have different
// ids, and analyses key their maps on InstID so that replacing an entry in
// a block's instruction list never invalidates an existing map entry for
// the instruction it replaced.
type InstID int

// PhiOperand is one (value, predecessor-label) pair of a Phi instruction.
type PhiOperand struct {
	Value Addr
	Pred  int
}

// Instruction is the tagged-variant instruction node: the fields that apply
// depend on Op, mirroring the closed sum in the (modeled as a Go struct
// with an explicit discriminant rather than a class hierarchy, per the
// design note on exhaustive switches over tagged variants).
type Instruction struct {
	id InstID
	Op Op

	Dest    Addr
	HasDest bool

	A, B       Addr
	HasA, HasB bool

	Arith ArithKind

	Size     int64
	SizeExpr Addr
	HasSize  bool // Alloca/SAlloc literal size valid
	HasSizeX bool // Malloc size expression valid

	Bytes []byte // StrCpy literal payload

	Target     int // Jump
	Then, Else int // Branch

	RetVoid bool // Ret

	Callee string // Call
	Args   []Addr

	Phi []PhiOperand

	Text string // Comment / AttachedComment
}

// ID returns the instruction's stable identity.
func (i *Instruction) ID() InstID { return i.id }

// IsTerminator reports whether i is a Jump, Branch or Ret.
func (i *Instruction) IsTerminator() bool { return i.Op.IsTerminator() }

// IsDeleted reports whether i is a tombstone.
func (i *Instruction) IsDeleted() bool { return i.Op == OpDeleted }

// Defs returns the address defined by i, if any.
func (i *Instruction) Defs() (Addr, bool) {
	if i.HasDest {
		return i.Dest, true
	}
	return Addr{}, false
}

// Uses appends every operand address used by i (not including labels) to
// dst and returns the result, used to build def-use/use-def chains.
func (i *Instruction) Uses(dst []Addr) []Addr {
	use := func(a Addr, ok bool) {
		if ok && (a.IsLocal() || a.IsGlobal()) {
			dst = append(dst, a)
		}
	}
	switch i.Op {
	case OpAssign:
		use(i.A, i.HasA)
	case OpArithUnary:
		use(i.A, i.HasA)
	case OpArithBinary, OpRelation:
		use(i.A, i.HasA)
		use(i.B, i.HasB)
	case OpMalloc:
		if i.HasSizeX {
			use(i.SizeExpr, true)
		}
	case OpLoad:
		use(i.A, i.HasA)
	case OpStore:
		use(i.A, i.HasA)
		use(i.B, i.HasB)
	case OpBranch:
		use(i.A, i.HasA)
	case OpRet:
		if !i.RetVoid {
			use(i.A, i.HasA)
		}
	case OpCall:
		for _, a := range i.Args {
			use(a, true)
		}
	case OpPhi:
		for _, p := range i.Phi {
			use(p.Value, true)
		}
	}
	return dst
}

// ReplaceUses rewrites every operand of i that satisfies match(old) to
// replacement, used by copy propagation/SCCP/GVN to fold in known values.
func (i *Instruction) ReplaceUses(match func(Addr) bool, replacement func(Addr) Addr) {
	repl := func(a *Addr) {
		if match(*a) {
			*a = replacement(*a)
		}
	}
	switch i.Op {
	case OpAssign:
		repl(&i.A)
	case OpArithUnary:
		repl(&i.A)
	case OpArithBinary, OpRelation:
		repl(&i.A)
		repl(&i.B)
	case OpMalloc:
		if i.HasSizeX {
			repl(&i.SizeExpr)
		}
	case OpLoad:
		repl(&i.A)
	case OpStore:
		repl(&i.A)
		repl(&i.B)
	case OpBranch:
		repl(&i.A)
	case OpRet:
		if !i.RetVoid {
			repl(&i.A)
		}
	case OpCall:
		for idx := range i.Args {
			repl(&i.Args[idx])
		}
	case OpPhi:
		for idx := range i.Phi {
			repl(&i.Phi[idx].Value)
		}
	}
}

// Successors returns the block labels i transfers control to, valid only
// for terminators (: "a block's successors are derivable from its
// terminator").
func (i *Instruction) Successors() []int {
	switch i.Op {
	case OpJump:
		return []int{i.Target}
	case OpBranch:
		return []int{i.Then, i.Else}
	case OpRet:
		return nil
	default:
		return nil
	}
}

// IsPure reports whether the instruction has no observable side effect
// beyond defining its destination (used by purity/LICM analyses). Load,
// Store, Call, Malloc and terminators are impure.
func (i *Instruction) IsPure() bool {
	switch i.Op {
	case OpAssign, OpArithUnary, OpArithBinary, OpRelation, OpPhi, OpAlloca:
		return true
	default:
		return false
	}
}

func (i *Instruction) String() string {
	d := ""
	if i.HasDest {
		d = i.Dest.String() + " = "
	}
	switch i.Op {
	case OpAssign:
		return fmt.Sprintf("%s%s %s", d, i.Op, i.A)
	case OpArithUnary:
		return fmt.Sprintf("%s%s %s", d, i.Arith, i.A)
	case OpArithBinary, OpRelation:
		return fmt.Sprintf("%s%s %s, %s", d, i.Arith, i.A, i.B)
	case OpAlloca, OpSAlloc:
		return fmt.Sprintf("%s%s %d", d, i.Op, i.Size)
	case OpMalloc:
		if i.HasSizeX {
			return fmt.Sprintf("%s%s %s", d, i.Op, i.SizeExpr)
		}
		return fmt.Sprintf("%s%s %d", d, i.Op, i.Size)
	case OpLoad:
		return fmt.Sprintf("%s%s %s", d, i.Op, i.A)
	case OpStore:
		return fmt.Sprintf("%s %s, %s", i.Op, i.A, i.B)
	case OpStrCpy:
		return fmt.Sprintf("%s%s %q", d, i.Op, string(i.Bytes))
	case OpJump:
		return fmt.Sprintf("jump <%d>", i.Target)
	case OpBranch:
		return fmt.Sprintf("br %s, <%d>, <%d>", i.A, i.Then, i.Else)
	case OpRet:
		if i.RetVoid {
			return "ret void"
		}
		return fmt.Sprintf("ret %s", i.A)
	case OpCall:
		return fmt.Sprintf("%scall %s(%s)", d, i.Callee, argsString(i.Args))
	case OpPhi:
		return fmt.Sprintf("%sphi %s", d, phiString(i.Phi))
	case OpComment, OpAttachedComment:
		return "; " + i.Text
	case OpDeleted:
		return "; <deleted>"
	default:
		return "?"
	}
}

func argsString(args []Addr) string {
	s := ""
	for idx, a := range args {
		if idx > 0 {
			s += ", "
		}
		s += a.String()
	}
	return s
}

func phiString(ops []PhiOperand) string {
	s := ""
	for idx, p := range ops {
		if idx > 0 {
			s += " "
		}
		s += fmt.Sprintf("[ %s <%d> ]", p.Value, p.Pred)
	}
	return s
}
