package opt

import (
	"testing"

	"github.com/Engineev/mxc/internal/ir"
)

func newArithBinary(fn *ir.Function, dest string, k ir.ArithKind, a, b ir.Addr) *ir.Instruction {
	inst := fn.NewInst(ir.OpArithBinary)
	inst.HasDest = true
	inst.Dest = ir.Local(dest)
	inst.Arith = k
	inst.HasA, inst.A = true, a
	inst.HasB, inst.B = true, b
	return inst
}

// TestLocalValueNumberingReplacesRedundantComputation builds a single block
// computing x+y twice in a row with no intervening redefinition; the second
// occurrence should be rewritten to an Assign reading the first's result.
func TestLocalValueNumberingReplacesRedundantComputation(t *testing.T) {
	fn := ir.NewFunction("f", nil)
	b := fn.NewBlock()

	sum1 := newArithBinary(fn, "t0", ir.KAdd, ir.Local("x"), ir.Local("y"))
	b.Append(sum1.ID())
	sum2 := newArithBinary(fn, "t1", ir.KAdd, ir.Local("x"), ir.Local("y"))
	b.Append(sum2.ID())
	ret := fn.NewInst(ir.OpRet)
	ret.RetVoid = true
	b.Append(ret.ID())

	if !(LocalValueNumbering{}.RunOnFunction(fn)) {
		t.Fatal("expected RunOnFunction to report a change")
	}
	got := fn.Inst(sum2.ID())
	if got.Op != ir.OpAssign {
		t.Fatalf("expected second computation rewritten to assign, got op %v", got.Op)
	}
	if !got.HasA || !got.A.Equal(ir.Local("t0")) {
		t.Fatalf("expected assign to read t0, got %v", got.A)
	}
}

// TestLocalValueNumberingDoesNotCrossBlocks builds two sibling blocks that
// each independently compute x+y. Because the table resets at the start of
// every block, neither occurrence is redundant with the other: this is
// exactly the property that distinguishes it from the dominator-scoped GVN.
func TestLocalValueNumberingDoesNotCrossBlocks(t *testing.T) {
	fn := ir.NewFunction("f", nil)
	entry := fn.NewBlock()
	left := fn.NewBlock()
	right := fn.NewBlock()

	br := fn.NewInst(ir.OpBranch)
	br.HasA, br.A = true, ir.Imm(1)
	br.Then, br.Else = left.Label, right.Label
	entry.Append(br.ID())

	leftSum := newArithBinary(fn, "a", ir.KAdd, ir.Local("x"), ir.Local("y"))
	left.Append(leftSum.ID())
	leftRet := fn.NewInst(ir.OpRet)
	leftRet.RetVoid = true
	left.Append(leftRet.ID())

	rightSum := newArithBinary(fn, "b", ir.KAdd, ir.Local("x"), ir.Local("y"))
	right.Append(rightSum.ID())
	rightRet := fn.NewInst(ir.OpRet)
	rightRet.RetVoid = true
	right.Append(rightRet.ID())

	if LocalValueNumbering{}.RunOnFunction(fn) {
		t.Fatal("expected no change: the two computations live in different blocks")
	}
	if got := fn.Inst(leftSum.ID()); got.Op != ir.OpArithBinary {
		t.Fatalf("left block's computation must survive untouched, got op %v", got.Op)
	}
	if got := fn.Inst(rightSum.ID()); got.Op != ir.OpArithBinary {
		t.Fatalf("right block's computation must survive untouched, got op %v", got.Op)
	}
}

// TestLocalValueNumberingPropagatesWithinBlock checks that once a
// computation is numbered, a later use of its original destination within
// the same block is rewritten to the canonical value too.
func TestLocalValueNumberingPropagatesWithinBlock(t *testing.T) {
	fn := ir.NewFunction("f", nil)
	b := fn.NewBlock()

	sum1 := newArithBinary(fn, "t0", ir.KAdd, ir.Local("x"), ir.Local("y"))
	b.Append(sum1.ID())
	sum2 := newArithBinary(fn, "t1", ir.KAdd, ir.Local("x"), ir.Local("y"))
	b.Append(sum2.ID())
	use := fn.NewInst(ir.OpArithUnary)
	use.HasDest = true
	use.Dest = ir.Local("t2")
	use.Arith = ir.KNeg
	use.HasA, use.A = true, ir.Local("t1")
	b.Append(use.ID())
	ret := fn.NewInst(ir.OpRet)
	ret.RetVoid = true
	b.Append(ret.ID())

	LocalValueNumbering{}.RunOnFunction(fn)

	got := fn.Inst(use.ID())
	if !got.A.Equal(ir.Local("t0")) {
		t.Fatalf("expected later use of t1 rewritten to t0, got %v", got.A)
	}
}
