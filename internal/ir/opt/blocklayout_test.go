package opt

import (
	"testing"

	"github.com/Engineev/mxc/internal/ir"
)

func labelOrder(fn *ir.Function) []int {
	out := make([]int, len(fn.Blocks))
	for i, b := range fn.Blocks {
		out[i] = b.Label
	}
	return out
}

func equalOrder(got, want []int) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

// TestCodegenPreparationPushesEarlyReturnPastContinuation builds a diamond
// where the taken arm returns immediately: entry -> {retA, contB}, retA ends
// in Ret. A plain preorder DFS would visit retA right after entry (it is
// listed first in Branch.Successors); CodegenPreparation instead schedules
// contB first, keeping the non-returning path contiguous.
func TestCodegenPreparationPushesEarlyReturnPastContinuation(t *testing.T) {
	fn := ir.NewFunction("f", nil)
	entry := fn.NewBlock() // 0
	retA := fn.NewBlock()  // 1
	contB := fn.NewBlock() // 2

	br := fn.NewInst(ir.OpBranch)
	br.HasA, br.A = true, ir.Imm(1)
	br.Then, br.Else = retA.Label, contB.Label
	entry.Append(br.ID())

	ret1 := fn.NewInst(ir.OpRet)
	ret1.RetVoid = true
	retA.Append(ret1.ID())

	ret2 := fn.NewInst(ir.OpRet)
	ret2.RetVoid = true
	contB.Append(ret2.ID())

	if !(CodegenPreparation{}.RunOnFunction(fn)) {
		t.Fatal("expected RunOnFunction to report a change")
	}
	want := []int{entry.Label, contB.Label, retA.Label}
	if got := labelOrder(fn); !equalOrder(got, want) {
		t.Fatalf("expected order %v, got %v", want, got)
	}
}

// TestCodegenPreparationKeepsLoopLatchBeforeEarlyReturn builds a loop whose
// body conditionally returns: header (loop header) -> body -> {retBlock,
// latch}, latch -> header (the back edge). A plain preorder DFS visits
// retBlock before latch; because body's taken arm (retBlock) ends in Ret,
// CodegenPreparation instead schedules latch next, keeping the loop's
// continuation path contiguous and leaving retBlock trailing.
func TestCodegenPreparationKeepsLoopLatchBeforeEarlyReturn(t *testing.T) {
	fn := ir.NewFunction("f", nil)
	header := fn.NewBlock()   // 0
	body := fn.NewBlock()     // 1
	exit := fn.NewBlock()     // 2
	retBlock := fn.NewBlock() // 3
	latch := fn.NewBlock()    // 4

	hdrBr := fn.NewInst(ir.OpBranch)
	hdrBr.HasA, hdrBr.A = true, ir.Imm(1)
	hdrBr.Then, hdrBr.Else = body.Label, exit.Label
	header.Append(hdrBr.ID())

	bodyBr := fn.NewInst(ir.OpBranch)
	bodyBr.HasA, bodyBr.A = true, ir.Imm(1)
	bodyBr.Then, bodyBr.Else = retBlock.Label, latch.Label
	body.Append(bodyBr.ID())

	exitRet := fn.NewInst(ir.OpRet)
	exitRet.RetVoid = true
	exit.Append(exitRet.ID())

	retBlockRet := fn.NewInst(ir.OpRet)
	retBlockRet.RetVoid = true
	retBlock.Append(retBlockRet.ID())

	latchJump := fn.NewInst(ir.OpJump)
	latchJump.Target = header.Label
	latch.Append(latchJump.ID())

	CodegenPreparation{}.RunOnFunction(fn)

	want := []int{header.Label, body.Label, latch.Label, retBlock.Label, exit.Label}
	if got := labelOrder(fn); !equalOrder(got, want) {
		t.Fatalf("expected order %v, got %v", want, got)
	}
}

func TestCodegenPreparationLeavesSingleBlockFunctionAlone(t *testing.T) {
	fn := ir.NewFunction("f", nil)
	b := fn.NewBlock()
	ret := fn.NewInst(ir.OpRet)
	ret.RetVoid = true
	b.Append(ret.ID())

	if CodegenPreparation{}.RunOnFunction(fn) {
		t.Fatal("expected no change for a single-block function")
	}
}
