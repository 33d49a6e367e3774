package opt

import (
	"github.com/Engineev/mxc/internal/ir"
	"github.com/Engineev/mxc/internal/ir/analysis"
	"github.com/Engineev/mxc/internal/ir/dom"
)

// IndVar recognizes basic induction variables (a header phi incremented by
// a loop-invariant step on the back edge) and strength-reduces a derived
// variable that multiplies one by a loop-invariant coefficient into an
// accumulator updated by addition alongside the basic variable, eliminating
// the per-iteration multiply.
type IndVar struct{}

func (IndVar) Name() string { return "indvar" }

type basicIV struct {
	Name    string
	Init    ir.Addr
	Step    ir.Addr
	StepNeg bool
	Update  ir.InstID
	Latch   int
}

func (IndVar) RunOnFunction(f *ir.Function) bool {
	if f.External || f.Entry() == nil {
		return false
	}
	info := dom.Build(f)
	li := analysis.BuildLoops(f, info)
	changed := false
	var process func(lp *analysis.Loop)
	process = func(lp *analysis.Loop) {
		for _, n := range lp.Nested {
			process(n)
		}
		if reduceLoop(f, info, lp) {
			changed = true
		}
	}
	for _, lp := range li.Top {
		process(lp)
	}
	return changed
}

func reduceLoop(f *ir.Function, info *dom.Info, lp *analysis.Loop) bool {
	du := analysis.Build(f)
	headerBlk := f.BlockByLabel(lp.Header)
	ivs := findBasicIVs(f, lp, headerBlk, du)
	if len(ivs) == 0 {
		return false
	}
	blockOf := map[ir.InstID]int{}
	for label := range lp.Blocks {
		for _, id := range f.BlockByLabel(label).Insts {
			blockOf[id] = label
		}
	}

	changed := false
	for _, label := range loopBlockOrder(info, lp) {
		blk := f.BlockByLabel(label)
		for _, id := range append([]ir.InstID(nil), blk.Insts...) {
			inst := f.Inst(id)
			if inst.IsDeleted() || inst.Op != ir.OpArithBinary || inst.Arith != ir.KMul || !inst.HasDest {
				continue
			}
			iv, coef, ok := matchMul(f, inst, ivs, lp, du)
			if !ok {
				continue
			}
			if !usedOnlyInside(du, inst.Dest.Name, blockOf) {
				continue
			}
			if strengthReduce(f, lp, iv, blk, id, coef) {
				changed = true
				// Re-fetch in case the loop's own block list changed.
				headerBlk = f.BlockByLabel(lp.Header)
				ivs = findBasicIVs(f, lp, headerBlk, du)
			}
		}
	}
	return changed
}

// findBasicIVs locates header phis of the form:
//
//	iv = phi [ init, <preheader> ] [ next, <latch> ]
//	next = iv + step   (or iv - step), step invariant in lp
func findBasicIVs(f *ir.Function, lp *analysis.Loop, headerBlk *ir.BasicBlock, du *analysis.DefUse) []*basicIV {
	var out []*basicIV
	for _, id := range headerBlk.Phis(f) {
		inst := f.Inst(id)
		if len(inst.Phi) != 2 {
			continue
		}
		var init, backVal ir.Addr
		var latch int
		haveInit, haveBack := false, false
		for _, op := range inst.Phi {
			if lp.Blocks[op.Pred] {
				backVal, latch, haveBack = op.Value, op.Pred, true
			} else {
				init, haveInit = op.Value, true
			}
		}
		if !haveInit || !haveBack || !backVal.IsLocal() {
			continue
		}
		updID, ok := du.Def[backVal.Name]
		if !ok {
			continue
		}
		upd := f.Inst(updID)
		if upd.Op != ir.OpArithBinary || !(upd.Arith == ir.KAdd || upd.Arith == ir.KSub) {
			continue
		}
		var step ir.Addr
		neg := false
		switch {
		case upd.A.Equal(inst.Dest) && lp.IsInvariant(f, du, upd.B):
			step = upd.B
			neg = upd.Arith == ir.KSub
		case upd.Arith == ir.KAdd && upd.B.Equal(inst.Dest) && lp.IsInvariant(f, du, upd.A):
			step = upd.A
		default:
			continue
		}
		out = append(out, &basicIV{Name: inst.Dest.Name, Init: init, Step: step, StepNeg: neg, Update: updID, Latch: latch})
	}
	return out
}

// matchMul reports whether inst computes iv*coef or coef*iv for some known
// basic induction variable, with coef loop-invariant.
func matchMul(f *ir.Function, inst *ir.Instruction, ivs []*basicIV, lp *analysis.Loop, du *analysis.DefUse) (*basicIV, ir.Addr, bool) {
	for _, iv := range ivs {
		if inst.A.IsLocal() && inst.A.Name == iv.Name && lp.IsInvariant(f, du, inst.B) {
			return iv, inst.B, true
		}
		if inst.B.IsLocal() && inst.B.Name == iv.Name && lp.IsInvariant(f, du, inst.A) {
			return iv, inst.A, true
		}
	}
	return nil, ir.Addr{}, false
}

// usedOnlyInside reports whether every recorded use of name lies within a
// block belonging to the loop (blockOf maps loop-internal instruction ids
// to their block label). A derived variable consumed outside the loop is
// left alone: a header phi's value at loop entry is the previous
// iteration's result, which would be off by one for such a consumer.
func usedOnlyInside(du *analysis.DefUse, name string, blockOf map[ir.InstID]int) bool {
	uses := du.Uses[name]
	if len(uses) == 0 {
		return false
	}
	for _, u := range uses {
		if _, ok := blockOf[u]; !ok {
			return false
		}
	}
	return true
}

// strengthReduce rewrites inst (dest = iv*coef or coef*iv) into a new
// header phi that tracks the running product alongside iv, updated by
// addition at iv's latch instead of being recomputed by multiplication
// every iteration.
func strengthReduce(f *ir.Function, lp *analysis.Loop, iv *basicIV, owner *ir.BasicBlock, mulID ir.InstID, coef ir.Addr) bool {
	preheader, _ := ensurePreheader(f, lp)
	if preheader == nil {
		return false
	}
	mul := f.Inst(mulID)
	dest := mul.Dest
	headerBlk := f.BlockByLabel(lp.Header)
	latchBlk := f.BlockByLabel(iv.Latch)

	initMul := f.NewInst(ir.OpArithBinary)
	initMul.HasDest = true
	initMul.Dest = f.NewLocal()
	initMul.Arith = ir.KMul
	initMul.A, initMul.HasA = iv.Init, true
	initMul.B, initMul.HasB = coef, true
	insertBeforeTerm(preheader, initMul.ID())

	stepMul := f.NewInst(ir.OpArithBinary)
	stepMul.HasDest = true
	stepMul.Dest = f.NewLocal()
	stepMul.Arith = ir.KMul
	stepMul.A, stepMul.HasA = iv.Step, true
	stepMul.B, stepMul.HasB = coef, true
	insertBeforeTerm(preheader, stepMul.ID())

	nextName := f.NewLocal()
	update := f.NewInst(ir.OpArithBinary)
	update.HasDest = true
	update.Dest = nextName
	if iv.StepNeg {
		update.Arith = ir.KSub
	} else {
		update.Arith = ir.KAdd
	}
	update.A, update.HasA = dest, true
	update.B, update.HasB = stepMul.Dest, true
	insertAfter(latchBlk, iv.Update, update.ID())

	phi := f.NewInst(ir.OpPhi)
	phi.HasDest = true
	phi.Dest = dest
	phi.Phi = []ir.PhiOperand{
		{Value: initMul.Dest, Pred: preheader.Label},
		{Value: nextName, Pred: iv.Latch},
	}
	headerBlk.Insts = append([]ir.InstID{phi.ID()}, headerBlk.Insts...)

	f.Tombstone(mulID)
	return true
}

func insertAfter(b *ir.BasicBlock, after, id ir.InstID) {
	for idx, bid := range b.Insts {
		if bid == after {
			b.Insts = append(b.Insts, 0)
			copy(b.Insts[idx+2:], b.Insts[idx+1:])
			b.Insts[idx+1] = id
			return
		}
	}
}
