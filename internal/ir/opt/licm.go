package opt

import (
	"sort"

	"github.com/Engineev/mxc/internal/ir"
	"github.com/Engineev/mxc/internal/ir/analysis"
	"github.com/Engineev/mxc/internal/ir/dom"
)

// LICM hoists loop-invariant, pure instructions out of natural loops into a
// preheader block, inserting one if the header does not already have a
// single block feeding it from outside the loop.
type LICM struct{}

func (LICM) Name() string { return "licm" }

func (LICM) RunOnFunction(f *ir.Function) bool {
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
		if hoistLoop(f, info, lp) {
			changed = true
		}
	}
	for _, lp := range li.Top {
		process(lp)
	}
	return changed
}

// hoistLoop finds or creates lp's preheader and moves every pure,
// loop-invariant instruction in lp's body into it. It only handles loops
// with a single block feeding the header from outside the loop; a header
// reached by multiple external edges is left alone (conservative, a
// further SimplifyCFG/LICM round can still simplify the CFG into that
// shape first).
func hoistLoop(f *ir.Function, info *dom.Info, lp *analysis.Loop) bool {
	preheader, created := ensurePreheader(f, lp)
	if preheader == nil {
		return false
	}

	du := analysis.Build(f)
	invariant := lp.InvariantClosure(f, du)
	if len(invariant) == 0 {
		return created
	}

	moved := false
	for _, label := range loopBlockOrder(info, lp) {
		blk := f.BlockByLabel(label)
		kept := blk.Insts[:0:0]
		for _, id := range blk.Insts {
			if invariant[id] {
				insertBeforeTerm(preheader, id)
				moved = true
				continue
			}
			kept = append(kept, id)
		}
		blk.Insts = kept
	}
	return moved || created
}

// ensurePreheader returns lp's preheader, creating one if the header's
// single external predecessor has more than one successor. It reports
// whether a new block was created. Only loops with exactly one external
// predecessor are handled; a header reached by several external edges
// returns a nil preheader (the caller skips that loop, a further
// SimplifyCFG round can still collapse the CFG into a single-edge shape).
func ensurePreheader(f *ir.Function, lp *analysis.Loop) (*ir.BasicBlock, bool) {
	externals := lp.ExternalPreds(f)
	if len(externals) != 1 {
		return nil, false
	}
	pre := externals[0]
	preBlk := f.BlockByLabel(pre)
	headerBlk := f.BlockByLabel(lp.Header)
	if len(preBlk.Successors(f)) == 1 {
		return preBlk, false
	}

	preheader := f.NewBlock()
	term := preBlk.Terminator(f)
	retargetLoop(term, lp.Header, preheader.Label)
	jump := f.NewInst(ir.OpJump)
	jump.Target = lp.Header
	preheader.Append(jump.ID())
	f.InsertBlockAfter(preBlk, preheader)
	for _, id := range headerBlk.Phis(f) {
		inst := f.Inst(id)
		for idx := range inst.Phi {
			if inst.Phi[idx].Pred == pre {
				inst.Phi[idx].Pred = preheader.Label
			}
		}
	}
	return preheader, true
}

// loopBlockOrder returns lp's blocks in dominator-tree preorder starting at
// the header. Every block in a natural loop is dominated by its header, so
// this walk visits a definition before any of its in-loop uses.
func loopBlockOrder(info *dom.Info, lp *analysis.Loop) []int {
	var order []int
	var walk func(n int)
	walk = func(n int) {
		if !lp.Blocks[n] {
			return
		}
		order = append(order, n)
		kids := append([]int(nil), info.Children(n)...)
		sort.Ints(kids)
		for _, c := range kids {
			walk(c)
		}
	}
	walk(lp.Header)
	return order
}

func retargetLoop(term *ir.Instruction, from, to int) {
	switch term.Op {
	case ir.OpJump:
		if term.Target == from {
			term.Target = to
		}
	case ir.OpBranch:
		if term.Then == from {
			term.Then = to
		}
		if term.Else == from {
			term.Else = to
		}
	}
}

func insertBeforeTerm(b *ir.BasicBlock, id ir.InstID) {
	if len(b.Insts) == 0 {
		b.Insts = []ir.InstID{id}
		return
	}
	last := b.Insts[len(b.Insts)-1]
	b.Insts[len(b.Insts)-1] = id
	b.Insts = append(b.Insts, last)
}
