package ssa

import "github.com/Engineev/mxc/internal/ir"

// copy is one scheduled "d := s" parallel-copy entry derived from a single
// phi operand.
type copy struct {
	Dest ir.Addr
	Src  ir.Addr
}

// Destruct removes SSA form from f: critical edges are split, then every
// phi is replaced by parallel copies scheduled at the end of each
// predecessor, sequentialized by the standard algorithm.
func Destruct(f *ir.Function) {
	if f.External {
		return
	}
	splitCriticalEdges(f)

	// Gather, per predecessor block, the set of copies implied by every
	// phi in every successor it feeds.
	copiesByPred := map[int][]copy{}
	for _, b := range f.Blocks {
		for _, id := range b.Phis(f) {
			inst := f.Inst(id)
			for _, op := range inst.Phi {
				copiesByPred[op.Pred] = append(copiesByPred[op.Pred], copy{Dest: inst.Dest, Src: op.Value})
			}
			f.Tombstone(id)
		}
	}
	for _, b := range f.Blocks {
		cs := copiesByPred[b.Label]
		if len(cs) == 0 {
			continue
		}
		assigns := sequentialize(cs, func() ir.Addr { return f.NewLocal() })
		insertBeforeTerminator(f, b, assigns)
	}
	f.CompactDeleted()
}

// splitCriticalEdges inserts an empty block on every edge from a
// multi-successor block to a multi-predecessor block.
func splitCriticalEdges(f *ir.Function) {
	preds := ir.Preds(f)
	// Snapshot blocks up front: we are about to append new ones.
	orig := append([]*ir.BasicBlock(nil), f.Blocks...)
	for _, b := range orig {
		succs := b.Successors(f)
		if len(succs) < 2 {
			continue
		}
		term := b.Terminator(f)
		for _, s := range succs {
			if len(preds[s]) < 2 {
				continue
			}
			mid := f.NewBlock()
			jump := f.NewInst(ir.OpJump)
			jump.Target = s
			mid.Append(jump.ID())
			retarget(term, s, mid.Label)
			retargetPhiPred(f, f.BlockByLabel(s), b.Label, mid.Label)
		}
	}
}

func retarget(term *ir.Instruction, from, to int) {
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

func retargetPhiPred(f *ir.Function, b *ir.BasicBlock, from, to int) {
	for _, id := range b.Phis(f) {
		inst := f.Inst(id)
		for idx := range inst.Phi {
			if inst.Phi[idx].Pred == from {
				inst.Phi[idx].Pred = to
			}
		}
	}
}

func insertBeforeTerminator(f *ir.Function, b *ir.BasicBlock, assigns []copy) {
	var ids []ir.InstID
	for _, a := range assigns {
		inst := f.NewInst(ir.OpAssign)
		inst.HasDest = true
		inst.Dest = a.Dest
		inst.A = a.Src
		inst.HasA = true
		ids = append(ids, inst.ID())
	}
	if len(b.Insts) == 0 {
		b.Insts = ids
		return
	}
	last := b.Insts[len(b.Insts)-1]
	b.Insts = append(b.Insts[:len(b.Insts)-1], append(ids, last)...)
}

// sequentialize orders a parallel-copy set into a sequence of ordinary
// assignments, introducing a temporary whenever a copy's destination is
// another pending copy's source, and breaking any remaining swap cycle
// with one temporary per cycle.
func sequentialize(copies []copy, freshTemp func() ir.Addr) []copy {
	pending := append([]copy(nil), copies...)
	loc := map[string]ir.Addr{}
	for _, c := range copies {
		if c.Src.IsLocal() {
			if _, ok := loc[c.Src.Name]; !ok {
				loc[c.Src.Name] = ir.Local(c.Src.Name)
			}
		}
	}

	var out []copy
	for len(pending) > 0 {
		progressed := false
		for idx, c := range pending {
			if srcBlockedByPending(pending, idx, c.Dest.Name) {
				continue
			}
			src := c.Src
			if src.IsLocal() {
				if v, ok := loc[src.Name]; ok {
					src = v
				}
			}
			out = append(out, copy{Dest: c.Dest, Src: src})
			loc[c.Dest.Name] = c.Dest
			pending = append(pending[:idx], pending[idx+1:]...)
			progressed = true
			break
		}
		if progressed {
			continue
		}
		// Every remaining copy is part of a cycle: save the first one's
		// current destination value into a temporary so the chain that
		// depends on it can proceed; the temp becomes the new source of
		// truth for that original register.
		c0 := pending[0]
		temp := freshTemp()
		out = append(out, copy{Dest: temp, Src: ir.Local(c0.Dest.Name)})
		loc[c0.Dest.Name] = temp
	}
	return out
}

func srcBlockedByPending(pending []copy, self int, destName string) bool {
	for j, o := range pending {
		if j == self {
			continue
		}
		if o.Src.IsLocal() && o.Src.Name == destName {
			return true
		}
	}
	return false
}
