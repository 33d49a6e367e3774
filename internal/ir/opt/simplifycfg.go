package opt

import "github.com/Engineev/mxc/internal/ir"

// SimplifyCFG folds branches with a literal condition into jumps, removes
// blocks unreachable from the entry (fixing up phi operands in surviving
// successors), and merges a block into its single predecessor when that
// predecessor has a single successor.
type SimplifyCFG struct{}

func (SimplifyCFG) Name() string { return "simplify-cfg" }

func (SimplifyCFG) RunOnFunction(f *ir.Function) bool {
	if f.External {
		return false
	}
	changed := false
	changed = foldConstantBranches(f) || changed
	changed = removeUnreachable(f) || changed
	changed = mergeBlocks(f) || changed
	return changed
}

func foldConstantBranches(f *ir.Function) bool {
	changed := false
	for _, b := range f.Blocks {
		term := b.Terminator(f)
		if term.Op != ir.OpBranch || !term.A.IsConst() {
			continue
		}
		keep, drop := term.Then, term.Else
		if term.A.Imm == 0 {
			keep, drop = term.Else, term.Then
		}
		jump := f.NewInst(ir.OpJump)
		jump.Target = keep
		f.Replace(b, b.Insts[len(b.Insts)-1], jump)
		if dropBlock := f.BlockByLabel(drop); dropBlock != nil && keep != drop {
			removePhiPred(f, dropBlock, b.Label)
		}
		changed = true
	}
	return changed
}

func removeUnreachable(f *ir.Function) bool {
	reach := ir.ReachableFromEntry(f)
	var dead []*ir.BasicBlock
	for _, b := range f.Blocks {
		if !reach[b.Label] {
			dead = append(dead, b)
		}
	}
	if len(dead) == 0 {
		return false
	}
	for _, d := range dead {
		for _, s := range d.Successors(f) {
			if sb := f.BlockByLabel(s); sb != nil && reach[s] {
				removePhiPred(f, sb, d.Label)
			}
		}
		f.RemoveBlock(d)
	}
	return true
}

func removePhiPred(f *ir.Function, b *ir.BasicBlock, pred int) {
	for _, id := range b.Phis(f) {
		inst := f.Inst(id)
		kept := inst.Phi[:0]
		for _, op := range inst.Phi {
			if op.Pred != pred {
				kept = append(kept, op)
			}
		}
		inst.Phi = kept
	}
}

// mergeBlocks merges a block b into its single predecessor p when p has
// exactly one successor (b) and b has exactly one predecessor (p). Phis in
// b become plain assigns (their single operand has no remaining
// alternative), and b's instructions are appended to p in place of p's
// terminator.
func mergeBlocks(f *ir.Function) bool {
	changed := false
	for {
		merged := false
		preds := ir.Preds(f)
		for _, p := range append([]*ir.BasicBlock(nil), f.Blocks...) {
			succs := p.Successors(f)
			if len(succs) != 1 {
				continue
			}
			bLabel := succs[0]
			if bLabel == p.Label {
				continue
			}
			if len(preds[bLabel]) != 1 {
				continue
			}
			b := f.BlockByLabel(bLabel)
			if b == nil {
				continue
			}
			for _, id := range b.Phis(f) {
				inst := f.Inst(id)
				ir.Assertf(len(inst.Phi) == 1, "merged block phi must have exactly one operand")
				assign := f.NewInst(ir.OpAssign)
				assign.HasDest = true
				assign.Dest = inst.Dest
				assign.A = inst.Phi[0].Value
				assign.HasA = true
				f.Replace(b, id, assign)
			}
			// Drop p's terminator (the jump to b) and splice b's
			// instructions onto p.
			p.Insts = p.Insts[:len(p.Insts)-1]
			p.Insts = append(p.Insts, b.Insts...)
			f.RemoveBlock(b)
			merged = true
			changed = true
			break
		}
		if !merged {
			break
		}
	}
	return changed
}
