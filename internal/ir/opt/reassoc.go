package opt

import (
	"sort"

	"github.com/Engineev/mxc/internal/ir"
	"github.com/Engineev/mxc/internal/ir/analysis"
)

// Reassociation flattens connected Add/Sub/Neg trees within a block into a
// signed-operand list, cancels matching positive/negative literals and
// registers, ranks the remainder, and rebuilds a balanced Add/Sub/Neg tree.
type Reassociation struct{}

func (Reassociation) Name() string { return "reassociation" }

type signedLeaf struct {
	Addr ir.Addr
	Neg  bool
}

func (Reassociation) RunOnFunction(f *ir.Function) bool {
	if f.External {
		return false
	}
	changed := false
	du := analysis.Build(f)
	for _, b := range f.Blocks {
		// internal[name] = true if this local is an Add/Sub/Neg defined in
		// this block and used exactly once, making it foldable into a
		// parent tree rather than a root of its own.
		internal := map[string]bool{}
		for _, id := range b.Insts {
			inst := f.Inst(id)
			if !isAddSubNeg(inst) || !inst.HasDest {
				continue
			}
			if len(du.Uses[inst.Dest.Name]) == 1 {
				internal[inst.Dest.Name] = true
			}
		}
		for _, id := range b.Insts {
			inst := f.Inst(id)
			if !isAddSubNeg(inst) || !inst.HasDest {
				continue
			}
			if internal[inst.Dest.Name] {
				continue // not a root; folded in when its consumer is visited
			}
			leaves := flatten(f, inst, internal)
			if len(leaves) < 3 {
				continue
			}
			leaves = cancel(leaves)
			rebuild(f, b, id, leaves)
			changed = true
		}
	}
	if changed {
		f.CompactDeleted()
	}
	return changed
}

func isAddSubNeg(inst *ir.Instruction) bool {
	if inst.Op == ir.OpArithBinary && (inst.Arith == ir.KAdd || inst.Arith == ir.KSub) {
		return true
	}
	if inst.Op == ir.OpArithUnary && inst.Arith == ir.KNeg {
		return true
	}
	return false
}

// flatten walks down through internal (single-use) Add/Sub/Neg operands,
// collecting signed leaves.
func flatten(f *ir.Function, inst *ir.Instruction, internal map[string]bool) []signedLeaf {
	var leaves []signedLeaf
	var walk func(a ir.Addr, neg bool)
	defOf := map[string]*ir.Instruction{}
	for _, b := range f.Blocks {
		for _, id := range b.Insts {
			in := f.Inst(id)
			if !in.IsDeleted() && in.HasDest && in.Dest.IsLocal() {
				defOf[in.Dest.Name] = in
			}
		}
	}
	walk = func(a ir.Addr, neg bool) {
		if a.IsLocal() && internal[a.Name] {
			sub := defOf[a.Name]
			switch {
			case sub.Op == ir.OpArithBinary && sub.Arith == ir.KAdd:
				walk(sub.A, neg)
				walk(sub.B, neg)
				return
			case sub.Op == ir.OpArithBinary && sub.Arith == ir.KSub:
				walk(sub.A, neg)
				walk(sub.B, !neg)
				return
			case sub.Op == ir.OpArithUnary && sub.Arith == ir.KNeg:
				walk(sub.A, !neg)
				return
			}
		}
		leaves = append(leaves, signedLeaf{Addr: a, Neg: neg})
	}
	switch {
	case inst.Op == ir.OpArithBinary && inst.Arith == ir.KAdd:
		walk(inst.A, false)
		walk(inst.B, false)
	case inst.Op == ir.OpArithBinary && inst.Arith == ir.KSub:
		walk(inst.A, false)
		walk(inst.B, true)
	case inst.Op == ir.OpArithUnary && inst.Arith == ir.KNeg:
		walk(inst.A, true)
	}
	return leaves
}

// cancel combines all literal leaves into a single constant and cancels
// register leaves that appear with both signs.
func cancel(leaves []signedLeaf) []signedLeaf {
	var sum int64
	counts := map[string]int{} // name -> net sign count
	order := map[string]ir.Addr{}
	for _, l := range leaves {
		if l.Addr.IsConst() {
			if l.Neg {
				sum -= l.Addr.Imm
			} else {
				sum += l.Addr.Imm
			}
			continue
		}
		key := l.Addr.String()
		order[key] = l.Addr
		if l.Neg {
			counts[key]--
		} else {
			counts[key]++
		}
	}
	out := make([]signedLeaf, 0, len(counts)+1)
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		n := counts[k]
		for n > 0 {
			out = append(out, signedLeaf{Addr: order[k], Neg: false})
			n--
		}
		for n < 0 {
			out = append(out, signedLeaf{Addr: order[k], Neg: true})
			n++
		}
	}
	if sum != 0 || len(out) == 0 {
		out = append(out, signedLeaf{Addr: ir.Imm(sum)})
	}
	return out
}

// rebuild emits a left-leaning balanced sequence of Add/Sub/Neg
// instructions computing the signed sum of leaves, and replaces the root
// instruction's slot with an Assign to the final result.
func rebuild(f *ir.Function, b *ir.BasicBlock, rootID ir.InstID, leaves []signedLeaf) {
	if len(leaves) == 0 {
		return
	}
	cur := leaves[0].Addr
	if leaves[0].Neg {
		neg := f.NewInst(ir.OpArithUnary)
		neg.HasDest = true
		neg.Dest = f.NewLocal()
		neg.Arith = ir.KNeg
		neg.A = cur
		neg.HasA = true
		insertBefore(b, rootID, neg.ID())
		cur = neg.Dest
	}
	for _, l := range leaves[1:] {
		bin := f.NewInst(ir.OpArithBinary)
		bin.HasDest = true
		bin.Dest = f.NewLocal()
		if l.Neg {
			bin.Arith = ir.KSub
		} else {
			bin.Arith = ir.KAdd
		}
		bin.A, bin.HasA = cur, true
		bin.B, bin.HasB = l.Addr, true
		insertBefore(b, rootID, bin.ID())
		cur = bin.Dest
	}
	root := f.Inst(rootID)
	assign := f.NewInst(ir.OpAssign)
	assign.HasDest = true
	assign.Dest = root.Dest
	assign.A, assign.HasA = cur, true
	f.Replace(b, rootID, assign)
}

func insertBefore(b *ir.BasicBlock, before, id ir.InstID) {
	for idx, bid := range b.Insts {
		if bid == before {
			b.Insts = append(b.Insts, 0)
			copy(b.Insts[idx+1:], b.Insts[idx:])
			b.Insts[idx] = id
			return
		}
	}
}
