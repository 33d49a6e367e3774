package opt

import (
	"fmt"

	"github.com/Engineev/mxc/internal/ir"
	"github.com/Engineev/mxc/internal/ir/dom"
)

// GVN is dominator-tree-scoped hash-based global value numbering
// (Briggs/Cooper/Simpson): each instruction is hashed into a canonical key
// using commutative operand reordering, and when a key has already been
// seen on a dominating path the instruction is replaced by an Assign to
// the earlier result. Phis are replaced when all inputs agree or an
// earlier phi with the same ordered inputs exists in the same block.
type GVN struct{}

func (GVN) Name() string { return "gvn" }

func (GVN) RunOnFunction(f *ir.Function) bool {
	if f.External || f.Entry() == nil {
		return false
	}
	info := dom.Build(f)
	changed := false
	var walk func(label int, known map[string]ir.Addr, table map[string]ir.Addr)
	walk = func(label int, known map[string]ir.Addr, table map[string]ir.Addr) {
		k := cloneAddrMap(known)
		t := cloneAddrMap(table)
		b := f.BlockByLabel(label)

		for _, id := range b.Phis(f) {
			inst := f.Inst(id)
			if sameEverywhere, v := phiConstant(inst, k); sameEverywhere {
				k[inst.Dest.Name] = v
				changed = true
				continue
			}
			key := phiKey(inst, k)
			if earlier, ok := t[key]; ok {
				k[inst.Dest.Name] = earlier
				changed = true
				continue
			}
			t[key] = inst.Dest
		}

		for _, id := range b.Insts {
			inst := f.Inst(id)
			if inst.Op == ir.OpPhi || inst.IsDeleted() {
				continue
			}
			inst.ReplaceUses(
				func(a ir.Addr) bool { _, ok := k[a.Name]; return a.IsLocal() && ok },
				func(a ir.Addr) ir.Addr { return k[a.Name] },
			)
			if !inst.HasDest {
				continue
			}
			key, ok := instKey(inst)
			if !ok {
				continue
			}
			if earlier, found := t[key]; found {
				assign := f.NewInst(ir.OpAssign)
				assign.HasDest = true
				assign.Dest = inst.Dest
				assign.A = earlier
				assign.HasA = true
				f.Replace(b, id, assign)
				k[inst.Dest.Name] = earlier
				changed = true
				continue
			}
			t[key] = inst.Dest
		}

		for _, c := range info.Children(label) {
			walk(c, k, t)
		}
	}
	walk(info.Entry(), map[string]ir.Addr{}, map[string]ir.Addr{})
	return changed
}

func cloneAddrMap(m map[string]ir.Addr) map[string]ir.Addr {
	out := make(map[string]ir.Addr, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// instKey builds a canonical structural key for value numbering. Commutative
// binary operators are ordered by operand string so that a+b and b+a hash
// identically.
func instKey(inst *ir.Instruction) (string, bool) {
	switch inst.Op {
	case ir.OpArithUnary:
		return fmt.Sprintf("u:%s:%s", inst.Arith, inst.A), true
	case ir.OpArithBinary, ir.OpRelation:
		a, b := inst.A.String(), inst.B.String()
		if inst.Arith.IsCommutative() && a > b {
			a, b = b, a
		}
		return fmt.Sprintf("b:%s:%s:%s", inst.Arith, a, b), true
	case ir.OpLoad:
		return fmt.Sprintf("l:%s", inst.A), true
	default:
		return "", false
	}
}

func phiKey(inst *ir.Instruction, known map[string]ir.Addr) string {
	s := "p:"
	for _, op := range inst.Phi {
		v := op.Value
		if v.IsLocal() {
			if r, ok := known[v.Name]; ok {
				v = r
			}
		}
		s += fmt.Sprintf("[%d:%s]", op.Pred, v)
	}
	return s
}

// phiConstant reports whether every operand of a phi resolves to the same
// value, in which case the phi itself is redundant.
func phiConstant(inst *ir.Instruction, known map[string]ir.Addr) (bool, ir.Addr) {
	if len(inst.Phi) == 0 {
		return false, ir.Addr{}
	}
	resolve := func(a ir.Addr) ir.Addr {
		if a.IsLocal() {
			if r, ok := known[a.Name]; ok {
				return r
			}
		}
		return a
	}
	first := resolve(inst.Phi[0].Value)
	for _, op := range inst.Phi[1:] {
		if !resolve(op.Value).Equal(first) {
			return false, ir.Addr{}
		}
	}
	return true, first
}
