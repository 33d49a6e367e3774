package regalloc

import "github.com/Engineev/mxc/internal/backend/asmir"

// opPositions reports whether an instruction's A and/or B operand slots are
// read and/or written, mirroring asmir.Instr.Defs/Uses but per-slot so a
// spill rewrite can tell a read-modify-write use (A in an Add) from a
// pure read (B) or pure write.
func opPositions(in *asmir.Instr) (useA, useB, defA bool) {
	switch in.Op {
	case asmir.Mov, asmir.Lea, asmir.Pop, asmir.SetFromCond:
		defA = true
	case asmir.Add, asmir.Sub, asmir.IMul, asmir.And, asmir.Or, asmir.Xor, asmir.Shl, asmir.Shr:
		useA, useB, defA = true, true, true
	case asmir.Neg, asmir.Not, asmir.Inc, asmir.Dec:
		useA, defA = true, true
	case asmir.IDiv:
		useA = true
	case asmir.Push, asmir.Cmp, asmir.Test:
		useA, useB = true, true
	}
	return
}

// rewriteSpills gives each spilled virtual register its own stack slot and
// replaces every occurrence with a load-before-use and/or store-after-def
// through a freshly minted virtual register. The caller re-runs allocation afterward; NumVRegs strictly grows
// and live ranges strictly shrink, so this terminates.
func rewriteSpills(fn *asmir.Function, spilled []int) {
	slots := map[int]int{}
	for _, v := range spilled {
		slots[v] = fn.SpillSlots
		fn.SpillSlots++
	}
	target := map[int]bool{}
	for _, v := range spilled {
		target[v] = true
	}

	for _, b := range fn.Blocks {
		var out []*asmir.Instr
		for _, in := range b.Insts {
			useA, useB, defA := opPositions(in)
			var pre, post []*asmir.Instr

			if in.HasA && in.A.Kind == asmir.OpVReg && target[in.A.VReg] {
				slot := slots[in.A.VReg]
				fresh := fn.NewVReg()
				if useA {
					pre = append(pre, loadSlot(fresh, slot))
				}
				in.A = fresh
				if defA {
					post = append(post, storeSlot(slot, fresh))
				}
			}
			if in.HasB && in.B.Kind == asmir.OpVReg && target[in.B.VReg] {
				slot := slots[in.B.VReg]
				fresh := fn.NewVReg()
				if useB {
					pre = append(pre, loadSlot(fresh, slot))
				}
				in.B = fresh
			}

			out = append(out, pre...)
			out = append(out, in)
			out = append(out, post...)
		}
		b.Insts = out
	}
}

func loadSlot(dst asmir.Operand, slot int) *asmir.Instr {
	return &asmir.Instr{Op: asmir.Mov, A: dst, HasA: true, B: asmir.Slot(slot), HasB: true}
}

func storeSlot(slot int, src asmir.Operand) *asmir.Instr {
	return &asmir.Instr{Op: asmir.Mov, A: asmir.Slot(slot), HasA: true, B: src, HasB: true}
}
