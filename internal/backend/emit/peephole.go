package emit

import "github.com/Engineev/mxc/internal/backend/asmir"

// Peephole rewrites the colored assembly IR of one function in place:
// `add r, 1` / `sub r, 1` collapse to `inc r` / `dec r`, and a mov whose
// destination is overwritten before any intervening use is dropped, since
// after register allocation such a mov is dead weight the allocator itself
// has no reason to avoid producing.
func Peephole(fn *asmir.Function) {
	for _, b := range fn.Blocks {
		incDec(b)
		deadMov(b)
	}
}

func incDec(b *asmir.Block) {
	for _, in := range b.Insts {
		if (in.Op == asmir.Add || in.Op == asmir.Sub) && in.HasB && in.B.Kind == asmir.OpImm && in.B.Imm == 1 {
			if in.Op == asmir.Add {
				in.Op = asmir.Inc
			} else {
				in.Op = asmir.Dec
			}
			in.HasB, in.B = false, asmir.Operand{}
		}
	}
}

// deadMov drops a `mov dst, _` whose dst is a register overwritten by a
// later instruction in the same block before any instruction between them
// reads it.
func deadMov(b *asmir.Block) {
	var kept []*asmir.Instr
	for i, in := range b.Insts {
		if in.Op == asmir.Mov && in.HasA && in.A.IsReg() && movIsDead(b.Insts[i+1:], in.A) {
			continue
		}
		kept = append(kept, in)
	}
	b.Insts = kept
}

func movIsDead(rest []*asmir.Instr, dst asmir.Operand) bool {
	for _, in := range rest {
		for _, u := range in.AllUses() {
			if u == dst {
				return false
			}
		}
		for _, d := range in.AllDefs() {
			if d == dst {
				return true
			}
		}
		if in.Op == asmir.Jmp || in.Op == asmir.Jcc || in.Op == asmir.Call || in.Op == asmir.Ret {
			return false
		}
	}
	return false
}
