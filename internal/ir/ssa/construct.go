// Package ssa builds SSA form from memory-form IR (phi insertion plus
// renaming) and destructs it back to non-SSA IR ahead of
// back-end lowering (parallel-copy scheduling on a critical-edge-split
// CFG).
package ssa

import (
	"sort"

	"github.com/Engineev/mxc/internal/ir"
	"github.com/Engineev/mxc/internal/ir/dom"
)

// PhiNaN is the sentinel value standing in for "undefined on this path".
const PhiNaN = ".phi_nan"

// Construct converts f from memory-form (explicit Alloca/Load/Store) to
// SSA form in place. It returns the dominance info computed along the way,
// since most downstream passes need it again immediately.
func Construct(f *ir.Function) *dom.Info {
	if f.External || len(f.Blocks) == 0 {
		return dom.Build(f)
	}
	vars := promotableVars(f)
	if len(vars) == 0 {
		return dom.Build(f)
	}
	info := dom.Build(f)

	defBlocks := map[string]map[int]bool{}
	for v := range vars {
		defBlocks[v] = map[int]bool{}
	}
	for _, b := range f.Blocks {
		for _, id := range b.Insts {
			inst := f.Inst(id)
			if inst.Op == ir.OpStore && inst.A.IsLocal() && vars[inst.A.Name] {
				defBlocks[inst.A.Name][b.Label] = true
			}
		}
	}

	// phiAt[label][var] = the phi instruction id inserted at that block for
	// that variable.
	phiAt := map[int]map[string]ir.InstID{}
	for v, defs := range defBlocks {
		worklist := make([]int, 0, len(defs))
		onWork := map[int]bool{}
		for b := range defs {
			worklist = append(worklist, b)
			onWork[b] = true
		}
		hasPhi := map[int]bool{}
		for len(worklist) > 0 {
			n := worklist[len(worklist)-1]
			worklist = worklist[:len(worklist)-1]
			onWork[n] = false
			for _, df := range info.Frontier(n) {
				if hasPhi[df] {
					continue
				}
				hasPhi[df] = true
				b := f.BlockByLabel(df)
				phi := f.NewInst(ir.OpPhi)
				phi.HasDest = true
				phi.Dest = f.NewLocal()
				// Insert as a prefix: before the first non-phi instruction.
				insertPhiPrefix(f, b, phi.ID())
				if phiAt[df] == nil {
					phiAt[df] = map[string]ir.InstID{}
				}
				phiAt[df][v] = phi.ID()
				if !onWork[df] {
					onWork[df] = true
					worklist = append(worklist, df)
				}
			}
		}
	}

	rename(f, info, vars, phiAt)
	f.CompactDeleted()
	return dom.Build(f)
}

func insertPhiPrefix(f *ir.Function, b *ir.BasicBlock, id ir.InstID) {
	i := 0
	for i < len(b.Insts) && f.Inst(b.Insts[i]).Op == ir.OpPhi {
		i++
	}
	b.Insts = append(b.Insts, 0)
	copy(b.Insts[i+1:], b.Insts[i:])
	b.Insts[i] = id
}

// promotableVars returns the set of local-register names that are the
// destination of an entry-block Alloca, i.e. candidate source variables
// for phi placement.
func promotableVars(f *ir.Function) map[string]bool {
	vars := map[string]bool{}
	entry := f.Entry()
	if entry == nil {
		return vars
	}
	for _, id := range entry.Insts {
		inst := f.Inst(id)
		if inst.Op == ir.OpAlloca && inst.HasDest {
			vars[inst.Dest.Name] = true
		}
	}
	return vars
}

type renamer struct {
	f      *ir.Function
	info   *dom.Info
	vars   map[string]bool
	phiAt  map[int]map[string]ir.InstID
}

func rename(f *ir.Function, info *dom.Info, vars map[string]bool, phiAt map[int]map[string]ir.InstID) {
	r := &renamer{f: f, info: info, vars: vars, phiAt: phiAt}
	initial := map[string]ir.Addr{}
	r.walk(info.Entry(), initial)
}

func (r *renamer) walk(label int, reaching map[string]ir.Addr) {
	b := r.f.BlockByLabel(label)
	cur := make(map[string]ir.Addr, len(reaching))
	for k, v := range reaching {
		cur[k] = v
	}
	for v, id := range r.phiAt[label] {
		cur[v] = r.f.Inst(id).Dest
	}
	for _, id := range b.Insts {
		inst := r.f.Inst(id)
		switch inst.Op {
		case ir.OpPhi:
			// destination already recorded above.
		case ir.OpStore:
			if inst.A.IsLocal() && r.vars[inst.A.Name] {
				fresh := r.f.NewLocal()
				assign := r.f.NewInst(ir.OpAssign)
				assign.HasDest = true
				assign.Dest = fresh
				assign.A = inst.B
				assign.HasA = true
				r.f.Replace(b, id, assign)
				r.f.Tombstone(id)
				cur[inst.A.Name] = fresh
			}
		case ir.OpLoad:
			if inst.A.IsLocal() && r.vars[inst.A.Name] {
				val, ok := cur[inst.A.Name]
				if !ok {
					val = ir.Local(PhiNaN)
				}
				assign := r.f.NewInst(ir.OpAssign)
				assign.HasDest = true
				assign.Dest = inst.Dest
				assign.A = val
				assign.HasA = true
				r.f.Replace(b, id, assign)
				r.f.Tombstone(id)
			}
		}
	}
	for _, succ := range b.Successors(r.f) {
		for v, id := range r.phiAt[succ] {
			val, ok := cur[v]
			if !ok {
				val = ir.Local(PhiNaN)
			}
			phi := r.f.Inst(id)
			phi.Phi = append(phi.Phi, ir.PhiOperand{Value: val, Pred: label})
		}
	}
	for _, c := range r.info.Children(label) {
		r.walk(c, cur)
	}
}

// sortedLabels is a small helper kept for deterministic iteration where
// needed by callers outside this package.
func sortedLabels(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
