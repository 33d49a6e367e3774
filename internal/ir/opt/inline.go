package opt

import (
	"github.com/Engineev/mxc/internal/ir"
	"github.com/Engineev/mxc/internal/ir/analysis"
)

// inlineMaxCalleeInsts bounds the callee size eligible for inlining, a
// simple code-growth guard rather than a cost-model heuristic.
const inlineMaxCalleeInsts = 24

// Inline is whole-module function inlining: a call site whose
// callee has a body, is not (transitively) self-recursive and is under the
// size bound is replaced by a clone of the callee's blocks spliced into the
// caller, its formal parameters substituted by the call's actual
// arguments and its return sites merged into a phi feeding the call's
// former destination.
type Inline struct{}

func (Inline) Name() string { return "inline" }

func (Inline) RunOnModule(m *ir.Module) bool {
	changed := false
	for _, name := range m.FuncOrder() {
		fn := m.Functions[name]
		if fn.External {
			continue
		}
		for {
			cg := analysis.BuildCallGraph(m)
			id, b, ok := findInlinableCall(m, cg, fn)
			if !ok {
				break
			}
			inlineCall(fn, b, id, m.Functions[fn.Inst(id).Callee])
			changed = true
		}
	}
	return changed
}

func findInlinableCall(m *ir.Module, cg *analysis.CallGraph, fn *ir.Function) (ir.InstID, *ir.BasicBlock, bool) {
	for _, b := range fn.Blocks {
		for _, id := range b.Insts {
			inst := fn.Inst(id)
			if inst.Op != ir.OpCall {
				continue
			}
			callee, ok := m.Functions[inst.Callee]
			if !ok || callee.External || callee == fn {
				continue
			}
			if isSelfRecursive(cg, inst.Callee) {
				continue
			}
			if calleeSize(callee) > inlineMaxCalleeInsts {
				continue
			}
			return id, b, true
		}
	}
	return 0, nil, false
}

func calleeSize(fn *ir.Function) int {
	n := 0
	for _, b := range fn.Blocks {
		n += len(b.Insts)
	}
	return n
}

// isSelfRecursive reports whether name can reach itself in the call graph,
// directly or transitively. Such functions are never inlined: naive
// one-level cloning of a recursive callee would leave behind a call to the
// same (or a mutually recursive) function and re-offer it as an inlining
// candidate on the very next scan, growing the function without bound.
func isSelfRecursive(cg *analysis.CallGraph, name string) bool {
	seen := map[string]bool{}
	var walk func(n string) bool
	walk = func(n string) bool {
		if seen[n] {
			return false
		}
		seen[n] = true
		for c := range cg.Callees[n] {
			if c == name || walk(c) {
				return true
			}
		}
		return false
	}
	return walk(name)
}

// inlineCall splices a clone of callee's body into fn in place of the call
// at callID in block b: the block is split at the call, callee's blocks are
// cloned with fresh labels and locals (parameters substituted by the call's
// actual arguments), each Ret becomes a Jump to the continuation block, and
// non-void returns are merged by a phi reusing the call's original
// destination name so every later use in fn needs no rewriting.
func inlineCall(fn *ir.Function, b *ir.BasicBlock, callID ir.InstID, callee *ir.Function) {
	call := fn.Inst(callID)
	callIdx := -1
	for i, id := range b.Insts {
		if id == callID {
			callIdx = i
			break
		}
	}
	if callIdx < 0 {
		return
	}

	labelMap := map[int]int{}
	for _, cb := range callee.Blocks {
		labelMap[cb.Label] = fn.NewLabel()
	}
	localMap := map[string]ir.Addr{}
	for i, p := range callee.Params {
		if i < len(call.Args) {
			localMap[p] = call.Args[i]
		} else {
			localMap[p] = ir.Imm(0)
		}
	}
	for _, cb := range callee.Blocks {
		for _, id := range cb.Insts {
			inst := callee.Inst(id)
			if inst.HasDest && inst.Dest.IsLocal() {
				localMap[inst.Dest.Name] = fn.NewLocal()
			}
		}
	}
	mapAddr := func(a ir.Addr) ir.Addr {
		switch a.Kind {
		case ir.AddrLocal:
			if v, ok := localMap[a.Name]; ok {
				return v
			}
			return a
		case ir.AddrLabel:
			if v, ok := labelMap[a.Label]; ok {
				return ir.Label(v)
			}
			return a
		default:
			return a
		}
	}

	contLabel := fn.NewLabel()
	var retVals []ir.PhiOperand
	for _, cb := range callee.Blocks {
		newBlk := &ir.BasicBlock{Label: labelMap[cb.Label]}
		for _, id := range cb.Insts {
			inst := callee.Inst(id)
			if inst.Op == ir.OpRet {
				if !inst.RetVoid {
					retVals = append(retVals, ir.PhiOperand{Value: mapAddr(inst.A), Pred: newBlk.Label})
				}
				jump := fn.NewInst(ir.OpJump)
				jump.Target = contLabel
				newBlk.Insts = append(newBlk.Insts, jump.ID())
				continue
			}
			ni := cloneInlinedInst(fn, inst, mapAddr, labelMap)
			newBlk.Insts = append(newBlk.Insts, ni.ID())
		}
		fn.Blocks = append(fn.Blocks, newBlk)
	}

	cont := &ir.BasicBlock{Label: contLabel}
	if call.HasDest && len(retVals) > 0 {
		phi := fn.NewInst(ir.OpPhi)
		phi.HasDest = true
		phi.Dest = call.Dest
		phi.Phi = retVals
		cont.Insts = append(cont.Insts, phi.ID())
	}
	cont.Insts = append(cont.Insts, b.Insts[callIdx+1:]...)
	fn.Blocks = append(fn.Blocks, cont)

	entryLabel := labelMap[callee.Entry().Label]
	jumpIn := fn.NewInst(ir.OpJump)
	jumpIn.Target = entryLabel
	b.Insts = append(append([]ir.InstID(nil), b.Insts[:callIdx]...), jumpIn.ID())
}

func cloneInlinedInst(fn *ir.Function, inst *ir.Instruction, mapAddr func(ir.Addr) ir.Addr, labelMap map[int]int) *ir.Instruction {
	ni := fn.NewInst(inst.Op)
	ni.HasDest = inst.HasDest
	if inst.HasDest {
		ni.Dest = mapAddr(inst.Dest)
	}
	ni.HasA, ni.HasB = inst.HasA, inst.HasB
	if inst.HasA {
		ni.A = mapAddr(inst.A)
	}
	if inst.HasB {
		ni.B = mapAddr(inst.B)
	}
	ni.Arith = inst.Arith
	ni.Size = inst.Size
	ni.HasSize = inst.HasSize
	ni.HasSizeX = inst.HasSizeX
	if inst.HasSizeX {
		ni.SizeExpr = mapAddr(inst.SizeExpr)
	}
	ni.Bytes = inst.Bytes
	ni.RetVoid = inst.RetVoid
	ni.Callee = inst.Callee
	switch inst.Op {
	case ir.OpJump:
		ni.Target = labelMap[inst.Target]
	case ir.OpBranch:
		ni.Then = labelMap[inst.Then]
		ni.Else = labelMap[inst.Else]
	}
	if len(inst.Args) > 0 {
		ni.Args = make([]ir.Addr, len(inst.Args))
		for i, a := range inst.Args {
			ni.Args[i] = mapAddr(a)
		}
	}
	if len(inst.Phi) > 0 {
		ni.Phi = make([]ir.PhiOperand, len(inst.Phi))
		for i, p := range inst.Phi {
			ni.Phi[i] = ir.PhiOperand{Value: mapAddr(p.Value), Pred: labelMap[p.Pred]}
		}
	}
	ni.Text = inst.Text
	return ni
}
