// Package opt implements the scalar optimization passes: SCCP, GVN,
// SimplifyCFG, DCE, CopyProp, Reassociation, LICM, IndVar, Inline,
// GlobalConstInline and PromoteGlobals.
package opt

import "github.com/Engineev/mxc/internal/ir"

// DCE is dead-code elimination over SSA form: Store, Call and terminators
// are marked useful; usefulness propagates backward through operand
// def-use; everything else is swept.
type DCE struct{}

func (DCE) Name() string { return "dce" }

func (DCE) RunOnFunction(f *ir.Function) bool {
	if f.External {
		return false
	}
	useful := map[ir.InstID]bool{}
	var worklist []ir.InstID
	defOf := map[string]ir.InstID{}
	for _, b := range f.Blocks {
		for _, id := range b.Insts {
			inst := f.Inst(id)
			if inst.IsDeleted() {
				continue
			}
			if d, ok := inst.Defs(); ok && d.IsLocal() {
				defOf[d.Name] = id
			}
			if isEssential(inst) {
				if !useful[id] {
					useful[id] = true
					worklist = append(worklist, id)
				}
			}
		}
	}
	for len(worklist) > 0 {
		id := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		inst := f.Inst(id)
		for _, u := range inst.Uses(nil) {
			if !u.IsLocal() {
				continue
			}
			did, ok := defOf[u.Name]
			if !ok || useful[did] {
				continue
			}
			useful[did] = true
			worklist = append(worklist, did)
		}
	}

	changed := false
	for _, b := range f.Blocks {
		for _, id := range b.Insts {
			inst := f.Inst(id)
			if inst.IsDeleted() || useful[id] {
				continue
			}
			if inst.Op == ir.OpComment || inst.Op == ir.OpAttachedComment {
				continue
			}
			f.Tombstone(id)
			changed = true
		}
	}
	if changed {
		f.CompactDeleted()
	}
	return changed
}

// isEssential reports whether an instruction can never be removed
// regardless of whether its result is used: side-effecting instructions
// and terminators.
func isEssential(inst *ir.Instruction) bool {
	switch inst.Op {
	case ir.OpStore, ir.OpCall, ir.OpJump, ir.OpBranch, ir.OpRet, ir.OpStrCpy, ir.OpMalloc, ir.OpSAlloc:
		return true
	default:
		return false
	}
}
