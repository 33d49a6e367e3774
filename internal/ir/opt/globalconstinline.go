package opt

import "github.com/Engineev/mxc/internal/ir"

// GlobalConstInline replaces every load of a global variable with its
// literal value when the global is never stored to and its address never
// escapes into any other operand position across the whole module, only
// then is its initializer guaranteed to be the value observed at every
// load. The global declaration itself is dropped once no
// reference to it remains.
type GlobalConstInline struct{}

func (GlobalConstInline) Name() string { return "global-const-inline" }

func (GlobalConstInline) RunOnModule(m *ir.Module) bool {
	written := map[string]bool{}
	otherUse := map[string]bool{}
	for _, name := range m.FuncOrder() {
		fn := m.Functions[name]
		for _, b := range fn.Blocks {
			for _, id := range b.Insts {
				inst := fn.Inst(id)
				classifyGlobalUses(inst, written, otherUse)
			}
		}
	}

	values := map[string]int64{}
	for _, g := range m.Globals {
		if g.Name == ir.NullGlobal || written[g.Name] || otherUse[g.Name] || !g.HasInit {
			continue
		}
		if v, ok := decodeInt64(g.Init); ok {
			values[g.Name] = v
		}
	}
	if len(values) == 0 {
		return false
	}

	changed := false
	for _, name := range m.FuncOrder() {
		fn := m.Functions[name]
		for _, b := range fn.Blocks {
			for _, id := range append([]ir.InstID(nil), b.Insts...) {
				inst := fn.Inst(id)
				if inst.Op != ir.OpLoad || !inst.A.IsGlobal() {
					continue
				}
				v, ok := values[inst.A.Name]
				if !ok {
					continue
				}
				assign := fn.NewInst(ir.OpAssign)
				assign.HasDest = true
				assign.Dest = inst.Dest
				assign.A = ir.Imm(v)
				assign.HasA = true
				fn.Replace(b, id, assign)
				changed = true
			}
		}
	}
	if !changed {
		return false
	}
	kept := m.Globals[:0]
	for _, g := range m.Globals {
		if _, ok := values[g.Name]; ok {
			continue
		}
		kept = append(kept, g)
	}
	m.Globals = kept
	return true
}

// classifyGlobalUses records, for every global address appearing as an
// operand of inst, whether it is a plain Store-through-address (written)
// or appears anywhere else, including as the value half of a Store, a
// call argument, or a phi/arithmetic operand (otherUse, which disqualifies
// the global from constant inlining since its address itself is observed).
// A Load's address operand is exempt from both: reading through the
// address is exactly the access constant-inlining replaces.
func classifyGlobalUses(inst *ir.Instruction, written, otherUse map[string]bool) {
	for _, u := range inst.Uses(nil) {
		if !u.IsGlobal() {
			continue
		}
		if inst.Op == ir.OpLoad && inst.HasA && u.Name == inst.A.Name {
			continue
		}
		if inst.Op == ir.OpStore && inst.HasA && u.Name == inst.A.Name {
			written[u.Name] = true
			continue
		}
		otherUse[u.Name] = true
	}
}

func decodeInt64(b []byte) (int64, bool) {
	if len(b) != 8 {
		return 0, false
	}
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return int64(v), true
}
