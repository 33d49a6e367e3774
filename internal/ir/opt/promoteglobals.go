package opt

import (
	"github.com/Engineev/mxc/internal/ir"
	"github.com/Engineev/mxc/internal/ir/ssa"
)

// PromoteGlobals rewrites a scalar global variable touched by exactly one
// function, and never through anything but a Load/Store address, into an
// ordinary function-local slot and re-runs SSA construction over that
// function: the new Alloca is indistinguishable from one the front end
// would have emitted for a local variable, so the existing phi-insertion
// machinery promotes it to registers and a later DCE pass removes the
// now-dead Alloca.
type PromoteGlobals struct{}

func (PromoteGlobals) Name() string { return "promote-globals" }

func (PromoteGlobals) RunOnModule(m *ir.Module) bool {
	usedBy := map[string]map[string]bool{}
	otherUse := map[string]bool{}
	for _, name := range m.FuncOrder() {
		fn := m.Functions[name]
		for _, b := range fn.Blocks {
			for _, id := range b.Insts {
				inst := fn.Inst(id)
				classifyPromotionUses(fn, name, inst, usedBy, otherUse)
			}
		}
	}

	changed := false
	for _, g := range append([]*ir.GlobalVar(nil), m.Globals...) {
		if g.Name == ir.NullGlobal || otherUse[g.Name] || g.Size != 8 {
			continue
		}
		fns := usedBy[g.Name]
		if len(fns) != 1 {
			continue
		}
		var fnName string
		for k := range fns {
			fnName = k
		}
		fn := m.Functions[fnName]
		if fn.External || fn.Entry() == nil {
			continue
		}
		promoteGlobalInFunction(fn, g)
		m.Globals = removeGlobalNamed(m.Globals, g.Name)
		changed = true
	}
	return changed
}

func classifyPromotionUses(fn *ir.Function, fnName string, inst *ir.Instruction, usedBy map[string]map[string]bool, otherUse map[string]bool) {
	for _, u := range inst.Uses(nil) {
		if !u.IsGlobal() {
			continue
		}
		if usedBy[u.Name] == nil {
			usedBy[u.Name] = map[string]bool{}
		}
		usedBy[u.Name][fnName] = true
		isAddrUse := (inst.Op == ir.OpLoad && inst.HasA && u.Name == inst.A.Name) ||
			(inst.Op == ir.OpStore && inst.HasA && u.Name == inst.A.Name)
		if !isAddrUse {
			otherUse[u.Name] = true
		}
	}
}

func removeGlobalNamed(globals []*ir.GlobalVar, name string) []*ir.GlobalVar {
	kept := globals[:0]
	for _, g := range globals {
		if g.Name != name {
			kept = append(kept, g)
		}
	}
	return kept
}

// promoteGlobalInFunction replaces every reference to g's address in fn
// with a fresh local, seeds it with g's initializer at function entry via
// an ordinary Alloca+Store pair, and re-promotes fn to SSA.
func promoteGlobalInFunction(fn *ir.Function, g *ir.GlobalVar) {
	local := fn.NewLocal()
	alloca := fn.NewInst(ir.OpAlloca)
	alloca.HasDest = true
	alloca.Dest = local
	alloca.Size = 8
	alloca.HasSize = true

	initVal := int64(0)
	if g.HasInit {
		if v, ok := decodeInt64(g.Init); ok {
			initVal = v
		}
	}
	store := fn.NewInst(ir.OpStore)
	store.HasA, store.A = true, local
	store.HasB, store.B = true, ir.Imm(initVal)

	entry := fn.Entry()
	entry.Insts = append(entry.Insts, 0, 0)
	copy(entry.Insts[2:], entry.Insts[:len(entry.Insts)-2])
	entry.Insts[0] = alloca.ID()
	entry.Insts[1] = store.ID()

	match := func(a ir.Addr) bool { return a.IsGlobal() && a.Name == g.Name }
	repl := func(ir.Addr) ir.Addr { return local }
	for _, b := range fn.Blocks {
		for _, id := range b.Insts {
			fn.Inst(id).ReplaceUses(match, repl)
		}
	}

	ssa.Construct(fn)
}
