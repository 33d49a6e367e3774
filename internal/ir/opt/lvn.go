package opt

import "github.com/Engineev/mxc/internal/ir"

// LocalValueNumbering is block-scoped value numbering: unlike GVN, whose
// table is threaded down the dominator tree so a redundant computation is
// caught even when it recurs in a different block, LocalValueNumbering
// resets its table at the start of every block and only ever catches
// redundancies within a single straight-line sequence. It runs cheaply
// ahead of GVN in the fixed-point pipeline so the more expensive
// dominator-scoped pass starts with less work.
type LocalValueNumbering struct{}

func (LocalValueNumbering) Name() string { return "local-value-numbering" }

func (LocalValueNumbering) RunOnFunction(f *ir.Function) bool {
	changed := false
	for _, b := range f.Blocks {
		table := map[string]ir.Addr{}
		known := map[string]ir.Addr{}
		for _, id := range b.Insts {
			inst := f.Inst(id)
			if inst.IsDeleted() {
				continue
			}
			inst.ReplaceUses(
				func(a ir.Addr) bool { _, ok := known[a.Name]; return a.IsLocal() && ok },
				func(a ir.Addr) ir.Addr { return known[a.Name] },
			)
			if !inst.HasDest {
				continue
			}
			key, ok := instKey(inst)
			if !ok {
				continue
			}
			if earlier, found := table[key]; found {
				assign := f.NewInst(ir.OpAssign)
				assign.HasDest = true
				assign.Dest = inst.Dest
				assign.A = earlier
				assign.HasA = true
				f.Replace(b, id, assign)
				known[inst.Dest.Name] = earlier
				changed = true
				continue
			}
			table[key] = inst.Dest
		}
	}
	return changed
}
