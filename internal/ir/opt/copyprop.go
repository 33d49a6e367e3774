package opt

import (
	"github.com/Engineev/mxc/internal/ir"
	"github.com/Engineev/mxc/internal/ir/dom"
)

// CopyProp is copy propagation over SSA form: a dominator-tree DFS maps
// every Assign(d, src) where src is a literal, a global, or a local whose
// value is already known, to that source, and rewrites subsequent operand
// references through the map.
type CopyProp struct{}

func (CopyProp) Name() string { return "copy-prop" }

func (CopyProp) RunOnFunction(f *ir.Function) bool {
	if f.External || f.Entry() == nil {
		return false
	}
	info := dom.Build(f)
	changed := false
	var walk func(label int, known map[string]ir.Addr)
	walk = func(label int, known map[string]ir.Addr) {
		cur := make(map[string]ir.Addr, len(known))
		for k, v := range known {
			cur[k] = v
		}
		b := f.BlockByLabel(label)
		for _, id := range b.Insts {
			inst := f.Inst(id)
			if inst.IsDeleted() {
				continue
			}
			inst.ReplaceUses(
				func(a ir.Addr) bool { _, ok := cur[a.Name]; return a.IsLocal() && ok },
				func(a ir.Addr) ir.Addr { return resolve(cur, a) },
			)
			if inst.Op == ir.OpAssign && inst.HasDest && inst.HasA {
				src := resolve(cur, inst.A)
				if src.IsConst() || src.IsGlobal() || (src.IsLocal() && src.Name != inst.Dest.Name) {
					cur[inst.Dest.Name] = src
					changed = true
				}
			}
		}
		for _, c := range info.Children(label) {
			walk(c, cur)
		}
	}
	walk(info.Entry(), map[string]ir.Addr{})
	return changed
}

func resolve(known map[string]ir.Addr, a ir.Addr) ir.Addr {
	for a.IsLocal() {
		v, ok := known[a.Name]
		if !ok || v.Equal(a) {
			break
		}
		a = v
	}
	return a
}
