package analysis

import (
	"sort"

	"github.com/Engineev/mxc/internal/ir"
	"github.com/Engineev/mxc/internal/runtime"
)

// CallGraph is the directed graph of Call targets: Callees[f] is the set
// of function names f may call.
type CallGraph struct {
	Callees map[string]map[string]bool
	Callers map[string]map[string]bool
}

// BuildCallGraph scans every function body in m for Call instructions.
func BuildCallGraph(m *ir.Module) *CallGraph {
	cg := &CallGraph{Callees: map[string]map[string]bool{}, Callers: map[string]map[string]bool{}}
	for _, name := range m.FuncOrder() {
		cg.Callees[name] = map[string]bool{}
		cg.Callers[name] = map[string]bool{}
	}
	for _, name := range m.FuncOrder() {
		fn := m.Functions[name]
		for _, b := range fn.Blocks {
			for _, id := range b.Insts {
				inst := fn.Inst(id)
				if inst.Op != ir.OpCall {
					continue
				}
				if _, ok := cg.Callees[inst.Callee]; !ok {
					cg.Callees[inst.Callee] = map[string]bool{}
				}
				cg.Callees[name][inst.Callee] = true
				if _, ok := cg.Callers[inst.Callee]; !ok {
					cg.Callers[inst.Callee] = map[string]bool{}
				}
				cg.Callers[inst.Callee][name] = true
			}
		}
	}
	return cg
}

// FuncAttr holds a function's transitively-closed global read/write sets
// and its purity.
type FuncAttr struct {
	Reads  map[string]bool
	Writes map[string]bool
	Pure   bool
}

// FuncAttrs computes function attributes for every function in m, closing
// global-variable read/write sets over callees (a worklist over the
// reverse call graph) and purity to a fixed point over the call graph,
// seeded with primitive purity checks.
func FuncAttrs(m *ir.Module, cg *CallGraph) map[string]*FuncAttr {
	attrs := map[string]*FuncAttr{}
	for _, name := range m.FuncOrder() {
		attrs[name] = &FuncAttr{Reads: map[string]bool{}, Writes: map[string]bool{}}
	}
	for name, fn := range m.Functions {
		if _, ok := attrs[name]; !ok {
			attrs[name] = &FuncAttr{Reads: map[string]bool{}, Writes: map[string]bool{}}
		}
		if fn.External {
			// Runtime functions are treated conservatively: unknown global
			// effects, impure, except for symbols known to be pure.
			attrs[name].Pure = pureRuntimeSymbol(name)
		}
	}

	// Seed direct global reads/writes per function, and primitive purity
	// (no Load/Store through a non-stack address, no call to an
	// impure/unknown function, approximated here in the seed pass by "no
	// Load/Store at all other than through an Alloca-derived address").
	directPure := map[string]bool{}
	for _, name := range m.FuncOrder() {
		fn := m.Functions[name]
		attr := attrs[name]
		allocas := map[string]bool{}
		if fn.Entry() != nil {
			for _, id := range fn.Entry().Insts {
				if inst := fn.Inst(id); inst.Op == ir.OpAlloca && inst.HasDest {
					allocas[inst.Dest.Name] = true
				}
			}
		}
		pure := true
		for _, b := range fn.Blocks {
			for _, id := range b.Insts {
				inst := fn.Inst(id)
				switch inst.Op {
				case ir.OpLoad:
					if inst.A.IsGlobal() {
						attr.Reads[inst.A.Name] = true
						pure = false
					} else if inst.A.IsLocal() && !allocas[inst.A.Name] {
						pure = false
					}
				case ir.OpStore:
					if inst.A.IsGlobal() {
						attr.Writes[inst.A.Name] = true
						pure = false
					} else if inst.A.IsLocal() && !allocas[inst.A.Name] {
						pure = false
					}
				case ir.OpMalloc, ir.OpSAlloc, ir.OpStrCpy:
					pure = false
				}
			}
		}
		directPure[name] = pure
	}

	// Fixed point over the reverse call graph for global effects.
	changed := true
	for changed {
		changed = false
		for _, name := range m.FuncOrder() {
			attr := attrs[name]
			for callee := range cg.Callees[name] {
				ca, ok := attrs[callee]
				if !ok {
					continue
				}
				for g := range ca.Reads {
					if !attr.Reads[g] {
						attr.Reads[g] = true
						changed = true
					}
				}
				for g := range ca.Writes {
					if !attr.Writes[g] {
						attr.Writes[g] = true
						changed = true
					}
				}
			}
		}
	}

	// Fixed point for purity: a function is pure iff it is directly pure
	// and every callee is pure.
	for _, name := range m.FuncOrder() {
		attrs[name].Pure = directPure[name]
	}
	changed = true
	for changed {
		changed = false
		for _, name := range m.FuncOrder() {
			attr := attrs[name]
			if !attr.Pure {
				continue
			}
			for callee := range cg.Callees[name] {
				ca, ok := attrs[callee]
				if !ok || !ca.Pure {
					attr.Pure = false
					changed = true
					break
				}
			}
		}
	}
	return attrs
}

func pureRuntimeSymbol(name string) bool {
	switch name {
	case "#string#length", "#string#substring", "#string#parseInt", "#string#ord", "#_array_#size":
		return true
	default:
		return runtime.IsSymbol(name) && false
	}
}

// SortedNames returns map keys sorted, a small helper used by printers and
// tests that need deterministic output.
func SortedNames(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
