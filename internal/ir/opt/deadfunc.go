package opt

import (
	"github.com/Engineev/mxc/internal/ir"
	"github.com/Engineev/mxc/internal/ir/analysis"
)

// UnusedFunctionRemoval deletes every module-level function unreachable from
// "main" over the call graph: a worklist BFS seeded at "main" marks callees
// as used without descending into functions that have no body (External),
// and anything left unmarked is removed, whether it is dead user code or a
// runtime declaration inlining/GlobalConstInline left with no remaining
// caller.
type UnusedFunctionRemoval struct{}

func (UnusedFunctionRemoval) Name() string { return "unused-function-removal" }

func (UnusedFunctionRemoval) RunOnModule(m *ir.Module) bool {
	if _, ok := m.Functions["main"]; !ok {
		return false
	}
	cg := analysis.BuildCallGraph(m)
	used := map[string]bool{"main": true}
	worklist := []string{"main"}
	for len(worklist) > 0 {
		name := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		fn, ok := m.Functions[name]
		if !ok || fn.External {
			continue
		}
		for callee := range cg.Callees[name] {
			if !used[callee] {
				used[callee] = true
				worklist = append(worklist, callee)
			}
		}
	}
	remove := map[string]bool{}
	for _, name := range m.FuncOrder() {
		if !used[name] {
			remove[name] = true
		}
	}
	return m.RemoveFunctions(remove) > 0
}
