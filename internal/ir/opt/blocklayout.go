package opt

import (
	"github.com/Engineev/mxc/internal/ir"
	"github.com/Engineev/mxc/internal/ir/analysis"
	"github.com/Engineev/mxc/internal/ir/dom"
)

// CodegenPreparation reorders a function's blocks into a layout more likely
// to match the eventual instruction stream's fall-through shape: loop
// headers are immediately followed by their loop body, and a branch whose
// taken arm immediately returns has its other arm scheduled first so the
// common (non-returning) path stays contiguous. Block order has no effect
// on correctness (successors are derived from terminators, not position);
// this pass exists purely to make emitted code read in a natural,
// structured order.
type CodegenPreparation struct{}

func (CodegenPreparation) Name() string { return "codegen-preparation" }

func (CodegenPreparation) RunOnFunction(f *ir.Function) bool {
	if f.External || f.Entry() == nil || len(f.Blocks) < 2 {
		return false
	}
	info := dom.Build(f)
	loops := analysis.BuildLoops(f, info)
	order := scheduleBlocks(f, loops)

	byLabel := make(map[int]*ir.BasicBlock, len(f.Blocks))
	for _, b := range f.Blocks {
		byLabel[b.Label] = b
	}
	newBlocks := make([]*ir.BasicBlock, 0, len(f.Blocks))
	seen := make(map[int]bool, len(order))
	changed := false
	for i, label := range order {
		if i >= len(f.Blocks) || f.Blocks[i].Label != label {
			changed = true
		}
		newBlocks = append(newBlocks, byLabel[label])
		seen[label] = true
	}
	for _, b := range f.Blocks {
		if !seen[b.Label] {
			newBlocks = append(newBlocks, b)
		}
	}
	if !changed {
		return false
	}
	f.Blocks = newBlocks
	return true
}

// scheduleBlocks walks a CFG preorder from the entry block, but at each
// branch picks which successor to place immediately next rather than
// deferring to preorder's own choice: a loop header is always followed by
// its body entry, and a branch whose then-arm returns immediately instead
// schedules its else-arm next, keeping the non-returning path contiguous.
// Blocks placed out of preorder order are simply skipped when the
// preorder walk reaches them later.
func scheduleBlocks(f *ir.Function, loops *analysis.LoopInfo) []int {
	preorder := computePreorder(f)
	scheduled := make(map[int]bool, len(preorder))
	order := make([]int, 0, len(preorder))

	var place func(label int)
	place = func(label int) {
		if scheduled[label] {
			return
		}
		scheduled[label] = true
		order = append(order, label)
		b := f.BlockByLabel(label)
		term := b.Terminator(f)
		if term.Op != ir.OpBranch {
			return
		}
		if lp, ok := loops.Innermost[label]; ok && lp.Header == label {
			place(term.Then)
			return
		}
		thenBlk := f.BlockByLabel(term.Then)
		if thenBlk.Terminator(f).Op == ir.OpRet && !scheduled[term.Else] {
			place(term.Else)
			return
		}
		if !scheduled[term.Then] {
			place(term.Then)
		}
	}
	for _, label := range preorder {
		place(label)
	}
	return order
}

func computePreorder(f *ir.Function) []int {
	var order []int
	visited := map[int]bool{}
	var dfs func(label int)
	dfs = func(label int) {
		if visited[label] {
			return
		}
		visited[label] = true
		order = append(order, label)
		b := f.BlockByLabel(label)
		for _, s := range b.Successors(f) {
			dfs(s)
		}
	}
	dfs(f.Entry().Label)
	return order
}
