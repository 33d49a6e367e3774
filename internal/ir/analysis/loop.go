package analysis

import (
	"sort"

	"github.com/Engineev/mxc/internal/ir"
	"github.com/Engineev/mxc/internal/ir/dom"
)

// Loop is one natural loop: a header block and the set of blocks in its
// body (including the header), plus any loops nested directly inside it.
type Loop struct {
	Header int
	Blocks map[int]bool
	Nested []*Loop
}

// LoopInfo is the loop forest of a function, plus a lookup from block label
// to its innermost enclosing loop.
type LoopInfo struct {
	Top       []*Loop
	Innermost map[int]*Loop
}

// BuildLoops finds back edges via the dominator tree (an edge a -> b with
// b dominating a), computes each back edge's natural loop, merges loops
// sharing a header, and nests loops by repeatedly stripping the innermost
// ones.
func BuildLoops(f *ir.Function, info *dom.Info) *LoopInfo {
	byHeader := map[int]*Loop{}
	var headers []int
	for _, b := range f.Blocks {
		for _, s := range b.Successors(f) {
			if info.Dominates(s, b.Label) {
				// Back edge b -> s, header s.
				lp, ok := byHeader[s]
				if !ok {
					lp = &Loop{Header: s, Blocks: map[int]bool{s: true}}
					byHeader[s] = lp
					headers = append(headers, s)
				}
				addNaturalLoopBody(f, lp, b.Label, s)
			}
		}
	}
	sort.Ints(headers)
	loops := make([]*Loop, 0, len(headers))
	for _, h := range headers {
		loops = append(loops, byHeader[h])
	}

	li := &LoopInfo{Innermost: map[int]*Loop{}}
	// A block's innermost loop is the smallest (fewest blocks) loop
	// containing it.
	for _, b := range f.Blocks {
		var best *Loop
		for _, lp := range loops {
			if lp.Blocks[b.Label] {
				if best == nil || len(lp.Blocks) < len(best.Blocks) {
					best = lp
				}
			}
		}
		if best != nil {
			li.Innermost[b.Label] = best
		}
	}
	// Nest: a loop L2 is nested in L1 if L1's blocks are a strict superset
	// and L1 is the smallest such superset (its immediate parent).
	parent := map[*Loop]*Loop{}
	for _, l1 := range loops {
		for _, l2 := range loops {
			if l1 == l2 || !isSuperset(l1.Blocks, l2.Blocks) {
				continue
			}
			cur, ok := parent[l2]
			if !ok || len(cur.Blocks) > len(l1.Blocks) {
				parent[l2] = l1
			}
		}
	}
	for _, lp := range loops {
		if p, ok := parent[lp]; ok {
			p.Nested = append(p.Nested, lp)
		} else {
			li.Top = append(li.Top, lp)
		}
	}
	return li
}

func isSuperset(a, b map[int]bool) bool {
	if len(a) <= len(b) {
		return false
	}
	for k := range b {
		if !a[k] {
			return false
		}
	}
	return true
}

// addNaturalLoopBody adds to lp the set of blocks from which tail is
// reachable without passing through header, union {header}.
func addNaturalLoopBody(f *ir.Function, lp *Loop, tail, header int) {
	if lp.Blocks[tail] {
		return
	}
	preds := ir.Preds(f)
	stack := []int{tail}
	lp.Blocks[tail] = true
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == header {
			continue
		}
		for _, p := range preds[n] {
			if !lp.Blocks[p] {
				lp.Blocks[p] = true
				stack = append(stack, p)
			}
		}
	}
}

// Preheader locates the unique predecessor of lp's header that lies
// outside the loop, if the header has exactly one such predecessor
// already (used to decide whether LICM must insert a fresh preheader).
func (lp *Loop) ExternalPreds(f *ir.Function) []int {
	preds := ir.Preds(f)
	var out []int
	for _, p := range preds[lp.Header] {
		if !lp.Blocks[p] {
			out = append(out, p)
		}
	}
	return out
}

// ExitBlocks returns the loop-external successors of blocks inside lp.
func (lp *Loop) ExitBlocks(f *ir.Function) []int {
	seen := map[int]bool{}
	var out []int
	for b := range lp.Blocks {
		blk := f.BlockByLabel(b)
		for _, s := range blk.Successors(f) {
			if !lp.Blocks[s] && !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	sort.Ints(out)
	return out
}

// IsInvariant reports whether the definition of addr lies outside lp
// (constants and globals are always invariant).
func (lp *Loop) IsInvariant(f *ir.Function, du *DefUse, addr ir.Addr) bool {
	if addr.IsConst() || addr.IsGlobal() {
		return true
	}
	if !addr.IsLocal() {
		return true
	}
	defID, ok := du.Def[addr.Name]
	if !ok {
		return true
	}
	return !lp.definedInLoop(f, defID)
}

func (lp *Loop) definedInLoop(f *ir.Function, id ir.InstID) bool {
	for b := range lp.Blocks {
		blk := f.BlockByLabel(b)
		for _, bid := range blk.Insts {
			if bid == id {
				return true
			}
		}
	}
	return false
}

// InvariantClosure computes, to a fixed point, the set of instructions in
// lp whose operands are all either defined outside lp or themselves
// invariant, and which are pure.
func (lp *Loop) InvariantClosure(f *ir.Function, du *DefUse) map[ir.InstID]bool {
	invariant := map[ir.InstID]bool{}
	changed := true
	for changed {
		changed = false
		for b := range lp.Blocks {
			blk := f.BlockByLabel(b)
			for _, id := range blk.Insts {
				if invariant[id] {
					continue
				}
				inst := f.Inst(id)
				if !inst.IsPure() || inst.Op == ir.OpPhi {
					continue
				}
				ok := true
				for _, u := range inst.Uses(nil) {
					if !lp.operandInvariant(f, du, invariant, u) {
						ok = false
						break
					}
				}
				if ok {
					invariant[id] = true
					changed = true
				}
			}
		}
	}
	return invariant
}

func (lp *Loop) operandInvariant(f *ir.Function, du *DefUse, invariant map[ir.InstID]bool, addr ir.Addr) bool {
	if addr.IsConst() || addr.IsGlobal() {
		return true
	}
	if !addr.IsLocal() {
		return true
	}
	defID, ok := du.Def[addr.Name]
	if !ok {
		return true
	}
	if !lp.definedInLoop(f, defID) {
		return true
	}
	return invariant[defID]
}
