// Package dom computes per-function dominance information: dominator
// sets, immediate dominators, dominator-tree children and dominance
// frontiers.
package dom

import (
	"sort"

	"github.com/Engineev/mxc/internal/ir"
)

// Info holds the dominance results for one function.
type Info struct {
	entry int
	order []int // block labels in a stable order

	dom    map[int]map[int]bool // Dom(n): set of labels dominating n
	idom   map[int]int          // immediate dominator, -1 for entry
	kids   map[int][]int        // dominator-tree children
	front  map[int]map[int]bool // dominance frontier
}

// Build computes dominance information for f.
//
// Algorithm: for each node n, the nodes reachable from entry in
// the CFG with n removed are exactly the non-dominated nodes; the
// complement is Dom(n). The immediate dominator is the unique strict
// dominator that strictly dominates no other strict dominator. The
// dominance frontier is computed by walking, for every CFG edge a -> b,
// x := a upward through immediate dominators until x strictly dominates b,
// adding b to DF(x) at each step.
func Build(f *ir.Function) *Info {
	info := &Info{
		dom:   map[int]map[int]bool{},
		idom:  map[int]int{},
		kids:  map[int][]int{},
		front: map[int]map[int]bool{},
	}
	if f.Entry() == nil {
		return info
	}
	info.entry = f.Entry().Label
	for _, b := range f.Blocks {
		info.order = append(info.order, b.Label)
	}
	succ := ir.Succs(f)

	reachableWithout := func(removed int) map[int]bool {
		reach := map[int]bool{}
		if info.entry == removed {
			return reach
		}
		stack := []int{info.entry}
		reach[info.entry] = true
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, s := range succ[n] {
				if s == removed || reach[s] {
					continue
				}
				reach[s] = true
				stack = append(stack, s)
			}
		}
		return reach
	}

	all := map[int]bool{}
	for _, n := range info.order {
		all[n] = true
	}
	for _, n := range info.order {
		reach := reachableWithout(n)
		d := map[int]bool{n: true}
		for m := range all {
			if m != n && !reach[m] {
				d[m] = true
			}
		}
		info.dom[n] = d
	}

	// Immediate dominator: the strict dominator that is dominated by every
	// other strict dominator (i.e. strictly dominates no other strict
	// dominator).
	info.idom[info.entry] = -1
	for _, n := range info.order {
		if n == info.entry {
			continue
		}
		strict := stripSelf(info.dom[n], n)
		var idom int
		found := false
		for cand := range strict {
			dominatesOther := false
			for other := range strict {
				if other != cand && info.dom[other][cand] {
					dominatesOther = true
					break
				}
			}
			if !dominatesOther {
				idom = cand
				found = true
				break
			}
		}
		if !found {
			info.idom[n] = -1
			continue
		}
		info.idom[n] = idom
		info.kids[idom] = append(info.kids[idom], n)
	}
	for k := range info.kids {
		sort.Ints(info.kids[k])
	}

	// Dominance frontier via the standard edge-walking method.
	for k := range all {
		info.front[k] = map[int]bool{}
	}
	for _, a := range info.order {
		for _, b := range succ[a] {
			x := a
			for x != -1 && !(info.dom[b][x] && x != b) {
				info.front[x][b] = true
				if x == info.idom[x] {
					break
				}
				x = info.idom[x]
			}
		}
	}
	return info
}

func stripSelf(set map[int]bool, self int) map[int]bool {
	out := map[int]bool{}
	for k := range set {
		if k != self {
			out[k] = true
		}
	}
	return out
}

// Dominates reports whether a dominates b (reflexively: a dominates a).
func (info *Info) Dominates(a, b int) bool {
	return info.dom[b][a]
}

// StrictlyDominates reports whether a strictly dominates b.
func (info *Info) StrictlyDominates(a, b int) bool {
	return a != b && info.Dominates(a, b)
}

// Entry returns the label of the function's entry block.
func (info *Info) Entry() int { return info.entry }

// IDom returns the immediate dominator of n, or -1 if n is the entry.
func (info *Info) IDom(n int) int { return info.idom[n] }

// Children returns the dominator-tree children of n.
func (info *Info) Children(n int) []int { return info.kids[n] }

// Frontier returns the dominance frontier of n.
func (info *Info) Frontier(n int) []int {
	out := make([]int, 0, len(info.front[n]))
	for k := range info.front[n] {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

// DomTreeDFS walks the dominator tree rooted at the entry block in
// preorder, invoking visit(label) for every block. It is the traversal SSA
// construction/destruction and dominator-scoped optimizations rely on.
func (info *Info) DomTreeDFS(visit func(label int)) {
	if len(info.order) == 0 {
		return
	}
	var walk func(n int)
	walk = func(n int) {
		visit(n)
		for _, c := range info.Children(n) {
			walk(c)
		}
	}
	walk(info.entry)
}
