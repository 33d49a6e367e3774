// Package regalloc implements Iterated Register Coalescing:
// liveness, interference-graph construction, a simplify/coalesce/freeze/
// spill main loop with Briggs/George coalescing criteria, and a
// spill-rewrite loop that re-runs allocation until every virtual register
// is colored.
package regalloc

import (
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/arch/x86/x86asm"

	"github.com/Engineev/mxc/internal/backend/asmir"
)

const k = 14 // len(asmir.UsableColors)

type move struct{ dst, src asmir.Operand }

type node struct {
	id         asmir.Operand
	precolored bool
	color      x86asm.Reg
	colored    bool
	adj        map[asmir.Operand]bool
	degree     int
	moves      map[move]bool
	alias      asmir.Operand
	aliased    bool
}

type graph struct {
	nodes map[asmir.Operand]*node
}

func newGraph() *graph { return &graph{nodes: map[asmir.Operand]*node{}} }

func (g *graph) get(o asmir.Operand) *node {
	n, ok := g.nodes[o]
	if !ok {
		n = &node{id: o, adj: map[asmir.Operand]bool{}, moves: map[move]bool{}}
		if o.Kind == asmir.OpPReg {
			n.precolored = true
			n.color = o.PReg
			n.colored = true
		}
		g.nodes[o] = n
	}
	return n
}

func (g *graph) addEdge(a, b asmir.Operand) {
	if a == b {
		return
	}
	na, nb := g.get(a), g.get(b)
	if na.adj[b] {
		return
	}
	na.adj[b] = true
	nb.adj[a] = true
	if !na.precolored {
		na.degree++
	}
	if !nb.precolored {
		nb.degree++
	}
}

// Allocate colors every virtual register in fn, spilling and re-running as
// needed, then rewrites every operand to its assigned physical register
// and drops resulting `mov r, r` instructions.
func Allocate(fn *asmir.Function) error {
	bound := fn.NumVRegs + 16
	for iter := 0; ; iter++ {
		if iter > bound {
			return errors.Errorf("function %s: spill rewriting did not converge", fn.Name)
		}
		colors, spilled, err := tryColor(fn)
		if err != nil {
			return err
		}
		if len(spilled) == 0 {
			rewrite(fn, colors)
			return nil
		}
		rewriteSpills(fn, spilled)
	}
}

// tryColor runs one build+simplify/coalesce/freeze/spill+select pass,
// returning either a complete coloring or the set of virtual registers
// that must be spilled and retried.
func tryColor(fn *asmir.Function) (map[int]x86asm.Reg, []int, error) {
	live := computeLiveness(fn)
	g := buildInterference(fn, live)

	simplifyWL, freezeWL, spillWL, worklistMoves := initWorklists(g, fn)
	var selectStack []asmir.Operand

	for len(simplifyWL) > 0 || len(worklistMoves) > 0 || len(freezeWL) > 0 || len(spillWL) > 0 {
		switch {
		case len(simplifyWL) > 0:
			o := popAny(simplifyWL)
			delete(simplifyWL, o)
			selectStack = append(selectStack, o)
			simplifyNeighbors(g, o, simplifyWL, freezeWL, spillWL)
		case len(worklistMoves) > 0:
			m := popMove(worklistMoves)
			delete(worklistMoves, m)
			coalesce(g, m, simplifyWL, freezeWL, spillWL, worklistMoves)
		case len(freezeWL) > 0:
			o := popAny(freezeWL)
			delete(freezeWL, o)
			simplifyWL[o] = true
			freezeMoves(g, o, freezeWL, worklistMoves)
		default:
			o := pickSpillCandidate(g, spillWL)
			delete(spillWL, o)
			selectStack = append(selectStack, o)
			simplifyNeighbors(g, o, simplifyWL, freezeWL, spillWL)
		}
	}

	colors := map[int]x86asm.Reg{}
	var actualSpills []int
	for i := len(selectStack) - 1; i >= 0; i-- {
		o := selectStack[i]
		n := g.get(o)
		used := map[x86asm.Reg]bool{}
		for nb := range n.adj {
			an := getAlias(g, nb)
			if an.colored {
				used[an.color] = true
			}
		}
		color, ok := pickColor(used)
		if !ok {
			actualSpills = append(actualSpills, o.VReg)
			continue
		}
		n.color, n.colored = color, true
		colors[o.VReg] = color
	}
	// Propagate coalesced nodes' colors from their alias target.
	for o, n := range g.nodes {
		if o.Kind != asmir.OpVReg || n.colored {
			continue
		}
		an := getAlias(g, o)
		if an.colored {
			colors[o.VReg] = an.color
		}
	}
	sort.Ints(actualSpills)
	return colors, dedupInts(actualSpills), nil
}

func initWorklists(g *graph, fn *asmir.Function) (simplify, freeze, spill map[asmir.Operand]bool, moves map[move]bool) {
	simplify, freeze, spill, moves = map[asmir.Operand]bool{}, map[asmir.Operand]bool{}, map[asmir.Operand]bool{}, map[move]bool{}
	for i := 0; i < fn.NumVRegs; i++ {
		o := asmir.VReg(i)
		n := g.get(o)
		if len(n.moves) > 0 {
			freeze[o] = true
		} else if n.degree >= k {
			spill[o] = true
		} else {
			simplify[o] = true
		}
	}
	for _, b := range fn.Blocks {
		for _, in := range b.Insts {
			if !in.IsMove() {
				continue
			}
			m := move{dst: in.A, src: in.B}
			moves[m] = true
			g.get(m.dst).moves[m] = true
			g.get(m.src).moves[m] = true
		}
	}
	// A register with pending moves but otherwise destined for spill
	// (degree >= k) stays off the freeze list: it can't simplify, so
	// leave it on the spill worklist and let coalescing attempts fail
	// the degree test naturally.
	for o := range freeze {
		if g.get(o).degree >= k {
			delete(freeze, o)
			spill[o] = true
		}
	}
	return
}

func simplifyNeighbors(g *graph, o asmir.Operand, simplify, freeze, spill map[asmir.Operand]bool) {
	for nb := range g.get(o).adj {
		n := g.get(nb)
		if n.precolored || n.degree == 0 {
			continue
		}
		n.degree--
		if n.degree == k-1 && (spill[nb] || freeze[nb]) {
			delete(spill, nb)
			delete(freeze, nb)
			if len(n.moves) > 0 {
				freeze[nb] = true
			} else {
				simplify[nb] = true
			}
		}
	}
}

func freezeMoves(g *graph, o asmir.Operand, freeze map[asmir.Operand]bool, worklistMoves map[move]bool) {
	for m := range g.get(o).moves {
		delete(worklistMoves, m)
	}
	g.get(o).moves = map[move]bool{}
}

// coalesce attempts to merge a move's two ends, using Briggs's criterion
// when both are virtual and George's when one is precolored.
func coalesce(g *graph, m move, simplify, freeze, spill map[asmir.Operand]bool, worklistMoves map[move]bool) {
	a, b := getAlias(g, m.dst), getAlias(g, m.src)
	if a.id == b.id {
		return
	}
	if a.precolored && b.precolored {
		return
	}
	if !a.precolored && g.adjacent(a.id, b.id) {
		return
	}
	if b.precolored {
		a, b = b, a // ensure a is the (possibly) precolored end
	}

	ok := false
	if a.precolored {
		ok = george(g, a, b)
	} else {
		ok = briggs(g, a, b)
	}
	if !ok {
		freeze[a.id] = true
		freeze[b.id] = true
		return
	}
	combine(g, a, b, simplify, freeze, spill, worklistMoves)
}

func briggs(g *graph, a, b *node) bool {
	seen := map[asmir.Operand]bool{}
	cnt := 0
	for nb := range a.adj {
		seen[nb] = true
		if g.get(nb).degree >= k {
			cnt++
		}
	}
	for nb := range b.adj {
		if seen[nb] {
			continue
		}
		if g.get(nb).degree >= k {
			cnt++
		}
	}
	return cnt < k
}

func george(g *graph, a, b *node) bool {
	for nb := range b.adj {
		n := g.get(nb)
		if n.precolored || n.degree < k || a.adj[nb] {
			continue
		}
		return false
	}
	return true
}

// combine merges b into a, aliasing b's future lookups to a.
func combine(g *graph, a, b *node, simplify, freeze, spill map[asmir.Operand]bool, worklistMoves map[move]bool) {
	delete(freeze, b.id)
	delete(spill, b.id)
	b.alias, b.aliased = a.id, true
	for m := range b.moves {
		a.moves[m] = true
	}
	for nb := range b.adj {
		other := g.get(nb)
		g.addEdge(a.id, nb)
		if !other.precolored && other.degree >= k {
			// stays on spill worklist
		}
	}
	if !a.precolored && a.degree >= k {
		delete(simplify, a.id)
		delete(freeze, a.id)
		spill[a.id] = true
	}
}

func (g *graph) adjacent(a, b asmir.Operand) bool {
	return g.get(a).adj[b]
}

func getAlias(g *graph, o asmir.Operand) *node {
	n := g.get(o)
	for n.aliased {
		n = g.get(n.alias)
	}
	return n
}

func pickSpillCandidate(g *graph, spill map[asmir.Operand]bool) asmir.Operand {
	var best asmir.Operand
	bestDeg := -1
	for o := range spill {
		d := g.get(o).degree
		if d > bestDeg {
			bestDeg, best = d, o
		}
	}
	return best
}

func pickColor(used map[x86asm.Reg]bool) (x86asm.Reg, bool) {
	for _, c := range asmir.UsableColors {
		if !used[c] {
			return c, true
		}
	}
	return 0, false
}

func popAny(m map[asmir.Operand]bool) asmir.Operand {
	for o := range m {
		return o
	}
	return asmir.Operand{}
}

func popMove(m map[move]bool) move {
	for mv := range m {
		return mv
	}
	return move{}
}

func dedupInts(xs []int) []int {
	out := xs[:0]
	var last int
	for i, x := range xs {
		if i == 0 || x != last {
			out = append(out, x)
		}
		last = x
	}
	return out
}

// rewrite substitutes every virtual-register operand with its assigned
// physical register and drops any `mov r, r` the substitution produces.
func rewrite(fn *asmir.Function, colors map[int]x86asm.Reg) {
	color := func(o asmir.Operand) asmir.Operand {
		if o.Kind != asmir.OpVReg {
			return o
		}
		c, ok := colors[o.VReg]
		if !ok {
			return o
		}
		return asmir.PReg(c)
	}
	for _, b := range fn.Blocks {
		kept := b.Insts[:0]
		for _, in := range b.Insts {
			if in.HasA {
				in.A = color(in.A)
			}
			if in.HasB {
				in.B = color(in.B)
			}
			if in.Op == asmir.Mov && in.HasA && in.HasB && in.A == in.B {
				continue
			}
			kept = append(kept, in)
		}
		b.Insts = kept
	}
}
