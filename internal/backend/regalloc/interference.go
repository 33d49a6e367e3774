package regalloc

import "github.com/Engineev/mxc/internal/backend/asmir"

// buildInterference walks each block bottom-up from its LiveOut set, adding
// an edge between every register defined by an instruction and every
// register live across it. A move's source is dropped from the
// live set before the edge pass so the move's two ends never interfere
// solely because of the move itself, leaving them eligible for coalescing.
func buildInterference(fn *asmir.Function, live *liveness) *graph {
	g := newGraph()
	for _, b := range fn.Blocks {
		cur := map[asmir.Operand]bool{}
		for v := range live.liveOut[b.Label] {
			cur[v] = true
		}
		for i := len(b.Insts) - 1; i >= 0; i-- {
			in := b.Insts[i]
			if in.IsMove() {
				delete(cur, in.B)
			}
			for _, d := range in.AllDefs() {
				if !d.IsReg() {
					continue
				}
				for l := range cur {
					g.addEdge(d, l)
				}
			}
			for _, d := range in.AllDefs() {
				if d.IsReg() {
					delete(cur, d)
				}
			}
			for _, u := range in.AllUses() {
				if u.IsReg() {
					cur[u] = true
				}
			}
		}
	}
	return g
}
