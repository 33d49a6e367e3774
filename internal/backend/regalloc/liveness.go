package regalloc

import "github.com/Engineev/mxc/internal/backend/asmir"

// liveness holds the per-block upward-exposed/killed sets and the fixed
// point LiveOut sets of backward dataflow:
// LiveOut(b) = U_{s in succ(b)} (UEVar(s) U (LiveOut(s) \ VarKill(s))).
type liveness struct {
	ueVar   map[int]map[asmir.Operand]bool
	varKill map[int]map[asmir.Operand]bool
	liveOut map[int]map[asmir.Operand]bool
}

func computeLiveness(fn *asmir.Function) *liveness {
	l := &liveness{
		ueVar:   map[int]map[asmir.Operand]bool{},
		varKill: map[int]map[asmir.Operand]bool{},
		liveOut: map[int]map[asmir.Operand]bool{},
	}
	succs := map[int][]int{}
	for _, b := range fn.Blocks {
		succs[b.Label] = b.Successors()
		ue := map[asmir.Operand]bool{}
		killed := map[asmir.Operand]bool{}
		for _, in := range b.Insts {
			for _, u := range in.AllUses() {
				if u.IsReg() && !killed[u] {
					ue[u] = true
				}
			}
			for _, d := range in.AllDefs() {
				if d.IsReg() {
					killed[d] = true
				}
			}
		}
		l.ueVar[b.Label] = ue
		l.varKill[b.Label] = killed
		l.liveOut[b.Label] = map[asmir.Operand]bool{}
	}

	changed := true
	for changed {
		changed = false
		for _, b := range fn.Blocks {
			next := map[asmir.Operand]bool{}
			for _, s := range succs[b.Label] {
				for v := range l.ueVar[s] {
					next[v] = true
				}
				for v := range l.liveOut[s] {
					if !l.varKill[s][v] {
						next[v] = true
					}
				}
			}
			if !setEqual(next, l.liveOut[b.Label]) {
				l.liveOut[b.Label] = next
				changed = true
			}
		}
	}
	return l
}

func setEqual(a, b map[asmir.Operand]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}
