package opt

import "github.com/Engineev/mxc/internal/ir"

// latKind is the SCCP lattice: Top ("not yet evaluated"), Const(k), or
// Bottom ("proven not a single constant").
type latKind uint8

const (
	latTop latKind = iota
	latConst
	latBottom
)

type lattice struct {
	Kind latKind
	Val  int64
}

func meet(a, b lattice) lattice {
	if a.Kind == latTop {
		return b
	}
	if b.Kind == latTop {
		return a
	}
	if a.Kind == latBottom || b.Kind == latBottom {
		return lattice{Kind: latBottom}
	}
	if a.Val == b.Val {
		return a
	}
	return lattice{Kind: latBottom}
}

type edge struct{ from, to int }

// SCCP is sparse conditional constant propagation over SSA form: values
// are folded to a Top/Const/Bottom lattice with a flow-edge worklist
// tracking block reachability, 0*x and 0&x collapse to 0 regardless of
// the other operand, and division by zero falls to Bottom rather than
// folding.
type SCCP struct{}

func (SCCP) Name() string { return "sccp" }

func (SCCP) RunOnFunction(f *ir.Function) bool {
	if f.External || f.Entry() == nil {
		return false
	}
	s := &sccpState{
		f:       f,
		value:   map[string]lattice{},
		execBlk: map[int]bool{},
		execEdg: map[edge]bool{},
	}
	s.run()
	return s.rewrite()
}

type sccpState struct {
	f       *ir.Function
	value   map[string]lattice
	execBlk map[int]bool
	execEdg map[edge]bool
	flowW   []edge
	ssaW    []ir.InstID
	users   map[string][]ir.InstID
}

func (s *sccpState) get(a ir.Addr) lattice {
	switch a.Kind {
	case ir.AddrImm:
		return lattice{Kind: latConst, Val: a.Imm}
	case ir.AddrLocal:
		v, ok := s.value[a.Name]
		if !ok {
			return lattice{Kind: latTop}
		}
		return v
	default:
		return lattice{Kind: latBottom}
	}
}

func (s *sccpState) set(name string, v lattice) {
	old, ok := s.value[name]
	if ok && old == v {
		return
	}
	s.value[name] = v
	for _, id := range s.users[name] {
		s.ssaW = append(s.ssaW, id)
	}
}

func (s *sccpState) markBlock(label int) {
	if s.execBlk[label] {
		return
	}
	s.execBlk[label] = true
	b := s.f.BlockByLabel(label)
	for _, id := range b.Insts {
		s.ssaW = append(s.ssaW, id)
	}
}

func (s *sccpState) run() {
	// Build use -> instruction index for the SSA worklist.
	s.users = map[string][]ir.InstID{}
	for _, b := range s.f.Blocks {
		for _, id := range b.Insts {
			inst := s.f.Inst(id)
			for _, u := range inst.Uses(nil) {
				if u.IsLocal() {
					s.users[u.Name] = append(s.users[u.Name], id)
				}
			}
		}
	}
	s.markBlock(s.f.Entry().Label)
	for len(s.flowW) > 0 || len(s.ssaW) > 0 {
		for len(s.flowW) > 0 {
			e := s.flowW[len(s.flowW)-1]
			s.flowW = s.flowW[:len(s.flowW)-1]
			if s.execEdg[e] {
				continue
			}
			s.execEdg[e] = true
			s.markBlock(e.to)
			b := s.f.BlockByLabel(e.to)
			for _, id := range b.Phis(s.f) {
				s.ssaW = append(s.ssaW, id)
			}
		}
		for len(s.ssaW) > 0 {
			id := s.ssaW[len(s.ssaW)-1]
			s.ssaW = s.ssaW[:len(s.ssaW)-1]
			s.visit(id)
		}
	}
}

func (s *sccpState) blockOf(id ir.InstID) int {
	for _, b := range s.f.Blocks {
		for _, bid := range b.Insts {
			if bid == id {
				return b.Label
			}
		}
	}
	return -1
}

func (s *sccpState) visit(id ir.InstID) {
	inst := s.f.Inst(id)
	blk := s.blockOf(id)
	if blk != -1 && !s.execBlk[blk] && inst.Op != ir.OpPhi {
		return
	}
	switch inst.Op {
	case ir.OpPhi:
		v := lattice{Kind: latTop}
		for _, op := range inst.Phi {
			if !s.execEdg[edge{op.Pred, blk}] {
				continue
			}
			v = meet(v, s.get(op.Value))
		}
		s.set(inst.Dest.Name, v)
	case ir.OpAssign:
		s.set(inst.Dest.Name, s.get(inst.A))
	case ir.OpArithUnary:
		x := s.get(inst.A)
		s.set(inst.Dest.Name, foldUnary(inst.Arith, x))
	case ir.OpArithBinary:
		x, y := s.get(inst.A), s.get(inst.B)
		s.set(inst.Dest.Name, foldBinary(inst.Arith, x, y))
	case ir.OpRelation:
		x, y := s.get(inst.A), s.get(inst.B)
		s.set(inst.Dest.Name, foldRelation(inst.Arith, x, y))
	case ir.OpJump:
		s.flowW = append(s.flowW, edge{blk, inst.Target})
	case ir.OpBranch:
		c := s.get(inst.A)
		switch c.Kind {
		case latConst:
			if c.Val != 0 {
				s.flowW = append(s.flowW, edge{blk, inst.Then})
			} else {
				s.flowW = append(s.flowW, edge{blk, inst.Else})
			}
		case latBottom:
			s.flowW = append(s.flowW, edge{blk, inst.Then}, edge{blk, inst.Else})
		}
	}
}

func foldUnary(op ir.ArithKind, x lattice) lattice {
	if x.Kind == latBottom {
		return lattice{Kind: latBottom}
	}
	if x.Kind == latTop {
		return lattice{Kind: latTop}
	}
	switch op {
	case ir.KNeg:
		return lattice{Kind: latConst, Val: -x.Val}
	case ir.KBitNot:
		return lattice{Kind: latConst, Val: ^x.Val}
	}
	return lattice{Kind: latBottom}
}

func foldBinary(op ir.ArithKind, x, y lattice) lattice {
	// 0*x and 0&x collapse to 0 even if x is Top/Bottom.
	if op == ir.KMul && ((x.Kind == latConst && x.Val == 0) || (y.Kind == latConst && y.Val == 0)) {
		return lattice{Kind: latConst, Val: 0}
	}
	if op == ir.KBitAnd && ((x.Kind == latConst && x.Val == 0) || (y.Kind == latConst && y.Val == 0)) {
		return lattice{Kind: latConst, Val: 0}
	}
	if x.Kind == latBottom || y.Kind == latBottom {
		return lattice{Kind: latBottom}
	}
	if x.Kind == latTop || y.Kind == latTop {
		return lattice{Kind: latTop}
	}
	a, b := x.Val, y.Val
	switch op {
	case ir.KAdd:
		return lattice{Kind: latConst, Val: a + b}
	case ir.KSub:
		return lattice{Kind: latConst, Val: a - b}
	case ir.KMul:
		return lattice{Kind: latConst, Val: a * b}
	case ir.KDiv:
		if b == 0 {
			return lattice{Kind: latBottom}
		}
		return lattice{Kind: latConst, Val: a / b}
	case ir.KMod:
		if b == 0 {
			return lattice{Kind: latBottom}
		}
		return lattice{Kind: latConst, Val: a % b}
	case ir.KBitOr:
		return lattice{Kind: latConst, Val: a | b}
	case ir.KBitAnd:
		return lattice{Kind: latConst, Val: a & b}
	case ir.KXor:
		return lattice{Kind: latConst, Val: a ^ b}
	case ir.KShl:
		return lattice{Kind: latConst, Val: a << uint(b)}
	case ir.KShr:
		return lattice{Kind: latConst, Val: a >> uint(b)}
	}
	return lattice{Kind: latBottom}
}

func foldRelation(op ir.ArithKind, x, y lattice) lattice {
	if x.Kind == latBottom || y.Kind == latBottom {
		return lattice{Kind: latBottom}
	}
	if x.Kind == latTop || y.Kind == latTop {
		return lattice{Kind: latTop}
	}
	a, b := x.Val, y.Val
	truth := false
	switch op {
	case ir.KEq:
		truth = a == b
	case ir.KNe:
		truth = a != b
	case ir.KLt:
		truth = a < b
	case ir.KGt:
		truth = a > b
	case ir.KLe:
		truth = a <= b
	case ir.KGe:
		truth = a >= b
	}
	if truth {
		return lattice{Kind: latConst, Val: 1}
	}
	return lattice{Kind: latConst, Val: 0}
}

// rewrite replaces every use of a Const-lattice local with its literal and
// tombstones definitions that are now redundant.
func (s *sccpState) rewrite() bool {
	changed := false
	isConst := func(a ir.Addr) bool {
		if !a.IsLocal() {
			return false
		}
		v, ok := s.value[a.Name]
		return ok && v.Kind == latConst
	}
	for _, b := range s.f.Blocks {
		for _, id := range b.Insts {
			inst := s.f.Inst(id)
			if inst.IsDeleted() {
				continue
			}
			inst.ReplaceUses(
				func(a ir.Addr) bool {
					hit := isConst(a)
					if hit {
						changed = true
					}
					return hit
				},
				func(a ir.Addr) ir.Addr { return ir.Imm(s.value[a.Name].Val) },
			)
		}
	}
	return changed
}
