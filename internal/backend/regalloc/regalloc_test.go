package regalloc

import (
	"testing"

	"github.com/Engineev/mxc/internal/backend/asmir"
)

// buildAllLiveFunc builds a single-block function that defines n virtual
// registers and then sums them all into v0, so every one of the n
// registers is simultaneously live across the whole add chain. With
// n > k this forces at least one spill-rewrite round.
func buildAllLiveFunc(n int) *asmir.Function {
	fn := &asmir.Function{Name: "allLive"}
	b := fn.NewBlock(0)
	vregs := make([]asmir.Operand, n)
	for i := 0; i < n; i++ {
		vregs[i] = fn.NewVReg()
		b.Append(&asmir.Instr{Op: asmir.Mov, A: vregs[i], HasA: true, B: asmir.Imm(int64(i)), HasB: true})
	}
	for i := 1; i < n; i++ {
		b.Append(&asmir.Instr{Op: asmir.Add, A: vregs[0], HasA: true, B: vregs[i], HasB: true})
	}
	b.Append(&asmir.Instr{Op: asmir.Ret})
	return fn
}

func TestAllocateColorsEveryVirtualRegister(t *testing.T) {
	fn := buildAllLiveFunc(20)
	if err := Allocate(fn); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	for _, b := range fn.Blocks {
		for _, in := range b.Insts {
			for _, o := range append(append([]asmir.Operand{}, in.AllDefs()...), in.AllUses()...) {
				if o.Kind == asmir.OpVReg {
					t.Fatalf("uncolored virtual register remains: %+v in %+v", o, in)
				}
			}
		}
	}
}

func TestAllocateDropsTrivialSelfMoves(t *testing.T) {
	fn := buildAllLiveFunc(20)
	if err := Allocate(fn); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	for _, b := range fn.Blocks {
		for _, in := range b.Insts {
			if in.Op == asmir.Mov && in.HasA && in.HasB && in.A == in.B {
				t.Fatalf("mov r,r survived allocation: %+v", in)
			}
		}
	}
}

func TestInterferingRegistersNeverShareAColor(t *testing.T) {
	fn := buildAllLiveFunc(20)
	live := computeLiveness(fn)
	g := buildInterference(fn, live)

	colors := map[int]int{}
	for iter := 0; ; iter++ {
		if iter > fn.NumVRegs+16 {
			t.Fatal("tryColor did not converge within the spill-retry bound")
		}
		c, spilled, err := tryColor(fn)
		if err != nil {
			t.Fatalf("tryColor: %v", err)
		}
		if len(spilled) == 0 {
			colors = map[int]int{}
			for vr, r := range c {
				colors[vr] = int(r)
			}
			break
		}
		rewriteSpills(fn, spilled)
		g = buildInterference(fn, computeLiveness(fn))
	}

	for a, na := range g.nodes {
		if a.Kind != asmir.OpVReg {
			continue
		}
		ca, ok := colors[a.VReg]
		if !ok {
			continue // spilled to a stack slot, not colored
		}
		for b := range na.adj {
			if b.Kind != asmir.OpVReg || b == a {
				continue
			}
			cb, ok := colors[b.VReg]
			if !ok {
				continue
			}
			if ca == cb {
				t.Fatalf("interfering vregs %d and %d were both colored %d", a.VReg, b.VReg, ca)
			}
		}
	}
}

func TestAllocateHandlesASmallNonSpillingFunction(t *testing.T) {
	fn := buildAllLiveFunc(3)
	if err := Allocate(fn); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if fn.SpillSlots != 0 {
		t.Fatalf("expected no spills for a 3-register function, got %d slots", fn.SpillSlots)
	}
}
