package build

import (
	"testing"

	"github.com/Engineev/mxc/internal/front"
	"github.com/Engineev/mxc/internal/ir"
)

func buildSrc(t *testing.T, src string) *ir.Module {
	t.Helper()
	prog, err := front.ParseProgram(src)
	if err != nil {
		t.Fatalf("ParseProgram: %v", err)
	}
	if err := front.Check(prog); err != nil {
		t.Fatalf("Check: %v", err)
	}
	mod, err := Build(prog)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return mod
}

func countOp(fn *ir.Function, op ir.Op) int {
	n := 0
	for _, b := range fn.Blocks {
		for _, id := range b.Insts {
			if fn.Inst(id).Op == op {
				n++
			}
		}
	}
	return n
}

func TestBuildSimpleFunctionAllocatesAndReturns(t *testing.T) {
	mod := buildSrc(t, `int main() { return 1 + 2 * 3; }`)
	fn, ok := mod.Functions["main"]
	if !ok {
		t.Fatal("main not found")
	}
	if len(fn.Blocks) == 0 {
		t.Fatal("main has no blocks")
	}
	entry := fn.Blocks[0]
	term := entry.Terminator(fn)
	if term.Op != ir.OpRet {
		t.Fatalf("expected entry block to end with a call to the runtime init followed eventually by ret, got terminator op %v", term.Op)
	}
	if countOp(fn, ir.OpCall) == 0 {
		t.Fatal("expected main's prologue to wire in a call to the global-init routine")
	}
}

func TestBuildGlobalVarRoundTrip(t *testing.T) {
	mod := buildSrc(t, `
int g;
int main() { g = 7; return g; }
`)
	var found bool
	for _, gv := range mod.Globals {
		if gv.Name == "@g" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a global named @g, globals = %+v", mod.Globals)
	}
	fn := mod.Functions["main"]
	if countOp(fn, ir.OpStore) == 0 {
		t.Fatal("expected a store to the global slot")
	}
	if countOp(fn, ir.OpLoad) == 0 {
		t.Fatal("expected a load from the global slot")
	}
}

func TestBuildClassMethodUsesThis(t *testing.T) {
	mod := buildSrc(t, `
class Counter {
	int x;
	void bump() { this.x = this.x + 1; }
	int get() { return this.x; }
}
int main() {
	Counter c = new Counter();
	c.bump();
	return c.get();
}
`)
	bump, ok := mod.Functions["#Counter#bump"]
	if !ok {
		t.Fatalf("mangled method not found, functions = %v", mod.FuncOrder())
	}
	if len(bump.Params) != 1 {
		t.Fatalf("bump params = %v, want [this]", bump.Params)
	}
	if countOp(bump, ir.OpLoad) == 0 || countOp(bump, ir.OpStore) == 0 {
		t.Fatal("expected this.x mutation to lower to load/store against the field address")
	}

	main := mod.Functions["main"]
	if countOp(main, ir.OpCall) < 2 {
		t.Fatalf("expected main to call the init routine plus bump/get, calls = %d", countOp(main, ir.OpCall))
	}
}

func TestBuildArrayNewLoweringAllocates(t *testing.T) {
	mod := buildSrc(t, `int main() { int[] a = new int[3]; return a[0]; }`)
	fn := mod.Functions["main"]
	if countOp(fn, ir.OpMalloc)+countOp(fn, ir.OpSAlloc) == 0 {
		t.Fatal("expected new int[3] to lower to an allocation instruction")
	}
}

func TestBuildShortCircuitAndLowersToPhiDiamond(t *testing.T) {
	mod := buildSrc(t, `
int main() {
	int a = 1;
	int b = 0;
	if (a == 1 && b == 0) {
		return 1;
	}
	return 0;
}
`)
	fn := mod.Functions["main"]
	if countOp(fn, ir.OpPhi) == 0 {
		t.Fatal("expected short-circuit && to lower to a diamond CFG with a trailing phi")
	}
	if countOp(fn, ir.OpBranch) == 0 {
		t.Fatal("expected at least one conditional branch for the && diamond")
	}
}
