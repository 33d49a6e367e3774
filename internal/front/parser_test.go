package front

import (
	"testing"

	"github.com/Engineev/mxc/internal/ast"
)

func TestParseSimpleMain(t *testing.T) {
	prog, err := ParseProgram(`int main() { return 1 + 2 * 3; }`)
	if err != nil {
		t.Fatalf("ParseProgram: %v", err)
	}
	if len(prog.Funcs) != 1 {
		t.Fatalf("got %d funcs, want 1", len(prog.Funcs))
	}
	fd := prog.Funcs[0]
	if fd.Name != "main" || fd.RetType.Kind != ast.Int {
		t.Fatalf("main decl = %+v", fd)
	}
	if len(fd.Body.Stmts) != 1 {
		t.Fatalf("body has %d stmts, want 1", len(fd.Body.Stmts))
	}
	ret, ok := fd.Body.Stmts[0].(*ast.ReturnStmt)
	if !ok {
		t.Fatalf("stmt is %T, want *ast.ReturnStmt", fd.Body.Stmts[0])
	}
	bin, ok := ret.Value.(*ast.BinaryExpr)
	if !ok || bin.Op != "+" {
		t.Fatalf("return value = %+v", ret.Value)
	}
}

func TestParseClassWithMethod(t *testing.T) {
	src := `
class Counter {
	int x;
	void bump() { this.x = this.x + 1; }
}
`
	prog, err := ParseProgram(src)
	if err != nil {
		t.Fatalf("ParseProgram: %v", err)
	}
	if len(prog.Classes) != 1 {
		t.Fatalf("got %d classes, want 1", len(prog.Classes))
	}
	cd := prog.Classes[0]
	if len(cd.Fields) != 1 || cd.Fields[0].Name != "x" {
		t.Fatalf("fields = %+v", cd.Fields)
	}
	if len(cd.Methods) != 1 || cd.Methods[0].Mangled != "#Counter#bump" {
		t.Fatalf("methods = %+v", cd.Methods)
	}
}

func TestParseArrayNewNested(t *testing.T) {
	prog, err := ParseProgram(`int main() { int[][] a = new int[3][4]; return a[2][3]; }`)
	if err != nil {
		t.Fatalf("ParseProgram: %v", err)
	}
	stmts := prog.Funcs[0].Body.Stmts
	decl, ok := stmts[0].(*ast.VarDeclStmt)
	if !ok {
		t.Fatalf("stmt 0 = %T", stmts[0])
	}
	newExpr, ok := decl.Decl.Init.(*ast.NewExpr)
	if !ok {
		t.Fatalf("init = %T", decl.Decl.Init)
	}
	if len(newExpr.Dims) != 2 {
		t.Fatalf("dims = %d, want 2", len(newExpr.Dims))
	}
	if newExpr.Elem.Kind != ast.Int {
		t.Fatalf("elem = %+v", newExpr.Elem)
	}
}

func TestParseForLoop(t *testing.T) {
	src := `int main() { int s = 0; for (int i = 0; i < 10; i = i + 1) s = s + i; return s; }`
	prog, err := ParseProgram(src)
	if err != nil {
		t.Fatalf("ParseProgram: %v", err)
	}
	stmts := prog.Funcs[0].Body.Stmts
	if len(stmts) != 3 {
		t.Fatalf("got %d top-level stmts, want 3", len(stmts))
	}
	forStmt, ok := stmts[1].(*ast.ForStmt)
	if !ok {
		t.Fatalf("stmt 1 = %T, want *ast.ForStmt", stmts[1])
	}
	if forStmt.Init == nil || forStmt.Cond == nil || forStmt.Post == nil {
		t.Fatalf("for stmt missing a clause: %+v", forStmt)
	}
}

func TestParseSyntaxError(t *testing.T) {
	_, err := ParseProgram(`int main() { return 1 + ; }`)
	if err == nil {
		t.Fatal("expected a syntax error for a missing operand after '+'")
	}
}
