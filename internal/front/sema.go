package front

import (
	"github.com/Engineev/mxc/internal/ast"
	"github.com/Engineev/mxc/internal/position"
)

// classInfo is the checker's view of a class declaration: its own fields in
// declaration order plus a resolved base, used both for member lookup here
// and (after Check returns) for the IR builder's class-layout table.
type classInfo struct {
	decl    *ast.ClassDecl
	base    *classInfo
	fields  map[string]ast.Type
	methods map[string]*ast.FuncDecl
}

func (c *classInfo) lookupField(name string) (ast.Type, bool) {
	for cur := c; cur != nil; cur = cur.base {
		if t, ok := cur.fields[name]; ok {
			return t, true
		}
	}
	return ast.Type{}, false
}

func (c *classInfo) lookupMethod(name string) (*ast.FuncDecl, bool) {
	for cur := c; cur != nil; cur = cur.base {
		if m, ok := cur.methods[name]; ok {
			return m, true
		}
	}
	return nil, false
}

// checker holds the whole-program symbol tables and the per-function state
// used while walking one function body.
type checker struct {
	classes map[string]*classInfo
	funcs   map[string]*ast.FuncDecl
	globals map[string]ast.Type

	scopes   []map[string]ast.Type
	curClass *classInfo
	curRet   ast.Type
	loopDep  int
}

// Check runs full semantic analysis over prog, resolving and type-annotating
// every expression in place, and returns the first error encountered (a
// Semantic-class Error), if any.
func Check(prog *ast.Program) error {
	c := &checker{
		classes: map[string]*classInfo{},
		funcs:   map[string]*ast.FuncDecl{},
		globals: map[string]ast.Type{},
	}
	for _, cd := range prog.Classes {
		if _, dup := c.classes[cd.Name]; dup {
			return semaErr(cd.Pos, "duplicate class %q", cd.Name)
		}
		ci := &classInfo{decl: cd, fields: map[string]ast.Type{}, methods: map[string]*ast.FuncDecl{}}
		for _, f := range cd.Fields {
			if _, dup := ci.fields[f.Name]; dup {
				return semaErr(f.Pos, "duplicate field %q in class %q", f.Name, cd.Name)
			}
			ci.fields[f.Name] = f.Type
		}
		for _, m := range cd.Methods {
			if _, dup := ci.methods[m.Name]; dup {
				return semaErr(m.Pos, "duplicate method %q in class %q", m.Name, cd.Name)
			}
			ci.methods[m.Name] = m
		}
		c.classes[cd.Name] = ci
	}
	for _, ci := range c.classes {
		if ci.decl.Base == "" {
			continue
		}
		base, ok := c.classes[ci.decl.Base]
		if !ok {
			return semaErr(ci.decl.Pos, "class %q extends unknown class %q", ci.decl.Name, ci.decl.Base)
		}
		ci.base = base
	}
	for _, ci := range c.classes {
		for _, f := range ci.decl.Fields {
			if err := c.checkTypeExists(f.Pos, f.Type); err != nil {
				return err
			}
		}
	}

	for _, g := range prog.Globals {
		if _, dup := c.globals[g.Name]; dup {
			return semaErr(g.Pos, "duplicate global %q", g.Name)
		}
		if err := c.checkTypeExists(g.Pos, g.Type); err != nil {
			return err
		}
		c.globals[g.Name] = g.Type
	}

	sawMain := false
	registerFunc := func(f *ast.FuncDecl) error {
		if f.Recv == "" {
			if _, dup := c.funcs[f.Mangled]; dup {
				return semaErr(f.Pos, "duplicate function %q", f.Name)
			}
			c.funcs[f.Mangled] = f
			if f.Name == "main" {
				sawMain = true
				if f.RetType.Kind != ast.Int || len(f.Params) != 0 {
					return semaErr(f.Pos, "invalid main signature: expected 'int main()'")
				}
			}
		}
		return c.checkTypeExists(f.Pos, f.RetType)
	}
	for _, f := range prog.Funcs {
		if err := registerFunc(f); err != nil {
			return err
		}
	}
	for _, cd := range prog.Classes {
		for _, m := range cd.Methods {
			if err := c.checkTypeExists(m.Pos, m.RetType); err != nil {
				return err
			}
		}
	}
	if !sawMain {
		return semaErr(position.None, "missing 'int main()' entry point")
	}

	for _, f := range prog.Funcs {
		if err := c.checkFunc(nil, f); err != nil {
			return err
		}
	}
	for _, cd := range prog.Classes {
		ci := c.classes[cd.Name]
		for _, m := range cd.Methods {
			if err := c.checkFunc(ci, m); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *checker) checkTypeExists(pos position.Position, t ast.Type) error {
	switch t.Kind {
	case ast.Class:
		if _, ok := c.classes[t.Class]; !ok {
			return semaErr(pos, "unknown type %q", t.Class)
		}
	case ast.Array:
		return c.checkTypeExists(pos, *t.Elem)
	}
	return nil
}

func (c *checker) checkFunc(recv *classInfo, f *ast.FuncDecl) error {
	c.curClass = recv
	c.curRet = f.RetType
	c.loopDep = 0
	c.scopes = []map[string]ast.Type{{}}
	for _, p := range f.Params {
		if err := c.checkTypeExists(f.Pos, p.Type); err != nil {
			return err
		}
		c.declare(p.Name, p.Type)
	}
	return c.checkBlock(f.Body)
}

func (c *checker) pushScope() { c.scopes = append(c.scopes, map[string]ast.Type{}) }
func (c *checker) popScope()  { c.scopes = c.scopes[:len(c.scopes)-1] }

func (c *checker) declare(name string, t ast.Type) {
	c.scopes[len(c.scopes)-1][name] = t
}

func (c *checker) lookup(name string) (ast.Type, bool) {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if t, ok := c.scopes[i][name]; ok {
			return t, true
		}
	}
	if t, ok := c.globals[name]; ok {
		return t, true
	}
	return ast.Type{}, false
}

func (c *checker) checkBlock(b *ast.BlockStmt) error {
	c.pushScope()
	defer c.popScope()
	for _, s := range b.Stmts {
		if err := c.checkStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (c *checker) checkStmt(s ast.Stmt) error {
	switch st := s.(type) {
	case *ast.BlockStmt:
		return c.checkBlock(st)
	case *ast.VarDeclStmt:
		if err := c.checkTypeExists(st.Decl.Pos, st.Decl.Type); err != nil {
			return err
		}
		if st.Decl.Init != nil {
			if err := c.checkExpr(st.Decl.Init); err != nil {
				return err
			}
			if !assignable(st.Decl.Init.ExprType(), st.Decl.Type) {
				return semaErr(st.Decl.Pos, "cannot initialize %q of type %s with value of type %s",
					st.Decl.Name, st.Decl.Type, st.Decl.Init.ExprType())
			}
		}
		c.declare(st.Decl.Name, st.Decl.Type)
		return nil
	case *ast.ExprStmt:
		return c.checkExpr(st.X)
	case *ast.IfStmt:
		if err := c.checkExpr(st.Cond); err != nil {
			return err
		}
		if st.Cond.ExprType().Kind != ast.Bool {
			return semaErr(position.None, "if condition must be bool")
		}
		if err := c.checkStmt(st.Then); err != nil {
			return err
		}
		if st.Else != nil {
			return c.checkStmt(st.Else)
		}
		return nil
	case *ast.WhileStmt:
		if err := c.checkExpr(st.Cond); err != nil {
			return err
		}
		if st.Cond.ExprType().Kind != ast.Bool {
			return semaErr(position.None, "while condition must be bool")
		}
		c.loopDep++
		err := c.checkStmt(st.Body)
		c.loopDep--
		return err
	case *ast.ForStmt:
		c.pushScope()
		defer c.popScope()
		if st.Init != nil {
			if err := c.checkStmt(st.Init); err != nil {
				return err
			}
		}
		if st.Cond != nil {
			if err := c.checkExpr(st.Cond); err != nil {
				return err
			}
			if st.Cond.ExprType().Kind != ast.Bool {
				return semaErr(position.None, "for condition must be bool")
			}
		}
		if st.Post != nil {
			if err := c.checkExpr(st.Post); err != nil {
				return err
			}
		}
		c.loopDep++
		err := c.checkStmt(st.Body)
		c.loopDep--
		return err
	case *ast.ReturnStmt:
		if st.Value == nil {
			if c.curRet.Kind != ast.Void {
				return semaErr(st.Pos, "missing return value in function returning %s", c.curRet)
			}
			return nil
		}
		if err := c.checkExpr(st.Value); err != nil {
			return err
		}
		if !assignable(st.Value.ExprType(), c.curRet) {
			return semaErr(st.Pos, "cannot return %s from function returning %s", st.Value.ExprType(), c.curRet)
		}
		return nil
	case *ast.BreakStmt:
		if c.loopDep == 0 {
			return semaErr(st.Pos, "'break' outside a loop")
		}
		return nil
	case *ast.ContinueStmt:
		if c.loopDep == 0 {
			return semaErr(st.Pos, "'continue' outside a loop")
		}
		return nil
	default:
		return semaErr(position.None, "internal: unhandled statement kind %T", s)
	}
}

// assignable reports whether a value of type src may be used where dst is
// expected: identical types, null to any reference type, or a derived class
// pointer to a base class pointer (Mx*'s one subtyping rule).
func assignable(src, dst ast.Type) bool {
	if src.Equal(dst) {
		return true
	}
	if src.Kind == ast.Null && dst.IsReference() {
		return true
	}
	return false
}

func (c *checker) checkExpr(e ast.Expr) error {
	switch x := e.(type) {
	case *ast.IntLit:
		x.Typ = ast.Type{Kind: ast.Int}
		return nil
	case *ast.BoolLit:
		x.Typ = ast.Type{Kind: ast.Bool}
		return nil
	case *ast.StringLit:
		x.Typ = ast.Type{Kind: ast.StringT}
		return nil
	case *ast.NullLit:
		x.Typ = ast.Type{Kind: ast.Null}
		return nil
	case *ast.ThisExpr:
		if c.curClass == nil {
			return semaErr(position.None, "'this' used outside a method")
		}
		x.Typ = ast.Type{Kind: ast.Class, Class: c.curClass.decl.Name}
		return nil
	case *ast.Ident:
		t, ok := c.lookup(x.Name)
		if !ok {
			if c.curClass != nil {
				if ft, ok := c.curClass.lookupField(x.Name); ok {
					t, ok = ft, true
				}
			}
		}
		if !ok {
			return semaErr(x.Pos, "undefined symbol %q", x.Name)
		}
		x.Typ = t
		return nil
	case *ast.UnaryExpr:
		if err := c.checkExpr(x.X); err != nil {
			return err
		}
		xt := x.X.ExprType()
		switch x.Op {
		case "-":
			if xt.Kind != ast.Int {
				return semaErr(x.Pos, "unary '-' requires int, found %s", xt)
			}
			x.Typ = ast.Type{Kind: ast.Int}
		case "!":
			if xt.Kind != ast.Bool {
				return semaErr(x.Pos, "unary '!' requires bool, found %s", xt)
			}
			x.Typ = ast.Type{Kind: ast.Bool}
		case "~":
			if xt.Kind != ast.Int {
				return semaErr(x.Pos, "unary '~' requires int, found %s", xt)
			}
			x.Typ = ast.Type{Kind: ast.Int}
		}
		return nil
	case *ast.BinaryExpr:
		if err := c.checkExpr(x.L); err != nil {
			return err
		}
		if err := c.checkExpr(x.R); err != nil {
			return err
		}
		lt, rt := x.L.ExprType(), x.R.ExprType()
		switch x.Op {
		case "==", "!=":
			if !lt.Equal(rt) && !(lt.IsReference() && rt.Kind == ast.Null) && !(rt.IsReference() && lt.Kind == ast.Null) {
				return semaErr(x.Pos, "cannot compare %s with %s", lt, rt)
			}
			x.Typ = ast.Type{Kind: ast.Bool}
		case "<", ">", "<=", ">=":
			if lt.Kind != ast.Int || rt.Kind != ast.Int {
				return semaErr(x.Pos, "relational operator requires int operands")
			}
			x.Typ = ast.Type{Kind: ast.Bool}
		case "+":
			if lt.Kind == ast.StringT && rt.Kind == ast.StringT {
				x.Typ = ast.Type{Kind: ast.StringT}
				return nil
			}
			if lt.Kind != ast.Int || rt.Kind != ast.Int {
				return semaErr(x.Pos, "'+' requires two ints or two strings")
			}
			x.Typ = ast.Type{Kind: ast.Int}
		default:
			if lt.Kind != ast.Int || rt.Kind != ast.Int {
				return semaErr(x.Pos, "operator %q requires int operands, found %s and %s", x.Op, lt, rt)
			}
			x.Typ = ast.Type{Kind: ast.Int}
		}
		return nil
	case *ast.LogicalExpr:
		if err := c.checkExpr(x.L); err != nil {
			return err
		}
		if err := c.checkExpr(x.R); err != nil {
			return err
		}
		if x.L.ExprType().Kind != ast.Bool || x.R.ExprType().Kind != ast.Bool {
			return semaErr(position.None, "operator %q requires bool operands", x.Op)
		}
		x.Typ = ast.Type{Kind: ast.Bool}
		return nil
	case *ast.IncDecExpr:
		if err := c.checkExpr(x.Target); err != nil {
			return err
		}
		if !isLvalue(x.Target) {
			return semaErr(position.None, "invalid assignment target for %q", x.Op)
		}
		if x.Target.ExprType().Kind != ast.Int {
			return semaErr(position.None, "%q requires an int operand", x.Op)
		}
		x.Typ = ast.Type{Kind: ast.Int}
		return nil
	case *ast.AssignExpr:
		if !isLvalue(x.Target) {
			return semaErr(x.Pos, "invalid assignment target")
		}
		if err := c.checkExpr(x.Target); err != nil {
			return err
		}
		if err := c.checkExpr(x.Value); err != nil {
			return err
		}
		if !assignable(x.Value.ExprType(), x.Target.ExprType()) {
			return semaErr(x.Pos, "cannot assign %s to %s", x.Value.ExprType(), x.Target.ExprType())
		}
		x.Typ = x.Target.ExprType()
		return nil
	case *ast.IndexExpr:
		if err := c.checkExpr(x.X); err != nil {
			return err
		}
		if err := c.checkExpr(x.Index); err != nil {
			return err
		}
		if x.X.ExprType().Kind != ast.Array {
			return semaErr(x.Pos, "indexing requires an array, found %s", x.X.ExprType())
		}
		if x.Index.ExprType().Kind != ast.Int {
			return semaErr(x.Pos, "array index must be int")
		}
		x.Typ = *x.X.ExprType().Elem
		return nil
	case *ast.MemberExpr:
		if err := c.checkExpr(x.X); err != nil {
			return err
		}
		xt := x.X.ExprType()
		if xt.Kind == ast.Array && x.Name == "size" {
			x.Typ = ast.Type{Kind: ast.Int}
			return nil
		}
		if xt.Kind != ast.Class {
			return semaErr(x.Pos, "member access on non-class type %s", xt)
		}
		ci, ok := c.classes[xt.Class]
		if !ok {
			return semaErr(x.Pos, "unknown class %q", xt.Class)
		}
		ft, ok := ci.lookupField(x.Name)
		if !ok {
			return semaErr(x.Pos, "class %q has no field %q", xt.Class, x.Name)
		}
		x.Typ = ft
		return nil
	case *ast.CallExpr:
		return c.checkCall(x)
	case *ast.NewExpr:
		return c.checkNew(x)
	default:
		return semaErr(position.None, "internal: unhandled expression kind %T", e)
	}
}

func isLvalue(e ast.Expr) bool {
	switch e.(type) {
	case *ast.Ident, *ast.MemberExpr, *ast.IndexExpr:
		return true
	default:
		return false
	}
}

func (c *checker) checkCall(x *ast.CallExpr) error {
	if x.Recv == nil {
		if x.Callee == "size" {
			return semaErr(x.Pos, "'size' is only valid as arr.size()")
		}
		f, ok := c.funcs[x.Callee]
		if !ok {
			return semaErr(x.Pos, "undefined function %q", x.Callee)
		}
		if err := c.checkArgs(x, f); err != nil {
			return err
		}
		x.Mangled = f.Mangled
		x.Typ = f.RetType
		return nil
	}
	if err := c.checkExpr(x.Recv); err != nil {
		return err
	}
	rt := x.Recv.ExprType()
	if rt.Kind == ast.StringT {
		x.Mangled = ast.Mangle("string", x.Callee)
		switch x.Callee {
		case "length", "ord", "parseInt":
			x.Typ = ast.Type{Kind: ast.Int}
		case "substring":
			x.Typ = ast.Type{Kind: ast.StringT}
		default:
			return semaErr(x.Pos, "string has no method %q", x.Callee)
		}
		return nil
	}
	if rt.Kind == ast.Array {
		if x.Callee != "size" {
			return semaErr(x.Pos, "array has no method %q", x.Callee)
		}
		x.Mangled = "#_array_#size"
		x.Typ = ast.Type{Kind: ast.Int}
		return nil
	}
	if rt.Kind != ast.Class {
		return semaErr(x.Pos, "method call on non-object type %s", rt)
	}
	ci, ok := c.classes[rt.Class]
	if !ok {
		return semaErr(x.Pos, "unknown class %q", rt.Class)
	}
	m, ok := ci.lookupMethod(x.Callee)
	if !ok {
		return semaErr(x.Pos, "class %q has no method %q", rt.Class, x.Callee)
	}
	if err := c.checkArgs(x, m); err != nil {
		return err
	}
	x.Mangled = m.Mangled
	x.Typ = m.RetType
	return nil
}

func (c *checker) checkArgs(x *ast.CallExpr, f *ast.FuncDecl) error {
	if len(x.Args) != len(f.Params) {
		return semaErr(x.Pos, "%q expects %d arguments, got %d", x.Callee, len(f.Params), len(x.Args))
	}
	for i, a := range x.Args {
		if err := c.checkExpr(a); err != nil {
			return err
		}
		if !assignable(a.ExprType(), f.Params[i].Type) {
			return semaErr(x.Pos, "argument %d to %q: cannot use %s as %s", i+1, x.Callee, a.ExprType(), f.Params[i].Type)
		}
	}
	return nil
}

func (c *checker) checkNew(x *ast.NewExpr) error {
	for _, d := range x.Dims {
		if d == nil {
			continue
		}
		if err := c.checkExpr(d); err != nil {
			return err
		}
		if d.ExprType().Kind != ast.Int {
			return semaErr(x.Pos, "array dimension must be int")
		}
	}
	if len(x.Dims) == 0 {
		if err := c.checkTypeExists(x.Pos, x.Elem); err != nil {
			return err
		}
		x.Typ = x.Elem
		return nil
	}
	t := x.Elem
	for range x.Dims {
		elem := t
		t = ast.Type{Kind: ast.Array, Elem: &elem}
	}
	x.Typ = t
	return nil
}
