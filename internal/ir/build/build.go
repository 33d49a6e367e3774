// Package build lowers an annotated Mx* AST (internal/ast, produced by
// internal/front) into the memory-form (non-SSA) IR of internal/ir: every
// source local is an entry-block Alloca plus Load/Store at each use, class
// member access is pointer arithmetic against a ClassLayout, arrays carry
// a {length, data} header, string literals are interned as globals seeded
// by a synthetic _init_global_vars_, and short-circuit "&&"/"||" lower to
// a diamond CFG with a trailing phi.
package build

import (
	"strconv"

	"github.com/pkg/errors"

	"github.com/Engineev/mxc/internal/ast"
	"github.com/Engineev/mxc/internal/ir"
	"github.com/Engineev/mxc/internal/runtime"
)

const ptrSize = 8

// loopCtx records the jump targets a break/continue inside the current
// loop must resolve to.
type loopCtx struct {
	continueLabel int
	breakLabel    int
}

// builder holds whole-module state (class layouts, string interning) plus
// the mutable cursor (current function/block/scope) used while lowering one
// function body at a time.
type builder struct {
	mod     *ir.Module
	layouts map[string]*ClassLayout
	globals map[string]bool // declared global-variable names, for Ident fallback resolution

	strGlobals map[string]string // literal value -> global name, deduplicated
	strOrder   []string          // global names in first-use order
	strValue   map[string]string // global name -> literal value
	nextStr    int

	fn        *ir.Function
	cur       *ir.BasicBlock
	scopes    []map[string]ir.Addr
	loopStack []loopCtx
	curLayout *ClassLayout
}

// Build lowers a whole program into an executable Module, including the
// fixed runtime-symbol declarations and the synthetic _init_global_vars_
// function that seeds interned string literals.
func Build(prog *ast.Program) (*ir.Module, error) {
	layouts, err := buildLayouts(prog)
	if err != nil {
		return nil, err
	}
	b := &builder{
		mod:        ir.NewModule(),
		layouts:    layouts,
		strGlobals: map[string]string{},
		strValue:   map[string]string{},
		globals:    map[string]bool{},
	}
	for _, name := range runtime.Symbols {
		b.mod.AddFunction(&ir.Function{Name: name, External: true})
	}
	for _, g := range prog.Globals {
		gv := &ir.GlobalVar{Name: b.globalVarName(g.Name), Size: ptrSize}
		if err := b.mod.AddGlobal(gv); err != nil {
			return nil, err
		}
		b.globals[g.Name] = true
	}
	for _, cd := range prog.Classes {
		b.curLayout = layouts[cd.Name]
		for _, m := range cd.Methods {
			if err := b.buildFunc(m); err != nil {
				return nil, err
			}
		}
		b.curLayout = nil
	}
	for _, f := range prog.Funcs {
		if err := b.buildFunc(f); err != nil {
			return nil, err
		}
	}
	if err := b.buildInitGlobals(); err != nil {
		return nil, err
	}
	b.wireMainPrologue()
	return b.mod, nil
}

// wireMainPrologue prepends a call to _init_global_vars_ at the start of
// main's entry block (: "invoked from main's prologue").
func (b *builder) wireMainPrologue() {
	main, ok := b.mod.Functions["main"]
	if !ok {
		return
	}
	entry := main.Entry()
	call := main.NewInst(ir.OpCall)
	call.Callee = runtime.InitGlobalsFunc
	entry.Insts = append([]ir.InstID{call.ID()}, entry.Insts...)
}

func (b *builder) globalVarName(name string) string { return "@" + name }

// internString returns the (deduplicated) global name holding the address
// of lit, registering it for initialization by _init_global_vars_.
func (b *builder) internString(lit string) string {
	if name, ok := b.strGlobals[lit]; ok {
		return name
	}
	name := "@.str" + strconv.Itoa(b.nextStr)
	b.nextStr++
	b.strGlobals[lit] = name
	b.strValue[name] = lit
	b.strOrder = append(b.strOrder, name)
	_ = b.mod.AddGlobal(&ir.GlobalVar{Name: name, Size: ptrSize})
	return name
}

// buildInitGlobals emits the synthetic function that materializes every
// interned string literal and stores its address into the literal's global
// slot, in first-use order (map iteration order is avoided by resolving
// through the Globals list itself, which AddGlobal appends to in call
// order).
func (b *builder) buildInitGlobals() error {
	fn := ir.NewFunction(runtime.InitGlobalsFunc, nil)
	b.mod.AddFunction(fn)
	entry := fn.NewBlock()
	for _, name := range b.strOrder {
		tmp := fn.NewInst(ir.OpStrCpy)
		tmp.HasDest, tmp.Dest = true, fn.NewLocal()
		tmp.Bytes = []byte(b.strValue[name])
		entry.Append(tmp.ID())

		store := fn.NewInst(ir.OpStore)
		store.HasA, store.A = true, ir.Global(name)
		store.HasB, store.B = true, tmp.Dest
		entry.Append(store.ID())
	}
	ret := fn.NewInst(ir.OpRet)
	ret.RetVoid = true
	entry.Append(ret.ID())
	return nil
}

// ---- scope management ----

func (b *builder) pushScope() { b.scopes = append(b.scopes, map[string]ir.Addr{}) }
func (b *builder) popScope()  { b.scopes = b.scopes[:len(b.scopes)-1] }

func (b *builder) declareLocal(name string, typ ast.Type) ir.Addr {
	alloca := b.fn.NewInst(ir.OpAlloca)
	alloca.HasDest, alloca.Dest = true, b.fn.NewLocal()
	alloca.Size, alloca.HasSize = ptrSize, true
	b.fn.Entry().Append(alloca.ID())
	b.scopes[len(b.scopes)-1][name] = alloca.Dest
	return alloca.Dest
}

func (b *builder) lookupSlot(name string) (ir.Addr, bool) {
	for i := len(b.scopes) - 1; i >= 0; i-- {
		if a, ok := b.scopes[i][name]; ok {
			return a, true
		}
	}
	return ir.Addr{}, false
}

// ---- emission helpers ----

func (b *builder) emit(op ir.Op) *ir.Instruction {
	inst := b.fn.NewInst(op)
	b.cur.Append(inst.ID())
	return inst
}

func (b *builder) terminated() bool {
	if len(b.cur.Insts) == 0 {
		return false
	}
	return b.fn.Inst(b.cur.Insts[len(b.cur.Insts)-1]).IsTerminator()
}

func (b *builder) jumpTo(label int) {
	if b.terminated() {
		return
	}
	j := b.emit(ir.OpJump)
	j.Target = label
}

func (b *builder) switchTo(blk *ir.BasicBlock) { b.cur = blk }

func (b *builder) load(addr ir.Addr) ir.Addr {
	inst := b.emit(ir.OpLoad)
	inst.HasDest, inst.Dest = true, b.fn.NewLocal()
	inst.HasA, inst.A = true, addr
	return inst.Dest
}

func (b *builder) store(addr, value ir.Addr) {
	inst := b.emit(ir.OpStore)
	inst.HasA, inst.A = true, addr
	inst.HasB, inst.B = true, value
}

func (b *builder) assign(value ir.Addr) ir.Addr {
	inst := b.emit(ir.OpAssign)
	inst.HasDest, inst.Dest = true, b.fn.NewLocal()
	inst.HasA, inst.A = true, value
	return inst.Dest
}

func (b *builder) binary(k ir.ArithKind, l, r ir.Addr) ir.Addr {
	inst := b.emit(ir.OpArithBinary)
	inst.HasDest, inst.Dest = true, b.fn.NewLocal()
	inst.Arith = k
	inst.HasA, inst.A = true, l
	inst.HasB, inst.B = true, r
	return inst.Dest
}

func (b *builder) relation(k ir.ArithKind, l, r ir.Addr) ir.Addr {
	inst := b.emit(ir.OpRelation)
	inst.HasDest, inst.Dest = true, b.fn.NewLocal()
	inst.Arith = k
	inst.HasA, inst.A = true, l
	inst.HasB, inst.B = true, r
	return inst.Dest
}

func (b *builder) unary(k ir.ArithKind, x ir.Addr) ir.Addr {
	inst := b.emit(ir.OpArithUnary)
	inst.HasDest, inst.Dest = true, b.fn.NewLocal()
	inst.Arith = k
	inst.HasA, inst.A = true, x
	return inst.Dest
}

func (b *builder) mallocLit(size int64) ir.Addr {
	inst := b.emit(ir.OpMalloc)
	inst.HasDest, inst.Dest = true, b.fn.NewLocal()
	inst.HasSizeX, inst.SizeExpr = true, ir.Imm(size)
	return inst.Dest
}

func (b *builder) mallocExpr(size ir.Addr) ir.Addr {
	inst := b.emit(ir.OpMalloc)
	inst.HasDest, inst.Dest = true, b.fn.NewLocal()
	inst.HasSizeX, inst.SizeExpr = true, size
	return inst.Dest
}

func (b *builder) call(callee string, args []ir.Addr, hasResult bool) ir.Addr {
	inst := b.emit(ir.OpCall)
	inst.Callee = callee
	inst.Args = args
	if hasResult {
		inst.HasDest, inst.Dest = true, b.fn.NewLocal()
	}
	return inst.Dest
}

// buildFunc lowers one function or method body, materializing every
// parameter (including an implicit "this" for methods) as an entry-block
// Alloca+Store pair so later SSA construction sees an ordinary promotable
// variable, exactly as it would for a user-declared local.
func (b *builder) buildFunc(fd *ast.FuncDecl) error {
	var paramNames []string
	var paramTypes []ast.Type
	if fd.Recv != "" {
		paramNames = append(paramNames, strconv.Itoa(len(paramNames)))
		paramTypes = append(paramTypes, ast.Type{Kind: ast.Class, Class: fd.Recv})
	}
	for _, p := range fd.Params {
		paramNames = append(paramNames, strconv.Itoa(len(paramNames)))
		paramTypes = append(paramTypes, p.Type)
	}

	fn := ir.NewFunction(fd.Mangled, paramNames)
	b.fn = fn
	entry := fn.NewBlock()
	b.cur = entry
	b.scopes = nil
	b.pushScope()
	b.loopStack = nil

	idx := 0
	if fd.Recv != "" {
		slot := b.declareLocal("this", paramTypes[0])
		b.store(slot, ir.Local(strconv.Itoa(idx)))
		idx++
	}
	for _, p := range fd.Params {
		slot := b.declareLocal(p.Name, p.Type)
		b.store(slot, ir.Local(strconv.Itoa(idx)))
		idx++
	}

	if err := b.buildBlock(fd.Body); err != nil {
		return errors.Wrapf(err, "function %s", fd.Mangled)
	}
	if !b.terminated() {
		ret := b.emit(ir.OpRet)
		if fd.RetType.Kind == ast.Void {
			ret.RetVoid = true
		} else {
			ret.HasA, ret.A = true, ir.Imm(0)
		}
	}
	b.popScope()
	b.mod.AddFunction(fn)
	return nil
}
