// Package isel lowers destructed (non-SSA) internal/ir functions to
// internal/backend/asmir: physical registers are made explicit only where
// the ABI or ISA demands them, everything else gets a fresh virtual
// register.
package isel

import (
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/arch/x86/x86asm"

	"github.com/Engineev/mxc/internal/backend/asmir"
	"github.com/Engineev/mxc/internal/ir"
	"github.com/Engineev/mxc/internal/ir/analysis"
	"github.com/Engineev/mxc/internal/runtime"
)

// Select lowers a whole module to assembly IR.
func Select(mod *ir.Module) (*asmir.Program, error) {
	prog := &asmir.Program{}
	for _, g := range mod.Globals {
		prog.Globals = append(prog.Globals, asmir.Global{Name: g.Name, Size: g.Size, Init: g.Init, HasInit: g.HasInit})
	}
	c := &ctx{prog: prog}
	for _, name := range mod.FuncOrder() {
		fn := mod.Functions[name]
		if fn.External {
			prog.Functions = append(prog.Functions, &asmir.Function{Name: fn.Name, External: true})
			continue
		}
		af, err := c.selectFunc(fn)
		if err != nil {
			return nil, errors.Wrapf(err, "function %s", fn.Name)
		}
		prog.Functions = append(prog.Functions, af)
	}
	return prog, nil
}

// ctx holds whole-program isel state (the fresh-string-data-global counter,
// shared since Lea'd literal blobs from StrCpy are module-level globals).
type ctx struct {
	prog       *asmir.Program
	strCounter int
}

// fctx holds one function's mutable isel state.
type fctx struct {
	prog  *ctx
	src   *ir.Function
	out   *asmir.Function
	regs  map[string]asmir.Operand // ir local name -> vreg
	globs map[string]asmir.Operand // ir global name -> vreg holding its Lea'd address
	du    *analysis.DefUse
}

func (c *ctx) selectFunc(fn *ir.Function) (*asmir.Function, error) {
	out := &asmir.Function{Name: fn.Name, Params: len(fn.Params)}
	f := &fctx{prog: c, src: fn, out: out, regs: map[string]asmir.Operand{}, globs: map[string]asmir.Operand{}, du: analysis.Build(fn)}

	entry := out.NewBlock(fn.Entry().Label)
	f.marshalParams(entry)
	f.materializeGlobals(entry)

	for _, b := range fn.Blocks {
		var blk *asmir.Block
		if b.Label == fn.Entry().Label {
			blk = entry
		} else {
			blk = out.NewBlock(b.Label)
		}
		if err := f.selectBlock(blk, b); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// marshalParams copies each incoming argument from its ABI location (a
// fixed register for the first six, an incoming stack slot beyond that)
// into a fresh virtual register, argument marshalling
// policy.
func (f *fctx) marshalParams(entry *asmir.Block) {
	for i, name := range f.src.Params {
		dst := f.out.NewVReg()
		f.regs[name] = dst
		var src asmir.Operand
		if i < len(asmir.ArgRegs) {
			src = asmir.PReg(asmir.ArgRegs[i])
		} else {
			src = asmir.ArgSlot(i - len(asmir.ArgRegs))
		}
		entry.Append(&asmir.Instr{Op: asmir.Mov, A: dst, HasA: true, B: src, HasB: true})
	}
}

// materializeGlobals Lea's every global register this function references
// into a dedicated virtual register once, at entry.
func (f *fctx) materializeGlobals(entry *asmir.Block) {
	seen := map[string]bool{}
	for _, b := range f.src.Blocks {
		for _, id := range b.Insts {
			inst := f.src.Inst(id)
			for _, a := range inst.Uses(nil) {
				if a.IsGlobal() && !seen[a.Name] {
					seen[a.Name] = true
					dst := f.out.NewVReg()
					f.globs[a.Name] = dst
					entry.Append(&asmir.Instr{Op: asmir.Lea, A: dst, HasA: true, B: asmir.Global(a.Name), HasB: true})
				}
			}
		}
	}
}

func (f *fctx) vregFor(name string) asmir.Operand {
	if v, ok := f.regs[name]; ok {
		return v
	}
	v := f.out.NewVReg()
	f.regs[name] = v
	return v
}

// operand translates a non-destination ir.Addr into an assembly operand.
func (f *fctx) operand(a ir.Addr) asmir.Operand {
	switch a.Kind {
	case ir.AddrImm:
		return asmir.Imm(a.Imm)
	case ir.AddrLocal:
		return f.vregFor(a.Name)
	case ir.AddrGlobal:
		return f.globs[a.Name]
	default:
		return asmir.Operand{}
	}
}

var arithToMnemonic = map[ir.ArithKind]asmir.Mnemonic{
	ir.KBitOr: asmir.Or, ir.KBitAnd: asmir.And, ir.KXor: asmir.Xor,
	ir.KShl: asmir.Shl, ir.KShr: asmir.Shr,
	ir.KAdd: asmir.Add, ir.KSub: asmir.Sub, ir.KMul: asmir.IMul,
}

var relToCond = map[ir.ArithKind]asmir.Cond{
	ir.KEq: asmir.CondE, ir.KNe: asmir.CondNE,
	ir.KLt: asmir.CondL, ir.KGt: asmir.CondG,
	ir.KLe: asmir.CondLE, ir.KGe: asmir.CondGE,
}

func (f *fctx) selectBlock(out *asmir.Block, b *ir.BasicBlock) error {
	insts := b.Insts
	for idx := 0; idx < len(insts); idx++ {
		inst := f.src.Inst(insts[idx])
		if inst.IsDeleted() {
			continue
		}
		if inst.Op == ir.OpRelation {
			if next := f.peepholeBranch(insts, idx); next != nil {
				f.emitRelationBranch(out, inst, next)
				idx++ // consumed the following Branch too
				continue
			}
		}
		if err := f.selectInst(out, inst); err != nil {
			return err
		}
	}
	return nil
}

// peepholeBranch returns the Branch instruction immediately following a
// Relation when that Relation's destination has exactly one use (the
// branch itself), the shape that can be fused into a single compare-and-jump.
func (f *fctx) peepholeBranch(insts []ir.InstID, idx int) *ir.Instruction {
	if idx+1 >= len(insts) {
		return nil
	}
	rel := f.src.Inst(insts[idx])
	next := f.src.Inst(insts[idx+1])
	if next.Op != ir.OpBranch || !next.HasA || !next.A.IsLocal() || next.A.Name != rel.Dest.Name {
		return nil
	}
	if len(f.du.Uses[rel.Dest.Name]) != 1 {
		return nil
	}
	return next
}

func (f *fctx) emitRelationBranch(out *asmir.Block, rel, br *ir.Instruction) {
	a, b := f.operand(rel.A), f.operand(rel.B)
	out.Append(&asmir.Instr{Op: asmir.Cmp, A: a, HasA: true, B: b, HasB: true})
	out.Append(&asmir.Instr{Op: asmir.Jcc, Cond: relToCond[rel.Arith], Target: br.Then})
	out.Append(&asmir.Instr{Op: asmir.Jmp, Target: br.Else})
}

func (f *fctx) selectInst(out *asmir.Block, inst *ir.Instruction) error {
	switch inst.Op {
	case ir.OpAssign:
		dst := f.vregFor(inst.Dest.Name)
		out.Append(&asmir.Instr{Op: asmir.Mov, A: dst, HasA: true, B: f.operand(inst.A), HasB: true})

	case ir.OpArithUnary:
		dst := f.vregFor(inst.Dest.Name)
		out.Append(&asmir.Instr{Op: asmir.Mov, A: dst, HasA: true, B: f.operand(inst.A), HasB: true})
		m := asmir.Neg
		if inst.Arith == ir.KBitNot {
			m = asmir.Not
		}
		out.Append(&asmir.Instr{Op: m, A: dst, HasA: true})

	case ir.OpArithBinary:
		f.selectBinary(out, inst)

	case ir.OpRelation:
		f.selectRelation(out, inst)

	case ir.OpAlloca, ir.OpSAlloc:
		dst := f.vregFor(inst.Dest.Name)
		size := inst.Size
		slot := f.out.SpillSlots
		f.out.SpillSlots += int((size + 7) / 8)
		out.Append(&asmir.Instr{Op: asmir.Lea, A: dst, HasA: true, B: asmir.Slot(slot), HasB: true})

	case ir.OpMalloc:
		sz := f.operand(inst.SizeExpr)
		out.Append(&asmir.Instr{Op: asmir.Mov, A: asmir.PReg(asmir.ArgRegs[0]), HasA: true, B: sz, HasB: true})
		out.Append(&asmir.Instr{Op: asmir.Call, Callee: "__alloc", External: true,
			ImplicitUses: []x86asm.Reg{asmir.ArgRegs[0]}, ImplicitDefs: []x86asm.Reg{asmir.ReturnReg}})
		if inst.HasDest {
			dst := f.vregFor(inst.Dest.Name)
			out.Append(&asmir.Instr{Op: asmir.Mov, A: dst, HasA: true, B: asmir.PReg(asmir.ReturnReg), HasB: true})
		}

	case ir.OpStrCpy:
		global := f.internBytes(inst.Bytes)
		out.Append(&asmir.Instr{Op: asmir.Mov, A: asmir.PReg(asmir.ArgRegs[0]), HasA: true, B: asmir.Global(global), HasB: true})
		out.Append(&asmir.Instr{Op: asmir.Mov, A: asmir.PReg(asmir.ArgRegs[1]), HasA: true, B: asmir.Imm(int64(len(inst.Bytes))), HasB: true})
		out.Append(&asmir.Instr{Op: asmir.Call, Callee: runtime.CtorName("string"), External: true,
			ImplicitUses: []x86asm.Reg{asmir.ArgRegs[0], asmir.ArgRegs[1]}, ImplicitDefs: []x86asm.Reg{asmir.ReturnReg}})
		if inst.HasDest {
			dst := f.vregFor(inst.Dest.Name)
			out.Append(&asmir.Instr{Op: asmir.Mov, A: dst, HasA: true, B: asmir.PReg(asmir.ReturnReg), HasB: true})
		}

	case ir.OpLoad:
		dst := f.vregFor(inst.Dest.Name)
		out.Append(&asmir.Instr{Op: asmir.Mov, A: dst, HasA: true, B: f.operand(inst.A), HasB: true})

	case ir.OpStore:
		out.Append(&asmir.Instr{Op: asmir.Mov, A: f.operand(inst.A), HasA: true, B: f.operand(inst.B), HasB: true})

	case ir.OpJump:
		out.Append(&asmir.Instr{Op: asmir.Jmp, Target: inst.Target})

	case ir.OpBranch:
		f.selectBranch(out, inst)

	case ir.OpRet:
		f.selectRet(out, inst)

	case ir.OpCall:
		return f.selectCall(out, inst)

	case ir.OpComment, ir.OpAttachedComment, ir.OpDeleted:
		// no assembly emitted

	default:
		return errors.Errorf("internal: unhandled IR op %s reached instruction selection", inst.Op)
	}
	return nil
}

func (f *fctx) selectBinary(out *asmir.Block, inst *ir.Instruction) {
	dst := f.vregFor(inst.Dest.Name)
	a, b := f.operand(inst.A), f.operand(inst.B)

	switch inst.Arith {
	case ir.KDiv, ir.KMod:
		divisor := b
		if divisor.Kind == asmir.OpImm {
			tmp := f.out.NewVReg()
			out.Append(&asmir.Instr{Op: asmir.Mov, A: tmp, HasA: true, B: divisor, HasB: true})
			divisor = tmp
		}
		out.Append(&asmir.Instr{Op: asmir.Mov, A: asmir.PReg(x86asm.RAX), HasA: true, B: a, HasB: true})
		out.Append(&asmir.Instr{Op: asmir.Mov, A: asmir.PReg(x86asm.RDX), HasA: true, B: asmir.Imm(0), HasB: true})
		out.Append(&asmir.Instr{Op: asmir.IDiv, A: divisor, HasA: true,
			ImplicitUses: []x86asm.Reg{x86asm.RAX, x86asm.RDX}, ImplicitDefs: []x86asm.Reg{x86asm.RAX, x86asm.RDX}})
		result := x86asm.RAX
		if inst.Arith == ir.KMod {
			result = x86asm.RDX
		}
		out.Append(&asmir.Instr{Op: asmir.Mov, A: dst, HasA: true, B: asmir.PReg(result), HasB: true})

	case ir.KShl, ir.KShr:
		out.Append(&asmir.Instr{Op: asmir.Mov, A: dst, HasA: true, B: a, HasB: true})
		out.Append(&asmir.Instr{Op: asmir.Mov, A: asmir.PReg(x86asm.CL), HasA: true, B: b, HasB: true})
		out.Append(&asmir.Instr{Op: arithToMnemonic[inst.Arith], A: dst, HasA: true, B: asmir.PReg(x86asm.CL), HasB: true})

	default:
		out.Append(&asmir.Instr{Op: asmir.Mov, A: dst, HasA: true, B: a, HasB: true})
		out.Append(&asmir.Instr{Op: arithToMnemonic[inst.Arith], A: dst, HasA: true, B: b, HasB: true})
	}
}

func (f *fctx) selectRelation(out *asmir.Block, inst *ir.Instruction) {
	dst := f.vregFor(inst.Dest.Name)
	out.Append(&asmir.Instr{Op: asmir.Cmp, A: f.operand(inst.A), HasA: true, B: f.operand(inst.B), HasB: true})
	out.Append(&asmir.Instr{Op: asmir.Mov, A: dst, HasA: true, B: asmir.Imm(0), HasB: true})
	out.Append(&asmir.Instr{Op: asmir.SetFromCond, Cond: relToCond[inst.Arith], A: dst, HasA: true})
}

func (f *fctx) selectBranch(out *asmir.Block, inst *ir.Instruction) {
	out.Append(&asmir.Instr{Op: asmir.Cmp, A: f.operand(inst.A), HasA: true, B: asmir.Imm(0), HasB: true})
	out.Append(&asmir.Instr{Op: asmir.Jcc, Cond: asmir.CondNE, Target: inst.Then})
	out.Append(&asmir.Instr{Op: asmir.Jmp, Target: inst.Else})
}

// selectRet places the return value in rax, restores callee-saved
// registers from the vregs the prologue copied them into, then leave/ret.
func (f *fctx) selectRet(out *asmir.Block, inst *ir.Instruction) {
	if !inst.RetVoid {
		out.Append(&asmir.Instr{Op: asmir.Mov, A: asmir.PReg(asmir.ReturnReg), HasA: true, B: f.operand(inst.A), HasB: true})
	}
	for _, r := range asmir.CalleeSaved {
		if saved, ok := f.calleeSavedVReg(r); ok {
			out.Append(&asmir.Instr{Op: asmir.Mov, A: asmir.PReg(r), HasA: true, B: saved, HasB: true})
		}
	}
	out.Append(&asmir.Instr{Op: asmir.Leave})
	out.Append(&asmir.Instr{Op: asmir.Ret, ImplicitUses: []x86asm.Reg{asmir.ReturnReg}})
}

// calleeSavedVReg lazily allocates (and, on first call, schedules the
// entry-block save for) the vreg holding r's original value across this
// function, "saves callee-saved registers into virtual
// registers" policy.
func (f *fctx) calleeSavedVReg(r x86asm.Reg) (asmir.Operand, bool) {
	key := "__saved_" + r.String()
	if v, ok := f.regs[key]; ok {
		return v, true
	}
	v := f.out.NewVReg()
	f.regs[key] = v
	entry := f.out.Blocks[0]
	entry.Insts = append([]*asmir.Instr{{Op: asmir.Mov, A: v, HasA: true, B: asmir.PReg(r), HasB: true}}, entry.Insts...)
	return v, true
}

// selectCall marshals up to six arguments into the ABI registers and
// pushes the remainder in reverse, emits the call, then moves
// rax into the instruction's destination if it has one.
func (f *fctx) selectCall(out *asmir.Block, inst *ir.Instruction) error {
	args := inst.Args
	n := len(args)
	extra := 0
	if n > len(asmir.ArgRegs) {
		extra = n - len(asmir.ArgRegs)
		for k := n - 1; k >= len(asmir.ArgRegs); k-- {
			out.Append(&asmir.Instr{Op: asmir.Push, A: f.operand(args[k]), HasA: true})
		}
	}
	var implicitUses []x86asm.Reg
	for i := 0; i < n && i < len(asmir.ArgRegs); i++ {
		out.Append(&asmir.Instr{Op: asmir.Mov, A: asmir.PReg(asmir.ArgRegs[i]), HasA: true, B: f.operand(args[i]), HasB: true})
		implicitUses = append(implicitUses, asmir.ArgRegs[i])
	}
	out.Append(&asmir.Instr{Op: asmir.Call, Callee: inst.Callee, External: runtime.IsSymbol(inst.Callee),
		ImplicitUses: implicitUses, ImplicitDefs: []x86asm.Reg{asmir.ReturnReg}})
	if extra > 0 {
		out.Append(&asmir.Instr{Op: asmir.Add, A: asmir.PReg(x86asm.RSP), HasA: true, B: asmir.Imm(int64(8 * extra)), HasB: true})
	}
	if inst.HasDest {
		dst := f.vregFor(inst.Dest.Name)
		out.Append(&asmir.Instr{Op: asmir.Mov, A: dst, HasA: true, B: asmir.PReg(asmir.ReturnReg), HasB: true})
	}
	return nil
}

// internBytes registers lit as a module-level initialized data global,
// returning its symbol name, for OpStrCpy's literal payload.
func (f *fctx) internBytes(lit []byte) string {
	name := fmt.Sprintf("@.strdata%d", f.prog.strCounter)
	f.prog.strCounter++
	f.prog.prog.Globals = append(f.prog.prog.Globals, asmir.Global{Name: name, Size: int64(len(lit)), Init: lit, HasInit: true})
	return name
}
