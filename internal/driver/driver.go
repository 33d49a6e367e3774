// Package driver orchestrates the whole compilation pipeline: front end,
// IR construction, SSA-based optimization, destruction, and the x86-64
// back end.
package driver

import (
	"github.com/pkg/errors"

	"github.com/Engineev/mxc/internal/backend/emit"
	"github.com/Engineev/mxc/internal/backend/isel"
	"github.com/Engineev/mxc/internal/backend/regalloc"
	"github.com/Engineev/mxc/internal/front"
	"github.com/Engineev/mxc/internal/ir"
	"github.com/Engineev/mxc/internal/ir/build"
	"github.com/Engineev/mxc/internal/ir/opt"
	"github.com/Engineev/mxc/internal/ir/pass"
	"github.com/Engineev/mxc/internal/ir/printer"
	"github.com/Engineev/mxc/internal/ir/ssa"
	"github.com/Engineev/mxc/internal/runtime"
	"github.com/Engineev/mxc/internal/trace"
)

// scalarPipeline returns the fixed pass ordering: {SCCP,
// LocalValueNumbering, GVN, SimplifyCFG, DCE, CopyProp, Reassociation,
// LICM, IndVar} iterated by pass.Pipeline to a per-function fixed point.
// LocalValueNumbering runs just ahead of the dominator-scoped GVN: its
// block-local table is cheap to rebuild every round and strips the
// straight-line redundancies GVN would otherwise redo the same work to
// find. Inline is deliberately excluded here, it is a ModulePass, invoked
// directly by Compile below, alongside GlobalConstInline/PromoteGlobals/
// UnusedFunctionRemoval (see DESIGN.md).
func scalarPipeline() *pass.Pipeline {
	return pass.NewPipeline(
		opt.SCCP{}, opt.LocalValueNumbering{}, opt.GVN{}, opt.SimplifyCFG{}, opt.DCE{},
		opt.CopyProp{}, opt.Reassociation{}, opt.LICM{}, opt.IndVar{},
	)
}

// moduleRoundLimit bounds the outer loop alternating module-wide passes
// (inlining, global promotion) with the per-function scalar pipeline,
// mirroring pass.DefaultIterationLimit's "generous but finite" rationale.
const moduleRoundLimit = pass.DefaultIterationLimit

// Compile parses, checks, and lowers src all the way to NASM-syntax
// assembly text. ir is the post-optimization, pre-destruction textual IR
// dump (useful for debugging and for the CLI's optional dump file); it is
// always produced alongside the assembly.
func Compile(src string) (asmText, irDump string, err error) {
	mod, err := BuildModule(src)
	if err != nil {
		return "", "", err
	}

	dump := DumpIR(mod)

	for _, name := range mod.FuncOrder() {
		fn := mod.Functions[name]
		if !fn.External {
			ssa.Destruct(fn)
			opt.CodegenPreparation{}.RunOnFunction(fn)
		}
	}

	prog, err := isel.Select(mod)
	if err != nil {
		return "", "", errors.Wrap(err, "instruction selection")
	}
	for _, fn := range prog.Functions {
		if fn.External {
			continue
		}
		if err := regalloc.Allocate(fn); err != nil {
			return "", "", errors.Wrap(err, "register allocation")
		}
		emit.Peephole(fn)
	}
	return emit.Print(prog), dump, nil
}

// BuildModule runs the front end and produces a fully optimized (but not
// yet destructed) SSA module: lex+parse+check, lower to memory-form IR,
// construct SSA per function, then alternate whole-module passes with the
// per-function scalar pipeline until neither changes anything.
func BuildModule(src string) (*ir.Module, error) {
	prog, err := front.ParseProgram(src)
	if err != nil {
		return nil, errors.Wrap(err, "parse")
	}
	if err := front.Check(prog); err != nil {
		return nil, errors.Wrap(err, "semantic check")
	}

	mod, err := build.Build(prog)
	if err != nil {
		return nil, errors.Wrap(err, "ir construction")
	}
	trace.Dump("ir after build", mod)

	for _, name := range mod.FuncOrder() {
		fn := mod.Functions[name]
		if !fn.External {
			ssa.Construct(fn)
		}
	}

	pipeline := scalarPipeline()
	for round := 0; round < moduleRoundLimit; round++ {
		changed := false
		if opt.Inline{}.RunOnModule(mod) {
			changed = true
		}
		if opt.GlobalConstInline{}.RunOnModule(mod) {
			changed = true
		}
		if opt.PromoteGlobals{}.RunOnModule(mod) {
			changed = true
		}
		if pipeline.Run(mod) > 0 {
			changed = true
		}
		if opt.UnusedFunctionRemoval{}.RunOnModule(mod) {
			changed = true
		}
		if !changed {
			break
		}
	}

	if err := mod.Validate(runtime.IsSymbol); err != nil {
		return nil, errors.Wrap(err, "module validation")
	}
	trace.Dump("ir after optimization", mod)
	return mod, nil
}

// DumpIR renders mod in textual IR format.
func DumpIR(mod *ir.Module) string {
	return printer.String(mod)
}
