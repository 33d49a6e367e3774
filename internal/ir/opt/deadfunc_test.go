package opt

import (
	"testing"

	"github.com/Engineev/mxc/internal/ir"
)

func retVoidFunc(name string) *ir.Function {
	fn := ir.NewFunction(name, nil)
	b := fn.NewBlock()
	ret := fn.NewInst(ir.OpRet)
	ret.RetVoid = true
	b.Append(ret.ID())
	return fn
}

func callingFunc(name, callee string) *ir.Function {
	fn := ir.NewFunction(name, nil)
	b := fn.NewBlock()
	call := fn.NewInst(ir.OpCall)
	call.Callee = callee
	b.Append(call.ID())
	ret := fn.NewInst(ir.OpRet)
	ret.RetVoid = true
	b.Append(ret.ID())
	return fn
}

func TestUnusedFunctionRemovalDropsUnreachableFunction(t *testing.T) {
	mod := ir.NewModule()
	mod.AddFunction(callingFunc("main", "used"))
	mod.AddFunction(retVoidFunc("used"))
	mod.AddFunction(retVoidFunc("dead"))

	changed := UnusedFunctionRemoval{}.RunOnModule(mod)
	if !changed {
		t.Fatal("expected RunOnModule to report a change")
	}
	if _, ok := mod.Functions["dead"]; ok {
		t.Fatal("expected unreachable function \"dead\" to be removed")
	}
	if _, ok := mod.Functions["main"]; !ok {
		t.Fatal("main must survive")
	}
	if _, ok := mod.Functions["used"]; !ok {
		t.Fatal("a function reachable from main must survive")
	}
}

func TestUnusedFunctionRemovalLeavesFullyReachableModuleAlone(t *testing.T) {
	mod := ir.NewModule()
	mod.AddFunction(callingFunc("main", "used"))
	mod.AddFunction(retVoidFunc("used"))

	if UnusedFunctionRemoval{}.RunOnModule(mod) {
		t.Fatal("expected no change when every function is reachable")
	}
}

func TestUnusedFunctionRemovalSkipsModulesWithNoMain(t *testing.T) {
	mod := ir.NewModule()
	mod.AddFunction(retVoidFunc("orphan"))

	if UnusedFunctionRemoval{}.RunOnModule(mod) {
		t.Fatal("expected no change without a main function")
	}
	if _, ok := mod.Functions["orphan"]; !ok {
		t.Fatal("a module with no main must be left untouched")
	}
}
