package ir

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// GlobalVar is a module-level global: an identifier beginning with "@", a
// byte size, and optional initial data.
type GlobalVar struct {
	Name string
	Size int64
	Init []byte
	HasInit bool
}

// Module groups every function and global variable of a compiled program.
type Module struct {
	Functions map[string]*Function
	order     []string // declaration order, for deterministic printing
	Globals   []*GlobalVar
}

// NewModule creates an empty module pre-seeded with the distinguished
// @null global.
func NewModule() *Module {
	m := &Module{Functions: make(map[string]*Function)}
	m.Globals = append(m.Globals, &GlobalVar{Name: NullGlobal, Size: 8, Init: make([]byte, 8), HasInit: true})
	return m
}

// AddFunction registers fn in declaration order.
func (m *Module) AddFunction(fn *Function) {
	if _, exists := m.Functions[fn.Name]; !exists {
		m.order = append(m.order, fn.Name)
	}
	m.Functions[fn.Name] = fn
}

// AddGlobal registers a new global variable, enforcing the "@" naming
// convention.
func (m *Module) AddGlobal(g *GlobalVar) error {
	if !strings.HasPrefix(g.Name, "@") {
		return errors.Errorf("global variable name %q must begin with '@'", g.Name)
	}
	m.Globals = append(m.Globals, g)
	return nil
}

// FuncOrder returns function names in declaration order.
func (m *Module) FuncOrder() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// RemoveFunctions deletes every function named in remove, preserving
// declaration order for the rest, and reports how many were removed.
func (m *Module) RemoveFunctions(remove map[string]bool) int {
	if len(remove) == 0 {
		return 0
	}
	n := 0
	kept := m.order[:0]
	for _, name := range m.order {
		if remove[name] {
			delete(m.Functions, name)
			n++
			continue
		}
		kept = append(kept, name)
	}
	m.order = kept
	return n
}

// Validate checks the module-level invariants: at most one main, and
// every Call target resolves to a module function or is treated as an
// external runtime symbol (External flag set, or declared as a builtin
// via runtime.KnownSymbol).
func (m *Module) Validate(isRuntimeSymbol func(string) bool) error {
	mains := 0
	for _, name := range m.order {
		if name == "main" {
			mains++
		}
	}
	if mains > 1 {
		return errors.New("module defines more than one main")
	}
	for _, name := range m.order {
		fn := m.Functions[name]
		if err := fn.validateBlocks(); err != nil {
			return errors.Wrapf(err, "function %s", name)
		}
		for _, b := range fn.Blocks {
			for _, id := range b.Insts {
				inst := fn.Inst(id)
				if inst.Op != OpCall {
					continue
				}
				if _, ok := m.Functions[inst.Callee]; ok {
					continue
				}
				if isRuntimeSymbol != nil && isRuntimeSymbol(inst.Callee) {
					continue
				}
				return errors.Errorf("function %s: call to unresolved symbol %q", name, inst.Callee)
			}
		}
	}
	return nil
}

// validateBlocks asserts that every block ends in a terminator and that
// phi operand label sets equal the predecessor set exactly.
func (f *Function) validateBlocks() error {
	if f.External {
		return nil
	}
	preds := Preds(f)
	for _, b := range f.Blocks {
		if len(b.Insts) == 0 {
			return errors.Errorf("block <%d> is empty", b.Label)
		}
		for idx, id := range b.Insts {
			inst := f.Inst(id)
			if inst.IsTerminator() && idx != len(b.Insts)-1 {
				return errors.Errorf("block <%d>: terminator not in final position", b.Label)
			}
		}
		last := f.Inst(b.Insts[len(b.Insts)-1])
		if !last.IsTerminator() {
			return errors.Errorf("block <%d> does not end in a terminator", b.Label)
		}
		want := map[int]bool{}
		for _, p := range preds[b.Label] {
			want[p] = true
		}
		for _, id := range b.Phis(f) {
			inst := f.Inst(id)
			got := map[int]bool{}
			for _, op := range inst.Phi {
				got[op.Pred] = true
			}
			if len(got) != len(want) {
				return errors.Errorf("block <%d>: phi %%%s operand set size mismatch", b.Label, inst.Dest.Name)
			}
			for p := range want {
				if !got[p] {
					return errors.Errorf("block <%d>: phi %%%s missing operand for predecessor <%d>", b.Label, inst.Dest.Name, p)
				}
			}
		}
	}
	return nil
}

// Preds computes the predecessor-label set of every block in f by
// scanning terminators, since blocks carry no implicit predecessor links.
func Preds(f *Function) map[int][]int {
	preds := make(map[int][]int, len(f.Blocks))
	for _, b := range f.Blocks {
		preds[b.Label] = nil
	}
	for _, b := range f.Blocks {
		for _, s := range b.Successors(f) {
			preds[s] = append(preds[s], b.Label)
		}
	}
	for k := range preds {
		sort.Ints(preds[k])
	}
	return preds
}

// Succs returns the successor-label map for every block in f.
func Succs(f *Function) map[int][]int {
	succs := make(map[int][]int, len(f.Blocks))
	for _, b := range f.Blocks {
		succs[b.Label] = b.Successors(f)
	}
	return succs
}

// ReachableFromEntry returns the set of block labels reachable from f's
// entry block, used by CFG simplification's unreachable-block removal.
func ReachableFromEntry(f *Function) map[int]bool {
	reach := map[int]bool{}
	if f.Entry() == nil {
		return reach
	}
	stack := []int{f.Entry().Label}
	reach[f.Entry().Label] = true
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		b := f.BlockByLabel(n)
		if b == nil {
			continue
		}
		for _, s := range b.Successors(f) {
			if !reach[s] {
				reach[s] = true
				stack = append(stack, s)
			}
		}
	}
	return reach
}
