// Package pass defines the {module, function, basic-block} pass
// interfaces and the fixed-point pipeline driver that runs them.
package pass

import "github.com/Engineev/mxc/internal/ir"

// FunctionPass transforms a single function in place and reports whether
// it modified anything, driving fixed-point iteration at the pipeline
// level.
type FunctionPass interface {
	Name() string
	RunOnFunction(f *ir.Function) bool
}

// ModulePass transforms a whole module in place.
type ModulePass interface {
	Name() string
	RunOnModule(m *ir.Module) bool
}

// BasicBlockPass transforms a single basic block in place.
type BasicBlockPass interface {
	Name() string
	RunOnBlock(f *ir.Function, b *ir.BasicBlock) bool
}

// DefaultIterationLimit bounds the fixed-point loop over the scalar
// optimization pipeline, chosen generously but
// finitely so that a non-converging interaction between passes cannot
// loop forever.
const DefaultIterationLimit = 32

// Pipeline runs a fixed sequence of function passes to a fixed point (or
// until DefaultIterationLimit iterations have run) for every function in a
// module, skipping external (body-less) functions.
type Pipeline struct {
	Passes []FunctionPass
	Limit  int
}

// NewPipeline builds a pipeline with the default iteration limit.
func NewPipeline(passes ...FunctionPass) *Pipeline {
	return &Pipeline{Passes: passes, Limit: DefaultIterationLimit}
}

// Run applies the pipeline to every function in m, returning the total
// number of passes that reported a modification (useful for tests
// asserting idempotence).
func (p *Pipeline) Run(m *ir.Module) int {
	limit := p.Limit
	if limit <= 0 {
		limit = DefaultIterationLimit
	}
	total := 0
	for _, name := range m.FuncOrder() {
		fn := m.Functions[name]
		if fn.External {
			continue
		}
		for iter := 0; iter < limit; iter++ {
			changed := false
			for _, fp := range p.Passes {
				if fp.RunOnFunction(fn) {
					changed = true
					total++
				}
			}
			if !changed {
				break
			}
		}
	}
	return total
}
