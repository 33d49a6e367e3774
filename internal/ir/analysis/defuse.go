// Package analysis provides def-use/use-def chains, natural-loop detection,
// the call graph, and per-function purity/global-variable attributes.
package analysis

import "github.com/Engineev/mxc/internal/ir"

// DefUse indexes, for a function, the defining instruction of each local
// register and the instructions that use it. It is built by a single
// forward scan and indexed by register name (SSA form guarantees a unique
// definition per name).
type DefUse struct {
	Def  map[string]ir.InstID
	Uses map[string][]ir.InstID
}

// Build scans f once and returns its def-use/use-def chains.
func Build(f *ir.Function) *DefUse {
	du := &DefUse{Def: map[string]ir.InstID{}, Uses: map[string][]ir.InstID{}}
	for _, b := range f.Blocks {
		for _, id := range b.Insts {
			inst := f.Inst(id)
			if inst.IsDeleted() {
				continue
			}
			if d, ok := inst.Defs(); ok && d.IsLocal() {
				du.Def[d.Name] = id
			}
			uses := inst.Uses(nil)
			for _, u := range uses {
				if u.IsLocal() {
					du.Uses[u.Name] = append(du.Uses[u.Name], id)
				}
			}
		}
	}
	return du
}
