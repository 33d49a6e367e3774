package ir

import (
	"strconv"

	"github.com/pkg/errors"
)

// BasicBlock is a numeric-labeled, ordered list of instruction ids within a
// function. Phi instructions, if present, form a prefix before any
// non-phi instruction. BasicBlock stores no back-pointer to its
// owning Function (design note on mutable back-pointers): callers thread
// the *Function explicitly.
type BasicBlock struct {
	Label int
	Insts []InstID
}

// Phis returns the ids of the leading phi instructions in b.
func (b *BasicBlock) Phis(f *Function) []InstID {
	var out []InstID
	for _, id := range b.Insts {
		if f.Inst(id).Op == OpPhi {
			out = append(out, id)
		} else {
			break
		}
	}
	return out
}

// Terminator returns the block's terminator instruction. It panics (an
// internal invariant violation, not a user error) if the block is empty or
// does not end in a terminator.
func (b *BasicBlock) Terminator(f *Function) *Instruction {
	if len(b.Insts) == 0 {
		panic(errors.Errorf("block <%d> has no instructions", b.Label))
	}
	last := f.Inst(b.Insts[len(b.Insts)-1])
	if !last.IsTerminator() {
		panic(errors.Errorf("block <%d> does not end in a terminator", b.Label))
	}
	return last
}

// Successors derives b's successor labels from its terminator.
func (b *BasicBlock) Successors(f *Function) []int {
	return b.Terminator(f).Successors()
}

// Append adds an instruction id to the end of the block.
func (b *BasicBlock) Append(id InstID) {
	b.Insts = append(b.Insts, id)
}

// Function groups an ordered parameter list and an ordered list of basic
// blocks under one name. The first block is
// always the entry block.
type Function struct {
	Name     string
	Params   []string // formal parameter names, exposed as registers "0","1",...
	Blocks   []*BasicBlock
	External bool // true for runtime functions with no body

	arena     []*Instruction
	nextLocal int
	nextLabel int
}

// NewFunction creates an empty function with the given name and formal
// parameters. The fresh-local counter starts past len(params): parameter
// registers occupy names "0".."len(params)-1" by ABI convention,
// and NewLocal must never mint a name that collides with one of them.
func NewFunction(name string, params []string) *Function {
	return &Function{Name: name, Params: params, nextLocal: len(params)}
}

// Inst resolves an InstID to its instruction. Ids are dense and never
// reused, so this is a simple slice index.
func (f *Function) Inst(id InstID) *Instruction {
	return f.arena[id]
}

// NewInst allocates a fresh instruction in f's arena and returns it. The
// caller fills in fields and appends the id to a block.
func (f *Function) NewInst(op Op) *Instruction {
	inst := &Instruction{id: InstID(len(f.arena)), Op: op}
	f.arena = append(f.arena, inst)
	return inst
}

// NumInsts returns the number of instructions ever allocated (including
// tombstones), used as a bound by fixed-point iterations.
func (f *Function) NumInsts() int { return len(f.arena) }

// Replace swaps the instruction at block position matching oldID for a
// freshly allocated instruction built by build, preserving position.
// Mutation of a block's instruction list is always by whole-entry
// replacement ( ownership discipline); analyses holding the old
// InstID still resolve via Inst, now to a stale (but still-indexable) node.
func (f *Function) Replace(b *BasicBlock, oldID InstID, newInst *Instruction) {
	for idx, id := range b.Insts {
		if id == oldID {
			b.Insts[idx] = newInst.id
			return
		}
	}
	panic(errors.Errorf("instruction %d not found in block <%d>", oldID, b.Label))
}

// Tombstone marks the instruction at id as deleted in place. It is used by
// passes that must preserve a block position (e.g. mid-sweep DCE) without
// immediately compacting the list; CompactDeleted removes tombstones in
// bulk at the end of a pass, "Deleted" instruction kind.
func (f *Function) Tombstone(id InstID) {
	inst := f.arena[id]
	*inst = Instruction{id: id, Op: OpDeleted}
}

// CompactDeleted removes every OpDeleted entry from every block's
// instruction list. It must run before a pass returns: no Deleted
// tombstones may remain visible to the next pass.
func (f *Function) CompactDeleted() {
	for _, b := range f.Blocks {
		kept := b.Insts[:0]
		for _, id := range b.Insts {
			if f.Inst(id).Op != OpDeleted {
				kept = append(kept, id)
			}
		}
		b.Insts = kept
	}
}

// NewLocal returns a fresh, function-unique SSA-name local register.
func (f *Function) NewLocal() Addr {
	name := strconv.Itoa(f.nextLocal)
	f.nextLocal++
	return Local(name)
}

// NewLocalNamed reserves name as used (so later NewLocal calls never
// collide with it) and returns the corresponding local address. Used for
// parameters, whose names are fixed as "0","1",... by the calling
// convention.
func (f *Function) NewLocalNamed(name string) Addr {
	return Local(name)
}

// NewLabel returns a fresh, function-unique basic-block label.
func (f *Function) NewLabel() int {
	id := f.nextLabel
	f.nextLabel++
	return id
}

// NewBlock allocates and appends a new basic block with a fresh label.
func (f *Function) NewBlock() *BasicBlock {
	b := &BasicBlock{Label: f.NewLabel()}
	f.Blocks = append(f.Blocks, b)
	return b
}

// InsertBlockAfter inserts a new block immediately after "after" in block
// order (order is cosmetic only, successors are derived from
// terminators, but keeping it close to source order helps printed output
// read naturally, matching teacher-style deterministic emission).
func (f *Function) InsertBlockAfter(after *BasicBlock, b *BasicBlock) {
	for idx, bb := range f.Blocks {
		if bb == after {
			f.Blocks = append(f.Blocks[:idx+1], append([]*BasicBlock{b}, f.Blocks[idx+1:]...)...)
			return
		}
	}
	f.Blocks = append(f.Blocks, b)
}

// BlockByLabel finds a block by its label, or nil.
func (f *Function) BlockByLabel(label int) *BasicBlock {
	for _, b := range f.Blocks {
		if b.Label == label {
			return b
		}
	}
	return nil
}

// RemoveBlock deletes b from f's block list. Any phi operands in
// surviving successors that still reference b must be fixed up by the
// caller (CFG-simplify's responsibility, ).
func (f *Function) RemoveBlock(b *BasicBlock) {
	for idx, bb := range f.Blocks {
		if bb == b {
			f.Blocks = append(f.Blocks[:idx], f.Blocks[idx+1:]...)
			return
		}
	}
}

// Entry returns the function's entry block.
func (f *Function) Entry() *BasicBlock {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}
