package build

import (
	"github.com/pkg/errors"

	"github.com/Engineev/mxc/internal/ast"
	"github.com/Engineev/mxc/internal/ir"
)

func (b *builder) buildBlock(blk *ast.BlockStmt) error {
	b.pushScope()
	defer b.popScope()
	for _, s := range blk.Stmts {
		if err := b.buildStmt(s); err != nil {
			return err
		}
		if b.terminated() {
			break
		}
	}
	return nil
}

func (b *builder) buildStmt(s ast.Stmt) error {
	switch st := s.(type) {
	case *ast.BlockStmt:
		return b.buildBlock(st)
	case *ast.VarDeclStmt:
		slot := b.declareLocal(st.Decl.Name, st.Decl.Type)
		if st.Decl.Init != nil {
			v, err := b.evalExpr(st.Decl.Init)
			if err != nil {
				return err
			}
			b.store(slot, v)
		} else {
			b.store(slot, ir.Imm(0))
		}
		return nil
	case *ast.ExprStmt:
		_, err := b.evalExpr(st.X)
		return err
	case *ast.IfStmt:
		return b.buildIf(st)
	case *ast.WhileStmt:
		return b.buildWhile(st)
	case *ast.ForStmt:
		return b.buildFor(st)
	case *ast.ReturnStmt:
		if st.Value == nil {
			b.emit(ir.OpRet).RetVoid = true
			return nil
		}
		v, err := b.evalExpr(st.Value)
		if err != nil {
			return err
		}
		ret := b.emit(ir.OpRet)
		ret.HasA, ret.A = true, v
		return nil
	case *ast.BreakStmt:
		if len(b.loopStack) == 0 {
			return errors.New("internal: 'break' outside a loop reached build")
		}
		b.jumpTo(b.loopStack[len(b.loopStack)-1].breakLabel)
		return nil
	case *ast.ContinueStmt:
		if len(b.loopStack) == 0 {
			return errors.New("internal: 'continue' outside a loop reached build")
		}
		b.jumpTo(b.loopStack[len(b.loopStack)-1].continueLabel)
		return nil
	default:
		return errors.Errorf("internal: unhandled statement kind %T", s)
	}
}

func (b *builder) buildIf(st *ast.IfStmt) error {
	cond, err := b.evalExpr(st.Cond)
	if err != nil {
		return err
	}
	thenBlk := b.fn.NewBlock()
	var elseBlk *ir.BasicBlock
	contBlk := b.fn.NewBlock()

	br := b.emit(ir.OpBranch)
	br.HasA, br.A = true, cond
	br.Then = thenBlk.Label
	if st.Else != nil {
		elseBlk = b.fn.NewBlock()
		br.Else = elseBlk.Label
	} else {
		br.Else = contBlk.Label
	}

	b.switchTo(thenBlk)
	if err := b.buildStmt(st.Then); err != nil {
		return err
	}
	b.jumpTo(contBlk.Label)

	if st.Else != nil {
		b.switchTo(elseBlk)
		if err := b.buildStmt(st.Else); err != nil {
			return err
		}
		b.jumpTo(contBlk.Label)
	}

	b.switchTo(contBlk)
	return nil
}

func (b *builder) buildWhile(st *ast.WhileStmt) error {
	headerBlk := b.fn.NewBlock()
	bodyBlk := b.fn.NewBlock()
	exitBlk := b.fn.NewBlock()

	b.jumpTo(headerBlk.Label)
	b.switchTo(headerBlk)
	cond, err := b.evalExpr(st.Cond)
	if err != nil {
		return err
	}
	br := b.emit(ir.OpBranch)
	br.HasA, br.A = true, cond
	br.Then, br.Else = bodyBlk.Label, exitBlk.Label

	b.switchTo(bodyBlk)
	b.loopStack = append(b.loopStack, loopCtx{continueLabel: headerBlk.Label, breakLabel: exitBlk.Label})
	err = b.buildStmt(st.Body)
	b.loopStack = b.loopStack[:len(b.loopStack)-1]
	if err != nil {
		return err
	}
	b.jumpTo(headerBlk.Label)

	b.switchTo(exitBlk)
	return nil
}

func (b *builder) buildFor(st *ast.ForStmt) error {
	b.pushScope()
	defer b.popScope()
	if st.Init != nil {
		if err := b.buildStmt(st.Init); err != nil {
			return err
		}
	}

	headerBlk := b.fn.NewBlock()
	bodyBlk := b.fn.NewBlock()
	postBlk := b.fn.NewBlock()
	exitBlk := b.fn.NewBlock()

	b.jumpTo(headerBlk.Label)
	b.switchTo(headerBlk)
	var cond ir.Addr
	if st.Cond != nil {
		var err error
		if cond, err = b.evalExpr(st.Cond); err != nil {
			return err
		}
	} else {
		cond = ir.Imm(1)
	}
	br := b.emit(ir.OpBranch)
	br.HasA, br.A = true, cond
	br.Then, br.Else = bodyBlk.Label, exitBlk.Label

	b.switchTo(bodyBlk)
	b.loopStack = append(b.loopStack, loopCtx{continueLabel: postBlk.Label, breakLabel: exitBlk.Label})
	err := b.buildStmt(st.Body)
	b.loopStack = b.loopStack[:len(b.loopStack)-1]
	if err != nil {
		return err
	}
	b.jumpTo(postBlk.Label)

	b.switchTo(postBlk)
	if st.Post != nil {
		if _, err := b.evalExpr(st.Post); err != nil {
			return err
		}
	}
	b.jumpTo(headerBlk.Label)

	b.switchTo(exitBlk)
	return nil
}
