package front

import (
	"github.com/Engineev/mxc/internal/ast"
)

// Parser is a hand-written recursive-descent parser over the token stream,
// producing an untyped ast.Program. sema.Check fills in every ast.Type
// field afterward.
type Parser struct {
	lex  *Lexer
	tok  Token
	next Token
	err  error
}

func NewParser(src string) (*Parser, error) {
	p := &Parser{lex: NewLexer(src)}
	var err error
	if p.tok, err = p.lex.Next(); err != nil {
		return nil, err
	}
	if p.next, err = p.lex.Next(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Parser) advance() error {
	p.tok = p.next
	var err error
	p.next, err = p.lex.Next()
	return err
}

func (p *Parser) isPunct(s string) bool   { return p.tok.Kind == TokPunct && p.tok.Text == s }
func (p *Parser) isKeyword(s string) bool { return p.tok.Kind == TokKeyword && p.tok.Text == s }

func (p *Parser) expectPunct(s string) error {
	if !p.isPunct(s) {
		return syntaxErr(p.tok.Pos, "expected %q, found %q", s, p.tok.Text)
	}
	return p.advance()
}

func (p *Parser) expectKeyword(s string) error {
	if !p.isKeyword(s) {
		return syntaxErr(p.tok.Pos, "expected %q, found %q", s, p.tok.Text)
	}
	return p.advance()
}

func (p *Parser) expectIdent() (string, error) {
	if p.tok.Kind != TokIdent {
		return "", syntaxErr(p.tok.Pos, "expected identifier, found %q", p.tok.Text)
	}
	name := p.tok.Text
	return name, p.advance()
}

// ParseProgram parses the whole translation unit: a sequence of class and
// function declarations, plus global variable declarations.
func ParseProgram(src string) (*ast.Program, error) {
	p, err := NewParser(src)
	if err != nil {
		return nil, err
	}
	return p.parseProgram()
}

func (p *Parser) parseProgram() (*ast.Program, error) {
	prog := &ast.Program{}
	for p.tok.Kind != TokEOF {
		if p.isKeyword("class") {
			cd, err := p.parseClass()
			if err != nil {
				return nil, err
			}
			prog.Classes = append(prog.Classes, cd)
			continue
		}
		typ, err := p.parseType()
		if err != nil {
			return nil, err
		}
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if p.isPunct("(") {
			fd, err := p.parseFuncRest(typ, "", name)
			if err != nil {
				return nil, err
			}
			prog.Funcs = append(prog.Funcs, fd)
			continue
		}
		decl, err := p.parseVarDeclRest(typ, name)
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(";"); err != nil {
			return nil, err
		}
		prog.Globals = append(prog.Globals, decl)
	}
	return prog, nil
}

func (p *Parser) parseClass() (*ast.ClassDecl, error) {
	pos := p.tok.Pos
	if err := p.expectKeyword("class"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	base := ""
	if p.isKeyword("extends") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if base, err = p.expectIdent(); err != nil {
			return nil, err
		}
	}
	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	cd := &ast.ClassDecl{Name: name, Base: base, Pos: pos}
	for !p.isPunct("}") {
		typ, err := p.parseType()
		if err != nil {
			return nil, err
		}
		mname, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if p.isPunct("(") {
			fd, err := p.parseFuncRest(typ, name, mname)
			if err != nil {
				return nil, err
			}
			cd.Methods = append(cd.Methods, fd)
			continue
		}
		decl, err := p.parseVarDeclRest(typ, mname)
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(";"); err != nil {
			return nil, err
		}
		cd.Fields = append(cd.Fields, decl)
	}
	if err := p.expectPunct("}"); err != nil {
		return nil, err
	}
	return cd, nil
}

func (p *Parser) parseFuncRest(retType ast.Type, recv, name string) (*ast.FuncDecl, error) {
	pos := p.tok.Pos
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var params []*ast.Param
	for !p.isPunct(")") {
		if len(params) > 0 {
			if err := p.expectPunct(","); err != nil {
				return nil, err
			}
		}
		ptyp, err := p.parseType()
		if err != nil {
			return nil, err
		}
		pname, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		params = append(params, &ast.Param{Name: pname, Type: ptyp})
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.FuncDecl{
		Name: name, Recv: recv, Mangled: ast.Mangle(recv, name),
		Params: params, RetType: retType, Body: body, Pos: pos,
	}, nil
}

// parseType parses a base type followed by zero or more "[]" array suffixes.
func (p *Parser) parseType() (ast.Type, error) {
	var base ast.Type
	switch {
	case p.isKeyword("int"):
		base = ast.Type{Kind: ast.Int}
		if err := p.advance(); err != nil {
			return ast.Type{}, err
		}
	case p.isKeyword("bool"):
		base = ast.Type{Kind: ast.Bool}
		if err := p.advance(); err != nil {
			return ast.Type{}, err
		}
	case p.isKeyword("string"):
		base = ast.Type{Kind: ast.StringT}
		if err := p.advance(); err != nil {
			return ast.Type{}, err
		}
	case p.isKeyword("void"):
		base = ast.Type{Kind: ast.Void}
		if err := p.advance(); err != nil {
			return ast.Type{}, err
		}
	case p.tok.Kind == TokIdent:
		base = ast.Type{Kind: ast.Class, Class: p.tok.Text}
		if err := p.advance(); err != nil {
			return ast.Type{}, err
		}
	default:
		return ast.Type{}, syntaxErr(p.tok.Pos, "expected a type, found %q", p.tok.Text)
	}
	for p.isPunct("[") {
		if err := p.advance(); err != nil {
			return ast.Type{}, err
		}
		if err := p.expectPunct("]"); err != nil {
			return ast.Type{}, err
		}
		elem := base
		base = ast.Type{Kind: ast.Array, Elem: &elem}
	}
	return base, nil
}

func (p *Parser) parseVarDeclRest(typ ast.Type, name string) (*ast.VarDecl, error) {
	pos := p.tok.Pos
	decl := &ast.VarDecl{Name: name, Type: typ, Pos: pos}
	if p.isPunct("=") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		init, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		decl.Init = init
	}
	return decl, nil
}

func (p *Parser) parseBlock() (*ast.BlockStmt, error) {
	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	blk := &ast.BlockStmt{}
	for !p.isPunct("}") {
		s, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		blk.Stmts = append(blk.Stmts, s)
	}
	if err := p.expectPunct("}"); err != nil {
		return nil, err
	}
	return blk, nil
}

func (p *Parser) startsType() bool {
	if p.isKeyword("int") || p.isKeyword("bool") || p.isKeyword("string") || p.isKeyword("void") {
		return true
	}
	return p.tok.Kind == TokIdent && p.next.Kind == TokIdent
}

func (p *Parser) parseStmt() (ast.Stmt, error) {
	switch {
	case p.isPunct("{"):
		return p.parseBlock()
	case p.isKeyword("if"):
		return p.parseIf()
	case p.isKeyword("while"):
		return p.parseWhile()
	case p.isKeyword("for"):
		return p.parseFor()
	case p.isKeyword("break"):
		pos := p.tok.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.BreakStmt{Pos: pos}, p.expectPunct(";")
	case p.isKeyword("continue"):
		pos := p.tok.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.ContinueStmt{Pos: pos}, p.expectPunct(";")
	case p.isKeyword("return"):
		pos := p.tok.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.isPunct(";") {
			return &ast.ReturnStmt{Pos: pos}, p.advance()
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &ast.ReturnStmt{Value: val, Pos: pos}, p.expectPunct(";")
	case p.isPunct(";"):
		return &ast.BlockStmt{}, p.advance()
	case p.startsType():
		typ, err := p.parseType()
		if err != nil {
			return nil, err
		}
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		decl, err := p.parseVarDeclRest(typ, name)
		if err != nil {
			return nil, err
		}
		return &ast.VarDeclStmt{Decl: decl}, p.expectPunct(";")
	default:
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &ast.ExprStmt{X: e}, p.expectPunct(";")
	}
}

func (p *Parser) parseIf() (ast.Stmt, error) {
	if err := p.expectKeyword("if"); err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	then, err := p.parseStmt()
	if err != nil {
		return nil, err
	}
	var els ast.Stmt
	if p.isKeyword("else") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if els, err = p.parseStmt(); err != nil {
			return nil, err
		}
	}
	return &ast.IfStmt{Cond: cond, Then: then, Else: els}, nil
}

func (p *Parser) parseWhile() (ast.Stmt, error) {
	if err := p.expectKeyword("while"); err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	body, err := p.parseStmt()
	if err != nil {
		return nil, err
	}
	return &ast.WhileStmt{Cond: cond, Body: body}, nil
}

func (p *Parser) parseFor() (ast.Stmt, error) {
	if err := p.expectKeyword("for"); err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var init ast.Stmt
	if !p.isPunct(";") {
		if p.startsType() {
			typ, err := p.parseType()
			if err != nil {
				return nil, err
			}
			name, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			decl, err := p.parseVarDeclRest(typ, name)
			if err != nil {
				return nil, err
			}
			init = &ast.VarDeclStmt{Decl: decl}
		} else {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			init = &ast.ExprStmt{X: e}
		}
	}
	if err := p.expectPunct(";"); err != nil {
		return nil, err
	}
	var cond ast.Expr
	if !p.isPunct(";") {
		var err error
		if cond, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	if err := p.expectPunct(";"); err != nil {
		return nil, err
	}
	var post ast.Expr
	if !p.isPunct(")") {
		var err error
		if post, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	body, err := p.parseStmt()
	if err != nil {
		return nil, err
	}
	return &ast.ForStmt{Init: init, Cond: cond, Post: post, Body: body}, nil
}

// ---- Expressions, precedence climbing ----

func (p *Parser) parseExpr() (ast.Expr, error) { return p.parseAssign() }

func (p *Parser) parseAssign() (ast.Expr, error) {
	lhs, err := p.parseLogicalOr()
	if err != nil {
		return nil, err
	}
	if p.isPunct("=") {
		pos := p.tok.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		rhs, err := p.parseAssign()
		if err != nil {
			return nil, err
		}
		return &ast.AssignExpr{Target: lhs, Value: rhs, Pos: pos}, nil
	}
	return lhs, nil
}

func (p *Parser) parseLogicalOr() (ast.Expr, error) {
	lhs, err := p.parseLogicalAnd()
	if err != nil {
		return nil, err
	}
	for p.isPunct("||") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		rhs, err := p.parseLogicalAnd()
		if err != nil {
			return nil, err
		}
		lhs = &ast.LogicalExpr{Op: "||", L: lhs, R: rhs}
	}
	return lhs, nil
}

func (p *Parser) parseLogicalAnd() (ast.Expr, error) {
	lhs, err := p.parseBitOr()
	if err != nil {
		return nil, err
	}
	for p.isPunct("&&") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		rhs, err := p.parseBitOr()
		if err != nil {
			return nil, err
		}
		lhs = &ast.LogicalExpr{Op: "&&", L: lhs, R: rhs}
	}
	return lhs, nil
}

func (p *Parser) binaryLevel(next func() (ast.Expr, error), ops ...string) (ast.Expr, error) {
	lhs, err := next()
	if err != nil {
		return nil, err
	}
	for {
		matched := ""
		for _, op := range ops {
			if p.isPunct(op) {
				matched = op
				break
			}
		}
		if matched == "" {
			return lhs, nil
		}
		pos := p.tok.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		rhs, err := next()
		if err != nil {
			return nil, err
		}
		lhs = &ast.BinaryExpr{Op: matched, L: lhs, R: rhs, Pos: pos}
	}
}

func (p *Parser) parseBitOr() (ast.Expr, error) {
	return p.binaryLevel(p.parseBitXor, "|")
}
func (p *Parser) parseBitXor() (ast.Expr, error) {
	return p.binaryLevel(p.parseBitAnd, "^")
}
func (p *Parser) parseBitAnd() (ast.Expr, error) {
	return p.binaryLevel(p.parseEquality, "&")
}
func (p *Parser) parseEquality() (ast.Expr, error) {
	return p.binaryLevel(p.parseRelational, "==", "!=")
}
func (p *Parser) parseRelational() (ast.Expr, error) {
	return p.binaryLevel(p.parseShift, "<=", ">=", "<", ">")
}
func (p *Parser) parseShift() (ast.Expr, error) {
	return p.binaryLevel(p.parseAdditive, "<<", ">>")
}
func (p *Parser) parseAdditive() (ast.Expr, error) {
	return p.binaryLevel(p.parseMultiplicative, "+", "-")
}
func (p *Parser) parseMultiplicative() (ast.Expr, error) {
	return p.binaryLevel(p.parseUnary, "*", "/", "%")
}

func (p *Parser) parseUnary() (ast.Expr, error) {
	switch {
	case p.isPunct("-"), p.isPunct("!"), p.isPunct("~"):
		op := p.tok.Text
		pos := p.tok.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Op: op, X: x, Pos: pos}, nil
	case p.isPunct("++"), p.isPunct("--"):
		op := p.tok.Text
		if err := p.advance(); err != nil {
			return nil, err
		}
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.IncDecExpr{Target: x, Op: op, Post: false}, nil
	default:
		return p.parsePostfix()
	}
}

func (p *Parser) parsePostfix() (ast.Expr, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isPunct("."):
			pos := p.tok.Pos
			if err := p.advance(); err != nil {
				return nil, err
			}
			name, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			if p.isPunct("(") {
				args, err := p.parseArgs()
				if err != nil {
					return nil, err
				}
				x = &ast.CallExpr{Recv: x, Callee: name, Args: args, Pos: pos}
			} else {
				x = &ast.MemberExpr{X: x, Name: name, Pos: pos}
			}
		case p.isPunct("["):
			pos := p.tok.Pos
			if err := p.advance(); err != nil {
				return nil, err
			}
			idx, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct("]"); err != nil {
				return nil, err
			}
			x = &ast.IndexExpr{X: x, Index: idx, Pos: pos}
		case p.isPunct("++"), p.isPunct("--"):
			op := p.tok.Text
			if err := p.advance(); err != nil {
				return nil, err
			}
			x = &ast.IncDecExpr{Target: x, Op: op, Post: true}
		default:
			return x, nil
		}
	}
}

func (p *Parser) parseArgs() ([]ast.Expr, error) {
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var args []ast.Expr
	for !p.isPunct(")") {
		if len(args) > 0 {
			if err := p.expectPunct(","); err != nil {
				return nil, err
			}
		}
		a, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
	}
	return args, p.expectPunct(")")
}

func (p *Parser) parsePrimary() (ast.Expr, error) {
	pos := p.tok.Pos
	switch {
	case p.tok.Kind == TokInt:
		v := p.tok.Int
		return &ast.IntLit{Value: v}, p.advance()
	case p.tok.Kind == TokString:
		v := p.tok.Text
		return &ast.StringLit{Value: v}, p.advance()
	case p.isKeyword("true"):
		return &ast.BoolLit{Value: true}, p.advance()
	case p.isKeyword("false"):
		return &ast.BoolLit{Value: false}, p.advance()
	case p.isKeyword("null"):
		return &ast.NullLit{}, p.advance()
	case p.isKeyword("this"):
		return &ast.ThisExpr{}, p.advance()
	case p.isKeyword("new"):
		return p.parseNew()
	case p.isPunct("("):
		if err := p.advance(); err != nil {
			return nil, err
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return e, p.expectPunct(")")
	case p.tok.Kind == TokIdent:
		name := p.tok.Text
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.isPunct("(") {
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			return &ast.CallExpr{Callee: name, Args: args, Pos: pos}, nil
		}
		return &ast.Ident{Name: name, Pos: pos}, nil
	default:
		return nil, syntaxErr(pos, "unexpected token %q", p.tok.Text)
	}
}

func (p *Parser) parseNew() (ast.Expr, error) {
	pos := p.tok.Pos
	if err := p.expectKeyword("new"); err != nil {
		return nil, err
	}
	elem, err := p.parseScalarType()
	if err != nil {
		return nil, err
	}
	var dims []ast.Expr
	for p.isPunct("[") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.isPunct("]") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			dims = append(dims, nil)
			continue
		}
		d, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct("]"); err != nil {
			return nil, err
		}
		dims = append(dims, d)
	}
	return &ast.NewExpr{Elem: elem, Dims: dims, Pos: pos}, nil
}

func (p *Parser) parseScalarType() (ast.Type, error) {
	switch {
	case p.isKeyword("int"):
		return ast.Type{Kind: ast.Int}, p.advance()
	case p.isKeyword("bool"):
		return ast.Type{Kind: ast.Bool}, p.advance()
	case p.isKeyword("string"):
		return ast.Type{Kind: ast.StringT}, p.advance()
	case p.tok.Kind == TokIdent:
		name := p.tok.Text
		return ast.Type{Kind: ast.Class, Class: name}, p.advance()
	default:
		return ast.Type{}, syntaxErr(p.tok.Pos, "expected a type after 'new', found %q", p.tok.Text)
	}
}
