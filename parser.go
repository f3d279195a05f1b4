package hammer

// Parser turns source text into the typed AST.  It is a recursive
// descent parser with a Pratt expression core; binding powers follow
// the operator table further down.
//
// The parser reports syntax problems into a Diagnostics object and
// keeps going where it can; nodes it had to guess about carry the
// error bit so later passes skip them.
type Parser struct {
	input []byte
	lexer *Lexer
	diags *Diagnostics

	tok  Token
	prev Token
}

func NewParser(input []byte, diags *Diagnostics) *Parser {
	p := &Parser{
		input: input,
		lexer: NewLexer(input),
		diags: diags,
	}
	p.next()
	return p
}

// ParseFile parses a whole source file and returns the numbered AST.
func ParseFile(input []byte, diags *Diagnostics) *File {
	p := NewParser(input, diags)
	file := p.parseFile()
	NumberAst(file)
	return file
}

func (p *Parser) next() {
	p.prev = p.tok
	p.tok = p.lexer.Next()
	for p.tok.Kind == Token_Error {
		p.diags.Error(p.tok.Span, "%s", p.tok.Text)
		p.tok = p.lexer.Next()
	}
}

func (p *Parser) at(kind TokenKind) bool { return p.tok.Kind == kind }

func (p *Parser) accept(kind TokenKind) bool {
	if p.at(kind) {
		p.next()
		return true
	}
	return false
}

func (p *Parser) expect(kind TokenKind) Token {
	if p.at(kind) {
		t := p.tok
		p.next()
		return t
	}
	p.diags.Error(p.tok.Span, "expected %s, found %s", kind, p.tok.Kind)
	return Token{Kind: Token_Error, Span: p.tok.Span}
}

func (p *Parser) spanFrom(start Location) Span {
	return Span{Start: start, End: p.prev.Span.End}
}

// ---- Files and items ----

func (p *Parser) parseFile() *File {
	start := p.tok.Span.Start
	var items []AstNode
	for !p.at(Token_EOF) {
		item := p.parseItem()
		if item == nil {
			p.synchronizeItem()
			continue
		}
		items = append(items, item)
	}
	return NewFile(items, p.spanFrom(start))
}

func (p *Parser) parseItem() AstNode {
	start := p.tok.Span.Start

	exported := p.accept(Token_KwExport)

	switch {
	case p.at(Token_KwImport):
		if exported {
			p.diags.Error(p.tok.Span, "imports cannot be exported")
		}
		return p.parseImport()

	case p.at(Token_KwFunc):
		decl := p.parseFuncDecl(true)
		decl.Exported = exported
		if decl.IsExprBody {
			p.expect(Token_Semicolon)
		} else {
			p.accept(Token_Semicolon)
		}
		decl.span = p.spanFrom(start)
		return decl

	case p.at(Token_KwVar) || p.at(Token_KwConst):
		binding := p.parseBinding()
		p.expect(Token_Semicolon)
		decl := NewVarDecl(binding, p.spanFrom(start))
		decl.Exported = exported
		return decl
	}

	p.diags.Error(p.tok.Span, "expected a declaration or import at file scope, found %s", p.tok.Kind)
	return nil
}

func (p *Parser) parseImport() *ImportDecl {
	start := p.tok.Span.Start
	p.expect(Token_KwImport)

	var path []string
	name := p.expect(Token_Identifier)
	if name.Kind == Token_Identifier {
		path = append(path, name.Text)
	}
	for p.accept(Token_Dot) {
		seg := p.expect(Token_Identifier)
		if seg.Kind != Token_Identifier {
			break
		}
		path = append(path, seg.Text)
	}
	p.expect(Token_Semicolon)

	if len(path) == 0 {
		path = []string{"<error>"}
	}
	n := NewImportDecl(path, p.spanFrom(start))
	if path[0] == "<error>" {
		n.markError()
	}
	return n
}

// synchronizeItem skips tokens until a plausible item start.
func (p *Parser) synchronizeItem() {
	for !p.at(Token_EOF) {
		switch p.tok.Kind {
		case Token_KwImport, Token_KwExport, Token_KwFunc, Token_KwVar, Token_KwConst:
			return
		case Token_Semicolon:
			p.next()
			return
		}
		p.next()
	}
}

// ---- Declarations and bindings ----

// parseFuncDecl parses `func [name](params) body`.  Named is true for
// file items; function literals may leave the name empty.
func (p *Parser) parseFuncDecl(named bool) *FuncDecl {
	start := p.tok.Span.Start
	p.expect(Token_KwFunc)

	name := ""
	if named {
		t := p.expect(Token_Identifier)
		name = t.Text
	} else if p.at(Token_Identifier) {
		// Named function literals are allowed for recursion.
		name = p.tok.Text
		p.next()
	}

	p.expect(Token_LParen)
	var params []*ParamDecl
	for !p.at(Token_RParen) && !p.at(Token_EOF) {
		t := p.expect(Token_Identifier)
		if t.Kind != Token_Identifier {
			break
		}
		params = append(params, NewParamDecl(t.Text, t.Span))
		if !p.accept(Token_Comma) {
			break
		}
	}
	p.expect(Token_RParen)

	var body Expr
	isExprBody := false
	switch {
	case p.accept(Token_Eq):
		body = p.parseExpr()
		isExprBody = true
	case p.at(Token_LBrace):
		body = p.parseBlock()
	default:
		p.diags.Error(p.tok.Span, "expected a function body, found %s", p.tok.Kind)
		body = NewBlockExpr(nil, p.tok.Span)
		body.markError()
	}

	return NewFuncDecl(name, params, body, isExprBody, p.spanFrom(start))
}

// parseBinding parses `var x [= e]`, `const x = e`, or the tuple form
// `var (a, b) = e`.
func (p *Parser) parseBinding() Binding {
	start := p.tok.Span.Start
	isConst := false
	switch {
	case p.accept(Token_KwVar):
	case p.accept(Token_KwConst):
		isConst = true
	default:
		p.diags.Error(p.tok.Span, "expected 'var' or 'const', found %s", p.tok.Kind)
	}

	if p.accept(Token_LParen) {
		var names []string
		for !p.at(Token_RParen) && !p.at(Token_EOF) {
			t := p.expect(Token_Identifier)
			if t.Kind != Token_Identifier {
				break
			}
			names = append(names, t.Text)
			if !p.accept(Token_Comma) {
				break
			}
		}
		p.expect(Token_RParen)
		p.expect(Token_Eq)
		init := p.parseExpr()
		return NewTupleBinding(names, isConst, init, p.spanFrom(start))
	}

	t := p.expect(Token_Identifier)
	var init Expr
	if p.accept(Token_Eq) {
		init = p.parseExpr()
	}
	n := NewVarBinding(t.Text, isConst, init, p.spanFrom(start))
	if t.Kind != Token_Identifier {
		n.markError()
	}
	return n
}

// ---- Statements ----

func (p *Parser) parseStmt() Stmt {
	start := p.tok.Span.Start

	switch p.tok.Kind {
	case Token_Semicolon:
		p.next()
		return NewEmptyStmt(p.spanFrom(start))

	case Token_KwVar, Token_KwConst:
		binding := p.parseBinding()
		p.expect(Token_Semicolon)
		decl := NewVarDecl(binding, p.spanFrom(start))
		return NewDeclStmt(decl, p.spanFrom(start))

	case Token_KwAssert:
		return p.parseAssert()

	case Token_KwWhile:
		p.next()
		p.expect(Token_LParen)
		cond := p.parseExpr()
		p.expect(Token_RParen)
		body := p.parseBlock()
		return NewWhileStmt(cond, body, p.spanFrom(start))

	case Token_KwFor:
		return p.parseFor()
	}

	expr := p.parseExpr()
	// Statements ending in a block do not need a semicolon, nor does a
	// tail expression that produces the enclosing block's value.
	switch expr.(type) {
	case *IfExpr, *BlockExpr:
		p.accept(Token_Semicolon)
	default:
		if p.at(Token_RBrace) {
			p.accept(Token_Semicolon)
		} else {
			p.expect(Token_Semicolon)
		}
	}
	return NewExprStmt(expr, p.spanFrom(start))
}

func (p *Parser) parseAssert() Stmt {
	start := p.tok.Span.Start
	p.expect(Token_KwAssert)
	p.expect(Token_LParen)

	condStart := p.tok.Span.Start.Offset
	cond := p.parseExpr()
	condText := string(p.input[condStart:p.prev.Span.End.Offset])

	var message Expr
	if p.accept(Token_Comma) {
		message = p.parseExpr()
	}
	p.expect(Token_RParen)
	p.expect(Token_Semicolon)
	return NewAssertStmt(cond, message, condText, p.spanFrom(start))
}

func (p *Parser) parseFor() Stmt {
	start := p.tok.Span.Start
	p.expect(Token_KwFor)
	p.expect(Token_LParen)

	// `for (var x in e)` / `for (const x in e)` is the for-each
	// form; everything else is the classic three-clause loop.
	if p.at(Token_KwVar) || p.at(Token_KwConst) {
		isConst := p.tok.Kind == Token_KwConst
		bindStart := p.tok.Span.Start
		p.next()

		if p.at(Token_Identifier) && p.peekIs(Token_KwIn) {
			name := p.tok.Text
			p.next()
			binding := NewVarBinding(name, isConst, nil, p.spanFrom(bindStart))
			p.expect(Token_KwIn)
			iterable := p.parseExpr()
			p.expect(Token_RParen)
			body := p.parseBlock()
			return NewForEachStmt(binding, iterable, body, p.spanFrom(start))
		}

		if p.accept(Token_LParen) {
			// Tuple binding for-each: `for (const (k, v) in m)`.
			var names []string
			for !p.at(Token_RParen) && !p.at(Token_EOF) {
				t := p.expect(Token_Identifier)
				if t.Kind != Token_Identifier {
					break
				}
				names = append(names, t.Text)
				if !p.accept(Token_Comma) {
					break
				}
			}
			p.expect(Token_RParen)
			if p.accept(Token_KwIn) {
				binding := NewTupleBinding(names, isConst, nil, p.spanFrom(bindStart))
				iterable := p.parseExpr()
				p.expect(Token_RParen)
				body := p.parseBlock()
				return NewForEachStmt(binding, iterable, body, p.spanFrom(start))
			}
			p.expect(Token_Eq)
			init := p.parseExpr()
			binding := NewTupleBinding(names, isConst, init, p.spanFrom(bindStart))
			return p.parseForTail(start, binding)
		}

		// Classic loop with a `var i = 0` initializer.
		t := p.expect(Token_Identifier)
		var init Expr
		if p.accept(Token_Eq) {
			init = p.parseExpr()
		}
		binding := NewVarBinding(t.Text, isConst, init, p.spanFrom(bindStart))
		return p.parseForTail(start, binding)
	}

	// No initializer: `for (; cond; step)`.
	p.expect(Token_Semicolon)
	return p.parseForRest(start, nil)
}

// peekIs reports the kind of the token after the current one.  Uses a
// one-token-wide lexer checkpoint.
func (p *Parser) peekIs(kind TokenKind) bool {
	save := *p.lexer
	savePending := append([]Token(nil), p.lexer.pending...)
	t := p.lexer.Next()
	*p.lexer = save
	p.lexer.pending = savePending
	return t.Kind == kind
}

func (p *Parser) parseForTail(start Location, binding Binding) Stmt {
	decl := NewVarDecl(binding, binding.Span())
	init := NewDeclStmt(decl, binding.Span())
	p.expect(Token_Semicolon)
	return p.parseForRest(start, init)
}

func (p *Parser) parseForRest(start Location, init Stmt) Stmt {
	var cond, step Expr
	if !p.at(Token_Semicolon) {
		cond = p.parseExpr()
	}
	p.expect(Token_Semicolon)
	if !p.at(Token_RParen) {
		step = p.parseExpr()
	}
	p.expect(Token_RParen)
	body := p.parseBlock()
	return NewForStmt(init, cond, step, body, p.spanFrom(start))
}

func (p *Parser) parseBlock() *BlockExpr {
	start := p.tok.Span.Start
	p.expect(Token_LBrace)
	var stmts []Stmt
	for !p.at(Token_RBrace) && !p.at(Token_EOF) {
		stmts = append(stmts, p.parseStmt())
	}
	p.expect(Token_RBrace)
	return NewBlockExpr(stmts, p.spanFrom(start))
}

// ---- Expressions ----
//
// Binding powers, loosest to tightest.  Assignment is right
// associative, as is `**`.

const (
	precAssign = iota + 1
	precLogicOr
	precLogicAnd
	precEquality
	precComparison
	precAdditive
	precMultiplicative
	precPower
)

type infixOp struct {
	prec       int
	rightAssoc bool
	binOp      BinaryOpKind
	assignOp   AssignOpKind
	isAssign   bool
}

var infixOps = map[TokenKind]infixOp{
	Token_Eq:        {prec: precAssign, rightAssoc: true, isAssign: true, assignOp: AssignOp_Assign},
	Token_PlusEq:    {prec: precAssign, rightAssoc: true, isAssign: true, assignOp: AssignOp_Add},
	Token_MinusEq:   {prec: precAssign, rightAssoc: true, isAssign: true, assignOp: AssignOp_Sub},
	Token_StarEq:    {prec: precAssign, rightAssoc: true, isAssign: true, assignOp: AssignOp_Mul},
	Token_SlashEq:   {prec: precAssign, rightAssoc: true, isAssign: true, assignOp: AssignOp_Div},
	Token_PercentEq: {prec: precAssign, rightAssoc: true, isAssign: true, assignOp: AssignOp_Mod},
	Token_PipePipe:  {prec: precLogicOr, binOp: BinaryOp_LogicOr},
	Token_AmpAmp:    {prec: precLogicAnd, binOp: BinaryOp_LogicAnd},
	Token_EqEq:      {prec: precEquality, binOp: BinaryOp_Eq},
	Token_BangEq:    {prec: precEquality, binOp: BinaryOp_NotEq},
	Token_Lt:        {prec: precComparison, binOp: BinaryOp_Lt},
	Token_LtEq:      {prec: precComparison, binOp: BinaryOp_LtEq},
	Token_Gt:        {prec: precComparison, binOp: BinaryOp_Gt},
	Token_GtEq:      {prec: precComparison, binOp: BinaryOp_GtEq},
	Token_Plus:      {prec: precAdditive, binOp: BinaryOp_Add},
	Token_Minus:     {prec: precAdditive, binOp: BinaryOp_Sub},
	Token_Star:      {prec: precMultiplicative, binOp: BinaryOp_Mul},
	Token_Slash:     {prec: precMultiplicative, binOp: BinaryOp_Div},
	Token_Percent:   {prec: precMultiplicative, binOp: BinaryOp_Mod},
	Token_StarStar:  {prec: precPower, rightAssoc: true, binOp: BinaryOp_Pow},
}

func (p *Parser) parseExpr() Expr {
	return p.parseExprPrec(precAssign)
}

func (p *Parser) parseExprPrec(minPrec int) Expr {
	start := p.tok.Span.Start
	left := p.parseUnary()

	for {
		op, ok := infixOps[p.tok.Kind]
		if !ok || op.prec < minPrec {
			return left
		}
		p.next()

		nextPrec := op.prec + 1
		if op.rightAssoc {
			nextPrec = op.prec
		}
		right := p.parseExprPrec(nextPrec)

		if op.isAssign {
			left = NewAssignExpr(op.assignOp, left, right, p.spanFrom(start))
		} else {
			left = NewBinaryExpr(op.binOp, left, right, p.spanFrom(start))
		}
	}
}

func (p *Parser) parseUnary() Expr {
	start := p.tok.Span.Start
	switch p.tok.Kind {
	case Token_Minus:
		p.next()
		return NewUnaryExpr(UnaryOp_Minus, p.parseUnary(), p.spanFrom(start))
	case Token_Plus:
		p.next()
		return NewUnaryExpr(UnaryOp_Plus, p.parseUnary(), p.spanFrom(start))
	case Token_Bang:
		p.next()
		return NewUnaryExpr(UnaryOp_Not, p.parseUnary(), p.spanFrom(start))
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() Expr {
	start := p.tok.Span.Start
	expr := p.parsePrimary()

	for {
		switch {
		case p.accept(Token_Dot):
			switch {
			case p.at(Token_Identifier):
				name := p.tok.Text
				p.next()
				expr = NewFieldExpr(expr, name, p.spanFrom(start))
			case p.at(Token_Integer):
				index := int(p.tok.IntValue)
				p.next()
				expr = NewTupleFieldExpr(expr, index, p.spanFrom(start))
			default:
				p.diags.Error(p.tok.Span, "expected a member name or tuple index after '.'")
				expr.markError()
				return expr
			}

		case p.accept(Token_LBracket):
			index := p.parseExpr()
			p.expect(Token_RBracket)
			expr = NewIndexExpr(expr, index, p.spanFrom(start))

		case p.at(Token_LParen):
			args := p.parseArgs()
			expr = NewCallExpr(expr, args, p.spanFrom(start))

		default:
			return expr
		}
	}
}

func (p *Parser) parseArgs() []Expr {
	p.expect(Token_LParen)
	var args []Expr
	for !p.at(Token_RParen) && !p.at(Token_EOF) {
		args = append(args, p.parseExpr())
		if !p.accept(Token_Comma) {
			break
		}
	}
	p.expect(Token_RParen)
	return args
}

func (p *Parser) parsePrimary() Expr {
	start := p.tok.Span.Start

	switch p.tok.Kind {
	case Token_KwNull:
		p.next()
		return NewNullLit(p.spanFrom(start))

	case Token_KwTrue:
		p.next()
		return NewBoolLit(true, p.spanFrom(start))

	case Token_KwFalse:
		p.next()
		return NewBoolLit(false, p.spanFrom(start))

	case Token_Integer:
		v := p.tok.IntValue
		p.next()
		return NewIntLit(v, p.spanFrom(start))

	case Token_Float:
		v := p.tok.FloatValue
		p.next()
		return NewFloatLit(v, p.spanFrom(start))

	case Token_Symbol:
		name := p.tok.Text
		p.next()
		return NewSymbolLit(name, p.spanFrom(start))

	case Token_StringStart:
		return p.parseString()

	case Token_Identifier:
		name := p.tok.Text
		p.next()
		return NewVarExpr(name, p.spanFrom(start))

	case Token_KwFunc:
		decl := p.parseFuncDecl(false)
		return NewFuncLiteralExpr(decl, p.spanFrom(start))

	case Token_KwIf:
		return p.parseIf()

	case Token_KwReturn:
		p.next()
		var value Expr
		if !p.at(Token_Semicolon) && !p.at(Token_RBrace) && !p.at(Token_RParen) {
			value = p.parseExpr()
		}
		return NewReturnExpr(value, p.spanFrom(start))

	case Token_KwBreak:
		p.next()
		return NewBreakExpr(p.spanFrom(start))

	case Token_KwContinue:
		p.next()
		return NewContinueExpr(p.spanFrom(start))

	case Token_LBrace:
		return p.parseBlock()

	case Token_LBracket:
		p.next()
		var items []Expr
		for !p.at(Token_RBracket) && !p.at(Token_EOF) {
			items = append(items, p.parseExpr())
			if !p.accept(Token_Comma) {
				break
			}
		}
		p.expect(Token_RBracket)
		return NewArrayLit(items, p.spanFrom(start))

	case Token_KwMap:
		p.next()
		p.expect(Token_LBrace)
		var keys, values []Expr
		for !p.at(Token_RBrace) && !p.at(Token_EOF) {
			keys = append(keys, p.parseExpr())
			p.expect(Token_Colon)
			values = append(values, p.parseExpr())
			if !p.accept(Token_Comma) {
				break
			}
		}
		p.expect(Token_RBrace)
		return NewMapLit(keys, values, p.spanFrom(start))

	case Token_KwSet:
		p.next()
		p.expect(Token_LBrace)
		var items []Expr
		for !p.at(Token_RBrace) && !p.at(Token_EOF) {
			items = append(items, p.parseExpr())
			if !p.accept(Token_Comma) {
				break
			}
		}
		p.expect(Token_RBrace)
		return NewSetLit(items, p.spanFrom(start))

	case Token_LParen:
		return p.parseParen()
	}

	p.diags.Error(p.tok.Span, "expected an expression, found %s", p.tok.Kind)
	n := NewNullLit(p.tok.Span)
	n.markError()
	p.next()
	return n
}

// parseParen disambiguates grouping `(e)`, the empty tuple `()`,
// tuples `(a, b)`, and records `(a: 1, b: 2)`.
func (p *Parser) parseParen() Expr {
	start := p.tok.Span.Start
	p.expect(Token_LParen)

	if p.accept(Token_RParen) {
		return NewTupleLit(nil, p.spanFrom(start))
	}

	// `name:` opens a record literal.
	if p.at(Token_Identifier) && p.peekIs(Token_Colon) {
		var names []string
		var values []Expr
		for !p.at(Token_RParen) && !p.at(Token_EOF) {
			t := p.expect(Token_Identifier)
			p.expect(Token_Colon)
			names = append(names, t.Text)
			values = append(values, p.parseExpr())
			if !p.accept(Token_Comma) {
				break
			}
		}
		p.expect(Token_RParen)
		return NewRecordLit(names, values, p.spanFrom(start))
	}

	first := p.parseExpr()
	if p.accept(Token_Comma) {
		items := []Expr{first}
		for !p.at(Token_RParen) && !p.at(Token_EOF) {
			items = append(items, p.parseExpr())
			if !p.accept(Token_Comma) {
				break
			}
		}
		p.expect(Token_RParen)
		return NewTupleLit(items, p.spanFrom(start))
	}

	p.expect(Token_RParen)
	return first
}

func (p *Parser) parseIf() *IfExpr {
	start := p.tok.Span.Start
	p.expect(Token_KwIf)
	p.expect(Token_LParen)
	cond := p.parseExpr()
	p.expect(Token_RParen)
	then := p.parseBlock()

	var els Expr
	if p.accept(Token_KwElse) {
		if p.at(Token_KwIf) {
			els = p.parseIf()
		} else {
			els = p.parseBlock()
		}
	}
	return NewIfExpr(cond, then, els, p.spanFrom(start))
}

func (p *Parser) parseString() Expr {
	start := p.tok.Span.Start
	p.expect(Token_StringStart)

	var items []Expr
	for {
		switch p.tok.Kind {
		case Token_StringText:
			items = append(items, NewStringLit(p.tok.Text, p.tok.Span))
			p.next()

		case Token_StringDollar:
			opensBlock := p.tok.Text == "${"
			p.next()
			if opensBlock {
				expr := p.parseExpr()
				p.expect(Token_StringBlockEnd)
				items = append(items, expr)
			} else {
				t := p.expect(Token_Identifier)
				items = append(items, NewVarExpr(t.Text, t.Span))
			}

		case Token_StringEnd:
			p.next()
			span := p.spanFrom(start)
			// A plain string collapses to a single literal.
			if len(items) == 0 {
				return NewStringLit("", span)
			}
			if len(items) == 1 {
				if lit, ok := items[0].(*StringLit); ok {
					lit.span = span
					return lit
				}
			}
			return NewStringExpr(items, span)

		default:
			p.diags.Error(p.tok.Span, "unterminated string literal")
			n := NewStringExpr(items, p.spanFrom(start))
			n.markError()
			return n
		}
	}
}
