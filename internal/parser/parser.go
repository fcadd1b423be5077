package parser

import (
	"fmt"
	"strings"

	"quill/internal/errors"
	"quill/internal/lexer"
)

// precedence climbing table for the binary operators, lowest first
// (spec §6: arithmetic, comparison, logical, bitwise, in/is/instanceof
// all bind at their own level).
var precedence = map[lexer.TokenType]int{
	lexer.TokenOr:  1,
	lexer.TokenAnd: 2,

	lexer.TokenIn:       3,
	lexer.TokenIs:       3,
	lexer.TokenInstance: 3,

	lexer.TokenDoubleEqual: 4,
	lexer.TokenNotEqual:    4,
	lexer.TokenLT:          4,
	lexer.TokenGT:          4,
	lexer.TokenLE:          4,
	lexer.TokenGE:          4,

	lexer.TokenPipe:  5,
	lexer.TokenCaret: 5,
	lexer.TokenAmp:   6,
	lexer.TokenShl:   7,
	lexer.TokenShr:   7,

	lexer.TokenPlus:  8,
	lexer.TokenMinus: 8,

	lexer.TokenStar:    9,
	lexer.TokenSlash:   9,
	lexer.TokenPercent: 9,
}

// Parser is a recursive-descent parser over a flat token stream,
// grounded on the teacher's current/advance/check/consume shape.
type Parser struct {
	tokens  []lexer.Token
	current int
	file    string
	source  string
	lines   []string
	Errors  []error
}

func NewParser(file, source string, tokens []lexer.Token) *Parser {
	return &Parser{file: file, source: source, lines: strings.Split(source, "\n"), tokens: tokens}
}

// Parse consumes the whole token stream as a sequence of top-level
// statements (declarations and expression statements alike).
func (p *Parser) Parse() (stmts []Stmt) {
	defer func() {
		if r := recover(); r != nil {
			if err, ok := r.(error); ok {
				p.Errors = append(p.Errors, err)
			} else {
				p.Errors = append(p.Errors, fmt.Errorf("%v", r))
			}
			stmts = nil
		}
	}()

	for !p.isAtEnd() {
		stmts = append(stmts, p.statement())
	}
	return stmts
}

func (p *Parser) statement() Stmt {
	switch {
	case p.check(lexer.TokenIdent) && p.checkNext(lexer.TokenColon) && p.labelIntroducesLoop():
		label := p.advance().Lexeme
		p.advance() // ':'
		return p.labeledLoop(label)

	case p.match(lexer.TokenVar):
		return p.varDecl(false)
	case p.match(lexer.TokenConst):
		return p.varDecl(true)
	case p.match(lexer.TokenIf):
		return p.ifStatement()
	case p.check(lexer.TokenWhile):
		return p.labeledLoop("")
	case p.match(lexer.TokenFor):
		return p.forClause("")
	case p.match(lexer.TokenReturn):
		return p.returnStatement()
	case p.match(lexer.TokenBreak):
		return p.jumpStatement(true)
	case p.match(lexer.TokenContinue):
		return p.jumpStatement(false)
	case p.check(lexer.TokenFn):
		p.advance()
		fn := p.funcExpr(false)
		return &FuncDeclStmt{Fn: fn}
	}

	expr := p.expression()
	if p.match(lexer.TokenEqual) {
		line, col := exprPos(expr)
		value := p.expression()
		p.consumeStmtEnd()
		return &AssignStmt{Target: expr, Value: value, Line: line, Col: col}
	}
	p.consumeStmtEnd()
	return &ExprStmt{Expr: expr}
}

// labelIntroducesLoop reports whether the identifier-colon pair at the
// parser's current position is a loop label rather than, say, the start
// of an object-literal field (object literals only appear inside `{...}`
// which this entry point never sees at statement position).
func (p *Parser) labelIntroducesLoop() bool {
	return p.current+2 < len(p.tokens) &&
		(p.tokens[p.current+2].Type == lexer.TokenWhile || p.tokens[p.current+2].Type == lexer.TokenFor)
}

func (p *Parser) labeledLoop(label string) Stmt {
	if p.match(lexer.TokenWhile) {
		cond := p.expression()
		body := p.block()
		return &WhileStmt{Label: label, Cond: cond, Body: body}
	}
	p.consume(lexer.TokenFor, "expect 'for'")
	return p.forClause(label)
}

func (p *Parser) varDecl(isConst bool) Stmt {
	tok := p.consume(lexer.TokenIdent, "expect variable name")
	var typ Expr
	if p.match(lexer.TokenColon) {
		typ = p.unary()
	}
	p.consume(lexer.TokenEqual, "expect '=' in declaration")
	value := p.expression()
	p.consumeStmtEnd()
	return &VarStmt{Name: tok.Lexeme, Const: isConst, Type: typ, Value: value, Line: tok.Line, Col: tok.Column}
}

func (p *Parser) ifStatement() Stmt {
	cond := p.expression()
	then := p.block()
	var els []Stmt
	if p.match(lexer.TokenElse) {
		if p.check(lexer.TokenIf) {
			p.advance()
			els = []Stmt{p.ifStatement()}
		} else {
			els = p.block()
		}
	}
	return &IfStmt{Cond: cond, Then: then, Else: els}
}

func (p *Parser) forClause(label string) Stmt {
	// for x in collection { ... }
	if p.check(lexer.TokenIdent) && p.checkNext(lexer.TokenIn) {
		v := p.advance().Lexeme
		p.advance() // 'in'
		collection := p.expression()
		body := p.block()
		return &ForInStmt{Label: label, Var: v, Collection: collection, Body: body}
	}
	// for (x in collection) { ... }
	if p.check(lexer.TokenLParen) && p.current+2 < len(p.tokens) &&
		p.tokens[p.current+1].Type == lexer.TokenIdent && p.tokens[p.current+2].Type == lexer.TokenIn {
		p.advance() // '('
		v := p.advance().Lexeme
		p.advance() // 'in'
		collection := p.expression()
		p.consume(lexer.TokenRParen, "expect ')' after for-in collection")
		body := p.block()
		return &ForInStmt{Label: label, Var: v, Collection: collection, Body: body}
	}

	p.consume(lexer.TokenLParen, "expect '(' after 'for'")
	var init Stmt
	if !p.check(lexer.TokenSemicolon) {
		switch {
		case p.match(lexer.TokenVar):
			init = p.varDeclNoTerminator(false)
		case p.match(lexer.TokenConst):
			init = p.varDeclNoTerminator(true)
		default:
			e := p.expression()
			if p.match(lexer.TokenEqual) {
				line, col := exprPos(e)
				init = &AssignStmt{Target: e, Value: p.expression(), Line: line, Col: col}
			} else {
				init = &ExprStmt{Expr: e}
			}
		}
	}
	p.consume(lexer.TokenSemicolon, "expect ';' after for-loop initializer")

	var cond Expr
	if !p.check(lexer.TokenSemicolon) {
		cond = p.expression()
	}
	p.consume(lexer.TokenSemicolon, "expect ';' after for-loop condition")

	var post Stmt
	if !p.check(lexer.TokenRParen) {
		e := p.expression()
		if p.match(lexer.TokenEqual) {
			line, col := exprPos(e)
			post = &AssignStmt{Target: e, Value: p.expression(), Line: line, Col: col}
		} else {
			post = &ExprStmt{Expr: e}
		}
	}
	p.consume(lexer.TokenRParen, "expect ')' after for-loop clauses")

	body := p.block()
	return &ForStmt{Label: label, Init: init, Cond: cond, Post: post, Body: body}
}

// varDeclNoTerminator parses `var x = expr` / `const x = expr` without
// requiring a trailing ';' — used inside a for-loop's parenthesized
// clause list, where ';' is the clause separator instead.
func (p *Parser) varDeclNoTerminator(isConst bool) Stmt {
	tok := p.consume(lexer.TokenIdent, "expect variable name")
	var typ Expr
	if p.match(lexer.TokenColon) {
		typ = p.unary()
	}
	p.consume(lexer.TokenEqual, "expect '=' in declaration")
	value := p.expression()
	return &VarStmt{Name: tok.Lexeme, Const: isConst, Type: typ, Value: value, Line: tok.Line, Col: tok.Column}
}

func (p *Parser) returnStatement() Stmt {
	tok := p.previous()
	var value Expr
	if !p.check(lexer.TokenRBrace) && !p.check(lexer.TokenSemicolon) && !p.isAtEnd() {
		value = p.expression()
	}
	p.consumeStmtEnd()
	return &ReturnStmt{Value: value, Line: tok.Line, Col: tok.Column}
}

func (p *Parser) jumpStatement(isBreak bool) Stmt {
	var label string
	if p.check(lexer.TokenIdent) {
		label = p.advance().Lexeme
	}
	p.consumeStmtEnd()
	if isBreak {
		return &BreakStmt{Label: label}
	}
	return &ContinueStmt{Label: label}
}

func (p *Parser) block() []Stmt {
	p.consume(lexer.TokenLBrace, "expect '{' to start block")
	var stmts []Stmt
	for !p.check(lexer.TokenRBrace) && !p.isAtEnd() {
		stmts = append(stmts, p.statement())
	}
	p.consume(lexer.TokenRBrace, "expect '}' to close block")
	return stmts
}

// consumeStmtEnd swallows an optional ';' — quill statements don't
// strictly require one at a block boundary.
func (p *Parser) consumeStmtEnd() {
	p.match(lexer.TokenSemicolon)
}

// --- expressions, precedence-climbing ------------------------------------

func (p *Parser) expression() Expr {
	return p.binary(0)
}

func (p *Parser) binary(minPrec int) Expr {
	left := p.unary()
	for {
		tok := p.peek()
		prec, ok := precedence[tok.Type]
		if !ok || prec < minPrec {
			break
		}
		p.advance()
		right := p.binary(prec + 1)
		switch tok.Type {
		case lexer.TokenAnd:
			left = &LogicalExpr{Op: "&&", Left: left, Right: right, Line: tok.Line, Col: tok.Column}
		case lexer.TokenOr:
			left = &LogicalExpr{Op: "||", Left: left, Right: right, Line: tok.Line, Col: tok.Column}
		case lexer.TokenIn:
			left = &InExpr{Key: left, Obj: right, Line: tok.Line, Col: tok.Column}
		case lexer.TokenIs:
			left = &IsExpr{Value: left, Proto: right, Line: tok.Line, Col: tok.Column}
		case lexer.TokenInstance:
			left = &InstanceOfExpr{Value: left, Proto: right, Line: tok.Line, Col: tok.Column}
		default:
			left = &BinaryExpr{Op: string(tok.Type), Left: left, Right: right, Line: tok.Line, Col: tok.Column}
		}
	}
	return left
}

func (p *Parser) unary() Expr {
	if p.check(lexer.TokenNot) || p.check(lexer.TokenMinus) || p.check(lexer.TokenTilde) {
		tok := p.advance()
		operand := p.unary()
		return &UnaryExpr{Op: tok.Lexeme, Operand: operand, Line: tok.Line, Col: tok.Column}
	}
	return p.postfix()
}

func (p *Parser) postfix() Expr {
	expr := p.primary()
	for {
		switch {
		case p.match(lexer.TokenDot):
			tok := p.consume(lexer.TokenIdent, "expect property name after '.'")
			expr = &PropExpr{Object: expr, Name: tok.Lexeme, Line: tok.Line, Col: tok.Column}
		case p.match(lexer.TokenQuestionDot):
			tok := p.consume(lexer.TokenIdent, "expect property name after '?.'")
			expr = &PropExpr{Object: expr, Name: tok.Lexeme, Optional: true, Line: tok.Line, Col: tok.Column}
		case p.match(lexer.TokenLParen):
			expr = p.finishCall(expr, false)
		case p.match(lexer.TokenQuestionCall):
			expr = p.finishCall(expr, true)
		case p.match(lexer.TokenLBracket):
			tok := p.previous()
			idx := p.expression()
			p.consume(lexer.TokenRBracket, "expect ']' after index")
			expr = &IndexExpr{Object: expr, Index: idx, Line: tok.Line, Col: tok.Column}
		case p.match(lexer.TokenQuestionIndex):
			tok := p.previous()
			idx := p.expression()
			p.consume(lexer.TokenRBracket, "expect ']' after index")
			expr = &IndexExpr{Object: expr, Index: idx, Optional: true, Line: tok.Line, Col: tok.Column}
		default:
			return expr
		}
	}
}

func (p *Parser) finishCall(callee Expr, optional bool) Expr {
	tok := p.previous()
	var args []Expr
	if !p.check(lexer.TokenRParen) {
		args = append(args, p.expression())
		for p.match(lexer.TokenComma) {
			args = append(args, p.expression())
		}
	}
	p.consume(lexer.TokenRParen, "expect ')' after arguments")
	return &CallExpr{Callee: callee, Args: args, Optional: optional, Line: tok.Line, Col: tok.Column}
}

func (p *Parser) primary() Expr {
	tok := p.advance()
	switch tok.Type {
	case lexer.TokenNumber:
		return &NumberLit{Raw: tok.Lexeme, Line: tok.Line, Col: tok.Column}
	case lexer.TokenString:
		return &StringLit{Value: tok.Lexeme, Line: tok.Line, Col: tok.Column}
	case lexer.TokenTrue:
		return &BoolLit{Value: true, Line: tok.Line, Col: tok.Column}
	case lexer.TokenFalse:
		return &BoolLit{Value: false, Line: tok.Line, Col: tok.Column}
	case lexer.TokenNull:
		return &NullLit{Line: tok.Line, Col: tok.Column}
	case lexer.TokenIdent:
		return &Ident{Name: tok.Lexeme, Line: tok.Line, Col: tok.Column}
	case lexer.TokenLBracket:
		return p.arrayLiteral(tok)
	case lexer.TokenLBrace:
		return p.objectLiteral(nil, tok)
	case lexer.TokenLParen:
		expr := p.expression()
		p.consume(lexer.TokenRParen, "expect ')' after expression")
		return expr
	case lexer.TokenNew:
		return p.newExpr(tok)
	case lexer.TokenFn:
		return p.funcExpr(false)
	case lexer.TokenMethod:
		return p.funcExpr(true)
	default:
		p.errorAt(tok, fmt.Sprintf("unexpected token %q in expression", tok.Lexeme))
		panic(p.Errors[len(p.Errors)-1])
	}
}

func (p *Parser) arrayLiteral(tok lexer.Token) Expr {
	var elems []Expr
	for !p.check(lexer.TokenRBracket) && !p.isAtEnd() {
		elems = append(elems, p.expression())
		if !p.match(lexer.TokenComma) {
			break
		}
	}
	p.consume(lexer.TokenRBracket, "expect ']' after array elements")
	return &ArrayLit{Elements: elems, Line: tok.Line, Col: tok.Column}
}

// objectLiteral parses `{ name: type = value; ... }`, spec §6's object
// literal grammar; type is optional (`name = value;` is also valid).
func (p *Parser) objectLiteral(parent Expr, tok lexer.Token) *ObjectLit {
	obj := &ObjectLit{Parent: parent, Line: tok.Line, Col: tok.Column}
	for !p.check(lexer.TokenRBrace) && !p.isAtEnd() {
		nameTok := p.consume(lexer.TokenIdent, "expect field name")
		field := ObjectField{Name: nameTok.Lexeme}
		if p.match(lexer.TokenColon) {
			field.Type = p.unary()
		}
		p.consume(lexer.TokenEqual, "expect '=' after field name")
		field.Value = p.expression()
		obj.Fields = append(obj.Fields, field)
		if !p.match(lexer.TokenSemicolon) && !p.match(lexer.TokenComma) {
			break
		}
	}
	p.consume(lexer.TokenRBrace, "expect '}' after object literal")
	return obj
}

func (p *Parser) newExpr(tok lexer.Token) Expr {
	proto := p.postfix()
	n := &NewExpr{Proto: proto, Line: tok.Line, Col: tok.Column}
	if p.match(lexer.TokenLParen) {
		if !p.check(lexer.TokenRParen) {
			n.Args = append(n.Args, p.expression())
			for p.match(lexer.TokenComma) {
				n.Args = append(n.Args, p.expression())
			}
		}
		p.consume(lexer.TokenRParen, "expect ')' after constructor arguments")
	}
	if p.check(lexer.TokenLBrace) {
		braceTok := p.advance()
		n.Body = p.objectLiteral(nil, braceTok)
	}
	return n
}

// funcExpr parses both `fn`/`function` and `method` expressions: a
// parenthesized parameter list, an optional `: type` return annotation
// (accepted and discarded — quill has no static return-type checking),
// and either a `=>` expression body or a `{ ... }` block body.
func (p *Parser) funcExpr(isMethod bool) *FuncExpr {
	tok := p.previous()
	fn := &FuncExpr{IsMethod: isMethod, Line: tok.Line, Col: tok.Column}
	if p.check(lexer.TokenIdent) && p.checkNext(lexer.TokenLParen) {
		fn.Name = p.advance().Lexeme
	}
	p.consume(lexer.TokenLParen, "expect '(' after function name")
	if !p.check(lexer.TokenRParen) {
		fn.Params = append(fn.Params, p.consume(lexer.TokenIdent, "expect parameter name").Lexeme)
		for p.match(lexer.TokenComma) {
			fn.Params = append(fn.Params, p.consume(lexer.TokenIdent, "expect parameter name").Lexeme)
		}
	}
	p.consume(lexer.TokenRParen, "expect ')' after parameters")
	if p.match(lexer.TokenColon) {
		p.consume(lexer.TokenIdent, "expect return type after ':'")
	}
	if p.match(lexer.TokenArrow) {
		fn.Body = []Stmt{&ReturnStmt{Value: p.expression(), Line: tok.Line, Col: tok.Column}}
		return fn
	}
	fn.Body = p.block()
	return fn
}

// --- low-level token utilities --------------------------------------------

func (p *Parser) match(t lexer.TokenType) bool {
	if p.check(t) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) consume(t lexer.TokenType, msg string) lexer.Token {
	if p.check(t) {
		return p.advance()
	}
	p.errorAt(p.peek(), fmt.Sprintf("%s (got %q)", msg, p.peek().Lexeme))
	panic(p.Errors[len(p.Errors)-1])
}

func (p *Parser) errorAt(tok lexer.Token, msg string) {
	err := errors.NewParseError(msg, p.file, tok.Line, tok.Column)
	if tok.Line > 0 && tok.Line <= len(p.lines) {
		err = err.WithSource(p.lines[tok.Line-1])
	}
	p.Errors = append(p.Errors, err)
}

func (p *Parser) check(t lexer.TokenType) bool {
	return !p.isAtEnd() && p.peek().Type == t
}

func (p *Parser) checkNext(t lexer.TokenType) bool {
	if p.current+1 >= len(p.tokens) {
		return false
	}
	return p.tokens[p.current+1].Type == t
}

func (p *Parser) advance() lexer.Token {
	if !p.isAtEnd() {
		p.current++
	}
	return p.tokens[p.current-1]
}

func (p *Parser) previous() lexer.Token { return p.tokens[p.current-1] }
func (p *Parser) peek() lexer.Token     { return p.tokens[p.current] }
func (p *Parser) isAtEnd() bool         { return p.peek().Type == lexer.TokenEOF }

func exprPos(e Expr) (int, int) {
	switch v := e.(type) {
	case *Ident:
		return v.Line, v.Col
	case *PropExpr:
		return v.Line, v.Col
	case *IndexExpr:
		return v.Line, v.Col
	default:
		return 0, 0
	}
}
