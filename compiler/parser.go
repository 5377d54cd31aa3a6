package compiler

import "strings"

// ---------------------------------------------------------------------------
// Parser: recursive descent over the token stream
// ---------------------------------------------------------------------------

// Parser builds an AST from Cobble source. The first error aborts the
// parse; there is no recovery.
type Parser struct {
	lexer *Lexer
	cur   Token
	peek  Token
}

// NewParser creates a parser for the given source.
func NewParser(src string) *Parser {
	p := &Parser{lexer: NewLexer(src)}
	p.cur = p.lexer.Next()
	p.peek = p.lexer.Next()
	return p
}

// Parse parses a whole module.
func Parse(src string) (*Module, error) {
	return NewParser(src).ParseModule()
}

func (p *Parser) next() {
	p.cur = p.peek
	p.peek = p.lexer.Next()
}

func (p *Parser) lexErr() error {
	if d := p.lexer.Err(); d != nil {
		return d
	}
	return nil
}

func (p *Parser) unexpected() error {
	if err := p.lexErr(); err != nil {
		return err
	}
	return newDiag(ErrUnexpectedToken, p.cur.Pos, "unexpected token %s", p.cur)
}

func (p *Parser) expect(t TokenType) (Token, error) {
	if p.cur.Type != t {
		return Token{}, p.unexpected()
	}
	tok := p.cur
	p.next()
	return tok, nil
}

// endOfLine consumes a NEWLINE terminator. EOF and DEDENT also end a
// logical line but are left for the caller.
func (p *Parser) endOfLine() error {
	switch p.cur.Type {
	case TokenNewline:
		p.next()
		return nil
	case TokenEOF, TokenDedent:
		return nil
	}
	return p.unexpected()
}

// ParseModule parses the whole input as a module.
func (p *Parser) ParseModule() (*Module, error) {
	mod := &Module{PosVal: p.cur.Pos}
	for p.cur.Type != TokenEOF {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		mod.Body = append(mod.Body, stmt)
	}
	if err := p.lexErr(); err != nil {
		return nil, err
	}
	return mod, nil
}

func (p *Parser) parseStatement() (Stmt, error) {
	switch p.cur.Type {
	case TokenPass:
		pos := p.cur.Pos
		p.next()
		if err := p.endOfLine(); err != nil {
			return nil, err
		}
		return &PassStmt{PosVal: pos}, nil
	case TokenResult:
		return p.parseResult()
	case TokenConst:
		if p.peek.Type == TokenDef {
			return p.parseFuncDef(true, 0)
		}
		return p.parseConstDef()
	case TokenDef:
		return p.parseFuncDef(false, 0)
	case TokenVirtual, TokenOverride, TokenStatic:
		qual := p.cur.Type
		p.next()
		return p.parseFuncDef(false, qual)
	case TokenIf:
		return p.parseIf()
	case TokenWhile:
		return p.parseWhile()
	case TokenFor:
		return p.parseFor()
	case TokenEntity:
		return p.parseEntity()
	case TokenStruct:
		return p.parseStruct()
	case TokenInterface:
		return p.parseInterface()
	case TokenImport:
		return p.parseImport()
	case TokenCommand:
		return p.parseCommand()
	}
	return p.parseExprOrAssign()
}

func (p *Parser) parseResult() (Stmt, error) {
	pos := p.cur.Pos
	p.next()
	stmt := &ResultStmt{PosVal: pos}
	if p.cur.Type != TokenNewline && p.cur.Type != TokenEOF && p.cur.Type != TokenDedent {
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		stmt.Value = value
	}
	if err := p.endOfLine(); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *Parser) parseConstDef() (Stmt, error) {
	pos := p.cur.Pos
	p.next() // const
	name, err := p.expect(TokenName)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenAssign); err != nil {
		return nil, err
	}
	value, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.endOfLine(); err != nil {
		return nil, err
	}
	return &ConstDef{PosVal: pos, Name: name.Value, Value: value}, nil
}

func (p *Parser) parseImport() (Stmt, error) {
	pos := p.cur.Pos
	p.next()
	name, err := p.expect(TokenName)
	if err != nil {
		return nil, err
	}
	if err := p.endOfLine(); err != nil {
		return nil, err
	}
	return &ImportStmt{PosVal: pos, Name: name.Value}, nil
}

func (p *Parser) parseExprOrAssign() (Stmt, error) {
	pos := p.cur.Pos
	target, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	switch p.cur.Type {
	case TokenColon:
		// "name: type = value" definition, or a bare "name: type"
		// field declaration inside an entity or struct body
		name, ok := target.(*Name)
		if !ok {
			return nil, newDiag(ErrInvalidAssignTarget, pos, "invalid assignment target")
		}
		p.next()
		typeSpec, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if p.cur.Type != TokenAssign {
			if err := p.endOfLine(); err != nil {
				return nil, err
			}
			return &FieldDef{PosVal: pos, Name: name.Value, Type: typeSpec}, nil
		}
		p.next()
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if err := p.endOfLine(); err != nil {
			return nil, err
		}
		return &Assign{PosVal: pos, Target: target, Type: typeSpec, Value: value}, nil
	case TokenAssign:
		if !validAssignTarget(target) {
			return nil, newDiag(ErrInvalidAssignTarget, pos, "invalid assignment target")
		}
		p.next()
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if err := p.endOfLine(); err != nil {
			return nil, err
		}
		return &Assign{PosVal: pos, Target: target, Value: value}, nil
	case TokenPlusEq, TokenMinusEq, TokenStarEq, TokenSlashEq, TokenPercentEq:
		if !validAssignTarget(target) {
			return nil, newDiag(ErrInvalidAssignTarget, pos, "invalid assignment target")
		}
		op := map[TokenType]TokenType{
			TokenPlusEq: TokenPlus, TokenMinusEq: TokenMinus,
			TokenStarEq: TokenStar, TokenSlashEq: TokenSlash,
			TokenPercentEq: TokenPercent,
		}[p.cur.Type]
		p.next()
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if err := p.endOfLine(); err != nil {
			return nil, err
		}
		return &AugAssign{PosVal: pos, Op: op, Target: target, Value: value}, nil
	}
	if err := p.endOfLine(); err != nil {
		return nil, err
	}
	return &ExprStmt{PosVal: pos, Value: target}, nil
}

func validAssignTarget(e Expr) bool {
	switch e.(type) {
	case *Name, *Attribute, *Subscript:
		return true
	}
	return false
}

// parseBlock parses ":" NEWLINE INDENT stmts DEDENT.
func (p *Parser) parseBlock() ([]Stmt, error) {
	if _, err := p.expect(TokenColon); err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenNewline); err != nil {
		return nil, err
	}
	if p.cur.Type != TokenIndent {
		return nil, newDiag(ErrEmptyBlock, p.cur.Pos, "expected an indented block")
	}
	p.next()
	var body []Stmt
	for p.cur.Type != TokenDedent && p.cur.Type != TokenEOF {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		body = append(body, stmt)
	}
	if p.cur.Type == TokenDedent {
		p.next()
	}
	if len(body) == 0 {
		return nil, newDiag(ErrEmptyBlock, p.cur.Pos, "expected an indented block")
	}
	return body, nil
}

func (p *Parser) parseIf() (Stmt, error) {
	pos := p.cur.Pos
	p.next()
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	stmt := &IfStmt{PosVal: pos, Condition: cond, Body: body}
	switch p.cur.Type {
	case TokenElif:
		elif, err := p.parseIf()
		if err != nil {
			return nil, err
		}
		stmt.Else = []Stmt{elif}
	case TokenElse:
		p.next()
		stmt.Else, err = p.parseBlock()
		if err != nil {
			return nil, err
		}
	}
	return stmt, nil
}

func (p *Parser) parseWhile() (Stmt, error) {
	pos := p.cur.Pos
	p.next()
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &WhileStmt{PosVal: pos, Condition: cond, Body: body}, nil
}

func (p *Parser) parseFor() (Stmt, error) {
	pos := p.cur.Pos
	p.next()
	name, err := p.expect(TokenName)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenIn); err != nil {
		return nil, err
	}
	iter, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ForStmt{PosVal: pos, Name: name.Value, Iterable: iter, Body: body}, nil
}

func (p *Parser) parseFuncDef(isConst bool, qual TokenType) (*FuncDef, error) {
	pos := p.cur.Pos
	if isConst {
		p.next() // const
	}
	if _, err := p.expect(TokenDef); err != nil {
		return nil, err
	}
	name, err := p.expect(TokenName)
	if err != nil {
		return nil, err
	}
	fn := &FuncDef{
		PosVal:    pos,
		Name:      name.Value,
		Const:     isConst,
		Qualifier: qual,
	}
	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	for p.cur.Type != TokenRParen {
		param, err := p.parseParam()
		if err != nil {
			return nil, err
		}
		if seen[param.Name] {
			return nil, newDiag(ErrDuplicateArgDef, param.Pos,
				"duplicate argument %q in function definition", param.Name)
		}
		seen[param.Name] = true
		fn.Params = append(fn.Params, param)
		if p.cur.Type != TokenComma {
			break
		}
		p.next()
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	if p.cur.Type == TokenArrow {
		p.next()
		fn.Result, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}
	fn.Body, err = p.parseBlock()
	if err != nil {
		return nil, err
	}
	return fn, nil
}

func (p *Parser) parseParam() (ParamNode, error) {
	param := ParamNode{Pos: p.cur.Pos}
	switch p.cur.Type {
	case TokenAmp:
		param.Mode = ParamByRef
		p.next()
	case TokenConst:
		param.Mode = ParamConst
		p.next()
	}
	name, err := p.expect(TokenName)
	if err != nil {
		return param, err
	}
	param.Name = name.Value
	if p.cur.Type == TokenColon {
		p.next()
		param.Type, err = p.parseExpression()
		if err != nil {
			return param, err
		}
	}
	if p.cur.Type == TokenAssign {
		p.next()
		param.Default, err = p.parseExpression()
		if err != nil {
			return param, err
		}
	}
	return param, nil
}

func (p *Parser) parseEntity() (Stmt, error) {
	pos := p.cur.Pos
	p.next()
	name, err := p.expect(TokenName)
	if err != nil {
		return nil, err
	}
	def := &EntityDef{PosVal: pos, Name: name.Value}
	if p.cur.Type == TokenExtends {
		p.next()
		for {
			base, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			def.Bases = append(def.Bases, base)
			if p.cur.Type != TokenComma {
				break
			}
			p.next()
		}
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	for _, stmt := range body {
		switch s := stmt.(type) {
		case *FuncDef:
			def.Methods = append(def.Methods, s)
		case *FieldDef:
			def.Fields = append(def.Fields, s)
		case *PassStmt:
			// allowed for empty templates
		default:
			return nil, newDiag(ErrUnexpectedToken, stmt.Pos(),
				"only field and method declarations are allowed in an entity body")
		}
	}
	return def, nil
}

func (p *Parser) parseStruct() (Stmt, error) {
	pos := p.cur.Pos
	p.next()
	name, err := p.expect(TokenName)
	if err != nil {
		return nil, err
	}
	def := &StructDefNode{PosVal: pos, Name: name.Value}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	for _, stmt := range body {
		switch s := stmt.(type) {
		case *FieldDef:
			def.Fields = append(def.Fields, s)
		case *PassStmt:
		default:
			return nil, newDiag(ErrUnexpectedToken, stmt.Pos(),
				"only field declarations are allowed in a struct body")
		}
	}
	return def, nil
}

func (p *Parser) parseInterface() (Stmt, error) {
	pos := p.cur.Pos
	p.next()
	var path string
	if p.cur.Type == TokenString {
		path = p.cur.Value
		p.next()
	} else {
		var parts []string
		name, err := p.expect(TokenName)
		if err != nil {
			return nil, err
		}
		parts = append(parts, name.Value)
		for p.cur.Type == TokenSlash {
			p.next()
			name, err := p.expect(TokenName)
			if err != nil {
				return nil, err
			}
			parts = append(parts, name.Value)
		}
		path = strings.Join(parts, "/")
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &InterfaceDef{PosVal: pos, Path: path, Body: body}, nil
}

// parseCommand splits a raw command line into literal parts and ${...}
// substitution expressions.
func (p *Parser) parseCommand() (Stmt, error) {
	tok := p.cur
	p.next()
	stmt := &CommandStmt{PosVal: tok.Pos}
	text := tok.Value
	for {
		i := strings.Index(text, "${")
		if i < 0 {
			stmt.Parts = append(stmt.Parts, text)
			break
		}
		stmt.Parts = append(stmt.Parts, text[:i])
		rest := text[i+2:]
		j := strings.Index(rest, "}")
		if j < 0 {
			return nil, newDiag(ErrUnclosedSubst, tok.Pos, "unclosed formatted expression")
		}
		expr, err := parseSubExpr(rest[:j], tok.Pos)
		if err != nil {
			return nil, err
		}
		stmt.Substs = append(stmt.Substs, expr)
		text = rest[j+1:]
	}
	if err := p.endOfLine(); err != nil {
		return nil, err
	}
	return stmt, nil
}

// parseSubExpr parses the expression inside a ${...} substitution.
func parseSubExpr(src string, pos Position) (Expr, error) {
	sub := NewParser(src)
	expr, err := sub.parseExpression()
	if err != nil {
		return nil, err
	}
	if sub.cur.Type != TokenEOF && sub.cur.Type != TokenNewline {
		return nil, newDiag(ErrUnexpectedToken, pos, "invalid formatted expression")
	}
	return expr, nil
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (p *Parser) parseExpression() (Expr, error) {
	return p.parseOr()
}

func (p *Parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	if p.cur.Type != TokenOr {
		return left, nil
	}
	op := &BoolOp{PosVal: left.Pos(), Op: TokenOr, Operands: []Expr{left}}
	for p.cur.Type == TokenOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		op.Operands = append(op.Operands, right)
	}
	return op, nil
}

func (p *Parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	if p.cur.Type != TokenAnd {
		return left, nil
	}
	op := &BoolOp{PosVal: left.Pos(), Op: TokenAnd, Operands: []Expr{left}}
	for p.cur.Type == TokenAnd {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		op.Operands = append(op.Operands, right)
	}
	return op, nil
}

func (p *Parser) parseNot() (Expr, error) {
	if p.cur.Type == TokenNot {
		pos := p.cur.Pos
		p.next()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &UnaryOp{PosVal: pos, Op: TokenNot, Operand: operand}, nil
	}
	return p.parseComparison()
}

var compareOps = map[TokenType]bool{
	TokenEq: true, TokenNotEq: true, TokenLess: true,
	TokenGreater: true, TokenLessEq: true, TokenGreaterEq: true,
}

func (p *Parser) parseComparison() (Expr, error) {
	left, err := p.parseArith()
	if err != nil {
		return nil, err
	}
	if !compareOps[p.cur.Type] {
		return left, nil
	}
	cmp := &CompareOp{PosVal: left.Pos(), Left: left}
	for compareOps[p.cur.Type] {
		cmp.Ops = append(cmp.Ops, p.cur.Type)
		p.next()
		right, err := p.parseArith()
		if err != nil {
			return nil, err
		}
		cmp.Comparators = append(cmp.Comparators, right)
	}
	return cmp, nil
}

func (p *Parser) parseArith() (Expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == TokenPlus || p.cur.Type == TokenMinus {
		op := p.cur.Type
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &BinOp{PosVal: left.Pos(), Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseTerm() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == TokenStar || p.cur.Type == TokenSlash || p.cur.Type == TokenPercent {
		op := p.cur.Type
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinOp{PosVal: left.Pos(), Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseUnary() (Expr, error) {
	if p.cur.Type == TokenMinus || p.cur.Type == TokenPlus {
		pos := p.cur.Pos
		op := p.cur.Type
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryOp{PosVal: pos, Op: op, Operand: operand}, nil
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (Expr, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.cur.Type {
		case TokenDot:
			p.next()
			attr, err := p.expect(TokenName)
			if err != nil {
				return nil, err
			}
			expr = &Attribute{PosVal: expr.Pos(), Primary: expr, Attr: attr.Value}
		case TokenLBracket:
			p.next()
			index, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokenRBracket); err != nil {
				return nil, err
			}
			expr = &Subscript{PosVal: expr.Pos(), Primary: expr, Index: index}
		case TokenLParen:
			call, err := p.parseCall(expr)
			if err != nil {
				return nil, err
			}
			expr = call
		default:
			return expr, nil
		}
	}
}

func (p *Parser) parseCall(fn Expr) (Expr, error) {
	call := &Call{PosVal: fn.Pos(), Func: fn}
	p.next() // (
	seenKeyword := false
	seen := map[string]bool{}
	for p.cur.Type != TokenRParen {
		if p.cur.Type == TokenName && p.peek.Type == TokenAssign {
			name := p.cur
			p.next()
			p.next()
			value, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if seen[name.Value] {
				return nil, newDiag(ErrArgMultipleValues, name.Pos,
					"multiple values for argument %q", name.Value)
			}
			seen[name.Value] = true
			seenKeyword = true
			call.Keywords = append(call.Keywords, Keyword{
				Name: name.Value, Value: value, Pos: name.Pos,
			})
		} else {
			if seenKeyword {
				return nil, newDiag(ErrPositionalAfterKeyword, p.cur.Pos,
					"positional argument after keyword")
			}
			arg, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)
		}
		if p.cur.Type != TokenComma {
			break
		}
		p.next()
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return call, nil
}

func (p *Parser) parsePrimary() (Expr, error) {
	tok := p.cur
	switch tok.Type {
	case TokenInteger:
		p.next()
		return &IntLiteral{PosVal: tok.Pos, Value: tok.Int}, nil
	case TokenString:
		p.next()
		return &StringLiteral{PosVal: tok.Pos, Value: tok.Value}, nil
	case TokenTrue:
		p.next()
		return &BoolLiteral{PosVal: tok.Pos, Value: true}, nil
	case TokenFalse:
		p.next()
		return &BoolLiteral{PosVal: tok.Pos, Value: false}, nil
	case TokenNone:
		p.next()
		return &NoneLiteral{PosVal: tok.Pos}, nil
	case TokenSelf:
		p.next()
		return &SelfExpr{PosVal: tok.Pos}, nil
	case TokenName:
		p.next()
		return &Name{PosVal: tok.Pos, Value: tok.Value}, nil
	case TokenLParen:
		p.next()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return expr, nil
	case TokenLBracket:
		p.next()
		list := &ListLiteral{PosVal: tok.Pos}
		for p.cur.Type != TokenRBracket {
			elem, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			list.Elements = append(list.Elements, elem)
			if p.cur.Type != TokenComma {
				break
			}
			p.next()
		}
		if _, err := p.expect(TokenRBracket); err != nil {
			return nil, err
		}
		return list, nil
	case TokenLBrace:
		p.next()
		m := &MapLiteral{PosVal: tok.Pos}
		for p.cur.Type != TokenRBrace {
			key, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokenColon); err != nil {
				return nil, err
			}
			value, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			m.Keys = append(m.Keys, key)
			m.Values = append(m.Values, value)
			if p.cur.Type != TokenComma {
				break
			}
			p.next()
		}
		if _, err := p.expect(TokenRBrace); err != nil {
			return nil, err
		}
		return m, nil
	}
	return nil, p.unexpected()
}
