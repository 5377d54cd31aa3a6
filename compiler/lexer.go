package compiler

import (
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Lexer: indentation-aware tokenizer for Cobble source
// ---------------------------------------------------------------------------

const intWidth = 32 // target registers are 32-bit signed

// Lexer tokenizes Cobble source code. Indentation produces synthetic
// INDENT/DEDENT tokens; newlines inside brackets are ignored.
type Lexer struct {
	src        string
	pos        int
	line       int
	col        int
	indents    []int
	pending    []Token // queued DEDENTs
	depth      int     // bracket nesting
	atLine     bool    // at logical line start (no real token yet)
	needIndent bool    // indentation must be measured before next token
	err        *Diag
}

// NewLexer creates a lexer for the given source.
func NewLexer(src string) *Lexer {
	return &Lexer{
		src:        src,
		line:       1,
		col:        1,
		indents:    []int{0},
		atLine:     true,
		needIndent: true,
	}
}

// Err returns the first lexical error encountered, if any.
func (l *Lexer) Err() *Diag { return l.err }

func (l *Lexer) position() Position {
	return Position{Offset: l.pos, Line: l.line, Column: l.col}
}

func (l *Lexer) peek() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peekAt(off int) byte {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *Lexer) advance() byte {
	ch := l.src[l.pos]
	l.pos++
	if ch == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return ch
}

func (l *Lexer) errorf(kind ErrKind, pos Position, format string, args ...interface{}) Token {
	if l.err == nil {
		l.err = newDiag(kind, pos, format, args...)
	}
	return Token{Type: TokenEOF, Pos: pos}
}

func (l *Lexer) make(t TokenType, pos Position) Token {
	return Token{Type: t, Pos: pos}
}

// Next returns the next token.
func (l *Lexer) Next() Token {
	if len(l.pending) > 0 {
		tok := l.pending[0]
		l.pending = l.pending[1:]
		return tok
	}
	if l.err != nil {
		return Token{Type: TokenEOF, Pos: l.position()}
	}

	if l.needIndent && l.depth == 0 {
		l.needIndent = false
		if tok, ok := l.handleIndent(); ok {
			return tok
		}
	}

	for {
		ch := l.peek()
		if ch == 0 {
			return l.finish()
		}
		if ch == ' ' || ch == '\t' || ch == '\r' {
			l.advance()
			continue
		}
		if ch == '#' {
			for l.peek() != '\n' && l.peek() != 0 {
				l.advance()
			}
			continue
		}
		if ch == '\n' {
			pos := l.position()
			l.advance()
			if l.depth > 0 {
				continue // newline inside brackets
			}
			l.atLine = true
			l.needIndent = true
			return l.make(TokenNewline, pos)
		}
		break
	}

	pos := l.position()
	ch := l.peek()

	// A '/' at statement start begins a raw command line.
	if ch == '/' && l.atLine {
		return l.lexCommand(pos)
	}
	l.atLine = false

	switch {
	case isDigit(ch):
		return l.lexNumber(pos)
	case isNameStart(ch):
		return l.lexName(pos)
	case ch == '"':
		return l.lexString(pos)
	}

	l.advance()
	two := string(ch) + string(l.peek())
	switch two {
	case "+=", "-=", "*=", "/=", "%=", "==", "!=", "<=", ">=", "->":
		l.advance()
		return Token{Type: map[string]TokenType{
			"+=": TokenPlusEq, "-=": TokenMinusEq, "*=": TokenStarEq,
			"/=": TokenSlashEq, "%=": TokenPercentEq, "==": TokenEq,
			"!=": TokenNotEq, "<=": TokenLessEq, ">=": TokenGreaterEq,
			"->": TokenArrow,
		}[two], Pos: pos}
	}

	switch ch {
	case '+':
		return l.make(TokenPlus, pos)
	case '-':
		return l.make(TokenMinus, pos)
	case '*':
		return l.make(TokenStar, pos)
	case '/':
		return l.make(TokenSlash, pos)
	case '%':
		return l.make(TokenPercent, pos)
	case '=':
		return l.make(TokenAssign, pos)
	case '<':
		return l.make(TokenLess, pos)
	case '>':
		return l.make(TokenGreater, pos)
	case '(':
		l.depth++
		return l.make(TokenLParen, pos)
	case ')':
		l.depth--
		return l.make(TokenRParen, pos)
	case '[':
		l.depth++
		return l.make(TokenLBracket, pos)
	case ']':
		l.depth--
		return l.make(TokenRBracket, pos)
	case '{':
		l.depth++
		return l.make(TokenLBrace, pos)
	case '}':
		l.depth--
		return l.make(TokenRBrace, pos)
	case ',':
		return l.make(TokenComma, pos)
	case ':':
		return l.make(TokenColon, pos)
	case '.':
		return l.make(TokenDot, pos)
	case '&':
		return l.make(TokenAmp, pos)
	}
	return l.errorf(ErrInvalidChar, pos, "invalid character %q", string(ch))
}

// handleIndent measures leading whitespace of the current line and emits
// INDENT/DEDENT tokens against the indentation stack. Blank and
// comment-only lines are skipped entirely.
func (l *Lexer) handleIndent() (Token, bool) {
	for {
		start := l.pos
		spaces := 0
		for {
			ch := l.peek()
			if ch == ' ' {
				spaces++
			} else if ch == '\t' {
				spaces += 8 - spaces%8
			} else {
				break
			}
			l.advance()
		}
		ch := l.peek()
		if ch == '\n' {
			l.advance()
			continue // blank line
		}
		if ch == '#' {
			for l.peek() != '\n' && l.peek() != 0 {
				l.advance()
			}
			continue
		}
		if ch == 0 {
			l.pos = start
			return Token{}, false
		}
		pos := l.position()
		current := l.indents[len(l.indents)-1]
		if spaces > current {
			l.indents = append(l.indents, spaces)
			l.atLine = true
			return Token{Type: TokenIndent, Pos: pos}, true
		}
		if spaces < current {
			for len(l.indents) > 1 && l.indents[len(l.indents)-1] > spaces {
				l.indents = l.indents[:len(l.indents)-1]
				l.pending = append(l.pending, Token{Type: TokenDedent, Pos: pos})
			}
			if l.indents[len(l.indents)-1] != spaces {
				return l.errorf(ErrInvalidDedent, pos,
					"dedent does not match any outer indentation level"), true
			}
			tok := l.pending[0]
			l.pending = l.pending[1:]
			l.atLine = true
			return tok, true
		}
		l.atLine = true
		return Token{}, false
	}
}

func (l *Lexer) finish() Token {
	pos := l.position()
	for len(l.indents) > 1 {
		l.indents = l.indents[:len(l.indents)-1]
		l.pending = append(l.pending, Token{Type: TokenDedent, Pos: pos})
	}
	l.pending = append(l.pending, Token{Type: TokenEOF, Pos: pos})
	tok := l.pending[0]
	l.pending = l.pending[1:]
	return tok
}

func (l *Lexer) lexNumber(pos Position) Token {
	start := l.pos
	base := 10
	if l.peek() == '0' {
		switch l.peekAt(1) {
		case 'x', 'X':
			base = 16
			l.advance()
			l.advance()
			start = l.pos
		case 'o', 'O':
			base = 8
			l.advance()
			l.advance()
			start = l.pos
		case 'b', 'B':
			base = 2
			l.advance()
			l.advance()
			start = l.pos
		}
	}
	for isBaseDigit(l.peek(), base) {
		l.advance()
	}
	text := l.src[start:l.pos]
	if text == "" {
		return l.errorf(ErrInvalidChar, pos, "expected base %d integer", base)
	}
	v, err := strconv.ParseInt(text, base, 64)
	if err != nil || v > maxInt || v < minInt {
		return l.errorf(ErrIntOverflow, pos, "integer overflows %d-bit range", intWidth)
	}
	return Token{Type: TokenInteger, Value: text, Int: v, Pos: pos}
}

func (l *Lexer) lexName(pos Position) Token {
	start := l.pos
	for isNameChar(l.peek()) {
		l.advance()
	}
	name := l.src[start:l.pos]
	if kw, ok := keywords[name]; ok {
		return Token{Type: kw, Value: name, Pos: pos}
	}
	return Token{Type: TokenName, Value: name, Pos: pos}
}

func (l *Lexer) lexString(pos Position) Token {
	l.advance() // opening quote
	var b strings.Builder
	for {
		ch := l.peek()
		if ch == 0 || ch == '\n' {
			return l.errorf(ErrUnclosedQuote, pos, "unclosed double quote")
		}
		l.advance()
		if ch == '"' {
			break
		}
		if ch == '\\' {
			esc := l.peek()
			if esc == 0 {
				return l.errorf(ErrUnclosedQuote, pos, "unclosed double quote")
			}
			l.advance()
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '\\':
				b.WriteByte('\\')
			case '"':
				b.WriteByte('"')
			default:
				return l.errorf(ErrInvalidChar, pos, "invalid \\%s escape", string(esc))
			}
			continue
		}
		b.WriteByte(ch)
	}
	return Token{Type: TokenString, Value: b.String(), Pos: pos}
}

// lexCommand consumes a raw command line starting with '/'. The leading
// slash is stripped; ${...} substitutions stay in the text for the
// parser to split.
func (l *Lexer) lexCommand(pos Position) Token {
	l.advance() // '/'
	start := l.pos
	for l.peek() != '\n' && l.peek() != 0 {
		l.advance()
	}
	l.atLine = false
	return Token{Type: TokenCommand, Value: l.src[start:l.pos], Pos: pos}
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

func isBaseDigit(ch byte, base int) bool {
	switch {
	case base <= 10:
		return ch >= '0' && ch < '0'+byte(base)
	default:
		return isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
	}
}

func isNameStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isNameChar(ch byte) bool { return isNameStart(ch) || isDigit(ch) }
