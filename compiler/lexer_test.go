package compiler

import (
	"testing"
)

func TestLexerBasicTokens(t *testing.T) {
	input := `( ) [ ] { } , : . & + - * / %`
	expected := []TokenType{
		TokenLParen, TokenRParen, TokenLBracket, TokenRBracket,
		TokenLBrace, TokenRBrace, TokenComma, TokenColon, TokenDot,
		TokenAmp, TokenPlus, TokenMinus, TokenStar, TokenSlash,
		TokenPercent, TokenEOF,
	}

	l := NewLexer(input)
	for i, want := range expected {
		tok := l.Next()
		if tok.Type != want {
			t.Errorf("token[%d] type = %v, want %v", i, tok.Type, want)
		}
	}
}

func TestLexerTwoCharOperators(t *testing.T) {
	input := `a += 1
a -= 1
a *= 1
a == 1
a != 1
a <= 1
a >= 1`
	want := []TokenType{
		TokenPlusEq, TokenMinusEq, TokenStarEq, TokenEq,
		TokenNotEq, TokenLessEq, TokenGreaterEq,
	}
	l := NewLexer(input)
	i := 0
	for {
		tok := l.Next()
		if tok.Type == TokenEOF {
			break
		}
		if tok.Type == TokenName || tok.Type == TokenInteger || tok.Type == TokenNewline {
			continue
		}
		if i >= len(want) {
			t.Fatalf("unexpected extra operator token %v", tok.Type)
		}
		if tok.Type != want[i] {
			t.Errorf("operator[%d] = %v, want %v", i, tok.Type, want[i])
		}
		i++
	}
	if i != len(want) {
		t.Errorf("got %d operator tokens, want %d", i, len(want))
	}
}

func TestLexerIntegers(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"42", 42},
		{"0", 0},
		{"0xFF", 255},
		{"0o17", 15},
		{"0b1010", 10},
		{"2147483647", 2147483647},
	}

	for _, tc := range tests {
		l := NewLexer(tc.input)
		tok := l.Next()
		if tok.Type != TokenInteger {
			t.Errorf("Lexer(%q): type = %v, want INTEGER", tc.input, tok.Type)
			continue
		}
		if tok.Int != tc.want {
			t.Errorf("Lexer(%q): value = %d, want %d", tc.input, tok.Int, tc.want)
		}
	}
}

func TestLexerIntegerOverflow(t *testing.T) {
	l := NewLexer("2147483648")
	tok := l.Next()
	if tok.Type != TokenEOF {
		t.Errorf("token type = %v, want EOF after error", tok.Type)
	}
	err := l.Err()
	if err == nil {
		t.Fatal("expected overflow error")
	}
	if err.Kind != ErrIntOverflow {
		t.Errorf("error kind = %v, want ErrIntOverflow", err.Kind)
	}
}

func TestLexerStrings(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`"hello"`, "hello"},
		{`""`, ""},
		{`"a\nb"`, "a\nb"},
		{`"tab\there"`, "tab\there"},
		{`"quote \" inside"`, `quote " inside`},
		{`"back\\slash"`, `back\slash`},
	}

	for _, tc := range tests {
		l := NewLexer(tc.input)
		tok := l.Next()
		if tok.Type != TokenString {
			t.Errorf("Lexer(%q): type = %v, want STRING", tc.input, tok.Type)
			continue
		}
		if tok.Value != tc.want {
			t.Errorf("Lexer(%q): value = %q, want %q", tc.input, tok.Value, tc.want)
		}
	}
}

func TestLexerUnclosedString(t *testing.T) {
	l := NewLexer(`"no end`)
	l.Next()
	err := l.Err()
	if err == nil || err.Kind != ErrUnclosedQuote {
		t.Errorf("error = %v, want ErrUnclosedQuote", err)
	}
}

func TestLexerKeywords(t *testing.T) {
	tests := []struct {
		input string
		want  TokenType
	}{
		{"def", TokenDef},
		{"const", TokenConst},
		{"entity", TokenEntity},
		{"extends", TokenExtends},
		{"virtual", TokenVirtual},
		{"override", TokenOverride},
		{"static", TokenStatic},
		{"interface", TokenInterface},
		{"result", TokenResult},
		{"while", TokenWhile},
		{"and", TokenAnd},
		{"or", TokenOr},
		{"not", TokenNot},
		{"true", TokenTrue},
		{"false", TokenFalse},
		{"self", TokenSelf},
		{"definition", TokenName}, // prefix of a keyword is still a name
	}

	for _, tc := range tests {
		l := NewLexer(tc.input)
		tok := l.Next()
		if tok.Type != tc.want {
			t.Errorf("Lexer(%q): type = %v, want %v", tc.input, tok.Type, tc.want)
		}
	}
}

func TestLexerIndentation(t *testing.T) {
	input := "if x:\n    a = 1\n    if y:\n        b = 2\nc = 3\n"
	var got []TokenType
	l := NewLexer(input)
	for {
		tok := l.Next()
		if tok.Type == TokenEOF {
			break
		}
		if tok.Type == TokenIndent || tok.Type == TokenDedent {
			got = append(got, tok.Type)
		}
	}
	if err := l.Err(); err != nil {
		t.Fatalf("lex error: %v", err)
	}
	want := []TokenType{TokenIndent, TokenIndent, TokenDedent, TokenDedent}
	if len(got) != len(want) {
		t.Fatalf("indent tokens = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("indent token[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestLexerInvalidDedent(t *testing.T) {
	input := "if x:\n        a = 1\n    b = 2\n"
	l := NewLexer(input)
	for l.Next().Type != TokenEOF {
	}
	err := l.Err()
	if err == nil || err.Kind != ErrInvalidDedent {
		t.Errorf("error = %v, want ErrInvalidDedent", err)
	}
}

func TestLexerBlankLinesIgnored(t *testing.T) {
	input := "a = 1\n\n   \n# comment only\nb = 2\n"
	l := NewLexer(input)
	for {
		tok := l.Next()
		if tok.Type == TokenEOF {
			break
		}
		if tok.Type == TokenIndent || tok.Type == TokenDedent {
			t.Errorf("unexpected %v from blank or comment line", tok.Type)
		}
	}
	if err := l.Err(); err != nil {
		t.Fatalf("lex error: %v", err)
	}
}

func TestLexerBracketsSuppressNewlines(t *testing.T) {
	input := "f(1,\n  2,\n  3)\n"
	l := NewLexer(input)
	newlines := 0
	for {
		tok := l.Next()
		if tok.Type == TokenEOF {
			break
		}
		if tok.Type == TokenNewline {
			newlines++
		}
		if tok.Type == TokenIndent {
			t.Error("unexpected INDENT inside brackets")
		}
	}
	if newlines != 1 {
		t.Errorf("newline tokens = %d, want 1 (only after closing paren)", newlines)
	}
}

func TestLexerCommand(t *testing.T) {
	input := "/say hello ${name} world\n"
	l := NewLexer(input)
	tok := l.Next()
	if tok.Type != TokenCommand {
		t.Fatalf("token type = %v, want COMMAND", tok.Type)
	}
	if tok.Value != "say hello ${name} world" {
		t.Errorf("command text = %q", tok.Value)
	}
}

func TestLexerSlashMidLineIsDivision(t *testing.T) {
	l := NewLexer("a = b / c\n")
	var types []TokenType
	for {
		tok := l.Next()
		if tok.Type == TokenEOF {
			break
		}
		types = append(types, tok.Type)
	}
	want := []TokenType{TokenName, TokenAssign, TokenName, TokenSlash, TokenName, TokenNewline}
	if len(types) != len(want) {
		t.Fatalf("tokens = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("token[%d] = %v, want %v", i, types[i], want[i])
		}
	}
}

func TestLexerComments(t *testing.T) {
	l := NewLexer("a = 1  # trailing comment\n")
	var types []TokenType
	for {
		tok := l.Next()
		if tok.Type == TokenEOF {
			break
		}
		types = append(types, tok.Type)
	}
	want := []TokenType{TokenName, TokenAssign, TokenInteger, TokenNewline}
	if len(types) != len(want) {
		t.Fatalf("tokens = %v, want %v", types, want)
	}
}

func TestLexerInvalidChar(t *testing.T) {
	l := NewLexer("a = @\n")
	for l.Next().Type != TokenEOF {
	}
	err := l.Err()
	if err == nil || err.Kind != ErrInvalidChar {
		t.Errorf("error = %v, want ErrInvalidChar", err)
	}
}
