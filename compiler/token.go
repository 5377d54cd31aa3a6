package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the Cobble lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenNewline
	TokenIndent
	TokenDedent

	// Literals
	TokenInteger // 42, 0xFF, 0o17, 0b1010
	TokenString  // "hello"
	TokenName    // foo, Bar
	TokenCommand // /say hi ${x}

	// Keywords
	TokenDef
	TokenConst
	TokenIf
	TokenElif
	TokenElse
	TokenWhile
	TokenFor
	TokenIn
	TokenPass
	TokenResult
	TokenEntity
	TokenExtends
	TokenVirtual
	TokenOverride
	TokenStatic
	TokenStruct
	TokenInterface
	TokenImport
	TokenAnd
	TokenOr
	TokenNot
	TokenTrue
	TokenFalse
	TokenNone
	TokenSelf

	// Operators and delimiters
	TokenPlus      // +
	TokenMinus     // -
	TokenStar      // *
	TokenSlash     // /
	TokenPercent   // %
	TokenAssign    // =
	TokenPlusEq    // +=
	TokenMinusEq   // -=
	TokenStarEq    // *=
	TokenSlashEq   // /=
	TokenPercentEq // %=
	TokenEq        // ==
	TokenNotEq     // !=
	TokenLess      // <
	TokenGreater   // >
	TokenLessEq    // <=
	TokenGreaterEq // >=
	TokenLParen    // (
	TokenRParen    // )
	TokenLBracket  // [
	TokenRBracket  // ]
	TokenLBrace    // {
	TokenRBrace    // }
	TokenComma     // ,
	TokenColon     // :
	TokenDot       // .
	TokenAmp       // &
	TokenArrow     // ->
)

var tokenNames = map[TokenType]string{
	TokenEOF:       "EOF",
	TokenNewline:   "NEWLINE",
	TokenIndent:    "INDENT",
	TokenDedent:    "DEDENT",
	TokenInteger:   "INTEGER",
	TokenString:    "STRING",
	TokenName:      "NAME",
	TokenCommand:   "COMMAND",
	TokenDef:       "def",
	TokenConst:     "const",
	TokenIf:        "if",
	TokenElif:      "elif",
	TokenElse:      "else",
	TokenWhile:     "while",
	TokenFor:       "for",
	TokenIn:        "in",
	TokenPass:      "pass",
	TokenResult:    "result",
	TokenEntity:    "entity",
	TokenExtends:   "extends",
	TokenVirtual:   "virtual",
	TokenOverride:  "override",
	TokenStatic:    "static",
	TokenStruct:    "struct",
	TokenInterface: "interface",
	TokenImport:    "import",
	TokenAnd:       "and",
	TokenOr:        "or",
	TokenNot:       "not",
	TokenTrue:      "true",
	TokenFalse:     "false",
	TokenNone:      "none",
	TokenSelf:      "self",
	TokenPlus:      "+",
	TokenMinus:     "-",
	TokenStar:      "*",
	TokenSlash:     "/",
	TokenPercent:   "%",
	TokenAssign:    "=",
	TokenPlusEq:    "+=",
	TokenMinusEq:   "-=",
	TokenStarEq:    "*=",
	TokenSlashEq:   "/=",
	TokenPercentEq: "%=",
	TokenEq:        "==",
	TokenNotEq:     "!=",
	TokenLess:      "<",
	TokenGreater:   ">",
	TokenLessEq:    "<=",
	TokenGreaterEq: ">=",
	TokenLParen:    "(",
	TokenRParen:    ")",
	TokenLBracket:  "[",
	TokenRBracket:  "]",
	TokenLBrace:    "{",
	TokenRBrace:    "}",
	TokenComma:     ",",
	TokenColon:     ":",
	TokenDot:       ".",
	TokenAmp:       "&",
	TokenArrow:     "->",
}

var keywords = map[string]TokenType{
	"def":       TokenDef,
	"const":     TokenConst,
	"if":        TokenIf,
	"elif":      TokenElif,
	"else":      TokenElse,
	"while":     TokenWhile,
	"for":       TokenFor,
	"in":        TokenIn,
	"pass":      TokenPass,
	"result":    TokenResult,
	"entity":    TokenEntity,
	"extends":   TokenExtends,
	"virtual":   TokenVirtual,
	"override":  TokenOverride,
	"static":    TokenStatic,
	"struct":    TokenStruct,
	"interface": TokenInterface,
	"import":    TokenImport,
	"and":       TokenAnd,
	"or":        TokenOr,
	"not":       TokenNot,
	"true":      TokenTrue,
	"false":     TokenFalse,
	"none":      TokenNone,
	"self":      TokenSelf,
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// Token represents a single lexical token.
type Token struct {
	Type  TokenType
	Value string // literal text for names, strings, integers, commands
	Int   int64  // parsed value for TokenInteger
	Pos   Position
}

func (t Token) String() string {
	switch t.Type {
	case TokenInteger:
		return fmt.Sprintf("%s(%d)", t.Type, t.Int)
	case TokenName, TokenString, TokenCommand:
		return fmt.Sprintf("%s(%s)", t.Type, t.Value)
	default:
		return t.Type.String()
	}
}
