package compiler

// ---------------------------------------------------------------------------
// AST: Abstract Syntax Tree for Cobble
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Pos() Position
	node() // marker method
}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr() // marker method
}

// IntLiteral represents an integer literal.
type IntLiteral struct {
	PosVal Position
	Value  int64
}

func (n *IntLiteral) Pos() Position { return n.PosVal }
func (n *IntLiteral) node()         {}
func (n *IntLiteral) expr()         {}

// BoolLiteral represents true or false.
type BoolLiteral struct {
	PosVal Position
	Value  bool
}

func (n *BoolLiteral) Pos() Position { return n.PosVal }
func (n *BoolLiteral) node()         {}
func (n *BoolLiteral) expr()         {}

// StringLiteral represents a string literal (compile-time only).
type StringLiteral struct {
	PosVal Position
	Value  string
}

func (n *StringLiteral) Pos() Position { return n.PosVal }
func (n *StringLiteral) node()         {}
func (n *StringLiteral) expr()         {}

// NoneLiteral represents the none literal.
type NoneLiteral struct {
	PosVal Position
}

func (n *NoneLiteral) Pos() Position { return n.PosVal }
func (n *NoneLiteral) node()         {}
func (n *NoneLiteral) expr()         {}

// SelfExpr represents the self reference inside entity methods.
type SelfExpr struct {
	PosVal Position
}

func (n *SelfExpr) Pos() Position { return n.PosVal }
func (n *SelfExpr) node()         {}
func (n *SelfExpr) expr()         {}

// ListLiteral represents a compile-time list [a, b, c].
type ListLiteral struct {
	PosVal   Position
	Elements []Expr
}

func (n *ListLiteral) Pos() Position { return n.PosVal }
func (n *ListLiteral) node()         {}
func (n *ListLiteral) expr()         {}

// MapLiteral represents a compile-time map {k: v}.
type MapLiteral struct {
	PosVal Position
	Keys   []Expr
	Values []Expr
}

func (n *MapLiteral) Pos() Position { return n.PosVal }
func (n *MapLiteral) node()         {}
func (n *MapLiteral) expr()         {}

// Name represents an identifier reference.
type Name struct {
	PosVal Position
	Value  string
}

func (n *Name) Pos() Position { return n.PosVal }
func (n *Name) node()         {}
func (n *Name) expr()         {}

// Attribute represents primary.attr access.
type Attribute struct {
	PosVal  Position
	Primary Expr
	Attr    string
}

func (n *Attribute) Pos() Position { return n.PosVal }
func (n *Attribute) node()         {}
func (n *Attribute) expr()         {}

// Subscript represents primary[index] access (compile-time containers).
type Subscript struct {
	PosVal  Position
	Primary Expr
	Index   Expr
}

func (n *Subscript) Pos() Position { return n.PosVal }
func (n *Subscript) node()         {}
func (n *Subscript) expr()         {}

// UnaryOp represents -x, +x or not x.
type UnaryOp struct {
	PosVal  Position
	Op      TokenType // TokenMinus, TokenPlus, TokenNot
	Operand Expr
}

func (n *UnaryOp) Pos() Position { return n.PosVal }
func (n *UnaryOp) node()         {}
func (n *UnaryOp) expr()         {}

// BinOp represents a binary arithmetic operation.
type BinOp struct {
	PosVal Position
	Op     TokenType // + - * / %
	Left   Expr
	Right  Expr
}

func (n *BinOp) Pos() Position { return n.PosVal }
func (n *BinOp) node()         {}
func (n *BinOp) expr()         {}

// CompareOp represents a (possibly chained) comparison a < b <= c.
type CompareOp struct {
	PosVal      Position
	Left        Expr
	Ops         []TokenType
	Comparators []Expr
}

func (n *CompareOp) Pos() Position { return n.PosVal }
func (n *CompareOp) node()         {}
func (n *CompareOp) expr()         {}

// BoolOp represents "a and b and c" or "a or b".
type BoolOp struct {
	PosVal   Position
	Op       TokenType // TokenAnd or TokenOr
	Operands []Expr
}

func (n *BoolOp) Pos() Position { return n.PosVal }
func (n *BoolOp) node()         {}
func (n *BoolOp) expr()         {}

// Call represents a function, method or constructor call.
type Call struct {
	PosVal   Position
	Func     Expr
	Args     []Expr
	Keywords []Keyword
}

// Keyword is a name=value argument in a call.
type Keyword struct {
	Name  string
	Value Expr
	Pos   Position
}

func (n *Call) Pos() Position { return n.PosVal }
func (n *Call) node()         {}
func (n *Call) expr()         {}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt() // marker method
}

// Module is an ordered list of top-level statements.
type Module struct {
	PosVal Position
	Body   []Stmt
}

func (n *Module) Pos() Position { return n.PosVal }
func (n *Module) node()         {}

// ExprStmt is an expression evaluated for its side effects.
type ExprStmt struct {
	PosVal Position
	Value  Expr
}

func (n *ExprStmt) Pos() Position { return n.PosVal }
func (n *ExprStmt) node()         {}
func (n *ExprStmt) stmt()         {}

// Assign represents "target = value" or "target: type = value".
// A plain name target defines the variable on first assignment.
type Assign struct {
	PosVal Position
	Target Expr
	Type   Expr // optional explicit type spec
	Value  Expr
}

func (n *Assign) Pos() Position { return n.PosVal }
func (n *Assign) node()         {}
func (n *Assign) stmt()         {}

// AugAssign represents "target op= value".
type AugAssign struct {
	PosVal Position
	Op     TokenType // + - * / %
	Target Expr
	Value  Expr
}

func (n *AugAssign) Pos() Position { return n.PosVal }
func (n *AugAssign) node()         {}
func (n *AugAssign) stmt()         {}

// ConstDef represents "const NAME = expr".
type ConstDef struct {
	PosVal Position
	Name   string
	Value  Expr
}

func (n *ConstDef) Pos() Position { return n.PosVal }
func (n *ConstDef) node()         {}
func (n *ConstDef) stmt()         {}

// PassStmt is a no-op.
type PassStmt struct {
	PosVal Position
}

func (n *PassStmt) Pos() Position { return n.PosVal }
func (n *PassStmt) node()         {}
func (n *PassStmt) stmt()         {}

// ResultStmt stores a value into the enclosing function's result slot.
// Execution continues with the following statement.
type ResultStmt struct {
	PosVal Position
	Value  Expr
}

func (n *ResultStmt) Pos() Position { return n.PosVal }
func (n *ResultStmt) node()         {}
func (n *ResultStmt) stmt()         {}

// IfStmt represents an if/elif/else chain; elif is parsed as a nested
// IfStmt in Else.
type IfStmt struct {
	PosVal    Position
	Condition Expr
	Body      []Stmt
	Else      []Stmt
}

func (n *IfStmt) Pos() Position { return n.PosVal }
func (n *IfStmt) node()         {}
func (n *IfStmt) stmt()         {}

// WhileStmt represents a while loop (compiled as recursion).
type WhileStmt struct {
	PosVal    Position
	Condition Expr
	Body      []Stmt
}

func (n *WhileStmt) Pos() Position { return n.PosVal }
func (n *WhileStmt) node()         {}
func (n *WhileStmt) stmt()         {}

// ForStmt represents compile-time iteration over a constant container.
type ForStmt struct {
	PosVal   Position
	Name     string
	Iterable Expr
	Body     []Stmt
}

func (n *ForStmt) Pos() Position { return n.PosVal }
func (n *ForStmt) node()         {}
func (n *ForStmt) stmt()         {}

// ParamMode is the argument passing convention of a parameter.
type ParamMode int

const (
	ParamByValue ParamMode = iota
	ParamByRef             // &name: bound to caller storage
	ParamConst             // const name: resolved at compile time
)

// ParamNode is one parameter in a function definition.
type ParamNode struct {
	Name    string
	Mode    ParamMode
	Type    Expr // optional for const params with defaults
	Default Expr // optional
	Pos     Position
}

// FuncDef represents "def"/"const def" definitions, entity methods and
// constructors.
type FuncDef struct {
	PosVal    Position
	Name      string
	Params    []ParamNode
	Result    Expr // optional result type spec
	Body      []Stmt
	Const     bool      // const def (compile-time function)
	Qualifier TokenType // 0, TokenVirtual, TokenOverride or TokenStatic
}

func (n *FuncDef) Pos() Position { return n.PosVal }
func (n *FuncDef) node()         {}
func (n *FuncDef) stmt()         {}

// FieldDef is a typed field declaration inside an entity or struct.
type FieldDef struct {
	PosVal Position
	Name   string
	Type   Expr
}

func (n *FieldDef) Pos() Position { return n.PosVal }
func (n *FieldDef) node()         {}
func (n *FieldDef) stmt()         {}

// EntityDef represents an entity template definition.
type EntityDef struct {
	PosVal  Position
	Name    string
	Bases   []Expr
	Fields  []*FieldDef
	Methods []*FuncDef // includes the "new" constructor if present
}

func (n *EntityDef) Pos() Position { return n.PosVal }
func (n *EntityDef) node()         {}
func (n *EntityDef) stmt()         {}

// StructDefNode represents a struct definition.
type StructDefNode struct {
	PosVal Position
	Name   string
	Fields []*FieldDef
}

func (n *StructDefNode) Pos() Position { return n.PosVal }
func (n *StructDefNode) node()         {}
func (n *StructDefNode) stmt()         {}

// InterfaceDef represents an exported entry point.
type InterfaceDef struct {
	PosVal Position
	Path   string
	Body   []Stmt
}

func (n *InterfaceDef) Pos() Position { return n.PosVal }
func (n *InterfaceDef) node()         {}
func (n *InterfaceDef) stmt()         {}

// CommandStmt is a raw command passthrough. Parts and Substs alternate:
// Parts[0] + Substs[0] + Parts[1] + ... + Parts[len-1].
type CommandStmt struct {
	PosVal Position
	Parts  []string
	Substs []Expr
}

func (n *CommandStmt) Pos() Position { return n.PosVal }
func (n *CommandStmt) node()         {}
func (n *CommandStmt) stmt()         {}

// ImportStmt loads another source file as a module.
type ImportStmt struct {
	PosVal Position
	Name   string
}

func (n *ImportStmt) Pos() Position { return n.PosVal }
func (n *ImportStmt) node()         {}
func (n *ImportStmt) stmt()         {}
