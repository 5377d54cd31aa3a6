package compiler

import (
	"testing"
)

func parseOne(t *testing.T, src string) Stmt {
	t.Helper()
	mod, err := Parse(src)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if len(mod.Body) != 1 {
		t.Fatalf("got %d statements, want 1", len(mod.Body))
	}
	return mod.Body[0]
}

func parseKind(t *testing.T, src string) ErrKind {
	t.Helper()
	_, err := Parse(src)
	if err == nil {
		t.Fatalf("Parse(%q): expected error", src)
	}
	d, ok := err.(*Diag)
	if !ok {
		t.Fatalf("Parse(%q): error %v is not a diagnostic", src, err)
	}
	return d.Kind
}

func TestParseAssignment(t *testing.T) {
	stmt := parseOne(t, "x = 1 + 2\n")
	assign, ok := stmt.(*Assign)
	if !ok {
		t.Fatalf("statement = %T, want *Assign", stmt)
	}
	name, ok := assign.Target.(*Name)
	if !ok || name.Value != "x" {
		t.Errorf("target = %v, want name x", assign.Target)
	}
	bin, ok := assign.Value.(*BinOp)
	if !ok || bin.Op != TokenPlus {
		t.Errorf("value = %v, want binary +", assign.Value)
	}
}

func TestParseTypedAssignment(t *testing.T) {
	stmt := parseOne(t, "m: Mob = z\n")
	assign, ok := stmt.(*Assign)
	if !ok {
		t.Fatalf("statement = %T, want *Assign", stmt)
	}
	if assign.Type == nil {
		t.Fatal("missing type spec")
	}
	typ, ok := assign.Type.(*Name)
	if !ok || typ.Value != "Mob" {
		t.Errorf("type spec = %v, want name Mob", assign.Type)
	}
}

func TestParseAugAssign(t *testing.T) {
	tests := []struct {
		src string
		op  TokenType
	}{
		{"x += 1\n", TokenPlus},
		{"x -= 1\n", TokenMinus},
		{"x *= 2\n", TokenStar},
		{"x /= 2\n", TokenSlash},
		{"x %= 3\n", TokenPercent},
	}
	for _, tc := range tests {
		stmt := parseOne(t, tc.src)
		aug, ok := stmt.(*AugAssign)
		if !ok {
			t.Fatalf("Parse(%q): statement = %T, want *AugAssign", tc.src, stmt)
		}
		if aug.Op != tc.op {
			t.Errorf("Parse(%q): op = %v, want %v", tc.src, aug.Op, tc.op)
		}
	}
}

func TestParseInvalidAssignTarget(t *testing.T) {
	if kind := parseKind(t, "1 = 2\n"); kind != ErrInvalidAssignTarget {
		t.Errorf("kind = %v, want ErrInvalidAssignTarget", kind)
	}
}

func TestParseConstDef(t *testing.T) {
	stmt := parseOne(t, "const limit = 64\n")
	def, ok := stmt.(*ConstDef)
	if !ok {
		t.Fatalf("statement = %T, want *ConstDef", stmt)
	}
	if def.Name != "limit" {
		t.Errorf("name = %q, want limit", def.Name)
	}
}

func TestParseFuncDef(t *testing.T) {
	src := `def clamp(v: int, lo: int = 0, hi: int = 10) -> int:
    result v
`
	stmt := parseOne(t, src)
	fn, ok := stmt.(*FuncDef)
	if !ok {
		t.Fatalf("statement = %T, want *FuncDef", stmt)
	}
	if fn.Name != "clamp" {
		t.Errorf("name = %q, want clamp", fn.Name)
	}
	if len(fn.Params) != 3 {
		t.Fatalf("params = %d, want 3", len(fn.Params))
	}
	if fn.Params[0].Default != nil {
		t.Error("param v should have no default")
	}
	if fn.Params[1].Default == nil || fn.Params[2].Default == nil {
		t.Error("params lo and hi should have defaults")
	}
	if fn.Result == nil {
		t.Error("missing result type")
	}
}

func TestParseParamModes(t *testing.T) {
	src := `def f(a: int, &b: int, const c):
    pass
`
	fn := parseOne(t, src).(*FuncDef)
	if fn.Params[0].Mode != ParamByValue {
		t.Errorf("param a mode = %v, want by-value", fn.Params[0].Mode)
	}
	if fn.Params[1].Mode != ParamByRef {
		t.Errorf("param b mode = %v, want by-ref", fn.Params[1].Mode)
	}
	if fn.Params[2].Mode != ParamConst {
		t.Errorf("param c mode = %v, want const", fn.Params[2].Mode)
	}
}

func TestParseConstFuncDef(t *testing.T) {
	src := `const def square(n: int) -> int:
    result n * n
`
	fn := parseOne(t, src).(*FuncDef)
	if !fn.Const {
		t.Error("function should be const")
	}
}

func TestParseDuplicateParam(t *testing.T) {
	src := `def f(a: int, a: int):
    pass
`
	if kind := parseKind(t, src); kind != ErrDuplicateArgDef {
		t.Errorf("kind = %v, want ErrDuplicateArgDef", kind)
	}
}

func TestParseEntity(t *testing.T) {
	src := `entity Zombie extends Mob, Undead:
    speed: int
    virtual def tick():
        pass
`
	stmt := parseOne(t, src)
	def, ok := stmt.(*EntityDef)
	if !ok {
		t.Fatalf("statement = %T, want *EntityDef", stmt)
	}
	if len(def.Bases) != 2 {
		t.Errorf("bases = %d, want 2", len(def.Bases))
	}
	if len(def.Fields) != 1 || def.Fields[0].Name != "speed" {
		t.Errorf("fields = %v", def.Fields)
	}
	if len(def.Methods) != 1 || def.Methods[0].Qualifier != TokenVirtual {
		t.Errorf("methods = %v", def.Methods)
	}
}

func TestParseEntityRejectsStatements(t *testing.T) {
	src := `entity E:
    x = 1
`
	if kind := parseKind(t, src); kind != ErrUnexpectedToken {
		t.Errorf("kind = %v, want ErrUnexpectedToken", kind)
	}
}

func TestParseStruct(t *testing.T) {
	src := `struct Vec:
    x: int
    y: int
`
	def, ok := parseOne(t, src).(*StructDefNode)
	if !ok {
		t.Fatal("want *StructDefNode")
	}
	if len(def.Fields) != 2 {
		t.Errorf("fields = %d, want 2", len(def.Fields))
	}
}

func TestParseInterfacePaths(t *testing.T) {
	tests := []struct {
		src  string
		path string
	}{
		{"interface \"game/start\":\n    pass\n", "game/start"},
		{"interface tick:\n    pass\n", "tick"},
		{"interface game/loop/main:\n    pass\n", "game/loop/main"},
	}
	for _, tc := range tests {
		def, ok := parseOne(t, tc.src).(*InterfaceDef)
		if !ok {
			t.Fatalf("Parse(%q): want *InterfaceDef", tc.src)
		}
		if def.Path != tc.path {
			t.Errorf("Parse(%q): path = %q, want %q", tc.src, def.Path, tc.path)
		}
	}
}

func TestParseCommandSubstitution(t *testing.T) {
	stmt := parseOne(t, "/say score is ${x} of ${total}\n")
	cmd, ok := stmt.(*CommandStmt)
	if !ok {
		t.Fatalf("statement = %T, want *CommandStmt", stmt)
	}
	if len(cmd.Substs) != 2 {
		t.Fatalf("substitutions = %d, want 2", len(cmd.Substs))
	}
	if len(cmd.Parts) != 3 {
		t.Fatalf("parts = %v, want 3 literal parts", cmd.Parts)
	}
	if cmd.Parts[0] != "say score is " {
		t.Errorf("parts[0] = %q", cmd.Parts[0])
	}
}

func TestParseCommandUnclosedSubstitution(t *testing.T) {
	if kind := parseKind(t, "/say ${x\n"); kind != ErrUnclosedSubst {
		t.Errorf("kind = %v, want ErrUnclosedSubst", kind)
	}
}

func TestParseIfElifElse(t *testing.T) {
	src := `if a:
    x = 1
elif b:
    x = 2
else:
    x = 3
`
	stmt := parseOne(t, src)
	ifs, ok := stmt.(*IfStmt)
	if !ok {
		t.Fatalf("statement = %T, want *IfStmt", stmt)
	}
	if len(ifs.Else) != 1 {
		t.Fatalf("else body = %d statements, want 1 (nested if)", len(ifs.Else))
	}
	nested, ok := ifs.Else[0].(*IfStmt)
	if !ok {
		t.Fatalf("else[0] = %T, want nested *IfStmt", ifs.Else[0])
	}
	if len(nested.Else) != 1 {
		t.Errorf("nested else body = %d statements, want 1", len(nested.Else))
	}
}

func TestParseWhile(t *testing.T) {
	src := `while i < 10:
    i += 1
`
	stmt := parseOne(t, src)
	w, ok := stmt.(*WhileStmt)
	if !ok {
		t.Fatalf("statement = %T, want *WhileStmt", stmt)
	}
	if _, ok := w.Condition.(*CompareOp); !ok {
		t.Errorf("condition = %T, want *CompareOp", w.Condition)
	}
}

func TestParseFor(t *testing.T) {
	src := `for item in [1, 2, 3]:
    x = item
`
	stmt := parseOne(t, src)
	f, ok := stmt.(*ForStmt)
	if !ok {
		t.Fatalf("statement = %T, want *ForStmt", stmt)
	}
	if f.Name != "item" {
		t.Errorf("loop variable = %q, want item", f.Name)
	}
	if _, ok := f.Iterable.(*ListLiteral); !ok {
		t.Errorf("iterable = %T, want *ListLiteral", f.Iterable)
	}
}

func TestParseEmptyBlock(t *testing.T) {
	if kind := parseKind(t, "if a:\nx = 1\n"); kind != ErrEmptyBlock {
		t.Errorf("kind = %v, want ErrEmptyBlock", kind)
	}
}

func TestParseChainedComparison(t *testing.T) {
	stmt := parseOne(t, "ok = 0 <= x < 10\n")
	cmp, ok := stmt.(*Assign).Value.(*CompareOp)
	if !ok {
		t.Fatal("want *CompareOp value")
	}
	if len(cmp.Ops) != 2 || len(cmp.Comparators) != 2 {
		t.Errorf("ops = %d comparators = %d, want 2 and 2", len(cmp.Ops), len(cmp.Comparators))
	}
}

func TestParsePrecedence(t *testing.T) {
	stmt := parseOne(t, "x = 1 + 2 * 3\n")
	bin := stmt.(*Assign).Value.(*BinOp)
	if bin.Op != TokenPlus {
		t.Fatalf("root op = %v, want +", bin.Op)
	}
	right, ok := bin.Right.(*BinOp)
	if !ok || right.Op != TokenStar {
		t.Errorf("right = %v, want 2 * 3", bin.Right)
	}
}

func TestParseBoolOpPrecedence(t *testing.T) {
	stmt := parseOne(t, "x = a or b and c\n")
	or, ok := stmt.(*Assign).Value.(*BoolOp)
	if !ok || or.Op != TokenOr {
		t.Fatal("root should be or")
	}
	if len(or.Operands) != 2 {
		t.Fatalf("or operands = %d, want 2", len(or.Operands))
	}
	and, ok := or.Operands[1].(*BoolOp)
	if !ok || and.Op != TokenAnd {
		t.Errorf("operands[1] = %v, want b and c", or.Operands[1])
	}
}

func TestParseCallArguments(t *testing.T) {
	stmt := parseOne(t, "f(1, 2, mode=3)\n")
	call, ok := stmt.(*ExprStmt).Value.(*Call)
	if !ok {
		t.Fatal("want *Call")
	}
	if len(call.Args) != 2 {
		t.Errorf("positional args = %d, want 2", len(call.Args))
	}
	if len(call.Keywords) != 1 || call.Keywords[0].Name != "mode" {
		t.Errorf("keywords = %v, want mode", call.Keywords)
	}
}

func TestParsePositionalAfterKeyword(t *testing.T) {
	if kind := parseKind(t, "f(a=1, 2)\n"); kind != ErrPositionalAfterKeyword {
		t.Errorf("kind = %v, want ErrPositionalAfterKeyword", kind)
	}
}

func TestParseAttributeChain(t *testing.T) {
	stmt := parseOne(t, "a.b.c = 1\n")
	attr, ok := stmt.(*Assign).Target.(*Attribute)
	if !ok || attr.Attr != "c" {
		t.Fatalf("target = %v, want attribute c", stmt.(*Assign).Target)
	}
	inner, ok := attr.Primary.(*Attribute)
	if !ok || inner.Attr != "b" {
		t.Errorf("primary = %v, want attribute b", attr.Primary)
	}
}

func TestParseSubscript(t *testing.T) {
	stmt := parseOne(t, "x = xs[2]\n")
	sub, ok := stmt.(*Assign).Value.(*Subscript)
	if !ok {
		t.Fatal("want *Subscript value")
	}
	idx, ok := sub.Index.(*IntLiteral)
	if !ok || idx.Value != 2 {
		t.Errorf("index = %v, want 2", sub.Index)
	}
}

func TestParseMapLiteral(t *testing.T) {
	stmt := parseOne(t, `x = {"a": 1, "b": 2}`+"\n")
	m, ok := stmt.(*Assign).Value.(*MapLiteral)
	if !ok {
		t.Fatal("want *MapLiteral value")
	}
	if len(m.Keys) != 2 || len(m.Values) != 2 {
		t.Errorf("map size = %d/%d, want 2/2", len(m.Keys), len(m.Values))
	}
}

func TestParseUnaryMinus(t *testing.T) {
	stmt := parseOne(t, "x = -y\n")
	u, ok := stmt.(*Assign).Value.(*UnaryOp)
	if !ok || u.Op != TokenMinus {
		t.Errorf("value = %v, want unary minus", stmt.(*Assign).Value)
	}
}

func TestParseResultVariants(t *testing.T) {
	src := `def f() -> int:
    result 1

def g():
    result
`
	mod, err := Parse(src)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	f := mod.Body[0].(*FuncDef)
	g := mod.Body[1].(*FuncDef)
	if f.Body[0].(*ResultStmt).Value == nil {
		t.Error("f result should carry a value")
	}
	if g.Body[0].(*ResultStmt).Value != nil {
		t.Error("bare result should carry no value")
	}
}
