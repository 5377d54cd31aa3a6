package compiler

import (
	"strings"
	"testing"
)

func TestTemplateDiamondSharedField(t *testing.T) {
	src := `entity A:
    a: int

entity B extends A:
    pass

entity C extends A:
    pass

entity D extends B, C:
    pass

interface "demo":
    d = D()
`
	out := compileOut(t, src)
	// The shared base field counts once: discriminant plus one field.
	vals := setValues(seqByPath(t, out, "demo"))
	if len(vals) != 2 {
		t.Errorf("construction stores = %v, want discriminant and one field", vals)
	}
}

func TestTemplateInvalidLinearization(t *testing.T) {
	src := `entity A:
    pass

entity B extends A:
    pass

entity D extends A, B:
    pass
`
	if kind := compileKind(t, src); kind != ErrMro {
		t.Errorf("kind = %v, want ErrMro", kind)
	}
}

func TestTemplateFieldTypeConflict(t *testing.T) {
	src := `entity P:
    x: int

entity Q:
    x: bool

entity R extends P, Q:
    pass
`
	if kind := compileKind(t, src); kind != ErrEfieldMultipleDefs {
		t.Errorf("kind = %v, want ErrEfieldMultipleDefs", kind)
	}
}

func TestTemplateRedeclaresInheritedField(t *testing.T) {
	src := `entity P:
    x: int

entity Q extends P:
    x: int
`
	if kind := compileKind(t, src); kind != ErrEfieldMultipleDefs {
		t.Errorf("kind = %v, want ErrEfieldMultipleDefs", kind)
	}
}

func TestTemplateOverrideWithoutVirtual(t *testing.T) {
	src := `entity P:
    def f():
        pass

entity Q extends P:
    override def f():
        pass
`
	if kind := compileKind(t, src); kind != ErrNotOverriding {
		t.Errorf("kind = %v, want ErrNotOverriding", kind)
	}
}

func TestTemplateVirtualOverSimple(t *testing.T) {
	src := `entity P:
    def f():
        pass

entity Q extends P:
    virtual def f():
        pass
`
	if kind := compileKind(t, src); kind != ErrVirtualOverrideSimple {
		t.Errorf("kind = %v, want ErrVirtualOverrideSimple", kind)
	}
}

func TestTemplateMissingOverrideKeyword(t *testing.T) {
	src := `entity P:
    virtual def f():
        pass

entity Q extends P:
    def f():
        pass
`
	if kind := compileKind(t, src); kind != ErrOverrideQualifier {
		t.Errorf("kind = %v, want ErrOverrideQualifier", kind)
	}
}

func TestTemplateOverrideResultMismatch(t *testing.T) {
	src := `entity P:
    virtual def f() -> int:
        result 1

entity Q extends P:
    override def f() -> bool:
        result true
`
	if kind := compileKind(t, src); kind != ErrOverrideResultMismatch {
		t.Errorf("kind = %v, want ErrOverrideResultMismatch", kind)
	}
}

func TestTemplateStaticOverInstance(t *testing.T) {
	src := `entity P:
    def f():
        pass

entity Q extends P:
    static def f():
        pass
`
	if kind := compileKind(t, src); kind != ErrStaticOverrideInstance {
		t.Errorf("kind = %v, want ErrStaticOverrideInstance", kind)
	}
}

func TestTemplateInstanceOverStatic(t *testing.T) {
	src := `entity P:
    static def f():
        pass

entity Q extends P:
    def f():
        pass
`
	if kind := compileKind(t, src); kind != ErrInstanceOverrideStatic {
		t.Errorf("kind = %v, want ErrInstanceOverrideStatic", kind)
	}
}

func TestTemplateFieldMethodConflict(t *testing.T) {
	src := `entity P:
    f: int
    def f():
        pass
`
	if kind := compileKind(t, src); kind != ErrMethodAttrConflict {
		t.Errorf("kind = %v, want ErrMethodAttrConflict", kind)
	}
}

func TestTemplateMultipleConstructors(t *testing.T) {
	src := `entity P:
    def new():
        pass

entity Q extends P:
    def new():
        pass
`
	if kind := compileKind(t, src); kind != ErrMultipleNewMethods {
		t.Errorf("kind = %v, want ErrMultipleNewMethods", kind)
	}
}

func TestTemplateConstructorWithResult(t *testing.T) {
	src := `entity P:
    def new() -> int:
        result 1
`
	if kind := compileKind(t, src); kind != ErrNewResult {
		t.Errorf("kind = %v, want ErrNewResult", kind)
	}
}

func TestTemplateNonEntityBase(t *testing.T) {
	src := `entity P extends int:
    pass
`
	if kind := compileKind(t, src); kind != ErrInvalidTypeSpec {
		t.Errorf("kind = %v, want ErrInvalidTypeSpec", kind)
	}
}

func TestTemplateInheritedVirtualDispatch(t *testing.T) {
	// A template without an override dispatches to its nearest
	// ancestor's implementation.
	src := `entity A:
    hp: int
    virtual def f():
        /say from a

entity B extends A:
    pass

interface "demo":
    b = B()
    m: A = b
    m.f()
`
	out := compileOut(t, src)
	text := allText(out)
	if !strings.Contains(text, "say from a") {
		t.Errorf("inherited implementation unreachable:\n%s", text)
	}
}

func TestTemplateMethodResolutionOrder(t *testing.T) {
	// With D extends B, C the nearer base's simple method wins.
	src := `entity A:
    hp: int

entity B extends A:
    def m():
        /say from b

entity C extends A:
    def m():
        /say from c

entity D extends B, C:
    pass

interface "demo":
    d = D()
    d.m()
`
	out := compileOut(t, src)
	text := allText(out)
	if !strings.Contains(text, "say from b") {
		t.Errorf("nearest base method missing:\n%s", text)
	}
	if strings.Contains(text, "say from c") {
		t.Errorf("shadowed method leaked into output:\n%s", text)
	}
}

func TestTemplateInheritedMethodOnDerived(t *testing.T) {
	// Calling a base method on a derived-typed receiver copies the
	// base window back without touching derived-only fields.
	src := `entity Base:
    hp: int
    def heal(n: int):
        self.hp += n

entity Tank extends Base:
    armor: int

interface "demo":
    u = Tank()
    u.hp = 20
    u.armor = 7
    u.heal(3)
`
	out := compileOut(t, src)
	hp := slotSetTo(t, out.Interfaces["demo"], 20)
	armor := slotSetTo(t, out.Interfaces["demo"], 7)
	board := runOutput(t, out, "demo")
	if got := board[hp]; got != 23 {
		t.Errorf("hp = %d, want 23", got)
	}
	if got := board[armor]; got != 7 {
		t.Errorf("armor = %d, want 7", got)
	}
}

func TestTemplateOverrideRenamedParameter(t *testing.T) {
	// Dispatched arguments bind by position, not by the override's
	// parameter names.
	src := `entity Mob:
    hp: int
    virtual def hit(amount: int):
        self.hp -= amount

entity Zombie extends Mob:
    override def hit(dmg: int):
        self.hp -= dmg
        self.hp -= dmg

interface "demo":
    a = Mob()
    a.hp = 1
    m: Mob = Zombie()
    m.hp = 10
    m.hit(3)
`
	out := compileOut(t, src)
	hp := slotSetTo(t, out.Interfaces["demo"], 10)
	board := runOutput(t, out, "demo")
	if got := board[hp]; got != 4 {
		t.Errorf("hp = %d, want 4 (override body must run once with the argument)", got)
	}
}

func TestTemplateOverrideParamMismatch(t *testing.T) {
	tests := []struct {
		name string
		over string
	}{
		{"extra parameter", "override def f(x: int, y: int):"},
		{"changed type", "override def f(x: bool):"},
	}
	for _, tc := range tests {
		src := `entity P:
    virtual def f(x: int):
        pass

entity Q extends P:
    ` + tc.over + `
        pass
`
		if kind := compileKind(t, src); kind != ErrOverrideParamMismatch {
			t.Errorf("%s: kind = %v, want ErrOverrideParamMismatch", tc.name, kind)
		}
	}
}

// slotSetTo finds the register a sequence sets to the given constant.
func slotSetTo(t *testing.T, seq *Sequence, v int64) ScbSlot {
	t.Helper()
	for _, c := range seq.Commands {
		if sc, ok := c.(*SetConst); ok && sc.Value == v {
			return sc.Target
		}
	}
	t.Fatalf("no command sets %d:\n%s", v, seq.Text())
	return ScbSlot{}
}

func TestTemplateDirectConstructorCall(t *testing.T) {
	src := `entity P:
    hp: int
    def new():
        self.hp = 1

interface "demo":
    p = P()
    p.new()
`
	if kind := compileKind(t, src); kind != ErrNewOutOfScope {
		t.Errorf("kind = %v, want ErrNewOutOfScope", kind)
	}
}
