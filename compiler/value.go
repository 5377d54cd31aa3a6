package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Value: closed tagged union over compile-time constants, runtime
// registers and reference bindings
// ---------------------------------------------------------------------------

// ValueKind tags the value variant.
type ValueKind int

const (
	// ValConst is a compile-time constant; it never carries registers.
	ValConst ValueKind = iota
	// ValRegister is a runtime variable stored in integer registers.
	ValRegister
	// ValReference points at another value's storage and never owns it.
	ValReference
)

// Value is the single value representation used across the constant
// evaluator and the code generator. Exactly the fields relevant to
// Kind and Type are meaningful; every consumption site switches
// exhaustively on Kind.
type Value struct {
	Kind ValueKind
	Type Type

	// ValConst payloads
	Int     int64
	Bool    bool
	Str     string
	List    []*Value
	MapKeys []*Value
	MapVals []*Value
	Func    *Function
	Mod     *ModuleVal
	Fields  []*Value // struct constants, field order

	// ValRegister storage: one register per scalar field, recursively.
	// Entity values put the hidden discriminant register first.
	Slots []ScbSlot

	// ValReference target
	Ref *Value

	// Bool values that can serve directly as an execute condition
	// carry the condition and the commands computing its operands.
	Conds []Cond
	Deps  []Command
}

// Deref follows reference bindings to the underlying storage.
func (v *Value) Deref() *Value {
	for v.Kind == ValReference {
		v = v.Ref
	}
	return v
}

// IsConst reports whether the (dereferenced) value is compile-time.
func (v *Value) IsConst() bool { return v.Deref().Kind == ValConst }

func intConst(n int64) *Value  { return &Value{Kind: ValConst, Type: typeInt, Int: n} }
func boolConst(b bool) *Value  { return &Value{Kind: ValConst, Type: typeBool, Bool: b} }
func strConst(s string) *Value { return &Value{Kind: ValConst, Type: typeString, Str: s} }
func noneConst() *Value        { return &Value{Kind: ValConst, Type: typeNone} }

// constEqual compares two scalar constants (map keys, comparisons).
func constEqual(a, b *Value) bool {
	if !a.Type.Equal(b.Type) {
		return false
	}
	switch a.Type.Kind {
	case TypeInt:
		return a.Int == b.Int
	case TypeBool:
		return a.Bool == b.Bool
	case TypeString:
		return a.Str == b.Str
	case TypeNone:
		return true
	}
	return false
}

// constString formats a scalar constant for command substitution.
func constString(v *Value) (string, bool) {
	switch v.Type.Kind {
	case TypeInt:
		return fmt.Sprintf("%d", v.Int), true
	case TypeBool:
		if v.Bool {
			return "true", true
		}
		return "false", true
	case TypeString:
		return v.Str, true
	}
	return "", false
}

// mapGet finds the value stored under key in a constant map.
func mapGet(m *Value, key *Value) (*Value, bool) {
	for i, k := range m.MapKeys {
		if constEqual(k, key) {
			return m.MapVals[i], true
		}
	}
	return nil, false
}

// mapSet stores value under key in a constant map, replacing any
// previous binding.
func mapSet(m *Value, key, value *Value) {
	for i, k := range m.MapKeys {
		if constEqual(k, key) {
			m.MapVals[i] = value
			return
		}
	}
	m.MapKeys = append(m.MapKeys, key)
	m.MapVals = append(m.MapVals, value)
}

// ModuleVal is an imported module: a namespace of exported symbols.
type ModuleVal struct {
	Name  string
	Names *Scope
	File  string
}

// Param is a resolved function parameter.
type Param struct {
	Name    string
	Mode    ParamMode
	Type    Type
	Default *Value // nil if required
}

// BuiltinFn implements a builtin compile-time function.
type BuiltinFn func(args map[string]*Value, pos Position) (*Value, error)

// Function is a function definition: a source-level def/const def, an
// entity method or constructor, or a compiler builtin.
type Function struct {
	Name    string
	Sig     *FuncSig
	Body    []Stmt
	Const   bool // const def: runs in the constant evaluator
	Inline  bool // has by-ref/const params: lowered at each call site
	Builtin BuiltinFn
	DefPos  Position
	DefFile string

	// Compiled-once artifacts for plain runtime functions.
	seq       *Sequence
	paramVals []*Value
	resultVal *Value

	// Method binding.
	owner   *Template // non-nil for entity methods
	selfVal *Value    // the method's self window registers

	// Lexical scope the body resolves free names against.
	defScope *Scope

	// Guards against recursive call-site lowering.
	inlining bool
}

func (f *Function) String() string {
	return fmt.Sprintf("<function %s>", f.Name)
}

// ---------------------------------------------------------------------------
// Scope: nested symbol tables
// ---------------------------------------------------------------------------

// SymKind distinguishes value bindings from type definitions.
type SymKind int

const (
	SymValue SymKind = iota
	SymType
)

// Symbol is one entry in a scope: a value or a type definition.
type Symbol struct {
	Kind   SymKind
	Value  *Value
	Type   Type // the defined type for SymType entries
	DefPos Position
}

// Scope is a lexical symbol table. Names defined in an inner scope are
// invisible outside it.
type Scope struct {
	parent *Scope
	names  map[string]*Symbol
}

// NewScope creates a scope nested in parent (nil for the root).
func NewScope(parent *Scope) *Scope {
	return &Scope{parent: parent, names: make(map[string]*Symbol)}
}

// Lookup resolves a name through the scope chain.
func (s *Scope) Lookup(name string) *Symbol {
	for sc := s; sc != nil; sc = sc.parent {
		if sym, ok := sc.names[name]; ok {
			return sym
		}
	}
	return nil
}

// LookupLocal resolves a name in this scope only.
func (s *Scope) LookupLocal(name string) *Symbol {
	return s.names[name]
}

// Shadows reports whether defining name here would shadow an outer
// binding.
func (s *Scope) Shadows(name string) bool {
	if s.parent == nil {
		return false
	}
	return s.parent.Lookup(name) != nil
}

// Define binds a name in this scope, replacing any local binding.
func (s *Scope) Define(name string, sym *Symbol) {
	s.names[name] = sym
}
