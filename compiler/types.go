package compiler

import "strings"

// ---------------------------------------------------------------------------
// Type & Symbol System: the value/type lattice
// ---------------------------------------------------------------------------

// Target registers hold 32-bit signed integers.
const (
	maxInt = 1<<31 - 1
	minInt = -1 << 31
)

// TypeKind tags the type variant.
type TypeKind int

const (
	TypeNone TypeKind = iota
	TypeInt
	TypeBool
	TypeString // compile-time only
	TypeList   // compile-time only
	TypeMap    // compile-time only
	TypeStruct
	TypeEntity
	TypeFunction
	TypeModule // compile-time only
	TypeAny    // unrepresentable / unknown
)

// Type describes the static type of a value. Structs and entity
// templates are nominal: identity is the definition pointer, not shape.
type Type struct {
	Kind     TypeKind
	Struct   *StructDef
	Template *Template
	Sig      *FuncSig
}

// FuncSig is a function signature type.
type FuncSig struct {
	Params []Param
	Result Type
}

// StructDef is a struct definition: an ordered field table.
type StructDef struct {
	Name       string
	FieldOrder []string
	Fields     map[string]Type
	DefPos     Position
}

var (
	typeNone   = Type{Kind: TypeNone}
	typeInt    = Type{Kind: TypeInt}
	typeBool   = Type{Kind: TypeBool}
	typeString = Type{Kind: TypeString}
	typeList   = Type{Kind: TypeList}
	typeMap    = Type{Kind: TypeMap}
	typeAny    = Type{Kind: TypeAny}
)

func structType(def *StructDef) Type { return Type{Kind: TypeStruct, Struct: def} }
func entityType(t *Template) Type    { return Type{Kind: TypeEntity, Template: t} }
func functionType(sig *FuncSig) Type { return Type{Kind: TypeFunction, Sig: sig} }

func (t Type) String() string {
	switch t.Kind {
	case TypeNone:
		return "none"
	case TypeInt:
		return "int"
	case TypeBool:
		return "bool"
	case TypeString:
		return "str"
	case TypeList:
		return "list"
	case TypeMap:
		return "map"
	case TypeStruct:
		return t.Struct.Name
	case TypeEntity:
		return t.Template.Name
	case TypeFunction:
		var parts []string
		for _, p := range t.Sig.Params {
			parts = append(parts, p.Type.String())
		}
		return "def(" + strings.Join(parts, ", ") + ") -> " + t.Sig.Result.String()
	case TypeModule:
		return "module"
	}
	return "any"
}

// Equal reports nominal type identity.
func (t Type) Equal(other Type) bool {
	if t.Kind != other.Kind {
		return false
	}
	switch t.Kind {
	case TypeStruct:
		return t.Struct == other.Struct
	case TypeEntity:
		return t.Template == other.Template
	case TypeFunction:
		return t.Sig == other.Sig
	}
	return true
}

// Runtime reports whether values of this type can live in registers.
func (t Type) Runtime() bool {
	switch t.Kind {
	case TypeInt, TypeBool, TypeStruct, TypeEntity:
		return true
	}
	return false
}

// Storable reports whether this type is allowed as a struct/entity
// field or a by-value argument: scalar register types and structs of
// them. Entities are excluded from fields (an entity field would embed
// a whole instance); they are still valid arguments.
func (t Type) Storable() bool {
	switch t.Kind {
	case TypeInt, TypeBool:
		return true
	case TypeStruct:
		for _, ft := range t.Struct.Fields {
			if !ft.Storable() {
				return false
			}
		}
		return true
	}
	return false
}

// Width returns the number of registers a runtime value of this type
// occupies. Entities carry a hidden discriminant register first.
func (t Type) Width() int {
	switch t.Kind {
	case TypeInt, TypeBool:
		return 1
	case TypeStruct:
		n := 0
		for _, name := range t.Struct.FieldOrder {
			n += t.Struct.Fields[name].Width()
		}
		return n
	case TypeEntity:
		n := 1 // discriminant
		for _, name := range t.Template.FieldOrder {
			n += t.Template.Fields[name].Width()
		}
		return n
	}
	return 0
}

// AssignableFrom reports whether a value of type src can be stored in
// a location of type t. Entity values of a subtemplate are assignable
// to an ancestor-typed location.
func (t Type) AssignableFrom(src Type) bool {
	if t.Equal(src) {
		return true
	}
	if t.Kind == TypeEntity && src.Kind == TypeEntity {
		for _, anc := range src.Template.MRO {
			if anc == t.Template {
				return true
			}
		}
	}
	return false
}
