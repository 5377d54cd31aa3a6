package compiler

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Diagnostics: error kinds, positions, call-chain frames
// ---------------------------------------------------------------------------

// ErrKind identifies a diagnostic. Every semantic error aborts the
// compilation unit; only ShadowedName and CommandLimit are advisory.
type ErrKind int

const (
	// Lexer / parser
	ErrInvalidChar ErrKind = iota
	ErrIntOverflow
	ErrUnclosedQuote
	ErrUnclosedSubst
	ErrInvalidDedent
	ErrUnexpectedToken
	ErrEmptyBlock
	ErrDuplicateArgDef
	ErrPositionalAfterKeyword
	ErrInvalidAssignTarget

	// Name resolution
	ErrNameNotDefined
	ErrHasNoAttribute
	ErrShadowedName // warning

	// Types
	ErrWrongAssignType
	ErrWrongArgType
	ErrWrongResultType
	ErrWrongCondition
	ErrInvalidOperand
	ErrInvalidTypeSpec
	ErrUnsupportedVarType
	ErrUnsupportedArgType
	ErrUnsupportedResultType
	ErrUnsupportedFieldType
	ErrUncallable
	ErrNotIterable

	// Constness
	ErrNotConst
	ErrArgNotConst
	ErrElementNotConst
	ErrNonRtName
	ErrNonRtResult

	// Templates
	ErrMro
	ErrEfieldMultipleDefs
	ErrEmethodMultipleDefs
	ErrMethodAttrConflict
	ErrOverrideResultMismatch
	ErrOverrideParamMismatch
	ErrNotOverriding
	ErrOverrideQualifier
	ErrVirtualOverrideSimple
	ErrStaticOverrideInstance
	ErrInstanceOverrideStatic
	ErrMultipleNewMethods
	ErrNewResult

	// Call structure
	ErrMissingArg
	ErrTooManyArgs
	ErrArgMultipleValues
	ErrUnexpectedKeywordArg

	// Scope
	ErrResultOutOfScope
	ErrSelfOutOfScope
	ErrNewOutOfScope
	ErrNeverResult

	// Arithmetic
	ErrDivByZero
	ErrModByZero
	ErrNegativePow
	ErrEndlessWhileLoop

	// Interfaces
	ErrInvalidPath
	ErrReservedPath
	ErrDuplicateInterface

	// Modules / I/O
	ErrModuleNotFound
	ErrCircularParse
	ErrIo

	// Advisory
	ErrCommandLimit // warning
)

var errKindIDs = map[ErrKind]string{
	ErrInvalidChar:            "invalid-char",
	ErrIntOverflow:            "int-overflow",
	ErrUnclosedQuote:          "unclosed-quote",
	ErrUnclosedSubst:          "unclosed-subst",
	ErrInvalidDedent:          "invalid-dedent",
	ErrUnexpectedToken:        "unexpected-token",
	ErrEmptyBlock:             "empty-block",
	ErrDuplicateArgDef:        "duplicate-arg-def",
	ErrPositionalAfterKeyword: "positional-after-keyword",
	ErrInvalidAssignTarget:    "invalid-assign-target",
	ErrNameNotDefined:         "name-not-defined",
	ErrHasNoAttribute:         "has-no-attribute",
	ErrShadowedName:           "shadowed-name",
	ErrWrongAssignType:        "wrong-assign-type",
	ErrWrongArgType:           "wrong-arg-type",
	ErrWrongResultType:        "wrong-result-type",
	ErrWrongCondition:         "wrong-condition",
	ErrInvalidOperand:         "invalid-operand",
	ErrInvalidTypeSpec:        "invalid-type-spec",
	ErrUnsupportedVarType:     "unsupported-var-type",
	ErrUnsupportedArgType:     "unsupported-arg-type",
	ErrUnsupportedResultType:  "unsupported-result-type",
	ErrUnsupportedFieldType:   "unsupported-field-type",
	ErrUncallable:             "uncallable",
	ErrNotIterable:            "not-iterable",
	ErrNotConst:               "not-const",
	ErrArgNotConst:            "arg-not-const",
	ErrElementNotConst:        "element-not-const",
	ErrNonRtName:              "non-rt-name",
	ErrNonRtResult:            "non-rt-result",
	ErrMro:                    "mro",
	ErrEfieldMultipleDefs:     "efield-multiple-defs",
	ErrEmethodMultipleDefs:    "emethod-multiple-defs",
	ErrMethodAttrConflict:     "method-attr-conflict",
	ErrOverrideResultMismatch: "override-result-mismatch",
	ErrOverrideParamMismatch:  "override-param-mismatch",
	ErrNotOverriding:          "not-overriding",
	ErrOverrideQualifier:      "override-qualifier",
	ErrVirtualOverrideSimple:  "virtual-override-simple",
	ErrStaticOverrideInstance: "static-override-instance",
	ErrInstanceOverrideStatic: "instance-override-static",
	ErrMultipleNewMethods:     "multiple-new-methods",
	ErrNewResult:              "new-result",
	ErrMissingArg:             "missing-arg",
	ErrTooManyArgs:            "too-many-args",
	ErrArgMultipleValues:      "arg-multiple-values",
	ErrUnexpectedKeywordArg:   "unexpected-keyword-arg",
	ErrResultOutOfScope:       "result-out-of-scope",
	ErrSelfOutOfScope:         "self-out-of-scope",
	ErrNewOutOfScope:          "new-out-of-scope",
	ErrNeverResult:            "never-result",
	ErrDivByZero:              "div-by-zero",
	ErrModByZero:              "mod-by-zero",
	ErrNegativePow:            "negative-pow",
	ErrEndlessWhileLoop:       "endless-while-loop",
	ErrInvalidPath:            "invalid-path",
	ErrReservedPath:           "reserved-path",
	ErrDuplicateInterface:     "duplicate-interface",
	ErrModuleNotFound:         "module-not-found",
	ErrCircularParse:          "circular-parse",
	ErrIo:                     "io-error",
	ErrCommandLimit:           "command-limit",
}

// ID returns the stable string identifier printed after the message.
func (k ErrKind) ID() string {
	if id, ok := errKindIDs[k]; ok {
		return id
	}
	return fmt.Sprintf("err-%d", int(k))
}

// Frame is a note attached to a diagnostic, pointing at a related
// location (for traced calls, the callee's definition site).
type Frame struct {
	Pos  Position
	File string
	Note string
}

// Diag is a compiler diagnostic. It implements error; semantic errors
// abort the enclosing compilation unit immediately.
type Diag struct {
	Kind    ErrKind
	Pos     Position
	File    string
	Msg     string
	Frames  []Frame
	Warning bool
}

func (d *Diag) Error() string {
	var b strings.Builder
	sev := "error"
	if d.Warning {
		sev = "warning"
	}
	fmt.Fprintf(&b, "%s:%d:%d: %s: %s [%s]",
		d.File, d.Pos.Line, d.Pos.Column, sev, d.Msg, d.Kind.ID())
	for _, f := range d.Frames {
		fmt.Fprintf(&b, "\n%s:%d:%d: note: %s", f.File, f.Pos.Line, f.Pos.Column, f.Note)
	}
	return b.String()
}

// WithNote attaches a note frame and returns the diagnostic.
func (d *Diag) WithNote(pos Position, file, format string, args ...interface{}) *Diag {
	d.Frames = append(d.Frames, Frame{Pos: pos, File: file, Note: fmt.Sprintf(format, args...)})
	return d
}

func newDiag(kind ErrKind, pos Position, format string, args ...interface{}) *Diag {
	return &Diag{
		Kind:    kind,
		Pos:     pos,
		Msg:     fmt.Sprintf(format, args...),
		Warning: kind == ErrShadowedName || kind == ErrCommandLimit,
	}
}
