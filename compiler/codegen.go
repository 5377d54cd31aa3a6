package compiler

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ---------------------------------------------------------------------------
// Code Generator: lowers statements and expressions to command
// sequences, consulting the constant evaluator first for every
// expression
// ---------------------------------------------------------------------------

var pathSegment = regexp.MustCompile(`^[a-z0-9_.-]+$`)

// generator lowers one body into one output sequence. Nested bodies
// (branches, loops, functions) get child generators pointed at their
// own sequences.
type generator struct {
	prog  *Program
	ce    *constEval
	file  string
	scope *Scope
	seq   *Sequence
	fn    *Function // enclosing runtime function, nil at top level

	// Registers owned by the current interface frame, reclaimed when
	// the frame exits. Function-local registers are kept for the whole
	// unit so a sequence invoked again later never sees reused slots.
	frame *[]ScbSlot
}

func (g *generator) emit(cmds ...Command) {
	g.seq.Write(cmds...)
}

// debugNote annotates the output sequence when debug comments are on.
func (g *generator) debugNote(format string, args ...interface{}) {
	if g.prog.cfg.Debug {
		g.emit(&Comment{Text: fmt.Sprintf(format, args...)})
	}
}

func (g *generator) fail(kind ErrKind, pos Position, format string, args ...interface{}) *Diag {
	d := newDiag(kind, pos, format, args...)
	d.File = g.file
	return d
}

func (g *generator) warn(kind ErrKind, pos Position, format string, args ...interface{}) {
	d := newDiag(kind, pos, format, args...)
	d.File = g.file
	g.prog.warn(d)
}

// allocTemp hands out frame-scoped registers.
func (g *generator) allocTemp(n int) []ScbSlot {
	slots := g.prog.alloc.AllocN(n)
	if g.frame != nil {
		*g.frame = append(*g.frame, slots...)
	}
	return slots
}

// allocPersist hands out registers that outlive the frame (dispatch
// windows filled after the whole unit is generated).
func (g *generator) allocPersist(n int) []ScbSlot {
	return g.prog.alloc.AllocN(n)
}

// sub creates a child generator writing into seq.
func (g *generator) sub(seq *Sequence, scope *Scope) *generator {
	return &generator{
		prog: g.prog, ce: g.ce, file: g.file,
		scope: scope, seq: seq, fn: g.fn, frame: g.frame,
	}
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (g *generator) genBody(body []Stmt) error {
	for _, stmt := range body {
		if err := g.genStmt(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (g *generator) genStmt(stmt Stmt) error {
	switch s := stmt.(type) {
	case *PassStmt:
		return nil
	case *ExprStmt:
		_, err := g.genExpr(s.Value)
		return err
	case *Assign:
		return g.genAssign(s)
	case *AugAssign:
		return g.genAugAssign(s)
	case *ConstDef:
		return g.genConstDef(s)
	case *ResultStmt:
		return g.genResult(s)
	case *IfStmt:
		return g.genIf(s)
	case *WhileStmt:
		return g.genWhile(s)
	case *ForStmt:
		return g.genFor(s)
	case *FuncDef:
		return g.genFuncDef(s)
	case *EntityDef:
		return g.genEntityDef(s)
	case *StructDefNode:
		return g.genStructDef(s)
	case *InterfaceDef:
		return g.genInterface(s)
	case *CommandStmt:
		return g.genCommand(s)
	case *ImportStmt:
		return g.genImport(s)
	}
	return g.fail(ErrUnexpectedToken, stmt.Pos(), "statement not allowed here")
}

func (g *generator) genAssign(s *Assign) error {
	value, err := g.genExpr(s.Value)
	if err != nil {
		return err
	}
	var declared Type
	hasDecl := false
	if s.Type != nil {
		declared, err = g.typeSpec(s.Type)
		if err != nil {
			return err
		}
		hasDecl = true
	}

	switch target := s.Target.(type) {
	case *Name:
		return g.assignName(target, value, declared, hasDecl, s.PosVal)
	case *Attribute:
		place, err := g.lvalue(target)
		if err != nil {
			return err
		}
		return g.store(place, value, s.PosVal)
	case *Subscript:
		// Mutating a compile-time container.
		primary, err := g.genExpr(target.Primary)
		if err != nil {
			return err
		}
		return g.constSubscriptStore(primary, target, value, s.PosVal)
	}
	return g.fail(ErrInvalidAssignTarget, s.PosVal, "invalid assignment target")
}

func (g *generator) assignName(target *Name, value *Value, declared Type, hasDecl bool, pos Position) error {
	sym := g.scope.Lookup(target.Value)
	if sym != nil && sym.Kind == SymType {
		return g.fail(ErrInvalidAssignTarget, pos, "%q names a type", target.Value)
	}
	if sym != nil {
		// Assigning to an existing binding mutates it in place.
		return g.storeExisting(sym, value, pos)
	}

	// First assignment declares the variable.
	vt := value.Deref().Type
	if hasDecl {
		if !declared.AssignableFrom(vt) {
			return g.fail(ErrWrongAssignType, pos,
				"expected %q type, got %q", declared, vt)
		}
		vt = declared
	}
	if g.scope.Shadows(target.Value) {
		g.warn(ErrShadowedName, pos, "%q shadows a name from an outer scope", target.Value)
	}
	if !vt.Runtime() {
		return g.fail(ErrUnsupportedVarType, pos,
			"%q values cannot be stored in a runtime variable", vt)
	}
	slot := &Value{Kind: ValRegister, Type: vt, Slots: g.allocTemp(vt.Width())}
	if err := g.store(slot, value, pos); err != nil {
		return err
	}
	g.scope.Define(target.Value, &Symbol{Kind: SymValue, Value: slot, DefPos: pos})
	return nil
}

func (g *generator) storeExisting(sym *Symbol, value *Value, pos Position) error {
	cur := sym.Value.Deref()
	if cur.Kind == ValConst {
		return g.fail(ErrInvalidAssignTarget, pos,
			"cannot assign to a compile-time binding")
	}
	return g.store(sym.Value, value, pos)
}

func (g *generator) genAugAssign(s *AugAssign) error {
	place, err := g.lvalue(s.Target)
	if err != nil {
		return err
	}
	dst := place.Deref()
	if dst.Kind != ValRegister || dst.Type.Kind != TypeInt {
		return g.fail(ErrInvalidOperand, s.PosVal,
			"augmented assignment needs an int runtime variable")
	}
	value, err := g.genExpr(s.Value)
	if err != nil {
		return err
	}
	return g.emitArith(s.Op, dst.Slots[0], value, s.PosVal)
}

// emitArith applies op to target in place with the given operand.
func (g *generator) emitArith(op TokenType, target ScbSlot, operand *Value, pos Position) error {
	v := operand.Deref()
	if v.Type.Kind != TypeInt {
		return g.fail(ErrInvalidOperand, pos,
			"invalid operand for %q: %q", op, v.Type)
	}
	if v.Kind == ValConst {
		switch op {
		case TokenPlus, TokenPlusEq:
			g.emit(&AddConst{Target: target, Value: v.Int})
			return nil
		case TokenMinus, TokenMinusEq:
			g.emit(&RemoveConst{Target: target, Value: v.Int})
			return nil
		}
		if (op == TokenSlash || op == TokenSlashEq) && v.Int == 0 {
			return g.fail(ErrDivByZero, pos, "division by zero")
		}
		if (op == TokenPercent || op == TokenPercentEq) && v.Int == 0 {
			return g.fail(ErrModByZero, pos, "modulo by zero")
		}
		g.emit(&Operation{Op: scbOpFor(op), Target: target, Source: g.prog.alloc.IntConst(v.Int)})
		return nil
	}
	g.emit(&Operation{Op: scbOpFor(op), Target: target, Source: v.Slots[0]})
	return nil
}

func scbOpFor(op TokenType) ScbOp {
	switch op {
	case TokenPlus, TokenPlusEq:
		return OpAddEq
	case TokenMinus, TokenMinusEq:
		return OpSubEq
	case TokenStar, TokenStarEq:
		return OpMulEq
	case TokenSlash, TokenSlashEq:
		return OpDivEq
	case TokenPercent, TokenPercentEq:
		return OpModEq
	}
	return OpAssign
}

func (g *generator) genConstDef(s *ConstDef) error {
	v, err := g.ce.Eval(s.Value, g.scope)
	if err != nil {
		return err
	}
	if v == nil {
		return g.fail(ErrNotConst, s.Value.Pos(),
			"the value of a const binding must be a compile-time constant")
	}
	if g.scope.Shadows(s.Name) {
		g.warn(ErrShadowedName, s.PosVal, "%q shadows a name from an outer scope", s.Name)
	}
	g.scope.Define(s.Name, &Symbol{Kind: SymValue, Value: v, DefPos: s.PosVal})
	return nil
}

func (g *generator) genResult(s *ResultStmt) error {
	if g.fn == nil {
		return g.fail(ErrResultOutOfScope, s.PosVal,
			"\"result\" outside a function body")
	}
	want := g.fn.Sig.Result
	if s.Value == nil {
		if want.Kind != TypeNone {
			return g.fail(ErrWrongResultType, s.PosVal,
				"expected %q type as result, got \"none\"", want)
		}
		return nil
	}
	value, err := g.genExpr(s.Value)
	if err != nil {
		return err
	}
	vt := value.Deref().Type
	if want.Kind == TypeNone {
		if vt.Kind == TypeNone {
			return nil
		}
		return g.fail(ErrWrongResultType, s.PosVal,
			"function declares no result but \"result\" carries %q", vt)
	}
	if !want.AssignableFrom(vt) {
		return g.fail(ErrWrongResultType, s.PosVal,
			"expected %q type as result, got %q", want, vt)
	}
	// The last executed result wins; execution continues.
	return g.store(g.fn.resultVal, value, s.PosVal)
}

func (g *generator) genIf(s *IfStmt) error {
	cond, err := g.genExpr(s.Condition)
	if err != nil {
		return err
	}
	cv := cond.Deref()
	if cv.Type.Kind != TypeBool {
		return g.fail(ErrWrongCondition, s.Condition.Pos(),
			"\"if\" conditions must be bool, not %q", cv.Type)
	}
	if cv.Kind == ValConst && len(cv.Conds) == 0 {
		// Dead-branch pruning.
		if cv.Bool {
			return g.genBody(s.Body)
		}
		return g.genBody(s.Else)
	}

	conds, err := g.asConds(cv, s.Condition.Pos())
	if err != nil {
		return err
	}
	thenSeq := g.prog.newSeq("if")
	then := g.sub(thenSeq, NewScope(g.scope))
	if err := then.genBody(s.Body); err != nil {
		return err
	}
	var elseSeq *Sequence
	if len(s.Else) > 0 {
		elseSeq = g.prog.newSeq("else")
		els := g.sub(elseSeq, NewScope(g.scope))
		if err := els.genBody(s.Else); err != nil {
			return err
		}
	}

	if elseSeq != nil && elseSeq.HasContent() {
		// The then branch may mutate a register the condition reads,
		// and a multi-condition conjunction cannot be inverted
		// directly; latch the outcome in a flag first either way.
		flag := g.allocTemp(1)[0]
		g.emit(&SetConst{Target: flag, Value: 0})
		g.emit(execute(conds, &SetConst{Target: flag, Value: 1}))
		conds = []Cond{matchCond(flag, "1")}
	}
	if thenSeq.HasContent() {
		g.emit(execute(conds, &Invoke{Seq: thenSeq}))
	}
	if elseSeq != nil && elseSeq.HasContent() {
		g.emit(execute([]Cond{conds[0].Inverted()}, &Invoke{Seq: elseSeq}))
	}
	return nil
}

func (g *generator) genWhile(s *WhileStmt) error {
	cond, err := g.genExpr(s.Condition)
	if err != nil {
		return err
	}
	cv := cond.Deref()
	if cv.Type.Kind != TypeBool {
		return g.fail(ErrWrongCondition, s.Condition.Pos(),
			"\"while\" conditions must be bool, not %q", cv.Type)
	}
	if cv.Kind == ValConst && len(cv.Conds) == 0 {
		if cv.Bool {
			return g.fail(ErrEndlessWhileLoop, s.PosVal,
				"the \"while\" loop never ends because the condition always evaluates to true")
		}
		return nil // dead loop
	}

	conds, err := g.asConds(cv, s.Condition.Pos())
	if err != nil {
		return err
	}
	loopSeq := g.prog.newSeq("while")
	loop := g.sub(loopSeq, NewScope(g.scope))
	loop.debugNote("while loop (%s:%d)", g.file, s.PosVal.Line)
	if err := loop.genBody(s.Body); err != nil {
		return err
	}
	// The target has no loop primitive: the body re-tests the
	// condition and invokes itself.
	tail, err := loop.genExpr(s.Condition)
	if err != nil {
		return err
	}
	tailConds, err := loop.asConds(tail.Deref(), s.Condition.Pos())
	if err != nil {
		return err
	}
	loopSeq.Write(execute(tailConds, &Invoke{Seq: loopSeq}))
	g.emit(execute(conds, &Invoke{Seq: loopSeq}))
	g.checkLimit(loopSeq, s.PosVal)
	return nil
}

func (g *generator) genFor(s *ForStmt) error {
	iter, err := g.ce.Eval(s.Iterable, g.scope)
	if err != nil {
		return err
	}
	if iter == nil {
		return g.fail(ErrNotConst, s.Iterable.Pos(),
			"\"for\" iterates a compile-time container")
	}
	elements, d := iterElements(iter, s.Iterable.Pos())
	if d != nil {
		d.File = g.file
		return d
	}
	// Compile-time iteration: the body is lowered once per element.
	for _, el := range elements {
		inner := g.sub(g.seq, NewScope(g.scope))
		inner.scope.Define(s.Name, &Symbol{Kind: SymValue, Value: el, DefPos: s.PosVal})
		if err := inner.genBody(s.Body); err != nil {
			return err
		}
	}
	return nil
}

func (g *generator) genFuncDef(s *FuncDef) error {
	sig, err := g.buildSig(s)
	if err != nil {
		return err
	}
	fn := &Function{
		Name:     s.Name,
		Sig:      sig,
		Body:     s.Body,
		Const:    s.Const,
		DefPos:   s.PosVal,
		DefFile:  g.file,
		defScope: g.scope,
	}
	for _, p := range sig.Params {
		if p.Mode != ParamByValue {
			fn.Inline = true
		}
	}
	if !fn.Const {
		if sig.Result.Kind != TypeNone && !sig.Result.Runtime() {
			return g.fail(ErrUnsupportedResultType, s.PosVal,
				"%q is not a valid runtime result type", sig.Result)
		}
		if sig.Result.Kind != TypeNone && !hasResultStmt(s.Body) {
			return g.fail(ErrNeverResult, s.PosVal,
				"function %q declares a result but never produces one", s.Name)
		}
	}
	if g.scope.Shadows(s.Name) {
		g.warn(ErrShadowedName, s.PosVal, "%q shadows a name from an outer scope", s.Name)
	}
	g.scope.Define(s.Name, &Symbol{Kind: SymValue, Value: &Value{
		Kind: ValConst, Type: functionType(sig), Func: fn,
	}, DefPos: s.PosVal})
	return nil
}

// hasResultStmt is the conservative static check that a body is
// guaranteed to produce a result: a "result" at the body's top level,
// or an "if"/"else" whose branches both guarantee one. Loop bodies
// guarantee nothing.
func hasResultStmt(body []Stmt) bool {
	for _, stmt := range body {
		switch s := stmt.(type) {
		case *ResultStmt:
			return true
		case *IfStmt:
			if len(s.Else) > 0 && hasResultStmt(s.Body) && hasResultStmt(s.Else) {
				return true
			}
		}
	}
	return false
}

func (g *generator) buildSig(s *FuncDef) (*FuncSig, error) {
	sig := &FuncSig{Result: typeNone}
	if s.Result != nil {
		t, err := g.typeSpec(s.Result)
		if err != nil {
			return nil, err
		}
		if s.Const && (t.Kind == TypeStruct || t.Kind == TypeEntity) {
			return nil, g.fail(ErrNonRtResult, s.Result.Pos(),
				"compile-time function cannot produce a %q result", t)
		}
		sig.Result = t
	}
	for _, pn := range s.Params {
		p := Param{Name: pn.Name, Mode: pn.Mode, Type: typeAny}
		if pn.Type != nil {
			t, err := g.typeSpec(pn.Type)
			if err != nil {
				return nil, err
			}
			p.Type = t
		}
		if pn.Default != nil {
			dv, err := g.ce.Eval(pn.Default, g.scope)
			if err != nil {
				return nil, err
			}
			if dv == nil {
				return nil, g.fail(ErrArgNotConst, pn.Default.Pos(),
					"parameter defaults must be compile-time constants")
			}
			if p.Type.Kind == TypeAny {
				p.Type = dv.Type
			}
			p.Default = dv
		}
		switch p.Mode {
		case ParamByValue:
			if !s.Const {
				if p.Type.Kind == TypeAny {
					return nil, g.fail(ErrInvalidTypeSpec, pn.Pos,
						"parameter %q needs a type", pn.Name)
				}
				if !p.Type.Runtime() {
					return nil, g.fail(ErrUnsupportedArgType, pn.Pos,
						"%q is not a valid runtime parameter type", p.Type)
				}
			}
		case ParamByRef:
			if s.Const {
				return nil, g.fail(ErrUnsupportedArgType, pn.Pos,
					"compile-time functions cannot take reference parameters")
			}
			if p.Type.Kind == TypeAny {
				return nil, g.fail(ErrInvalidTypeSpec, pn.Pos,
					"parameter %q needs a type", pn.Name)
			}
			if !p.Type.Runtime() {
				return nil, g.fail(ErrUnsupportedArgType, pn.Pos,
					"%q is not a valid reference parameter type", p.Type)
			}
		}
		sig.Params = append(sig.Params, p)
	}
	return sig, nil
}

func (g *generator) genStructDef(s *StructDefNode) error {
	def := &StructDef{
		Name:   s.Name,
		Fields: make(map[string]Type),
		DefPos: s.PosVal,
	}
	for _, f := range s.Fields {
		if _, dup := def.Fields[f.Name]; dup {
			return g.fail(ErrEfieldMultipleDefs, f.PosVal,
				"multiple definitions for field %q", f.Name)
		}
		t, err := g.typeSpec(f.Type)
		if err != nil {
			return err
		}
		if !t.Storable() {
			return g.fail(ErrUnsupportedFieldType, f.PosVal,
				"%q is not a valid field type", t)
		}
		def.Fields[f.Name] = t
		def.FieldOrder = append(def.FieldOrder, f.Name)
	}
	g.scope.Define(s.Name, &Symbol{Kind: SymType, Type: structType(def), DefPos: s.PosVal})
	return nil
}

func (g *generator) genEntityDef(s *EntityDef) error {
	var bases []*Template
	for _, be := range s.Bases {
		bt, err := g.typeSpec(be)
		if err != nil {
			return err
		}
		if bt.Kind != TypeEntity {
			return g.fail(ErrInvalidTypeSpec, be.Pos(),
				"%q is not an entity template", bt)
		}
		bases = append(bases, bt.Template)
	}

	var fields []templateField
	for _, f := range s.Fields {
		t, err := g.typeSpec(f.Type)
		if err != nil {
			return err
		}
		if !t.Storable() {
			return g.fail(ErrUnsupportedFieldType, f.PosVal,
				"%q is not a valid entity field type", t)
		}
		fields = append(fields, templateField{name: f.Name, typ: t, pos: f.PosVal})
	}

	var methods []templateMethod
	var ctor *Function
	for _, m := range s.Methods {
		if m.Const {
			return g.fail(ErrUnexpectedToken, m.PosVal,
				"compile-time functions are not allowed in entity bodies")
		}
		sig, err := g.buildSig(m)
		if err != nil {
			return err
		}
		fn := &Function{
			Name: m.Name, Sig: sig, Body: m.Body,
			DefPos: m.PosVal, DefFile: g.file, defScope: g.scope,
		}
		for _, p := range sig.Params {
			if p.Mode != ParamByValue {
				fn.Inline = true
			}
		}
		if m.Name == "new" {
			if sig.Result.Kind != TypeNone {
				return g.fail(ErrNewResult, m.PosVal,
					"the result type of \"new\" is always \"none\"")
			}
			if ctor != nil {
				return g.fail(ErrMultipleNewMethods, m.PosVal,
					"multiple definitions for \"new\"")
			}
			ctor = fn
			continue
		}
		if sig.Result.Kind != TypeNone && !hasResultStmt(m.Body) {
			return g.fail(ErrNeverResult, m.PosVal,
				"method %q declares a result but never produces one", m.Name)
		}
		var qual Qualifier
		switch m.Qualifier {
		case TokenVirtual:
			qual = QualVirtual
		case TokenOverride:
			qual = QualOverride
		case TokenStatic:
			qual = QualStatic
		}
		// Dispatched methods share one compiled body across call
		// sites, which rules out per-site parameter binding.
		if fn.Inline && (qual == QualVirtual || qual == QualOverride) {
			return g.fail(ErrUnsupportedArgType, m.PosVal,
				"virtual method %q cannot take reference or const parameters", m.Name)
		}
		methods = append(methods, templateMethod{name: m.Name, qual: qual, fn: fn, pos: m.PosVal})
	}

	t, d := newTemplate(s.Name, bases, fields, methods, ctor, g.prog.nextTemplateID(), s.PosVal)
	if d != nil {
		d.File = g.file
		return d
	}
	t.DefFile = g.file
	for _, tm := range methods {
		tm.fn.owner = t
	}
	if ctor != nil {
		ctor.owner = t
	}
	g.scope.Define(s.Name, &Symbol{Kind: SymType, Type: entityType(t), DefPos: s.PosVal})
	return nil
}

func (g *generator) genInterface(s *InterfaceDef) error {
	if err := g.checkPath(s.Path, s.PosVal); err != nil {
		return err
	}
	if _, dup := g.prog.interfaces[s.Path]; dup {
		d := g.fail(ErrDuplicateInterface, s.PosVal,
			"interface %q is already defined", s.Path)
		first := g.prog.ifaceDefs[s.Path]
		return d.WithNote(first.pos, first.file, "first defined here")
	}
	seq := NewSequence(s.Path)
	g.prog.seqs = append(g.prog.seqs, seq)
	g.prog.interfaces[s.Path] = seq
	g.prog.ifaceDefs[s.Path] = ifaceDef{pos: s.PosVal, file: g.file}

	var frame []ScbSlot
	sub := g.sub(seq, NewScope(g.scope))
	sub.fn = nil
	sub.frame = &frame
	sub.debugNote("interface %s (%s:%d)", s.Path, g.file, s.PosVal.Line)
	if err := sub.genBody(s.Body); err != nil {
		return err
	}
	// Frame registers are reclaimable once the entry point has run,
	// unless a pending dispatch still points at them.
	if len(g.prog.pending) == 0 {
		g.prog.alloc.Release(frame...)
	}
	g.checkLimit(seq, s.PosVal)
	return nil
}

func (g *generator) checkPath(path string, pos Position) error {
	segments := strings.Split(path, "/")
	for _, seg := range segments {
		if !pathSegment.MatchString(seg) {
			return g.fail(ErrInvalidPath, pos, "invalid interface path %q", path)
		}
	}
	if segments[0] == g.prog.cfg.GenPrefix {
		return g.fail(ErrReservedPath, pos,
			"interface path %q uses the reserved %q namespace", path, g.prog.cfg.GenPrefix)
	}
	return nil
}

func (g *generator) checkLimit(seq *Sequence, pos Position) {
	limit := g.prog.cfg.MaxCommands
	if limit > 0 && seq.Len() > limit {
		g.warn(ErrCommandLimit, pos,
			"sequence %q holds %d commands, over the configured limit of %d",
			seq.Path(), seq.Len(), limit)
	}
}

func (g *generator) genCommand(s *CommandStmt) error {
	var b strings.Builder
	for i, part := range s.Parts {
		b.WriteString(part)
		if i < len(s.Substs) {
			v, err := g.ce.Eval(s.Substs[i], g.scope)
			if err != nil {
				return err
			}
			if v == nil {
				return g.fail(ErrNotConst, s.Substs[i].Pos(),
					"command substitutions must be compile-time constants")
			}
			text, ok := constString(v)
			if !ok {
				return g.fail(ErrInvalidOperand, s.Substs[i].Pos(),
					"cannot format %q type into a command", v.Type)
			}
			b.WriteString(text)
		}
	}
	g.emit(&Raw{Text: b.String()})
	return nil
}

func (g *generator) genImport(s *ImportStmt) error {
	mod, err := g.prog.loadModule(s.Name, s.PosVal, g.file)
	if err != nil {
		return err
	}
	g.scope.Define(s.Name, &Symbol{Kind: SymValue, Value: &Value{
		Kind: ValConst, Type: Type{Kind: TypeModule}, Mod: mod,
	}, DefPos: s.PosVal})
	return nil
}

// ---------------------------------------------------------------------------
// Type specs
// ---------------------------------------------------------------------------

func (g *generator) typeSpec(e Expr) (Type, error) {
	switch n := e.(type) {
	case *Name:
		sym := g.scope.Lookup(n.Value)
		if sym == nil {
			return typeAny, g.fail(ErrNameNotDefined, n.PosVal, "name %q is not defined", n.Value)
		}
		if sym.Kind != SymType {
			return typeAny, g.fail(ErrInvalidTypeSpec, n.PosVal, "%q does not name a type", n.Value)
		}
		return sym.Type, nil
	case *Attribute:
		v, err := g.genExpr(n.Primary)
		if err != nil {
			return typeAny, err
		}
		pv := v.Deref()
		if pv.Kind == ValConst && pv.Type.Kind == TypeModule {
			sym := pv.Mod.Names.LookupLocal(n.Attr)
			if sym == nil {
				return typeAny, g.fail(ErrHasNoAttribute, n.PosVal,
					"module %q does not have attribute %q", pv.Mod.Name, n.Attr)
			}
			if sym.Kind != SymType {
				return typeAny, g.fail(ErrInvalidTypeSpec, n.PosVal,
					"%q does not name a type", n.Attr)
			}
			return sym.Type, nil
		}
	}
	return typeAny, g.fail(ErrInvalidTypeSpec, e.Pos(), "invalid type spec")
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// genExpr offers the expression to the constant evaluator first and
// lowers to runtime operations only on refusal.
func (g *generator) genExpr(e Expr) (*Value, error) {
	v, err := g.ce.Eval(e, g.scope)
	if err != nil {
		return nil, err
	}
	if v != nil {
		return v, nil
	}
	return g.lowerExpr(e)
}

func (g *generator) lowerExpr(e Expr) (*Value, error) {
	switch n := e.(type) {
	case *Name:
		sym := g.scope.Lookup(n.Value)
		if sym == nil {
			return nil, g.fail(ErrNameNotDefined, n.PosVal, "name %q is not defined", n.Value)
		}
		if sym.Kind == SymType {
			return &Value{Kind: ValConst, Type: sym.Type}, nil
		}
		return sym.Value, nil
	case *SelfExpr:
		if g.fn == nil || g.fn.selfVal == nil {
			return nil, g.fail(ErrSelfOutOfScope, n.PosVal,
				"\"self\" outside an entity method")
		}
		return g.fn.selfVal, nil
	case *Attribute:
		return g.lowerAttribute(n)
	case *Subscript:
		return nil, g.fail(ErrInvalidOperand, n.PosVal,
			"runtime values are not subscriptable")
	case *UnaryOp:
		return g.lowerUnary(n)
	case *BinOp:
		return g.lowerBinOp(n)
	case *CompareOp:
		return g.lowerCompare(n)
	case *BoolOp:
		return g.lowerBoolOp(n)
	case *Call:
		return g.lowerCall(n)
	}
	return nil, g.fail(ErrInvalidOperand, e.Pos(), "expression is not allowed here")
}

// lvalue resolves an assignable place without folding it away.
func (g *generator) lvalue(e Expr) (*Value, error) {
	switch n := e.(type) {
	case *Name:
		sym := g.scope.Lookup(n.Value)
		if sym == nil {
			return nil, g.fail(ErrNameNotDefined, n.PosVal, "name %q is not defined", n.Value)
		}
		if sym.Kind == SymType {
			return nil, g.fail(ErrInvalidAssignTarget, n.PosVal, "%q names a type", n.Value)
		}
		return sym.Value, nil
	case *SelfExpr:
		return g.lowerExpr(n)
	case *Attribute:
		return g.lowerAttribute(n)
	}
	return nil, g.fail(ErrInvalidAssignTarget, e.Pos(), "invalid assignment target")
}

func (g *generator) lowerAttribute(n *Attribute) (*Value, error) {
	primary, err := g.genExpr(n.Primary)
	if err != nil {
		return nil, err
	}
	pv := primary.Deref()
	switch pv.Type.Kind {
	case TypeModule:
		sym := pv.Mod.Names.LookupLocal(n.Attr)
		if sym == nil {
			return nil, g.fail(ErrHasNoAttribute, n.PosVal,
				"module %q does not have attribute %q", pv.Mod.Name, n.Attr)
		}
		if sym.Kind == SymType {
			return &Value{Kind: ValConst, Type: sym.Type}, nil
		}
		return sym.Value, nil
	case TypeStruct:
		return g.fieldOf(pv, n.Attr, n.PosVal)
	case TypeEntity:
		if pv.Kind == ValRegister {
			return g.fieldOf(pv, n.Attr, n.PosVal)
		}
		// Attribute on the template itself: static methods.
		t := pv.Type.Template
		if m, ok := t.Static[n.Attr]; ok {
			return &Value{Kind: ValConst, Type: functionType(m.Fn.Sig), Func: m.Fn}, nil
		}
		return nil, g.fail(ErrHasNoAttribute, n.PosVal,
			"template %q does not have static method %q", t.Name, n.Attr)
	}
	return nil, g.fail(ErrHasNoAttribute, n.PosVal,
		"%q values have no attribute %q", pv.Type, n.Attr)
}

// fieldOf slices the register window of a struct or entity value down
// to one field.
func (g *generator) fieldOf(v *Value, name string, pos Position) (*Value, error) {
	var order []string
	var fields map[string]Type
	offset := 0
	switch v.Type.Kind {
	case TypeStruct:
		order, fields = v.Type.Struct.FieldOrder, v.Type.Struct.Fields
	case TypeEntity:
		order, fields = v.Type.Template.FieldOrder, v.Type.Template.Fields
		offset = 1 // skip the discriminant
	}
	for _, fname := range order {
		w := fields[fname].Width()
		if fname == name {
			return &Value{
				Kind:  ValRegister,
				Type:  fields[fname],
				Slots: v.Slots[offset : offset+w],
			}, nil
		}
		offset += w
	}
	return nil, g.fail(ErrHasNoAttribute, pos,
		"%q values have no attribute %q", v.Type, name)
}

func (g *generator) lowerUnary(n *UnaryOp) (*Value, error) {
	operand, err := g.genExpr(n.Operand)
	if err != nil {
		return nil, err
	}
	v := operand.Deref()
	switch n.Op {
	case TokenMinus, TokenPlus:
		if v.Type.Kind != TypeInt {
			return nil, g.fail(ErrInvalidOperand, n.PosVal,
				"invalid operand for unary %q: %q", n.Op, v.Type)
		}
		if n.Op == TokenPlus {
			return operand, nil
		}
		out := &Value{Kind: ValRegister, Type: typeInt, Slots: g.allocTemp(1)}
		if err := g.store(out, operand, n.PosVal); err != nil {
			return nil, err
		}
		g.emit(&Operation{Op: OpMulEq, Target: out.Slots[0], Source: g.prog.alloc.IntConst(-1)})
		return out, nil
	case TokenNot:
		if v.Type.Kind != TypeBool {
			return nil, g.fail(ErrInvalidOperand, n.PosVal,
				"invalid operand for \"not\": %q", v.Type)
		}
		conds, err := g.asConds(v, n.PosVal)
		if err != nil {
			return nil, err
		}
		if len(conds) == 1 {
			return &Value{Kind: ValConst, Type: typeBool, Conds: []Cond{conds[0].Inverted()}}, nil
		}
		flag := g.materializeConds(conds)
		return &Value{Kind: ValConst, Type: typeBool, Conds: []Cond{matchCond(flag, "0")}}, nil
	}
	return nil, g.fail(ErrInvalidOperand, n.PosVal, "invalid unary operator")
}

func (g *generator) lowerBinOp(n *BinOp) (*Value, error) {
	left, err := g.genExpr(n.Left)
	if err != nil {
		return nil, err
	}
	right, err := g.genExpr(n.Right)
	if err != nil {
		return nil, err
	}
	lv, rv := left.Deref(), right.Deref()
	if lv.Type.Kind != TypeInt || rv.Type.Kind != TypeInt {
		return nil, g.fail(ErrInvalidOperand, n.PosVal,
			"invalid operands for %q: %q and %q", n.Op, lv.Type, rv.Type)
	}
	out := &Value{Kind: ValRegister, Type: typeInt, Slots: g.allocTemp(1)}
	if err := g.store(out, left, n.PosVal); err != nil {
		return nil, err
	}
	if err := g.emitArith(n.Op, out.Slots[0], right, n.PosVal); err != nil {
		return nil, err
	}
	return out, nil
}

func (g *generator) lowerCompare(n *CompareOp) (*Value, error) {
	prev, err := g.genExpr(n.Left)
	if err != nil {
		return nil, err
	}
	var conds []Cond
	for i, op := range n.Ops {
		next, err := g.genExpr(n.Comparators[i])
		if err != nil {
			return nil, err
		}
		c, err := g.compareCond(op, prev.Deref(), next.Deref(), n.PosVal)
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
		prev = next
	}
	return &Value{Kind: ValConst, Type: typeBool, Conds: conds}, nil
}

// compareCond builds the execute condition for one comparison link.
func (g *generator) compareCond(op TokenType, a, b *Value, pos Position) (Cond, error) {
	if a.Type.Kind == TypeBool && b.Type.Kind == TypeBool && (op == TokenEq || op == TokenNotEq) {
		ra, err := g.asRegisters(a, pos)
		if err != nil {
			return Cond{}, err
		}
		rb, err := g.asRegisters(b, pos)
		if err != nil {
			return Cond{}, err
		}
		c := Cond{Kind: CondScore, Slot: ra.Slots[0], Op: "=", Other: rb.Slots[0]}
		if op == TokenNotEq {
			c.Invert = true
		}
		return c, nil
	}
	if a.Type.Kind != TypeInt || b.Type.Kind != TypeInt {
		return Cond{}, g.fail(ErrInvalidOperand, pos,
			"invalid operands for %q: %q and %q", op, a.Type, b.Type)
	}
	// Normalize a constant left operand to the right.
	if a.Kind == ValConst && b.Kind != ValConst {
		a, b = b, a
		op = flipCompare(op)
	}
	if b.Kind == ValConst {
		ra, err := g.asRegisters(a, pos)
		if err != nil {
			return Cond{}, err
		}
		slot := ra.Slots[0]
		c := b.Int
		switch op {
		case TokenEq:
			return matchCond(slot, fmt.Sprintf("%d", c)), nil
		case TokenNotEq:
			return matchCond(slot, fmt.Sprintf("%d", c)).Inverted(), nil
		case TokenLess:
			return matchCond(slot, fmt.Sprintf("..%d", c-1)), nil
		case TokenLessEq:
			return matchCond(slot, fmt.Sprintf("..%d", c)), nil
		case TokenGreater:
			return matchCond(slot, fmt.Sprintf("%d..", c+1)), nil
		case TokenGreaterEq:
			return matchCond(slot, fmt.Sprintf("%d..", c)), nil
		}
	}
	ra, err := g.asRegisters(a, pos)
	if err != nil {
		return Cond{}, err
	}
	rb, err := g.asRegisters(b, pos)
	if err != nil {
		return Cond{}, err
	}
	c := Cond{Kind: CondScore, Slot: ra.Slots[0], Other: rb.Slots[0]}
	switch op {
	case TokenEq:
		c.Op = "="
	case TokenNotEq:
		c.Op, c.Invert = "=", true
	case TokenLess:
		c.Op = "<"
	case TokenLessEq:
		c.Op = "<="
	case TokenGreater:
		c.Op = ">"
	case TokenGreaterEq:
		c.Op = ">="
	}
	return c, nil
}

func flipCompare(op TokenType) TokenType {
	switch op {
	case TokenLess:
		return TokenGreater
	case TokenGreater:
		return TokenLess
	case TokenLessEq:
		return TokenGreaterEq
	case TokenGreaterEq:
		return TokenLessEq
	}
	return op
}

func (g *generator) lowerBoolOp(n *BoolOp) (*Value, error) {
	if n.Op == TokenAnd {
		// Conjunction: condition prefixes concatenate. Operand
		// computations run unconditionally.
		var conds []Cond
		for _, operand := range n.Operands {
			v, err := g.genExpr(operand)
			if err != nil {
				return nil, err
			}
			ov := v.Deref()
			if ov.Type.Kind != TypeBool {
				return nil, g.fail(ErrInvalidOperand, operand.Pos(),
					"invalid operand for boolean operator: %q", ov.Type)
			}
			if ov.Kind == ValConst && len(ov.Conds) == 0 {
				if !ov.Bool {
					return boolConst(false), nil
				}
				continue
			}
			c, err := g.asConds(ov, operand.Pos())
			if err != nil {
				return nil, err
			}
			conds = append(conds, c...)
		}
		if len(conds) == 0 {
			return boolConst(true), nil
		}
		return &Value{Kind: ValConst, Type: typeBool, Conds: conds}, nil
	}

	// Disjunction latches a flag: any true operand sets it.
	flag := g.allocTemp(1)[0]
	g.emit(&SetConst{Target: flag, Value: 0})
	for _, operand := range n.Operands {
		v, err := g.genExpr(operand)
		if err != nil {
			return nil, err
		}
		ov := v.Deref()
		if ov.Type.Kind != TypeBool {
			return nil, g.fail(ErrInvalidOperand, operand.Pos(),
				"invalid operand for boolean operator: %q", ov.Type)
		}
		if ov.Kind == ValConst && len(ov.Conds) == 0 {
			if ov.Bool {
				g.emit(&SetConst{Target: flag, Value: 1})
			}
			continue
		}
		conds, err := g.asConds(ov, operand.Pos())
		if err != nil {
			return nil, err
		}
		g.emit(execute(conds, &SetConst{Target: flag, Value: 1}))
	}
	return &Value{Kind: ValConst, Type: typeBool, Conds: []Cond{matchCond(flag, "1")}}, nil
}

// asConds turns a bool value into execute condition prefixes.
func (g *generator) asConds(v *Value, pos Position) ([]Cond, error) {
	v = v.Deref()
	if len(v.Conds) > 0 {
		return v.Conds, nil
	}
	if v.Kind == ValRegister {
		return []Cond{matchCond(v.Slots[0], "1")}, nil
	}
	return nil, g.fail(ErrWrongCondition, pos, "expected a runtime bool")
}

// materializeConds latches a conjunction into a register: 1 when all
// conditions hold, else 0.
func (g *generator) materializeConds(conds []Cond) ScbSlot {
	flag := g.allocTemp(1)[0]
	g.emit(&SetConst{Target: flag, Value: 0})
	g.emit(execute(conds, &SetConst{Target: flag, Value: 1}))
	return flag
}

// asRegisters materializes a value into registers if it is not
// already register-backed.
func (g *generator) asRegisters(v *Value, pos Position) (*Value, error) {
	v = v.Deref()
	if v.Kind == ValRegister {
		return v, nil
	}
	if len(v.Conds) > 0 {
		return &Value{Kind: ValRegister, Type: typeBool,
			Slots: []ScbSlot{g.materializeConds(v.Conds)}}, nil
	}
	if !v.Type.Runtime() {
		return nil, g.fail(ErrNonRtName, pos,
			"%q values cannot be materialized at runtime", v.Type)
	}
	out := &Value{Kind: ValRegister, Type: v.Type, Slots: g.allocTemp(v.Type.Width())}
	if err := g.store(out, v, pos); err != nil {
		return nil, err
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Stores and copies
// ---------------------------------------------------------------------------

// store copies src into the register-backed dst, slicing entity
// windows by field name when types differ along the template chain.
func (g *generator) store(dst, src *Value, pos Position) error {
	d := dst.Deref()
	s := src.Deref()
	if d.Kind != ValRegister {
		return g.fail(ErrInvalidAssignTarget, pos, "target is not a runtime variable")
	}
	if !d.Type.AssignableFrom(s.Type) {
		return g.fail(ErrWrongAssignType, pos,
			"expected %q type, got %q", d.Type, s.Type)
	}
	switch d.Type.Kind {
	case TypeInt:
		return g.storeScalar(d.Slots[0], s, pos)
	case TypeBool:
		return g.storeScalar(d.Slots[0], s, pos)
	case TypeStruct:
		if s.Kind == ValConst {
			return g.fail(ErrNotConst, pos, "struct constants are not supported")
		}
		for i := range d.Slots {
			g.emit(&Operation{Op: OpAssign, Target: d.Slots[i], Source: s.Slots[i]})
		}
		return nil
	case TypeEntity:
		return g.storeEntity(d, s)
	}
	return g.fail(ErrUnsupportedVarType, pos,
		"%q values cannot be stored in a runtime variable", d.Type)
}

func (g *generator) storeScalar(slot ScbSlot, s *Value, pos Position) error {
	if s.Kind == ValConst {
		if len(s.Conds) > 0 {
			g.emit(&SetConst{Target: slot, Value: 0})
			g.emit(execute(s.Conds, &SetConst{Target: slot, Value: 1}))
			return nil
		}
		n := s.Int
		if s.Type.Kind == TypeBool {
			n = 0
			if s.Bool {
				n = 1
			}
		}
		g.emit(&SetConst{Target: slot, Value: n})
		return nil
	}
	g.emit(&Operation{Op: OpAssign, Target: slot, Source: s.Slots[0]})
	return nil
}

// storeEntity copies the discriminant and the destination type's
// fields by name. Assigning a subtemplate value to an ancestor-typed
// location slices away the fields the ancestor does not declare.
func (g *generator) storeEntity(d, s *Value) error {
	g.emit(&Operation{Op: OpAssign, Target: d.Slots[0], Source: s.Slots[0]})
	for _, fname := range d.Type.Template.FieldOrder {
		df, _ := g.fieldOf(d, fname, Position{})
		sf, err := g.fieldOf(s, fname, Position{})
		if err != nil {
			continue // field sliced away already
		}
		for i := range df.Slots {
			g.emit(&Operation{Op: OpAssign, Target: df.Slots[i], Source: sf.Slots[i]})
		}
	}
	return nil
}

func (g *generator) constSubscriptStore(primary *Value, target *Subscript, value *Value, pos Position) error {
	pv := primary.Deref()
	vv := value.Deref()
	if pv.Kind != ValConst || vv.Kind != ValConst {
		return g.fail(ErrInvalidAssignTarget, pos,
			"runtime values are not subscript-assignable")
	}
	index, err := g.ce.Eval(target.Index, g.scope)
	if err != nil {
		return err
	}
	if index == nil {
		return g.fail(ErrElementNotConst, target.Index.Pos(),
			"subscript index must be a compile-time constant")
	}
	switch pv.Type.Kind {
	case TypeList:
		if index.Type.Kind != TypeInt {
			return g.fail(ErrInvalidOperand, target.Index.Pos(),
				"list index must be int, got %q", index.Type)
		}
		i := index.Int
		if i < 0 {
			i += int64(len(pv.List))
		}
		if i < 0 || i >= int64(len(pv.List)) {
			return g.fail(ErrInvalidOperand, target.Index.Pos(),
				"list of length %d got out of bounds index %d", len(pv.List), index.Int)
		}
		pv.List[i] = vv
		return nil
	case TypeMap:
		mapSet(pv, index, vv)
		return nil
	}
	return g.fail(ErrInvalidOperand, pos, "%q values are not subscriptable", pv.Type)
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

func (g *generator) lowerCall(n *Call) (*Value, error) {
	// Method calls need the receiver, which a plain callee lookup
	// would lose.
	if attr, ok := n.Func.(*Attribute); ok {
		primary, err := g.genExpr(attr.Primary)
		if err != nil {
			return nil, err
		}
		pv := primary.Deref()
		if pv.Type.Kind == TypeEntity && pv.Kind == ValRegister {
			return g.lowerMethodCall(pv, attr.Attr, n)
		}
	}

	callee, err := g.genExpr(n.Func)
	if err != nil {
		return nil, err
	}
	cv := callee.Deref()
	if cv.Kind == ValConst && cv.Func == nil {
		switch cv.Type.Kind {
		case TypeEntity:
			return g.lowerConstruct(cv.Type.Template, n)
		case TypeStruct:
			return g.lowerStructBuild(cv.Type.Struct, n)
		}
	}
	if cv.Type.Kind != TypeFunction || cv.Func == nil {
		return nil, g.fail(ErrUncallable, n.PosVal, "%q is not callable", cv.Type)
	}
	return g.lowerFnCall(cv.Func, n, nil)
}

// callArgs holds lowered call arguments, keeping the argument
// expressions around for reference-binding diagnostics.
type callArgs struct {
	pos   []*Value
	posEx []Expr
	kw    map[string]*Value
	kwEx  map[string]Expr
}

func (g *generator) lowerArgs(n *Call) (*callArgs, error) {
	ca := &callArgs{kw: make(map[string]*Value), kwEx: make(map[string]Expr)}
	for _, a := range n.Args {
		v, err := g.genExpr(a)
		if err != nil {
			return nil, err
		}
		ca.pos = append(ca.pos, v)
		ca.posEx = append(ca.posEx, a)
	}
	for _, kw := range n.Keywords {
		v, err := g.genExpr(kw.Value)
		if err != nil {
			return nil, err
		}
		if _, dup := ca.kw[kw.Name]; dup {
			return nil, g.fail(ErrArgMultipleValues, kw.Pos,
				"multiple values for argument %q", kw.Name)
		}
		ca.kw[kw.Name] = v
		ca.kwEx[kw.Name] = kw.Value
	}
	return ca, nil
}

// bindRuntimeArgs matches lowered arguments to parameters, mirroring
// bindArgs but keeping runtime values and argument expressions.
func (g *generator) bindRuntimeArgs(fn *Function, ca *callArgs, pos Position) (map[string]*Value, map[string]Expr, error) {
	params := fn.Sig.Params
	if len(ca.pos) > len(params) {
		return nil, nil, g.fail(ErrTooManyArgs, pos, "too many positional arguments to %q", fn.Name)
	}
	bound := make(map[string]*Value, len(params))
	exprs := make(map[string]Expr, len(params))
	for i, v := range ca.pos {
		bound[params[i].Name] = v
		exprs[params[i].Name] = ca.posEx[i]
	}
	for name, v := range ca.kw {
		found := false
		for _, p := range params {
			if p.Name == name {
				found = true
				break
			}
		}
		if !found {
			return nil, nil, g.fail(ErrUnexpectedKeywordArg, pos,
				"unexpected keyword argument %q", name)
		}
		if _, dup := bound[name]; dup {
			return nil, nil, g.fail(ErrArgMultipleValues, pos,
				"multiple values for argument %q", name)
		}
		bound[name] = v
		exprs[name] = ca.kwEx[name]
	}
	for _, p := range params {
		v, ok := bound[p.Name]
		if !ok {
			if p.Default == nil {
				return nil, nil, g.fail(ErrMissingArg, pos,
					"required argument %q is missing", p.Name)
			}
			bound[p.Name] = p.Default
			continue
		}
		vt := v.Deref().Type
		if p.Type.Kind != TypeAny && !p.Type.AssignableFrom(vt) {
			return nil, nil, g.fail(ErrWrongArgType, pos,
				"expected %q type for argument %q, got %q", p.Type, p.Name, vt)
		}
	}
	return bound, exprs, nil
}

// lowerFnCall lowers a call to a source-level function. self is the
// bound receiver for simple entity methods, nil otherwise.
func (g *generator) lowerFnCall(fn *Function, n *Call, self *Value) (*Value, error) {
	if fn.Const || fn.Builtin != nil {
		// The evaluator owns compile-time functions; reaching here
		// means an argument was not constant.
		return nil, g.fail(ErrArgNotConst, n.PosVal,
			"argument to a compile-time function must be constant")
	}
	ca, err := g.lowerArgs(n)
	if err != nil {
		return nil, err
	}
	bound, exprs, err := g.bindRuntimeArgs(fn, ca, n.PosVal)
	if err != nil {
		return nil, err
	}
	if fn.Inline {
		return g.lowerInlineCall(fn, bound, exprs, self, n.PosVal)
	}
	if err := g.compileFunction(fn); err != nil {
		return nil, err
	}

	// Copy-in, with the receiver window first for methods.
	if self != nil {
		if err := g.store(fn.selfVal, self, n.PosVal); err != nil {
			return nil, err
		}
	}
	for i, p := range fn.Sig.Params {
		if err := g.store(fn.paramVals[i], bound[p.Name], n.PosVal); err != nil {
			return nil, err
		}
	}
	g.emit(&Invoke{Seq: fn.seq})
	// Copy-back: methods may mutate their receiver. Inherited methods
	// view the receiver through the owning template's window, so only
	// the fields that window declares travel back.
	if self != nil {
		if err := g.copyEntityWindow(self, fn.selfVal, false, n.PosVal); err != nil {
			return nil, err
		}
	}
	if fn.resultVal == nil {
		return noneConst(), nil
	}
	out := &Value{Kind: ValRegister, Type: fn.Sig.Result,
		Slots: g.allocTemp(fn.Sig.Result.Width())}
	if err := g.store(out, fn.resultVal, n.PosVal); err != nil {
		return nil, err
	}
	return out, nil
}

// lowerInlineCall lowers a function with reference or const parameters
// directly at the call site.
func (g *generator) lowerInlineCall(fn *Function, bound map[string]*Value,
	exprs map[string]Expr, self *Value, pos Position) (*Value, error) {

	if fn.inlining {
		return nil, g.fail(ErrUncallable, pos,
			"function %q with reference parameters cannot call itself", fn.Name)
	}
	fn.inlining = true
	defer func() { fn.inlining = false }()

	scope := NewScope(fn.defScope)
	for _, p := range fn.Sig.Params {
		v := bound[p.Name]
		switch p.Mode {
		case ParamByRef:
			place := v.Deref()
			if place.Kind != ValRegister {
				ex := exprs[p.Name]
				epos := pos
				if ex != nil {
					epos = ex.Pos()
				}
				return nil, g.fail(ErrInvalidOperand, epos,
					"reference argument %q needs a runtime variable", p.Name)
			}
			scope.Define(p.Name, &Symbol{Kind: SymValue,
				Value: &Value{Kind: ValReference, Type: place.Type, Ref: place}})
		case ParamConst:
			cv := v.Deref()
			if cv.Kind != ValConst {
				return nil, g.fail(ErrArgNotConst, pos,
					"argument %q must be a compile-time constant", p.Name)
			}
			scope.Define(p.Name, &Symbol{Kind: SymValue, Value: cv})
		default:
			copied := &Value{Kind: ValRegister, Type: p.Type,
				Slots: g.allocTemp(p.Type.Width())}
			if err := g.store(copied, v, pos); err != nil {
				return nil, err
			}
			scope.Define(p.Name, &Symbol{Kind: SymValue, Value: copied})
		}
	}

	inlineFn := &Function{
		Name: fn.Name, Sig: fn.Sig,
		owner: fn.owner, selfVal: self,
	}
	if fn.Sig.Result.Kind != TypeNone {
		inlineFn.resultVal = &Value{Kind: ValRegister, Type: fn.Sig.Result,
			Slots: g.allocTemp(fn.Sig.Result.Width())}
	}
	sub := g.sub(g.seq, scope)
	sub.fn = inlineFn
	if err := sub.genBody(fn.Body); err != nil {
		if d, ok := err.(*Diag); ok {
			d.WithNote(fn.DefPos, fn.DefFile, "in call to %q defined here", fn.Name)
		}
		return nil, err
	}
	if inlineFn.resultVal == nil {
		return noneConst(), nil
	}
	return inlineFn.resultVal, nil
}

// compileFunction lowers a plain function into its own sequence once;
// later calls reuse it through argument copy-in and result copy-out.
func (g *generator) compileFunction(fn *Function) error {
	if fn.seq != nil {
		return nil
	}
	fn.seq = g.prog.newSeq(fn.Name)
	if fn.owner != nil {
		st := entityType(fn.owner)
		fn.selfVal = &Value{Kind: ValRegister, Type: st, Slots: g.allocPersist(st.Width())}
	}
	for _, p := range fn.Sig.Params {
		fn.paramVals = append(fn.paramVals, &Value{
			Kind: ValRegister, Type: p.Type, Slots: g.allocPersist(p.Type.Width()),
		})
	}
	if fn.Sig.Result.Kind != TypeNone {
		fn.resultVal = &Value{Kind: ValRegister, Type: fn.Sig.Result,
			Slots: g.allocPersist(fn.Sig.Result.Width())}
	}

	scope := NewScope(fn.defScope)
	for i, p := range fn.Sig.Params {
		scope.Define(p.Name, &Symbol{Kind: SymValue, Value: fn.paramVals[i]})
	}
	sub := g.sub(fn.seq, scope)
	sub.fn = fn
	sub.frame = nil // function registers persist for the whole unit
	sub.file = fn.DefFile
	sub.ce = &constEval{file: fn.DefFile}
	sub.debugNote("def %s (%s:%d)", fn.Name, fn.DefFile, fn.DefPos.Line)
	if err := sub.genBody(fn.Body); err != nil {
		return err
	}
	g.checkLimit(fn.seq, fn.DefPos)
	return nil
}

// ---------------------------------------------------------------------------
// Entity construction and method dispatch
// ---------------------------------------------------------------------------

func (g *generator) lowerConstruct(t *Template, n *Call) (*Value, error) {
	width := entityType(t).Width()
	out := &Value{Kind: ValRegister, Type: entityType(t), Slots: g.allocTemp(width)}
	g.emit(&SetConst{Target: out.Slots[0], Value: int64(t.RuntimeID)})
	for _, slot := range out.Slots[1:] {
		g.emit(&SetConst{Target: slot, Value: 0})
	}
	g.prog.instantiated[t] = true

	var ctor *Function
	if chain := t.constructorChain(); len(chain) > 0 {
		ctor = chain[len(chain)-1]
	}
	if ctor == nil {
		if len(n.Args) > 0 || len(n.Keywords) > 0 {
			return nil, g.fail(ErrTooManyArgs, n.PosVal,
				"template %q takes no construction arguments", t.Name)
		}
		return out, nil
	}
	ca, err := g.lowerArgs(n)
	if err != nil {
		return nil, err
	}
	bound, exprs, err := g.bindRuntimeArgs(ctor, ca, n.PosVal)
	if err != nil {
		return nil, err
	}
	// Constructors always lower at the construction site against the
	// fresh instance window.
	if _, err := g.lowerInlineCall(ctor, bound, exprs, out, n.PosVal); err != nil {
		return nil, err
	}
	return out, nil
}

func (g *generator) lowerStructBuild(def *StructDef, n *Call) (*Value, error) {
	ca, err := g.lowerArgs(n)
	if err != nil {
		return nil, err
	}
	if len(ca.pos) > len(def.FieldOrder) {
		return nil, g.fail(ErrTooManyArgs, n.PosVal,
			"too many positional arguments to %q", def.Name)
	}
	byName := make(map[string]*Value, len(def.FieldOrder))
	for i, v := range ca.pos {
		byName[def.FieldOrder[i]] = v
	}
	for name, v := range ca.kw {
		if _, ok := def.Fields[name]; !ok {
			return nil, g.fail(ErrUnexpectedKeywordArg, n.PosVal,
				"unexpected keyword argument %q", name)
		}
		if _, dup := byName[name]; dup {
			return nil, g.fail(ErrArgMultipleValues, n.PosVal,
				"multiple values for argument %q", name)
		}
		byName[name] = v
	}
	out := &Value{Kind: ValRegister, Type: structType(def),
		Slots: g.allocTemp(structType(def).Width())}
	for _, fname := range def.FieldOrder {
		v, ok := byName[fname]
		if !ok {
			return nil, g.fail(ErrMissingArg, n.PosVal,
				"required field %q is missing", fname)
		}
		ft := def.Fields[fname]
		if !ft.AssignableFrom(v.Deref().Type) {
			return nil, g.fail(ErrWrongArgType, n.PosVal,
				"expected %q type for field %q, got %q", ft, fname, v.Deref().Type)
		}
		field, _ := g.fieldOf(out, fname, n.PosVal)
		if err := g.store(field, v, n.PosVal); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (g *generator) lowerMethodCall(recv *Value, name string, n *Call) (*Value, error) {
	t := recv.Type.Template
	if name == "new" {
		return nil, g.fail(ErrNewOutOfScope, n.PosVal,
			"the constructor of %q cannot be called directly", t.Name)
	}
	if m, ok := t.Static[name]; ok {
		return g.lowerFnCall(m.Fn, n, nil)
	}
	if m, ok := t.Simple[name]; ok {
		return g.lowerFnCall(m.Fn, n, recv)
	}
	if disp, ok := t.Virtual[name]; ok {
		return g.lowerDispatch(recv, disp, n)
	}
	return nil, g.fail(ErrHasNoAttribute, n.PosVal,
		"%q values have no method %q", recv.Type, name)
}

// lowerDispatch lowers a virtual method call. Which implementations
// are reachable depends on the set of templates the whole unit
// instantiates, so the selector body is synthesized after generation
// finishes; the call site only copies the receiver into a dedicated
// window and invokes a stub.
func (g *generator) lowerDispatch(recv *Value, disp *Dispatcher, n *Call) (*Value, error) {
	if len(disp.Impls) == 0 {
		return nil, g.fail(ErrUncallable, n.PosVal,
			"virtual method %q has no implementation", disp.Name)
	}
	ca, err := g.lowerArgs(n)
	if err != nil {
		return nil, err
	}
	// Arguments bind against the root implementation's signature; every
	// override shares it apart from the receiver.
	bound, _, err := g.bindRuntimeArgs(disp.Impls[0].Fn, ca, n.PosVal)
	if err != nil {
		return nil, err
	}

	t := recv.Type.Template
	window := &Value{Kind: ValRegister, Type: recv.Type, Slots: g.allocPersist(recv.Type.Width())}
	if err := g.store(window, recv, n.PosVal); err != nil {
		return nil, err
	}
	argVals := make(map[string]*Value, len(bound))
	for pname, v := range bound {
		pv := v.Deref()
		if pv.Kind == ValConst {
			argVals[pname] = pv
			continue
		}
		copied := &Value{Kind: ValRegister, Type: pv.Type, Slots: g.allocPersist(pv.Type.Width())}
		if err := g.store(copied, v, n.PosVal); err != nil {
			return nil, err
		}
		argVals[pname] = copied
	}
	var result *Value
	if disp.Result.Kind != TypeNone {
		result = &Value{Kind: ValRegister, Type: disp.Result,
			Slots: g.allocPersist(disp.Result.Width())}
	}

	stub := g.prog.newSeq("dispatch")
	g.emit(&Invoke{Seq: stub})
	if err := g.store(recv, window, n.PosVal); err != nil {
		return nil, err
	}
	g.prog.pending = append(g.prog.pending, &pendingDispatch{
		stub:   stub,
		disp:   disp,
		static: t,
		window: window,
		args:   argVals,
		result: result,
		pos:    n.PosVal,
		file:   g.file,
	})
	if result == nil {
		return noneConst(), nil
	}
	return result, nil
}

// pendingDispatch is a virtual call whose selector is synthesized once
// the instantiated template set is final.
type pendingDispatch struct {
	stub   *Sequence
	disp   *Dispatcher
	static *Template
	window *Value
	args   map[string]*Value
	result *Value
	pos    Position
	file   string
}

// finishDispatches fills every dispatch stub: one trampoline per
// reachable implementation, selected by discriminant ranges. A single
// reachable implementation is called without any test.
func (p *Program) finishDispatches() error {
	for _, pd := range p.pending {
		if err := p.finishDispatch(pd); err != nil {
			return err
		}
	}
	p.pending = nil
	return nil
}

func (p *Program) finishDispatch(pd *pendingDispatch) error {
	// Reachable implementations: those serving an instantiated
	// descendant of the static receiver type.
	byImpl := make(map[*DispImpl][]int)
	var impls []*DispImpl
	for t := range p.instantiated {
		if !pd.static.IsAncestorOf(t) {
			continue
		}
		impl := pd.disp.implFor(t)
		if impl == nil {
			continue
		}
		if _, seen := byImpl[impl]; !seen {
			impls = append(impls, impl)
		}
		byImpl[impl] = append(byImpl[impl], t.RuntimeID)
	}
	for _, ids := range byImpl {
		sort.Ints(ids)
	}
	sort.Slice(impls, func(i, j int) bool {
		return byImpl[impls[i]][0] < byImpl[impls[j]][0]
	})

	g := &generator{prog: p, ce: &constEval{file: pd.file}, file: pd.file,
		scope: p.root, seq: pd.stub}
	g.debugNote("dispatch %s on %s", pd.disp.Name, pd.static.Name)
	for _, impl := range impls {
		target := pd.stub
		if len(impls) > 1 {
			target = p.newSeq(impl.Fn.Name)
		}
		tg := &generator{prog: p, ce: g.ce, file: pd.file, scope: p.root, seq: target}
		if err := tg.trampoline(pd, impl); err != nil {
			return err
		}
		if len(impls) > 1 {
			// The id ranges are alternatives: one test per range.
			for _, c := range idRangeConds(pd.window.Slots[0], byImpl[impl]) {
				g.emit(execute([]Cond{c}, &Invoke{Seq: target}))
			}
		}
	}
	return nil
}

// trampoline copies the dispatch window into the implementation's self
// window, runs it, and copies results back.
func (g *generator) trampoline(pd *pendingDispatch, impl *DispImpl) error {
	fn := impl.Fn
	if err := g.compileFunction(fn); err != nil {
		return err
	}
	// The discriminant guard already proved the dynamic type, so the
	// window narrows without an assignability check. Fields outside
	// the static window reset to zero.
	if err := g.copyEntityWindow(fn.selfVal, pd.window, true, pd.pos); err != nil {
		return err
	}
	// Arguments were bound against the root implementation's names;
	// overrides may rename parameters, so they match by position.
	rootParams := pd.disp.Impls[0].Fn.Sig.Params
	for i := range fn.Sig.Params {
		if err := g.store(fn.paramVals[i], pd.args[rootParams[i].Name], pd.pos); err != nil {
			return err
		}
	}
	g.emit(&Invoke{Seq: fn.seq})
	if err := g.copyEntityWindow(pd.window, fn.selfVal, false, pd.pos); err != nil {
		return err
	}
	if pd.result != nil {
		if err := g.store(pd.result, fn.resultVal, pd.pos); err != nil {
			return err
		}
	}
	return nil
}

// copyEntityWindow copies the discriminant and every field present in
// both entity windows, matching fields by name rather than through the
// assignability check so the copy works in the narrowing direction
// too. zeroMissing resets destination fields the source window does
// not declare.
func (g *generator) copyEntityWindow(dst, src *Value, zeroMissing bool, pos Position) error {
	g.emit(&Operation{Op: OpAssign, Target: dst.Slots[0], Source: src.Slots[0]})
	for _, fname := range dst.Type.Template.FieldOrder {
		df, err := g.fieldOf(dst, fname, pos)
		if err != nil {
			return err
		}
		if _, ok := src.Type.Template.Fields[fname]; !ok {
			if zeroMissing {
				for _, slot := range df.Slots {
					g.emit(&SetConst{Target: slot, Value: 0})
				}
			}
			continue
		}
		sf, err := g.fieldOf(src, fname, pos)
		if err != nil {
			return err
		}
		for i := range df.Slots {
			g.emit(&Operation{Op: OpAssign, Target: df.Slots[i], Source: sf.Slots[i]})
		}
	}
	return nil
}

// idRangeConds compresses a sorted id set into contiguous match
// ranges.
func idRangeConds(disc ScbSlot, ids []int) []Cond {
	sort.Ints(ids)
	var conds []Cond
	for i := 0; i < len(ids); {
		j := i
		for j+1 < len(ids) && ids[j+1] == ids[j]+1 {
			j++
		}
		if i == j {
			conds = append(conds, matchCond(disc, fmt.Sprintf("%d", ids[i])))
		} else {
			conds = append(conds, matchCond(disc, fmt.Sprintf("%d..%d", ids[i], ids[j])))
		}
		i = j + 1
	}
	return conds
}
