package compiler

// ---------------------------------------------------------------------------
// Constant Evaluator: a compile-time interpreter over Values
// ---------------------------------------------------------------------------

// Iteration budget for compile-time while loops that the static
// endless-loop guard cannot reject up front.
const ctLoopBudget = 100000

// constEval attempts full compile-time evaluation of expressions. Eval
// returns (nil, nil) when the expression requires runtime registers;
// any other failure is a hard diagnostic. It never partially emits.
type constEval struct {
	file string
}

// Eval evaluates expr against scope. A nil, nil return is the
// "requires runtime" verdict.
func (ce *constEval) Eval(expr Expr, scope *Scope) (*Value, error) {
	switch e := expr.(type) {
	case *IntLiteral:
		return intConst(e.Value), nil
	case *BoolLiteral:
		return boolConst(e.Value), nil
	case *StringLiteral:
		return strConst(e.Value), nil
	case *NoneLiteral:
		return noneConst(), nil
	case *SelfExpr:
		return nil, nil
	case *ListLiteral:
		return ce.evalList(e, scope)
	case *MapLiteral:
		return ce.evalMap(e, scope)
	case *Name:
		sym := scope.Lookup(e.Value)
		if sym == nil {
			return nil, ce.fail(ErrNameNotDefined, e.PosVal, "name %q is not defined", e.Value)
		}
		if sym.Kind == SymType {
			return nil, nil
		}
		v := sym.Value.Deref()
		if v.Kind == ValConst {
			return v, nil
		}
		return nil, nil
	case *Attribute:
		return ce.evalAttribute(e, scope)
	case *Subscript:
		return ce.evalSubscript(e, scope)
	case *UnaryOp:
		return ce.evalUnary(e, scope)
	case *BinOp:
		return ce.evalBinOp(e, scope)
	case *CompareOp:
		return ce.evalCompare(e, scope)
	case *BoolOp:
		return ce.evalBoolOp(e, scope)
	case *Call:
		return ce.evalCall(e, scope)
	}
	return nil, nil
}

func (ce *constEval) fail(kind ErrKind, pos Position, format string, args ...interface{}) *Diag {
	d := newDiag(kind, pos, format, args...)
	d.File = ce.file
	return d
}

func (ce *constEval) evalList(e *ListLiteral, scope *Scope) (*Value, error) {
	list := &Value{Kind: ValConst, Type: typeList}
	for _, el := range e.Elements {
		v, err := ce.Eval(el, scope)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, ce.fail(ErrElementNotConst, el.Pos(),
				"list elements must be compile-time constants")
		}
		list.List = append(list.List, v)
	}
	return list, nil
}

func (ce *constEval) evalMap(e *MapLiteral, scope *Scope) (*Value, error) {
	m := &Value{Kind: ValConst, Type: typeMap}
	for i, kexpr := range e.Keys {
		k, err := ce.Eval(kexpr, scope)
		if err != nil {
			return nil, err
		}
		if k == nil {
			return nil, ce.fail(ErrElementNotConst, kexpr.Pos(),
				"map keys must be compile-time constants")
		}
		switch k.Type.Kind {
		case TypeInt, TypeBool, TypeString:
		default:
			return nil, ce.fail(ErrInvalidOperand, kexpr.Pos(),
				"invalid map key of %q type", k.Type)
		}
		v, err := ce.Eval(e.Values[i], scope)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, ce.fail(ErrElementNotConst, e.Values[i].Pos(),
				"map values must be compile-time constants")
		}
		mapSet(m, k, v)
	}
	return m, nil
}

func (ce *constEval) evalAttribute(e *Attribute, scope *Scope) (*Value, error) {
	primary, err := ce.Eval(e.Primary, scope)
	if err != nil || primary == nil {
		return primary, err
	}
	if primary.Type.Kind == TypeModule {
		sym := primary.Mod.Names.LookupLocal(e.Attr)
		if sym == nil {
			return nil, ce.fail(ErrHasNoAttribute, e.PosVal,
				"module %q does not have attribute %q", primary.Mod.Name, e.Attr)
		}
		if sym.Kind == SymType {
			return nil, nil
		}
		v := sym.Value.Deref()
		if v.Kind == ValConst {
			return v, nil
		}
		return nil, nil
	}
	return nil, ce.fail(ErrHasNoAttribute, e.PosVal,
		"%q values have no attribute %q", primary.Type, e.Attr)
}

func (ce *constEval) evalSubscript(e *Subscript, scope *Scope) (*Value, error) {
	primary, err := ce.Eval(e.Primary, scope)
	if err != nil || primary == nil {
		return primary, err
	}
	index, err := ce.Eval(e.Index, scope)
	if err != nil {
		return nil, err
	}
	if index == nil {
		return nil, ce.fail(ErrElementNotConst, e.Index.Pos(),
			"subscript index must be a compile-time constant")
	}
	switch primary.Type.Kind {
	case TypeList:
		if index.Type.Kind != TypeInt {
			return nil, ce.fail(ErrInvalidOperand, e.Index.Pos(),
				"list index must be int, got %q", index.Type)
		}
		i := index.Int
		if i < 0 {
			i += int64(len(primary.List))
		}
		if i < 0 || i >= int64(len(primary.List)) {
			return nil, ce.fail(ErrInvalidOperand, e.Index.Pos(),
				"list of length %d got out of bounds index %d", len(primary.List), index.Int)
		}
		return primary.List[i], nil
	case TypeMap:
		v, ok := mapGet(primary, index)
		if !ok {
			return nil, ce.fail(ErrInvalidOperand, e.Index.Pos(), "map key not found")
		}
		return v, nil
	case TypeString:
		if index.Type.Kind != TypeInt {
			return nil, ce.fail(ErrInvalidOperand, e.Index.Pos(),
				"string index must be int, got %q", index.Type)
		}
		runes := []rune(primary.Str)
		i := index.Int
		if i < 0 {
			i += int64(len(runes))
		}
		if i < 0 || i >= int64(len(runes)) {
			return nil, ce.fail(ErrInvalidOperand, e.Index.Pos(),
				"string of length %d got out of bounds index %d", len(runes), index.Int)
		}
		return strConst(string(runes[i])), nil
	}
	return nil, ce.fail(ErrInvalidOperand, e.PosVal,
		"%q values are not subscriptable", primary.Type)
}

func (ce *constEval) evalUnary(e *UnaryOp, scope *Scope) (*Value, error) {
	operand, err := ce.Eval(e.Operand, scope)
	if err != nil || operand == nil {
		return operand, err
	}
	switch e.Op {
	case TokenMinus:
		if operand.Type.Kind != TypeInt {
			return nil, ce.fail(ErrInvalidOperand, e.PosVal,
				"invalid operand for unary \"-\": %q", operand.Type)
		}
		return ce.rangeChecked(-operand.Int, e.PosVal)
	case TokenPlus:
		if operand.Type.Kind != TypeInt {
			return nil, ce.fail(ErrInvalidOperand, e.PosVal,
				"invalid operand for unary \"+\": %q", operand.Type)
		}
		return operand, nil
	case TokenNot:
		if operand.Type.Kind != TypeBool {
			return nil, ce.fail(ErrInvalidOperand, e.PosVal,
				"invalid operand for \"not\": %q", operand.Type)
		}
		return boolConst(!operand.Bool), nil
	}
	return nil, nil
}

func (ce *constEval) evalBinOp(e *BinOp, scope *Scope) (*Value, error) {
	left, err := ce.Eval(e.Left, scope)
	if err != nil {
		return nil, err
	}
	right, err := ce.Eval(e.Right, scope)
	if err != nil {
		return nil, err
	}
	if left == nil || right == nil {
		return nil, nil
	}
	// Compile-time container operators.
	if left.Type.Kind == TypeString && right.Type.Kind == TypeString && e.Op == TokenPlus {
		return strConst(left.Str + right.Str), nil
	}
	if left.Type.Kind == TypeList && right.Type.Kind == TypeList && e.Op == TokenPlus {
		joined := &Value{Kind: ValConst, Type: typeList}
		joined.List = append(append([]*Value{}, left.List...), right.List...)
		return joined, nil
	}
	if left.Type.Kind != TypeInt || right.Type.Kind != TypeInt {
		return nil, ce.fail(ErrInvalidOperand, e.PosVal,
			"invalid operands for %q: %q and %q", e.Op, left.Type, right.Type)
	}
	n, d := foldArith(e.Op, left.Int, right.Int, e.PosVal)
	if d != nil {
		d.File = ce.file
		return nil, d
	}
	return ce.rangeChecked(n, e.PosVal)
}

func (ce *constEval) rangeChecked(n int64, pos Position) (*Value, error) {
	if n > maxInt || n < minInt {
		return nil, ce.fail(ErrIntOverflow, pos, "integer overflows %d-bit range", intWidth)
	}
	return intConst(n), nil
}

// foldArith folds an integer operation. Division and modulo truncate
// toward zero, matching the target's runtime semantics.
func foldArith(op TokenType, a, b int64, pos Position) (int64, *Diag) {
	switch op {
	case TokenPlus:
		return a + b, nil
	case TokenMinus:
		return a - b, nil
	case TokenStar:
		return a * b, nil
	case TokenSlash:
		if b == 0 {
			return 0, newDiag(ErrDivByZero, pos, "division by zero")
		}
		return a / b, nil
	case TokenPercent:
		if b == 0 {
			return 0, newDiag(ErrModByZero, pos, "modulo by zero")
		}
		return a % b, nil
	}
	return 0, newDiag(ErrInvalidOperand, pos, "unknown operator %q", op)
}

// floorDiv is the Python-style floor division exposed as floordiv().
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// floorMod is the Python-style modulo exposed as mod().
func floorMod(a, b int64) int64 {
	return a - floorDiv(a, b)*b
}

func (ce *constEval) evalCompare(e *CompareOp, scope *Scope) (*Value, error) {
	prev, err := ce.Eval(e.Left, scope)
	if err != nil {
		return nil, err
	}
	runtime := prev == nil
	result := true
	for i, op := range e.Ops {
		next, err := ce.Eval(e.Comparators[i], scope)
		if err != nil {
			return nil, err
		}
		if next == nil {
			runtime = true
		}
		if !runtime {
			ok, d := foldCompare(op, prev, next, e.PosVal)
			if d != nil {
				d.File = ce.file
				return nil, d
			}
			result = result && ok
		}
		prev = next
	}
	if runtime {
		return nil, nil
	}
	return boolConst(result), nil
}

// foldCompare folds one comparison link.
func foldCompare(op TokenType, a, b *Value, pos Position) (bool, *Diag) {
	if op == TokenEq || op == TokenNotEq {
		if !a.Type.Equal(b.Type) {
			return op == TokenNotEq, nil
		}
		eq := constEqual(a, b)
		if op == TokenEq {
			return eq, nil
		}
		return !eq, nil
	}
	if a.Type.Kind != TypeInt || b.Type.Kind != TypeInt {
		return false, newDiag(ErrInvalidOperand, pos,
			"invalid operands for %q: %q and %q", op, a.Type, b.Type)
	}
	switch op {
	case TokenLess:
		return a.Int < b.Int, nil
	case TokenGreater:
		return a.Int > b.Int, nil
	case TokenLessEq:
		return a.Int <= b.Int, nil
	case TokenGreaterEq:
		return a.Int >= b.Int, nil
	}
	return false, newDiag(ErrInvalidOperand, pos, "unknown comparison %q", op)
}

func (ce *constEval) evalBoolOp(e *BoolOp, scope *Scope) (*Value, error) {
	runtime := false
	for _, operand := range e.Operands {
		v, err := ce.Eval(operand, scope)
		if err != nil {
			return nil, err
		}
		if v == nil {
			runtime = true
			continue
		}
		if v.Type.Kind != TypeBool {
			return nil, ce.fail(ErrInvalidOperand, operand.Pos(),
				"invalid operand for boolean operator: %q", v.Type)
		}
		// Short-circuit: a decided prefix folds the whole expression
		// regardless of later runtime operands.
		if e.Op == TokenAnd && !v.Bool && !runtime {
			return boolConst(false), nil
		}
		if e.Op == TokenOr && v.Bool && !runtime {
			return boolConst(true), nil
		}
	}
	if runtime {
		return nil, nil
	}
	return boolConst(e.Op == TokenAnd), nil
}

func (ce *constEval) evalCall(e *Call, scope *Scope) (*Value, error) {
	callee, err := ce.Eval(e.Func, scope)
	if err != nil || callee == nil {
		return callee, err
	}
	if callee.Type.Kind != TypeFunction {
		return nil, ce.fail(ErrUncallable, e.PosVal, "%q is not callable", callee.Type)
	}
	fn := callee.Func
	if !fn.Const && fn.Builtin == nil {
		return nil, nil // runtime function: the generator lowers the call
	}
	args, kwargs, err := ce.evalArgs(e, scope)
	if err != nil {
		return nil, err
	}
	bound, d := bindArgs(fn, args, kwargs, e.PosVal)
	if d != nil {
		d.File = ce.file
		return nil, d
	}
	return ce.invoke(fn, bound, e.PosVal)
}

// evalArgs folds every call argument; a non-constant argument to a
// compile-time function is a hard error.
func (ce *constEval) evalArgs(e *Call, scope *Scope) ([]*Value, map[string]*Value, error) {
	var args []*Value
	for _, a := range e.Args {
		v, err := ce.Eval(a, scope)
		if err != nil {
			return nil, nil, err
		}
		if v == nil {
			return nil, nil, ce.fail(ErrArgNotConst, a.Pos(),
				"argument to a compile-time function must be constant")
		}
		args = append(args, v)
	}
	kwargs := make(map[string]*Value)
	for _, kw := range e.Keywords {
		v, err := ce.Eval(kw.Value, scope)
		if err != nil {
			return nil, nil, err
		}
		if v == nil {
			return nil, nil, ce.fail(ErrArgNotConst, kw.Pos,
				"argument %q to a compile-time function must be constant", kw.Name)
		}
		kwargs[kw.Name] = v
	}
	return args, kwargs, nil
}

// invoke runs a builtin or interprets a const def body.
func (ce *constEval) invoke(fn *Function, bound map[string]*Value, pos Position) (*Value, error) {
	if fn.Builtin != nil {
		v, err := fn.Builtin(bound, pos)
		if d, ok := err.(*Diag); ok && d.File == "" {
			d.File = ce.file
		}
		return v, err
	}
	frame := &ctFrame{
		ce:    ce,
		scope: NewScope(fn.defScope),
		fn:    fn,
	}
	for _, p := range fn.Sig.Params {
		frame.scope.Define(p.Name, &Symbol{Kind: SymValue, Value: bound[p.Name]})
	}
	if err := frame.exec(fn.Body); err != nil {
		if d, ok := err.(*Diag); ok {
			d.WithNote(fn.DefPos, fn.DefFile, "in call to %q defined here", fn.Name)
		}
		return nil, err
	}
	if frame.result == nil {
		if fn.Sig.Result.Kind != TypeNone {
			return nil, ce.fail(ErrNeverResult, pos,
				"call to %q produced no result", fn.Name)
		}
		return noneConst(), nil
	}
	return frame.result, nil
}

// bindArgs matches call arguments against a signature, applying
// defaults and type checks. Shared by the evaluator and the generator.
func bindArgs(fn *Function, args []*Value, kwargs map[string]*Value, pos Position) (map[string]*Value, *Diag) {
	params := fn.Sig.Params
	if len(args) > len(params) {
		return nil, newDiag(ErrTooManyArgs, pos, "too many positional arguments to %q", fn.Name)
	}
	bound := make(map[string]*Value, len(params))
	for i, v := range args {
		bound[params[i].Name] = v
	}
	for name, v := range kwargs {
		found := false
		for _, p := range params {
			if p.Name == name {
				found = true
				break
			}
		}
		if !found {
			return nil, newDiag(ErrUnexpectedKeywordArg, pos,
				"unexpected keyword argument %q", name)
		}
		if _, dup := bound[name]; dup {
			return nil, newDiag(ErrArgMultipleValues, pos,
				"multiple values for argument %q", name)
		}
		bound[name] = v
	}
	for _, p := range params {
		v, ok := bound[p.Name]
		if !ok {
			if p.Default == nil {
				return nil, newDiag(ErrMissingArg, pos,
					"required argument %q is missing", p.Name)
			}
			bound[p.Name] = p.Default
			continue
		}
		if p.Type.Kind != TypeAny && !p.Type.AssignableFrom(v.Deref().Type) {
			return nil, newDiag(ErrWrongArgType, pos,
				"expected %q type for argument %q, got %q",
				p.Type, p.Name, v.Deref().Type)
		}
	}
	return bound, nil
}

// ---------------------------------------------------------------------------
// Compile-time function interpreter
// ---------------------------------------------------------------------------

// ctFrame is one compile-time function invocation: its own scope,
// mutable bindings and a result slot that records the LAST executed
// result statement.
type ctFrame struct {
	ce     *constEval
	scope  *Scope
	fn     *Function
	result *Value
	steps  int
}

func (f *ctFrame) exec(body []Stmt) error {
	for _, stmt := range body {
		if err := f.execStmt(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (f *ctFrame) execStmt(stmt Stmt) error {
	f.steps++
	if f.steps > ctLoopBudget {
		return f.ce.fail(ErrEndlessWhileLoop, stmt.Pos(),
			"compile-time evaluation did not terminate")
	}
	switch s := stmt.(type) {
	case *PassStmt:
		return nil
	case *ExprStmt:
		v, err := f.ce.Eval(s.Value, f.scope)
		if err != nil {
			return err
		}
		if v == nil {
			return f.ce.fail(ErrNotConst, s.PosVal,
				"expression inside a compile-time function must be constant")
		}
		return nil
	case *Assign:
		return f.execAssign(s)
	case *AugAssign:
		return f.execAugAssign(s)
	case *ConstDef:
		v, err := f.evalConst(s.Value)
		if err != nil {
			return err
		}
		f.scope.Define(s.Name, &Symbol{Kind: SymValue, Value: v, DefPos: s.PosVal})
		return nil
	case *ResultStmt:
		return f.execResult(s)
	case *IfStmt:
		cond, err := f.evalConst(s.Condition)
		if err != nil {
			return err
		}
		if cond.Type.Kind != TypeBool {
			return f.ce.fail(ErrWrongCondition, s.Condition.Pos(),
				"\"if\" conditions must be bool, not %q", cond.Type)
		}
		if cond.Bool {
			return f.exec(s.Body)
		}
		return f.exec(s.Else)
	case *WhileStmt:
		return f.execWhile(s)
	case *ForStmt:
		return f.execFor(s)
	}
	return f.ce.fail(ErrNotConst, stmt.Pos(),
		"statement is not allowed inside a compile-time function")
}

func (f *ctFrame) evalConst(expr Expr) (*Value, error) {
	v, err := f.ce.Eval(expr, f.scope)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, f.ce.fail(ErrNotConst, expr.Pos(),
			"expression inside a compile-time function must be constant")
	}
	return v, nil
}

func (f *ctFrame) execAssign(s *Assign) error {
	v, err := f.evalConst(s.Value)
	if err != nil {
		return err
	}
	switch target := s.Target.(type) {
	case *Name:
		if sym := f.scope.Lookup(target.Value); sym != nil && sym.Kind == SymValue {
			sym.Value = v
			return nil
		}
		f.scope.Define(target.Value, &Symbol{Kind: SymValue, Value: v, DefPos: s.PosVal})
		return nil
	case *Subscript:
		primary, err := f.evalConst(target.Primary)
		if err != nil {
			return err
		}
		index, err := f.evalConst(target.Index)
		if err != nil {
			return err
		}
		switch primary.Type.Kind {
		case TypeList:
			i := index.Int
			if i < 0 {
				i += int64(len(primary.List))
			}
			if index.Type.Kind != TypeInt || i < 0 || i >= int64(len(primary.List)) {
				return f.ce.fail(ErrInvalidOperand, target.Index.Pos(), "invalid list index")
			}
			primary.List[i] = v
			return nil
		case TypeMap:
			mapSet(primary, index, v)
			return nil
		}
		return f.ce.fail(ErrInvalidOperand, target.PosVal,
			"%q values are not subscript-assignable", primary.Type)
	}
	return f.ce.fail(ErrInvalidAssignTarget, s.PosVal, "invalid assignment target")
}

func (f *ctFrame) execAugAssign(s *AugAssign) error {
	target, ok := s.Target.(*Name)
	if !ok {
		return f.ce.fail(ErrInvalidAssignTarget, s.PosVal, "invalid assignment target")
	}
	sym := f.scope.Lookup(target.Value)
	if sym == nil || sym.Kind != SymValue {
		return f.ce.fail(ErrNameNotDefined, s.PosVal, "name %q is not defined", target.Value)
	}
	old := sym.Value.Deref()
	v, err := f.evalConst(s.Value)
	if err != nil {
		return err
	}
	if old.Type.Kind != TypeInt || v.Type.Kind != TypeInt {
		return f.ce.fail(ErrInvalidOperand, s.PosVal,
			"invalid operands for %q: %q and %q", s.Op, old.Type, v.Type)
	}
	n, d := foldArith(s.Op, old.Int, v.Int, s.PosVal)
	if d != nil {
		d.File = f.ce.file
		return d
	}
	folded, err := f.ce.rangeChecked(n, s.PosVal)
	if err != nil {
		return err
	}
	sym.Value = folded
	return nil
}

func (f *ctFrame) execResult(s *ResultStmt) error {
	var v *Value
	if s.Value == nil {
		v = noneConst()
	} else {
		var err error
		v, err = f.evalConst(s.Value)
		if err != nil {
			return err
		}
	}
	want := f.fn.Sig.Result
	if want.Kind != TypeAny && !want.AssignableFrom(v.Type) {
		return f.ce.fail(ErrWrongResultType, s.PosVal,
			"expected %q type as result, got %q", want, v.Type)
	}
	// The last executed result wins; execution continues.
	f.result = v
	return nil
}

func (f *ctFrame) execWhile(s *WhileStmt) error {
	if alwaysTrueCondition(s.Condition, s.Body) {
		return f.ce.fail(ErrEndlessWhileLoop, s.PosVal,
			"the \"while\" loop never ends because the condition always evaluates to true")
	}
	for {
		cond, err := f.evalConst(s.Condition)
		if err != nil {
			return err
		}
		if cond.Type.Kind != TypeBool {
			return f.ce.fail(ErrWrongCondition, s.Condition.Pos(),
				"\"while\" conditions must be bool, not %q", cond.Type)
		}
		if !cond.Bool {
			return nil
		}
		if err := f.exec(s.Body); err != nil {
			return err
		}
	}
}

func (f *ctFrame) execFor(s *ForStmt) error {
	iter, err := f.evalConst(s.Iterable)
	if err != nil {
		return err
	}
	elements, d := iterElements(iter, s.Iterable.Pos())
	if d != nil {
		d.File = f.ce.file
		return d
	}
	for _, el := range elements {
		inner := NewScope(f.scope)
		inner.Define(s.Name, &Symbol{Kind: SymValue, Value: el, DefPos: s.PosVal})
		saved := f.scope
		f.scope = inner
		err := f.exec(s.Body)
		f.scope = saved
		if err != nil {
			return err
		}
	}
	return nil
}

// iterElements lists the elements of a constant container.
func iterElements(v *Value, pos Position) ([]*Value, *Diag) {
	switch v.Type.Kind {
	case TypeList:
		return v.List, nil
	case TypeMap:
		return v.MapKeys, nil
	case TypeString:
		var out []*Value
		for _, r := range v.Str {
			out = append(out, strConst(string(r)))
		}
		return out, nil
	}
	return nil, newDiag(ErrNotIterable, pos, "%q is not iterable", v.Type)
}

// alwaysTrueCondition is the static endless-loop guard: the condition
// is provably always true when it is the literal true, or a constant
// expression over names the body never reassigns.
func alwaysTrueCondition(cond Expr, body []Stmt) bool {
	if lit, ok := cond.(*BoolLiteral); ok {
		return lit.Value
	}
	free := map[string]bool{}
	collectNames(cond, free)
	if len(free) > 0 && bodyAssignsAny(body, free) {
		return false
	}
	// No mutable inputs: fold once with literals only.
	ce := &constEval{}
	v, err := ce.Eval(cond, NewScope(nil))
	return err == nil && v != nil && v.Type.Kind == TypeBool && v.Bool
}

func collectNames(e Expr, out map[string]bool) {
	switch n := e.(type) {
	case *Name:
		out[n.Value] = true
	case *UnaryOp:
		collectNames(n.Operand, out)
	case *BinOp:
		collectNames(n.Left, out)
		collectNames(n.Right, out)
	case *CompareOp:
		collectNames(n.Left, out)
		for _, c := range n.Comparators {
			collectNames(c, out)
		}
	case *BoolOp:
		for _, o := range n.Operands {
			collectNames(o, out)
		}
	case *Attribute:
		collectNames(n.Primary, out)
	case *Subscript:
		collectNames(n.Primary, out)
		collectNames(n.Index, out)
	case *Call:
		collectNames(n.Func, out)
		for _, a := range n.Args {
			collectNames(a, out)
		}
		for _, kw := range n.Keywords {
			collectNames(kw.Value, out)
		}
	}
}

func bodyAssignsAny(body []Stmt, names map[string]bool) bool {
	for _, stmt := range body {
		switch s := stmt.(type) {
		case *Assign:
			if n, ok := s.Target.(*Name); ok && names[n.Value] {
				return true
			}
		case *AugAssign:
			if n, ok := s.Target.(*Name); ok && names[n.Value] {
				return true
			}
		case *IfStmt:
			if bodyAssignsAny(s.Body, names) || bodyAssignsAny(s.Else, names) {
				return true
			}
		case *WhileStmt:
			if bodyAssignsAny(s.Body, names) {
				return true
			}
		case *ForStmt:
			if bodyAssignsAny(s.Body, names) {
				return true
			}
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Builtin compile-time functions
// ---------------------------------------------------------------------------

func builtinParam(name string, t Type) Param {
	return Param{Name: name, Mode: ParamConst, Type: t}
}

func builtin(name string, result Type, impl BuiltinFn, params ...Param) *Symbol {
	fn := &Function{
		Name:    name,
		Sig:     &FuncSig{Params: params, Result: result},
		Builtin: impl,
	}
	return &Symbol{Kind: SymValue, Value: &Value{
		Kind: ValConst, Type: functionType(fn.Sig), Func: fn,
	}}
}

// defineBuiltins installs the builtin compile-time library into scope.
func defineBuiltins(scope *Scope) {
	intArg := func(args map[string]*Value, name string) int64 { return args[name].Deref().Int }
	checked := func(n int64, pos Position) (*Value, error) {
		if n > maxInt || n < minInt {
			return nil, newDiag(ErrIntOverflow, pos, "integer overflows %d-bit range", intWidth)
		}
		return intConst(n), nil
	}

	scope.Define("floordiv", builtin("floordiv", typeInt,
		func(args map[string]*Value, pos Position) (*Value, error) {
			a, b := intArg(args, "x"), intArg(args, "y")
			if b == 0 {
				return nil, newDiag(ErrDivByZero, pos, "division by zero")
			}
			return checked(floorDiv(a, b), pos)
		},
		builtinParam("x", typeInt), builtinParam("y", typeInt)))

	scope.Define("mod", builtin("mod", typeInt,
		func(args map[string]*Value, pos Position) (*Value, error) {
			a, b := intArg(args, "x"), intArg(args, "y")
			if b == 0 {
				return nil, newDiag(ErrModByZero, pos, "modulo by zero")
			}
			return checked(floorMod(a, b), pos)
		},
		builtinParam("x", typeInt), builtinParam("y", typeInt)))

	scope.Define("pow", builtin("pow", typeInt,
		func(args map[string]*Value, pos Position) (*Value, error) {
			x, y := intArg(args, "x"), intArg(args, "y")
			if y < 0 {
				return nil, newDiag(ErrNegativePow, pos,
					"pow with a negative exponent is not defined for integers")
			}
			result := int64(1)
			for i := int64(0); i < y; i++ {
				result *= x
				if result > maxInt || result < minInt {
					return nil, newDiag(ErrIntOverflow, pos,
						"integer overflows %d-bit range", intWidth)
				}
			}
			return intConst(result), nil
		},
		builtinParam("x", typeInt), builtinParam("y", typeInt)))

	scope.Define("min", builtin("min", typeInt,
		func(args map[string]*Value, pos Position) (*Value, error) {
			a, b := intArg(args, "x"), intArg(args, "y")
			if b < a {
				a = b
			}
			return intConst(a), nil
		},
		builtinParam("x", typeInt), builtinParam("y", typeInt)))

	scope.Define("max", builtin("max", typeInt,
		func(args map[string]*Value, pos Position) (*Value, error) {
			a, b := intArg(args, "x"), intArg(args, "y")
			if b > a {
				a = b
			}
			return intConst(a), nil
		},
		builtinParam("x", typeInt), builtinParam("y", typeInt)))

	scope.Define("abs", builtin("abs", typeInt,
		func(args map[string]*Value, pos Position) (*Value, error) {
			a := intArg(args, "x")
			if a < 0 {
				a = -a
			}
			return checked(a, pos)
		},
		builtinParam("x", typeInt)))

	scope.Define("len", builtin("len", typeInt,
		func(args map[string]*Value, pos Position) (*Value, error) {
			v := args["x"].Deref()
			switch v.Type.Kind {
			case TypeList:
				return intConst(int64(len(v.List))), nil
			case TypeMap:
				return intConst(int64(len(v.MapKeys))), nil
			case TypeString:
				return intConst(int64(len([]rune(v.Str)))), nil
			}
			return nil, newDiag(ErrInvalidOperand, pos, "len of %q type", v.Type)
		},
		builtinParam("x", typeAny)))

	scope.Define("str", builtin("str", typeString,
		func(args map[string]*Value, pos Position) (*Value, error) {
			v := args["x"].Deref()
			s, ok := constString(v)
			if !ok {
				return nil, newDiag(ErrInvalidOperand, pos,
					"cannot format %q type as a string", v.Type)
			}
			return strConst(s), nil
		},
		builtinParam("x", typeAny)))
}
