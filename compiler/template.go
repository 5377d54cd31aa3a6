package compiler

// ---------------------------------------------------------------------------
// Template Resolver: C3 linearization, field/method merge, dispatch
// ---------------------------------------------------------------------------

// Qualifier is the declaration qualifier of an entity method.
type Qualifier int

const (
	QualNone Qualifier = iota
	QualVirtual
	QualOverride
	QualStatic
)

func (q Qualifier) String() string {
	switch q {
	case QualVirtual:
		return "virtual"
	case QualOverride:
		return "override"
	case QualStatic:
		return "static"
	}
	return "(none)"
}

// Method is one resolved entity method.
type Method struct {
	Name  string
	Qual  Qualifier
	Fn    *Function
	Owner *Template
}

// DispImpl is one implementation reachable through a dispatcher,
// together with the templates whose instances resolve to it.
type DispImpl struct {
	Fn        *Function
	Owner     *Template
	Templates []*Template
}

// Dispatcher is the dispatch table entry shared by a virtual method and
// everything that overrides it.
type Dispatcher struct {
	Name   string
	Result Type
	Impls  []*DispImpl
}

// implFor returns the implementation used by instances of t.
func (d *Dispatcher) implFor(t *Template) *DispImpl {
	for _, impl := range d.Impls {
		for _, tmpl := range impl.Templates {
			if tmpl == t {
				return impl
			}
		}
	}
	return nil
}

// Template is an entity template definition: a nominal type with
// single/multiple inheritance resolved at compile time.
type Template struct {
	Name       string
	Bases      []*Template
	MRO        []*Template // self first
	Fields     map[string]Type
	FieldOrder []string // register layout: base fields first
	ownFields  []string // fields declared directly on this template
	Virtual    map[string]*Dispatcher
	Simple     map[string]*Method
	Static     map[string]*Method
	New        *Function // constructor owned by this template, if any
	NewOwner   *Template // template in the chain that defines new
	RuntimeID  int       // discriminant value for instances
	DefPos     Position
	DefFile    string
}

// IsAncestorOf reports whether t appears in sub's linearization.
func (t *Template) IsAncestorOf(sub *Template) bool {
	for _, anc := range sub.MRO {
		if anc == t {
			return true
		}
	}
	return false
}

// linearize computes the C3 method resolution order for a template
// with the given direct bases (monotonic merge of each base's own
// linearization plus the direct base list).
func linearize(self *Template, bases []*Template) ([]*Template, bool) {
	mro := []*Template{self}
	var merge [][]*Template
	for _, base := range bases {
		merge = append(merge, append([]*Template{}, base.MRO...))
	}
	if len(bases) > 0 {
		merge = append(merge, append([]*Template{}, bases...))
	}
	for len(merge) > 0 {
		var candidate *Template
		for _, seq := range merge {
			head := seq[0]
			inTail := false
			for _, other := range merge {
				for _, t := range other[1:] {
					if t == head {
						inTail = true
						break
					}
				}
				if inTail {
					break
				}
			}
			if !inTail {
				candidate = head
				break
			}
		}
		if candidate == nil {
			return nil, false
		}
		mro = append(mro, candidate)
		next := merge[:0]
		for _, seq := range merge {
			out := seq[:0]
			for _, t := range seq {
				if t != candidate {
					out = append(out, t)
				}
			}
			if len(out) > 0 {
				next = append(next, out)
			}
		}
		merge = next
	}
	return mro, true
}

// templateMethod is an unresolved method declaration handed to
// newTemplate in declaration order.
type templateMethod struct {
	name string
	qual Qualifier
	fn   *Function
	pos  Position
}

// templateField is an unresolved field declaration.
type templateField struct {
	name string
	typ  Type
	pos  Position
}

// newTemplate resolves an entity template: linearizes bases, merges
// field and method tables, validates override compatibility and builds
// the dispatch table.
func newTemplate(name string, bases []*Template, fields []templateField,
	methods []templateMethod, ctor *Function, runtimeID int,
	pos Position) (*Template, *Diag) {

	t := &Template{
		Name:      name,
		Bases:     bases,
		Fields:    make(map[string]Type),
		Virtual:   make(map[string]*Dispatcher),
		Simple:    make(map[string]*Method),
		Static:    make(map[string]*Method),
		New:       ctor,
		RuntimeID: runtimeID,
		DefPos:    pos,
	}
	mro, ok := linearize(t, bases)
	if !ok {
		return nil, newDiag(ErrMro, pos, "invalid base templates (failed to create MRO)")
	}
	t.MRO = mro

	// Merge fields, base-first so derived register layouts extend the
	// base layout. Two independent definitions of one name must agree
	// on type; a diamond-shared definition counts once.
	for i := len(mro) - 1; i >= 1; i-- {
		base := mro[i]
		for _, fname := range base.ownFieldOrder() {
			ft := base.Fields[fname]
			if prev, seen := t.Fields[fname]; seen {
				if !prev.Equal(ft) {
					return nil, newDiag(ErrEfieldMultipleDefs, pos,
						"multiple definitions for entity field %q", fname)
				}
				continue
			}
			t.Fields[fname] = ft
			t.FieldOrder = append(t.FieldOrder, fname)
		}
	}
	for _, f := range fields {
		if _, seen := t.Fields[f.name]; seen {
			return nil, newDiag(ErrEfieldMultipleDefs, f.pos,
				"multiple definitions for entity field %q", f.name)
		}
		t.Fields[f.name] = f.typ
		t.FieldOrder = append(t.FieldOrder, f.name)
		t.ownFields = append(t.ownFields, f.name)
	}

	// Gather base method tables, most-base first so nearer bases win.
	mVirtual := make(map[string]*Dispatcher)
	mSimple := make(map[string]*Method)
	mStatic := make(map[string]*Method)
	for i := len(mro) - 1; i >= 1; i-- {
		base := mro[i]
		for mname, disp := range base.Virtual {
			if mSimple[mname] != nil || mStatic[mname] != nil {
				return nil, newDiag(ErrEmethodMultipleDefs, pos,
					"multiple definitions for entity method %q", mname)
			}
			if prev, ok := mVirtual[mname]; ok && prev != disp {
				return nil, newDiag(ErrEmethodMultipleDefs, pos,
					"multiple definitions for virtual method %q", mname)
			}
			mVirtual[mname] = disp
		}
		for mname, m := range base.Simple {
			if mVirtual[mname] != nil || mStatic[mname] != nil {
				return nil, newDiag(ErrEmethodMultipleDefs, pos,
					"multiple definitions for entity method %q", mname)
			}
			mSimple[mname] = m
		}
		for mname, m := range base.Static {
			if mVirtual[mname] != nil || mSimple[mname] != nil {
				return nil, newDiag(ErrEmethodMultipleDefs, pos,
					"multiple definitions for entity method %q", mname)
			}
			mStatic[mname] = m
		}
	}

	// Field/method collisions across the merged set.
	for fname := range t.Fields {
		if mVirtual[fname] != nil || mSimple[fname] != nil || mStatic[fname] != nil {
			return nil, newDiag(ErrMethodAttrConflict, pos,
				"%q is both a field and a method", fname)
		}
	}

	// Inherit, then apply own declarations.
	for mname, disp := range mVirtual {
		t.Virtual[mname] = disp
	}
	for mname, m := range mSimple {
		t.Simple[mname] = m
	}
	for mname, m := range mStatic {
		t.Static[mname] = m
	}

	overridden := make(map[string]bool)
	for _, decl := range methods {
		if _, isField := t.Fields[decl.name]; isField {
			return nil, newDiag(ErrMethodAttrConflict, decl.pos,
				"%q is both a field and a method", decl.name)
		}
		if disp, ok := mVirtual[decl.name]; ok {
			if decl.qual != QualOverride {
				return nil, newDiag(ErrOverrideQualifier, decl.pos,
					"method %q overrides a virtual method and must be declared override, not %s",
					decl.name, decl.qual)
			}
			if !disp.Result.Equal(decl.fn.Sig.Result) {
				return nil, newDiag(ErrOverrideResultMismatch, decl.pos,
					"override method %q should have result type %q like its parent, not %q",
					decl.name, disp.Result, decl.fn.Sig.Result)
			}
			if d := checkOverrideParams(disp.Impls[0].Fn, decl.fn, decl.name, decl.pos); d != nil {
				return nil, d
			}
			disp.Impls = append(disp.Impls, &DispImpl{
				Fn: decl.fn, Owner: t, Templates: []*Template{t},
			})
			overridden[decl.name] = true
			continue
		}
		switch decl.qual {
		case QualNone:
			if mStatic[decl.name] != nil {
				return nil, newDiag(ErrInstanceOverrideStatic, decl.pos,
					"instance method %q conflicts with a static base method", decl.name)
			}
			t.Simple[decl.name] = &Method{Name: decl.name, Qual: QualNone, Fn: decl.fn, Owner: t}
		case QualStatic:
			if mSimple[decl.name] != nil || mVirtual[decl.name] != nil {
				return nil, newDiag(ErrStaticOverrideInstance, decl.pos,
					"static method %q conflicts with an instance base method", decl.name)
			}
			t.Static[decl.name] = &Method{Name: decl.name, Qual: QualStatic, Fn: decl.fn, Owner: t}
		case QualVirtual:
			if mStatic[decl.name] != nil {
				return nil, newDiag(ErrInstanceOverrideStatic, decl.pos,
					"virtual method %q conflicts with a static base method", decl.name)
			}
			if mSimple[decl.name] != nil {
				return nil, newDiag(ErrVirtualOverrideSimple, decl.pos,
					"virtual method %q conflicts with a non-virtual base method", decl.name)
			}
			disp := &Dispatcher{Name: decl.name, Result: decl.fn.Sig.Result}
			disp.Impls = append(disp.Impls, &DispImpl{
				Fn: decl.fn, Owner: t, Templates: []*Template{t},
			})
			t.Virtual[decl.name] = disp
			overridden[decl.name] = true
		case QualOverride:
			return nil, newDiag(ErrNotOverriding, decl.pos,
				"method %q is declared override but no base declares it virtual", decl.name)
		}
	}

	// A template that inherits a virtual method without overriding it
	// dispatches to the implementation of its nearest ancestor.
	for mname, disp := range t.Virtual {
		if overridden[mname] {
			continue
		}
		for _, anc := range t.MRO[1:] {
			if impl := disp.implFor(anc); impl != nil {
				impl.Templates = append(impl.Templates, t)
				break
			}
		}
	}

	// At most one constructor across the whole chain.
	for _, anc := range t.MRO {
		var ctorHere *Function
		if anc == t {
			ctorHere = ctor
		} else {
			ctorHere = anc.New
		}
		if ctorHere == nil {
			continue
		}
		if t.NewOwner != nil {
			return nil, newDiag(ErrMultipleNewMethods, pos,
				"template %q inherits more than one constructor", name)
		}
		t.NewOwner = anc
	}
	return t, nil
}

// checkOverrideParams verifies that an override's parameter list stays
// positionally compatible with the root virtual declaration. Names may
// differ; dispatched calls bind arguments by position.
func checkOverrideParams(root, over *Function, name string, pos Position) *Diag {
	rp, op := root.Sig.Params, over.Sig.Params
	if len(rp) != len(op) {
		return newDiag(ErrOverrideParamMismatch, pos,
			"override method %q takes %d parameters but its parent takes %d",
			name, len(op), len(rp))
	}
	for i := range op {
		if op[i].Mode != rp[i].Mode || !op[i].Type.Equal(rp[i].Type) {
			return newDiag(ErrOverrideParamMismatch, pos,
				"override method %q changes the type of parameter %d from %q to %q",
				name, i+1, rp[i].Type, op[i].Type)
		}
	}
	return nil
}

// ownFields lists the fields declared directly on this template, in
// declaration order.
func (t *Template) ownFieldOrder() []string { return t.ownFields }

// constructorChain returns the new bodies to run at construction, most
// base first. With the one-constructor rule the chain holds at most
// one entry, but construction walks the full linearization regardless.
func (t *Template) constructorChain() []*Function {
	var chain []*Function
	for i := len(t.MRO) - 1; i >= 0; i-- {
		if fn := t.MRO[i].New; fn != nil {
			chain = append(chain, fn)
		}
	}
	return chain
}
