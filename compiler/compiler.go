package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("cobble.compiler")

// ---------------------------------------------------------------------------
// Program: the compilation context threaded through every pass
// ---------------------------------------------------------------------------

// Config carries the tunable knobs of a compilation.
type Config struct {
	// Objective is the scoreboard objective holding every register.
	Objective string
	// RegPrefix prefixes generated register names on the objective.
	RegPrefix string
	// GenPrefix is the reserved path namespace for generated
	// sequences; interfaces may not start with it.
	GenPrefix string
	// MaxInlineSize is the command-count ceiling under which a
	// conditionally invoked sequence is inlined at its call site.
	MaxInlineSize int
	// MaxCommands is the advisory per-sequence command ceiling.
	// Sequences over it produce a CommandLimit warning. 0 disables
	// the check.
	MaxCommands int
	// Debug adds comment annotations to the output.
	Debug bool
}

// DefaultConfig returns the standard knob settings.
func DefaultConfig() *Config {
	return &Config{
		Objective:     "cobble",
		RegPrefix:     "r",
		GenPrefix:     "cb",
		MaxInlineSize: 20,
		MaxCommands:   10000,
	}
}

// Program is one compilation unit: every source file, template,
// register and sequence belongs to exactly one Program, so multiple
// units compile independently.
type Program struct {
	cfg   *Config
	alloc *Allocator
	root  *Scope

	seqs       []*Sequence
	init       *Sequence
	interfaces map[string]*Sequence
	ifaceDefs  map[string]ifaceDef

	instantiated map[*Template]bool
	pending      []*pendingDispatch

	modules map[string]*ModuleVal
	loading map[string]bool
	srcDir  string

	warnings   []*Diag
	templateID int
	seqID      int
	finished   bool
}

// NewProgram creates an empty compilation unit.
func NewProgram(cfg *Config) *Program {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	p := &Program{
		cfg:          cfg,
		alloc:        NewAllocator(cfg.Objective, cfg.RegPrefix),
		root:         NewScope(nil),
		interfaces:   make(map[string]*Sequence),
		ifaceDefs:    make(map[string]ifaceDef),
		instantiated: make(map[*Template]bool),
		modules:      make(map[string]*ModuleVal),
		loading:      make(map[string]bool),
	}
	p.root.Define("int", &Symbol{Kind: SymType, Type: typeInt})
	p.root.Define("bool", &Symbol{Kind: SymType, Type: typeBool})
	defineBuiltins(p.root)
	p.init = NewSequence(cfg.GenPrefix + "/init")
	p.seqs = append(p.seqs, p.init)
	return p
}

func (p *Program) nextTemplateID() int {
	p.templateID++
	return p.templateID
}

// ifaceDef records where an interface path was first declared, for
// duplicate-path diagnostics.
type ifaceDef struct {
	pos  Position
	file string
}

// newSeq registers a generated sequence under the reserved namespace.
func (p *Program) newSeq(hint string) *Sequence {
	p.seqID++
	s := NewSequence(fmt.Sprintf("%s/%s%d", p.cfg.GenPrefix, sanitizeHint(hint), p.seqID))
	p.seqs = append(p.seqs, s)
	return s
}

func sanitizeHint(hint string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(hint) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "seq"
	}
	return b.String()
}

func (p *Program) warn(d *Diag) {
	log.Noticef("%s", d.Error())
	p.warnings = append(p.warnings, d)
}

// Warnings lists the advisory diagnostics collected so far.
func (p *Program) Warnings() []*Diag { return p.warnings }

// CompileFile parses and lowers the source file at path. Top-level
// runtime statements land in the init sequence; imports resolve
// relative to the file's directory.
func (p *Program) CompileFile(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return &Diag{Kind: ErrIo, File: path, Msg: err.Error()}
	}
	p.srcDir = filepath.Dir(path)
	return p.CompileSource(path, string(src))
}

// CompileSource parses and lowers one source text under the given
// diagnostic name.
func (p *Program) CompileSource(name, src string) error {
	log.Infof("compiling %s", name)
	mod, err := Parse(src)
	if err != nil {
		if d, ok := err.(*Diag); ok && d.File == "" {
			d.File = name
		}
		return err
	}
	g := &generator{
		prog:  p,
		ce:    &constEval{file: name},
		file:  name,
		scope: NewScope(p.root),
		seq:   p.init,
	}
	return g.genBody(mod.Body)
}

// loadModule resolves "import name" to name.cob next to the importing
// file, compiling it once per Program.
func (p *Program) loadModule(name string, pos Position, fromFile string) (*ModuleVal, error) {
	if mod, ok := p.modules[name]; ok {
		return mod, nil
	}
	if p.loading[name] {
		d := newDiag(ErrCircularParse, pos, "circular import of module %q", name)
		d.File = fromFile
		return nil, d
	}
	dir := p.srcDir
	if dir == "" {
		dir = filepath.Dir(fromFile)
	}
	path := filepath.Join(dir, name+".cob")
	src, err := os.ReadFile(path)
	if err != nil {
		d := newDiag(ErrModuleNotFound, pos, "module %q is not found at %s", name, path)
		d.File = fromFile
		return nil, d
	}
	p.loading[name] = true
	defer delete(p.loading, name)

	ast, err := Parse(string(src))
	if err != nil {
		if d, ok := err.(*Diag); ok && d.File == "" {
			d.File = path
		}
		return nil, err
	}
	names := NewScope(p.root)
	g := &generator{
		prog:  p,
		ce:    &constEval{file: path},
		file:  path,
		scope: names,
		seq:   p.init,
	}
	if err := g.genBody(ast.Body); err != nil {
		return nil, err
	}
	mod := &ModuleVal{Name: name, Names: names, File: path}
	p.modules[name] = mod
	return mod, nil
}

// Output is the final compiled artifact handed to the writer.
type Output struct {
	// Sequences in emission order; paths are final.
	Sequences []*Sequence
	// Interfaces maps exported entry-point paths to their sequences.
	Interfaces map[string]*Sequence
}

// Finish completes pending dispatch selectors, prepends one-time setup
// to the init sequence and runs the optimizer. The Program must not be
// used for further compilation afterwards.
func (p *Program) Finish() (*Output, error) {
	if p.finished {
		return nil, fmt.Errorf("program already finished")
	}
	p.finished = true
	if err := p.finishDispatches(); err != nil {
		return nil, err
	}
	if p.alloc.NeedsInit() {
		p.init.Commands = append(p.alloc.InitCommands(), p.init.Commands...)
	}
	roots := []*Sequence{p.init}
	for _, s := range p.interfaces {
		roots = append(roots, s)
	}
	p.seqs = optimize(p.seqs, roots, p.cfg.MaxInlineSize, p.alloc)
	out := &Output{Interfaces: make(map[string]*Sequence)}
	for path, s := range p.interfaces {
		if s.HasContent() {
			out.Interfaces[path] = s
		}
	}
	for _, s := range p.seqs {
		if !s.HasContent() {
			continue
		}
		out.Sequences = append(out.Sequences, s)
	}
	log.Infof("compiled %d sequences", len(out.Sequences))
	return out, nil
}

// Compile is the single-file convenience driver.
func Compile(path string, cfg *Config) (*Output, error) {
	p := NewProgram(cfg)
	if err := p.CompileFile(path); err != nil {
		return nil, err
	}
	return p.Finish()
}
