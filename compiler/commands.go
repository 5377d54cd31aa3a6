package compiler

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Command abstraction: scoreboard slots, commands, named sequences,
// register allocation
// ---------------------------------------------------------------------------

// ScbSlot names one integer register: a target name on an objective.
type ScbSlot struct {
	Target    string
	Objective string
}

func (s ScbSlot) String() string {
	return s.Target + " " + s.Objective
}

// ScbOp is a scoreboard binary operation.
type ScbOp string

const (
	OpAssign ScbOp = "="
	OpAddEq  ScbOp = "+="
	OpSubEq  ScbOp = "-="
	OpMulEq  ScbOp = "*="
	OpDivEq  ScbOp = "/="
	OpModEq  ScbOp = "%="
	OpMin    ScbOp = "<"
	OpMax    ScbOp = ">"
	OpSwap   ScbOp = "><"
)

// Command is one textual operation in a sequence.
type Command interface {
	// Resolve renders the final command text.
	Resolve() string
	// SeqRef returns the named sequence this command invokes, if any.
	SeqRef() *Sequence
	// Reads reports whether the command reads the given register.
	Reads(slot ScbSlot) bool
	// Writes reports whether the command writes the given register.
	Writes(slot ScbSlot) bool
}

// Raw is an opaque passthrough command.
type Raw struct {
	Text string
}

func (c *Raw) Resolve() string     { return c.Text }
func (c *Raw) SeqRef() *Sequence   { return nil }
func (c *Raw) Reads(ScbSlot) bool  { return false }
func (c *Raw) Writes(ScbSlot) bool { return false }

// Comment is a non-executing annotation line.
type Comment struct {
	Text string
}

func (c *Comment) Resolve() string     { return "# " + c.Text }
func (c *Comment) SeqRef() *Sequence   { return nil }
func (c *Comment) Reads(ScbSlot) bool  { return false }
func (c *Comment) Writes(ScbSlot) bool { return false }

// SetConst sets a register to a constant.
type SetConst struct {
	Target ScbSlot
	Value  int64
}

func (c *SetConst) Resolve() string {
	return fmt.Sprintf("scoreboard players set %s %d", c.Target, c.Value)
}
func (c *SetConst) SeqRef() *Sequence     { return nil }
func (c *SetConst) Reads(ScbSlot) bool    { return false }
func (c *SetConst) Writes(s ScbSlot) bool { return s == c.Target }

// AddConst adds a constant to a register.
type AddConst struct {
	Target ScbSlot
	Value  int64
}

func (c *AddConst) Resolve() string {
	return fmt.Sprintf("scoreboard players add %s %d", c.Target, c.Value)
}
func (c *AddConst) SeqRef() *Sequence     { return nil }
func (c *AddConst) Reads(s ScbSlot) bool  { return s == c.Target }
func (c *AddConst) Writes(s ScbSlot) bool { return s == c.Target }

// RemoveConst subtracts a constant from a register.
type RemoveConst struct {
	Target ScbSlot
	Value  int64
}

func (c *RemoveConst) Resolve() string {
	return fmt.Sprintf("scoreboard players remove %s %d", c.Target, c.Value)
}
func (c *RemoveConst) SeqRef() *Sequence     { return nil }
func (c *RemoveConst) Reads(s ScbSlot) bool  { return s == c.Target }
func (c *RemoveConst) Writes(s ScbSlot) bool { return s == c.Target }

// Operation applies a scoreboard operation between two registers.
type Operation struct {
	Op     ScbOp
	Target ScbSlot
	Source ScbSlot
}

func (c *Operation) Resolve() string {
	return fmt.Sprintf("scoreboard players operation %s %s %s", c.Target, c.Op, c.Source)
}
func (c *Operation) SeqRef() *Sequence { return nil }
func (c *Operation) Reads(s ScbSlot) bool {
	if c.Op == OpSwap || c.Op == OpAssign {
		return s == c.Source || (c.Op == OpSwap && s == c.Target)
	}
	return s == c.Source || s == c.Target
}
func (c *Operation) Writes(s ScbSlot) bool {
	if c.Op == OpSwap {
		return s == c.Target || s == c.Source
	}
	return s == c.Target
}

// ObjAdd registers a scoreboard objective (init sequence only).
type ObjAdd struct {
	Name string
}

func (c *ObjAdd) Resolve() string {
	return fmt.Sprintf("scoreboard objectives add %s dummy", c.Name)
}
func (c *ObjAdd) SeqRef() *Sequence   { return nil }
func (c *ObjAdd) Reads(ScbSlot) bool  { return false }
func (c *ObjAdd) Writes(ScbSlot) bool { return false }

// Invoke runs a named sequence.
type Invoke struct {
	Seq *Sequence
}

func (c *Invoke) Resolve() string {
	return "function " + c.Seq.Path()
}
func (c *Invoke) SeqRef() *Sequence { return c.Seq }
func (c *Invoke) Reads(s ScbSlot) bool {
	return c.Seq.reads(s, nil)
}
func (c *Invoke) Writes(s ScbSlot) bool {
	return c.Seq.writes(s, nil)
}

// CondKind tags a runtime condition variant.
type CondKind int

const (
	// CondMatch tests a register against a value range.
	CondMatch CondKind = iota
	// CondScore compares two registers.
	CondScore
)

// Cond is one execute condition prefix.
type Cond struct {
	Kind   CondKind
	Slot   ScbSlot
	Range  string // CondMatch: "1", "0", "3..", "..7", "2..9"
	Other  ScbSlot
	Op     string // CondScore: "=", "<", ">", "<=", ">="
	Invert bool
}

func (c Cond) Resolve() string {
	word := "if"
	if c.Invert {
		word = "unless"
	}
	if c.Kind == CondMatch {
		return fmt.Sprintf("%s score %s matches %s", word, c.Slot, c.Range)
	}
	return fmt.Sprintf("%s score %s %s %s", word, c.Slot, c.Op, c.Other)
}

// Reads reports whether the condition tests the given register.
func (c Cond) Reads(s ScbSlot) bool {
	if c.Kind == CondMatch {
		return s == c.Slot
	}
	return s == c.Slot || s == c.Other
}

// Inverted returns the logical negation of the condition.
func (c Cond) Inverted() Cond {
	c.Invert = !c.Invert
	return c
}

func matchCond(slot ScbSlot, r string) Cond {
	return Cond{Kind: CondMatch, Slot: slot, Range: r}
}

// Execute runs a command under one or more conditions.
type Execute struct {
	Conds []Cond
	Run   Command
}

func (c *Execute) Resolve() string {
	if len(c.Conds) == 0 {
		return c.Run.Resolve()
	}
	parts := make([]string, 0, len(c.Conds))
	for _, cond := range c.Conds {
		parts = append(parts, cond.Resolve())
	}
	return "execute " + strings.Join(parts, " ") + " run " + c.Run.Resolve()
}
func (c *Execute) SeqRef() *Sequence { return c.Run.SeqRef() }
func (c *Execute) Reads(s ScbSlot) bool {
	for _, cond := range c.Conds {
		if cond.Reads(s) {
			return true
		}
	}
	return c.Run.Reads(s)
}
func (c *Execute) Writes(s ScbSlot) bool { return c.Run.Writes(s) }

// execute wraps run under conds, flattening nested Executes and
// leaving comments bare.
func execute(conds []Cond, run Command) Command {
	if _, ok := run.(*Comment); ok {
		return run
	}
	if inner, ok := run.(*Execute); ok {
		merged := append(append([]Cond{}, conds...), inner.Conds...)
		conds, run = merged, inner.Run
	}
	if len(conds) == 0 {
		return run
	}
	return &Execute{Conds: conds, Run: run}
}

// ---------------------------------------------------------------------------
// Sequence
// ---------------------------------------------------------------------------

// Sequence is a named, ordered list of commands: the unit of invocation
// in the output. Paths for generated sequences are assigned late.
type Sequence struct {
	path     string
	Commands []Command
}

// NewSequence creates a sequence; path may be empty for generated
// sequences that get a path assigned during output.
func NewSequence(path string) *Sequence {
	return &Sequence{path: path}
}

// Path returns the invokable name of the sequence.
func (s *Sequence) Path() string { return s.path }

// SetPath assigns the invokable name.
func (s *Sequence) SetPath(path string) { s.path = path }

// Write appends commands.
func (s *Sequence) Write(cmds ...Command) {
	s.Commands = append(s.Commands, cmds...)
}

// HasContent reports whether any non-comment command exists.
func (s *Sequence) HasContent() bool {
	for _, c := range s.Commands {
		if _, ok := c.(*Comment); !ok {
			return true
		}
	}
	return false
}

// Len counts instructions, excluding comments.
func (s *Sequence) Len() int {
	n := 0
	for _, c := range s.Commands {
		if _, ok := c.(*Comment); !ok {
			n++
		}
	}
	return n
}

// Text renders the sequence body.
func (s *Sequence) Text() string {
	lines := make([]string, 0, len(s.Commands))
	for _, c := range s.Commands {
		lines = append(lines, c.Resolve())
	}
	return strings.Join(lines, "\n")
}

func (s *Sequence) reads(slot ScbSlot, seen []*Sequence) bool {
	for _, prev := range seen {
		if prev == s {
			return false
		}
	}
	seen = append(seen, s)
	for _, c := range s.Commands {
		if ref := c.SeqRef(); ref != nil {
			if ref.reads(slot, seen) {
				return true
			}
			if ex, ok := c.(*Execute); ok {
				for _, cond := range ex.Conds {
					if cond.Reads(slot) {
						return true
					}
				}
			}
			continue
		}
		if c.Reads(slot) {
			return true
		}
	}
	return false
}

func (s *Sequence) writes(slot ScbSlot, seen []*Sequence) bool {
	for _, prev := range seen {
		if prev == s {
			return false
		}
	}
	seen = append(seen, s)
	for _, c := range s.Commands {
		if ref := c.SeqRef(); ref != nil {
			if ref.writes(slot, seen) {
				return true
			}
			continue
		}
		if c.Writes(slot) {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Register allocation
// ---------------------------------------------------------------------------

// Allocator hands out uniquely named registers on the compiler's
// objective and pools integer constants for the init sequence. Freed
// registers are reused; two live variables never share one.
type Allocator struct {
	objective  string
	prefix     string
	n          int
	free       []ScbSlot
	consts     map[int64]ScbSlot
	constOrder []int64
	needsObj   bool
}

// NewAllocator creates an allocator using the reserved register
// namespace prefix on the given objective.
func NewAllocator(objective, prefix string) *Allocator {
	return &Allocator{
		objective: objective,
		prefix:    prefix,
		consts:    make(map[int64]ScbSlot),
	}
}

// Alloc returns a register not aliased by any live variable.
func (a *Allocator) Alloc() ScbSlot {
	a.needsObj = true
	if n := len(a.free); n > 0 {
		slot := a.free[n-1]
		a.free = a.free[:n-1]
		return slot
	}
	a.n++
	return ScbSlot{Target: fmt.Sprintf("%s%d", a.prefix, a.n), Objective: a.objective}
}

// AllocN returns n fresh registers.
func (a *Allocator) AllocN(n int) []ScbSlot {
	slots := make([]ScbSlot, n)
	for i := range slots {
		slots[i] = a.Alloc()
	}
	return slots
}

// Release returns registers to the free list. Only call once the
// owning scope has provably exited.
func (a *Allocator) Release(slots ...ScbSlot) {
	a.free = append(a.free, slots...)
}

// IntConst returns the pooled register holding the given constant,
// loaded by the init sequence.
func (a *Allocator) IntConst(v int64) ScbSlot {
	if slot, ok := a.consts[v]; ok {
		return slot
	}
	slot := a.Alloc()
	a.consts[v] = slot
	a.constOrder = append(a.constOrder, v)
	return slot
}

// NeedsInit reports whether any one-time setup is required.
func (a *Allocator) NeedsInit() bool {
	return a.needsObj || len(a.consts) > 0
}

// InitCommands builds the one-time setup: objective creation and
// constant pool loading.
func (a *Allocator) InitCommands() []Command {
	var cmds []Command
	cmds = append(cmds, &ObjAdd{Name: a.objective})
	for _, v := range a.constOrder {
		cmds = append(cmds, &SetConst{Target: a.consts[v], Value: v})
	}
	return cmds
}
