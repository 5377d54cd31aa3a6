package compiler

// ---------------------------------------------------------------------------
// Optimizer: post-pass over emitted sequences. Drops empty and
// unreachable sequences and inlines small callees to avoid indirect
// invocations.
// ---------------------------------------------------------------------------

const optMaxRounds = 16

type optimizer struct {
	seqs      []*Sequence
	roots     map[*Sequence]bool
	maxInline int
	alloc     *Allocator
}

// optimize rewrites seqs and returns the surviving set in original
// order. roots (interfaces, init) are never removed or renamed.
func optimize(seqs []*Sequence, roots []*Sequence, maxInline int, alloc *Allocator) []*Sequence {
	o := &optimizer{
		seqs:      seqs,
		roots:     make(map[*Sequence]bool, len(roots)),
		maxInline: maxInline,
		alloc:     alloc,
	}
	for _, r := range roots {
		o.roots[r] = true
	}
	for round := 0; round < optMaxRounds; round++ {
		changed := o.dropEmpty()
		if o.dropUnreachable() {
			changed = true
		}
		if o.inlineSingleUse() {
			changed = true
		}
		if o.inlineConditional() {
			changed = true
		}
		if !changed {
			break
		}
	}
	return o.seqs
}

// callSite locates one invocation of a sequence.
type callSite struct {
	seq   *Sequence
	index int
	conds []Cond
}

func (o *optimizer) sites() map[*Sequence][]callSite {
	out := make(map[*Sequence][]callSite)
	for _, s := range o.seqs {
		for i, c := range s.Commands {
			target := c.SeqRef()
			if target == nil {
				continue
			}
			site := callSite{seq: s, index: i}
			if ex, ok := c.(*Execute); ok {
				site.conds = ex.Conds
			}
			out[target] = append(out[target], site)
		}
	}
	return out
}

// dropEmpty removes sequences with no effective content, along with
// every invocation of them.
func (o *optimizer) dropEmpty() bool {
	changed := false
	kept := o.seqs[:0]
	for _, s := range o.seqs {
		if !s.HasContent() && !o.roots[s] {
			changed = true
			continue
		}
		kept = append(kept, s)
	}
	o.seqs = append([]*Sequence{}, kept...)
	alive := make(map[*Sequence]bool, len(o.seqs))
	for _, s := range o.seqs {
		alive[s] = true
	}
	for _, s := range o.seqs {
		out := s.Commands[:0]
		for _, c := range s.Commands {
			if target := c.SeqRef(); target != nil && !alive[target] {
				changed = true
				continue
			}
			out = append(out, c)
		}
		s.Commands = out
	}
	return changed
}

// dropUnreachable prunes sequences no root can reach.
func (o *optimizer) dropUnreachable() bool {
	reachable := make(map[*Sequence]bool)
	var walk func(s *Sequence)
	walk = func(s *Sequence) {
		if reachable[s] {
			return
		}
		reachable[s] = true
		for _, c := range s.Commands {
			if target := c.SeqRef(); target != nil {
				walk(target)
			}
		}
	}
	for r := range o.roots {
		walk(r)
	}
	changed := false
	kept := o.seqs[:0]
	for _, s := range o.seqs {
		if !reachable[s] {
			changed = true
			continue
		}
		kept = append(kept, s)
	}
	o.seqs = append([]*Sequence{}, kept...)
	return changed
}

// invokesSelf reports whether s invokes itself, directly or through
// other sequences.
func invokesSelf(s *Sequence) bool {
	seen := make(map[*Sequence]bool)
	var walk func(cur *Sequence) bool
	walk = func(cur *Sequence) bool {
		if seen[cur] {
			return false
		}
		seen[cur] = true
		for _, c := range cur.Commands {
			if target := c.SeqRef(); target != nil {
				if target == s || walk(target) {
					return true
				}
			}
		}
		return false
	}
	return walk(s)
}

// inlineSingleUse splices a sequence invoked exactly once,
// unconditionally, into its only call site.
func (o *optimizer) inlineSingleUse() bool {
	for target, sites := range o.sites() {
		if o.roots[target] || len(sites) != 1 {
			continue
		}
		site := sites[0]
		if len(site.conds) > 0 || site.seq == target || invokesSelf(target) {
			continue
		}
		o.splice(site.seq, site.index, target.Commands)
		o.remove(target)
		return true
	}
	return false
}

// inlineConditional replaces a conditional invocation of a small
// sequence with its body, each command prefixed by the site's
// conditions. When the body writes a register the conditions read, the
// outcome is latched in a fresh flag first so later body commands
// still run.
func (o *optimizer) inlineConditional() bool {
	for target, sites := range o.sites() {
		if target.Len() > o.maxInline || invokesSelf(target) {
			continue
		}
		for _, site := range sites {
			if len(site.conds) == 0 || site.seq == target {
				continue
			}
			conds := site.conds
			var body []Command
			if o.bodyWritesConds(target, conds) {
				flag := o.alloc.Alloc()
				body = append(body,
					&SetConst{Target: flag, Value: 0},
					execute(conds, &SetConst{Target: flag, Value: 1}))
				conds = []Cond{matchCond(flag, "1")}
			}
			for _, c := range target.Commands {
				body = append(body, execute(conds, c))
			}
			o.splice(site.seq, site.index, body)
			return true
		}
	}
	return false
}

func (o *optimizer) bodyWritesConds(target *Sequence, conds []Cond) bool {
	for _, cond := range conds {
		if target.writes(cond.Slot, nil) {
			return true
		}
		if cond.Kind == CondScore && target.writes(cond.Other, nil) {
			return true
		}
	}
	return false
}

// splice replaces the command at index with body.
func (o *optimizer) splice(s *Sequence, index int, body []Command) {
	out := make([]Command, 0, len(s.Commands)+len(body)-1)
	out = append(out, s.Commands[:index]...)
	out = append(out, body...)
	out = append(out, s.Commands[index+1:]...)
	s.Commands = out
}

func (o *optimizer) remove(target *Sequence) {
	kept := o.seqs[:0]
	for _, s := range o.seqs {
		if s != target {
			kept = append(kept, s)
		}
	}
	o.seqs = append([]*Sequence{}, kept...)
}
