package compiler

import (
	"strings"
	"testing"
)

func testAlloc() *Allocator {
	return NewAllocator("test", "r")
}

func TestOptimizeDropsEmptySequences(t *testing.T) {
	root := NewSequence("root")
	empty := NewSequence("gen/empty")
	slot := ScbSlot{Target: "r1", Objective: "test"}
	root.Write(&SetConst{Target: slot, Value: 1}, &Invoke{Seq: empty})

	out := optimize([]*Sequence{root, empty}, []*Sequence{root}, 20, testAlloc())
	if len(out) != 1 || out[0] != root {
		t.Fatalf("surviving sequences = %d, want only the root", len(out))
	}
	for _, c := range root.Commands {
		if c.SeqRef() != nil {
			t.Errorf("invocation of the empty sequence survived: %s", c.Resolve())
		}
	}
}

func TestOptimizeEmptyRootKept(t *testing.T) {
	root := NewSequence("root")
	out := optimize([]*Sequence{root}, []*Sequence{root}, 20, testAlloc())
	if len(out) != 1 {
		t.Errorf("root sequence dropped despite being a root")
	}
}

func TestOptimizeDropsUnreachable(t *testing.T) {
	slot := ScbSlot{Target: "r1", Objective: "test"}
	root := NewSequence("root")
	used := NewSequence("gen/used")
	orphan := NewSequence("gen/orphan")
	used.Write(&SetConst{Target: slot, Value: 1})
	orphan.Write(&SetConst{Target: slot, Value: 2})
	root.Write(&Invoke{Seq: used})

	out := optimize([]*Sequence{root, used, orphan}, []*Sequence{root}, 0, testAlloc())
	for _, s := range out {
		if s == orphan {
			t.Error("unreachable sequence survived")
		}
	}
}

func TestOptimizeInlinesSingleUse(t *testing.T) {
	slot := ScbSlot{Target: "r1", Objective: "test"}
	root := NewSequence("root")
	callee := NewSequence("gen/callee")
	callee.Write(
		&SetConst{Target: slot, Value: 1},
		&AddConst{Target: slot, Value: 2},
	)
	root.Write(&Invoke{Seq: callee})

	out := optimize([]*Sequence{root, callee}, []*Sequence{root}, 0, testAlloc())
	if len(out) != 1 {
		t.Fatalf("surviving sequences = %d, want 1", len(out))
	}
	if len(root.Commands) != 2 {
		t.Fatalf("root commands = %d, want the spliced body:\n%s", len(root.Commands), root.Text())
	}
	if _, ok := root.Commands[0].(*SetConst); !ok {
		t.Errorf("command[0] = %v, want the callee's first command", root.Commands[0])
	}
}

func TestOptimizeKeepsMultiUseSequences(t *testing.T) {
	slot := ScbSlot{Target: "r1", Objective: "test"}
	root := NewSequence("root")
	callee := NewSequence("gen/callee")
	callee.Write(&SetConst{Target: slot, Value: 1})
	root.Write(&Invoke{Seq: callee}, &Invoke{Seq: callee})

	out := optimize([]*Sequence{root, callee}, []*Sequence{root}, 0, testAlloc())
	if len(out) != 2 {
		t.Errorf("surviving sequences = %d, want 2 (no inline of multi-use)", len(out))
	}
}

func TestOptimizeKeepsSelfRecursive(t *testing.T) {
	slot := ScbSlot{Target: "r1", Objective: "test"}
	root := NewSequence("root")
	loop := NewSequence("gen/loop")
	loop.Write(
		&AddConst{Target: slot, Value: 1},
		&Execute{Conds: []Cond{matchCond(slot, "..3")}, Run: &Invoke{Seq: loop}},
	)
	root.Write(&Invoke{Seq: loop})

	out := optimize([]*Sequence{root, loop}, []*Sequence{root}, 20, testAlloc())
	if len(out) != 2 {
		t.Errorf("surviving sequences = %d, want 2 (recursion cannot inline)", len(out))
	}
}

func TestOptimizeInlinesConditionalSite(t *testing.T) {
	cond := ScbSlot{Target: "c1", Objective: "test"}
	slot := ScbSlot{Target: "r1", Objective: "test"}
	root := NewSequence("root")
	branch := NewSequence("gen/branch")
	branch.Write(&SetConst{Target: slot, Value: 7})
	root.Write(&Execute{Conds: []Cond{matchCond(cond, "1")}, Run: &Invoke{Seq: branch}})

	out := optimize([]*Sequence{root, branch}, []*Sequence{root}, 20, testAlloc())
	if len(out) != 1 {
		t.Fatalf("surviving sequences = %d, want 1", len(out))
	}
	text := root.Text()
	if !strings.Contains(text, "if score c1 test matches 1 run scoreboard players set r1 test 7") {
		t.Errorf("conditional body not prefixed:\n%s", text)
	}
}

func TestOptimizeConditionalInlineLatchesCondition(t *testing.T) {
	// The body writes the register the condition reads, so the result
	// of the test must be latched before the body runs.
	cond := ScbSlot{Target: "c1", Objective: "test"}
	root := NewSequence("root")
	branch := NewSequence("gen/branch")
	branch.Write(
		&SetConst{Target: cond, Value: 0},
		&SetConst{Target: ScbSlot{Target: "x1", Objective: "test"}, Value: 9},
	)
	root.Write(&Execute{Conds: []Cond{matchCond(cond, "1")}, Run: &Invoke{Seq: branch}})

	out := optimize([]*Sequence{root, branch}, []*Sequence{root}, 20, testAlloc())
	if len(out) != 1 {
		t.Fatalf("surviving sequences = %d, want 1", len(out))
	}
	if len(root.Commands) != 4 {
		t.Fatalf("root commands = %d, want latch setup plus guarded body:\n%s",
			len(root.Commands), root.Text())
	}
	first, ok := root.Commands[0].(*SetConst)
	if !ok || first.Value != 0 {
		t.Errorf("command[0] = %v, want the latch reset", root.Commands[0])
	}
	// Every body command must now test the latch, not the original
	// register the body clobbers.
	for _, c := range root.Commands[2:] {
		ex, ok := c.(*Execute)
		if !ok {
			t.Fatalf("body command %v lost its guard", c)
		}
		if ex.Conds[0].Slot == cond {
			t.Errorf("body still guarded by the clobbered register: %s", c.Resolve())
		}
	}
}

func TestOptimizeRespectsInlineLimit(t *testing.T) {
	slot := ScbSlot{Target: "r1", Objective: "test"}
	cond := ScbSlot{Target: "c1", Objective: "test"}
	root := NewSequence("root")
	big := NewSequence("gen/big")
	for i := 0; i < 5; i++ {
		big.Write(&AddConst{Target: slot, Value: 1})
	}
	root.Write(&Execute{Conds: []Cond{matchCond(cond, "1")}, Run: &Invoke{Seq: big}})

	out := optimize([]*Sequence{root, big}, []*Sequence{root}, 3, testAlloc())
	if len(out) != 2 {
		t.Errorf("surviving sequences = %d, want 2 (body over the inline limit)", len(out))
	}
}

func TestOptimizeCommentsDoNotCountAsContent(t *testing.T) {
	root := NewSequence("root")
	noisy := NewSequence("gen/noisy")
	noisy.Write(&Comment{Text: "annotation only"})
	root.Write(&Invoke{Seq: noisy})

	out := optimize([]*Sequence{root, noisy}, []*Sequence{root}, 0, testAlloc())
	if len(out) != 1 {
		t.Errorf("comment-only sequence survived")
	}
}
