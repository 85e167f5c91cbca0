package vm

import (
	"fmt"
	"testing"
)

func buildWords(t *testing.T, instrs []Instruction) []uint32 {
	t.Helper()
	var words []uint32
	for _, instr := range instrs {
		w, err := Encode(instr)
		if err != nil {
			t.Fatalf("encode %v: %v", instr, err)
		}
		words = append(words, w...)
	}
	return words
}

func newTestMachine(t *testing.T, words []uint32, traps Traps, stackSize uint32, numLocals uint16) *Machine {
	t.Helper()
	heap := NewHeap(1 << 16)
	m := NewMachine(words, heap, traps)
	root, err := NewStack(stackSize, 0, numLocals)
	if err != nil {
		t.Fatal(err)
	}
	m.AddStack(root)
	m.Cur = 0
	return m
}

func TestConstantReturn(t *testing.T) {
	words := buildWords(t, []Instruction{
		EncodeC(OpSetLocalS, 0, 0, 99),
		{Op: OpReturn},
	})
	m := newTestMachine(t, words, Traps{}, 256, 1)
	s := m.Stacks[0]
	if err := m.Run(); err != nil {
		t.Fatal(err)
	}
	if !m.Halted {
		t.Fatal("machine should halt on root RETURN")
	}
	if got := IntPayload(s.Slot(0)); got != 99 {
		t.Fatalf("local0 = %d, want 99", got)
	}
}

func TestSumLoopWithCompareJump(t *testing.T) {
	// locals: 0=i, 1=n, 2=sum, 3=one
	instrs := []Instruction{
		EncodeC(OpSetLocalS, 0, 0, 0), // i = 0
		EncodeC(OpSetLocalS, 1, 0, 5), // n = 5
		EncodeC(OpSetLocalS, 2, 0, 0), // sum = 0
		EncodeC(OpSetLocalS, 3, 0, 1), // one = 1
		EncodeF(OpJumpLtIntS, 0, 1, 3, 8), // pc0=8: body at +3 (11), end at +8 (16)
		EncodeE(OpIntAdd, 2, 2, 0, 0),     // sum += i
		EncodeE(OpIntAdd, 0, 0, 3, 0),     // i += 1
		EncodeAs(OpGoto, -7),              // back to loop header (pc0=15, target 8)
		{Op: OpReturn},
	}
	words := buildWords(t, instrs)
	m := newTestMachine(t, words, Traps{}, 256, 4)
	s := m.Stacks[0]
	if err := m.Run(); err != nil {
		t.Fatal(err)
	}
	if got := IntPayload(s.Slot(2)); got != 10 {
		t.Fatalf("sum = %d, want 10 (0+1+2+3+4)", got)
	}
}

func TestTaggedIntArithmetic(t *testing.T) {
	words := buildWords(t, []Instruction{
		EncodeC(OpSetLocalS, 0, 0, 3),
		EncodeC(OpSetLocalS, 1, 0, 4),
		EncodeE(OpIntAdd, 2, 0, 1, 0),
		{Op: OpReturn},
	})
	m := newTestMachine(t, words, Traps{}, 256, 3)
	s := m.Stacks[0]
	if err := m.Run(); err != nil {
		t.Fatal(err)
	}
	if got := IntPayload(s.Slot(2)); got != 7 {
		t.Fatalf("3 INT_ADD 4 = %d, want 7", got)
	}
	if TagOf(s.Slot(2)) != TagInt {
		t.Fatal("INT_ADD result must stay tagged INT")
	}
}

type fakeGC struct{ called int }

func (g *fakeGC) CollectGarbage(m *Machine, need uint64) error {
	g.called++
	m.Heap.Grow(make([]byte, 1<<20), 0, 1<<20)
	return nil
}

func TestReserveTrapsToGCWhenHeapFull(t *testing.T) {
	words := buildWords(t, []Instruction{
		EncodeD(OpReserveLocal, 0, 0, 64),
		{Op: OpReturn},
	})
	fg := &fakeGC{}
	heap := NewHeap(32)
	heap.Limit = heap.Top // heap_limit == heap_top, forces a trap
	m := NewMachine(words, heap, Traps{GC: fg})
	root, err := NewStack(256, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	m.AddStack(root)
	m.Cur = 0

	if err := m.Run(); err != nil {
		t.Fatal(err)
	}
	if fg.called != 1 {
		t.Fatalf("GarbageCollector called %d times, want 1", fg.called)
	}
}

func TestFatalOnRemovedOpcode(t *testing.T) {
	words := buildWords(t, []Instruction{
		{Op: OpGlobalsLegacy},
	})
	m := newTestMachine(t, words, Traps{}, 256, 0)
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected a panic for a removed opcode")
		}
		if _, ok := r.(*FatalError); !ok {
			t.Fatalf("expected *FatalError, got %T", r)
		}
	}()
	_ = m.Run()
}

func TestYieldSwitchesActiveStackPreservingPC(t *testing.T) {
	// Stack A yields to stack B (already suspended); B resumes at its
	// saved PC, unaffected by A's own code offsets. Build a single shared
	// code stream: stack A's code at word 0, stack B's at word 16.
	combined := make([]uint32, 32)
	copy(combined, buildWords(t, []Instruction{
		EncodeC(OpSetLocalS, 1, 0, 1), // local1 = 1 (index of stack B, filled in once B exists)
		EncodeC(OpYield, 0, 0, 1),
		{Op: OpReturn},
	}))
	copy(combined[16:], buildWords(t, []Instruction{
		EncodeC(OpSetLocalS, 0, 0, 123),
		{Op: OpReturn},
	}))

	heap := NewHeap(1 << 12)
	m := NewMachine(combined, heap, Traps{})
	a, err := NewStack(256, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewStack(256, 16, 1)
	if err != nil {
		t.Fatal(err)
	}
	b.State = StackSuspended
	m.AddStack(a)
	m.AddStack(b)
	m.Cur = 0

	if err := m.Run(); err != nil {
		t.Fatal(err)
	}
	if b.State != StackDeallocated {
		t.Fatalf("stack B should have run to completion, state=%v", b.State)
	}
	if got := IntPayload(b.Slot(0)); got != 123 {
		t.Fatalf("stack B local0 = %d, want 123", got)
	}
}

type fixedDispatcher struct {
	typeID uint8
}

func (d fixedDispatcher) DispatchBranch(index uint32, targets []uint32) (uint32, error) {
	if int(index) >= len(targets) {
		return 0, fmt.Errorf("index %d out of range", index)
	}
	return targets[index], nil
}

func (d fixedDispatcher) TypeOf(v Value) uint8 { return d.typeID }

func TestDispatchMethodUsesTypeOf(t *testing.T) {
	// DISPATCH_METHOD on local0 picks targets[TypeOf(local0)], a relative
	// word offset from the instruction's own pc0.
	instrs := []Instruction{
		EncodeC(OpSetLocalS, 0, 0, 0),                     // local0: placeholder value
		EncodeTgts(OpDispatchMethod, 0, []uint32{100, 100, 8}), // pc0 = 2, landing pad at word 10
		EncodeC(OpSetLocalS, 1, 0, 1),                     // skipped if dispatch lands past here
		{Op: OpReturn},
		EncodeC(OpSetLocalS, 1, 0, 2), // landing pad (pc0+8 = word 10)
		{Op: OpReturn},
	}
	words := buildWords(t, instrs)
	m := newTestMachine(t, words, Traps{Dispatch: fixedDispatcher{typeID: 2}}, 256, 2)
	s := m.Stacks[0]
	if err := m.Run(); err != nil {
		t.Fatal(err)
	}
	if got := IntPayload(s.Slot(1)); got != 2 {
		t.Fatalf("local1 = %d, want 2 (landing pad reached via dispatch)", got)
	}
}
