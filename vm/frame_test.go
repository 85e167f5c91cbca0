package vm

import "testing"

func TestNewStackRootFrame(t *testing.T) {
	s, err := NewStack(4096, 100, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !s.IsRootFrame() {
		t.Fatal("root frame should report IsRootFrame")
	}
	if s.PC != 100 {
		t.Fatalf("PC = %d, want 100", s.PC)
	}
	if s.CurrentNumLocals() != 2 {
		t.Fatalf("numLocals = %d, want 2", s.CurrentNumLocals())
	}
}

func TestSlotReadWrite(t *testing.T) {
	s, err := NewStack(4096, 0, 4)
	if err != nil {
		t.Fatal(err)
	}
	s.SetSlot(0, MakeInt(42))
	s.SetSlot(3, MakeFloat(1.5))
	if IntPayload(s.Slot(0)) != 42 {
		t.Fatalf("slot 0 = %v, want 42", s.Slot(0))
	}
	if FloatPayload(s.Slot(3)) != 1.5 {
		t.Fatalf("slot 3 = %v, want 1.5", s.Slot(3))
	}
}

func TestCallReturnSymmetry(t *testing.T) {
	s, err := NewStack(4096, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	startSP := s.SP

	if err := s.PushCall(3, 50); err != nil {
		t.Fatal(err)
	}
	if s.SP == startSP {
		t.Fatal("PushCall should advance SP")
	}
	if s.CurrentNumLocals() != 3 {
		t.Fatalf("callee numLocals = %d, want 3", s.CurrentNumLocals())
	}
	if rp := s.CurrentReturnPC(); rp != 50 {
		t.Fatalf("returnpc = %d, want 50", rp)
	}

	if err := s.PopFrame(3); err != nil {
		t.Fatal(err)
	}
	if s.SP != startSP {
		t.Fatalf("SP after pop = %d, want %d (call/return symmetry)", s.SP, startSP)
	}
}

func TestTailCallReusesFrame(t *testing.T) {
	s, err := NewStack(4096, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	sp := s.SP
	if err := s.TailCall(5); err != nil {
		t.Fatal(err)
	}
	if s.SP != sp {
		t.Fatal("TailCall must not move SP")
	}
	if s.CurrentNumLocals() != 5 {
		t.Fatalf("numLocals after tcall = %d, want 5", s.CurrentNumLocals())
	}
}

func TestLivenessMap(t *testing.T) {
	s, err := NewStack(4096, 0, 4)
	if err != nil {
		t.Fatal(err)
	}
	s.SetLivenessMap(0b1011)
	if got := s.CurrentLivenessMap(); got != 0b1011 {
		t.Fatalf("liveness map = %b, want 1011", got)
	}
}

func TestPushCallStackExhaustion(t *testing.T) {
	s, err := NewStack(40, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.PushCall(1000, 0); err == nil {
		t.Fatal("expected error pushing a frame too large for the region")
	}
}
