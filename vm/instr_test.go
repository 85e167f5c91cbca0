package vm

import (
	"reflect"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Instruction{
		EncodeAu(OpReturn, 0),
		EncodeAs(OpGoto, -5),
		EncodeC(OpSetLocal, 3, 7, 0),
		EncodeD(OpSetLocalWide, 1, 0, 1234567890123),
		EncodeE(OpAddInt, 1, 2, 3, 0),
		EncodeF(OpJumpLtIntS, 1, 2, 10, -10),
		EncodeTgts(OpDispatch, 0, []uint32{1, 2, 3}),
	}
	for i, instr := range cases {
		words, err := Encode(instr)
		if err != nil {
			t.Fatalf("case %d: Encode error: %v", i, err)
		}
		decoded, err := DecodeAt(words, 0)
		if err != nil {
			t.Fatalf("case %d: DecodeAt error: %v", i, err)
		}
		if decoded.Op != instr.Op || decoded.X != instr.X || decoded.Y != instr.Y ||
			decoded.Value != instr.Value {
			t.Fatalf("case %d: round trip mismatch: got %+v, want %+v", i, decoded, instr)
		}
		if len(instr.Targets) > 0 && !reflect.DeepEqual(decoded.Targets, instr.Targets) {
			t.Fatalf("case %d: targets mismatch: got %v, want %v", i, decoded.Targets, instr.Targets)
		}
	}
}

func TestDecodeAtOutOfRange(t *testing.T) {
	if _, err := DecodeAt(nil, 0); err == nil {
		t.Fatal("expected error decoding empty word stream")
	}
}

func TestRemovedOpcodesAreFatal(t *testing.T) {
	for op := range removedOpcodes {
		if !op.IsRemoved() {
			t.Fatalf("%v should report IsRemoved", op)
		}
	}
}

func TestGotoOffsetRelativeToPC0(t *testing.T) {
	instr := EncodeAs(OpGoto, 3)
	words, err := Encode(instr)
	if err != nil {
		t.Fatal(err)
	}
	full := append([]uint32{0, 0, 0, 0, 0}, words...)
	decoded, err := DecodeAt(full, 5)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Value != 3 {
		t.Fatalf("goto offset = %d, want 3 (relative to pc0, not absolute)", decoded.Value)
	}
}
