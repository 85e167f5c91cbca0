package vm

import "testing"

func TestTagRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		v    Value
		tag  Tag
	}{
		{"int", MakeInt(-42), TagInt},
		{"byte", MakeByte(200), TagByte},
		{"char", MakeChar('x'), TagChar},
		{"float", MakeFloat(3.5), TagFloat},
		{"marker", MakeMarker(MarkerTrueType), TagMark},
		{"ref", MakeRef(0x1000), TagRef},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := TagOf(c.v); got != c.tag {
				t.Fatalf("TagOf(%v) = %v, want %v", c.v, got, c.tag)
			}
		})
	}
}

func TestIntPayloadRoundTrip(t *testing.T) {
	for _, n := range []int32{0, 1, -1, 42, -42, 1 << 30, -(1 << 30)} {
		v := MakeInt(n)
		if got := IntPayload(v); got != n {
			t.Fatalf("IntPayload(MakeInt(%d)) = %d", n, got)
		}
	}
}

func TestFloatPayloadRoundTrip(t *testing.T) {
	for _, f := range []float32{0, 1.5, -1.5, 3.14159} {
		v := MakeFloat(f)
		if got := FloatPayload(v); got != f {
			t.Fatalf("FloatPayload(MakeFloat(%v)) = %v", f, got)
		}
	}
}

func TestBoolRefTruthy(t *testing.T) {
	if !IsTruthy(BoolRef(true)) {
		t.Fatal("BoolRef(true) should be truthy")
	}
	if IsTruthy(BoolRef(false)) {
		t.Fatal("BoolRef(false) should not be truthy")
	}
	if !IsTruthy(MakeInt(1)) {
		t.Fatal("nonzero INT should be truthy")
	}
}

func TestRefAddressing(t *testing.T) {
	const headerAddr = 0x2000
	v := MakeRef(headerAddr)
	if got := RefHeaderAddr(v); got != headerAddr {
		t.Fatalf("RefHeaderAddr = %d, want %d", got, headerAddr)
	}
	if got := RefDataAddr(v); got != headerAddr+8 {
		t.Fatalf("RefDataAddr = %d, want %d", got, headerAddr+8)
	}
}
