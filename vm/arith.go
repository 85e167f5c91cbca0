package vm

import "math"

// arithKind classifies a typed-arithmetic opcode by operation regardless
// of width, so byte/int32/long64 share one generic body instead of three
// near-identical switches.
type arithKind uint8

const (
	arithAdd arithKind = iota
	arithSub
	arithMul
	arithDiv
	arithMod
	arithAnd
	arithOr
	arithXor
	arithShl
	arithShr
	arithAshr
)

var intArithKind = map[Opcode]arithKind{
	OpAddByte: arithAdd, OpSubByte: arithSub, OpMulByte: arithMul, OpDivByte: arithDiv, OpModByte: arithMod,
	OpAndByte: arithAnd, OpOrByte: arithOr, OpXorByte: arithXor, OpShlByte: arithShl, OpShrByte: arithShr,

	OpAddInt: arithAdd, OpSubInt: arithSub, OpMulInt: arithMul, OpDivInt: arithDiv, OpModInt: arithMod,
	OpAndInt: arithAnd, OpOrInt: arithOr, OpXorInt: arithXor, OpShlInt: arithShl, OpShrInt: arithShr, OpAshrInt: arithAshr,

	OpAddLong: arithAdd, OpSubLong: arithSub, OpMulLong: arithMul, OpDivLong: arithDiv, OpModLong: arithMod,
	OpAndLong: arithAnd, OpOrLong: arithOr, OpXorLong: arithXor, OpShlLong: arithShl, OpShrLong: arithShr, OpAshrLong: arithAshr,
}

type intWidth interface {
	~int8 | ~uint8 | ~int32 | ~uint32 | ~int64 | ~uint64
}

func computeInt[T intWidth](kind arithKind, a, b T) T {
	switch kind {
	case arithAdd:
		return a + b
	case arithSub:
		return a - b
	case arithMul:
		return a * b
	case arithDiv:
		return a / b
	case arithMod:
		return a % b
	case arithAnd:
		return a & b
	case arithOr:
		return a | b
	case arithXor:
		return a ^ b
	case arithShl:
		return a << (uint64(b) & 63)
	case arithShr:
		return a >> (uint64(b) & 63)
	default:
		return a
	}
}

// execByteArith operates on the untagged byte family: operands/result
// live in a Value's low 8 bits raw, distinct from the tagged BYTE values
// MakeByte/BytePayload produce. Typed arithmetic and tagged-value
// arithmetic are kept as separate instruction families throughout.
func (m *Machine) execByteArith(s *Stack, instr Instruction) {
	kind := intArithKind[instr.Op]
	a, b := uint8(s.Slot(instr.Y)), uint8(s.Slot(instr.Z))
	s.SetSlot(instr.X, Value(computeInt(kind, a, b)))
}

func (m *Machine) execIntArith(s *Stack, instr Instruction) {
	kind := intArithKind[instr.Op]
	switch instr.Op {
	case OpAshrInt:
		a, b := int32(s.Slot(instr.Y)), int32(s.Slot(instr.Z))
		s.SetSlot(instr.X, Value(uint32(a>>(uint(b)&31))))
	case OpDivInt, OpModInt:
		a, b := int32(s.Slot(instr.Y)), int32(s.Slot(instr.Z))
		s.SetSlot(instr.X, Value(uint32(computeInt(kind, a, b))))
	default:
		a, b := uint32(s.Slot(instr.Y)), uint32(s.Slot(instr.Z))
		s.SetSlot(instr.X, Value(computeInt(kind, a, b)))
	}
}

func (m *Machine) execLongArith(s *Stack, instr Instruction) {
	kind := intArithKind[instr.Op]
	switch instr.Op {
	case OpAshrLong:
		a, b := int64(s.Slot(instr.Y)), int64(s.Slot(instr.Z))
		s.SetSlot(instr.X, Value(uint64(a>>(uint(b)&63))))
	case OpDivLong, OpModLong:
		a, b := int64(s.Slot(instr.Y)), int64(s.Slot(instr.Z))
		s.SetSlot(instr.X, Value(uint64(computeInt(kind, a, b))))
	default:
		a, b := uint64(s.Slot(instr.Y)), uint64(s.Slot(instr.Z))
		s.SetSlot(instr.X, Value(computeInt(kind, a, b)))
	}
}

func (m *Machine) execFloatArith(s *Stack, instr Instruction) {
	a := math.Float32frombits(uint32(s.Slot(instr.Y)))
	b := math.Float32frombits(uint32(s.Slot(instr.Z)))
	var r float32
	switch instr.Op {
	case OpAddFloat:
		r = a + b
	case OpSubFloat:
		r = a - b
	case OpMulFloat:
		r = a * b
	case OpDivFloat:
		r = a / b
	}
	s.SetSlot(instr.X, Value(math.Float32bits(r)))
}

func (m *Machine) execDoubleArith(s *Stack, instr Instruction) {
	a := float64FromRaw(s.Slot(instr.Y))
	b := float64FromRaw(s.Slot(instr.Z))
	var r float64
	switch instr.Op {
	case OpAddDouble:
		r = a + b
	case OpSubDouble:
		r = a - b
	case OpMulDouble:
		r = a * b
	case OpDivDouble:
		r = a / b
	}
	s.SetSlot(instr.X, makeDouble(r))
}

// execCompare implements the raw three-way (-1/0/1) comparison family:
// result is a plain tagged INT, not a tagged boolean, distinct from the
// REF/EQREF/LTREF family below. OpCmpInt* pairs with the tagged INT_*
// family, so its operands come through IntPayload rather than a raw
// uint32/int32 cast of the Value - same reasoning as compareJumpCond.
func (m *Machine) execCompare(s *Stack, instr Instruction) {
	a, b := s.Slot(instr.Y), s.Slot(instr.Z)
	var c int
	switch instr.Op {
	case OpCmpByteU:
		c = cmp3(uint8(a), uint8(b))
	case OpCmpByteS:
		c = cmp3(int8(a), int8(b))
	case OpCmpIntU:
		c = cmp3(uint32(IntPayload(a)), uint32(IntPayload(b)))
	case OpCmpIntS:
		c = cmp3(IntPayload(a), IntPayload(b))
	case OpCmpLongU:
		c = cmp3(uint64(a), uint64(b))
	case OpCmpLongS:
		c = cmp3(int64(a), int64(b))
	case OpCmpFloat:
		c = cmp3(math.Float32frombits(uint32(a)), math.Float32frombits(uint32(b)))
	case OpCmpDouble:
		c = cmp3(float64FromRaw(a), float64FromRaw(b))
	}
	s.SetSlot(instr.X, MakeInt(int32(c)))
}

func cmp3[T int8 | uint8 | int32 | uint32 | int64 | uint64 | float32 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// execCompareRef implements the tagged-boolean EQ/LT family: result is
// BoolRef(cmp), a MARKER value, not a raw integer.
func (m *Machine) execCompareRef(s *Stack, instr Instruction) {
	a, b := s.Slot(instr.Y), s.Slot(instr.Z)
	var r bool
	switch instr.Op {
	case OpCmpEqRefByte:
		r = uint8(a) == uint8(b)
	case OpCmpEqRefInt:
		r = uint32(a) == uint32(b)
	case OpCmpEqRefLong:
		r = uint64(a) == uint64(b)
	case OpCmpEqRefFloat:
		r = math.Float32frombits(uint32(a)) == math.Float32frombits(uint32(b))
	case OpCmpEqRefDouble:
		r = float64FromRaw(a) == float64FromRaw(b)
	case OpCmpLtRefByte:
		r = uint8(a) < uint8(b)
	case OpCmpLtRefInt:
		r = int32(a) < int32(b)
	case OpCmpLtRefLong:
		r = int64(a) < int64(b)
	case OpCmpLtRefFloat:
		r = math.Float32frombits(uint32(a)) < math.Float32frombits(uint32(b))
	case OpCmpLtRefDouble:
		r = float64FromRaw(a) < float64FromRaw(b)
	}
	s.SetSlot(instr.X, BoolRef(r))
}

// execConvert implements the 20 ordered conversions between the typed
// families. Each case reads the source's untagged raw representation
// and writes the destination's.
func (m *Machine) execConvert(s *Stack, instr Instruction) {
	src := s.Slot(instr.Y)
	var dst Value
	switch instr.Op {
	case OpConvByteToInt:
		dst = Value(uint32(int32(uint8(src))))
	case OpConvByteToLong:
		dst = Value(uint64(int64(uint8(src))))
	case OpConvByteToFloat:
		dst = Value(math.Float32bits(float32(uint8(src))))
	case OpConvByteToDouble:
		dst = makeDouble(float64(uint8(src)))
	case OpConvIntToByte:
		dst = Value(uint8(int32(src)))
	case OpConvIntToLong:
		dst = Value(uint64(int64(int32(src))))
	case OpConvIntToFloat:
		dst = Value(math.Float32bits(float32(int32(src))))
	case OpConvIntToDouble:
		dst = makeDouble(float64(int32(src)))
	case OpConvLongToByte:
		dst = Value(uint8(int64(src)))
	case OpConvLongToInt:
		dst = Value(uint32(int32(int64(src))))
	case OpConvLongToFloat:
		dst = Value(math.Float32bits(float32(int64(src))))
	case OpConvLongToDouble:
		dst = makeDouble(float64(int64(src)))
	case OpConvFloatToByte:
		dst = Value(uint8(int32(math.Float32frombits(uint32(src)))))
	case OpConvFloatToInt:
		dst = Value(uint32(int32(math.Float32frombits(uint32(src)))))
	case OpConvFloatToLong:
		dst = Value(uint64(int64(math.Float32frombits(uint32(src)))))
	case OpConvFloatToDouble:
		dst = makeDouble(float64(math.Float32frombits(uint32(src))))
	case OpConvDoubleToByte:
		dst = Value(uint8(int64(float64FromRaw(src))))
	case OpConvDoubleToInt:
		dst = Value(uint32(int32(float64FromRaw(src))))
	case OpConvDoubleToLong:
		dst = Value(uint64(int64(float64FromRaw(src))))
	case OpConvDoubleToFloat:
		dst = Value(math.Float32bits(float32(float64FromRaw(src))))
	}
	s.SetSlot(instr.X, dst)
}

// loadStoreAddr resolves the memory address a sized load/store targets:
// a REF-tagged base local's data address, plus a constant offset, plus
// (for the *Var variants) a variable offset read from another local.
func loadStoreAddr(s *Stack, instr Instruction, isVar bool) uint64 {
	base := RefDataAddr(s.Slot(instr.Y))
	addr := base + uint64(instr.Value)
	if isVar {
		addr += uint64(IntPayload(s.Slot(instr.Z)))
	}
	return addr
}

func (m *Machine) execLoad(s *Stack, instr Instruction) {
	isVar := instr.Op == OpLoad1ConstVar || instr.Op == OpLoad4ConstVar || instr.Op == OpLoad8ConstVar
	addr := loadStoreAddr(s, instr, isVar)
	switch instr.Op {
	case OpLoad1Const, OpLoad1ConstVar:
		s.SetSlot(instr.X, Value(m.Heap.ReadU8(addr)))
	case OpLoad4Const, OpLoad4ConstVar:
		s.SetSlot(instr.X, Value(m.Heap.ReadU32(addr)))
	case OpLoad8Const, OpLoad8ConstVar:
		s.SetSlot(instr.X, Value(m.Heap.ReadU64(addr)))
	}
}

func (m *Machine) execStore(s *Stack, instr Instruction) {
	isVar := instr.Op == OpStore1ConstVar || instr.Op == OpStore4ConstVar || instr.Op == OpStore8ConstVar
	addr := loadStoreAddr(s, instr, isVar)
	v := s.Slot(instr.X)
	switch instr.Op {
	case OpStore1Const, OpStore1ConstVar:
		m.Heap.WriteU8(addr, uint8(v))
	case OpStore4Const, OpStore4ConstVar:
		m.Heap.WriteU32(addr, uint32(v))
	case OpStore8Const, OpStore8ConstVar:
		m.Heap.WriteU64(addr, uint64(v))
	}
}
