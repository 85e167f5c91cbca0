package vm

import (
	"fmt"
	"math"
)

// Machine is one VM instance: the code stream, the shared heap, the set
// of coroutine-style stacks it owns, and the trap collaborators it calls
// out to.
type Machine struct {
	Code       []uint32
	Heap       *Heap
	ConstsData []byte
	Regs       [1024]Value
	Stacks     []*Stack
	Cur        int
	Traps      Traps
	Halted     bool
	ExitCode   int32
	onFlush    func() error
}

// NewMachine wires a decoded program and the external collaborators
// together. The caller is responsible for seeding Heap/ConstsData and
// starting at least one Stack (typically via NewStack + AddStack) before
// calling Run.
func NewMachine(code []uint32, heap *Heap, traps Traps) *Machine {
	return &Machine{Code: code, Heap: heap, Traps: traps, Cur: -1}
}

// AddStack registers a new coroutine stack and returns its index, which
// NEW_STACK stores as a tagged INT and YIELD reads back.
func (m *Machine) AddStack(s *Stack) uint32 {
	m.Stacks = append(m.Stacks, s)
	return uint32(len(m.Stacks) - 1)
}

func (m *Machine) current() *Stack {
	if m.Cur < 0 || m.Cur >= len(m.Stacks) {
		return nil
	}
	return m.Stacks[m.Cur]
}

// OnFlush registers the callback FLUSH_VM invokes (main.go wires this to
// vmlog's sync, so buffered log output lands before a controlled stop).
func (m *Machine) OnFlush(f func() error) { m.onFlush = f }

// Run executes until a RETURN from a stack's root frame halts the
// machine, or a fatal condition panics with *FatalError. Callers recover
// at the boundary they choose (main.go recovers once, at the top).
func (m *Machine) Run() error {
	for !m.Halted {
		if err := m.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Step decodes and executes exactly one instruction on the currently
// active stack.
func (m *Machine) Step() error {
	s := m.current()
	if s == nil {
		return fmt.Errorf("step: no active stack")
	}
	pc0 := s.PC
	instr, err := DecodeAt(m.Code, pc0)
	if err != nil {
		fatalf(pc0, opReserved, "decode: %v", err)
	}
	if instr.Op.IsRemoved() {
		fatalf(pc0, instr.Op, "removed opcode, never assigned semantics")
	}
	s.PC = pc0 + instr.Words
	m.exec(s, pc0, instr)
	return nil
}

func (m *Machine) exec(s *Stack, pc0 uint32, instr Instruction) {
	switch instr.Op {

	// --- SET_LOCAL family ---
	case OpSetLocal:
		s.SetSlot(instr.X, s.Slot(instr.Y))
	case OpSetLocalU:
		s.SetSlot(instr.X, MakeInt(int32(uint32(instr.Value))))
	case OpSetLocalS:
		s.SetSlot(instr.X, MakeInt(int32(instr.Value)))
	case OpSetLocalCode, OpSetLocalExt, OpSetLocalGlob, OpSetLocalData, OpSetLocalConst:
		s.SetSlot(instr.X, MakeInt(int32(instr.Value)))
	case OpSetLocalWide:
		s.SetSlot(instr.X, Value(uint64(instr.Value)))
	case OpGetReg:
		s.SetSlot(instr.X, m.Regs[instr.Y])

	// --- calls ---
	case OpCallImmediate:
		m.doCall(s, pc0, instr, uint32(instr.Value))
	case OpCallLocal:
		target := uint32(IntPayload(s.Slot(uint16(instr.Value))))
		m.doCall(s, pc0, instr, target)
	case OpCallClosure:
		fn := s.Slot(uint16(instr.Value))
		target := uint32(MarkerPayload(fn))
		m.doCall(s, pc0, instr, target)
	case OpCallCAddr:
		m.doCallC(s, instr)
	case OpTCallImmediate:
		m.doTCall(s, instr, uint32(instr.Value))
	case OpTCallLocal:
		target := uint32(IntPayload(s.Slot(uint16(instr.Value))))
		m.doTCall(s, instr, target)
	case OpTCallClosure:
		fn := s.Slot(uint16(instr.Value))
		target := uint32(MarkerPayload(fn))
		m.doTCall(s, instr, target)
	case OpPopFrame:
		if err := s.PopFrame(uint16(instr.Value)); err != nil {
			fatalf(pc0, instr.Op, "%v", err)
		}
	case OpReturn:
		rp := s.CurrentReturnPC()
		if rp < 0 {
			m.stopStack(s)
			return
		}
		s.PC = uint32(rp)
	case OpLive:
		s.SetLivenessMap(uint64(instr.Value))
	case OpYield:
		m.doYield(s, pc0, instr)
	case OpDump:
		if m.Traps.Trace != nil {
			_ = m.Traps.Trace.PrintStackTrace(s)
		}

	// --- typed arithmetic ---
	case OpAddByte, OpSubByte, OpMulByte, OpDivByte, OpModByte,
		OpAndByte, OpOrByte, OpXorByte, OpShlByte, OpShrByte:
		m.execByteArith(s, instr)
	case OpAddInt, OpSubInt, OpMulInt, OpDivInt, OpModInt,
		OpAndInt, OpOrInt, OpXorInt, OpShlInt, OpShrInt, OpAshrInt:
		m.execIntArith(s, instr)
	case OpAddLong, OpSubLong, OpMulLong, OpDivLong, OpModLong,
		OpAndLong, OpOrLong, OpXorLong, OpShlLong, OpShrLong, OpAshrLong:
		m.execLongArith(s, instr)
	case OpAddFloat, OpSubFloat, OpMulFloat, OpDivFloat:
		m.execFloatArith(s, instr)
	case OpAddDouble, OpSubDouble, OpMulDouble, OpDivDouble:
		m.execDoubleArith(s, instr)

	// --- tagged-integer arithmetic ---
	case OpIntAdd:
		s.SetSlot(instr.X, intAdd(s.Slot(instr.Y), s.Slot(instr.Z)))
	case OpIntSub:
		s.SetSlot(instr.X, intSub(s.Slot(instr.Y), s.Slot(instr.Z)))
	case OpIntAnd:
		s.SetSlot(instr.X, intAnd(s.Slot(instr.Y), s.Slot(instr.Z)))
	case OpIntOr:
		s.SetSlot(instr.X, intOr(s.Slot(instr.Y), s.Slot(instr.Z)))
	case OpIntXor:
		s.SetSlot(instr.X, intXor(s.Slot(instr.Y), s.Slot(instr.Z)))
	case OpIntMul:
		s.SetSlot(instr.X, intMul(s.Slot(instr.Y), s.Slot(instr.Z)))
	case OpIntDiv:
		s.SetSlot(instr.X, intDiv(s.Slot(instr.Y), s.Slot(instr.Z)))
	case OpIntShl:
		s.SetSlot(instr.X, intShl(s.Slot(instr.Y), IntPayload(s.Slot(instr.Z))))
	case OpIntShr:
		s.SetSlot(instr.X, intShr(s.Slot(instr.Y), IntPayload(s.Slot(instr.Z))))
	case OpIntAshr:
		s.SetSlot(instr.X, intAshr(s.Slot(instr.Y), IntPayload(s.Slot(instr.Z))))
	case OpIntCmp:
		s.SetSlot(instr.X, MakeInt(intCmp(s.Slot(instr.Y), s.Slot(instr.Z))))
	case OpIntNot:
		s.SetSlot(instr.X, intNot(s.Slot(instr.Y)))
	case OpIntNeg:
		s.SetSlot(instr.X, intNeg(s.Slot(instr.Y)))

	// --- raw three-way comparisons ---
	case OpCmpByteU, OpCmpByteS, OpCmpIntU, OpCmpIntS, OpCmpLongU, OpCmpLongS, OpCmpFloat, OpCmpDouble:
		m.execCompare(s, instr)

	// --- tagged-boolean REF comparisons ---
	case OpCmpEqRefByte, OpCmpEqRefInt, OpCmpEqRefLong, OpCmpEqRefFloat, OpCmpEqRefDouble,
		OpCmpLtRefByte, OpCmpLtRefInt, OpCmpLtRefLong, OpCmpLtRefFloat, OpCmpLtRefDouble:
		m.execCompareRef(s, instr)

	// --- conversions ---
	case OpConvByteToInt, OpConvByteToLong, OpConvByteToFloat, OpConvByteToDouble,
		OpConvIntToByte, OpConvIntToLong, OpConvIntToFloat, OpConvIntToDouble,
		OpConvLongToByte, OpConvLongToInt, OpConvLongToFloat, OpConvLongToDouble,
		OpConvFloatToByte, OpConvFloatToInt, OpConvFloatToLong, OpConvFloatToDouble,
		OpConvDoubleToByte, OpConvDoubleToInt, OpConvDoubleToLong, OpConvDoubleToFloat:
		m.execConvert(s, instr)

	// --- tag / detag ---
	case OpDetag:
		s.SetSlot(instr.X, Value(payloadRaw(s.Slot(instr.Y))))
	case OpTagByte:
		s.SetSlot(instr.X, MakeByte(uint8(s.Slot(instr.Y))))
	case OpTagChar:
		s.SetSlot(instr.X, MakeChar(uint8(s.Slot(instr.Y))))
	case OpTagInt:
		s.SetSlot(instr.X, MakeInt(int32(s.Slot(instr.Y))))
	case OpTagFloat:
		s.SetSlot(instr.X, MakeFloat(float32(s.Slot(instr.Y))))

	// --- sized loads/stores ---
	case OpLoad1Const, OpLoad4Const, OpLoad8Const, OpLoad1ConstVar, OpLoad4ConstVar, OpLoad8ConstVar:
		m.execLoad(s, instr)
	case OpStore1Const, OpStore4Const, OpStore8Const, OpStore1ConstVar, OpStore4ConstVar, OpStore8ConstVar:
		m.execStore(s, instr)

	// --- allocation ---
	case OpReserveLocal, OpReserveConst:
		m.execReserve(pc0, instr)
	case OpAlloc:
		m.execAlloc(s, pc0, instr)
	case OpNewStack:
		m.execNewStack(s, pc0, instr)
	case OpGC:
		if m.Traps.GC != nil {
			if err := m.Traps.GC.CollectGarbage(m, 0); err != nil {
				fatalf(pc0, instr.Op, "gc trap failed: %v", err)
			}
		}

	// --- diagnostics ---
	case OpPrintStackTrace:
		if m.Traps.Trace != nil {
			_ = m.Traps.Trace.PrintStackTrace(s)
		}
	case OpCurrentStack:
		s.SetSlot(instr.X, MakeInt(int32(m.Cur)))
	case OpFlushVM:
		if m.onFlush != nil {
			_ = m.onFlush()
		}
	case OpConsts:
		s.SetSlot(instr.X, MakeInt(int32(instr.Value)))
	case OpConstsData:
		s.SetSlot(instr.X, MakeRef(uint64(instr.Value)))

	// --- control flow ---
	case OpGoto:
		s.PC = uint32(int64(pc0) + instr.Value)
	case OpJumpSet:
		if IsTruthy(s.Slot(instr.X)) {
			s.PC = uint32(int64(pc0) + instr.Value)
		}

	case OpJumpLtByteU, OpJumpLtByteS, OpJumpLtIntU, OpJumpLtIntS,
		OpJumpLtLongU, OpJumpLtLongS, OpJumpLtFloat, OpJumpLtDouble,
		OpJumpEqByte, OpJumpEqInt, OpJumpEqLong, OpJumpEqFloat, OpJumpEqDouble:
		m.execCompareJump(s, pc0, instr)

	case OpDispatch:
		m.execDispatch(s, pc0, instr, false)
	case OpDispatchMethod:
		m.execDispatch(s, pc0, instr, true)
	case OpJumpReg:
		s.PC = uint32(IntPayload(s.Slot(instr.X)))

	case OpFnEntry:
		m.execFnEntry(s, pc0, instr)

	default:
		fatalf(pc0, instr.Op, "unimplemented opcode")
	}
}

func payloadRaw(v Value) uint64 { return uint64(v) >> valShift }

func (m *Machine) stopStack(s *Stack) {
	s.State = StackDeallocated
	if m.Cur == 0 {
		m.Halted = true
		return
	}
	// non-root stacks simply stop; a real scheduler would pick the next
	// runnable stack. This core only ever resumes a stack via YIELD, so
	// falling off a non-root stack's root frame halts the whole machine
	// too: there is no implicit scheduler.
	m.Halted = true
}

func (m *Machine) doCall(s *Stack, pc0 uint32, instr Instruction, target uint32) {
	returnPC := int64(s.PC)
	if err := s.PushCall(uint16(instr.X), returnPC); err != nil {
		if m.Traps.Stacks != nil {
			need := frameBytes(uint16(instr.X))
			if extErr := m.Traps.Stacks.ExtendStack(s, need); extErr != nil {
				fatalf(pc0, instr.Op, "call: %v (extend failed: %v)", err, extErr)
			}
			if err2 := s.PushCall(uint16(instr.X), returnPC); err2 != nil {
				fatalf(pc0, instr.Op, "call: %v", err2)
			}
		} else {
			fatalf(pc0, instr.Op, "call: %v", err)
		}
	}
	s.PC = target
}

func (m *Machine) doTCall(s *Stack, instr Instruction, target uint32) {
	if err := s.TailCall(uint16(instr.X)); err != nil {
		fatalf(s.PC, instr.Op, "tcall: %v", err)
	}
	s.PC = target
}

func (m *Machine) doCallC(s *Stack, instr Instruction) {
	if m.Traps.C == nil {
		fatalf(s.PC, instr.Op, "callc: no CLauncher wired")
	}
	faddr := uint64(instr.Value)
	window := make([]Value, 4)
	for i := range window {
		window[i] = s.Slot(instr.Y + uint16(i))
	}
	out, err := m.Traps.C.LaunchC(faddr, window)
	if err != nil {
		fatalf(s.PC, instr.Op, "callc: %v", err)
	}
	for i, v := range out {
		if i >= len(window) {
			break
		}
		s.SetSlot(instr.Y+uint16(i), v)
	}
	if instr.X != 0 && len(out) > 0 {
		s.SetSlot(instr.X, out[0])
	}
}

func (m *Machine) doYield(s *Stack, pc0 uint32, instr Instruction) {
	targetIdx := IntPayload(s.Slot(uint16(instr.Value)))
	if targetIdx < 0 || int(targetIdx) >= len(m.Stacks) {
		fatalf(pc0, instr.Op, "yield: stack index %d out of range", targetIdx)
	}
	target := m.Stacks[targetIdx]
	if target.State != StackSuspended && target != s {
		fatalf(pc0, instr.Op, "yield: target stack not suspended")
	}
	s.State = StackSuspended
	target.State = StackActive
	for i, st := range m.Stacks {
		if st == target {
			m.Cur = i
			break
		}
	}
}

func (m *Machine) execFnEntry(s *Stack, pc0 uint32, instr Instruction) {
	need := frameBytes(uint16(instr.Value))
	if uint64(s.SP)+uint64(need) > uint64(len(s.Mem)) {
		if m.Traps.Stacks == nil {
			fatalf(pc0, instr.Op, "fnentry: stack region exhausted, no StackExtender wired")
		}
		if err := m.Traps.Stacks.ExtendStack(s, need); err != nil {
			fatalf(pc0, instr.Op, "fnentry: %v", err)
		}
	}
}

func (m *Machine) execReserve(pc0 uint32, instr Instruction) {
	need := uint64(instr.Value)
	if m.Heap.Fits(need) {
		return
	}
	if m.Traps.GC == nil {
		fatalf(pc0, instr.Op, "reserve: heap exhausted, no GarbageCollector wired")
	}
	if err := m.Traps.GC.CollectGarbage(m, need); err != nil {
		fatalf(pc0, instr.Op, "reserve: gc trap failed: %v", err)
	}
	if !m.Heap.Fits(need) {
		fatalf(pc0, instr.Op, "reserve: still out of heap after gc")
	}
}

func (m *Machine) execAlloc(s *Stack, pc0 uint32, instr Instruction) {
	typeWord := uint64(s.Slot(instr.Y))
	addr, err := m.Heap.Alloc(typeWord, uint64(instr.Value))
	if err != nil {
		fatalf(pc0, instr.Op, "%v", err)
	}
	s.SetSlot(instr.X, MakeRef(addr))
}

func (m *Machine) execNewStack(s *Stack, pc0 uint32, instr Instruction) {
	const defaultStackSize = 4096
	ns, err := NewStack(defaultStackSize, uint32(instr.Value), instr.Y)
	if err != nil {
		fatalf(pc0, instr.Op, "%v", err)
	}
	ns.State = StackSuspended
	idx := m.AddStack(ns)
	// the stack index is carried as a tagged INT so YIELD and
	// CURRENT_STACK can recover it without a side table.
	s.SetSlot(instr.X, MakeInt(int32(idx)))
}

func (m *Machine) execDispatch(s *Stack, pc0 uint32, instr Instruction, method bool) {
	if m.Traps.Dispatch == nil {
		fatalf(pc0, instr.Op, "dispatch: no DispatchBrancher wired")
	}
	idxLocal := uint16(instr.Value)
	var index uint32
	if method {
		index = uint32(m.Traps.Dispatch.TypeOf(s.Slot(idxLocal)))
	} else {
		index = uint32(IntPayload(s.Slot(idxLocal)))
	}
	offset, err := m.Traps.Dispatch.DispatchBranch(index, instr.Targets)
	if err != nil {
		fatalf(pc0, instr.Op, "dispatch: %v", err)
	}
	s.PC = pc0 + offset
}

func (m *Machine) execCompareJump(s *Stack, pc0 uint32, instr Instruction) {
	n1, n2 := instr.jumpF()
	cond := m.compareJumpCond(s, instr)
	if cond {
		s.PC = uint32(int64(pc0) + int64(n1))
	} else {
		s.PC = uint32(int64(pc0) + int64(n2))
	}
}

// compareJumpCond reads its operands per the representation the Int
// family actually stores: OpJumpLtInt*/OpJumpEqInt pair with the tagged
// INT_* opcodes (numeric.go), whose payload lives in the high 32 bits,
// so they go through IntPayload rather than a raw uint32/int32 cast.
// Byte/Long/Float/Double have no tagged counterpart - those widths live
// in the Value's raw bits directly and are read as such.
func (m *Machine) compareJumpCond(s *Stack, instr Instruction) bool {
	a, b := s.Slot(instr.X), s.Slot(instr.Y)
	switch instr.Op {
	case OpJumpLtByteU:
		return uint8(a) < uint8(b)
	case OpJumpLtByteS:
		return int8(a) < int8(b)
	case OpJumpLtIntU:
		return uint32(IntPayload(a)) < uint32(IntPayload(b))
	case OpJumpLtIntS:
		return IntPayload(a) < IntPayload(b)
	case OpJumpLtLongU:
		return uint64(a) < uint64(b)
	case OpJumpLtLongS:
		return int64(a) < int64(b)
	case OpJumpLtFloat:
		return math.Float32frombits(uint32(a)) < math.Float32frombits(uint32(b))
	case OpJumpLtDouble:
		return float64FromRaw(a) < float64FromRaw(b)
	case OpJumpEqByte:
		return uint8(a) == uint8(b)
	case OpJumpEqInt:
		return IntPayload(a) == IntPayload(b)
	case OpJumpEqLong:
		return uint64(a) == uint64(b)
	case OpJumpEqFloat:
		return math.Float32frombits(uint32(a)) == math.Float32frombits(uint32(b))
	case OpJumpEqDouble:
		return float64FromRaw(a) == float64FromRaw(b)
	}
	return false
}

// float64FromRaw treats a Value's raw 64 bits as a double64 payload for
// the double-width typed-arithmetic family (no tag bits reserved, unlike
// the tagged FLOAT family - these are untagged wide scalars, distinct
// from the tagged-value family the INT_* opcodes operate on).
func float64FromRaw(v Value) float64 { return math.Float64frombits(uint64(v)) }

func makeDouble(f float64) Value { return Value(math.Float64bits(f)) }
