package vm

import "fmt"

// Frame header layout: returnpc + liveness_map + numLocals + slots[N].
// numLocals is carried in the frame header itself so a frame can size
// and pop itself without an auxiliary call-depth stack (see DESIGN.md,
// "frame header width"). returnpc and numLocals are stored as raw words
// and interpreted per-use: returnpc as signed (negative marks the root
// frame), numLocals as unsigned.
const (
	frameReturnPCOff   = 0
	frameLivenessOff   = 8
	frameNumLocalsOff  = 16
	frameSlotsOff      = 24
	frameHeaderBytes   = 24
	slotBytes          = 8
	rootReturnPCMarker = -1
)

// StackState is the lifecycle of a Stack object.
type StackState uint8

const (
	StackActive StackState = iota
	StackSuspended
	StackDeallocated
)

func (s StackState) String() string {
	switch s {
	case StackActive:
		return "active"
	case StackSuspended:
		return "suspended"
	case StackDeallocated:
		return "deallocated"
	default:
		return "?"
	}
}

// Stack is a coroutine-style execution stack: a heap-resident header
// (tracked by the owning VM's heap objects, not here) plus an externally
// malloc'd frame region, its size, stack pointer, PC and lifecycle
// state.
type Stack struct {
	Mem   []byte
	SP    uint32
	PC    uint32
	State StackState
}

// NewStack allocates a Stack object with a fixed-size frame region and
// sets up its root frame: returnpc = -1 (root-frame sentinel),
// liveness_map = 0, pc at the entry function's first word. numLocals
// sizes the root frame for the entry function's own locals, since
// nothing else pushes a frame for it.
func NewStack(size uint32, entryPC uint32, numLocals uint16) (*Stack, error) {
	need := uint32(frameHeaderBytes) + uint32(numLocals)*slotBytes
	if need > size {
		return nil, fmt.Errorf("new_stack: entry frame (%d bytes) exceeds stack region (%d bytes)", need, size)
	}
	s := &Stack{Mem: make([]byte, size), SP: 0, PC: entryPC, State: StackActive}
	s.initFrame(0, rootReturnPCMarker, 0, numLocals)
	return s, nil
}

func (s *Stack) initFrame(off uint32, returnPC int64, livenessMap uint64, numLocals uint16) {
	putU64(s.Mem[off+frameReturnPCOff:], uint64(returnPC))
	putU64(s.Mem[off+frameLivenessOff:], livenessMap)
	putU64(s.Mem[off+frameNumLocalsOff:], uint64(numLocals))
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

// frameBytes computes the total size in bytes of a frame with n locals.
func frameBytes(n uint16) uint32 { return frameHeaderBytes + uint32(n)*slotBytes }

// CurrentReturnPC reads the active frame's returnpc field. A negative
// value marks the root frame.
func (s *Stack) CurrentReturnPC() int64 {
	return int64(getU64(s.Mem[s.SP+frameReturnPCOff:]))
}

func (s *Stack) setReturnPC(v int64) {
	putU64(s.Mem[s.SP+frameReturnPCOff:], uint64(v))
}

// CurrentLivenessMap reads the active frame's GC-roots bitmap.
func (s *Stack) CurrentLivenessMap() uint64 {
	return getU64(s.Mem[s.SP+frameLivenessOff:])
}

// SetLivenessMap overwrites the active frame's GC-roots bitmap; this is
// the LIVE opcode's entire effect.
func (s *Stack) SetLivenessMap(bits uint64) {
	putU64(s.Mem[s.SP+frameLivenessOff:], bits)
}

// CurrentNumLocals reads how many slots the active frame reserves.
func (s *Stack) CurrentNumLocals() uint16 {
	return uint16(getU64(s.Mem[s.SP+frameNumLocalsOff:]))
}

func (s *Stack) setNumLocals(n uint16) {
	putU64(s.Mem[s.SP+frameNumLocalsOff:], uint64(n))
}

// Slot reads local i of the active frame, tagged value included.
func (s *Stack) Slot(i uint16) Value {
	off := s.SP + frameSlotsOff + uint32(i)*slotBytes
	return Value(getU64(s.Mem[off:]))
}

// SetSlot writes local i of the active frame.
func (s *Stack) SetSlot(i uint16, v Value) {
	off := s.SP + frameSlotsOff + uint32(i)*slotBytes
	putU64(s.Mem[off:], uint64(v))
}

// PushCall allocates a new frame directly after the active one and makes
// it current: the stack pointer advances by the size of the frame being
// pushed - frameBytes(calleeNumLocals), the CALL operand - and a fresh
// frame of that many slots is initialized there. returnPC is the word
// index execution resumes at once the callee returns. PopFrame must be
// given this same calleeNumLocals to invert the bump exactly.
func (s *Stack) PushCall(calleeNumLocals uint16, returnPC int64) error {
	need := frameBytes(calleeNumLocals)
	newSP := s.SP + need
	if uint64(newSP)+uint64(need) > uint64(len(s.Mem)) {
		return fmt.Errorf("call: stack region exhausted (need %d more bytes at offset %d)", need, newSP)
	}
	s.SP = newSP
	s.initFrame(s.SP, returnPC, 0, calleeNumLocals)
	return nil
}

// TailCall reuses the active frame for a different function's locals
// instead of pushing a new one. The frame's own numLocals is repointed
// at the callee's so subsequent LIVE/slot access and the eventual
// POP_FRAME see the right size.
func (s *Stack) TailCall(calleeNumLocals uint16) error {
	need := frameBytes(calleeNumLocals)
	if uint64(s.SP)+uint64(need) > uint64(len(s.Mem)) {
		return fmt.Errorf("tcall: stack region too small for callee frame (%d bytes)", need)
	}
	s.setNumLocals(calleeNumLocals)
	s.SetLivenessMap(0)
	return nil
}

// PopFrame shrinks the stack by the frame size implied by numLocals,
// matching the operand the pairing CALL/PushCall used. It does not touch
// PC; RETURN (or the caller code immediately after CALL) is responsible
// for that.
func (s *Stack) PopFrame(numLocals uint16) error {
	size := frameBytes(numLocals)
	if size > s.SP {
		return fmt.Errorf("pop_frame: would underflow stack region (size %d, sp %d)", size, s.SP)
	}
	s.SP -= size
	return nil
}

// IsRootFrame reports whether the active frame is a stack's root frame
// (returnpc < 0), the RETURN opcode's stop condition.
func (s *Stack) IsRootFrame() bool { return s.CurrentReturnPC() < 0 }
