package vm

import "fmt"

// Heap is a bump allocator over a fixed byte region: ALLOC is an
// unchecked bump, RESERVE is the bounds-checked fast path that traps out
// to an external collector when there isn't enough room. Top/Limit are
// tracked as plain offsets into Mem rather than raw pointers.
type Heap struct {
	Mem   []byte
	Top   uint64 // first free byte
	Limit uint64 // end of the currently usable region (<= len(Mem))
}

// NewHeap allocates a heap region of the given size with the whole
// region initially usable.
func NewHeap(size uint64) *Heap {
	return &Heap{Mem: make([]byte, size), Top: 0, Limit: size}
}

// typeHeaderBytes is the fixed 8-byte type-header every heap object
// carries ahead of its user data: user data begins at addr+8.
const typeHeaderBytes = 8

// Fits reports whether n bytes (object header included) can be bump
// allocated without crossing Limit. RESERVE consults this before ALLOC
// ever runs, trapping out to an external collector when it does not.
func (h *Heap) Fits(n uint64) bool {
	return h.Top+n <= h.Limit
}

// Alloc is the unchecked bump allocation primitive backing the ALLOC
// opcode: advance Top by the 8-byte type header plus n bytes of user data,
// write typeWord into the header, and return the address of the object's
// type header. Callers must have already satisfied Fits via RESERVE;
// Alloc itself never traps.
func (h *Heap) Alloc(typeWord uint64, n uint64) (uint64, error) {
	total := typeHeaderBytes + n
	if h.Top+total > uint64(len(h.Mem)) {
		return 0, fmt.Errorf("alloc: heap region exhausted (need %d bytes at offset %d)", total, h.Top)
	}
	addr := h.Top
	putU64(h.Mem[addr:], typeWord)
	h.Top += total
	return addr, nil
}

// TypeHeaderAt reads the type-header word of the object at headerAddr.
func (h *Heap) TypeHeaderAt(headerAddr uint64) uint64 {
	return getU64(h.Mem[headerAddr:])
}

// Grow widens the usable region after an external collector compacts or
// extends backing storage, e.g. returning a larger Mem slice. It never
// shrinks Limit below Top.
func (h *Heap) Grow(newMem []byte, newTop, newLimit uint64) {
	h.Mem = newMem
	h.Top = newTop
	if newLimit < newTop {
		newLimit = newTop
	}
	h.Limit = newLimit
}

// ReadU8/ReadU32/ReadU64 and the matching Write* helpers implement the
// sized LOAD*/STORE* opcode family: address is always relative to Mem,
// already resolved from a REF's data address by the caller.
func (h *Heap) ReadU8(addr uint64) uint8 { return h.Mem[addr] }

func (h *Heap) WriteU8(addr uint64, v uint8) { h.Mem[addr] = v }

func (h *Heap) ReadU32(addr uint64) uint32 {
	b := h.Mem[addr:]
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func (h *Heap) WriteU32(addr uint64, v uint32) {
	b := h.Mem[addr:]
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func (h *Heap) ReadU64(addr uint64) uint64 { return getU64(h.Mem[addr:]) }

func (h *Heap) WriteU64(addr uint64, v uint64) { putU64(h.Mem[addr:], v) }
