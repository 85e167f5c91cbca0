package vm

import "testing"

func TestHeapAllocBumpsTop(t *testing.T) {
	h := NewHeap(256)
	addr, err := h.Alloc(0xAB, 16)
	if err != nil {
		t.Fatal(err)
	}
	if addr != 0 {
		t.Fatalf("first alloc address = %d, want 0", addr)
	}
	if h.Top != 8+16 {
		t.Fatalf("heap top = %d, want %d", h.Top, 8+16)
	}
	if h.TypeHeaderAt(addr) != 0xAB {
		t.Fatalf("type header = %d, want 0xAB", h.TypeHeaderAt(addr))
	}
}

func TestHeapFitsRespectsLimit(t *testing.T) {
	h := NewHeap(64)
	h.Limit = 32
	if !h.Fits(32) {
		t.Fatal("should fit exactly up to Limit")
	}
	if h.Fits(33) {
		t.Fatal("should not fit past Limit")
	}
}

func TestHeapReserveTrapContract(t *testing.T) {
	h := NewHeap(64)
	h.Limit = h.Top // simulate heap_limit == heap_top: RESERVE must trap
	if h.Fits(1) {
		t.Fatal("heap_limit == heap_top should never fit a nonzero request")
	}
}

func TestHeapSizedLoadStore(t *testing.T) {
	h := NewHeap(64)
	h.WriteU8(0, 0xFF)
	h.WriteU32(8, 0xDEADBEEF)
	h.WriteU64(16, 0x0102030405060708)

	if got := h.ReadU8(0); got != 0xFF {
		t.Fatalf("ReadU8 = %x", got)
	}
	if got := h.ReadU32(8); got != 0xDEADBEEF {
		t.Fatalf("ReadU32 = %x", got)
	}
	if got := h.ReadU64(16); got != 0x0102030405060708 {
		t.Fatalf("ReadU64 = %x", got)
	}
}

func TestHeapGrow(t *testing.T) {
	h := NewHeap(16)
	bigger := make([]byte, 128)
	h.Grow(bigger, 4, 128)
	if len(h.Mem) != 128 || h.Top != 4 || h.Limit != 128 {
		t.Fatalf("Grow did not update fields: %+v", h)
	}
}
