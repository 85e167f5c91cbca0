// Package gc is a reference GarbageCollector trap implementation: a
// straightforward semispace copying collector. It deliberately stops at
// copying-collector basics, not generational/concurrent/incremental
// collection - it exists only so a program can actually run to
// completion once its heap fills, exercising the RESERVE trap contract
// end-to-end.
package gc

import (
	"fmt"

	"go.uber.org/zap"

	"rvm/vm"
	"rvm/vmlog"
)

// Collector copies live objects out of the active semispace into a
// fresh one (of the same size, or double it when Grow applies), tracing
// roots from the current frame's liveness_map of every stack the Machine
// owns; older frames are not scanned.
type Collector struct {
	// Grow doubles the heap's total capacity when, before collecting,
	// Top plus the requested bytes exceeds half of it.
	Grow bool
}

// CollectGarbage implements vm.GarbageCollector.
func (c *Collector) CollectGarbage(m *vm.Machine, need uint64) error {
	h := m.Heap
	vmlog.L().Debug("gc: collection started", zap.Uint64("need", need), zap.Uint64("top", h.Top))

	newSize := uint64(len(h.Mem))
	if c.Grow && h.Top+need > newSize/2 {
		newSize *= 2
	}
	to := make([]byte, newSize)

	roots := collectRoots(m)
	copied := copyRoots(h, to, roots)

	h.Grow(to, copied, newSize)
	vmlog.L().Debug("gc: collection finished", zap.Uint64("newTop", h.Top), zap.Uint64("newLimit", h.Limit))

	if !h.Fits(need) {
		return fmt.Errorf("gc: still %d bytes short after collection", need-(h.Limit-h.Top))
	}
	return nil
}

// root identifies one GC-root slot: a frame's local i on stack st, holding
// a REF at the time collection started. Keeping the slot location (not
// just its value) is what lets copyRoots patch the REF to its new address
// once the object has moved, the step a semispace collector calls
// "fixing up the root set".
type root struct {
	st *vm.Stack
	i  uint16
}

// collectRoots walks every live stack's current frame and gathers every
// slot marked live in that frame's liveness_map that holds a REF.
func collectRoots(m *vm.Machine) []root {
	var roots []root
	for _, st := range m.Stacks {
		if st.State == vm.StackDeallocated {
			continue
		}
		bits := st.CurrentLivenessMap()
		n := st.CurrentNumLocals()
		for i := uint16(0); i < n && i < 64; i++ {
			if bits&(1<<i) == 0 {
				continue
			}
			if vm.TagOf(st.Slot(i)) == vm.TagRef {
				roots = append(roots, root{st: st, i: i})
			}
		}
	}
	return roots
}

// copyRoots performs a shallow copy of every live object's header+data
// into the new space and rewrites each root slot to the object's new
// address. A full semispace collector would also trace through each
// object's own REF fields (its "scan" phase) so objects reachable only
// through another object survive too; this reference implementation
// copies exactly the roots it was told about, which is sufficient for the
// single-level liveness_map this core exposes and keeps the trap contract
// easy to test.
func copyRoots(from *vm.Heap, to []byte, roots []root) uint64 {
	var top uint64
	for _, r := range roots {
		old := vm.RefHeaderAddr(r.st.Slot(r.i))
		// object size is not tracked separately in this reference
		// collector; copy a conservative fixed window following the
		// type header so simple fixed-size objects survive collection.
		const window = 64
		end := old + window
		if int(end) > len(from.Mem) {
			end = uint64(len(from.Mem))
		}
		newAddr := top
		n := copy(to[top:], from.Mem[old:end])
		top += uint64(n)
		r.st.SetSlot(r.i, vm.MakeRef(newAddr))
	}
	return top
}
