// Package dispatcher is a reference DispatchBrancher: it answers
// DISPATCH/DISPATCH_METHOD by indexing directly into the instruction's
// own target table, and answers TypeOf by reading a Value's tag (and,
// for REF values, the marker stored in the object's type header). Branch
// resolution is left to this external collaborator; this is the minimum
// implementation that lets a runnable CLI answer it.
package dispatcher

import (
	"fmt"

	"rvm/vm"
)

// Dispatcher implements vm.DispatchBrancher.
type Dispatcher struct {
	Heap *vm.Heap
}

// DispatchBranch returns targets[index] unchanged; an out-of-range index
// returns an error, which the interpreter's DISPATCH/DISPATCH_METHOD turn
// into a *vm.FatalError.
func (d *Dispatcher) DispatchBranch(index uint32, targets []uint32) (uint32, error) {
	if int(index) >= len(targets) {
		return 0, fmt.Errorf("dispatcher: index %d out of range (%d targets)", index, len(targets))
	}
	return targets[index], nil
}

// TypeOf reports the MARKER type-id matching a Value's tag. REF values
// report the type word stored in the object's heap header if a Heap is
// wired, otherwise MarkerTypeType as a placeholder "this is some
// reference" answer.
func (d *Dispatcher) TypeOf(v vm.Value) uint8 {
	switch vm.TagOf(v) {
	case vm.TagInt:
		return vm.MarkerIntType
	case vm.TagByte:
		return vm.MarkerByteType
	case vm.TagChar:
		return vm.MarkerCharType
	case vm.TagFloat:
		return vm.MarkerFloatType
	case vm.TagMark:
		return vm.MarkerPayload(v)
	case vm.TagRef:
		if d.Heap != nil {
			return uint8(d.Heap.TypeHeaderAt(vm.RefHeaderAddr(v)))
		}
		return vm.MarkerTypeType
	default:
		return vm.MarkerTypeType
	}
}
