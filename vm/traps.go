package vm

// Traps are the synchronous, recoverable excursions the interpreter
// makes into external collaborators. Each is a plain Go interface so
// gc, stackext, ffi and dispatcher can each provide a concrete
// implementation without vm importing any of them.

// GarbageCollector backs RESERVE's trap when Heap.Fits fails. It must
// return a heap with at least n free bytes at Top, given the current
// stacks so it can trace liveness_map roots across all active frames.
type GarbageCollector interface {
	CollectGarbage(m *Machine, need uint64) error
}

// StackExtender backs the trap a Stack's PushCall takes when its frame
// region is full. It must return a stack whose Mem can hold at least an
// additional `need` bytes, preserving SP/PC/State and existing frame
// contents.
type StackExtender interface {
	ExtendStack(s *Stack, need uint32) error
}

// CLauncher backs CALLC/CALLC_ADDR: a foreign-function call by address,
// passing a fixed register window and returning its updated contents.
type CLauncher interface {
	LaunchC(faddr uint64, registers []Value) ([]Value, error)
}

// DispatchBrancher backs DISPATCH/DISPATCH_METHOD: given an index and
// the instruction's target table, resolve the word offset, relative to
// the instruction's pc0, at which execution continues. The interpreter
// never reads the result as a function id, for DISPATCH_METHOD either.
// Also backs TYPEOF-style marker lookups
// used to pick a method-dispatch entry from a REF's stored type tag.
type DispatchBrancher interface {
	DispatchBranch(index uint32, targets []uint32) (uint32, error)
	TypeOf(v Value) uint8
}

// StackTracePrinter backs PRINT_STACK_TRACE: render diagnostic state for
// the given stack's active frame to wherever diagnostics go (vmlog by
// default, see vm.Machine.Traps wiring in main.go).
type StackTracePrinter interface {
	PrintStackTrace(s *Stack) error
}

// Traps bundles every external collaborator a Machine may call out to.
// A nil field simply means the program under test never exercises that
// trap (RESERVE/CALL-overflow/FNENTRY/CALLC/DISPATCH each fatal with a
// clear message if hit with no collaborator wired, while PRINT_STACK_TRACE,
// DUMP and GC do nothing); main.go wires
// the gc/stackext/ffi/dispatcher packages in here for a full run.
type Traps struct {
	GC       GarbageCollector
	Stacks   StackExtender
	C        CLauncher
	Dispatch DispatchBrancher
	Trace    StackTracePrinter
}
