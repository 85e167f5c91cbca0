package vmlog

import (
	"go.uber.org/zap"

	"rvm/vm"
)

// Tracer implements vm.StackTracePrinter by logging the active frame at
// Info level: its PC, return-PC and liveness map. A frame only records
// its own size, not its caller's, so unwinding the full chain from a
// single suspended snapshot isn't possible without the interpreter's own
// live call-depth bookkeeping; PRINT_STACK_TRACE is a diagnostic, not a
// debugger backend, so this reports the frame currently executing
// rather than reconstructing ancestors.
type Tracer struct{}

// PrintStackTrace implements vm.StackTracePrinter.
func (Tracer) PrintStackTrace(s *vm.Stack) error {
	L().Info("stack frame",
		zap.Uint32("sp", s.SP),
		zap.Uint32("pc", s.PC),
		zap.Int64("returnpc", s.CurrentReturnPC()),
		zap.Uint16("num_locals", s.CurrentNumLocals()),
		zap.Uint64("liveness_map", s.CurrentLivenessMap()),
		zap.String("state", s.State.String()),
	)
	return nil
}
