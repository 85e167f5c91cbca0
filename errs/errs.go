// Package errs provides the structured error type of the CLI (main.go),
// which wraps flag, I/O and assembler failures in it. The assembler
// itself and the trap implementations (gc, stackext, ffi, dispatcher)
// return plain Go errors. The
// interpreter's own fatal path (vm.FatalError) is deliberately not an
// errs.Error - it panics and is recovered once at the process boundary,
// never returned up a call chain.
package errs

import "fmt"

// Phase identifies which stage of the pipeline produced the error.
type Phase string

const (
	PhaseDecode    Phase = "decode"
	PhaseDispatch  Phase = "dispatch"
	PhaseTrap      Phase = "trap"
	PhaseAssemble  Phase = "assemble"
	PhaseFFI       Phase = "ffi"
	PhaseCLI       Phase = "cli"
)

// Kind narrows down what went wrong within a Phase.
type Kind string

const (
	KindInvalidOpcode   Kind = "invalid_opcode"
	KindRemovedOpcode   Kind = "removed_opcode"
	KindOutOfBounds     Kind = "out_of_bounds"
	KindUnresolvedLabel Kind = "unresolved_label"
	KindBadOperand      Kind = "bad_operand"
	KindIO              Kind = "io"
	KindWASM            Kind = "wasm"
)

// Error is a structured, wrapped error carrying a Phase/Kind pair plus
// free-form context.
type Error struct {
	Phase   Phase
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s/%s: %s: %v", e.Phase, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s/%s: %s", e.Phase, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Builder assembles an Error fluently, e.g.
// errs.New(errs.PhaseAssemble, errs.KindUnresolvedLabel).Withf("label %q", name).Err()
type Builder struct {
	e Error
}

func New(phase Phase, kind Kind) *Builder {
	return &Builder{e: Error{Phase: phase, Kind: kind}}
}

func (b *Builder) Withf(format string, args ...any) *Builder {
	b.e.Message = fmt.Sprintf(format, args...)
	return b
}

func (b *Builder) Wrap(err error) *Builder {
	b.e.Cause = err
	return b
}

func (b *Builder) Err() *Error {
	e := b.e
	return &e
}
