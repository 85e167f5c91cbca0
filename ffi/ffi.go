// Package ffi backs the CALLC trap with a real, runnable implementation:
// instead of a host C ABI (out of scope - host/architecture specific),
// CALLC addresses are treated as exported function indices into a
// WebAssembly guest module, instantiated and called through wazero
// (wazero.NewRuntime, mod.ExportedFunction).
package ffi

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"rvm/vm"
)

// Launcher instantiates a single WASM guest module and dispatches CALLC
// requests to its exported functions by ordinal.
type Launcher struct {
	ctx     context.Context
	runtime wazero.Runtime
	mod     api.Module
	exports []api.Function
}

// NewLauncher compiles and instantiates guestWasm, collecting its
// exported functions into a stable, index-addressable table so CALLC's
// faddr operand can select one directly.
func NewLauncher(ctx context.Context, guestWasm []byte, names []string) (*Launcher, error) {
	rt := wazero.NewRuntime(ctx)
	mod, err := rt.Instantiate(ctx, guestWasm)
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("ffi: instantiate guest module: %w", err)
	}

	exports := make([]api.Function, 0, len(names))
	for _, name := range names {
		fn := mod.ExportedFunction(name)
		if fn == nil {
			rt.Close(ctx)
			return nil, fmt.Errorf("ffi: guest module has no exported function %q", name)
		}
		exports = append(exports, fn)
	}

	return &Launcher{ctx: ctx, runtime: rt, mod: mod, exports: exports}, nil
}

// LaunchC implements vm.CLauncher. faddr indexes into the exports table
// built at NewLauncher time; registers are marshalled to raw uint64 WASM
// arguments and the results come back the same way, left for the caller
// to re-tag.
func (l *Launcher) LaunchC(faddr uint64, registers []vm.Value) ([]vm.Value, error) {
	if int(faddr) >= len(l.exports) {
		return nil, fmt.Errorf("ffi: faddr %d out of range (%d exports)", faddr, len(l.exports))
	}
	fn := l.exports[faddr]

	args := make([]uint64, len(registers))
	for i, r := range registers {
		args[i] = r.Raw()
	}

	results, err := fn.Call(l.ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("ffi: guest call failed: %w", err)
	}

	out := make([]vm.Value, len(results))
	for i, r := range results {
		out[i] = vm.Value(r)
	}
	return out, nil
}

// Close releases the wazero runtime and its guest module.
func (l *Launcher) Close() error {
	return l.runtime.Close(l.ctx)
}
