// Command rvm assembles and runs programs for the register/frame VM
// core in package vm. Subcommands: assemble, run, debug - plain flag-
// driven dispatch rather than a CLI framework (see DESIGN.md for why no
// cobra/urfave-cli shows up anywhere in this module).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"rvm/debugger"
	"rvm/dispatcher"
	"rvm/errs"
	"rvm/ffi"
	"rvm/gc"
	"rvm/stackext"
	"rvm/vm"
	"rvm/vmlog"
)

const (
	defaultHeapSize  = 1 << 20
	defaultStackSize = 1 << 12
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "assemble":
		err = runAssemble(os.Args[2:])
	case "run":
		err = runProgram(os.Args[2:], false)
	case "debug":
		err = runProgram(os.Args[2:], true)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: rvm <assemble|run|debug> [flags] <source.rvmasm>")
}

func runAssemble(args []string) error {
	fs := flag.NewFlagSet("assemble", flag.ExitOnError)
	out := fs.String("o", "a.out", "output file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errs.New(errs.PhaseCLI, errs.KindBadOperand).Withf("assemble requires exactly one source file").Err()
	}

	src, err := os.Open(fs.Arg(0))
	if err != nil {
		return errs.New(errs.PhaseCLI, errs.KindIO).Wrap(err).Err()
	}
	defer src.Close()

	words, err := vm.Assemble(src)
	if err != nil {
		return errs.New(errs.PhaseAssemble, errs.KindUnresolvedLabel).Wrap(err).Err()
	}

	f, err := os.Create(*out)
	if err != nil {
		return errs.New(errs.PhaseCLI, errs.KindIO).Wrap(err).Err()
	}
	defer f.Close()

	for _, w := range words {
		if err := writeWordLE(f, w); err != nil {
			return errs.New(errs.PhaseCLI, errs.KindIO).Wrap(err).Err()
		}
	}
	return nil
}

func writeWordLE(f *os.File, w uint32) error {
	var buf [4]byte
	buf[0] = byte(w)
	buf[1] = byte(w >> 8)
	buf[2] = byte(w >> 16)
	buf[3] = byte(w >> 24)
	_, err := f.Write(buf[:])
	return err
}

func runProgram(args []string, debug bool) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	heapSize := fs.Uint64("heap", defaultHeapSize, "heap size in bytes")
	stackSize := fs.Uint("stack", defaultStackSize, "initial stack region size in bytes")
	verbose := fs.Bool("v", false, "verbose logging")
	entry := fs.Uint("entry", 0, "entry function pc (word index)")
	numLocals := fs.Uint("locals", 0, "entry function local count")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errs.New(errs.PhaseCLI, errs.KindBadOperand).Withf("run requires exactly one assembled source file").Err()
	}

	if *verbose {
		if err := vmlog.SetLevel(zap.NewAtomicLevelAt(zap.DebugLevel)); err != nil {
			return err
		}
	}
	defer vmlog.Sync()

	src, err := os.Open(fs.Arg(0))
	if err != nil {
		return errs.New(errs.PhaseCLI, errs.KindIO).Wrap(err).Err()
	}
	defer src.Close()
	words, err := vm.Assemble(src)
	if err != nil {
		return errs.New(errs.PhaseAssemble, errs.KindUnresolvedLabel).Wrap(err).Err()
	}

	heap := vm.NewHeap(*heapSize)
	disp := &dispatcher.Dispatcher{Heap: heap}
	traps := vm.Traps{
		GC:       &gc.Collector{Grow: true},
		Stacks:   &stackext.Extender{},
		Dispatch: disp,
		Trace:    vmlog.Tracer{},
	}

	if launcher, err := newOptionalFFI(); err == nil && launcher != nil {
		traps.C = launcher
		defer launcher.Close()
	}

	m := vm.NewMachine(words, heap, traps)
	root, err := vm.NewStack(uint32(*stackSize), uint32(*entry), uint16(*numLocals))
	if err != nil {
		return errs.New(errs.PhaseCLI, errs.KindBadOperand).Wrap(err).Err()
	}
	m.AddStack(root)
	m.Cur = 0
	m.OnFlush(vmlog.Sync)

	if debug {
		p := tea.NewProgram(debugger.New(m))
		_, err := p.Run()
		return err
	}

	return runToHalt(m)
}

// runToHalt recovers a *vm.FatalError panic at this single top-level
// boundary: print the stack trace and exit instead of crashing with a
// raw Go panic.
func runToHalt(m *vm.Machine) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if fe, ok := r.(*vm.FatalError); ok {
				if m.Cur >= 0 && m.Cur < len(m.Stacks) {
					_ = vmlog.Tracer{}.PrintStackTrace(m.Stacks[m.Cur])
				}
				err = fe
				return
			}
			panic(r)
		}
	}()
	return m.Run()
}

// newOptionalFFI only wires a wazero-backed CLauncher when RVM_FFI_WASM
// names a guest module on disk; CALLC is otherwise left unimplemented
// for programs that never use it, rather than requiring a guest module
// for every run.
func newOptionalFFI() (*ffi.Launcher, error) {
	path := os.Getenv("RVM_FFI_WASM")
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ffi.NewLauncher(context.Background(), data, ffiExportNames())
}

func ffiExportNames() []string {
	names := os.Getenv("RVM_FFI_EXPORTS")
	if names == "" {
		return nil
	}
	return strings.Split(names, ",")
}
