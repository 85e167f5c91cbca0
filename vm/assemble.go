package vm

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Assemble turns a line-oriented mnemonic program into a word stream
// using a two-pass label-resolving assembler: a first pass records each
// label's word address, a second pass encodes instructions and resolves
// branch targets against that table.
//
// Syntax, one instruction per line:
//
//	label:
//	mnemonic arg1, arg2, ...
//
// Arguments are decimal integers, %N register slot references used
// as-is, or @label which resolves to a signed word-offset from the
// instruction using it (for GOTO/JUMP_SET/JUMP_LT*/JUMP_EQ*/DISPATCH*).
// Comments start with ';' or '#' and run to end of line.
func Assemble(r io.Reader) ([]uint32, error) {
	lines, err := splitLines(r)
	if err != nil {
		return nil, err
	}

	labels := map[string]uint32{}
	type pending struct {
		instr   instrSource
		wordPos uint32
	}
	var insns []pending
	var wordPos uint32

	for lineNo, raw := range lines {
		line := stripComment(raw)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasSuffix(line, ":") {
			labels[strings.TrimSuffix(line, ":")] = wordPos
			continue
		}
		src, err := parseInstrSource(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo+1, err)
		}
		insns = append(insns, pending{instr: src, wordPos: wordPos})
		wordPos += wordsFor(src)
	}

	var out []uint32
	for _, p := range insns {
		instr, err := resolve(p.instr, p.wordPos, labels)
		if err != nil {
			return nil, err
		}
		words, err := Encode(instr)
		if err != nil {
			return nil, fmt.Errorf("encoding %q: %w", p.instr.mnemonic, err)
		}
		out = append(out, words...)
	}
	return out, nil
}

type instrSource struct {
	mnemonic string
	args     []string
}

func splitLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func stripComment(line string) string {
	if i := strings.IndexAny(line, ";#"); i >= 0 {
		return line[:i]
	}
	return line
}

func parseInstrSource(line string) (instrSource, error) {
	fields := strings.SplitN(line, " ", 2)
	mnemonic := fields[0]
	var args []string
	if len(fields) == 2 {
		for _, a := range strings.Split(fields[1], ",") {
			a = strings.TrimSpace(a)
			if a != "" {
				args = append(args, a)
			}
		}
	}
	return instrSource{mnemonic: mnemonic, args: args}, nil
}

func mnemonicToOp(mn string) (Opcode, bool) {
	for op, name := range opcodeNames {
		if name == mn {
			return op, true
		}
	}
	return 0, false
}

// wordsFor predicts an instruction's word count before label resolution,
// so the assembler's first pass can fix label addresses. Only FmtTgts
// has a variable length (driven by its own target-count argument), so
// every other format is a constant lookup.
func wordsFor(src instrSource) uint32 {
	op, ok := mnemonicToOp(src.mnemonic)
	if !ok {
		return 1
	}
	switch opcodeFormat[op] {
	case FmtNone, FmtAu, FmtAs:
		return 1
	case FmtC, FmtE:
		return 2
	case FmtD, FmtF:
		return 3
	case FmtTgts:
		return 2 + uint32(len(src.args)-1)
	}
	return 1
}

func resolve(src instrSource, pc0 uint32, labels map[string]uint32) (Instruction, error) {
	op, ok := mnemonicToOp(src.mnemonic)
	if !ok {
		return Instruction{}, fmt.Errorf("unknown mnemonic %q", src.mnemonic)
	}

	resolveArg := func(a string) (int64, error) {
		if strings.HasPrefix(a, "@") {
			name := a[1:]
			target, ok := labels[name]
			if !ok {
				return 0, fmt.Errorf("unresolved label %q", name)
			}
			return int64(int32(target) - int32(pc0)), nil
		}
		if strings.HasPrefix(a, "%") {
			n, err := strconv.ParseInt(a[1:], 10, 32)
			return n, err
		}
		return strconv.ParseInt(a, 0, 64)
	}

	args := make([]int64, len(src.args))
	for i, a := range src.args {
		v, err := resolveArg(a)
		if err != nil {
			return Instruction{}, fmt.Errorf("%s: arg %d (%q): %w", src.mnemonic, i, a, err)
		}
		args[i] = v
	}

	instr := Instruction{Op: op}
	switch opcodeFormat[op] {
	case FmtNone:
	case FmtAu:
		instr.Value = args[0]
	case FmtAs:
		instr.Value = args[0]
	case FmtC:
		instr.X, instr.Y = arg16(args, 0), arg16(args, 1)
		if len(args) > 2 {
			instr.Value = args[2]
		}
	case FmtD:
		instr.X, instr.Y = arg16(args, 0), arg16(args, 1)
		if len(args) > 2 {
			instr.Value = args[2]
		}
	case FmtE:
		instr.X, instr.Y, instr.Z = arg16(args, 0), arg16(args, 1), arg16(args, 2)
		if len(args) > 3 {
			instr.Value = args[3]
		}
	case FmtF:
		instr.X, instr.Y = arg16(args, 0), arg16(args, 1)
		if len(args) > 3 {
			instr.Targets = []uint32{uint32(args[2]), uint32(args[3])}
		}
	case FmtTgts:
		if len(args) > 0 {
			instr.Value = args[0]
		}
		targets := make([]uint32, 0, len(args)-1)
		for _, v := range args[1:] {
			targets = append(targets, uint32(v))
		}
		instr.Targets = targets
	}
	return instr, nil
}

func arg16(args []int64, i int) uint16 {
	if i >= len(args) {
		return 0
	}
	return uint16(args[i])
}
