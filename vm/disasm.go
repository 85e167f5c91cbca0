package vm

import (
	"fmt"
	"strings"
)

// String renders a decoded instruction in the same mnemonic syntax
// Assemble accepts.
func (instr Instruction) String() string {
	name := instr.Op.String()
	switch opcodeFormat[instr.Op] {
	case FmtNone:
		return name
	case FmtAu, FmtAs:
		return fmt.Sprintf("%s %d", name, instr.Value)
	case FmtC, FmtD:
		return fmt.Sprintf("%s %%%d, %%%d, %d", name, instr.X, instr.Y, instr.Value)
	case FmtE:
		return fmt.Sprintf("%s %%%d, %%%d, %%%d, %d", name, instr.X, instr.Y, instr.Z, instr.Value)
	case FmtF:
		n1, n2 := instr.jumpF()
		return fmt.Sprintf("%s %%%d, %%%d, %d, %d", name, instr.X, instr.Y, n1, n2)
	case FmtTgts:
		parts := []string{fmt.Sprintf("%s %d", name, instr.Value)}
		for _, t := range instr.Targets {
			parts = append(parts, fmt.Sprint(t))
		}
		return strings.Join(parts, ", ")
	}
	return name
}

// Disassemble decodes words from start to end (word indices) and
// returns one formatted line per instruction, prefixed with its word
// address - the backing for the debugger TUI's code pane.
func Disassemble(words []uint32, start, end uint32) ([]string, error) {
	var lines []string
	pc := start
	for pc < end {
		instr, err := DecodeAt(words, pc)
		if err != nil {
			return lines, err
		}
		lines = append(lines, fmt.Sprintf("%06d  %s", pc, instr.String()))
		pc += instr.Words
	}
	return lines, nil
}
