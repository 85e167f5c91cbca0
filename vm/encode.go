package vm

import "fmt"

const (
	mask10 = 0x3FF
	mask18 = 0x3FFFF
	mask22 = 0x3FFFFF
	mask24 = 0xFFFFFF
)

// Encode assembles a decoded Instruction back into its wire words. It is
// the inverse of DecodeAt and is used both by the assembler (vm/assemble.go)
// and by tests asserting the decode/encode round-trip property.
func Encode(instr Instruction) ([]uint32, error) {
	format, ok := opcodeFormat[instr.Op]
	if !ok {
		return nil, fmt.Errorf("unknown opcode %d", instr.Op)
	}

	w1 := uint32(instr.Op)
	switch format {
	case FmtNone:
		return []uint32{w1}, nil
	case FmtAu:
		return []uint32{w1 | (uint32(instr.Value)&mask24)<<8}, nil
	case FmtAs:
		return []uint32{w1 | (uint32(instr.Value)&mask24)<<8}, nil
	case FmtC:
		w1 |= (uint32(instr.X) & mask10) << 8
		w1 |= (uint32(instr.Y) & mask10) << 22
		return []uint32{w1, uint32(int32(instr.Value))}, nil
	case FmtD:
		w1 |= (uint32(instr.X) & mask10) << 8
		w1 |= (uint32(instr.Y) & mask10) << 22
		v := uint64(instr.Value)
		return []uint32{w1, uint32(v), uint32(v >> 32)}, nil
	case FmtE:
		w1 |= (uint32(instr.X) & mask10) << 8
		w1 |= (uint32(instr.Y) & mask10) << 18
		w2 := uint32(instr.Z) & mask10
		w2 |= (uint32(instr.Value) & mask22) << 10
		return []uint32{w1, w2}, nil
	case FmtF:
		w1 |= (uint32(instr.X) & mask10) << 8
		w1 |= (uint32(instr.Y) & mask10) << 18
		if len(instr.Targets) != 2 {
			return nil, fmt.Errorf("format-F instruction needs exactly 2 targets (n1,n2)")
		}
		w2 := uint32(instr.Targets[0]) & mask18
		w3 := uint32(instr.Targets[1]) & mask18
		return []uint32{w1, w2, w3}, nil
	case FmtTgts:
		w1 |= (uint32(instr.Value) & mask24) << 8
		out := make([]uint32, 0, 2+len(instr.Targets))
		out = append(out, w1, uint32(len(instr.Targets)))
		out = append(out, instr.Targets...)
		return out, nil
	}

	return nil, fmt.Errorf("unhandled format for opcode %d", instr.Op)
}

// EncodeC is a convenience constructor for the common FmtC shape.
func EncodeC(op Opcode, x, y uint16, value int32) Instruction {
	return Instruction{Op: op, X: x, Y: y, Value: int64(value)}
}

// EncodeD is a convenience constructor for the FmtD (wide) shape.
func EncodeD(op Opcode, x, y uint16, value int64) Instruction {
	return Instruction{Op: op, X: x, Y: y, Value: value}
}

// EncodeE is a convenience constructor for the FmtE (3-register) shape.
func EncodeE(op Opcode, x, y, z uint16, value int32) Instruction {
	return Instruction{Op: op, X: x, Y: y, Z: z, Value: int64(value)}
}

// EncodeF is a convenience constructor for the compare-and-jump shape.
func EncodeF(op Opcode, x, y uint16, n1, n2 int32) Instruction {
	return Instruction{Op: op, X: x, Y: y, Targets: []uint32{uint32(n1), uint32(n2)}}
}

// EncodeAu/EncodeAs build the single-immediate shapes.
func EncodeAu(op Opcode, value uint32) Instruction {
	return Instruction{Op: op, Value: int64(value & mask24)}
}

func EncodeAs(op Opcode, value int32) Instruction {
	return Instruction{Op: op, Value: int64(value)}
}

// EncodeTgts builds a DISPATCH/DISPATCH_METHOD instruction.
func EncodeTgts(op Opcode, formatParam uint32, targets []uint32) Instruction {
	return Instruction{Op: op, Value: int64(formatParam), Targets: targets}
}
