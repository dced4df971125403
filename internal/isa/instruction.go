// Package isa defines the accelerator's 64-bit instruction word.
//
// Word layout:
//
//	bits 59-63: opcode
//	bits 54-58: destination buffer id
//	bits 44-53: length (LOAD_V/STORE/RELU) or cols (LOAD_M/GEMV)
//	bits 34-43: rows (LOAD_M/GEMV)
//	bits 10-33: byte address (LOAD_V/LOAD_M/STORE)
//	bits 10-14: bias buffer id (GEMV)
//	bits 5-9:   x buffer id (GEMV/RELU)
//	bits 0-4:   w buffer id (GEMV)
//
// The address field and the buffer-id fields overlap; which group is live
// depends on the opcode. Memory-movement opcodes never carry buffer-id
// operands and GEMV never carries an address, so the overlap is harmless.
package isa

import "fmt"

// Opcode selects the operation encoded in an instruction word.
type Opcode uint8

const (
	OpHalt  Opcode = 0x00
	OpLoadV Opcode = 0x01
	OpLoadM Opcode = 0x02
	OpStore Opcode = 0x03
	OpGemv  Opcode = 0x04
	OpRelu  Opcode = 0x05
)

// Field widths and shifts for the packed word.
const (
	opcodeShift = 59
	destShift   = 54
	lengthShift = 44
	rowsShift   = 34
	addrShift   = 10
	biasShift   = 10
	xShift      = 5
	wShift      = 0

	idMask     = 0x1F     // 5 bits
	lengthMask = 0x3FF    // 10 bits
	addrMask   = 0xFFFFFF // 24 bits
)

// String returns the opcode mnemonic.
func (op Opcode) String() string {
	switch op {
	case OpHalt:
		return "HALT"
	case OpLoadV:
		return "LOAD_V"
	case OpLoadM:
		return "LOAD_M"
	case OpStore:
		return "STORE"
	case OpGemv:
		return "GEMV"
	case OpRelu:
		return "RELU"
	}
	return fmt.Sprintf("OP_%02X", uint8(op))
}

// Instruction is the decoded form of one 64-bit word.
type Instruction struct {
	Op     Opcode
	Dest   uint8  // destination buffer id
	Length uint16 // element count, or cols for LOAD_M/GEMV
	Rows   uint16
	Addr   uint32 // byte address for LOAD_V/LOAD_M/STORE
	BiasID uint8
	XID    uint8
	WID    uint8
}

// Decode unpacks a 64-bit instruction word. Both the address field and the
// buffer-id fields are extracted; the executor reads whichever group the
// opcode defines.
func Decode(word uint64) Instruction {
	return Instruction{
		Op:     Opcode(word >> opcodeShift & idMask),
		Dest:   uint8(word >> destShift & idMask),
		Length: uint16(word >> lengthShift & lengthMask),
		Rows:   uint16(word >> rowsShift & lengthMask),
		Addr:   uint32(word >> addrShift & addrMask),
		BiasID: uint8(word >> biasShift & idMask),
		XID:    uint8(word >> xShift & idMask),
		WID:    uint8(word >> wShift & idMask),
	}
}

// Encode packs the instruction back into a 64-bit word. For memory-movement
// opcodes the address field wins the overlapping low bits; for everything
// else the buffer-id fields do.
func (in Instruction) Encode() uint64 {
	word := uint64(in.Op&idMask)<<opcodeShift |
		uint64(in.Dest&idMask)<<destShift |
		uint64(in.Length&lengthMask)<<lengthShift |
		uint64(in.Rows&lengthMask)<<rowsShift

	switch in.Op {
	case OpLoadV, OpLoadM, OpStore:
		word |= uint64(in.Addr&addrMask) << addrShift
	default:
		word |= uint64(in.BiasID&idMask)<<biasShift |
			uint64(in.XID&idMask)<<xShift |
			uint64(in.WID&idMask)<<wShift
	}
	return word
}

// String renders a one-line disassembly of the instruction.
func (in Instruction) String() string {
	switch in.Op {
	case OpHalt:
		return "HALT"
	case OpLoadV:
		return fmt.Sprintf("LOAD_V buf%d, len=%d, addr=0x%06X", in.Dest, in.Length, in.Addr)
	case OpLoadM:
		return fmt.Sprintf("LOAD_M buf%d, cols=%d, rows=%d, addr=0x%06X", in.Dest, in.Length, in.Rows, in.Addr)
	case OpStore:
		return fmt.Sprintf("STORE buf%d, len=%d, addr=0x%06X", in.Dest, in.Length, in.Addr)
	case OpGemv:
		return fmt.Sprintf("GEMV buf%d, cols=%d, rows=%d, b=buf%d, x=buf%d, w=buf%d",
			in.Dest, in.Length, in.Rows, in.BiasID, in.XID, in.WID)
	case OpRelu:
		return fmt.Sprintf("RELU buf%d, len=%d, x=buf%d", in.Dest, in.Length, in.XID)
	}
	return fmt.Sprintf("%s dest=%d len=%d rows=%d", in.Op, in.Dest, in.Length, in.Rows)
}

// Helper constructors used by tests and program builders.

// LoadV builds a LOAD_V instruction.
func LoadV(dest uint8, length uint16, addr uint32) Instruction {
	return Instruction{Op: OpLoadV, Dest: dest, Length: length, Addr: addr}
}

// LoadM builds a LOAD_M instruction.
func LoadM(dest uint8, cols, rows uint16, addr uint32) Instruction {
	return Instruction{Op: OpLoadM, Dest: dest, Length: cols, Rows: rows, Addr: addr}
}

// Store builds a STORE instruction.
func Store(src uint8, length uint16, addr uint32) Instruction {
	return Instruction{Op: OpStore, Dest: src, Length: length, Addr: addr}
}

// Gemv builds a GEMV instruction.
func Gemv(dest uint8, cols, rows uint16, bias, x, w uint8) Instruction {
	return Instruction{Op: OpGemv, Dest: dest, Length: cols, Rows: rows, BiasID: bias, XID: x, WID: w}
}

// Relu builds a RELU instruction.
func Relu(dest uint8, length uint16, x uint8) Instruction {
	return Instruction{Op: OpRelu, Dest: dest, Length: length, XID: x}
}

// Halt builds a HALT instruction.
func Halt() Instruction {
	return Instruction{Op: OpHalt}
}
