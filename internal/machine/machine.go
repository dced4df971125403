// Package machine is the top-level sequencer: it fetches 64-bit instruction
// words from memory, decodes them, and dispatches to the memory-streaming
// units and the GEMV execution engine until a HALT retires or the step
// budget runs out.
package machine

import (
	"errors"
	"fmt"

	"github.com/tinynpu/tinynpu/internal/buffer"
	"github.com/tinynpu/tinynpu/internal/gemv"
	"github.com/tinynpu/tinynpu/internal/isa"
	"github.com/tinynpu/tinynpu/internal/mem"
)

// ErrTimeout reports that Run's step budget was exhausted before HALT; the
// program is treated as hung.
var ErrTimeout = errors.New("machine: step budget exceeded")

// Stats counts retired instructions by kind across a machine's lifetime.
type Stats struct {
	Instructions uint64            `json:"instructions"`
	ByOpcode     map[string]uint64 `json:"by_opcode"`
}

func newStats() Stats {
	return Stats{ByOpcode: make(map[string]uint64)}
}

// Machine ties together memory, the tile-buffer file, and the GEMV bridge.
// One machine executes one instruction at a time; the GEMV engine is reused
// serially.
type Machine struct {
	geom   Geometry
	mem    *mem.Memory
	bufs   *buffer.File
	bridge *gemv.Bridge

	pc     uint32
	halted bool
	stats  Stats

	// Tracer, when set, observes every instruction before it executes.
	Tracer func(pc uint32, in isa.Instruction)
}

// New builds a machine from a validated geometry.
func New(geom Geometry) (*Machine, error) {
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	memory := mem.New(geom.MemorySize)
	bufs, err := buffer.NewFile(geom.Buffers, geom.TilesPerBuffer, geom.BufferTileWidth)
	if err != nil {
		return nil, err
	}
	core, err := gemv.NewComputeCore(geom.ComputeTileWidth, geom.MaxRows, geom.MaxColumns)
	if err != nil {
		return nil, err
	}
	bridge, err := gemv.NewBridge(core, bufs, bufs, geom.BufferTileWidth)
	if err != nil {
		return nil, err
	}
	return &Machine{geom: geom, mem: memory, bufs: bufs, bridge: bridge, stats: newStats()}, nil
}

// Memory returns the machine's byte-addressable memory.
func (m *Machine) Memory() *mem.Memory {
	return m.mem
}

// Buffers returns the tile-buffer file.
func (m *Machine) Buffers() *buffer.File {
	return m.bufs
}

// Geometry returns the machine's configuration.
func (m *Machine) Geometry() Geometry {
	return m.geom
}

// PC returns the current program counter.
func (m *Machine) PC() uint32 {
	return m.pc
}

// SetPC repositions the program counter.
func (m *Machine) SetPC(pc uint32) {
	m.pc = pc
}

// Halted reports whether a HALT instruction has retired.
func (m *Machine) Halted() bool {
	return m.halted
}

// Stats returns a copy of the retired-instruction counters.
func (m *Machine) Stats() Stats {
	out := Stats{Instructions: m.stats.Instructions, ByOpcode: make(map[string]uint64, len(m.stats.ByOpcode))}
	for k, v := range m.stats.ByOpcode {
		out.ByOpcode[k] = v
	}
	return out
}

// Reset clears the program counter, halt flag, statistics, and every
// buffer. Memory contents are left as loaded.
func (m *Machine) Reset() {
	m.pc = 0
	m.halted = false
	m.stats = newStats()
	m.bufs.ResetAll()
}

// LoadProgram encodes the instructions as little-endian words starting at
// addr. Returns the address one past the last word.
func (m *Machine) LoadProgram(addr uint32, prog []isa.Instruction) (uint32, error) {
	for _, in := range prog {
		if err := m.mem.WriteWord(addr, in.Encode()); err != nil {
			return addr, fmt.Errorf("machine: loading %s: %w", in, err)
		}
		addr += 8
	}
	return addr, nil
}

// Step fetches, decodes, and executes one instruction. On a halted machine
// it is a no-op.
func (m *Machine) Step() error {
	if m.halted {
		return nil
	}
	word, err := m.mem.FetchWord(m.pc)
	if err != nil {
		return fmt.Errorf("machine: fetch at 0x%06X: %w", m.pc, err)
	}
	in := isa.Decode(word)
	if m.Tracer != nil {
		m.Tracer(m.pc, in)
	}
	m.pc += 8

	if err := m.execute(in); err != nil {
		return fmt.Errorf("machine: %s: %w", in, err)
	}
	m.stats.Instructions++
	m.stats.ByOpcode[in.Op.String()]++
	return nil
}

// Run steps the machine until HALT, an execution error, or the step budget.
// Exceeding the budget returns ErrTimeout: a program that never halts is a
// hang, not a longer wait.
func (m *Machine) Run(maxSteps int) error {
	for i := 0; i < maxSteps; i++ {
		if err := m.Step(); err != nil {
			return err
		}
		if m.halted {
			return nil
		}
	}
	if m.halted {
		return nil
	}
	return fmt.Errorf("%w: %d steps", ErrTimeout, maxSteps)
}

func (m *Machine) execute(in isa.Instruction) error {
	switch in.Op {
	case isa.OpHalt:
		m.halted = true
		return nil
	case isa.OpLoadV:
		return m.execLoadV(in)
	case isa.OpLoadM:
		return m.execLoadM(in)
	case isa.OpStore:
		return m.execStore(in)
	case isa.OpGemv:
		return m.execGemv(in)
	case isa.OpRelu:
		return m.execRelu(in)
	}
	return fmt.Errorf("illegal opcode 0x%02X", uint8(in.Op))
}
