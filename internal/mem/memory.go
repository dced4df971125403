// Package mem models the accelerator's flat byte-addressable memory.
package mem

import (
	"encoding/binary"
	"fmt"
)

// Memory is a fixed-size byte-addressable store. Instructions and operand
// data share the same address space; instruction words are little-endian.
type Memory struct {
	data []byte
}

// New creates a memory of the given size in bytes.
func New(size int) *Memory {
	return &Memory{data: make([]byte, size)}
}

// Size returns the memory size in bytes.
func (m *Memory) Size() int {
	return len(m.data)
}

// ReadBytes copies n bytes starting at addr into a fresh slice.
func (m *Memory) ReadBytes(addr uint32, n int) ([]byte, error) {
	if err := m.checkRange(addr, n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, m.data[addr:int(addr)+n])
	return out, nil
}

// WriteBytes copies b into memory starting at addr.
func (m *Memory) WriteBytes(addr uint32, b []byte) error {
	if err := m.checkRange(addr, len(b)); err != nil {
		return err
	}
	copy(m.data[addr:], b)
	return nil
}

// FetchWord reads a little-endian 64-bit instruction word at addr.
func (m *Memory) FetchWord(addr uint32) (uint64, error) {
	if err := m.checkRange(addr, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(m.data[addr:]), nil
}

// WriteWord stores a little-endian 64-bit word at addr.
func (m *Memory) WriteWord(addr uint32, word uint64) error {
	if err := m.checkRange(addr, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(m.data[addr:], word)
	return nil
}

func (m *Memory) checkRange(addr uint32, n int) error {
	if n < 0 || int(addr)+n > len(m.data) {
		return fmt.Errorf("mem: access [0x%06X, 0x%06X) outside %d-byte memory",
			addr, int(addr)+n, len(m.data))
	}
	return nil
}
