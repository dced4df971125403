package machine

import (
	"fmt"

	"github.com/tinynpu/tinynpu/internal/gemv"
	"github.com/tinynpu/tinynpu/internal/isa"
)

// The memory-streaming units. Each LOAD replaces the destination buffer's
// contents; partial final tiles are zero-padded by the buffer file.

func (m *Machine) execLoadV(in isa.Instruction) error {
	return m.loadToBuffer(int(in.Dest), in.Addr, int(in.Length))
}

func (m *Machine) execLoadM(in isa.Instruction) error {
	// Rows*cols bytes, row-major, packed contiguously into tiles. The GEMV
	// bridge owns per-row re-tiling; the load unit does not pad rows.
	return m.loadToBuffer(int(in.Dest), in.Addr, int(in.Rows)*int(in.Length))
}

func (m *Machine) loadToBuffer(dest int, addr uint32, n int) error {
	if n == 0 {
		return fmt.Errorf("zero-length load")
	}
	data, err := m.mem.ReadBytes(addr, n)
	if err != nil {
		return err
	}
	if err := m.bufs.Reset(dest); err != nil {
		return err
	}
	return m.bufs.Fill(dest, bytesToInt8(data))
}

func (m *Machine) execStore(in isa.Instruction) error {
	n := int(in.Length)
	if n == 0 {
		return fmt.Errorf("zero-length store")
	}
	elems, err := m.bufs.Drain(int(in.Dest), n)
	if err != nil {
		return err
	}
	return m.mem.WriteBytes(in.Addr, int8ToBytes(elems))
}

func (m *Machine) execGemv(in isa.Instruction) error {
	for _, id := range []uint8{in.Dest, in.BiasID, in.XID, in.WID} {
		if int(id) >= m.bufs.NumBuffers() {
			return fmt.Errorf("buffer id %d outside file of %d", id, m.bufs.NumBuffers())
		}
	}
	if err := m.bufs.Reset(int(in.Dest)); err != nil {
		return err
	}
	return m.bridge.Run(gemv.Op{
		Dest: int(in.Dest),
		Bias: int(in.BiasID),
		X:    int(in.XID),
		W:    int(in.WID),
		Rows: int(in.Rows),
		Cols: int(in.Length),
	})
}

// execRelu clamps each element of the source buffer at zero from below and
// writes the result to the destination. int8 already caps the positive side
// at 127, so the lower clamp is the whole activation.
func (m *Machine) execRelu(in isa.Instruction) error {
	n := int(in.Length)
	if n == 0 {
		return fmt.Errorf("zero-length relu")
	}
	elems, err := m.bufs.Drain(int(in.XID), n)
	if err != nil {
		return err
	}
	for i, v := range elems {
		if v < 0 {
			elems[i] = 0
		}
	}
	if err := m.bufs.Reset(int(in.Dest)); err != nil {
		return err
	}
	return m.bufs.Fill(int(in.Dest), elems)
}

func bytesToInt8(b []byte) []int8 {
	out := make([]int8, len(b))
	for i, v := range b {
		out[i] = int8(v)
	}
	return out
}

func int8ToBytes(s []int8) []byte {
	out := make([]byte, len(s))
	for i, v := range s {
		out[i] = byte(v)
	}
	return out
}
