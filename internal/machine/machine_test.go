package machine_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tinynpu/tinynpu/internal/gemv"
	"github.com/tinynpu/tinynpu/internal/isa"
	"github.com/tinynpu/tinynpu/internal/machine"
)

var _ = Describe("Machine", func() {
	var m *machine.Machine

	// Small geometry so partial tiles appear everywhere.
	geom := machine.Geometry{
		MemorySize:       4096,
		Buffers:          8,
		TilesPerBuffer:   32,
		BufferTileWidth:  4,
		ComputeTileWidth: 3,
		MaxRows:          64,
		MaxColumns:       64,
	}

	BeforeEach(func() {
		var err error
		m, err = machine.New(geom)
		Expect(err).NotTo(HaveOccurred())
	})

	writeOperands := func(addr uint32, vals ...int8) {
		b := make([]byte, len(vals))
		for i, v := range vals {
			b[i] = byte(v)
		}
		Expect(m.Memory().WriteBytes(addr, b)).To(Succeed())
	}

	loadAndRun := func(prog []isa.Instruction) error {
		_, err := m.LoadProgram(0, prog)
		Expect(err).NotTo(HaveOccurred())
		return m.Run(1000)
	}

	readResult := func(addr uint32, n int) []int8 {
		b, err := m.Memory().ReadBytes(addr, n)
		Expect(err).NotTo(HaveOccurred())
		out := make([]int8, n)
		for i, v := range b {
			out[i] = int8(v)
		}
		return out
	}

	It("halts immediately on HALT", func() {
		Expect(loadAndRun([]isa.Instruction{isa.Halt()})).To(Succeed())
		Expect(m.Halted()).To(BeTrue())
		Expect(m.Stats().Instructions).To(Equal(uint64(1)))
	})

	It("times out on a program that never halts", func() {
		// Memory is zero-filled; but an all-zero word decodes as HALT, so
		// build an endless stream of loads instead.
		prog := make([]isa.Instruction, 0, 8)
		for i := 0; i < 8; i++ {
			prog = append(prog, isa.LoadV(0, 4, 0x100))
		}
		_, err := m.LoadProgram(0, prog)
		Expect(err).NotTo(HaveOccurred())
		err = m.Run(5)
		Expect(err).To(MatchError(machine.ErrTimeout))
	})

	It("moves bytes memory -> buffer -> memory through LOAD_V and STORE", func() {
		writeOperands(0x200, 1, -2, 3, -4, 5, -6, 7)
		Expect(loadAndRun([]isa.Instruction{
			isa.LoadV(1, 7, 0x200),
			isa.Store(1, 7, 0x300),
			isa.Halt(),
		})).To(Succeed())
		Expect(readResult(0x300, 7)).To(Equal([]int8{1, -2, 3, -4, 5, -6, 7}))
	})

	It("executes the worked GEMV example end to end", func() {
		// W=[[1,2,3],[4,5,6]], x=[1,1,1], bias=[0,0] -> y=[51,127].
		writeOperands(0x200, 1, 2, 3, 4, 5, 6) // W, row-major
		writeOperands(0x210, 1, 1, 1)          // x
		writeOperands(0x220, 0, 0)             // bias

		Expect(loadAndRun([]isa.Instruction{
			isa.LoadM(2, 3, 2, 0x200),
			isa.LoadV(3, 3, 0x210),
			isa.LoadV(4, 2, 0x220),
			isa.Gemv(5, 3, 2, 4, 3, 2),
			isa.Store(5, 2, 0x300),
			isa.Halt(),
		})).To(Succeed())

		Expect(readResult(0x300, 2)).To(Equal([]int8{51, 127}))
		Expect(m.Stats().ByOpcode["GEMV"]).To(Equal(uint64(1)))
	})

	It("matches the run-to-completion reference on an awkwardly shaped GEMV", func() {
		rows, cols := 5, 7
		w := make([]int8, rows*cols)
		x := make([]int8, cols)
		bias := make([]int8, rows)
		for i := range w {
			w[i] = int8((i*37)%200 - 100)
		}
		for i := range x {
			x[i] = int8(i*11 - 30)
		}
		for i := range bias {
			bias[i] = int8(i*13 - 20)
		}
		writeOperands(0x200, w...)
		writeOperands(0x280, x...)
		writeOperands(0x2A0, bias...)

		Expect(loadAndRun([]isa.Instruction{
			isa.LoadM(2, uint16(cols), uint16(rows), 0x200),
			isa.LoadV(3, uint16(cols), 0x280),
			isa.LoadV(4, uint16(rows), 0x2A0),
			isa.Gemv(5, uint16(cols), uint16(rows), 4, 3, 2),
			isa.Store(5, uint16(rows), 0x300),
			isa.Halt(),
		})).To(Succeed())

		want, err := gemv.Compute(w, x, bias, rows, cols)
		Expect(err).NotTo(HaveOccurred())
		Expect(readResult(0x300, rows)).To(Equal(want))
	})

	It("applies RELU to a GEMV result", func() {
		// Row 0 accumulates negative, row 1 positive.
		writeOperands(0x200, -50, -50, 5, 5) // W
		writeOperands(0x210, 1, 1)           // x
		writeOperands(0x220, 0, 0)           // bias

		Expect(loadAndRun([]isa.Instruction{
			isa.LoadM(2, 2, 2, 0x200),
			isa.LoadV(3, 2, 0x210),
			isa.LoadV(4, 2, 0x220),
			isa.Gemv(5, 2, 2, 4, 3, 2),
			isa.Relu(6, 2, 5),
			isa.Store(6, 2, 0x300),
			isa.Halt(),
		})).To(Succeed())

		got := readResult(0x300, 2)
		Expect(got[0]).To(Equal(int8(0)), "negative output clamps to zero")
		Expect(got[1]).To(BeNumerically(">", 0))
	})

	It("keeps back-to-back GEMV instructions independent", func() {
		writeOperands(0x200, 1, 2, 3, 4, 5, 6)
		writeOperands(0x210, 1, 1, 1)
		writeOperands(0x220, 0, 0)
		writeOperands(0x230, 0, 0, 0, 0) // all-zero W for the second call
		writeOperands(0x240, 0, 0)       // all-zero x

		Expect(loadAndRun([]isa.Instruction{
			isa.LoadM(2, 3, 2, 0x200),
			isa.LoadV(3, 3, 0x210),
			isa.LoadV(4, 2, 0x220),
			isa.Gemv(5, 3, 2, 4, 3, 2),
			isa.Store(5, 2, 0x300),
			// Second invocation, all zero: must not see the first one.
			isa.LoadM(2, 2, 2, 0x230),
			isa.LoadV(3, 2, 0x240),
			isa.LoadV(4, 2, 0x220),
			isa.Gemv(5, 2, 2, 4, 3, 2),
			isa.Store(5, 2, 0x310),
			isa.Halt(),
		})).To(Succeed())

		Expect(readResult(0x300, 2)).To(Equal([]int8{51, 127}))
		Expect(readResult(0x310, 2)).To(Equal([]int8{0, 0}))
	})

	It("fails a GEMV with zero dimensions", func() {
		writeOperands(0x200, 1)
		err := loadAndRun([]isa.Instruction{
			isa.Gemv(5, 0, 2, 4, 3, 2),
			isa.Halt(),
		})
		Expect(err).To(MatchError(gemv.ErrInvalidDimension))
	})

	It("fails a GEMV whose operand buffers were never loaded", func() {
		err := loadAndRun([]isa.Instruction{
			isa.Gemv(5, 3, 2, 4, 3, 2),
			isa.Halt(),
		})
		Expect(err).To(MatchError(gemv.ErrStalled))
	})

	It("rejects an illegal opcode", func() {
		Expect(m.Memory().WriteWord(0, uint64(0x1F)<<59)).To(Succeed())
		err := m.Run(10)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("illegal opcode"))
	})

	It("reports fetches past the end of memory", func() {
		m.SetPC(uint32(geom.MemorySize) - 4)
		Expect(m.Step()).NotTo(Succeed())
	})

	It("traces retired instructions", func() {
		var seen []string
		m.Tracer = func(pc uint32, in isa.Instruction) {
			seen = append(seen, in.String())
		}
		Expect(loadAndRun([]isa.Instruction{isa.Halt()})).To(Succeed())
		Expect(seen).To(ConsistOf("HALT"))
	})
})
