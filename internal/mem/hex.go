package mem

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// LoadHexImage reads a memory image in the byte-per-token hex format used by
// hardware memory initializers: whitespace-separated two-digit hex bytes,
// optional `@hexaddr` directives that reposition the load cursor, and `//`
// comments. Returns the number of bytes loaded.
func (m *Memory) LoadHexImage(r io.Reader) (int, error) {
	sc := bufio.NewScanner(r)
	addr := 0
	loaded := 0
	line := 0

	for sc.Scan() {
		line++
		text := sc.Text()
		if i := strings.Index(text, "//"); i >= 0 {
			text = text[:i]
		}
		for _, tok := range strings.Fields(text) {
			if tok[0] == '@' {
				v, err := strconv.ParseUint(tok[1:], 16, 32)
				if err != nil {
					return loaded, fmt.Errorf("mem: line %d: bad address directive %q: %w", line, tok, err)
				}
				addr = int(v)
				continue
			}
			v, err := strconv.ParseUint(tok, 16, 8)
			if err != nil {
				return loaded, fmt.Errorf("mem: line %d: bad hex byte %q: %w", line, tok, err)
			}
			if addr >= len(m.data) {
				return loaded, fmt.Errorf("mem: line %d: image overruns %d-byte memory at 0x%06X",
					line, len(m.data), addr)
			}
			m.data[addr] = byte(v)
			addr++
			loaded++
		}
	}
	if err := sc.Err(); err != nil {
		return loaded, fmt.Errorf("mem: reading hex image: %w", err)
	}
	return loaded, nil
}

// DumpHexImage writes [addr, addr+n) in the same format, 16 bytes per line.
func (m *Memory) DumpHexImage(w io.Writer, addr uint32, n int) error {
	if err := m.checkRange(addr, n); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "@%06X\n", addr); err != nil {
		return err
	}
	for i := 0; i < n; i += 16 {
		end := min(i+16, n)
		parts := make([]string, 0, 16)
		for _, b := range m.data[int(addr)+i : int(addr)+end] {
			parts = append(parts, fmt.Sprintf("%02X", b))
		}
		if _, err := fmt.Fprintln(w, strings.Join(parts, " ")); err != nil {
			return err
		}
	}
	return nil
}
