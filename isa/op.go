// package isa contains the instruction set of the BFF machine.
//
// Only seven byte values are instructions. Every other byte is a no-op, which
// is what lets random tapes be executed at all.
package isa

// Op is an instruction byte.
type Op = byte

const (
	// Left moves the data pointer one cell left, wrapping.
	Left Op = '<'
	// Right moves the data pointer one cell right, wrapping.
	Right Op = '>'
	// Inc adds 1 to the cell under the data pointer, mod 256.
	Inc Op = '+'
	// Dec subtracts 1 from the cell under the data pointer, mod 256.
	Dec Op = '-'
	// Copy writes the cell under the console pointer to the cell under the
	// data pointer, then advances the console pointer.
	Copy Op = ','
	// LoopStart jumps past the matching LoopEnd if the current cell is 0.
	LoopStart Op = '['
	// LoopEnd jumps back past the matching LoopStart if the current cell is not 0.
	LoopEnd Op = ']'
)

var all = [...]Op{Left, Right, Inc, Dec, Copy, LoopStart, LoopEnd}

var table = func() (ret [256]bool) {
	for _, op := range all {
		ret[op] = true
	}
	return ret
}()

// All returns the seven instructions.
func All() []Op {
	return append([]Op{}, all[:]...)
}

// IsInstruction returns true if b is one of the seven instructions.
func IsInstruction(b byte) bool {
	return table[b]
}

// IsBracket returns true for LoopStart and LoopEnd.
func IsBracket(b byte) bool {
	return b == LoopStart || b == LoopEnd
}

// Name returns a human readable name for an instruction, or "nop".
func Name(b byte) string {
	switch b {
	case Left:
		return "left"
	case Right:
		return "right"
	case Inc:
		return "inc"
	case Dec:
		return "dec"
	case Copy:
		return "copy"
	case LoopStart:
		return "loop"
	case LoopEnd:
		return "end"
	default:
		return "nop"
	}
}

// Render returns data as text, with instructions shown as themselves and
// every other byte replaced by nop.
func Render(data []byte, nop byte) string {
	out := make([]byte, len(data))
	for i, b := range data {
		if IsInstruction(b) {
			out[i] = b
		} else {
			out[i] = nop
		}
	}
	return string(out)
}
