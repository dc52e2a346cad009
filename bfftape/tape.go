// package bfftape implements Tape, the fixed length byte buffer which is both
// program and data for one organism in the soup.
package bfftape

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"strings"

	"abiogenesis.dev/bff/isa"
)

// Tape is a fixed length sequence of bytes.
// The length is set at construction and never changes.
type Tape struct {
	data []byte
}

// New creates a tape holding a copy of data.
// len(data) must equal length.
func New(length int, data []byte) (*Tape, error) {
	if len(data) != length {
		return nil, ErrLengthMismatch{Have: len(data), Want: length}
	}
	return &Tape{data: append([]byte{}, data...)}, nil
}

// NewZero creates a tape of length zero bytes.
func NewZero(length int) *Tape {
	return &Tape{data: make([]byte, length)}
}

// NewSeeded creates a tape filled with uniformly random bytes from a generator
// dedicated to seed. The same (length, seed) always produces the same tape.
func NewSeeded(length int, seed int64) *Tape {
	return NewRandom(length, SeededRand(seed))
}

// NewRandom creates a tape filled with uniformly random bytes drawn from rng.
// If rng is nil, a fresh unseeded generator is used.
func NewRandom(length int, rng *rand.Rand) *Tape {
	if rng == nil {
		rng = UnseededRand()
	}
	data := make([]byte, length)
	for i := range data {
		data[i] = byte(rng.IntN(256))
	}
	return &Tape{data: data}
}

// SeededRand returns a generator whose sequence is determined by seed.
func SeededRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), 0))
}

// UnseededRand returns a generator seeded from the runtime's entropy.
func UnseededRand() *rand.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// Len returns the length of the tape.
func (t *Tape) Len() int {
	return len(t.data)
}

// Get returns the byte at pos.
func (t *Tape) Get(pos int) byte {
	return t.data[pos]
}

// Set writes value to pos, clamping it to [0, 255].
func (t *Tape) Set(pos int, value int) {
	t.data[pos] = byte(max(0, min(255, value)))
}

// Increment adds one to the byte at pos, wrapping 255 to 0.
func (t *Tape) Increment(pos int) {
	t.data[pos]++
}

// Decrement subtracts one from the byte at pos, wrapping 0 to 255.
func (t *Tape) Decrement(pos int) {
	t.data[pos]--
}

// Hash returns the SHA-256 of the tape contents.
// It is used to identify identical tapes, not as a security primitive.
func (t *Tape) Hash() [32]byte {
	return sha256.Sum256(t.data)
}

// HashHex is Hash encoded as lower case hex.
func (t *Tape) HashHex() string {
	h := t.Hash()
	return hex.EncodeToString(h[:])
}

// CountInstructions returns the number of bytes which are instructions.
func (t *Tape) CountInstructions() (n int) {
	for _, b := range t.data {
		if isa.IsInstruction(b) {
			n++
		}
	}
	return n
}

// Equal returns true if both tapes have the same length and contents.
// A nil tape is only equal to another nil tape.
func (t *Tape) Equal(other *Tape) bool {
	if t == nil || other == nil {
		return t == other
	}
	return bytes.Equal(t.data, other.data)
}

// Clone returns a tape with a copy of the contents.
func (t *Tape) Clone() *Tape {
	return &Tape{data: append([]byte{}, t.data...)}
}

// Bytes returns a copy of the contents.
func (t *Tape) Bytes() []byte {
	return append([]byte{}, t.data...)
}

// AppendBytes appends the contents to out.
func (t *Tape) AppendBytes(out []byte) []byte {
	return append(out, t.data...)
}

// CopyFrom overwrites the contents of the tape with data.
func (t *Tape) CopyFrom(data []byte) error {
	if len(data) != len(t.data) {
		return ErrLengthMismatch{Have: len(data), Want: len(t.data)}
	}
	copy(t.data, data)
	return nil
}

func (t *Tape) String() string {
	const previewLen = 8
	sb := strings.Builder{}
	fmt.Fprintf(&sb, "Tape(length=%d, data=[", len(t.data))
	for i, b := range t.data[:min(previewLen, len(t.data))] {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%d", b)
	}
	if len(t.data) > previewLen {
		sb.WriteString("...")
	}
	sb.WriteString("])")
	return sb.String()
}

// ErrLengthMismatch is returned when data does not fit the tape exactly.
type ErrLengthMismatch struct {
	Have, Want int
}

func (e ErrLengthMismatch) Error() string {
	return fmt.Sprintf("data length %d != tape length %d", e.Have, e.Want)
}
