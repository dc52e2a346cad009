package isa

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsInstruction(t *testing.T) {
	var n int
	for i := 0; i < 256; i++ {
		if IsInstruction(byte(i)) {
			n++
		}
	}
	require.Equal(t, 7, n)
	for _, op := range All() {
		require.True(t, IsInstruction(op))
		require.NotEqual(t, "nop", Name(op))
	}
	require.Equal(t, []byte{60, 62, 43, 45, 44, 91, 93}, All())
}

func TestRender(t *testing.T) {
	require.Equal(t, "[.+.]", Render([]byte{'[', 0, '+', 200, ']'}, '.'))
}
