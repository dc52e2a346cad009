package bfftape

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLengthMismatch(t *testing.T) {
	t.Parallel()
	_, err := New(4, []byte{1, 2, 3})
	require.ErrorAs(t, err, &ErrLengthMismatch{})
	require.EqualError(t, err, "data length 3 != tape length 4")

	tape, err := New(3, []byte{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, 3, tape.Len())
}

func TestWraparound(t *testing.T) {
	t.Parallel()
	tape, err := New(4, []byte{0, 1, 254, 255})
	require.NoError(t, err)
	for pos := 0; pos < tape.Len(); pos++ {
		before := tape.Get(pos)
		tape.Increment(pos)
		tape.Decrement(pos)
		require.Equal(t, before, tape.Get(pos))
		tape.Decrement(pos)
		tape.Increment(pos)
		require.Equal(t, before, tape.Get(pos))
		for i := 0; i < 256; i++ {
			tape.Increment(pos)
		}
		require.Equal(t, before, tape.Get(pos))
	}

	tape.Increment(3)
	require.Equal(t, byte(0), tape.Get(3))
	tape.Decrement(0)
	require.Equal(t, byte(255), tape.Get(0))
}

func TestSetClamps(t *testing.T) {
	t.Parallel()
	tape := NewZero(2)
	tape.Set(0, 300)
	tape.Set(1, -5)
	require.Equal(t, byte(255), tape.Get(0))
	require.Equal(t, byte(0), tape.Get(1))
	require.Panics(t, func() { tape.Get(2) })
	require.Panics(t, func() { tape.Set(-1, 0) })
}

func TestHash(t *testing.T) {
	t.Parallel()
	data := []byte("+[>,<]-")
	a, err := New(len(data), data)
	require.NoError(t, err)
	b, err := New(len(data), data)
	require.NoError(t, err)
	require.Equal(t, a.Hash(), b.Hash())
	require.Len(t, a.HashHex(), 64)

	b.Increment(3)
	require.NotEqual(t, a.Hash(), b.Hash())
	require.False(t, a.Equal(b))
}

func TestEqual(t *testing.T) {
	t.Parallel()
	a := NewZero(4)
	require.True(t, a.Equal(NewZero(4)))
	require.False(t, a.Equal(NewZero(5)))
	require.False(t, a.Equal(nil))

	var b *Tape
	require.False(t, b.Equal(a))
	require.True(t, b.Equal(nil))
}

func TestCopyIndependence(t *testing.T) {
	t.Parallel()
	data := []byte{1, 2, 3}
	tape, err := New(3, data)
	require.NoError(t, err)
	data[0] = 99
	require.Equal(t, byte(1), tape.Get(0))

	clone := tape.Clone()
	clone.Increment(1)
	require.Equal(t, byte(2), tape.Get(1))
	require.Equal(t, byte(3), clone.Get(1))

	out := tape.Bytes()
	out[2] = 0
	require.Equal(t, byte(3), tape.Get(2))
}

func TestSeeded(t *testing.T) {
	t.Parallel()
	a := NewSeeded(64, 42)
	b := NewSeeded(64, 42)
	c := NewSeeded(64, 43)
	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
	require.Equal(t, 64, NewRandom(64, nil).Len())
}

func TestCountInstructions(t *testing.T) {
	t.Parallel()
	tape, err := New(10, []byte{'<', '>', '+', '-', ',', '[', ']', 0, 'a', '.'})
	require.NoError(t, err)
	require.Equal(t, 7, tape.CountInstructions())
}

func TestStateRoundTrip(t *testing.T) {
	t.Parallel()
	for i, tape := range []*Tape{NewZero(1), NewSeeded(64, 1), NewSeeded(128, 7)} {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			data, err := json.Marshal(tape.State())
			require.NoError(t, err)
			var st State
			require.NoError(t, json.Unmarshal(data, &st))
			tape2, err := FromState(st)
			require.NoError(t, err)
			require.True(t, tape.Equal(tape2))
		})
	}
}

func TestStateJSON(t *testing.T) {
	t.Parallel()
	tape, err := New(3, []byte{0, 43, 255})
	require.NoError(t, err)
	data, err := json.Marshal(tape.State())
	require.NoError(t, err)
	require.JSONEq(t, `{"length": 3, "data": [0, 43, 255]}`, string(data))

	_, err = FromState(State{Length: 2, Data: []int{1, 256}})
	require.Error(t, err)
	_, err = FromState(State{Length: 3, Data: []int{1}})
	require.ErrorAs(t, err, &ErrLengthMismatch{})
}

func TestString(t *testing.T) {
	t.Parallel()
	require.Equal(t, "Tape(length=2, data=[0, 0])", NewZero(2).String())
	require.Equal(t, "Tape(length=9, data=[0, 0, 0, 0, 0, 0, 0, 0...])", NewZero(9).String())
}
