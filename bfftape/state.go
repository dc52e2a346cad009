package bfftape

import (
	"fmt"
)

// State is the serialized form of a Tape.
// Data is a flat list of ints so that it marshals as a JSON array, not base64.
type State struct {
	Length int   `json:"length"`
	Data   []int `json:"data"`
}

func (t *Tape) State() State {
	data := make([]int, len(t.data))
	for i, b := range t.data {
		data[i] = int(b)
	}
	return State{Length: len(t.data), Data: data}
}

// FromState reconstructs a tape from its State.
func FromState(x State) (*Tape, error) {
	if len(x.Data) != x.Length {
		return nil, ErrLengthMismatch{Have: len(x.Data), Want: x.Length}
	}
	data := make([]byte, len(x.Data))
	for i, v := range x.Data {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("tape byte %d out of range: %d", i, v)
		}
		data[i] = byte(v)
	}
	return &Tape{data: data}, nil
}
