package soup

import (
	"fmt"

	"go.brendoncarroll.net/exp/slices2"

	"abiogenesis.dev/bff/bfftape"
)

// State is a complete snapshot of a Soup, except for its random generator.
// The JSON field names are the checkpoint format.
type State struct {
	Size             int             `json:"size"`
	TapeLength       int             `json:"tape_length"`
	MutationRate     float64         `json:"mutation_rate"`
	InteractionCount uint64          `json:"interaction_count"`
	Tapes            []bfftape.State `json:"tapes"`
}

func (s *Soup) State() State {
	return State{
		Size:             s.size,
		TapeLength:       s.tapeLength,
		MutationRate:     s.mutationRate,
		InteractionCount: s.interactionCount,
		Tapes: slices2.Map(s.tapes, func(t *bfftape.Tape) bfftape.State {
			return t.State()
		}),
	}
}

// FromState restores a Soup from a snapshot.
// Every tape and the interaction count are restored exactly. The random
// generator is not part of the snapshot; the restored soup gets a fresh one.
func FromState(x State) (*Soup, error) {
	if err := validate(x.Size, x.TapeLength, x.MutationRate); err != nil {
		return nil, err
	}
	if len(x.Tapes) != x.Size {
		return nil, fmt.Errorf("soup state has %d tapes, but size %d", len(x.Tapes), x.Size)
	}
	tapes := make([]*bfftape.Tape, len(x.Tapes))
	for i, ts := range x.Tapes {
		t, err := bfftape.FromState(ts)
		if err != nil {
			return nil, fmt.Errorf("tape %d: %w", i, err)
		}
		if t.Len() != x.TapeLength {
			return nil, fmt.Errorf("tape %d: %w", i, bfftape.ErrLengthMismatch{Have: t.Len(), Want: x.TapeLength})
		}
		tapes[i] = t
	}
	return newSoup(x.TapeLength, x.MutationRate, x.InteractionCount, tapes, bfftape.UnseededRand()), nil
}
