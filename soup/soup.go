// package soup implements the population of tapes and the scheduler which
// makes them interact.
//
// An interaction picks two distinct tapes, concatenates them, runs the
// combined tape as a program from position 0, and splits the result back into
// the two slots. Concatenation is the only way two tapes can affect each other.
package soup

import (
	"fmt"
	"math/rand/v2"

	"abiogenesis.dev/bff/bfftape"
	"abiogenesis.dev/bff/bvm"
)

// InteractionResult describes a single pairwise interaction.
type InteractionResult struct {
	Operations uint64 `json:"operations"`
	Idx1       int    `json:"idx1"`
	Idx2       int    `json:"idx2"`
	Terminated bool   `json:"terminated"`
	Crashed    bool   `json:"crashed"`
	TimedOut   bool   `json:"timed_out"`
}

func (r InteractionResult) Outcome() bvm.Outcome {
	return bvm.Result{
		Terminated: r.Terminated,
		Crashed:    r.Crashed,
		TimedOut:   r.TimedOut,
	}.Outcome()
}

// Soup is a population of equal length tapes.
// It is not safe for concurrent use.
type Soup struct {
	size             int
	tapeLength       int
	mutationRate     float64
	interactionCount uint64

	tapes []*bfftape.Tape
	rng   *rand.Rand
	// buf holds the combined tape during an interaction
	buf     *bfftape.Tape
	scratch []byte
}

// New creates a soup of size random tapes.
// If seed is not nil, tape i is seeded with *seed+i and the scheduler with
// *seed, so the whole population and its history follow from one seed.
func New(size, tapeLength int, mutationRate float64, seed *int64) (*Soup, error) {
	if err := validate(size, tapeLength, mutationRate); err != nil {
		return nil, err
	}
	var rng *rand.Rand
	if seed != nil {
		rng = bfftape.SeededRand(*seed)
	} else {
		rng = bfftape.UnseededRand()
	}
	tapes := make([]*bfftape.Tape, size)
	for i := range tapes {
		if seed != nil {
			tapes[i] = bfftape.NewSeeded(tapeLength, *seed+int64(i))
		} else {
			tapes[i] = bfftape.NewRandom(tapeLength, rng)
		}
	}
	return newSoup(tapeLength, mutationRate, 0, tapes, rng), nil
}

func newSoup(tapeLength int, mutationRate float64, count uint64, tapes []*bfftape.Tape, rng *rand.Rand) *Soup {
	return &Soup{
		size:             len(tapes),
		tapeLength:       tapeLength,
		mutationRate:     mutationRate,
		interactionCount: count,

		tapes:   tapes,
		rng:     rng,
		buf:     bfftape.NewZero(2 * tapeLength),
		scratch: make([]byte, 0, 2*tapeLength),
	}
}

func validate(size, tapeLength int, mutationRate float64) error {
	if size < 1 {
		return fmt.Errorf("soup size must be positive, have %d", size)
	}
	if tapeLength < 1 {
		return fmt.Errorf("tape length must be positive, have %d", tapeLength)
	}
	if !(mutationRate >= 0 && mutationRate <= 1) {
		return fmt.Errorf("mutation rate must be in [0, 1], have %v", mutationRate)
	}
	return nil
}

func (s *Soup) Size() int {
	return s.size
}

func (s *Soup) TapeLength() int {
	return s.tapeLength
}

func (s *Soup) MutationRate() float64 {
	return s.mutationRate
}

// InteractionCount is the number of interactions performed with InteractOnce.
func (s *Soup) InteractionCount() uint64 {
	return s.interactionCount
}

// Tape returns a copy of the tape at i.
func (s *Soup) Tape(i int) *bfftape.Tape {
	return s.tapes[i].Clone()
}

// Tapes returns a copy of every tape.
func (s *Soup) Tapes() []*bfftape.Tape {
	ret := make([]*bfftape.Tape, len(s.tapes))
	for i, t := range s.tapes {
		ret[i] = t.Clone()
	}
	return ret
}

// SelectPair draws two distinct indices uniformly at random.
// It panics if the soup has fewer than 2 tapes.
func (s *Soup) SelectPair() (int, int) {
	if s.size < 2 {
		panic(fmt.Sprintf("soup: cannot select a pair from %d tapes", s.size))
	}
	idx1 := s.rng.IntN(s.size)
	idx2 := s.rng.IntN(s.size)
	for idx2 == idx1 {
		idx2 = s.rng.IntN(s.size)
	}
	return idx1, idx2
}

// InteractPair runs the concatenation of tape idx1 and tape idx2 as a program,
// then writes the two halves back.
// The halves are written back whatever the outcome, including crashes.
func (s *Soup) InteractPair(idx1, idx2 int, maxOps uint64, timeoutProb float64) InteractionResult {
	t1, t2 := s.tapes[idx1], s.tapes[idx2]
	combined := t1.AppendBytes(s.scratch[:0])
	combined = t2.AppendBytes(combined)
	if err := s.buf.CopyFrom(combined); err != nil {
		panic(err)
	}

	res := bvm.New(s.buf, s.rng).RunFromTape(0, maxOps, timeoutProb)

	combined = s.buf.AppendBytes(combined[:0])
	if err := t1.CopyFrom(combined[:s.tapeLength]); err != nil {
		panic(err)
	}
	if err := t2.CopyFrom(combined[s.tapeLength:]); err != nil {
		panic(err)
	}
	return InteractionResult{
		Operations: res.Operations,
		Idx1:       idx1,
		Idx2:       idx2,
		Terminated: res.Terminated,
		Crashed:    res.Crashed,
		TimedOut:   res.TimedOut,
	}
}

// InteractOnce selects a pair, makes it interact, and then applies mutations
// if the mutation rate is positive.
func (s *Soup) InteractOnce(maxOps uint64, timeoutProb float64) InteractionResult {
	idx1, idx2 := s.SelectPair()
	res := s.InteractPair(idx1, idx2, maxOps, timeoutProb)
	s.interactionCount++
	if s.mutationRate > 0 {
		s.ApplyMutations()
	}
	return res
}

// Run performs n interactions in order and returns their results.
func (s *Soup) Run(n int, maxOps uint64, timeoutProb float64) []InteractionResult {
	results := make([]InteractionResult, 0, n)
	for i := 0; i < n; i++ {
		results = append(results, s.InteractOnce(maxOps, timeoutProb))
	}
	return results
}

// ApplyMutations replaces each byte of each tape, with probability equal to
// the mutation rate, by a uniformly random byte.
func (s *Soup) ApplyMutations() {
	if s.mutationRate <= 0 {
		return
	}
	for _, t := range s.tapes {
		for i := 0; i < t.Len(); i++ {
			if s.rng.Float64() < s.mutationRate {
				t.Set(i, s.rng.IntN(256))
			}
		}
	}
}

func (s *Soup) String() string {
	return fmt.Sprintf("Soup(size=%d, tape_length=%d, interactions=%d, unique_tapes=%d)",
		s.size, s.tapeLength, s.interactionCount, s.CountUniqueTapes())
}
