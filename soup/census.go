package soup

import (
	"bytes"
	"encoding/hex"
	"slices"

	"go.brendoncarroll.net/exp/slices2"
	"golang.org/x/exp/maps"

	"abiogenesis.dev/bff/bfftape"
)

// TapeHashes returns the content hash of every tape, in slot order.
func (s *Soup) TapeHashes() [][32]byte {
	return slices2.Map(s.tapes, func(t *bfftape.Tape) [32]byte {
		return t.Hash()
	})
}

// CountUniqueTapes returns the number of distinct tape contents, by hash.
func (s *Soup) CountUniqueTapes() int {
	set := make(map[[32]byte]struct{}, len(s.tapes))
	for _, h := range s.TapeHashes() {
		set[h] = struct{}{}
	}
	return len(set)
}

// Diversity is the fraction of tapes with a unique content hash, in (0, 1].
func (s *Soup) Diversity() float64 {
	return float64(s.CountUniqueTapes()) / float64(s.size)
}

// Species is a distinct tape content and the number of tapes which have it.
// A species with a large Count is a replicator.
type Species struct {
	Hash   [32]byte
	Count  int
	Genome []byte
}

func (sp Species) HashHex() string {
	return hex.EncodeToString(sp.Hash[:])
}

// Census groups the tapes by content.
// Species are ordered by Count, largest first, then by Hash.
func (s *Soup) Census() []Species {
	m := make(map[[32]byte]*Species)
	for _, t := range s.tapes {
		h := t.Hash()
		if sp, exists := m[h]; exists {
			sp.Count++
			continue
		}
		m[h] = &Species{Hash: h, Count: 1, Genome: t.Bytes()}
	}
	keys := maps.Keys(m)
	ret := make([]Species, 0, len(keys))
	for _, k := range keys {
		ret = append(ret, *m[k])
	}
	slices.SortFunc(ret, func(a, b Species) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return bytes.Compare(a.Hash[:], b.Hash[:])
	})
	return ret
}

// TopSpecies returns at most n of the most common species.
func (s *Soup) TopSpecies(n int) []Species {
	census := s.Census()
	return census[:min(n, len(census))]
}
