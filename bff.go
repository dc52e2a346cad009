// package bff is the root of the BFF abiogenesis simulator.
//
// A soup of small byte tapes is repeatedly sampled in pairs. Each pair is
// concatenated and executed as a self-modifying program, then split back into
// the population. See packages bfftape, bvm and soup.
package bff

import (
	"lukechampine.com/blake3"

	"abiogenesis.dev/bff/internal/cadata"
)

const (
	// DefaultTapeLength is the length of a single organism's tape.
	DefaultTapeLength = 64
	// DefaultSoupSize is the number of tapes in the reference experiment.
	DefaultSoupSize = 1024
	// DefaultMaxOps is the per-interaction operation cap.
	DefaultMaxOps = 10_000

	// MaxGenomeSize is the largest blob the genome archive will accept.
	MaxGenomeSize = 1 << 16
)

// Hash calculates the content ID of x.
// If tag == nil, then the hash is unkeyed.
// If tag != nil, then the hash will be keyed with the tag.
func Hash(tag *cadata.ID, x []byte) (ret cadata.ID) {
	var key []byte
	if tag != nil {
		key = tag[:]
	}
	h := blake3.New(32, key)
	h.Write(x)
	h.Sum(ret[:0])
	return ret
}
