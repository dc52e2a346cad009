// package cadata defines content IDs and the interfaces of content-addressed stores.
package cadata

import (
	"bytes"
	"context"
	"crypto/subtle"
	"database/sql/driver"
	"encoding/hex"
	"errors"
	"fmt"

	"go.brendoncarroll.net/state"
	"go.brendoncarroll.net/state/kv"
)

// IDSize is the size of an ID in bytes.
const IDSize = 32

// ID is the hash of some data, which identifies it in a store.
type ID [IDSize]byte

// IDFromBytes copies x into an ID.
// x shorter than IDSize is zero padded.
func IDFromBytes(x []byte) (id ID) {
	copy(id[:], x)
	return id
}

// ParseID parses an ID from hex.
func ParseID(x string) (ID, error) {
	var id ID
	if len(x) != hex.EncodedLen(IDSize) {
		return ID{}, fmt.Errorf("cadata: ID must be %d hex characters, have %d", hex.EncodedLen(IDSize), len(x))
	}
	if _, err := hex.Decode(id[:], []byte(x)); err != nil {
		return ID{}, err
	}
	return id, nil
}

func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

func (a ID) Compare(b ID) int {
	return bytes.Compare(a[:], b[:])
}

// Successor returns the ID immediately after this one.
// The successor of the largest ID is the zero ID.
func (id ID) Successor() ID {
	for i := len(id) - 1; i >= 0; i-- {
		id[i]++
		if id[i] != 0 {
			break
		}
	}
	return id
}

func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ID) UnmarshalText(x []byte) error {
	id2, err := ParseID(string(x))
	if err != nil {
		return err
	}
	*id = id2
	return nil
}

// Scan implements sql.Scanner. IDs are stored as BLOBs.
func (id *ID) Scan(x any) error {
	data, ok := x.([]byte)
	if !ok {
		return fmt.Errorf("cadata: cannot scan %T into ID", x)
	}
	if len(data) != IDSize {
		return fmt.Errorf("cadata: ID blob has length %d", len(data))
	}
	*id = IDFromBytes(data)
	return nil
}

func (id ID) Value() (driver.Value, error) {
	return id[:], nil
}

// HashFunc computes the ID of x. A non-nil salt keys the hash.
type HashFunc = func(salt *ID, x []byte) ID

type Poster interface {
	Post(ctx context.Context, salt *ID, data []byte) (ID, error)
}

// Getter reads the data for id into buf, returning the number of bytes read.
type Getter interface {
	Get(ctx context.Context, id *ID, salt *ID, buf []byte) (int, error)
}

type Exister interface {
	Exists(ctx context.Context, id *ID) (bool, error)
}

type Store interface {
	Poster
	Getter
	Exister
}

type Span = state.Span[ID]

// Lister fills ids with the IDs in span, in order, and returns how many it wrote.
type Lister interface {
	List(ctx context.Context, span Span, ids []ID) (int, error)
}

// ForEach calls fn with every ID in span.
func ForEach(ctx context.Context, x Lister, span Span, fn func(ID) error) error {
	return kv.ForEach[ID](ctx, x, span, fn)
}

// BeginFromSpan returns the first ID included in the span.
func BeginFromSpan(x Span) ID {
	lb, ok := x.LowerBound()
	if !ok {
		return ID{}
	}
	if !x.IncludesLower() {
		lb = lb.Successor()
	}
	return lb
}

var ErrTooLarge = errors.New("cadata: data is too large for store")

type ErrNotFound struct {
	Key *ID
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("cadata: %v not found", e.Key)
}

type ErrBadData struct {
	Have, Want ID
}

func (e ErrBadData) Error() string {
	return fmt.Sprintf("cadata: data hashes to %v, expected %v", e.Have, e.Want)
}

// Check returns ErrBadData if data does not hash to id.
func Check(hf HashFunc, id *ID, salt *ID, data []byte) error {
	have := hf(salt, data)
	if subtle.ConstantTimeCompare(have[:], id[:]) != 1 {
		return ErrBadData{Have: have, Want: *id}
	}
	return nil
}
