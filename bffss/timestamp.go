package bffss

import (
	"database/sql/driver"
	"fmt"

	"go.brendoncarroll.net/tai64"
)

// Timestamp is a TAI64N instant, stored as its 12 byte binary encoding.
type Timestamp struct {
	tai64.TAI64N
}

// Now returns the current wall clock time.
func Now() Timestamp {
	return Timestamp{tai64.Now()}
}

func (ts *Timestamp) Scan(x any) error {
	data, ok := x.([]byte)
	if !ok {
		return fmt.Errorf("bffss: cannot scan %T into Timestamp", x)
	}
	t, err := tai64.ParseN(data)
	if err != nil {
		return err
	}
	ts.TAI64N = t
	return nil
}

func (ts Timestamp) Value() (driver.Value, error) {
	return ts.Marshal(), nil
}
