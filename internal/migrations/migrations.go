// package migrations applies an append-only list of schema statements to a database.
//
// The number of statements applied so far is kept in sqlite's user_version,
// so Migrate only runs statements which are new since the last call.
package migrations

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"abiogenesis.dev/bff/internal/dbutil"
)

// State is a schema, described by the statements which create it.
// States are immutable; ApplyStmt returns a new State.
type State struct {
	stmts []string
}

func InitialState() *State {
	return &State{}
}

func (s *State) ApplyStmt(stmt string) *State {
	stmts := make([]string, len(s.stmts), len(s.stmts)+1)
	copy(stmts, s.stmts)
	return &State{stmts: append(stmts, stmt)}
}

// Version is the number of statements in the schema.
func (s *State) Version() int {
	return len(s.stmts)
}

// Migrate brings db up to the schema described by target.
func Migrate(ctx context.Context, db *sqlx.DB, target *State) error {
	return dbutil.DoTx(ctx, db, func(tx *sqlx.Tx) error {
		var version int
		if err := tx.GetContext(ctx, &version, `PRAGMA user_version`); err != nil {
			return err
		}
		if version > target.Version() {
			return fmt.Errorf("database schema version %d is newer than %d", version, target.Version())
		}
		for i, stmt := range target.stmts[version:] {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migration %d: %w", version+i, err)
			}
		}
		_, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, target.Version()))
		return err
	})
}
