package bffss

import (
	"context"

	"github.com/jmoiron/sqlx"

	"abiogenesis.dev/bff/internal/dbutil"
	"abiogenesis.dev/bff/internal/migrations"
	"abiogenesis.dev/bff/internal/sqlstores"
)

func OpenDB(p string) (*sqlx.DB, error) {
	return dbutil.Open(p)
}

func SetupDB(ctx context.Context, db *sqlx.DB) error {
	return migrations.Migrate(ctx, db, currentSchema)
}

var currentSchema = func() *migrations.State {
	x := migrations.InitialState()
	x = sqlstores.Migration(x)
	x = x.ApplyStmt(`CREATE TABLE runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		archive_id INTEGER NOT NULL,
		config TEXT NOT NULL,
		transition_point INTEGER,
		results TEXT,
		created_at BLOB NOT NULL,

		FOREIGN KEY(archive_id) REFERENCES archives(id)
	)`)
	x = x.ApplyStmt(`CREATE TABLE checkpoints (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL,
		interactions INTEGER NOT NULL,
		elapsed REAL NOT NULL,
		state TEXT NOT NULL,
		created_at BLOB NOT NULL,

		FOREIGN KEY(run_id) REFERENCES runs(id)
	)`)
	x = x.ApplyStmt(`CREATE INDEX idx_checkpoints_run ON checkpoints (run_id, interactions)`)
	x = x.ApplyStmt(`CREATE TABLE samples (
		run_id INTEGER NOT NULL,
		interactions INTEGER NOT NULL,
		ops_mean REAL NOT NULL,
		ops_max INTEGER NOT NULL,
		diversity REAL NOT NULL,
		uniq INTEGER NOT NULL,

		FOREIGN KEY(run_id) REFERENCES runs(id),
		PRIMARY KEY(run_id, interactions)
	) WITHOUT ROWID`)
	x = x.ApplyStmt(`CREATE TABLE census (
		checkpoint_id INTEGER NOT NULL,
		genome_id BLOB NOT NULL,
		count INTEGER NOT NULL,

		FOREIGN KEY(checkpoint_id) REFERENCES checkpoints(id),
		PRIMARY KEY(checkpoint_id, genome_id)
	) WITHOUT ROWID`)
	return x
}()
