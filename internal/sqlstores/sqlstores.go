// package sqlstores implements content-addressed genome archives in sqlite.
//
// Genomes are deduplicated across archives. An archive holds references to genomes,
// and a genome is deleted once no archive references it.
package sqlstores

import (
	"context"
	"database/sql"
	"errors"
	"io"

	"github.com/jmoiron/sqlx"

	"abiogenesis.dev/bff/internal/cadata"
	"abiogenesis.dev/bff/internal/dbutil"
	"abiogenesis.dev/bff/internal/migrations"
)

type ArchiveID = uint64

var (
	_ cadata.Store  = &TxStore{}
	_ cadata.Lister = &TxStore{}
	_ cadata.Getter = &Store{}
	_ cadata.Lister = &Store{}
)

func Migration(x *migrations.State) *migrations.State {
	return x.
		ApplyStmt(`CREATE TABLE genomes (
		id BLOB NOT NULL,
		salt BLOB,
		data BLOB NOT NULL,

		PRIMARY KEY(id)
	) WITHOUT ROWID, STRICT;`).
		ApplyStmt(`CREATE TABLE archives (
		id INTEGER PRIMARY KEY AUTOINCREMENT
	);`).
		ApplyStmt(`CREATE TABLE archive_genomes (
		archive_id INTEGER NOT NULL,
		genome_id BLOB NOT NULL,
		FOREIGN KEY(archive_id) REFERENCES archives(id),
		FOREIGN KEY(genome_id) REFERENCES genomes(id),
		PRIMARY KEY(archive_id, genome_id)
	) WITHOUT ROWID, STRICT;`)
}

// CreateArchive allocates a new archive ID which will not be reused.
func CreateArchive(tx *sqlx.Tx) (ret ArchiveID, err error) {
	err = tx.Get(&ret, `INSERT INTO archives VALUES (NULL) RETURNING id`)
	return ret, err
}

// DropArchive deletes an archive and any genomes not referenced by another archive.
func DropArchive(tx *sqlx.Tx, aid ArchiveID) error {
	if _, err := tx.Exec(`DELETE FROM archive_genomes WHERE archive_id = ?`, aid); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM archives WHERE id = ?`, aid); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM genomes WHERE id NOT IN (
		SELECT genome_id FROM archive_genomes
	)`); err != nil {
		return err
	}
	return nil
}

// CountGenomes returns the number of genomes referenced by an archive.
func CountGenomes(tx *sqlx.Tx, aid ArchiveID) (int64, error) {
	var ret int64
	err := tx.Get(&ret, `SELECT count(*) FROM archive_genomes WHERE archive_id = ?`, aid)
	return ret, err
}

// TxStore is an archive accessed within a transaction.
type TxStore struct {
	tx      *sqlx.Tx
	aid     ArchiveID
	hf      cadata.HashFunc
	maxSize int
}

func NewTxStore(tx *sqlx.Tx, hf cadata.HashFunc, maxSize int, aid ArchiveID) *TxStore {
	return &TxStore{
		tx:      tx,
		hf:      hf,
		aid:     aid,
		maxSize: maxSize,
	}
}

func (s *TxStore) Post(ctx context.Context, salt *cadata.ID, data []byte) (cadata.ID, error) {
	if len(data) > s.MaxSize() {
		return cadata.ID{}, cadata.ErrTooLarge
	}
	id := s.Hash(salt, data)
	if _, err := s.tx.ExecContext(ctx, `INSERT INTO genomes (id, salt, data)
		VALUES (?, ?, ?) ON CONFLICT DO NOTHING`, id[:], saltBytes(salt), data); err != nil {
		return cadata.ID{}, err
	}
	if err := s.add(ctx, id); err != nil {
		return cadata.ID{}, err
	}
	return id, nil
}

func (s *TxStore) Get(ctx context.Context, id *cadata.ID, salt *cadata.ID, buf []byte) (int, error) {
	var data []byte
	if err := s.tx.GetContext(ctx, &data, `SELECT genomes.data FROM archive_genomes
		JOIN genomes ON genome_id = genomes.id
		WHERE archive_id = ? AND genome_id = ?
	`, s.aid, id[:]); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = cadata.ErrNotFound{Key: id}
		}
		return 0, err
	}
	if len(data) > len(buf) {
		return 0, io.ErrShortBuffer
	}
	return copy(buf, data), nil
}

// Add references a genome which is already stored by another archive.
// It returns ErrNotFound if no archive has the genome.
func (s *TxStore) Add(ctx context.Context, id *cadata.ID) error {
	var stored bool
	if err := s.tx.GetContext(ctx, &stored, `SELECT EXISTS(SELECT 1 FROM genomes WHERE id = ?)`, id[:]); err != nil {
		return err
	}
	if !stored {
		return cadata.ErrNotFound{Key: id}
	}
	return s.add(ctx, *id)
}

func (s *TxStore) add(ctx context.Context, id cadata.ID) error {
	_, err := s.tx.ExecContext(ctx, `INSERT INTO archive_genomes (archive_id, genome_id)
		VALUES (?, ?) ON CONFLICT DO NOTHING`, s.aid, id[:])
	return err
}

func (s *TxStore) Exists(ctx context.Context, id *cadata.ID) (bool, error) {
	var exists bool
	if err := s.tx.GetContext(ctx, &exists, `SELECT EXISTS(
		SELECT 1 FROM archive_genomes WHERE archive_id = ? AND genome_id = ?
	)`, s.aid, id[:]); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *TxStore) List(ctx context.Context, span cadata.Span, ids []cadata.ID) (int, error) {
	begin := cadata.BeginFromSpan(span)
	rows, err := s.tx.QueryContext(ctx, `SELECT genome_id FROM archive_genomes
		WHERE archive_id = ? AND genome_id >= ?
		ORDER BY genome_id
		LIMIT ?
	`, s.aid, begin[:], len(ids))
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	var n int
	for rows.Next() && n < len(ids) {
		var buf []byte
		if err := rows.Scan(&buf); err != nil {
			return 0, err
		}
		id := cadata.IDFromBytes(buf)
		if !span.Contains(id, cadata.ID.Compare) {
			break
		}
		ids[n] = id
		n++
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *TxStore) MaxSize() int {
	return s.maxSize
}

func (s *TxStore) Hash(salt *cadata.ID, x []byte) cadata.ID {
	return s.hf(salt, x)
}

// Store is a read-only view of an archive which opens a transaction per call.
type Store struct {
	db      *sqlx.DB
	hf      cadata.HashFunc
	maxSize int
	aid     ArchiveID
}

func NewStore(db *sqlx.DB, hf cadata.HashFunc, maxSize int, aid ArchiveID) *Store {
	return &Store{db: db, hf: hf, maxSize: maxSize, aid: aid}
}

func (s *Store) Get(ctx context.Context, id *cadata.ID, salt *cadata.ID, buf []byte) (int, error) {
	return dbutil.DoTx1(ctx, s.db, func(tx *sqlx.Tx) (int, error) {
		return s.txStore(tx).Get(ctx, id, salt, buf)
	})
}

func (s *Store) List(ctx context.Context, span cadata.Span, ids []cadata.ID) (int, error) {
	return dbutil.DoTx1(ctx, s.db, func(tx *sqlx.Tx) (int, error) {
		return s.txStore(tx).List(ctx, span, ids)
	})
}

func (s *Store) MaxSize() int {
	return s.maxSize
}

func (s *Store) Hash(salt *cadata.ID, x []byte) cadata.ID {
	return s.hf(salt, x)
}

func (s *Store) txStore(tx *sqlx.Tx) *TxStore {
	return NewTxStore(tx, s.hf, s.maxSize, s.aid)
}

func saltBytes(salt *cadata.ID) []byte {
	if salt == nil {
		return nil
	}
	return salt[:]
}
