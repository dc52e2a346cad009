package bffss

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"

	"abiogenesis.dev/bff"
	"abiogenesis.dev/bff/internal/cadata"
	"abiogenesis.dev/bff/internal/dbutil"
	"abiogenesis.dev/bff/internal/sqlstores"
	"abiogenesis.dev/bff/soup"
)

type CheckpointID int64

type CheckpointInfo struct {
	ID           CheckpointID `db:"id"`
	RunID        RunID        `db:"run_id"`
	Interactions uint64       `db:"interactions"`
	// Elapsed is the total time the run had spent simulating when the checkpoint was taken.
	Elapsed   float64   `db:"elapsed"`
	CreatedAt Timestamp `db:"created_at"`
}

// CensusEntry is a distinct genome in a checkpoint and the number of tapes carrying it.
type CensusEntry struct {
	Genome cadata.ID `db:"genome_id"`
	Count  int       `db:"count"`
}

// SaveCheckpoint saves the state of sp as the latest checkpoint for the run.
// Every distinct tape is archived, and the census is recorded.
func (s *System) SaveCheckpoint(ctx context.Context, rid RunID, sp *soup.Soup) (CheckpointID, error) {
	return s.saveCheckpoint(ctx, rid, sp, 0)
}

func (s *System) saveCheckpoint(ctx context.Context, rid RunID, sp *soup.Soup, elapsed time.Duration) (CheckpointID, error) {
	stateData, err := json.Marshal(sp.State())
	if err != nil {
		return 0, err
	}
	census := sp.Census()
	var posted []archivedKey
	cid, err := dbutil.DoTx1(ctx, s.db, func(tx *sqlx.Tx) (CheckpointID, error) {
		posted = posted[:0]
		ri, err := getRun(ctx, tx, rid)
		if err != nil {
			return 0, err
		}
		var cid CheckpointID
		if err := tx.GetContext(ctx, &cid, `INSERT INTO checkpoints (run_id, interactions, elapsed, state, created_at)
			VALUES (?, ?, ?, ?, ?) RETURNING id`,
			rid, sp.InteractionCount(), elapsed.Seconds(), stateData, Now()); err != nil {
			return 0, err
		}
		store := sqlstores.NewTxStore(tx, bff.Hash, bff.MaxGenomeSize, ri.archiveID)
		for _, x := range census {
			gid := bff.Hash(nil, x.Genome)
			k := archivedKey{Archive: ri.archiveID, Genome: gid}
			if !s.isArchived(k) {
				if err := archiveGenome(ctx, store, gid, x.Genome); err != nil {
					return 0, err
				}
				posted = append(posted, k)
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO census (checkpoint_id, genome_id, count) VALUES (?, ?, ?)`,
				cid, gid[:], x.Count); err != nil {
				return 0, err
			}
		}
		return cid, nil
	})
	if err != nil {
		return 0, err
	}
	s.markArchived(posted)
	logctx.Info(ctx, "saved checkpoint",
		zap.Int64("run", int64(rid)),
		zap.Uint64("interactions", sp.InteractionCount()),
		zap.Int("species", len(census)),
		zap.Int("posted", len(posted)),
	)
	return cid, nil
}

// LatestCheckpoint returns the checkpoint with the most interactions for a run.
func (s *System) LatestCheckpoint(ctx context.Context, rid RunID) (*CheckpointInfo, error) {
	return dbutil.DoTx1(ctx, s.db, func(tx *sqlx.Tx) (*CheckpointInfo, error) {
		if _, err := getRun(ctx, tx, rid); err != nil {
			return nil, err
		}
		var ret CheckpointInfo
		if err := tx.GetContext(ctx, &ret, `SELECT id, run_id, interactions, elapsed, created_at
			FROM checkpoints WHERE run_id = ?
			ORDER BY interactions DESC, id DESC
			LIMIT 1`, rid); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrNoCheckpoint{rid}
			}
			return nil, err
		}
		return &ret, nil
	})
}

// ListCheckpoints returns the checkpoints for a run in order.
func (s *System) ListCheckpoints(ctx context.Context, rid RunID) (ret []CheckpointInfo, _ error) {
	err := s.db.SelectContext(ctx, &ret, `SELECT id, run_id, interactions, elapsed, created_at
		FROM checkpoints WHERE run_id = ?
		ORDER BY interactions, id`, rid)
	return ret, err
}

// LoadCheckpoint restores the soup from the run's latest checkpoint.
// The restored soup has a fresh unseeded generator.
func (s *System) LoadCheckpoint(ctx context.Context, rid RunID) (*soup.Soup, error) {
	info, err := s.LatestCheckpoint(ctx, rid)
	if err != nil {
		return nil, err
	}
	return s.loadCheckpoint(ctx, info.ID)
}

func (s *System) loadCheckpoint(ctx context.Context, cid CheckpointID) (*soup.Soup, error) {
	var data []byte
	if err := s.db.GetContext(ctx, &data, `SELECT state FROM checkpoints WHERE id = ?`, cid); err != nil {
		return nil, err
	}
	var state soup.State
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&state); err != nil {
		return nil, fmt.Errorf("checkpoint %d: %w", cid, err)
	}
	return soup.FromState(state)
}

// Census returns the census recorded with a checkpoint, most common genomes first.
func (s *System) Census(ctx context.Context, cid CheckpointID) (ret []CensusEntry, _ error) {
	err := s.db.SelectContext(ctx, &ret, `SELECT genome_id, count FROM census
		WHERE checkpoint_id = ?
		ORDER BY count DESC, genome_id`, cid)
	return ret, err
}

// Genome retrieves an archived genome from a run's archive.
func (s *System) Genome(ctx context.Context, rid RunID, gid cadata.ID) ([]byte, error) {
	ri, err := s.GetRun(ctx, rid)
	if err != nil {
		return nil, err
	}
	store := sqlstores.NewStore(s.db, bff.Hash, bff.MaxGenomeSize, ri.archiveID)
	buf := make([]byte, store.MaxSize())
	n, err := store.Get(ctx, &gid, nil, buf)
	if err != nil {
		return nil, err
	}
	if err := cadata.Check(store.Hash, &gid, nil, buf[:n]); err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// archiveGenome ensures the genome is in the archive.
// The data is only written if no archive has the genome yet.
func archiveGenome(ctx context.Context, store *sqlstores.TxStore, gid cadata.ID, data []byte) error {
	if yes, err := store.Exists(ctx, &gid); err != nil {
		return err
	} else if yes {
		return nil
	}
	err := store.Add(ctx, &gid)
	if !errors.As(err, &cadata.ErrNotFound{}) {
		return err
	}
	_, err = store.Post(ctx, nil, data)
	return err
}

// ForEachGenome calls fn with the ID of every genome archived by the run within span, in order.
func (s *System) ForEachGenome(ctx context.Context, rid RunID, span cadata.Span, fn func(cadata.ID) error) error {
	ri, err := s.GetRun(ctx, rid)
	if err != nil {
		return err
	}
	store := sqlstores.NewStore(s.db, bff.Hash, bff.MaxGenomeSize, ri.archiveID)
	return cadata.ForEach(ctx, store, span, fn)
}

// ArchiveSize returns the number of distinct genomes archived by the run.
func (s *System) ArchiveSize(ctx context.Context, rid RunID) (int64, error) {
	return dbutil.DoTx1(ctx, s.db, func(tx *sqlx.Tx) (int64, error) {
		ri, err := getRun(ctx, tx, rid)
		if err != nil {
			return 0, err
		}
		return sqlstores.CountGenomes(tx, ri.archiveID)
	})
}

func (s *System) isArchived(k archivedKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.archived.Contains(k)
}

func (s *System) markArchived(ks []archivedKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range ks {
		s.archived.Add(k, struct{}{})
	}
}

// Import creates a run whose first checkpoint is the soup in x.
// The soup's shape and mutation rate override those in cfg.
func (s *System) Import(ctx context.Context, cfg ExperimentConfig, x soup.State) (RunID, error) {
	sp, err := soup.FromState(x)
	if err != nil {
		return 0, err
	}
	cfg.SoupSize = sp.Size()
	cfg.TapeLength = sp.TapeLength()
	cfg.MutationRate = sp.MutationRate()
	rid, err := s.CreateRun(ctx, cfg)
	if err != nil {
		return 0, err
	}
	if _, err := s.SaveCheckpoint(ctx, rid, sp); err != nil {
		return 0, err
	}
	return rid, nil
}
