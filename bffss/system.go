// package bffss manages experiment runs over a sqlite database.
//
// A System holds runs. Each run has a configuration, a series of samples,
// a series of checkpoints, and a genome archive which the checkpoints' censuses refer to.
package bffss

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/jmoiron/sqlx"

	"abiogenesis.dev/bff/internal/cadata"
	"abiogenesis.dev/bff/internal/dbutil"
	"abiogenesis.dev/bff/internal/sqlstores"
)

type RunID int64

// A System is a single database.
// Systems contain runs.
type System struct {
	db *sqlx.DB

	mu       sync.Mutex
	archived *simplelru.LRU[archivedKey, struct{}]
}

// archivedKey identifies a genome known to be in an archive.
type archivedKey struct {
	Archive sqlstores.ArchiveID
	Genome  cadata.ID
}

func NewSystem(db *sqlx.DB) *System {
	archived, err := simplelru.NewLRU[archivedKey, struct{}](1<<14, nil)
	if err != nil {
		panic(err)
	}
	return &System{
		db:       db,
		archived: archived,
	}
}

// RunInfo describes a run.
type RunInfo struct {
	ID     RunID
	Config ExperimentConfig
	// TransitionPoint is the interaction count at which a phase transition was detected, if any.
	TransitionPoint *uint64
	// Results is nil until the run has finished.
	Results   *Results
	CreatedAt Timestamp

	archiveID sqlstores.ArchiveID
}

func (ri *RunInfo) Finished() bool {
	return ri.Results != nil
}

// CreateRun validates cfg and creates a new run, which has not yet been started.
func (s *System) CreateRun(ctx context.Context, cfg ExperimentConfig) (RunID, error) {
	if err := cfg.Validate(); err != nil {
		return 0, err
	}
	cfgData, err := json.Marshal(cfg)
	if err != nil {
		return 0, err
	}
	return dbutil.DoTx1(ctx, s.db, func(tx *sqlx.Tx) (RunID, error) {
		aid, err := sqlstores.CreateArchive(tx)
		if err != nil {
			return 0, err
		}
		var rid RunID
		if err := tx.GetContext(ctx, &rid, `INSERT INTO runs (archive_id, config, created_at) VALUES (?, ?, ?) RETURNING id`,
			aid, cfgData, Now()); err != nil {
			return 0, err
		}
		return rid, nil
	})
}

// GetRun returns the run at rid, or ErrRunNotFound.
func (s *System) GetRun(ctx context.Context, rid RunID) (*RunInfo, error) {
	return dbutil.DoTx1(ctx, s.db, func(tx *sqlx.Tx) (*RunInfo, error) {
		return getRun(ctx, tx, rid)
	})
}

// ListRuns returns all the runs in the system, ordered by ID.
func (s *System) ListRuns(ctx context.Context) (ret []RunInfo, _ error) {
	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+runColumns+` FROM runs ORDER BY id`); err != nil {
		return nil, err
	}
	for _, row := range rows {
		ri, err := row.info()
		if err != nil {
			return nil, err
		}
		ret = append(ret, *ri)
	}
	return ret, nil
}

// DropRun deletes a run, its samples, its checkpoints and its genome archive.
func (s *System) DropRun(ctx context.Context, rid RunID) error {
	return dbutil.DoTx(ctx, s.db, func(tx *sqlx.Tx) error {
		ri, err := getRun(ctx, tx, rid)
		if err != nil {
			return err
		}
		for _, q := range []string{
			`DELETE FROM census WHERE checkpoint_id IN (SELECT id FROM checkpoints WHERE run_id = ?)`,
			`DELETE FROM checkpoints WHERE run_id = ?`,
			`DELETE FROM samples WHERE run_id = ?`,
			`DELETE FROM runs WHERE id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, rid); err != nil {
				return err
			}
		}
		return sqlstores.DropArchive(tx, ri.archiveID)
	})
}

// FinishRun records the results of a run.
func (s *System) FinishRun(ctx context.Context, rid RunID, res Results) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return s.updateRun(ctx, rid, `UPDATE runs SET results = ? WHERE id = ?`, data, rid)
}

func (s *System) setTransition(ctx context.Context, rid RunID, point uint64) error {
	return s.updateRun(ctx, rid, `UPDATE runs SET transition_point = ? WHERE id = ?`, point, rid)
}

func (s *System) updateRun(ctx context.Context, rid RunID, q string, args ...any) error {
	return dbutil.DoTx(ctx, s.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrRunNotFound{rid}
		}
		return nil
	})
}

// Sample is a measurement of the soup taken after a batch.
type Sample struct {
	Interactions uint64  `json:"interactions" db:"interactions"`
	OpsMean      float64 `json:"ops_mean" db:"ops_mean"`
	OpsMax       uint64  `json:"ops_max" db:"ops_max"`
	Diversity    float64 `json:"diversity" db:"diversity"`
	Unique       int     `json:"unique" db:"uniq"`
}

// AppendSample records a sample, replacing any sample previously taken at the same interaction count.
func (s *System) AppendSample(ctx context.Context, rid RunID, x Sample) error {
	return dbutil.DoTx(ctx, s.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO samples (run_id, interactions, ops_mean, ops_max, diversity, uniq)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (run_id, interactions) DO UPDATE SET
				ops_mean = excluded.ops_mean,
				ops_max = excluded.ops_max,
				diversity = excluded.diversity,
				uniq = excluded.uniq`,
			rid, x.Interactions, x.OpsMean, x.OpsMax, x.Diversity, x.Unique)
		return err
	})
}

// ListSamples returns the samples for a run in order.
func (s *System) ListSamples(ctx context.Context, rid RunID) (ret []Sample, _ error) {
	err := s.db.SelectContext(ctx, &ret, `SELECT interactions, ops_mean, ops_max, diversity, uniq
		FROM samples WHERE run_id = ? ORDER BY interactions`, rid)
	return ret, err
}

// truncateSamples deletes the samples taken after interactions.
func (s *System) truncateSamples(ctx context.Context, rid RunID, interactions uint64) error {
	return dbutil.DoTx(ctx, s.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM samples WHERE run_id = ? AND interactions > ?`, rid, interactions)
		return err
	})
}

const runColumns = `id, archive_id, config, transition_point, results, created_at`

type runRow struct {
	ID              RunID     `db:"id"`
	ArchiveID       uint64    `db:"archive_id"`
	Config          []byte    `db:"config"`
	TransitionPoint *int64    `db:"transition_point"`
	Results         []byte    `db:"results"`
	CreatedAt       Timestamp `db:"created_at"`
}

func (r *runRow) info() (*RunInfo, error) {
	ri := &RunInfo{
		ID:        r.ID,
		CreatedAt: r.CreatedAt,
		archiveID: r.ArchiveID,
	}
	if err := json.Unmarshal(r.Config, &ri.Config); err != nil {
		return nil, fmt.Errorf("run %d: parsing config: %w", r.ID, err)
	}
	if r.TransitionPoint != nil {
		tp := uint64(*r.TransitionPoint)
		ri.TransitionPoint = &tp
	}
	if r.Results != nil {
		ri.Results = new(Results)
		if err := json.Unmarshal(r.Results, ri.Results); err != nil {
			return nil, fmt.Errorf("run %d: parsing results: %w", r.ID, err)
		}
	}
	return ri, nil
}

func getRun(ctx context.Context, tx *sqlx.Tx, rid RunID) (*RunInfo, error) {
	var row runRow
	if err := tx.GetContext(ctx, &row, `SELECT `+runColumns+` FROM runs WHERE id = ?`, rid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound{rid}
		}
		return nil, err
	}
	return row.info()
}
