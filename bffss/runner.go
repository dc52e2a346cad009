package bffss

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"abiogenesis.dev/bff/internal/ringbuf"
	"abiogenesis.dev/bff/soup"
)

const (
	// transitionCheckInterval is how often, in interactions, the phase transition condition is checked.
	transitionCheckInterval = 10_000
	// progressInterval is how often, in interactions, progress is logged.
	progressInterval = 200_000
)

// Results summarize a finished run.
type Results struct {
	RuntimeSeconds     float64 `json:"runtime_seconds"`
	TransitionDetected bool    `json:"transition_detected"`
	TransitionPoint    *uint64 `json:"transition_point"`
	FinalDiversity     float64 `json:"final_diversity"`
	FinalUniqueCount   int     `json:"final_unique_count"`
}

// Runner drives runs to completion, persisting their progress to a System.
type Runner struct {
	sys *System
}

func NewRunner(sys *System) *Runner {
	return &Runner{sys: sys}
}

// Run starts a run from its initial soup, and runs it until the configured number of interactions.
// If ctx is cancelled, a checkpoint is saved and the context's error is returned.
func (r *Runner) Run(ctx context.Context, rid RunID) (*Results, error) {
	ri, err := r.sys.GetRun(ctx, rid)
	if err != nil {
		return nil, err
	}
	switch _, err := r.sys.LatestCheckpoint(ctx, rid); {
	case err == nil:
		return nil, fmt.Errorf("run %d has already been started", rid)
	case !errors.As(err, &ErrNoCheckpoint{}):
		return nil, err
	}
	cfg := ri.Config
	sp, err := soup.New(cfg.SoupSize, cfg.TapeLength, cfg.MutationRate, &cfg.Seed)
	if err != nil {
		return nil, err
	}
	logctx.Info(ctx, "starting run",
		zap.Int64("run", int64(rid)),
		zap.Int("soup_size", cfg.SoupSize),
		zap.Int("tape_length", cfg.TapeLength),
		zap.Uint64("total_interactions", cfg.TotalInteractions),
		zap.Float64("mutation_rate", cfg.MutationRate),
		zap.Int64("seed", cfg.Seed),
	)
	logctx.Info(ctx, "initial soup",
		zap.Float64("diversity", sp.Diversity()),
		zap.Int("unique", sp.CountUniqueTapes()),
	)
	sess := newSession(r.sys, ri, sp)
	return sess.run(ctx)
}

// Resume continues a run from its latest checkpoint.
// Samples taken after the checkpoint are discarded and retaken.
func (r *Runner) Resume(ctx context.Context, rid RunID) (*Results, error) {
	ri, err := r.sys.GetRun(ctx, rid)
	if err != nil {
		return nil, err
	}
	info, err := r.sys.LatestCheckpoint(ctx, rid)
	if err != nil {
		return nil, err
	}
	sp, err := r.sys.loadCheckpoint(ctx, info.ID)
	if err != nil {
		return nil, err
	}
	if err := r.sys.truncateSamples(ctx, rid, info.Interactions); err != nil {
		return nil, err
	}
	samples, err := r.sys.ListSamples(ctx, rid)
	if err != nil {
		return nil, err
	}
	logctx.Info(ctx, "resuming run",
		zap.Int64("run", int64(rid)),
		zap.Uint64("interactions", info.Interactions),
		zap.Int("samples", len(samples)),
	)
	sess := newSession(r.sys, ri, sp)
	sess.prior = time.Duration(info.Elapsed * float64(time.Second))
	sess.saved = true
	for _, x := range samples {
		sess.observe(x)
	}
	return sess.run(ctx)
}

// RunReplicates creates and runs one experiment per config concurrently.
// The returned IDs and results are in the same order as cfgs.
func RunReplicates(ctx context.Context, sys *System, cfgs []ExperimentConfig) ([]RunID, []Results, error) {
	ids := make([]RunID, len(cfgs))
	for i, cfg := range cfgs {
		rid, err := sys.CreateRun(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		ids[i] = rid
	}
	results := make([]Results, len(cfgs))
	r := NewRunner(sys)
	eg, ctx := errgroup.WithContext(ctx)
	for i := range ids {
		eg.Go(func() error {
			res, err := r.Run(ctx, ids[i])
			if err != nil {
				return fmt.Errorf("replicate %d (run %d): %w", i, ids[i], err)
			}
			results[i] = *res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return ids, nil, err
	}
	return ids, results, nil
}

// session is the in-memory state of a run being executed.
type session struct {
	sys *System
	id  RunID
	cfg ExperimentConfig
	sp  *soup.Soup

	// window holds the most recent sampled operation means.
	window     ringbuf.RingBuf[float64]
	numSamples int
	transition *uint64
	// prior is the simulation time spent before this session.
	prior time.Duration
	// saved is true when the current soup has been checkpointed.
	saved bool
}

func newSession(sys *System, ri *RunInfo, sp *soup.Soup) *session {
	return &session{
		sys:        sys,
		id:         ri.ID,
		cfg:        ri.Config,
		sp:         sp,
		window:     ringbuf.New[float64](ri.Config.TransitionWindow),
		transition: ri.TransitionPoint,
	}
}

func (s *session) run(ctx context.Context) (*Results, error) {
	cfg := s.cfg
	batch := uint64(cfg.BatchSize)
	start := time.Now()
	lastProgress := start
	elapsed := func() time.Duration { return s.prior + time.Since(start) }
	// writes are not interrupted by ctx, so that a cancelled run is left consistent.
	dbctx := context.WithoutCancel(ctx)

	for s.sp.InteractionCount()+batch <= cfg.TotalInteractions {
		if err := ctx.Err(); err != nil {
			if !s.saved {
				if _, err2 := s.sys.saveCheckpoint(dbctx, s.id, s.sp, elapsed()); err2 != nil {
					return nil, errors.Join(err, err2)
				}
			}
			logctx.Warnf(ctx, "run %d interrupted at %d interactions", s.id, s.sp.InteractionCount())
			return nil, err
		}
		results := s.sp.Run(cfg.BatchSize, cfg.MaxOps, cfg.TimeoutProb)
		count := s.sp.InteractionCount()
		s.saved = false

		if count%cfg.SampleInterval == 0 {
			stats := soup.Summarize(results)
			x := Sample{
				Interactions: count,
				OpsMean:      stats.OpsMean,
				OpsMax:       stats.OpsMax,
				Diversity:    s.sp.Diversity(),
				Unique:       s.sp.CountUniqueTapes(),
			}
			if err := s.sys.AppendSample(dbctx, s.id, x); err != nil {
				return nil, err
			}
			s.observe(x)
		}
		if s.transition == nil && count%transitionCheckInterval == 0 && s.transitioned() {
			s.transition = &count
			if err := s.sys.setTransition(dbctx, s.id, count); err != nil {
				return nil, err
			}
			logctx.Info(ctx, "phase transition", zap.Int64("run", int64(s.id)), zap.Uint64("interactions", count))
		}
		if cfg.CheckpointEvery > 0 && count%cfg.CheckpointEvery == 0 {
			if _, err := s.sys.saveCheckpoint(dbctx, s.id, s.sp, elapsed()); err != nil {
				return nil, err
			}
			s.saved = true
		}
		if count%progressInterval == 0 {
			rate := float64(progressInterval) / time.Since(lastProgress).Seconds()
			lastProgress = time.Now()
			logctx.Info(ctx, "progress",
				zap.Int64("run", int64(s.id)),
				zap.Uint64("interactions", count),
				zap.Float64("rate", rate),
				zap.Float64("ops_mean", s.lastOpsMean()),
				zap.Float64("diversity", s.sp.Diversity()),
			)
		}
	}

	if !s.saved {
		if _, err := s.sys.saveCheckpoint(dbctx, s.id, s.sp, elapsed()); err != nil {
			return nil, err
		}
	}
	res := Results{
		RuntimeSeconds:     elapsed().Seconds(),
		TransitionDetected: s.transition != nil,
		TransitionPoint:    s.transition,
		FinalDiversity:     s.sp.Diversity(),
		FinalUniqueCount:   s.sp.CountUniqueTapes(),
	}
	if err := s.sys.FinishRun(dbctx, s.id, res); err != nil {
		return nil, err
	}
	if res.TransitionDetected {
		logctx.Infof(ctx, "run %d complete: phase transition at %d", s.id, *res.TransitionPoint)
	} else {
		logctx.Infof(ctx, "run %d complete: no phase transition detected", s.id)
	}
	logctx.Info(ctx, "final soup",
		zap.Int64("run", int64(s.id)),
		zap.Float64("runtime_seconds", res.RuntimeSeconds),
		zap.Float64("diversity", res.FinalDiversity),
		zap.Int("unique", res.FinalUniqueCount),
	)
	return &res, nil
}

func (s *session) observe(x Sample) {
	s.window.PushBack(x.OpsMean)
	s.numSamples++
}

// transitioned is true when more samples than the window holds have been taken,
// and the mean of the window exceeds the threshold.
func (s *session) transitioned() bool {
	if s.numSamples <= s.window.MaxLen() {
		return false
	}
	var sum float64
	for i := 0; i < s.window.Len(); i++ {
		sum += s.window.At(i)
	}
	return sum/float64(s.window.Len()) > s.cfg.TransitionOps
}

func (s *session) lastOpsMean() float64 {
	if s.window.Len() == 0 {
		return 0
	}
	return s.window.At(s.window.Len() - 1)
}
