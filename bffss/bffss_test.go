package bffss

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
	"go.brendoncarroll.net/state"

	"abiogenesis.dev/bff"
	"abiogenesis.dev/bff/bfftape"
	"abiogenesis.dev/bff/internal/cadata"
	"abiogenesis.dev/bff/internal/testutil"
	"abiogenesis.dev/bff/soup"
)

func smallConfig(seed int64) ExperimentConfig {
	cfg := DefaultConfig()
	cfg.TotalInteractions = 20_000
	cfg.SoupSize = 16
	cfg.TapeLength = 16
	cfg.Seed = seed
	cfg.BatchSize = 100
	cfg.SampleInterval = 1000
	cfg.MaxOps = 128
	cfg.CheckpointEvery = 5000
	cfg.TransitionWindow = 5
	return cfg
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	def := DefaultConfig()
	require.NoError(t, def.Validate())

	tcs := []struct {
		Name   string
		Modify func(*ExperimentConfig)
	}{
		{"SoupSize", func(c *ExperimentConfig) { c.SoupSize = 1 }},
		{"TapeLength", func(c *ExperimentConfig) { c.TapeLength = 0 }},
		{"MutationRate", func(c *ExperimentConfig) { c.MutationRate = 1.5 }},
		{"TimeoutProb", func(c *ExperimentConfig) { c.TimeoutProb = -0.1 }},
		{"BatchSize", func(c *ExperimentConfig) { c.BatchSize = 0 }},
		{"SampleInterval", func(c *ExperimentConfig) { c.SampleInterval = 0 }},
		{"MaxOps", func(c *ExperimentConfig) { c.MaxOps = 0 }},
		{"TransitionWindow", func(c *ExperimentConfig) { c.TransitionWindow = 0 }},
	}
	for i, tc := range tcs {
		t.Run(fmt.Sprintf("%d/%s", i, tc.Name), func(t *testing.T) {
			cfg := DefaultConfig()
			tc.Modify(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestCreateRun(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	s := NewTestSys(t)

	cfg := smallConfig(1)
	before := Now()
	rid, err := s.CreateRun(ctx, cfg)
	require.NoError(t, err)

	ri, err := s.GetRun(ctx, rid)
	require.NoError(t, err)
	require.Equal(t, rid, ri.ID)
	require.False(t, ri.CreatedAt.Before(before.TAI64N))
	require.False(t, ri.CreatedAt.After(Now().TAI64N))
	require.Equal(t, cfg, ri.Config)
	require.False(t, ri.Finished())
	require.Nil(t, ri.TransitionPoint)

	bad := cfg
	bad.SoupSize = 0
	_, err = s.CreateRun(ctx, bad)
	require.Error(t, err)

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	_, err = s.GetRun(ctx, rid+1)
	require.ErrorIs(t, err, ErrRunNotFound{rid + 1})
}

func TestTimestamp(t *testing.T) {
	t.Parallel()
	ts := Now()
	v, err := ts.Value()
	require.NoError(t, err)
	require.Len(t, v, 12)

	var ts2 Timestamp
	require.NoError(t, ts2.Scan(v))
	require.Equal(t, ts, ts2)
	require.Equal(t, ts.GoTime(), ts2.GoTime())

	require.Error(t, ts2.Scan([]byte{1, 2, 3}))
	require.Error(t, ts2.Scan("2024-01-01 00:00:00"))
}

func TestDropRun(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	s := NewTestSys(t)
	rid, err := s.CreateRun(ctx, smallConfig(1))
	require.NoError(t, err)
	sp, err := soup.New(8, 8, 0, ptr[int64](1))
	require.NoError(t, err)
	_, err = s.SaveCheckpoint(ctx, rid, sp)
	require.NoError(t, err)
	require.NoError(t, s.AppendSample(ctx, rid, Sample{Interactions: 1000}))

	require.NoError(t, s.DropRun(ctx, rid))
	_, err = s.GetRun(ctx, rid)
	require.ErrorIs(t, err, ErrRunNotFound{rid})
	require.ErrorIs(t, s.DropRun(ctx, rid), ErrRunNotFound{rid})

	for _, table := range []string{"runs", "checkpoints", "samples", "census", "genomes"} {
		var count int
		require.NoError(t, s.db.Get(&count, `SELECT count(*) FROM `+table))
		require.Zero(t, count, table)
	}
}

func TestCheckpoint(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	s := NewTestSys(t)
	rid, err := s.CreateRun(ctx, smallConfig(1))
	require.NoError(t, err)

	_, err = s.LoadCheckpoint(ctx, rid)
	require.ErrorIs(t, err, ErrNoCheckpoint{rid})

	sp, err := soup.New(32, 16, 0, ptr[int64](7))
	require.NoError(t, err)
	sp.Run(100, 256, 0)
	cid, err := s.SaveCheckpoint(ctx, rid, sp)
	require.NoError(t, err)

	sp2, err := s.LoadCheckpoint(ctx, rid)
	require.NoError(t, err)
	require.Equal(t, sp.InteractionCount(), sp2.InteractionCount())
	require.Equal(t, sp.State(), sp2.State())

	info, err := s.LatestCheckpoint(ctx, rid)
	require.NoError(t, err)
	require.Equal(t, cid, info.ID)
	require.Equal(t, uint64(100), info.Interactions)
	ri, err := s.GetRun(ctx, rid)
	require.NoError(t, err)
	require.False(t, info.CreatedAt.Before(ri.CreatedAt.TAI64N))

	// every census entry refers to an archived genome
	census, err := s.Census(ctx, cid)
	require.NoError(t, err)
	require.Len(t, census, sp.CountUniqueTapes())
	var total int
	for _, ent := range census {
		total += ent.Count
		data, err := s.Genome(ctx, rid, ent.Genome)
		require.NoError(t, err)
		require.Len(t, data, 16)
		require.Equal(t, ent.Genome, bff.Hash(nil, data))
	}
	require.Equal(t, sp.Size(), total)
}

func TestCheckpointDedup(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	s := NewTestSys(t)
	rid, err := s.CreateRun(ctx, smallConfig(1))
	require.NoError(t, err)

	// all tapes identical
	st := soup.State{Size: 4, TapeLength: 4, MutationRate: 0}
	for i := 0; i < 4; i++ {
		st.Tapes = append(st.Tapes, soupTape(1, 2, 3, 4))
	}
	sp, err := soup.FromState(st)
	require.NoError(t, err)

	cid1, err := s.SaveCheckpoint(ctx, rid, sp)
	require.NoError(t, err)
	cid2, err := s.SaveCheckpoint(ctx, rid, sp)
	require.NoError(t, err)
	c1, err := s.Census(ctx, cid1)
	require.NoError(t, err)
	c2, err := s.Census(ctx, cid2)
	require.NoError(t, err)
	require.Equal(t, c1, c2)
	require.Equal(t, []CensusEntry{{Genome: bff.Hash(nil, []byte{1, 2, 3, 4}), Count: 4}}, c1)

	var count int
	require.NoError(t, s.db.Get(&count, `SELECT count(*) FROM genomes`))
	require.Equal(t, 1, count)

	cps, err := s.ListCheckpoints(ctx, rid)
	require.NoError(t, err)
	require.Len(t, cps, 2)
}

func TestArchiveShared(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	s := NewTestSys(t)
	rid1, err := s.CreateRun(ctx, smallConfig(1))
	require.NoError(t, err)
	rid2, err := s.CreateRun(ctx, smallConfig(1))
	require.NoError(t, err)

	sp, err := soup.New(32, 16, 0, ptr[int64](3))
	require.NoError(t, err)
	_, err = s.SaveCheckpoint(ctx, rid1, sp)
	require.NoError(t, err)
	// a second system has a cold cache, so it must look in the database.
	s2 := NewSystem(s.db)
	_, err = s2.SaveCheckpoint(ctx, rid1, sp)
	require.NoError(t, err)
	cid, err := s2.SaveCheckpoint(ctx, rid2, sp)
	require.NoError(t, err)

	unique := sp.CountUniqueTapes()
	for _, rid := range []RunID{rid1, rid2} {
		n, err := s.ArchiveSize(ctx, rid)
		require.NoError(t, err)
		require.EqualValues(t, unique, n)
	}
	// the genome data is only stored once
	var count int
	require.NoError(t, s.db.Get(&count, `SELECT count(*) FROM genomes`))
	require.Equal(t, unique, count)

	census, err := s.Census(ctx, cid)
	require.NoError(t, err)
	var want []cadata.ID
	for _, ent := range census {
		want = append(want, ent.Genome)
	}
	slices.SortFunc(want, cadata.ID.Compare)
	var have []cadata.ID
	require.NoError(t, s.ForEachGenome(ctx, rid2, state.TotalSpan[cadata.ID](), func(id cadata.ID) error {
		have = append(have, id)
		return nil
	}))
	require.Equal(t, want, have)

	// dropping one run leaves the other's archive intact
	require.NoError(t, s.DropRun(ctx, rid1))
	for _, id := range have {
		_, err := s.Genome(ctx, rid2, id)
		require.NoError(t, err)
	}
	_, err = s.ArchiveSize(ctx, rid1)
	require.ErrorIs(t, err, ErrRunNotFound{rid1})
	require.ErrorIs(t, s.ForEachGenome(ctx, rid1, state.TotalSpan[cadata.ID](), func(cadata.ID) error { return nil }), ErrRunNotFound{rid1})
}

func TestRunner(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	s := NewTestSys(t)
	cfg := smallConfig(3)
	// any sampled mean exceeds this, so the transition is found at the first check.
	cfg.TransitionOps = -1
	rid, err := s.CreateRun(ctx, cfg)
	require.NoError(t, err)

	r := NewRunner(s)
	res, err := r.Run(ctx, rid)
	require.NoError(t, err)
	require.True(t, res.TransitionDetected)
	require.Equal(t, uint64(10_000), *res.TransitionPoint)

	samples, err := s.ListSamples(ctx, rid)
	require.NoError(t, err)
	require.Len(t, samples, 20)
	for i, x := range samples {
		require.Equal(t, uint64(i+1)*cfg.SampleInterval, x.Interactions)
		require.LessOrEqual(t, x.OpsMax, cfg.MaxOps)
		require.LessOrEqual(t, x.OpsMean, float64(x.OpsMax))
		require.GreaterOrEqual(t, x.Unique, 1)
	}

	cps, err := s.ListCheckpoints(ctx, rid)
	require.NoError(t, err)
	require.Len(t, cps, 4)
	require.Equal(t, cfg.TotalInteractions, cps[len(cps)-1].Interactions)

	ri, err := s.GetRun(ctx, rid)
	require.NoError(t, err)
	require.True(t, ri.Finished())
	require.Equal(t, res, ri.Results)
	require.Equal(t, res.TransitionPoint, ri.TransitionPoint)

	sp, err := s.LoadCheckpoint(ctx, rid)
	require.NoError(t, err)
	require.Equal(t, res.FinalUniqueCount, sp.CountUniqueTapes())

	_, err = r.Run(ctx, rid)
	require.Error(t, err)
}

func TestRunnerNoTransition(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	s := NewTestSys(t)
	cfg := smallConfig(4)
	cfg.TotalInteractions = 5000
	cfg.CheckpointEvery = 0
	cfg.TransitionOps = float64(cfg.MaxOps)
	rid, err := s.CreateRun(ctx, cfg)
	require.NoError(t, err)

	res, err := NewRunner(s).Run(ctx, rid)
	require.NoError(t, err)
	require.False(t, res.TransitionDetected)
	require.Nil(t, res.TransitionPoint)

	cps, err := s.ListCheckpoints(ctx, rid)
	require.NoError(t, err)
	require.Len(t, cps, 1)
}

func TestRunnerReproducible(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	s := NewTestSys(t)
	cfg := smallConfig(5)
	cfg.TotalInteractions = 5000
	cfg.MutationRate = 0.01
	r := NewRunner(s)

	var states []soup.State
	var series [][]Sample
	for i := 0; i < 2; i++ {
		rid, err := s.CreateRun(ctx, cfg)
		require.NoError(t, err)
		_, err = r.Run(ctx, rid)
		require.NoError(t, err)
		sp, err := s.LoadCheckpoint(ctx, rid)
		require.NoError(t, err)
		states = append(states, sp.State())
		samples, err := s.ListSamples(ctx, rid)
		require.NoError(t, err)
		series = append(series, samples)
	}
	require.Equal(t, states[0], states[1])
	require.Equal(t, series[0], series[1])
}

func TestRunnerCancelResume(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	s := NewTestSys(t)
	cfg := smallConfig(6)
	cfg.TotalInteractions = 3000
	cfg.CheckpointEvery = 0
	rid, err := s.CreateRun(ctx, cfg)
	require.NoError(t, err)

	r := NewRunner(s)
	_, err = r.Resume(ctx, rid)
	require.ErrorIs(t, err, ErrNoCheckpoint{rid})

	// a session started with a cancelled context checkpoints the initial soup and stops.
	ri, err := s.GetRun(ctx, rid)
	require.NoError(t, err)
	sp, err := soup.New(cfg.SoupSize, cfg.TapeLength, cfg.MutationRate, &cfg.Seed)
	require.NoError(t, err)
	cctx, cf := context.WithCancel(ctx)
	cf()
	_, err = newSession(s, ri, sp).run(cctx)
	require.ErrorIs(t, err, context.Canceled)

	info, err := s.LatestCheckpoint(ctx, rid)
	require.NoError(t, err)
	require.Equal(t, uint64(0), info.Interactions)

	res, err := r.Resume(ctx, rid)
	require.NoError(t, err)
	require.NotNil(t, res)
	info, err = s.LatestCheckpoint(ctx, rid)
	require.NoError(t, err)
	require.Equal(t, cfg.TotalInteractions, info.Interactions)
	samples, err := s.ListSamples(ctx, rid)
	require.NoError(t, err)
	require.Len(t, samples, 3)
}

func TestRunReplicates(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	s := NewTestSys(t)
	var cfgs []ExperimentConfig
	for i := 0; i < 3; i++ {
		cfg := smallConfig(int64(i))
		cfg.TotalInteractions = 2000
		cfgs = append(cfgs, cfg)
	}
	ids, results, err := RunReplicates(ctx, s, cfgs)
	require.NoError(t, err)
	require.Len(t, ids, 3)
	require.Len(t, results, 3)
	for i, rid := range ids {
		ri, err := s.GetRun(ctx, rid)
		require.NoError(t, err)
		require.Equal(t, cfgs[i].Seed, ri.Config.Seed)
		require.Equal(t, &results[i], ri.Results)
	}
}

func TestImport(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	s := NewTestSys(t)
	sp, err := soup.New(8, 4, 0.5, ptr[int64](9))
	require.NoError(t, err)
	sp.Run(10, 64, 0)

	rid, err := s.Import(ctx, DefaultConfig(), sp.State())
	require.NoError(t, err)
	ri, err := s.GetRun(ctx, rid)
	require.NoError(t, err)
	require.Equal(t, 8, ri.Config.SoupSize)
	require.Equal(t, 4, ri.Config.TapeLength)
	require.Equal(t, 0.5, ri.Config.MutationRate)

	sp2, err := s.LoadCheckpoint(ctx, rid)
	require.NoError(t, err)
	require.Equal(t, sp.State(), sp2.State())

	_, err = s.Import(ctx, DefaultConfig(), soup.State{Size: 2, TapeLength: 4})
	require.Error(t, err)
}

func TestWriteMetrics(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	s := NewTestSys(t)
	cfg := smallConfig(8)
	cfg.TotalInteractions = 2000
	rid, err := s.CreateRun(ctx, cfg)
	require.NoError(t, err)
	_, err = NewRunner(s).Run(ctx, rid)
	require.NoError(t, err)

	m, err := s.Metrics(ctx, rid)
	require.NoError(t, err)
	buf := bytes.Buffer{}
	require.NoError(t, WriteMetrics(&buf, m))

	var out map[string]map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Contains(t, out, "config")
	require.Contains(t, out, "results")
	require.Contains(t, out["results"], "transition_point")
	require.Equal(t, []any{1000.0, 2000.0}, out["time_series"]["sampled_interactions"])
	require.Len(t, out["time_series"]["sampled_ops_mean"], 2)
}

func soupTape(data ...int) bfftape.State {
	return bfftape.State{Length: len(data), Data: data}
}

func ptr[T any](x T) *T {
	return &x
}
