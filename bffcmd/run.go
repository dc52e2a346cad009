package bffcmd

import (
	"context"
	"encoding/json"
	"os"

	"go.brendoncarroll.net/star"

	"abiogenesis.dev/bff/bffss"
)

var runCmd = star.Command{
	Metadata: star.Metadata{
		Short: "create a new run and run it to completion",
	},
	Flags: append([]star.IParam{DBParam, metricsOutParam, stateOutParam}, configParams...),
	F: func(c star.Context) error {
		ctx, err := newContext(c)
		if err != nil {
			return err
		}
		sys := bffss.NewSystem(DBParam.Load(c))
		rid, err := sys.CreateRun(ctx, buildConfig(c))
		if err != nil {
			return err
		}
		c.Printf("created run %d\n", rid)
		res, err := bffss.NewRunner(sys).Run(ctx, rid)
		if err != nil {
			return err
		}
		return finish(ctx, c, sys, rid, res)
	},
}

var resumeCmd = star.Command{
	Metadata: star.Metadata{
		Short: "continue a run from its latest checkpoint",
	},
	Flags: []star.IParam{DBParam, metricsOutParam, stateOutParam},
	Pos:   []star.IParam{RunIDParam},
	F: func(c star.Context) error {
		ctx, err := newContext(c)
		if err != nil {
			return err
		}
		sys := bffss.NewSystem(DBParam.Load(c))
		rid := RunIDParam.Load(c)
		res, err := bffss.NewRunner(sys).Resume(ctx, rid)
		if err != nil {
			return err
		}
		return finish(ctx, c, sys, rid, res)
	},
}

var replicatesCmd = star.Command{
	Metadata: star.Metadata{
		Short: "run the same experiment with several consecutive seeds in parallel",
	},
	Flags: append([]star.IParam{DBParam, countParam}, configParams...),
	F: func(c star.Context) error {
		ctx, err := newContext(c)
		if err != nil {
			return err
		}
		sys := bffss.NewSystem(DBParam.Load(c))
		base := buildConfig(c)
		cfgs := make([]bffss.ExperimentConfig, countParam.Load(c))
		for i := range cfgs {
			cfgs[i] = base
			cfgs[i].Seed = base.Seed + int64(i)
		}
		ids, results, err := bffss.RunReplicates(ctx, sys, cfgs)
		if err != nil {
			return err
		}
		c.Printf("%-6s %-8s %-12s %-10s %-8s\n", "RUN", "SEED", "TRANSITION", "DIVERSITY", "UNIQUE")
		for i, res := range results {
			transition := "-"
			if res.TransitionPoint != nil {
				transition = formatCount(*res.TransitionPoint)
			}
			c.Printf("%-6d %-8d %-12s %-10.4f %-8d\n", ids[i], cfgs[i].Seed, transition, res.FinalDiversity, res.FinalUniqueCount)
		}
		return nil
	},
}

// finish prints the results of a run, and writes the metrics and final state if requested.
func finish(ctx context.Context, c star.Context, sys *bffss.System, rid bffss.RunID, res *bffss.Results) error {
	ri, err := sys.GetRun(ctx, rid)
	if err != nil {
		return err
	}
	sp, err := sys.LoadCheckpoint(ctx, rid)
	if err != nil {
		return err
	}
	c.Printf("run %d complete in %.1fs\n", rid, res.RuntimeSeconds)
	c.Printf("  diversity: %.4f\n", res.FinalDiversity)
	c.Printf("  unique tapes: %d/%d\n", res.FinalUniqueCount, ri.Config.SoupSize)
	if res.TransitionDetected {
		c.Printf("  phase transition at interaction %s\n", formatCount(*res.TransitionPoint))
	} else {
		c.Printf("  no phase transition detected\n")
	}
	printSpecies(c, sp.TopSpecies(topN), sp.Size())

	if p := metricsOutParam.Load(c); p != "" {
		m, err := sys.Metrics(ctx, rid)
		if err != nil {
			return err
		}
		if err := writeFile(p, func(f *os.File) error {
			return bffss.WriteMetrics(f, m)
		}); err != nil {
			return err
		}
		c.Printf("metrics saved to %s\n", p)
	}
	if p := stateOutParam.Load(c); p != "" {
		if err := writeFile(p, func(f *os.File) error {
			return json.NewEncoder(f).Encode(sp.State())
		}); err != nil {
			return err
		}
		c.Printf("final state saved to %s\n", p)
	}
	return nil
}

func writeFile(p string, fn func(f *os.File) error) error {
	f, err := os.Create(p)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
