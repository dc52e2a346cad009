package bffcmd

import (
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"
	"go.brendoncarroll.net/star"

	"abiogenesis.dev/bff/bffss"
	"abiogenesis.dev/bff/bfftape"
	"abiogenesis.dev/bff/isa"
	"abiogenesis.dev/bff/soup"
)

// topN is the number of species shown in summaries.
const topN = 10

var runsCmd = star.Command{
	Metadata: star.Metadata{
		Short: "list the runs in a database",
	},
	Flags: []star.IParam{DBParam},
	F: func(c star.Context) error {
		sys := bffss.NewSystem(DBParam.Load(c))
		runs, err := sys.ListRuns(c)
		if err != nil {
			return err
		}
		c.Printf("%-6s %-8s %-8s %-12s %-12s %-10s\n", "ID", "SIZE", "SEED", "TOTAL", "TRANSITION", "STATUS")
		for _, ri := range runs {
			transition := "-"
			if ri.TransitionPoint != nil {
				transition = formatCount(*ri.TransitionPoint)
			}
			status := "pending"
			if ri.Finished() {
				status = "finished"
			}
			c.Printf("%-6d %-8d %-8d %-12s %-12s %-10s\n", ri.ID, ri.Config.SoupSize, ri.Config.Seed,
				formatCount(ri.Config.TotalInteractions), transition, status)
		}
		return nil
	},
}

var dropCmd = star.Command{
	Metadata: star.Metadata{
		Short: "remove a run and its data from the database",
	},
	Flags: []star.IParam{DBParam},
	Pos:   []star.IParam{RunIDParam},
	F: func(c star.Context) error {
		sys := bffss.NewSystem(DBParam.Load(c))
		return sys.DropRun(c, RunIDParam.Load(c))
	},
}

var inspectCmd = star.Command{
	Metadata: star.Metadata{
		Short: "show a run's configuration, progress and dominant replicators",
	},
	Flags: []star.IParam{DBParam},
	Pos:   []star.IParam{RunIDParam},
	F: func(c star.Context) error {
		sys := bffss.NewSystem(DBParam.Load(c))
		rid := RunIDParam.Load(c)
		ri, err := sys.GetRun(c, rid)
		if err != nil {
			return err
		}
		cfgJSON, err := json.MarshalIndent(ri.Config, "", "  ")
		if err != nil {
			return err
		}
		c.Printf("RUN: %d\n", ri.ID)
		c.Printf("CREATED: %v\n", ri.CreatedAt.GoTime())
		c.Printf("CONFIG: %s\n", cfgJSON)
		if ri.TransitionPoint != nil {
			c.Printf("TRANSITION: %s\n", formatCount(*ri.TransitionPoint))
		}
		if ri.Results != nil {
			c.Printf("RUNTIME: %.1fs\n", ri.Results.RuntimeSeconds)
		}
		info, err := sys.LatestCheckpoint(c, rid)
		if err != nil {
			return err
		}
		c.Printf("CHECKPOINT: %d at %s interactions\n", info.ID, formatCount(info.Interactions))
		census, err := sys.Census(c, info.ID)
		if err != nil {
			return err
		}
		var species []soup.Species
		for _, ent := range census[:min(topN, len(census))] {
			genome, err := sys.Genome(c, rid, ent.Genome)
			if err != nil {
				return err
			}
			t, err := bfftape.New(len(genome), genome)
			if err != nil {
				return err
			}
			species = append(species, soup.Species{Hash: t.Hash(), Count: ent.Count, Genome: genome})
		}
		archived, err := sys.ArchiveSize(c, rid)
		if err != nil {
			return err
		}
		c.Printf("UNIQUE: %d\n", len(census))
		c.Printf("ARCHIVED: %s genomes\n", humanize.Comma(archived))
		printSpecies(c, species, ri.Config.SoupSize)
		return nil
	},
}

var importCmd = star.Command{
	Metadata: star.Metadata{
		Short: "create a run from a soup state saved as JSON",
	},
	Flags: append([]star.IParam{DBParam}, configParams...),
	Pos:   []star.IParam{fileParam},
	F: func(c star.Context) error {
		ctx, err := newContext(c)
		if err != nil {
			return err
		}
		f := fileParam.Load(c)
		defer f.Close()
		var state soup.State
		if err := json.NewDecoder(f).Decode(&state); err != nil {
			return fmt.Errorf("reading soup state: %w", err)
		}
		sys := bffss.NewSystem(DBParam.Load(c))
		rid, err := sys.Import(ctx, buildConfig(c), state)
		if err != nil {
			return err
		}
		c.Printf("imported run %d at %s interactions\n", rid, formatCount(state.InteractionCount))
		return nil
	},
}

func printSpecies(c star.Context, species []soup.Species, soupSize int) {
	if len(species) == 0 {
		return
	}
	c.Printf("dominant replicator: %d copies (%.1f%%)\n", species[0].Count, percent(species[0].Count, soupSize))
	c.Printf("top %d replicators:\n", len(species))
	for i, sp := range species {
		c.Printf("  #%-2d %4d copies (%5.1f%%) %s... %s\n", i+1, sp.Count, percent(sp.Count, soupSize),
			sp.HashHex()[:16], isa.Render(sp.Genome, '.'))
	}
}

func percent(n, total int) float64 {
	return 100 * float64(n) / float64(total)
}

func formatCount(x uint64) string {
	return humanize.Comma(int64(x))
}
