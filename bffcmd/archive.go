package bffcmd

import (
	"encoding/hex"

	"go.brendoncarroll.net/star"
	"go.brendoncarroll.net/state"

	"abiogenesis.dev/bff/bffss"
	"abiogenesis.dev/bff/internal/cadata"
	"abiogenesis.dev/bff/isa"
)

var genomesCmd = star.Command{
	Metadata: star.Metadata{
		Short: "list the genomes archived by a run",
	},
	Flags: []star.IParam{DBParam, fromParam},
	Pos:   []star.IParam{RunIDParam},
	F: func(c star.Context) error {
		sys := bffss.NewSystem(DBParam.Load(c))
		rid := RunIDParam.Load(c)
		span := state.TotalSpan[cadata.ID]()
		if from := fromParam.Load(c); from != nil {
			span = span.WithLowerIncl(*from)
		}
		var ids []cadata.ID
		if err := sys.ForEachGenome(c, rid, span, func(id cadata.ID) error {
			ids = append(ids, id)
			return nil
		}); err != nil {
			return err
		}
		for _, id := range ids {
			data, err := sys.Genome(c, rid, id)
			if err != nil {
				return err
			}
			c.Printf("%v %s\n", id, isa.Render(data, '.'))
		}
		return nil
	},
}

var genomeCmd = star.Command{
	Metadata: star.Metadata{
		Short: "print a genome from a run's archive",
	},
	Flags: []star.IParam{DBParam},
	Pos:   []star.IParam{RunIDParam, genomeIDParam},
	F: func(c star.Context) error {
		sys := bffss.NewSystem(DBParam.Load(c))
		data, err := sys.Genome(c, RunIDParam.Load(c), genomeIDParam.Load(c))
		if err != nil {
			return err
		}
		c.Printf("PROGRAM: %s\n", isa.Render(data, '.'))
		c.Printf("DATA:\n%s", hex.Dump(data))
		return nil
	},
}

var genomeIDParam = star.Param[cadata.ID]{Name: "genome", Parse: cadata.ParseID}

// fromParam is the first genome ID to list, or "" to list from the beginning.
var fromParam = star.Param[*cadata.ID]{
	Name:    "from",
	Default: star.Ptr(""),
	Parse: func(x string) (*cadata.ID, error) {
		if x == "" {
			return nil, nil
		}
		id, err := cadata.ParseID(x)
		if err != nil {
			return nil, err
		}
		return &id, nil
	},
}
