// package bffcmd implements the bff command line tool.
package bffcmd

import (
	"context"
	"strconv"

	"github.com/jmoiron/sqlx"
	"go.brendoncarroll.net/star"
	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"

	"abiogenesis.dev/bff/bffss"
)

func Root() star.Command {
	return root
}

var root = star.NewDir(star.Metadata{
	Short: "BFF abiogenesis simulator",
}, map[star.Symbol]star.Command{
	// experiments
	"run":        withDefaults(runCmd),
	"resume":     withDefaults(resumeCmd),
	"replicates": withDefaults(replicatesCmd),

	// runs in the database
	"runs":    withDefaults(runsCmd),
	"drop":    withDefaults(dropCmd),
	"inspect": withDefaults(inspectCmd),
	"import":  withDefaults(importCmd),
	"genomes": withDefaults(genomesCmd),
	"genome":  withDefaults(genomeCmd),

	"exec": withDefaults(execCmd),
})

var DBParam = star.Param[*sqlx.DB]{
	Name:    "db",
	Default: star.Ptr(":memory:"),
	Parse: func(x string) (*sqlx.DB, error) {
		db, err := bffss.OpenDB(x)
		if err != nil {
			return nil, err
		}
		if err := bffss.SetupDB(context.Background(), db); err != nil {
			return nil, err
		}
		return db, nil
	},
}

var RunIDParam = star.Param[bffss.RunID]{Name: "run", Parse: ParseRunID}

func ParseRunID(x string) (bffss.RunID, error) {
	n, err := strconv.ParseUint(x, 10, 63)
	return bffss.RunID(n), err
}

// newContext returns the command's context with a logger writing to stderr.
func newContext(c star.Context) (context.Context, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logctx.NewContext(c.Context, l), nil
}
