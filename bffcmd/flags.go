package bffcmd

import (
	"slices"

	"go.brendoncarroll.net/star"
)

type flagDefault struct {
	Name  star.Symbol
	Value string
}

func defaultOf[T any](p star.Param[T]) flagDefault {
	return flagDefault{Name: p.Name, Value: *p.Default}
}

// flagDefaults holds every flag which has a default.
var flagDefaults = []flagDefault{
	defaultOf(DBParam),
	defaultOf(nParam),
	defaultOf(soupSizeParam),
	defaultOf(tapeLengthParam),
	defaultOf(mutationRateParam),
	defaultOf(seedParam),
	defaultOf(batchSizeParam),
	defaultOf(maxOpsParam),
	defaultOf(timeoutProbParam),
	defaultOf(checkpointEveryParam),
	defaultOf(metricsOutParam),
	defaultOf(stateOutParam),
	defaultOf(countParam),
	defaultOf(execModeParam),
	defaultOf(fromParam),
}

// withDefaults returns a command which passes every defaulted flag missing from
// its arguments explicitly, and then runs cmd.
// star's flag parser only fills in the first missing default it comes across.
func withDefaults(cmd star.Command) star.Command {
	return star.Command{
		Metadata: cmd.Metadata,
		F: func(c star.Context) error {
			return star.Run(c.Context, cmd, c.Env, c.CalledAs, fillDefaults(cmd, c.Extra), c.StdIn, c.StdOut, c.StdErr)
		},
	}
}

func fillDefaults(cmd star.Command, args []string) []string {
	args = slices.Clone(args)
	for _, d := range flagDefaults {
		flag := "--" + string(d.Name)
		if cmd.HasParam(d.Name) && !slices.Contains(args, flag) {
			args = append(args, flag, d.Value)
		}
	}
	return args
}
